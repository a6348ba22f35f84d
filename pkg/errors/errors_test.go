// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil, msg) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrap(err, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err, msg) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
}

func TestKindOf(t *testing.T) {
	err := New(KindValidation, "missing parameter sql_query")
	if KindOf(err) != KindValidation {
		t.Errorf("KindOf = %s, want validation", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("plain error should map to internal")
	}
	wrapped := Wrap(err, "tool invoke")
	if KindOf(wrapped) != KindValidation {
		t.Error("Kind should survive Wrap")
	}
}

func TestWrapKindUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := WrapKind(base, KindIssuerUnavailable, "object store put")
	if !errors.Is(err, base) {
		t.Error("WrapKind should unwrap to base")
	}
	if !Retryable(err) {
		t.Error("issuer_unavailable should be retryable")
	}
	if Retryable(New(KindAlreadyExecuted, "token t1")) {
		t.Error("action_already_executed must not be retryable")
	}
}

func TestMarshalJSON(t *testing.T) {
	err := WrapKind(errors.New("secret detail"), KindRoundLimit, "exceeded 14 rounds")
	b, mErr := json.Marshal(err)
	if mErr != nil {
		t.Fatalf("marshal: %v", mErr)
	}
	var out struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	if uErr := json.Unmarshal(b, &out); uErr != nil {
		t.Fatalf("unmarshal: %v", uErr)
	}
	if out.Kind != "round_limit" || out.Message != "exceeded 14 rounds" {
		t.Errorf("unexpected payload: %+v", out)
	}
	if strings.Contains(string(b), "secret detail") {
		t.Error("cause must not leak into JSON")
	}
}
