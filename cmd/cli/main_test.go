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

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetHeader("Content-Type", "application/json")
}

func TestSendChatAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sess-1", body["session_id"])
		assert.Equal(t, "hello", body["query"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": "sess-1",
			"answer":     "hi there",
		})
	}))
	defer srv.Close()

	resp, err := sendChat(testClient(srv.URL), "sess-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Answer)
	assert.Empty(t, resp.ActionRequired)
}

func TestSendDecisionCarriesApproval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok-1", body["action_token"])
		assert.Equal(t, true, body["approval"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"answer": "The email has been sent."})
	}))
	defer srv.Close()

	resp, err := sendDecision(testClient(srv.URL), "sess-1", "tok-1", true)
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "sent")
}

func TestSendChatErrorShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"kind":    "no_pending_action",
			"message": "没有对应的待确认动作",
		})
	}))
	defer srv.Close()

	_, err := sendChat(testClient(srv.URL), "sess-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_pending_action")
}
