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

package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "invoice-agent/pkg/errors"
)

func TestSendPlainText(t *testing.T) {
	var got map[string]any
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/smtp/email", r.URL.Path)
		apiKey = r.Header.Get("api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"messageId":"<msg-1@brevo>"}`)
	}))
	defer srv.Close()

	c := NewBrevoClient("agent@example.com", "Invoice Agent", srv.URL, nil)
	result, err := c.Send(context.Background(), "secret-key", SendRequest{
		ToEmails: "a@example.com, b@example.com",
		Subject:  "Invoice INV-1",
		Body:     "Please find the export attached.",
	})
	require.NoError(t, err)
	assert.Equal(t, "<msg-1@brevo>", result.MessageID)
	assert.Equal(t, "secret-key", apiKey)

	sender := got["sender"].(map[string]any)
	assert.Equal(t, "agent@example.com", sender["email"])
	to := got["to"].([]any)
	assert.Len(t, to, 2)
	assert.Equal(t, "Please find the export attached.", got["textContent"])
	_, hasAttachment := got["attachment"]
	assert.False(t, hasAttachment)
}

func TestSendWithAttachment(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "col\nval\n")
	}))
	defer fileSrv.Close()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"messageId":"<msg-2@brevo>"}`)
	}))
	defer srv.Close()

	c := NewBrevoClient("agent@example.com", "", srv.URL, nil)
	attachments := fmt.Sprintf(`[{"url":%q,"filename":"result.csv"},{"url":"","filename":"skipped"}]`, fileSrv.URL)
	_, err := c.Send(context.Background(), "k", SendRequest{
		ToEmails:        "a@example.com",
		Subject:         "s",
		Body:            "b",
		AttachmentsJSON: attachments,
	})
	require.NoError(t, err)

	list := got["attachment"].([]any)
	require.Len(t, list, 1, "缺 url 的附件应被跳过")
	att := list[0].(map[string]any)
	assert.Equal(t, "result.csv", att["name"])
	assert.Equal(t, "Y29sCnZhbAo=", att["content"])
}

func TestSendRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"messageId":"<msg-3@brevo>"}`)
	}))
	defer srv.Close()

	c := NewBrevoClient("agent@example.com", "", srv.URL, nil)
	result, err := c.Send(context.Background(), "k", SendRequest{ToEmails: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "<msg-3@brevo>", result.MessageID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendValidation(t *testing.T) {
	c := NewBrevoClient("agent@example.com", "", "http://unused.invalid", nil)

	_, err := c.Send(context.Background(), "k", SendRequest{ToEmails: " , "})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = c.Send(context.Background(), "k", SendRequest{
		ToEmails:        "a@example.com",
		AttachmentsJSON: "{oops",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
