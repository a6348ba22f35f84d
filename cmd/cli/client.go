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
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("INVOICE_AGENT_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(120 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token := os.Getenv("INVOICE_AGENT_TOKEN"); token != "" {
		c.SetAuthToken(token)
	}
	return c
}

// chatResponse 聊天端点的两种形态:最终回答,或待确认的邮件草稿
type chatResponse struct {
	SessionID      string         `json:"session_id"`
	Answer         string         `json:"answer"`
	ActionRequired string         `json:"action_required"`
	ActionToken    string         `json:"action_token"`
	DraftDetails   map[string]any `json:"draft_details"`
	ExpiresAt      string         `json:"expires_at"`
	Kind           string         `json:"kind"`
	Message        string         `json:"message"`
}

func sendChat(client *resty.Client, sessionID, query string) (*chatResponse, error) {
	return doChat(client, map[string]any{
		"session_id": sessionID,
		"query":      query,
	})
}

func sendDecision(client *resty.Client, sessionID, token string, approve bool) (*chatResponse, error) {
	return doChat(client, map[string]any{
		"session_id":   sessionID,
		"action_token": token,
		"approval":     approve,
	})
}

func doChat(client *resty.Client, payload map[string]any) (*chatResponse, error) {
	var out chatResponse
	resp, err := client.R().
		SetBody(payload).
		SetResult(&out).
		SetError(&out).
		Post("/api/chat")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		if out.Message != "" {
			return nil, fmt.Errorf("%s: %s", out.Kind, out.Message)
		}
		return nil, fmt.Errorf("POST /api/chat: %s", resp.String())
	}
	return &out, nil
}
