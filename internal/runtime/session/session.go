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

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"invoice-agent/internal/model/llm"
)

// Session 一段对话的状态载体：历史消息 + 当前待确认动作的 token
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages 对话历史，含 assistant 的 tool_calls 与 tool 结果
	Messages []llm.Message `json:"messages"`

	// PendingToken 当前待确认动作的 token；空表示没有挂起的确认
	PendingToken string `json:"pending_token,omitempty"`

	mu sync.RWMutex
}

// Info Session 的列表摘要，不携带消息体
type Info struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Pending      bool      `json:"pending"`
}

// New 创建新 Session（id 为空时自动分配）
func New(id string) *Session {
	now := time.Now()
	if id == "" {
		id = "session-" + uuid.New().String()
	}
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append 追加对话消息
func (s *Session) Append(messages ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
	s.Messages = append(s.Messages, messages...)
}

// History 返回消息副本；limit >0 时只取最近 limit 条
func (s *Session) History(limit int) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out
}

// SetPendingToken 记录待确认动作；token 空表示清除
func (s *Session) SetPendingToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
	s.PendingToken = token
}

// Pending 返回当前待确认 token（空则无）
func (s *Session) Pending() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PendingToken
}

// Info 返回列表摘要
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
		Pending:      s.PendingToken != "",
	}
}
