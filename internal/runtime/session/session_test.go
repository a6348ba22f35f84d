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
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-agent/internal/model/llm"
)

func TestSessionAppendAndHistory(t *testing.T) {
	s := New("")
	assert.NotEmpty(t, s.ID)

	s.Append(llm.Message{Role: "user", Content: "q1"})
	s.Append(
		llm.Message{Role: "assistant", Content: "a1"},
		llm.Message{Role: "user", Content: "q2"},
	)

	all := s.History(0)
	require.Len(t, all, 3)
	assert.Equal(t, "q1", all[0].Content)

	last := s.History(2)
	require.Len(t, last, 2)
	assert.Equal(t, "a1", last[0].Content)

	// History 返回副本，调用方改动不回写
	last[0].Content = "mutated"
	assert.Equal(t, "a1", s.History(0)[1].Content)
}

func TestSessionPendingToken(t *testing.T) {
	s := New("session-x")
	assert.Empty(t, s.Pending())
	s.SetPendingToken("tok-1")
	assert.Equal(t, "tok-1", s.Pending())
	s.SetPendingToken("")
	assert.Empty(t, s.Pending())
}

func TestSessionJSONRoundTrip(t *testing.T) {
	s := New("session-json")
	s.Append(llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: llm.FunctionCall{
				Name:      "execute_sql_query",
				Arguments: `{"query":"SELECT 1"}`,
			},
		}},
	})
	s.SetPendingToken("tok-9")

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Session
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "session-json", decoded.ID)
	assert.Equal(t, "tok-9", decoded.PendingToken)
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "execute_sql_query", decoded.Messages[0].ToolCalls[0].Function.Name)
}

func TestManagerGetOrCreate(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	created, err := m.GetOrCreate(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, created)

	same, err := m.GetOrCreate(ctx, created.ID)
	require.NoError(t, err)
	assert.Same(t, created, same)

	named, err := m.GetOrCreate(ctx, "session-named")
	require.NoError(t, err)
	assert.Equal(t, "session-named", named.ID)

	require.NoError(t, m.Delete(ctx, named.ID))
	gone, err := m.Get(ctx, named.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestManagerCreateAndList(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())

	first, err := m.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := m.GetOrCreate(ctx, "session-listed")
	require.NoError(t, err)
	second.Append(llm.Message{Role: "user", Content: "你好"})
	second.SetPendingToken("tok-1")

	infos, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// second 更新更晚,排在前面
	assert.Equal(t, "session-listed", infos[0].ID)
	assert.Equal(t, 1, infos[0].MessageCount)
	assert.True(t, infos[0].Pending)
	assert.Equal(t, first.ID, infos[1].ID)
	assert.False(t, infos[1].Pending)
}
