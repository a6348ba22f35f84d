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

// Package consent 管理需要用户确认的敏感动作:动作先冻结为 PendingAction,
// 用户用 token 显式批准后才执行,且恰好执行一次。
package consent

import (
	"time"
)

// State 待确认动作的状态机
type State string

const (
	StateDraft    State = "draft"
	StateApproved State = "approved"
	StateExecuted State = "executed"
	StateRejected State = "rejected"
)

// Terminal 是否终态
func (s State) Terminal() bool {
	return s == StateExecuted || s == StateRejected
}

// PendingAction 冻结的待确认动作。Draft 是工具参数的快照,
// 批准时原样交给执行器,模型后续输出无法再改动它。
type PendingAction struct {
	Token     string         `json:"token"`
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name"`
	Draft     map[string]any `json:"draft"`
	State     State          `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired 是否已过期
func (p *PendingAction) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
