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

package consent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoice-agent/internal/agent/tools"
	apperrors "invoice-agent/pkg/errors"
	"invoice-agent/pkg/log"
	"invoice-agent/pkg/metrics"
)

const defaultPendingTTL = 10 * time.Minute

// Executor 执行已批准的动作(send_email 工具实现)
type Executor interface {
	Execute(ctx context.Context, input map[string]any) (tools.ToolResult, error)
}

// Gate 确认网关。每个会话同一时刻最多一个未决动作;
// 批准后恰好执行一次,重复批准返回 action_already_executed。
type Gate struct {
	mu        sync.Mutex
	actions   map[string]*PendingAction // token → action
	bySession map[string]string         // sessionID → open token
	executor  Executor
	ttl       time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// NewGate 创建确认网关;ttl <= 0 时用默认 10 分钟
func NewGate(executor Executor, ttl time.Duration, logger *log.Logger) *Gate {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &Gate{
		actions:   make(map[string]*PendingAction),
		bySession: make(map[string]string),
		executor:  executor,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// Open 冻结一个待确认动作。同会话已有未决动作时拒绝,
// 调用方应先让用户批准或取消当前动作。
func (g *Gate) Open(sessionID, toolName string, draft map[string]any) (*PendingAction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sweepLocked()

	if token, ok := g.bySession[sessionID]; ok {
		existing := g.actions[token]
		if existing != nil && !existing.State.Terminal() && !existing.Expired(g.now()) {
			return nil, apperrors.Newf(apperrors.KindConsentPending,
				"会话 %s 已有待确认动作 %s", sessionID, token)
		}
		g.evictLocked(token)
	}

	now := g.now()
	action := &PendingAction{
		Token:     uuid.NewString(),
		SessionID: sessionID,
		ToolName:  toolName,
		Draft:     draft,
		State:     StateDraft,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	g.actions[action.Token] = action
	g.bySession[sessionID] = action.Token
	metrics.ConsentTotal.WithLabelValues("opened").Inc()
	return action, nil
}

// Approve 批准并执行动作。凭据在执行器内部、且只在这一刻获取。
func (g *Gate) Approve(ctx context.Context, token string) (tools.ToolResult, error) {
	action, err := g.claim(token)
	if err != nil {
		return tools.ToolResult{}, err
	}

	result, err := g.executor.Execute(ctx, action.Draft)

	g.mu.Lock()
	action.State = StateExecuted
	g.evictSessionLocked(action)
	g.mu.Unlock()

	if err != nil {
		metrics.ConsentTotal.WithLabelValues("failed").Inc()
		if g.logger != nil {
			g.logger.Warn("执行已批准动作failed", "token", token, "error", err)
		}
		return tools.ToolResult{}, err
	}
	metrics.ConsentTotal.WithLabelValues("executed").Inc()
	return result, nil
}

// claim 原子地把动作从 Draft 推进到 Approved
func (g *Gate) claim(token string) (*PendingAction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	action, ok := g.actions[token]
	if !ok {
		return nil, apperrors.New(apperrors.KindNoPendingAction, "没有对应的待确认动作")
	}
	switch {
	case action.State == StateExecuted, action.State == StateApproved:
		return nil, apperrors.New(apperrors.KindAlreadyExecuted, "动作已执行,不能重复批准")
	case action.State == StateRejected:
		return nil, apperrors.New(apperrors.KindNoPendingAction, "动作已被取消")
	case action.Expired(g.now()):
		action.State = StateRejected
		g.evictSessionLocked(action)
		metrics.ConsentTotal.WithLabelValues("expired").Inc()
		return nil, apperrors.New(apperrors.KindNoPendingAction, "动作已过期")
	}
	action.State = StateApproved
	return action, nil
}

// Reject 显式取消动作;无副作用发生
func (g *Gate) Reject(token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	action, ok := g.actions[token]
	if !ok {
		return apperrors.New(apperrors.KindNoPendingAction, "没有对应的待确认动作")
	}
	if action.State.Terminal() {
		return apperrors.New(apperrors.KindNoPendingAction, "动作已结束")
	}
	action.State = StateRejected
	g.evictSessionLocked(action)
	metrics.ConsentTotal.WithLabelValues("rejected").Inc()
	return nil
}

// Get 查询动作(过期的按不存在处理)
func (g *Gate) Get(token string) (*PendingAction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	action, ok := g.actions[token]
	if !ok || (action.State == StateDraft && action.Expired(g.now())) {
		return nil, false
	}
	return action, true
}

// sweepLocked 清掉 TTL 窗口已过的终态动作,防止 token 无限累积。
// 终态动作在窗口内保留,用于对重复批准回答 action_already_executed;
// 窗口过后重复批准降级为 no_pending_action。
func (g *Gate) sweepLocked() {
	now := g.now()
	for token, action := range g.actions {
		if action.State.Terminal() && action.Expired(now) {
			g.evictSessionLocked(action)
			delete(g.actions, token)
		}
	}
}

func (g *Gate) evictLocked(token string) {
	if action, ok := g.actions[token]; ok {
		g.evictSessionLocked(action)
		delete(g.actions, token)
	}
}

func (g *Gate) evictSessionLocked(action *PendingAction) {
	if g.bySession[action.SessionID] == action.Token {
		delete(g.bySession, action.SessionID)
	}
}
