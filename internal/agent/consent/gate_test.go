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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-agent/internal/agent/tools"
	apperrors "invoice-agent/pkg/errors"
)

type countingExecutor struct {
	calls atomic.Int32
	last  map[string]any
	mu    sync.Mutex
	err   error
}

func (e *countingExecutor) Execute(_ context.Context, input map[string]any) (tools.ToolResult, error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.last = input
	e.mu.Unlock()
	if e.err != nil {
		return tools.ToolResult{}, e.err
	}
	return tools.ToolResult{Content: `{"status":"sent"}`}, nil
}

func newTestGate(exec Executor) *Gate {
	return NewGate(exec, time.Minute, nil)
}

func TestGateApproveExecutesExactlyOnce(t *testing.T) {
	exec := &countingExecutor{}
	gate := newTestGate(exec)

	draft := map[string]any{"to_emails": "a@example.com", "subject": "s"}
	action, err := gate.Open("sess-1", "send_email", draft)
	require.NoError(t, err)
	assert.Equal(t, StateDraft, action.State)

	result, err := gate.Approve(context.Background(), action.Token)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "sent")
	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Equal(t, draft, exec.last)

	// 重复批准不触发第二次执行
	_, err = gate.Approve(context.Background(), action.Token)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAlreadyExecuted))
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestGateRejectNeverExecutes(t *testing.T) {
	exec := &countingExecutor{}
	gate := newTestGate(exec)

	action, err := gate.Open("sess-1", "send_email", map[string]any{"to_emails": "a@example.com"})
	require.NoError(t, err)

	require.NoError(t, gate.Reject(action.Token))
	assert.Equal(t, int32(0), exec.calls.Load())

	_, err = gate.Approve(context.Background(), action.Token)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoPendingAction))
	assert.Equal(t, int32(0), exec.calls.Load())
}

func TestGateUnknownToken(t *testing.T) {
	gate := newTestGate(&countingExecutor{})
	_, err := gate.Approve(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoPendingAction))

	err = gate.Reject("nope")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoPendingAction))
}

func TestGateOnePendingPerSession(t *testing.T) {
	gate := newTestGate(&countingExecutor{})

	first, err := gate.Open("sess-1", "send_email", map[string]any{"subject": "a"})
	require.NoError(t, err)

	_, err = gate.Open("sess-1", "send_email", map[string]any{"subject": "b"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConsentPending))

	// 其他会话不受影响
	_, err = gate.Open("sess-2", "send_email", map[string]any{"subject": "c"})
	require.NoError(t, err)

	// 取消后可以再开
	require.NoError(t, gate.Reject(first.Token))
	_, err = gate.Open("sess-1", "send_email", map[string]any{"subject": "d"})
	require.NoError(t, err)
}

func TestGateExpiredToken(t *testing.T) {
	exec := &countingExecutor{}
	gate := newTestGate(exec)
	now := time.Now()
	gate.now = func() time.Time { return now }

	action, err := gate.Open("sess-1", "send_email", map[string]any{"subject": "a"})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = gate.Approve(context.Background(), action.Token)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoPendingAction))
	assert.Equal(t, int32(0), exec.calls.Load())

	// 过期后会话解锁
	_, err = gate.Open("sess-1", "send_email", map[string]any{"subject": "b"})
	require.NoError(t, err)
}

func TestGateExecutorFailureSurfaces(t *testing.T) {
	exec := &countingExecutor{err: apperrors.New(apperrors.KindIssuerUnavailable, "brevo 服务不可用")}
	gate := newTestGate(exec)

	action, err := gate.Open("sess-1", "send_email", map[string]any{"subject": "a"})
	require.NoError(t, err)

	_, err = gate.Approve(context.Background(), action.Token)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindIssuerUnavailable))

	// 失败的执行也是终态,不允许再次批准重发
	_, err = gate.Approve(context.Background(), action.Token)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAlreadyExecuted))
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestGateConcurrentApproveSingleExecution(t *testing.T) {
	exec := &countingExecutor{}
	gate := newTestGate(exec)

	action, err := gate.Open("sess-1", "send_email", map[string]any{"subject": "a"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gate.Approve(context.Background(), action.Token); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestGateSweepsTerminalActions(t *testing.T) {
	exec := &countingExecutor{}
	gate := newTestGate(exec)
	now := time.Now()
	gate.now = func() time.Time { return now }

	action, err := gate.Open("sess-1", "send_email", map[string]any{"subject": "a"})
	require.NoError(t, err)
	_, err = gate.Approve(context.Background(), action.Token)
	require.NoError(t, err)

	// TTL 窗口内保留终态,重复批准仍报 action_already_executed
	_, err = gate.Approve(context.Background(), action.Token)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAlreadyExecuted))

	// 窗口过后任意一次 Open 触发清理,token 彻底消失
	now = now.Add(2 * time.Minute)
	_, err = gate.Open("sess-2", "send_email", map[string]any{"subject": "b"})
	require.NoError(t, err)

	_, ok := gate.Get(action.Token)
	assert.False(t, ok)
	_, err = gate.Approve(context.Background(), action.Token)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoPendingAction))
	assert.Equal(t, int32(1), exec.calls.Load())
}
