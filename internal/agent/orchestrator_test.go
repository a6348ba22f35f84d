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

package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-agent/internal/agent/consent"
	"invoice-agent/internal/agent/tools"
	"invoice-agent/internal/model/llm"
	"invoice-agent/internal/runtime/session"
	apperrors "invoice-agent/pkg/errors"
	"invoice-agent/pkg/metrics"
)

// scriptedClient 按脚本逐轮返回预设响应
type scriptedClient struct {
	responses []*llm.ChatResponse
	calls     int
	seen      [][]llm.Message
	seenOpts  []llm.GenerateOptions
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (*llm.ChatResponse, error) {
	return c.ChatWithTools(ctx, messages, nil, opts)
}

func (c *scriptedClient) ChatWithTools(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition, opts llm.GenerateOptions) (*llm.ChatResponse, error) {
	c.seen = append(c.seen, messages)
	c.seenOpts = append(c.seenOpts, opts)
	if c.calls >= len(c.responses) {
		// 脚本耗尽后一直要求调用工具,用于轮数上限测试
		return toolCallResponse("call-loop", "echo", `{"msg":"again"}`), nil
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func (c *scriptedClient) Model() string    { return "test-model" }
func (c *scriptedClient) Provider() string { return "test" }

func answerResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:      llm.Message{Role: "assistant", Content: text},
		FinishReason: "stop",
	}
}

func toolCallResponse(id, name, args string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{{
				ID:   id,
				Type: "function",
				Function: llm.FunctionCall{Name: name, Arguments: args},
			}},
		},
		FinishReason: "tool_calls",
	}
}

type recordingTool struct {
	name     string
	result   tools.ToolResult
	executed atomic.Int32
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return t.name }
func (t *recordingTool) Schema() Schema {
	return Schema{Type: "object", Properties: map[string]SchemaProperty{"msg": {Type: "string"}}}
}
func (t *recordingTool) Execute(_ context.Context, _ map[string]any) (tools.ToolResult, error) {
	t.executed.Add(1)
	return t.result, nil
}

// 包内别名,避免测试里到处写 tools. 前缀
type (
	Schema         = tools.Schema
	SchemaProperty = tools.SchemaProperty
)

type countingSender struct{ calls atomic.Int32 }

func (s *countingSender) Execute(_ context.Context, _ map[string]any) (tools.ToolResult, error) {
	s.calls.Add(1)
	return tools.ToolResult{Content: `{"status":"sent","message_id":"m-1"}`}, nil
}

func newOrchestrator(client llm.Client, reg *tools.Registry, sender consent.Executor, maxRounds int) (*Orchestrator, *consent.Gate) {
	gate := consent.NewGate(sender, time.Minute, nil)
	return New(client, reg, gate, nil, Options{MaxRounds: maxRounds}), gate
}

func TestRunReturnsDirectAnswer(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{answerResponse("There are 42 invoices.")}}
	orch, _ := newOrchestrator(client, tools.NewRegistry(), &countingSender{}, 0)

	sess := session.New("sess-1")
	outcome, err := orch.Run(context.Background(), sess, "How many invoices?")
	require.NoError(t, err)
	assert.Equal(t, "There are 42 invoices.", outcome.Answer)
	assert.Nil(t, outcome.Pending)

	// system prompt + user 消息进入首轮请求
	require.NotEmpty(t, client.seen)
	first := client.seen[0]
	assert.Equal(t, "system", first[0].Role)
	assert.Contains(t, first[0].Content, "SQL-Pro Agent")
	assert.Equal(t, "How many invoices?", first[len(first)-1].Content)

	// 会话积累 user + assistant 两条
	history := sess.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestRunAppliesConfiguredOptions(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{answerResponse("ok")}}
	gate := consent.NewGate(&countingSender{}, time.Minute, nil)
	orch := New(client, tools.NewRegistry(), gate, nil, Options{
		MaxRounds: 1, Temperature: 0.7, MaxTokens: 256, HistoryLimit: 2,
	})

	sess := session.New("sess-1")
	sess.Append(
		llm.Message{Role: "user", Content: "old question"},
		llm.Message{Role: "assistant", Content: "old answer"},
		llm.Message{Role: "user", Content: "older question"},
		llm.Message{Role: "assistant", Content: "older answer"},
	)

	_, err := orch.Run(context.Background(), sess, "latest question")
	require.NoError(t, err)

	require.Len(t, client.seenOpts, 1)
	assert.Equal(t, 0.7, client.seenOpts[0].Temperature)
	assert.Equal(t, 256, client.seenOpts[0].MaxTokens)

	// 历史截断到最近 2 条,加 system 共 3 条进入请求
	require.Len(t, client.seen[0], 3)
	assert.Equal(t, "latest question", client.seen[0][2].Content)
}

func TestRunDefaultTemperature(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{answerResponse("ok")}}
	orch, _ := newOrchestrator(client, tools.NewRegistry(), &countingSender{}, 0)

	_, err := orch.Run(context.Background(), session.New("s"), "hi")
	require.NoError(t, err)
	require.Len(t, client.seenOpts, 1)
	assert.Equal(t, 0.1, client.seenOpts[0].Temperature)
}

func TestRunCountsUsageTokens(t *testing.T) {
	resp := answerResponse("There are 42 invoices.")
	resp.Usage = llm.Usage{PromptTokens: 120, CompletionTokens: 8, TotalTokens: 128}
	client := &scriptedClient{responses: []*llm.ChatResponse{resp}}
	orch, _ := newOrchestrator(client, tools.NewRegistry(), &countingSender{}, 0)

	promptBefore := testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues("prompt"))
	completionBefore := testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues("completion"))

	_, err := orch.Run(context.Background(), session.New("sess-1"), "How many invoices?")
	require.NoError(t, err)

	assert.Equal(t, 120.0, testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues("prompt"))-promptBefore)
	assert.Equal(t, 8.0, testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues("completion"))-completionBefore)
}

func TestRunToolLoop(t *testing.T) {
	echo := &recordingTool{name: "echo", result: tools.ToolResult{Content: `{"results":[]}`}}
	reg := tools.NewRegistry()
	reg.Register(echo)

	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call-1", "echo", `{"msg":"hi"}`),
		answerResponse("Done."),
	}}
	orch, _ := newOrchestrator(client, reg, &countingSender{}, 0)

	sess := session.New("sess-1")
	outcome, err := orch.Run(context.Background(), sess, "run the tool")
	require.NoError(t, err)
	assert.Equal(t, "Done.", outcome.Answer)
	assert.Equal(t, int32(1), echo.executed.Load())

	// 第二轮请求里必须带上 tool 结果回合
	second := client.seen[1]
	var sawToolTurn bool
	for _, m := range second {
		if m.Role == "tool" && m.ToolCallID == "call-1" {
			sawToolTurn = true
			assert.Equal(t, `{"results":[]}`, m.Content)
		}
	}
	assert.True(t, sawToolTurn)
}

func TestRunUnknownToolReportedToModel(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call-1", "nonexistent", `{}`),
		answerResponse("Recovered."),
	}}
	orch, _ := newOrchestrator(client, tools.NewRegistry(), &countingSender{}, 0)

	outcome, err := orch.Run(context.Background(), session.New("s"), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", outcome.Answer)

	second := client.seen[1]
	last := second[len(second)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Contains(t, last.Content, "未知工具")
}

func TestRunMalformedArgumentsReportedToModel(t *testing.T) {
	echo := &recordingTool{name: "echo", result: tools.ToolResult{Content: "ok"}}
	reg := tools.NewRegistry()
	reg.Register(echo)

	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call-1", "echo", `{not json`),
		answerResponse("Fixed."),
	}}
	orch, _ := newOrchestrator(client, reg, &countingSender{}, 0)

	outcome, err := orch.Run(context.Background(), session.New("s"), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Fixed.", outcome.Answer)
	assert.Equal(t, int32(0), echo.executed.Load())
}

func TestRunRoundLimit(t *testing.T) {
	echo := &recordingTool{name: "echo", result: tools.ToolResult{Content: "ok"}}
	reg := tools.NewRegistry()
	reg.Register(echo)

	client := &scriptedClient{} // 脚本为空:每轮都返回工具调用
	orch, _ := newOrchestrator(client, reg, &countingSender{}, 3)

	_, err := orch.Run(context.Background(), session.New("s"), "loop forever")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRoundLimit))
	assert.Equal(t, int32(3), echo.executed.Load())
}

func TestRunConsentInterrupt(t *testing.T) {
	consentTool := tools.NewConsentRequestTool()
	after := &recordingTool{name: "after", result: tools.ToolResult{Content: "ok"}}
	reg := tools.NewRegistry()
	reg.Register(consentTool)
	reg.Register(after)

	draftArgs := `{"to_emails":"a@example.com","subject":"Report","body":"Hi","attachments_json":"[]"}`
	client := &scriptedClient{responses: []*llm.ChatResponse{{
		Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{
				{ID: "call-1", Type: "function", Function: llm.FunctionCall{Name: "request_email_consent", Arguments: draftArgs}},
				{ID: "call-2", Type: "function", Function: llm.FunctionCall{Name: "after", Arguments: `{}`}},
			},
		},
		FinishReason: "tool_calls",
	}}}

	sender := &countingSender{}
	orch, _ := newOrchestrator(client, reg, sender, 0)
	sess := session.New("sess-1")

	outcome, err := orch.Run(context.Background(), sess, "email the report")
	require.NoError(t, err)
	require.NotNil(t, outcome.Pending)
	assert.Equal(t, "a@example.com", outcome.Pending.Draft["to_emails"])
	assert.Equal(t, consent.StateDraft, outcome.Pending.State)
	assert.Equal(t, outcome.Pending.Token, sess.Pending())

	// 同轮靠后的调用不执行,但有占位结果回填
	assert.Equal(t, int32(0), after.executed.Load())
	var sawSkipped bool
	for _, m := range sess.History(0) {
		if m.Role == "tool" && m.ToolCallID == "call-2" {
			sawSkipped = true
			assert.Contains(t, m.Content, "not executed")
		}
	}
	assert.True(t, sawSkipped)

	// 未批准前绝不发送
	assert.Equal(t, int32(0), sender.calls.Load())
}

func TestRunBlockedWhilePending(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{answerResponse("hi")}}
	orch, _ := newOrchestrator(client, tools.NewRegistry(), &countingSender{}, 0)

	sess := session.New("sess-1")
	sess.SetPendingToken("tok-1")

	_, err := orch.Run(context.Background(), sess, "another question")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConsentPending))
}

func TestResolveApproveSendsOnce(t *testing.T) {
	sender := &countingSender{}
	orch, gate := newOrchestrator(&scriptedClient{}, tools.NewRegistry(), sender, 0)

	sess := session.New("sess-1")
	pending, err := gate.Open(sess.ID, "send_email", map[string]any{"to_emails": "a@example.com"})
	require.NoError(t, err)
	sess.SetPendingToken(pending.Token)

	outcome, err := orch.Resolve(context.Background(), sess, pending.Token, true)
	require.NoError(t, err)
	assert.Contains(t, outcome.Answer, "sent")
	assert.Equal(t, int32(1), sender.calls.Load())
	assert.Empty(t, sess.Pending())

	// 重复批准报 action_already_executed 且不重发
	_, err = orch.Resolve(context.Background(), sess, pending.Token, true)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAlreadyExecuted))
	assert.Equal(t, int32(1), sender.calls.Load())
}

func TestResolveReject(t *testing.T) {
	sender := &countingSender{}
	orch, gate := newOrchestrator(&scriptedClient{}, tools.NewRegistry(), sender, 0)

	sess := session.New("sess-1")
	pending, err := gate.Open(sess.ID, "send_email", map[string]any{"to_emails": "a@example.com"})
	require.NoError(t, err)
	sess.SetPendingToken(pending.Token)

	outcome, err := orch.Resolve(context.Background(), sess, pending.Token, false)
	require.NoError(t, err)
	assert.Contains(t, outcome.Answer, "not sent")
	assert.Equal(t, int32(0), sender.calls.Load())
	assert.Empty(t, sess.Pending())
}

func TestResolveMistypedTokenKeepsPending(t *testing.T) {
	sender := &countingSender{}
	orch, gate := newOrchestrator(&scriptedClient{}, tools.NewRegistry(), sender, 0)

	sess := session.New("sess-1")
	pending, err := gate.Open(sess.ID, "send_email", map[string]any{"to_emails": "a@example.com"})
	require.NoError(t, err)
	sess.SetPendingToken(pending.Token)

	// 拼错的令牌报错,但会话真正的草稿仍在等待确认
	_, err = orch.Resolve(context.Background(), sess, "wrong-token", true)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoPendingAction))
	assert.Equal(t, pending.Token, sess.Pending())

	// 正确的令牌随后仍能批准执行
	outcome, err := orch.Resolve(context.Background(), sess, pending.Token, true)
	require.NoError(t, err)
	assert.Contains(t, outcome.Answer, "sent")
	assert.Equal(t, int32(1), sender.calls.Load())
	assert.Empty(t, sess.Pending())
}

func TestResolveExpiredTokenClearsPending(t *testing.T) {
	orch, gate := newOrchestrator(&scriptedClient{}, tools.NewRegistry(), &countingSender{}, 0)

	sess := session.New("sess-1")
	pending, err := gate.Open(sess.ID, "send_email", map[string]any{"to_emails": "a@example.com"})
	require.NoError(t, err)
	sess.SetPendingToken(pending.Token)

	// 网关侧先取消,会话标记随后的解决尝试一并清掉
	require.NoError(t, gate.Reject(pending.Token))
	_, err = orch.Resolve(context.Background(), sess, pending.Token, true)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoPendingAction))
	assert.Empty(t, sess.Pending())
}

func TestResolveUnknownToken(t *testing.T) {
	orch, _ := newOrchestrator(&scriptedClient{}, tools.NewRegistry(), &countingSender{}, 0)
	_, err := orch.Resolve(context.Background(), session.New("s"), "nope", true)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNoPendingAction))
}
