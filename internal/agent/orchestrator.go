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

// Package agent 工具调用编排循环:把模型的结构化意图转成受控的
// 数据库查询和需用户确认的副作用。
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"invoice-agent/internal/agent/consent"
	"invoice-agent/internal/agent/tools"
	"invoice-agent/internal/model/llm"
	"invoice-agent/internal/runtime/session"
	apperrors "invoice-agent/pkg/errors"
	"invoice-agent/pkg/log"
	"invoice-agent/pkg/metrics"
)

const (
	defaultMaxRounds   = 14
	defaultTemperature = 0.1
)

// Outcome 一次编排的结果:最终回答,或等待用户确认的动作
type Outcome struct {
	Answer  string
	Pending *consent.PendingAction
}

// Options 编排行为参数;零值取默认
type Options struct {
	MaxRounds    int     // 每次交互的工具循环轮数上限,<=0 时 14
	Temperature  float64 // 模型采样温度,<=0 时 0.1
	MaxTokens    int     // 单次模型输出 token 上限,<=0 不限制
	HistoryLimit int     // 带入 prompt 的历史消息上限,<=0 不截断
}

// Orchestrator 无状态编排器,会话状态全部在 session 里
type Orchestrator struct {
	client   llm.Client
	registry *tools.Registry
	gate     *consent.Gate
	logger   *log.Logger
	opts     Options
}

// New 创建编排器
func New(client llm.Client, registry *tools.Registry, gate *consent.Gate, logger *log.Logger, opts Options) *Orchestrator {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaultMaxRounds
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	return &Orchestrator{
		client:   client,
		registry: registry,
		gate:     gate,
		logger:   logger,
		opts:     opts,
	}
}

// Run 处理一条用户消息,循环调用模型与工具直到产生最终回答、
// 遇到需确认的动作,或轮数耗尽。
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session, userQuery string) (*Outcome, error) {
	start := time.Now()
	outcome, err := o.run(ctx, sess, userQuery)
	metrics.ChatDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil && apperrors.IsKind(err, apperrors.KindRoundLimit):
		metrics.ChatTotal.WithLabelValues("round_limit").Inc()
	case err != nil:
		metrics.ChatTotal.WithLabelValues("error").Inc()
	case outcome.Pending != nil:
		metrics.ChatTotal.WithLabelValues("pending").Inc()
	default:
		metrics.ChatTotal.WithLabelValues("answer").Inc()
	}
	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, userQuery string) (*Outcome, error) {
	if sess.Pending() != "" {
		return nil, apperrors.New(apperrors.KindConsentPending,
			"请先批准或取消当前待确认的动作")
	}

	sess.Append(llm.Message{Role: "user", Content: userQuery})
	defs := o.registry.Describe()

	for round := 1; round <= o.opts.MaxRounds; round++ {
		messages := append([]llm.Message{{Role: "system", Content: systemPrompt}}, sess.History(o.opts.HistoryLimit)...)

		resp, err := o.client.ChatWithTools(ctx, messages, defs, llm.GenerateOptions{
			Temperature: o.opts.Temperature,
			MaxTokens:   o.opts.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		if resp.Usage.TotalTokens > 0 {
			metrics.LLMTokensTotal.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensTotal.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
		}

		if !resp.HasToolCalls() {
			sess.Append(resp.Message)
			metrics.LLMRounds.Observe(float64(round))
			return &Outcome{Answer: resp.Message.Content}, nil
		}

		sess.Append(resp.Message)
		pending, err := o.dispatchRound(ctx, sess, resp.Message.ToolCalls)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			metrics.LLMRounds.Observe(float64(round))
			return &Outcome{Pending: pending}, nil
		}
	}

	metrics.LLMRounds.Observe(float64(o.opts.MaxRounds))
	return nil, apperrors.Newf(apperrors.KindRoundLimit,
		"%d 轮内未能得到最终回答", o.opts.MaxRounds)
}

// dispatchRound 按模型给出的顺序执行本轮全部工具调用。
// 遇到需确认的结果时立即中断:剩余调用不执行,但仍回填占位结果,
// 保证每个 tool_call 都有对应的 tool 消息。
func (o *Orchestrator) dispatchRound(ctx context.Context, sess *session.Session, calls []llm.ToolCall) (*consent.PendingAction, error) {
	for i, call := range calls {
		result := o.invoke(ctx, call)

		if result.RequiresConsent {
			pending, err := o.gate.Open(sess.ID, call.Function.Name, result.Draft)
			if err != nil {
				return nil, err
			}
			sess.Append(toolMessage(call, result.Content))
			for _, skipped := range calls[i+1:] {
				sess.Append(toolMessage(skipped, `{"error":"not executed: awaiting user consent"}`))
			}
			sess.SetPendingToken(pending.Token)
			return pending, nil
		}

		sess.Append(toolMessage(call, toolContent(result)))
	}
	return nil, nil
}

// invoke 解析参数并调用注册表;参数不是合法 JSON 时作为失败结果回传
func (o *Orchestrator) invoke(ctx context.Context, call llm.ToolCall) tools.ToolResult {
	args, err := call.Function.ParseArguments()
	if err != nil {
		if o.logger != nil {
			o.logger.Warn("解析工具参数failed", "tool", call.Function.Name, "error", err)
		}
		return tools.ToolResult{Err: apperrors.WrapKind(err, apperrors.KindValidation, "工具参数不是合法 JSON").Error()}
	}
	return o.registry.Invoke(ctx, call.Function.Name, args)
}

// Resolve 处理用户对待确认动作的批准或取消,返回确定性的回复,
// 不再经过模型。
func (o *Orchestrator) Resolve(ctx context.Context, sess *session.Session, token string, approved bool) (*Outcome, error) {
	if !approved {
		if err := o.gate.Reject(token); err != nil {
			clearIfStale(sess, token)
			return nil, err
		}
		sess.SetPendingToken("")
		answer := "Okay, the email was not sent."
		sess.Append(llm.Message{Role: "assistant", Content: answer})
		return &Outcome{Answer: answer}, nil
	}

	result, err := o.gate.Approve(ctx, token)
	if err != nil {
		clearIfStale(sess, token)
		return nil, err
	}
	sess.SetPendingToken("")
	answer := "The email has been sent."
	if result.Content != "" {
		answer = fmt.Sprintf("The email has been sent. (%s)", result.Content)
	}
	sess.Append(llm.Message{Role: "assistant", Content: answer})
	return &Outcome{Answer: answer}, nil
}

// clearIfStale 解决失败时同步会话标记:Approve/Reject 的所有失败分支
// 都意味着该令牌在网关里已是终态,若它正是会话记录的待确认令牌,
// 标记已失效,一并清掉。令牌拼错(与会话标记不同)时不动标记,
// 会话真正的草稿仍在等待确认。
func clearIfStale(sess *session.Session, token string) {
	if sess.Pending() == token {
		sess.SetPendingToken("")
	}
}

func toolMessage(call llm.ToolCall, content string) llm.Message {
	return llm.Message{
		Role:       "tool",
		ToolCallID: call.ID,
		Name:       call.Function.Name,
		Content:    content,
	}
}

// toolContent 把工具结果折叠成回填给模型的字符串
func toolContent(result tools.ToolResult) string {
	if result.Err != "" {
		payload, err := json.Marshal(map[string]string{"error": result.Err})
		if err != nil {
			return `{"error":"tool failed"}`
		}
		return string(payload)
	}
	return result.Content
}
