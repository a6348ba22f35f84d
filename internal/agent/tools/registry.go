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

package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invoice-agent/internal/model/llm"
	apperrors "invoice-agent/pkg/errors"
	"invoice-agent/pkg/metrics"
)

// Registry 模型可见的工具注册表。注册顺序即 Describe 的输出顺序，
// 保证 prompt 内容确定。
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry 创建新 Registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register 注册工具；重名覆盖但保留首次出现的位置
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Describe 按注册顺序返回所有工具的 LLM 定义
func (r *Registry) Describe() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  schemaToMap(t.Schema()),
			},
		})
	}
	return defs
}

// Invoke 校验参数并执行工具。未知工具与参数校验失败都作为失败的
// ToolResult 回传给模型，不中断进程。
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) ToolResult {
	t, ok := r.Get(name)
	if !ok {
		metrics.ToolTotal.WithLabelValues(name, "error").Inc()
		return ToolResult{Err: apperrors.Newf(apperrors.KindUnknownTool, "未知工具: %s", name).Error()}
	}

	if err := validateArgs(t.Schema(), args); err != nil {
		metrics.ToolTotal.WithLabelValues(name, "error").Inc()
		return ToolResult{Err: err.Error()}
	}

	start := time.Now()
	result, err := t.Execute(ctx, args)
	metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ToolTotal.WithLabelValues(name, "error").Inc()
		return ToolResult{Err: err.Error()}
	}
	status := "ok"
	if result.Err != "" {
		status = "error"
	}
	metrics.ToolTotal.WithLabelValues(name, status).Inc()
	return result
}

// validateArgs 按 Schema 检查必填项与基础类型
func validateArgs(schema Schema, args map[string]any) error {
	for _, required := range schema.Required {
		if _, ok := args[required]; !ok {
			return apperrors.Newf(apperrors.KindValidation, "缺少必填参数: %s", required)
		}
	}
	for key, value := range args {
		prop, ok := schema.Properties[key]
		if !ok {
			continue // 未声明的参数放过，由工具自行处理
		}
		if value == nil {
			continue
		}
		if err := checkType(key, prop.Type, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(key, typ string, value any) error {
	ok := true
	switch typ {
	case "", "object":
	case "string":
		_, ok = value.(string)
	case "integer", "number":
		switch value.(type) {
		case float64, int, int64:
		default:
			ok = false
		}
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]any)
	}
	if !ok {
		return apperrors.Newf(apperrors.KindValidation, "参数 %s 类型应为 %s, got %T", key, typ, value)
	}
	return nil
}

// schemaToMap 转为 OpenAI function parameters 形式
func schemaToMap(s Schema) map[string]any {
	properties := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		p := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			p["description"] = prop.Description
		}
		properties[name] = p
	}
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	out := map[string]any{
		"type":       typ,
		"properties": properties,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// intArg 读取数值参数（JSON 解出来是 float64）
func intArg(args map[string]any, key string, defaultVal int) int {
	v, ok := args[key]
	if !ok || v == nil {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return defaultVal
	}
}

// stringArg 读取字符串参数
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// errResult 统一的失败结果构造
func errResult(format string, a ...any) ToolResult {
	return ToolResult{Err: fmt.Sprintf(format, a...)}
}
