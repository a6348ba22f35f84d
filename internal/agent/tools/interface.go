package tools

import (
	"context"
)

// Schema 表示工具的 JSON Schema（供 LLM function-calling 使用）
type Schema struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Required    []string                  `json:"required,omitempty"`
}

// SchemaProperty 表示 Schema 中单个属性的描述
type SchemaProperty struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// ToolResult 工具执行结果。RequiresConsent 为 true 时循环立即中断，
// Draft 是待用户确认的动作参数快照。
type ToolResult struct {
	Content         string         `json:"content"`
	RequiresConsent bool           `json:"requires_consent,omitempty"`
	Draft           map[string]any `json:"draft,omitempty"`
	Err             string         `json:"error,omitempty"`
}

// Tool 工具接口
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, input map[string]any) (ToolResult, error)
}

// Database 工具层需要的查询能力（internal/store.Store 实现）
type Database interface {
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	QueryWithColumns(ctx context.Context, sql string, args ...any) ([]string, []map[string]any, error)
}
