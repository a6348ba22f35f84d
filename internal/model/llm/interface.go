package llm

import (
	"context"
	"encoding/json"
)

// Client LLM 客户端接口
type Client interface {
	// Chat 聊天（不带工具）
	Chat(ctx context.Context, messages []Message, options GenerateOptions) (*ChatResponse, error)
	// ChatWithTools 带工具定义聊天，模型可返回 tool_calls
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, options GenerateOptions) (*ChatResponse, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop"`
}

// Message 聊天消息。Role 为 tool 时 ToolCallID/Name 标识回填的工具结果。
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall 模型发起的一次工具调用
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // 目前只有 function
	Function FunctionCall `json:"function"`
}

// FunctionCall 工具调用的函数名与 JSON 参数
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON 字符串
}

// ParseArguments 解析调用参数到 map
func (f FunctionCall) ParseArguments() (map[string]any, error) {
	args := make(map[string]any)
	if f.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(f.Arguments), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// ToolDefinition 暴露给模型的工具定义（OpenAI function 格式）
type ToolDefinition struct {
	Type     string             `json:"type"` // function
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition 函数名、描述与 JSON Schema 参数
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse 一次模型调用的结果
type ChatResponse struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"` // stop | tool_calls | length
	Usage        Usage   `json:"usage"`
}

// HasToolCalls 模型是否要求调用工具
func (r *ChatResponse) HasToolCalls() bool {
	return r != nil && len(r.Message.ToolCalls) > 0
}

// NewClient 创建新的 LLM 客户端；baseURL 用于 OpenAI 兼容端点（如 Qwen/DashScope），空则用默认或环境变量
func NewClient(provider, model, apiKey string, baseURL string) (Client, error) {
	switch provider {
	case "openai", "qwen":
		return NewOpenAIClientWithBaseURL(model, apiKey, baseURL)
	default:
		return NewOpenAIClientWithBaseURL(model, apiKey, baseURL)
	}
}
