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
	"encoding/json"

	"invoice-agent/internal/email"
	apperrors "invoice-agent/pkg/errors"
	"invoice-agent/pkg/secrets"
)

// EmailSender 邮件发送能力（internal/email.BrevoClient 实现）
type EmailSender interface {
	Send(ctx context.Context, apiKey string, req email.SendRequest) (*email.SendResult, error)
}

// SendEmailTool 真正发送邮件的工具。它不注册到模型可见的 Registry，
// 只由确认网关在用户批准后执行；API key 也只在那一刻才从 secrets 取出。
type SendEmailTool struct {
	sender       EmailSender
	secrets      secrets.Store
	apiKeySecret string
}

// NewSendEmailTool 创建发送工具
func NewSendEmailTool(sender EmailSender, store secrets.Store, apiKeySecret string) *SendEmailTool {
	return &SendEmailTool{sender: sender, secrets: store, apiKeySecret: apiKeySecret}
}

func (t *SendEmailTool) Name() string { return "send_email" }

func (t *SendEmailTool) Description() string {
	return "Send an email with optional attachments. System-executed after user consent; " +
		"never call this directly — use request_email_consent instead."
}

func (t *SendEmailTool) Schema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"to_emails":        {Type: "string", Description: "Comma-separated recipient email addresses."},
			"subject":          {Type: "string", Description: "The email subject line."},
			"body":             {Type: "string", Description: "The plain-text email body."},
			"attachments_json": {Type: "string", Description: `JSON array of attachments, '[]' for none.`},
		},
		Required: []string{"to_emails", "subject", "body", "attachments_json"},
	}
}

// Execute 取凭据并发送；凭据缺失按 issuer 不可用处理
func (t *SendEmailTool) Execute(ctx context.Context, input map[string]any) (ToolResult, error) {
	apiKey, err := t.secrets.Get(ctx, t.apiKeySecret)
	if err != nil {
		return ToolResult{}, apperrors.WrapKind(err, apperrors.KindIssuerUnavailable, "获取邮件服务凭据failed")
	}

	result, err := t.sender.Send(ctx, apiKey, email.SendRequest{
		ToEmails:        stringArg(input, "to_emails"),
		Subject:         stringArg(input, "subject"),
		Body:            stringArg(input, "body"),
		AttachmentsJSON: stringArg(input, "attachments_json"),
	})
	if err != nil {
		return ToolResult{}, err
	}

	content, err := json.Marshal(map[string]any{
		"status":     "sent",
		"message_id": result.MessageID,
	})
	if err != nil {
		return ToolResult{}, apperrors.WrapKind(err, apperrors.KindSerialization, "序列化发送结果failed")
	}
	return ToolResult{Content: string(content)}, nil
}
