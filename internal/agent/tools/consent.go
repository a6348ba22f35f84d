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
)

// ConsentRequestTool 冻结一份邮件草稿等待用户确认。它自己从不发信，
// 只把草稿原样带回给编排层。
type ConsentRequestTool struct{}

// NewConsentRequestTool 创建确认请求工具
func NewConsentRequestTool() *ConsentRequestTool {
	return &ConsentRequestTool{}
}

func (t *ConsentRequestTool) Name() string { return "request_email_consent" }

func (t *ConsentRequestTool) Description() string {
	return "CRITICAL: Call this function FIRST and ONLY ONCE before any email is sent. " +
		"It presents the drafted email to the user for approval and does NOT send " +
		"anything itself. Never claim an email was sent after calling this tool; " +
		"the send happens only after the user approves."
}

func (t *ConsentRequestTool) Schema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"to_emails": {
				Type:        "string",
				Description: "Comma-separated recipient email addresses.",
			},
			"subject": {
				Type:        "string",
				Description: "The email subject line.",
			},
			"body": {
				Type:        "string",
				Description: "The plain-text email body.",
			},
			"attachments_json": {
				Type: "string",
				Description: `JSON array of attachments: [{"url": "...", "filename": "..."}]. ` +
					`Pass '[]' when there are no attachments.`,
			},
		},
		Required: []string{"to_emails", "subject", "body", "attachments_json"},
	}
}

// Execute 返回 RequiresConsent 结果；草稿字段在此刻冻结
func (t *ConsentRequestTool) Execute(_ context.Context, input map[string]any) (ToolResult, error) {
	draft := map[string]any{
		"to_emails":        stringArg(input, "to_emails"),
		"subject":          stringArg(input, "subject"),
		"body":             stringArg(input, "body"),
		"attachments_json": stringArg(input, "attachments_json"),
	}
	return ToolResult{
		Content:         "等待用户确认邮件发送",
		RequiresConsent: true,
		Draft:           draft,
	}, nil
}
