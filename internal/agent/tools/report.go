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
	"time"

	"invoice-agent/internal/artifact"
)

// ReportTool 根据模型整理好的分节内容生成发票核验 PDF 报告
type ReportTool struct {
	issuer ArtifactIssuer
}

// NewReportTool 创建报告工具
func NewReportTool(issuer ArtifactIssuer) *ReportTool {
	return &ReportTool{issuer: issuer}
}

func (t *ReportTool) Name() string { return "generate_verification_report" }

func (t *ReportTool) Description() string {
	return "Generate a PDF verification report for a single invoice and return a " +
		"time-limited signed download URL. Gather the invoice data with " +
		"execute_sql_query first, then pass the findings as a JSON array of " +
		`sections: [{"section_title": "...", "section_content": "..."}]. ` +
		"Multi-line content uses \\n line breaks."
}

func (t *ReportTool) Schema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"invoice_id": {
				Type:        "string",
				Description: "The invoice identifier shown in the report title.",
			},
			"verification_data_json": {
				Type:        "string",
				Description: "JSON array of report sections, each with section_title and section_content.",
			},
			"expiry_minutes": {
				Type:        "integer",
				Description: "How long the download link stays valid, in minutes. Defaults to 60.",
			},
		},
		Required: []string{"invoice_id", "verification_data_json"},
	}
}

// Execute 解析分节 JSON → 渲染 PDF → 签发
func (t *ReportTool) Execute(ctx context.Context, input map[string]any) (ToolResult, error) {
	invoiceID := stringArg(input, "invoice_id")
	expiry := time.Duration(intArg(input, "expiry_minutes", defaultExpiryMinutes)) * time.Minute

	sections, err := artifact.ParseReportSections(stringArg(input, "verification_data_json"))
	if err != nil {
		// 格式错误回传给模型自行修正
		return errResult("%s", err.Error()), nil
	}

	art, err := t.issuer.IssuePDF(ctx, invoiceID, sections, expiry)
	if err != nil {
		return ToolResult{}, err
	}
	return artifactResult("pdf_url", art)
}
