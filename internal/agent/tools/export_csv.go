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
	"time"

	"invoice-agent/internal/artifact"
	apperrors "invoice-agent/pkg/errors"
)

const defaultExpiryMinutes = 60

// ArtifactIssuer 导出类工具依赖的制品签发能力
type ArtifactIssuer interface {
	IssueCSV(ctx context.Context, columns []string, rows []map[string]any, expiry time.Duration) (*artifact.Artifact, error)
	IssuePDF(ctx context.Context, invoiceID string, sections []artifact.ReportSection, expiry time.Duration) (*artifact.Artifact, error)
}

// CSVExportTool 把查询结果导出为 CSV 并返回限时签名下载链接
type CSVExportTool struct {
	db     Database
	issuer ArtifactIssuer
}

// NewCSVExportTool 创建导出工具
func NewCSVExportTool(db Database, issuer ArtifactIssuer) *CSVExportTool {
	return &CSVExportTool{db: db, issuer: issuer}
}

func (t *CSVExportTool) Name() string { return "export_query_csv" }

func (t *CSVExportTool) Description() string {
	return "Run a read-only SELECT query and export the full result set to a CSV file. " +
		"Returns a time-limited signed download URL. Use this when the user asks to " +
		"export, download, or attach query results. SIMILARITY(column, 'term') is " +
		"available exactly as in execute_sql_query."
}

func (t *CSVExportTool) Schema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"sql_query": {
				Type:        "string",
				Description: "A single SELECT statement whose results will be written to the CSV file.",
			},
			"expiry_minutes": {
				Type:        "integer",
				Description: "How long the download link stays valid, in minutes. Defaults to 60.",
			},
		},
		Required: []string{"sql_query"},
	}
}

// Execute 守卫 → 重写 → 查询（保留列序）→ 签发 CSV
func (t *CSVExportTool) Execute(ctx context.Context, input map[string]any) (ToolResult, error) {
	sql := stringArg(input, "sql_query")
	expiry := time.Duration(intArg(input, "expiry_minutes", defaultExpiryMinutes)) * time.Minute

	rewritten, err := prepareQuery(sql)
	if err != nil {
		return errResult("%s", err.Error()), nil
	}

	columns, rows, err := t.db.QueryWithColumns(ctx, rewritten)
	if err != nil {
		return errResult("%s", err.Error()), nil
	}

	art, err := t.issuer.IssueCSV(ctx, columns, rows, expiry)
	if err != nil {
		// 签发失败是基础设施问题，向上抛而不是让模型重试
		return ToolResult{}, err
	}
	return artifactResult("csv_url", art)
}

// artifactResult 两个导出工具共用的成功结果
func artifactResult(urlKey string, art *artifact.Artifact) (ToolResult, error) {
	content, err := json.Marshal(map[string]any{
		urlKey:       art.URL,
		"filename":   art.Filename,
		"expires_at": art.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return ToolResult{}, apperrors.WrapKind(err, apperrors.KindSerialization, "序列化制品结果failed")
	}
	return ToolResult{Content: string(content)}, nil
}
