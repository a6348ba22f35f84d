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
	"fmt"

	"invoice-agent/internal/sqlrewrite"
	apperrors "invoice-agent/pkg/errors"
)

// SchemaDescriber 提供内嵌进工具描述的数据库 schema 文本
type SchemaDescriber interface {
	Describe(ctx context.Context) (string, error)
}

// SQLQueryTool 只读 SELECT 查询工具。工具描述里内嵌实时 schema，
// 让模型写出正确的表名和列名。
type SQLQueryTool struct {
	db         Database
	introspect SchemaDescriber
}

// NewSQLQueryTool 创建查询工具
func NewSQLQueryTool(db Database, introspect SchemaDescriber) *SQLQueryTool {
	return &SQLQueryTool{db: db, introspect: introspect}
}

// Name 实现 Tool
func (t *SQLQueryTool) Name() string { return "execute_sql_query" }

// Description 实现 Tool；schema 读失败时退化为占位符而不是整体失败
func (t *SQLQueryTool) Description() string {
	schemaText := "(schema unavailable)"
	if t.introspect != nil {
		if text, err := t.introspect.Describe(context.Background()); err == nil {
			schemaText = text
		}
	}
	return "Execute a read-only SELECT query against the invoice database. " +
		"Only single SELECT statements are permitted; any other SQL will be rejected. " +
		"You can call:\n" +
		"  SIMILARITY(column_name, 'search_term') — returns a 0–100 similarity score.\n" +
		"Filter by adding `WHERE SIMILARITY(...) >= <threshold>` (e.g. 60).\n" +
		"Example:\n" +
		"  SELECT vendor_name, SIMILARITY(vendor_name, 'YourSearchTerm') AS sim_score\n" +
		"    FROM invoices\n" +
		"   WHERE SIMILARITY(vendor_name, 'YourSearchTerm') >= 60\n" +
		"Allowed tables & columns:\n" + schemaText
}

// Schema 实现 Tool
func (t *SQLQueryTool) Schema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"sql_query": {
				Type: "string",
				Description: "A single SELECT statement. Use SIMILARITY(column, 'term') " +
					"and a `WHERE ... >= threshold` to perform fuzzy matching on any text column.",
			},
		},
		Required: []string{"sql_query"},
	}
}

// Execute 实现 Tool：守卫 → 重写 → 查询 → JSON 行
func (t *SQLQueryTool) Execute(ctx context.Context, input map[string]any) (ToolResult, error) {
	sql := stringArg(input, "sql_query")

	rewritten, err := prepareQuery(sql)
	if err != nil {
		return errResult("%s", err.Error()), nil
	}

	rows, err := t.db.Query(ctx, rewritten)
	if err != nil {
		// 查询失败作为结果回传，模型可以改写重试
		return errResult("%s", err.Error()), nil
	}

	content, err := json.Marshal(map[string]any{"results": rows})
	if err != nil {
		return ToolResult{}, apperrors.WrapKind(err, apperrors.KindSerialization, "序列化查询结果failed")
	}
	return ToolResult{Content: string(content)}, nil
}

// prepareQuery select-only 守卫 + SIMILARITY 重写，两个查询工具共用
func prepareQuery(sql string) (string, error) {
	if err := sqlrewrite.EnsureSelectOnly(sql); err != nil {
		return "", err
	}
	rewritten, err := sqlrewrite.Rewrite(sql)
	if err != nil {
		return "", fmt.Errorf("%w (rewrite the query and try again)", err)
	}
	return rewritten, nil
}
