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

package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const schemaQuery = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

// SchemaIntrospector 读取 information_schema 并缓存为模型可读的 schema 文本。
// 工具描述中内嵌该文本，让模型写出正确的列名。
type SchemaIntrospector struct {
	q          Querier
	schemaName string
	ttl        time.Duration

	mu        sync.Mutex
	cached    string
	fetchedAt time.Time
}

// NewSchemaIntrospector 创建 schema 内省器；schemaName 空则 public，ttl ≤0 则不过期
func NewSchemaIntrospector(q Querier, schemaName string, ttl time.Duration) *SchemaIntrospector {
	if schemaName == "" {
		schemaName = "public"
	}
	return &SchemaIntrospector{q: q, schemaName: schemaName, ttl: ttl}
}

// Describe 返回 schema 文本，优先命中缓存
func (s *SchemaIntrospector) Describe(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.cached != "" && (s.ttl <= 0 || time.Since(s.fetchedAt) < s.ttl) {
		text := s.cached
		s.mu.Unlock()
		return text, nil
	}
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh 强制重新读取 schema 并更新缓存
func (s *SchemaIntrospector) Refresh(ctx context.Context) (string, error) {
	rows, err := s.q.Query(ctx, schemaQuery, s.schemaName)
	if err != nil {
		return "", err
	}
	text := formatSchema(rows)

	s.mu.Lock()
	s.cached = text
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return text, nil
}

// formatSchema 把列清单按表聚合成缩进文本
func formatSchema(rows []map[string]any) string {
	var b strings.Builder
	lastTable := ""
	for _, row := range rows {
		table, _ := row["table_name"].(string)
		column, _ := row["column_name"].(string)
		dataType, _ := row["data_type"].(string)
		if table == "" || column == "" {
			continue
		}
		if table != lastTable {
			if lastTable != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Table %s:\n", table)
			lastTable = table
		}
		fmt.Fprintf(&b, "  - %s (%s)\n", column, dataType)
	}
	if b.Len() == 0 {
		return "(no tables found)"
	}
	return b.String()
}
