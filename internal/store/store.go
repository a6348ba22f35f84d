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

// Package store 发票数据库的只读查询层。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "invoice-agent/pkg/errors"
)

// Querier 行级查询接口，schema 内省与工具层共用
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

// Store PostgreSQL 查询层，结果行序列化为 JSON 友好的 map
type Store struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// New 创建查询层；dsn 为连接串，queryTimeout ≤0 时不附加超时
func New(ctx context.Context, dsn string, poolSize int, queryTimeout time.Duration) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, "解析数据库连接串failed")
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, apperrors.Wrap(err, "创建数据库连接池failed")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, "数据库连接failed")
	}
	return &Store{pool: pool, queryTimeout: queryTimeout}, nil
}

// Close 关闭连接池（用于优雅退出）
func (s *Store) Close() {
	s.pool.Close()
}

// Ping 健康检查
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Query 执行查询并把每行序列化为 map；时间转 RFC3339、numeric 转字符串。
func (s *Store) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	_, rows, err := s.QueryWithColumns(ctx, sql, args...)
	return rows, err
}

// QueryWithColumns 同 Query，但额外返回结果集的列名顺序（CSV 导出用）
func (s *Store) QueryWithColumns(ctx context.Context, sql string, args ...any) ([]string, []map[string]any, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, queryError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, queryError(err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, queryError(err)
	}
	return columns, results, nil
}

func queryError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.WrapKind(err, apperrors.KindUpstreamTimeout, "数据库查询超时")
	}
	return apperrors.Wrap(err, "数据库查询failed")
}

// normalizeValue 把 pgx 的行值转换成可直接 JSON 序列化、模型可读的形式
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if s, err := val.Value(); err == nil {
			return s
		}
		return fmt.Sprint(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	default:
		return val
	}
}
