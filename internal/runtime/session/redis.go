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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"invoice-agent/pkg/config"
	apperrors "invoice-agent/pkg/errors"
)

const redisKeyPrefix = "invagent:session:"

// RedisStore 基于 Redis 的 Session 存储，JSON 值 + TTL
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建 Redis Session 存储并校验连接
func NewRedisStore(ctx context.Context, cfg config.SessionConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, "redis ping failed")
	}
	return &RedisStore{client: client, ttl: cfg.TTLOrDefault()}, nil
}

// Get 实现 Store
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "读取 session failed")
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindSerialization, "解析 session failed")
	}
	return &s, nil
}

// Put 实现 Store
func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return apperrors.WrapKind(err, apperrors.KindSerialization, "序列化 session failed")
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.ID, raw, r.ttl).Err(); err != nil {
		return apperrors.Wrap(err, "写入 session failed")
	}
	return nil
}

// Delete 实现 Store
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return apperrors.Wrap(err, "删除 session failed")
	}
	return nil
}

// List 实现 Store；SCAN 前缀键后逐个读取，按更新时间倒序
func (r *RedisStore) List(ctx context.Context) ([]Info, error) {
	var infos []Info
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // 扫描与读取之间过期
			}
			return nil, apperrors.Wrap(err, "读取 session failed")
		}
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, apperrors.WrapKind(err, apperrors.KindSerialization, "解析 session failed")
		}
		infos = append(infos, s.Info())
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.Wrap(err, "扫描 session failed")
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Close 关闭底层连接
func (r *RedisStore) Close() error {
	return r.client.Close()
}
