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

package app

import (
	"context"
	"fmt"

	"invoice-agent/internal/model/llm"
	"invoice-agent/internal/runtime/session"
	"invoice-agent/internal/storage/object"
	"invoice-agent/internal/store"
	"invoice-agent/pkg/config"
	"invoice-agent/pkg/log"
	"invoice-agent/pkg/secrets"
)

// Bootstrap 统一初始化:日志、数据库、对象存储、secrets、会话存储、
// 模型客户端,供 api 进程装配使用。
type Bootstrap struct {
	Config       *config.Config
	Logger       *log.Logger
	DB           *store.Store
	ObjectStore  object.Store
	SecretStore  secrets.Store
	SessionStore session.Store
	LLM          llm.Client
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}

	var db *store.Store
	if cfg != nil && cfg.Database.DSN != "" {
		db, err = store.New(ctx, cfg.Database.DSN, cfg.Database.PoolSize, cfg.Database.QueryTimeoutOrDefault())
		if err != nil {
			return nil, fmt.Errorf("初始化数据库failed: %w", err)
		}
	}

	objStore, err := object.NewStore(cfg.Storage.Object)
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储failed: %w", err)
	}

	secretStore, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 secrets failed: %w", err)
	}

	sessionStore, err := session.NewStore(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("初始化会话存储failed: %w", err)
	}

	llmClient, err := NewLLMClientFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化模型客户端failed: %w", err)
	}

	return &Bootstrap{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		ObjectStore:  objStore,
		SecretStore:  secretStore,
		SessionStore: sessionStore,
		LLM:          llmClient,
	}, nil
}

// NewLLMClientFromConfig 创建模型客户端,配置了限流时套上限流包装
func NewLLMClientFromConfig(cfg *config.Config) (llm.Client, error) {
	if cfg == nil || cfg.Model.APIKey == "" {
		return nil, fmt.Errorf("模型 api_key 未配置")
	}
	client, err := llm.NewClient(cfg.Model.Provider, cfg.Model.Name, cfg.Model.APIKey, cfg.Model.BaseURL)
	if err != nil {
		return nil, err
	}
	if oc, ok := client.(*llm.OpenAIClient); ok && cfg.Model.Timeout != "" {
		oc.SetRequestTimeout(config.ParseDuration(cfg.Model.Timeout, 0))
	}

	rl := cfg.RateLimits.LLM
	if rl.RequestsPerMinute > 0 || rl.TokensPerMinute > 0 || rl.MaxConcurrent > 0 {
		limiter := llm.NewLLMRateLimiter(map[string]llm.LLMLimitConfig{
			client.Provider(): {
				TokensPerMinute:   rl.TokensPerMinute,
				RequestsPerMinute: rl.RequestsPerMinute,
				MaxConcurrent:     rl.MaxConcurrent,
			},
		}, nil)
		return llm.NewRateLimitedClient(client, limiter), nil
	}
	return client, nil
}

// Close 释放 Bootstrap 持有的连接
func (b *Bootstrap) Close() {
	if b.DB != nil {
		b.DB.Close()
	}
	if b.ObjectStore != nil {
		_ = b.ObjectStore.Close()
	}
	if closer, ok := b.SessionStore.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
