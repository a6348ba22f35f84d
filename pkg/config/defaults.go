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

package config

import "time"

const (
	defaultPort          = 8080
	defaultMaxRounds     = 14
	defaultPendingTTL    = 10 * time.Minute
	defaultArtifactTTL   = 60 * time.Minute
	defaultQueryTimeout  = 15 * time.Second
	defaultModelTimeout  = 60 * time.Second
	defaultSchemaTTL     = 5 * time.Minute
	defaultSessionTTL    = 24 * time.Hour
	defaultArtifactsPath = "exports"
)

// ListenPort 返回 API 监听端口
func (c *APIConfig) ListenPort() int {
	if c.Port <= 0 {
		return defaultPort
	}
	return c.Port
}

// MaxRoundsOrDefault 返回单次交互的工具循环轮数上限
func (c *AgentConfig) MaxRoundsOrDefault() int {
	if c.MaxRounds <= 0 {
		return defaultMaxRounds
	}
	return c.MaxRounds
}

// PendingTTLOrDefault 返回待确认动作的过期时间
func (c *AgentConfig) PendingTTLOrDefault() time.Duration {
	return ParseDuration(c.PendingTTL, defaultPendingTTL)
}

// SchemaCacheTTLOrDefault 返回 schema 缓存时长
func (c *AgentConfig) SchemaCacheTTLOrDefault() time.Duration {
	return ParseDuration(c.SchemaCacheTTL, defaultSchemaTTL)
}

// QueryTimeoutOrDefault 返回单条查询超时
func (c *DatabaseConfig) QueryTimeoutOrDefault() time.Duration {
	return ParseDuration(c.QueryTimeout, defaultQueryTimeout)
}

// TimeoutOrDefault 返回单次模型调用超时
func (c *ModelConfig) TimeoutOrDefault() time.Duration {
	return ParseDuration(c.Timeout, defaultModelTimeout)
}

// ExpiryOrDefault 返回导出链接有效期
func (c *ArtifactConfig) ExpiryOrDefault() time.Duration {
	return ParseDuration(c.Expiry, defaultArtifactTTL)
}

// PrefixOrDefault 返回对象路径前缀
func (c *ArtifactConfig) PrefixOrDefault() string {
	if c.Prefix == "" {
		return defaultArtifactsPath
	}
	return c.Prefix
}

// TTLOrDefault 返回会话过期时间
func (c *SessionConfig) TTLOrDefault() time.Duration {
	return ParseDuration(c.TTL, defaultSessionTTL)
}
