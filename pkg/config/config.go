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

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Model      ModelConfig      `mapstructure:"model"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Session    SessionConfig    `mapstructure:"session"`
	Email      EmailConfig      `mapstructure:"email"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// AgentConfig 会话 Agent 配置
type AgentConfig struct {
	MaxRounds      int    `mapstructure:"max_rounds"`       // 每次用户交互最多工具循环轮数，<=0 时默认 14
	PendingTTL     string `mapstructure:"pending_ttl"`      // 待确认动作过期时间，如 "10m"
	HistoryLimit   int    `mapstructure:"history_limit"`    // 带入 prompt 的历史消息上限，<=0 不截断
	SchemaCacheTTL string `mapstructure:"schema_cache_ttl"` // 工具描述内嵌 schema 的缓存时长，如 "5m"
}

// ModelConfig 模型配置
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"` // openai | qwen（OpenAI 兼容端点）
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     string  `mapstructure:"timeout"` // 单次模型调用超时，如 "60s"
}

// DatabaseConfig 发票数据库配置（只读查询 + schema 内省）
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	PoolSize     int    `mapstructure:"pool_size"`
	QueryTimeout string `mapstructure:"query_timeout"` // 单条查询超时，如 "15s"
	SchemaName   string `mapstructure:"schema_name"`   // 内省使用的 schema，空则 public
}

// StorageConfig 存储配置
type StorageConfig struct {
	Object   ObjectConfig   `mapstructure:"object"`
	Artifact ArtifactConfig `mapstructure:"artifact"`
}

// ObjectConfig 对象存储配置
type ObjectConfig struct {
	Type string `mapstructure:"type"` // memory | file
	Root string `mapstructure:"root"` // type=file 时的根目录
}

// ArtifactConfig 导出文件签发配置
type ArtifactConfig struct {
	BaseURL    string `mapstructure:"base_url"`    // 下载链接前缀，如 http://localhost:8080/api/artifacts
	Prefix     string `mapstructure:"prefix"`      // 对象路径前缀，默认 exports
	SigningKey string `mapstructure:"signing_key"` // HMAC 签名密钥
	Expiry     string `mapstructure:"expiry"`      // 链接有效期，如 "60m"

	// PDFLicenseKey unipdf metered license key；空则 PDF 报告生成不可用
	PDFLicenseKey string `mapstructure:"pdf_license_key"`
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"` // redis 会话过期时间，如 "24h"
}

// EmailConfig 邮件发送配置（凭证走 secrets，不在此处）
type EmailConfig struct {
	SenderEmail  string `mapstructure:"sender_email"`
	SenderName   string `mapstructure:"sender_name"`
	APIKeySecret string `mapstructure:"api_key_secret"` // secrets store 中的 key 名
	BaseURL      string `mapstructure:"base_url"`       // 覆盖 Brevo 端点（测试用）
}

// SecretsConfig Secret Store 配置
type SecretsConfig struct {
	Provider string `mapstructure:"provider"` // vault | env | memory
	Vault    struct {
		Address    string `mapstructure:"address"`
		Token      string `mapstructure:"token"`
		PathPrefix string `mapstructure:"path_prefix"`
	} `mapstructure:"vault"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// RateLimitsConfig 限流配置（LLM）
type RateLimitsConfig struct {
	LLM LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig LLM Provider 限流配置
type LLMRateLimitConfig struct {
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

// replaceEnvVars 替换配置中 ${VAR} 形式的敏感字段
func replaceEnvVars(config *Config) {
	config.Model.APIKey = expandEnv(config.Model.APIKey)
	config.Database.DSN = expandEnv(config.Database.DSN)
	config.Storage.Artifact.SigningKey = expandEnv(config.Storage.Artifact.SigningKey)
	config.Storage.Artifact.PDFLicenseKey = expandEnv(config.Storage.Artifact.PDFLicenseKey)
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
	config.Session.Password = expandEnv(config.Session.Password)
	config.API.Middleware.JWTKey = expandEnv(config.API.Middleware.JWTKey)
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		if val := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}")); val != "" {
			return val
		}
	}
	return v
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
