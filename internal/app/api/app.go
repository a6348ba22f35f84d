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

package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"invoice-agent/internal/agent"
	"invoice-agent/internal/agent/consent"
	"invoice-agent/internal/agent/tools"
	"invoice-agent/internal/api/http"
	"invoice-agent/internal/api/http/middleware"
	"invoice-agent/internal/app"
	"invoice-agent/internal/artifact"
	"invoice-agent/internal/email"
	"invoice-agent/internal/runtime/session"
	"invoice-agent/internal/store"
	"invoice-agent/pkg/config"
)

// operatorTokenSecret secrets store 中操作员登录令牌的 key
const operatorTokenSecret = "api-operator-token"

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用(装配编排器、工具、确认网关、HTTP Router)
type App struct {
	bootstrap    *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用(由 cmd/api 调用)
func NewApp(ctx context.Context, bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config
	if cfg == nil {
		return nil, fmt.Errorf("缺少配置")
	}
	if bootstrap.DB == nil {
		return nil, fmt.Errorf("database.dsn 未配置")
	}

	if key := cfg.Storage.Artifact.PDFLicenseKey; key != "" {
		if err := artifact.SetPDFLicense(key); err != nil {
			return nil, fmt.Errorf("注册 unipdf license failed: %w", err)
		}
	} else {
		bootstrap.Logger.Warn("未配置 unipdf license key,PDF 报告生成将不可用")
	}

	issuer := artifact.NewIssuer(
		bootstrap.ObjectStore,
		cfg.Storage.Artifact.SigningKey,
		cfg.Storage.Artifact.BaseURL,
		cfg.Storage.Artifact.PrefixOrDefault(),
		cfg.Storage.Artifact.ExpiryOrDefault(),
	)

	introspector := store.NewSchemaIntrospector(
		bootstrap.DB, cfg.Database.SchemaName, cfg.Agent.SchemaCacheTTLOrDefault())
	if _, err := introspector.Describe(ctx); err != nil {
		bootstrap.Logger.Warn("预热数据库 schema failed", "error", err)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewSQLQueryTool(bootstrap.DB, introspector))
	registry.Register(tools.NewCSVExportTool(bootstrap.DB, issuer))
	registry.Register(tools.NewReportTool(issuer))
	registry.Register(tools.NewConsentRequestTool())

	// send_email 不进模型可见的注册表,只作为确认网关的执行器
	brevo := email.NewBrevoClient(
		cfg.Email.SenderEmail, cfg.Email.SenderName, cfg.Email.BaseURL, bootstrap.Logger)
	sendTool := tools.NewSendEmailTool(brevo, bootstrap.SecretStore, cfg.Email.APIKeySecret)
	gate := consent.NewGate(sendTool, cfg.Agent.PendingTTLOrDefault(), bootstrap.Logger)

	orchestrator := agent.New(
		bootstrap.LLM, registry, gate, bootstrap.Logger, agent.Options{
			MaxRounds:    cfg.Agent.MaxRoundsOrDefault(),
			Temperature:  cfg.Model.Temperature,
			MaxTokens:    cfg.Model.MaxTokens,
			HistoryLimit: cfg.Agent.HistoryLimit,
		})

	sessions := session.NewManager(bootstrap.SessionStore)
	handler := http.NewHandler(
		orchestrator, sessions, bootstrap.ObjectStore, issuer.Signer(), bootstrap.Logger)

	router := http.NewRouter(handler, middleware.NewMiddleware())
	if cfg.API.Middleware.Auth && cfg.API.Middleware.JWTKey != "" {
		operatorToken, err := bootstrap.SecretStore.Get(ctx, operatorTokenSecret)
		if err != nil {
			bootstrap.Logger.Warn("读取操作员令牌failed,登录将全部被拒绝", "error", err)
		}
		timeout := config.ParseDuration(cfg.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := config.ParseDuration(cfg.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth(
			[]byte(cfg.API.Middleware.JWTKey), operatorToken, timeout, maxRefresh)
		if err != nil {
			bootstrap.Logger.Warn("JWT 初始化failed,将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			bootstrap.Logger.Info("JWT 认证已启用")
		}
	}

	return &App{bootstrap: bootstrap, router: router}, nil
}

// Run 启动 HTTP 服务,addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.bootstrap.Logger.Info("API 服务启动", "addr", addr)

	// Hertz 日志走 slog 扩展,与 bootstrap 日志配置对齐
	output := os.Stdout
	cfg := a.bootstrap.Config
	if cfg != nil && cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件failed: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(slogLevel(cfg))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	if cfg != nil && cfg.Monitoring.Tracing.Enable {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "invoice-agent"
		}
		exportEndpoint := cfg.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tracerCfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		}
	}
	if a.hertz == nil {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

func slogLevel(cfg *config.Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch cfg.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Shutdown 优雅关闭(传入 ctx 以支持超时)
func (a *App) Shutdown(ctx context.Context) error {
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	a.bootstrap.Close()
	return nil
}
