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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"invoice-agent/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	jwtAuth    *jwt.HertzJWTMiddleware
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetJWT 启用 JWT 认证(保护 /api 下除健康检查外的路由)
func (r *Router) SetJWT(auth *jwt.HertzJWTMiddleware) {
	r.jwtAuth = auth
}

// Build 组装 Hertz server 并注册路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	hertzOpts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(hertzOpts...)

	h.Use(r.middleware.CORS())
	h.Use(r.middleware.AccessLog())

	// 下载链接自身带签名鉴权,不走 JWT
	h.GET("/api/artifacts/*path", r.handler.DownloadArtifact)
	h.GET("/api/health", r.handler.HealthCheck)
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	if r.jwtAuth != nil {
		h.POST("/api/login", r.jwtAuth.LoginHandler)
		api.Use(r.jwtAuth.MiddlewareFunc())
	}

	api.POST("/chat", r.handler.Chat)
	sessions := api.Group("/sessions")
	{
		sessions.POST("", r.handler.CreateSession)
		sessions.GET("", r.handler.ListSessions)
		sessions.GET("/:id", r.handler.GetSession)
		sessions.DELETE("/:id", r.handler.DeleteSession)
	}

	return h
}
