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
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"invoice-agent/internal/agent"
	"invoice-agent/internal/artifact"
	"invoice-agent/internal/runtime/session"
	"invoice-agent/internal/storage/object"
	apperrors "invoice-agent/pkg/errors"
	"invoice-agent/pkg/log"
	"invoice-agent/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	orchestrator *agent.Orchestrator
	sessions     *session.Manager
	objects      object.Store
	signer       *artifact.Signer
	logger       *log.Logger
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(orchestrator *agent.Orchestrator, sessions *session.Manager, objects object.Store, signer *artifact.Signer, logger *log.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		sessions:     sessions,
		objects:      objects,
		signer:       signer,
		logger:       logger,
	}
}

// ChatRequest 聊天请求。携带 action_token 时表示对待确认动作的裁决,
// 此时 query 可为空。
type ChatRequest struct {
	SessionID   string `json:"session_id"`
	Query       string `json:"query"`
	ActionToken string `json:"action_token"`
	Approval    *bool  `json:"approval"`
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "invoice-agent",
	})
}

// Chat 处理一轮对话:普通提问走编排循环,携带 action_token 时
// 先裁决待确认动作。
// POST /api/chat
func (h *Handler) Chat(c context.Context, ctx *app.RequestContext) {
	var req ChatRequest
	if err := ctx.BindJSON(&req); err != nil {
		h.writeError(ctx, apperrors.WrapKind(err, apperrors.KindValidation, "请求体不是合法 JSON"))
		return
	}

	sess, err := h.sessions.GetOrCreate(c, req.SessionID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	var outcome *agent.Outcome
	switch {
	case req.ActionToken != "":
		if req.Approval == nil {
			h.writeError(ctx, apperrors.New(apperrors.KindValidation,
				"携带 action_token 时必须给出 approval"))
			return
		}
		outcome, err = h.orchestrator.Resolve(c, sess, req.ActionToken, *req.Approval)
	case strings.TrimSpace(req.Query) == "":
		h.writeError(ctx, apperrors.New(apperrors.KindValidation, "query 不能为空"))
		return
	default:
		outcome, err = h.orchestrator.Run(c, sess, req.Query)
	}

	if saveErr := h.sessions.Save(c, sess); saveErr != nil && h.logger != nil {
		h.logger.Warn("保存会话failed", "session_id", sess.ID, "error", saveErr)
	}

	if err != nil {
		// 轮数耗尽对用户呈现为固定回复,会话仍可继续
		if apperrors.IsKind(err, apperrors.KindRoundLimit) {
			ctx.JSON(consts.StatusOK, map[string]any{
				"session_id": sess.ID,
				"answer":     agent.FallbackAnswer,
			})
			return
		}
		h.writeError(ctx, err)
		return
	}

	if outcome.Pending != nil {
		ctx.JSON(consts.StatusOK, map[string]any{
			"session_id":      sess.ID,
			"action_required": "user_consent_email",
			"action_token":    outcome.Pending.Token,
			"draft_details":   outcome.Pending.Draft,
			"expires_at":      outcome.Pending.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}

	ctx.JSON(consts.StatusOK, map[string]any{
		"session_id": sess.ID,
		"answer":     outcome.Answer,
	})
}

// CreateSession 新建空会话
// POST /api/sessions
func (h *Handler) CreateSession(c context.Context, ctx *app.RequestContext) {
	sess, err := h.sessions.Create(c)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"session_id": sess.ID})
}

// ListSessions 列出会话摘要
// GET /api/sessions
func (h *Handler) ListSessions(c context.Context, ctx *app.RequestContext) {
	infos, err := h.sessions.List(c)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	if infos == nil {
		infos = []session.Info{}
	}
	ctx.JSON(consts.StatusOK, map[string]any{"sessions": infos})
}

// GetSession 获取会话历史
// GET /api/sessions/:id
func (h *Handler) GetSession(c context.Context, ctx *app.RequestContext) {
	sess, err := h.sessions.Get(c, ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	if sess == nil {
		ctx.JSON(consts.StatusNotFound, map[string]string{
			"kind": string(apperrors.KindValidation), "message": "会话不存在",
		})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"session_id": sess.ID,
		"messages":   sess.History(0),
		"pending":    sess.Pending(),
	})
}

// DeleteSession 删除会话
// DELETE /api/sessions/:id
func (h *Handler) DeleteSession(c context.Context, ctx *app.RequestContext) {
	if err := h.sessions.Delete(c, ctx.Param("id")); err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"status": "deleted"})
}

// DownloadArtifact 校验签名链接并回传导出文件。
// 过期或签名不合法一律 403,不区分细节。
// GET /api/artifacts/*path
func (h *Handler) DownloadArtifact(c context.Context, ctx *app.RequestContext) {
	path := strings.TrimPrefix(ctx.Param("path"), "/")
	exp, err := strconv.ParseInt(ctx.Query("exp"), 10, 64)
	if err != nil {
		ctx.JSON(consts.StatusForbidden, artifact.ErrAccessDenied)
		return
	}
	if err := h.signer.Verify(path, exp, ctx.Query("sig"), time.Now()); err != nil {
		ctx.JSON(consts.StatusForbidden, err)
		return
	}

	reader, err := h.objects.Get(c, path)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{
				"kind": string(apperrors.KindValidation), "message": "文件不存在或已清理",
			})
			return
		}
		h.writeError(ctx, err)
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		h.writeError(ctx, apperrors.WrapKind(err, apperrors.KindIssuerUnavailable, "读取导出文件failed"))
		return
	}

	contentType := "application/octet-stream"
	filename := path[strings.LastIndex(path, "/")+1:]
	if meta, err := h.objects.GetMetadata(c, path); err == nil {
		if ct := meta["content_type"]; ct != "" {
			contentType = ct
		}
		if fn := meta["filename"]; fn != "" {
			filename = fn
		}
	}
	ctx.Header("Content-Disposition", "attachment; filename="+filename)
	ctx.Data(consts.StatusOK, contentType, data)
}

// Metrics Prometheus 指标
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		h.writeError(ctx, apperrors.WrapKind(err, apperrors.KindInternal, "导出指标failed"))
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// writeError 按错误分类映射状态码,响应体固定为 {kind, message}
func (h *Handler) writeError(ctx *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		status = consts.StatusBadRequest
	case apperrors.KindNoPendingAction, apperrors.KindAlreadyExecuted, apperrors.KindConsentPending:
		status = consts.StatusConflict
	case apperrors.KindUpstreamTimeout:
		status = consts.StatusGatewayTimeout
	case apperrors.KindIssuerUnavailable:
		status = consts.StatusServiceUnavailable
	}
	if status == consts.StatusInternalServerError && h.logger != nil {
		h.logger.Error("请求处理failed", "error", err)
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.WrapKind(err, apperrors.KindInternal, "internal error")
	}
	ctx.JSON(status, appErr)
}
