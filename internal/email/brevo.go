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

// Package email 通过 Brevo 事务邮件 API 发送纯文本邮件，附件从导出链接
// 下载后 base64 内联。API key 由调用方在执行时传入，不在客户端里长期持有。
package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "invoice-agent/pkg/errors"
	"invoice-agent/pkg/log"
)

const defaultBrevoBaseURL = "https://api.brevo.com"

// SendRequest 一次发信请求；字段与确认草稿一一对应
type SendRequest struct {
	ToEmails        string `json:"to_emails"` // 逗号分隔
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	AttachmentsJSON string `json:"attachments_json"` // [{"url":..,"filename":..}]
}

// SendResult 发信结果
type SendResult struct {
	MessageID string `json:"message_id"`
}

type attachmentRef struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// BrevoClient Brevo 事务邮件客户端
type BrevoClient struct {
	client      *resty.Client
	downloader  *resty.Client
	baseURL     string
	senderEmail string
	senderName  string
	logger      *log.Logger
}

// NewBrevoClient 创建客户端；baseURL 空则用官方端点。429/5xx 自动退避重试 3 次。
func NewBrevoClient(senderEmail, senderName, baseURL string, logger *log.Logger) *BrevoClient {
	if baseURL == "" {
		baseURL = defaultBrevoBaseURL
	}
	if senderName == "" {
		senderName = "Invoice Agent"
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(8 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	downloader := resty.New()
	downloader.SetTimeout(60 * time.Second)

	return &BrevoClient{
		client:      client,
		downloader:  downloader,
		baseURL:     strings.TrimRight(baseURL, "/"),
		senderEmail: senderEmail,
		senderName:  senderName,
		logger:      logger,
	}
}

// Send 发送纯文本邮件。附件下载失败只跳过不整体失败。
func (c *BrevoClient) Send(ctx context.Context, apiKey string, req SendRequest) (*SendResult, error) {
	recipients := splitRecipients(req.ToEmails)
	if len(recipients) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "没有合法的收件人地址")
	}

	attachments, err := c.collectAttachments(ctx, req.AttachmentsJSON)
	if err != nil {
		return nil, err
	}

	to := make([]map[string]string, len(recipients))
	for i, addr := range recipients {
		to[i] = map[string]string{"email": addr}
	}

	payload := map[string]any{
		"sender":      map[string]string{"email": c.senderEmail, "name": c.senderName},
		"to":          to,
		"subject":     req.Subject,
		"textContent": req.Body,
	}
	if len(attachments) > 0 {
		payload["attachment"] = attachments
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("api-key", apiKey).
		SetBody(payload).
		Post(c.baseURL + "/v3/smtp/email")
	if err != nil {
		return nil, apperrors.Wrap(err, "调用 Brevo API failed")
	}
	if response.StatusCode() < 200 || response.StatusCode() >= 300 {
		return nil, apperrors.Newf(apperrors.KindInternal, "Brevo API 返回 %d: %s", response.StatusCode(), response.String())
	}

	var result struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindSerialization, "解析 Brevo 响应failed")
	}
	return &SendResult{MessageID: result.MessageID}, nil
}

// collectAttachments 解析附件清单并逐个下载编码
func (c *BrevoClient) collectAttachments(ctx context.Context, attachmentsJSON string) ([]map[string]string, error) {
	if attachmentsJSON == "" {
		attachmentsJSON = "[]"
	}
	var refs []attachmentRef
	if err := json.Unmarshal([]byte(attachmentsJSON), &refs); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindValidation, "附件 JSON 不合法")
	}

	var attachments []map[string]string
	for _, ref := range refs {
		if ref.URL == "" || ref.Filename == "" {
			if c.logger != nil {
				c.logger.Warn("跳过缺字段的附件", "url", ref.URL, "filename", ref.Filename)
			}
			continue
		}
		resp, err := c.downloader.R().SetContext(ctx).Get(ref.URL)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("下载附件failed，跳过", "filename", ref.Filename, "err", err)
			}
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			if c.logger != nil {
				c.logger.Warn("下载附件failed，跳过", "filename", ref.Filename, "status", resp.StatusCode())
			}
			continue
		}
		attachments = append(attachments, map[string]string{
			"name":    ref.Filename,
			"content": base64.StdEncoding.EncodeToString(resp.Body()),
		})
	}
	return attachments, nil
}

func splitRecipients(toEmails string) []string {
	var recipients []string
	for _, part := range strings.Split(toEmails, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}
