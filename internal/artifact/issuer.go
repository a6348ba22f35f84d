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

// Package artifact 在内存中生成导出文件（CSV/PDF），写入对象存储并签发限时下载链接。
package artifact

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"invoice-agent/internal/storage/object"
	apperrors "invoice-agent/pkg/errors"
	"invoice-agent/pkg/metrics"
)

// Artifact 一次签发的导出文件
type Artifact struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer 导出文件签发器
type Issuer struct {
	store   object.Store
	signer  *Signer
	baseURL string
	prefix  string
	expiry  time.Duration
}

// NewIssuer 创建签发器；expiry 为默认链接有效期
func NewIssuer(store object.Store, signingKey, baseURL, prefix string, expiry time.Duration) *Issuer {
	if prefix == "" {
		prefix = "exports"
	}
	if expiry <= 0 {
		expiry = 60 * time.Minute
	}
	return &Issuer{
		store:   store,
		signer:  NewSigner(signingKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  prefix,
		expiry:  expiry,
	}
}

// Signer 返回签发器使用的签名器（下载端校验复用）
func (i *Issuer) Signer() *Signer {
	return i.signer
}

// IssueCSV 把查询结果序列化为 CSV 并签发下载链接。
// 表头总是写入，零行结果是合法的空体文件。
func (i *Issuer) IssueCSV(ctx context.Context, columns []string, rows []map[string]any, expiry time.Duration) (*Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindSerialization, "写入 CSV 表头failed")
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for j, col := range columns {
			cell, err := formatCell(row[col])
			if err != nil {
				return nil, err
			}
			record[j] = cell
		}
		if err := w.Write(record); err != nil {
			return nil, apperrors.WrapKind(err, apperrors.KindSerialization, "写入 CSV 行failed")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindSerialization, "序列化 CSV failed")
	}

	return i.issue(ctx, buf.Bytes(), "csv", "text/csv", expiry)
}

// IssuePDF 渲染分节核验报告 PDF 并签发下载链接
func (i *Issuer) IssuePDF(ctx context.Context, invoiceID string, sections []ReportSection, expiry time.Duration) (*Artifact, error) {
	data, err := renderReportPDF(invoiceID, sections)
	if err != nil {
		return nil, err
	}
	return i.issue(ctx, data, "pdf", "application/pdf", expiry)
}

// issue 统一上传与签链路径：<prefix>/<YYYYMMDD_HHMMSS>_<uuid>.<ext>
func (i *Issuer) issue(ctx context.Context, data []byte, ext, contentType string, expiry time.Duration) (*Artifact, error) {
	if expiry <= 0 {
		expiry = i.expiry
	}
	filename := fmt.Sprintf("%s_%s.%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString(), ext)
	path := i.prefix + "/" + filename

	metadata := map[string]string{
		"content_type": contentType,
		"filename":     filename,
	}
	if err := i.store.Put(ctx, path, bytes.NewReader(data), int64(len(data)), metadata); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindIssuerUnavailable, "上传导出文件failed")
	}

	expiresAt := time.Now().Add(expiry)
	exp := expiresAt.Unix()
	url := fmt.Sprintf("%s/%s?exp=%d&sig=%s", i.baseURL, path, exp, i.signer.Sign(path, exp))
	metrics.ArtifactTotal.WithLabelValues(ext).Inc()
	return &Artifact{
		URL:       url,
		Filename:  filename,
		Path:      path,
		ExpiresAt: expiresAt,
	}, nil
}

// formatCell 把行值转成 CSV 单元格文本；复合值落 JSON，无法序列化报 serialization
func formatCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", apperrors.WrapKind(err, apperrors.KindSerialization, "序列化 CSV 单元格failed")
		}
		return string(raw), nil
	default:
		return fmt.Sprint(val), nil
	}
}
