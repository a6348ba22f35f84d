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

package artifact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "invoice-agent/pkg/errors"
)

// ErrAccessDenied 链接过期或签名不合法，下载端一律 403
var ErrAccessDenied = apperrors.New(apperrors.KindValidation, "链接已过期或签名不合法")

// Signer 对 对象路径+过期时间 做 HMAC-SHA256 签名，签出的链接只对单个对象限时有效
type Signer struct {
	key []byte
}

// NewSigner 创建签名器
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign 返回 path 在 exp（Unix 秒）前有效的签名
func (s *Signer) Sign(path string, exp int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s\n%d", path, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 校验签名与有效期；过期或签名不匹配一律 ErrAccessDenied，不做静默放行
func (s *Signer) Verify(path string, exp int64, sig string, now time.Time) error {
	if now.Unix() > exp {
		return ErrAccessDenied
	}
	expected := s.Sign(path, exp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrAccessDenied
	}
	return nil
}
