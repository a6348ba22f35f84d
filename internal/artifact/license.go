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
	"sync"

	"github.com/unidoc/unipdf/v3/common/license"

	apperrors "invoice-agent/pkg/errors"
)

var pdfLicenseOnce sync.Once

// SetPDFLicense 注册 unipdf 的 metered license key。
// unipdf 未注册 license 时 creator.Write 会直接报错,
// 所以 PDF 报告生成前必须调用一次;进程内重复调用是 no-op。
func SetPDFLicense(key string) error {
	if key == "" {
		return apperrors.New(apperrors.KindValidation, "unipdf license key 为空")
	}
	var err error
	pdfLicenseOnce.Do(func() {
		err = license.SetMeteredKey(key)
	})
	if err != nil {
		return apperrors.Wrap(err, "注册 unipdf license failed")
	}
	return nil
}
