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
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unidoc/unipdf/v3/creator"
	"github.com/unidoc/unipdf/v3/model"

	apperrors "invoice-agent/pkg/errors"
)

// ReportSection 核验报告的一个分节。列表等复杂排版由内容串自带 \n 表达，
// 渲染端不做表格。
type ReportSection struct {
	SectionTitle   string `json:"section_title"`
	SectionContent string `json:"section_content"`
}

// ParseReportSections 解析模型给出的分节 JSON
func ParseReportSections(raw string) ([]ReportSection, error) {
	var sections []ReportSection
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindSerialization, "解析报告分节 JSON failed")
	}
	return sections, nil
}

// renderReportPDF 渲染标题 + 分节正文 + 时间戳/页码页脚的报告
func renderReportPDF(invoiceID string, sections []ReportSection) ([]byte, error) {
	regular, err := model.NewStandard14Font(model.HelveticaName)
	if err != nil {
		return nil, apperrors.Wrap(err, "加载 PDF 字体failed")
	}
	bold, err := model.NewStandard14Font(model.HelveticaBoldName)
	if err != nil {
		return nil, apperrors.Wrap(err, "加载 PDF 字体failed")
	}
	italic, err := model.NewStandard14Font(model.HelveticaObliqueName)
	if err != nil {
		return nil, apperrors.Wrap(err, "加载 PDF 字体failed")
	}

	c := creator.New()
	c.SetPageMargins(50, 50, 50, 60)

	generatedAt := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	c.DrawFooter(func(block *creator.Block, args creator.FooterFunctionArgs) {
		left := c.NewParagraph(fmt.Sprintf("Generated on: %s", generatedAt))
		left.SetFont(italic)
		left.SetFontSize(8)
		left.SetPos(50, 20)
		_ = block.Draw(left)

		right := c.NewParagraph(fmt.Sprintf("Page %d of %d", args.PageNum, args.TotalPages))
		right.SetFont(italic)
		right.SetFontSize(8)
		right.SetPos(block.Width()-120, 20)
		_ = block.Draw(right)
	})

	c.NewPage()

	title := c.NewParagraph(fmt.Sprintf("Verification Report for Invoice: %s", invoiceID))
	title.SetFont(bold)
	title.SetFontSize(18)
	title.SetTextAlignment(creator.TextAlignmentCenter)
	title.SetMargins(0, 0, 0, 20)
	if err := c.Draw(title); err != nil {
		return nil, apperrors.Wrap(err, "渲染报告标题failed")
	}

	for _, section := range sections {
		heading := section.SectionTitle
		if heading == "" {
			heading = "Section"
		}

		// 单格表格当作带底色的分节标题条
		bar := c.NewTable(1)
		cell := bar.NewCell()
		cell.SetBackgroundColor(creator.ColorRGBFrom8bit(224, 224, 224))
		cell.SetIndent(4)
		head := c.NewStyledParagraph()
		chunk := head.Append(heading)
		chunk.Style.Font = bold
		chunk.Style.FontSize = 14
		if err := cell.SetContent(head); err != nil {
			return nil, apperrors.Wrap(err, "渲染分节标题failed")
		}
		bar.SetMargins(0, 0, 0, 6)
		if err := c.Draw(bar); err != nil {
			return nil, apperrors.Wrap(err, "渲染分节标题failed")
		}

		if section.SectionContent != "" {
			body := c.NewParagraph(section.SectionContent)
			body.SetFont(regular)
			body.SetFontSize(11)
			body.SetLineHeight(1.4)
			body.SetMargins(0, 0, 0, 16)
			if err := c.Draw(body); err != nil {
				return nil, apperrors.Wrap(err, "渲染分节内容failed")
			}
		}
	}

	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		return nil, apperrors.Wrap(err, "写出 PDF failed")
	}
	return buf.Bytes(), nil
}
