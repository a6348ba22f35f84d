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

// Package sqlrewrite 将模型写出的抽象 SIMILARITY(column, 'term') 调用
// 重写为 Postgres 可执行的打分 CASE 表达式（SOUNDEX 来自 fuzzystrmatch 扩展）。
package sqlrewrite

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "invoice-agent/pkg/errors"
)

const simToken = "SIMILARITY"

// Rewrite 替换 SQL 中的所有 SIMILARITY(col, 'term') 调用。
// 打分层级严格递减：精确 100，前缀 90，包含 85-(pos-1)*2（下限 80），
// 归一化相等 75，SOUNDEX 70，归一化包含 65，否则 0。
// 输出保证不再含 SIMILARITY( 记号，对重写结果再次调用是 no-op。
func Rewrite(sql string) (string, error) {
	var b strings.Builder
	i := 0
	for {
		j := nextCall(sql, i)
		if j < 0 {
			b.WriteString(sql[i:])
			return b.String(), nil
		}
		b.WriteString(sql[i:j])

		open := j + len(simToken)
		end, err := matchParen(sql, open)
		if err != nil {
			return "", err
		}
		expr, err := buildScoreExpr(sql[open+1 : end])
		if err != nil {
			return "", err
		}
		b.WriteString(expr)
		i = end + 1
	}
}

// nextCall 返回 from 之后下一个 SIMILARITY( 记号的起始位置，找不到返回 -1。
// 跳过字符串字面量内部的出现，且要求前一字符不是标识符字符。
func nextCall(sql string, from int) int {
	inQuote := false
	for i := from; i+len(simToken) < len(sql); i++ {
		c := sql[i]
		if c == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		if !strings.EqualFold(sql[i:i+len(simToken)], simToken) {
			continue
		}
		if i > 0 && isIdentChar(sql[i-1]) {
			continue
		}
		if sql[i+len(simToken)] == '(' {
			return i
		}
	}
	return -1
}

// matchParen 从 open 处的 '(' 开始，返回与之配对的 ')' 下标。
func matchParen(sql string, open int) (int, error) {
	depth := 0
	inQuote := false
	for i := open; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
				if depth == 0 {
					return i, nil
				}
			}
		}
	}
	return 0, apperrors.New(apperrors.KindRewrite, "SIMILARITY 调用括号不匹配")
}

// buildScoreExpr 解析 SIMILARITY 的两个参数并生成打分 CASE 表达式。
func buildScoreExpr(inner string) (string, error) {
	col, term, err := splitArgs(inner)
	if err != nil {
		return "", err
	}

	// 列表达式自身可能再嵌套 SIMILARITY
	col, err = Rewrite(col)
	if err != nil {
		return "", err
	}

	if err := validateLiteral(term); err != nil {
		return "", err
	}

	expr := fmt.Sprintf(`(CASE
    WHEN UPPER(%[1]s) = UPPER(%[2]s) THEN 100
    WHEN STRPOS(UPPER(%[1]s), UPPER(%[2]s)) = 1 THEN 90
    WHEN STRPOS(UPPER(%[1]s), UPPER(%[2]s)) > 1 THEN GREATEST(85 - (STRPOS(UPPER(%[1]s), UPPER(%[2]s)) - 1) * 2, 80)
    WHEN %[3]s = %[4]s THEN 75
    WHEN SOUNDEX(%[1]s) = SOUNDEX(%[2]s) THEN 70
    WHEN %[3]s LIKE '%%' || %[4]s || '%%' THEN 65
    ELSE 0
END)`, col, term, normalizeExpr(col), normalizeExpr(term))
	return expr, nil
}

// splitArgs 在顶层逗号处切分两个参数，逗号可出现在嵌套括号或字面量内。
func splitArgs(inner string) (col, term string, err error) {
	depth := 0
	inQuote := false
	split := -1
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		case ',':
			if !inQuote && depth == 0 && split == -1 {
				split = i
			}
		}
	}
	if inQuote {
		return "", "", apperrors.New(apperrors.KindRewrite, "SIMILARITY 参数中字符串字面量未闭合")
	}
	if split == -1 {
		return "", "", apperrors.New(apperrors.KindRewrite, "SIMILARITY 需要两个参数: SIMILARITY(column, 'term')")
	}
	col = strings.TrimSpace(inner[:split])
	term = strings.TrimSpace(inner[split+1:])
	if col == "" || term == "" {
		return "", "", apperrors.New(apperrors.KindRewrite, "SIMILARITY 需要两个参数: SIMILARITY(column, 'term')")
	}
	return col, term, nil
}

// validateLiteral 要求搜索词是单个完整的字符串字面量（'' 转义内部引号）。
func validateLiteral(term string) error {
	if len(term) < 2 || term[0] != '\'' {
		return apperrors.Newf(apperrors.KindRewrite, "SIMILARITY 第二个参数必须是字符串字面量, got: %s", term)
	}
	i := 1
	for i < len(term) {
		if term[i] != '\'' {
			i++
			continue
		}
		if i+1 < len(term) && term[i+1] == '\'' {
			i += 2 // 转义的引号
			continue
		}
		// 结束引号必须是最后一个字符
		if i != len(term)-1 {
			return apperrors.Newf(apperrors.KindRewrite, "SIMILARITY 第二个参数必须是字符串字面量, got: %s", term)
		}
		return nil
	}
	return apperrors.New(apperrors.KindRewrite, "SIMILARITY 参数中字符串字面量未闭合")
}

// normalizeExpr 归一化表达式：大写并去掉首尾空白与空格、逗号、句点。
func normalizeExpr(expr string) string {
	return fmt.Sprintf(`REPLACE(REPLACE(REPLACE(UPPER(BTRIM(%s)), ' ', ''), ',', ''), '.', '')`, expr)
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

var selectRe = regexp.MustCompile(`(?is)^\s*select\b`)

// EnsureSelectOnly 校验 SQL 是单条只读 SELECT 语句。
func EnsureSelectOnly(sql string) error {
	if !selectRe.MatchString(sql) {
		return apperrors.New(apperrors.KindValidation, "只允许单条 SELECT 查询")
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	if strings.Contains(trimmed, ";") {
		return apperrors.New(apperrors.KindValidation, "不允许多条语句")
	}
	return nil
}
