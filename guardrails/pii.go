package guardrails

import (
	"regexp"
	"strings"
)

// PIIType PII 类型
type PIIType string

const (
	PIICUIT  PIIType = "cuit"
	PIIDNI   PIIType = "dni"
	PIIPhone PIIType = "phone"
	PIIEmail PIIType = "email"
)

type piiPattern struct {
	typ         PIIType
	re          *regexp.Regexp
	placeholder string
	// minDigits 大于 0 时，匹配中的数字少于该值则保留原文
	minDigits int
}

// dniBody 连续 7-8 位或带点分组（30.123.456、5.123.456）
const dniBody = `(?:\d{7,8}|\d{1,2}\.\d{3}\.\d{3})`

// 顺序固定：CUIT 先于 DNI，避免 CUIT 中间的 8 位被当作 DNI；
// 电话在证件号之后，分组之间允许空格、连字符和区号括号
var piiPatterns = []piiPattern{
	{typ: PIICUIT, re: regexp.MustCompile(`\b\d{2}-?` + dniBody + `-?\d\b`), placeholder: "<CUIT>"},
	{typ: PIIDNI, re: regexp.MustCompile(`\b` + dniBody + `\b`), placeholder: "<DNI>"},
	{typ: PIIPhone, re: regexp.MustCompile(`\+?\(?\d{2,5}\)?(?:[ -]?\d{1,5}){2,5}`), placeholder: "<PHONE>", minDigits: 10},
	{typ: PIIEmail, re: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), placeholder: "<EMAIL>"},
}

func (p piiPattern) replace(text string) (string, bool) {
	hit := false
	out := p.re.ReplaceAllStringFunc(text, func(m string) string {
		if p.minDigits > 0 && countDigits(m) < p.minDigits {
			return m
		}
		hit = true
		return p.placeholder
	})
	return out, hit
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// PIIRedactor 输出侧 PII 脱敏，从不拦截
type PIIRedactor struct{}

// NewPIIRedactor 创建脱敏器
func NewPIIRedactor() *PIIRedactor {
	return &PIIRedactor{}
}

// Redact 依次替换各类 PII，Rules 为命中的类型.
func (r *PIIRedactor) Redact(text string) Verdict {
	out := text
	var found []string
	for _, p := range piiPatterns {
		var hit bool
		if out, hit = p.replace(out); hit {
			found = append(found, string(p.typ))
		}
	}
	v := Verdict{Allowed: true, Text: out, Rules: found}
	if len(found) > 0 {
		v.Explanation = "PII redacted: " + strings.Join(found, ", ")
	}
	return v
}
