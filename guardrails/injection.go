package guardrails

import "strings"

// 默认注入模式，大小写不敏感的子串匹配
var defaultInjectionPatterns = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"you are now",
	"act as",
	"system:",
	"ignorá las instrucciones anteriores",
	"ignora las instrucciones anteriores",
	"olvida tus instrucciones",
	"olvidá tus instrucciones",
}

// InjectionFilter 输入侧提示注入过滤器
type InjectionFilter struct {
	patterns []string
}

// NewInjectionFilter 创建过滤器，extra 追加到默认模式之后.
func NewInjectionFilter(extra ...string) *InjectionFilter {
	patterns := make([]string, 0, len(defaultInjectionPatterns)+len(extra))
	patterns = append(patterns, defaultInjectionPatterns...)
	for _, p := range extra {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &InjectionFilter{patterns: patterns}
}

// Check 命中任一模式即拒绝，Rules 记录命中的模式.
func (f *InjectionFilter) Check(text string) Verdict {
	lowered := strings.ToLower(text)
	for _, p := range f.patterns {
		if strings.Contains(lowered, p) {
			return Verdict{
				Allowed:     false,
				Text:        RefusalMessage,
				Rules:       []string{p},
				Explanation: "Posible prompt injection detectado: '" + p + "'",
			}
		}
	}
	return Verdict{Allowed: true, Text: text}
}

// Patterns 返回生效的模式.
func (f *InjectionFilter) Patterns() []string {
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)
	return out
}
