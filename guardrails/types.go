package guardrails

import "context"

// Stage 护栏阶段
type Stage string

const (
	StageInput         Stage = "input"
	StageOutput        Stage = "output"
	StageHallucination Stage = "hallucination"
)

// 固定回复
const (
	// RefusalMessage 检测到提示注入时的回复
	RefusalMessage = "No puedo procesar esa solicitud. Por favor reformulá tu mensaje sin instrucciones técnicas hacia el sistema."
	// ApologyMessage 生成失败或回复未通过校验时的回复
	ApologyMessage = "Disculpá, tuve un problema. ¿Podés reformular tu consulta?"
)

// Verdict 护栏判定结果
type Verdict struct {
	// Allowed 是否放行
	Allowed bool `json:"allowed"`
	// Text 放行的文本（可能已脱敏）
	Text string `json:"text"`
	// Rules 触发的规则标识
	Rules []string `json:"rules,omitempty"`
	// Score 置信度 [0,1]，仅幻觉评分使用
	Score float64 `json:"score"`
	// Explanation 可读说明
	Explanation string `json:"explanation,omitempty"`
}

// Triggered 是否有规则触发
func (v Verdict) Triggered() bool {
	return len(v.Rules) > 0
}

// RuleKeys 去掉 ":detalle" 后缀并去重，保持首次出现的顺序.
// 细节可能含证件号或自由文本，指标标签和日志只用规则标识.
func RuleKeys(rules []string) []string {
	if len(rules) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(rules))
	keys := make([]string, 0, len(rules))
	for _, r := range rules {
		k := ruleKey(r)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// Scorer 对生成的回复做幻觉评分.
// grounding 是生成时提供的上下文，question 是用户原话.
type Scorer interface {
	Score(ctx context.Context, response, grounding, question string) Verdict
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
