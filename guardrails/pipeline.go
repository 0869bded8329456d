package guardrails

import (
	"context"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/config"
)

// Observer 接收每次触发规则的判定
type Observer func(stage Stage, v Verdict)

// Pipeline 组合输入过滤、输出脱敏与幻觉评分.
type Pipeline struct {
	input     *InjectionFilter
	redactor  *PIIRedactor
	scorer    Scorer
	observers []Observer
	logger    *zap.Logger
}

// NewPipeline 创建护栏流水线. gen 为 nil 或未启用评审时只使用规则评分.
func NewPipeline(cfg config.GuardrailsConfig, gen Generator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	ruleCfg := DefaultRuleScorerConfig()
	if cfg.HallucinationThreshold > 0 {
		ruleCfg.Threshold = cfg.HallucinationThreshold
	}
	if len(cfg.KnownPlaces) > 0 {
		ruleCfg.KnownPlaces = cfg.KnownPlaces
	}
	var scorer Scorer = NewRuleScorer(ruleCfg, logger)
	if cfg.UseLLMJudge && gen != nil {
		scorer = NewLLMJudge(gen, scorer, cfg.JudgeConfidence, logger)
	}
	return &Pipeline{
		input:    NewInjectionFilter(cfg.ExtraInjectionPatterns...),
		redactor: NewPIIRedactor(),
		scorer:   scorer,
		logger:   logger.With(zap.String("component", "guardrails")),
	}
}

// WithScorer 替换幻觉评分策略
func (p *Pipeline) WithScorer(s Scorer) *Pipeline {
	p.scorer = s
	return p
}

// OnVerdict 注册观察者（metrics、审计）
func (p *Pipeline) OnVerdict(o Observer) {
	p.observers = append(p.observers, o)
}

// CheckInput 检查用户输入. Allowed=false 时 Text 为固定拒绝语.
func (p *Pipeline) CheckInput(text string) Verdict {
	v := p.input.Check(text)
	if !v.Allowed {
		p.logger.Warn("prompt injection detected",
			zap.Strings("patterns", v.Rules),
			zap.String("preview", preview(text)))
	}
	p.emit(StageInput, v)
	return v
}

// CheckOutput 对生成的回复脱敏并评分.
// 评分基于原始回复，使编造的证件号在脱敏前就能被识别；
// Allowed=false 时 Text 为固定道歉语.
func (p *Pipeline) CheckOutput(ctx context.Context, response, grounding, question string) Verdict {
	redacted := p.redactor.Redact(response)
	if redacted.Triggered() {
		p.logger.Info("pii redacted", zap.Strings("types", redacted.Rules))
	}
	p.emit(StageOutput, redacted)

	score := p.scorer.Score(ctx, response, grounding, question)
	p.emit(StageHallucination, score)

	out := Verdict{
		Allowed:     score.Allowed,
		Text:        redacted.Text,
		Rules:       append(append([]string(nil), redacted.Rules...), score.Rules...),
		Score:       score.Score,
		Explanation: score.Explanation,
	}
	if !score.Allowed {
		p.logger.Warn("reply rejected",
			zap.Float64("score", score.Score),
			zap.Strings("flags", RuleKeys(score.Rules)))
		out.Text = ApologyMessage
	}
	return out
}

func (p *Pipeline) emit(stage Stage, v Verdict) {
	if !v.Triggered() {
		return
	}
	for _, o := range p.observers {
		o(stage, v)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 200 {
		return string(r[:200])
	}
	return s
}
