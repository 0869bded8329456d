package guardrails

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/llm"
)

// LLM 评审规则标识
const (
	RuleLLMInconsistency = "llm_detected_inconsistency"
	RuleLLMInventedData  = "llm_detected_invented_data"
	RuleLLMInappropriate = "llm_detected_inappropriate_advice"
	RuleLLMIssue         = "llm_issue"
)

// Generator 是评审使用的路由器能力
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, task llm.TaskType, opts ...llm.GenerateOption) (string, error)
}

const judgePrompt = `Sos un experto en validar la consistencia de respuestas de asistentes de IA.

Analizá si la RESPUESTA es consistente con el CONTEXTO y si responde apropiadamente a la PREGUNTA.

CONTEXTO:
%s

PREGUNTA DEL USUARIO:
%s

RESPUESTA DEL ASISTENTE:
%s

Respondé SOLO con un JSON:
{"is_consistent": true/false, "invents_data": true/false, "appropriate": true/false, "confidence": 0.0-1.0, "issues": ["..."], "explanation": "..."}

Criterios:
- Si la respuesta menciona fechas, números o nombres que NO están en el contexto: invents_data=true
- Si la respuesta afirma tener acceso a sistemas o bases de datos: is_consistent=false
- Si da consejos legales muy específicos sin base: appropriate=false`

type judgeReply struct {
	IsConsistent bool     `json:"is_consistent"`
	InventsData  bool     `json:"invents_data"`
	Appropriate  bool     `json:"appropriate"`
	Confidence   *float64 `json:"confidence"`
	Issues       []string `json:"issues"`
	Explanation  string   `json:"explanation"`
}

// LLMJudge 通过 hallucination_check 任务做语义评审，任何失败回退到 fallback.
type LLMJudge struct {
	gen           Generator
	fallback      Scorer
	minConfidence float64
	logger        *zap.Logger
}

// NewLLMJudge 创建 LLM 评审. fallback 为 nil 时使用默认规则评分器.
func NewLLMJudge(gen Generator, fallback Scorer, minConfidence float64, logger *zap.Logger) *LLMJudge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = NewRuleScorer(DefaultRuleScorerConfig(), logger)
	}
	if minConfidence <= 0 {
		minConfidence = 0.7
	}
	return &LLMJudge{
		gen:           gen,
		fallback:      fallback,
		minConfidence: minConfidence,
		logger:        logger.With(zap.String("component", "llm_judge")),
	}
}

// Score implements Scorer.
func (j *LLMJudge) Score(ctx context.Context, response, grounding, question string) Verdict {
	if j.gen == nil {
		return j.fallback.Score(ctx, response, grounding, question)
	}
	prompt := fmt.Sprintf(judgePrompt, grounding, question, response)
	raw, err := j.gen.Generate(ctx, []llm.Message{llm.UserMessage(prompt)}, llm.TaskHallucinationCheck, llm.WithJSONMode())
	if err != nil {
		j.logger.Warn("judge unavailable, using rules", zap.Error(err))
		return j.fallback.Score(ctx, response, grounding, question)
	}

	var out judgeReply
	if err := llm.DecodeJSONReply(raw, &out); err != nil || out.Confidence == nil {
		j.logger.Warn("judge reply unparseable, using rules", zap.Error(err))
		return j.fallback.Score(ctx, response, grounding, question)
	}

	var flags []string
	if !out.IsConsistent {
		flags = append(flags, RuleLLMInconsistency)
	}
	if out.InventsData {
		flags = append(flags, RuleLLMInventedData)
	}
	if !out.Appropriate {
		flags = append(flags, RuleLLMInappropriate)
	}
	for _, issue := range out.Issues {
		flags = append(flags, RuleLLMIssue+":"+issue)
	}

	confidence := clamp01(*out.Confidence)
	valid := confidence >= j.minConfidence && out.IsConsistent && !out.InventsData
	explanation := out.Explanation
	if explanation == "" {
		explanation = "Validación LLM completada"
	}

	j.logger.Debug("judge verdict",
		zap.Bool("valid", valid),
		zap.Float64("confidence", confidence),
		zap.Strings("flags", RuleKeys(flags)))

	return Verdict{
		Allowed:     valid,
		Text:        response,
		Rules:       flags,
		Score:       confidence,
		Explanation: "Validación LLM: " + explanation,
	}
}
