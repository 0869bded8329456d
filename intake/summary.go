package intake

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/llm"
	"github.com/defensoria-civil/divorcios/memory"
	"github.com/defensoria-civil/divorcios/storage"
)

// summarize 生成进入 documentation 阶段时的情节摘要；路由器不可用时使用确定性摘要
func (e *Engine) summarize(ctx context.Context, c *storage.Case) string {
	fallback := DeterministicSummary(c)
	if e.llm == nil {
		return fallback
	}
	out, err := e.llm.Generate(ctx, []llm.Message{
		llm.UserMessage(fmt.Sprintf(summaryPrompt, caseFacts(c))),
	}, llm.TaskChat, llm.WithMaxTokens(256))
	if err != nil {
		e.logger.Warn("episodic summary falls back to template",
			zap.Uint("case_id", c.ID),
			zap.Error(err))
		return fallback
	}
	if out = strings.TrimSpace(out); out == "" {
		return fallback
	}
	return out
}

// caseFacts 列出摘要使用的案件数据；不含 DNI
func caseFacts(c *storage.Case) string {
	lines := []string{
		"- Nombre: " + c.Name,
		"- Tipo de divorcio: " + c.Type,
		"- Cónyuge: " + c.SpouseName,
		"- Situación laboral: " + c.Employment,
		"- Ingreso mensual: " + FormatARS(c.MonthlyIncome),
		"- Vivienda: " + c.Housing,
		fmt.Sprintf("- Hijos/as a cargo: %d", c.DependentsCount),
		"- Bienes registrables: " + yesNo(c.HasAssets),
		"- Elegibilidad preliminar: " + yesNo(c.EligiblePreliminary),
	}
	if c.Housing == storage.HousingRented {
		lines = append(lines, "- Alquiler mensual: "+FormatARS(c.MonthlyRent))
	}
	if c.AssetsDescription != "" {
		lines = append(lines, "- Bienes: "+c.AssetsDescription)
	}
	return strings.Join(lines, "\n")
}

// DeterministicSummary 不依赖模型的摘要
func DeterministicSummary(c *storage.Case) string {
	return fmt.Sprintf(
		"%s completó la carga de datos para un divorcio %s. Situación laboral: %s; ingreso mensual %s; vivienda %s; hijos/as a cargo: %d; bienes registrables: %s. Elegibilidad preliminar: %s (%s).",
		c.Name, c.Type, c.Employment, FormatARS(c.MonthlyIncome), c.Housing,
		c.DependentsCount, yesNo(c.HasAssets), yesNo(c.EligiblePreliminary), c.EligibilityReason)
}

func yesNo(b bool) string {
	if b {
		return "sí"
	}
	return "no"
}

// SessionFromCase 把案件映射为会话快照；尚未回答的问题不写入
func SessionFromCase(c *storage.Case) memory.SessionState {
	s := memory.SessionState{
		Phase:         c.Phase,
		Type:          c.Type,
		Name:          c.Name,
		DNI:           c.DNI,
		BirthDate:     c.BirthDate,
		Address:       c.Address,
		SpouseName:    c.SpouseName,
		SpouseAddress: c.SpouseAddress,
		Employment:    c.Employment,
		Housing:       c.Housing,
	}
	phase, ok := ParsePhase(c.Phase)
	answered := func(q Phase) bool { return ok && phase > q }

	if answered(PhaseCollectingIncome) {
		s.MonthlyIncome = memory.FormatInt(c.MonthlyIncome)
	}
	if c.Housing == storage.HousingRented && answered(PhaseCollectingRent) {
		s.MonthlyRent = memory.FormatInt(c.MonthlyRent)
	}
	if answered(PhaseAskingDependents) {
		s.Dependents = memory.FormatInt(int64(c.DependentsCount))
	}
	if answered(PhaseAskingAssets) {
		s.Assets = yesNo(c.HasAssets)
		if c.AssetsDescription != "" {
			s.Assets = c.AssetsDescription
		}
	}
	if phase >= PhaseDocumentation && ok {
		s.Eligible = yesNo(c.EligiblePreliminary)
	}
	return s
}
