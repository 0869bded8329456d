package intake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/defensoria-civil/divorcios/storage"
)

// Eligibility 初步资格判定结果
type Eligibility struct {
	Eligible  bool
	Threshold int64
	Reasons   []string
}

// EvaluateEligibility 收入不超过 基准 + 每个子女增量 × 子女数，且未申报可登记财产
func EvaluateEligibility(c *storage.Case, base, perDependent int64) Eligibility {
	threshold := base + perDependent*int64(c.DependentsCount)
	el := Eligibility{Eligible: true, Threshold: threshold}

	if c.MonthlyIncome > threshold {
		el.Eligible = false
		el.Reasons = append(el.Reasons, fmt.Sprintf("Ingreso mensual %s supera el umbral de %s", FormatARS(c.MonthlyIncome), FormatARS(threshold)))
	} else {
		el.Reasons = append(el.Reasons, fmt.Sprintf("Ingreso mensual %s dentro del umbral de %s", FormatARS(c.MonthlyIncome), FormatARS(threshold)))
	}
	if c.HasAssets {
		el.Eligible = false
		el.Reasons = append(el.Reasons, "Declara bienes registrables")
	}
	return el
}

// Apply 写回案件
func (el Eligibility) Apply(c *storage.Case) {
	c.EligiblePreliminary = el.Eligible
	c.EligibilityReason = strings.Join(el.Reasons, "; ")
}

// FormatARS 以千分位点格式化金额，例如 $ 1.250.000
func FormatARS(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if neg {
		return "$ -" + b.String()
	}
	return "$ " + b.String()
}
