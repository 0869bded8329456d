package memory

import (
	"sort"
	"strconv"
)

// 会话键
const (
	KeyPhase         = "phase"
	KeyType          = "type"
	KeyName          = "name"
	KeyDNI           = "dni"
	KeyBirthDate     = "birth_date"
	KeyAddress       = "address"
	KeySpouseName    = "spouse_name"
	KeySpouseAddress = "spouse_address"
	KeyEmployment    = "employment"
	KeyIncome        = "monthly_income"
	KeyHousing       = "housing"
	KeyRent          = "monthly_rent"
	KeyDependents    = "dependents_count"
	KeyAssets        = "assets"
	KeyEligible      = "eligible_preliminary"
)

// SessionState 是案件的会话快照，落库时每个非空字段一行.
type SessionState struct {
	Phase         string
	Type          string
	Name          string
	DNI           string
	BirthDate     string
	Address       string
	SpouseName    string
	SpouseAddress string
	Employment    string
	// 金额以字符串保存，空表示尚未收集
	MonthlyIncome string
	Housing       string
	MonthlyRent   string
	Dependents    string
	Assets        string
	Eligible      string
}

func (s *SessionState) fields() []struct {
	key string
	val *string
} {
	return []struct {
		key string
		val *string
	}{
		{KeyPhase, &s.Phase},
		{KeyType, &s.Type},
		{KeyName, &s.Name},
		{KeyDNI, &s.DNI},
		{KeyBirthDate, &s.BirthDate},
		{KeyAddress, &s.Address},
		{KeySpouseName, &s.SpouseName},
		{KeySpouseAddress, &s.SpouseAddress},
		{KeyEmployment, &s.Employment},
		{KeyIncome, &s.MonthlyIncome},
		{KeyHousing, &s.Housing},
		{KeyRent, &s.MonthlyRent},
		{KeyDependents, &s.Dependents},
		{KeyAssets, &s.Assets},
		{KeyEligible, &s.Eligible},
	}
}

// Values 返回非空字段的键值.
func (s SessionState) Values() map[string]string {
	out := make(map[string]string)
	for _, f := range s.fields() {
		if *f.val != "" {
			out[f.key] = *f.val
		}
	}
	return out
}

// SessionStateFrom 从键值还原快照，未知键忽略.
func SessionStateFrom(values map[string]string) SessionState {
	var s SessionState
	for _, f := range s.fields() {
		*f.val = values[f.key]
	}
	return s
}

// FormatInt 金额与计数的统一格式.
func FormatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// 上下文中显示的西语标签
var sessionLabels = map[string]string{
	KeyPhase:         "Etapa",
	KeyType:          "Tipo de divorcio",
	KeyName:          "Nombre",
	KeyDNI:           "DNI",
	KeyBirthDate:     "Fecha de nacimiento",
	KeyAddress:       "Domicilio",
	KeySpouseName:    "Cónyuge",
	KeySpouseAddress: "Domicilio del cónyuge",
	KeyEmployment:    "Situación laboral",
	KeyIncome:        "Ingreso mensual",
	KeyHousing:       "Vivienda",
	KeyRent:          "Alquiler mensual",
	KeyDependents:    "Hijos",
	KeyAssets:        "Bienes",
	KeyEligible:      "Elegible (preliminar)",
}

// formatSession 按键排序输出 "- Etiqueta: valor" 行.
func formatSession(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		label, ok := sessionLabels[k]
		if !ok {
			label = k
		}
		lines = append(lines, "- "+label+": "+values[k])
	}
	return lines
}
