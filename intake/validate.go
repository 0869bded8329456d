package intake

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/defensoria-civil/divorcios/document"
	"github.com/defensoria-civil/divorcios/storage"
	"github.com/defensoria-civil/divorcios/types"
)

// =============================================================================
// 🎯 字段校验
// =============================================================================
// 每个校验函数返回规范化后的值；失败时返回 VALIDATION_FAILED，
// Message 即发给用户的纠正提示。

const maxNameLength = 120

var (
	datePattern   = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})$`)
	streetPattern = regexp.MustCompile(`[\pL'.]+(?:\s+[\pL'.]+)*\s+\d+`)
	amountPattern = regexp.MustCompile(`^\d[\d.,\s]*$`)
	centsPattern  = regexp.MustCompile(`[.,]\d{1,2}$`)
)

func invalid(format string, args ...any) error {
	return types.NewError(types.ErrValidationFailed, fmt.Sprintf(format, args...))
}

// collapse 去除首尾空白并合并内部空白
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ChooseType 识别离婚类型
func ChooseType(text string) (string, error) {
	f := document.Fold(text)
	switch {
	case strings.Contains(f, "unilateral"):
		return storage.TypeUnilateral, nil
	case strings.Contains(f, "conjunta"):
		return storage.TypeJoint, nil
	}
	return "", invalid(msgInvalidType)
}

// ValidateName 至少两个词，仅字母，最长 120 字符
func ValidateName(text, retry string) (string, error) {
	name := collapse(text)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", invalid("%s", retry)
	}
	words := strings.Fields(name)
	if len(words) < 2 {
		return "", invalid("%s", retry)
	}
	for _, r := range name {
		if r != ' ' && !unicode.IsLetter(r) {
			return "", invalid("%s", retry)
		}
	}
	return name, nil
}

// ValidateDNI 去掉点与空格后须为 7 或 8 位数字
func ValidateDNI(text string) (string, error) {
	dni := strings.NewReplacer(".", "", " ", "").Replace(strings.TrimSpace(text))
	if len(dni) < 7 || len(dni) > 8 {
		return "", invalid(msgInvalidDNI)
	}
	for _, r := range dni {
		if r < '0' || r > '9' {
			return "", invalid(msgInvalidDNI)
		}
	}
	return dni, nil
}

// ParseDate 解析 DD/MM/AAAA（也接受 - 和 . 分隔）
func ParseDate(text string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date 会把 31/02 归一化到三月
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

// ageOn 在 now 时的周岁
func ageOn(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

// ValidateDate 校验日期；minAge > 0 时要求年满 minAge 岁。返回 YYYY-MM-DD。
func ValidateDate(text string, now time.Time, minAge int) (string, error) {
	d, ok := ParseDate(text)
	if !ok {
		return "", dateError("Formato de fecha inválido. Usá DD/MM/AAAA.")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var errs []string
	if d.After(today) {
		errs = append(errs, "La fecha no puede ser futura.")
	}
	if d.Year() < 1900 {
		errs = append(errs, "La fecha es demasiado antigua.")
	}
	if minAge > 0 && !d.After(today) && ageOn(d, today) < minAge {
		errs = append(errs, fmt.Sprintf("Tenés que ser mayor de %d años.", minAge))
	}
	if len(errs) > 0 {
		return "", dateError(errs...)
	}
	return d.Format("2006-01-02"), nil
}

func dateError(errs ...string) error {
	return invalid("La fecha no es válida:\n- %s\n\nIngresá la fecha en formato DD/MM/AAAA.", strings.Join(errs, "\n- "))
}

// ValidateAddress 需要街道与门牌号；jurisdictions 非空时还须包含其中之一
func ValidateAddress(text string, jurisdictions []string) (string, error) {
	addr := collapse(text)
	var errs []string
	if utf8.RuneCountInString(addr) < 5 || !streetPattern.MatchString(addr) {
		errs = append(errs, "Falta calle y número (ej: 'San Martín 123').")
	}
	if len(jurisdictions) > 0 && !inJurisdiction(addr, jurisdictions) {
		errs = append(errs, fmt.Sprintf("La Defensoría solo atiende domicilios de %s.", strings.Join(jurisdictions, " / ")))
	}
	if len(errs) > 0 {
		return "", invalid("La dirección está incompleta:\n- %s\n\nPor favor, indicá calle, número, ciudad y provincia.", strings.Join(errs, "\n- "))
	}
	return addr, nil
}

func inJurisdiction(addr string, jurisdictions []string) bool {
	f := document.Fold(addr)
	for _, j := range jurisdictions {
		if j = document.Fold(strings.TrimSpace(j)); j != "" && strings.Contains(f, j) {
			return true
		}
	}
	return false
}

// UnknownAddress 配偶住址未知时保存的值
const UnknownAddress = "desconocido"

// ValidateSpouseAddress 任何辖区；"no sé" 视为未知
func ValidateSpouseAddress(text string) (string, error) {
	f := collapse(document.Fold(text))
	f = strings.Trim(f, ".!¡ ")
	switch f {
	case "no se", "nose", "no lo se", "desconocido", "desconocida", "no sabe":
		return UnknownAddress, nil
	}
	return ValidateAddress(text, nil)
}

// ValidateEmployment 识别工作状况
func ValidateEmployment(text string) (string, error) {
	f := document.Fold(text)
	switch {
	case strings.Contains(f, "desemplead"), strings.Contains(f, "sin trabajo"), strings.Contains(f, "no trabajo"), strings.Contains(f, "desocupad"):
		return storage.EmploymentUnemployed, nil
	case strings.Contains(f, "jubilad"), strings.Contains(f, "pensionad"):
		return storage.EmploymentRetired, nil
	case strings.Contains(f, "autonom"), strings.Contains(f, "monotribut"), strings.Contains(f, "independiente"):
		return storage.EmploymentSelfEmployed, nil
	case strings.Contains(f, "informal"), strings.Contains(f, "changa"):
		return storage.EmploymentInformal, nil
	case strings.Contains(f, "emplead"), strings.Contains(f, "relacion de dependencia"):
		return storage.EmploymentEmployed, nil
	}
	return "", invalid(msgInvalidEmployment)
}

// ParseAmount 解析非负整数金额，容忍 $、ARS、千分位点与逗号
func ParseAmount(text string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimPrefix(s, "ars")
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	s = strings.TrimSpace(strings.TrimSuffix(s, "pesos"))
	if !amountPattern.MatchString(s) {
		return 0, invalid(msgInvalidAmount)
	}
	s = strings.ReplaceAll(s, " ", "")
	if loc := centsPattern.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.NewReplacer(".", "", ",", "").Replace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, invalid(msgInvalidAmount)
	}
	return n, nil
}

// ValidateHousing 识别住房类型
func ValidateHousing(text string) (string, error) {
	f := document.Fold(text)
	switch {
	case strings.Contains(f, "propi"):
		return storage.HousingOwned, nil
	case strings.Contains(f, "alquil"):
		return storage.HousingRented, nil
	case strings.Contains(f, "prestad"), strings.Contains(f, "cedid"):
		return storage.HousingBorrowed, nil
	case strings.Contains(f, "otra"), strings.Contains(f, "otro"):
		return storage.HousingOther, nil
	}
	return "", invalid(msgInvalidHousing)
}

var (
	yesWords = map[string]bool{"si": true, "s": true, "claro": true, "afirmativo": true, "tengo": true, "sip": true}
	noWords  = map[string]bool{"no": true, "n": true, "ninguno": true, "ninguna": true, "nop": true, "nada": true}
)

// ParseYesNo 按首个词判断是/否
func ParseYesNo(text string) (bool, error) {
	words := strings.FieldsFunc(document.Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 {
		return false, invalid(msgInvalidYesNo)
	}
	switch {
	case noWords[words[0]]:
		return false, nil
	case yesWords[words[0]]:
		return true, nil
	}
	return false, invalid(msgInvalidYesNo)
}

var numberWords = map[string]int{
	"uno": 1, "una": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
	"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
}

// ParseCount 解析 min..max 之间的整数（接受西语数词）
func ParseCount(text string, min, max int) (int, error) {
	f := strings.Trim(collapse(document.Fold(text)), ".")
	n, err := strconv.Atoi(f)
	if err != nil {
		v, ok := numberWords[f]
		if !ok {
			return 0, invalid(msgInvalidCount, min, max)
		}
		n = v
	}
	if n < min || n > max {
		return 0, invalid(msgInvalidCount, min, max)
	}
	return n, nil
}

// ValidateAssets 至少 3 个字符的描述
func ValidateAssets(text string) (string, error) {
	s := collapse(text)
	if utf8.RuneCountInString(s) < 3 {
		return "", invalid(msgInvalidAssets)
	}
	return s, nil
}
