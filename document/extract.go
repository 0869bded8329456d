package document

import (
	"math"
	"regexp"
	"strings"
)

// 提取字段名（与 OCR 提示中的 JSON 键一致）
const (
	FieldDocumentNumber = "numero_documento"
	FieldFullName       = "nombre_completo"
	FieldBirthDate      = "fecha_nacimiento"
	FieldCUIL           = "cuil"
	FieldPeriod         = "periodo"
	FieldIsNegative     = "es_negativa"
	FieldMarriageDate   = "fecha_matrimonio"
	FieldMarriagePlace  = "lugar_matrimonio"
	FieldSpouse1        = "nombre_conyuge_1"
	FieldSpouse2        = "nombre_conyuge_2"
)

const baseConfidence = 0.9

var (
	dniNumberPattern = regexp.MustCompile(`^\d{7,8}$`)
	ocrDatePattern   = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// penalty 一条校验规则：不满足时扣分并记录错误
type penalty struct {
	failed  func(f map[string]string) bool
	message string
	cost    float64
}

// extractor 每类结构化文档的校验规则
type extractor struct {
	name string
	// 有错误时，置信度须严格高于此值才算成功
	successAbove float64
	rules        []penalty
	normalize    func(f map[string]string)
}

func (e extractor) evaluate(fields map[string]string) *Result {
	if e.normalize != nil {
		e.normalize(fields)
	}
	res := &Result{Fields: fields, Confidence: baseConfidence}
	for _, r := range e.rules {
		if r.failed(fields) {
			res.Errors = append(res.Errors, r.message)
			res.Confidence -= r.cost
		}
	}
	res.Confidence = math.Max(0, math.Round(res.Confidence*100)/100)
	res.Success = len(res.Errors) == 0 || res.Confidence > e.successAbove
	return res
}

func missing(key string) func(map[string]string) bool {
	return func(f map[string]string) bool { return f[key] == "" }
}

func notMatching(key string, re *regexp.Regexp) func(map[string]string) bool {
	return func(f map[string]string) bool { return !re.MatchString(f[key]) }
}

var dniExtractor = extractor{
	name:         "dni",
	successAbove: 0.5,
	normalize: func(f map[string]string) {
		if n, ok := f[FieldDocumentNumber]; ok {
			f[FieldDocumentNumber] = strings.NewReplacer(".", "", " ", "").Replace(n)
		}
	},
	rules: []penalty{
		{failed: notMatching(FieldDocumentNumber, dniNumberPattern), message: "Número de documento no válido o no detectado", cost: 0.3},
		{failed: missing(FieldFullName), message: "Nombre completo no detectado", cost: 0.2},
		{failed: notMatching(FieldBirthDate, ocrDatePattern), message: "Fecha de nacimiento no válida", cost: 0.2},
	},
}

var ansesExtractor = extractor{
	name:         "anses_negative",
	successAbove: 0.6,
	rules: []penalty{
		{failed: missing(FieldCUIL), message: "CUIL no detectado", cost: 0.3},
		{failed: missing(FieldPeriod), message: "Periodo no detectado", cost: 0.2},
		{failed: missing(FieldIsNegative), message: "No se pudo determinar si es negativa", cost: 0.2},
	},
}

var marriageExtractor = extractor{
	name:         "marriage_certificate",
	successAbove: 0.7,
	rules: []penalty{
		{failed: notMatching(FieldMarriageDate, ocrDatePattern), message: "Fecha de matrimonio no válida", cost: 0.4},
		{
			failed: func(f map[string]string) bool {
				return f[FieldSpouse1] == "" || f[FieldSpouse2] == ""
			},
			message: "Nombres de cónyuges incompletos",
			cost:    0.4,
		},
		{failed: missing(FieldMarriagePlace), message: "Lugar de matrimonio no detectado", cost: 0.1},
	},
}
