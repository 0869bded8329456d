package document

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/defensoria-civil/divorcios/storage"
)

// keywordRule 类别与其关键词；关键词已去重音并小写
type keywordRule struct {
	category storage.DocumentCategory
	keywords []string
}

// 顺序即优先级：先匹配到的类别胜出
var vocabulary = []keywordRule{
	{storage.DocANSESNegative, []string{"anses", "certificacion negativa", "no registra"}},
	{storage.DocMarriageCertificate, []string{"acta de matrimonio", "matrimonio", "contrayentes", "conyuge"}},
	{storage.DocDNI, []string{"documento nacional de identidad", "registro nacional de las personas", "renaper"}},
	{storage.DocBirthCertificate, []string{"acta de nacimiento", "partida de nacimiento", "nacido", "nacida"}},
	{storage.DocIncomeProof, []string{"recibo de sueldo", "recibo de haberes", "haberes", "liquidacion", "remuneracion", "monotributo"}},
	// 出生证明等文件也常出现 "dni"，放在最后
	{storage.DocDNI, []string{"dni"}},
}

// Classify 按关键词为 OCR 文本分类；无匹配时返回 DocUnclassified 与 false
func Classify(text string) (storage.DocumentCategory, bool) {
	folded := Fold(text)
	if folded == "" {
		return storage.DocUnclassified, false
	}
	for _, rule := range vocabulary {
		for _, kw := range rule.keywords {
			if strings.Contains(folded, kw) {
				return rule.category, true
			}
		}
	}
	return storage.DocUnclassified, false
}

// Fold 小写并去除重音，用于不区分重音的匹配
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
