package document

import (
	"fmt"
	"strings"

	"github.com/defensoria-civil/divorcios/storage"
)

// 展示顺序
var requiredOrder = []storage.DocumentCategory{
	storage.DocDNI,
	storage.DocMarriageCertificate,
	storage.DocANSESNegative,
	storage.DocIncomeProof,
	storage.DocBirthCertificate,
}

var categoryLabels = map[storage.DocumentCategory]string{
	storage.DocDNI:                 "DNI (foto del frente)",
	storage.DocMarriageCertificate: "Acta de matrimonio",
	storage.DocANSESNegative:       "Certificación negativa de ANSES",
	storage.DocIncomeProof:         "Recibo de sueldo o comprobante de ingresos",
	storage.DocBirthCertificate:    "Partida de nacimiento de tus hijos/as",
	storage.DocUnclassified:        "documento",
}

// Label 返回类别的西语名称
func Label(cat storage.DocumentCategory) string {
	if l, ok := categoryLabels[cat]; ok {
		return l
	}
	return string(cat)
}

// Required 返回案件需要提交的文件类别
func Required(c *storage.Case) []storage.DocumentCategory {
	need := map[storage.DocumentCategory]bool{
		storage.DocDNI:                 true,
		storage.DocMarriageCertificate: true,
	}
	switch c.Employment {
	case storage.EmploymentUnemployed, storage.EmploymentInformal:
		need[storage.DocANSESNegative] = true
	case storage.EmploymentEmployed, storage.EmploymentRetired:
		need[storage.DocIncomeProof] = true
	}
	if c.EligiblePreliminary {
		need[storage.DocANSESNegative] = true
	}
	if c.HasDependents {
		need[storage.DocBirthCertificate] = true
	}

	out := make([]storage.DocumentCategory, 0, len(need))
	for _, cat := range requiredOrder {
		if need[cat] {
			out = append(out, cat)
		}
	}
	return out
}

// Outstanding 返回尚未收到的必需文件
func Outstanding(c *storage.Case, have map[storage.DocumentCategory]bool) []storage.DocumentCategory {
	var out []storage.DocumentCategory
	for _, cat := range Required(c) {
		if !have[cat] {
			out = append(out, cat)
		}
	}
	return out
}

// RequiredListMessage 进入 documentation 阶段时的文件清单
func RequiredListMessage(c *storage.Case) string {
	var b strings.Builder
	b.WriteString("📄 Para avanzar con tu trámite necesitamos la siguiente documentación (podés mandar foto o PDF):\n")
	for _, cat := range Required(c) {
		fmt.Fprintf(&b, "- %s\n", Label(cat))
	}
	b.WriteString("\nMandalos de a uno por este chat. Si querés corregir algún dato escribí \"corregir\" seguido del campo (nombre, dni, fecha o domicilio).")
	return b.String()
}

// StatusMessage 确认收到某类文件并列出仍缺的文件
func StatusMessage(received storage.DocumentCategory, outstanding []storage.DocumentCategory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Recibimos tu %s.", Label(received))
	if len(outstanding) == 0 {
		b.WriteString("\n\n¡Listo! Ya tenemos toda la documentación. Un/a operador/a de la Defensoría va a revisar tu caso y se va a comunicar con vos.")
		return b.String()
	}
	b.WriteString("\n\nTodavía falta:\n")
	for i, cat := range outstanding {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s", Label(cat))
	}
	return b.String()
}
