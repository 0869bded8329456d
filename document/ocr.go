package document

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/llm"
)

// Result 结构化提取结果
type Result struct {
	Success    bool
	Fields     map[string]string
	Confidence float64
	Errors     []string
	RawText    string
}

// OCRProvider 文档 OCR 能力
type OCRProvider interface {
	ExtractIdentityDocument(ctx context.Context, img llm.Image) (*Result, error)
	ExtractBenefitCertificate(ctx context.Context, img llm.Image) (*Result, error)
	ExtractMarriageCertificate(ctx context.Context, img llm.Image) (*Result, error)
	ExtractGenericDocument(ctx context.Context, img llm.Image) (string, error)
}

// VisionGenerator 是路由器的视觉能力
type VisionGenerator interface {
	GenerateVision(ctx context.Context, prompt string, image llm.Image, opts ...llm.GenerateOption) (string, error)
}

const dniPrompt = `Sos un experto en extraer datos de documentos argentinos.
Analizá esta imagen de DNI argentino y extraé EXACTAMENTE los siguientes datos en formato JSON:

{
  "numero_documento": "string con 7-8 dígitos",
  "nombre_completo": "string con nombre y apellido",
  "fecha_nacimiento": "DD/MM/AAAA",
  "sexo": "M o F",
  "fecha_emision": "DD/MM/AAAA"
}

Reglas importantes:
- Si algún dato NO está visible o legible, usá null
- Formato de fechas SIEMPRE DD/MM/AAAA
- Número de documento sin puntos ni espacios
- Nombre completo en MAYÚSCULAS como aparece en el DNI

Respondé SOLO con el JSON, sin explicaciones adicionales.`

const ansesPrompt = `Sos un experto en documentos administrativos argentinos.
Analizá esta imagen de CERTIFICACIÓN NEGATIVA DE ANSES y extraé los siguientes datos en JSON:

{
  "cuil": "string (formato XX-XXXXXXXX-X)",
  "periodo": "string (ej: Noviembre 2025)",
  "es_negativa": boolean (true si dice "NO REGISTRA" declaraciones juradas/aportes, false si registra algo),
  "fecha_emision": "DD/MM/AAAA"
}

Reglas:
- Buscá el texto "NO REGISTRA" para determinar si es negativa.
- Si dice "REGISTRA", es_negativa = false.
- Extraé el CUIL del titular.

Respondé SOLO con el JSON.`

const marriagePrompt = `Sos un experto en extraer datos de documentos legales argentinos.
Analizá esta imagen de ACTA DE MATRIMONIO argentina y extraé EXACTAMENTE los siguientes datos en formato JSON:

{
  "fecha_matrimonio": "DD/MM/AAAA",
  "lugar_matrimonio": "string (ciudad, provincia)",
  "nombre_conyuge_1": "string",
  "nombre_conyuge_2": "string",
  "registro_civil": "string",
  "numero_acta": "string",
  "tomo": "string",
  "folio": "string"
}

Reglas importantes:
- Si algún dato NO está visible o legible, usá null
- Formato de fechas SIEMPRE DD/MM/AAAA
- Nombres completos como aparecen en el acta
- Incluí todos los datos del registro civil que encuentres

Respondé SOLO con el JSON, sin explicaciones adicionales.`

const genericPrompt = "Extraé TODO el texto visible en esta imagen de documento. Respondé solo con el texto extraído, manteniendo el formato original lo más posible."

// VisionOCR 通过路由器 vision_ocr 任务实现 OCRProvider
type VisionOCR struct {
	gen    VisionGenerator
	logger *zap.Logger
}

// NewVisionOCR 创建基于路由器的 OCR
func NewVisionOCR(gen VisionGenerator, logger *zap.Logger) *VisionOCR {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisionOCR{gen: gen, logger: logger.With(zap.String("component", "vision_ocr"))}
}

// ExtractIdentityDocument 提取 DNI 字段
func (o *VisionOCR) ExtractIdentityDocument(ctx context.Context, img llm.Image) (*Result, error) {
	return o.extract(ctx, img, dniPrompt, dniExtractor)
}

// ExtractBenefitCertificate 提取 ANSES 负面证明字段
func (o *VisionOCR) ExtractBenefitCertificate(ctx context.Context, img llm.Image) (*Result, error) {
	return o.extract(ctx, img, ansesPrompt, ansesExtractor)
}

// ExtractMarriageCertificate 提取结婚证字段
func (o *VisionOCR) ExtractMarriageCertificate(ctx context.Context, img llm.Image) (*Result, error) {
	return o.extract(ctx, img, marriagePrompt, marriageExtractor)
}

// ExtractGenericDocument 返回图片中的全部可见文本
func (o *VisionOCR) ExtractGenericDocument(ctx context.Context, img llm.Image) (string, error) {
	text, err := o.gen.GenerateVision(ctx, genericPrompt, img)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(llm.StripCodeFences(text)), nil
}

func (o *VisionOCR) extract(ctx context.Context, img llm.Image, prompt string, ex extractor) (*Result, error) {
	raw, err := o.gen.GenerateVision(ctx, prompt, img, llm.WithJSONMode())
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if err := llm.DecodeJSONReply(raw, &data); err != nil {
		o.logger.Warn("ocr reply is not valid json",
			zap.String("document", ex.name),
			zap.Error(err))
		return &Result{
			Fields:  map[string]string{},
			Errors:  []string{fmt.Sprintf("respuesta OCR inválida: %v", err)},
			RawText: raw,
		}, nil
	}

	res := ex.evaluate(flatten(data))
	res.RawText = raw
	o.logger.Info("ocr extraction finished",
		zap.String("document", ex.name),
		zap.Float64("confidence", res.Confidence),
		zap.Bool("success", res.Success))
	return res, nil
}

// flatten 把 JSON 值转为字符串；null 与空串视为缺失
func flatten(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(val); s != "" && !strings.EqualFold(s, "null") {
				out[k] = s
			}
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			b, err := json.Marshal(val)
			if err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
