package document

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/config"
	"github.com/defensoria-civil/divorcios/llm"
	"github.com/defensoria-civil/divorcios/storage"
)

// Outcome 文件处理结果
type Outcome string

const (
	OutcomeClassified    Outcome = "classified"
	OutcomeUnclassified  Outcome = "unclassified"
	OutcomeLowConfidence Outcome = "low_confidence"
	OutcomeTooLarge      Outcome = "too_large"
)

// 固定回复
const (
	MsgUnprocessable = "Recibimos tu archivo, pero no pudimos procesarlo automáticamente. Lo guardamos para que lo revise un/a operador/a."
	MsgLowConfidence = "No pudimos leer bien el documento. ¿Podés enviar una foto más clara, con buena luz y sin reflejos?"
	msgTooLarge      = "El archivo es demasiado grande. Enviá una foto o un PDF de menos de %d MB."
)

// Media 入站媒体
type Media struct {
	Data     []byte
	MIMEType string
}

// Config 文件处理配置
type Config struct {
	MinConfidence float64
	MaxBytes      int64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{MinConfidence: 0.6, MaxBytes: 15 << 20}
}

// ConfigFrom 由全局配置构建
func ConfigFrom(c config.DocumentsConfig) Config {
	cfg := DefaultConfig()
	if c.MinConfidence > 0 {
		cfg.MinConfidence = c.MinConfidence
	}
	if c.MaxBytes > 0 {
		cfg.MaxBytes = c.MaxBytes
	}
	return cfg
}

// Analysis OCR 阶段的结果，不涉及数据库
type Analysis struct {
	Outcome    Outcome
	Category   storage.DocumentCategory
	MIMEType   string
	Size       int64
	Fields     map[string]string
	Text       string
	Confidence float64
	// 仅 unclassified 时保留原始字节
	Raw []byte
}

// Processed 入库后的结果
type Processed struct {
	*Analysis
	Reply string
	// 所有必需文件均已收到
	Complete    bool
	Outstanding []storage.DocumentCategory
}

// Observer 接收每次分类结果（metrics）
type Observer func(category storage.DocumentCategory, outcome Outcome)

// Service 文件分类子流程
type Service struct {
	ocr      OCRProvider
	raster   Rasterizer
	cfg      Config
	logger   *zap.Logger
	observer Observer
}

// NewService 创建文件服务；raster 为 nil 时非图片文件一律按 unclassified 保存
func NewService(ocr OCRProvider, raster Rasterizer, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ocr:    ocr,
		raster: raster,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "documents")),
	}
}

// OnClassified 注册观察者
func (s *Service) OnClassified(fn Observer) { s.observer = fn }

type candidate struct {
	category storage.DocumentCategory
	run      func(context.Context, llm.Image) (*Result, error)
}

// Analyze 对媒体做栅格化、结构化提取与关键词分类。have 为案件已收到的类别。
func (s *Service) Analyze(ctx context.Context, have map[storage.DocumentCategory]bool, m Media) *Analysis {
	mime := DetectMIME(m.MIMEType, m.Data)
	a := &Analysis{MIMEType: mime, Size: int64(len(m.Data)), Category: storage.DocUnclassified}

	if s.cfg.MaxBytes > 0 && a.Size > s.cfg.MaxBytes {
		a.Outcome = OutcomeTooLarge
		return a
	}

	img := llm.Image{MIMEType: mime, Data: m.Data}
	if !IsImage(mime) {
		page, err := s.rasterize(ctx, m.Data)
		if err != nil {
			s.logger.Warn("rasterize failed, storing raw document",
				zap.String("mime", mime),
				zap.Error(err))
			a.Outcome = OutcomeUnclassified
			a.Raw = m.Data
			return a
		}
		img = llm.Image{MIMEType: "image/png", Data: page}
	}

	for _, c := range s.candidates(have) {
		res, err := c.run(ctx, img)
		if err != nil {
			s.logger.Warn("structured extraction failed",
				zap.String("category", string(c.category)),
				zap.Error(err))
			continue
		}
		if res.Success && res.Confidence >= s.cfg.MinConfidence {
			a.Outcome = OutcomeClassified
			a.Category = c.category
			a.Fields = res.Fields
			a.Confidence = res.Confidence
			a.Text = res.RawText
			return a
		}
		s.logger.Debug("structured extraction below threshold",
			zap.String("category", string(c.category)),
			zap.Float64("confidence", res.Confidence),
			zap.Strings("errors", res.Errors))
	}

	text, err := s.ocr.ExtractGenericDocument(ctx, img)
	if err != nil {
		s.logger.Warn("generic ocr failed", zap.Error(err))
	}
	a.Text = text
	if cat, ok := Classify(text); ok {
		a.Outcome = OutcomeClassified
		a.Category = cat
		return a
	}
	a.Outcome = OutcomeLowConfidence
	a.Raw = m.Data
	return a
}

func (s *Service) rasterize(ctx context.Context, data []byte) ([]byte, error) {
	if s.raster == nil {
		return nil, conversionFailed(fmt.Errorf("no rasterizer configured"))
	}
	return s.raster.FirstPage(ctx, data)
}

// candidates 按 DNI → ANSES → 结婚证 的顺序，只保留尚未收到的类别
func (s *Service) candidates(have map[storage.DocumentCategory]bool) []candidate {
	all := []candidate{
		{storage.DocDNI, s.ocr.ExtractIdentityDocument},
		{storage.DocANSESNegative, s.ocr.ExtractBenefitCertificate},
		{storage.DocMarriageCertificate, s.ocr.ExtractMarriageCertificate},
	}
	out := all[:0]
	for _, c := range all {
		if !have[c.category] {
			out = append(out, c)
		}
	}
	return out
}

// Record 保存文件记录并把提取字段回写到 c（由调用方持久化 c），返回给用户的回复。
// tx 通常是本轮消息的事务。
func (s *Service) Record(ctx context.Context, tx *storage.Store, c *storage.Case, a *Analysis) (*Processed, error) {
	p := &Processed{Analysis: a}
	if s.observer != nil {
		s.observer(a.Category, a.Outcome)
	}

	if a.Outcome == OutcomeTooLarge {
		p.Reply = fmt.Sprintf(msgTooLarge, s.cfg.MaxBytes>>20)
		return p, nil
	}

	doc := &storage.Document{
		CaseID:        c.ID,
		Category:      a.Category,
		MimeType:      a.MIMEType,
		SizeBytes:     a.Size,
		Content:       a.Raw,
		ExtractedText: a.Text,
		Fields:        a.Fields,
		Confidence:    a.Confidence,
	}
	if err := tx.Documents.Add(ctx, doc); err != nil {
		return nil, err
	}

	switch a.Outcome {
	case OutcomeUnclassified:
		p.Reply = MsgUnprocessable
		return p, nil
	case OutcomeLowConfidence:
		p.Reply = MsgLowConfidence
		return p, nil
	}

	note := s.applyFields(c, a)

	have, err := tx.Documents.Categories(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	p.Outstanding = Outstanding(c, have)
	p.Complete = len(p.Outstanding) == 0
	p.Reply = StatusMessage(a.Category, p.Outstanding)
	if note != "" {
		p.Reply = note + "\n\n" + p.Reply
	}

	s.logger.Info("document classified",
		zap.Uint("case_id", c.ID),
		zap.String("category", string(a.Category)),
		zap.Float64("confidence", a.Confidence),
		zap.Int("outstanding", len(p.Outstanding)))
	return p, nil
}

// Process 在一个事务中分析并保存文件，同时持久化案件更新
func (s *Service) Process(ctx context.Context, store *storage.Store, c *storage.Case, m Media) (*Processed, error) {
	have, err := store.Documents.Categories(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	a := s.Analyze(ctx, have, m)

	var out *Processed
	err = store.InTx(ctx, func(tx *storage.Store) error {
		p, err := s.Record(ctx, tx, c, a)
		if err != nil {
			return err
		}
		out = p
		return tx.Cases.Update(ctx, c)
	})
	return out, err
}

// applyFields 回写 DNI 号码与结婚日期/地点；DNI 不一致时返回提示
func (s *Service) applyFields(c *storage.Case, a *Analysis) string {
	switch a.Category {
	case storage.DocDNI:
		number := a.Fields[FieldDocumentNumber]
		if number == "" {
			return ""
		}
		if c.DNI == "" {
			c.DNI = number
			return ""
		}
		if c.DNI != number {
			s.logger.Warn("dni mismatch between document and declared data",
				zap.Uint("case_id", c.ID))
			return fmt.Sprintf("⚠️ El número del DNI de la foto (%s) no coincide con el que nos indicaste (%s). Si hay un error escribí \"corregir dni\".", number, c.DNI)
		}
	case storage.DocMarriageCertificate:
		if d, ok := isoDate(a.Fields[FieldMarriageDate]); ok {
			c.MarriageDate = d
		}
		if place := a.Fields[FieldMarriagePlace]; place != "" {
			c.MarriagePlace = place
		}
	}
	return ""
}

// isoDate 把 DD/MM/AAAA 转为 YYYY-MM-DD
func isoDate(s string) (string, bool) {
	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}
