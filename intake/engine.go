package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/defensoria-civil/divorcios/config"
	"github.com/defensoria-civil/divorcios/document"
	"github.com/defensoria-civil/divorcios/guardrails"
	"github.com/defensoria-civil/divorcios/internal/dedup"
	"github.com/defensoria-civil/divorcios/llm"
	"github.com/defensoria-civil/divorcios/memory"
	"github.com/defensoria-civil/divorcios/storage"
	"github.com/defensoria-civil/divorcios/types"
)

const instrumentationName = "github.com/defensoria-civil/divorcios/intake"

// Outcome 本轮处理结果
type Outcome string

const (
	OutcomeAdvanced          Outcome = "advanced"
	OutcomeValidationFailed  Outcome = "validation_failed"
	OutcomeCorrection        Outcome = "correction"
	OutcomeAnswered          Outcome = "answered"
	OutcomeProviderExhausted Outcome = "provider_exhausted"
	OutcomeHallucination     Outcome = "hallucination_rejected"
	OutcomeInjection         Outcome = "injection_blocked"
	OutcomeDocument          Outcome = "document"
	OutcomeDocumentRejected  Outcome = "document_low_confidence"
	OutcomeDuplicate         Outcome = "duplicate"
	OutcomeIgnored           Outcome = "ignored"
)

// Inbound 一条入站消息
type Inbound struct {
	MessageID string
	Identity  string
	Text      string
	Media     *document.Media
}

// Reply 引擎给出的回复；ShouldSend=false 时不发送
type Reply struct {
	Text       string
	ShouldSend bool
	Outcome    Outcome
}

// TurnEvent 每轮结束时发给观察者
type TurnEvent struct {
	Phase    string
	Outcome  Outcome
	Duration time.Duration
}

// Observer 接收每轮结果（metrics）
type Observer func(TurnEvent)

// Generator 是引擎使用的路由器能力
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, task llm.TaskType, opts ...llm.GenerateOption) (string, error)
}

// Config 状态机配置
type Config struct {
	AllowedJurisdictions []string
	MinAge               int
	MaxDependents        int
	IncomeThreshold      int64
	IncomePerDependent   int64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		AllowedJurisdictions: []string{"San Rafael", "Mendoza"},
		MinAge:               18,
		MaxDependents:        10,
		IncomeThreshold:      800000,
		IncomePerDependent:   150000,
	}
}

// ConfigFrom 由全局配置构建
func ConfigFrom(c config.IntakeConfig) Config {
	cfg := DefaultConfig()
	if len(c.AllowedJurisdictions) > 0 {
		cfg.AllowedJurisdictions = c.AllowedJurisdictions
	}
	if c.MinAge > 0 {
		cfg.MinAge = c.MinAge
	}
	if c.MaxDependents > 0 {
		cfg.MaxDependents = c.MaxDependents
	}
	if c.IncomeThreshold > 0 {
		cfg.IncomeThreshold = c.IncomeThreshold
	}
	if c.IncomePerDependent > 0 {
		cfg.IncomePerDependent = c.IncomePerDependent
	}
	return cfg
}

// Deps 引擎依赖；LLM、Documents、Dedup 可为 nil
type Deps struct {
	Store      *storage.Store
	Memory     *memory.Store
	Guardrails *guardrails.Pipeline
	LLM        Generator
	Documents  *document.Service
	Dedup      dedup.Store
	Locks      *dedup.KeyedMutex
}

// Engine 对话状态机
type Engine struct {
	store     *storage.Store
	memory    *memory.Store
	guards    *guardrails.Pipeline
	llm       Generator
	docs      *document.Service
	dedup     dedup.Store
	locks     *dedup.KeyedMutex
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
	observers []Observer
	now       func() time.Time
}

// NewEngine 创建引擎
func NewEngine(deps Deps, cfg Config, logger *zap.Logger) (*Engine, error) {
	if deps.Store == nil || deps.Memory == nil || deps.Guardrails == nil {
		return nil, errors.New("intake: store, memory and guardrails are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Locks == nil {
		deps.Locks = dedup.NewKeyedMutex()
	}
	if cfg.MaxDependents <= 0 {
		cfg.MaxDependents = DefaultConfig().MaxDependents
	}
	return &Engine{
		store:  deps.Store,
		memory: deps.Memory,
		guards: deps.Guardrails,
		llm:    deps.LLM,
		docs:   deps.Documents,
		dedup:  deps.Dedup,
		locks:  deps.Locks,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "intake")),
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}, nil
}

// OnTurn 注册观察者
func (e *Engine) OnTurn(fn Observer) {
	e.observers = append(e.observers, fn)
}

// HandleInbound 处理一条入站消息。只有持久化失败会作为错误返回。
func (e *Engine) HandleInbound(ctx context.Context, in Inbound) (Reply, error) {
	start := time.Now()
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Media == nil {
		return Reply{Outcome: OutcomeIgnored}, nil
	}

	ctx, span := e.tracer.Start(ctx, "intake.handle_inbound",
		trace.WithAttributes(attribute.Bool("intake.has_media", in.Media != nil)))
	defer span.End()

	if e.dedup != nil && in.MessageID != "" {
		first, err := e.dedup.Claim(ctx, in.MessageID)
		if err != nil {
			// 去重存储不可用时宁可重复处理
			e.logger.Warn("dedup claim failed, processing anyway",
				zap.String("message_id", in.MessageID),
				zap.Error(err))
		} else if !first {
			e.logger.Debug("duplicate message ignored", zap.String("message_id", in.MessageID))
			e.emit(TurnEvent{Outcome: OutcomeDuplicate, Duration: time.Since(start)})
			span.SetAttributes(attribute.String("intake.outcome", string(OutcomeDuplicate)))
			return Reply{Text: DuplicateReply, Outcome: OutcomeDuplicate}, nil
		}
	}

	unlock := e.locks.Lock(in.Identity)
	defer unlock()

	reply, phase, err := e.handle(ctx, in, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("turn failed",
			zap.String("message_id", in.MessageID),
			zap.Error(err))
		if e.dedup != nil && in.MessageID != "" {
			// 允许重投后重新处理
			if rerr := e.dedup.Release(context.WithoutCancel(ctx), in.MessageID); rerr != nil {
				e.logger.Warn("dedup release failed", zap.Error(rerr))
			}
		}
		return Reply{}, err
	}

	span.SetAttributes(
		attribute.String("intake.phase", phase),
		attribute.String("intake.outcome", string(reply.Outcome)))
	e.emit(TurnEvent{Phase: phase, Outcome: reply.Outcome, Duration: time.Since(start)})
	return reply, nil
}

func (e *Engine) emit(ev TurnEvent) {
	for _, o := range e.observers {
		o(ev)
	}
}

// handle 返回回复与本轮结束后的阶段名
func (e *Engine) handle(ctx context.Context, in Inbound, text string) (Reply, string, error) {
	c, created, err := e.store.Cases.GetOrCreateByIdentity(ctx, in.Identity, PhaseStart.String())
	if err != nil {
		return Reply{}, "", err
	}
	if created {
		e.logger.Info("case created", zap.Uint("case_id", c.ID))
	}

	if text != "" {
		if v := e.guards.CheckInput(text); !v.Allowed {
			e.logger.Warn("prompt injection blocked",
				zap.Uint("case_id", c.ID),
				zap.Strings("patterns", v.Rules))
			err := e.store.InTx(ctx, func(tx *storage.Store) error {
				if _, err := tx.Turns.Append(ctx, c.ID, storage.RoleUser, text); err != nil {
					return err
				}
				_, err := tx.Turns.Append(ctx, c.ID, storage.RoleAssistant, v.Text)
				return err
			})
			if err != nil {
				return Reply{}, "", err
			}
			return Reply{Text: v.Text, ShouldSend: true, Outcome: OutcomeInjection}, c.Phase, nil
		}
	}

	if in.Media != nil && e.docs != nil {
		return e.handleDocument(ctx, c, text, *in.Media)
	}
	if text == "" {
		// 没有文件服务时无法处理纯媒体消息
		return Reply{Outcome: OutcomeIgnored}, c.Phase, nil
	}
	return e.handleText(ctx, c, text)
}

// =============================================================================
// 📝 文本轮次
// =============================================================================

func (e *Engine) handleText(ctx context.Context, c *storage.Case, text string) (Reply, string, error) {
	phase, known := ParsePhase(c.Phase)
	if !known {
		e.logger.Warn("case has unknown phase, answering free-form",
			zap.Uint("case_id", c.ID),
			zap.String("phase", c.Phase))
	}

	if known && phase.Terminal() {
		if target, isCmd, ok := parseCorrection(text); isCmd {
			return e.startCorrection(ctx, c, phase, target, ok, text)
		}
	}

	var h handler
	if known {
		h = handlers[phase]
	}
	if h == nil {
		return e.freeForm(ctx, c, text)
	}

	work := cloneCase(c)
	t := &turn{e: e, c: work, text: text, now: e.now()}
	next, err := h(t)
	if err != nil {
		var verr *types.Error
		if !errors.As(err, &verr) || verr.Code != types.ErrValidationFailed {
			return Reply{}, "", err
		}
		e.logger.Debug("validation failed",
			zap.Uint("case_id", c.ID),
			zap.String("phase", c.Phase))
		reply := Reply{Text: verr.Message, ShouldSend: true, Outcome: OutcomeValidationFailed}
		return reply, c.Phase, e.persist(ctx, c.ID, nil, text, reply.Text, memory.Episode{})
	}

	reply := Reply{ShouldSend: true, Outcome: OutcomeAdvanced}
	var episodic memory.Episode

	switch {
	case c.ReturnPhase != "":
		work.Phase = c.ReturnPhase
		work.ReturnPhase = ""
		reply.Outcome = OutcomeCorrection
		reply.Text = msgCorrected
		if work.Phase == PhaseDocumentation.String() {
			reply.Text = msgCorrectedPendingDocs
		}
	case next == PhaseDocumentation:
		work.Phase = next.String()
		EvaluateEligibility(work, e.cfg.IncomeThreshold, e.cfg.IncomePerDependent).Apply(work)
		// 摘要与向量化都在事务之外
		episodic = e.memory.PrepareEpisodic(ctx, e.summarize(ctx, work))
		reply.Text = e.documentationMessage(work)
	default:
		work.Phase = next.String()
		reply.Text = t.ack + e.promptFor(next, work)
	}

	if err := e.persist(ctx, c.ID, work, text, reply.Text, episodic); err != nil {
		return Reply{}, "", err
	}
	e.logger.Info("phase advanced",
		zap.Uint("case_id", c.ID),
		zap.String("from", c.Phase),
		zap.String("to", work.Phase))
	return reply, work.Phase, nil
}

func (e *Engine) documentationMessage(c *storage.Case) string {
	eligibility := msgNotEligible
	if c.EligiblePreliminary {
		eligibility = msgEligible
	}
	return msgDataComplete + "\n" + eligibility + "\n\n" + document.RequiredListMessage(c)
}

// parseCorrection 识别 "corregir <campo>"：isCmd 表示是纠错命令，ok 表示字段可识别
func parseCorrection(text string) (target Phase, isCmd, ok bool) {
	words := strings.Fields(document.Fold(text))
	if len(words) == 0 || words[0] != "corregir" {
		return 0, false, false
	}
	for _, w := range words[1:] {
		w = strings.Trim(w, ".,;:!?¿¡\"'")
		if p, found := correctionTargets[w]; found {
			return p, true, true
		}
	}
	return 0, true, false
}

func (e *Engine) startCorrection(ctx context.Context, c *storage.Case, from, target Phase, ok bool, text string) (Reply, string, error) {
	if !ok {
		reply := Reply{Text: msgUnknownCorrection, ShouldSend: true, Outcome: OutcomeValidationFailed}
		return reply, c.Phase, e.persist(ctx, c.ID, nil, text, reply.Text, memory.Episode{})
	}
	work := cloneCase(c)
	work.ReturnPhase = from.String()
	work.Phase = target.String()
	reply := Reply{Text: e.promptFor(target, work), ShouldSend: true, Outcome: OutcomeCorrection}
	if err := e.persist(ctx, c.ID, work, text, reply.Text, memory.Episode{}); err != nil {
		return Reply{}, "", err
	}
	e.logger.Info("correction started",
		zap.Uint("case_id", c.ID),
		zap.String("target", work.Phase))
	return reply, work.Phase, nil
}

// =============================================================================
// 💬 自由问答
// =============================================================================

func (e *Engine) freeForm(ctx context.Context, c *storage.Case, text string) (Reply, string, error) {
	grounding, err := e.memory.BuildContext(ctx, c.ID, text)
	if err != nil {
		return Reply{}, "", err
	}

	reply := Reply{ShouldSend: true, Outcome: OutcomeAnswered}
	answer, err := e.generate(ctx, []llm.Message{
		llm.SystemMessage(fmt.Sprintf(freeFormSystemPrompt, grounding)),
		llm.UserMessage(text),
	})
	if err != nil {
		e.logger.Warn("free-form generation failed",
			zap.Uint("case_id", c.ID),
			zap.Error(err))
		reply.Text = guardrails.ApologyMessage
		reply.Outcome = OutcomeProviderExhausted
	} else {
		v := e.guards.CheckOutput(ctx, answer, grounding, text)
		reply.Text = v.Text
		if !v.Allowed {
			e.logger.Warn("reply rejected by hallucination check",
				zap.Uint("case_id", c.ID),
				zap.Float64("score", v.Score),
				zap.Strings("rules", v.Rules))
			reply.Outcome = OutcomeHallucination
		}
	}

	return reply, c.Phase, e.persist(ctx, c.ID, nil, text, reply.Text, memory.Episode{})
}

func (e *Engine) generate(ctx context.Context, msgs []llm.Message) (string, error) {
	if e.llm == nil {
		return "", types.NewError(types.ErrProviderExhausted, "no provider configured")
	}
	return e.llm.Generate(ctx, msgs, llm.TaskChat)
}

// =============================================================================
// 📎 文件轮次
// =============================================================================

func (e *Engine) handleDocument(ctx context.Context, c *storage.Case, text string, m document.Media) (Reply, string, error) {
	have, err := e.store.Documents.Categories(ctx, c.ID)
	if err != nil {
		return Reply{}, "", err
	}
	// OCR 在事务之外执行
	analysis := e.docs.Analyze(ctx, have, m)

	userText := "[documento adjunto]"
	if text != "" {
		userText += " " + text
	}

	work := cloneCase(c)
	reply := Reply{ShouldSend: true, Outcome: OutcomeDocument}
	err = e.store.InTx(ctx, func(tx *storage.Store) error {
		p, err := e.docs.Record(ctx, tx, work, analysis)
		if err != nil {
			return err
		}
		reply.Text = p.Reply
		switch p.Outcome {
		case document.OutcomeLowConfidence, document.OutcomeUnclassified, document.OutcomeTooLarge:
			reply.Outcome = OutcomeDocumentRejected
		}
		if p.Complete && work.Phase == PhaseDocumentation.String() {
			work.Phase = PhaseCompleted.String()
		}
		if phase, ok := ParsePhase(work.Phase); ok && !phase.Terminal() {
			// 收集阶段中途发来的文件：回到当前问题
			reply.Text += "\n\n" + e.promptFor(phase, work)
		}
		return e.persistTx(ctx, tx, c.ID, work, userText, reply.Text)
	})
	if err != nil {
		return Reply{}, "", err
	}
	return reply, work.Phase, nil
}

// =============================================================================
// 💾 持久化
// =============================================================================

// persist 在一个事务中写入本轮对话、记忆与案件；after 为 nil 表示案件不变.
// episodic 的向量已在事务外生成，提交后才加入向量索引.
func (e *Engine) persist(ctx context.Context, caseID uint, after *storage.Case, userText, reply string, episodic memory.Episode) error {
	var saved *storage.MemoryItem
	err := e.store.InTx(ctx, func(tx *storage.Store) error {
		saved = nil
		if err := e.persistTx(ctx, tx, caseID, after, userText, reply); err != nil {
			return err
		}
		if after == nil || episodic.Summary == "" {
			return nil
		}
		item, err := e.memory.WithTx(tx).SaveEpisodic(ctx, caseID, episodic)
		if err != nil {
			return err
		}
		saved = item
		return nil
	})
	if err != nil {
		return err
	}
	if saved != nil {
		e.memory.IndexEpisodic(ctx, saved)
	}
	return nil
}

func (e *Engine) persistTx(ctx context.Context, tx *storage.Store, caseID uint, after *storage.Case, userText, reply string) error {
	if _, err := tx.Turns.Append(ctx, caseID, storage.RoleUser, userText); err != nil {
		return err
	}
	if _, err := tx.Turns.Append(ctx, caseID, storage.RoleAssistant, reply); err != nil {
		return err
	}

	mem := e.memory.WithTx(tx)
	if err := mem.StoreImmediate(ctx, caseID, "Usuario: "+userText); err != nil {
		return err
	}
	if err := mem.StoreImmediate(ctx, caseID, "Asistente: "+reply); err != nil {
		return err
	}

	if after == nil {
		return nil
	}
	if err := tx.Cases.Update(ctx, after); err != nil {
		return err
	}
	return mem.SaveSession(ctx, caseID, SessionFromCase(after))
}

func cloneCase(c *storage.Case) *storage.Case {
	work := *c
	work.Dependents = append([]storage.Dependent(nil), c.Dependents...)
	return &work
}
