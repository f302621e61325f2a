package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/psds-microservice/field-service/internal/assistant"
	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/kafka"
	"github.com/psds-microservice/field-service/internal/knowledge"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/psds-microservice/field-service/internal/service"
	"github.com/psds-microservice/field-service/internal/session"
)

const eventTimeout = 5 * time.Second

type Suggester interface {
	Suggest(ctx context.Context, t *model.Ticket) (string, error)
}

type SimilarFinder interface {
	FindSimilar(ctx context.Context, target *model.Ticket, history []model.Ticket, maxResults int) []model.SimilarTicket
}

type ReportGenerator interface {
	Generate(ctx context.Context, t *model.Ticket, conversation []model.Message, frags []knowledge.Fragment) assistant.ReportResult
}

type FaultClassifier interface {
	Classify(ctx context.Context, r model.TelemetryReading) (*model.FaultClassification, error)
}

// Deps — зависимости Gateway (D: зависимость от абстракций).
type Deps struct {
	Tickets    service.TicketServicer
	Sessions   session.Store
	Knowledge  knowledge.Retriever
	Suggester  Suggester
	Matcher    SimilarFinder
	Reporter   ReportGenerator
	Classifier FaultClassifier
	Producer   kafka.TicketEventProducer
}

type Options struct {
	SimilarMaxResults int
	ReportTopK        int
}

// Gateway — точка политики над хранилищем тикетов и LLM-помощниками:
// решает, что делать при сбое советчика, и разыменовывает ссылки от модели.
type Gateway struct {
	Deps
	opts  Options
	newID func() string

	events sync.WaitGroup
}

func New(deps Deps, opts Options) *Gateway {
	if opts.SimilarMaxResults <= 0 {
		opts.SimilarMaxResults = 3
	}
	if opts.ReportTopK <= 0 {
		opts.ReportTopK = 4
	}
	return &Gateway{Deps: deps, opts: opts, newID: shortuuid.New}
}

// SimilarMatch — найденный тикет вместе с оценкой модели.
type SimilarMatch struct {
	model.Ticket
	SimilarityScore float64 `json:"similarity_score"`
	Reason          string  `json:"reason"`
}

// TelemetryOutcome — результат анализа одного снимка телеметрии.
type TelemetryOutcome struct {
	ElevatorID     string                     `json:"elevator_id"`
	Classification *model.FaultClassification `json:"classification,omitempty"`
	Ticket         *model.Ticket              `json:"ticket,omitempty"`
	Error          string                     `json:"error,omitempty"`
}

func (g *Gateway) ListPending(ctx context.Context) ([]model.Ticket, error) {
	items, _, err := g.Tickets.List(ctx, service.ListFilter{Status: string(model.TicketStatusPending)})
	return items, err
}

func (g *Gateway) List(ctx context.Context, f service.ListFilter) ([]model.Ticket, int64, error) {
	return g.Tickets.List(ctx, f)
}

func (g *Gateway) Get(ctx context.Context, id string) (*model.Ticket, error) {
	return g.Tickets.GetByID(ctx, id)
}

// Create сначала запрашивает совет, затем сохраняет тикет. Сбой советчика
// не мешает созданию: тикет сохраняется без ai_suggestion.
func (g *Gateway) Create(ctx context.Context, in *model.Ticket) (*model.Ticket, error) {
	t := in.Clone()
	if strings.TrimSpace(t.ID) == "" {
		t.ID = g.newID()
	}
	t.Status = model.TicketStatusPending
	t.CloseTime = nil
	t.Solution = nil
	t.Result = nil
	t.AISuggestion = nil
	if t.Images == nil {
		t.Images = []string{}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if g.Suggester != nil {
		if s, err := g.Suggester.Suggest(ctx, t.Clone()); err != nil {
			slog.Warn("gateway: suggestion skipped", "ticket_id", t.ID, "error", err)
		} else {
			t.AISuggestion = &s
		}
	}
	created, err := g.Tickets.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	slog.Info("ticket created", "ticket_id", created.ID, "elevator_id", created.ElevatorID, "with_suggestion", created.AISuggestion != nil)
	g.emit(ctx, kafka.EventTicketCreated, created)
	return created, nil
}

func (g *Gateway) Update(ctx context.Context, id string, u model.TicketUpdate) (*model.Ticket, error) {
	if u.Empty() {
		return nil, errs.Validation("body", "no changes")
	}
	return g.Tickets.Update(ctx, id, u)
}

// Close идемпотентен; событие ticket.closed уходит только при фактическом закрытии.
func (g *Gateway) Close(ctx context.Context, id, solution, result string) (*model.Ticket, error) {
	t, changed, err := g.Tickets.Close(ctx, id, solution, result)
	if err != nil {
		return nil, err
	}
	if changed {
		slog.Info("ticket closed", "ticket_id", t.ID, "result", result)
		g.emit(ctx, kafka.EventTicketClosed, t)
	}
	return t, nil
}

func (g *Gateway) AddImage(ctx context.Context, id, url string) (*model.Ticket, error) {
	return g.Tickets.AddImage(ctx, id, url)
}

// FindSimilar: модель возвращает ссылки, затем каждая ссылка разыменовывается
// через хранилище. Тикеты, удалённые между шагами, пропускаются.
func (g *Gateway) FindSimilar(ctx context.Context, id string) ([]SimilarMatch, error) {
	target, err := g.Tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	all, _, err := g.Tickets.List(ctx, service.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := make([]model.Ticket, 0, len(all))
	for _, t := range all {
		if t.ID != target.ID {
			history = append(history, t)
		}
	}
	refs := g.Matcher.FindSimilar(ctx, target, history, g.opts.SimilarMaxResults)
	out := make([]SimilarMatch, 0, len(refs))
	for _, r := range refs {
		t, err := g.Tickets.GetByID(ctx, r.TicketID)
		if err != nil {
			slog.Warn("similar: dereference failed", "ticket_id", r.TicketID, "error", err)
			continue
		}
		out = append(out, SimilarMatch{Ticket: *t, SimilarityScore: r.SimilarityScore, Reason: r.Reason})
	}
	return out, nil
}

// Report собирает контекст (тикет, история сессии, выдержки руководства) и
// генерирует отчёт. Ошибка возвращается только если тикет не найден или
// недоступно хранилище; сбой модели приходит в ReportResult.Error.
func (g *Gateway) Report(ctx context.Context, ticketID, sessionID string) (assistant.ReportResult, error) {
	t, err := g.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return assistant.ReportResult{}, err
	}
	var convo []model.Message
	if sessionID != "" {
		if convo, err = g.Sessions.History(ctx, sessionID); err != nil {
			return assistant.ReportResult{}, err
		}
	}
	var frags []knowledge.Fragment
	if g.Knowledge != nil {
		frags, err = g.Knowledge.Retrieve(ctx, t.Description, g.opts.ReportTopK)
		if err != nil {
			slog.Warn("report: manual retrieval failed, continuing without excerpts", "ticket_id", t.ID, "error", err)
			frags = nil
		}
	}
	return g.Reporter.Generate(ctx, t, convo, frags), nil
}

// AnalyzeTelemetry классифицирует каждый снимок; при неисправности создаёт тикет
// с приоритетом, равным серьёзности. Ошибки по отдельным снимкам не прерывают пакет.
func (g *Gateway) AnalyzeTelemetry(ctx context.Context, readings []model.TelemetryReading) ([]TelemetryOutcome, error) {
	if len(readings) == 0 {
		return nil, errs.Validation("readings", "is empty")
	}
	out := make([]TelemetryOutcome, 0, len(readings))
	for _, r := range readings {
		res := TelemetryOutcome{ElevatorID: r.ElevatorID}
		if strings.TrimSpace(r.ElevatorID) == "" {
			res.Error = "elevator_id is required"
			out = append(out, res)
			continue
		}
		c, err := g.Classifier.Classify(ctx, r)
		if err != nil {
			slog.Warn("telemetry: classification failed", "elevator_id", r.ElevatorID, "error", err)
			res.Error = err.Error()
			out = append(out, res)
			continue
		}
		res.Classification = c
		if c.HasFault() {
			t, err := g.Create(ctx, faultTicket(r, c))
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Ticket = t
				g.emit(ctx, kafka.EventFaultDetected, t)
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func faultTicket(r model.TelemetryReading, c *model.FaultClassification) *model.Ticket {
	priority := model.TicketPriority(c.Severity)
	switch priority {
	case model.TicketPriorityHigh, model.TicketPriorityMedium, model.TicketPriorityLow:
	default:
		priority = model.TicketPriorityMedium
	}
	location := r.Location
	if location == "" {
		location = "unknown"
	}
	desc := model.FaultName(c.FaultCode)
	if c.FaultReason != "" {
		desc += ": " + c.FaultReason
	}
	return &model.Ticket{
		ElevatorID:  r.ElevatorID,
		Location:    location,
		Description: desc,
		Priority:    priority,
	}
}

// emit отправляет событие в фоне: запрос может завершиться раньше, но у события свой таймаут.
func (g *Gateway) emit(ctx context.Context, event string, t *model.Ticket) {
	if g.Producer == nil {
		return
	}
	snapshot := t.Clone()
	g.events.Add(1)
	go func() {
		defer g.events.Done()
		eventCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
		defer cancel()
		g.Producer.ProduceTicketEvent(eventCtx, event, snapshot)
	}()
}

// Wait дожидается отправки фоновых событий (при остановке сервиса).
func (g *Gateway) Wait() {
	g.events.Wait()
}
