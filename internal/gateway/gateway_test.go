package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/field-service/internal/assistant"
	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/knowledge"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/psds-microservice/field-service/internal/service"
	"github.com/psds-microservice/field-service/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTickets — TicketServicer в памяти.
type memTickets struct {
	mu      sync.Mutex
	tickets map[string]*model.Ticket
	order   []string
	now     time.Time
	listErr error
}

func newMemTickets(ts ...model.Ticket) *memTickets {
	m := &memTickets{tickets: map[string]*model.Ticket{}, now: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
	for i := range ts {
		m.tickets[ts[i].ID] = ts[i].Clone()
		m.order = append(m.order, ts[i].ID)
	}
	return m
}

func (m *memTickets) Create(_ context.Context, t *model.Ticket) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[t.ID]; ok {
		return nil, errs.Validation("id", "exists")
	}
	if t.CreateTime.IsZero() {
		t.CreateTime = m.now
	}
	m.tickets[t.ID] = t.Clone()
	m.order = append(m.order, t.ID)
	return t.Clone(), nil
}

func (m *memTickets) GetByID(_ context.Context, id string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (m *memTickets) List(_ context.Context, f service.ListFilter) ([]model.Ticket, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []model.Ticket
	for _, id := range m.order {
		t, ok := m.tickets[id]
		if ok && (f.Status == "" || string(t.Status) == f.Status) {
			out = append(out, *t.Clone())
		}
	}
	return out, int64(len(out)), nil
}

func (m *memTickets) Update(_ context.Context, id string, u model.TicketUpdate) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	if err := t.Apply(u, m.now); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (m *memTickets) Close(_ context.Context, id, solution, result string) (*model.Ticket, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, false, errs.ErrTicketNotFound
	}
	changed := t.Close(solution, result, m.now)
	return t.Clone(), changed, nil
}

func (m *memTickets) AddImage(_ context.Context, id, url string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	t.AddImage(url)
	return t.Clone(), nil
}

func (m *memTickets) CountByStatus(context.Context) (map[string]int64, error) {
	return nil, nil
}

func (m *memTickets) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tickets, id)
}

type suggesterFunc func(ctx context.Context, t *model.Ticket) (string, error)

func (f suggesterFunc) Suggest(ctx context.Context, t *model.Ticket) (string, error) { return f(ctx, t) }

type matcherFunc func(target *model.Ticket, history []model.Ticket, max int) []model.SimilarTicket

func (f matcherFunc) FindSimilar(_ context.Context, target *model.Ticket, history []model.Ticket, max int) []model.SimilarTicket {
	return f(target, history, max)
}

type reporterStub struct {
	ticket *model.Ticket
	convo  []model.Message
	frags  []knowledge.Fragment
	result assistant.ReportResult
}

func (r *reporterStub) Generate(_ context.Context, t *model.Ticket, convo []model.Message, frags []knowledge.Fragment) assistant.ReportResult {
	r.ticket, r.convo, r.frags = t, convo, frags
	return r.result
}

type retrieverStub struct {
	frags []knowledge.Fragment
	err   error
}

func (r retrieverStub) Retrieve(context.Context, string, int) ([]knowledge.Fragment, error) {
	return r.frags, r.err
}

type classifierFunc func(r model.TelemetryReading) (*model.FaultClassification, error)

func (f classifierFunc) Classify(_ context.Context, r model.TelemetryReading) (*model.FaultClassification, error) {
	return f(r)
}

type recordedEvent struct {
	event    string
	ticketID string
}

type producerStub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *producerStub) ProduceTicketEvent(_ context.Context, event string, t *model.Ticket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{event, t.ID})
}

func (p *producerStub) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event)
	}
	sort.Strings(out)
	return out
}

func pending(id string) model.Ticket {
	return model.Ticket{
		ID: id, ElevatorID: "E1", Location: "B1", Description: "door " + id,
		Status: model.TicketStatusPending, Priority: model.TicketPriorityHigh, Images: []string{},
	}
}

func TestCreateAttachesSuggestion(t *testing.T) {
	store := newMemTickets()
	prod := &producerStub{}
	g := New(Deps{
		Tickets:   store,
		Suggester: suggesterFunc(func(_ context.Context, t *model.Ticket) (string, error) { return "check " + t.Description, nil }),
		Producer:  prod,
	}, Options{})
	g.newID = func() string { return "gen-1" }

	solution := "injected"
	got, err := g.Create(context.Background(), &model.Ticket{
		ElevatorID: "E1", Location: "B1", Description: "door won't close",
		Status: model.TicketStatusClosed, Priority: model.TicketPriorityHigh, Solution: &solution,
	})
	require.NoError(t, err)
	g.Wait()

	assert.Equal(t, "gen-1", got.ID)
	assert.Equal(t, model.TicketStatusPending, got.Status)
	assert.Nil(t, got.CloseTime)
	assert.Nil(t, got.Solution)
	assert.Equal(t, []string{}, got.Images)
	require.NotNil(t, got.AISuggestion)
	assert.Equal(t, "check door won't close", *got.AISuggestion)
	assert.Equal(t, []string{"ticket.created"}, prod.names())
}

func TestCreateSurvivesSuggestionFailure(t *testing.T) {
	store := newMemTickets()
	g := New(Deps{
		Tickets:   store,
		Suggester: suggesterFunc(func(context.Context, *model.Ticket) (string, error) { return "", errs.Generation("suggest", errors.New("down")) }),
	}, Options{})

	in := pending("T100")
	got, err := g.Create(context.Background(), &in)
	require.NoError(t, err)
	assert.Nil(t, got.AISuggestion)

	stored, err := g.Get(context.Background(), "T100")
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusPending, stored.Status)
}

func TestCreateValidatesBeforeSuggesting(t *testing.T) {
	called := false
	g := New(Deps{
		Tickets:   newMemTickets(),
		Suggester: suggesterFunc(func(context.Context, *model.Ticket) (string, error) { called = true; return "", nil }),
	}, Options{})

	_, err := g.Create(context.Background(), &model.Ticket{ID: "X", Priority: model.TicketPriorityLow})
	assert.True(t, errs.IsValidation(err))
	assert.False(t, called)
}

func TestCloseEmitsOnce(t *testing.T) {
	store := newMemTickets(pending("T1"))
	prod := &producerStub{}
	g := New(Deps{Tickets: store, Producer: prod}, Options{})
	ctx := context.Background()

	first, err := g.Close(ctx, "T1", "replaced sensor", "fixed")
	require.NoError(t, err)
	second, err := g.Close(ctx, "T1", "again", "again")
	require.NoError(t, err)
	g.Wait()

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"ticket.closed"}, prod.names())

	_, err = g.Close(ctx, "missing", "s", "r")
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func TestListPendingAndUpdate(t *testing.T) {
	closed := pending("T2")
	closed.Close("s", "r", time.Now())
	store := newMemTickets(pending("T1"), closed, pending("T3"))
	g := New(Deps{Tickets: store}, Options{})
	ctx := context.Background()

	items, err := g.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "T1", items[0].ID)
	assert.Equal(t, "T3", items[1].ID)

	_, err = g.Update(ctx, "T1", model.TicketUpdate{})
	assert.True(t, errs.IsValidation(err))

	low := model.TicketPriorityLow
	upd, err := g.Update(ctx, "T1", model.TicketUpdate{Priority: &low})
	require.NoError(t, err)
	assert.Equal(t, low, upd.Priority)
}

func TestFindSimilarDereferencesAndSkipsDeleted(t *testing.T) {
	store := newMemTickets(pending("CUR"), pending("A"), pending("B"), pending("C"))
	var seen []string
	g := New(Deps{
		Tickets: store,
		Matcher: matcherFunc(func(target *model.Ticket, history []model.Ticket, max int) []model.SimilarTicket {
			for _, h := range history {
				seen = append(seen, h.ID)
			}
			assert.Equal(t, "CUR", target.ID)
			assert.Equal(t, 2, max)
			store.delete("B")
			return []model.SimilarTicket{
				{TicketID: "A", SimilarityScore: 0.9, Reason: "door"},
				{TicketID: "B", SimilarityScore: 0.5},
			}
		}),
	}, Options{SimilarMaxResults: 2})

	got, err := g.FindSimilar(context.Background(), "CUR")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, seen, "history excludes the target")
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)
	assert.Equal(t, 0.9, got[0].SimilarityScore)
	assert.Equal(t, "door A", got[0].Description)
}

func TestFindSimilarUnknownTicket(t *testing.T) {
	g := New(Deps{Tickets: newMemTickets()}, Options{})
	_, err := g.FindSimilar(context.Background(), "nope")
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)

	store := newMemTickets(pending("CUR"))
	store.listErr = errors.New("db gone")
	g = New(Deps{Tickets: store}, Options{})
	_, err = g.FindSimilar(context.Background(), "CUR")
	assert.ErrorContains(t, err, "db gone")
}

func TestReportCollectsContext(t *testing.T) {
	store := newMemTickets(pending("T1"))
	sessions := session.NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, sessions.Append(ctx, "s1",
		model.Message{Role: model.RoleUser, Content: "door reopens"},
		model.Message{Role: model.RoleAssistant, Content: "check the light curtain"}))
	rep := &reporterStub{result: assistant.ReportResult{Report: &model.MaintenanceReport{TicketID: "T1"}}}
	g := New(Deps{
		Tickets:   store,
		Sessions:  sessions,
		Knowledge: retrieverStub{frags: []knowledge.Fragment{{ID: "door-01"}}},
		Reporter:  rep,
	}, Options{})

	res, err := g.Report(ctx, "T1", "s1")
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, "T1", rep.ticket.ID)
	assert.Len(t, rep.convo, 2)
	assert.Equal(t, "door-01", rep.frags[0].ID)
}

func TestReportDegradesWithoutManual(t *testing.T) {
	rep := &reporterStub{result: assistant.ReportResult{Error: "report generation failed"}}
	g := New(Deps{
		Tickets:   newMemTickets(pending("T1")),
		Sessions:  session.NewMemoryStore(0),
		Knowledge: retrieverStub{err: errs.Retrieval("door", errors.New("index down"))},
		Reporter:  rep,
	}, Options{})

	res, err := g.Report(context.Background(), "T1", "unknown-session")
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Empty(t, rep.frags)
	assert.Empty(t, rep.convo)

	_, err = g.Report(context.Background(), "missing", "")
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func TestAnalyzeTelemetryCreatesFaultTickets(t *testing.T) {
	store := newMemTickets()
	prod := &producerStub{}
	g := New(Deps{
		Tickets:  store,
		Producer: prod,
		Classifier: classifierFunc(func(r model.TelemetryReading) (*model.FaultClassification, error) {
			switch r.ElevatorID {
			case "E1":
				return &model.FaultClassification{FaultCode: model.FaultNone, Confidence: 0.95}, nil
			case "E2":
				return &model.FaultClassification{FaultCode: model.FaultDrive, Confidence: 0.87, FaultReason: "motor current 111A", Severity: "High"}, nil
			}
			return nil, errs.Generation("classify", errors.New("timeout"))
		}),
	}, Options{})

	out, err := g.AnalyzeTelemetry(context.Background(), []model.TelemetryReading{
		{ElevatorID: "E1", Location: "Tower A"},
		{ElevatorID: "E2", Location: "Tower B"},
		{ElevatorID: "E3"},
		{},
	})
	require.NoError(t, err)
	g.Wait()
	require.Len(t, out, 4)

	assert.Nil(t, out[0].Ticket)
	assert.False(t, out[0].Classification.HasFault())

	require.NotNil(t, out[1].Ticket)
	assert.Equal(t, model.TicketPriorityHigh, out[1].Ticket.Priority)
	assert.Equal(t, "Drive system fault: motor current 111A", out[1].Ticket.Description)
	assert.Equal(t, "Tower B", out[1].Ticket.Location)

	assert.NotEmpty(t, out[2].Error)
	assert.NotEmpty(t, out[3].Error)
	assert.Equal(t, []string{"telemetry.fault_detected", "ticket.created"}, prod.names())

	_, err = g.AnalyzeTelemetry(context.Background(), nil)
	assert.True(t, errs.IsValidation(err))
}

func TestFaultTicketDefaults(t *testing.T) {
	tk := faultTicket(model.TelemetryReading{ElevatorID: "E9"}, &model.FaultClassification{FaultCode: model.FaultSafety, Severity: "Critical"})
	assert.Equal(t, model.TicketPriorityMedium, tk.Priority)
	assert.Equal(t, "unknown", tk.Location)
	assert.Equal(t, "Safety system fault", tk.Description)
}
