package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/knowledge"
	"github.com/psds-microservice/field-service/internal/llm"
	"github.com/psds-microservice/field-service/internal/llm/llmtest"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/psds-microservice/field-service/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	frags []knowledge.Fragment
	err   error
	query string
	k     int
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, k int) ([]knowledge.Fragment, error) {
	s.query, s.k = query, k
	return s.frags, s.err
}

func ticket(id string) model.Ticket {
	return model.Ticket{
		ID: id, ElevatorID: "E1", Location: "B1", Description: "door won't close " + id,
		Status: model.TicketStatusPending, Priority: model.TicketPriorityHigh,
	}
}

func client(f *llmtest.Fake) *llm.Client { return llm.NewClient(f, time.Second) }

func TestSuggestUsesRetrievedFragments(t *testing.T) {
	kb := &stubRetriever{frags: []knowledge.Fragment{{Section: "4.2", Title: "Door lock", Content: "inspect the door lock contacts"}}}
	fake := llmtest.Reply("1. High-Priority Checks ...")
	s := NewSuggester(kb, client(fake), 3)
	tk := ticket("T1")

	out, err := s.Suggest(context.Background(), &tk)
	require.NoError(t, err)
	assert.Equal(t, "1. High-Priority Checks ...", out)
	assert.Equal(t, tk.Description, kb.query)
	assert.Equal(t, 3, kb.k)

	prompt := fake.Calls()[0].Prompt()
	assert.Contains(t, prompt, "inspect the door lock contacts")
	assert.Contains(t, prompt, "Key Troubleshooting Recommendations")
	assert.Contains(t, prompt, tk.Description)
}

func TestSuggestSurfacesErrors(t *testing.T) {
	tk := ticket("T1")

	kb := &stubRetriever{err: errs.Retrieval("q", errors.New("index down"))}
	_, err := NewSuggester(kb, client(llmtest.Reply("x")), 3).Suggest(context.Background(), &tk)
	assert.True(t, errs.IsRetrieval(err))

	_, err = NewSuggester(&stubRetriever{}, client(llmtest.Fail(errors.New("503"))), 3).Suggest(context.Background(), &tk)
	assert.True(t, errs.IsGeneration(err))
}

func TestFindSimilarFiltersGhostIDs(t *testing.T) {
	fake := llmtest.Reply(`{"similar_tickets":[
		{"ticket_id":"A","similarity_score":0.9,"reason":"same door"},
		{"ticket_id":"ghost","similarity_score":0.8,"reason":"made up"},
		{"ticket_id":"B","similarity_score":0.5,"reason":"same elevator"}]}`)
	m := NewMatcher(client(fake))
	current := ticket("CUR")
	history := []model.Ticket{ticket("A"), ticket("B"), ticket("C")}

	got := m.FindSimilar(context.Background(), &current, history, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].TicketID)
	assert.Equal(t, 0.9, got[0].SimilarityScore)
	assert.Equal(t, "B", got[1].TicketID)
	assert.Equal(t, 0.5, got[1].SimilarityScore)

	prompt := fake.Calls()[0].Prompt()
	assert.Contains(t, prompt, `"id":"CUR"`)
	assert.Contains(t, prompt, "at most 2 tickets")
}

func TestFindSimilarResortsClampsAndTruncates(t *testing.T) {
	fake := llmtest.Reply(`{"similar_tickets":[
		{"ticket_id":"B","similarity_score":0.3},
		{"ticket_id":"A","similarity_score":1.7},
		{"ticket_id":"A","similarity_score":0.1},
		{"ticket_id":"CUR","similarity_score":1},
		{"ticket_id":"C","similarity_score":-2}]}`)
	current := ticket("CUR")
	history := []model.Ticket{ticket("A"), ticket("B"), ticket("C")}

	got := NewMatcher(client(fake)).FindSimilar(context.Background(), &current, history, 5)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{got[0].TicketID, got[1].TicketID, got[2].TicketID})
	assert.Equal(t, 1.0, got[0].SimilarityScore)
	assert.Equal(t, 0.0, got[2].SimilarityScore)
	for _, r := range got {
		assert.GreaterOrEqual(t, r.SimilarityScore, 0.0)
		assert.LessOrEqual(t, r.SimilarityScore, 1.0)
	}
}

func TestFindSimilarDegradesToEmpty(t *testing.T) {
	current := ticket("CUR")
	history := []model.Ticket{ticket("A")}

	got := NewMatcher(client(llmtest.Fail(errors.New("boom")))).FindSimilar(context.Background(), &current, history, 3)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got = NewMatcher(client(llmtest.Reply("not json"))).FindSimilar(context.Background(), &current, history, 3)
	assert.Empty(t, got)

	fake := llmtest.Reply(`{"similar_tickets":[]}`)
	got = NewMatcher(client(fake)).FindSimilar(context.Background(), &current, nil, 3)
	assert.Empty(t, got)
	assert.Empty(t, fake.Calls(), "empty history needs no collaborator call")
}

const validReport = `{"ticket_id":"T1","elevator_id":"E1","location":"B1","priority":"High",
"issue_description":"door","report":{
"high_priority_checks_and_error_codes":[{"component":"Door lock","checks":["inspect contacts"],"related_error_codes":["E-DL1"]}],
"recommended_troubleshooting_procedure":["clean sill","replace sensor"],
"expected_outcomes":["door closes within 3s"],
"common_pitfalls_and_cautions":["never bridge the door lock"],
"relevant_manual_references":[{"section":"4.2","title":"Door lock","notes":"lock contacts"}]}}`

func TestReportGenerate(t *testing.T) {
	fake := llmtest.Reply(validReport)
	r := NewReporter(client(fake), 700)
	tk := ticket("T1")
	convo := []model.Message{{Role: model.RoleUser, Content: "door keeps reopening"}, {Role: model.RoleAssistant, Content: "check the light curtain"}}

	res := r.Generate(context.Background(), &tk, convo, []knowledge.Fragment{{Section: "4.2", Content: "door lock contacts"}})
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, []string{"clean sill", "replace sensor"}, res.Report.Report.RecommendedActions)
	assert.Equal(t, "E-DL1", res.Report.Report.HighPriorityChecks[0].RelatedErrorCodes[0])

	call := fake.Calls()[0]
	assert.Equal(t, 700, call.Options.MaxTokens)
	assert.Contains(t, call.Prompt(), "User: door keeps reopening")
	assert.Contains(t, call.Prompt(), "Assistant: check the light curtain")
	assert.Contains(t, call.Prompt(), "door lock contacts")
}

func TestReportFillsIdentityFromTicket(t *testing.T) {
	body := strings.Replace(validReport, `"ticket_id":"T1","elevator_id":"E1",`, "", 1)
	tk := ticket("T1")
	res := NewReporter(client(llmtest.Reply(body)), 500).Generate(context.Background(), &tk, nil, nil)
	require.False(t, res.Failed())
	assert.Equal(t, "T1", res.Report.TicketID)
	assert.Equal(t, "E1", res.Report.ElevatorID)
}

func TestReportFailureIsErrorObject(t *testing.T) {
	tk := ticket("T1")

	res := NewReporter(client(llmtest.Fail(errors.New("quota"))), 500).Generate(context.Background(), &tk, nil, nil)
	assert.True(t, res.Failed())
	assert.Nil(t, res.Report)
	assert.Contains(t, res.Error, "quota")

	// схема не выполнена: нет рекомендуемых действий
	res = NewReporter(client(llmtest.Reply(`{"report":{"expected_outcomes":["x"]}}`)), 500).Generate(context.Background(), &tk, nil, nil)
	assert.True(t, res.Failed())
}

func TestConverseKeepsHistory(t *testing.T) {
	store := session.NewMemoryStore(0)
	fake := &llmtest.Fake{Respond: func(_ context.Context, c llmtest.Call) (string, error) {
		return "answer " + string(rune('0'+len(c.Messages))), nil
	}}
	ch := NewChatter(client(fake), store)
	ctx := context.Background()

	r1, err := ch.Converse(ctx, "s1", []model.Message{{Role: model.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "answer 2", r1) // system + user

	// в истории остаётся только последнее сообщение пользователя из запроса
	r2, err := ch.Converse(ctx, "s1", []model.Message{
		{Role: model.RoleUser, Content: "ignored"},
		{Role: model.RoleAssistant, Content: "ignored too"},
		{Role: model.RoleUser, Content: "and the brake?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer 4", r2) // system + hi + answer + question

	h, err := ch.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "answer 2"},
		{Role: model.RoleUser, Content: "and the brake?"},
		{Role: model.RoleAssistant, Content: "answer 4"},
	}, h)
}

func TestConverseErrors(t *testing.T) {
	store := session.NewMemoryStore(0)
	ch := NewChatter(client(llmtest.Fail(errors.New("down"))), store)
	ctx := context.Background()

	_, err := ch.Converse(ctx, "s1", []model.Message{{Role: model.RoleAssistant, Content: "x"}})
	assert.True(t, errs.IsValidation(err))

	_, err = ch.Converse(ctx, "s1", []model.Message{{Role: model.RoleUser, Content: "hi"}})
	assert.True(t, errs.IsGeneration(err))

	h, _ := ch.History(ctx, "s1")
	assert.Empty(t, h, "failed turn is not remembered")
}

func TestConverseStream(t *testing.T) {
	store := session.NewMemoryStore(0)
	fake := llmtest.Reply("check the governor switch")
	fake.Chunk = 5
	ch := NewChatter(client(fake), store)

	var chunks []string
	full, err := ch.ConverseStream(context.Background(), "s9", []model.Message{{Role: model.RoleUser, Content: "car stopped"}},
		func(s string) error { chunks = append(chunks, s); return nil })
	require.NoError(t, err)
	assert.Equal(t, "check the governor switch", full)
	assert.Equal(t, full, strings.Join(chunks, ""))

	h, _ := ch.History(context.Background(), "s9")
	require.Len(t, h, 2)
	assert.Equal(t, full, h[1].Content)
}

func TestReplyIsStateless(t *testing.T) {
	store := session.NewMemoryStore(0)
	fake := llmtest.Reply("ok")
	ch := NewChatter(client(fake), store)

	out, err := ch.Reply(context.Background(), []model.Message{{Role: model.RoleSystem, Content: "custom"}, {Role: model.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Len(t, fake.Calls()[0].Messages, 2, "client system prompt replaces the default")
	n, _ := store.Len(context.Background())
	assert.Zero(t, n)
}

func TestClassify(t *testing.T) {
	fake := llmtest.Reply(`{"fault_code":201,"confidence":0.87,"fault_reason":"motor current 111A","severity":"High"}`)
	c := NewClassifier(client(fake))
	reading := model.TelemetryReading{ElevatorID: "E2", Status: "moving_up", FaultCodes: []int{201}}
	reading.Sensors.MotorCurrentA = 111.74

	got, err := c.Classify(context.Background(), reading)
	require.NoError(t, err)
	assert.Equal(t, model.FaultDrive, got.FaultCode)
	assert.True(t, got.HasFault())
	assert.Contains(t, fake.Calls()[0].Prompt(), "111.74")

	_, err = NewClassifier(client(llmtest.Reply(`{"fault_code":42,"confidence":0.5}`))).Classify(context.Background(), reading)
	assert.True(t, errs.IsGeneration(err))
}
