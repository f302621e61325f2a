package assistant

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/psds-microservice/field-service/internal/llm"
	"github.com/psds-microservice/field-service/internal/metrics"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/tmc/langchaingo/llms"
)

type similarResponse struct {
	SimilarTickets []model.SimilarTicket `json:"similar_tickets"`
}

// Matcher ищет похожие тикеты одним структурированным запросом к модели.
// Ответ модели недоверенный: id проверяются по истории, score ограничивается [0,1],
// порядок пересчитывается по score.
type Matcher struct {
	llm *llm.Client
}

func NewMatcher(client *llm.Client) *Matcher {
	return &Matcher{llm: client}
}

// FindSimilar никогда не возвращает ошибку: при сбое модели — пустой список и запись в лог.
func (m *Matcher) FindSimilar(ctx context.Context, target *model.Ticket, history []model.Ticket, maxResults int) []model.SimilarTicket {
	if maxResults <= 0 || len(history) == 0 {
		return []model.SimilarTicket{}
	}
	prompt, err := format(similarPrompt, map[string]any{
		"ticket":      ticketJSON(target),
		"history":     historyJSON(history),
		"max_results": strconv.Itoa(maxResults),
	})
	if err != nil {
		slog.Error("similar: prompt", "ticket_id", target.ID, "error", err)
		return []model.SimilarTicket{}
	}
	var resp similarResponse
	if err := m.llm.CompleteJSON(ctx, "similar", []llms.MessageContent{llm.Human(prompt)}, &resp); err != nil {
		slog.Warn("similar: collaborator failed, returning no matches", "ticket_id", target.ID, "error", err)
		return []model.SimilarTicket{}
	}
	return sanitizeMatches(target.ID, resp.SimilarTickets, history, maxResults)
}

func sanitizeMatches(targetID string, raw []model.SimilarTicket, history []model.Ticket, maxResults int) []model.SimilarTicket {
	known := make(map[string]bool, len(history))
	for i := range history {
		known[history[i].ID] = true
	}
	out := make([]model.SimilarTicket, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		if !known[r.TicketID] || r.TicketID == targetID || seen[r.TicketID] {
			slog.Info("similar: dropped reference", "ticket_id", r.TicketID, "target", targetID)
			metrics.SimilarDropped.Inc()
			continue
		}
		seen[r.TicketID] = true
		r.SimilarityScore = clamp01(r.SimilarityScore)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SimilarityScore > out[j].SimilarityScore })
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
