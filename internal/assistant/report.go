package assistant

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/psds-microservice/field-service/internal/knowledge"
	"github.com/psds-microservice/field-service/internal/llm"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/tmc/langchaingo/llms"
)

// ReportResult всегда пригоден для отображения: либо Report, либо Error.
type ReportResult struct {
	Report *model.MaintenanceReport `json:"report,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func (r ReportResult) Failed() bool { return r.Error != "" }

type Reporter struct {
	llm       *llm.Client
	maxTokens int
}

func NewReporter(client *llm.Client, maxTokens int) *Reporter {
	return &Reporter{llm: client, maxTokens: maxTokens}
}

// Generate не возвращает ошибку: сбой модели превращается в ReportResult.Error.
// Лимит токенов передаётся модели, локально длина не проверяется.
func (r *Reporter) Generate(ctx context.Context, t *model.Ticket, conversation []model.Message, frags []knowledge.Fragment) ReportResult {
	prompt, err := format(reportPrompt, map[string]any{
		"conversation": formatConversation(conversation),
		"ticket":       ticketJSON(t),
		"manual":       formatFragments(frags),
		"max_tokens":   strconv.Itoa(r.maxTokens),
	})
	if err != nil {
		return ReportResult{Error: err.Error()}
	}
	var rep model.MaintenanceReport
	err = r.llm.CompleteJSON(ctx, "report", []llms.MessageContent{llm.Human(prompt)}, &rep,
		llms.WithMaxTokens(r.maxTokens),
	)
	if err != nil {
		slog.Warn("report: generation failed", "ticket_id", t.ID, "error", err)
		return ReportResult{Error: "report generation failed: " + err.Error()}
	}
	fillIdentity(&rep, t)
	return ReportResult{Report: &rep}
}

// fillIdentity дополняет поля тикета, если модель их пропустила.
func fillIdentity(rep *model.MaintenanceReport, t *model.Ticket) {
	if rep.TicketID == "" {
		rep.TicketID = t.ID
	}
	if rep.ElevatorID == "" {
		rep.ElevatorID = t.ElevatorID
	}
	if rep.Location == "" {
		rep.Location = t.Location
	}
	if rep.Priority == "" {
		rep.Priority = string(t.Priority)
	}
	if rep.IssueDescription == "" {
		rep.IssueDescription = t.Description
	}
}
