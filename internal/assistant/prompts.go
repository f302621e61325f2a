package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/psds-microservice/field-service/internal/knowledge"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/tmc/langchaingo/prompts"
)

const chatSystemPrompt = "You are an experienced elevator maintenance assistant. " +
	"Answer field technicians concisely and put safety first."

var suggestionPrompt = prompts.NewPromptTemplate(`You are an experienced elevator maintenance AI assistant. Based on the following information,
please generate "Key Troubleshooting Recommendations" for the current issue.

Equipment Manual Excerpts:
{{.manual}}

Please output your response in the following structure:
1. High-Priority Checks and Error Codes
2. Recommended Troubleshooting Procedure
3. Common Pitfalls and Cautions
4. Relevant Manual References (summary)`, []string{"manual"})

var suggestionInput = prompts.NewPromptTemplate(`The following are the problems encountered by users:
{{.description}}`, []string{"description"})

var similarPrompt = prompts.NewPromptTemplate(`You compare elevator maintenance tickets.

Current ticket:
{{.ticket}}

Ticket history:
{{.history}}

Find at most {{.max_results}} tickets from the history that describe a similar fault on similar equipment.
Use only ids that appear in the history. Order them by similarity, most similar first.
Respond with JSON only:
{"similar_tickets": [{"ticket_id": "<id>", "similarity_score": <number between 0 and 1>, "reason": "<short explanation>"}]}
Return {"similar_tickets": []} when nothing is similar.`, []string{"ticket", "history", "max_results"})

var reportPrompt = prompts.NewPromptTemplate(`You are now an experienced elevator maintenance AI assistant.
Below is the previous conversation context:
{{.conversation}}

Based on the following information, generate a report for the current issue. The ticket represents the
issue the technician is facing. Clearly highlight the solution procedure and refer to the manual
references and common pitfalls. Keep the whole report within {{.max_tokens}} tokens.

Ticket:
{{.ticket}}

Equipment Manual Excerpts:
{{.manual}}

Return a single JSON object with UTF-8 plain text values (no Markdown, no HTML):
{
  "ticket_id": string,
  "elevator_id": string,
  "location": string,
  "priority": string,
  "issue_description": string,
  "report": {
    "high_priority_checks_and_error_codes": [{"component": string, "checks": [string], "related_error_codes": [string]}],
    "recommended_troubleshooting_procedure": [string],
    "expected_outcomes": [string],
    "common_pitfalls_and_cautions": [string],
    "relevant_manual_references": [{"section": string, "title": string, "notes": string}]
  }
}`, []string{"conversation", "ticket", "manual", "max_tokens"})

var classifyPrompt = prompts.NewPromptTemplate(`You analyse elevator telemetry and classify faults.

Fault codes: 101 (Door system fault), 201 (Drive system fault), 301 (Safety system fault), 0 (No fault).
Confidence is the confidence of fault detection in the range 0-1.
Severity is one of High, Medium, Low; leave it empty when there is no fault.

Telemetry reading:
{{.reading}}

Respond with JSON only:
{"fault_code": <int>, "confidence": <number>, "fault_reason": "<text>", "severity": "<High|Medium|Low>"}`, []string{"reading"})

func format(t prompts.PromptTemplate, values map[string]any) (string, error) {
	s, err := t.Format(values)
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	return s, nil
}

type ticketView struct {
	ID          string  `json:"id"`
	ElevatorID  string  `json:"elevator_id"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Solution    *string `json:"solution,omitempty"`
	Result      *string `json:"result,omitempty"`
}

func viewOf(t *model.Ticket) ticketView {
	return ticketView{
		ID:          t.ID,
		ElevatorID:  t.ElevatorID,
		Location:    t.Location,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Solution:    t.Solution,
		Result:      t.Result,
	}
}

func ticketJSON(t *model.Ticket) string {
	b, _ := json.Marshal(viewOf(t))
	return string(b)
}

func historyJSON(ts []model.Ticket) string {
	views := make([]ticketView, 0, len(ts))
	for i := range ts {
		views = append(views, viewOf(&ts[i]))
	}
	b, _ := json.MarshalIndent(views, "", "  ")
	return string(b)
}

func formatFragments(frags []knowledge.Fragment) string {
	if len(frags) == 0 {
		return "(no manual excerpts available)"
	}
	var b strings.Builder
	for i, f := range frags {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if f.Section != "" || f.Title != "" {
			fmt.Fprintf(&b, "[%s] %s\n", f.Section, f.Title)
		}
		b.WriteString(strings.TrimSpace(f.Content))
	}
	return b.String()
}

func formatConversation(msgs []model.Message) string {
	if len(msgs) == 0 {
		return "(no previous conversation)"
	}
	names := map[model.Role]string{
		model.RoleUser:      "User",
		model.RoleAssistant: "Assistant",
		model.RoleSystem:    "System",
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, names[m.Role]+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
