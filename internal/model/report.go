package model

import "github.com/psds-microservice/field-service/internal/errs"

// MaintenanceReport — структурированный отчёт, который LLM обязан вернуть в JSON.
type MaintenanceReport struct {
	TicketID         string     `json:"ticket_id"`
	ElevatorID       string     `json:"elevator_id"`
	Location         string     `json:"location"`
	Priority         string     `json:"priority"`
	IssueDescription string     `json:"issue_description"`
	Report           ReportBody `json:"report"`
}

type ReportBody struct {
	HighPriorityChecks []ComponentCheck  `json:"high_priority_checks_and_error_codes"`
	RecommendedActions []string          `json:"recommended_troubleshooting_procedure"`
	ExpectedOutcomes   []string          `json:"expected_outcomes"`
	CommonPitfalls     []string          `json:"common_pitfalls_and_cautions"`
	ManualReferences   []ManualReference `json:"relevant_manual_references"`
}

type ComponentCheck struct {
	Component         string   `json:"component"`
	Checks            []string `json:"checks"`
	RelatedErrorCodes []string `json:"related_error_codes"`
}

type ManualReference struct {
	Section string `json:"section"`
	Title   string `json:"title"`
	Notes   string `json:"notes"`
}

// Validate — минимальная схема: есть рекомендуемые действия и ожидаемые результаты.
func (r *MaintenanceReport) Validate() error {
	if len(r.Report.RecommendedActions) == 0 {
		return errs.Validation("report.recommended_troubleshooting_procedure", "is empty")
	}
	if len(r.Report.ExpectedOutcomes) == 0 {
		return errs.Validation("report.expected_outcomes", "is empty")
	}
	return nil
}
