package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/field-service/internal/errs"
)

// Validate проверяет обязательные поля и инвариант close_time <=> Closed.
func (t *Ticket) Validate() error {
	required := []struct {
		field, value string
	}{
		{"id", t.ID},
		{"elevator_id", t.ElevatorID},
		{"location", t.Location},
		{"description", t.Description},
		{"status", string(t.Status)},
		{"priority", string(t.Priority)},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errs.Validation(r.field, "is required")
		}
	}
	return t.checkCloseTime()
}

func (t *Ticket) checkCloseTime() error {
	closed := t.Status == TicketStatusClosed
	if closed && t.CloseTime == nil {
		return errs.Validation("close_time", "must be set when status is Closed")
	}
	if !closed && t.CloseTime != nil {
		return errs.Validation("close_time", "must be empty unless status is Closed")
	}
	return nil
}

func (t *Ticket) IsClosed() bool { return t.Status == TicketStatusClosed }

// Close переводит тикет в Closed. Повторный вызов ничего не меняет и возвращает false.
func (t *Ticket) Close(solution, result string, now time.Time) bool {
	if t.IsClosed() {
		return false
	}
	t.Status = TicketStatusClosed
	t.Solution = &solution
	t.Result = &result
	t.CloseTime = &now
	return true
}

// AddImage добавляет URL, дубликаты игнорируются.
func (t *Ticket) AddImage(url string) bool {
	for _, u := range t.Images {
		if u == url {
			return false
		}
	}
	t.Images = append(t.Images, url)
	return true
}

// Apply применяет частичное обновление и восстанавливает инвариант статуса:
// Closed без close_time получает now, переоткрытие сбрасывает close_time,
// явный close_time при не-Closed статусе — ошибка. close_time задаётся один раз:
// у уже закрытого тикета его нельзя переписать.
func (t *Ticket) Apply(u TicketUpdate, now time.Time) error {
	wasClosed := t.IsClosed()
	if u.ElevatorID != nil {
		t.ElevatorID = *u.ElevatorID
	}
	if u.Location != nil {
		t.Location = *u.Location
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Solution != nil {
		t.Solution = u.Solution
	}
	if u.Result != nil {
		t.Result = u.Result
	}
	if u.AISuggestion != nil {
		t.AISuggestion = u.AISuggestion
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.CloseTime != nil {
		if !t.IsClosed() {
			return errs.Validation("close_time", "can only be set together with status Closed")
		}
		if wasClosed && t.CloseTime != nil && !t.CloseTime.Equal(*u.CloseTime) {
			return errs.Validation("close_time", "is already set")
		}
		ct := *u.CloseTime
		t.CloseTime = &ct
	}
	switch {
	case t.IsClosed() && t.CloseTime == nil:
		t.CloseTime = &now
	case !t.IsClosed() && t.CloseTime != nil:
		t.CloseTime = nil
	}
	return t.Validate()
}

func (t *Ticket) String() string {
	return fmt.Sprintf("<Ticket #%s | %s | %s | Elevator %s>", t.ID, t.Status, t.Priority, t.ElevatorID)
}

// Clone возвращает копию без общих указателей и слайсов.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.CloseTime != nil {
		ct := *t.CloseTime
		c.CloseTime = &ct
	}
	c.Solution = cloneStr(t.Solution)
	c.Result = cloneStr(t.Result)
	c.AISuggestion = cloneStr(t.AISuggestion)
	if t.Images != nil {
		c.Images = make([]string, len(t.Images))
		copy(c.Images, t.Images)
	}
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
