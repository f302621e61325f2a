package model

import "time"

type TicketStatus string

const (
	TicketStatusPending TicketStatus = "Pending"
	TicketStatusClosed  TicketStatus = "Closed"
)

// TicketPriority допускает произвольные значения, High/Medium/Low — основные.
type TicketPriority string

const (
	TicketPriorityHigh   TicketPriority = "High"
	TicketPriorityMedium TicketPriority = "Medium"
	TicketPriorityLow    TicketPriority = "Low"
)

// Ticket — заявка на обслуживание лифта.
type Ticket struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	ElevatorID  string         `gorm:"column:elevator_id;type:varchar(64);index;not null" json:"elevator_id"`
	Location    string         `gorm:"column:location;type:varchar(255);not null" json:"location"`
	Description string         `gorm:"column:description;type:text;not null" json:"description"`
	Status      TicketStatus   `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
	Priority    TicketPriority `gorm:"column:priority;type:varchar(32);not null" json:"priority"`

	CreateTime time.Time  `gorm:"column:create_time;not null" json:"create_time"`
	CloseTime  *time.Time `gorm:"column:close_time" json:"close_time"`

	Solution     *string  `gorm:"column:solution;type:text" json:"solution"`
	Result       *string  `gorm:"column:result;type:text" json:"result"`
	Images       []string `gorm:"column:images;type:text;serializer:json" json:"images"`
	AISuggestion *string  `gorm:"column:ai_suggestion;type:text" json:"ai_suggestion"`

	UpdatedAt time.Time `gorm:"column:updated_at" json:"-"`
}

func (Ticket) TableName() string { return "tickets" }

// TicketUpdate — частичное обновление: nil означает «поле не передано».
type TicketUpdate struct {
	ElevatorID   *string         `json:"elevator_id,omitempty"`
	Location     *string         `json:"location,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Status       *TicketStatus   `json:"status,omitempty"`
	Priority     *TicketPriority `json:"priority,omitempty"`
	CloseTime    *time.Time      `json:"close_time,omitempty"`
	Solution     *string         `json:"solution,omitempty"`
	Result       *string         `json:"result,omitempty"`
	AISuggestion *string         `json:"ai_suggestion,omitempty"`
}

func (u TicketUpdate) Empty() bool {
	return u.ElevatorID == nil && u.Location == nil && u.Description == nil &&
		u.Status == nil && u.Priority == nil && u.CloseTime == nil &&
		u.Solution == nil && u.Result == nil && u.AISuggestion == nil
}

// SimilarTicket — ссылка на похожий тикет, возвращённая LLM. Не сохраняется.
type SimilarTicket struct {
	TicketID        string  `json:"ticket_id"`
	SimilarityScore float64 `json:"similarity_score"`
	Reason          string  `json:"reason"`
}
