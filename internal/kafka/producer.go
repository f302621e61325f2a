package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/psds-microservice/field-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const (
	EventTicketCreated = "ticket.created"
	EventTicketClosed  = "ticket.closed"
	EventFaultDetected = "telemetry.fault_detected"
)

// TicketEventProducer — интерфейс для отправки событий тикета в Kafka (для подмены моком в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, t *model.Ticket)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TicketEvent — тело сообщения в топике.
type TicketEvent struct {
	Event      string    `json:"event"`
	TicketID   string    `json:"ticket_id"`
	ElevatorID string    `json:"elevator_id"`
	Location   string    `json:"location"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority"`
	Result     *string   `json:"result,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Producer пишет события тикетов в топик Kafka (best-effort, не блокирует API).
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer создаёт продюсер. Если brokers пустой или topic пустой — методы no-op.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{now: time.Now}
	}
	return &Producer{
		topic: topic,
		now:   time.Now,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent отправляет событие; ключ сообщения — id тикета, чтобы события
// одного тикета попадали в одну партицию.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, t *model.Ticket) {
	if p.writer == nil || t == nil {
		return
	}
	body, err := json.Marshal(TicketEvent{
		Event:      event,
		TicketID:   t.ID,
		ElevatorID: t.ElevatorID,
		Location:   t.Location,
		Status:     string(t.Status),
		Priority:   string(t.Priority),
		Result:     t.Result,
		OccurredAt: p.now().UTC(),
	})
	if err != nil {
		slog.Error("kafka: marshal ticket event", "event", event, "error", err)
		return
	}
	msg := kafka.Message{Key: []byte(t.ID), Value: body}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("kafka: write ticket event", "event", event, "ticket_id", t.ID, "topic", p.topic, "error", err)
	}
}

// Close закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
