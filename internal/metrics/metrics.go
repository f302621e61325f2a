package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldservice_llm_requests_total",
			Help: "LLM collaborator calls by operation and outcome (ok, error, timeout)",
		},
		[]string{"op", "outcome"},
	)
	LLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldservice_llm_request_duration_seconds",
			Help:    "LLM collaborator call latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"op"},
	)
	SimilarDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldservice_similar_dropped_total",
			Help: "Similar-ticket entries dropped because the referenced ticket does not exist",
		},
	)
	Tickets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldservice_tickets",
			Help: "Number of tickets by status",
		},
		[]string{"status"},
	)
	ChatSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldservice_chat_sessions",
			Help: "Number of live chat sessions",
		},
	)
)

var registerOnce sync.Once

// Register регистрирует коллекторы один раз на процесс.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(LLMRequests, LLMDuration, SimilarDropped, Tickets, ChatSessions)
	})
}

// ObserveLLM фиксирует один вызов LLM.
func ObserveLLM(op, outcome string, d time.Duration) {
	LLMRequests.WithLabelValues(op, outcome).Inc()
	LLMDuration.WithLabelValues(op).Observe(d.Seconds())
}

type TicketCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type SessionCounter interface {
	Len(ctx context.Context) (int, error)
}

// Refresher периодически пересчитывает gauge-метрики из хранилищ.
type Refresher struct {
	tickets  TicketCounter
	sessions SessionCounter
	interval time.Duration
	// onRefresh получает результат обращения к БД (gRPC health).
	onRefresh func(err error)
}

func NewRefresher(tickets TicketCounter, sessions SessionCounter, interval time.Duration, onRefresh func(error)) *Refresher {
	return &Refresher{tickets: tickets, sessions: sessions, interval: interval, onRefresh: onRefresh}
}

func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	counts, err := r.tickets.CountByStatus(ctx)
	if r.onRefresh != nil {
		r.onRefresh(err)
	}
	if err != nil {
		return err
	}
	Tickets.Reset()
	for status, n := range counts {
		Tickets.WithLabelValues(status).Set(float64(n))
	}
	if r.sessions != nil {
		n, err := r.sessions.Len(ctx)
		if err != nil {
			return err
		}
		ChatSessions.Set(float64(n))
	}
	return nil
}

// Run обновляет метрики сразу и затем по тикеру до отмены ctx.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		slog.Warn("metrics refresh", "error", err)
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				slog.Warn("metrics refresh", "error", err)
			}
		}
	}
}
