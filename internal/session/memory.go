package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/psds-microservice/field-service/internal/model"
)

type entry struct {
	mu       sync.Mutex
	msgs     []model.Message
	removed  bool
	lastUsed time.Time // под MemoryStore.mu
}

// add дописывает сообщения; false, если запись уже удалена из хранилища.
func (e *entry) add(msgs []model.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	e.msgs = append(e.msgs, msgs...)
	return true
}

func (e *entry) markRemoved() {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

// MemoryStore держит сессии в памяти процесса. Общая блокировка берётся только
// на поиск/создание записи, дописывание идёт под блокировкой самой сессии.
// Порядок блокировок: MemoryStore.mu, затем entry.mu.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
	idleTTL  time.Duration
	now      func() time.Time
}

// NewMemoryStore: idleTTL == 0 отключает вытеснение неактивных сессий.
func NewMemoryStore(idleTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (s *MemoryStore) touch(id string, create bool) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		if !create {
			return nil
		}
		e = &entry{}
		s.sessions[id] = e
	}
	e.lastUsed = s.now()
	return e
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...model.Message) error {
	if err := validate(sessionID, msgs); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	// запись могла быть удалена Clear/Sweep между touch и add: тогда берём новую
	for {
		if s.touch(sessionID, true).add(msgs) {
			return nil
		}
	}
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]model.Message, error) {
	e := s.touch(sessionID, false)
	if e == nil {
		return []model.Message{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Message, len(e.msgs))
	copy(out, e.msgs)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
		e.markRemoved()
	}
	return ok, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}

// Sweep удаляет сессии, простаивающие дольше idleTTL, и возвращает их число.
func (s *MemoryStore) Sweep(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastUsed) > s.idleTTL {
			delete(s.sessions, id)
			e.markRemoved()
			n++
		}
	}
	return n
}

// Run периодически вызывает Sweep до отмены ctx.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				slog.Info("session: evicted idle sessions", "count", n, "idle_ttl", s.idleTTL)
			}
		}
	}
}
