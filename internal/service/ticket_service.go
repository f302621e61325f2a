package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketServicer — интерфейс хранилища тикетов для gateway и gRPC/metrics (Dependency Inversion).
type TicketServicer interface {
	Create(ctx context.Context, t *model.Ticket) (*model.Ticket, error)
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	List(ctx context.Context, f ListFilter) ([]model.Ticket, int64, error)
	Update(ctx context.Context, id string, u model.TicketUpdate) (*model.Ticket, error)
	Close(ctx context.Context, id, solution, result string) (*model.Ticket, bool, error)
	AddImage(ctx context.Context, id, url string) (*model.Ticket, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// ListFilter: пустой Status — все тикеты. По умолчанию порядок вставки.
type ListFilter struct {
	Status    string
	Limit     int
	Offset    int
	OrderDesc bool
}

type TicketService struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*TicketService)

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(s *TicketService) { s.now = now }
}

func NewTicketService(db *gorm.DB, opts ...Option) *TicketService {
	s := &TicketService{
		db: db,
		// Postgres хранит микросекунды; округляем, чтобы значение не менялось после перечитывания.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *TicketService) Create(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	if t.CreateTime.IsZero() {
		t.CreateTime = s.now()
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", t.ID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, errs.Validation("id", fmt.Sprintf("ticket %q already exists", t.ID))
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		// гонка двух create с одним id
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Validation("id", fmt.Sprintf("ticket %q already exists", t.ID))
		}
		return nil, err
	}
	return t.Clone(), nil
}

func (s *TicketService) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *TicketService) List(ctx context.Context, f ListFilter) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	q := s.db.WithContext(ctx).Model(&model.Ticket{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	order := "create_time ASC, id ASC"
	if f.OrderDesc {
		order = "create_time DESC, id DESC"
	}
	find := q.Order(order)
	if f.Limit > 0 {
		find = find.Limit(f.Limit)
	}
	if f.Offset > 0 {
		find = find.Offset(f.Offset)
	}
	if err := find.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update применяет только переданные поля под блокировкой строки.
func (s *TicketService) Update(ctx context.Context, id string, u model.TicketUpdate) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTicket(tx, id, &t); err != nil {
			return err
		}
		if err := t.Apply(u, s.now()); err != nil {
			return err
		}
		return tx.Save(&t).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Close идемпотентен: для уже закрытого тикета возвращает текущее состояние и changed=false.
func (s *TicketService) Close(ctx context.Context, id, solution, result string) (*model.Ticket, bool, error) {
	var t model.Ticket
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTicket(tx, id, &t); err != nil {
			return err
		}
		if changed = t.Close(solution, result, s.now()); !changed {
			return nil
		}
		return tx.Save(&t).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &t, changed, nil
}

func (s *TicketService) AddImage(ctx context.Context, id, url string) (*model.Ticket, error) {
	if url == "" {
		return nil, errs.Validation("url", "is required")
	}
	var t model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTicket(tx, id, &t); err != nil {
			return err
		}
		if !t.AddImage(url) {
			return nil
		}
		return tx.Save(&t).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TicketService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Select("status, count(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func lockTicket(tx *gorm.DB, id string, t *model.Ticket) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(t).Error
	return notFound(err)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrTicketNotFound
	}
	return err
}
