// Package session хранит историю диалогов по session_id.
package session

import (
	"context"

	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/model"
)

// Store — хранилище сессий чата. Append для одной сессии упорядочен,
// разные сессии друг друга не блокируют.
type Store interface {
	// Append создаёт сессию при первом сообщении и дописывает msgs в конец.
	Append(ctx context.Context, sessionID string, msgs ...model.Message) error
	// History возвращает копию истории; для неизвестной сессии — пустой срез без ошибки.
	History(ctx context.Context, sessionID string) ([]model.Message, error)
	// Clear удаляет сессию и сообщает, существовала ли она.
	Clear(ctx context.Context, sessionID string) (bool, error)
	Len(ctx context.Context) (int, error)
}

func validate(sessionID string, msgs []model.Message) error {
	if sessionID == "" {
		return errs.Validation("session_id", "is required")
	}
	for _, m := range msgs {
		if !m.Role.Valid() {
			return errs.Validation("role", "must be one of system, user, assistant")
		}
	}
	return nil
}
