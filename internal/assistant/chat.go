package assistant

import (
	"context"

	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/llm"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/psds-microservice/field-service/internal/session"
	"github.com/tmc/langchaingo/llms"
)

// Chatter ведёт диалог с техником. История сессии копируется до вызова модели,
// блокировки хранилища на время генерации не держатся.
type Chatter struct {
	llm      *llm.Client
	sessions session.Store
}

func NewChatter(client *llm.Client, sessions session.Store) *Chatter {
	return &Chatter{llm: client, sessions: sessions}
}

// Reply — одиночный запрос без памяти.
func (c *Chatter) Reply(ctx context.Context, msgs []model.Message) (string, error) {
	if _, ok := model.LastUserMessage(msgs); !ok {
		return "", errs.Validation("messages", "no user message")
	}
	return c.llm.Complete(ctx, "chat", c.withSystem(msgs))
}

// Converse берёт последнее сообщение пользователя из запроса, отвечает с учётом
// истории сессии и дописывает в историю пару вопрос/ответ.
func (c *Chatter) Converse(ctx context.Context, sessionID string, msgs []model.Message) (string, error) {
	user, prompt, err := c.prepare(ctx, sessionID, msgs)
	if err != nil {
		return "", err
	}
	reply, err := c.llm.Complete(ctx, "lang_chat", prompt)
	if err != nil {
		return "", err
	}
	return reply, c.remember(ctx, sessionID, user, reply)
}

// ConverseStream — то же, что Converse, но ответ отдаётся фрагментами.
func (c *Chatter) ConverseStream(ctx context.Context, sessionID string, msgs []model.Message, onChunk func(string) error) (string, error) {
	user, prompt, err := c.prepare(ctx, sessionID, msgs)
	if err != nil {
		return "", err
	}
	reply, err := c.llm.Stream(ctx, "lang_chat_stream", prompt, onChunk)
	if err != nil {
		return "", err
	}
	return reply, c.remember(ctx, sessionID, user, reply)
}

func (c *Chatter) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	return c.sessions.History(ctx, sessionID)
}

func (c *Chatter) Clear(ctx context.Context, sessionID string) (bool, error) {
	return c.sessions.Clear(ctx, sessionID)
}

func (c *Chatter) prepare(ctx context.Context, sessionID string, msgs []model.Message) (model.Message, []llms.MessageContent, error) {
	user, ok := model.LastUserMessage(msgs)
	if !ok {
		return model.Message{}, nil, errs.Validation("messages", "no user message")
	}
	history, err := c.sessions.History(ctx, sessionID)
	if err != nil {
		return model.Message{}, nil, err
	}
	convo := append(history, user)
	return user, c.withSystem(convo), nil
}

func (c *Chatter) remember(ctx context.Context, sessionID string, user model.Message, reply string) error {
	return c.sessions.Append(ctx, sessionID, user, model.Message{Role: model.RoleAssistant, Content: reply})
}

// withSystem добавляет системную инструкцию, если клиент не передал свою.
func (c *Chatter) withSystem(msgs []model.Message) []llms.MessageContent {
	out := llm.Messages(msgs)
	if len(msgs) > 0 && msgs[0].Role == model.RoleSystem {
		return out
	}
	return append([]llms.MessageContent{llm.System(chatSystemPrompt)}, out...)
}
