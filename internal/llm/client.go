// Package llm — обёртка над langchaingo для вызовов внешней модели:
// таймаут на каждый вызов, ошибки как GenerationError, метрики по операциям.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/metrics"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/tmc/langchaingo/llms"
)

type Client struct {
	model   llms.Model
	timeout time.Duration
}

func NewClient(m llms.Model, timeout time.Duration) *Client {
	return &Client{model: m, timeout: timeout}
}

// Complete возвращает текст первого варианта ответа.
func (c *Client) Complete(ctx context.Context, op string, msgs []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	return c.generate(ctx, op, msgs, opts)
}

// CompleteJSON запрашивает JSON, снимает markdown-ограждение и декодирует в out.
// Если out умеет Validate(), результат проверяется; нарушение схемы — тоже GenerationError.
func (c *Client) CompleteJSON(ctx context.Context, op string, msgs []llms.MessageContent, out any, opts ...llms.CallOption) error {
	opts = append(opts, llms.WithJSONMode())
	text, err := c.generate(ctx, op, msgs, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripCodeFence(text)), out); err != nil {
		return errs.Generation(op, fmt.Errorf("decode structured output: %w", err))
	}
	if v, ok := out.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return errs.Generation(op, fmt.Errorf("structured output: %w", err))
		}
	}
	return nil
}

// Stream отдаёт фрагменты ответа в onChunk по мере генерации и возвращает полный текст.
// Ошибка onChunk (клиент отключился) прерывает генерацию.
func (c *Client) Stream(ctx context.Context, op string, msgs []llms.MessageContent, onChunk func(string) error, opts ...llms.CallOption) (string, error) {
	opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return onChunk(string(chunk))
	}))
	return c.generate(ctx, op, msgs, opts)
}

func (c *Client) generate(ctx context.Context, op string, msgs []llms.MessageContent, opts []llms.CallOption) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, msgs, opts...)
	if err == nil && (resp == nil || len(resp.Choices) == 0) {
		err = errors.New("empty response")
	}
	if err != nil {
		// ошибка клиента часто не оборачивает ctx.Err()
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.ObserveLLM(op, outcome, time.Since(start))
		return "", errs.Generation(op, err)
	}
	metrics.ObserveLLM(op, "ok", time.Since(start))
	return resp.Choices[0].Content, nil
}

// StripCodeFence убирает обёртку ```json ... ```, которую модели добавляют вопреки инструкции.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Messages переводит историю чата в формат langchaingo.
func Messages(msgs []model.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llms.TextParts(chatType(m.Role), m.Content))
	}
	return out
}

func chatType(r model.Role) llms.ChatMessageType {
	switch r {
	case model.RoleSystem:
		return llms.ChatMessageTypeSystem
	case model.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func System(text string) llms.MessageContent {
	return llms.TextParts(llms.ChatMessageTypeSystem, text)
}

func Human(text string) llms.MessageContent {
	return llms.TextParts(llms.ChatMessageTypeHuman, text)
}
