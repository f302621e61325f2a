// Package llmtest — поддельная llms.Model для тестов.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Call — один зафиксированный вызов модели.
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// Prompt склеивает текстовые части всех сообщений вызова.
func (c Call) Prompt() string {
	var b strings.Builder
	for _, m := range c.Messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				b.WriteString(t.Text)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// Fake отвечает функцией Respond. В режиме стриминга ответ отдаётся
// фрагментами по Chunk байт через StreamingFunc.
type Fake struct {
	Respond func(ctx context.Context, call Call) (string, error)
	Chunk   int

	mu    sync.Mutex
	calls []Call
}

// Reply — Fake, который всегда возвращает text.
func Reply(text string) *Fake {
	return &Fake{Respond: func(context.Context, Call) (string, error) { return text, nil }}
}

// Fail — Fake, который всегда возвращает err.
func Fail(err error) *Fake {
	return &Fake{Respond: func(context.Context, Call) (string, error) { return "", err }}
}

func (f *Fake) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	call := Call{Messages: msgs, Options: opts}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	text, err := f.Respond(ctx, call)
	if err != nil {
		return nil, err
	}
	if opts.StreamingFunc != nil {
		size := f.Chunk
		if size <= 0 {
			size = 4
		}
		for i := 0; i < len(text); i += size {
			end := min(i+size, len(text))
			if err := opts.StreamingFunc(ctx, []byte(text[i:end])); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (f *Fake) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Embedder — детерминированные эмбеддинги: мешок слов по фиксированному словарю.
type Embedder struct {
	Vocabulary []string
}

func (e Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e Embedder) vector(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(e.Vocabulary)+1)
	for i, w := range e.Vocabulary {
		v[i] = float32(strings.Count(text, w))
	}
	// ненулевой вектор для текста без слов словаря
	v[len(e.Vocabulary)] = 0.01
	return v
}
