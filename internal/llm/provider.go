package llm

import (
	"context"
	"fmt"

	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
}

// NewProvider создаёт OpenAI-совместимую модель и embedder на том же провайдере.
// Без APIKey возвращаются Disabled-заглушки: CRUD тикетов работает, генерация — нет.
func NewProvider(cfg ProviderConfig) (llms.Model, embeddings.Embedder, error) {
	if cfg.APIKey == "" {
		return Disabled{}, Disabled{}, nil
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("openai client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(m)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	return m, emb, nil
}

// Disabled — модель и embedder, которые всегда отвечают ErrLLMDisabled.
type Disabled struct{}

func (Disabled) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, errs.ErrLLMDisabled
}

func (Disabled) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errs.ErrLLMDisabled
}

func (Disabled) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errs.ErrLLMDisabled
}

func (Disabled) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errs.ErrLLMDisabled
}
