package assistant

import (
	"context"

	"github.com/psds-microservice/field-service/internal/knowledge"
	"github.com/psds-microservice/field-service/internal/llm"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/tmc/langchaingo/llms"
)

// Suggester строит рекомендации по устранению неисправности из описания тикета
// и фрагментов руководства.
type Suggester struct {
	kb   knowledge.Retriever
	llm  *llm.Client
	topK int
}

func NewSuggester(kb knowledge.Retriever, client *llm.Client, topK int) *Suggester {
	return &Suggester{kb: kb, llm: client, topK: topK}
}

// Suggest возвращает ответ модели без изменений. Ошибки поиска — RetrievalError,
// ошибки модели — GenerationError; решение «создавать ли тикет без совета» за вызывающим.
func (s *Suggester) Suggest(ctx context.Context, t *model.Ticket) (string, error) {
	frags, err := s.kb.Retrieve(ctx, t.Description, s.topK)
	if err != nil {
		return "", err
	}
	system, err := format(suggestionPrompt, map[string]any{"manual": formatFragments(frags)})
	if err != nil {
		return "", err
	}
	input, err := format(suggestionInput, map[string]any{"description": t.Description})
	if err != nil {
		return "", err
	}
	return s.llm.Complete(ctx, "suggest",
		[]llms.MessageContent{llm.System(system), llm.Human(input)},
		llms.WithTemperature(0),
	)
}
