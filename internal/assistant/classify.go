package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/psds-microservice/field-service/internal/llm"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/tmc/langchaingo/llms"
)

// Classifier определяет код неисправности по снимку телеметрии лифта.
type Classifier struct {
	llm *llm.Client
}

func NewClassifier(client *llm.Client) *Classifier {
	return &Classifier{llm: client}
}

func (c *Classifier) Classify(ctx context.Context, r model.TelemetryReading) (*model.FaultClassification, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	prompt, err := format(classifyPrompt, map[string]any{"reading": string(data)})
	if err != nil {
		return nil, err
	}
	var out model.FaultClassification
	if err := c.llm.CompleteJSON(ctx, "classify", []llms.MessageContent{llm.Human(prompt)}, &out,
		llms.WithTemperature(0),
	); err != nil {
		return nil, err
	}
	return &out, nil
}
