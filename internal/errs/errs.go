package errs

import (
	"errors"
	"fmt"
)

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrSessionNotFound = errors.New("session not found")
	// ErrLLMDisabled — LLM-провайдер не сконфигурирован (нет LLM_API_KEY).
	ErrLLMDisabled = errors.New("llm provider is not configured")
)

// ValidationError — нарушены обязательные поля или инвариант тикета.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// GenerationError — вызов LLM завершился ошибкой или таймаутом.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func Generation(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Op: op, Err: err}
}

// RetrievalError — запрос к базе знаний (векторному индексу) не удался.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %q: %v", e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func Retrieval(query string, err error) error {
	if err == nil {
		return nil
	}
	return &RetrievalError{Query: query, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsGeneration(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

func IsRetrieval(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}
