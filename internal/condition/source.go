package condition

import (
	"context"
	"errors"
	"fmt"

	"triggerpay/internal/model"
)

var (
	ErrNoSource  = errors.New("no condition source for condition kind")
	ErrMalformed = errors.New("malformed condition source response")
)

// Source returns the current observation for a source-specific key.
type Source interface {
	Fetch(ctx context.Context, key string) (model.Observation, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, key string) (model.Observation, error)

func (f SourceFunc) Fetch(ctx context.Context, key string) (model.Observation, error) {
	return f(ctx, key)
}

// Sources routes condition kinds to the source that observes them.
type Sources map[model.ConditionKind]Source

// For returns the source that serves c.
func (s Sources) For(c model.Condition) (Source, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil condition", ErrNoSource)
	}
	src, ok := s[c.Kind()]
	if !ok || src == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSource, c.Kind())
	}
	return src, nil
}

// StatusError is returned when a source answers with a non-2xx status.
type StatusError struct {
	Key  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("condition source returned %d for %s", e.Code, e.Key)
}
