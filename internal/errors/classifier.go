package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spounge-ai/easycache/pkg/cache"
)

type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassConfiguration
	ClassConnectivity
	ClassPoolExhausted
	ClassClosed
	ClassInvalidInput
	ClassCanceled
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassConnectivity:
		return "connectivity"
	case ClassPoolExhausted:
		return "pool_exhausted"
	case ClassClosed:
		return "closed"
	case ClassInvalidInput:
		return "invalid_input"
	case ClassCanceled:
		return "canceled"
	default:
		return "internal"
	}
}

// Classify maps an error returned by the cache core onto a class.
// Construction is checked first because it usually wraps a connectivity
// failure.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, cache.ErrConstruction):
		return ClassConfiguration
	case errors.Is(err, cache.ErrPoolExhausted):
		return ClassPoolExhausted
	case errors.Is(err, cache.ErrUnavailable):
		return ClassConnectivity
	case errors.Is(err, cache.ErrClosed):
		return ClassClosed
	case errors.Is(err, cache.ErrNilValue), errors.Is(err, cache.ErrInvalidDestination):
		return ClassInvalidInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassInternal
	}
}

// ErrorClassifier reports core failures to a structured logger.
type ErrorClassifier struct {
	logger *slog.Logger
}

func NewErrorClassifier(logger *slog.Logger) *ErrorClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorClassifier{logger: logger}
}

// Report logs err under operation and returns it unchanged. Caller mistakes
// and cancellations are logged at debug level; the rest at error level.
func (ec *ErrorClassifier) Report(ctx context.Context, err error, operation string, attrs ...any) error {
	if err == nil {
		return nil
	}

	class := Classify(err)
	args := append([]any{
		"operation", operation,
		"error_class", class.String(),
		"error", err.Error(),
	}, attrs...)

	switch class {
	case ClassInvalidInput, ClassCanceled, ClassClosed:
		ec.logger.DebugContext(ctx, "cache operation failed", args...)
	default:
		ec.logger.ErrorContext(ctx, "cache operation failed", args...)
	}
	return err
}
