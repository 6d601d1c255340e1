package errors_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/spounge-ai/easycache/internal/errors"
	"github.com/spounge-ai/easycache/pkg/cache"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ErrorClass
	}{
		{"construction wraps connectivity", fmt.Errorf("%w: %w", cache.ErrConstruction, cache.ErrUnavailable), apperrors.ClassConfiguration},
		{"pool exhausted", fmt.Errorf("write: %w", cache.ErrPoolExhausted), apperrors.ClassPoolExhausted},
		{"unavailable", fmt.Errorf("%w: dial refused", cache.ErrUnavailable), apperrors.ClassConnectivity},
		{"closed", cache.ErrClosed, apperrors.ClassClosed},
		{"nil value", cache.ErrNilValue, apperrors.ClassInvalidInput},
		{"deadline", fmt.Errorf("checkout: %w", context.DeadlineExceeded), apperrors.ClassCanceled},
		{"anything else", errors.New("boom"), apperrors.ClassInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.Classify(tt.err))
		})
	}
}

func TestErrorClassifier_Report(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))
	ec := apperrors.NewErrorClassifier(logger)

	assert.NoError(t, ec.Report(context.Background(), nil, "get"))
	assert.Empty(t, buf.String())

	err := fmt.Errorf("%w: read 127.0.0.1:6379", cache.ErrUnavailable)
	assert.Equal(t, err, ec.Report(context.Background(), err, "get", "key", "user:1"))
	assert.Contains(t, buf.String(), "error_class=connectivity")
	assert.Contains(t, buf.String(), "operation=get")
	assert.Contains(t, buf.String(), "key=user:1")

	buf.Reset()
	_ = ec.Report(context.Background(), cache.ErrNilValue, "insert")
	assert.Empty(t, buf.String(), "caller mistakes are logged below error level")
}
