package convert

import (
	"context"
	"errors"
	"strings"

	"github.com/tendant/simple-webp/internal/img"
	"github.com/tendant/simple-webp/internal/storage"
	"github.com/tendant/simple-webp/pkg/schema"
)

var (
	// ErrWrite marks a failure to store the converted object.
	ErrWrite = errors.New("write webp")
	// ErrPanic marks a task that panicked.
	ErrPanic = errors.New("conversion task panicked")
)

// classifyFailure tells event consumers whether retrying the key can help.
func classifyFailure(err error) schema.FailureType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, img.ErrInvalidQuality):
		return schema.FailureTypeValidation
	case errors.Is(err, img.ErrDecode), errors.Is(err, ErrPanic), errors.Is(err, storage.ErrNotFound):
		return schema.FailureTypePermanent
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return schema.FailureTypeRetryable
	case errors.Is(err, ErrWrite), errors.Is(err, storage.ErrStoreUnavailable):
		return schema.FailureTypeRetryable
	}

	errStr := err.Error()
	if strings.Contains(errStr, "unsupported") || strings.Contains(errStr, "permission denied") {
		return schema.FailureTypePermanent
	}
	return schema.FailureTypeRetryable
}
