package instrument

import (
	"context"

	"github.com/google/uuid"
)

type correlationKey struct{}

// DefaultMaskFields are log keys whose values never leave the process.
var DefaultMaskFields = []string{"secret", "code", "key", "envelope", "ct", "password", "token"}

// SetCorrelationID stores id on ctx for log records and published events.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID returns ctx unchanged when it already carries an id and
// otherwise attaches a fresh time-ordered UUIDv7.
func EnsureCorrelationID(ctx context.Context) context.Context {
	if GetCorrelationID(ctx) != "" {
		return ctx
	}

	id, err := uuid.NewV7()
	if err != nil {
		return SetCorrelationID(ctx, uuid.NewString()) // fallback: uuidV4
	}
	return SetCorrelationID(ctx, id.String())
}

// GetCorrelationID returns the id stored on ctx, or "" when there is none.
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
