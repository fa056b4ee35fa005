package utils

import (
	"context"
	"time"
)

// DefaultQueryTimeout bounds ordinary database queries issued by handlers.
const DefaultQueryTimeout = 30 * time.Second

// ImportJobTimeout bounds a whole background import run.
const ImportJobTimeout = 30 * time.Minute

// QueryContext returns a context with the given timeout for database work.
func QueryContext(parentCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	return context.WithTimeout(parentCtx, timeout)
}

// DefaultQueryContext returns a context with the default query timeout.
func DefaultQueryContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	return QueryContext(parentCtx, DefaultQueryTimeout)
}
