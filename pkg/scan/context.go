package scan

import "context"

type runIDKey struct{}

// ContextWithRunID tags ctx with the run it serves. Loggers built by the
// observability package stamp the ID on every record logged under ctx.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the ID stored by ContextWithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)

	return id
}
