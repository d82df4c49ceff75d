package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	repoMetricsOnce sync.Once
	repoCounter     metric.Int64Counter
)

// RecordRepositoryOperation counts a durable-store operation by entity, op and
// outcome. Uses the global meter lazily so repositories work before (and
// without) SDK initialization.
func RecordRepositoryOperation(ctx context.Context, entity, op, outcome string) {
	repoMetricsOnce.Do(func() {
		counter, err := otel.Meter("session-authority-service").Int64Counter("repository.operations")
		if err == nil {
			repoCounter = counter
		}
	})
	if repoCounter == nil {
		return
	}
	repoCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
