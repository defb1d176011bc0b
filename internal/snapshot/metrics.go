package snapshot

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/sentra-io/sentra/internal/snapshot")

var savesTotal metric.Int64Counter

func init() {
	var err error
	savesTotal, err = meter.Int64Counter("snapshot.saves.total",
		metric.WithDescription("Persisted engine snapshots"))
	if err != nil {
		savesTotal, _ = meter.Int64Counter("snapshot.saves.total.fallback")
	}
}
