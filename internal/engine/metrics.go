package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/sentra-io/sentra/internal/engine")

var (
	eventsTotal   metric.Int64Counter
	acceptedTotal metric.Int64Counter
	rejectedTotal metric.Int64Counter
)

func init() {
	var err error
	eventsTotal, err = meter.Int64Counter("engine.events.total",
		metric.WithDescription("Events processed by the pipeline"))
	if err != nil {
		eventsTotal, _ = meter.Int64Counter("engine.events.total.fallback")
	}

	acceptedTotal, err = meter.Int64Counter("engine.events.accepted",
		metric.WithDescription("Events accepted by the moral filter"))
	if err != nil {
		acceptedTotal, _ = meter.Int64Counter("engine.events.accepted.fallback")
	}

	rejectedTotal, err = meter.Int64Counter("engine.events.rejected",
		metric.WithDescription("Events rejected by phase gating or the moral filter"))
	if err != nil {
		rejectedTotal, _ = meter.Int64Counter("engine.events.rejected.fallback")
	}
}
