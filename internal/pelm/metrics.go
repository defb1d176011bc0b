package pelm

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/sentra-io/sentra/internal/pelm")

var (
	entanglesTotal  metric.Int64Counter
	rejectionsTotal metric.Int64Counter
	retrievalsTotal metric.Int64Counter
)

func init() {
	var err error
	entanglesTotal, err = meter.Int64Counter("pelm.entangles.total",
		metric.WithDescription("Admitted memory writes"))
	if err != nil {
		entanglesTotal, _ = meter.Int64Counter("pelm.entangles.total.fallback")
	}

	rejectionsTotal, err = meter.Int64Counter("pelm.entangles.rejected",
		metric.WithDescription("Writes rejected by the admission policy"))
	if err != nil {
		rejectionsTotal, _ = meter.Int64Counter("pelm.entangles.rejected.fallback")
	}

	retrievalsTotal, err = meter.Int64Counter("pelm.retrievals.total",
		metric.WithDescription("Retrieval operations"))
	if err != nil {
		retrievalsTotal, _ = meter.Int64Counter("pelm.retrievals.total.fallback")
	}
}
