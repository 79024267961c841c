package checkout

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xenking/counter-checkout/internal/domain/checkout"

// Instruments holds the metrics and tracer shared by all orchestrators.
type Instruments struct {
	tracer          trace.Tracer
	salesCompleted  metric.Int64Counter
	persistFailures metric.Int64Counter
	receiptFailures metric.Int64Counter
}

// NewInstruments creates checkout instruments from the given providers.
func NewInstruments(mp metric.MeterProvider, tp trace.TracerProvider) (*Instruments, error) {
	meter := mp.Meter(instrumentationName)

	completed, err := meter.Int64Counter("pos.sales.completed",
		metric.WithDescription("Sales persisted by the checkout workflow"))
	if err != nil {
		return nil, errors.Wrap(err, "sales counter")
	}
	persistFailures, err := meter.Int64Counter("pos.sales.persist_failures",
		metric.WithDescription("Sale persistence attempts that failed"))
	if err != nil {
		return nil, errors.Wrap(err, "persist failure counter")
	}
	receiptFailures, err := meter.Int64Counter("pos.receipts.failures",
		metric.WithDescription("Receipt deliveries that failed"))
	if err != nil {
		return nil, errors.Wrap(err, "receipt failure counter")
	}

	return &Instruments{
		tracer:          tp.Tracer(instrumentationName),
		salesCompleted:  completed,
		persistFailures: persistFailures,
		receiptFailures: receiptFailures,
	}, nil
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	ins, _ := NewInstruments(metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	return ins
}
