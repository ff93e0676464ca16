package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thegr8khalee/em-furniture-and-interior-sub001"

// MergeResult labels the outcome of one merge attempt.
type MergeResult string

const (
	MergeApplied MergeResult = "applied"
	MergeNoop    MergeResult = "noop"
	MergeFailed  MergeResult = "failed"
)

// Metrics holds the shopping-state instruments. A zero Metrics is not
// usable; build it with NewMetrics.
type Metrics struct {
	merges          metric.Int64Counter
	prunedLines     metric.Int64Counter
	sessionsCreated metric.Int64Counter
	sessionsSwept   metric.Int64Counter
}

// NewMetrics registers instruments on meter, or on the global provider when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &Metrics{}
	var err error
	if m.merges, err = meter.Int64Counter("shopstate.merge.total",
		metric.WithDescription("Anonymous to account merges by result"),
		metric.WithUnit("{merges}")); err != nil {
		return nil, err
	}
	if m.prunedLines, err = meter.Int64Counter("shopstate.prune.lines",
		metric.WithDescription("Lines dropped because their catalog item no longer exists"),
		metric.WithUnit("{lines}")); err != nil {
		return nil, err
	}
	if m.sessionsCreated, err = meter.Int64Counter("shopstate.sessions.created",
		metric.WithDescription("Anonymous sessions issued"),
		metric.WithUnit("{sessions}")); err != nil {
		return nil, err
	}
	if m.sessionsSwept, err = meter.Int64Counter("shopstate.sessions.swept",
		metric.WithDescription("Expired anonymous sessions removed by the sweeper"),
		metric.WithUnit("{sessions}")); err != nil {
		return nil, err
	}
	return m, nil
}

// NopMetrics returns instruments backed by the global (no-op by default) provider.
func NopMetrics() *Metrics {
	m, err := NewMetrics(nil)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) RecordMerge(ctx context.Context, result MergeResult) {
	m.merges.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(result))))
}

func (m *Metrics) RecordPruned(ctx context.Context, collection string, n int) {
	if n == 0 {
		return
	}
	m.prunedLines.Add(ctx, int64(n), metric.WithAttributes(attribute.String("collection", collection)))
}

func (m *Metrics) RecordSessionCreated(ctx context.Context) {
	m.sessionsCreated.Add(ctx, 1)
}

func (m *Metrics) RecordSessionsSwept(ctx context.Context, n int64) {
	if n == 0 {
		return
	}
	m.sessionsSwept.Add(ctx, n)
}
