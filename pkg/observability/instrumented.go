package observability

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/emission"
)

// InstrumentedLedger wraps a Recorder with a span per call and the
// recording counters.
type InstrumentedLedger struct {
	next     emission.Recorder
	provider *Provider
}

var _ emission.Recorder = (*InstrumentedLedger)(nil)

// Instrument wraps next.
func (p *Provider) Instrument(next emission.Recorder) *InstrumentedLedger {
	return &InstrumentedLedger{next: next, provider: p}
}

func (l *InstrumentedLedger) RecordEmission(ctx context.Context, caller contracts.Identity, r contracts.Reading) (contracts.EmissionRecord, error) {
	p := l.provider
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "emission.RecordEmission",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vessel.id", r.VesselID),
			attribute.Bool("emission.is_eca", r.IsECA),
			attribute.Int64("emission.sulfur_content", clampInt64(r.SulfurContent)),
		),
	)
	defer span.End()

	rec, err := l.next.RecordEmission(ctx, caller, r)
	zone := attribute.Bool("emission.is_eca", r.IsECA)
	p.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(zone))

	if err != nil {
		kind := "internal"
		if k := contracts.KindOf(err); k != nil {
			kind = k.Error()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		p.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("rejection.kind", kind)))
		return rec, err
	}

	span.SetAttributes(
		attribute.String("emission.record_id", rec.ID),
		attribute.Int64("emission.sequence", clampInt64(rec.Sequence)),
		attribute.Bool("emission.is_compliant", rec.IsCompliant),
	)
	p.recordings.Add(ctx, 1, metric.WithAttributes(zone))
	if !rec.IsCompliant {
		p.violations.Add(ctx, 1, metric.WithAttributes(zone))
	}
	return rec, nil
}

// clampInt64 saturates v at MaxInt64; attributes have no unsigned type.
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func (l *InstrumentedLedger) GetEmissionHistory(ctx context.Context, vesselID string) ([]contracts.EmissionRecord, error) {
	ctx, done := l.provider.TrackOperation(ctx, "emission.GetEmissionHistory", attribute.String("vessel.id", vesselID))
	history, err := l.next.GetEmissionHistory(ctx, vesselID)
	done(err)
	return history, err
}
