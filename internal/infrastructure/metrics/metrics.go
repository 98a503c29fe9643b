// Package metrics holds the OpenTelemetry instruments recorded by the relay
// and the Prometheus bridge that exposes them on /metrics.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "speech-relay"

// Failure and drop reasons used as the "reason" attribute.
const (
	ReasonBufferFull   = "buffer_full"
	ReasonClosed       = "closed"
	ReasonSendError    = "send_error"
	ReasonInvalidFrame = "invalid_frame"
	ReasonBinaryFrame  = "binary_frame"
)

// Relay groups the instruments of the event relay. All methods are safe for
// concurrent use.
type Relay struct {
	Connections      metric.Int64UpDownCounter
	EventsReceived   metric.Int64Counter
	EventsDelivered  metric.Int64Counter
	DeliveryFailures metric.Int64Counter
	FramesDropped    metric.Int64Counter
	DispatchDuration metric.Float64Histogram
}

var dispatchBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// New creates the relay instruments from mp.
func New(mp metric.MeterProvider) (*Relay, error) {
	m := mp.Meter(meterName)
	var err error
	r := &Relay{}

	if r.Connections, err = m.Int64UpDownCounter("relay.connections",
		metric.WithDescription("Number of live event connections."),
	); err != nil {
		return nil, err
	}
	if r.EventsReceived, err = m.Int64Counter("relay.events.received",
		metric.WithDescription("Events accepted for dispatch, by event name."),
	); err != nil {
		return nil, err
	}
	if r.EventsDelivered, err = m.Int64Counter("relay.events.delivered",
		metric.WithDescription("Per-connection deliveries, by event name."),
	); err != nil {
		return nil, err
	}
	if r.DeliveryFailures, err = m.Int64Counter("relay.delivery.failures",
		metric.WithDescription("Per-connection delivery failures, by reason."),
	); err != nil {
		return nil, err
	}
	if r.FramesDropped, err = m.Int64Counter("relay.frames.dropped",
		metric.WithDescription("Inbound frames dropped before dispatch, by reason."),
	); err != nil {
		return nil, err
	}
	if r.DispatchDuration, err = m.Float64Histogram("relay.dispatch.duration",
		metric.WithDescription("Time spent dispatching one event to every connection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dispatchBuckets...),
	); err != nil {
		return nil, err
	}

	return r, nil
}

// Nop returns instruments backed by the no-op meter provider.
func Nop() *Relay {
	r, err := New(noop.NewMeterProvider())
	if err != nil {
		panic("metrics: noop provider failed: " + err.Error())
	}
	return r
}

func (r *Relay) ConnectionOpened(ctx context.Context) { r.Connections.Add(ctx, 1) }
func (r *Relay) ConnectionClosed(ctx context.Context) { r.Connections.Add(ctx, -1) }

func (r *Relay) EventReceived(ctx context.Context, event string) {
	r.EventsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (r *Relay) EventDelivered(ctx context.Context, event string, n int) {
	if n == 0 {
		return
	}
	r.EventsDelivered.Add(ctx, int64(n), metric.WithAttributes(attribute.String("event", event)))
}

func (r *Relay) DeliveryFailed(ctx context.Context, reason string) {
	r.DeliveryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Relay) FrameDropped(ctx context.Context, reason string) {
	r.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Relay) DispatchObserved(ctx context.Context, d time.Duration) {
	r.DispatchDuration.Record(ctx, d.Seconds())
}
