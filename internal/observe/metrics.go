// Package observe provides observability primitives for remotetrx:
// OpenTelemetry metric instruments for the audio relay and PTT state machine,
// and SDK provider initialisation with a Prometheus exporter bridge so
// metrics can be scraped via the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([Default]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all remotetrx metrics.
const meterName = "github.com/shackpi/remotetrx"

// Metrics holds all OpenTelemetry metric instruments for the bridge.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesForwarded counts frames actually delivered to their destination.
	// Attributes: direction ("rx" = radio→transport, "tx" = transport→radio).
	FramesForwarded metric.Int64Counter

	// FramesDropped counts frames lost before delivery. Attributes:
	// direction, reason ("overflow", "idle_discard", "transport_down",
	// "write_error").
	FramesDropped metric.Int64Counter

	// PTTTransitions counts state machine transitions. Attribute: state
	// (the state entered).
	PTTTransitions metric.Int64Counter

	// KeyDuration tracks how long each keyed period lasted, in seconds,
	// from assert to deassert (tail hang included).
	KeyDuration metric.Float64Histogram

	// TransportReconnects counts successful reconnections after a drop.
	TransportReconnects metric.Int64Counter

	// PTTFaults counts hardware-key write failures.
	PTTFaults metric.Int64Counter

	// RXLevel and TXLevel record the most recent frame levels in dBFS.
	RXLevel metric.Float64Gauge
	TXLevel metric.Float64Gauge
}

// keyDurationBuckets covers transmissions from a quick "roger" to a long
// overs, in seconds.
var keyDurationBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesForwarded, err = m.Int64Counter("remotetrx.frames.forwarded",
		metric.WithDescription("Audio frames delivered to their destination."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("remotetrx.frames.dropped",
		metric.WithDescription("Audio frames lost before delivery."),
	); err != nil {
		return nil, err
	}
	if met.PTTTransitions, err = m.Int64Counter("remotetrx.ptt.transitions",
		metric.WithDescription("PTT state machine transitions, by state entered."),
	); err != nil {
		return nil, err
	}
	if met.KeyDuration, err = m.Float64Histogram("remotetrx.ptt.key_duration",
		metric.WithDescription("Length of each keyed period in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(keyDurationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TransportReconnects, err = m.Int64Counter("remotetrx.transport.reconnects",
		metric.WithDescription("Successful transport reconnections."),
	); err != nil {
		return nil, err
	}
	if met.PTTFaults, err = m.Int64Counter("remotetrx.ptt.faults",
		metric.WithDescription("Hardware-key write failures."),
	); err != nil {
		return nil, err
	}
	if met.RXLevel, err = m.Float64Gauge("remotetrx.audio.rx_level",
		metric.WithDescription("Most recent RX frame level in dBFS."),
	); err != nil {
		return nil, err
	}
	if met.TXLevel, err = m.Float64Gauge("remotetrx.audio.tx_level",
		metric.WithDescription("Most recent TX frame level in dBFS."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Forwarded records one delivered frame for the given direction.
func (m *Metrics) Forwarded(ctx context.Context, direction string) {
	m.FramesForwarded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
	))
}

// Dropped records n lost frames for the given direction and reason.
func (m *Metrics) Dropped(ctx context.Context, direction, reason string, n int64) {
	m.FramesDropped.Add(ctx, n, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("reason", reason),
	))
}

// Transition records entry into a PTT state.
func (m *Metrics) Transition(ctx context.Context, state string) {
	m.PTTTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
	))
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the package-level default [Metrics], created lazily from
// the global meter provider.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument creation only fails on invalid instrument names.
			panic("observe: create default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
