package otelhelper

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const QueueLatencyMetric = "devflow.queue.latency"

// QueueLatency records time spent by jobs between enqueue and consumption.
type QueueLatency struct {
	histogram metric.Float64Histogram
}

// NewQueueLatency builds the histogram on the global meter provider.
func NewQueueLatency(serviceName string) (*QueueLatency, error) {
	histogram, err := otel.Meter(serviceName).Float64Histogram(
		QueueLatencyMetric,
		metric.WithDescription("Time from job enqueue to worker consumption"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &QueueLatency{histogram: histogram}, nil
}

// RecordQueueLatency is a single histogram write.
func (q *QueueLatency) RecordQueueLatency(ctx context.Context, latency time.Duration, task string) {
	q.histogram.Record(ctx, float64(latency.Microseconds())/1000,
		metric.WithAttributes(attribute.String(TaskNameKey, task)))
}
