/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "fedgate"

	inboxSubsystem  = "inbox"
	outboxSubsystem = "outbox"
)

// Provider records timings of federation operations.
type Provider interface {
	InboxHandlerTime(activityType string, value time.Duration)
	OutboxDeliveryTime(value time.Duration)
}

// PrometheusProvider records metrics with Prometheus.
type PrometheusProvider struct {
	inboxHandlerTime   *prometheus.HistogramVec
	outboxDeliveryTime prometheus.Histogram
}

// NewPrometheus returns a metrics provider that registers its collectors with the
// given registerer.
func NewPrometheus(registerer prometheus.Registerer) *PrometheusProvider {
	p := &PrometheusProvider{
		inboxHandlerTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: inboxSubsystem,
			Name:      "handler_seconds",
			Help:      "The time (in seconds) that it takes for an inbox listener to handle an activity.",
		}, []string{"type"}),
		outboxDeliveryTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: outboxSubsystem,
			Name:      "delivery_seconds",
			Help:      "The time (in seconds) that it takes to deliver an activity to a remote inbox.",
		}),
	}

	registerer.MustRegister(p.inboxHandlerTime, p.outboxDeliveryTime)

	return p
}

// InboxHandlerTime records the time taken by an inbox listener.
func (p *PrometheusProvider) InboxHandlerTime(activityType string, value time.Duration) {
	p.inboxHandlerTime.WithLabelValues(activityType).Observe(value.Seconds())
}

// OutboxDeliveryTime records the time taken to deliver an activity.
func (p *PrometheusProvider) OutboxDeliveryTime(value time.Duration) {
	p.outboxDeliveryTime.Observe(value.Seconds())
}

// NoOpProvider is a metrics provider that discards all measurements.
type NoOpProvider struct{}

// NewNoOp returns a metrics provider that discards all measurements.
func NewNoOp() *NoOpProvider {
	return &NoOpProvider{}
}

// InboxHandlerTime discards the measurement.
func (p *NoOpProvider) InboxHandlerTime(string, time.Duration) {}

// OutboxDeliveryTime discards the measurement.
func (p *NoOpProvider) OutboxDeliveryTime(time.Duration) {}
