package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pipeline"

// StepMetrics implements exec.Telemetry by recording Prometheus counters and
// a duration histogram per step, the same shape of metric the teacher's
// Prometheus exporter records per stage.
type StepMetrics struct {
	itemsConsumed *prometheus.CounterVec
	itemsProduced *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	clock func() time.Time
	start map[string]time.Time
}

// NewStepMetrics creates a StepMetrics and registers its collectors against
// reg. A nil reg uses prometheus.DefaultRegisterer.
func NewStepMetrics(reg prometheus.Registerer) *StepMetrics {
	m := &StepMetrics{
		itemsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "step_items_consumed_total",
			Help:      "Total number of items consumed by a step",
		}, []string{"step"}),
		itemsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "step_items_produced_total",
			Help:      "Total number of items produced by a step",
		}, []string{"step"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "step_duration_seconds",
			Help:      "Histogram of step invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "status"}),
		clock: time.Now,
		start: make(map[string]time.Time),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.itemsConsumed, m.itemsProduced, m.stepDuration)
	return m
}

func (m *StepMetrics) OnItemConsumed(_ context.Context, stepID string, _ any) {
	if _, ok := m.start[stepID]; !ok {
		m.start[stepID] = m.clock()
	}
	m.itemsConsumed.WithLabelValues(stepID).Inc()
}

func (m *StepMetrics) OnItemProduced(_ context.Context, stepID string, _ any) {
	m.itemsProduced.WithLabelValues(stepID).Inc()
}

func (m *StepMetrics) OnStepCompletedSingle(_ context.Context, stepID string, err error) {
	m.observeDuration(stepID, err)
}

func (m *StepMetrics) OnStepCompletedStream(_ context.Context, stepID string, err error) {
	m.observeDuration(stepID, err)
}

func (m *StepMetrics) observeDuration(stepID string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	started, ok := m.start[stepID]
	if !ok {
		started = m.clock()
	} else {
		delete(m.start, stepID)
	}
	m.stepDuration.WithLabelValues(stepID, status).Observe(m.clock().Sub(started).Seconds())
}
