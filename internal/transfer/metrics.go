package transfer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespaceConstant   = "repofleet"
	metricsSubsystemConstant   = "transfer"
	tasksMetricNameConstant    = "tasks_total"
	tasksMetricHelpConstant    = "Clone and push tasks by kind and result."
	durationMetricNameConstant = "task_duration_seconds"
	durationMetricHelpConstant = "Duration of clone and push tasks."
	chunksMetricNameConstant   = "chunks_total"
	chunksMetricHelpConstant   = "Chunks of concurrent tasks started."
	retriesMetricNameConstant  = "push_retries_total"
	retriesMetricHelpConstant  = "Push attempts beyond the first."
	kindLabelConstant          = "kind"
	resultLabelConstant        = "result"
	resultSucceededConstant    = "succeeded"
	resultUpToDateConstant     = "up_to_date"
	resultFailedConstant       = "failed"
)

// Metrics records transfer activity. A nil *Metrics records nothing.
type Metrics struct {
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	chunks   *prometheus.CounterVec
	retries  prometheus.Counter
}

// NewMetrics registers transfer collectors with registerer. Collectors that are
// already registered are reused.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespaceConstant,
		Subsystem: metricsSubsystemConstant,
		Name:      tasksMetricNameConstant,
		Help:      tasksMetricHelpConstant,
	}, []string{kindLabelConstant, resultLabelConstant})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespaceConstant,
		Subsystem: metricsSubsystemConstant,
		Name:      durationMetricNameConstant,
		Help:      durationMetricHelpConstant,
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{kindLabelConstant})
	chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespaceConstant,
		Subsystem: metricsSubsystemConstant,
		Name:      chunksMetricNameConstant,
		Help:      chunksMetricHelpConstant,
	}, []string{kindLabelConstant})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespaceConstant,
		Subsystem: metricsSubsystemConstant,
		Name:      retriesMetricNameConstant,
		Help:      retriesMetricHelpConstant,
	})

	metrics := &Metrics{}
	var registrationError error
	if metrics.tasks, registrationError = registerCollector(registerer, tasks); registrationError != nil {
		return nil, registrationError
	}
	if metrics.duration, registrationError = registerCollector(registerer, duration); registrationError != nil {
		return nil, registrationError
	}
	if metrics.chunks, registrationError = registerCollector(registerer, chunks); registrationError != nil {
		return nil, registrationError
	}
	if metrics.retries, registrationError = registerCollector(registerer, retries); registrationError != nil {
		return nil, registrationError
	}
	return metrics, nil
}

func registerCollector[C prometheus.Collector](registerer prometheus.Registerer, collector C) (C, error) {
	if registrationError := registerer.Register(collector); registrationError != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(registrationError, &alreadyRegistered) {
			if existing, matches := alreadyRegistered.ExistingCollector.(C); matches {
				return existing, nil
			}
		}
		return collector, registrationError
	}
	return collector, nil
}

func (metrics *Metrics) observeTask(kind Kind, outcome Outcome, elapsed time.Duration) {
	if metrics == nil {
		return
	}
	result := resultFailedConstant
	switch {
	case outcome.UpToDate:
		result = resultUpToDateConstant
	case outcome.Succeeded:
		result = resultSucceededConstant
	}
	metrics.tasks.WithLabelValues(string(kind), result).Inc()
	metrics.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (metrics *Metrics) observeChunk(kind Kind) {
	if metrics == nil {
		return
	}
	metrics.chunks.WithLabelValues(string(kind)).Inc()
}

func (metrics *Metrics) observeRetry() {
	if metrics == nil {
		return
	}
	metrics.retries.Inc()
}
