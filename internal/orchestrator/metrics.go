package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus counters and gauges for the core. All fields
// are registered on construction; a nil *Metrics disables collection.
type Metrics struct {
	tasksDispatched  prometheus.Counter
	tasksCompleted   prometheus.Counter
	tasksRetried     prometheus.Counter
	tasksFailed      prometheus.Counter
	tasksCancelled   prometheus.Counter
	cascadedFailures prometheus.Counter
	queueDepth       prometheus.Gauge
	workerHealth     *prometheus.GaugeVec
}

// NewMetrics creates and registers the core's collectors. Passing nil uses
// a private registry, which keeps tests and embedded cores from colliding
// on the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		tasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_tasks_dispatched_total",
			Help: "Number of task dispatches to workers.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_tasks_completed_total",
			Help: "Number of tasks completed successfully.",
		}),
		tasksRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_tasks_retried_total",
			Help: "Number of failed task attempts that were requeued.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_tasks_failed_total",
			Help: "Number of tasks that failed terminally.",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_tasks_cancelled_total",
			Help: "Number of tasks cancelled before completion.",
		}),
		cascadedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conductor_cascaded_failures_total",
			Help: "Number of tasks failed by upstream dependency failure.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_queue_depth",
			Help: "Number of ready tasks waiting for dispatch.",
		}),
		workerHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conductor_worker_health_score",
			Help: "Current health score per worker.",
		}, []string{"worker_id"}),
	}

	reg.MustRegister(
		m.tasksDispatched, m.tasksCompleted, m.tasksRetried, m.tasksFailed,
		m.tasksCancelled, m.cascadedFailures, m.queueDepth, m.workerHealth,
	)
	return m
}

func (m *Metrics) dispatched() {
	if m != nil {
		m.tasksDispatched.Inc()
	}
}

func (m *Metrics) completed() {
	if m != nil {
		m.tasksCompleted.Inc()
	}
}

func (m *Metrics) retried() {
	if m != nil {
		m.tasksRetried.Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.tasksFailed.Inc()
	}
}

func (m *Metrics) cancelled() {
	if m != nil {
		m.tasksCancelled.Inc()
	}
}

func (m *Metrics) cascaded() {
	if m != nil {
		m.cascadedFailures.Inc()
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) setWorkerHealth(workerID string, score float64) {
	if m != nil {
		m.workerHealth.WithLabelValues(workerID).Set(score)
	}
}

func (m *Metrics) dropWorker(workerID string) {
	if m != nil {
		m.workerHealth.DeleteLabelValues(workerID)
	}
}
