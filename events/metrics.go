package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsListener экспортирует события runtime как метрики Prometheus.
//
// Метрики:
//   - conveyor_polls_total{task_type, result} — количество poll-запросов
//   - conveyor_task_executions_total{task_type, status} — количество выполнений
//   - conveyor_task_execution_seconds{task_type} — длительность выполнений
type MetricsListener struct {
	polls      *prometheus.CounterVec
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetricsListener создаёт listener и регистрирует метрики.
// reg == nil — используется prometheus.DefaultRegisterer.
func NewMetricsListener(reg prometheus.Registerer) *MetricsListener {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsListener{
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_polls_total",
			Help: "Number of poll requests by task type and result.",
		}, []string{"task_type", "result"}),

		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_task_executions_total",
			Help: "Number of task executions by task type and status.",
		}, []string{"task_type", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_task_execution_seconds",
			Help:    "Task execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),
	}
}

// Bind регистрирует listener на все интересующие его типы событий.
func (m *MetricsListener) Bind(d *Dispatcher) {
	d.Register(KindPollCompleted, m)
	d.Register(KindPollFailure, m)
	d.Register(KindTaskExecutionCompleted, m)
	d.Register(KindTaskExecutionFailure, m)
}

// OnEvent реализует Listener.
func (m *MetricsListener) OnEvent(e Event) {
	switch ev := e.(type) {
	case PollCompleted:
		m.polls.WithLabelValues(ev.TaskType, "ok").Inc()

	case PollFailure:
		m.polls.WithLabelValues(ev.TaskType, "error").Inc()

	case TaskExecutionCompleted:
		m.executions.WithLabelValues(ev.TaskType, string(ev.Status)).Inc()
		m.duration.WithLabelValues(ev.TaskType).Observe(ev.Duration.Seconds())

	case TaskExecutionFailure:
		m.executions.WithLabelValues(ev.TaskType, "WORKER_ERROR").Inc()
	}
}
