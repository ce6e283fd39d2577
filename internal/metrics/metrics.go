// Package metrics exposes planner counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"task-planner/internal/schedule"
)

const namespace = "task_planner"

// Metrics implements reminder.Observer and service.TrackerObserver.
type Metrics struct {
	registry *prometheus.Registry

	remindersArmed     prometheus.Counter
	remindersCancelled prometheus.Counter
	remindersSkipped   *prometheus.CounterVec
	remindersDelivered *prometheus.CounterVec
	remindersPending   prometheus.Gauge
	trackerTicks       prometheus.Histogram
	transitions        *prometheus.CounterVec
	commands           *prometheus.CounterVec
	digestsSent        prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		remindersArmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_armed_total",
			Help:      "Start reminders armed on the alarm backend.",
		}),
		remindersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_cancelled_total",
			Help:      "Start reminders cancelled.",
		}),
		remindersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_skipped_total",
			Help:      "Reminders not armed, by reason.",
		}, []string{"reason"}),
		remindersDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_delivered_total",
			Help:      "Fired reminders by delivery result.",
		}, []string{"result"}),
		remindersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminders_pending",
			Help:      "Reminder triggers currently armed and not yet fired.",
		}),
		trackerTicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tracker_tick_seconds",
			Help:      "Duration of one status and progress tick.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Persisted task phase changes, by target phase.",
		}, []string{"to"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Bot commands handled.",
		}, []string{"command"}),
		digestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_digests_sent_total",
			Help:      "Daily unfinished-task summaries sent.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.remindersArmed,
		m.remindersCancelled,
		m.remindersSkipped,
		m.remindersDelivered,
		m.remindersPending,
		m.trackerTicks,
		m.transitions,
		m.commands,
		m.digestsSent,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReminderArmed()                { m.remindersArmed.Inc() }
func (m *Metrics) ReminderCancelled()            { m.remindersCancelled.Inc() }
func (m *Metrics) ReminderSkipped(reason string) { m.remindersSkipped.WithLabelValues(reason).Inc() }

// ReminderDelivered counts a fired reminder; result is "sent", "gone" or "error".
func (m *Metrics) ReminderDelivered(result string) {
	m.remindersDelivered.WithLabelValues(result).Inc()
}

func (m *Metrics) RemindersPending(n int) {
	m.remindersPending.Set(float64(n))
}

func (m *Metrics) TrackerTick(elapsed time.Duration) {
	m.trackerTicks.Observe(elapsed.Seconds())
}

func (m *Metrics) StatusTransition(to schedule.Phase) {
	m.transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) CommandHandled(command string) {
	m.commands.WithLabelValues(command).Inc()
}

func (m *Metrics) DigestSent() { m.digestsSent.Inc() }
