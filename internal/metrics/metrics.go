// Package metrics exposes the daemon's prometheus collectors.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kiln_control/internal/models"
)

const metricPrefix = "kiln_"

// Metrics bundles the daemon collectors. It observes the command channel,
// the control loop and the published status.
type Metrics struct {
	CommandsSent     *prometheus.CounterVec
	CommandResends   prometheus.Counter
	Messages         *prometheus.CounterVec
	MessagesDropped  prometheus.Counter
	SegmentsStarted  *prometheus.CounterVec
	SamplesRecorded  prometheus.Counter
	StorageErrors    *prometheus.CounterVec
	ProcessValue     prometheus.Gauge
	Setpoint         prometheus.Gauge
	SegmentType      prometheus.Gauge
	FiringActive     prometheus.Gauge
	ProgramElapsed   prometheus.Gauge
	SegmentRemaining prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New constructs the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		CommandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_sent_total",
				Help: "Controller commands written to the serial link by command type",
			},
			[]string{"command"},
		),
		CommandResends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "command_resends_total",
			Help: "Controller commands given up on after the resend timeout",
		}),
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "control_messages_total",
				Help: "Control messages received by kind",
			},
			[]string{"kind"},
		),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "control_messages_dropped_total",
			Help: "Malformed control messages dropped",
		}),
		SegmentsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "segments_started_total",
				Help: "Program segments activated by type",
			},
			[]string{"type"},
		),
		SamplesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "log_samples_total",
			Help: "Temperature samples written to the log",
		}),
		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "storage_errors_total",
				Help: "Failed storage writes by operation",
			},
			[]string{"op"},
		),
		ProcessValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "process_value",
			Help: "Last measured kiln temperature",
		}),
		Setpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "setpoint",
			Help: "Last commanded setpoint",
		}),
		SegmentType: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "segment_type",
			Help: "Current segment type code (1 AFAP, 2 Hold, 3 Pause, 4 Ramp)",
		}),
		FiringActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "firing_active",
			Help: "1 while a firing is running",
		}),
		ProgramElapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "firing_elapsed_seconds",
			Help: "Elapsed time of the current firing",
		}),
		SegmentRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "segment_remaining_seconds",
			Help: "Planned time left in the current Hold or Ramp segment",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.CommandsSent,
		m.CommandResends,
		m.Messages,
		m.MessagesDropped,
		m.SegmentsStarted,
		m.SamplesRecorded,
		m.StorageErrors,
		m.ProcessValue,
		m.Setpoint,
		m.SegmentType,
		m.FiringActive,
		m.ProgramElapsed,
		m.SegmentRemaining,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) CommandSent(cmd string) { m.CommandsSent.WithLabelValues(commandLabel(cmd)).Inc() }
func (m *Metrics) CommandLost(string)     { m.CommandResends.Inc() }

func (m *Metrics) SegmentStarted(t models.SegmentType) {
	m.SegmentsStarted.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) MessageReceived(kind models.MessageKind) {
	m.Messages.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) MessageDropped()         { m.MessagesDropped.Inc() }
func (m *Metrics) SampleRecorded()         { m.SamplesRecorded.Inc() }
func (m *Metrics) StorageFailed(op string) { m.StorageErrors.WithLabelValues(op).Inc() }

// Publish mirrors the live status into gauges.
func (m *Metrics) Publish(st models.LiveStatus) {
	m.ProcessValue.Set(float64(st.PV))
	m.Setpoint.Set(float64(st.SV))
	m.SegmentType.Set(float64(st.SegmentType))
	m.ProgramElapsed.Set(float64(st.TotalElapsed()))
	if st.Firing() {
		m.FiringActive.Set(1)
	} else {
		m.FiringActive.Set(0)
	}
	m.SegmentRemaining.Set(float64(max(st.SegmentPlanned-st.SegmentElapsed, 0)))
}

// commandLabel keeps label cardinality fixed: "poll", "put" or "write".
func commandLabel(cmd string) string {
	switch {
	case strings.HasPrefix(cmd, "*V"):
		return "poll"
	case strings.HasPrefix(cmd, "*P"):
		return "put"
	case strings.HasPrefix(cmd, "*W"):
		return "write"
	default:
		return "other"
	}
}
