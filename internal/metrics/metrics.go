// Package metrics exposes device and command telemetry to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tvbridge"

// Recorder holds tvbridge collectors. A nil *Recorder records nothing.
type Recorder struct {
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	probeFailures *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	commands      *prometheus.CounterVec
	connected     *prometheus.GaugeVec
	volume        *prometheus.GaugeVec
	screenOn      *prometheus.GaugeVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_cycles_total",
			Help:      "Coordinator update cycles by outcome.",
		}, []string{"device", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_cycle_seconds",
			Help:      "Duration of coordinator update cycles.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"device"}),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Probes that returned no reading.",
		}, []string{"device", "probe"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Forced reconnects after repeated connection check failures.",
		}, []string{"device"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Control commands by name and outcome.",
		}, []string{"device", "command", "result"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_connected",
			Help:      "1 when the device has a verified ADB session.",
		}, []string{"device"}),
		volume: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_volume_percent",
			Help:      "Music stream volume as a percentage of its range.",
		}, []string{"device"}),
		screenOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_screen_on",
			Help:      "1 when the display is on.",
		}, []string{"device"}),
	}
	reg.MustRegister(r.cycles, r.cycleDuration, r.probeFailures, r.reconnects,
		r.commands, r.connected, r.volume, r.screenOn)
	return r
}

// ObserveCycle records one update cycle.
func (r *Recorder) ObserveCycle(device string, ok bool, d time.Duration) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(device, result(ok)).Inc()
	r.cycleDuration.WithLabelValues(device).Observe(d.Seconds())
}

// ProbeFailed counts a probe that produced no reading.
func (r *Recorder) ProbeFailed(device, probe string) {
	if r == nil {
		return
	}
	r.probeFailures.WithLabelValues(device, probe).Inc()
}

// Reconnect counts a forced reconnect.
func (r *Recorder) Reconnect(device string) {
	if r == nil {
		return
	}
	r.reconnects.WithLabelValues(device).Inc()
}

// Command counts a control command.
func (r *Recorder) Command(device, command string, ok bool) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(device, command, result(ok)).Inc()
}

// SetState publishes the gauges derived from a snapshot.
func (r *Recorder) SetState(device string, connected, screenOn bool, volumePct float64) {
	if r == nil {
		return
	}
	r.connected.WithLabelValues(device).Set(boolGauge(connected))
	r.screenOn.WithLabelValues(device).Set(boolGauge(screenOn))
	r.volume.WithLabelValues(device).Set(volumePct)
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
