// Package metrics exposes request and appliance state metrics in the
// Prometheus format. A nil *Collector is valid and records nothing, so the
// device client can be used without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/protocol"
)

// Collector holds the senville metric families.
type Collector struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	power       *prometheus.GaugeVec
	mode        *prometheus.GaugeVec
	setpoint    *prometheus.GaugeVec
	fanSpeed    *prometheus.GaugeVec
	indoorTemp  *prometheus.GaugeVec
	outdoorTemp *prometheus.GaugeVec
	lastUpdate  *prometheus.GaugeVec
}

// New creates an unregistered collector.
func New() *Collector {
	labels := []string{"device"}
	return &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "senville_requests_total",
			Help: "Requests sent to the unit by operation and result",
		}, []string{"device", "op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "senville_request_duration_seconds",
			Help:    "Round trip time of requests to the unit",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"device", "op"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senville_power_on",
			Help: "Whether the unit is running (1=on, 0=off)",
		}, labels),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senville_operation_mode",
			Help: "Operation mode reported by the unit (1=active)",
		}, []string{"device", "mode"}),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senville_setpoint_celsius",
			Help: "Target temperature (celsius)",
		}, labels),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senville_fan_speed",
			Help: "Fan speed setting (102=auto)",
		}, labels),
		indoorTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senville_indoor_temperature_celsius",
			Help: "Reported indoor temperature (celsius)",
		}, labels),
		outdoorTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senville_outdoor_temperature_celsius",
			Help: "Reported outdoor temperature (celsius)",
		}, labels),
		lastUpdate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senville_last_update_timestamp_seconds",
			Help: "Unix time of the last successful status read",
		}, labels),
	}
}

// Collectors returns every metric family, for registration.
func (c *Collector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.requests,
		c.latency,
		c.power,
		c.mode,
		c.setpoint,
		c.fanSpeed,
		c.indoorTemp,
		c.outdoorTemp,
		c.lastUpdate,
	}
}

// Register adds the collector's families to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range c.Collectors() {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRequest counts one request and records its duration.
func (c *Collector) ObserveRequest(device, op string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(device, op, Result(err)).Inc()
	c.latency.WithLabelValues(device, op).Observe(elapsed.Seconds())
}

// ObserveState records the last known appliance state of device.
func (c *Collector) ObserveState(device string, s protocol.ApplianceState) {
	if c == nil {
		return
	}
	c.power.WithLabelValues(device).Set(boolToFloat(s.Power))
	for _, m := range protocol.Modes {
		c.mode.WithLabelValues(device, m.String()).Set(boolToFloat(m == s.Mode))
	}
	c.setpoint.WithLabelValues(device).Set(s.SetpointC)
	c.fanSpeed.WithLabelValues(device).Set(float64(s.FanPercent()))

	if s.IndoorC != nil {
		c.indoorTemp.WithLabelValues(device).Set(*s.IndoorC)
	} else {
		c.indoorTemp.DeleteLabelValues(device)
	}
	if s.OutdoorC != nil {
		c.outdoorTemp.WithLabelValues(device).Set(*s.OutdoorC)
	} else {
		c.outdoorTemp.DeleteLabelValues(device)
	}
	c.lastUpdate.WithLabelValues(device).SetToCurrentTime()
}

// Handler serves the metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Result maps an error onto the result label.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	switch midea.KindOf(err) {
	case midea.KindDiscoveryTimeout:
		return "discovery_timeout"
	case midea.KindConnect:
		return "connect_error"
	case midea.KindAuth:
		return "auth_error"
	case midea.KindTimeout:
		return "timeout"
	case midea.KindConnectionLost:
		return "connection_lost"
	case midea.KindDecode:
		return "decode_error"
	case midea.KindIntegrity:
		return "integrity_error"
	case midea.KindValidation:
		return "validation_error"
	default:
		return "error"
	}
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
