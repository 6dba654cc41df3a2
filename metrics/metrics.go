package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "usb2sock"

// Session results.
const (
	SessionAbandoned = "abandoned"
	SessionFatal     = "fatal"
	SessionStopped   = "stopped"
)

// Client rejection and drop reasons.
const (
	ReasonCapacity  = "capacity"
	ReasonAddress   = "address"
	ReasonSetup     = "setup"
	ReasonEOF       = "eof"
	ReasonReadError = "read_error"
	ReasonWriteErr  = "write_error"
	ReasonShutdown  = "shutdown"
)

// Metrics provides Prometheus instruments for the bridge.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// FramesReceived counts bulk reads that returned data.
	FramesReceived prometheus.Counter

	// BytesReceived counts payload bytes read from the device.
	BytesReceived prometheus.Counter

	// BytesSent counts payload bytes written to clients, summed over clients.
	BytesSent prometheus.Counter

	// NoSignal counts bulk reads that timed out with no data.
	NoSignal prometheus.Counter

	// Sessions counts finished USB sessions by result.
	// Label values: "abandoned", "fatal", "stopped".
	Sessions *prometheus.CounterVec

	// Clients tracks the number of connected TCP clients.
	Clients prometheus.Gauge

	// ClientsAccepted counts clients added to the registry.
	ClientsAccepted prometheus.Counter

	// ClientsRejected counts accepted sockets closed before registration.
	// Label values: "capacity", "address", "setup".
	ClientsRejected *prometheus.CounterVec

	// ClientsDropped counts registered clients removed.
	// Label values: "eof", "read_error", "write_error", "shutdown".
	ClientsDropped *prometheus.CounterVec
}

// NewMetrics creates and registers bridge metrics with reg. If reg is nil,
// metrics are created but not registered.
//
// Collectors already present in reg are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usb",
			Name:      "frames_received_total",
			Help:      "Total number of bulk reads that returned data",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usb",
			Name:      "bytes_received_total",
			Help:      "Total number of payload bytes read from the device",
		}),
		NoSignal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usb",
			Name:      "no_signal_total",
			Help:      "Total number of bulk reads that timed out without data",
		}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usb",
			Name:      "sessions_total",
			Help:      "Total number of finished USB sessions by result",
		}, []string{"result"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "bytes_sent_total",
			Help:      "Total number of payload bytes written to clients",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "clients",
			Help:      "Current number of connected clients",
		}),
		ClientsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "clients_accepted_total",
			Help:      "Total number of clients added to the registry",
		}),
		ClientsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "clients_rejected_total",
			Help:      "Total number of accepted sockets closed before registration",
		}, []string{"reason"}),
		ClientsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "clients_dropped_total",
			Help:      "Total number of registered clients removed",
		}, []string{"reason"}),
	}

	if reg != nil {
		m.FramesReceived = registerOrReuse(reg, m.FramesReceived).(prometheus.Counter)
		m.BytesReceived = registerOrReuse(reg, m.BytesReceived).(prometheus.Counter)
		m.NoSignal = registerOrReuse(reg, m.NoSignal).(prometheus.Counter)
		m.Sessions = registerOrReuse(reg, m.Sessions).(*prometheus.CounterVec)
		m.BytesSent = registerOrReuse(reg, m.BytesSent).(prometheus.Counter)
		m.Clients = registerOrReuse(reg, m.Clients).(prometheus.Gauge)
		m.ClientsAccepted = registerOrReuse(reg, m.ClientsAccepted).(prometheus.Counter)
		m.ClientsRejected = registerOrReuse(reg, m.ClientsRejected).(*prometheus.CounterVec)
		m.ClientsDropped = registerOrReuse(reg, m.ClientsDropped).(*prometheus.CounterVec)
	}

	return m
}

// registerOrReuse registers c, returning the existing collector when an
// identical one is already registered.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// RecordFrame counts one bulk read of n bytes.
func (m *Metrics) RecordFrame(n int) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	m.BytesReceived.Add(float64(n))
}

// RecordNoSignal counts one empty read timeout.
func (m *Metrics) RecordNoSignal() {
	if m == nil {
		return
	}
	m.NoSignal.Inc()
}

// RecordSession counts one finished session with the given result.
func (m *Metrics) RecordSession(result string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(result).Inc()
}

// RecordSent counts n bytes written to clients.
func (m *Metrics) RecordSent(n int) {
	if m == nil || n == 0 {
		return
	}
	m.BytesSent.Add(float64(n))
}

// SetClients sets the connected client gauge.
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.Clients.Set(float64(n))
}

// RecordAccept counts one registered client.
func (m *Metrics) RecordAccept() {
	if m == nil {
		return
	}
	m.ClientsAccepted.Inc()
}

// RecordReject counts one socket closed before registration.
func (m *Metrics) RecordReject(reason string) {
	if m == nil {
		return
	}
	m.ClientsRejected.WithLabelValues(reason).Inc()
}

// RecordDrop counts one registered client removed.
func (m *Metrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	m.ClientsDropped.WithLabelValues(reason).Inc()
}
