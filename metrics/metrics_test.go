package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	// All methods on a nil *Metrics must not panic.
	var m *Metrics

	m.RecordFrame(4096)
	m.RecordNoSignal()
	m.RecordSession(SessionAbandoned)
	m.RecordSent(4096)
	m.SetClients(2)
	m.RecordAccept()
	m.RecordReject(ReasonCapacity)
	m.RecordDrop(ReasonEOF)
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordFrame(4096)
	m.RecordFrame(8192)
	m.RecordNoSignal()
	m.RecordSent(4096 * 2)
	m.RecordSent(0)
	m.SetClients(2)
	m.RecordAccept()
	m.RecordAccept()
	m.RecordReject(ReasonCapacity)
	m.RecordDrop(ReasonWriteErr)
	m.RecordDrop(ReasonWriteErr)
	m.RecordSession(SessionAbandoned)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"frames", m.FramesReceived, 2},
		{"bytes received", m.BytesReceived, 12288},
		{"no signal", m.NoSignal, 1},
		{"bytes sent", m.BytesSent, 8192},
		{"clients", m.Clients, 2},
		{"accepted", m.ClientsAccepted, 2},
		{"rejected capacity", m.ClientsRejected.WithLabelValues(ReasonCapacity), 1},
		{"dropped write", m.ClientsDropped.WithLabelValues(ReasonWriteErr), 2},
		{"sessions abandoned", m.Sessions.WithLabelValues(SessionAbandoned), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNewMetrics_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)

	first.RecordNoSignal()
	if got := testutil.ToFloat64(second.NoSignal); got != 1 {
		t.Errorf("second.NoSignal = %v, want 1 (shared collector)", got)
	}
}

func TestNewMetrics_Unregistered(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordFrame(10)
	if got := testutil.ToFloat64(m.BytesReceived); got != 10 {
		t.Errorf("BytesReceived = %v, want 10", got)
	}
}

func TestServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordFrame(1)

	srv, err := Listen("127.0.0.1:0", reg)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), "usb2sock_usb_frames_received_total 1") {
		t.Errorf("response missing frames counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
