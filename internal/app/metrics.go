package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"kernelctl/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the kernel's prometheus collectors on /metrics.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer listens on addr. Use port 0 for an ephemeral port.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the address the server listens on.
func (m *MetricsServer) Addr() string { return m.listener.Addr().String() }

// Start serves in the background.
func (m *MetricsServer) Start() {
	go func() {
		if err := m.server.Serve(m.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics", err, "Metrics server stopped")
		}
	}()
	logging.Info("Metrics", "Serving metrics on http://%s/metrics", m.Addr())
}

// Shutdown stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
