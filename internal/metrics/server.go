package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes reg's collectors on /metrics and a plain liveness check
// on /health, listening on its own port separate from the application's
// HTTP surface.
type Server struct {
	server *http.Server
	log    *zap.Logger
}

// NewServer builds a metrics server bound to ":"+port.
func NewServer(port string, reg *prometheus.Registry, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		server: &http.Server{Addr: ":" + port, Handler: mux},
		log:    log,
	}
}

// StartAsync starts the server in a background goroutine. A listen error
// other than a clean Shutdown is logged, not returned — callers observe
// failure via Stop's error or by the port never answering.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("metrics server stopped unexpectedly", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
