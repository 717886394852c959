package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sampling metrics
	SamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "displayfps_samples_total",
			Help: "Screen samples taken, by outcome",
		},
		[]string{"result"},
	)

	CaptureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "displayfps_capture_duration_seconds",
			Help:    "Time spent grabbing and fingerprinting one frame",
			Buckets: []float64{.0005, .001, .002, .004, .008, .016, .033, .066, .25},
		},
	)

	FramesPresented = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "displayfps_frames_presented_total",
			Help: "Frame changes detected on screen",
		},
	)

	// Output metrics
	RowsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "displayfps_rows_written_total",
			Help: "Rows appended to the record sink",
		},
	)

	LastBucketFPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "displayfps_bucket_fps",
			Help: "Presented frames counted in the most recently closed bucket",
		},
	)

	// Label metrics
	LabelFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "displayfps_label_failures_total",
			Help: "Foreground window queries that fell back to the sentinel label",
		},
		[]string{"reason"},
	)

	SessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "displayfps_session_state",
			Help: "Session state (0 idle, 1 delayed, 2 running, 3 stopped)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SamplesTotal,
		CaptureDuration,
		FramesPresented,
		RowsWritten,
		LastBucketFPS,
		LabelFailures,
		SessionState,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Listen binds the server address. Run calls it when it has not been called,
// but binding up front lets callers fail before doing any other work.
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.server.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.server.Addr
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	ln := s.ln
	s.logger.Info("starting metrics server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("stopping metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
