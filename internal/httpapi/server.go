package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/metrics"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/ports"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/samples"
)

const serviceName = "safeword"

// DetectionService is the slice of the supervisor the API needs.
type DetectionService interface {
	Start(ctx context.Context, cfg domain.ListenerConfig) error
	Stop(ctx context.Context) error
	Status() domain.ListenerStatus
}

// ActionService is the slice of the orchestrator the API needs.
type ActionService interface {
	Configure(cfg domain.ActionConfig) error
	Config() domain.ActionConfig
	TriggerManual(ctx context.Context) (domain.ActionRun, error)
	CancelPending() error
	Pending() (domain.ActionRun, bool)
	LastRun() (domain.ActionRun, bool)
	CooldownRemaining() time.Duration
}

// Deps carries everything the API serves.
type Deps struct {
	Detection DetectionService
	Actions   ActionService
	EventLog  ports.EventLog
	Samples   *samples.Store
	Hub       *Hub
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer

	DefaultListener domain.ListenerConfig
	EngineCommand   string
	FFMPEGCommand   string
	RecordingsDir   string
	Version         string
}

// Server exposes the detection and action controls over HTTP.
type Server struct {
	deps Deps
	log  *logrus.Entry
	http *http.Server
}

func NewServer(addr string, deps Deps, logger *logrus.Logger, readTimeout, writeTimeout time.Duration) *Server {
	s := &Server{
		deps: deps,
		log:  logger.WithField("component", "http"),
	}

	router := mux.NewRouter()
	router.Use(s.observeMiddleware, s.recoverMiddleware)
	s.routes(router)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/start-detection", s.handleStartDetection).Methods(http.MethodPost)
	r.HandleFunc("/stop-detection", s.handleStopDetection).Methods(http.MethodPost)

	r.HandleFunc("/trigger-alert", s.handleTriggerAlert).Methods(http.MethodPost)
	r.HandleFunc("/cancel-alert", s.handleCancelAlert).Methods(http.MethodPost)
	r.HandleFunc("/action-config", s.handleGetActionConfig).Methods(http.MethodGet)
	r.HandleFunc("/action-config", s.handleSetActionConfig).Methods(http.MethodPost)

	r.HandleFunc("/detection-events", s.handleDetectionEvents).Methods(http.MethodGet)
	r.HandleFunc("/recordings", s.handleRecordings).Methods(http.MethodGet)

	r.HandleFunc("/samples", s.handleListSamples).Methods(http.MethodGet)
	r.HandleFunc("/samples/stats", s.handleSampleStats).Methods(http.MethodGet)
	r.HandleFunc("/samples/clear", s.handleClearSamples).Methods(http.MethodPost)
	r.HandleFunc("/samples/{label}", s.handleUploadSample).Methods(http.MethodPost)
	r.HandleFunc("/samples/{label}/{filename}", s.handlePlaySample).Methods(http.MethodGet)
	r.HandleFunc("/samples/{label}/{filename}", s.handleDeleteSample).Methods(http.MethodDelete)

	r.HandleFunc("/check-engine", s.handleCheckEngine).Methods(http.MethodGet)
	r.Handle("/events", s.deps.Hub).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then drains connections within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.log.WithField("addr", s.http.Addr).Info("http server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.deps.Hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		s.deps.Metrics.HTTPRequestDuration.
			WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Debug("request handled")
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.WithFields(logrus.Fields{
					"panic": v,
					"path":  r.URL.Path,
				}).Error("handler panicked")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for logging and metrics. It
// forwards Hijack so the websocket upgrade keeps working behind the
// middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
