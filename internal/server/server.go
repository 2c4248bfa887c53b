// Package server exposes the relay to the phone application layer over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/alerts"
	"github.com/ngmaloney/dive-relay/internal/bada"
	"github.com/ngmaloney/dive-relay/internal/coastal"
	"github.com/ngmaloney/dive-relay/internal/datagokr"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/geocoding"
	"github.com/ngmaloney/dive-relay/internal/heartrate"
	"github.com/ngmaloney/dive-relay/internal/location"
	"github.com/ngmaloney/dive-relay/internal/logging"
	"github.com/ngmaloney/dive-relay/internal/watch"
	"github.com/ngmaloney/dive-relay/internal/worker"
)

// WatchHub accepts watch connections and lists them
type WatchHub interface {
	http.Handler
	ConnectedNodes() []watch.NodeInfo
}

// HeartRateHistory returns stored readings, newest first
type HeartRateHistory interface {
	Recent(ctx context.Context, limit int) ([]heartrate.Reading, error)
}

// Scheduler is the part of the worker the API drives
type Scheduler interface {
	RunOnce(ctx context.Context, name string) (worker.Report, error)
	Reports() []worker.Report
}

// Deps are the collaborators of the server. Nil members disable their routes with 503.
type Deps struct {
	Hub        WatchHub
	Tracker    *location.Tracker
	Weather    bada.WeatherClient
	Tides      bada.TideClient
	Points     bada.PointClient
	Air        datagokr.AirClient
	Typhoons   datagokr.TyphoonClient
	Geocoder   geocoding.Resolver
	Accidents  *coastal.AccidentRepo
	Slopes     *coastal.SlopeRepo
	Alerts     alerts.Registry
	Accident   *alerts.AccidentManager
	Scheduler  Scheduler
	HeartRates HeartRateHistory
	Logger     *zap.Logger
}

// Server serves the HTTP API
type Server struct {
	Deps
	logger *zap.Logger
}

// New creates a server. A nil tracker is replaced by one at the default point.
func New(d Deps) *Server {
	if d.Tracker == nil {
		d.Tracker = location.NewTracker(geo.DefaultPoint)
	}
	return &Server{Deps: d, logger: logging.OrNop(d.Logger).Named("http")}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Hub != nil {
		r.Handle("/watch", s.Hub)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(s.logRequests)

		r.Get("/weather", s.handleWeather)
		r.Get("/tide", s.handleTide)
		r.Get("/points", s.handlePoints)
		r.Get("/air", s.handleAir)
		r.Get("/typhoons", s.handleTyphoons)

		r.Get("/accidents", s.handleAccidents)
		r.Get("/accidents/top", s.handleAccidentsTop)
		r.Get("/slopes", s.handleSlopes)

		r.Get("/location", s.handleGetLocation)
		r.Post("/location", s.handlePostLocation)

		r.Post("/alerts/{kind}/test", s.handleAlertTest)
		r.Post("/alerts/{kind}/check", s.handleAlertCheck)

		r.Get("/jobs", s.handleJobs)
		r.Post("/jobs/{name}/run", s.handleJobRun)

		r.Get("/nodes", s.handleNodes)
		r.Get("/heart-rate", s.handleHeartRate)
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeUpstreamError maps client errors: no data is 404, everything else 502
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, bada.ErrNoData) || errors.Is(err, datagokr.ErrNoData) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("upstream request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusBadGateway, err.Error())
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" not configured")
}
