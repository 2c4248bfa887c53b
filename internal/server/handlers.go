package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/alerts"
	"github.com/ngmaloney/dive-relay/internal/coastal"
	"github.com/ngmaloney/dive-relay/internal/geo"
	"github.com/ngmaloney/dive-relay/internal/worker"
)

const (
	defaultTyphoonDays = 60
	maxTyphoonDays     = 366
	maxHeartRateLimit  = 1000
)

// point reads ?lat&lon, falling back to the tracked location when both are absent
func (s *Server) point(r *http.Request) (geo.Point, error) {
	q := r.URL.Query()
	latRaw, lonRaw := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lon"))
	if latRaw == "" && lonRaw == "" {
		return s.Tracker.CurrentOrDefault(), nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid lat %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid lon %q", lonRaw)
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("location %.4f,%.4f out of range", lat, lon)
	}
	return p, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if s.Weather == nil {
		unavailable(w, "weather client")
		return
	}
	p, err := s.point(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.Weather.FetchWeather(r.Context(), p.Lat, p.Lon)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTide(w http.ResponseWriter, r *http.Request) {
	if s.Tides == nil {
		unavailable(w, "tide client")
		return
	}
	p, err := s.point(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days, err := s.Tides.FetchTide(r.Context(), p.Lat, p.Lon)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	if days == nil {
		days = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tides": days})
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	if s.Points == nil {
		unavailable(w, "point client")
		return
	}
	p, err := s.point(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := s.Points.FetchFishingPoints(r.Context(), p.Lat, p.Lon)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleAir(w http.ResponseWriter, r *http.Request) {
	if s.Air == nil {
		unavailable(w, "air client")
		return
	}
	p, err := s.point(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	adminArea := ""
	if s.Geocoder != nil {
		region, err := s.Geocoder.Resolve(r.Context(), p.Lat, p.Lon)
		if err != nil {
			s.logger.Warn("reverse geocoding failed, using default province", zap.Error(err))
		}
		adminArea = region.AdminArea
	}
	summary, err := s.Air.AirQualitySummary(r.Context(), adminArea)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type typhoonPosition struct {
	Name     string   `json:"name"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Distance *float64 `json:"distance_km,omitempty"`
}

func (s *Server) handleTyphoons(w http.ResponseWriter, r *http.Request) {
	if s.Typhoons == nil {
		unavailable(w, "typhoon client")
		return
	}
	days, err := intParam(r, "days", defaultTyphoonDays)
	if err != nil || days < 1 || days > maxTyphoonDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxTyphoonDays))
		return
	}
	positions, err := s.Typhoons.FetchRecent(r.Context(), days)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}

	here := s.Tracker.CurrentOrDefault()
	items := make([]typhoonPosition, 0, len(positions))
	for _, pos := range positions {
		item := typhoonPosition{Name: pos.Name, Lat: pos.Lat, Lon: pos.Lon}
		if pos.Valid {
			km := geo.HaversineKm(here.Lat, here.Lon, pos.Lat, pos.Lon)
			item.Distance = &km
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "items": items})
}

func (s *Server) handleAccidents(w http.ResponseWriter, r *http.Request) {
	if !s.accidentsReady(w) {
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.Accidents.QueryByRegion(q.Get("region"), q.Get("type")))
}

func (s *Server) handleAccidentsTop(w http.ResponseWriter, r *http.Request) {
	if !s.accidentsReady(w) {
		return
	}
	limit, err := intParam(r, "limit", coastal.DefaultTopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items := s.Accidents.TopByType(r.URL.Query().Get("region"), limit)
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) accidentsReady(w http.ResponseWriter) bool {
	if s.Accidents == nil {
		unavailable(w, "accident dataset")
		return false
	}
	if err := s.Accidents.EnsureLoaded(); err != nil {
		s.logger.Error("loading accident dataset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "accident dataset unavailable")
		return false
	}
	return true
}

func (s *Server) handleSlopes(w http.ResponseWriter, r *http.Request) {
	if s.Slopes == nil {
		unavailable(w, "slope dataset")
		return
	}
	if err := s.Slopes.EnsureLoaded(); err != nil {
		s.logger.Error("loading slope dataset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "slope dataset unavailable")
		return
	}

	var items []coastal.Slope
	if raw := strings.TrimSpace(r.URL.Query().Get("min_gradient")); raw != "" {
		minGradient, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid min_gradient %q", raw))
			return
		}
		items = s.Slopes.QueryByGradient(minGradient)
	} else {
		items = s.Slopes.QueryByRegion(r.URL.Query().Get("region"))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type locationResponse struct {
	Point    geo.Point  `json:"point"`
	Reported bool       `json:"reported"`
	Source   string     `json:"source,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	fix, ok := s.Tracker.LastFix()
	if !ok {
		writeJSON(w, http.StatusOK, locationResponse{Point: s.Tracker.CurrentOrDefault()})
		return
	}
	writeJSON(w, http.StatusOK, locationResponse{Point: fix.Point, Reported: true, Source: fix.Source, At: &fix.At})
}

func (s *Server) handlePostLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	if err := s.Tracker.Update(geo.Point{Lat: *req.Lat, Lon: *req.Lon}, "api"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.handleGetLocation(w, r)
}

func (s *Server) checker(w http.ResponseWriter, r *http.Request) (alerts.Checker, bool) {
	kind := chi.URLParam(r, "kind")
	c, ok := s.Alerts[kind]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown alert kind %q", kind))
		return nil, false
	}
	return c, true
}

type accidentTestRequest struct {
	Region    string `json:"region"`
	PlaceType string `json:"place_se"`
	Accidents int    `json:"accidents"`
	DryRun    *bool  `json:"dry_run"`
}

func (s *Server) handleAlertTest(w http.ResponseWriter, r *http.Request) {
	c, ok := s.checker(w, r)
	if !ok {
		return
	}

	var (
		res alerts.Result
		err error
	)
	if c.Kind() == alerts.KindAccident && s.Accident != nil {
		var req accidentTestRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		res, err = s.Accident.SendTestWith(r.Context(), alerts.AccidentTestOptions{
			Region:    req.Region,
			PlaceType: req.PlaceType,
			Accidents: req.Accidents,
			DryRun:    req.DryRun,
		})
	} else {
		res, err = c.SendTest(r.Context())
	}
	s.writeResult(w, r, res, err)
}

func (s *Server) handleAlertCheck(w http.ResponseWriter, r *http.Request) {
	c, ok := s.checker(w, r)
	if !ok {
		return
	}
	p, err := s.point(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if c.Kind() != alerts.KindAccident || s.Accident == nil {
		res, err := c.Check(r.Context(), p)
		s.writeResult(w, r, res, err)
		return
	}

	opts, err := accidentOptions(r, s.Accident.Options())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.Accident.CheckWith(r.Context(), p, opts)
	s.writeResult(w, r, res, err)
}

// accidentOptions overrides defaults with ?threshold, ?cooldown, ?dry_run and ?region
func accidentOptions(r *http.Request, opts alerts.AccidentOptions) (alerts.AccidentOptions, error) {
	q := r.URL.Query()
	var err error
	if opts.Threshold, err = intParam(r, "threshold", opts.Threshold); err != nil {
		return opts, err
	}
	if raw := q.Get("cooldown"); raw != "" {
		if opts.Cooldown, err = time.ParseDuration(raw); err != nil {
			return opts, fmt.Errorf("invalid cooldown %q", raw)
		}
	}
	if raw := q.Get("dry_run"); raw != "" {
		if opts.DryRun, err = strconv.ParseBool(raw); err != nil {
			return opts, fmt.Errorf("invalid dry_run %q", raw)
		}
	}
	if region := strings.TrimSpace(q.Get("region")); region != "" {
		opts.Region = region
	}
	return opts, nil
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res alerts.Result, err error) {
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Scheduler.Reports()})
}

func (s *Server) handleJobRun(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	rep, err := s.Scheduler.RunOnce(r.Context(), chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, worker.ErrUnknownJob):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeJSON(w, http.StatusBadGateway, rep)
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		unavailable(w, "watch hub")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Hub.ConnectedNodes()})
}

func (s *Server) handleHeartRate(w http.ResponseWriter, r *http.Request) {
	if s.HeartRates == nil {
		unavailable(w, "heart rate store")
		return
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil || limit < 1 || limit > maxHeartRateLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHeartRateLimit))
		return
	}
	readings, err := s.HeartRates.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading heart rate history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "heart rate history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": readings})
}
