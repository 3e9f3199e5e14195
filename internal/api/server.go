package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aqib-ilyas/conflictlens/internal/forecast"
	"github.com/aqib-ilyas/conflictlens/internal/mapimage"
	"github.com/aqib-ilyas/conflictlens/internal/metrics"
	"github.com/aqib-ilyas/conflictlens/internal/models"
	"github.com/aqib-ilyas/conflictlens/internal/store"
)

//go:embed templates/*
var templateFS embed.FS

type Server struct {
	store    *store.Store
	engine   *forecast.Enricher
	mapCache *mapimage.Cache
	port     string
	tmpl     *template.Template
}

func NewServer(st *store.Store, engine *forecast.Enricher, port string) *Server {
	tmpl := template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
	return &Server{
		store:    st,
		engine:   engine,
		mapCache: mapimage.NewCache(),
		port:     port,
		tmpl:     tmpl,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.instrument("dashboard", s.handleDashboard))
	mux.HandleFunc("GET /api/info", s.instrument("info", s.handleInfo))
	mux.HandleFunc("GET /api/countries", s.instrument("countries", s.handleCountries))
	mux.HandleFunc("GET /api/forecasts/grid", s.instrument("forecasts_grid", s.handleForecastsByGrid))
	mux.HandleFunc("GET /api/forecasts/country/{id}", s.instrument("forecasts_country", s.handleForecastsByCountry))
	mux.HandleFunc("GET /api/forecasts/month/{id}", s.instrument("forecasts_month", s.handleForecastsByMonth))
	mux.HandleFunc("GET /api/map/month/{id}", s.instrument("map_month", s.handleMonthMap))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// instrument wraps a handler with request counting and latency observation.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		metrics.RequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.BasicInfo()
	if err != nil {
		s.writeError(w, err)
		return
	}
	countries, err := s.engine.CountrySummaries()
	if err != nil {
		s.writeError(w, err)
		return
	}

	latest := int64(0)
	if len(info.AvailableMonths) > 0 {
		latest = info.AvailableMonths[len(info.AvailableMonths)-1]
	}

	data := dashboardData{
		Info:        info,
		Countries:   countries,
		LatestMonth: latest,
		LatestLabel: forecast.CalendarString(latest),
	}
	if err := s.tmpl.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		log.Printf("api: render dashboard: %v", err)
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.BasicInfo()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.engine.CountrySummaries()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countries)
}

func (s *Server) handleForecastsByGrid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	gridIDs, err := parseIDList(q.Get("grid_ids"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	monthStart, err := parseOptionalInt(q.Get("month_start"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid month_start")
		return
	}
	monthEnd, err := parseOptionalInt(q.Get("month_end"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid month_end")
		return
	}
	sel, err := parseSelection(q)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.engine.ForecastsByGrid(gridIDs, monthStart, monthEnd, sel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondForecasts(w, records)
}

func (s *Server) handleForecastsByCountry(w http.ResponseWriter, r *http.Request) {
	countryID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid country id")
		return
	}

	q := r.URL.Query()
	monthStart, err := parseOptionalInt(q.Get("month_start"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid month_start")
		return
	}
	monthEnd, err := parseOptionalInt(q.Get("month_end"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid month_end")
		return
	}
	sel, err := parseSelection(q)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.engine.ForecastsByCountry(countryID, monthStart, monthEnd, sel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondForecasts(w, records)
}

func (s *Server) handleForecastsByMonth(w http.ResponseWriter, r *http.Request) {
	monthID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid month id")
		return
	}

	q := r.URL.Query()
	countryID, err := parseOptionalInt(q.Get("country_id"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid country_id")
		return
	}
	sel, err := parseSelection(q)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.engine.ForecastsByMonth(monthID, countryID, sel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondForecasts(w, records)
}

// respondForecasts range-checks the geolocation fields before anything leaves
// the process. A violation means corrupt source data or a broken fallback,
// which is an internal failure rather than a caller error.
func (s *Server) respondForecasts(w http.ResponseWriter, records []models.EnrichedForecast) {
	for i := range records {
		r := &records[i]
		if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
			s.writeError(w, fmt.Errorf("grid %d: latitude %v out of range", r.GridID, *r.Latitude))
			return
		}
		if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
			s.writeError(w, fmt.Errorf("grid %d: longitude %v out of range", r.GridID, *r.Longitude))
			return
		}
	}
	writeJSON(w, http.StatusOK, newForecastResponse(records))
}

func (s *Server) handleMonthMap(w http.ResponseWriter, r *http.Request) {
	monthID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid month id")
		return
	}

	if data, ok := s.mapCache.Get(monthID); ok {
		servePNG(w, data)
		return
	}

	records, err := s.engine.ForecastsByMonth(monthID, nil, models.DefaultMetricSelection())
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := mapimage.Render(records, forecast.CalendarString(monthID))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.mapCache.Set(monthID, data)
	servePNG(w, data)
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := healthResponse{Status: "ok", DataLoaded: s.store.Loaded()}
	status := http.StatusOK
	if !health.DataLoaded {
		health.Status = "loading"
		status = http.StatusServiceUnavailable
	} else {
		health.DatasetRows = make(map[string]int)
		for _, table := range []string{"grid_forecasts", "uncertainty_intervals", "grid_coordinates", "countries"} {
			n, err := s.store.CountRows(table)
			if err != nil {
				log.Printf("api: count %s: %v", table, err)
				continue
			}
			health.DatasetRows[table] = n
		}
	}
	writeJSON(w, status, health)
}

// writeError maps domain errors onto HTTP status codes: missing data is 404,
// bad input is 400, an unloaded store is 503, anything else is 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *forecast.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		writeErrorMessage(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, store.ErrNotLoaded):
		writeErrorMessage(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("api: internal error: %v", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("grid_ids is required")
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, errors.New("grid_ids must be a comma-separated list of integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOptionalInt(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseSelection reads the metric toggles off the query string, falling back
// to the defaults for any flag not supplied.
func parseSelection(q map[string][]string) (models.MetricSelection, error) {
	sel := models.DefaultMetricSelection()

	get := func(name string) string {
		if vs, ok := q[name]; ok && len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	var err error
	if sel.IncludeMap, err = parseBool(get("include_map"), sel.IncludeMap); err != nil {
		return sel, errors.New("invalid include_map")
	}
	if sel.IncludeHDI50, err = parseBool(get("include_hdi_50"), sel.IncludeHDI50); err != nil {
		return sel, errors.New("invalid include_hdi_50")
	}
	if sel.IncludeHDI90, err = parseBool(get("include_hdi_90"), sel.IncludeHDI90); err != nil {
		return sel, errors.New("invalid include_hdi_90")
	}
	if sel.IncludeHDI99, err = parseBool(get("include_hdi_99"), sel.IncludeHDI99); err != nil {
		return sel, errors.New("invalid include_hdi_99")
	}
	if sel.IncludeThresholds, err = parseBool(get("include_thresholds"), sel.IncludeThresholds); err != nil {
		return sel, errors.New("invalid include_thresholds")
	}

	if raw := get("conflict_types"); raw != "" {
		sel.ConflictTypes = nil
		for _, p := range strings.Split(raw, ",") {
			sel.ConflictTypes = append(sel.ConflictTypes, models.ConflictType(strings.TrimSpace(p)))
		}
	}
	return sel, nil
}

func parseBool(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}
