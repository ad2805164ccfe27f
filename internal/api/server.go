package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/logger"
)

// Scanner is the part of engine.Coordinator the API serves.
type Scanner interface {
	TriggerScan(ctx context.Context) (string, error)
	Status() engine.ScanState
	Results() *engine.ResultSet
	Opportunities(q engine.OpportunityQuery) []engine.Opportunity
	History(ctx context.Context, limit int) ([]engine.ScanRecord, error)
	LookupItemPrices(ctx context.Context, name string) (*engine.PriceLookup, error)
}

// HealthChecker reports whether ESI is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Server is the HTTP API over the scan coordinator.
type Server struct {
	scanner Scanner
	health  HealthChecker
	metrics http.Handler
	version string
}

// NewServer creates a Server. health and metrics may be nil.
func NewServer(scanner Scanner, health HealthChecker, metrics http.Handler, version string) *Server {
	return &Server{scanner: scanner, health: health, metrics: metrics, version: version}
}

// Handler returns the HTTP handler with all API routes and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/scan/status", s.handleScanStatus)
	mux.HandleFunc("POST /api/scan/run", s.handleScanRun)
	mux.HandleFunc("GET /api/scan/history", s.handleScanHistory)
	mux.HandleFunc("GET /api/opportunities", s.handleOpportunities)
	mux.HandleFunc("GET /api/prices/{name}", s.handlePrices)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return corsMiddleware(logRequests(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		l := logger.With("HTTP")
		l.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
	}
	if s.health != nil {
		result["esi_ok"] = s.health.HealthCheck(r.Context())
	}
	writeJSON(w, result)
}

type scanStatusResponse struct {
	Running          bool       `json:"running"`
	ScanID           string     `json:"scan_id,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	LastScanAt       *time.Time `json:"last_scan_at"`
	LastDurationMs   int64      `json:"last_duration_ms"`
	OpportunityCount int        `json:"opportunity_count"`
	RoutesFailed     int        `json:"routes_failed"`
	LastError        *string    `json:"last_error"` // null when the last scan succeeded
	ResultsScanID    string     `json:"results_scan_id,omitempty"`
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	st := s.scanner.Status()
	resp := scanStatusResponse{
		Running:          st.Running,
		ScanID:           st.ScanID,
		StartedAt:        st.StartedAt,
		LastScanAt:       st.LastScanAt,
		LastDurationMs:   st.LastDuration.Milliseconds(),
		OpportunityCount: st.OpportunityCount,
		RoutesFailed:     st.RoutesFailed,
	}
	if st.LastError != "" {
		msg := st.LastError
		resp.LastError = &msg
	}
	if set := s.scanner.Results(); set != nil {
		resp.ResultsScanID = set.ScanID
	}
	writeJSON(w, resp)
}

func (s *Server) handleScanRun(w http.ResponseWriter, r *http.Request) {
	id, err := s.scanner.TriggerScan(r.Context())
	if err != nil {
		var cfgErr *engine.ConfigError
		switch {
		case errors.Is(err, engine.ErrScanRunning):
			writeJSONStatus(w, http.StatusConflict, map[string]string{
				"error":   "already_running",
				"scan_id": s.scanner.Status().ScanID,
			})
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"scan_id": id})
}

func (s *Server) handleScanHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.scanner.History(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []engine.ScanRecord{}
	}
	writeJSON(w, records)
}

type opportunitiesResponse struct {
	ScanID        string               `json:"scan_id"`
	ComputedAt    *time.Time           `json:"computed_at"`
	Count         int                  `json:"count"`
	Opportunities []engine.Opportunity `json:"opportunities"`
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := engine.OpportunityQuery{
		Item:   strings.TrimSpace(q.Get("item")),
		Source: strings.TrimSpace(q.Get("source")),
		Dest:   strings.TrimSpace(q.Get("dest")),
	}
	if v := q.Get("min_margin"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_margin")
			return
		}
		query.MinMargin = f
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query.Limit = limit

	opps := s.scanner.Opportunities(query)
	if opps == nil {
		opps = []engine.Opportunity{}
	}
	resp := opportunitiesResponse{Count: len(opps), Opportunities: opps}
	if set := s.scanner.Results(); set != nil {
		resp.ScanID = set.ScanID
		if !set.ComputedAt.IsZero() {
			at := set.ComputedAt
			resp.ComputedAt = &at
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "item name required")
		return
	}
	lookup, err := s.scanner.LookupItemPrices(r.Context(), name)
	if errors.Is(err, esi.ErrTypeNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown item %q", name))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, lookup)
}

func intParam(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
