package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Varshaa-Selva/Languard-ai/pkg/audit"
	"github.com/Varshaa-Selva/Languard-ai/pkg/auth"
	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/engine"
	"github.com/Varshaa-Selva/Languard-ai/pkg/finance"
	"github.com/Varshaa-Selva/Languard-ai/pkg/intake"
	"github.com/Varshaa-Selva/Languard-ai/pkg/ledger"
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
	"github.com/Varshaa-Selva/Languard-ai/pkg/sensing"
)

const maxBodyBytes = 1 << 20

// Config wires a Server.
type Config struct {
	Engine    *engine.Engine
	Catalog   *regulation.Catalog
	Validator *intake.Validator
	Exporter  *audit.Exporter
	// JWT enables bearer authentication when non-nil.
	JWT     *auth.JWTValidator
	Limiter LimiterStore
	Limit   LimitPolicy
	Logger  *slog.Logger
}

// Server serves the LandGuard HTTP API.
type Server struct {
	engine    *engine.Engine
	catalog   *regulation.Catalog
	validator *intake.Validator
	exporter  *audit.Exporter
	jwt       *auth.JWTValidator
	limiter   LimiterStore
	limit     LimitPolicy
	logger    *slog.Logger
}

// NewServer validates cfg.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil || cfg.Catalog == nil || cfg.Validator == nil {
		return nil, errors.New("api: engine, catalog and validator are required")
	}
	s := &Server{
		engine:    cfg.Engine,
		catalog:   cfg.Catalog,
		validator: cfg.Validator,
		exporter:  cfg.Exporter,
		jwt:       cfg.JWT,
		limiter:   cfg.Limiter,
		limit:     cfg.Limit,
		logger:    cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "api")
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/zones", s.handleZones)
	mux.HandleFunc("GET /v1/fees", s.handleFee)
	mux.HandleFunc("POST /v1/precheck", s.handlePreCheck)
	mux.HandleFunc("POST /v1/applications", s.handleSubmit)
	mux.HandleFunc("GET /v1/applications", s.handleList)
	mux.HandleFunc("GET /v1/applications/{id}", s.handleGet)
	mux.HandleFunc("POST /v1/applications/{id}/payment", s.handlePayment)
	mux.HandleFunc("POST /v1/applications/{id}/evaluate", s.requireRole(auth.RoleOfficer, s.handleEvaluate))
	mux.HandleFunc("POST /v1/applications/{id}/analysis", s.requireRole(auth.RoleOfficer, s.handleAnalysis))
	mux.HandleFunc("GET /v1/ledger", s.handleLedger)
	mux.HandleFunc("GET /v1/ledger/verify", s.requireRole(auth.RoleOfficer, s.handleVerify))
	mux.HandleFunc("POST /v1/ledger/export", s.requireRole(auth.RoleOfficer, s.handleExport))
	mux.HandleFunc("GET /v1/stats", s.handleStats)

	var h http.Handler = mux
	if s.limiter != nil {
		h = RateLimit(s.limiter, s.limit, s.logger)(h)
	}
	if s.jwt != nil {
		h = s.authenticate(h)
	}
	h = AccessLog(s.logger)(h)
	return RequestID(h)
}

// authenticate requires a token everywhere except /health.
func (s *Server) authenticate(next http.Handler) http.Handler {
	protected := Authenticate(s.jwt, true)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"catalog_version": s.catalog.Version(),
	})
}

func (s *Server) handleZones(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.catalog.Version(),
		"zones":   s.catalog.Zones(),
	})
}

func (s *Server) handleFee(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	area, err := strconv.ParseFloat(q.Get("area"), 64)
	if err != nil || !(area > 0) {
		WriteBadRequest(w, "area must be a positive number")
		return
	}
	floors, err := strconv.Atoi(q.Get("floors"))
	if err != nil || floors <= 0 {
		WriteBadRequest(w, "floors must be a positive integer")
		return
	}
	writeJSON(w, http.StatusOK, finance.NewQuote(area, floors, q.Get("zone")))
}

func (s *Server) handlePreCheck(w http.ResponseWriter, r *http.Request) {
	var app contracts.ParcelApplication
	if err := decodeJSON(r, &app); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if !(app.PlotAreaSqm > 0) || app.ProposedFloors <= 0 {
		WriteBadRequest(w, "plot_area_sqm and proposed_floors must be positive")
		return
	}
	res, err := s.engine.PreCheck(intake.Normalize(app))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type submitRequest struct {
	Application json.RawMessage                `json:"application"`
	Payment     *contracts.PaymentConfirmation `json:"payment,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if len(req.Application) == 0 {
		WriteBadRequest(w, "application is required")
		return
	}
	app, err := s.validator.Decode(req.Application)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if req.Payment != nil && req.Payment.Method != "" && !finance.ValidMethod(req.Payment.Method) {
		WriteBadRequest(w, fmt.Sprintf("unsupported payment method %q", req.Payment.Method))
		return
	}
	snap, err := s.engine.Submit(r.Context(), app, req.Payment)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/applications/"+snap.Application.ID)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list := s.engine.List()
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := list[:0]
		for _, snap := range list {
			if string(snap.State) == state {
				filtered = append(filtered, snap)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": list, "count": len(list)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Get(r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var p contracts.PaymentConfirmation
	if err := decodeJSON(r, &p); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if p.Method != "" && !finance.ValidMethod(p.Method) {
		WriteBadRequest(w, fmt.Sprintf("unsupported payment method %q", p.Method))
		return
	}
	snap, err := s.engine.ConfirmPayment(r.Context(), r.PathValue("id"), p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Evaluate(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type analysisRequest struct {
	Satellite *sensing.SatelliteReport `json:"satellite"`
	Elevation *sensing.ElevationReport `json:"elevation,omitempty"`
}

// handleAnalysis scores the posted scan, or pulls one from the sensing
// collaborator when the body is empty.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req analysisRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		WriteBadRequest(w, err.Error())
		return
	}

	var (
		a   contracts.RiskAssessment
		err error
	)
	if req.Satellite == nil {
		a, err = s.engine.Analyze(r.Context(), id)
	} else {
		a, err = s.engine.Assess(r.Context(), id, *req.Satellite, req.Elevation)
	}
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Ledger(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	type row struct {
		ledger.Entry
		TransactionID string `json:"transaction_id"`
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, row{Entry: e, TransactionID: e.TransactionID()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": rows, "count": len(rows)})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.VerifyLedger(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		WriteError(w, http.StatusServiceUnavailable, "Service Unavailable", "evidence export is not configured")
		return
	}
	pack, err := s.exporter.Export(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pack)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
