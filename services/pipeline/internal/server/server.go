package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"hotelplan/internal/servicetoken"
	"hotelplan/internal/util"
	"hotelplan/pkg/cost"
	"hotelplan/pkg/pipeline"
	"hotelplan/pkg/queue"
)

const maxBodyBytes = 1 << 20

// Stages is what the trigger handlers drive. *app.App implements it.
type Stages interface {
	DesignChanged(ctx context.Context, projectID string) error
	Recalculate(ctx context.Context, projectID string) error
	Cost(ctx context.Context, projectID, brandTier string, regionalMultiplier float64) error
	GetJob(ctx context.Context, id string) (queue.Job, bool, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App Stages
	// Verifier guards the trigger routes. Nil leaves them open, which only
	// tests should do.
	Verifier *servicetoken.Verifier
}

// Server exposes the pipeline triggers.
type Server struct {
	app      Stages
	verifier *servicetoken.Verifier
	mux      *http.ServeMux
}

func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app required")
	}
	s := &Server{
		app:      cfg.App,
		verifier: cfg.Verifier,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("pipeline", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("POST /triggers/design-change", s.withInternal(s.handleDesignChange))
	s.mux.Handle("POST /triggers/recalc", s.withInternal(s.handleRecalc))
	s.mux.Handle("POST /triggers/cost", s.withInternal(s.handleCost))
	s.mux.Handle("GET /jobs/{id}", s.withInternal(s.handleJob))
}

// withInternal gates a trigger on a service token and tags the request
// logger with the signing issuer.
func (s *Server) withInternal(next http.HandlerFunc) http.Handler {
	if s.verifier == nil {
		return next
	}
	return s.verifier.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller, ok := servicetoken.CallerFromContext(r.Context()); ok {
			logger := util.LoggerFromContext(r.Context()).With("triggered_by", caller.Issuer)
			r = r.WithContext(util.ContextWithLogger(r.Context(), logger))
		}
		next(w, r)
	}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type designChangeRequest struct {
	Record    *rowRef `json:"record"`
	OldRecord *rowRef `json:"old_record"`
}

type rowRef struct {
	ProjectID string `json:"project_id"`
}

// projectID prefers the new row, then the deleted one.
func (r designChangeRequest) projectID() string {
	if r.Record != nil && strings.TrimSpace(r.Record.ProjectID) != "" {
		return strings.TrimSpace(r.Record.ProjectID)
	}
	if r.OldRecord != nil {
		return strings.TrimSpace(r.OldRecord.ProjectID)
	}
	return ""
}

func (s *Server) handleDesignChange(w http.ResponseWriter, r *http.Request) {
	var req designChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	projectID := req.projectID()
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "No project_id found")
		return
	}
	s.finish(w, r, "design_change", s.app.DesignChanged(r.Context(), projectID))
}

type recalcRequest struct {
	ProjectID string `json:"projectId"`
}

func (s *Server) handleRecalc(w http.ResponseWriter, r *http.Request) {
	var req recalcRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "No projectId")
		return
	}
	s.finish(w, r, "recalc", s.app.Recalculate(r.Context(), projectID))
}

type costRequest struct {
	ProjectID          string   `json:"projectId"`
	RegionalMultiplier *float64 `json:"regionalMultiplier"`
	BrandTier          *string  `json:"brandTier"`
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	var req costRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "No projectId")
		return
	}
	// Only absent fields take defaults; explicit zero or empty values pass through.
	multiplier := cost.DefaultRegionalMultiplier
	if req.RegionalMultiplier != nil {
		multiplier = *req.RegionalMultiplier
	}
	tier := cost.DefaultBrandTier
	if req.BrandTier != nil {
		tier = *req.BrandTier
	}
	s.finish(w, r, "cost", s.app.Cost(r.Context(), projectID, tier, multiplier))
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok, err := s.app.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("get job failed", "err", err)
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// finish acknowledges a stage. Any stage failure is a 500; the body never
// carries the stage result.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, stage string, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if errors.Is(err, pipeline.ErrProjectRequired) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	util.LoggerFromContext(r.Context()).Error("stage failed", "stage", stage, "err", err)
	writeError(w, http.StatusInternalServerError, stage+" error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
