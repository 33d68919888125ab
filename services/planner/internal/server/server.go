package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"hotelplan/internal/ratelimit"
	"hotelplan/internal/util"
	"hotelplan/pkg/conversation"
	"hotelplan/pkg/design"
	"hotelplan/pkg/domain"
	"hotelplan/services/planner/internal/app"
)

const maxBodyBytes = 1 << 20

type userContextKey struct{}

// Authenticator resolves the calling user from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// Limiter throttles conversation turns.
type Limiter interface {
	Take(ctx context.Context, key string) ratelimit.Decision
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Auth           Authenticator
	ChatLimiter    Limiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the conversation and design APIs.
type Server struct {
	app            *app.App
	auth           Authenticator
	chatLimiter    Limiter
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("server: authenticator required")
	}
	s := &Server{
		app:            cfg.App,
		auth:           cfg.Auth,
		chatLimiter:    cfg.ChatLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("planner", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("POST /chat", s.withUser(s.withChatLimit(s.handleChat)))

	s.mux.Handle("GET /projects", s.withUser(s.handleListProjects))
	s.mux.Handle("GET /projects/{id}", s.withUser(s.handleGetProject))
	s.mux.Handle("GET /projects/{id}/model", s.withUser(s.handleGetModel))
	s.mux.Handle("GET /projects/{id}/model/download", s.withUser(s.handleModelDownload))
	s.mux.Handle("GET /projects/{id}/kpis", s.withUser(s.handleKPIs))

	s.mux.Handle("GET /projects/{id}/floors", s.withUser(s.handleListFloors))
	s.mux.Handle("POST /projects/{id}/floors", s.withUser(s.handleAddFloor))
	s.mux.Handle("POST /projects/{id}/floors/bulk-rooms", s.withUser(s.handleBulkRooms))
	s.mux.Handle("PUT /projects/{id}/floors/{floorId}", s.withUser(s.handleUpdateFloor))
	s.mux.Handle("DELETE /projects/{id}/floors/{floorId}", s.withUser(s.handleDeleteFloor))
	s.mux.Handle("PUT /projects/{id}/floors/{floorId}/rooms/{roomTypeId}", s.withUser(s.handleSetRoom))

	s.mux.Handle("GET /projects/{id}/public-areas", s.withUser(s.handleListAreas))
	s.mux.Handle("PUT /projects/{id}/public-areas/{areaId}", s.withUser(s.handleSetArea))
	s.mux.Handle("DELETE /projects/{id}/public-areas/{areaId}", s.withUser(s.handleDeleteArea))

	s.mux.Handle("POST /projects/{id}/recalculate", s.withUser(s.handleRecalculate))
	s.mux.Handle("POST /projects/{id}/costs", s.withUser(s.handleRequestCost))
	s.mux.Handle("GET /projects/{id}/costs", s.withUser(s.handleCostHistory))
	s.mux.Handle("GET /projects/{id}/costs/latest", s.withUser(s.handleLatestCost))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withUser rejects unauthenticated requests before any body is read.
func (s *Server) withUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid authorization token")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, userID)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", userID))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) withChatLimit(next http.HandlerFunc) http.HandlerFunc {
	if s.chatLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		d := s.chatLimiter.Take(r.Context(), util.RateLimitKey("chat", r, s.trustedProxies))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		next(w, r)
	}
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(userContextKey{}).(string)
	return id
}

type chatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.app.Chat(r.Context(), userFrom(r), req.Messages)
	if err != nil {
		var violation *conversation.SchemaViolation
		if errors.As(err, &violation) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":     violation.Error(),
				"field":     violation.Field,
				"retryable": true,
			})
			return
		}
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.app.ListProjects(userFrom(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.app.GetProject(userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	model, err := s.app.BaseModel(userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func (s *Server) handleModelDownload(w http.ResponseWriter, r *http.Request) {
	url, err := s.app.ModelDownloadURL(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := s.app.KPIs(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

func (s *Server) handleListFloors(w http.ResponseWriter, r *http.Request) {
	d, err := s.app.Design(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"floors": nonNilFloors(d.Floors)})
}

func (s *Server) handleAddFloor(w http.ResponseWriter, r *http.Request) {
	var floor domain.Floor
	if !decodeJSON(w, r, &floor) {
		return
	}
	added, err := s.app.AddFloor(r.Context(), userFrom(r), r.PathValue("id"), floor)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateFloor(w http.ResponseWriter, r *http.Request) {
	var patch design.FloorPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := s.app.UpdateFloor(r.Context(), userFrom(r), r.PathValue("id"), r.PathValue("floorId"), patch)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteFloor(w http.ResponseWriter, r *http.Request) {
	if err := s.app.RemoveFloor(r.Context(), userFrom(r), r.PathValue("id"), r.PathValue("floorId")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roomRequest struct {
	Quantity    int     `json:"quantity"`
	AverageSize float64 `json:"averageSize"`
}

func (s *Server) handleSetRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	room := domain.RoomConfiguration{
		RoomTypeID:  r.PathValue("roomTypeId"),
		Quantity:    req.Quantity,
		AverageSize: req.AverageSize,
	}
	floor, err := s.app.SetRoom(r.Context(), userFrom(r), r.PathValue("id"), r.PathValue("floorId"), room)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, floor)
}

type bulkRoomsRequest struct {
	FloorIDs []string       `json:"floorIds"`
	Rooms    map[string]int `json:"rooms"`
}

func (s *Server) handleBulkRooms(w http.ResponseWriter, r *http.Request) {
	var req bulkRoomsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	floors, err := s.app.BulkSetRooms(r.Context(), userFrom(r), r.PathValue("id"), req.FloorIDs, req.Rooms)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"floors": nonNilFloors(floors)})
}

func (s *Server) handleListAreas(w http.ResponseWriter, r *http.Request) {
	d, err := s.app.Design(r.Context(), userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	areas := d.PublicAreas
	if areas == nil {
		areas = []domain.PublicArea{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"publicAreas": areas})
}

func (s *Server) handleSetArea(w http.ResponseWriter, r *http.Request) {
	var area domain.PublicArea
	if !decodeJSON(w, r, &area) {
		return
	}
	area.ID = r.PathValue("areaId")
	saved, err := s.app.SetPublicArea(r.Context(), userFrom(r), r.PathValue("id"), area)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteArea(w http.ResponseWriter, r *http.Request) {
	if err := s.app.RemovePublicArea(r.Context(), userFrom(r), r.PathValue("id"), r.PathValue("areaId")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if err := s.app.RequestRecalculation(r.Context(), userFrom(r), r.PathValue("id")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

type costRequest struct {
	BrandTier          *string  `json:"brandTier"`
	RegionalMultiplier *float64 `json:"regionalMultiplier"`
}

func (s *Server) handleRequestCost(w http.ResponseWriter, r *http.Request) {
	var req costRequest
	// An empty body means all defaults.
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.RequestCost(r.Context(), userFrom(r), r.PathValue("id"), req.BrandTier, req.RegionalMultiplier); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

func (s *Server) handleCostHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	rows, err := s.app.CostHistory(userFrom(r), r.PathValue("id"), limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"costs": rows})
}

func (s *Server) handleLatestCost(w http.ResponseWriter, r *http.Request) {
	row, ok, err := s.app.LatestCost(userFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no cost summary yet")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrMessagesRequired), errors.Is(err, app.ErrInvalidDesign):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrOwnerRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrProjectNotFound), errors.Is(err, app.ErrFloorNotFound), errors.Is(err, app.ErrAreaNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrDuplicateLevel):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrArchiveUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "An error occurred while processing your request")
	}
}

func nonNilFloors(floors []domain.Floor) []domain.Floor {
	if floors == nil {
		return []domain.Floor{}
	}
	return floors
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
