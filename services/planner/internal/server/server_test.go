package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotelplan/internal/ratelimit"
	"hotelplan/pkg/domain"
	"hotelplan/pkg/pipeline"
	"hotelplan/pkg/pipeline/pipelinetest"
	"hotelplan/pkg/storage"
	"hotelplan/pkg/store"
	"hotelplan/services/planner/internal/app"
)

var completeAnswers = []string{
	"Austin, TX",
	"Hilton",
	"3 floors",
	`["Standard King","Accessible Room"]`,
	`[{"floorIndex":1,"roomsByType":{"Standard King":10,"Accessible Room":2}},{"floorIndex":2,"roomsByType":{"Standard King":12}},{"floorIndex":3,"roomsByType":{"Standard King":12}}]`,
	`[{"area":"Lobby","enabled":true,"size":900}]`,
}

// headerAuth treats the bearer token as the user id.
type headerAuth struct{}

func (headerAuth) Authenticate(r *http.Request) (string, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		return "", errors.New("bearer token required")
	}
	return token, nil
}

type countingLimiter struct {
	remaining int
	keys      []string
}

func (l *countingLimiter) Take(_ context.Context, key string) ratelimit.Decision {
	l.keys = append(l.keys, key)
	if l.remaining <= 0 {
		return ratelimit.Decision{RetryAfter: 41500 * time.Millisecond}
	}
	l.remaining--
	return ratelimit.Decision{Allowed: true, Remaining: l.remaining}
}

type harness struct {
	handler  http.Handler
	recorder *pipelinetest.Recorder
	limiter  *countingLimiter
}

func newHarness(t *testing.T) harness {
	t.Helper()
	recorder := &pipelinetest.Recorder{}
	core, err := app.New(app.Config{
		Store:      store.NewMemoryStore(),
		Objects:    storage.NewMemoryStore(),
		Dispatcher: recorder,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	limiter := &countingLimiter{remaining: 100}
	srv, err := New(Config{App: core, Auth: headerAuth{}, ChatLimiter: limiter})
	require.NoError(t, err)
	return harness{handler: srv.Router(), recorder: recorder, limiter: limiter}
}

func (h harness) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func chatBody(answers ...string) map[string]any {
	msgs := []domain.ChatMessage{{Role: domain.RoleSystem, Content: "You are a hotel design assistant."}}
	for _, a := range answers {
		msgs = append(msgs,
			domain.ChatMessage{Role: domain.RoleAssistant, Content: "question"},
			domain.ChatMessage{Role: domain.RoleUser, Content: a},
		)
	}
	return map[string]any{"messages": msgs}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h harness) createProject(t *testing.T, user string) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/chat", user, chatBody(completeAnswers...))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[app.ChatResult](t, rec)
	require.NotEmpty(t, res.ProjectID)
	return res.ProjectID
}

func TestHealthzIsOpen(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRoutesRequireAuthentication(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/projects", "/projects/p1", "/projects/p1/floors"} {
		rec := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := h.do(t, http.MethodPost, "/chat", "", chatBody("Austin"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.limiter.keys, "unauthenticated calls do not spend quota")
}

func TestChatReturnsQuestion(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/chat", "u1", chatBody())
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[map[string]any](t, rec)
	question := res["question"].(map[string]any)
	assert.Equal(t, "location", question["id"])
	assert.Equal(t, "text", question["responseType"])
	assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestChatRequiresMessagesArray(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/chat", "u1", map[string]any{"messages": nil})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "messages array is required", decode[map[string]string](t, rec)["error"])

	rec = h.do(t, http.MethodPost, "/chat", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEmptyMessagesStartsConversation(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/chat", "u1", map[string]any{"messages": []any{}})
	require.Equal(t, http.StatusOK, rec.Code)
	question := decode[map[string]any](t, rec)["question"].(map[string]any)
	assert.Equal(t, "location", question["id"])
}

func TestChatSchemaViolationIs422(t *testing.T) {
	h := newHarness(t)
	answers := append([]string(nil), completeAnswers...)
	answers[2] = "50"
	rec := h.do(t, http.MethodPost, "/chat", "u1", chatBody(answers...))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "floorCount", body["field"])
	assert.Equal(t, true, body["retryable"])
}

func TestChatRateLimited(t *testing.T) {
	h := newHarness(t)
	h.limiter.remaining = 0
	rec := h.do(t, http.MethodPost, "/chat", "u1", chatBody())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	require.Len(t, h.limiter.keys, 1)
	assert.True(t, strings.HasPrefix(h.limiter.keys[0], "chat:"))
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, "u1")

	rec := h.do(t, http.MethodGet, "/projects", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]app.ProjectView](t, rec)
	require.Len(t, list["projects"], 1)
	assert.Equal(t, domain.StatusDraft, list["projects"][0].Status)

	rec = h.do(t, http.MethodGet, "/projects/"+id+"/floors", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	floors := decode[map[string][]domain.Floor](t, rec)["floors"]
	require.Len(t, floors, 3)

	rec = h.do(t, http.MethodPost, "/projects/"+id+"/floors", "u1", map[string]any{"name": "Rooftop"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[domain.Floor](t, rec)
	assert.Equal(t, 4, added.Level)

	rec = h.do(t, http.MethodPut, "/projects/"+id+"/floors/"+added.ID, "u1", map[string]any{"height": 12.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 12.5, decode[domain.Floor](t, rec).Height)

	rec = h.do(t, http.MethodPut, "/projects/"+id+"/floors/"+added.ID+"/rooms/suite", "u1", map[string]any{"quantity": 3, "averageSize": 600})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/projects/"+id+"/floors/bulk-rooms", "u1", map[string]any{
		"floorIds": []string{floors[0].ID, floors[1].ID},
		"rooms":    map[string]int{"standard-double": 2},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[map[string][]domain.Floor](t, rec)["floors"], 2)

	rec = h.do(t, http.MethodPut, "/projects/"+id+"/public-areas/fitness", "u1", map[string]any{"sizeSqft": 700})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	area := decode[domain.PublicArea](t, rec)
	assert.Equal(t, "Fitness Center", area.AreaType)

	rec = h.do(t, http.MethodGet, "/projects/"+id+"/public-areas", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]domain.PublicArea](t, rec)["publicAreas"], 2)

	rec = h.do(t, http.MethodDelete, "/projects/"+id+"/public-areas/fitness", "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodDelete, "/projects/"+id+"/floors/"+added.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Len(t, h.recorder.Drain(), 7)

	rec = h.do(t, http.MethodGet, "/projects/"+id+"/kpis", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kpis := decode[map[string]any](t, rec)
	assert.EqualValues(t, 40, kpis["totalRooms"])
}

func TestDuplicateLevelIsConflict(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, "u1")
	rec := h.do(t, http.MethodPost, "/projects/"+id+"/floors", "u1", map[string]any{"level": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestForeignProjectIsNotFound(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, "u1")
	rec := h.do(t, http.MethodGet, "/projects/"+id, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodDelete, "/projects/"+id+"/floors/whatever", "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecalculateAndCostAreAccepted(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, "u1")

	rec := h.do(t, http.MethodPost, "/projects/"+id+"/recalculate", "u1", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = h.do(t, http.MethodPost, "/projects/"+id+"/costs", "u1", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = h.do(t, http.MethodPost, "/projects/"+id+"/costs", "u1", map[string]any{"brandTier": "luxury"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []pipeline.Task{
		pipeline.RecalculateTask(id),
		pipeline.CostTask(id, "standard", 1.0),
		pipeline.CostTask(id, "luxury", 1.0),
	}, h.recorder.Tasks())
}

func TestCostReadsBeforeAnyRun(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, "u1")

	rec := h.do(t, http.MethodGet, "/projects/"+id+"/costs/latest", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/projects/"+id+"/costs?limit=5", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"costs":[]}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/projects/"+id+"/costs?limit=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelDownload(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, "u1")

	rec := h.do(t, http.MethodGet, "/projects/"+id+"/model", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hilton", decode[domain.HotelBaseModel](t, rec).BrandFlag)

	rec = h.do(t, http.MethodGet, "/projects/"+id+"/model/download", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory://models/"+id+".json", decode[map[string]string](t, rec)["url"])
}

func TestPublishFailureIs500(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, "u1")
	h.recorder.FailWith(errors.New("redis down"))
	rec := h.do(t, http.MethodPost, "/projects/"+id+"/floors", "u1", map[string]any{})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
