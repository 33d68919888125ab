package util

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveWithHeaders(req *http.Request) *httptest.ResponseRecorder {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWithSecurityHeadersOnPlainHTTP(t *testing.T) {
	rec := serveWithHeaders(httptest.NewRequest(http.MethodGet, "/projects", nil))

	for _, kv := range apiHeaders {
		assert.Equal(t, kv[1], rec.Header().Get(kv[0]), kv[0])
	}
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestWithSecurityHeadersAddsHSTSBehindTLSProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	rec := serveWithHeaders(req)
	assert.Equal(t, hstsValue, rec.Header().Get("Strict-Transport-Security"))
}
