package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hotelplan/internal/servicetoken"
	"hotelplan/pkg/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, opts *triggerOptions, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, opts)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func transcriptJSON(t *testing.T, answers ...string) string {
	t.Helper()
	msgs := []domain.ChatMessage{{Role: domain.RoleSystem, Content: "You are a hotel design assistant."}}
	for _, a := range answers {
		msgs = append(msgs,
			domain.ChatMessage{Role: domain.RoleAssistant, Content: "question"},
			domain.ChatMessage{Role: domain.RoleUser, Content: a},
		)
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		t.Fatalf("marshal transcript: %v", err)
	}
	return string(raw)
}

func TestConverseAsksNextQuestion(t *testing.T) {
	path := writeFile(t, "t.json", transcriptJSON(t, "Austin, TX"))
	out, err := run(t, &triggerOptions{}, "converse", path)
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	var res struct {
		Question struct {
			ID string `json:"id"`
		} `json:"question"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if res.Question.ID != "brand" {
		t.Fatalf("question = %q, want brand", res.Question.ID)
	}
}

func TestConverseCompletesWrappedTranscript(t *testing.T) {
	history := transcriptJSON(t,
		"Austin, TX",
		"Hilton",
		"2",
		`["Standard King"]`,
		`[{"floorIndex":1,"roomsByType":{"Standard King":10}},{"floorIndex":2,"roomsByType":{"Standard King":10}}]`,
		`[{"area":"Lobby","enabled":true,"size":900}]`,
	)
	path := writeFile(t, "t.json", `{"messages":`+history+`}`)
	out, err := run(t, &triggerOptions{}, "converse", path)
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if !strings.Contains(out, `"name": "Hilton Hotel - Austin, TX"`) {
		t.Fatalf("missing project name in output:\n%s", out)
	}
}

func TestConverseReportsSchemaViolation(t *testing.T) {
	history := transcriptJSON(t,
		"Austin, TX",
		"Hilton",
		"50",
		`["Standard King"]`,
		`[{"floorIndex":1,"roomsByType":{"Standard King":10}}]`,
		`[{"area":"Lobby","enabled":true,"size":900}]`,
	)
	path := writeFile(t, "t.json", history)
	if _, err := run(t, &triggerOptions{}, "converse", path); err == nil || !strings.Contains(err.Error(), "floorCount") {
		t.Fatalf("expected floorCount violation, got %v", err)
	}
}

func TestComplianceReport(t *testing.T) {
	path := writeFile(t, "design.json", `{
		"floors": [{"id":"f1","name":"Floor 1","level":1,"floorType":"standard","rooms":[{"roomTypeId":"standard-king","quantity":19},{"roomTypeId":"accessible","quantity":1}]}],
		"publicAreas": []
	}`)
	out, err := run(t, &triggerOptions{}, "compliance", path)
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}
	var report complianceReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalRooms != 20 || report.AccessibleRooms != 1 {
		t.Fatalf("rooms = %d/%d, want 20/1", report.TotalRooms, report.AccessibleRooms)
	}
	if report.Compliant || report.Errors != 1 {
		t.Fatalf("expected one error for the missing lobby, got %+v", report)
	}
	if report.Issues[0].Message != "No lobby configured" {
		t.Fatalf("first issue = %q", report.Issues[0].Message)
	}
}

func writePrivateKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return writeFile(t, "private.pem", string(block)), key
}

func TestTriggerCostSendsSignedRequest(t *testing.T) {
	keyPath, key := writePrivateKey(t)
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPath := writeFile(t, "public.pem", string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})))
	verifier, err := servicetoken.NewVerifierWithOptions(servicetoken.VerifierOptions{
		PublicKeyPath:  publicPath,
		Audience:       servicetoken.PipelineAudience,
		AllowedIssuers: []string{servicetoken.OperatorIssuer},
	})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(verifier.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})))
	defer srv.Close()

	opts := &triggerOptions{client: srv.Client()}
	out, err := run(t, opts, "trigger", "cost", "p1", "--pipeline-url", srv.URL, "--key", keyPath, "--brand-tier", "luxury")
	if err != nil {
		t.Fatalf("trigger cost: %v", err)
	}
	if gotPath != "/triggers/cost" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["projectId"] != "p1" || gotBody["brandTier"] != "luxury" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if _, ok := gotBody["regionalMultiplier"]; ok {
		t.Fatalf("unset multiplier must be omitted, got %v", gotBody)
	}
	if strings.TrimSpace(out) != `{"status":"ok"}` {
		t.Fatalf("output = %q", out)
	}
}

func TestTriggerDesignChangeReportsFailure(t *testing.T) {
	keyPath, _ := writePrivateKey(t)
	var gotBody map[string]map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"design_change error"}`))
	}))
	defer srv.Close()

	opts := &triggerOptions{client: srv.Client()}
	_, err := run(t, opts, "trigger", "design-change", "p9", "--pipeline-url", srv.URL, "--key", keyPath)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected 500 error, got %v", err)
	}
	if gotBody["record"]["project_id"] != "p9" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestTriggerRequiresKey(t *testing.T) {
	t.Setenv("INTERNAL_JWT_PRIVATE_KEY_PATH", "")
	if _, err := run(t, &triggerOptions{}, "trigger", "recalc", "p1"); err == nil {
		t.Fatal("expected missing key error")
	}
}
