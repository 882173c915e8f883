package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func doRequest(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New("127.0.0.1:0", nil, HealthInfo{
		Version:  "1.2.3",
		AuthMode: "client_credentials",
		BaseURL:  "https://api.blackbird.ai",
	}, zap.NewNop())

	rec := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field: got %q", body["status"])
	}
	if body["version"] != "1.2.3" {
		t.Errorf("version: got %q", body["version"])
	}
	if body["auth_mode"] != "client_credentials" {
		t.Errorf("auth_mode: got %q", body["auth_mode"])
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	RecordToolCall("check_context", false)
	RecordAttempt(200, 5*time.Millisecond)
	RecordRetry()
	RecordTokenRefresh(true)

	s := New("127.0.0.1:0", nil, HealthInfo{}, zap.NewNop())

	rec := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, metric := range []string{
		"blackbird_tool_calls_total",
		"blackbird_api_attempts_total",
		"blackbird_api_retries_total",
		"blackbird_token_refreshes_total",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestCORSHeaderForAllowedOrigin(t *testing.T) {
	s := New("127.0.0.1:0", []string{"https://dash.example.com"}, HealthInfo{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := doRequest(t, s, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("Access-Control-Allow-Origin: got %q", got)
	}
}
