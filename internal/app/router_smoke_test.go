package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qbank/internal/auth"

	"golang.org/x/crypto/bcrypt"
)

const smokeQuiz = "1. What is 2+2?\nA) 3\nB) 4\nDoğru Cevap: B\n"

func testConfig() Config {
	return Config{
		AuthDisabled:            true,
		GenerateRateLimitPerMin: 60,
		MaxBulkQuestions:        20,
		MaxUploadBytes:          1 << 20,
		ReviewSessionTTL:        time.Hour,
		DefaultModel:            "gemini-2.0-flash",
	}
}

func TestRouterSmokePublicRoutes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("smoke-token-0123456789"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := testConfig()
	cfg.AuthDisabled = false
	cfg.Accounts = []auth.Account{{ID: 1, Username: "admin", Role: auth.RoleAdmin, TokenHash: string(hash)}}

	router, err := NewRouter(cfg, nil, Deps{})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	tests := []struct {
		name       string
		method     string
		target     string
		token      string
		wantStatus int
	}{
		{name: "healthz", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},
		{name: "auth_me_unauthorized", method: http.MethodGet, target: "/api/v1/auth/me", wantStatus: http.StatusUnauthorized},
		{name: "auth_me", method: http.MethodGet, target: "/api/v1/auth/me", token: "smoke-token-0123456789", wantStatus: http.StatusOK},
		{name: "session_unauthorized", method: http.MethodGet, target: "/api/v1/review-sessions/abc", wantStatus: http.StatusUnauthorized},
		{name: "session_missing", method: http.MethodGet, target: "/api/v1/review-sessions/abc", token: "smoke-token-0123456789", wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("%s %s: got status %d, want %d", tc.method, tc.target, w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRouterPasteReviewCancelFlow(t *testing.T) {
	router, err := NewRouter(testConfig(), nil, Deps{})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"text": smokeQuiz, "count": 1})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/review-sessions/paste", bytes.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("paste: got %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		Data struct {
			ID         string `json:"id"`
			Candidates []struct {
				ID string `json:"id"`
			} `json:"candidates"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	base := "/api/v1/review-sessions/" + created.Data.ID

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, base+"/candidates/"+created.Data.Candidates[0].ID+"/toggle", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("toggle: got %d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, base, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, base, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("cancelled session should be gone, got %d", w.Code)
	}
}

func TestRouterGenerateWithoutProvider(t *testing.T) {
	router, err := NewRouter(testConfig(), nil, Deps{})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/review-sessions/generate",
		bytes.NewBufferString(`{"prompt":"photosynthesis","count":2}`)))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without api keys, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestRouterRejectsBadAccounts(t *testing.T) {
	cfg := testConfig()
	cfg.AuthDisabled = false
	cfg.Accounts = []auth.Account{{ID: 1, Username: "x", Role: "student", TokenHash: "plain"}}
	if _, err := NewRouter(cfg, nil, Deps{}); err == nil {
		t.Fatalf("expected invalid account error")
	}
}
