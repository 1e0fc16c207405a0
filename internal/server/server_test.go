package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() config.Config {
	return config.Config{JWTSecret: "secret", ServerPort: ":0", TickInterval: time.Hour}
}

func TestHealthRoute(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)
	defer s.Close()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestMetricsRoute(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)
	defer s.Close()

	resp, err := s.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "runtracker_sessions_recording") {
		t.Fatalf("expected run tracker metrics in exposition")
	}
}

func TestRunRoutesWithSimulatedDevices(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)
	defer s.Close()

	token, _ := auth.IssueToken("secret", "runner-1", time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/runs/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %v %d", err, resp.StatusCode)
	}
}

func TestRunRoutesWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewServer(testConfig(), nil, client, nil)
	defer s.Close()

	token, _ := auth.IssueToken("secret", "runner-1", time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/runs/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden without a device grant: %v", err)
	}

	mr.Set("location:runner-1:permission", "granted")
	req = httptest.NewRequest(http.MethodPost, "/runs/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/runs/stop", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status: %v", err)
	}
	if n, _ := client.LLen(req.Context(), "runs:summaries").Result(); n != 1 {
		t.Fatalf("expected summary handed off, got %d", n)
	}
}

func TestUnknownRouteUnauthorized(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)
	defer s.Close()

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/runs/state", nil))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}
}
