package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	fail := func(msg string) func(context.Context) error {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "pipeline", Check: ok},
				{Name: "synthesis", Check: ok},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"pipeline": "ok", "synthesis": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "pipeline", Check: ok},
				{Name: "synthesis", Check: fail("all voices exhausted")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"pipeline": "ok", "synthesis": "fail: all voices exhausted"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "pipeline", Check: fail("not started")},
				{Name: "synthesis", Check: fail("exhausted")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"pipeline": "fail: not started", "synthesis": "fail: exhausted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(tt.checkers)

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body result
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode JSON: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RunsCheckersConcurrently(t *testing.T) {
	t.Parallel()

	var running atomic.Int32
	release := make(chan struct{})
	slow := func(ctx context.Context) error {
		if running.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New([]Checker{{Name: "a", Check: slow}, {Name: "b", Check: slow}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want %d (checkers did not overlap)", rec.Code, http.StatusOK)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New([]Checker{{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	type snapshot struct {
		State string `json:"state"`
		Turns int    `json:"turns"`
	}
	h := New(nil, WithStatus(func() any { return snapshot{State: "listening", Turns: 4} }))

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var got snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if got.State != "listening" || got.Turns != 4 {
		t.Errorf("status body = %+v", got)
	}
}

func TestStatus_NotConfigured(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New(nil).Status(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	h := New(
		[]Checker{{Name: "test", Check: func(context.Context) error { return nil }}},
		WithStatus(func() any { return map[string]string{"state": "idle"} }),
	)

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz", "/status"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}
