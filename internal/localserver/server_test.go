package localserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/accountman/internal/metrics"
	"github.com/hitoshi/accountman/internal/model"
)

type mockExchanger struct {
	exchangeFn func(ctx context.Context, code string) (*model.Session, error)
}

func (m *mockExchanger) ExchangeOAuthCode(ctx context.Context, code string) (*model.Session, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return &model.Session{}, nil
}

func newTestRouter(exchanger *mockExchanger) http.Handler {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)
	return NewRouter(&Deps{
		Exchanger: exchanger,
		Gatherer:  reg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&mockExchanger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("body = %s, want status ok", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&mockExchanger{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Result().StatusCode)
	}
}

// TestOAuthCallback_ExchangesCode はコールバックが認可コードを
// セッション交換に渡すことを検証する。
func TestOAuthCallback_ExchangesCode(t *testing.T) {
	var gotCode string
	exchanger := &mockExchanger{
		exchangeFn: func(ctx context.Context, code string) (*model.Session, error) {
			gotCode = code
			return &model.Session{AccessToken: "at-1"}, nil
		},
	}
	router := newTestRouter(exchanger)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc-123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Result().StatusCode)
	}
	if gotCode != "abc-123" {
		t.Errorf("code = %q, want abc-123", gotCode)
	}
}

func TestOAuthCallback_MissingCode(t *testing.T) {
	router := newTestRouter(&mockExchanger{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
}

func TestOAuthCallback_ProviderError(t *testing.T) {
	called := false
	exchanger := &mockExchanger{
		exchangeFn: func(ctx context.Context, code string) (*model.Session, error) {
			called = true
			return nil, nil
		},
	}
	router := newTestRouter(exchanger)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
	if called {
		t.Error("exchange called despite provider error")
	}
}

func TestOAuthCallback_ExchangeFailure(t *testing.T) {
	exchanger := &mockExchanger{
		exchangeFn: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, errors.New("provider unreachable")
		},
	}
	router := newTestRouter(exchanger)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Result().StatusCode)
	}
}
