package debug

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "valwatch/pkg/logx"
)

func newService(t *testing.T) *Service {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "valwatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	s := New(logx.Nop(), reg)
	s.HandleStatus("deliveries", func() any { return []string{"ok"} })
	return s
}

func get(t *testing.T, h http.Handler, target string, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestHandlerRoutes(t *testing.T) {
	h := newService(t).Handler("")

	code, body := get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, h, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "valwatch_test_total 1")

	code, body = get(t, h, "/status/deliveries", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["ok"]`, body)

	code, _ = get(t, h, "/debug/pprof/", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestHandlerRequiresToken(t *testing.T) {
	h := newService(t).Handler("s3cret")

	code, _ := get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/healthz", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/healthz", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, h, "/metrics?token=s3cret", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestApplyStartsAndStops(t *testing.T) {
	s := newService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Same config keeps the listener.
	require.NoError(t, s.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}))
	assert.Equal(t, addr, s.Addr())

	require.NoError(t, s.Apply(ctx, Config{Enabled: false}))
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Stop(ctx))
}

func TestApplyRefusesPublicBindWithoutToken(t *testing.T) {
	s := newService(t)
	err := s.Apply(context.Background(), Config{Enabled: true, Addr: ":0"})
	require.ErrorIs(t, err, ErrInsecureBind)
	assert.Empty(t, s.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.1:6060":  false,
		"garbage":        false,
	} {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}
