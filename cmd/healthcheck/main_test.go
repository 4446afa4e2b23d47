package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "http://127.0.0.1:8080/healthz"},
		{"garbage", "http://127.0.0.1:8080/healthz"},
		{":9000", "http://127.0.0.1:9000/healthz"},
		{"0.0.0.0:8080", "http://127.0.0.1:8080/healthz"},
		{"[::]:8080", "http://[::1]:8080/healthz"},
		{"10.0.0.5:8081", "http://10.0.0.5:8081/healthz"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, healthURL(tt.raw))
		})
	}
}

func TestCheckHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		code := int(status.Load())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"status":"ok","contributions":3,"time":"2026-10-01T12:00:00Z"}`))
		} else {
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, checkHealth(ctx, srv.Client(), srv.URL+"/healthz"))

	status.Store(http.StatusServiceUnavailable)
	err := checkHealth(ctx, srv.Client(), srv.URL+"/healthz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCheckHealth_RejectsUnhealthyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer srv.Close()

	err := checkHealth(context.Background(), srv.Client(), srv.URL+"/healthz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degraded")
}

func TestCheckHealth_RejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>proxy page</html>"))
	}))
	defer srv.Close()

	assert.Error(t, checkHealth(context.Background(), srv.Client(), srv.URL+"/healthz"))
}

func TestCheckHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/healthz"
	srv.Close()

	assert.Error(t, checkHealth(context.Background(), srv.Client(), target))
}

func TestCheck_UsesConfiguredListenAddr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	t.Setenv("CRUCIVERBA_LISTEN_ADDR", srv.Listener.Addr().String())
	assert.Equal(t, 0, check())

	srv.Close()
	assert.Equal(t, 1, check())
}
