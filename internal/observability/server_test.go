// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/authkit/pkg/errutil"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := NewServer(Options{})
	s.Metrics().ObserveRequest("login", http.StatusOK, 10*time.Millisecond)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{"# HELP", "# TYPE", "go_", "process_",
		"authkit_http_requests_total", "authkit_http_request_duration_seconds"} {
		assert.Contains(t, body, want)
	}
}

func TestMetrics_ObserveRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveRequest("login", http.StatusOK, time.Millisecond)
	m.ObserveRequest("login", http.StatusOK, time.Millisecond)
	m.ObserveRequest("login", http.StatusUnauthorized, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("login", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("login", "401")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}

func TestServer_RegistersExtraCollectors(t *testing.T) {
	extra := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authkit_test_extra_total",
		Help: "Counter registered by another package",
	})
	s := NewServer(Options{Collectors: []prometheus.Collector{extra}})
	extra.Add(3)

	assert.Contains(t, get(t, s, "/metrics").Body.String(), "authkit_test_extra_total 3")
}

func TestServer_Liveness(t *testing.T) {
	rec := get(t, NewServer(Options{}), "/healthz/liveness")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", strings.TrimSpace(rec.Body.String()))
}

func TestServer_Readiness(t *testing.T) {
	failing := func(context.Context) error { return errors.New("connection refused") }
	passing := func(context.Context) error { return nil }

	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus int
		want       Readiness
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			want:       Readiness{Status: StatusOK},
		},
		{
			name:       "all pass",
			checks:     map[string]Check{"database": passing, "redis": passing},
			wantStatus: http.StatusOK,
			want:       Readiness{Status: StatusOK, Checks: map[string]string{"database": StatusOK, "redis": StatusOK}},
		},
		{
			name:       "one fails",
			checks:     map[string]Check{"database": passing, "redis": failing},
			wantStatus: http.StatusServiceUnavailable,
			want:       Readiness{Status: StatusUnavailable, Checks: map[string]string{"database": StatusOK, "redis": StatusUnavailable}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Options{Checks: tt.checks})
			rec := get(t, s, "/healthz/readiness")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var got Readiness
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestServer_ReadinessCountsFailures(t *testing.T) {
	s := NewServer(Options{Checks: map[string]Check{
		"database": func(context.Context) error { return errors.New("down") },
	}})
	get(t, s, "/healthz/readiness")
	get(t, s, "/healthz/readiness")

	assert.InDelta(t, 2, testutil.ToFloat64(s.checkFails.WithLabelValues("database")), 0)
}

func TestServer_ReadinessCheckTimeout(t *testing.T) {
	s := NewServer(Options{
		CheckTimeout: 20 * time.Millisecond,
		Checks: map[string]Check{
			"slow": func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})

	assert.Equal(t, StatusUnavailable, s.Ready(context.Background()).Status)
}

func TestServer_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewServer(Options{Addr: "127.0.0.1:0"})
	errCh, err := s.Start()
	require.NoError(t, err)
	require.NotEmpty(t, s.Addr())

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + s.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(body))

	_, err = s.Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_ALREADY_RUNNING")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stop is idempotent")

	select {
	case serveErr, ok := <-errCh:
		if ok {
			assert.NoError(t, serveErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after stop")
	}
}

func TestServer_StopWithoutStart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, NewServer(Options{}).Stop(ctx))
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	s := NewServer(Options{Addr: "127.0.0.1:0"})
	errCh, err := s.Start()
	require.NoError(t, err)

	_ = s.listener.Close()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("serve error not reported")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Stop(ctx)
}

func TestServer_ListenFailure(t *testing.T) {
	_, err := NewServer(Options{Addr: "256.0.0.1:bad"}).Start()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")
}
