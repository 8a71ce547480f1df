// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package databricks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	bierrors "bichat/cli/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name      string
		statuses  map[string]int
		wantHits  int
		wantPath  string
		wantKind  bierrors.Kind
		wantError bool
	}{
		{
			name:     "first variant succeeds",
			statuses: map[string]int{"/a": 200},
			wantHits: 1,
			wantPath: "/a",
		},
		{
			name:     "404 falls through to next variant",
			statuses: map[string]int{"/a": 404, "/b": 200},
			wantHits: 2,
			wantPath: "/b",
		},
		{
			name:      "401 stops probing",
			statuses:  map[string]int{"/a": 401, "/b": 200},
			wantHits:  1,
			wantKind:  bierrors.AuthFailed,
			wantError: true,
		},
		{
			name:      "403 stops probing",
			statuses:  map[string]int{"/a": 403, "/b": 200},
			wantHits:  1,
			wantKind:  bierrors.Forbidden,
			wantError: true,
		},
		{
			name:      "all fail reports last status",
			statuses:  map[string]int{"/a": 404, "/b": 500},
			wantHits:  2,
			wantKind:  bierrors.HTTP,
			wantError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				code := tt.statuses[r.URL.Path]
				w.WriteHeader(code)
				_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
			}))
			defer srv.Close()

			c := New(Options{Host: srv.URL, Token: "tok"})
			resp, err := c.Probe(context.Background(), http.MethodGet, []string{"/a", "/b"}, nil)
			assert.Equal(t, int32(tt.wantHits), hits.Load())
			if tt.wantError {
				var pe *ProbeError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, tt.wantKind, pe.Kind())
				assert.Contains(t, pe.Error(), string(tt.wantKind))
				return
			}
			require.NoError(t, err)
			v, err := DecodeAny(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, FirstString(v, "path"))
		})
	}
}

func TestProbeConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{Host: url, Token: "tok", Timeout: time.Second})
	_, err := c.Probe(context.Background(), http.MethodGet, Versioned("/api/{v}/x"), nil)
	var pe *ProbeError
	require.True(t, errors.As(err, &pe))
	require.Len(t, pe.Attempts, 2)
	assert.Equal(t, bierrors.Connection, pe.Kind())
	assert.Contains(t, pe.Attempts[0].URL, "/api/2.0/x")
	assert.Contains(t, pe.Attempts[1].URL, "/api/2.1/x")
}

func TestProbeCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(Options{Host: srv.URL, Token: "tok"})
	_, err := c.Probe(ctx, http.MethodGet, []string{"/a"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "https://adb-1.net", NormalizeHost(" adb-1.net/ "))
	assert.Equal(t, "http://localhost:8080", NormalizeHost("http://localhost:8080/"))
	assert.Equal(t, "", NormalizeHost(""))
}

func TestLookup(t *testing.T) {
	v, err := DecodeAny([]byte(`{"choices":[{"message":{"content":"hi"}}],"id":"m1"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", Lookup(v, "choices.0.message.content"))
	assert.Nil(t, Lookup(v, "choices.3.message"))
	assert.Equal(t, "m1", FirstString(v, "message_id", "id"))
}
