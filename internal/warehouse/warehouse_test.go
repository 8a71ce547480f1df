// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package warehouse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	bierrors "bichat/cli/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteUnconfigured(t *testing.T) {
	c, err := New(Config{Host: "https://demo", Token: "tok"})
	require.NoError(t, err)
	assert.False(t, c.Configured())
	assert.Equal(t, Driver(""), c.Driver())

	_, err = c.Execute(context.Background(), "SELECT 1")
	assert.Equal(t, bierrors.Unconfigured, bierrors.KindOf(err))
}

func TestNewRejectsBadDSN(t *testing.T) {
	_, err := New(Config{DSN: "mysql://u:p@h/db"})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestNewPrefersDSN(t *testing.T) {
	c, err := New(Config{Host: "https://demo", Token: "tok", WarehouseID: "wh", DSN: "postgres://u:p@localhost/db"})
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, c.Driver())
}

func TestStatementsInlineResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.0/sql/statements", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "wh1", body["warehouse_id"])
		assert.Equal(t, "SELECT region, revenue FROM sales", body["statement"])
		_, _ = w.Write([]byte(`{"statement_id":"s1","status":{"state":"SUCCEEDED"},
			"manifest":{"schema":{"columns":[{"name":"region"},{"name":"revenue"}]}},
			"result":{"data_array":[["EMEA","10"],["APAC","20"]]}}`))
	}))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, Token: "tok", WarehouseID: "wh1"})
	require.NoError(t, err)
	assert.Equal(t, DriverStatements, c.Driver())

	tbl, err := c.Execute(context.Background(), "SELECT region, revenue FROM sales")
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "revenue"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 2)
}

func TestStatementsPollsUntilDone(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"statement_id":"s2","status":{"state":"PENDING"}}`))
		case r.URL.Path == "/api/2.0/sql/statements/s2":
			if gets.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"statement_id":"s2","status":{"state":"RUNNING"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"statement_id":"s2","status":{"state":"SUCCEEDED"},"manifest":{"schema":{"columns":[{"name":"n"}]}},"result":{}}`))
		}
	}))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, Token: "tok", WarehouseID: "wh1", PollInterval: 5 * time.Millisecond, WaitBudget: time.Second})
	require.NoError(t, err)
	tbl, err := c.Execute(context.Background(), "SELECT count(*) AS n FROM t WHERE false")
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.Equal(t, []string{"n"}, tbl.Columns)
	assert.Equal(t, int32(3), gets.Load())
}

func TestStatementsFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind bierrors.Kind
		wantText string
	}{
		{name: "failed statement", status: 200, body: `{"status":{"state":"FAILED","error":{"message":"[TABLE_OR_VIEW_NOT_FOUND] sales"}}}`, wantKind: bierrors.BackendFailed, wantText: "TABLE_OR_VIEW_NOT_FOUND"},
		{name: "unauthorized", status: 401, body: `{}`, wantKind: bierrors.AuthFailed},
		{name: "warehouse missing", status: 404, body: `{"message":"warehouse not found"}`, wantKind: bierrors.NotFound, wantText: "warehouse not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := New(Config{Host: srv.URL, Token: "tok", WarehouseID: "wh1"})
			require.NoError(t, err)
			_, err = c.Execute(context.Background(), "SELECT * FROM sales")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, bierrors.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantText)
		})
	}
}

func TestStatementsTimeoutCancels(t *testing.T) {
	var cancelled atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/sql/statements/s3/cancel":
			cancelled.Store(true)
		default:
			_, _ = w.Write([]byte(`{"statement_id":"s3","status":{"state":"RUNNING"}}`))
		}
	}))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, Token: "tok", WarehouseID: "wh1", PollInterval: 5 * time.Millisecond, WaitBudget: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), "SELECT pg_sleep(100)")
	assert.Equal(t, bierrors.Timeout, bierrors.KindOf(err))
	assert.True(t, cancelled.Load())
}

func TestNormalizeValue(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	assert.Equal(t, "12345678-9abc-def0-0123-456789abcdef", normalizeValue(id))
	assert.Equal(t, "2024-01-02T03:04:05Z", normalizeValue(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, int64(7), normalizeValue(int64(7)))
}
