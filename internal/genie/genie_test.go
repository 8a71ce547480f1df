// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package genie

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bichat/cli/internal/databricks"
	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenie serves a scripted Genie space.
type fakeGenie struct {
	mu sync.Mutex
	// startStatus maps a start path to the status it answers with; missing paths answer 200.
	startStatus map[string]int
	// statuses are returned by successive polls; the last one repeats.
	statuses    []string
	polls       int
	content     string
	attachments []map[string]any
	statement   string
	requests    atomic.Int32
	lastBody    map[string]string
}

func (f *fakeGenie) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		p := r.URL.Path
		switch {
		case r.Method == http.MethodPost && (strings.HasSuffix(p, "/start-conversation") || strings.HasSuffix(p, "/S1/conversations")):
			if code, ok := f.startStatus[p]; ok && code != http.StatusOK {
				w.WriteHeader(code)
				_, _ = w.Write([]byte(`{"error_code":"X","message":"nope"}`))
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
			_, _ = w.Write([]byte(`{"conversation_id":"c1","message_id":"m1"}`))
		case r.Method == http.MethodPost && strings.HasSuffix(p, "/conversations/c1/messages"):
			_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
			_, _ = w.Write([]byte(`{"id":"m2"}`))
		case r.Method == http.MethodGet && strings.Contains(p, "/conversations/c1/messages/"):
			status := f.statuses[len(f.statuses)-1]
			if f.polls < len(f.statuses) {
				status = f.statuses[f.polls]
			}
			f.polls++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":          p[strings.LastIndex(p, "/")+1:],
				"status":      status,
				"content":     f.content,
				"attachments": f.attachments,
			})
		case r.Method == http.MethodGet && strings.HasPrefix(p, "/api/2.0/sql/statements/"):
			if f.statement == "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(f.statement))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestClient(t *testing.T, f *fakeGenie) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		Host:         srv.URL,
		Token:        "tok",
		SpaceID:      "S1",
		PollInterval: 10 * time.Millisecond,
		WaitBudget:   200 * time.Millisecond,
		Cache:        databricks.NewStatementCache(time.Minute),
	})
	require.NoError(t, err)
	return c
}

func TestAskOfflineReturnsCannedText(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, Token: "", SpaceID: "S1"})
	require.NoError(t, err)
	require.True(t, c.Offline())
	ans, err := c.Ask(context.Background(), "", "show revenue by tenure band")
	require.NoError(t, err)
	assert.True(t, ans.Offline)
	assert.Nil(t, ans.Failure)
	assert.Contains(t, ans.Text, "Here's the analysis for your query about show revenue by tenure band")
	assert.Equal(t, int32(0), hits.Load())

	ans, err = c.Ask(context.Background(), "", "Please describe the dataset")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ans.Text, "Dataset Description:"))
	assert.Equal(t, int32(0), hits.Load())
}

func TestAskPlaceholderCredentials(t *testing.T) {
	c, err := New(Config{Host: "https://demo", Token: PlaceholderToken, SpaceID: "S1"})
	require.NoError(t, err)
	ans, err := c.Ask(context.Background(), "", "q")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ans.Text, "Configuration Error: DATABRICKS_TOKEN"))
	assert.Equal(t, bierrors.Unconfigured, bierrors.KindOf(ans.Failure))

	c, err = New(Config{Host: "https://demo", Token: "tok", SpaceID: PlaceholderSpace})
	require.NoError(t, err)
	ans, err = c.Ask(context.Background(), "", "q")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ans.Text, "Configuration Error: GENIE_SPACE_ID"))
}

func TestAskCompletedWithoutAttachments(t *testing.T) {
	f := &fakeGenie{statuses: []string{"SUBMITTED", "EXECUTING_QUERY", "COMPLETED"}, content: "Revenue grew 4%."}
	c := newTestClient(t, f)

	ans, err := c.Ask(context.Background(), "", "how did revenue do?")
	require.NoError(t, err)
	assert.True(t, ans.OK())
	assert.Equal(t, "Revenue grew 4%.", ans.Text)
	assert.Equal(t, model.Handle("c1"), ans.Handle)
	assert.Nil(t, ans.Table)
	assert.Equal(t, "", ans.SQL())
	assert.Equal(t, "how did revenue do?", f.lastBody["content"])
	assert.Equal(t, 3, f.polls)
}

func TestAskCompletedWithQueryAttachment(t *testing.T) {
	f := &fakeGenie{
		statuses: []string{"COMPLETED"},
		content:  "Here are the numbers.",
		attachments: []map[string]any{
			{"type": "query_result", "query": map[string]any{"query": "SELECT a, b FROM t", "statement_id": "st1"}},
		},
		statement: `{"statement_id":"st1","status":{"state":"SUCCEEDED"},"result":{"schema":{"columns":[{"name":"a"},{"name":"b"}]},"data_array":[[1,2]]}}`,
	}
	c := newTestClient(t, f)

	ans, err := c.Ask(context.Background(), "", "q")
	require.NoError(t, err)
	require.NotNil(t, ans.Table)
	assert.Equal(t, []string{"a", "b"}, ans.Table.Columns)
	require.Len(t, ans.Table.Rows, 1)
	assert.Equal(t, []any{float64(1), float64(2)}, ans.Table.Rows[0])
	assert.Equal(t, "SELECT a, b FROM t", ans.SQL())
}

func TestAskTypelessAttachmentWithUnavailableResult(t *testing.T) {
	f := &fakeGenie{
		statuses: []string{"COMPLETED"},
		attachments: []map[string]any{
			{"query": map[string]any{"query": "SELECT 1", "statement_id": "gone", "description": "One row."}},
		},
	}
	c := newTestClient(t, f)

	ans, err := c.Ask(context.Background(), "", "q")
	require.NoError(t, err)
	assert.Nil(t, ans.Table)
	assert.Equal(t, "SELECT 1", ans.SQL())
	assert.Equal(t, "One row.", ans.Text)
}

func TestAskContinueUsesExistingConversation(t *testing.T) {
	f := &fakeGenie{statuses: []string{"COMPLETED"}, content: "follow-up answer"}
	c := newTestClient(t, f)

	ans, err := c.Ask(context.Background(), "c1", "and last year?")
	require.NoError(t, err)
	assert.Equal(t, "follow-up answer", ans.Text)
	assert.Equal(t, model.Handle("c1"), ans.Handle)
	assert.Equal(t, "m2", ans.Message.ID)
}

func TestPollTimesOut(t *testing.T) {
	f := &fakeGenie{statuses: []string{"EXECUTING_QUERY"}}
	c := newTestClient(t, f)

	msg, err := c.Poll(context.Background(), "c1", model.Message{ID: "m1", Status: model.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, model.StatusTimedOut, msg.Status)
	assert.Contains(t, msg.Content, "Try a simpler question")
	assert.Greater(t, f.polls, 1)

	ans, err := c.Ask(context.Background(), "", "a very complex question")
	require.NoError(t, err)
	assert.Equal(t, bierrors.Timeout, bierrors.KindOf(ans.Failure))
	assert.Contains(t, ans.Text, "The question 'a very complex question' may be too complex")
}

func TestPollBudgetBoundsHungFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		Host:           srv.URL,
		Token:          "tok",
		SpaceID:        "S1",
		PollInterval:   50 * time.Millisecond,
		WaitBudget:     300 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	start := time.Now()
	msg, err := c.Poll(context.Background(), "c1", model.Message{ID: "m1", Status: model.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, model.StatusTimedOut, msg.Status)
	assert.Contains(t, msg.Content, "Try a simpler question")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPollStatusLifecycle(t *testing.T) {
	tests := []struct {
		name      string
		in        model.Message
		statuses  []string
		content   string
		want      model.Status
		wantText  string
		wantPolls int
	}{
		{
			name:      "terminal message is returned untouched",
			in:        model.Message{ID: "m1", Status: model.StatusCompleted, Content: "done"},
			statuses:  []string{"FAILED"},
			want:      model.StatusCompleted,
			wantText:  "done",
			wantPolls: 0,
		},
		{
			name:      "unset status is treated as pending",
			in:        model.Message{ID: "m1"},
			statuses:  []string{"ASKING_AI", "COMPLETED"},
			content:   "Revenue is up.",
			want:      model.StatusCompleted,
			wantText:  "Revenue is up.",
			wantPolls: 2,
		},
		{
			name:      "failed without content gets a description",
			in:        model.Message{ID: "m1", Status: model.StatusPending},
			statuses:  []string{"FAILED"},
			want:      model.StatusFailed,
			wantText:  "Query failed to execute",
			wantPolls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeGenie{statuses: tt.statuses, content: tt.content}
			c := newTestClient(t, f)

			msg, err := c.Poll(context.Background(), "c1", tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Status)
			assert.Equal(t, tt.wantText, msg.Content)
			assert.Equal(t, tt.wantPolls, f.polls)
			assert.Equal(t, "m1", msg.ID)
		})
	}
}

func TestPollNeverReturnsPendingOnCancel(t *testing.T) {
	f := &fakeGenie{statuses: []string{"EXECUTING_QUERY"}}
	c := newTestClient(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	msg, err := c.Poll(ctx, "c1", model.Message{ID: "m1", Status: model.StatusPending})
	require.Error(t, err)
	assert.NotEqual(t, model.StatusPending, msg.Status)
}

func TestAskFailedMessage(t *testing.T) {
	f := &fakeGenie{statuses: []string{"ASKING_AI", "FAILED"}}
	c := newTestClient(t, f)

	ans, err := c.Ask(context.Background(), "", "q")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ans.Text, "Query failed to execute"))
	assert.Equal(t, bierrors.BackendFailed, bierrors.KindOf(ans.Failure))
}

func TestStartFailover(t *testing.T) {
	tests := []struct {
		name       string
		statuses   map[string]int
		wantKind   bierrors.Kind
		wantText   string
		wantStarts int32
	}{
		{
			name: "all variants fail names the last status",
			statuses: map[string]int{
				"/api/2.0/genie/spaces/S1/start-conversation": 404,
				"/api/2.1/genie/spaces/S1/start-conversation": 404,
				"/api/2.0/genie/spaces/S1/conversations":      404,
				"/api/2.1/genie/spaces/S1/conversations":      500,
			},
			wantKind:   bierrors.HTTP,
			wantText:   "Failed to start conversation with Genie. HTTP 500",
			wantStarts: 4,
		},
		{
			name: "unauthorized stops after the first variant",
			statuses: map[string]int{
				"/api/2.0/genie/spaces/S1/start-conversation": 401,
			},
			wantKind:   bierrors.AuthFailed,
			wantText:   "Authentication failed (401)",
			wantStarts: 1,
		},
		{
			name: "space not found on every variant",
			statuses: map[string]int{
				"/api/2.0/genie/spaces/S1/start-conversation": 404,
				"/api/2.1/genie/spaces/S1/start-conversation": 404,
				"/api/2.0/genie/spaces/S1/conversations":      404,
				"/api/2.1/genie/spaces/S1/conversations":      404,
			},
			wantKind:   bierrors.NotFound,
			wantText:   "Genie space not found (404). Check if space ID S1... exists.",
			wantStarts: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeGenie{startStatus: tt.statuses, statuses: []string{"COMPLETED"}}
			c := newTestClient(t, f)

			ans, err := c.Ask(context.Background(), "", "q")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, bierrors.KindOf(ans.Failure))
			assert.Contains(t, ans.Text, tt.wantText)
			assert.Equal(t, tt.wantStarts, f.requests.Load())

			var se *StartError
			require.ErrorAs(t, ans.Failure, &se)
			assert.Len(t, se.Attempts(), int(tt.wantStarts))
		})
	}
}

func TestStartFallsBackToLaterVariant(t *testing.T) {
	f := &fakeGenie{
		startStatus: map[string]int{
			"/api/2.0/genie/spaces/S1/start-conversation": 404,
			"/api/2.1/genie/spaces/S1/start-conversation": 404,
		},
		statuses: []string{"COMPLETED"},
	}
	c := newTestClient(t, f)

	h, msg, err := c.Start(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, model.Handle("c1"), h)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, model.StatusPending, msg.Status)
	assert.Equal(t, int32(3), f.requests.Load())
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, model.StatusCompleted, mapStatus("COMPLETED"))
	assert.Equal(t, model.StatusFailed, mapStatus("FAILED"))
	assert.Equal(t, model.StatusFailed, mapStatus("CANCELLED"))
	assert.Equal(t, model.StatusFailed, mapStatus("QUERY_RESULT_EXPIRED"))
	assert.Equal(t, model.StatusPending, mapStatus("EXECUTING_QUERY"))
	assert.Equal(t, model.StatusPending, mapStatus(""))
}

func TestDiagnose(t *testing.T) {
	f := &fakeGenie{statuses: []string{"COMPLETED"}, content: "Sure, ask away."}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/clusters/list":
			_, _ = w.Write([]byte(`{"clusters":[]}`))
		case "/api/2.0/genie/spaces/S1":
			_, _ = w.Write([]byte(`{"display_name":"Sales space"}`))
		default:
			f.handler(t).ServeHTTP(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, Token: "tok", SpaceID: "S1", PollInterval: 10 * time.Millisecond, WaitBudget: 200 * time.Millisecond})
	require.NoError(t, err)
	checks := c.Diagnose(context.Background())
	require.Len(t, checks, 5)
	for _, ch := range checks {
		assert.Equal(t, CheckOK, ch.Status, ch.Name)
	}
	assert.Contains(t, checks[2].Detail, "Sales space")
	assert.Contains(t, checks[4].Detail, "Sure, ask away.")
}

func TestDiagnoseStopsOnAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, Token: "tok", SpaceID: "S1"})
	require.NoError(t, err)
	checks := c.Diagnose(context.Background())
	require.Len(t, checks, 2)
	assert.Equal(t, CheckFail, checks[1].Status)
	assert.Contains(t, checks[1].Detail, "Authentication failed")
}
