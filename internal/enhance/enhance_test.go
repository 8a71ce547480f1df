// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package enhance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhanceIdentityWhenUnconfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no endpoint name", cfg: Config{Host: "https://demo", Token: "tok"}},
		{name: "no token", cfg: Config{Host: "https://demo", Name: "bi-llm"}},
		{name: "disabled", cfg: Config{Host: "https://demo", Token: "tok", Name: "bi-llm", Disabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.cfg)
			assert.False(t, e.Configured())
			assert.Equal(t, "draft answer", e.Enhance(context.Background(), "draft answer", "SELECT 1", ""))
		})
	}
}

func TestEnhanceFallsBackToRawPayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/serving-endpoints/bi-llm/invocations", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if _, ok := body["messages"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Contains(t, body["inputs"], "Original Response:\ndraft")
		_, _ = w.Write([]byte(`[{"generated_text":"enhanced"}]`))
	}))
	defer srv.Close()

	e := New(Config{Host: srv.URL, Token: "tok", Name: "bi-llm"})
	assert.Equal(t, "enhanced", e.Enhance(context.Background(), "draft", "", ""))
	assert.Equal(t, int32(2), calls.Load())
}

func TestEnhanceReturnsDraftWhenAllShapesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := New(Config{Host: srv.URL, Token: "tok", Name: "bi-llm"})
	assert.Equal(t, "draft", e.Enhance(context.Background(), "draft", "SELECT 1", "a\n1"))
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "chat", body: `{"choices":[{"message":{"content":"chat text"}}]}`, want: "chat text"},
		{name: "generated_text", body: `{"generated_text":"gen"}`, want: "gen"},
		{name: "list", body: `[{"generated_text":"listed"}]`, want: "listed"},
		{name: "predictions string", body: `{"predictions":["pred"]}`, want: "pred"},
		{name: "predictions object", body: `{"predictions":[{"generated_text":"pobj"}]}`, want: "pobj"},
		{name: "unknown", body: `{"foo":"bar"}`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v any
			require.NoError(t, json.Unmarshal([]byte(tt.body), &v))
			assert.Equal(t, tt.want, extractText(v))
		})
	}
}

func TestPromptSections(t *testing.T) {
	p := Prompt("draft", "", "")
	assert.Contains(t, p, "Original Response:\ndraft")
	assert.NotContains(t, p, "SQL Query Executed")
	assert.NotContains(t, p, "Query Results Sample")

	p = Prompt("draft", "SELECT 1", "a\n1")
	assert.Contains(t, p, "SQL Query Executed:\nSELECT 1")
	assert.Contains(t, p, "Query Results Sample:\na\n1")
	assert.Contains(t, p, "5. Maintains accuracy while adding context")
}
