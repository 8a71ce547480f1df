// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package databricks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/model"

	"github.com/jellydator/ttlcache/v3"
)

// Statement execution states reported by the SQL Statement API.
const (
	StatePending   = "PENDING"
	StateRunning   = "RUNNING"
	StateSucceeded = "SUCCEEDED"
	StateFailed    = "FAILED"
	StateCanceled  = "CANCELED"
	StateClosed    = "CLOSED"
)

// Statement is the decoded subset of a SQL Statement API payload.
type Statement struct {
	ID    string
	State string
	// ErrorMessage is the backend's failure description when State is FAILED.
	ErrorMessage string
	Table        *model.Table
}

// Done reports whether the statement will not change state anymore.
func (s *Statement) Done() bool {
	switch s.State {
	case StatePending, StateRunning:
		return false
	}
	return true
}

type statementPayload struct {
	StatementID string `json:"statement_id"`
	Status      struct {
		State string `json:"state"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"status"`
	Manifest struct {
		Schema schemaPayload `json:"schema"`
	} `json:"manifest"`
	Result struct {
		Schema    schemaPayload `json:"schema"`
		DataArray [][]any       `json:"data_array"`
	} `json:"result"`
}

type schemaPayload struct {
	Columns []struct {
		Name string `json:"name"`
	} `json:"columns"`
}

func (s schemaPayload) names() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// ParseStatement decodes a statement payload. Column names come from
// result.schema when present, else manifest.schema. A payload with neither
// columns nor rows yields a nil table. Rows without a schema, or rows whose
// width differs from the schema, are an error rather than a truncated table.
func ParseStatement(body []byte) (*Statement, error) {
	var p statementPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode statement: %w", err)
	}
	st := &Statement{
		ID:           p.StatementID,
		State:        strings.ToUpper(p.Status.State),
		ErrorMessage: p.Status.Error.Message,
	}
	cols := p.Result.Schema.names()
	if len(cols) == 0 {
		cols = p.Manifest.Schema.names()
	}
	rows := p.Result.DataArray
	if len(rows) > 0 && len(cols) == 0 {
		return nil, bierrors.New(bierrors.BackendFailed, "statement result has rows but no schema")
	}
	for i, r := range rows {
		if len(r) != len(cols) {
			return nil, bierrors.New(bierrors.BackendFailed,
				fmt.Sprintf("statement result row %d has %d cells, schema has %d columns", i, len(r), len(cols)))
		}
	}
	if len(cols) > 0 || len(rows) > 0 {
		st.Table = model.NewTable(cols, rows)
	}
	if st.State == "" && st.Table != nil {
		st.State = StateSucceeded
	}
	return st, nil
}

// DefaultStatementTTL is how long fetched statement results stay cached.
const DefaultStatementTTL = 10 * time.Minute

// StatementCache keeps fetched result tables by statement id. Results of a
// finished statement never change, so repeated fetches are served locally.
type StatementCache struct {
	cache *ttlcache.Cache[string, *model.Table]
}

// NewStatementCache creates a cache whose entries expire after ttl.
func NewStatementCache(ttl time.Duration) *StatementCache {
	if ttl <= 0 {
		ttl = DefaultStatementTTL
	}
	return &StatementCache{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *model.Table](ttl),
			ttlcache.WithDisableTouchOnHit[string, *model.Table](),
		),
	}
}

// Get returns a cached table.
func (s *StatementCache) Get(id string) (*model.Table, bool) {
	if s == nil {
		return nil, false
	}
	item := s.cache.Get(id)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

// Put stores a table.
func (s *StatementCache) Put(id string, t *model.Table) {
	if s == nil || t == nil {
		return
	}
	s.cache.Set(id, t, ttlcache.DefaultTTL)
}

// Len returns the number of cached statements.
func (s *StatementCache) Len() int {
	if s == nil {
		return 0
	}
	return s.cache.Len()
}

// FetchStatement retrieves the result of a finished statement through the
// 2.0 and 2.1 API variants, consulting cache first when non-nil.
func (c *Client) FetchStatement(ctx context.Context, id string, cache *StatementCache) (*model.Table, error) {
	if id == "" {
		return nil, bierrors.New(bierrors.InvalidInput, "empty statement id")
	}
	if t, ok := cache.Get(id); ok {
		c.log.Debug("statement cache hit", "statement_id", id)
		return t, nil
	}
	// Each variant is tried on its own: a body without data rows on one
	// version falls through to the next.
	var (
		fallback *model.Table
		lastErr  error
	)
	for _, path := range Versioned("/api/{v}/sql/statements/" + id) {
		resp, err := c.Probe(ctx, http.MethodGet, []string{path}, nil)
		if err != nil {
			var pe *ProbeError
			if ctx.Err() != nil || !errors.As(err, &pe) {
				return nil, err
			}
			if k := pe.Kind(); k == bierrors.AuthFailed || k == bierrors.Forbidden {
				return nil, err
			}
			lastErr = err
			continue
		}
		st, err := ParseStatement(resp.Body)
		if err != nil {
			lastErr = err
			continue
		}
		if st.State == StateFailed {
			return nil, bierrors.New(bierrors.BackendFailed, "statement failed: "+st.ErrorMessage)
		}
		if st.Table != nil && len(st.Table.Rows) > 0 {
			cache.Put(id, st.Table)
			return st.Table, nil
		}
		if fallback == nil && st.Table != nil {
			fallback = st.Table
		}
	}
	if fallback != nil {
		cache.Put(id, fallback)
		return fallback, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, bierrors.New(bierrors.BackendFailed, "statement returned no result")
}
