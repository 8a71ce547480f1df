// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package warehouse

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"bichat/cli/internal/databricks"
	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/httperrors"
	"bichat/cli/internal/model"

	"github.com/cenkalti/backoff/v5"
)

const statementsPath = "/api/2.0/sql/statements"

var errRunning = errors.New("statement still running")

type statementExecutor struct {
	api          *databricks.Client
	warehouseID  string
	pollInterval time.Duration
	waitBudget   time.Duration
	log          *slog.Logger
}

func newStatementExecutor(cfg Config, log *slog.Logger) *statementExecutor {
	s := &statementExecutor{
		api: databricks.New(databricks.Options{
			Host:       cfg.Host,
			Token:      cfg.Token,
			HTTPClient: cfg.HTTPClient,
			Logger:     log,
		}),
		warehouseID:  cfg.WarehouseID,
		pollInterval: cfg.PollInterval,
		waitBudget:   cfg.WaitBudget,
		log:          log,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = time.Second
	}
	if s.waitBudget <= 0 {
		s.waitBudget = 2 * time.Minute
	}
	return s
}

func (s *statementExecutor) name() Driver { return DriverStatements }

func (s *statementExecutor) call(ctx context.Context, method, path string, body any) (*databricks.Statement, error) {
	resp, err := s.api.Do(ctx, method, path, body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, bierrors.Wrap(httperrors.Classify(err), "statement api", err)
	}
	if resp.Status != http.StatusOK {
		return nil, bierrors.New(httperrors.ClassifyStatus(resp.Status),
			"statement api: HTTP "+http.StatusText(resp.Status)+": "+httperrors.Truncate(string(resp.Body), 100))
	}
	return databricks.ParseStatement(resp.Body)
}

func (s *statementExecutor) execute(ctx context.Context, sql string) (*model.Table, error) {
	st, err := s.call(ctx, http.MethodPost, statementsPath, map[string]any{
		"warehouse_id":    s.warehouseID,
		"statement":       sql,
		"wait_timeout":    "10s",
		"on_wait_timeout": "CONTINUE",
		"format":          "JSON_ARRAY",
		"disposition":     "INLINE",
	})
	if err != nil {
		return nil, err
	}
	if !st.Done() {
		if st, err = s.wait(ctx, st.ID); err != nil {
			return nil, err
		}
	}
	switch st.State {
	case databricks.StateSucceeded:
		if st.Table == nil {
			return model.NewTable(nil, nil), nil
		}
		return st.Table, nil
	case databricks.StateFailed:
		return nil, bierrors.New(bierrors.BackendFailed, st.ErrorMessage)
	default:
		return nil, bierrors.New(bierrors.BackendFailed, "statement ended in state "+st.State)
	}
}

// wait polls a running statement until it leaves PENDING/RUNNING or the
// budget is spent.
func (s *statementExecutor) wait(ctx context.Context, id string) (*databricks.Statement, error) {
	if id == "" {
		return nil, bierrors.New(bierrors.BackendFailed, "running statement has no id")
	}
	st, err := backoff.Retry(ctx, func() (*databricks.Statement, error) {
		st, err := s.call(ctx, http.MethodGet, statementsPath+"/"+id, nil)
		if err != nil {
			if k := bierrors.KindOf(err); k == bierrors.AuthFailed || k == bierrors.Forbidden || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !st.Done() {
			return st, errRunning
		}
		return st, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.pollInterval)),
		backoff.WithMaxElapsedTime(s.waitBudget),
	)
	if errors.Is(err, errRunning) {
		s.cancel(id)
		return nil, bierrors.New(bierrors.Timeout, "statement did not finish within "+s.waitBudget.String())
	}
	return st, err
}

// cancel asks the warehouse to stop a statement that outlived its budget.
func (s *statementExecutor) cancel(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.api.Do(ctx, http.MethodPost, statementsPath+"/"+id+"/cancel", nil); err != nil {
		s.log.Debug("statement cancel failed", "statement_id", id, "error", err)
	}
}
