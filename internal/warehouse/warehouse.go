// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package warehouse executes SQL against the analytics warehouse and returns
// result tables. Two backends are supported. A Databricks SQL warehouse is
// reached through the Statement Execution API. Postgres-compatible warehouses
// are reached over pgx.
package warehouse

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/model"
)

// Config selects and configures the backend. A DSN takes precedence over
// the Databricks coordinates.
type Config struct {
	Host        string
	Token       string
	WarehouseID string
	DSN         string

	// PollInterval and WaitBudget bound statement polling on Databricks.
	PollInterval time.Duration
	WaitBudget   time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// executor runs one statement on a specific backend.
type executor interface {
	execute(ctx context.Context, sql string) (*model.Table, error)
	name() Driver
}

// Client executes SQL on the configured warehouse.
type Client struct {
	exec executor
	log  *slog.Logger
}

// New builds a client. Missing coordinates are not an error; Execute reports
// them as Unconfigured. An unusable DSN is an error.
func New(cfg Config) (*Client, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Client{log: log}
	switch {
	case strings.TrimSpace(cfg.DSN) != "":
		info, err := ParseDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		c.exec = &postgresExecutor{dsn: info.Normalize(), log: log}
	case cfg.Host != "" && cfg.Token != "" && cfg.WarehouseID != "":
		c.exec = newStatementExecutor(cfg, log)
	}
	return c, nil
}

// Configured reports whether a backend is available.
func (c *Client) Configured() bool { return c != nil && c.exec != nil }

// Driver returns the active backend, or "" when unconfigured.
func (c *Client) Driver() Driver {
	if !c.Configured() {
		return ""
	}
	return c.exec.name()
}

// Execute runs sql and returns its result table. A statement that returns
// no rows yields an empty, non-nil table.
func (c *Client) Execute(ctx context.Context, sql string) (*model.Table, error) {
	if !c.Configured() {
		return nil, bierrors.New(bierrors.Unconfigured, "no SQL warehouse configured; set DATABRICKS_WAREHOUSE_ID or WAREHOUSE_DSN")
	}
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, bierrors.New(bierrors.InvalidInput, "empty SQL statement")
	}
	start := time.Now()
	t, err := c.exec.execute(ctx, sql)
	if err != nil {
		c.log.Debug("warehouse query failed", "driver", c.exec.name(), "error", err)
		return nil, err
	}
	c.log.Debug("warehouse query", "driver", c.exec.name(), "rows", len(t.Rows), "elapsed", time.Since(start))
	return t, nil
}
