// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/model"

	"github.com/jackc/pgx/v5"
)

// postgresExecutor opens one connection per statement and releases it on return.
type postgresExecutor struct {
	dsn string
	log *slog.Logger
}

func (p *postgresExecutor) name() Driver { return DriverPostgres }

func (p *postgresExecutor) execute(ctx context.Context, sql string) (*model.Table, error) {
	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return nil, bierrors.Wrap(bierrors.Connection, "connect to warehouse", err)
	}
	defer conn.Close(context.Background())

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, bierrors.Wrap(bierrors.BackendFailed, "query", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, bierrors.Wrap(bierrors.BackendFailed, "read row", err)
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, bierrors.Wrap(bierrors.BackendFailed, "query", err)
	}
	return model.NewTable(cols, out), nil
}

// normalizeValue converts pgx values into JSON- and display-friendly forms.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case []byte:
		if len(x) == 16 {
			return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
		}
		return fmt.Sprintf("\\x%x", x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}
