package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// nextValueSQL creates the counter on first use and increments it otherwise,
// returning the new value in a single round trip.
const nextValueSQL = `INSERT INTO control_numbers (name, value, updated_at)
VALUES ($1, 1, NOW())
ON CONFLICT (name) DO UPDATE
SET value = control_numbers.value + 1, updated_at = NOW()
RETURNING value`

// Querier is the subset of *pgxpool.Pool the Postgres sequencer needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Postgres keeps counters in the control_numbers table so every replica
// shares one sequence.
type Postgres struct {
	db Querier
}

// NewPostgres creates a sequencer backed by db.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

// Next increments and returns the named counter.
func (p *Postgres) Next(ctx context.Context, name string) (int64, error) {
	var v int64
	if err := p.db.QueryRow(ctx, nextValueSQL, name).Scan(&v); err != nil {
		return 0, fmt.Errorf("next control number %s: %w", name, err)
	}
	return v, nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
