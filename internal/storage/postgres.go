package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hostwatch/internal/alerts"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	channel TEXT             NOT NULL,
	ts      TIMESTAMPTZ      NOT NULL,
	value   DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_channel_ts ON readings (channel, ts);
`

// Postgres stores readings in a single readings table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the schema if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Record(ctx context.Context, ch alerts.Channel, value float64, at time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO readings (channel, ts, value) VALUES ($1, $2, $3)`,
		string(ch), at.UTC(), value)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (p *Postgres) Range(ctx context.Context, ch alerts.Channel, from, to time.Time) ([]Point, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT ts, value FROM readings WHERE channel = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts`,
		string(ch), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	pts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Point, error) {
		var pt Point
		err := row.Scan(&pt.Timestamp, &pt.Value)
		return pt, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan readings: %w", err)
	}
	return pts, nil
}

func (p *Postgres) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM readings WHERE ts < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE readings`); err != nil {
		return fmt.Errorf("reset readings: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
