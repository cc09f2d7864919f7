package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/autonome-labs/autonome/internal/model"
)

// Pool is the subset of pgxpool.Pool the ledger needs; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresLedger implements Ledger using pgxpool.
type PostgresLedger struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for the
// hot write and read paths.
var preparedStatements = map[string]string{
	"append_entry": `INSERT INTO ledger_entries (kind, skill, amount, counterparty, tx_ref) VALUES ($1, $2, $3, $4, $5)`,
	"recent_entries": `SELECT id, kind, skill, amount, counterparty, tx_ref, created_at FROM ledger_entries ORDER BY created_at DESC, id DESC LIMIT $1`,
	"sum_by_kind":  `SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM ledger_entries WHERE kind = $1`,
	"get_state":    `SELECT value FROM agent_state WHERE key = $1`,
	"set_state":    `INSERT INTO agent_state (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
}

// NewPostgres creates a PostgresLedger with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresLedger, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresLedger{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id           BIGSERIAL PRIMARY KEY,
	kind         TEXT NOT NULL CHECK (kind IN ('revenue', 'expense', 'reinvestment')),
	skill        TEXT,
	amount       DOUBLE PRECISION NOT NULL,
	counterparty TEXT,
	tx_ref       TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agent_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ledger_kind ON ledger_entries(kind);
CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger_entries(created_at);
`

func (l *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}

func (l *PostgresLedger) RecordRevenue(ctx context.Context, amount float64, counterparty string) error {
	return l.append(ctx, model.LedgerEntry{
		Kind:         model.KindRevenue,
		Amount:       amount,
		Counterparty: counterparty,
	})
}

func (l *PostgresLedger) RecordExpense(ctx context.Context, skill string, amount float64) error {
	return l.append(ctx, model.LedgerEntry{
		Kind:   model.KindExpense,
		Skill:  skill,
		Amount: amount,
	})
}

func (l *PostgresLedger) RecordReinvestment(ctx context.Context, amount float64, txRef string) error {
	return l.append(ctx, model.LedgerEntry{
		Kind:   model.KindReinvestment,
		Amount: amount,
		TxRef:  txRef,
	})
}

func (l *PostgresLedger) append(ctx context.Context, e model.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO ledger_entries (kind, skill, amount, counterparty, tx_ref) VALUES ($1, $2, $3, $4, $5)`,
		string(e.Kind), nullable(e.Skill), e.Amount, nullable(e.Counterparty), nullable(e.TxRef),
	)
	return eris.Wrapf(err, "postgres: append %s entry", e.Kind)
}

func (l *PostgresLedger) RecentEntries(ctx context.Context, n int) ([]model.LedgerEntry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, kind, skill, amount, counterparty, tx_ref, created_at FROM ledger_entries ORDER BY created_at DESC, id DESC LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent entries")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var skill, counterparty, txRef *string
		if err := rows.Scan(&e.ID, &e.Kind, &skill, &e.Amount, &counterparty, &txRef, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		e.Skill = deref(skill)
		e.Counterparty = deref(counterparty)
		e.TxRef = deref(txRef)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: recent entries iterate")
}

func (l *PostgresLedger) Metrics(ctx context.Context) (*model.AgentMetrics, error) {
	m := &model.AgentMetrics{}

	sumByKind := func(kind model.EntryKind, sum *float64, count *int) error {
		err := l.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM ledger_entries WHERE kind = $1`,
			string(kind),
		).Scan(sum, count)
		return eris.Wrapf(err, "postgres: sum %s", kind)
	}

	if err := sumByKind(model.KindRevenue, &m.TotalRevenue, &m.TotalRequests); err != nil {
		return nil, err
	}
	if err := sumByKind(model.KindExpense, &m.TotalExpenses, &m.TotalSkillCalls); err != nil {
		return nil, err
	}
	if err := sumByKind(model.KindReinvestment, &m.ReinvestedAmount, &m.TotalReinvestments); err != nil {
		return nil, err
	}
	m.TotalProfit = m.TotalRevenue - m.TotalExpenses

	var err error
	if m.CurrentEthBalance, err = l.stateOrDefault(ctx, model.StateEthBalance, "0"); err != nil {
		return nil, err
	}
	if m.CurrentUsdcBalance, err = l.stateOrDefault(ctx, model.StateUsdcBalance, "0"); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *PostgresLedger) TimeSeries(ctx context.Context, window time.Duration) ([]model.TimeSeriesPoint, error) {
	cutoff := time.Now().UTC().Add(-window)

	rows, err := l.pool.Query(ctx,
		`SELECT date_trunc('minute', created_at) AS bucket,
		        COALESCE(SUM(amount) FILTER (WHERE kind = 'revenue'), 0),
		        COALESCE(SUM(amount) FILTER (WHERE kind = 'expense'), 0)
		 FROM ledger_entries
		 WHERE created_at > $1
		 GROUP BY bucket
		 ORDER BY bucket ASC`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: time series")
	}
	defer rows.Close()

	var buckets []bucketRow
	for rows.Next() {
		var r bucketRow
		if err := rows.Scan(&r.ts, &r.revenue, &r.expenses); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bucket")
		}
		buckets = append(buckets, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: time series iterate")
	}
	return accumulate(buckets), nil
}

func (l *PostgresLedger) SetState(ctx context.Context, key, value string) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO agent_state (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	return eris.Wrapf(err, "postgres: set state %s", key)
}

func (l *PostgresLedger) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := l.pool.QueryRow(ctx,
		`SELECT value FROM agent_state WHERE key = $1`, key,
	).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get state %s", key)
	}
	return value, nil
}

func (l *PostgresLedger) stateOrDefault(ctx context.Context, key, fallback string) (string, error) {
	v, err := l.GetState(ctx, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return fallback, nil
	}
	return v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
