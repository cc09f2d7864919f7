package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/autonome-labs/autonome/internal/model"
)

// SQLiteLedger implements Ledger using modernc.org/sqlite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	kind         TEXT NOT NULL CHECK(kind IN ('revenue', 'expense', 'reinvestment')),
	skill        TEXT,
	amount       REAL NOT NULL,
	counterparty TEXT,
	tx_ref       TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS agent_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ledger_kind ON ledger_entries(kind);
CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger_entries(created_at);
`

func (l *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) RecordRevenue(ctx context.Context, amount float64, counterparty string) error {
	return l.append(ctx, model.LedgerEntry{
		Kind:         model.KindRevenue,
		Amount:       amount,
		Counterparty: counterparty,
	})
}

func (l *SQLiteLedger) RecordExpense(ctx context.Context, skill string, amount float64) error {
	return l.append(ctx, model.LedgerEntry{
		Kind:   model.KindExpense,
		Skill:  skill,
		Amount: amount,
	})
}

func (l *SQLiteLedger) RecordReinvestment(ctx context.Context, amount float64, txRef string) error {
	return l.append(ctx, model.LedgerEntry{
		Kind:   model.KindReinvestment,
		Amount: amount,
		TxRef:  txRef,
	})
}

func (l *SQLiteLedger) append(ctx context.Context, e model.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (kind, skill, amount, counterparty, tx_ref)
		 VALUES (?, ?, ?, ?, ?)`,
		string(e.Kind), nullable(e.Skill), e.Amount, nullable(e.Counterparty), nullable(e.TxRef),
	)
	return eris.Wrapf(err, "sqlite: append %s entry", e.Kind)
}

func (l *SQLiteLedger) RecentEntries(ctx context.Context, n int) ([]model.LedgerEntry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, kind, skill, amount, counterparty, tx_ref, created_at
		 FROM ledger_entries ORDER BY created_at DESC, id DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent entries")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var skill, counterparty, txRef sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &skill, &e.Amount, &counterparty, &txRef, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		e.Skill = skill.String
		e.Counterparty = counterparty.String
		e.TxRef = txRef.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: recent entries iterate")
}

func (l *SQLiteLedger) Metrics(ctx context.Context) (*model.AgentMetrics, error) {
	m := &model.AgentMetrics{}

	// Four independent scans; no snapshot isolation needed beyond what a
	// single reader already gets.
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM ledger_entries WHERE kind = 'revenue'`,
	).Scan(&m.TotalRevenue, &m.TotalRequests)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sum revenue")
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM ledger_entries WHERE kind = 'expense'`,
	).Scan(&m.TotalExpenses, &m.TotalSkillCalls)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sum expenses")
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM ledger_entries WHERE kind = 'reinvestment'`,
	).Scan(&m.ReinvestedAmount, &m.TotalReinvestments)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sum reinvestments")
	}

	m.TotalProfit = m.TotalRevenue - m.TotalExpenses

	if m.CurrentEthBalance, err = l.stateOrDefault(ctx, model.StateEthBalance, "0"); err != nil {
		return nil, err
	}
	if m.CurrentUsdcBalance, err = l.stateOrDefault(ctx, model.StateUsdcBalance, "0"); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *SQLiteLedger) TimeSeries(ctx context.Context, window time.Duration) ([]model.TimeSeriesPoint, error) {
	cutoff := time.Now().UTC().Add(-window).Format("2006-01-02 15:04:05")

	rows, err := l.db.QueryContext(ctx,
		`SELECT strftime('%Y-%m-%d %H:%M:00', created_at) AS bucket,
		        COALESCE(SUM(CASE WHEN kind = 'revenue' THEN amount ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount ELSE 0 END), 0)
		 FROM ledger_entries
		 WHERE created_at > ?
		 GROUP BY bucket
		 ORDER BY bucket ASC`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: time series")
	}
	defer rows.Close()

	var buckets []bucketRow
	for rows.Next() {
		var bucket string
		var r bucketRow
		if err := rows.Scan(&bucket, &r.revenue, &r.expenses); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bucket")
		}
		r.ts, err = time.ParseInLocation("2006-01-02 15:04:05", bucket, time.UTC)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse bucket %q", bucket)
		}
		buckets = append(buckets, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: time series iterate")
	}
	return accumulate(buckets), nil
}

func (l *SQLiteLedger) SetState(ctx context.Context, key, value string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO agent_state (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	return eris.Wrapf(err, "sqlite: set state %s", key)
}

func (l *SQLiteLedger) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := l.db.QueryRowContext(ctx,
		`SELECT value FROM agent_state WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get state %s", key)
	}
	return value, nil
}

func (l *SQLiteLedger) stateOrDefault(ctx context.Context, key, fallback string) (string, error) {
	v, err := l.GetState(ctx, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return fallback, nil
	}
	return v, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
