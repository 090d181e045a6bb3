package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/trialfit/internal/domain/schema"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trials (
	id                  TEXT PRIMARY KEY,
	record              TEXT NOT NULL,
	enrollment_rate     REAL,
	screen_failure_rate REAL,
	duration_risk       REAL,
	updated_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
`

type trialRow struct {
	ID                string          `db:"id"`
	Record            string          `db:"record"`
	EnrollmentRate    sql.NullFloat64 `db:"enrollment_rate"`
	ScreenFailureRate sql.NullFloat64 `db:"screen_failure_rate"`
	DurationRisk      sql.NullFloat64 `db:"duration_risk"`
}

// SQLiteStore keeps the corpus in a SQLite database. It is both a source
// and a saver for trials added at runtime.
type SQLiteStore struct {
	db       *sqlx.DB
	registry *schema.Registry
	logger   *zap.Logger
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string, registry *schema.Registry, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if registry == nil {
		registry = schema.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, registry: registry, logger: logger}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads every trial ordered by ID.
func (s *SQLiteStore) Load(ctx context.Context) ([]trial.Historical, error) {
	var rows []trialRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, record, enrollment_rate, screen_failure_rate, duration_risk FROM trials ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select trials: %w", err)
	}

	out := make([]trial.Historical, 0, len(rows))
	for _, r := range rows {
		l := line{ID: r.ID, Outcomes: map[string]float64{}}
		if err := json.Unmarshal([]byte(r.Record), &l.Record); err != nil {
			return nil, fmt.Errorf("trial %s: decode record: %w", r.ID, err)
		}
		for m, v := range map[trial.Metric]sql.NullFloat64{
			trial.EnrollmentRate:    r.EnrollmentRate,
			trial.ScreenFailureRate: r.ScreenFailureRate,
			trial.DurationRisk:      r.DurationRisk,
		} {
			if v.Valid {
				l.Outcomes[string(m)] = v.Float64
			}
		}
		t, err := decode(s.registry, l, s.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Save inserts or replaces one trial.
func (s *SQLiteStore) Save(ctx context.Context, t trial.Historical) error {
	rec, err := marshalRecord(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO trials
		(id, record, enrollment_rate, screen_failure_rate, duration_risk)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, rec,
		nullable(t.Outcomes, trial.EnrollmentRate),
		nullable(t.Outcomes, trial.ScreenFailureRate),
		nullable(t.Outcomes, trial.DurationRisk),
	)
	if err != nil {
		return fmt.Errorf("insert trial %s: %w", t.ID, err)
	}
	return nil
}

// SaveAll stores trials in one transaction.
func (s *SQLiteStore) SaveAll(ctx context.Context, trials []trial.Historical) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `INSERT OR REPLACE INTO trials
		(id, record, enrollment_rate, screen_failure_rate, duration_risk)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range trials {
		rec, err := marshalRecord(t)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, t.ID, rec,
			nullable(t.Outcomes, trial.EnrollmentRate),
			nullable(t.Outcomes, trial.ScreenFailureRate),
			nullable(t.Outcomes, trial.DurationRisk),
		); err != nil {
			return fmt.Errorf("insert trial %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored trials.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM trials`); err != nil {
		return 0, fmt.Errorf("count trials: %w", err)
	}
	return n, nil
}

func nullable(o trial.Outcomes, m trial.Metric) sql.NullFloat64 {
	v, ok := o[m]
	return sql.NullFloat64{Float64: v, Valid: ok}
}
