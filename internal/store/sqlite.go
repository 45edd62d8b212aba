// Package store keeps a history of comparison runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("run not found")

// Fixed-width timestamps keep lexical order equal to chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	publication1 TEXT NOT NULL DEFAULT '',
	publication2 TEXT NOT NULL DEFAULT '',
	disease1     TEXT NOT NULL DEFAULT '',
	disease2     TEXT NOT NULL DEFAULT '',
	decision     TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	llm_calls    INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	envelope     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
`

// Run is the summary row listed in history. The full envelope is only
// loaded by Get.
type Run struct {
	RunID        string              `json:"run_id"`
	Status       efficacylens.Status `json:"status"`
	Publication1 string              `json:"publication1"`
	Publication2 string              `json:"publication2"`
	Disease1     string              `json:"disease1"`
	Disease2     string              `json:"disease2"`
	Decision     string              `json:"decision,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	Model        string              `json:"model,omitempty"`
	LLMCalls     int                 `json:"llm_calls"`
	CreatedAt    time.Time           `json:"created_at"`
}

type runRow struct {
	RunID        string `db:"run_id"`
	Status       string `db:"status"`
	Publication1 string `db:"publication1"`
	Publication2 string `db:"publication2"`
	Disease1     string `db:"disease1"`
	Disease2     string `db:"disease2"`
	Decision     string `db:"decision"`
	Reason       string `db:"reason"`
	Model        string `db:"model"`
	LLMCalls     int    `db:"llm_calls"`
	CreatedAt    string `db:"created_at"`
	Envelope     string `db:"envelope"`
}

type ListFilter struct {
	Status efficacylens.Status
	Limit  int
}

type SQLiteStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func Open(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save records an envelope, replacing any earlier row for the same run.
func (s *SQLiteStore) Save(ctx context.Context, env efficacylens.ResponseEnvelope) error {
	if strings.TrimSpace(env.RunID) == "" {
		return errors.New("run id is required")
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	row := summarize(env)
	row.Envelope = string(body)

	_, err = s.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, status, publication1, publication2, disease1, disease2, decision, reason, model, llm_calls, created_at, envelope)
		VALUES (:run_id, :status, :publication1, :publication2, :disease1, :disease2, :decision, :reason, :model, :llm_calls, :created_at, :envelope)`, row)
	if err != nil {
		return fmt.Errorf("save run %s: %w", env.RunID, err)
	}
	s.logger.Debug("run saved", zap.String("run_id", env.RunID), zap.String("status", row.Status))
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, runID string) (Run, efficacylens.ResponseEnvelope, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM runs WHERE run_id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, efficacylens.ResponseEnvelope{}, ErrNotFound
	}
	if err != nil {
		return Run{}, efficacylens.ResponseEnvelope{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	env, err := efficacylens.DecodeEnvelope([]byte(row.Envelope))
	if err != nil {
		return Run{}, efficacylens.ResponseEnvelope{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return row.run(), env, nil
}

// List returns runs newest first.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]Run, error) {
	query := `SELECT run_id, status, publication1, publication2, disease1, disease2, decision, reason, model, llm_calls, created_at, '' AS envelope
		FROM runs`
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC, run_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.run())
	}
	return out, nil
}

func summarize(env efficacylens.ResponseEnvelope) runRow {
	md := env.PipelineMetadata
	row := runRow{
		RunID:        env.RunID,
		Status:       string(env.Status),
		Publication1: env.Publication1,
		Publication2: env.Publication2,
		Model:        md.Model,
		LLMCalls:     md.TotalLLMCalls,
		CreatedAt:    timeToString(md.StartedAt),
	}
	if row.CreatedAt == "" {
		row.CreatedAt = timeToString(time.Now())
	}
	if v := env.Validation; v != nil {
		row.Disease1 = v.Profile1.PrimaryDisease
		row.Disease2 = v.Profile2.PrimaryDisease
		row.Decision = string(v.Decision)
		row.Reason = v.Reason
	}
	switch {
	case env.Rejection != nil:
		row.Disease1 = env.Rejection.Publication1Disease
		row.Disease2 = env.Rejection.Publication2Disease
		row.Decision = string(env.Rejection.Decision)
		row.Reason = env.Rejection.Reason
	case env.Error != "":
		row.Reason = env.Error
	}
	return row
}

func (r runRow) run() Run {
	created, _ := time.Parse(timeLayout, r.CreatedAt)
	return Run{
		RunID:        r.RunID,
		Status:       efficacylens.Status(r.Status),
		Publication1: r.Publication1,
		Publication2: r.Publication2,
		Disease1:     r.Disease1,
		Disease2:     r.Disease2,
		Decision:     r.Decision,
		Reason:       r.Reason,
		Model:        r.Model,
		LLMCalls:     r.LLMCalls,
		CreatedAt:    created,
	}
}

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
