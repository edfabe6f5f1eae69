package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cheervox-labs/cheervox/internal/config"
	_ "modernc.org/sqlite"
)

// TaskRecord is the durable admission entry written before a task enters
// the queue, so synthesis failures stay traceable to the raw message.
type TaskRecord struct {
	TaskID    string
	Sender    string
	Bits      int
	RawText   string
	Reason    string
	Outcome   string
	CreatedAt time.Time
}

// PromptRecord is one synthesized prompt belonging to a task.
type PromptRecord struct {
	TaskID    string
	Index     int
	Voice     string
	File      string
	CreatedAt time.Time
}

// Store wraps the SQLite-backed admission and synthesis audit log.
type Store struct {
	db    *sql.DB
	cfg   config.AuditLogConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the audit store according to config. In ephemeral mode
// every write is a no-op, which keeps test and dry-run setups free of
// filesystem state.
func Open(ctx context.Context, cfg config.AuditLogConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("audit log vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("audit log prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS tasks (
    task_id TEXT PRIMARY KEY,
    sender TEXT,
    bits INTEGER,
    raw_text TEXT,
    reason TEXT,
    outcome TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS prompts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    voice TEXT,
    file TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(task_id) REFERENCES tasks(task_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_prompts_task ON prompts(task_id, idx);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendTask records an admitted task before it is queued.
func (s *Store) AppendTask(ctx context.Context, rec TaskRecord) error {
	if s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(task_id, sender, bits, raw_text, reason, outcome, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Sender, rec.Bits, rec.RawText, rec.Reason, rec.Outcome, rec.CreatedAt)
	return err
}

// AppendPrompt records one synthesized prompt file for a task.
func (s *Store) AppendPrompt(ctx context.Context, rec PromptRecord) error {
	if s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts(task_id, idx, voice, file, created_at) VALUES(?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Index, rec.Voice, rec.File, rec.CreatedAt)
	return err
}

// MarkOutcome stores the terminal state of a task (played, skipped,
// abandoned, failed).
func (s *Store) MarkOutcome(ctx context.Context, taskID, outcome string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET outcome = ? WHERE task_id = ?`, outcome, taskID)
	return err
}

// GetTask fetches one task row.
func (s *Store) GetTask(ctx context.Context, taskID string) (TaskRecord, error) {
	var rec TaskRecord
	if s.db == nil {
		return rec, sql.ErrNoRows
	}
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id, sender, bits, raw_text, reason, outcome, created_at FROM tasks WHERE task_id = ?`,
		taskID).Scan(&rec.TaskID, &rec.Sender, &rec.Bits, &rec.RawText, &rec.Reason, &rec.Outcome, &created)
	if err != nil {
		return rec, err
	}
	if ts, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		rec.CreatedAt = ts
	}
	return rec, nil
}

// ListTaskPrompts returns the prompts recorded for a task in index order.
func (s *Store) ListTaskPrompts(ctx context.Context, taskID string) ([]PromptRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, idx, voice, file, created_at FROM prompts WHERE task_id = ? ORDER BY idx ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PromptRecord
	for rows.Next() {
		var rec PromptRecord
		var created string
		if err := rows.Scan(&rec.TaskID, &rec.Index, &rec.Voice, &rec.File, &created); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune applies the configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxTasks > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE task_id IN (
			SELECT task_id FROM tasks ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxTasks)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
