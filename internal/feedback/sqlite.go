package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	tutorial_id TEXT NOT NULL,
	resolved    INTEGER NOT NULL,
	clarity     INTEGER NOT NULL,
	accuracy    INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_tutorial ON feedback(tutorial_id);
CREATE INDEX IF NOT EXISTS idx_feedback_session ON feedback(session_id);
`

// SQLiteStore persists feedback in a local SQLite database. Uses the
// pure-Go modernc.org/sqlite driver, no CGO required.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating feedback directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening feedback database: %w", err)
	}

	// Single writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing feedback schema: %w", err)
	}

	logger.Info("feedback store initialized", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Append stores a new record.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (session_id, tutorial_id, resolved, clarity, accuracy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TutorialID, rec.Resolved, rec.Clarity, rec.Accuracy, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

// Aggregates returns per-tutorial aggregates for the given IDs.
func (s *SQLiteStore) Aggregates(ctx context.Context, tutorialIDs []string) (map[string]Aggregate, error) {
	if len(tutorialIDs) == 0 {
		return map[string]Aggregate{}, nil
	}

	placeholders := strings.Repeat("?,", len(tutorialIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(tutorialIDs))
	for i, id := range tutorialIDs {
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT tutorial_id,
		       COUNT(*),
		       AVG(resolved),
		       AVG((clarity + accuracy) / 10.0)
		FROM feedback
		WHERE tutorial_id IN (%s)
		GROUP BY tutorial_id`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating feedback: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Aggregate)
	for rows.Next() {
		var agg Aggregate
		if err := rows.Scan(&agg.TutorialID, &agg.Count, &agg.ResolutionRate, &agg.AvgRating); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		out[agg.TutorialID] = agg
	}
	return out, rows.Err()
}

// List returns all records ordered by creation time ascending.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, tutorial_id, resolved, clarity, accuracy, created_at
		 FROM feedback ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.TutorialID, &rec.Resolved, &rec.Clarity, &rec.Accuracy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
