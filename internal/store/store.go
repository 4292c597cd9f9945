package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/diascribe/diascribe/internal/config"
	"github.com/diascribe/diascribe/internal/transcript"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no transcript exists for an id.
var ErrNotFound = errors.New("transcript not found")

// Record is one archived transcription result.
type Record struct {
	ID         string
	FileName   string
	Utterances []transcript.Utterance
	CreatedAt  time.Time
}

// Store archives completed transcripts in SQLite. In ephemeral retention
// mode every operation is a no-op and nothing touches disk.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the archive according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
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
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("transcript store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("transcript store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcripts (
    id TEXT PRIMARY KEY,
    file_name TEXT NOT NULL,
    utterances BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
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

// Save archives one completed result.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	payload, err := json.Marshal(rec.Utterances)
	if err != nil {
		return fmt.Errorf("encode utterances: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts(id, file_name, utterances, created_at) VALUES(?, ?, ?, ?)`,
		rec.ID, rec.FileName, payload, rec.CreatedAt)
	return err
}

// Get retrieves an archived result by id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if s.db == nil {
		return Record{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, utterances, created_at FROM transcripts WHERE id = ?`, id)

	var (
		rec     Record
		payload []byte
		created string
	)
	if err := row.Scan(&rec.ID, &rec.FileName, &payload, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if err := json.Unmarshal(payload, &rec.Utterances); err != nil {
		return Record{}, fmt.Errorf("decode utterances: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		rec.CreatedAt = ts
	}
	return rec, nil
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM transcripts WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRecords > 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id IN (
			SELECT id FROM transcripts ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRecords); err != nil {
			return err
		}
	}
	return nil
}
