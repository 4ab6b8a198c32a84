// Package storage persists try-run attempt history.
// Uses modernc.org/sqlite (pure Go, no CGO) through the glebarez/sqlite GORM
// driver. History records report output; sandbox state is never persisted.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jkaninda/repoprobe/internal/tryrun"
)

// RunRecord is one persisted try-run attempt.
type RunRecord struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	RepoPath  string    `gorm:"index" json:"repo_path"`
	Strategy  string    `json:"strategy"`
	Attempted bool      `json:"attempted"`
	Summary   string    `json:"summary"`

	// Executions holds the full execution list as a JSON blob.
	Executions string    `gorm:"type:text" json:"executions"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// TableName keeps the table name stable across GORM naming strategies.
func (RunRecord) TableName() string { return "run_records" }

// Store is the SQLite-backed history store.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	path   string
}

// Open creates (or opens) the history database at path and migrates the
// schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}

	logger.Debug("history database ready", slog.String("path", path))
	return &Store{db: db, logger: logger, path: path}, nil
}

// SaveAttempt persists one finished attempt and returns its record ID.
func (s *Store) SaveAttempt(ctx context.Context, repoPath string, result *tryrun.RunAttemptResult) (uuid.UUID, error) {
	executions, err := json.Marshal(result.Executions)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encoding executions: %w", err)
	}

	rec := RunRecord{
		ID:         uuid.New(),
		RepoPath:   repoPath,
		Strategy:   string(result.Planner.Strategy),
		Attempted:  result.Attempted,
		Summary:    result.Summary,
		Executions: string(executions),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return uuid.Nil, fmt.Errorf("saving run record: %w", err)
	}
	return rec.ID, nil
}

// ListRecent returns the most recent records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []RunRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing run records: %w", err)
	}
	return records, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
