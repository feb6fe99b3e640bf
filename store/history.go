package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loomworks/loom/internal/telemetry"
	"github.com/loomworks/loom/types"
)

// RunRecord is one finished run.
type RunRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Session    string    `gorm:"index"`
	Workflow   string    `gorm:"index"`
	Status     string    `gorm:"index"`
	Prompt     string
	Outputs    string    // JSON document keyed by output pin name
	Error      string
	DurationMs int64
	CreatedAt  time.Time
}

// History records finished runs in a sqlite database.
type History struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenHistory opens or creates the database at path and migrates the
// schema. Use ":memory:" for a throwaway database.
func OpenHistory(path string, zlog *zap.Logger) (*History, error) {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	return &History{db: db, log: telemetry.Component(zlog, "history")}, nil
}

// Record stores one run. Outputs are flattened to their JSON encodings.
func (h *History) Record(ctx context.Context, session, workflow, status, prompt string, outputs map[string]types.Value, runErr error, elapsed time.Duration) error {
	rec := RunRecord{
		Session:    session,
		Workflow:   workflow,
		Status:     status,
		Prompt:     prompt,
		DurationMs: elapsed.Milliseconds(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if len(outputs) > 0 {
		data, err := json.Marshal(outputs)
		if err != nil {
			return fmt.Errorf("run history: %w", err)
		}
		rec.Outputs = string(data)
	}
	if err := h.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("run history: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first. An empty workflow matches
// all workflows.
func (h *History) Recent(ctx context.Context, workflow string, limit int) ([]RunRecord, error) {
	q := h.db.WithContext(ctx).Order("id desc").Limit(limit)
	if workflow != "" {
		q = q.Where("workflow = ?", workflow)
	}
	var recs []RunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	return recs, nil
}

// Close releases the underlying connection.
func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
