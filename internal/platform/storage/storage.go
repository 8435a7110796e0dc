package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SecurityEventRecord is the persisted form of a security event. Every event
// the dispatcher sees lands here, whether or not it was forwarded.
type SecurityEventRecord struct {
	ID        uint           `gorm:"primaryKey"`
	Type      string         `gorm:"type:varchar(64);index;not null" json:"type"`
	Level     string         `gorm:"type:varchar(16);not null"       json:"level"`
	Page      string         `                                       json:"page"`
	URL       string         `                                       json:"url"`
	SessionID string         `gorm:"type:varchar(64);index"          json:"session_id"`
	Data      datatypes.JSON `                                       json:"data,omitempty"`
	CreatedAt time.Time      `                                       json:"created_at"`
}

// ClientStateRecord holds one persisted client-state value under a fixed key.
// Scope is either ScopePersistent or a session id for session-scoped flags.
type ClientStateRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Scope     string    `gorm:"type:varchar(64);uniqueIndex:idx_scope_key;not null"`
	Key       string    `gorm:"type:varchar(64);uniqueIndex:idx_scope_key;not null"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time
}

// Fixed storage keys, mirrored by the page-side collector.
const (
	ScopePersistent = "persistent"

	KeyVisitCount      = "visit_count"
	KeyLastVisit       = "last_visit"
	KeyTamperTriggered = "dom_tamper_triggered"
)

// Open initializes the SQLite database and migrates the schema.
func Open(dir, file string) (*gorm.DB, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if file == "" {
		file = "sentinel.db"
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, file)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&SecurityEventRecord{}, &ClientStateRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
