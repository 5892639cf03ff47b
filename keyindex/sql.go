package keyindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// snapshotRow is one persisted index.
type snapshotRow struct {
	Name      string `gorm:"primaryKey"`
	Version   int
	Keys      string
	UpdatedAt time.Time
}

func (snapshotRow) TableName() string {
	return "key_index_snapshots"
}

// SQLSnapshots stores snapshots as rows in a SQL database.
type SQLSnapshots struct {
	db *gorm.DB
}

// NewSQLSnapshots uses db, creating the snapshot table if needed.
func NewSQLSnapshots(db *gorm.DB) (*SQLSnapshots, error) {
	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("keyindex: migrate snapshots: %w", err)
	}
	return &SQLSnapshots{db: db}, nil
}

// OpenSQLite opens (or creates) a SQLite database at dsn for snapshots.
// Use ":memory:" for a process-local database.
func OpenSQLite(dsn string) (*SQLSnapshots, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("keyindex: open sqlite: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" shared.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("keyindex: open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return NewSQLSnapshots(db)
}

// Load reads the snapshot for name.
func (s *SQLSnapshots) Load(ctx context.Context, name string) (Snapshot, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Version: row.Version, Name: row.Name}
	if err := json.Unmarshal([]byte(row.Keys), &snap.Keys); err != nil {
		return Snapshot{}, fmt.Errorf("parse keys: %w", err)
	}
	return snap, nil
}

// Save upserts snap.
func (s *SQLSnapshots) Save(ctx context.Context, snap Snapshot) error {
	if snap.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	keys := snap.Keys
	if keys == nil {
		keys = []string{}
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	row := snapshotRow{
		Name:      snap.Name,
		Version:   snap.Version,
		Keys:      string(data),
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// Close releases the underlying database connection.
func (s *SQLSnapshots) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure SQLSnapshots implements SnapshotStore
var _ SnapshotStore = (*SQLSnapshots)(nil)
