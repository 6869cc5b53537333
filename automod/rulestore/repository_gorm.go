package rulestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database row holding a serialized snapshot.
type SnapshotRow struct {
	Key       string `gorm:"primaryKey;column:snapshot_key"`
	Data      string
	UpdatedAt time.Time
}

func (SnapshotRow) TableName() string {
	return "automod_snapshots"
}

// Stores the snapshot in a SQL key/value table (sqlite or postgres, via gorm).
type GormRepository struct {
	db  *gorm.DB
	Key string
}

var _ Repository = (*GormRepository)(nil)

func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&SnapshotRow{}); err != nil {
		return nil, err
	}
	return &GormRepository{
		db:  db,
		Key: "default",
	}, nil
}

func (r *GormRepository) Load(ctx context.Context) (*Snapshot, error) {
	var row SnapshotRow
	err := r.db.WithContext(ctx).Where("snapshot_key = ?", r.Key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emptySnapshot(), nil
	} else if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(row.Data), &snap); err != nil {
		return nil, err
	}
	snap.normalize()
	return &snap, nil
}

func (r *GormRepository) Save(ctx context.Context, snap *Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	row := SnapshotRow{
		Key:       r.Key,
		Data:      string(b),
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&row).Error
}
