package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SnapshotKeyInventoryAnalysis = "inventory_analysis"
	SnapshotKeySalesAnalysis     = "sales_analysis"
	SnapshotKeyReceivingHistory  = "receiving_history"
)

// AnalysisSnapshot holds one named precomputed payload. Each successful run
// replaces the payload wholesale; readers never see a partial write.
type AnalysisSnapshot struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	CacheKey  string    `gorm:"uniqueIndex;size:64;not null" json:"cache_key"`
	Payload   []byte    `gorm:"type:json" json:"payload"`
	SyncedAt  time.Time `gorm:"not null" json:"synced_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SaveSnapshot marshals the payload and replaces whatever is stored under
// the key. A nil payload is rejected rather than silently clearing the
// previous snapshot.
func SaveSnapshot(ctx context.Context, db *gorm.DB, key string, payload any, syncedAt time.Time) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if payload == nil {
		return errors.New("snapshot payload is nil")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	snapshot := AnalysisSnapshot{
		CacheKey: key,
		Payload:  raw,
		SyncedAt: syncedAt,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "synced_at", "updated_at"}),
	}).Create(&snapshot).Error
}

// GetSnapshot returns the stored snapshot, or (nil, nil) when none exists.
func GetSnapshot(ctx context.Context, db *gorm.DB, key string) (*AnalysisSnapshot, error) {
	var snapshot AnalysisSnapshot
	err := db.WithContext(ctx).Where("cache_key = ?", key).Take(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}
