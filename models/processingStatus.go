package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ProcessingEntityItem = "item"
	ProcessingEntityGrid = "grid"

	ProcessingStatusNew       = "new"
	ProcessingStatusCompleted = "completed"
	ProcessingStatusSkipped   = "skipped"
)

// ProcessingStatus tracks the operator workflow over items and product
// groups ("grids"). Last write wins; no history is kept.
type ProcessingStatus struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	EntityType     string     `gorm:"uniqueIndex:idx_processing_status,priority:1;size:20;not null" json:"entity_type"`
	EntityId       string     `gorm:"uniqueIndex:idx_processing_status,priority:2;size:64;not null" json:"entity_id"`
	ReceivingDocId string     `gorm:"size:64" json:"receiving_doc_id"`
	Status         string     `gorm:"size:20;not null" json:"status"`
	ProcessedAt    *time.Time `json:"processed_at"`
	ProcessedBy    string     `gorm:"size:100" json:"processed_by"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func UpsertProcessingStatus(ctx context.Context, db *gorm.DB, status *ProcessingStatus) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"receiving_doc_id", "status", "processed_at", "processed_by", "updated_at",
		}),
	}).Create(status).Error
}

func ListProcessingStatuses(ctx context.Context, db *gorm.DB, entityType string, status string) ([]ProcessingStatus, error) {
	q := db.WithContext(ctx).Model(&ProcessingStatus{})
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var statuses []ProcessingStatus
	err := q.Order("updated_at DESC").Find(&statuses).Error
	return statuses, err
}

func GetProcessingStatus(ctx context.Context, db *gorm.DB, entityType, entityId string) (*ProcessingStatus, error) {
	var status ProcessingStatus
	err := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityId).
		Take(&status).Error
	if err != nil {
		return nil, err
	}
	return &status, nil
}
