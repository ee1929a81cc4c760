package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReceiveEvent is one line of a receiving document: a quantity of one item
// received from a vendor in one shipment. Unique per (item, document); a
// re-sync of the same document updates the row in place.
type ReceiveEvent struct {
	ID             uint            `gorm:"primary_key" json:"id"`
	ItemId         string          `gorm:"uniqueIndex:idx_receive_event,priority:1;size:64;not null" json:"item_id"`
	ReceivingDocId string          `gorm:"uniqueIndex:idx_receive_event,priority:2;size:64;not null" json:"receiving_doc_id"`
	ReceivedAt     time.Time       `gorm:"index;not null" json:"received_at"`
	QtyReceived    int             `json:"qty_received"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(20,6)" json:"unit_cost"`
	ItemName       string          `gorm:"size:255" json:"item_name"`
	Category       string          `gorm:"size:100;index" json:"category"`
	Vendor         string          `gorm:"size:100;index" json:"vendor"`
	Color          string          `gorm:"size:50" json:"color"`
	Size           string          `gorm:"size:50" json:"size"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertReceiveEvent inserts or refreshes the row for (item, document).
// The second write wins for quantity, cost and the denormalized metadata.
func UpsertReceiveEvent(ctx context.Context, db *gorm.DB, event *ReceiveEvent) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}, {Name: "receiving_doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"received_at", "qty_received", "unit_cost",
			"item_name", "category", "vendor", "color", "size",
			"updated_at",
		}),
	}).Create(event).Error
}

func GetAllReceiveEvents(ctx context.Context, db *gorm.DB) ([]ReceiveEvent, error) {
	var events []ReceiveEvent
	err := db.WithContext(ctx).Order("item_id, received_at").Find(&events).Error
	return events, err
}

// ReceivingDocSummary is one receiving document rolled up across its lines.
type ReceivingDocSummary struct {
	ReceivingDocId string          `json:"receivingDocId"`
	ReceivedAt     time.Time       `json:"receivedAt"`
	Vendor         string          `json:"vendor"`
	LineCount      int             `json:"lineCount"`
	TotalQty       int             `json:"totalQty"`
	TotalCost      decimal.Decimal `json:"totalCost"`
}

func SummarizeReceivingDocs(ctx context.Context, db *gorm.DB, limit int) ([]ReceivingDocSummary, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []ReceivingDocSummary
	err := db.WithContext(ctx).
		Model(&ReceiveEvent{}).
		Select("receiving_doc_id, MAX(received_at) AS received_at, MAX(vendor) AS vendor, COUNT(*) AS line_count, SUM(qty_received) AS total_qty, SUM(qty_received * unit_cost) AS total_cost").
		Group("receiving_doc_id").
		Order("received_at DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
