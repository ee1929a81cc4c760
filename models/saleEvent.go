package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaleLineSentinel is used when the upstream sales feed omits a line id.
const SaleLineSentinel = "0"

// SaleEvent is one line of one sales ticket. Unique per (ticket, line).
// Quantity and amount columns are refreshed on re-sync; the denormalized
// descriptive columns keep their first-ingested values.
type SaleEvent struct {
	ID          uint            `gorm:"primary_key" json:"id"`
	TicketId    string          `gorm:"uniqueIndex:idx_sale_event,priority:1;size:64;not null" json:"ticket_id"`
	LineId      string          `gorm:"uniqueIndex:idx_sale_event,priority:2;size:64;not null;default:'0'" json:"line_id"`
	CustomerId  string          `gorm:"index;size:64" json:"customer_id"`
	ItemId      string          `gorm:"index;size:64;not null" json:"item_id"`
	SoldAt      time.Time       `gorm:"index;not null" json:"sold_at"`
	DayOfWeek   string          `gorm:"size:10" json:"day_of_week"`
	HourOfDay   int             `json:"hour_of_day"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,6)" json:"unit_price"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,6)" json:"total_amount"`
	Category    string          `gorm:"size:100;index" json:"category"`
	Vendor      string          `gorm:"size:100;index" json:"vendor"`
	Brand       string          `gorm:"size:100;index" json:"brand"`
	ItemName    string          `gorm:"size:255" json:"item_name"`
	Size        string          `gorm:"size:50" json:"size"`
	Color       string          `gorm:"size:50" json:"color"`
	Location    string          `gorm:"size:100" json:"location"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func UpsertSaleEvent(ctx context.Context, db *gorm.DB, event *SaleEvent) error {
	if event.LineId == "" {
		event.LineId = SaleLineSentinel
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticket_id"}, {Name: "line_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"qty", "unit_price", "total_amount", "updated_at",
		}),
	}).Create(event).Error
}

func GetAllSaleEvents(ctx context.Context, db *gorm.DB) ([]SaleEvent, error) {
	var events []SaleEvent
	err := db.WithContext(ctx).Order("item_id, sold_at").Find(&events).Error
	return events, err
}

func GetSaleEventsSince(ctx context.Context, db *gorm.DB, since time.Time) ([]SaleEvent, error) {
	var events []SaleEvent
	err := db.WithContext(ctx).Where("sold_at >= ?", since).Order("item_id, sold_at").Find(&events).Error
	return events, err
}

// CustomerSaleStats holds the aggregates the profile builder derives from a
// customer's sale lines.
type CustomerSaleStats struct {
	TotalPurchases   int64
	LifetimeValue    decimal.Decimal
	AvgPurchaseValue decimal.Decimal
	FirstPurchaseAt  *time.Time
	LastPurchaseAt   *time.Time
}

func GetCustomerSaleStats(ctx context.Context, db *gorm.DB, customerId string) (CustomerSaleStats, error) {
	var row struct {
		TotalPurchases   int64
		LifetimeValue    decimal.NullDecimal
		AvgPurchaseValue decimal.NullDecimal
		FirstPurchaseAt  *time.Time
		LastPurchaseAt   *time.Time
	}
	err := db.WithContext(ctx).
		Model(&SaleEvent{}).
		Select("COUNT(*) AS total_purchases, SUM(total_amount) AS lifetime_value, AVG(total_amount) AS avg_purchase_value, MIN(sold_at) AS first_purchase_at, MAX(sold_at) AS last_purchase_at").
		Where("customer_id = ?", customerId).
		Scan(&row).Error
	if err != nil {
		return CustomerSaleStats{}, err
	}
	stats := CustomerSaleStats{
		TotalPurchases:  row.TotalPurchases,
		FirstPurchaseAt: row.FirstPurchaseAt,
		LastPurchaseAt:  row.LastPurchaseAt,
	}
	if row.LifetimeValue.Valid {
		stats.LifetimeValue = row.LifetimeValue.Decimal
	}
	if row.AvgPurchaseValue.Valid {
		stats.AvgPurchaseValue = row.AvgPurchaseValue.Decimal
	}
	return stats, nil
}

func topFieldValuesForCustomer(ctx context.Context, db *gorm.DB, customerId string, field string, limit int) ([]string, error) {
	var values []string
	err := db.WithContext(ctx).
		Model(&SaleEvent{}).
		Select(field).
		Where("customer_id = ? AND "+field+" <> ''", customerId).
		Group(field).
		Order("COUNT(*) DESC").
		Limit(limit).
		Pluck(field, &values).Error
	return values, err
}

func TopBrandsForCustomer(ctx context.Context, db *gorm.DB, customerId string, limit int) ([]string, error) {
	return topFieldValuesForCustomer(ctx, db, customerId, "brand", limit)
}

func TopCategoriesForCustomer(ctx context.Context, db *gorm.DB, customerId string, limit int) ([]string, error) {
	return topFieldValuesForCustomer(ctx, db, customerId, "category", limit)
}

func DistinctSizesForCustomer(ctx context.Context, db *gorm.DB, customerId string, limit int) ([]string, error) {
	return topFieldValuesForCustomer(ctx, db, customerId, "size", limit)
}
