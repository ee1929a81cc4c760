package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CustomerProfile is derived wholesale from SaleEvent rows on each sync;
// nothing here is maintained incrementally.
type CustomerProfile struct {
	ID                  uint            `gorm:"primary_key" json:"id"`
	CustomerId          string          `gorm:"uniqueIndex;size:64;not null" json:"customer_id"`
	Name                string          `gorm:"size:255" json:"name"`
	Email               string          `gorm:"size:255" json:"email"`
	Phone               string          `gorm:"size:50" json:"phone"`
	TotalPurchases      int64           `json:"total_purchases"`
	LifetimeValue       decimal.Decimal `gorm:"type:decimal(20,6)" json:"lifetime_value"`
	AvgPurchaseValue    decimal.Decimal `gorm:"type:decimal(20,6)" json:"avg_purchase_value"`
	FirstPurchaseAt     *time.Time      `json:"first_purchase_at"`
	LastPurchaseAt      *time.Time      `gorm:"index" json:"last_purchase_at"`
	PreferredBrands     []byte          `gorm:"type:json" json:"preferred_brands"`
	PreferredSizes      []byte          `gorm:"type:json" json:"preferred_sizes"`
	PreferredCategories []byte          `gorm:"type:json" json:"preferred_categories"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *CustomerProfile) SetPreferredBrands(brands []string) {
	p.PreferredBrands, _ = json.Marshal(brands)
}

func (p *CustomerProfile) SetPreferredSizes(sizes []string) {
	p.PreferredSizes, _ = json.Marshal(sizes)
}

func (p *CustomerProfile) SetPreferredCategories(categories []string) {
	p.PreferredCategories, _ = json.Marshal(categories)
}

func UpsertCustomerProfile(ctx context.Context, db *gorm.DB, profile *CustomerProfile) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "email", "phone",
			"total_purchases", "lifetime_value", "avg_purchase_value",
			"first_purchase_at", "last_purchase_at",
			"preferred_brands", "preferred_sizes", "preferred_categories",
			"updated_at",
		}),
	}).Create(profile).Error
}

func GetCustomerProfile(ctx context.Context, db *gorm.DB, customerId string) (*CustomerProfile, error) {
	var profile CustomerProfile
	err := db.WithContext(ctx).Where("customer_id = ?", customerId).Take(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetLapsedCustomers returns profiles whose last purchase is older than the
// given number of days, most recently lapsed first.
func GetLapsedCustomers(ctx context.Context, db *gorm.DB, days int, now time.Time) ([]CustomerProfile, error) {
	cutoff := now.AddDate(0, 0, -days)
	var profiles []CustomerProfile
	err := db.WithContext(ctx).
		Where("last_purchase_at IS NOT NULL AND last_purchase_at < ?", cutoff).
		Order("last_purchase_at DESC").
		Find(&profiles).Error
	return profiles, err
}

// MatchCustomersByPurchase returns profiles of customers who have bought the
// given brand/category/size, joining on the denormalized sale columns. Empty
// filters are ignored; at least one must be set.
func MatchCustomersByPurchase(ctx context.Context, db *gorm.DB, brand, category, size string) ([]CustomerProfile, error) {
	sub := db.Model(&SaleEvent{}).Select("DISTINCT customer_id").Where("customer_id <> ''")
	if brand != "" {
		sub = sub.Where("brand = ?", brand)
	}
	if category != "" {
		sub = sub.Where("category = ?", category)
	}
	if size != "" {
		sub = sub.Where("size = ?", size)
	}

	var profiles []CustomerProfile
	err := db.WithContext(ctx).
		Where("customer_id IN (?)", sub).
		Order("lifetime_value DESC").
		Find(&profiles).Error
	return profiles, err
}
