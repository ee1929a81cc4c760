package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/maisonops/boutique_backend/models"
	"gorm.io/gorm"
)

// InventoryLevels supplies the live on-hand quantity per item id. On-hand
// counts are considered too volatile to persist locally, so the engine pulls
// them fresh at run time.
type InventoryLevels interface {
	FetchInventoryLevels(ctx context.Context) (map[string]int, error)
}

// RunInventoryAnalysis computes the aging/velocity snapshot and replaces the
// stored one. A failure fetching live inventory aborts the whole run with no
// write: a stale snapshot is preferable to a partial one for a
// financial-health view.
func RunInventoryAnalysis(ctx context.Context, db *gorm.DB, levels InventoryLevels, cfg Config, now time.Time) (*InventoryAnalysis, error) {
	onHand, err := levels.FetchInventoryLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch inventory levels: %w", err)
	}

	receives, err := models.GetAllReceiveEvents(ctx, db)
	if err != nil {
		return nil, err
	}
	sales, err := models.GetAllSaleEvents(ctx, db)
	if err != nil {
		return nil, err
	}

	payload := BuildInventoryAnalysis(now, receives, sales, onHand, cfg)
	if err := models.SaveSnapshot(ctx, db, models.SnapshotKeyInventoryAnalysis, payload, now); err != nil {
		return nil, err
	}
	return &payload, nil
}

// RunSalesAnalysis aggregates sale patterns over the trailing window and
// replaces the stored sales snapshot.
func RunSalesAnalysis(ctx context.Context, db *gorm.DB, windowDays int, now time.Time) (*SalesAnalysis, error) {
	if windowDays <= 0 {
		windowDays = DefaultSalesWindowDays
	}
	sales, err := models.GetSaleEventsSince(ctx, db, now.AddDate(0, 0, -windowDays))
	if err != nil {
		return nil, err
	}

	payload := BuildSalesAnalysis(sales, windowDays)
	if err := models.SaveSnapshot(ctx, db, models.SnapshotKeySalesAnalysis, payload, now); err != nil {
		return nil, err
	}
	return &payload, nil
}
