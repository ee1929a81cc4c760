package merxsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/maisonops/boutique_backend/analysis"
	"github.com/maisonops/boutique_backend/config"
	"github.com/maisonops/boutique_backend/models"
	"github.com/maisonops/boutique_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	syncLockKey = "merx:sync:lock"
	syncLockTTL = 30 * time.Minute
)

type merxReceivingDoc struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	ReceivedAt string `json:"received_at"`
	VendorId   string `json:"vendor_id"`
}

type merxReceivingLine struct {
	ItemId   string      `json:"item_id"`
	Qty      json.Number `json:"qty"`
	UnitCost json.Number `json:"unit_cost"`
}

type merxItem struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Brand    string      `json:"brand"`
	Size     string      `json:"size"`
	Color    string      `json:"color"`
	VendorId string      `json:"vendor_id"`
	Cost     json.Number `json:"cost"`
	Price    json.Number `json:"price"`
}

type merxVendor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type merxInventoryLevel struct {
	ItemId    string `json:"item_id"`
	QtyOnHand int    `json:"qty_on_hand"`
}

type merxSaleRow struct {
	TicketId   string      `json:"ticket_id"`
	LineId     string      `json:"line_id"`
	CustomerId string      `json:"customer_id"`
	ItemId     string      `json:"item_id"`
	SoldAt     string      `json:"sold_at"`
	Qty        json.Number `json:"qty"`
	UnitPrice  json.Number `json:"unit_price"`
	Total      json.Number `json:"total"`
	Location   string      `json:"location"`
}

type merxCustomer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// runState holds the per-run metadata caches. Scoped to one sync run, never
// shared, so overlapping runs can at worst duplicate upstream fetches.
type runState struct {
	items       map[string]*merxItem
	vendorNames map[string]string
}

func newRunState() *runState {
	return &runState{
		items:       map[string]*merxItem{},
		vendorNames: map[string]string{},
	}
}

func (s *runState) itemDetail(ctx context.Context, client *merxClient, itemId string) (*merxItem, error) {
	if item, ok := s.items[itemId]; ok {
		if item == nil {
			return nil, errors.New("item lookup previously failed")
		}
		return item, nil
	}
	var item merxItem
	found, err := client.getObject(ctx, "/v1/items/"+url.PathEscape(itemId), &item)
	if err != nil {
		s.items[itemId] = nil
		return nil, err
	}
	if !found {
		s.items[itemId] = nil
		return nil, errors.New("item not found")
	}
	s.items[itemId] = &item
	return &item, nil
}

func (s *runState) vendorName(ctx context.Context, client *merxClient, vendorId string) (string, error) {
	if vendorId == "" {
		return "", nil
	}
	if name, ok := s.vendorNames[vendorId]; ok {
		return name, nil
	}
	var vendor merxVendor
	found, err := client.getObject(ctx, "/v1/vendors/"+url.PathEscape(vendorId), &vendor)
	if err != nil {
		return "", err
	}
	name := ""
	if found {
		name = strings.TrimSpace(vendor.Name)
	}
	s.vendorNames[vendorId] = name
	return name, nil
}

// IsSyncRunning reports whether a sync currently holds the lease.
func IsSyncRunning(ctx context.Context) bool {
	rdb := config.GetRedisDB()
	if rdb == nil {
		return false
	}
	n, err := rdb.Exists(ctx, syncLockKey).Result()
	return err == nil && n > 0
}

func acquireSyncLock(ctx context.Context) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	return locker.Obtain(ctx, syncLockKey, syncLockTTL, nil)
}

// ProcessSyncRun executes one queued sync run to completion. It refuses to
// overlap another run: the lease keyed in Redis is the answer to the
// original's unguarded concurrent-trigger race.
func ProcessSyncRun(ctx context.Context, db *gorm.DB, runId uint) error {
	logger := config.GetLogger()

	run, err := models.GetSyncRun(ctx, db, runId)
	if err != nil {
		return err
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		return nil
	}

	lock, err := acquireSyncLock(ctx)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return failRun(ctx, db, run, "another sync is already running")
		}
		return err
	}
	if lock != nil {
		defer lock.Release(context.Background())
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	if err := db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	client, err := newMerxClient()
	if err != nil {
		return failRun(ctx, db, run, err.Error())
	}

	modules := DecodeModules(run.ModulesJSON)
	since := now.AddDate(0, 0, -lookbackDays(run))
	state := newRunState()

	stats := map[string]int{}
	errorCount := 0
	errorMessage := ""

	recordModuleFailure := func(module string, err error) {
		errorCount++
		if errorMessage == "" {
			errorMessage = module + ": " + err.Error()
		}
		_ = createSyncError(ctx, db, run.ID, module, "", "sync_failed", err.Error(), nil, true)
		config.LogError(logger, "merxsync", "ProcessSyncRun", module, nil, err)
	}

	if modules.Receivings {
		count, err := ingestReceivingWindow(ctx, db, client, state, run.ID, since)
		stats["receivings"] = count
		if err != nil {
			recordModuleFailure("receivings", err)
		}
	}

	if modules.Sales {
		count, err := ingestSalesWindow(ctx, db, client, state, run.ID, since)
		stats["sales"] = count
		if err != nil {
			recordModuleFailure("sales", err)
		}
	}

	if modules.Customers {
		count, err := rebuildCustomerProfiles(ctx, db, client, run.ID)
		stats["customers"] = count
		if err != nil {
			recordModuleFailure("customers", err)
		}
	}

	if err := writeReceivingHistory(ctx, db, now); err != nil {
		recordModuleFailure("receiving_history", err)
	}

	// Recompute analysis snapshots from whatever the tables now hold. A
	// failed computation leaves the prior snapshot authoritative.
	if _, err := analysis.RunInventoryAnalysis(ctx, db, client, analysis.ConfigFromEnv(), now); err != nil {
		recordModuleFailure("inventory_analysis", err)
	}
	if _, err := analysis.RunSalesAnalysis(ctx, db, salesWindowDays(), now); err != nil {
		recordModuleFailure("sales_analysis", err)
	}

	// Per-record skips logged inside the modules also count.
	var recordErrors int64
	_ = db.WithContext(ctx).Model(&models.SyncError{}).Where("sync_run_id = ?", run.ID).Count(&recordErrors).Error

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(*startedAt).Milliseconds()
	totalSynced := stats["receivings"] + stats["sales"] + stats["customers"]
	status := models.SyncRunStatusSuccess
	if errorCount > 0 && totalSynced == 0 {
		status = models.SyncRunStatusFailed
	} else if recordErrors > 0 {
		status = models.SyncRunStatusPartial
	}

	statsJSON, _ := json.Marshal(stats)
	if err := db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":         status,
		"finished_at":    finishedAt,
		"duration_ms":    durationMs,
		"records_synced": totalSynced,
		"error_count":    int(recordErrors),
		"error_message":  errorMessage,
		"stats_json":     statsJSON,
	}).Error; err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"run_id":         run.ID,
		"status":         status,
		"records_synced": totalSynced,
		"error_count":    recordErrors,
		"duration_ms":    durationMs,
	}).Info("sync run finished")
	return nil
}

func failRun(ctx context.Context, db *gorm.DB, run *models.SyncRun, message string) error {
	now := time.Now()
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":        models.SyncRunStatusFailed,
		"finished_at":   now,
		"error_message": message,
	}).Error
}

// ingestReceivingWindow pulls completed receiving documents created on or
// after 'since' and upserts one ReceiveEvent per line. A failure on the bulk
// document listing is fatal to the window; failures on an individual
// document or line are recorded and skipped.
func ingestReceivingWindow(ctx context.Context, db *gorm.DB, client *merxClient, state *runState, runId uint, since time.Time) (int, error) {
	params := url.Values{}
	params.Set("status", "completed")
	params.Set("created_at_min", since.UTC().Format(time.RFC3339))

	total := 0
	err := client.listAll(ctx, "/v1/receivings", params, func(raw json.RawMessage) error {
		var doc merxReceivingDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			_ = createSyncError(ctx, db, runId, "receiving", "", "invalid_payload", err.Error(), raw, true)
			return nil
		}
		docId := strings.TrimSpace(doc.ID)
		if docId == "" {
			_ = createSyncError(ctx, db, runId, "receiving", "", "missing_id", "receiving document id missing", raw, false)
			return nil
		}

		receivedAt := parseTime(doc.ReceivedAt)
		if receivedAt.IsZero() {
			receivedAt = parseTime(doc.CreatedAt)
		}
		if receivedAt.IsZero() {
			_ = createSyncError(ctx, db, runId, "receiving", docId, "missing_date", "receiving date missing", raw, false)
			return nil
		}

		count, err := ingestReceivingLines(ctx, db, client, state, runId, docId, receivedAt)
		if err != nil {
			// Partial upstream failure: drop this document, keep the window.
			_ = createSyncError(ctx, db, runId, "receiving", docId, "lines_fetch_failed", err.Error(), raw, true)
			return nil
		}
		total += count
		return nil
	})
	return total, err
}

func ingestReceivingLines(ctx context.Context, db *gorm.DB, client *merxClient, state *runState, runId uint, docId string, receivedAt time.Time) (int, error) {
	total := 0
	err := client.listAll(ctx, "/v1/receivings/"+url.PathEscape(docId)+"/lines", nil, func(raw json.RawMessage) error {
		var line merxReceivingLine
		if err := json.Unmarshal(raw, &line); err != nil {
			_ = createSyncError(ctx, db, runId, "receiving_line", docId, "invalid_payload", err.Error(), raw, true)
			return nil
		}
		itemId := strings.TrimSpace(line.ItemId)
		if itemId == "" {
			_ = createSyncError(ctx, db, runId, "receiving_line", docId, "missing_item", "line item id missing", raw, false)
			return nil
		}

		item, err := state.itemDetail(ctx, client, itemId)
		if err != nil {
			_ = createSyncError(ctx, db, runId, "item", itemId, "item_lookup_failed", err.Error(), raw, true)
			return nil
		}

		vendor, err := state.vendorName(ctx, client, item.VendorId)
		if err != nil {
			_ = createSyncError(ctx, db, runId, "vendor", item.VendorId, "vendor_lookup_failed", err.Error(), nil, true)
			vendor = ""
		}

		cost := decimalFromNumber(line.UnitCost)
		if cost.IsZero() {
			cost = decimalFromNumber(item.Cost)
		}

		event := models.ReceiveEvent{
			ItemId:         itemId,
			ReceivingDocId: docId,
			ReceivedAt:     receivedAt,
			QtyReceived:    intFromNumber(line.Qty),
			UnitCost:       cost,
			ItemName:       strings.TrimSpace(item.Name),
			Category:       strings.TrimSpace(item.Category),
			Vendor:         vendor,
			Color:          strings.TrimSpace(item.Color),
			Size:           strings.TrimSpace(item.Size),
		}
		if err := models.UpsertReceiveEvent(ctx, db, &event); err != nil {
			// A missing row beats aborting a nightly sync over one bad row.
			_ = createSyncError(ctx, db, runId, "receive_event", itemId, "store_write_failed", err.Error(), raw, true)
			return nil
		}
		total++
		return nil
	})
	return total, err
}

// ingestSalesWindow pulls sales report rows since 'since', resolves item
// metadata once per unique item, and upserts one SaleEvent per row.
func ingestSalesWindow(ctx context.Context, db *gorm.DB, client *merxClient, state *runState, runId uint, since time.Time) (int, error) {
	params := url.Values{}
	params.Set("sold_at_min", since.UTC().Format(time.RFC3339))

	var rows []merxSaleRow
	err := client.listAll(ctx, "/v1/sales", params, func(raw json.RawMessage) error {
		var row merxSaleRow
		if err := json.Unmarshal(raw, &row); err != nil {
			_ = createSyncError(ctx, db, runId, "sale", "", "invalid_payload", err.Error(), raw, true)
			return nil
		}
		if strings.TrimSpace(row.ItemId) == "" {
			// No item to attribute the line to.
			return nil
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, row := range rows {
		itemId := strings.TrimSpace(row.ItemId)
		soldAt := parseTime(row.SoldAt)
		if soldAt.IsZero() {
			_ = createSyncError(ctx, db, runId, "sale", row.TicketId, "missing_date", "sale date missing", nil, false)
			continue
		}

		// Metadata enrichment is best effort; the sale row itself still
		// lands with placeholder descriptive fields.
		item, err := state.itemDetail(ctx, client, itemId)
		if err != nil {
			_ = createSyncError(ctx, db, runId, "item", itemId, "item_lookup_failed", err.Error(), nil, true)
			item = &merxItem{}
		}

		qty := intFromNumber(row.Qty)
		if qty == 0 {
			qty = 1
		}
		unitPrice := decimalFromNumber(row.UnitPrice)
		totalAmount := decimalFromNumber(row.Total)
		if totalAmount.IsZero() {
			totalAmount = unitPrice.Mul(decimal.NewFromInt(int64(qty)))
		}

		event := models.SaleEvent{
			TicketId:    strings.TrimSpace(row.TicketId),
			LineId:      strings.TrimSpace(row.LineId),
			CustomerId:  strings.TrimSpace(row.CustomerId),
			ItemId:      itemId,
			SoldAt:      soldAt,
			DayOfWeek:   soldAt.Weekday().String(),
			HourOfDay:   soldAt.Hour(),
			Qty:         qty,
			UnitPrice:   unitPrice,
			TotalAmount: totalAmount,
			Category:    strings.TrimSpace(item.Category),
			Vendor:      vendorNameOrCached(ctx, client, state, item.VendorId),
			Brand:       strings.TrimSpace(item.Brand),
			ItemName:    strings.TrimSpace(item.Name),
			Size:        strings.TrimSpace(item.Size),
			Color:       strings.TrimSpace(item.Color),
			Location:    strings.TrimSpace(row.Location),
		}
		if event.TicketId == "" {
			_ = createSyncError(ctx, db, runId, "sale", itemId, "missing_ticket", "ticket id missing", nil, false)
			continue
		}
		if err := models.UpsertSaleEvent(ctx, db, &event); err != nil {
			_ = createSyncError(ctx, db, runId, "sale_event", event.TicketId, "store_write_failed", err.Error(), nil, true)
			continue
		}
		total++
	}
	return total, nil
}

func vendorNameOrCached(ctx context.Context, client *merxClient, state *runState, vendorId string) string {
	name, err := state.vendorName(ctx, client, vendorId)
	if err != nil {
		return ""
	}
	return name
}

// rebuildCustomerProfiles refetches all upstream customers and recomputes
// each profile wholesale from the sale tables. O(customers) store
// round-trips, acceptable on a nightly cadence.
func rebuildCustomerProfiles(ctx context.Context, db *gorm.DB, client *merxClient, runId uint) (int, error) {
	total := 0
	err := client.listAll(ctx, "/v1/customers", nil, func(raw json.RawMessage) error {
		var cust merxCustomer
		if err := json.Unmarshal(raw, &cust); err != nil {
			_ = createSyncError(ctx, db, runId, "customer", "", "invalid_payload", err.Error(), raw, true)
			return nil
		}
		customerId := strings.TrimSpace(cust.ID)
		if customerId == "" {
			_ = createSyncError(ctx, db, runId, "customer", "", "missing_id", "customer id missing", raw, false)
			return nil
		}

		if err := rebuildCustomerProfile(ctx, db, customerId, cust); err != nil {
			_ = createSyncError(ctx, db, runId, "customer", customerId, "profile_rebuild_failed", err.Error(), raw, true)
			return nil
		}
		total++
		return nil
	})
	return total, err
}

func rebuildCustomerProfile(ctx context.Context, db *gorm.DB, customerId string, cust merxCustomer) error {
	stats, err := models.GetCustomerSaleStats(ctx, db, customerId)
	if err != nil {
		return err
	}
	brands, err := models.TopBrandsForCustomer(ctx, db, customerId, 5)
	if err != nil {
		return err
	}
	sizes, err := models.DistinctSizesForCustomer(ctx, db, customerId, 5)
	if err != nil {
		return err
	}
	categories, err := models.TopCategoriesForCustomer(ctx, db, customerId, 5)
	if err != nil {
		return err
	}

	profile := models.CustomerProfile{
		CustomerId:       customerId,
		Name:             strings.TrimSpace(cust.Name),
		Email:            strings.TrimSpace(cust.Email),
		Phone:            utils.NormalizePhoneNumber(cust.Phone, utils.CountryCode),
		TotalPurchases:   stats.TotalPurchases,
		LifetimeValue:    stats.LifetimeValue,
		AvgPurchaseValue: stats.AvgPurchaseValue,
		FirstPurchaseAt:  stats.FirstPurchaseAt,
		LastPurchaseAt:   stats.LastPurchaseAt,
	}
	profile.SetPreferredBrands(brands)
	profile.SetPreferredSizes(sizes)
	profile.SetPreferredCategories(categories)
	return models.UpsertCustomerProfile(ctx, db, &profile)
}

func writeReceivingHistory(ctx context.Context, db *gorm.DB, now time.Time) error {
	docs, err := models.SummarizeReceivingDocs(ctx, db, 200)
	if err != nil {
		return err
	}
	return models.SaveSnapshot(ctx, db, models.SnapshotKeyReceivingHistory, map[string]any{
		"documents": docs,
	}, now)
}

func createSyncError(ctx context.Context, db *gorm.DB, runId uint, entityType string, externalId string, code string, message string, payload []byte, retryable bool) error {
	errRec := models.SyncError{
		SyncRunId:   runId,
		EntityType:  entityType,
		ExternalId:  externalId,
		ErrorCode:   code,
		Message:     message,
		PayloadJSON: payload,
		Retryable:   retryable,
	}
	return db.WithContext(ctx).Create(&errRec).Error
}

func lookbackDays(run *models.SyncRun) int {
	if run.LookbackDays > 0 {
		return run.LookbackDays
	}
	if v := strings.TrimSpace(os.Getenv("MERX_LOOKBACK_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 365
}

func salesWindowDays() int {
	if v := strings.TrimSpace(os.Getenv("SALES_ANALYSIS_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return analysis.DefaultSalesWindowDays
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

func intFromNumber(num json.Number) int {
	if num.String() == "" {
		return 0
	}
	if n, err := num.Int64(); err == nil {
		return int(n)
	}
	if f, err := num.Float64(); err == nil {
		return int(f)
	}
	return 0
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
