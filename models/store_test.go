package models_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/maisonops/boutique_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestUpsertReceiveEventIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := models.ReceiveEvent{
		ItemId:         "item-1",
		ReceivingDocId: "rcv-1",
		ReceivedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		QtyReceived:    5,
		UnitCost:       decimal.NewFromInt(20),
		ItemName:       "Silk Dress",
		Vendor:         "Maison V",
	}
	if err := models.UpsertReceiveEvent(ctx, db, &first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Re-sync of the same document line with corrected quantity and cost.
	second := first
	second.ID = 0
	second.QtyReceived = 6
	second.UnitCost = decimal.NewFromInt(22)
	if err := models.UpsertReceiveEvent(ctx, db, &second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	events, err := models.GetAllReceiveEvents(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("rows = %d, want 1 (same item+document collapses)", len(events))
	}
	if events[0].QtyReceived != 6 {
		t.Errorf("qtyReceived = %d, want 6 (second write wins)", events[0].QtyReceived)
	}
	if !events[0].UnitCost.Equal(decimal.NewFromInt(22)) {
		t.Errorf("unitCost = %s, want 22", events[0].UnitCost)
	}

	// A different document for the same item is a separate row.
	third := first
	third.ID = 0
	third.ReceivingDocId = "rcv-2"
	if err := models.UpsertReceiveEvent(ctx, db, &third); err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	events, _ = models.GetAllReceiveEvents(ctx, db)
	if len(events) != 2 {
		t.Errorf("rows = %d, want 2", len(events))
	}
}

func TestUpsertSaleEventKeepsDescriptiveFields(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := models.SaleEvent{
		TicketId:    "t-1",
		LineId:      "1",
		ItemId:      "item-1",
		SoldAt:      time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC),
		Qty:         1,
		UnitPrice:   decimal.NewFromInt(45),
		TotalAmount: decimal.NewFromInt(45),
		Brand:       "Maison V",
		Category:    "Dresses",
	}
	if err := models.UpsertSaleEvent(ctx, db, &first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := first
	second.ID = 0
	second.Qty = 2
	second.TotalAmount = decimal.NewFromInt(90)
	second.Brand = ""
	second.Category = "WRONG"
	if err := models.UpsertSaleEvent(ctx, db, &second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	events, err := models.GetAllSaleEvents(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("rows = %d, want 1", len(events))
	}
	if events[0].Qty != 2 {
		t.Errorf("qty = %d, want 2 (amounts refresh)", events[0].Qty)
	}
	if events[0].Brand != "Maison V" || events[0].Category != "Dresses" {
		t.Errorf("descriptive fields changed on re-sync: %q/%q", events[0].Brand, events[0].Category)
	}
}

func TestUpsertSaleEventLineSentinel(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ev := models.SaleEvent{
		TicketId:    "t-1",
		ItemId:      "item-1",
		SoldAt:      time.Now().UTC(),
		Qty:         1,
		TotalAmount: decimal.NewFromInt(10),
	}
	if err := models.UpsertSaleEvent(ctx, db, &ev); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ev.LineId != models.SaleLineSentinel {
		t.Errorf("lineId = %q, want sentinel for missing line ids", ev.LineId)
	}
}

func TestGetLapsedCustomers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mk := func(id string, lastPurchaseDaysAgo int) {
		last := now.AddDate(0, 0, -lastPurchaseDaysAgo)
		p := models.CustomerProfile{CustomerId: id, Name: id, LastPurchaseAt: &last}
		if err := models.UpsertCustomerProfile(ctx, db, &p); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	mk("recent", 10)
	mk("lapsed-long", 200)
	mk("lapsed-short", 100)
	never := models.CustomerProfile{CustomerId: "never", Name: "never"}
	if err := models.UpsertCustomerProfile(ctx, db, &never); err != nil {
		t.Fatalf("upsert never: %v", err)
	}

	lapsed, err := models.GetLapsedCustomers(ctx, db, 90, now)
	if err != nil {
		t.Fatalf("lapsed: %v", err)
	}
	if len(lapsed) != 2 {
		t.Fatalf("lapsed = %d, want 2 (recent and never-bought excluded)", len(lapsed))
	}
	if lapsed[0].CustomerId != "lapsed-short" {
		t.Errorf("order = %q first, want most recently lapsed first", lapsed[0].CustomerId)
	}
}

func TestCustomerSaleStatsAndPreferences(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sale := func(ticket string, daysAgo int, amount float64, brand, category, size string) {
		ev := models.SaleEvent{
			TicketId:    ticket,
			LineId:      "1",
			CustomerId:  "cust-1",
			ItemId:      "item-" + ticket,
			SoldAt:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo),
			Qty:         1,
			TotalAmount: decimal.NewFromFloat(amount),
			Brand:       brand,
			Category:    category,
			Size:        size,
		}
		if err := models.UpsertSaleEvent(ctx, db, &ev); err != nil {
			t.Fatalf("sale %s: %v", ticket, err)
		}
	}
	sale("t1", 300, 100, "Maison V", "Dresses", "M")
	sale("t2", 100, 50, "Maison V", "Tops", "M")
	sale("t3", 10, 30, "Cinture", "Accessories", "")

	stats, err := models.GetCustomerSaleStats(ctx, db, "cust-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPurchases != 3 {
		t.Errorf("totalPurchases = %d, want 3", stats.TotalPurchases)
	}
	if !stats.LifetimeValue.Equal(decimal.NewFromInt(180)) {
		t.Errorf("lifetimeValue = %s, want 180", stats.LifetimeValue)
	}
	if !stats.AvgPurchaseValue.Equal(decimal.NewFromInt(60)) {
		t.Errorf("avgPurchaseValue = %s, want 60", stats.AvgPurchaseValue)
	}
	if stats.FirstPurchaseAt == nil || stats.LastPurchaseAt == nil {
		t.Fatal("purchase timestamps missing")
	}
	if !stats.FirstPurchaseAt.Before(*stats.LastPurchaseAt) {
		t.Error("first purchase should precede last")
	}

	brands, err := models.TopBrandsForCustomer(ctx, db, "cust-1", 5)
	if err != nil {
		t.Fatalf("brands: %v", err)
	}
	if len(brands) != 2 || brands[0] != "Maison V" {
		t.Errorf("brands = %v, want Maison V first by count", brands)
	}
	sizes, err := models.DistinctSizesForCustomer(ctx, db, "cust-1", 5)
	if err != nil {
		t.Fatalf("sizes: %v", err)
	}
	if len(sizes) != 1 || sizes[0] != "M" {
		t.Errorf("sizes = %v, want [M] (blanks dropped)", sizes)
	}
}

func TestMatchCustomersByPurchase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	addProfile := func(id string, ltv int64) {
		p := models.CustomerProfile{CustomerId: id, Name: id, LifetimeValue: decimal.NewFromInt(ltv)}
		if err := models.UpsertCustomerProfile(ctx, db, &p); err != nil {
			t.Fatalf("profile %s: %v", id, err)
		}
	}
	addSale := func(ticket, customer, brand, size string) {
		ev := models.SaleEvent{
			TicketId: ticket, LineId: "1", CustomerId: customer, ItemId: "i-" + ticket,
			SoldAt: time.Now().UTC(), Qty: 1,
			TotalAmount: decimal.NewFromInt(10), Brand: brand, Size: size,
		}
		if err := models.UpsertSaleEvent(ctx, db, &ev); err != nil {
			t.Fatalf("sale %s: %v", ticket, err)
		}
	}

	addProfile("alice", 500)
	addProfile("bob", 900)
	addSale("t1", "alice", "Maison V", "S")
	addSale("t2", "bob", "Maison V", "M")
	addSale("t3", "bob", "Cinture", "M")

	matches, err := models.MatchCustomersByPurchase(ctx, db, "Maison V", "", "")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].CustomerId != "bob" {
		t.Errorf("order = %q first, want highest lifetime value first", matches[0].CustomerId)
	}

	matches, err = models.MatchCustomersByPurchase(ctx, db, "Maison V", "", "S")
	if err != nil {
		t.Fatalf("match with size: %v", err)
	}
	if len(matches) != 1 || matches[0].CustomerId != "alice" {
		t.Errorf("combined filters = %+v, want only alice", matches)
	}
}

func TestSnapshotReplaceAndRead(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	missing, err := models.GetSnapshot(ctx, db, models.SnapshotKeyInventoryAnalysis)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil snapshot before first save")
	}

	t1 := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	if err := models.SaveSnapshot(ctx, db, models.SnapshotKeyInventoryAnalysis, map[string]int{"v": 1}, t1); err != nil {
		t.Fatalf("save: %v", err)
	}
	t2 := t1.Add(24 * time.Hour)
	if err := models.SaveSnapshot(ctx, db, models.SnapshotKeyInventoryAnalysis, map[string]int{"v": 2}, t2); err != nil {
		t.Fatalf("second save: %v", err)
	}

	snap, err := models.GetSnapshot(ctx, db, models.SnapshotKeyInventoryAnalysis)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap == nil {
		t.Fatal("snapshot missing after save")
	}
	if string(snap.Payload) != `{"v":2}` {
		t.Errorf("payload = %s, want replaced wholesale", snap.Payload)
	}
	if !snap.SyncedAt.Equal(t2) {
		t.Errorf("syncedAt = %v, want %v", snap.SyncedAt, t2)
	}

	var count int64
	db.Model(&models.AnalysisSnapshot{}).Count(&count)
	if count != 1 {
		t.Errorf("snapshot rows = %d, want 1 per key", count)
	}

	if err := models.SaveSnapshot(ctx, db, models.SnapshotKeySalesAnalysis, nil, t2); err == nil {
		t.Error("nil payload should be rejected")
	}
}

func TestProcessingStatusWorkflow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := models.ProcessingStatus{
		EntityType: models.ProcessingEntityItem,
		EntityId:   "item-1",
		Status:     models.ProcessingStatusNew,
	}
	if err := models.UpsertProcessingStatus(ctx, db, &first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := models.ProcessingStatus{
		EntityType:  models.ProcessingEntityItem,
		EntityId:    "item-1",
		Status:      models.ProcessingStatusCompleted,
		ProcessedAt: &now,
		ProcessedBy: "clerk",
	}
	if err := models.UpsertProcessingStatus(ctx, db, &second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := models.GetProcessingStatus(ctx, db, models.ProcessingEntityItem, "item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.ProcessingStatusCompleted || got.ProcessedBy != "clerk" {
		t.Errorf("status = %+v, want completed by clerk (last write wins)", got)
	}

	listed, err := models.ListProcessingStatuses(ctx, db, models.ProcessingEntityItem, models.ProcessingStatusCompleted)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("listed = %d, want 1", len(listed))
	}
}

func TestSummarizeReceivingDocs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	add := func(item, doc string, daysAgo, qty int, cost int64) {
		ev := models.ReceiveEvent{
			ItemId:         item,
			ReceivingDocId: doc,
			ReceivedAt:     time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo),
			QtyReceived:    qty,
			UnitCost:       decimal.NewFromInt(cost),
			Vendor:         "Maison V",
		}
		if err := models.UpsertReceiveEvent(ctx, db, &ev); err != nil {
			t.Fatalf("add %s/%s: %v", item, doc, err)
		}
	}
	add("a", "rcv-1", 10, 2, 20)
	add("b", "rcv-1", 10, 3, 10)
	add("c", "rcv-2", 5, 1, 50)

	docs, err := models.SummarizeReceivingDocs(ctx, db, 10)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if docs[0].ReceivingDocId != "rcv-2" {
		t.Errorf("order = %q first, want newest document first", docs[0].ReceivingDocId)
	}
	older := docs[1]
	if older.LineCount != 2 || older.TotalQty != 5 {
		t.Errorf("rcv-1 rollup = %+v, want 2 lines qty 5", older)
	}
	if !older.TotalCost.Equal(decimal.NewFromInt(70)) {
		t.Errorf("rcv-1 totalCost = %s, want 70 (2x20 + 3x10)", older.TotalCost)
	}
}
