package analysis

import (
	"testing"
	"time"

	"github.com/maisonops/boutique_backend/models"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func recvEvent(itemId string, daysAgo int, qty int, cost float64, name, category, vendor string) models.ReceiveEvent {
	return models.ReceiveEvent{
		ItemId:         itemId,
		ReceivingDocId: "doc-" + itemId,
		ReceivedAt:     testNow.AddDate(0, 0, -daysAgo),
		QtyReceived:    qty,
		UnitCost:       decimal.NewFromFloat(cost),
		ItemName:       name,
		Category:       category,
		Vendor:         vendor,
	}
}

func saleEvent(itemId string, daysAgo int, qty int, price float64, category, vendor string) models.SaleEvent {
	return models.SaleEvent{
		TicketId:  "t-" + itemId,
		ItemId:    itemId,
		SoldAt:    testNow.AddDate(0, 0, -daysAgo),
		Qty:       qty,
		UnitPrice: decimal.NewFromFloat(price),
		Category:  category,
		Vendor:    vendor,
	}
}

func TestClassifyBucket(t *testing.T) {
	cases := []struct {
		days     int
		bucket   string
		markdown string
	}{
		{0, BucketFresh, ""},
		{44, BucketFresh, ""},
		{45, BucketWatch, "watch closely"},
		{59, BucketWatch, "watch closely"},
		{60, BucketSlow, "20-30% off"},
		{89, BucketSlow, "20-30% off"},
		{90, BucketDead, "40-50% off"},
		{119, BucketDead, "40-50% off"},
		{120, BucketEmergency, "60%+ off or bundle/donate"},
		{400, BucketEmergency, "60%+ off or bundle/donate"},
	}
	for _, tc := range cases {
		bucket, markdown := classifyBucket(tc.days)
		if bucket != tc.bucket {
			t.Errorf("days=%d: bucket = %q, want %q", tc.days, bucket, tc.bucket)
		}
		if markdown != tc.markdown {
			t.Errorf("days=%d: markdown = %q, want %q", tc.days, markdown, tc.markdown)
		}
	}
}

func TestAgingUsesMostRecentReceipt(t *testing.T) {
	receives := []models.ReceiveEvent{
		recvEvent("sku-1", 200, 5, 10, "Old Name", "Dresses", "Acme"),
		recvEvent("sku-1", 50, 3, 12, "New Name", "Gowns", "Acme"),
	}
	out := BuildInventoryAnalysis(testNow, receives, nil, map[string]int{"sku-1": 4}, DefaultConfig())

	if len(out.DeadStock.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(out.DeadStock.Items))
	}
	item := out.DeadStock.Items[0]
	if item.DaysSinceReceived != 50 {
		t.Errorf("daysSinceReceived = %d, want 50 (restock resets the clock)", item.DaysSinceReceived)
	}
	if item.Name != "New Name" || item.Category != "Gowns" {
		t.Errorf("metadata = %q/%q, want latest receipt's", item.Name, item.Category)
	}
	if item.QtyReceived != 8 {
		t.Errorf("qtyReceived = %d, want 8 (summed across receipts)", item.QtyReceived)
	}
	if item.Bucket != BucketWatch {
		t.Errorf("bucket = %q, want %q", item.Bucket, BucketWatch)
	}
}

func TestSoldOutItemsExcluded(t *testing.T) {
	receives := []models.ReceiveEvent{
		recvEvent("gone", 150, 5, 10, "Gone", "Tops", "Acme"),
		recvEvent("missing", 150, 5, 10, "Missing", "Tops", "Acme"),
		recvEvent("here", 150, 5, 10, "Here", "Tops", "Acme"),
	}
	onHand := map[string]int{"gone": 0, "here": 2}
	out := BuildInventoryAnalysis(testNow, receives, nil, onHand, DefaultConfig())

	if out.DeadStock.Summary.TotalItems != 1 {
		t.Errorf("totalItems = %d, want 1 (zero and absent on-hand excluded)", out.DeadStock.Summary.TotalItems)
	}
	if len(out.DeadStock.Items) != 1 || out.DeadStock.Items[0].Id != "here" {
		t.Fatalf("items = %+v, want only 'here'", out.DeadStock.Items)
	}
	if out.Stats.TotalItemsWithReceiveData != 3 {
		t.Errorf("totalItemsWithReceiveData = %d, want 3", out.Stats.TotalItemsWithReceiveData)
	}
}

func TestPriceFallbackFromCost(t *testing.T) {
	receives := []models.ReceiveEvent{
		recvEvent("sku-1", 100, 10, 20, "Coat", "Outerwear", "Acme"),
	}
	out := BuildInventoryAnalysis(testNow, receives, nil, map[string]int{"sku-1": 7}, DefaultConfig())

	if len(out.DeadStock.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(out.DeadStock.Items))
	}
	item := out.DeadStock.Items[0]
	if item.Price != 50 {
		t.Errorf("price = %v, want 50 (cost 20 x 2.5 markup)", item.Price)
	}
	if item.CostValue != 140 {
		t.Errorf("costValue = %v, want 140 (cost 20 x 7 on hand)", item.CostValue)
	}
	if item.RetailValue != 350 {
		t.Errorf("retailValue = %v, want 350", item.RetailValue)
	}
	if item.Bucket != BucketDead {
		t.Errorf("bucket = %q, want %q", item.Bucket, BucketDead)
	}
	if item.SuggestedMarkdown != "40-50% off" {
		t.Errorf("suggestedMarkdown = %q", item.SuggestedMarkdown)
	}
	if out.DeadStock.Summary.Items90Days != 1 {
		t.Errorf("items90Days = %d, want 1", out.DeadStock.Summary.Items90Days)
	}
	if out.DeadStock.Summary.Value90Days != 140 {
		t.Errorf("value90Days = %v, want 140", out.DeadStock.Summary.Value90Days)
	}
}

func TestCostFallbackFromPrice(t *testing.T) {
	receives := []models.ReceiveEvent{
		recvEvent("sku-1", 70, 4, 0, "Belt", "Accessories", "Acme"),
	}
	sales := []models.SaleEvent{
		saleEvent("sku-1", 60, 1, 100, "Accessories", "Acme"),
	}
	out := BuildInventoryAnalysis(testNow, receives, sales, map[string]int{"sku-1": 3}, DefaultConfig())

	if len(out.DeadStock.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(out.DeadStock.Items))
	}
	item := out.DeadStock.Items[0]
	if item.Price != 100 {
		t.Errorf("price = %v, want 100 (observed sale price)", item.Price)
	}
	if item.CostValue != 120 {
		t.Errorf("costValue = %v, want 120 (price 100 x 0.4 ratio x 3 on hand)", item.CostValue)
	}
	if item.QtySold != 1 {
		t.Errorf("qtySold = %d, want 1", item.QtySold)
	}
}

func TestCustomRatios(t *testing.T) {
	cfg := Config{
		PriceMarkupRatio: decimal.NewFromInt(3),
		CostRatio:        decimal.NewFromFloat(0.5),
	}
	receives := []models.ReceiveEvent{
		recvEvent("sku-1", 50, 1, 10, "Hat", "Accessories", "Acme"),
	}
	out := BuildInventoryAnalysis(testNow, receives, nil, map[string]int{"sku-1": 1}, cfg)
	if out.DeadStock.Items[0].Price != 30 {
		t.Errorf("price = %v, want 30 with 3x markup", out.DeadStock.Items[0].Price)
	}
}

func TestAgingListSortedOldestFirst(t *testing.T) {
	receives := []models.ReceiveEvent{
		recvEvent("young", 50, 1, 10, "Young", "Tops", "Acme"),
		recvEvent("oldest", 130, 1, 10, "Oldest", "Tops", "Acme"),
		recvEvent("middle", 95, 1, 10, "Middle", "Tops", "Acme"),
	}
	onHand := map[string]int{"young": 1, "oldest": 1, "middle": 1}
	out := BuildInventoryAnalysis(testNow, receives, nil, onHand, DefaultConfig())

	if len(out.DeadStock.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(out.DeadStock.Items))
	}
	gotOrder := []string{out.DeadStock.Items[0].Id, out.DeadStock.Items[1].Id, out.DeadStock.Items[2].Id}
	wantOrder := []string{"oldest", "middle", "young"}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", gotOrder, wantOrder)
		}
	}
}

func TestFreshItemsCountedButNotListed(t *testing.T) {
	receives := []models.ReceiveEvent{
		recvEvent("fresh", 10, 2, 25, "Fresh", "Tops", "Acme"),
	}
	out := BuildInventoryAnalysis(testNow, receives, nil, map[string]int{"fresh": 2}, DefaultConfig())

	if out.DeadStock.Summary.ItemsFresh != 1 {
		t.Errorf("itemsFresh = %d, want 1", out.DeadStock.Summary.ItemsFresh)
	}
	if out.DeadStock.Summary.ValueFresh != 50 {
		t.Errorf("valueFresh = %v, want 50", out.DeadStock.Summary.ValueFresh)
	}
	if len(out.DeadStock.Items) != 0 {
		t.Errorf("items = %d, want 0", len(out.DeadStock.Items))
	}
	if out.Stats.TotalDeadStockItems != 0 {
		t.Errorf("totalDeadStockItems = %d, want 0", out.Stats.TotalDeadStockItems)
	}
}

func TestStoreMetrics(t *testing.T) {
	receives := []models.ReceiveEvent{
		// Inside the 30-day window: 10 units at cost 10.
		recvEvent("a", 10, 10, 10, "A", "Tops", "Acme"),
		// Inside 60 and 90 but outside 30/45: 4 units at cost 25.
		recvEvent("b", 50, 4, 25, "B", "Tops", "Acme"),
	}
	onHand := map[string]int{"a": 5, "b": 0}
	out := BuildInventoryAnalysis(testNow, receives, nil, onHand, DefaultConfig())
	m := out.DeadStock.StoreMetrics

	if m.Received30Days != 100 {
		t.Errorf("received30Days = %v, want 100", m.Received30Days)
	}
	if m.StillOnHand30Days != 50 {
		t.Errorf("stillOnHand30Days = %v, want 50", m.StillOnHand30Days)
	}
	if m.PctOnHand30Days != 50 {
		t.Errorf("pctOnHand30Days = %d, want 50", m.PctOnHand30Days)
	}
	if m.Received60Days != 200 {
		t.Errorf("received60Days = %v, want 200 (both receipts)", m.Received60Days)
	}
	if m.StillOnHand60Days != 50 {
		t.Errorf("stillOnHand60Days = %v, want 50 (item b sold out)", m.StillOnHand60Days)
	}
	if m.PctOnHand60Days != 25 {
		t.Errorf("pctOnHand60Days = %d, want 25", m.PctOnHand60Days)
	}
}

func TestStoreMetricsZeroWhenNothingReceived(t *testing.T) {
	out := BuildInventoryAnalysis(testNow, nil, nil, nil, DefaultConfig())
	m := out.DeadStock.StoreMetrics
	if m.PctOnHand30Days != 0 || m.PctOnHand90Days != 0 {
		t.Errorf("pct = %d/%d, want 0/0 on empty denominator", m.PctOnHand30Days, m.PctOnHand90Days)
	}
}

func velocitySales(category string, itemCount int, spanDays int) []models.SaleEvent {
	var sales []models.SaleEvent
	for i := 0; i < itemCount; i++ {
		itemId := category + "-item-" + string(rune('a'+i))
		sales = append(sales,
			saleEvent(itemId, 100, 1, 40, category, "Acme"),
			saleEvent(itemId, 100-spanDays, 1, 40, category, "Acme"),
		)
	}
	return sales
}

func TestVelocityRanking(t *testing.T) {
	var sales []models.SaleEvent
	// Three items spanning 10 days each.
	sales = append(sales, velocitySales("Fast", 3, 10)...)
	// Three items spanning 40 days each.
	sales = append(sales, velocitySales("Slow", 3, 40)...)

	out := BuildInventoryAnalysis(testNow, nil, sales, nil, DefaultConfig())
	byCat := out.Velocity.ByCategory
	if len(byCat) != 2 {
		t.Fatalf("byCategory = %d entries, want 2", len(byCat))
	}
	if byCat[0].Name != "Fast" || byCat[0].AvgDaysToSell != 10 {
		t.Errorf("first entry = %+v, want Fast/10", byCat[0])
	}
	if byCat[1].Name != "Slow" || byCat[1].AvgDaysToSell != 40 {
		t.Errorf("second entry = %+v, want Slow/40", byCat[1])
	}
	if byCat[0].ItemsSold != 3 {
		t.Errorf("itemsSold = %d, want 3", byCat[0].ItemsSold)
	}
}

func TestVelocitySampleFloor(t *testing.T) {
	// Two qualifying items: below the three-item sample floor.
	sales := velocitySales("Thin", 2, 10)
	out := BuildInventoryAnalysis(testNow, nil, sales, nil, DefaultConfig())
	if len(out.Velocity.ByCategory) != 0 {
		t.Errorf("byCategory = %+v, want empty below sample floor", out.Velocity.ByCategory)
	}
}

func TestVelocityDiscardsSingleSaleItems(t *testing.T) {
	// Three items but each sold exactly once: zero span, no signal.
	sales := []models.SaleEvent{
		saleEvent("x1", 100, 1, 40, "Solo", "Acme"),
		saleEvent("x2", 90, 1, 40, "Solo", "Acme"),
		saleEvent("x3", 80, 1, 40, "Solo", "Acme"),
	}
	out := BuildInventoryAnalysis(testNow, nil, sales, nil, DefaultConfig())
	if len(out.Velocity.ByCategory) != 0 {
		t.Errorf("byCategory = %+v, want empty when every item has one sale", out.Velocity.ByCategory)
	}
}

func TestVelocityIgnoresSalesOutsideWindow(t *testing.T) {
	var sales []models.SaleEvent
	for _, item := range []string{"a", "b", "c"} {
		// One sale far outside the 180-day window, one inside. The
		// in-window span is zero, so nothing qualifies.
		sales = append(sales,
			saleEvent(item, 400, 1, 40, "Stale", "Acme"),
			saleEvent(item, 30, 1, 40, "Stale", "Acme"),
		)
	}
	out := BuildInventoryAnalysis(testNow, nil, sales, nil, DefaultConfig())
	if len(out.Velocity.ByCategory) != 0 {
		t.Errorf("byCategory = %+v, want empty when spans start outside the window", out.Velocity.ByCategory)
	}
}

func TestDaysBetween(t *testing.T) {
	from := testNow.AddDate(0, 0, -45)
	if got := daysBetween(from, testNow); got != 45 {
		t.Errorf("daysBetween = %d, want 45", got)
	}
	if got := daysBetween(testNow, testNow.Add(-time.Hour)); got != 0 {
		t.Errorf("daysBetween future from = %d, want 0", got)
	}
	// Partial days floor.
	if got := daysBetween(testNow.Add(-36*time.Hour), testNow); got != 1 {
		t.Errorf("daysBetween 36h = %d, want 1", got)
	}
}

func TestEndToEndScenario(t *testing.T) {
	receives := []models.ReceiveEvent{
		recvEvent("dress-1", 125, 6, 30, "Silk Dress", "Dresses", "Maison V"),
		recvEvent("top-1", 65, 10, 15, "Linen Top", "Tops", "Maison V"),
		recvEvent("belt-1", 20, 8, 8, "Leather Belt", "Accessories", "Cinture"),
	}
	sales := []models.SaleEvent{
		saleEvent("top-1", 40, 2, 45, "Tops", "Maison V"),
		saleEvent("belt-1", 5, 3, 25, "Accessories", "Cinture"),
	}
	onHand := map[string]int{"dress-1": 4, "top-1": 8, "belt-1": 5}

	out := BuildInventoryAnalysis(testNow, receives, sales, onHand, DefaultConfig())

	s := out.DeadStock.Summary
	if s.TotalItems != 3 {
		t.Fatalf("totalItems = %d, want 3", s.TotalItems)
	}
	if s.Items120Days != 1 || s.Items60Days != 1 || s.ItemsFresh != 1 {
		t.Errorf("summary buckets = %+v", s)
	}
	// dress: cost 30 x 4 = 120; top: cost 15 x 8 = 120; belt: cost 8 x 5 = 40.
	if s.Value120Days != 120 || s.Value60Days != 120 || s.ValueFresh != 40 {
		t.Errorf("summary values = %+v", s)
	}
	if s.TotalValue != 280 {
		t.Errorf("totalValue = %v, want 280", s.TotalValue)
	}

	if len(out.DeadStock.Items) != 2 {
		t.Fatalf("listed items = %d, want 2 (fresh belt excluded)", len(out.DeadStock.Items))
	}
	if out.DeadStock.Items[0].Id != "dress-1" {
		t.Errorf("first listed = %q, want dress-1 (oldest)", out.DeadStock.Items[0].Id)
	}
	if out.DeadStock.Items[0].SuggestedMarkdown != "60%+ off or bundle/donate" {
		t.Errorf("markdown = %q", out.DeadStock.Items[0].SuggestedMarkdown)
	}
	if out.DeadStock.Items[1].QtySold != 2 {
		t.Errorf("top qtySold = %d, want 2", out.DeadStock.Items[1].QtySold)
	}

	if out.Stats.TotalItemsAnalyzed != 3 {
		t.Errorf("totalItemsAnalyzed = %d, want 3", out.Stats.TotalItemsAnalyzed)
	}
	if out.Stats.TotalDeadStockItems != 2 {
		t.Errorf("totalDeadStockItems = %d, want 2", out.Stats.TotalDeadStockItems)
	}
}
