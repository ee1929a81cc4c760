package analysis

import (
	"os"
	"sort"
	"time"

	"github.com/maisonops/boutique_backend/models"
	"github.com/shopspring/decimal"
)

const (
	BucketFresh     = "fresh"
	BucketWatch     = "watch"
	BucketSlow      = "slow"
	BucketDead      = "dead"
	BucketEmergency = "emergency"
)

// Aging thresholds in days since the most recent receipt. Evaluated in
// descending order; first match wins.
const (
	ThresholdEmergency = 120
	ThresholdDead      = 90
	ThresholdSlow      = 60
	ThresholdWatch     = 45
)

// VelocityWindowDays bounds the sale history considered for sell-through
// velocity. VelocityMinSample is the smallest group worth reporting.
const (
	VelocityWindowDays = 180
	VelocityMinSample  = 3
)

var storeMetricWindows = []int{30, 45, 60, 90}

// Config carries the pricing fallback ratios. These are business
// assumptions, not derived values: an item missing a sale price is assumed
// to retail at 2.5x cost, and one missing a cost to carry a 40% cost basis.
type Config struct {
	PriceMarkupRatio decimal.Decimal
	CostRatio        decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		PriceMarkupRatio: decimal.NewFromFloat(2.5),
		CostRatio:        decimal.NewFromFloat(0.4),
	}
}

// ConfigFromEnv returns DefaultConfig with PRICE_MARKUP_RATIO and COST_RATIO
// overrides applied when set and parseable.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("PRICE_MARKUP_RATIO"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			cfg.PriceMarkupRatio = d
		}
	}
	if v := os.Getenv("COST_RATIO"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			cfg.CostRatio = d
		}
	}
	return cfg
}

type ItemAging struct {
	Id                string  `json:"id"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	Vendor            string  `json:"vendor"`
	QtyReceived       int     `json:"qtyReceived"`
	QtySold           int     `json:"qtySold"`
	QtyRemaining      int     `json:"qtyRemaining"`
	Price             float64 `json:"price"`
	RetailValue       float64 `json:"retailValue"`
	CostValue         float64 `json:"costValue"`
	ReceivedDate      string  `json:"receivedDate"`
	DaysSinceReceived int     `json:"daysSinceReceived"`
	Bucket            string  `json:"bucket"`
	SuggestedMarkdown string  `json:"suggestedMarkdown"`
}

type DeadStockSummary struct {
	ItemsFresh   int     `json:"itemsFresh"`
	ItemsWatch   int     `json:"itemsWatch"`
	Items60Days  int     `json:"items60Days"`
	Items90Days  int     `json:"items90Days"`
	Items120Days int     `json:"items120Days"`
	ValueFresh   float64 `json:"valueFresh"`
	ValueWatch   float64 `json:"valueWatch"`
	Value60Days  float64 `json:"value60Days"`
	Value90Days  float64 `json:"value90Days"`
	Value120Days float64 `json:"value120Days"`
	TotalItems   int     `json:"totalItems"`
	TotalValue   float64 `json:"totalValue"`
}

type StoreMetrics struct {
	Received30Days    float64 `json:"received30Days"`
	Received45Days    float64 `json:"received45Days"`
	Received60Days    float64 `json:"received60Days"`
	Received90Days    float64 `json:"received90Days"`
	StillOnHand30Days float64 `json:"stillOnHand30Days"`
	StillOnHand45Days float64 `json:"stillOnHand45Days"`
	StillOnHand60Days float64 `json:"stillOnHand60Days"`
	StillOnHand90Days float64 `json:"stillOnHand90Days"`
	PctOnHand30Days   int     `json:"pctOnHand30Days"`
	PctOnHand45Days   int     `json:"pctOnHand45Days"`
	PctOnHand60Days   int     `json:"pctOnHand60Days"`
	PctOnHand90Days   int     `json:"pctOnHand90Days"`
}

type VelocityEntry struct {
	Name          string  `json:"name"`
	AvgDaysToSell float64 `json:"avgDaysToSell"`
	ItemsSold     int     `json:"itemsSold"`
}

type DeadStock struct {
	Summary      DeadStockSummary `json:"summary"`
	StoreMetrics StoreMetrics     `json:"storeMetrics"`
	Items        []ItemAging      `json:"items"`
}

type Velocity struct {
	ByCategory []VelocityEntry `json:"byCategory"`
	ByVendor   []VelocityEntry `json:"byVendor"`
}

type Stats struct {
	TotalItemsAnalyzed        int `json:"totalItemsAnalyzed"`
	TotalItemsWithReceiveData int `json:"totalItemsWithReceiveData"`
	TotalDeadStockItems       int `json:"totalDeadStockItems"`
}

type InventoryAnalysis struct {
	DeadStock DeadStock `json:"deadStock"`
	Velocity  Velocity  `json:"velocity"`
	Stats     Stats     `json:"stats"`
}

// itemReceiveAgg collapses an item's receipt timeline. The most recent
// receipt wins for the staleness basis: a reorder implies the prior stock
// sold through, so age is measured from the latest restock, not the first.
type itemReceiveAgg struct {
	lastReceivedAt time.Time
	qtyReceived    int
	unitCost       decimal.Decimal
	name           string
	category       string
	vendor         string
}

type itemSaleAgg struct {
	qtySold   int
	unitPrice decimal.Decimal

	// window-bounded first/last sale, for velocity
	firstSaleInWindow time.Time
	lastSaleInWindow  time.Time
	soldInWindow      bool
}

// BuildInventoryAnalysis derives the full aging/velocity snapshot from the
// normalized event rows and a live on-hand map. It is a pure function of its
// inputs; 'now' is passed in so the bucketing is reproducible.
func BuildInventoryAnalysis(now time.Time, receives []models.ReceiveEvent, sales []models.SaleEvent, onHand map[string]int, cfg Config) InventoryAnalysis {
	if cfg.PriceMarkupRatio.IsZero() {
		cfg.PriceMarkupRatio = DefaultConfig().PriceMarkupRatio
	}
	if cfg.CostRatio.IsZero() {
		cfg.CostRatio = DefaultConfig().CostRatio
	}

	receiveAggs := aggregateReceives(receives)
	saleAggs := aggregateSales(sales, now)

	analyzed := map[string]bool{}
	for id := range receiveAggs {
		analyzed[id] = true
	}
	for id := range saleAggs {
		analyzed[id] = true
	}

	var (
		summary DeadStockSummary
		items   []ItemAging
	)

	for itemId, recv := range receiveAggs {
		qtyOnHand := onHand[itemId]
		if qtyOnHand <= 0 {
			// Sold out, not dead.
			continue
		}

		sale := saleAggs[itemId]
		price, cost := estimatePriceAndCost(recv, sale, cfg)

		daysSinceReceived := daysBetween(recv.lastReceivedAt, now)
		costValue := cost.Mul(decimal.NewFromInt(int64(qtyOnHand)))
		retailValue := price.Mul(decimal.NewFromInt(int64(qtyOnHand)))

		bucket, markdown := classifyBucket(daysSinceReceived)
		summary.TotalItems++
		summary.TotalValue += money(costValue)
		switch bucket {
		case BucketEmergency:
			summary.Items120Days++
			summary.Value120Days += money(costValue)
		case BucketDead:
			summary.Items90Days++
			summary.Value90Days += money(costValue)
		case BucketSlow:
			summary.Items60Days++
			summary.Value60Days += money(costValue)
		case BucketWatch:
			summary.ItemsWatch++
			summary.ValueWatch += money(costValue)
		default:
			summary.ItemsFresh++
			summary.ValueFresh += money(costValue)
		}

		if daysSinceReceived < ThresholdWatch {
			// Fresh items count toward the summary but are not listed.
			continue
		}

		qtySold := 0
		if sale != nil {
			qtySold = sale.qtySold
		}
		items = append(items, ItemAging{
			Id:                itemId,
			Name:              recv.name,
			Category:          recv.category,
			Vendor:            recv.vendor,
			QtyReceived:       recv.qtyReceived,
			QtySold:           qtySold,
			QtyRemaining:      qtyOnHand,
			Price:             money(price),
			RetailValue:       money(retailValue),
			CostValue:         money(costValue),
			ReceivedDate:      recv.lastReceivedAt.Format("2006-01-02"),
			DaysSinceReceived: daysSinceReceived,
			Bucket:            bucket,
			SuggestedMarkdown: markdown,
		})
	}

	// Oldest exposure first; cost value breaks ties so the review order is
	// stable across runs.
	sort.Slice(items, func(i, j int) bool {
		if items[i].DaysSinceReceived != items[j].DaysSinceReceived {
			return items[i].DaysSinceReceived > items[j].DaysSinceReceived
		}
		if items[i].CostValue != items[j].CostValue {
			return items[i].CostValue > items[j].CostValue
		}
		return items[i].Id < items[j].Id
	})

	summary.ValueFresh = round2(summary.ValueFresh)
	summary.ValueWatch = round2(summary.ValueWatch)
	summary.Value60Days = round2(summary.Value60Days)
	summary.Value90Days = round2(summary.Value90Days)
	summary.Value120Days = round2(summary.Value120Days)
	summary.TotalValue = round2(summary.TotalValue)

	return InventoryAnalysis{
		DeadStock: DeadStock{
			Summary:      summary,
			StoreMetrics: buildStoreMetrics(now, receives, receiveAggs, saleAggs, onHand, cfg),
			Items:        items,
		},
		Velocity: buildVelocity(sales, saleAggs),
		Stats: Stats{
			TotalItemsAnalyzed:        len(analyzed),
			TotalItemsWithReceiveData: len(receiveAggs),
			TotalDeadStockItems:       len(items),
		},
	}
}

func aggregateReceives(receives []models.ReceiveEvent) map[string]*itemReceiveAgg {
	aggs := map[string]*itemReceiveAgg{}
	for _, ev := range receives {
		agg := aggs[ev.ItemId]
		if agg == nil {
			agg = &itemReceiveAgg{}
			aggs[ev.ItemId] = agg
		}
		agg.qtyReceived += ev.QtyReceived
		if ev.UnitCost.GreaterThan(agg.unitCost) {
			agg.unitCost = ev.UnitCost
		}
		if !ev.ReceivedAt.Before(agg.lastReceivedAt) {
			agg.lastReceivedAt = ev.ReceivedAt
			agg.name = ev.ItemName
			agg.category = ev.Category
			agg.vendor = ev.Vendor
		}
	}
	return aggs
}

func aggregateSales(sales []models.SaleEvent, now time.Time) map[string]*itemSaleAgg {
	windowStart := now.AddDate(0, 0, -VelocityWindowDays)
	aggs := map[string]*itemSaleAgg{}
	for _, ev := range sales {
		agg := aggs[ev.ItemId]
		if agg == nil {
			agg = &itemSaleAgg{}
			aggs[ev.ItemId] = agg
		}
		agg.qtySold += ev.Qty
		if ev.UnitPrice.GreaterThan(agg.unitPrice) {
			agg.unitPrice = ev.UnitPrice
		}
		if ev.SoldAt.Before(windowStart) {
			continue
		}
		if !agg.soldInWindow || ev.SoldAt.Before(agg.firstSaleInWindow) {
			agg.firstSaleInWindow = ev.SoldAt
		}
		if !agg.soldInWindow || ev.SoldAt.After(agg.lastSaleInWindow) {
			agg.lastSaleInWindow = ev.SoldAt
		}
		agg.soldInWindow = true
	}
	return aggs
}

func estimatePriceAndCost(recv *itemReceiveAgg, sale *itemSaleAgg, cfg Config) (decimal.Decimal, decimal.Decimal) {
	var price decimal.Decimal
	if sale != nil {
		price = sale.unitPrice
	}
	cost := recv.unitCost

	// Receiving and sales data may reference an item inconsistently, so
	// either side can be missing.
	if price.IsZero() && !cost.IsZero() {
		price = cost.Mul(cfg.PriceMarkupRatio)
	}
	if cost.IsZero() && !price.IsZero() {
		cost = price.Mul(cfg.CostRatio)
	}
	return price, cost
}

func classifyBucket(daysSinceReceived int) (string, string) {
	switch {
	case daysSinceReceived >= ThresholdEmergency:
		return BucketEmergency, "60%+ off or bundle/donate"
	case daysSinceReceived >= ThresholdDead:
		return BucketDead, "40-50% off"
	case daysSinceReceived >= ThresholdSlow:
		return BucketSlow, "20-30% off"
	case daysSinceReceived >= ThresholdWatch:
		return BucketWatch, "watch closely"
	default:
		return BucketFresh, ""
	}
}

// buildStoreMetrics reports, per lookback window, the cost-basis value
// received versus still on hand, regardless of the items' current buckets.
// A leading indicator of sell-through health.
func buildStoreMetrics(now time.Time, receives []models.ReceiveEvent, receiveAggs map[string]*itemReceiveAgg, saleAggs map[string]*itemSaleAgg, onHand map[string]int, cfg Config) StoreMetrics {
	received := map[int]decimal.Decimal{}
	stillOnHand := map[int]decimal.Decimal{}

	// Qty received per item per window.
	receivedQty := map[int]map[string]int{}
	for _, w := range storeMetricWindows {
		receivedQty[w] = map[string]int{}
	}
	for _, ev := range receives {
		age := daysBetween(ev.ReceivedAt, now)
		for _, w := range storeMetricWindows {
			if age <= w {
				receivedQty[w][ev.ItemId] += ev.QtyReceived
			}
		}
	}

	for _, w := range storeMetricWindows {
		for itemId, qty := range receivedQty[w] {
			recv := receiveAggs[itemId]
			if recv == nil || qty <= 0 {
				continue
			}
			_, cost := estimatePriceAndCost(recv, saleAggs[itemId], cfg)
			received[w] = received[w].Add(cost.Mul(decimal.NewFromInt(int64(qty))))
			if qtyOnHand := onHand[itemId]; qtyOnHand > 0 {
				stillOnHand[w] = stillOnHand[w].Add(cost.Mul(decimal.NewFromInt(int64(qtyOnHand))))
			}
		}
	}

	pct := func(w int) int {
		if received[w].IsZero() {
			return 0
		}
		ratio := stillOnHand[w].Div(received[w]).Mul(decimal.NewFromInt(100))
		return int(ratio.Round(0).IntPart())
	}

	return StoreMetrics{
		Received30Days:    money(received[30]),
		Received45Days:    money(received[45]),
		Received60Days:    money(received[60]),
		Received90Days:    money(received[90]),
		StillOnHand30Days: money(stillOnHand[30]),
		StillOnHand45Days: money(stillOnHand[45]),
		StillOnHand60Days: money(stillOnHand[60]),
		StillOnHand90Days: money(stillOnHand[90]),
		PctOnHand30Days:   pct(30),
		PctOnHand45Days:   pct(45),
		PctOnHand60Days:   pct(60),
		PctOnHand90Days:   pct(90),
	}
}

// buildVelocity ranks categories and vendors by mean days-to-sell over the
// velocity window. Single-sale items carry no time span and are discarded;
// groups under the sample floor are dropped entirely.
func buildVelocity(sales []models.SaleEvent, saleAggs map[string]*itemSaleAgg) Velocity {
	categoryByItem := map[string]string{}
	vendorByItem := map[string]string{}
	for _, ev := range sales {
		if _, ok := categoryByItem[ev.ItemId]; !ok && ev.Category != "" {
			categoryByItem[ev.ItemId] = ev.Category
		}
		if _, ok := vendorByItem[ev.ItemId]; !ok && ev.Vendor != "" {
			vendorByItem[ev.ItemId] = ev.Vendor
		}
	}

	type groupAgg struct {
		totalDays float64
		items     int
	}
	byCategory := map[string]*groupAgg{}
	byVendor := map[string]*groupAgg{}

	for itemId, agg := range saleAggs {
		if !agg.soldInWindow {
			continue
		}
		span := agg.lastSaleInWindow.Sub(agg.firstSaleInWindow)
		if span <= 0 {
			// A single sale carries no velocity signal.
			continue
		}
		daysToSell := span.Hours() / 24

		if category := categoryByItem[itemId]; category != "" {
			g := byCategory[category]
			if g == nil {
				g = &groupAgg{}
				byCategory[category] = g
			}
			g.totalDays += daysToSell
			g.items++
		}
		if vendor := vendorByItem[itemId]; vendor != "" {
			g := byVendor[vendor]
			if g == nil {
				g = &groupAgg{}
				byVendor[vendor] = g
			}
			g.totalDays += daysToSell
			g.items++
		}
	}

	rank := func(groups map[string]*groupAgg) []VelocityEntry {
		entries := make([]VelocityEntry, 0, len(groups))
		for name, g := range groups {
			if g.items < VelocityMinSample {
				continue
			}
			entries = append(entries, VelocityEntry{
				Name:          name,
				AvgDaysToSell: round1(g.totalDays / float64(g.items)),
				ItemsSold:     g.items,
			})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].AvgDaysToSell != entries[j].AvgDaysToSell {
				return entries[i].AvgDaysToSell < entries[j].AvgDaysToSell
			}
			return entries[i].Name < entries[j].Name
		})
		return entries
	}

	return Velocity{
		ByCategory: rank(byCategory),
		ByVendor:   rank(byVendor),
	}
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func round1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}
