package analysis

import (
	"sort"
	"strconv"
	"time"

	"github.com/maisonops/boutique_backend/models"
	"github.com/shopspring/decimal"
)

const DefaultSalesWindowDays = 90

type PeriodRevenue struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
	Qty     int     `json:"qty"`
}

type GroupRevenue struct {
	Name    string  `json:"name"`
	Revenue float64 `json:"revenue"`
	Qty     int     `json:"qty"`
}

type SalesAnalysis struct {
	ByDayOfWeek       []PeriodRevenue `json:"byDayOfWeek"`
	ByHour            []PeriodRevenue `json:"byHour"`
	TopCategories     []GroupRevenue  `json:"topCategories"`
	TopVendors        []GroupRevenue  `json:"topVendors"`
	TotalRevenue      float64         `json:"totalRevenue"`
	TotalTransactions int             `json:"totalTransactions"`
	WindowDays        int             `json:"windowDays"`
}

var weekdayOrder = []string{
	time.Sunday.String(), time.Monday.String(), time.Tuesday.String(),
	time.Wednesday.String(), time.Thursday.String(), time.Friday.String(),
	time.Saturday.String(),
}

// BuildSalesAnalysis rolls the window's sale lines up into when-do-we-sell
// and what-sells views for the dashboard.
func BuildSalesAnalysis(sales []models.SaleEvent, windowDays int) SalesAnalysis {
	type bucket struct {
		revenue decimal.Decimal
		qty     int
	}

	byDay := map[string]*bucket{}
	byHour := map[int]*bucket{}
	byCategory := map[string]*bucket{}
	byVendor := map[string]*bucket{}
	tickets := map[string]bool{}
	total := decimal.Zero

	add := func(m map[string]*bucket, key string, ev models.SaleEvent) {
		if key == "" {
			return
		}
		b := m[key]
		if b == nil {
			b = &bucket{}
			m[key] = b
		}
		b.revenue = b.revenue.Add(ev.TotalAmount)
		b.qty += ev.Qty
	}

	for _, ev := range sales {
		add(byDay, ev.DayOfWeek, ev)
		hb := byHour[ev.HourOfDay]
		if hb == nil {
			hb = &bucket{}
			byHour[ev.HourOfDay] = hb
		}
		hb.revenue = hb.revenue.Add(ev.TotalAmount)
		hb.qty += ev.Qty

		add(byCategory, ev.Category, ev)
		add(byVendor, ev.Vendor, ev)
		tickets[ev.TicketId] = true
		total = total.Add(ev.TotalAmount)
	}

	dayEntries := make([]PeriodRevenue, 0, len(byDay))
	for _, day := range weekdayOrder {
		if b := byDay[day]; b != nil {
			dayEntries = append(dayEntries, PeriodRevenue{Period: day, Revenue: money(b.revenue), Qty: b.qty})
		}
	}

	hourEntries := make([]PeriodRevenue, 0, len(byHour))
	for hour := 0; hour < 24; hour++ {
		if b := byHour[hour]; b != nil {
			hourEntries = append(hourEntries, PeriodRevenue{
				Period:  hourLabel(hour),
				Revenue: money(b.revenue),
				Qty:     b.qty,
			})
		}
	}

	rank := func(m map[string]*bucket, limit int) []GroupRevenue {
		entries := make([]GroupRevenue, 0, len(m))
		for name, b := range m {
			entries = append(entries, GroupRevenue{Name: name, Revenue: money(b.revenue), Qty: b.qty})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Revenue != entries[j].Revenue {
				return entries[i].Revenue > entries[j].Revenue
			}
			return entries[i].Name < entries[j].Name
		})
		if len(entries) > limit {
			entries = entries[:limit]
		}
		return entries
	}

	return SalesAnalysis{
		ByDayOfWeek:       dayEntries,
		ByHour:            hourEntries,
		TopCategories:     rank(byCategory, 10),
		TopVendors:        rank(byVendor, 10),
		TotalRevenue:      money(total),
		TotalTransactions: len(tickets),
		WindowDays:        windowDays,
	}
}

func hourLabel(hour int) string {
	switch {
	case hour == 0:
		return "12am"
	case hour < 12:
		return strconv.Itoa(hour) + "am"
	case hour == 12:
		return "12pm"
	default:
		return strconv.Itoa(hour-12) + "pm"
	}
}
