package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Read models behind the dashboard screens. All functions are pure over a
// snapshot; formatting (CSV, spreadsheets) is left to callers.

// DayStats summarises the ACTIVE orders created on one calendar day.
type DayStats struct {
	Day            string  `json:"day"`
	Orders         int     `json:"orders"`
	OrderAmount    float64 `json:"orderAmount"` // Σ(total - discount)
	ReceivedAmount float64 `json:"receivedAmount"`
	DebtAmount     float64 `json:"debtAmount"`
	OpenBatches    int     `json:"openBatches"`
}

// DailyStats computes DayStats for the calendar day of day, in day's location.
func DailyStats(s Snapshot, day time.Time) DayStats {
	st := DayStats{Day: day.Format(time.DateOnly)}
	amount, received := decimal.Zero, decimal.Zero
	for _, o := range s.Orders {
		if o.Status != OrderActive || !onDay(o.CreatedAt, day) {
			continue
		}
		st.Orders++
		amount = amount.Add(dec(o.TotalAmount).Sub(dec(o.Discount)))
		received = received.Add(dec(o.ReceivedAmount))
	}
	for _, b := range s.Batches {
		if !b.IsClosed {
			st.OpenBatches++
		}
	}
	st.OrderAmount = amount.InexactFloat64()
	st.ReceivedAmount = received.InexactFloat64()
	st.DebtAmount = amount.Sub(received).InexactFloat64()
	return st
}

// Reconciliation is the cash position of a day, optionally for one batch.
type Reconciliation struct {
	Day      string                    `json:"day"`
	BatchID  string                    `json:"batchId,omitempty"`
	Income   float64                   `json:"income"`
	Expense  float64                   `json:"expense"`
	Net      float64                   `json:"net"`
	ByMethod map[PaymentMethod]float64 `json:"byMethod"`
}

// DailyReconciliation totals received money and expenses for a day. With a
// batchID, only orders touching one of the batch's products and expenses
// booked to the batch count.
func DailyReconciliation(s Snapshot, day time.Time, batchID string) Reconciliation {
	var products map[string]bool
	if batchID != "" {
		products = batchProducts(s, batchID)
	}

	income := decimal.Zero
	byMethod := make(map[PaymentMethod]decimal.Decimal, len(PaymentMethods))
	for _, o := range s.Orders {
		if o.Status != OrderActive || !onDay(o.CreatedAt, day) {
			continue
		}
		if products != nil && !touches(o, products) {
			continue
		}
		income = income.Add(dec(o.ReceivedAmount))
		byMethod[o.PaymentMethod] = byMethod[o.PaymentMethod].Add(dec(o.ReceivedAmount))
	}

	expense := decimal.Zero
	for _, e := range s.Expenses {
		if !onDay(e.Date, day) || (batchID != "" && e.BatchID != batchID) {
			continue
		}
		expense = expense.Add(dec(e.Amount))
	}

	rec := Reconciliation{
		Day:      day.Format(time.DateOnly),
		BatchID:  batchID,
		Income:   income.InexactFloat64(),
		Expense:  expense.InexactFloat64(),
		Net:      income.Sub(expense).InexactFloat64(),
		ByMethod: make(map[PaymentMethod]float64, len(PaymentMethods)),
	}
	for _, m := range PaymentMethods {
		rec.ByMethod[m] = byMethod[m].InexactFloat64()
	}
	return rec
}

func touches(o Order, products map[string]bool) bool {
	for _, item := range o.Items {
		if products[item.ProductID] {
			return true
		}
	}
	return false
}

// onDay reports whether an ISO timestamp falls on day's calendar date in
// day's location. Unparseable timestamps fall back to a date-prefix match.
func onDay(ts string, day time.Time) bool {
	want := day.Format(time.DateOnly)
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.In(day.Location()).Format(time.DateOnly) == want
	}
	return strings.HasPrefix(ts, want)
}

// LowStock lists products at or below their threshold, lowest stock first.
func LowStock(s Snapshot) []Product {
	out := []Product{}
	for _, p := range s.Products {
		threshold := p.LowStockThreshold
		if threshold == 0 {
			threshold = DefaultLowStockThreshold
		}
		if p.StockQty <= threshold {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StockQty < out[j].StockQty })
	return out
}

// ReceivablesReport lists customers who owe money, largest debt first.
type ReceivablesReport struct {
	Customers []Customer `json:"customers"`
	Total     float64    `json:"total"`
}

func Receivables(s Snapshot) ReceivablesReport {
	rep := ReceivablesReport{Customers: []Customer{}}
	total := decimal.Zero
	for _, c := range s.Customers {
		if c.TotalDebt > 0 {
			rep.Customers = append(rep.Customers, c)
			total = total.Add(dec(c.TotalDebt))
		}
	}
	sort.SliceStable(rep.Customers, func(i, j int) bool {
		return rep.Customers[i].TotalDebt > rep.Customers[j].TotalDebt
	})
	rep.Total = total.InexactFloat64()
	return rep
}
