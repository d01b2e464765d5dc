package ledger

import "github.com/shopspring/decimal"

// BatchSummary is the cost / sales position of one batch.
type BatchSummary struct {
	BatchID     string  `json:"batchId"`
	PlateNumber string  `json:"plateNumber"`
	BatchNo     int     `json:"batchNo"`
	IsClosed    bool    `json:"isClosed"`
	Cost        float64 `json:"cost"`
	ExtraFees   float64 `json:"extraFees"`
	TotalCost   float64 `json:"totalCost"`
	TotalSales  float64 `json:"totalSales"`
	Profit      float64 `json:"profit"`
	Progress    float64 `json:"progress"` // percent of cost recovered, capped at 100
}

var hundred = decimal.NewFromInt(100)

// SummarizeBatch derives totals for one batch from the snapshot:
//
//	totalCost  = cost + Σ extraFees
//	totalSales = Σ subtotal of ACTIVE order items whose product is in the batch
//	profit     = totalSales - totalCost
//	progress   = min(100, totalSales / totalCost * 100), 0 when totalCost is 0
func SummarizeBatch(s Snapshot, batchID string) (BatchSummary, error) {
	b, ok := s.Batch(batchID)
	if !ok {
		return BatchSummary{}, notFound("batch", batchID)
	}
	return summarize(s, b, batchProducts(s, batchID)), nil
}

// SummarizeBatches returns a summary for every batch in snapshot order.
func SummarizeBatches(s Snapshot) []BatchSummary {
	out := make([]BatchSummary, 0, len(s.Batches))
	for _, b := range s.Batches {
		out = append(out, summarize(s, b, batchProducts(s, b.ID)))
	}
	return out
}

func batchProducts(s Snapshot, batchID string) map[string]bool {
	ids := make(map[string]bool)
	for _, p := range s.Products {
		if p.BatchID == batchID {
			ids[p.ID] = true
		}
	}
	return ids
}

func summarize(s Snapshot, b Batch, products map[string]bool) BatchSummary {
	fees := decimal.Zero
	for _, f := range b.ExtraFees {
		fees = fees.Add(dec(f.Amount))
	}
	totalCost := dec(b.Cost).Add(fees)

	sales := decimal.Zero
	for _, o := range s.Orders {
		if o.Status != OrderActive {
			continue
		}
		for _, item := range o.Items {
			if products[item.ProductID] {
				sales = sales.Add(dec(item.Subtotal))
			}
		}
	}

	progress := decimal.Zero
	if !totalCost.IsZero() {
		progress = decimal.Min(hundred, sales.Div(totalCost).Mul(hundred))
	}

	return BatchSummary{
		BatchID:     b.ID,
		PlateNumber: b.PlateNumber,
		BatchNo:     b.BatchNo,
		IsClosed:    b.IsClosed,
		Cost:        b.Cost,
		ExtraFees:   fees.InexactFloat64(),
		TotalCost:   totalCost.InexactFloat64(),
		TotalSales:  sales.InexactFloat64(),
		Profit:      sales.Sub(totalCost).InexactFloat64(),
		Progress:    progress.InexactFloat64(),
	}
}
