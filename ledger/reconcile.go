/*
reconcile.go - Canonical debt rebuild

PURPOSE:
  Customer.TotalDebt is a cached value maintained incrementally by the
  Store. RecalculateAllDebts rebuilds it from scratch out of the order and
  repayment history. The Sanitizer runs it on every import, so any drift in
  the cached figures heals itself on the next load.

ALGORITHM:
  for each ACTIVE order of a non-guest customer:
      acc[customer] += round2(max(0, total - discount - received))
  for each repayment:
      acc[customer] -= amount
  totalDebt = max(0, acc[customer])

  Clamping happens once, at the end. The incremental path clamps on every
  repayment, so an overpayment followed by a new order can make the cache
  differ from the rebuild until the next import.

PROPERTIES:
  - Pure: inputs are not modified
  - Total: unknown customer ids are ignored
  - Idempotent: RecalculateAllDebts(o, r, RecalculateAllDebts(o, r, c)) equals
    RecalculateAllDebts(o, r, c), since input TotalDebt is never read
*/
package ledger

import "github.com/shopspring/decimal"

// RecalculateAllDebts returns a copy of customers with TotalDebt rebuilt
// from the full history.
func RecalculateAllDebts(orders []Order, repayments []Repayment, customers []Customer) []Customer {
	acc := make(map[string]decimal.Decimal, len(customers))
	guests := make(map[string]bool)
	for _, c := range customers {
		acc[c.ID] = decimal.Zero
		if c.IsGuest || c.ID == GuestCustomerID {
			guests[c.ID] = true
		}
	}

	for _, o := range orders {
		if o.Status != OrderActive || guests[o.CustomerID] || o.CustomerID == GuestCustomerID {
			continue
		}
		cur, ok := acc[o.CustomerID]
		if !ok {
			continue
		}
		acc[o.CustomerID] = cur.Add(DebtDelta(o))
	}

	for _, r := range repayments {
		cur, ok := acc[r.CustomerID]
		if !ok {
			continue
		}
		acc[r.CustomerID] = cur.Sub(dec(r.Amount))
	}

	out := make([]Customer, len(customers))
	for i, c := range customers {
		debt := clampZero(acc[c.ID])
		if guests[c.ID] {
			debt = decimal.Zero
		}
		c.TotalDebt = debt.InexactFloat64()
		out[i] = c
	}
	return out
}

// Reconcile rebuilds every customer's debt inside the snapshot.
func (s Snapshot) Reconcile() Snapshot {
	out := s.Clone()
	out.Customers = RecalculateAllDebts(out.Orders, out.Repayments, out.Customers)
	return out
}

// DebtDrift is a customer whose cached debt differed from the rebuilt value.
type DebtDrift struct {
	CustomerID string  `json:"customerId"`
	Name       string  `json:"name"`
	Cached     float64 `json:"cached"`
	Rebuilt    float64 `json:"rebuilt"`
}

// ReconcileDebts replaces every cached debt with the rebuilt value and
// reports the customers that changed.
func (s *Store) ReconcileDebts() []DebtDrift {
	drift := []DebtDrift{}
	_ = s.update(func(next *Snapshot) error {
		rebuilt := RecalculateAllDebts(next.Orders, next.Repayments, next.Customers)
		for i, c := range rebuilt {
			if cached := next.Customers[i].TotalDebt; cached != c.TotalDebt {
				drift = append(drift, DebtDrift{CustomerID: c.ID, Name: c.Name, Cached: cached, Rebuilt: c.TotalDebt})
			}
		}
		next.Customers = rebuilt
		return nil
	})
	return drift
}
