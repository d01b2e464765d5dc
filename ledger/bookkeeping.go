package ledger

import "fmt"

// AdjustStock overwrites a product's stock and baseline with a physical
// count. Order history is not consulted.
func (s *Store) AdjustStock(productID string, qty, weight, initialQty, initialWeight float64) error {
	return s.update(func(next *Snapshot) error {
		i := next.productIndex(productID)
		if i < 0 {
			return notFound("product", productID)
		}
		p := &next.Products[i]
		p.StockQty = qty
		p.StockWeight = weight
		p.InitialStockQty = initialQty
		p.InitialStockWeight = initialWeight
		return nil
	})
}

// AddExtraFee appends a fee to a batch.
func (s *Store) AddExtraFee(batchID string, fee ExtraFee) (ExtraFee, error) {
	err := s.update(func(next *Snapshot) error {
		i := next.batchIndex(batchID)
		if i < 0 {
			return notFound("batch", batchID)
		}
		fee.ID = s.id(fee.ID)
		for _, f := range next.Batches[i].ExtraFees {
			if f.ID == fee.ID {
				return &DuplicateError{Kind: "extra fee", ID: fee.ID}
			}
		}
		next.Batches[i].ExtraFees = append(next.Batches[i].ExtraFees, fee)
		return nil
	})
	if err != nil {
		return ExtraFee{}, err
	}
	return fee, nil
}

// RemoveExtraFee drops a fee from a batch by id. An unknown fee id is a
// no-op; an unknown batch is an error.
func (s *Store) RemoveExtraFee(batchID, feeID string) error {
	return s.update(func(next *Snapshot) error {
		i := next.batchIndex(batchID)
		if i < 0 {
			return notFound("batch", batchID)
		}
		fees := next.Batches[i].ExtraFees[:0]
		for _, f := range next.Batches[i].ExtraFees {
			if f.ID != feeID {
				fees = append(fees, f)
			}
		}
		next.Batches[i].ExtraFees = fees
		return nil
	})
}

// AddExpense records an expense. With a BatchID set, the same id is also
// appended to that batch's extra fees, named after the expense type.
func (s *Store) AddExpense(e Expense) (Expense, error) {
	err := s.update(func(next *Snapshot) error {
		e.ID = s.id(e.ID)
		for _, existing := range next.Expenses {
			if existing.ID == e.ID {
				return &DuplicateError{Kind: "expense", ID: e.ID}
			}
		}
		if e.Date == "" {
			e.Date = s.stamp()
		}
		if e.BatchID != "" {
			i := next.batchIndex(e.BatchID)
			if i < 0 {
				return notFound("batch", e.BatchID)
			}
			next.Batches[i].ExtraFees = append(next.Batches[i].ExtraFees, ExtraFee{
				ID:     e.ID,
				Name:   e.Type,
				Amount: e.Amount,
			})
		}
		next.Expenses = append([]Expense{e}, next.Expenses...)
		return nil
	})
	if err != nil {
		return Expense{}, err
	}
	return e, nil
}

// AddRepayment records a payment against a customer's debt. The debt is
// reduced by the amount and floored at zero.
func (s *Store) AddRepayment(r Repayment) (Repayment, error) {
	err := s.update(func(next *Snapshot) error {
		if r.Amount < 0 {
			return fmt.Errorf("%w: repayment amount %v is negative", ErrInvalidInput, r.Amount)
		}
		ci := next.customerIndex(r.CustomerID)
		if ci < 0 {
			return notFound("customer", r.CustomerID)
		}
		r.ID = s.id(r.ID)
		for _, existing := range next.Repayments {
			if existing.ID == r.ID {
				return &DuplicateError{Kind: "repayment", ID: r.ID}
			}
		}
		if r.CustomerName == "" {
			r.CustomerName = next.Customers[ci].Name
		}
		if r.Date == "" {
			r.Date = s.stamp()
		}
		c := &next.Customers[ci]
		c.TotalDebt = subMoneyClamped(c.TotalDebt, dec(r.Amount))
		next.Repayments = append([]Repayment{r}, next.Repayments...)
		return nil
	})
	if err != nil {
		return Repayment{}, err
	}
	return r, nil
}
