package ledger

import (
	"fmt"
	"slices"
	"strings"
)

// =============================================================================
// PRODUCTS
// =============================================================================

// AddProduct registers a product. When no baseline is given, the current
// stock becomes the baseline.
func (s *Store) AddProduct(p Product) (Product, error) {
	err := s.update(func(next *Snapshot) error {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: product name is required", ErrInvalidInput)
		}
		p.ID = s.id(p.ID)
		if next.productIndex(p.ID) >= 0 {
			return &DuplicateError{Kind: "product", ID: p.ID}
		}
		if p.BatchID != "" && next.batchIndex(p.BatchID) < 0 {
			return notFound("batch", p.BatchID)
		}
		if !p.PricingMode.Valid() {
			p.PricingMode = PricingWeight
		}
		if p.InitialStockQty == 0 && p.InitialStockWeight == 0 {
			p.InitialStockQty = p.StockQty
			p.InitialStockWeight = p.StockWeight
		}
		next.Products = append(next.Products, p)
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// UpdateProduct replaces a product record. Historical orders keep the name
// they were created with.
func (s *Store) UpdateProduct(p Product) error {
	return s.update(func(next *Snapshot) error {
		i := next.productIndex(p.ID)
		if i < 0 {
			return notFound("product", p.ID)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: product name is required", ErrInvalidInput)
		}
		if !p.PricingMode.Valid() {
			p.PricingMode = next.Products[i].PricingMode
		}
		next.Products[i] = p
		return nil
	})
}

// DeleteProduct removes a product. Orders referencing it are left as they are.
func (s *Store) DeleteProduct(id string) error {
	return s.update(func(next *Snapshot) error {
		i := next.productIndex(id)
		if i < 0 {
			return nil
		}
		next.Products = append(next.Products[:i], next.Products[i+1:]...)
		return nil
	})
}

// =============================================================================
// BATCHES
// =============================================================================

// AddBatch registers an inbound batch, newest first. A zero BatchNo is
// assigned the next sequence number.
func (s *Store) AddBatch(b Batch) (Batch, error) {
	err := s.update(func(next *Snapshot) error {
		if strings.TrimSpace(b.PlateNumber) == "" {
			return fmt.Errorf("%w: plate number is required", ErrInvalidInput)
		}
		b.ID = s.id(b.ID)
		if next.batchIndex(b.ID) >= 0 {
			return &DuplicateError{Kind: "batch", ID: b.ID}
		}
		if b.InboundDate == "" {
			b.InboundDate = s.stamp()
		}
		if b.BatchNo == 0 {
			b.BatchNo = nextBatchNo(next.Batches)
		}
		b.ExtraFees = append([]ExtraFee{}, b.ExtraFees...)
		next.Batches = append([]Batch{b}, next.Batches...)
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	return b, nil
}

func nextBatchNo(batches []Batch) int {
	n := len(batches)
	for _, b := range batches {
		if b.BatchNo > n {
			n = b.BatchNo
		}
	}
	return n + 1
}

// UpdateBatch replaces a batch's descriptive fields. Extra fees are managed
// through AddExtraFee / RemoveExtraFee and are kept when b.ExtraFees is nil.
func (s *Store) UpdateBatch(b Batch) error {
	return s.update(func(next *Snapshot) error {
		i := next.batchIndex(b.ID)
		if i < 0 {
			return notFound("batch", b.ID)
		}
		if strings.TrimSpace(b.PlateNumber) == "" {
			return fmt.Errorf("%w: plate number is required", ErrInvalidInput)
		}
		if b.ExtraFees == nil {
			b.ExtraFees = next.Batches[i].ExtraFees
		}
		next.Batches[i] = b
		return nil
	})
}

// CloseBatch marks a batch as sold out.
func (s *Store) CloseBatch(id string) error {
	return s.update(func(next *Snapshot) error {
		i := next.batchIndex(id)
		if i < 0 {
			return notFound("batch", id)
		}
		next.Batches[i].IsClosed = true
		return nil
	})
}

// DeleteBatch removes a batch and every product that belongs to it.
// Orders that still reference those products are not checked; their
// productIds are left dangling.
func (s *Store) DeleteBatch(id string) error {
	return s.update(func(next *Snapshot) error {
		i := next.batchIndex(id)
		if i < 0 {
			return nil
		}
		next.Batches = append(next.Batches[:i], next.Batches[i+1:]...)

		kept := next.Products[:0]
		for _, p := range next.Products {
			if p.BatchID != id {
				kept = append(kept, p)
			}
		}
		next.Products = kept
		return nil
	})
}

// =============================================================================
// CUSTOMERS
// =============================================================================

// AddCustomer registers a customer. Debt always starts at zero; the guest
// id is reserved.
func (s *Store) AddCustomer(c Customer) (Customer, error) {
	err := s.update(func(next *Snapshot) error {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: customer name is required", ErrInvalidInput)
		}
		c.ID = s.id(c.ID)
		if next.customerIndex(c.ID) >= 0 {
			return &DuplicateError{Kind: "customer", ID: c.ID}
		}
		c.TotalDebt = 0
		c.IsGuest = false
		next.Customers = append(next.Customers, c)
		return nil
	})
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

// =============================================================================
// PAYEES
// =============================================================================

// AddPayee appends a payee name. Empty and duplicate names are ignored.
func (s *Store) AddPayee(name string) error {
	name = strings.TrimSpace(name)
	return s.update(func(next *Snapshot) error {
		if name == "" || slices.Contains(next.Payees, name) {
			return nil
		}
		next.Payees = append(next.Payees, name)
		return nil
	})
}

// RenamePayee renames a payee and rewrites it on every order.
func (s *Store) RenamePayee(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	return s.update(func(next *Snapshot) error {
		if newName == "" {
			return fmt.Errorf("%w: payee name is required", ErrInvalidInput)
		}
		if !slices.Contains(next.Payees, oldName) {
			return notFound("payee", oldName)
		}
		if oldName != newName && slices.Contains(next.Payees, newName) {
			return &DuplicateError{Kind: "payee", ID: newName}
		}
		for i, p := range next.Payees {
			if p == oldName {
				next.Payees[i] = newName
			}
		}
		for i := range next.Orders {
			if next.Orders[i].Payee == oldName {
				next.Orders[i].Payee = newName
			}
		}
		return nil
	})
}

// DeletePayee removes a payee name. Historical records keep it.
func (s *Store) DeletePayee(name string) error {
	return s.update(func(next *Snapshot) error {
		kept := next.Payees[:0]
		for _, p := range next.Payees {
			if p != name {
				kept = append(kept, p)
			}
		}
		next.Payees = kept
		return nil
	})
}
