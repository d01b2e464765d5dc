/*
lifecycle.go - Order create / cancel / delete

STATE MACHINE:
  (new) --AddOrder--> ACTIVE --CancelOrder--> CANCELLED
  ACTIVE    --DeleteOrder--> (removed, rolled back first)
  CANCELLED --DeleteOrder--> (removed, rollback already applied)

  CancelOrder is idempotent; CANCELLED never returns to ACTIVE.

EFFECTS OF APPLYING AN ORDER:
  stock:  product.stockQty -= item.qty, product.stockWeight -= item.netWeight
          (no floor; overselling drives stock negative)
  debt:   customer.totalDebt += DebtDelta(order), unless guest or delta == 0

  Rollback applies the opposite stock effect and subtracts DebtDelta
  recomputed from the order's stored totals, clamped at zero. If those
  totals were edited between add and cancel, rollback is not an exact
  inverse of what was added. This behaviour is kept as is.
*/
package ledger

import "github.com/shopspring/decimal"

// AddOrder records a sale as ACTIVE and applies its stock and debt effects.
// Missing id, orderNo, createdAt and denormalized names are filled in; the
// recorded order is returned.
func (s *Store) AddOrder(o Order) (Order, error) {
	err := s.update(func(next *Snapshot) error {
		o.ID = s.id(o.ID)
		if next.orderIndex(o.ID) >= 0 {
			return &DuplicateError{Kind: "order", ID: o.ID}
		}
		if o.OrderNo == "" {
			o.OrderNo = s.orderNo()
		}
		if o.CreatedAt == "" {
			o.CreatedAt = s.stamp()
		}
		if o.CustomerID == "" {
			o.CustomerID = GuestCustomerID
		}
		if !o.PaymentMethod.Valid() {
			o.PaymentMethod = PaymentOther
		}
		if o.CustomerName == "" {
			if c, ok := next.Customer(o.CustomerID); ok {
				o.CustomerName = c.Name
			}
		}
		o.Items = append([]OrderItem{}, o.Items...)
		for i := range o.Items {
			if o.Items[i].ProductName != "" {
				continue
			}
			if p, ok := next.Product(o.Items[i].ProductID); ok {
				o.Items[i].ProductName = p.Name
			}
		}
		o.Status = OrderActive

		applyStock(next, o.Items, -1)
		applyDebt(next, o.CustomerID, DebtDelta(o))

		next.Orders = append([]Order{o}, next.Orders...)
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// CancelOrder rolls back an ACTIVE order and marks it CANCELLED. Missing or
// already cancelled orders are a no-op.
func (s *Store) CancelOrder(id string) error {
	return s.update(func(next *Snapshot) error {
		i := next.orderIndex(id)
		if i < 0 || next.Orders[i].Status == OrderCancelled {
			return nil
		}
		rollback(next, next.Orders[i])
		next.Orders[i].Status = OrderCancelled
		return nil
	})
}

// DeleteOrder removes an order permanently, rolling it back first if it is
// still ACTIVE. Missing orders are a no-op.
func (s *Store) DeleteOrder(id string) error {
	return s.update(func(next *Snapshot) error {
		i := next.orderIndex(id)
		if i < 0 {
			return nil
		}
		if next.Orders[i].Status == OrderActive {
			rollback(next, next.Orders[i])
		}
		next.Orders = append(next.Orders[:i], next.Orders[i+1:]...)
		return nil
	})
}

func rollback(next *Snapshot, o Order) {
	applyStock(next, o.Items, +1)
	releaseDebt(next, o.CustomerID, DebtDelta(o))
}

// applyStock moves every item's qty and net weight in the given direction.
// Items referencing unknown products are skipped.
func applyStock(next *Snapshot, items []OrderItem, sign float64) {
	for _, item := range items {
		i := next.productIndex(item.ProductID)
		if i < 0 {
			continue
		}
		p := &next.Products[i]
		p.StockQty = addQty(p.StockQty, sign*item.Qty)
		p.StockWeight = addQty(p.StockWeight, sign*item.NetWeight)
	}
}

func applyDebt(next *Snapshot, customerID string, delta decimal.Decimal) {
	if !delta.IsPositive() || next.IsGuest(customerID) {
		return
	}
	if i := next.customerIndex(customerID); i >= 0 {
		next.Customers[i].TotalDebt = addMoney(next.Customers[i].TotalDebt, delta)
	}
}

func releaseDebt(next *Snapshot, customerID string, delta decimal.Decimal) {
	if !delta.IsPositive() || next.IsGuest(customerID) {
		return
	}
	if i := next.customerIndex(customerID); i >= 0 {
		next.Customers[i].TotalDebt = subMoneyClamped(next.Customers[i].TotalDebt, delta)
	}
}
