package ledger_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/trade-ledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var march10 = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return march10 }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

// newSeededStore returns a store with one batch (b-1), two products in it
// (p-apple by weight, p-melon by piece) and one regular customer (c-1).
func newSeededStore(t *testing.T) *ledger.Store {
	t.Helper()
	s := ledger.NewStore(ledger.WithClock(fixedClock), ledger.WithIDGenerator(sequentialIDs()))

	_, err := s.AddBatch(ledger.Batch{ID: "b-1", PlateNumber: "京A12345", Cost: 1000})
	require.NoError(t, err)
	_, err = s.AddProduct(ledger.Product{
		ID: "p-apple", Name: "Apple", PricingMode: ledger.PricingWeight,
		StockQty: 50, StockWeight: 1000, BatchID: "b-1", SellingPrice: 3.5,
	})
	require.NoError(t, err)
	_, err = s.AddProduct(ledger.Product{
		ID: "p-melon", Name: "Melon", PricingMode: ledger.PricingPiece,
		StockQty: 30, BatchID: "b-1", SellingPrice: 12,
	})
	require.NoError(t, err)
	_, err = s.AddCustomer(ledger.Customer{ID: "c-1", Name: "Zhang", Phone: "138"})
	require.NoError(t, err)
	return s
}

func saleOrder(id, customerID string, total, discount, received float64) ledger.Order {
	return ledger.Order{
		ID:         id,
		CustomerID: customerID,
		Items: []ledger.OrderItem{
			{ProductID: "p-apple", Qty: 2, GrossWeight: 42, TareWeight: 2, NetWeight: 40, UnitPrice: 1.5, Subtotal: 60},
			{ProductID: "p-melon", Qty: 4, UnitPrice: 10, Subtotal: 40},
		},
		TotalAmount:    total,
		Discount:       discount,
		ReceivedAmount: received,
		PaymentMethod:  ledger.PaymentCash,
		Payee:          "王妮",
	}
}

func product(t *testing.T, s *ledger.Store, id string) ledger.Product {
	t.Helper()
	p, ok := s.Snapshot().Product(id)
	require.True(t, ok, "product %s should exist", id)
	return p
}

func customer(t *testing.T, s *ledger.Store, id string) ledger.Customer {
	t.Helper()
	c, ok := s.Snapshot().Customer(id)
	require.True(t, ok, "customer %s should exist", id)
	return c
}

func order(t *testing.T, s *ledger.Store, id string) ledger.Order {
	t.Helper()
	o, ok := s.Snapshot().Order(id)
	require.True(t, ok, "order %s should exist", id)
	return o
}
