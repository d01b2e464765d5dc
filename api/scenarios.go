/*
scenarios.go - Demo ledgers for testing and demonstrations

PURPOSE:
  Provides pre-built ledgers for demos and manual testing of the UI. Each
  scenario is built on a scratch ledger.Store, encoded, and installed
  through the same Import path a pasted backup takes, so loading one also
  exercises the codec and the sanitizer. Import rebuilds every debt, so a
  scenario that needs drifted debts applies its last steps live afterwards.

AVAILABLE SCENARIOS:
  empty:            Empty ledger with only the walk-in customer
  market-day:       One truck of fruit, credit sales, a repayment, fees
  overpayment:      Customer overpaid then bought again; reconciliation
                    heals the cached debt
  damaged-import:   Backup whose orders all lost their ids; the raw text
                    is kept as corrupt backup

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "market-day"}

NOTE:
  Scenarios replace the ledger. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Import, Reset
  - gateway/gateway.go: Import
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/trade-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty",
		Name:        "Empty Ledger",
		Description: "Nothing but the walk-in customer",
		Category:    "basic",
	},
	{
		ID:          "market-day",
		Name:        "Market Day",
		Description: "One truck of apples and melons, credit sales, a repayment and unloading fees",
		Category:    "basic",
	},
	{
		ID:          "overpayment",
		Name:        "Overpayment Drift",
		Description: "Overpaid customer buys again; run reconciliation to heal the cached debt",
		Category:    "debt",
	},
	{
		ID:          "damaged-import",
		Name:        "Damaged Import",
		Description: "Backup whose orders are unreadable; the raw text is kept as corrupt backup",
		Category:    "recovery",
	},
}

// damagedBackup is a backup in which every order lost its id.
const damagedBackup = `{"type":"FRUIT_SYNC","timestamp":1741599000000,` +
	`"customers":[{"id":"c-zhang","name":"张三","totalDebt":120}],` +
	`"products":[{"id":"p-apple","name":"红富士","stockQty":"40","sellingPrice":"3.5"}],` +
	`"orders":[{"customerId":"c-zhang","totalAmount":120},{"orderNo":"ORD-2","totalAmount":"80"}],` +
	`"payees":["王妮",""]}`

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	id := h.scenario()
	if id == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: id, Name: id})
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var text string
	var after func(*ledger.Store) error
	var err error
	switch req.ScenarioID {
	case "empty":
		text, err = ledger.Encode(ledger.NewSnapshot())
	case "market-day":
		text, err = encodeScenario(buildMarketDay)
	case "overpayment":
		text, err = encodeScenario(buildOverpayment)
		after = overpaymentFollowUp
	case "damaged-import":
		text = damagedBackup
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to build scenario: %v", err), err)
		return
	}

	rep, err := h.Service.Import(r.Context(), text)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if after != nil {
		if err := h.Service.Mutate(r.Context(), "load_scenario", after); err != nil {
			h.writeLedgerError(w, err)
			return
		}
	}
	h.setScenario(req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"import":   toImportResponse(rep),
	})
}

func (h *Handler) scenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

var scenarioDay = time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)

// encodeScenario runs build on a scratch store with a fixed clock.
func encodeScenario(build func(context.Context, *ledger.Store) error) (string, error) {
	clock := scenarioDay
	l := ledger.NewStore(ledger.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	if err := build(context.Background(), l); err != nil {
		return "", err
	}
	snap := l.Snapshot()
	snap.Timestamp = clock.UnixMilli()
	return ledger.Encode(snap)
}

func buildMarketDay(_ context.Context, l *ledger.Store) error {
	if _, err := l.AddBatch(ledger.Batch{ID: "b-1", PlateNumber: "鲁B 6M218", Cost: 1200, TotalWeight: 1500}); err != nil {
		return err
	}
	if _, err := l.AddProduct(ledger.Product{
		ID: "p-apple", Name: "红富士", Category: "苹果", PricingMode: ledger.PricingWeight,
		DefaultTare: 1, StockQty: 60, StockWeight: 1200, BatchID: "b-1", CostPrice: 0.8, SellingPrice: 1.5,
	}); err != nil {
		return err
	}
	if _, err := l.AddProduct(ledger.Product{
		ID: "p-melon", Name: "麒麟瓜", Category: "西瓜", PricingMode: ledger.PricingPiece,
		StockQty: 30, BatchID: "b-1", CostPrice: 6, SellingPrice: 10,
	}); err != nil {
		return err
	}
	if _, err := l.AddCustomer(ledger.Customer{ID: "c-zhang", Name: "张三", Phone: "13800000001"}); err != nil {
		return err
	}
	if _, err := l.AddCustomer(ledger.Customer{ID: "c-li", Name: "李四", Phone: "13800000002"}); err != nil {
		return err
	}
	for _, payee := range []string{"王妮", "老刘"} {
		if err := l.AddPayee(payee); err != nil {
			return err
		}
	}

	orders := []ledger.Order{
		{
			ID: "o-1", CustomerID: "c-zhang",
			Items: []ledger.OrderItem{
				{ProductID: "p-apple", Qty: 2, GrossWeight: 42, TareWeight: 2, NetWeight: 40, UnitPrice: 1.5, Subtotal: 60},
				{ProductID: "p-melon", Qty: 4, UnitPrice: 10, Subtotal: 40},
			},
			TotalAmount: 100, ReceivedAmount: 60, PaymentMethod: ledger.PaymentWeChat, Payee: "王妮",
		},
		{
			ID: "o-2", CustomerID: "c-li",
			Items: []ledger.OrderItem{
				{ProductID: "p-apple", Qty: 5, GrossWeight: 105, TareWeight: 5, NetWeight: 100, UnitPrice: 1.5, Subtotal: 150},
			},
			TotalAmount: 150, Discount: 10, ReceivedAmount: 100, PaymentMethod: ledger.PaymentAlipay, Payee: "老刘",
		},
		{
			ID: "o-3",
			Items: []ledger.OrderItem{
				{ProductID: "p-melon", Qty: 2, UnitPrice: 10, Subtotal: 20},
			},
			TotalAmount: 20, ReceivedAmount: 20, PaymentMethod: ledger.PaymentCash, Payee: "王妮",
		},
	}
	for _, o := range orders {
		if _, err := l.AddOrder(o); err != nil {
			return err
		}
	}

	if _, err := l.AddRepayment(ledger.Repayment{CustomerID: "c-zhang", Amount: 20, Payee: "王妮"}); err != nil {
		return err
	}
	if _, err := l.AddExtraFee("b-1", ledger.ExtraFee{Name: "过磅费", Amount: 30}); err != nil {
		return err
	}
	_, err := l.AddExpense(ledger.Expense{Amount: 50, Type: "卸车费", BatchID: "b-1", Note: "四个人"})
	return err
}

func buildOverpayment(_ context.Context, l *ledger.Store) error {
	if _, err := l.AddCustomer(ledger.Customer{ID: "c-zhang", Name: "张三"}); err != nil {
		return err
	}
	if _, err := l.AddOrder(ledger.Order{ID: "o-1", CustomerID: "c-zhang", TotalAmount: 40, PaymentMethod: ledger.PaymentCash}); err != nil {
		return err
	}
	// 10 more than owed. Rebuilt from history this nets against later sales.
	_, err := l.AddRepayment(ledger.Repayment{CustomerID: "c-zhang", Amount: 50})
	return err
}

// overpaymentFollowUp runs on the live ledger, where the cached debt
// clamped at zero and so ends at 30 instead of the rebuilt 20.
func overpaymentFollowUp(l *ledger.Store) error {
	_, err := l.AddOrder(ledger.Order{ID: "o-2", CustomerID: "c-zhang", TotalAmount: 30, PaymentMethod: ledger.PaymentCash})
	return err
}
