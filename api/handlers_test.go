package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trade-ledger/gateway"
	"github.com/warp/trade-ledger/ledger"
	"github.com/warp/trade-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var march10 = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return march10 }

type testServer struct {
	h      *Handler
	mem    *store.Memory
	router *chi.Mux
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	svc := gateway.New(ledger.NewStore(ledger.WithClock(fixedClock)), mem, zerolog.Nop(), gateway.WithClock(fixedClock))
	h := NewHandler(svc, zerolog.Nop())
	h.Location = time.UTC
	h.now = fixedClock
	h.Scheduler = NewReconciliationScheduler(svc, zerolog.Nop())
	return &testServer{h: h, mem: mem, router: NewRouter(h)}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) snapshot(t *testing.T) ledger.Snapshot {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[ledger.Snapshot](t, rec)
}

// seed creates batch b-1, product p-apple in it and customer c-1.
func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/batches", `{"id":"b-1","plateNumber":"京A12345","cost":500}`).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/products",
		`{"id":"p-apple","name":"Apple","pricingMode":"WEIGHT","stockQty":50,"stockWeight":1000,"batchId":"b-1"}`).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/customers", `{"id":"c-1","name":"Zhang"}`).Code)
}

const creditSale = `{"id":"o-1","customerId":"c-1","totalAmount":100,"receivedAmount":60,"paymentMethod":"WECHAT","payee":"王妮",
	"items":[{"productId":"p-apple","qty":2,"netWeight":40,"unitPrice":2.5,"subtotal":100}]}`

// =============================================================================
// ORDERS
// =============================================================================

func TestCreateOrder_AppliesStockAndDebt(t *testing.T) {
	// GIVEN: A product with 50 pieces / 1000 kg and a regular customer
	// WHEN: A credit sale of 2 pieces / 40 kg, 60 of 100 received, is posted
	// THEN: Stock drops, the customer owes 40 and the ledger is flushed
	ts := setupTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", creditSale)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	o := decode[ledger.Order](t, rec)
	assert.Equal(t, ledger.OrderActive, o.Status)
	assert.Equal(t, "Zhang", o.CustomerName)
	assert.Equal(t, "Apple", o.Items[0].ProductName)

	snap := ts.snapshot(t)
	p, _ := snap.Product("p-apple")
	assert.Equal(t, 48.0, p.StockQty)
	assert.Equal(t, 960.0, p.StockWeight)
	c, _ := snap.Customer("c-1")
	assert.Equal(t, 40.0, c.TotalDebt)

	stored, _ := ts.mem.Load(context.Background())
	assert.NotNil(t, stored)
}

func TestCancelOrder_IdempotentAndRestores(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/orders", creditSale).Code)

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/orders/o-1/cancel", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	snap := ts.snapshot(t)
	p, _ := snap.Product("p-apple")
	assert.Equal(t, 50.0, p.StockQty)
	c, _ := snap.Customer("c-1")
	assert.Equal(t, 0.0, c.TotalDebt)
	o, _ := snap.Order("o-1")
	assert.Equal(t, ledger.OrderCancelled, o.Status)
}

func TestDeleteOrder_RemovesAndRollsBack(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/orders", creditSale).Code)

	rec := ts.do(t, http.MethodDelete, "/api/orders/o-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	snap := ts.snapshot(t)
	_, found := snap.Order("o-1")
	assert.False(t, found)
	c, _ := snap.Customer("c-1")
	assert.Equal(t, 0.0, c.TotalDebt)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrors_MapToStatusCodes(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/customers", `{"name":`, http.StatusBadRequest},
		{"empty customer name", http.MethodPost, "/api/customers", `{"name":"  "}`, http.StatusBadRequest},
		{"duplicate customer", http.MethodPost, "/api/customers", `{"id":"c-1","name":"Again"}`, http.StatusConflict},
		{"unknown product stock", http.MethodPut, "/api/products/nope/stock", `{"stockQty":1}`, http.StatusNotFound},
		{"repayment for unknown customer", http.MethodPost, "/api/repayments", `{"customerId":"nope","amount":5}`, http.StatusNotFound},
		{"negative repayment", http.MethodPost, "/api/repayments", `{"customerId":"c-1","amount":-5}`, http.StatusBadRequest},
		{"unknown batch summary", http.MethodGet, "/api/batches/nope/summary", "", http.StatusNotFound},
		{"bad report date", http.MethodGet, "/api/reports/daily?date=10/03/2025", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func TestAdjustStock_BaselineDefaultsToCount(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodPut, "/api/products/p-apple/stock", `{"stockQty":12,"stockWeight":230.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := decode[ledger.Product](t, rec)
	assert.Equal(t, 12.0, p.StockQty)
	assert.Equal(t, 12.0, p.InitialStockQty)
	assert.Equal(t, 230.5, p.InitialStockWeight)
}

func TestDeleteBatch_CascadesToProducts(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/batches/b-1", "").Code)

	snap := ts.snapshot(t)
	assert.Empty(t, snap.Batches)
	assert.Empty(t, snap.Products)
}

func TestExtraFees_AddAndRemove(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodPost, "/api/batches/b-1/fees", `{"name":"过磅费","amount":30}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	fee := decode[ledger.ExtraFee](t, rec)
	require.NotEmpty(t, fee.ID)

	sum := decode[ledger.BatchSummary](t, ts.do(t, http.MethodGet, "/api/batches/b-1/summary", ""))
	assert.Equal(t, 530.0, sum.TotalCost)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/batches/b-1/fees/"+fee.ID, "").Code)
	sum = decode[ledger.BatchSummary](t, ts.do(t, http.MethodGet, "/api/batches/b-1/summary", ""))
	assert.Equal(t, 500.0, sum.TotalCost)
}

func TestRenamePayee_RewritesOrders(t *testing.T) {
	// GIVEN: Default payee 王妮 on an existing order
	// WHEN: The payee is renamed through an escaped path
	// THEN: The payee list and the order carry the new name
	ts := setupTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/payees", `{"name":"王妮"}`).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/orders", creditSale).Code)

	rec := ts.do(t, http.MethodPut, "/api/payees/%E7%8E%8B%E5%A6%AE", `{"name":"王姐"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := ts.snapshot(t)
	assert.Contains(t, snap.Payees, "王姐")
	assert.NotContains(t, snap.Payees, "王妮")
	o, _ := snap.Order("o-1")
	assert.Equal(t, "王姐", o.Payee)

	rec = ts.do(t, http.MethodDelete, "/api/payees/%E7%8E%8B%E5%A7%90", "")
	require.Equal(t, http.StatusOK, rec.Code)
	payees := ts.snapshot(t).Payees
	assert.NotContains(t, payees, "王姐")
	assert.Len(t, payees, len(ledger.DefaultPayees)-1)
}

// =============================================================================
// IMPORT / EXPORT
// =============================================================================

func TestExportImport_RoundTrip(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/orders", creditSale).Code)
	before := ts.snapshot(t)

	rec := ts.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	text := rec.Body.String()

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/reset", "").Code)
	assert.Empty(t, ts.snapshot(t).Orders)

	rec = ts.do(t, http.MethodPost, "/api/import", text)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ImportResponse](t, rec)
	assert.Equal(t, 1, resp.Orders)
	assert.False(t, resp.OrdersWiped)

	after := ts.snapshot(t)
	assert.Equal(t, before.Orders, after.Orders)
	assert.Equal(t, before.Customers, after.Customers)
}

func TestImport_Rejected(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodPost, "/api/import", "definitely not a backup")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decode[ErrorResponse](t, rec).Code, "decode_"))
	_, ok := ts.snapshot(t).Customer("c-1")
	assert.True(t, ok, "ledger untouched")
}

func TestImport_MissingMarker(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/import", `{"orders":[]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "decode_marker", decode[ErrorResponse](t, rec).Code)
}

func TestCorruptBackup_NotFoundUntilStashed(t *testing.T) {
	ts := setupTestServer(t)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/corrupt-backup", "").Code)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestReports_Daily(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/orders", creditSale).Code)

	stats := decode[ledger.DayStats](t, ts.do(t, http.MethodGet, "/api/reports/daily?date=2025-03-10", ""))
	assert.Equal(t, 1, stats.Orders)
	assert.Equal(t, 100.0, stats.OrderAmount)
	assert.Equal(t, 40.0, stats.DebtAmount)
	assert.Equal(t, 1, stats.OpenBatches)

	other := decode[ledger.DayStats](t, ts.do(t, http.MethodGet, "/api/reports/daily?date=2025-03-11", ""))
	assert.Equal(t, 0, other.Orders)

	today := decode[ledger.DayStats](t, ts.do(t, http.MethodGet, "/api/reports/daily", ""))
	assert.Equal(t, "2025-03-10", today.Day)
}

func TestReports_ReconcileAndReceivables(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/orders", creditSale).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/expenses", `{"amount":15,"type":"卸车费","batchId":"b-1"}`).Code)

	rec := decode[ledger.Reconciliation](t, ts.do(t, http.MethodGet, "/api/reports/reconcile?date=2025-03-10&batch=b-1", ""))
	assert.Equal(t, 60.0, rec.Income)
	assert.Equal(t, 15.0, rec.Expense)
	assert.Equal(t, 45.0, rec.Net)
	assert.Equal(t, 60.0, rec.ByMethod[ledger.PaymentWeChat])

	recv := decode[ledger.ReceivablesReport](t, ts.do(t, http.MethodGet, "/api/reports/receivables", ""))
	assert.Equal(t, 40.0, recv.Total)
	require.Len(t, recv.Customers, 1)
	assert.Equal(t, "c-1", recv.Customers[0].ID)
}

func TestReports_LowStock(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/products/p-apple/stock", `{"stockQty":3}`).Code)

	body := decode[map[string][]ledger.Product](t, ts.do(t, http.MethodGet, "/api/reports/low-stock", ""))

	require.Len(t, body["products"], 1)
	assert.Equal(t, "p-apple", body["products"][0].ID)
}

// =============================================================================
// STATUS / METRICS
// =============================================================================

func TestStatus_ReportsCounts(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)
	ts.do(t, http.MethodGet, "/api/export", "")

	st := decode[gateway.Status](t, ts.do(t, http.MethodGet, "/api/status", ""))

	assert.Equal(t, 1, st.Products)
	assert.Equal(t, 2, st.Customers, "walk-in plus c-1")
	assert.Equal(t, "2025-03-10T09:30:00Z", st.LastExportAt)
	assert.False(t, st.BackupOn)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t)

	rec := ts.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_mutations_total")
	assert.Contains(t, rec.Body.String(), "ledger_http_requests_total")
}
