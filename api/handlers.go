/*
handlers.go - HTTP API handlers for the trade ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response and JSON
  serialization, and delegates to the gateway, which applies the ledger
  operation and flushes the snapshot.

ENDPOINTS:
  Ledger:
    GET    /api/snapshot                  Current ledger
    GET    /api/status                    Counts and backup state
    GET    /api/export                    Transport text (text/plain)
    POST   /api/import                    Replace ledger from transport text
    POST   /api/reset                     Wipe ledger
    GET    /api/corrupt-backup            Last stashed raw payload

  Orders:
    POST   /api/orders                    Record a sale
    POST   /api/orders/{id}/cancel        Cancel (idempotent)
    DELETE /api/orders/{id}               Delete (rolls back if active)

  Catalog:
    POST/PUT/DELETE /api/products[/{id}]  Products
    PUT    /api/products/{id}/stock       Physical count
    POST/PUT/DELETE /api/batches[/{id}]   Batches
    POST   /api/batches/{id}/close
    GET    /api/batches/summary           All batch summaries
    GET    /api/batches/{id}/summary
    POST   /api/batches/{id}/fees
    DELETE /api/batches/{id}/fees/{feeId}
    POST   /api/customers
    POST/PUT/DELETE /api/payees[/{name}]

  Bookkeeping:
    POST   /api/expenses
    POST   /api/repayments

  Reports:
    GET    /api/reports/daily?date=YYYY-MM-DD
    GET    /api/reports/reconcile?date=YYYY-MM-DD&batch=ID
    GET    /api/reports/low-stock
    GET    /api/reports/receivables

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, undecodable import text
  - 404: Resource not found
  - 409: Duplicate id
  - 500: Storage failures

SECURITY NOTE:
  No authentication. The ledger is meant for a single stall on a trusted
  network.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo ledgers
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/trade-ledger/gateway"
	"github.com/warp/trade-ledger/ledger"
)

const (
	maxJSONBody   = 1 << 20
	maxImportBody = 32 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *gateway.Service
	Scheduler *ReconciliationScheduler

	// Location decides calendar days for the reports.
	Location *time.Location

	log zerolog.Logger
	now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

func NewHandler(svc *gateway.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Service:  svc,
		Location: time.Local,
		log:      log,
		now:      time.Now,
	}
}

func (h *Handler) snapshot() ledger.Snapshot {
	return h.Service.Ledger().Snapshot()
}

// mutate runs fn through the gateway and writes its result with status.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op string, status int, fn func(*ledger.Store) (any, error)) {
	var out any
	err := h.Service.Mutate(r.Context(), op, func(l *ledger.Store) error {
		var err error
		out, err = fn(l)
		return err
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, status, out)
}

// =============================================================================
// LEDGER
// =============================================================================

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	text, err := h.Service.Export(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export ledger", err)
		return
	}
	writeText(w, http.StatusOK, text)
}

// Import replaces the ledger with the pasted transport text in the body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Import text too large", err)
		return
	}

	rep, err := h.Service.Import(r.Context(), string(body))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toImportResponse(rep))
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Reset(r.Context()); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.setScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) GetCorruptBackup(w http.ResponseWriter, r *http.Request) {
	data, err := h.Service.CorruptBackup(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read corrupt backup", err)
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "No corrupt backup", nil)
		return
	}
	writeText(w, http.StatusOK, string(data))
}

// =============================================================================
// ORDERS
// =============================================================================

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var o ledger.Order
	if err := decodeJSON(w, r, &o); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.mutate(w, r, "add_order", http.StatusCreated, func(l *ledger.Store) (any, error) {
		return l.AddOrder(o)
	})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, "cancel_order", http.StatusOK, func(l *ledger.Store) (any, error) {
		return map[string]string{"status": "cancelled", "id": id}, l.CancelOrder(id)
	})
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, "delete_order", http.StatusOK, func(l *ledger.Store) (any, error) {
		return map[string]string{"status": "deleted", "id": id}, l.DeleteOrder(id)
	})
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p ledger.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.mutate(w, r, "add_product", http.StatusCreated, func(l *ledger.Store) (any, error) {
		return l.AddProduct(p)
	})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var p ledger.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p.ID = chi.URLParam(r, "id")
	h.mutate(w, r, "update_product", http.StatusOK, func(l *ledger.Store) (any, error) {
		if err := l.UpdateProduct(p); err != nil {
			return nil, err
		}
		updated, _ := l.Snapshot().Product(p.ID)
		return updated, nil
	})
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, "delete_product", http.StatusOK, func(l *ledger.Store) (any, error) {
		return map[string]string{"status": "deleted", "id": id}, l.DeleteProduct(id)
	})
}

// AdjustStock overwrites stock with a physical count.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req StockAdjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	initialQty, initialWeight := req.StockQty, req.StockWeight
	if req.InitialStockQty != nil {
		initialQty = *req.InitialStockQty
	}
	if req.InitialStockWeight != nil {
		initialWeight = *req.InitialStockWeight
	}

	id := chi.URLParam(r, "id")
	h.mutate(w, r, "adjust_stock", http.StatusOK, func(l *ledger.Store) (any, error) {
		if err := l.AdjustStock(id, req.StockQty, req.StockWeight, initialQty, initialWeight); err != nil {
			return nil, err
		}
		p, _ := l.Snapshot().Product(id)
		return p, nil
	})
}

// =============================================================================
// BATCHES
// =============================================================================

func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var b ledger.Batch
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.mutate(w, r, "add_batch", http.StatusCreated, func(l *ledger.Store) (any, error) {
		return l.AddBatch(b)
	})
}

func (h *Handler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	var b ledger.Batch
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	b.ID = chi.URLParam(r, "id")
	h.mutate(w, r, "update_batch", http.StatusOK, func(l *ledger.Store) (any, error) {
		if err := l.UpdateBatch(b); err != nil {
			return nil, err
		}
		updated, _ := l.Snapshot().Batch(b.ID)
		return updated, nil
	})
}

func (h *Handler) CloseBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, "close_batch", http.StatusOK, func(l *ledger.Store) (any, error) {
		if err := l.CloseBatch(id); err != nil {
			return nil, err
		}
		b, _ := l.Snapshot().Batch(id)
		return b, nil
	})
}

// DeleteBatch removes a batch together with its products.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, "delete_batch", http.StatusOK, func(l *ledger.Store) (any, error) {
		return map[string]string{"status": "deleted", "id": id}, l.DeleteBatch(id)
	})
}

func (h *Handler) GetBatchSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := ledger.SummarizeBatch(h.snapshot(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) ListBatchSummaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"batches": ledger.SummarizeBatches(h.snapshot())})
}

func (h *Handler) AddExtraFee(w http.ResponseWriter, r *http.Request) {
	var fee ledger.ExtraFee
	if err := decodeJSON(w, r, &fee); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	batchID := chi.URLParam(r, "id")
	h.mutate(w, r, "add_extra_fee", http.StatusCreated, func(l *ledger.Store) (any, error) {
		return l.AddExtraFee(batchID, fee)
	})
}

func (h *Handler) RemoveExtraFee(w http.ResponseWriter, r *http.Request) {
	batchID, feeID := chi.URLParam(r, "id"), chi.URLParam(r, "feeId")
	h.mutate(w, r, "remove_extra_fee", http.StatusOK, func(l *ledger.Store) (any, error) {
		return map[string]string{"status": "deleted", "id": feeID}, l.RemoveExtraFee(batchID, feeID)
	})
}

// =============================================================================
// CUSTOMERS / PAYEES
// =============================================================================

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var c ledger.Customer
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.mutate(w, r, "add_customer", http.StatusCreated, func(l *ledger.Store) (any, error) {
		return l.AddCustomer(c)
	})
}

func (h *Handler) CreatePayee(w http.ResponseWriter, r *http.Request) {
	var req PayeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.mutate(w, r, "add_payee", http.StatusCreated, func(l *ledger.Store) (any, error) {
		if err := l.AddPayee(req.Name); err != nil {
			return nil, err
		}
		return map[string]any{"payees": l.Snapshot().Payees}, nil
	})
}

// RenamePayee renames a payee and rewrites it on every order.
func (h *Handler) RenamePayee(w http.ResponseWriter, r *http.Request) {
	oldName, err := payeeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payee name", err)
		return
	}
	var req PayeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.mutate(w, r, "rename_payee", http.StatusOK, func(l *ledger.Store) (any, error) {
		if err := l.RenamePayee(oldName, req.Name); err != nil {
			return nil, err
		}
		return map[string]any{"payees": l.Snapshot().Payees}, nil
	})
}

func (h *Handler) DeletePayee(w http.ResponseWriter, r *http.Request) {
	name, err := payeeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payee name", err)
		return
	}
	h.mutate(w, r, "delete_payee", http.StatusOK, func(l *ledger.Store) (any, error) {
		if err := l.DeletePayee(name); err != nil {
			return nil, err
		}
		return map[string]any{"payees": l.Snapshot().Payees}, nil
	})
}

// payeeParam decodes {name}. chi matches on RawPath when the client escaped
// reserved characters, and the param is then still escaped.
func payeeParam(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "name"))
}

// =============================================================================
// BOOKKEEPING
// =============================================================================

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var e ledger.Expense
	if err := decodeJSON(w, r, &e); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.mutate(w, r, "add_expense", http.StatusCreated, func(l *ledger.Store) (any, error) {
		return l.AddExpense(e)
	})
}

func (h *Handler) CreateRepayment(w http.ResponseWriter, r *http.Request) {
	var rp ledger.Repayment
	if err := decodeJSON(w, r, &rp); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.mutate(w, r, "add_repayment", http.StatusCreated, func(l *ledger.Store) (any, error) {
		return l.AddRepayment(rp)
	})
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.DailyStats(h.snapshot(), day))
}

func (h *Handler) ReconcileReport(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.DailyReconciliation(h.snapshot(), day, r.URL.Query().Get("batch")))
}

func (h *Handler) LowStockReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"products": ledger.LowStock(h.snapshot())})
}

func (h *Handler) ReceivablesReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ledger.Receivables(h.snapshot()))
}

// parseDay reads ?date= in the handler's location, defaulting to today.
func (h *Handler) parseDay(r *http.Request) (time.Time, error) {
	loc := h.Location
	if loc == nil {
		loc = time.Local
	}
	q := r.URL.Query().Get("date")
	if q == "" {
		return h.now().In(loc), nil
	}
	return time.ParseInLocation(time.DateOnly, q, loc)
}

// =============================================================================
// DEBT RECONCILIATION
// =============================================================================

// RunReconciliation rebuilds debts now and returns the recorded run.
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Reconciliation not configured", nil)
		return
	}
	run := h.Scheduler.RunOnce(r.Context(), "manual")
	status := http.StatusOK
	if run.Status == "failed" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, run)
}

func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	runs := []ReconciliationRunDTO{}
	if h.Scheduler != nil {
		runs = h.Scheduler.Runs()
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, text)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger and gateway errors to a status code.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	var de *ledger.DecodeError
	switch {
	case errors.As(err, &de):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Import text is not a ledger backup",
			Code:    "decode_" + de.Stage,
			Details: err.Error(),
		})
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Record not found", err)
	case errors.Is(err, ledger.ErrDuplicateID):
		writeError(w, http.StatusConflict, "Duplicate id", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Internal error: %v", err), nil)
	}
}
