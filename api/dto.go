/*
dto.go - Request and response bodies of the HTTP API

PURPOSE:
  Most endpoints accept and return ledger records directly (ledger.Order,
  ledger.Product, ...), since the wire format of the ledger is already the
  JSON contract shared with the export text. The types here cover the
  bodies that have no ledger counterpart.

NAMING CONVENTION:
  - *Request:  request body types from clients
  - *Response: response wrappers
  - *DTO:      listing entries

SEE ALSO:
  - handlers.go: uses these types
  - ledger/types.go: record types on the wire
*/
package api

import (
	"time"

	"github.com/warp/trade-ledger/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// StockAdjustRequest overwrites a product's stock with a physical count.
// Omitted baselines default to the new stock values.
type StockAdjustRequest struct {
	StockQty           float64  `json:"stockQty"`
	StockWeight        float64  `json:"stockWeight"`
	InitialStockQty    *float64 `json:"initialStockQty,omitempty"`
	InitialStockWeight *float64 `json:"initialStockWeight,omitempty"`
}

// PayeeRequest names a payee to add, or the new name of a renamed one.
type PayeeRequest struct {
	Name string `json:"name"`
}

// LoadScenarioRequest selects a demo ledger.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ImportResponse reports what survived an import.
type ImportResponse struct {
	Orders      int            `json:"orders"`
	Products    int            `json:"products"`
	Customers   int            `json:"customers"`
	Dropped     map[string]int `json:"dropped"`
	OrdersWiped bool           `json:"ordersWiped"`
}

func toImportResponse(rep ledger.Report) ImportResponse {
	dropped := rep.Dropped
	if dropped == nil {
		dropped = map[string]int{}
	}
	return ImportResponse{
		Orders:      len(rep.Snapshot.Orders),
		Products:    len(rep.Snapshot.Products),
		Customers:   len(rep.Snapshot.Customers),
		Dropped:     dropped,
		OrdersWiped: rep.OrdersWiped(),
	}
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ScenarioDTO describes a demo ledger.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ReconciliationRunDTO records one debt reconciliation pass.
type ReconciliationRunDTO struct {
	ID          string             `json:"id"`
	Trigger     string             `json:"trigger"` // "schedule" or "manual"
	Status      string             `json:"status"`  // "completed" or "failed"
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Drift       []ledger.DebtDrift `json:"drift"`
	Error       string             `json:"error,omitempty"`
}
