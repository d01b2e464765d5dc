/*
sanitize.go - Untrusted snapshot import

PURPOSE:
  Turns an arbitrary decoded object (stored payload, pasted text, uploaded
  file) into a structurally valid Snapshot. Partial recovery is preferred
  over rejecting the whole import: an offline ledger has no other copy of
  its history.

TWO PHASES:
  1. Raw: the input is a JSON tree where every field is optional and may
     have any type (see raw.go).
  2. Strict: each collection is rebuilt record by record into domain types.

RULES:
  - A collection that is not an array is treated as empty
  - A record without its identity fields is dropped whole
    (products: id+name, batches: id+plateNumber, customers: id+name,
     orders / repayments / expenses: id). Later duplicates of an id are
     dropped too.
  - Numbers are parsed defensively with a zero fallback
  - Fields added in later schema versions are backfilled from their legacy
    equivalent (initialStock* <- stock*, netWeight <- gross - tare, ...)
  - The guest customer is always present
  - Debt is rebuilt with RecalculateAllDebts; incoming totalDebt is ignored

CORRUPT BACKUP:
  If the raw input declared a non-empty orders array and nothing survived,
  Report.CorruptBackup holds the raw input so the caller can stash it
  before the cleaned snapshot replaces live state.
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Collection names used in Report.Dropped.
const (
	CollectionProducts   = "products"
	CollectionBatches    = "batches"
	CollectionOrders     = "orders"
	CollectionRepayments = "repayments"
	CollectionCustomers  = "customers"
	CollectionPayees     = "payees"
	CollectionExpenses   = "expenses"

	// Elements dropped inside a surviving batch or order.
	CollectionExtraFees  = "extraFees"
	CollectionOrderItems = "orderItems"
)

// Report is the outcome of a sanitize pass.
type Report struct {
	Snapshot Snapshot

	// Dropped counts discarded records per collection.
	Dropped map[string]int

	// CorruptBackup is the raw input, set only when every order was lost.
	CorruptBackup []byte
}

// OrdersWiped reports whether sanitization discarded every incoming order.
func (r Report) OrdersWiped() bool {
	return r.CorruptBackup != nil
}

// TotalDropped sums Dropped across collections.
func (r Report) TotalDropped() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// SanitizeJSON parses data and sanitizes it. Only bytes that are not a JSON
// object are rejected; everything inside an object is tolerated.
func SanitizeJSON(data []byte) (Report, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Report{}, &DecodeError{Stage: "json", Err: fmt.Errorf("%w: %v", ErrNotJSON, err)}
	}
	if _, ok := asObject(raw); !ok {
		return Report{}, &DecodeError{Stage: "json", Err: ErrNotJSON}
	}
	rep := sanitize(raw)
	if rep.CorruptBackup != nil {
		rep.CorruptBackup = append([]byte{}, data...)
	}
	return rep, nil
}

// Sanitize never fails. Any input, including nil or a non-object, yields a
// valid snapshot (the empty ledger in the worst case).
func Sanitize(raw any) Report {
	return sanitize(toRaw(raw))
}

// Canonical passes a snapshot through the sanitizer, producing the form
// that Decode returns for it.
func Canonical(s Snapshot) Snapshot {
	return Sanitize(s).Snapshot
}

type sanitizer struct {
	dropped map[string]int
}

func (z *sanitizer) drop(collection string) {
	z.dropped[collection]++
}

func sanitize(raw any) Report {
	z := &sanitizer{dropped: make(map[string]int)}
	root, _ := asObject(raw)

	snap := Snapshot{Type: SnapshotType}
	snap.Timestamp = int64(root.num("timestamp"))
	snap.Customers = z.customers(root["customers"])
	snap.Batches = z.batches(root["batches"])
	snap.Products = z.products(root["products"])
	snap.Orders = z.orders(root["orders"], snap.Customers)
	snap.Repayments = z.repayments(root["repayments"], snap.Customers)
	snap.Expenses = z.expenses(root["expenses"])
	snap.Payees = z.payees(root["payees"])

	snap.Customers = RecalculateAllDebts(snap.Orders, snap.Repayments, snap.Customers)

	rep := Report{Snapshot: snap, Dropped: z.dropped}
	if rawOrders, ok := asArray(root["orders"]); ok && len(rawOrders) > 0 && len(snap.Orders) == 0 {
		rep.CorruptBackup = marshalRaw(raw)
	}
	return rep
}

func marshalRaw(raw any) []byte {
	data, err := json.Marshal(raw)
	if err != nil {
		return []byte(fmt.Sprintf("%v", raw))
	}
	return data
}

// records yields the object elements of a raw array, counting everything
// else as dropped. seen de-duplicates by id.
func (z *sanitizer) records(v any, collection string) []rawObject {
	arr, ok := asArray(v)
	if !ok {
		return nil
	}
	out := make([]rawObject, 0, len(arr))
	for _, item := range arr {
		obj, ok := asObject(item)
		if !ok {
			z.drop(collection)
			continue
		}
		out = append(out, obj)
	}
	return out
}

type idSet map[string]bool

// claim returns false when id is empty or already taken.
func (s idSet) claim(id string) bool {
	if id == "" || s[id] {
		return false
	}
	s[id] = true
	return true
}

// =============================================================================
// COLLECTIONS
// =============================================================================

func (z *sanitizer) customers(v any) []Customer {
	out := []Customer{}
	seen := idSet{}
	for _, o := range z.records(v, CollectionCustomers) {
		id, name := o.id("id"), strings.TrimSpace(o.str("name"))
		if name == "" || !seen.claim(id) {
			z.drop(CollectionCustomers)
			continue
		}
		out = append(out, Customer{
			ID:        id,
			Name:      o.str("name"),
			Phone:     o.str("phone"),
			TotalDebt: o.num("totalDebt"),
			IsGuest:   o.flag("isGuest") || id == GuestCustomerID,
		})
	}
	if !seen[GuestCustomerID] {
		out = append([]Customer{guestCustomer()}, out...)
	}
	return out
}

func (z *sanitizer) batches(v any) []Batch {
	out := []Batch{}
	seen := idSet{}
	for _, o := range z.records(v, CollectionBatches) {
		id := o.id("id")
		if strings.TrimSpace(o.str("plateNumber")) == "" || !seen.claim(id) {
			z.drop(CollectionBatches)
			continue
		}
		out = append(out, Batch{
			ID:          id,
			PlateNumber: o.str("plateNumber"),
			InboundDate: o.str("inboundDate"),
			Cost:        o.num("cost"),
			ExtraFees:   z.extraFees(o["extraFees"]),
			TotalWeight: o.num("totalWeight"),
			IsClosed:    o.flag("isClosed"),
			BatchNo:     int(o.num("batchNo")),
		})
	}
	return out
}

func (z *sanitizer) extraFees(v any) []ExtraFee {
	out := []ExtraFee{}
	arr, _ := asArray(v)
	seen := idSet{}
	for _, item := range arr {
		o, ok := asObject(item)
		if !ok || !seen.claim(o.id("id")) {
			z.drop(CollectionExtraFees)
			continue
		}
		out = append(out, ExtraFee{
			ID:     o.id("id"),
			Name:   o.str("name"),
			Amount: o.num("amount"),
		})
	}
	return out
}

func (z *sanitizer) products(v any) []Product {
	out := []Product{}
	seen := idSet{}
	for _, o := range z.records(v, CollectionProducts) {
		id := o.id("id")
		if strings.TrimSpace(o.str("name")) == "" || !seen.claim(id) {
			z.drop(CollectionProducts)
			continue
		}
		p := Product{
			ID:                id,
			Name:              o.str("name"),
			Category:          o.str("category"),
			PricingMode:       PricingMode(o.str("pricingMode")),
			DefaultTare:       o.num("defaultTare"),
			StockQty:          o.num("stockQty"),
			StockWeight:       o.num("stockWeight"),
			BatchID:           o.id("batchId"),
			CostPrice:         o.num("costPrice"),
			SellingPrice:      o.num("sellingPrice"),
			LowStockThreshold: o.num("lowStockThreshold"),
		}
		p.InitialStockQty = p.StockQty
		if o.has("initialStockQty") {
			p.InitialStockQty = o.num("initialStockQty")
		}
		p.InitialStockWeight = p.StockWeight
		if o.has("initialStockWeight") {
			p.InitialStockWeight = o.num("initialStockWeight")
		}
		if !p.PricingMode.Valid() {
			p.PricingMode = PricingPiece
			if p.StockWeight != 0 || p.DefaultTare != 0 {
				p.PricingMode = PricingWeight
			}
		}
		out = append(out, p)
	}
	return out
}

func (z *sanitizer) orders(v any, customers []Customer) []Order {
	out := []Order{}
	seen := idSet{}
	for _, o := range z.records(v, CollectionOrders) {
		id := o.id("id")
		if !seen.claim(id) {
			z.drop(CollectionOrders)
			continue
		}
		order := Order{
			ID:             id,
			OrderNo:        o.str("orderNo"),
			CustomerID:     o.id("customerId"),
			CustomerName:   o.str("customerName"),
			Items:          z.orderItems(o["items"]),
			TotalAmount:    o.num("totalAmount"),
			ReceivedAmount: o.num("receivedAmount"),
			Discount:       o.num("discount"),
			ExtraFee:       o.num("extraFee"),
			PaymentMethod:  PaymentMethod(o.str("paymentMethod")),
			Payee:          o.str("payee"),
			CreatedAt:      o.str("createdAt"),
			Status:         OrderStatus(o.str("status")),
			Note:           o.str("note"),
		}
		if !order.PaymentMethod.Valid() {
			order.PaymentMethod = PaymentOther
		}
		if order.Status != OrderCancelled {
			order.Status = OrderActive
		}
		if order.CustomerName == "" {
			order.CustomerName = customerName(customers, order.CustomerID)
		}
		out = append(out, order)
	}
	return out
}

// orderItems keeps every object element; items have no identity of their own.
func (z *sanitizer) orderItems(v any) []OrderItem {
	out := []OrderItem{}
	arr, _ := asArray(v)
	for _, el := range arr {
		o, ok := asObject(el)
		if !ok {
			z.drop(CollectionOrderItems)
			continue
		}
		item := OrderItem{
			ProductID:   o.id("productId"),
			ProductName: o.str("productName"),
			Qty:         o.num("qty"),
			GrossWeight: o.num("grossWeight"),
			TareWeight:  o.num("tareWeight"),
			UnitPrice:   o.num("unitPrice"),
			Subtotal:    o.num("subtotal"),
		}
		if o.has("netWeight") {
			item.NetWeight = o.num("netWeight")
		} else {
			item.NetWeight = addQty(item.GrossWeight, -item.TareWeight)
		}
		out = append(out, item)
	}
	return out
}

func (z *sanitizer) repayments(v any, customers []Customer) []Repayment {
	out := []Repayment{}
	seen := idSet{}
	for _, o := range z.records(v, CollectionRepayments) {
		id := o.id("id")
		if !seen.claim(id) {
			z.drop(CollectionRepayments)
			continue
		}
		r := Repayment{
			ID:           id,
			CustomerID:   o.id("customerId"),
			CustomerName: o.str("customerName"),
			Amount:       o.num("amount"),
			Date:         o.str("date"),
			Payee:        o.str("payee"),
			Note:         o.str("note"),
		}
		if r.CustomerName == "" {
			r.CustomerName = customerName(customers, r.CustomerID)
		}
		out = append(out, r)
	}
	return out
}

func (z *sanitizer) expenses(v any) []Expense {
	out := []Expense{}
	seen := idSet{}
	for _, o := range z.records(v, CollectionExpenses) {
		id := o.id("id")
		if !seen.claim(id) {
			z.drop(CollectionExpenses)
			continue
		}
		out = append(out, Expense{
			ID:      id,
			Amount:  o.num("amount"),
			Type:    o.str("type"),
			Date:    o.str("date"),
			Note:    o.str("note"),
			BatchID: o.id("batchId"),
		})
	}
	return out
}

// payees keeps non-blank unique strings. A missing list falls back to the
// default payees.
func (z *sanitizer) payees(v any) []string {
	arr, ok := asArray(v)
	if !ok {
		return append([]string{}, DefaultPayees...)
	}
	out := []string{}
	seen := idSet{}
	for _, el := range arr {
		name, isString := el.(string)
		if !isString || strings.TrimSpace(name) == "" || !seen.claim(name) {
			z.drop(CollectionPayees)
			continue
		}
		out = append(out, name)
	}
	return out
}

func customerName(customers []Customer, id string) string {
	for _, c := range customers {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}
