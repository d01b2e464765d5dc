/*
Package ledger provides the consistency engine for the trading ledger.

PURPOSE:
  This package owns the complete application state of a small wholesale
  business: products held in stock, inbound batches (truckloads), sales
  orders, customer receivables, repayments and expenses. Every mutation
  keeps product stock and customer debt consistent with the order history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Snapshot: The complete serializable state at a point in time
  - Order / OrderItem: Sales facts with denormalized customer/product names
  - Customer: Holds a CACHED debt figure, never ground truth
  - Batch / ExtraFee: Inbound goods sharing a cost basis
  - Expense: Costs, optionally mirrored into a batch's extra fees

DESIGN PRINCIPLES:
  1. Orders are facts: names are copied at creation and never joined live
  2. Debt is derived: RecalculateAllDebts is the canonical rebuild path
  3. Copy-on-write: a failed operation leaves the previous snapshot intact
  4. Wire compatibility: JSON field names match the legacy payload

USAGE:
  s := ledger.NewStore()
  err := s.AddOrder(ledger.Order{
      CustomerID:     "c-1",
      Items:          []ledger.OrderItem{{ProductID: "p-1", Qty: 2, Subtotal: 100}},
      TotalAmount:    100,
      ReceivedAmount: 60,
  })

SEE ALSO:
  - store.go: Store and mutation operations
  - reconcile.go: Canonical debt rebuild
  - sanitize.go: Untrusted snapshot import
  - codec.go: Plain-text transport
*/
package ledger

// =============================================================================
// ENUMS
// =============================================================================

type PricingMode string

const (
	PricingWeight PricingMode = "WEIGHT"
	PricingPiece  PricingMode = "PIECE"
)

func (m PricingMode) Valid() bool {
	return m == PricingWeight || m == PricingPiece
}

type PaymentMethod string

const (
	PaymentWeChat PaymentMethod = "WECHAT"
	PaymentAlipay PaymentMethod = "ALIPAY"
	PaymentCash   PaymentMethod = "CASH"
	PaymentOther  PaymentMethod = "OTHER"
)

// PaymentMethods lists every known method in display order.
var PaymentMethods = []PaymentMethod{PaymentWeChat, PaymentAlipay, PaymentCash, PaymentOther}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentWeChat, PaymentAlipay, PaymentCash, PaymentOther:
		return true
	}
	return false
}

// OrderStatus is monotonic: ACTIVE -> CANCELLED, never back.
type OrderStatus string

const (
	OrderActive    OrderStatus = "ACTIVE"
	OrderCancelled OrderStatus = "CANCELLED"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// SnapshotType marks a payload produced by this application.
	SnapshotType = "FRUIT_SYNC"

	// GuestCustomerID is the reserved walk-in customer. It never accrues debt.
	GuestCustomerID = "guest"

	guestCustomerName = "散客"

	// DefaultLowStockThreshold applies when a product has no threshold set.
	DefaultLowStockThreshold = 10
)

// DefaultPayees seeds a fresh ledger and replaces a missing payee list on import.
var DefaultPayees = []string{"豆建国", "王妮", "关灵恩", "楠楠嫂"}

// =============================================================================
// ENTITIES
// =============================================================================

type Product struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Category           string      `json:"category"`
	PricingMode        PricingMode `json:"pricingMode"`
	DefaultTare        float64     `json:"defaultTare"`
	StockQty           float64     `json:"stockQty"`
	StockWeight        float64     `json:"stockWeight"`
	InitialStockQty    float64     `json:"initialStockQty"`
	InitialStockWeight float64     `json:"initialStockWeight"`
	BatchID            string      `json:"batchId,omitempty"`
	CostPrice          float64     `json:"costPrice,omitempty"`
	SellingPrice       float64     `json:"sellingPrice"`
	LowStockThreshold  float64     `json:"lowStockThreshold,omitempty"`
}

type ExtraFee struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Batch is one inbound truckload. Products reference it by BatchID.
type Batch struct {
	ID          string     `json:"id"`
	PlateNumber string     `json:"plateNumber"`
	InboundDate string     `json:"inboundDate"`
	Cost        float64    `json:"cost"`
	ExtraFees   []ExtraFee `json:"extraFees"`
	TotalWeight float64    `json:"totalWeight"`
	IsClosed    bool       `json:"isClosed"`
	BatchNo     int        `json:"batchNo"`
}

// OrderItem copies the product name at sale time so history renders
// unchanged after a rename or delete.
type OrderItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Qty         float64 `json:"qty"`
	GrossWeight float64 `json:"grossWeight"`
	TareWeight  float64 `json:"tareWeight"`
	NetWeight   float64 `json:"netWeight"`
	UnitPrice   float64 `json:"unitPrice"`
	Subtotal    float64 `json:"subtotal"`
}

type Order struct {
	ID             string        `json:"id"`
	OrderNo        string        `json:"orderNo"`
	CustomerID     string        `json:"customerId"`
	CustomerName   string        `json:"customerName"`
	Items          []OrderItem   `json:"items"`
	TotalAmount    float64       `json:"totalAmount"`
	ReceivedAmount float64       `json:"receivedAmount"`
	Discount       float64       `json:"discount"`
	ExtraFee       float64       `json:"extraFee"`
	PaymentMethod  PaymentMethod `json:"paymentMethod"`
	Payee          string        `json:"payee"`
	CreatedAt      string        `json:"createdAt"`
	Status         OrderStatus   `json:"status"`
	Note           string        `json:"note,omitempty"`
}

// Customer.TotalDebt is a cache. RecalculateAllDebts is the source of truth.
type Customer struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	TotalDebt float64 `json:"totalDebt"`
	IsGuest   bool    `json:"isGuest"`
}

type Repayment struct {
	ID           string  `json:"id"`
	CustomerID   string  `json:"customerId"`
	CustomerName string  `json:"customerName"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date"`
	Payee        string  `json:"payee"`
	Note         string  `json:"note,omitempty"`
}

// Expense with a BatchID shares its ID with an ExtraFee on that batch.
type Expense struct {
	ID      string  `json:"id"`
	Amount  float64 `json:"amount"`
	Type    string  `json:"type"`
	Date    string  `json:"date"`
	Note    string  `json:"note"`
	BatchID string  `json:"batchId,omitempty"`
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the complete application state. Collections are never nil
// once a snapshot has passed through NewSnapshot, Sanitize or the Store.
type Snapshot struct {
	Products   []Product   `json:"products"`
	Batches    []Batch     `json:"batches"`
	Orders     []Order     `json:"orders"`
	Repayments []Repayment `json:"repayments"`
	Customers  []Customer  `json:"customers"`
	Payees     []string    `json:"payees"`
	Expenses   []Expense   `json:"expenses"`
	Timestamp  int64       `json:"timestamp"`
	Type       string      `json:"type"`
}

// NewSnapshot returns the empty ledger: only the guest customer and the
// default payees.
func NewSnapshot() Snapshot {
	return Snapshot{
		Products:   []Product{},
		Batches:    []Batch{},
		Orders:     []Order{},
		Repayments: []Repayment{},
		Customers:  []Customer{guestCustomer()},
		Payees:     append([]string{}, DefaultPayees...),
		Expenses:   []Expense{},
		Type:       SnapshotType,
	}
}

func guestCustomer() Customer {
	return Customer{ID: GuestCustomerID, Name: guestCustomerName, IsGuest: true}
}

// Clone returns a deep copy. Callers may mutate the result freely.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Products:   append([]Product{}, s.Products...),
		Batches:    make([]Batch, len(s.Batches)),
		Orders:     make([]Order, len(s.Orders)),
		Repayments: append([]Repayment{}, s.Repayments...),
		Customers:  append([]Customer{}, s.Customers...),
		Payees:     append([]string{}, s.Payees...),
		Expenses:   append([]Expense{}, s.Expenses...),
		Timestamp:  s.Timestamp,
		Type:       s.Type,
	}
	for i, b := range s.Batches {
		b.ExtraFees = append([]ExtraFee{}, b.ExtraFees...)
		out.Batches[i] = b
	}
	for i, o := range s.Orders {
		o.Items = append([]OrderItem{}, o.Items...)
		out.Orders[i] = o
	}
	return out
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (s Snapshot) Product(id string) (Product, bool) {
	if i := s.productIndex(id); i >= 0 {
		return s.Products[i], true
	}
	return Product{}, false
}

func (s Snapshot) Batch(id string) (Batch, bool) {
	if i := s.batchIndex(id); i >= 0 {
		return s.Batches[i], true
	}
	return Batch{}, false
}

func (s Snapshot) Order(id string) (Order, bool) {
	if i := s.orderIndex(id); i >= 0 {
		return s.Orders[i], true
	}
	return Order{}, false
}

func (s Snapshot) Customer(id string) (Customer, bool) {
	if i := s.customerIndex(id); i >= 0 {
		return s.Customers[i], true
	}
	return Customer{}, false
}

// IsGuest reports whether a customer id must never carry debt.
func (s Snapshot) IsGuest(customerID string) bool {
	if customerID == GuestCustomerID {
		return true
	}
	c, ok := s.Customer(customerID)
	return ok && c.IsGuest
}

func (s Snapshot) productIndex(id string) int {
	for i := range s.Products {
		if s.Products[i].ID == id {
			return i
		}
	}
	return -1
}

func (s Snapshot) batchIndex(id string) int {
	for i := range s.Batches {
		if s.Batches[i].ID == id {
			return i
		}
	}
	return -1
}

func (s Snapshot) orderIndex(id string) int {
	for i := range s.Orders {
		if s.Orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (s Snapshot) customerIndex(id string) int {
	for i := range s.Customers {
		if s.Customers[i].ID == id {
			return i
		}
	}
	return -1
}
