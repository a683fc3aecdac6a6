package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when placing an order with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidOrderState is returned when order amounts break the total
	// invariant, such as a negative total.
	ErrInvalidOrderState = errors.New("invalid order state")
	// ErrDuplicateNumber is returned by the store when an order number is taken.
	ErrDuplicateNumber = errors.New("order number already exists")
	// ErrInvalidPaymentMethod is returned for unknown payment methods.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID uuid.UUID
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PaymentStatus tracks the payment of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethod is the gateway chosen at checkout.
type PaymentMethod string

const (
	PaymentStripe PaymentMethod = "stripe"
	PaymentMpesa  PaymentMethod = "mpesa"
	PaymentPaypal PaymentMethod = "paypal"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentStripe, PaymentMpesa, PaymentPaypal:
		return true
	default:
		return false
	}
}

// Address is a shipping or billing address copied into the order.
type Address struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is a placed customer order. Subtotal, discount, tax, shipping and
// total are fixed at placement; TotalAmount always equals RecomputeTotal.
type Order struct {
	ID             uuid.UUID
	Number         string
	UserID         uuid.UUID
	Status         Status
	PaymentStatus  PaymentStatus
	PaymentMethod  PaymentMethod
	PaymentID      string
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	CouponCode     string
	Shipping       Address
	Billing        Address
	Notes          string
	TrackingNumber string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Items          []Item
}

// Item is an order line. Name and price are snapshots taken when the order
// was built and do not follow later catalog edits.
type Item struct {
	ID           uuid.UUID
	ProductID    uuid.UUID
	ProductName  string
	ProductPrice decimal.Decimal
	Quantity     int
	TotalPrice   decimal.Decimal
}

// StatusChange is an entry of an order's status history.
type StatusChange struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Status    Status
	Notes     string
	ChangedBy *uuid.UUID
	CreatedAt time.Time
}

// Filter narrows admin order listings.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// CreateOrder stores the order with its items. It returns
	// ErrDuplicateNumber when the order number is taken.
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetOrderForUpdate is GetOrder that also row-locks the order until the
	// surrounding transaction ends.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	// ListOrders returns the user's orders, newest first.
	ListOrders(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListAllOrders(ctx context.Context, f Filter) ([]Order, error)
	// UpdateOrder stores status, payment and fulfilment fields.
	UpdateOrder(ctx context.Context, o *Order) error
	AddStatusChange(ctx context.Context, c *StatusChange) error
	ListStatusChanges(ctx context.Context, orderID uuid.UUID) ([]StatusChange, error)
}
