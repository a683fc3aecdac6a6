package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	maxNumberAttempts = 3
	defaultPageSize   = 50
	maxPageSize       = 200
)

// ProductUnavailableError indicates a cart line refers to an inactive product.
type ProductUnavailableError struct {
	ProductID uuid.UUID
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

// CartStore reads and empties carts.
type CartStore interface {
	// ListCartForUpdate returns the cart lines and locks them for the
	// surrounding transaction.
	ListCartForUpdate(ctx context.Context, userID uuid.UUID) ([]cart.Line, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

// CouponStore locks and redeems coupons.
type CouponStore interface {
	FindByCodeForUpdate(ctx context.Context, code string) (*coupon.Coupon, error)
	Redeem(ctx context.Context, id uuid.UUID) error
}

// StockKeeper reserves and releases product stock.
type StockKeeper interface {
	ReserveStock(ctx context.Context, id uuid.UUID, qty int) error
	ReleaseStock(ctx context.Context, id uuid.UUID, qty int) error
}

// Transactor runs fn inside a single database transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher announces order events to other systems.
type Publisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order, from Status) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Orders  Repository
	Carts   CartStore
	Coupons CouponStore
	Stock   StockKeeper
	Tx      Transactor
	Events  Publisher
}

// Options configure pricing and telemetry. Zero values mean no tax, free
// shipping and no-op telemetry.
type Options struct {
	Tax            TaxRule
	Shipping       ShippingPolicy
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// CheckoutRequest holds the customer input for placing an order.
type CheckoutRequest struct {
	CouponCode    string
	PaymentMethod PaymentMethod
	Shipping      Address
	Billing       *Address
	Notes         string
}

type metrics struct {
	placed    metric.Int64Counter
	failed    metric.Int64Counter
	redeemed  metric.Int64Counter
	total     metric.Float64Histogram
	statusSet metric.Int64Counter
}

func newMetrics(m metric.Meter) (*metrics, error) {
	var (
		out metrics
		err error
	)
	if out.placed, err = m.Int64Counter("store.orders.placed",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, err
	}
	if out.failed, err = m.Int64Counter("store.orders.checkout_failed",
		metric.WithDescription("Checkouts that did not produce an order"),
	); err != nil {
		return nil, err
	}
	if out.redeemed, err = m.Int64Counter("store.coupons.redeemed",
		metric.WithDescription("Coupon redemptions"),
	); err != nil {
		return nil, err
	}
	if out.total, err = m.Float64Histogram("store.orders.total",
		metric.WithDescription("Order total amount"),
	); err != nil {
		return nil, err
	}
	if out.statusSet, err = m.Int64Counter("store.orders.status_changed",
		metric.WithDescription("Order status changes"),
	); err != nil {
		return nil, err
	}
	return &out, nil
}

// Service encapsulates order placement and fulfilment.
type Service struct {
	Deps
	tax      TaxRule
	shipping ShippingPolicy
	numbers  *Numberer
	tracer   trace.Tracer
	metrics  *metrics
	now      func() time.Time
}

// NewService creates an order Service.
func NewService(deps Deps, opts Options) (*Service, error) {
	if opts.Tax == nil {
		opts.Tax = NoTax{}
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	const scope = "github.com/xenking/storefront/internal/domain/order"
	m, err := newMetrics(opts.MeterProvider.Meter(scope))
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	s := &Service{
		Deps:     deps,
		tax:      opts.Tax,
		shipping: opts.Shipping,
		tracer:   opts.TracerProvider.Tracer(scope),
		metrics:  m,
		now:      time.Now,
	}
	// Numbers carry the same date as CreatedAt.
	s.numbers = NewNumbererWithClock(func() time.Time { return s.now() })
	return s, nil
}

// Checkout turns the user's cart into an order. Coupon locking and
// redemption, stock reservation, order storage and cart clearing happen in
// one transaction; a rejected coupon or short stock leaves nothing behind.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(attribute.String("user.id", userID.String())),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.metrics.failed.Add(ctx, 1)
		}
		span.End()
	}()

	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	var (
		o   *Order
		err error
	)
	for attempt := 1; ; attempt++ {
		o, err = s.placeOnce(ctx, userID, req)
		if errors.Is(err, ErrDuplicateNumber) && attempt < maxNumberAttempts {
			zctx.From(ctx).Warn("Order number collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	total, _ := o.TotalAmount.Float64()
	s.metrics.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod))))
	s.metrics.total.Record(ctx, total)
	if o.CouponCode != "" {
		s.metrics.redeemed.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.String("order.number", o.Number),
		attribute.String("order.total", o.TotalAmount.String()),
	)

	zctx.From(ctx).Info("Order placed",
		zap.Stringer("order_id", o.ID),
		zap.String("number", o.Number),
		zap.Stringer("total", o.TotalAmount),
		zap.String("coupon", o.CouponCode),
	)
	if err := s.Events.OrderPlaced(ctx, o); err != nil {
		zctx.From(ctx).Error("Publish order placed", zap.Error(err))
	}
	return o, nil
}

func (s *Service) placeOnce(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*Order, error) {
	var o *Order
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		lines, err := s.Carts.ListCartForUpdate(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "list cart")
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		in := BuildInput{
			Lines: make([]Line, len(lines)),
			Tax:   s.tax,
			Now:   s.now(),
		}
		for i, l := range lines {
			if !l.Product.Active {
				return &ProductUnavailableError{ProductID: l.ProductID}
			}
			in.Lines[i] = Line{
				ProductID: l.ProductID,
				Name:      l.Product.Name,
				Price:     l.Product.Price,
				Quantity:  l.Quantity,
			}
		}
		in.Shipping = s.shipping.Amount(cart.Summarize(lines).Subtotal)

		if code := coupon.NormalizeCode(req.CouponCode); code != "" {
			c, err := s.Coupons.FindByCodeForUpdate(ctx, code)
			if err != nil {
				return err
			}
			in.Coupon = c
		}

		o, err = Build(in)
		if err != nil {
			return err
		}
		if in.Coupon != nil {
			if err := coupon.Check(in.Coupon, o.Subtotal, in.Now); err != nil {
				return err
			}
			if o.DiscountAmount.IsPositive() {
				if err := s.Coupons.Redeem(ctx, in.Coupon.ID); err != nil {
					return err
				}
			}
		}

		for _, it := range o.Items {
			if err := s.Stock.ReserveStock(ctx, it.ProductID, it.Quantity); err != nil {
				return errors.Wrapf(err, "reserve %q", it.ProductName)
			}
		}

		o.Number = s.numbers.Next()
		o.UserID = userID
		o.PaymentMethod = req.PaymentMethod
		o.Shipping = req.Shipping
		o.Billing = req.Shipping
		if req.Billing != nil {
			o.Billing = *req.Billing
		}
		o.Notes = req.Notes

		if err := s.Orders.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.Orders.AddStatusChange(ctx, &StatusChange{
			ID:        uuid.New(),
			OrderID:   o.ID,
			Status:    o.Status,
			Notes:     "Order placed",
			ChangedBy: &userID,
			CreatedAt: in.Now,
		}); err != nil {
			return errors.Wrap(err, "add status change")
		}
		if err := s.Carts.ClearCart(ctx, userID); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns an order visible to the user. Admins see every order; other
// users get ErrNotFound for orders they do not own.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID, isAdmin bool) (*Order, error) {
	o, err := s.Orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return s.Orders.ListOrders(ctx, userID)
}

// ListAll returns orders of all users.
func (s *Service) ListAll(ctx context.Context, f Filter) ([]Order, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", f.Status)
	}
	return s.Orders.ListAllOrders(ctx, f)
}

// History returns the status changes of an order visible to the user.
func (s *Service) History(ctx context.Context, userID, id uuid.UUID, isAdmin bool) ([]StatusChange, error) {
	if _, err := s.Get(ctx, userID, id, isAdmin); err != nil {
		return nil, err
	}
	return s.Orders.ListStatusChanges(ctx, id)
}

// UpdateStatus moves an order along the status workflow on behalf of an
// administrator.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, note string, changedBy uuid.UUID) (*Order, error) {
	return s.changeStatus(ctx, id, to, note, &changedBy, func(*Order) error { return nil })
}

// Cancel cancels the user's own order while it is still pending or
// confirmed, and returns its items to stock.
func (s *Service) Cancel(ctx context.Context, userID, id uuid.UUID) (*Order, error) {
	return s.changeStatus(ctx, id, StatusCancelled, "Cancelled by customer", &userID, func(o *Order) error {
		if o.UserID != userID {
			return ErrNotFound
		}
		if !o.CanBeCancelled() {
			return &TransitionError{From: o.Status, To: StatusCancelled}
		}
		return nil
	})
}

// MarkPaid records a successful payment. A pending order becomes confirmed.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string) (*Order, error) {
	var (
		o    *Order
		from Status
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.Orders.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		if o.PaymentStatus == PaymentPaid {
			return nil
		}
		if o.Status == StatusCancelled || o.Status == StatusRefunded {
			return &TransitionError{From: o.Status, To: StatusConfirmed, Reason: "order is closed"}
		}

		now := s.now()
		o.PaymentStatus = PaymentPaid
		o.PaymentID = paymentID
		o.UpdatedAt = now
		if o.Status == StatusPending {
			if err := o.Transition(StatusConfirmed, now); err != nil {
				return err
			}
		}
		if err := s.Orders.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		return s.Orders.AddStatusChange(ctx, &StatusChange{
			ID:        uuid.New(),
			OrderID:   o.ID,
			Status:    o.Status,
			Notes:     "Payment received",
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	if from != o.Status {
		s.statusChanged(ctx, o, from)
	}
	return o, nil
}

func (s *Service) changeStatus(
	ctx context.Context,
	id uuid.UUID,
	to Status,
	note string,
	changedBy *uuid.UUID,
	guard func(*Order) error,
) (*Order, error) {
	if !to.Valid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", to)
	}

	var (
		o    *Order
		from Status
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.Orders.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := guard(o); err != nil {
			return err
		}
		from = o.Status
		now := s.now()
		if err := o.Transition(to, now); err != nil {
			return err
		}
		if to == StatusCancelled {
			for _, it := range o.Items {
				if err := s.Stock.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return errors.Wrapf(err, "release %q", it.ProductName)
				}
			}
		}
		if err := s.Orders.UpdateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "update order")
		}
		return s.Orders.AddStatusChange(ctx, &StatusChange{
			ID:        uuid.New(),
			OrderID:   o.ID,
			Status:    to,
			Notes:     note,
			ChangedBy: changedBy,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.statusChanged(ctx, o, from)
	return o, nil
}

func (s *Service) statusChanged(ctx context.Context, o *Order, from Status) {
	s.metrics.statusSet.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(o.Status))))
	zctx.From(ctx).Info("Order status changed",
		zap.Stringer("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
	)
	if err := s.Events.StatusChanged(ctx, o, from); err != nil {
		zctx.From(ctx).Error("Publish status change", zap.Error(err))
	}
}
