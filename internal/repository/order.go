package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, number, user_id, status, payment_status, payment_method, payment_id,
		subtotal, tax_amount, shipping_amount, discount_amount, total_amount, coupon_code,
		shipping, billing, notes, tracking_number, shipped_at, delivered_at, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	createOrderItemSQL = `INSERT INTO order_items
		(id, order_id, product_id, product_name, product_price, quantity, total_price, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrderItemsSQL = `SELECT id, order_id, product_id, product_name, product_price, quantity, total_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id`

	listAllOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3, payment_id = $4,
		tracking_number = $5, shipped_at = $6, delivered_at = $7, updated_at = $8
		WHERE id = $1`

	addStatusChangeSQL = `INSERT INTO order_status_history (id, order_id, status, notes, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	listStatusChangesSQL = `SELECT id, order_id, status, notes, changed_by, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses the given DB.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder persists the order and its items in one transaction. The
// addresses are stored in JSONB columns.
func (r *OrderRepository) CreateOrder(ctx context.Context, o *order.Order) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		_, err := r.db.conn(ctx).Exec(ctx, createOrderSQL,
			o.ID, o.Number, o.UserID, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), o.PaymentID,
			o.Subtotal, o.TaxAmount, o.ShippingAmount, o.DiscountAmount, o.TotalAmount, o.CouponCode,
			o.Shipping, o.Billing, o.Notes, o.TrackingNumber, o.ShippedAt, o.DeliveredAt, o.CreatedAt, o.UpdatedAt,
		)
		switch {
		case err == nil:
		case isUniqueViolation(err, "orders_number_key"):
			return order.ErrDuplicateNumber
		default:
			return fmt.Errorf("creating order %q: %w", o.Number, err)
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(createOrderItemSQL,
				it.ID, o.ID, it.ProductID, it.ProductName, it.ProductPrice, int32(it.Quantity), it.TotalPrice, int32(i),
			)
		}
		if err := r.db.conn(ctx).SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("creating items of order %q: %w", o.Number, err)
		}
		return nil
	})
}

// GetOrder returns an order with its items.
func (r *OrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetOrderForUpdate returns an order with its items and locks the order row.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, id uuid.UUID) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders returns the user's orders, newest first.
func (r *OrderRepository) ListOrders(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	return r.list(ctx, listOrdersSQL, userID)
}

// ListAllOrders returns a page of all orders, optionally filtered by status.
func (r *OrderRepository) ListAllOrders(ctx context.Context, f order.Filter) ([]order.Order, error) {
	return r.list(ctx, listAllOrdersSQL, string(f.Status), f.Limit, f.Offset)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fetches the items of all given orders in a single query.
func (r *OrderRepository) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
	}

	rows, err := r.db.conn(ctx).Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	_, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (struct{}, error) {
		var (
			it      order.Item
			orderID uuid.UUID
			qty     int32
		)
		if err := row.Scan(&it.ID, &orderID, &it.ProductID, &it.ProductName, &it.ProductPrice, &qty, &it.TotalPrice); err != nil {
			return struct{}{}, err
		}
		it.Quantity = int(qty)
		o := &orders[index[orderID]]
		o.Items = append(o.Items, it)
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	return nil
}

// UpdateOrder stores status, payment and fulfilment fields.
func (r *OrderRepository) UpdateOrder(ctx context.Context, o *order.Order) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.PaymentStatus), o.PaymentID, o.TrackingNumber,
		o.ShippedAt, o.DeliveredAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// AddStatusChange appends an entry to the order's status history.
func (r *OrderRepository) AddStatusChange(ctx context.Context, c *order.StatusChange) error {
	_, err := r.db.conn(ctx).Exec(ctx, addStatusChangeSQL,
		c.ID, c.OrderID, string(c.Status), c.Notes, c.ChangedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding status change to %s: %w", c.OrderID, err)
	}
	return nil
}

// ListStatusChanges returns the status history of an order, oldest first.
func (r *OrderRepository) ListStatusChanges(ctx context.Context, orderID uuid.UUID) ([]order.StatusChange, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listStatusChangesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing status history of %s: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.StatusChange, error) {
		var (
			c      order.StatusChange
			status string
		)
		err := row.Scan(&c.ID, &c.OrderID, &status, &c.Notes, &c.ChangedBy, &c.CreatedAt)
		c.Status = order.Status(status)
		return c, err
	})
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                        order.Order
		status, payStatus, payBy string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &status, &payStatus, &payBy, &o.PaymentID,
		&o.Subtotal, &o.TaxAmount, &o.ShippingAmount, &o.DiscountAmount, &o.TotalAmount, &o.CouponCode,
		&o.Shipping, &o.Billing, &o.Notes, &o.TrackingNumber, &o.ShippedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	o.PaymentMethod = order.PaymentMethod(payBy)
	return o, err
}
