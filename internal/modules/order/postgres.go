package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type postgresRepo struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const orderColumns = `id, user_id, total_amount, payment_status, order_status, payment_id,
       shipping_address, tracking_number, notes, created_at, updated_at`

// CreateOrder inserts the order and all its items inside a single transaction.
func (r *postgresRepo) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders
		  (id, user_id, total_amount, payment_status, order_status, shipping_address, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.UserID, o.TotalAmount, o.PaymentStatus, o.OrderStatus, addr, nilIfEmpty(o.Notes))
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, variant_id, qty, supplier_id, price_at_purchase)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, item.VariantID, item.Qty, item.SupplierID, item.PriceAtPurchase)
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1`, uid))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Items, err = r.listItems(ctx, o.ID)
	return o, err
}

func (r *postgresRepo) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.Items, err = r.listItems(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *postgresRepo) UpdateStatus(ctx context.Context, id string, status Status, trackingNumber string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET order_status=$1,
		    tracking_number=COALESCE(NULLIF($2,''), tracking_number),
		    updated_at=$3
		WHERE id=$4`,
		status, trackingNumber, time.Now(), id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// Cancel releases every reserved line and flips the status in one transaction.
// The status flip is conditional so a concurrent shipment wins the race.
func (r *postgresRepo) Cancel(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET order_status=$1, updated_at=$2
		WHERE id=$3 AND order_status IN ('CREATED','PAYMENT_PENDING','CONFIRMED','PROCESSING')`,
		StatusCancelled, time.Now(), o.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidStatusTransition
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			UPDATE variants
			SET available_qty = available_qty + $2,
			    reserved_qty  = GREATEST(reserved_qty - $2, 0),
			    updated_at    = $3
			WHERE id = $1`,
			item.VariantID, item.Qty, time.Now())
		if err != nil {
			return fmt.Errorf("release variant %s: %w", item.VariantID, err)
		}
	}

	return tx.Commit()
}

func (r *postgresRepo) MarkPaid(ctx context.Context, orderID, paymentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1,
		    payment_id     = $2,
		    order_status   = CASE WHEN order_status IN ('CREATED','PAYMENT_PENDING')
		                          THEN 'CONFIRMED' ELSE order_status END,
		    updated_at     = $3
		WHERE id = $4 AND payment_status <> $1`,
		PaymentPaid, paymentID, time.Now(), orderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postgresRepo) SetPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_status=$1, updated_at=$2 WHERE id=$3`,
		status, time.Now(), orderID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ── helpers ──────────────────────────────────────────────────────────────────

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanOrder(row rowScanner) (*Order, error) {
	o := &Order{}
	var paymentID, tracking, notes sql.NullString
	var addr []byte
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.PaymentStatus, &o.OrderStatus,
		&paymentID, &addr, &tracking, &notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if paymentID.Valid {
		pid, err := uuid.Parse(paymentID.String)
		if err == nil {
			o.PaymentID = &pid
		}
	}
	o.TrackingNumber = tracking.String
	o.Notes = notes.String
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	return o, nil
}

func (r *postgresRepo) listItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT variant_id, qty, supplier_id, price_at_purchase
		FROM order_items WHERE order_id=$1 ORDER BY variant_id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.VariantID, &it.Qty, &it.SupplierID, &it.PriceAtPurchase); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
