package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed payment repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

const paymentColumns = `id, order_id, user_id, provider, amount, currency, status,
	idempotency_key, COALESCE(provider_payment_id, ''), COALESCE(transaction_id, ''),
	refunded_amount, COALESCE(failure_reason, ''), refunded_at, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (id, order_id, user_id, provider, amount, currency,
			status, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.OrderID, p.UserID, p.Provider, p.Amount, p.Currency,
		p.Status, p.IdempotencyKey, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Unique violation on idempotency_key: a concurrent retry won.
			return fmt.Errorf("duplicate payment attempt: %w", err)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanPayment(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`
	return r.scanPayment(r.db.QueryRowContext(ctx, query, key))
}

func (r *postgresRepository) GetByProviderRef(ctx context.Context, providerPaymentID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_payment_id = $1`
	return r.scanPayment(r.db.QueryRowContext(ctx, query, providerPaymentID))
}

func (r *postgresRepository) ListByOrder(ctx context.Context, orderID string) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *postgresRepository) SetProviderRef(ctx context.Context, id, providerPaymentID string) error {
	query := `UPDATE payments SET provider_payment_id = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, providerPaymentID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	return mustAffect(res, ErrPaymentNotFound)
}

func (r *postgresRepository) Settle(ctx context.Context, id string, status Status, transactionID, failureReason string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1,
		    transaction_id = COALESCE(NULLIF($2, ''), transaction_id),
		    failure_reason = NULLIF($3, ''),
		    updated_at = $4
		WHERE id = $5 AND status = 'PENDING'`

	res, err := r.db.ExecContext(ctx, query, status, transactionID, failureReason, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postgresRepository) RecordRefund(ctx context.Context, id string, amount float64) (*Payment, error) {
	// The accumulation guard lives in the WHERE clause so two concurrent
	// refunds cannot both pass a stale service-side read.
	query := `
		UPDATE payments
		SET refunded_amount = refunded_amount + $1,
		    status = CASE WHEN refunded_amount + $1 >= amount THEN 'REFUNDED' ELSE status END,
		    refunded_at = $2,
		    updated_at = $2
		WHERE id = $3 AND refunded_amount + $1 <= amount
		RETURNING ` + paymentColumns

	p, err := r.scanPayment(r.db.QueryRowContext(ctx, query, amount, time.Now().UTC(), id))
	if errors.Is(err, ErrPaymentNotFound) {
		// Zero rows: either the payment is gone or the refund would
		// exceed the captured amount.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidAmount
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *postgresRepository) scanPayment(row rowScanner) (*Payment, error) {
	var p Payment
	var refundedAt sql.NullTime

	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Provider, &p.Amount, &p.Currency,
		&p.Status, &p.IdempotencyKey, &p.ProviderPaymentID, &p.TransactionID,
		&p.RefundedAmount, &p.FailureReason, &refundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	if refundedAt.Valid {
		t := refundedAt.Time
		p.RefundedAt = &t
	}
	return &p, nil
}

func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
