package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type postgresRepo struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const variantColumns = `id, product_id, sku, attributes, supplier_price, selling_price,
       available_qty, reserved_qty, last_synced_at, created_at, updated_at`

func (r *postgresRepo) Create(ctx context.Context, v *Variant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO variants
		  (id, product_id, sku, attributes, supplier_price, selling_price,
		   available_qty, reserved_qty, last_synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.ProductID, v.SKU, nullableJSON(v.Attributes),
		v.SupplierPrice, v.SellingPrice, v.AvailableQty, v.ReservedQty, v.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}
	return nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*Variant, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrVariantNotFound
	}
	v, err := scanVariant(r.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE id=$1`, uid))
	if err == sql.ErrNoRows {
		return nil, ErrVariantNotFound
	}
	return v, err
}

func (r *postgresRepo) ListByProduct(ctx context.Context, productID string) ([]*Variant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE product_id=$1 ORDER BY sku ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *postgresRepo) UpdatePrices(ctx context.Context, id string, supplierPrice, sellingPrice float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE variants SET supplier_price=$1, selling_price=$2, updated_at=$3 WHERE id=$4`,
		supplierPrice, sellingPrice, time.Now(), id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// Reserve is a single conditional write: the WHERE clause is the stock check,
// so the row either flips atomically or not at all.
func (r *postgresRepo) Reserve(ctx context.Context, id string, qty int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE variants
		SET available_qty = available_qty - $2,
		    reserved_qty  = reserved_qty + $2,
		    updated_at    = $3
		WHERE id = $1 AND available_qty >= $2`,
		id, qty, time.Now())
	if err != nil {
		return fmt.Errorf("reserve variant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Condition failed: distinguish missing variant from depleted stock and
	// report the balance observed now.
	var available int
	err = r.db.QueryRowContext(ctx, `SELECT available_qty FROM variants WHERE id=$1`, id).Scan(&available)
	if err == sql.ErrNoRows {
		return ErrVariantNotFound
	}
	if err != nil {
		return err
	}
	vid, _ := uuid.Parse(id)
	return &InsufficientStockError{VariantID: vid, Requested: qty, Available: available}
}

func (r *postgresRepo) Release(ctx context.Context, id string, qty int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE variants
		SET available_qty = available_qty + $2,
		    reserved_qty  = GREATEST(reserved_qty - $2, 0),
		    updated_at    = $3
		WHERE id = $1`,
		id, qty, time.Now())
	if err != nil {
		return fmt.Errorf("release variant: %w", err)
	}
	return mustAffect(res)
}

func (r *postgresRepo) Restock(ctx context.Context, id string, qty int) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE variants
		SET available_qty = available_qty + $2, last_synced_at = $3, updated_at = $3
		WHERE id = $1`,
		id, qty, now)
	if err != nil {
		return fmt.Errorf("restock variant: %w", err)
	}
	return mustAffect(res)
}

func (r *postgresRepo) Pricing(ctx context.Context, id string) (*Pricing, error) {
	p := &Pricing{}
	err := r.db.QueryRowContext(ctx, `
		SELECT v.selling_price, p.supplier_id
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`, id).Scan(&p.SellingPrice, &p.SupplierID)
	if err == sql.ErrNoRows {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanVariant(row rowScanner) (*Variant, error) {
	v := &Variant{}
	var attrs []byte
	var synced sql.NullTime
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &attrs,
		&v.SupplierPrice, &v.SellingPrice, &v.AvailableQty, &v.ReservedQty,
		&synced, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Attributes = attrs
	v.LastSyncedAt = synced.Time
	return v, nil
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVariantNotFound
	}
	return nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
