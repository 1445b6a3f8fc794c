package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type postgresRepo struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

func (r *postgresRepo) CreateSupplier(ctx context.Context, s *Supplier) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppliers
		  (id, name, type, api_endpoint, api_key, contact_email, contact_phone, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.Name, s.Type, nilIfEmpty(s.APIEndpoint), nilIfEmpty(s.APIKey),
		s.ContactEmail, nilIfEmpty(s.ContactPhone), s.IsActive)
	return err
}

func (r *postgresRepo) GetSupplierByID(ctx context.Context, id string) (*Supplier, error) {
	s := &Supplier{}
	var endpoint, key, phone sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, type, api_endpoint, api_key, contact_email, contact_phone, is_active, created_at, updated_at
		FROM suppliers WHERE id=$1`, id).Scan(
		&s.ID, &s.Name, &s.Type, &endpoint, &key, &s.ContactEmail, &phone,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.APIEndpoint = endpoint.String
	s.APIKey = key.String
	s.ContactPhone = phone.String
	return s, nil
}

func (r *postgresRepo) ListSuppliers(ctx context.Context, activeOnly bool) ([]*Supplier, error) {
	query := `
		SELECT id, name, type, api_endpoint, api_key, contact_email, contact_phone, is_active, created_at, updated_at
		FROM suppliers`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Supplier
	for rows.Next() {
		s := &Supplier{}
		var endpoint, key, phone sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &endpoint, &key, &s.ContactEmail,
			&phone, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.APIEndpoint = endpoint.String
		s.APIKey = key.String
		s.ContactPhone = phone.String
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *postgresRepo) CreateProduct(ctx context.Context, p *Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, title, description, supplier_id, category, images, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.Title, p.Description, p.SupplierID, nilIfEmpty(p.Category),
		pq.Array(p.Images), p.IsActive)
	return err
}

func (r *postgresRepo) GetProductByID(ctx context.Context, id string) (*Product, error) {
	p := &Product{}
	var category sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, supplier_id, category, images, is_active, created_at, updated_at
		FROM products WHERE id=$1`, id).Scan(
		&p.ID, &p.Title, &p.Description, &p.SupplierID, &category,
		pq.Array(&p.Images), &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Category = category.String
	return p, nil
}

func (r *postgresRepo) ListProducts(ctx context.Context, category string, activeOnly bool) ([]*Product, error) {
	query := `
		SELECT id, title, description, supplier_id, category, images, is_active, created_at, updated_at
		FROM products WHERE 1=1`
	args := []interface{}{}
	if category != "" {
		args = append(args, category)
		query += ` AND category=$1`
	}
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p := &Product{}
		var cat sql.NullString
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.SupplierID, &cat,
			pq.Array(&p.Images), &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Category = cat.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *postgresRepo) SetProductActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET is_active=$1, updated_at=$2 WHERE id=$3`, active, time.Now(), id)
	if err != nil {
		return err
	}
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
