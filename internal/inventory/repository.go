package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/database"
	"github.com/joao-fontenele/posflow/internal/domain"
)

const productColumns = `id, sku, name, unit_cost, unit_price, stock, reorder_point, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.UnitCost, &p.UnitPrice, &p.Stock, &p.ReorderPoint, &p.Status)
	return p, err
}

// Catalog reads and writes product rows through q, which is either the pool
// or a transaction owned by the caller.
type Catalog struct {
	q database.Querier
}

func NewCatalog(q database.Querier) *Catalog {
	return &Catalog{q: q}
}

func (c *Catalog) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if lowStockOnly {
		query += ` WHERE stock <= reorder_point`
	}
	query += ` ORDER BY name`

	rows, err := c.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(c.q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// LockProducts takes row locks in id order so concurrent checkouts touching
// overlapping products cannot deadlock.
func (c *Catalog) LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (c *Catalog) DecrementStock(ctx context.Context, productID string, qty int) (bool, int, error) {
	result, err := c.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, productID, qty)
	if err != nil {
		return false, 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, 0, err
	}

	if rowsAffected == 1 {
		return true, 0, nil
	}

	var available int
	err = c.q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("%w: %s", checkout.ErrProductNotFound, productID)
	}
	if err != nil {
		return false, 0, err
	}

	return false, available, nil
}

func (c *Catalog) IncrementStock(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("increment quantity must be positive, got %d", qty)
	}

	result, err := c.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", checkout.ErrProductNotFound, productID)
	}

	return nil
}

// Repository is the catalog as seen by the inventory service.
type Repository struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewRepository(db *sql.DB, lockTimeout time.Duration) *Repository {
	return &Repository{db: db, lockTimeout: lockTimeout}
}

func (r *Repository) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	return NewCatalog(r.db).ListProducts(ctx, lowStockOnly)
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return NewCatalog(r.db).GetProduct(ctx, id)
}

// Restock adds quantity to a product under its row lock, using the same
// increment cancellations use.
func (r *Repository) Restock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	var restocked *domain.Product

	err := database.WithTx(ctx, r.db, r.lockTimeout, func(tx *sql.Tx) error {
		catalog := NewCatalog(tx)

		locked, err := catalog.LockProducts(ctx, []string{id})
		if err != nil {
			return err
		}
		if _, ok := locked[id]; !ok {
			return fmt.Errorf("%w: %s", checkout.ErrProductNotFound, id)
		}

		if err := catalog.IncrementStock(ctx, id, quantity); err != nil {
			return err
		}

		restocked, err = catalog.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		if database.IsBusy(err) {
			return nil, fmt.Errorf("%w: %w", checkout.ErrBusy, err)
		}
		return nil, err
	}

	return restocked, nil
}
