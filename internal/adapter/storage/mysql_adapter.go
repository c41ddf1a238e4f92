package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/port"
)

const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrNoReferenced   = 1452
)

//go:embed schema.sql
var schemaSQL string

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates missing tables. Statements run one at a time since
// the driver does not enable multi-statement execution by default.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) Products() port.ProductRepository { return mysqlProducts{t.tx} }
func (t *mysqlTx) Discounts() port.DiscountRepository { return mysqlDiscounts{t.tx} }
func (t *mysqlTx) Sales() port.SaleRepository { return mysqlSales{t.tx} }
func (t *mysqlTx) Orders() port.OrderRepository { return mysqlOrders{t.tx} }
func (t *mysqlTx) Deliveries() port.DeliveryRepository { return mysqlDeliveries{t.tx} }
func (t *mysqlTx) Tickets() port.TicketRepository { return mysqlTickets{t.tx} }

type mysqlProducts struct{ tx *sql.Tx }

// FindByIDs takes row locks in primary key order so that two sales touching
// the same products cannot deadlock each other.
func (r mysqlProducts) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, sku, name, category_id, price, currency, type, inventory_count, status, version, created_at, updated_at
		FROM products WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id FOR UPDATE`, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var (
			p         domain.Product
			inventory sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.Price, &p.Currency, &p.Type,
			&inventory, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if inventory.Valid {
			n := int(inventory.Int64)
			p.InventoryCount = &n
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r mysqlProducts) AdjustInventory(ctx context.Context, productID string, delta int) error {
	result, err := r.tx.ExecContext(ctx, `
		UPDATE products
		SET inventory_count = inventory_count + ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ? AND inventory_count IS NOT NULL AND inventory_count + ? >= 0`,
		delta, productID, delta,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: product %s", domain.ErrInsufficientInventory, productID)
	}
	return nil
}

func (r mysqlProducts) Save(ctx context.Context, p domain.Product) error {
	var inventory sql.NullInt64
	if p.InventoryCount != nil {
		inventory = sql.NullInt64{Int64: int64(*p.InventoryCount), Valid: true}
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category_id, price, currency, type, inventory_count, status, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE
			sku = VALUES(sku), name = VALUES(name), category_id = VALUES(category_id), price = VALUES(price),
			currency = VALUES(currency), type = VALUES(type), inventory_count = VALUES(inventory_count),
			status = VALUES(status), version = version + 1, updated_at = NOW(6)`,
		p.ID, p.SKU, p.Name, p.CategoryID, p.Price, p.Currency, p.Type, inventory, p.Status,
	)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

type mysqlDiscounts struct{ tx *sql.Tx }

func (r mysqlDiscounts) FindByCode(ctx context.Context, code string) (*domain.Discount, error) {
	var (
		d                                  domain.Discount
		startsAt, endsAt                   sql.NullTime
		usageLimit                         sql.NullInt64
		productIDs, categoryIDs, customers []byte
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT code, type, value, active, starts_at, ends_at, usage_limit, usage_count, product_ids, category_ids, customer_ids
		FROM discounts WHERE code = ? FOR UPDATE`, code,
	).Scan(&d.Code, &d.Type, &d.Value, &d.Active, &startsAt, &endsAt, &usageLimit, &d.UsageCount,
		&productIDs, &categoryIDs, &customers)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query discount: %w", err)
	}

	if startsAt.Valid {
		d.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		d.EndsAt = &endsAt.Time
	}
	if usageLimit.Valid {
		n := int(usageLimit.Int64)
		d.UsageLimit = &n
	}
	for _, f := range []struct {
		raw []byte
		dst *[]string
	}{{productIDs, &d.ProductIDs}, {categoryIDs, &d.CategoryIDs}, {customers, &d.CustomerIDs}} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode discount scope: %w", err)
		}
	}
	return &d, nil
}

func (r mysqlDiscounts) IncrementUsage(ctx context.Context, code string) error {
	if _, err := r.tx.ExecContext(ctx, `UPDATE discounts SET usage_count = usage_count + 1 WHERE code = ?`, code); err != nil {
		return fmt.Errorf("increment discount usage: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == number
}
