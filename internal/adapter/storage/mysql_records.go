package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/fulfillment/internal/core/domain"
)

// Sales, orders and deliveries are stored as JSON documents next to the
// scalar columns that are filtered, joined or constrained on.

type mysqlSales struct{ tx *sql.Tx }

func (r mysqlSales) Create(ctx context.Context, sale domain.Sale) error {
	doc, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("encode sale: %w", err)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, status, order_id, total_amount, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.CustomerID, sale.Status, nullString(sale.OrderID), sale.TotalAmount, doc,
		sale.CreatedAt, sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (r mysqlSales) Get(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	found, err := getDocument(ctx, r.tx, `SELECT document FROM sales WHERE id = ?`, id, &sale)
	if err != nil || !found {
		return nil, err
	}
	return &sale, nil
}

func (r mysqlSales) Update(ctx context.Context, sale domain.Sale) error {
	doc, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("encode sale: %w", err)
	}
	result, err := r.tx.ExecContext(ctx, `
		UPDATE sales SET status = ?, order_id = ?, document = ?, updated_at = ? WHERE id = ?`,
		sale.Status, nullString(sale.OrderID), doc, sale.UpdatedAt, sale.ID,
	)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSaleNotFound, sale.ID)
	}
	return nil
}

type mysqlOrders struct{ tx *sql.Tx }

func (r mysqlOrders) Create(ctx context.Context, order domain.Order) error {
	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, customer_id, sale_id, status, payment_status, version, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderNumber, order.CustomerID, order.SaleID, order.Status, order.PaymentStatus,
		order.Version, doc, order.CreatedAt, order.UpdatedAt,
	)
	if isMySQLError(err, mysqlErrDuplicateEntry) {
		return fmt.Errorf("%w: order number %s", domain.ErrDuplicateRequest, order.OrderNumber)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r mysqlOrders) Get(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	found, err := getDocument(ctx, r.tx, `SELECT document FROM orders WHERE id = ?`, id, &order)
	if err != nil || !found {
		return nil, err
	}
	return &order, nil
}

// Update writes the order only if nobody bumped its version since it was
// read, then returns it at the new version.
func (r mysqlOrders) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	expected := order.Version
	order.Version++
	doc, err := json.Marshal(order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("encode order: %w", err)
	}
	result, err := r.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, payment_status = ?, version = version + 1, document = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		order.Status, order.PaymentStatus, doc, order.UpdatedAt, order.ID, expected,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Order{}, fmt.Errorf("%w: order %s version %d", domain.ErrOptimisticLock, order.ID, expected)
	}
	return order, nil
}

func (r mysqlOrders) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return listDocuments[domain.Order](ctx, r.tx,
		`SELECT document FROM orders WHERE customer_id = ? ORDER BY created_at DESC, id DESC`, customerID)
}

type mysqlDeliveries struct{ tx *sql.Tx }

func (r mysqlDeliveries) Create(ctx context.Context, d domain.Delivery) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO deliveries (id, order_id, tracking_number, status, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, nullString(d.OrderID), d.TrackingNumber, d.Status, doc, d.CreatedAt, d.UpdatedAt,
	)
	if isMySQLError(err, mysqlErrNoReferenced) {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, derefString(d.OrderID))
	}
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r mysqlDeliveries) Get(ctx context.Context, id string) (*domain.Delivery, error) {
	var d domain.Delivery
	found, err := getDocument(ctx, r.tx, `SELECT document FROM deliveries WHERE id = ? FOR UPDATE`, id, &d)
	if err != nil || !found {
		return nil, err
	}
	return &d, nil
}

func (r mysqlDeliveries) Update(ctx context.Context, d domain.Delivery) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	result, err := r.tx.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, document = ?, updated_at = ? WHERE id = ?`,
		d.Status, doc, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDeliveryNotFound, d.ID)
	}
	return nil
}

func (r mysqlDeliveries) ListByOrder(ctx context.Context, orderID string) ([]domain.Delivery, error) {
	return listDocuments[domain.Delivery](ctx, r.tx,
		`SELECT document FROM deliveries WHERE order_id = ? ORDER BY created_at, id`, orderID)
}

type mysqlTickets struct{ tx *sql.Tx }

func (r mysqlTickets) CreateBatch(ctx context.Context, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	const columns = 11
	values := make([]string, 0, len(tickets))
	args := make([]any, 0, len(tickets)*columns)
	for _, t := range tickets {
		values = append(values, "("+placeholders(columns)+")")
		args = append(args, t.ID, t.ProductID, nullString(t.VariantID), nullString(t.SaleID), t.UserID,
			t.TicketType, t.Price, t.Status, t.QRPayload, t.CreatedAt, t.UpdatedAt)
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO tickets (id, product_id, variant_id, sale_id, user_id, ticket_type, price, status, qr_payload, created_at, updated_at)
		VALUES `+strings.Join(values, ", "), args...)
	if err != nil {
		return fmt.Errorf("insert tickets: %w", err)
	}
	return nil
}

func (r mysqlTickets) ListBySale(ctx context.Context, saleID string) ([]domain.Ticket, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, product_id, variant_id, sale_id, user_id, ticket_type, price, status, qr_payload, created_at, updated_at
		FROM tickets WHERE sale_id = ? ORDER BY created_at, id`, saleID)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var (
			t       domain.Ticket
			variant sql.NullString
			sale    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.ProductID, &variant, &sale, &t.UserID, &t.TicketType, &t.Price,
			&t.Status, &t.QRPayload, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		if variant.Valid {
			t.VariantID = &variant.String
		}
		if sale.Valid {
			t.SaleID = &sale.String
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r mysqlTickets) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	if _, err := r.tx.ExecContext(ctx, `UPDATE tickets SET status = ?, updated_at = NOW(6) WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return nil
}

func getDocument(ctx context.Context, tx *sql.Tx, query, id string, dst any) (bool, error) {
	var doc []byte
	err := tx.QueryRowContext(ctx, query, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query document: %w", err)
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	return true, nil
}

func listDocuments[T any](ctx context.Context, tx *sql.Tx, query string, arg any) ([]T, error) {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
