package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, customer_id, order_id, amount::text, currency, payment_method, status,
		transaction_id, payment_details::text, notes, created_at, updated_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new payment within a database transaction.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `INSERT INTO payments (id, customer_id, order_id, amount, currency, payment_method, status,
		transaction_id, payment_details, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.CustomerID, p.OrderID, domain.FormatAmount(p.Amount), p.Currency,
		p.Method, p.Status, p.TransactionID, p.Details, p.Notes,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return translateError("insert payment", err)
	}
	return nil
}

// GetByID fetches a payment by UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanPayment(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches a payment with a row-level lock (SELECT ... FOR UPDATE).
// Must be called within a transaction.
func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return r.scanPayment(tx.QueryRow(ctx, query, id))
}

// UpdateStatus updates a payment's status within a database transaction.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, updatedAt time.Time) error {
	query := `UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, status, updatedAt, id)
	if err != nil {
		return translateError("update payment status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", id)
	}
	return nil
}

// List fetches payments with filtering and pagination, newest first.
func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	add := func(cond string, arg any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, arg)
		argIdx++
	}

	if params.Status != nil {
		add("status = $%d", *params.Status)
	}
	if params.Method != nil {
		add("payment_method = $%d", *params.Method)
	}
	if params.CustomerID != nil {
		add("customer_id = $%d", *params.CustomerID)
	}
	if params.OrderID != nil {
		add("order_id = $%d", *params.OrderID)
	}
	if params.From != nil {
		add("created_at >= $%d", *params.From)
	}
	if params.To != nil {
		add("created_at <= $%d", *params.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		paymentColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, total, nil
}

// scanPayment scans a single row into a Payment. A missing row is (nil, nil).
func (r *PaymentRepo) scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	var amount string
	err := row.Scan(
		&p.ID, &p.CustomerID, &p.OrderID, &amount, &p.Currency,
		&p.Method, &p.Status, &p.TransactionID, &p.Details, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translateError("scan payment", err)
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	return p, nil
}
