package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const refundColumns = `id, payment_id, amount::text, reason_category, custom_reason, refund_method, status,
		processed_by, notes, created_at, updated_at`

// RefundRepo implements ports.RefundRepository.
type RefundRepo struct {
	pool Pool
}

// NewRefundRepo creates a new RefundRepo.
func NewRefundRepo(pool Pool) *RefundRepo {
	return &RefundRepo{pool: pool}
}

// Create inserts a refund within a database transaction.
func (r *RefundRepo) Create(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error {
	query := `INSERT INTO refunds (id, payment_id, amount, reason_category, custom_reason, refund_method, status,
		processed_by, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		refund.ID, refund.PaymentID, domain.FormatAmount(refund.Amount), refund.ReasonCategory,
		refund.CustomReason, refund.Method, refund.Status, refund.ProcessedBy, refund.Notes,
		refund.CreatedAt, refund.UpdatedAt,
	)
	if err != nil {
		return translateError("insert refund", err)
	}
	return nil
}

// GetByID fetches a refund by UUID.
func (r *RefundRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1`
	return r.scanRefund(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate locks the refund row. Callers lock the parent payment first.
func (r *RefundRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1 FOR UPDATE`
	return r.scanRefund(tx.QueryRow(ctx, query, id))
}

// UpdateStatus updates a refund's status within a database transaction.
func (r *RefundRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RefundStatus, updatedAt time.Time) error {
	query := `UPDATE refunds SET status = $1, updated_at = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, status, updatedAt, id)
	if err != nil {
		return translateError("update refund status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund not found: %s", id)
	}
	return nil
}

// SumCompleted returns the total of completed refunds for a payment.
// With a non-nil tx the sum is read inside that transaction.
func (r *RefundRepo) SumCompleted(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM refunds WHERE payment_id = $1 AND status = 'completed'`

	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(ctx, query, paymentID)
	} else {
		row = r.pool.QueryRow(ctx, query, paymentID)
	}

	var total string
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum completed refunds: %w", err)
	}
	sum, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse refund total %q: %w", total, err)
	}
	return sum, nil
}

// ListByPayment returns the refunds of a payment in creation order.
func (r *RefundRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE payment_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	refunds := []domain.Refund{}
	for rows.Next() {
		refund, err := r.scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund row: %w", err)
		}
		refunds = append(refunds, *refund)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund rows: %w", err)
	}
	return refunds, nil
}

func (r *RefundRepo) scanRefund(row pgx.Row) (*domain.Refund, error) {
	refund := &domain.Refund{}
	var amount string
	err := row.Scan(
		&refund.ID, &refund.PaymentID, &amount, &refund.ReasonCategory, &refund.CustomReason,
		&refund.Method, &refund.Status, &refund.ProcessedBy, &refund.Notes,
		&refund.CreatedAt, &refund.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translateError("scan refund", err)
	}
	if refund.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse refund amount %q: %w", amount, err)
	}
	return refund, nil
}
