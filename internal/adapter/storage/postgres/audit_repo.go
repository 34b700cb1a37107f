package postgres

import (
	"context"
	"fmt"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository on the payment_audit table.
// UPDATE and DELETE on that table are rejected by a trigger (see migrations).
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a PostgreSQL-backed AuditRepository.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Append inserts an audit entry in the same transaction as the mutation it records.
func (r *AuditRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.AuditEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO payment_audit (id, payment_id, action, old_status, new_status, details, notes, actor_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.PaymentID, e.Action, e.OldStatus, e.NewStatus,
		e.Details, e.Notes, e.ActorID, e.CreatedAt,
	)
	if err != nil {
		return translateError("insert audit entry", err)
	}
	return nil
}

// ListByPayment returns the audit trail of a payment, oldest first.
func (r *AuditRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, payment_id, action, old_status, new_status, details::text, notes, actor_id, created_at
		 FROM payment_audit WHERE payment_id = $1 ORDER BY created_at, id`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.PaymentID, &e.Action, &e.OldStatus, &e.NewStatus,
			&e.Details, &e.Notes, &e.ActorID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}
