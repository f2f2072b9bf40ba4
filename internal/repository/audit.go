package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
)

const auditColumns = `id, action, booking_id, order_number, agent_id,
	operator_id, operator_type, operator_name, amount, balance_before,
	balance_after, note, created_at`

// AuditRepository is append-only. No update or delete methods exist.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, tx *sql.Tx, e *domain.AuditEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_audit_log (
			id, action, booking_id, order_number, agent_id,
			operator_id, operator_type, operator_name, amount, balance_before,
			balance_after, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Action, e.BookingID, e.OrderNumber, e.AgentID,
		e.OperatorID, e.OperatorType, e.OperatorName, e.Amount, e.BalanceBefore,
		e.BalanceAfter, e.Note, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByAgent(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]domain.AuditEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_audit_log WHERE agent_id = $1`, agentID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAgent: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM payment_audit_log
		WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		agentID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAgent: %w", err)
	}
	defer rows.Close()

	entries, err := collectAuditEntries(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAgent: %w", err)
	}
	return entries, total, nil
}

func (r *AuditRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM payment_audit_log
		WHERE booking_id = $1 ORDER BY created_at`, bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByBooking: %w", err)
	}
	defer rows.Close()

	entries, err := collectAuditEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("ListByBooking: %w", err)
	}
	return entries, nil
}

func collectAuditEntries(rows *sql.Rows) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(s scanner) (*domain.AuditEntry, error) {
	var e domain.AuditEntry
	err := s.Scan(
		&e.ID, &e.Action, &e.BookingID, &e.OrderNumber, &e.AgentID,
		&e.OperatorID, &e.OperatorType, &e.OperatorName, &e.Amount, &e.BalanceBefore,
		&e.BalanceAfter, &e.Note, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
