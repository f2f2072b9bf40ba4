package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
)

const transactionColumns = `id, transaction_no, agent_id, amount, kind, booking_id,
	balance_before, balance_after, note, created_by, created_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// NextTransactionNo draws the next number from the database sequence.
// Uniqueness is enforced by the sequence plus the UNIQUE constraint on the
// column, so concurrent generations can never collide.
func (r *TransactionRepository) NextTransactionNo(ctx context.Context, tx *sql.Tx) (string, error) {
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('credit_transaction_no_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("NextTransactionNo: %w", err)
	}
	return fmt.Sprintf("TXN-%08d", n), nil
}

func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transaction (
			id, transaction_no, agent_id, amount, kind, booking_id,
			balance_before, balance_after, note, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.TransactionNo, t.AgentID, t.Amount, t.Kind, t.BookingID,
		t.BalanceBefore, t.BalanceAfter, t.Note, t.CreatedBy, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

type TransactionFilter struct {
	Kind *domain.TransactionKind
	From *time.Time
	To   *time.Time
}

// ListByAgent returns the agent's statement, newest first, with the total
// row count for paging.
func (r *TransactionRepository) ListByAgent(ctx context.Context, agentID uuid.UUID, filter TransactionFilter, limit, offset int) ([]domain.Transaction, int, error) {
	where := `WHERE agent_id = $1`
	args := []any{agentID}

	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		where += fmt.Sprintf(` AND kind = $%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credit_transaction `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAgent: count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM credit_transaction %s ORDER BY created_at DESC, transaction_no DESC LIMIT $%d OFFSET $%d`,
			transactionColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAgent: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByAgent: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByAgent: rows: %w", err)
	}
	return txns, total, nil
}

func (r *TransactionRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM credit_transaction
		WHERE booking_id = $1 ORDER BY created_at`, bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByBooking: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByBooking: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByBooking: rows: %w", err)
	}
	return txns, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(
		&t.ID, &t.TransactionNo, &t.AgentID, &t.Amount, &t.Kind, &t.BookingID,
		&t.BalanceBefore, &t.BalanceAfter, &t.Note, &t.CreatedBy, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
