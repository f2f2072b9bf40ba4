package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/sunward-travel/agent-ledger/internal/domain"
)

const accountColumns = `id, agent_id, total_credit, used_credit, deposit_balance,
	available_credit, is_frozen, version, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByAgentID(ctx context.Context, agentID uuid.UUID) (*domain.CreditAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM credit_account WHERE agent_id = $1`, agentID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByAgentID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByAgentID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.CreditAccount) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credit_account (
			id, agent_id, total_credit, used_credit, deposit_balance,
			available_credit, is_frozen, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, account.AgentID, account.TotalCredit, account.UsedCredit,
		account.DepositBalance, account.AvailableCredit, account.IsFrozen,
		account.Version, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("Create: %w", domain.ErrAccountExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetForUpdate locks the account row for the duration of the surrounding
// transaction. Every balance mutation must go through this lock.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, agentID uuid.UUID) (*domain.CreditAccount, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM credit_account WHERE agent_id = $1 FOR UPDATE`, agentID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

// UpdateBalances writes the mutated balance fields. available_credit is
// recomputed from the other three in the same statement so the stored column
// can never drift from the invariant. The version guard catches writes that
// raced past the row lock.
func (r *AccountRepository) UpdateBalances(ctx context.Context, tx *sql.Tx, account *domain.CreditAccount, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE credit_account
		SET used_credit = $1,
			deposit_balance = $2,
			available_credit = total_credit - $1 + $2,
			version = $3,
			updated_at = now()
		WHERE agent_id = $4 AND version = $5`,
		account.UsedCredit, account.DepositBalance, newVersion,
		account.AgentID, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalances: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalances: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *AccountRepository) SetFrozen(ctx context.Context, tx *sql.Tx, agentID uuid.UUID, frozen bool) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE credit_account SET is_frozen = $1, updated_at = now() WHERE agent_id = $2`,
		frozen, agentID,
	)
	if err != nil {
		return fmt.Errorf("SetFrozen: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetFrozen: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetFrozen: %w", domain.ErrAccountNotFound)
	}
	return nil
}

func scanAccount(s scanner) (*domain.CreditAccount, error) {
	var a domain.CreditAccount
	err := s.Scan(
		&a.ID, &a.AgentID, &a.TotalCredit, &a.UsedCredit, &a.DepositBalance,
		&a.AvailableCredit, &a.IsFrozen, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
