package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/logging"
	"github.com/sunward-travel/agent-ledger/internal/repository"
)

type accountRepo interface {
	Create(ctx context.Context, account *domain.CreditAccount) error
	GetByAgentID(ctx context.Context, agentID uuid.UUID) (*domain.CreditAccount, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, agentID uuid.UUID) (*domain.CreditAccount, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, account *domain.CreditAccount, newVersion int64) error
	SetFrozen(ctx context.Context, tx *sql.Tx, agentID uuid.UUID, frozen bool) error
}

type auditRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.AuditEntry) error
}

type transactionRepo interface {
	NextTransactionNo(ctx context.Context, tx *sql.Tx) (string, error)
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	ListByAgent(ctx context.Context, agentID uuid.UUID, filter repository.TransactionFilter, limit, offset int) ([]domain.Transaction, int, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Transaction, error)
}

// Service owns all balance mutations. Every mutation runs as one database
// transaction: lock the account row, mutate in memory, write the account and
// its transaction row together. The Tx variants let callers fold a ledger
// movement into a larger transaction of their own.
type Service struct {
	accounts     accountRepo
	transactions transactionRepo
	audits       auditRepo
	db           *sql.DB
}

func NewService(accounts accountRepo, transactions transactionRepo, audits auditRepo, db *sql.DB) *Service {
	return &Service{accounts: accounts, transactions: transactions, audits: audits, db: db}
}

type OpenAccountRequest struct {
	AgentID        uuid.UUID
	TotalCredit    int64
	DepositBalance int64
	Actor          domain.Actor
}

// OpenAccount provisions the single credit account an agent gets. The stored
// available figure starts consistent with the invariant.
func (s *Service) OpenAccount(ctx context.Context, req OpenAccountRequest) (*domain.CreditAccount, error) {
	if req.TotalCredit < 0 || req.DepositBalance < 0 {
		return nil, fmt.Errorf("OpenAccount: %w", domain.ErrInvalidAmount)
	}

	now := time.Now().UTC()
	account := &domain.CreditAccount{
		ID:              uuid.New(),
		AgentID:         req.AgentID,
		TotalCredit:     req.TotalCredit,
		DepositBalance:  req.DepositBalance,
		AvailableCredit: req.TotalCredit + req.DepositBalance,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("OpenAccount: %w", err)
	}

	logging.FromContext(ctx).Info("credit account opened",
		"agent_id", req.AgentID,
		"total_credit", req.TotalCredit,
		"deposit_balance", req.DepositBalance,
		"opened_by", req.Actor.Ref(),
	)
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, agentID uuid.UUID) (*domain.CreditAccount, error) {
	account, err := s.accounts.GetByAgentID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

func (s *Service) ListTransactions(ctx context.Context, agentID uuid.UUID, filter repository.TransactionFilter, limit, offset int) ([]domain.Transaction, int, error) {
	txns, total, err := s.transactions.ListByAgent(ctx, agentID, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	return txns, total, nil
}

// ListTransactionsByBooking returns every ledger movement tied to a booking,
// oldest first.
func (s *Service) ListTransactionsByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Transaction, error) {
	txns, err := s.transactions.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsByBooking: %w", err)
	}
	return txns, nil
}

type DebitRequest struct {
	AgentID   uuid.UUID
	Amount    int64
	BookingID *uuid.UUID
	Note      string
	Actor     domain.Actor
}

// Debit spends against the agent's account inside its own transaction.
func (s *Service) Debit(ctx context.Context, req DebitRequest) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Debit: begin tx: %w", err)
	}
	defer tx.Rollback()

	txn, err := s.DebitTx(ctx, tx, req)
	if err != nil {
		return nil, fmt.Errorf("Debit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Debit: commit: %w", err)
	}
	return txn, nil
}

// DebitTx consumes the deposit balance first, then draws down the credit
// line with any remainder. Fails on frozen accounts and when the total
// available figure cannot cover the amount.
func (s *Service) DebitTx(ctx context.Context, tx *sql.Tx, req DebitRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("DebitTx: %w", domain.ErrInvalidAmount)
	}

	account, err := s.accounts.GetForUpdate(ctx, tx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("DebitTx: %w", err)
	}

	if account.IsFrozen {
		return nil, fmt.Errorf("DebitTx: %w", domain.ErrAccountFrozen)
	}

	before := account.Available()
	if before < req.Amount {
		return nil, fmt.Errorf("DebitTx: available %d below %d: %w",
			before, req.Amount, domain.ErrInsufficientFunds)
	}

	fromDeposit := min(req.Amount, account.DepositBalance)
	account.DepositBalance -= fromDeposit
	account.UsedCredit += req.Amount - fromDeposit

	txn, err := s.writeMutation(ctx, tx, account, mutation{
		amount:    req.Amount,
		kind:      domain.TransactionKindPayment,
		bookingID: req.BookingID,
		before:    before,
		after:     before - req.Amount,
		note:      req.Note,
		actor:     req.Actor,
	})
	if err != nil {
		return nil, fmt.Errorf("DebitTx: %w", err)
	}

	logging.FromContext(ctx).Info("account debited",
		"agent_id", req.AgentID,
		"amount", req.Amount,
		"from_deposit", fromDeposit,
		"transaction_no", txn.TransactionNo,
	)
	return txn, nil
}

type CreditRequest struct {
	AgentID uuid.UUID
	Amount  int64
	Note    string
	Actor   domain.Actor
}

// Credit adds prepaid funds. Used for voluntary top-ups and for refunds
// issued by price decreases. Permitted on frozen accounts.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Credit: begin tx: %w", err)
	}
	defer tx.Rollback()

	txn, err := s.CreditTx(ctx, tx, req)
	if err != nil {
		return nil, fmt.Errorf("Credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Credit: commit: %w", err)
	}
	return txn, nil
}

func (s *Service) CreditTx(ctx context.Context, tx *sql.Tx, req CreditRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("CreditTx: %w", domain.ErrInvalidAmount)
	}

	account, err := s.accounts.GetForUpdate(ctx, tx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("CreditTx: %w", err)
	}

	before := account.Available()
	account.DepositBalance += req.Amount

	txn, err := s.writeMutation(ctx, tx, account, mutation{
		amount: req.Amount,
		kind:   domain.TransactionKindAdjustment,
		before: before,
		after:  before + req.Amount,
		note:   req.Note,
		actor:  req.Actor,
	})
	if err != nil {
		return nil, fmt.Errorf("CreditTx: %w", err)
	}

	logging.FromContext(ctx).Info("account credited",
		"agent_id", req.AgentID,
		"amount", req.Amount,
		"transaction_no", txn.TransactionNo,
	)
	return txn, nil
}

type RepayRequest struct {
	AgentID uuid.UUID
	Amount  int64
	Note    string
	Actor   domain.Actor
}

// Repay pays down drawn credit. The amount is clamped to what is owed; an
// agent can never repay into a negative used balance. Frozen accounts may
// still be repaid.
func (s *Service) Repay(ctx context.Context, req RepayRequest) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Repay: begin tx: %w", err)
	}
	defer tx.Rollback()

	txn, err := s.RepayTx(ctx, tx, req)
	if err != nil {
		return nil, fmt.Errorf("Repay: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Repay: commit: %w", err)
	}
	return txn, nil
}

func (s *Service) RepayTx(ctx context.Context, tx *sql.Tx, req RepayRequest) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("RepayTx: %w", domain.ErrInvalidAmount)
	}

	account, err := s.accounts.GetForUpdate(ctx, tx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("RepayTx: %w", err)
	}

	if account.IsFrozen {
		log.Warn("repayment on frozen account", "agent_id", req.AgentID, "amount", req.Amount)
	}

	effective := min(req.Amount, account.UsedCredit)
	before := account.Available()
	account.UsedCredit -= effective

	txn, err := s.writeMutation(ctx, tx, account, mutation{
		amount: effective,
		kind:   domain.TransactionKindTopup,
		before: before,
		after:  before + effective,
		note:   req.Note,
		actor:  req.Actor,
	})
	if err != nil {
		return nil, fmt.Errorf("RepayTx: %w", err)
	}

	log.Info("credit repaid",
		"agent_id", req.AgentID,
		"requested", req.Amount,
		"effective", effective,
		"transaction_no", txn.TransactionNo,
	)
	return txn, nil
}

// SetFrozen flips the freeze flag and records the decision in the audit
// trail within one transaction.
func (s *Service) SetFrozen(ctx context.Context, agentID uuid.UUID, frozen bool, actor domain.Actor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SetFrozen: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.accounts.SetFrozen(ctx, tx, agentID, frozen); err != nil {
		return fmt.Errorf("SetFrozen: %w", err)
	}

	action := domain.AuditActionAccountFrozen
	if !frozen {
		action = domain.AuditActionAccountUnfrozen
	}
	entry := &domain.AuditEntry{
		ID:           uuid.New(),
		Action:       action,
		AgentID:      agentID,
		OperatorID:   actor.ID,
		OperatorType: actor.Type,
		OperatorName: actor.Name,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.audits.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("SetFrozen: audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SetFrozen: commit: %w", err)
	}
	logging.FromContext(ctx).Info("account freeze state changed", "agent_id", agentID, "frozen", frozen)
	return nil
}

type mutation struct {
	amount    int64
	kind      domain.TransactionKind
	bookingID *uuid.UUID
	before    int64
	after     int64
	note      string
	actor     domain.Actor
}

// writeMutation persists the mutated account and its transaction row
// together; the surrounding transaction makes them atomic.
func (s *Service) writeMutation(ctx context.Context, tx *sql.Tx, account *domain.CreditAccount, m mutation) (*domain.Transaction, error) {
	if err := s.accounts.UpdateBalances(ctx, tx, account, account.Version+1); err != nil {
		return nil, fmt.Errorf("writeMutation: %w", err)
	}
	account.Version++
	account.AvailableCredit = account.Available()

	txnNo, err := s.transactions.NextTransactionNo(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("writeMutation: %w", err)
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		TransactionNo: txnNo,
		AgentID:       account.AgentID,
		Amount:        m.amount,
		Kind:          m.kind,
		BookingID:     m.bookingID,
		BalanceBefore: m.before,
		BalanceAfter:  m.after,
		Note:          m.note,
		CreatedBy:     m.actor.Ref(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.transactions.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("writeMutation: transaction row: %w", err)
	}
	return txn, nil
}
