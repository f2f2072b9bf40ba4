package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/logging"
	"github.com/sunward-travel/agent-ledger/internal/repository"
	"github.com/sunward-travel/agent-ledger/internal/service/ledger"
)

type ledgerService interface {
	OpenAccount(ctx context.Context, req ledger.OpenAccountRequest) (*domain.CreditAccount, error)
	GetAccount(ctx context.Context, agentID uuid.UUID) (*domain.CreditAccount, error)
	Debit(ctx context.Context, req ledger.DebitRequest) (*domain.Transaction, error)
	Credit(ctx context.Context, req ledger.CreditRequest) (*domain.Transaction, error)
	Repay(ctx context.Context, req ledger.RepayRequest) (*domain.Transaction, error)
	SetFrozen(ctx context.Context, agentID uuid.UUID, frozen bool, actor domain.Actor) error
	ListTransactions(ctx context.Context, agentID uuid.UUID, filter repository.TransactionFilter, limit, offset int) ([]domain.Transaction, int, error)
	ListTransactionsByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Transaction, error)
}

type AccountHandler struct {
	ledger ledgerService
}

func NewAccountHandler(ledger ledgerService) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

type accountDTO struct {
	AgentID         uuid.UUID `json:"agent_id"`
	TotalCredit     int64     `json:"total_credit"`
	UsedCredit      int64     `json:"used_credit"`
	DepositBalance  int64     `json:"deposit_balance"`
	AvailableCredit int64     `json:"available_credit"`
	UsagePercentage string    `json:"usage_percentage"`
	IsFrozen        bool      `json:"is_frozen"`
	LastUpdated     time.Time `json:"last_updated"`
}

func toAccountDTO(a *domain.CreditAccount) accountDTO {
	return accountDTO{
		AgentID:         a.AgentID,
		TotalCredit:     a.TotalCredit,
		UsedCredit:      a.UsedCredit,
		DepositBalance:  a.DepositBalance,
		AvailableCredit: a.Available(),
		UsagePercentage: a.UsagePercentage().String(),
		IsFrozen:        a.IsFrozen,
		LastUpdated:     a.UpdatedAt,
	}
}

type transactionDTO struct {
	TransactionNo string     `json:"transaction_no"`
	Amount        int64      `json:"amount"`
	Kind          string     `json:"kind"`
	BookingID     *uuid.UUID `json:"booking_id,omitempty"`
	BalanceBefore int64      `json:"balance_before"`
	BalanceAfter  int64      `json:"balance_after"`
	Note          string     `json:"note"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	return transactionDTO{
		TransactionNo: t.TransactionNo,
		Amount:        t.Amount,
		Kind:          string(t.Kind),
		BookingID:     t.BookingID,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Note:          t.Note,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
	}
}

type openAccountRequest struct {
	AgentID        uuid.UUID `json:"agent_id"`
	TotalCredit    int64     `json:"total_credit"`
	DepositBalance int64     `json:"deposit_balance"`
}

func (o openAccountRequest) Validate() []FieldError {
	var errs []FieldError
	if o.AgentID == uuid.Nil {
		errs = append(errs, FieldError{Field: "agent_id", Message: "is required"})
	}
	if o.TotalCredit < 0 {
		errs = append(errs, FieldError{Field: "total_credit", Message: "must not be negative"})
	}
	if o.DepositBalance < 0 {
		errs = append(errs, FieldError{Field: "deposit_balance", Message: "must not be negative"})
	}
	return errs
}

func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	actor, appErr := adminFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, err := h.ledger.OpenAccount(r.Context(), ledger.OpenAccountRequest{
		AgentID:        req.AgentID,
		TotalCredit:    req.TotalCredit,
		DepositBalance: req.DepositBalance,
		Actor:          actor,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to open account", "error", err, "agent_id", req.AgentID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toAccountDTO(account))
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	agentID, _, appErr := agentScopeFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.ledger.GetAccount(r.Context(), agentID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

type movementRequest struct {
	Amount    int64      `json:"amount"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	Note      string     `json:"note"`
}

func (m movementRequest) Validate() []FieldError {
	var errs []FieldError
	if m.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

// Debit is the admin "spend" endpoint: deposit first, then the credit line.
func (h *AccountHandler) Debit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, func(ctx context.Context, agentID uuid.UUID, req movementRequest, actor domain.Actor) (*domain.Transaction, error) {
		return h.ledger.Debit(ctx, ledger.DebitRequest{
			AgentID:   agentID,
			Amount:    req.Amount,
			BookingID: req.BookingID,
			Note:      req.Note,
			Actor:     actor,
		})
	})
}

func (h *AccountHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, func(ctx context.Context, agentID uuid.UUID, req movementRequest, actor domain.Actor) (*domain.Transaction, error) {
		return h.ledger.Credit(ctx, ledger.CreditRequest{
			AgentID: agentID,
			Amount:  req.Amount,
			Note:    req.Note,
			Actor:   actor,
		})
	})
}

func (h *AccountHandler) Repay(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, func(ctx context.Context, agentID uuid.UUID, req movementRequest, actor domain.Actor) (*domain.Transaction, error) {
		return h.ledger.Repay(ctx, ledger.RepayRequest{
			AgentID: agentID,
			Amount:  req.Amount,
			Note:    req.Note,
			Actor:   actor,
		})
	})
}

func (h *AccountHandler) movement(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, agentID uuid.UUID, req movementRequest, actor domain.Actor) (*domain.Transaction, error)) {
	actor, appErr := adminFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	agentID, idErr := pathID(r, "agentID")
	if idErr != nil {
		RespondAppError(w, idErr, nil)
		return
	}

	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	txn, err := run(r.Context(), agentID, req, actor)
	if err != nil {
		logging.FromContext(r.Context()).Error("ledger movement failed", "error", err, "agent_id", agentID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionDTO(txn))
}

type freezeRequest struct {
	Frozen bool `json:"frozen"`
}

func (h *AccountHandler) SetFrozen(w http.ResponseWriter, r *http.Request) {
	actor, appErr := adminFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	agentID, idErr := pathID(r, "agentID")
	if idErr != nil {
		RespondAppError(w, idErr, nil)
		return
	}

	var req freezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if err := h.ledger.SetFrozen(r.Context(), agentID, req.Frozen, actor); err != nil {
		logging.FromContext(r.Context()).Error("failed to set freeze state", "error", err, "agent_id", agentID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]bool{"frozen": req.Frozen})
}

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	agentID, _, appErr := agentScopeFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var filter repository.TransactionFilter
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind := domain.TransactionKind(raw)
		if !kind.IsValid() {
			RespondValidationError(w, []FieldError{{Field: "kind", Message: "must be payment, topup, or adjustment"}})
			return
		}
		filter.Kind = &kind
	}

	var tErr *AppError
	if filter.From, tErr = parseTimeParam(r, "from"); tErr != nil {
		RespondAppError(w, tErr, nil)
		return
	}
	if filter.To, tErr = parseTimeParam(r, "to"); tErr != nil {
		RespondAppError(w, tErr, nil)
		return
	}

	limit, offset := parsePaging(r)
	txns, total, err := h.ledger.ListTransactions(r.Context(), agentID, filter, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err, "agent_id", agentID)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(txns))
	for i := range txns {
		dtos[i] = toTransactionDTO(&txns[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"transactions": dtos,
		"total":        total,
	})
}

func (h *AccountHandler) ListTransactionsByBooking(w http.ResponseWriter, r *http.Request) {
	_, appErr := adminFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	bookingID, idErr := pathID(r, "bookingID")
	if idErr != nil {
		RespondAppError(w, idErr, nil)
		return
	}

	txns, err := h.ledger.ListTransactionsByBooking(r.Context(), bookingID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err, "booking_id", bookingID)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(txns))
	for i := range txns {
		dtos[i] = toTransactionDTO(&txns[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{"transactions": dtos})
}
