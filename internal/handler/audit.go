package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/logging"
)

type auditReader interface {
	ListByAgent(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]domain.AuditEntry, int, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.AuditEntry, error)
}

// AuditHandler exposes the compliance trail read-only, to admins only.
type AuditHandler struct {
	audits auditReader
}

func NewAuditHandler(audits auditReader) *AuditHandler {
	return &AuditHandler{audits: audits}
}

type auditEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	Action        string     `json:"action"`
	BookingID     *uuid.UUID `json:"booking_id,omitempty"`
	OrderNumber   *string    `json:"order_number,omitempty"`
	AgentID       uuid.UUID  `json:"agent_id"`
	OperatorID    uuid.UUID  `json:"operator_id"`
	OperatorType  string     `json:"operator_type"`
	OperatorName  string     `json:"operator_name"`
	Amount        int64      `json:"amount"`
	BalanceBefore *int64     `json:"balance_before"`
	BalanceAfter  *int64     `json:"balance_after"`
	Note          string     `json:"note"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toAuditEntryDTO(e *domain.AuditEntry) auditEntryDTO {
	return auditEntryDTO{
		ID:            e.ID,
		Action:        string(e.Action),
		BookingID:     e.BookingID,
		OrderNumber:   e.OrderNumber,
		AgentID:       e.AgentID,
		OperatorID:    e.OperatorID,
		OperatorType:  string(e.OperatorType),
		OperatorName:  e.OperatorName,
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Note:          e.Note,
		CreatedAt:     e.CreatedAt,
	}
}

func (h *AuditHandler) ListByAgent(w http.ResponseWriter, r *http.Request) {
	_, appErr := adminFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	agentID, idErr := pathID(r, "agentID")
	if idErr != nil {
		RespondAppError(w, idErr, nil)
		return
	}

	limit, offset := parsePaging(r)
	entries, total, err := h.audits.ListByAgent(r.Context(), agentID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list audit entries", "error", err, "agent_id", agentID)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]auditEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toAuditEntryDTO(&entries[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"entries": dtos,
		"total":   total,
	})
}

func (h *AuditHandler) ListByBooking(w http.ResponseWriter, r *http.Request) {
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

	entries, err := h.audits.ListByBooking(r.Context(), bookingID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list audit entries", "error", err, "booking_id", bookingID)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]auditEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toAuditEntryDTO(&entries[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{"entries": dtos})
}
