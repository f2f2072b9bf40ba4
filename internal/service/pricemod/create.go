package pricemod

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopspring/decimal"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/logging"
	"github.com/sunward-travel/agent-ledger/internal/service/ledger"
)

type CreateRequest struct {
	BookingID uuid.UUID
	NewPrice  int64
	Reason    string
	Actor     domain.Actor
}

type CreateResult struct {
	Request *domain.PriceModificationRequest
	Message string
}

// Create proposes a price change for a booking. Decreases settle
// synchronously: the delta is refunded to the agent's deposit, the booking
// price is updated and the request lands terminal with no agent step.
// Increases persist a pending request and wait for the agent; no ledger
// mutation happens until approval.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	log := logging.FromContext(ctx)

	if !req.Actor.IsAdmin() {
		return nil, fmt.Errorf("Create: %w", domain.ErrActorNotAllowed)
	}
	if req.NewPrice <= 0 {
		return nil, fmt.Errorf("Create: %w", domain.ErrInvalidAmount)
	}

	booking, err := s.bookings.Get(ctx, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	if req.NewPrice == booking.Price {
		return nil, fmt.Errorf("Create: %w", domain.ErrSamePrice)
	}

	delta := req.NewPrice - booking.Price
	if delta < 0 {
		return s.createDecrease(ctx, req, booking, -delta)
	}

	result, err := s.createIncrease(ctx, req, booking, delta)
	if err != nil {
		return nil, err
	}

	log.Info("price increase proposed",
		"booking_id", req.BookingID,
		"agent_id", booking.AgentID,
		"delta", delta,
		"request_id", result.Request.ID,
	)
	return result, nil
}

// createDecrease refunds the delta and completes the request in one database
// transaction; the refund is irrevocable once applied. The booking price
// write and the agent notification follow the commit because they live in an
// external subsystem.
func (s *Service) createDecrease(ctx context.Context, req CreateRequest, booking *Booking, refund int64) (*CreateResult, error) {
	log := logging.FromContext(ctx)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("createDecrease: begin tx: %w", err)
	}
	defer tx.Rollback()

	pending, err := s.requests.HasPending(ctx, tx, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("createDecrease: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("createDecrease: %w", domain.ErrDuplicatePendingRequest)
	}

	note := fmt.Sprintf("price decrease refund for order %s: %s", booking.OrderNumber, req.Reason)
	txn, err := s.ledger.CreditTx(ctx, tx, ledger.CreditRequest{
		AgentID: booking.AgentID,
		Amount:  refund,
		Note:    note,
		Actor:   req.Actor,
	})
	if err != nil {
		return nil, fmt.Errorf("createDecrease: %w", err)
	}

	pmr := &domain.PriceModificationRequest{
		ID:               uuid.New(),
		BookingID:        req.BookingID,
		AgentID:          booking.AgentID,
		OriginalPrice:    booking.Price,
		NewPrice:         req.NewPrice,
		PriceDifference:  req.NewPrice - booking.Price,
		ModificationType: domain.ModificationTypeDecrease,
		Reason:           req.Reason,
		Status:           domain.RequestStatusCompleted,
		CreatedBy:        req.Actor.Ref(),
		CreatedAt:        now,
		ProcessedAt:      &now,
	}
	if err := s.requests.Create(ctx, tx, pmr); err != nil {
		return nil, fmt.Errorf("createDecrease: %w", err)
	}

	if err := s.writeAudit(ctx, tx, domain.AuditActionPriceDecrease, pmr, booking, req.Actor, refund, &txn.BalanceBefore, &txn.BalanceAfter, req.Reason, now); err != nil {
		return nil, fmt.Errorf("createDecrease: %w", err)
	}
	if err := s.writeAudit(ctx, tx, domain.AuditActionRefund, pmr, booking, req.Actor, refund, &txn.BalanceBefore, &txn.BalanceAfter, note, now); err != nil {
		return nil, fmt.Errorf("createDecrease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("createDecrease: commit: %w", err)
	}

	// The ledger side is committed; a failed booking write is surfaced for
	// the caller to retry, it cannot unwind the refund.
	if err := s.bookings.SetPrice(ctx, req.BookingID, req.NewPrice); err != nil {
		log.Error("booking price update failed after refund",
			"error", err, "booking_id", req.BookingID, "request_id", pmr.ID)
		return nil, fmt.Errorf("createDecrease: booking price update: %w", err)
	}

	s.notifyAsync(ctx, booking.AgentID, "Booking price reduced",
		fmt.Sprintf("Order %s price changed to %s; %s was refunded to your deposit.",
			booking.OrderNumber, formatAmount(req.NewPrice), formatAmount(refund)))

	log.Info("price decrease auto-settled",
		"booking_id", req.BookingID,
		"agent_id", booking.AgentID,
		"refund", refund,
		"request_id", pmr.ID,
	)

	return &CreateResult{
		Request: pmr,
		Message: fmt.Sprintf("price decreased, %s refunded to deposit", formatAmount(refund)),
	}, nil
}

// createIncrease inserts the pending row; the partial unique index rejects a
// second pending request for the same booking.
func (s *Service) createIncrease(ctx context.Context, req CreateRequest, booking *Booking, delta int64) (*CreateResult, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("createIncrease: begin tx: %w", err)
	}
	defer tx.Rollback()

	pmr := &domain.PriceModificationRequest{
		ID:               uuid.New(),
		BookingID:        req.BookingID,
		AgentID:          booking.AgentID,
		OriginalPrice:    booking.Price,
		NewPrice:         req.NewPrice,
		PriceDifference:  delta,
		ModificationType: domain.ModificationTypeIncrease,
		Reason:           req.Reason,
		Status:           domain.RequestStatusPending,
		CreatedBy:        req.Actor.Ref(),
		CreatedAt:        now,
	}
	if err := s.requests.Create(ctx, tx, pmr); err != nil {
		return nil, fmt.Errorf("createIncrease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("createIncrease: commit: %w", err)
	}

	s.notifyAsync(ctx, booking.AgentID, "Price increase requires your confirmation",
		fmt.Sprintf("Order %s: price change from %s to %s (%s). Please approve or reject.",
			booking.OrderNumber, formatAmount(booking.Price), formatAmount(req.NewPrice), req.Reason))

	return &CreateResult{
		Request: pmr,
		Message: "price increase pending agent confirmation",
	}, nil
}

// formatAmount renders minor units as a major-unit decimal string for
// agent-facing messages.
func formatAmount(minor int64) string {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func (s *Service) writeAudit(ctx context.Context, tx *sql.Tx, action domain.AuditAction, pmr *domain.PriceModificationRequest, booking *Booking, actor domain.Actor, amount int64, before, after *int64, note string, at time.Time) error {
	entry := &domain.AuditEntry{
		ID:            uuid.New(),
		Action:        action,
		BookingID:     &pmr.BookingID,
		OrderNumber:   &booking.OrderNumber,
		AgentID:       pmr.AgentID,
		OperatorID:    actor.ID,
		OperatorType:  actor.Type,
		OperatorName:  actor.Name,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Note:          note,
		CreatedAt:     at,
	}
	if err := s.audits.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("writeAudit: %w", err)
	}
	return nil
}
