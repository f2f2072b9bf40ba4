package pricemod

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/logging"
)

type CancelResult struct {
	Request *domain.PriceModificationRequest
	Message string
}

// Cancel lets an admin withdraw a pending increase before the agent answers.
// Pending requests otherwise wait indefinitely; this is the only way out
// besides an agent decision.
func (s *Service) Cancel(ctx context.Context, requestID uuid.UUID, note string, actor domain.Actor) (*CancelResult, error) {
	log := logging.FromContext(ctx)

	if !actor.IsAdmin() {
		return nil, fmt.Errorf("Cancel: %w", domain.ErrActorNotAllowed)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Cancel: begin tx: %w", err)
	}
	defer tx.Rollback()

	pmr, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if pmr.Status != domain.RequestStatusPending {
		return nil, fmt.Errorf("Cancel: status %s: %w", pmr.Status, domain.ErrRequestNotPending)
	}

	booking, err := s.bookings.Get(ctx, pmr.BookingID)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	if err := s.requests.MarkCancelled(ctx, tx, pmr.ID, now); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	if err := s.writeAudit(ctx, tx, domain.AuditActionRequestCancelled, pmr, booking, actor,
		pmr.PriceDifference, nil, nil, note, now); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Cancel: commit: %w", err)
	}

	pmr.Status = domain.RequestStatusCancelled
	pmr.ProcessedAt = &now

	s.notifyAsync(ctx, pmr.AgentID, "Price change withdrawn",
		fmt.Sprintf("The proposed price change for order %s was withdrawn. No action is needed.", booking.OrderNumber))

	log.Info("price modification cancelled",
		"request_id", pmr.ID,
		"booking_id", pmr.BookingID,
		"agent_id", pmr.AgentID,
	)

	return &CancelResult{
		Request: pmr,
		Message: "price modification request cancelled",
	}, nil
}
