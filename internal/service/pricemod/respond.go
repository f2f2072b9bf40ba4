package pricemod

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/logging"
	"github.com/sunward-travel/agent-ledger/internal/service/ledger"
)

type RespondRequest struct {
	RequestID uuid.UUID
	Response  domain.AgentResponse
	Note      string
	Actor     domain.Actor
}

type RespondResult struct {
	Request *domain.PriceModificationRequest
	Message string
}

// Respond records the agent's decision on a pending increase. Approval
// debits the delta and completes the request inside one database
// transaction, so a failed debit rolls everything back and the request is
// still pending. Rejection closes the request with no ledger call.
func (s *Service) Respond(ctx context.Context, req RespondRequest) (*RespondResult, error) {
	log := logging.FromContext(ctx)

	if !req.Response.IsValid() {
		return nil, fmt.Errorf("Respond: %w", domain.ErrInvalidRequest)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Respond: begin tx: %w", err)
	}
	defer tx.Rollback()

	pmr, err := s.requests.GetForUpdate(ctx, tx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("Respond: %w", err)
	}

	if pmr.Status != domain.RequestStatusPending {
		return nil, fmt.Errorf("Respond: status %s: %w", pmr.Status, domain.ErrRequestNotPending)
	}
	if !req.Actor.OwnsAgent(pmr.AgentID) {
		return nil, fmt.Errorf("Respond: %w", domain.ErrNotRequestOwner)
	}

	booking, err := s.bookings.Get(ctx, pmr.BookingID)
	if err != nil {
		return nil, fmt.Errorf("Respond: %w", err)
	}

	if req.Response == domain.AgentResponseRejected {
		return s.reject(ctx, tx, pmr, booking, req, now)
	}

	result, err := s.approve(ctx, tx, pmr, booking, req, now)
	if err != nil {
		return nil, err
	}

	log.Info("price increase approved",
		"request_id", pmr.ID,
		"booking_id", pmr.BookingID,
		"agent_id", pmr.AgentID,
		"delta", pmr.PriceDifference,
	)
	return result, nil
}

func (s *Service) approve(ctx context.Context, tx *sql.Tx, pmr *domain.PriceModificationRequest, booking *Booking, req RespondRequest, now time.Time) (*RespondResult, error) {
	log := logging.FromContext(ctx)

	note := req.Note
	if note == "" {
		note = fmt.Sprintf("approved price increase for order %s", booking.OrderNumber)
	}

	txn, err := s.ledger.DebitTx(ctx, tx, ledger.DebitRequest{
		AgentID:   pmr.AgentID,
		Amount:    pmr.PriceDifference,
		BookingID: &pmr.BookingID,
		Note:      note,
		Actor:     req.Actor,
	})
	if err != nil {
		// The transaction rolls back whole: request still pending, no
		// balance change, no audit row.
		return nil, fmt.Errorf("approve: %w", err)
	}

	if err := s.requests.MarkResponded(ctx, tx, pmr.ID, domain.RequestStatusCompleted, domain.AgentResponseApproved, now, &now); err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}

	if err := s.writeAudit(ctx, tx, domain.AuditActionPriceIncreaseApproved, pmr, booking, req.Actor,
		pmr.PriceDifference, &txn.BalanceBefore, &txn.BalanceAfter, note, now); err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("approve: commit: %w", err)
	}

	pmr.Status = domain.RequestStatusCompleted
	resp := domain.AgentResponseApproved
	pmr.AgentResponse = &resp
	pmr.RespondedAt = &now
	pmr.ProcessedAt = &now

	if err := s.bookings.SetPrice(ctx, pmr.BookingID, pmr.NewPrice); err != nil {
		log.Error("booking price update failed after approved debit",
			"error", err, "booking_id", pmr.BookingID, "request_id", pmr.ID)
		return nil, fmt.Errorf("approve: booking price update: %w", err)
	}

	return &RespondResult{
		Request: pmr,
		Message: fmt.Sprintf("price increase approved, %s charged", formatAmount(pmr.PriceDifference)),
	}, nil
}

func (s *Service) reject(ctx context.Context, tx *sql.Tx, pmr *domain.PriceModificationRequest, booking *Booking, req RespondRequest, now time.Time) (*RespondResult, error) {
	log := logging.FromContext(ctx)

	if err := s.requests.MarkResponded(ctx, tx, pmr.ID, domain.RequestStatusRejected, domain.AgentResponseRejected, now, nil); err != nil {
		return nil, fmt.Errorf("reject: %w", err)
	}

	// A rejection moves no money; the audit row carries nil balances.
	if err := s.writeAudit(ctx, tx, domain.AuditActionPriceIncreaseRejected, pmr, booking, req.Actor,
		pmr.PriceDifference, nil, nil, req.Note, now); err != nil {
		return nil, fmt.Errorf("reject: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reject: commit: %w", err)
	}

	pmr.Status = domain.RequestStatusRejected
	resp := domain.AgentResponseRejected
	pmr.AgentResponse = &resp
	pmr.RespondedAt = &now

	log.Info("price increase rejected",
		"request_id", pmr.ID,
		"booking_id", pmr.BookingID,
		"agent_id", pmr.AgentID,
	)

	return &RespondResult{
		Request: pmr,
		Message: "price increase rejected, booking price unchanged",
	}, nil
}
