package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditActionPriceDecrease         AuditAction = "price_decrease"
	AuditActionRefund                AuditAction = "refund"
	AuditActionPriceIncreaseApproved AuditAction = "price_increase_approved"
	AuditActionPriceIncreaseRejected AuditAction = "price_increase_rejected"
	AuditActionRequestCancelled      AuditAction = "price_increase_cancelled"
	AuditActionAccountFrozen         AuditAction = "account_frozen"
	AuditActionAccountUnfrozen       AuditAction = "account_unfrozen"
)

// AuditEntry is one immutable row in the compliance trail. Broader than the
// transaction log: decisions with no balance movement (rejections,
// cancellations) are recorded with nil before/after balances.
type AuditEntry struct {
	ID            uuid.UUID
	Action        AuditAction
	BookingID     *uuid.UUID
	OrderNumber   *string
	AgentID       uuid.UUID
	OperatorID    uuid.UUID
	OperatorType  ActorType
	OperatorName  string
	Amount        int64
	BalanceBefore *int64
	BalanceAfter  *int64
	Note          string
	CreatedAt     time.Time
}
