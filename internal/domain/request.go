package domain

import (
	"time"

	"github.com/google/uuid"
)

type ModificationType string

const (
	ModificationTypeIncrease ModificationType = "increase"
	ModificationTypeDecrease ModificationType = "decrease"
)

type RequestStatus string

const (
	RequestStatusPending       RequestStatus = "pending"
	RequestStatusAutoProcessed RequestStatus = "auto_processed"
	RequestStatusCompleted     RequestStatus = "completed"
	RequestStatusRejected      RequestStatus = "rejected"
	RequestStatusCancelled     RequestStatus = "cancelled"
)

func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAutoProcessed, RequestStatusCompleted,
		RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusRejected || s == RequestStatusCancelled
}

type AgentResponse string

const (
	AgentResponseApproved AgentResponse = "approved"
	AgentResponseRejected AgentResponse = "rejected"
)

func (r AgentResponse) IsValid() bool {
	return r == AgentResponseApproved || r == AgentResponseRejected
}

// PriceModificationRequest is a proposal to change a booking's price.
// Decreases settle synchronously; increases stay pending until the owning
// agent approves or rejects, or an admin cancels. At most one pending
// request may exist per booking.
type PriceModificationRequest struct {
	ID               uuid.UUID
	BookingID        uuid.UUID
	AgentID          uuid.UUID
	OriginalPrice    int64
	NewPrice         int64
	PriceDifference  int64
	ModificationType ModificationType
	Reason           string
	Status           RequestStatus
	AgentResponse    *AgentResponse
	CreatedBy        string
	CreatedAt        time.Time
	RespondedAt      *time.Time
	ProcessedAt      *time.Time
}
