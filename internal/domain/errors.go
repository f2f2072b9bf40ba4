package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrAccountNotFound         = errors.New("credit account not found")
	ErrAccountExists           = errors.New("credit account already exists for this agent")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrRequestNotFound         = errors.New("price modification request not found")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrSamePrice               = errors.New("new price equals the current booking price")
	ErrRequestNotPending       = errors.New("request is not pending")
	ErrDuplicatePendingRequest = errors.New("a pending request already exists for this booking")
	ErrNotRequestOwner         = errors.New("actor does not own the request's booking")
	ErrActorNotAllowed         = errors.New("actor is not allowed to perform this operation")
	ErrInsufficientFunds       = errors.New("insufficient available credit")
	ErrAccountFrozen           = errors.New("credit account is frozen")
	ErrVersionConflict         = errors.New("optimistic lock conflict")
	ErrInvalidRequest          = errors.New("invalid request")
)
