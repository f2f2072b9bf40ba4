package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrAccountNotFound         = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Credit account not found"}
	ErrAccountExists           = &AppError{http.StatusConflict, "ACCOUNT_EXISTS", "Credit account already exists for this agent"}
	ErrBookingNotFound         = &AppError{http.StatusUnprocessableEntity, "BOOKING_NOT_FOUND", "Booking not found"}
	ErrRequestNotFound         = &AppError{http.StatusNotFound, "REQUEST_NOT_FOUND", "Price modification request not found"}
	ErrInsufficientFunds       = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient available credit"}
	ErrAccountFrozen           = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_FROZEN", "Credit account is frozen"}
	ErrInvalidAmount           = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrSamePrice               = &AppError{http.StatusBadRequest, "SAME_PRICE", "New price equals the current booking price"}
	ErrRequestNotPending       = &AppError{http.StatusConflict, "REQUEST_NOT_PENDING", "Request is not pending"}
	ErrDuplicatePendingRequest = &AppError{http.StatusConflict, "DUPLICATE_PENDING_REQUEST", "A pending request already exists for this booking"}
	ErrNotRequestOwner         = &AppError{http.StatusForbidden, "NOT_REQUEST_OWNER", "You do not own the request's booking"}
	ErrActorNotAllowed         = &AppError{http.StatusForbidden, "ACTOR_NOT_ALLOWED", "You are not allowed to perform this operation"}
	ErrVersionConflict         = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrMissingIdempotencyKey   = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict     = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
