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
	"github.com/sunward-travel/agent-ledger/internal/service/pricemod"
)

type priceModService interface {
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.PriceModificationRequest, error)
	Create(ctx context.Context, req pricemod.CreateRequest) (*pricemod.CreateResult, error)
	Respond(ctx context.Context, req pricemod.RespondRequest) (*pricemod.RespondResult, error)
	Cancel(ctx context.Context, requestID uuid.UUID, note string, actor domain.Actor) (*pricemod.CancelResult, error)
	PageQuery(ctx context.Context, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error)
	PageQueryByAgent(ctx context.Context, agentID uuid.UUID, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error)
	PageQueryByBooking(ctx context.Context, bookingID uuid.UUID, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error)
}

type PriceModHandler struct {
	pricemods priceModService
}

func NewPriceModHandler(pricemods priceModService) *PriceModHandler {
	return &PriceModHandler{pricemods: pricemods}
}

type createModificationRequest struct {
	BookingID string `json:"booking_id"`
	NewPrice  int64  `json:"new_price"`
	Reason    string `json:"reason"`
}

func (r createModificationRequest) Validate() []FieldError {
	var errs []FieldError
	if r.BookingID == "" {
		errs = append(errs, FieldError{Field: "booking_id", Message: "required"})
	} else if _, err := uuid.Parse(r.BookingID); err != nil {
		errs = append(errs, FieldError{Field: "booking_id", Message: "must be a valid UUID"})
	}
	if r.NewPrice <= 0 {
		errs = append(errs, FieldError{Field: "new_price", Message: "must be greater than 0"})
	}
	if r.Reason == "" {
		errs = append(errs, FieldError{Field: "reason", Message: "required"})
	}
	return errs
}

type requestDTO struct {
	ID               uuid.UUID  `json:"id"`
	BookingID        uuid.UUID  `json:"booking_id"`
	AgentID          uuid.UUID  `json:"agent_id"`
	OriginalPrice    int64      `json:"original_price"`
	NewPrice         int64      `json:"new_price"`
	PriceDifference  int64      `json:"price_difference"`
	ModificationType string     `json:"modification_type"`
	Reason           string     `json:"reason"`
	Status           string     `json:"status"`
	AgentResponse    *string    `json:"agent_response,omitempty"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	RespondedAt      *time.Time `json:"responded_at,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

func toRequestDTO(r *domain.PriceModificationRequest) requestDTO {
	dto := requestDTO{
		ID:               r.ID,
		BookingID:        r.BookingID,
		AgentID:          r.AgentID,
		OriginalPrice:    r.OriginalPrice,
		NewPrice:         r.NewPrice,
		PriceDifference:  r.PriceDifference,
		ModificationType: string(r.ModificationType),
		Reason:           r.Reason,
		Status:           string(r.Status),
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
		RespondedAt:      r.RespondedAt,
		ProcessedAt:      r.ProcessedAt,
	}
	if r.AgentResponse != nil {
		resp := string(*r.AgentResponse)
		dto.AgentResponse = &resp
	}
	return dto
}

func (h *PriceModHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, appErr := adminFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createModificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	bookingID, _ := uuid.Parse(req.BookingID)
	result, err := h.pricemods.Create(r.Context(), pricemod.CreateRequest{
		BookingID: bookingID,
		NewPrice:  req.NewPrice,
		Reason:    req.Reason,
		Actor:     actor,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create price modification", "error", err, "booking_id", bookingID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, map[string]any{
		"request": toRequestDTO(result.Request),
		"message": result.Message,
	})
}

func (h *PriceModHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, appErr := actorFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	requestID, idErr := pathID(r, "requestID")
	if idErr != nil {
		RespondAppError(w, idErr, nil)
		return
	}

	req, err := h.pricemods.GetRequest(r.Context(), requestID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get price modification", "error", err, "request_id", requestID)
		RespondDomainError(w, err)
		return
	}

	// Agents only see requests against their own bookings.
	if !actor.IsAdmin() && !actor.OwnsAgent(req.AgentID) {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, toRequestDTO(req))
}

type respondRequest struct {
	Response string `json:"response"`
	Note     string `json:"note"`
}

func (r respondRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Response == "" {
		errs = append(errs, FieldError{Field: "response", Message: "required"})
	} else if !domain.AgentResponse(r.Response).IsValid() {
		errs = append(errs, FieldError{Field: "response", Message: "must be approved or rejected"})
	}
	return errs
}

func (h *PriceModHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, appErr := actorFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	requestID, idErr := pathID(r, "requestID")
	if idErr != nil {
		RespondAppError(w, idErr, nil)
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	result, err := h.pricemods.Respond(r.Context(), pricemod.RespondRequest{
		RequestID: requestID,
		Response:  domain.AgentResponse(req.Response),
		Note:      req.Note,
		Actor:     actor,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to respond to price modification", "error", err, "request_id", requestID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"request": toRequestDTO(result.Request),
		"message": result.Message,
	})
}

type cancelRequest struct {
	Note string `json:"note"`
}

func (h *PriceModHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, appErr := adminFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	requestID, idErr := pathID(r, "requestID")
	if idErr != nil {
		RespondAppError(w, idErr, nil)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	result, err := h.pricemods.Cancel(r.Context(), requestID, req.Note, actor)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to cancel price modification", "error", err, "request_id", requestID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"request": toRequestDTO(result.Request),
		"message": result.Message,
	})
}

func (h *PriceModHandler) List(w http.ResponseWriter, r *http.Request) {
	_, appErr := adminFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	filter, limit, offset, fErr := requestQuery(r)
	if fErr != nil {
		RespondAppError(w, fErr, nil)
		return
	}

	reqs, total, err := h.pricemods.PageQuery(r.Context(), filter, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list price modifications", "error", err)
		RespondDomainError(w, err)
		return
	}

	respondRequestPage(w, reqs, total)
}

func (h *PriceModHandler) ListByAgent(w http.ResponseWriter, r *http.Request) {
	agentID, _, appErr := agentScopeFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	filter, limit, offset, fErr := requestQuery(r)
	if fErr != nil {
		RespondAppError(w, fErr, nil)
		return
	}

	reqs, total, err := h.pricemods.PageQueryByAgent(r.Context(), agentID, filter, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list price modifications", "error", err, "agent_id", agentID)
		RespondDomainError(w, err)
		return
	}

	respondRequestPage(w, reqs, total)
}

func (h *PriceModHandler) ListByBooking(w http.ResponseWriter, r *http.Request) {
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

	filter, limit, offset, fErr := requestQuery(r)
	if fErr != nil {
		RespondAppError(w, fErr, nil)
		return
	}

	reqs, total, err := h.pricemods.PageQueryByBooking(r.Context(), bookingID, filter, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list price modifications", "error", err, "booking_id", bookingID)
		RespondDomainError(w, err)
		return
	}

	respondRequestPage(w, reqs, total)
}

func requestQuery(r *http.Request) (repository.RequestFilter, int, int, *AppError) {
	var filter repository.RequestFilter

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.RequestStatus(raw)
		if !status.IsValid() {
			return filter, 0, 0, ErrInvalidRequest
		}
		filter.Status = &status
	}

	var tErr *AppError
	if filter.From, tErr = parseTimeParam(r, "from"); tErr != nil {
		return filter, 0, 0, tErr
	}
	if filter.To, tErr = parseTimeParam(r, "to"); tErr != nil {
		return filter, 0, 0, tErr
	}

	limit, offset := parsePaging(r)
	return filter, limit, offset, nil
}

func respondRequestPage(w http.ResponseWriter, reqs []domain.PriceModificationRequest, total int) {
	dtos := make([]requestDTO, len(reqs))
	for i := range reqs {
		dtos[i] = toRequestDTO(&reqs[i])
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"requests": dtos,
		"total":    total,
	})
}
