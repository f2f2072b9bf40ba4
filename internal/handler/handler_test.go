package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunward-travel/agent-ledger/internal/domain"
)

func TestMovementRequestValidate(t *testing.T) {
	require.Empty(t, movementRequest{Amount: 100}.Validate())

	errs := movementRequest{Amount: 0}.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "amount", errs[0].Field)

	errs = movementRequest{Amount: -50}.Validate()
	require.Len(t, errs, 1)
}

func TestOpenAccountRequestValidate(t *testing.T) {
	require.Empty(t, openAccountRequest{AgentID: uuid.New(), TotalCredit: 1000}.Validate())

	errs := openAccountRequest{TotalCredit: -1, DepositBalance: -1}.Validate()
	require.Len(t, errs, 3)
	assert.Equal(t, "agent_id", errs[0].Field)
}

func TestCreateModificationRequestValidate(t *testing.T) {
	valid := createModificationRequest{BookingID: uuid.NewString(), NewPrice: 500, Reason: "seasonal"}
	require.Empty(t, valid.Validate())

	tests := []struct {
		name  string
		req   createModificationRequest
		field string
	}{
		{"missing booking id", createModificationRequest{NewPrice: 500, Reason: "x"}, "booking_id"},
		{"malformed booking id", createModificationRequest{BookingID: "not-a-uuid", NewPrice: 500, Reason: "x"}, "booking_id"},
		{"zero price", createModificationRequest{BookingID: uuid.NewString(), NewPrice: 0, Reason: "x"}, "new_price"},
		{"missing reason", createModificationRequest{BookingID: uuid.NewString(), NewPrice: 500}, "reason"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.req.Validate()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestRespondRequestValidate(t *testing.T) {
	require.Empty(t, respondRequest{Response: "approved"}.Validate())
	require.Empty(t, respondRequest{Response: "rejected"}.Validate())
	require.Len(t, respondRequest{}.Validate(), 1)
	require.Len(t, respondRequest{Response: "maybe"}.Validate(), 1)
}

func TestParsePaging(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 20, 0},
		{"page=1&page_size=50", 50, 0},
		{"page=3&page_size=10", 10, 20},
		{"page_size=1000", 100, 0},
		{"page=0&page_size=-1", 20, 0},
		{"page=abc&page_size=xyz", 20, 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		limit, offset := parsePaging(r)
		assert.Equal(t, tt.wantLimit, limit, "query %q", tt.query)
		assert.Equal(t, tt.wantOffset, offset, "query %q", tt.query)
	}
}

func TestParseTimeParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?from=2026-08-01T00:00:00Z", nil)
	ts, appErr := parseTimeParam(r, "from")
	require.Nil(t, appErr)
	require.NotNil(t, ts)
	assert.Equal(t, 2026, ts.Year())

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	ts, appErr = parseTimeParam(r, "from")
	require.Nil(t, appErr)
	assert.Nil(t, ts)

	r = httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil)
	_, appErr = parseTimeParam(r, "from")
	require.NotNil(t, appErr)
}

func TestRespondDomainError_Mapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrAccountNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{domain.ErrAccountExists, http.StatusConflict, "ACCOUNT_EXISTS"},
		{domain.ErrBookingNotFound, http.StatusUnprocessableEntity, "BOOKING_NOT_FOUND"},
		{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{domain.ErrAccountFrozen, http.StatusUnprocessableEntity, "ACCOUNT_FROZEN"},
		{domain.ErrDuplicatePendingRequest, http.StatusConflict, "DUPLICATE_PENDING_REQUEST"},
		{domain.ErrRequestNotPending, http.StatusConflict, "REQUEST_NOT_PENDING"},
		{domain.ErrNotRequestOwner, http.StatusForbidden, "NOT_REQUEST_OWNER"},
		{domain.ErrActorNotAllowed, http.StatusForbidden, "ACTOR_NOT_ALLOWED"},
		{errors.New("something else"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		RespondDomainError(rec, fmt.Errorf("Op: %w", tt.err))

		assert.Equal(t, tt.wantStatus, rec.Code, "error %v", tt.err)

		var resp APIResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, tt.wantCode, resp.Error.Code, "error %v", tt.err)
	}
}
