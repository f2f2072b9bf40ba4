package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/logging"
	"github.com/sunward-travel/agent-ledger/internal/service/pricemod"
)

// Client talks to the booking/catalog subsystem over HTTP. It implements
// pricemod.BookingStore.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type bookingPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	AgentID     string `json:"agent_id"`
	Price       int64  `json:"price"`
}

func (c *Client) Get(ctx context.Context, bookingID uuid.UUID) (*pricemod.Booking, error) {
	url := fmt.Sprintf("%s/bookings/%s", c.baseURL, bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("Get: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Get: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("Get: booking %s: %w", bookingID, domain.ErrBookingNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Get: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var payload bookingPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("Get: decode: %w", err)
	}

	id, err := uuid.Parse(payload.ID)
	if err != nil {
		return nil, fmt.Errorf("Get: invalid booking id: %w", err)
	}
	agentID, err := uuid.Parse(payload.AgentID)
	if err != nil {
		return nil, fmt.Errorf("Get: invalid agent id: %w", err)
	}

	return &pricemod.Booking{
		ID:          id,
		OrderNumber: payload.OrderNumber,
		AgentID:     agentID,
		Price:       payload.Price,
	}, nil
}

type setPricePayload struct {
	Price int64 `json:"price"`
}

func (c *Client) SetPrice(ctx context.Context, bookingID uuid.UUID, price int64) error {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(setPricePayload{Price: price})
	if err != nil {
		return fmt.Errorf("SetPrice: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bookings/%s/price", c.baseURL, bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("SetPrice: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("SetPrice: send: %w", err)
	}
	defer resp.Body.Close()

	log.Info("booking price update sent",
		"booking_id", bookingID,
		"price", price,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("SetPrice: booking %s: %w", bookingID, domain.ErrBookingNotFound)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("SetPrice: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
