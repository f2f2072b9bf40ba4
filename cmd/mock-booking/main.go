package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/logging"
)

// In-memory stand-in for the booking subsystem, for local development.
// Seed bookings with POST /bookings, then point BOOKING_SERVICE_URL here.

type booking struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	AgentID     string `json:"agent_id"`
	Price       int64  `json:"price"`
}

type store struct {
	mu       sync.RWMutex
	bookings map[string]*booking
	nextNo   int
}

func newStore() *store {
	return &store{bookings: make(map[string]*booking), nextNo: 1001}
}

func main() {
	logging.Init("mock-booking", "info", os.Getenv("APP_ENV"))

	s := newStore()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /bookings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AgentID string `json:"agent_id"`
			Price   int64  `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		if _, err := uuid.Parse(req.AgentID); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent_id"})
			return
		}
		if req.Price <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
			return
		}

		s.mu.Lock()
		b := &booking{
			ID:          uuid.NewString(),
			OrderNumber: orderNumber(s.nextNo),
			AgentID:     req.AgentID,
			Price:       req.Price,
		}
		s.nextNo++
		s.bookings[b.ID] = b
		s.mu.Unlock()

		slog.Info("booking created", "booking_id", b.ID, "order_number", b.OrderNumber)
		writeJSON(w, http.StatusCreated, b)
	})

	mux.HandleFunc("GET /bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		b, ok := s.bookings[r.PathValue("id")]
		s.mu.RUnlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
			return
		}
		writeJSON(w, http.StatusOK, b)
	})

	mux.HandleFunc("PUT /bookings/{id}/price", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Price int64 `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Price <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
			return
		}

		s.mu.Lock()
		b, ok := s.bookings[r.PathValue("id")]
		if ok {
			b.Price = req.Price
		}
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
			return
		}

		slog.Info("booking price updated", "booking_id", b.ID, "price", req.Price)
		writeJSON(w, http.StatusOK, b)
	})

	addr := ":8082"
	slog.Info("mock booking service started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func orderNumber(n int) string {
	return fmt.Sprintf("ORD-%06d", n)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
