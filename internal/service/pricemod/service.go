package pricemod

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/logging"
	"github.com/sunward-travel/agent-ledger/internal/repository"
	"github.com/sunward-travel/agent-ledger/internal/service/ledger"
)

// Booking is the slice of the booking subsystem this workflow needs.
type Booking struct {
	ID          uuid.UUID
	OrderNumber string
	AgentID     uuid.UUID
	Price       int64
}

// BookingStore is the external booking/catalog collaborator. Price reads and
// writes go through it; bookings themselves are not owned here.
type BookingStore interface {
	Get(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
	SetPrice(ctx context.Context, bookingID uuid.UUID, price int64) error
}

// Notifier delivers agent-facing alerts. Dispatch is fire-and-forget; a
// failed notification never fails the ledger mutation that preceded it.
type Notifier interface {
	NotifyAgent(ctx context.Context, agentID uuid.UUID, subject, message string) error
}

type requestRepo interface {
	Create(ctx context.Context, tx *sql.Tx, req *domain.PriceModificationRequest) error
	HasPending(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PriceModificationRequest, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PriceModificationRequest, error)
	MarkResponded(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.RequestStatus, response domain.AgentResponse, respondedAt time.Time, processedAt *time.Time) error
	MarkCancelled(ctx context.Context, tx *sql.Tx, id uuid.UUID, processedAt time.Time) error
	PageQuery(ctx context.Context, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error)
	PageQueryByAgent(ctx context.Context, agentID uuid.UUID, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error)
	PageQueryByBooking(ctx context.Context, bookingID uuid.UUID, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error)
}

type auditRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.AuditEntry) error
}

type ledgerService interface {
	DebitTx(ctx context.Context, tx *sql.Tx, req ledger.DebitRequest) (*domain.Transaction, error)
	CreditTx(ctx context.Context, tx *sql.Tx, req ledger.CreditRequest) (*domain.Transaction, error)
}

type Service struct {
	requests requestRepo
	audits   auditRepo
	ledger   ledgerService
	bookings BookingStore
	notifier Notifier
	db       *sql.DB

	// notifyTimeout bounds the detached notification dispatch.
	notifyTimeout time.Duration
}

func NewService(requests requestRepo, audits auditRepo, ledgerSvc ledgerService, bookings BookingStore, notifier Notifier, db *sql.DB, notifyTimeout time.Duration) *Service {
	if notifyTimeout <= 0 {
		notifyTimeout = 5 * time.Second
	}
	return &Service{
		requests:      requests,
		audits:        audits,
		ledger:        ledgerSvc,
		bookings:      bookings,
		notifier:      notifier,
		db:            db,
		notifyTimeout: notifyTimeout,
	}
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*domain.PriceModificationRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetRequest: %w", err)
	}
	return req, nil
}

func (s *Service) PageQuery(ctx context.Context, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error) {
	reqs, total, err := s.requests.PageQuery(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("PageQuery: %w", err)
	}
	return reqs, total, nil
}

func (s *Service) PageQueryByAgent(ctx context.Context, agentID uuid.UUID, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error) {
	reqs, total, err := s.requests.PageQueryByAgent(ctx, agentID, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("PageQueryByAgent: %w", err)
	}
	return reqs, total, nil
}

func (s *Service) PageQueryByBooking(ctx context.Context, bookingID uuid.UUID, filter repository.RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error) {
	reqs, total, err := s.requests.PageQueryByBooking(ctx, bookingID, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("PageQueryByBooking: %w", err)
	}
	return reqs, total, nil
}

// notifyAsync dispatches an agent notification on its own goroutine with a
// detached context, so a slow sink cannot block or abort the caller.
func (s *Service) notifyAsync(ctx context.Context, agentID uuid.UUID, subject, message string) {
	log := logging.FromContext(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyAgent(nctx, agentID, subject, message); err != nil {
			log.Error("agent notification failed", "error", err, "agent_id", agentID, "subject", subject)
		}
	}()
}
