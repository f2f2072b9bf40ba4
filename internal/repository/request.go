package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/sunward-travel/agent-ledger/internal/domain"
)

const requestColumns = `id, booking_id, agent_id, original_price, new_price,
	price_difference, modification_type, reason, status, agent_response,
	created_by, created_at, responded_at, processed_at`

// Partial unique index enforcing one pending request per booking.
const uniqPendingIndex = "uniq_pending_request_per_booking"

type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts the request inside the caller's transaction. A violation of
// the pending-per-booking index is surfaced as ErrDuplicatePendingRequest,
// which closes the race between two admins proposing changes at once.
func (r *RequestRepository) Create(ctx context.Context, tx *sql.Tx, req *domain.PriceModificationRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO price_modification_request (
			id, booking_id, agent_id, original_price, new_price,
			price_difference, modification_type, reason, status, agent_response,
			created_by, created_at, responded_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		req.ID, req.BookingID, req.AgentID, req.OriginalPrice, req.NewPrice,
		req.PriceDifference, req.ModificationType, req.Reason, req.Status, req.AgentResponse,
		req.CreatedBy, req.CreatedAt, req.RespondedAt, req.ProcessedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == uniqPendingIndex {
			return fmt.Errorf("Create: %w", domain.ErrDuplicatePendingRequest)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// HasPending reports whether a pending request exists for the booking. Used
// on the auto-settle path, which never inserts a pending row itself.
func (r *RequestRepository) HasPending(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM price_modification_request
			WHERE booking_id = $1 AND status = 'pending'
		)`, bookingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasPending: %w", err)
	}
	return exists, nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PriceModificationRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM price_modification_request WHERE id = $1`, id,
	)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrRequestNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return req, nil
}

// GetForUpdate locks the request row so concurrent responses to the same
// request serialize; the loser then sees a non-pending status.
func (r *RequestRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PriceModificationRequest, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM price_modification_request WHERE id = $1 FOR UPDATE`, id,
	)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrRequestNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return req, nil
}

// MarkResponded records the agent's decision and the resulting terminal
// status in the caller's transaction.
func (r *RequestRepository) MarkResponded(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.RequestStatus, response domain.AgentResponse, respondedAt time.Time, processedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE price_modification_request
		SET status = $1, agent_response = $2, responded_at = $3, processed_at = $4
		WHERE id = $5 AND status = 'pending'`,
		status, response, respondedAt, processedAt, id,
	)
	if err != nil {
		return fmt.Errorf("MarkResponded: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkResponded: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkResponded: %w", domain.ErrRequestNotPending)
	}
	return nil
}

func (r *RequestRepository) MarkCancelled(ctx context.Context, tx *sql.Tx, id uuid.UUID, processedAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE price_modification_request
		SET status = 'cancelled', processed_at = $1
		WHERE id = $2 AND status = 'pending'`,
		processedAt, id,
	)
	if err != nil {
		return fmt.Errorf("MarkCancelled: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkCancelled: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkCancelled: %w", domain.ErrRequestNotPending)
	}
	return nil
}

type RequestFilter struct {
	Status *domain.RequestStatus
	From   *time.Time
	To     *time.Time
}

func (r *RequestRepository) PageQuery(ctx context.Context, filter RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error) {
	return r.pageQuery(ctx, filter, "", uuid.Nil, limit, offset)
}

func (r *RequestRepository) PageQueryByAgent(ctx context.Context, agentID uuid.UUID, filter RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error) {
	return r.pageQuery(ctx, filter, "agent_id", agentID, limit, offset)
}

func (r *RequestRepository) PageQueryByBooking(ctx context.Context, bookingID uuid.UUID, filter RequestFilter, limit, offset int) ([]domain.PriceModificationRequest, int, error) {
	return r.pageQuery(ctx, filter, "booking_id", bookingID, limit, offset)
}

func (r *RequestRepository) pageQuery(ctx context.Context, filter RequestFilter, scopeColumn string, scopeID uuid.UUID, limit, offset int) ([]domain.PriceModificationRequest, int, error) {
	where := `WHERE 1=1`
	var args []any

	if scopeColumn != "" {
		args = append(args, scopeID)
		where += fmt.Sprintf(` AND %s = $%d`, scopeColumn, len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_modification_request `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("pageQuery: count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM price_modification_request %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			requestColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("pageQuery: %w", err)
	}
	defer rows.Close()

	var reqs []domain.PriceModificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("pageQuery: scan: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pageQuery: rows: %w", err)
	}
	return reqs, total, nil
}

func scanRequest(s scanner) (*domain.PriceModificationRequest, error) {
	var req domain.PriceModificationRequest
	err := s.Scan(
		&req.ID, &req.BookingID, &req.AgentID, &req.OriginalPrice, &req.NewPrice,
		&req.PriceDifference, &req.ModificationType, &req.Reason, &req.Status, &req.AgentResponse,
		&req.CreatedBy, &req.CreatedAt, &req.RespondedAt, &req.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
