package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sunward-travel/agent-ledger/internal/domain"
)

var (
	AdminID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	SystemID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

func AdminActor() domain.Actor {
	return domain.Actor{ID: AdminID, Type: domain.ActorTypeAdmin, Name: "Back Office"}
}

func AgentActor(agentID uuid.UUID) domain.Actor {
	return domain.Actor{ID: agentID, Type: domain.ActorTypeAgent, Name: "Test Agent", AgentID: &agentID}
}

// SeedAccount inserts a credit account with the derived available_credit
// already consistent, the way the repository maintains it.
func SeedAccount(t *testing.T, db *sql.DB, totalCredit, usedCredit, deposit int64) *domain.CreditAccount {
	t.Helper()

	a := &domain.CreditAccount{
		ID:              uuid.New(),
		AgentID:         uuid.New(),
		TotalCredit:     totalCredit,
		UsedCredit:      usedCredit,
		DepositBalance:  deposit,
		AvailableCredit: totalCredit - usedCredit + deposit,
		Version:         1,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO credit_account (id, agent_id, total_credit, used_credit, deposit_balance, available_credit, is_frozen, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9)`,
		a.ID, a.AgentID, a.TotalCredit, a.UsedCredit, a.DepositBalance, a.AvailableCredit, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed credit account %s: %v", a.AgentID, err)
	}
	return a
}

func FreezeAccount(t *testing.T, db *sql.DB, agentID uuid.UUID) {
	t.Helper()

	_, err := db.Exec(`UPDATE credit_account SET is_frozen = TRUE WHERE agent_id = $1`, agentID)
	if err != nil {
		t.Fatalf("freeze account %s: %v", agentID, err)
	}
}

func GetBalances(t *testing.T, db *sql.DB, agentID uuid.UUID) (used, deposit, available int64) {
	t.Helper()

	err := db.QueryRow(
		`SELECT used_credit, deposit_balance, available_credit FROM credit_account WHERE agent_id = $1`,
		agentID,
	).Scan(&used, &deposit, &available)
	if err != nil {
		t.Fatalf("get balances %s: %v", agentID, err)
	}
	return used, deposit, available
}

func CountTransactions(t *testing.T, db *sql.DB, agentID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM credit_transaction WHERE agent_id = $1`, agentID).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for %s: %v", agentID, err)
	}
	return count
}

func CountAuditEntries(t *testing.T, db *sql.DB, agentID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM payment_audit_log WHERE agent_id = $1`, agentID).Scan(&count)
	if err != nil {
		t.Fatalf("count audit entries for %s: %v", agentID, err)
	}
	return count
}

// SeedRequest inserts a price modification request directly, bypassing the
// service, for tests that start from an already pending proposal.
func SeedRequest(t *testing.T, db *sql.DB, bookingID, agentID uuid.UUID, originalPrice, newPrice int64, status domain.RequestStatus) *domain.PriceModificationRequest {
	t.Helper()

	diff := newPrice - originalPrice
	modType := domain.ModificationTypeIncrease
	if diff < 0 {
		modType = domain.ModificationTypeDecrease
		diff = -diff
	}

	r := &domain.PriceModificationRequest{
		ID:               uuid.New(),
		BookingID:        bookingID,
		AgentID:          agentID,
		OriginalPrice:    originalPrice,
		NewPrice:         newPrice,
		PriceDifference:  diff,
		ModificationType: modType,
		Reason:           "seeded",
		Status:           status,
		CreatedBy:        "admin:" + AdminID.String(),
		CreatedAt:        time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO price_modification_request (id, booking_id, agent_id, original_price, new_price, price_difference, modification_type, reason, status, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.BookingID, r.AgentID, r.OriginalPrice, r.NewPrice, r.PriceDifference, r.ModificationType, r.Reason, r.Status, r.CreatedBy, r.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed request for booking %s: %v", bookingID, err)
	}
	return r
}

func GetRequestStatus(t *testing.T, db *sql.DB, requestID uuid.UUID) domain.RequestStatus {
	t.Helper()

	var status domain.RequestStatus
	err := db.QueryRow(`SELECT status FROM price_modification_request WHERE id = $1`, requestID).Scan(&status)
	if err != nil {
		t.Fatalf("get request status %s: %v", requestID, err)
	}
	return status
}
