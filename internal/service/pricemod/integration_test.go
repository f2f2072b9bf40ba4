package pricemod_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/repository"
	"github.com/sunward-travel/agent-ledger/internal/service/ledger"
	"github.com/sunward-travel/agent-ledger/internal/service/pricemod"
	"github.com/sunward-travel/agent-ledger/internal/testutil"
)

type fakeBookings struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*pricemod.Booking
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{bookings: make(map[uuid.UUID]*pricemod.Booking)}
}

func (f *fakeBookings) add(agentID uuid.UUID, price int64) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.bookings[id] = &pricemod.Booking{
		ID:          id,
		OrderNumber: "ORD-" + id.String()[:8],
		AgentID:     agentID,
		Price:       price,
	}
	return id
}

func (f *fakeBookings) price(id uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookings[id].Price
}

func (f *fakeBookings) Get(ctx context.Context, bookingID uuid.UUID) (*pricemod.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookings) SetPrice(ctx context.Context, bookingID uuid.UUID, price int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.Price = price
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeNotifier) NotifyAgent(ctx context.Context, agentID uuid.UUID, subject, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

type fixture struct {
	svc      *pricemod.Service
	ledger   *ledger.Service
	bookings *fakeBookings
	notifier *fakeNotifier
}

func setupPriceModService(t *testing.T, db *sql.DB) *fixture {
	t.Helper()

	accounts := repository.NewAccountRepository(db)
	transactions := repository.NewTransactionRepository(db)
	requests := repository.NewRequestRepository(db)
	audits := repository.NewAuditRepository(db)

	ledgerSvc := ledger.NewService(accounts, transactions, audits, db)
	bookings := newFakeBookings()
	notifier := &fakeNotifier{}

	return &fixture{
		svc:      pricemod.NewService(requests, audits, ledgerSvc, bookings, notifier, db, 0),
		ledger:   ledgerSvc,
		bookings: bookings,
		notifier: notifier,
	}
}

func auditActions(t *testing.T, db *sql.DB, bookingID uuid.UUID) []string {
	t.Helper()
	rows, err := db.Query(
		`SELECT action FROM payment_audit_log WHERE booking_id = $1 ORDER BY created_at, action`, bookingID,
	)
	require.NoError(t, err)
	defer rows.Close()

	var actions []string
	for rows.Next() {
		var a string
		require.NoError(t, rows.Scan(&a))
		actions = append(actions, a)
	}
	require.NoError(t, rows.Err())
	return actions
}

func TestCreate_DecreaseAutoSettles(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 200, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	result, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID,
		NewPrice:  300,
		Reason:    "low season discount",
		Actor:     testutil.AdminActor(),
	})

	require.NoError(t, err)
	req := result.Request
	assert.Equal(t, domain.RequestStatusCompleted, req.Status)
	assert.Equal(t, domain.ModificationTypeDecrease, req.ModificationType)
	assert.Equal(t, int64(-200), req.PriceDifference)
	assert.NotNil(t, req.ProcessedAt)
	assert.Nil(t, req.AgentResponse, "no agent step on a decrease")

	used, deposit, available := testutil.GetBalances(t, db, acct.AgentID)
	assert.Equal(t, int64(200), used, "refund goes to the deposit, not the debt")
	assert.Equal(t, int64(200), deposit)
	assert.Equal(t, int64(1000), available)

	assert.Equal(t, int64(300), f.bookings.price(bookingID))

	assert.Equal(t, []string{
		string(domain.AuditActionPriceDecrease),
		string(domain.AuditActionRefund),
	}, auditActions(t, db, bookingID))
	assert.Equal(t, 1, testutil.CountTransactions(t, db, acct.AgentID))
}

func TestCreate_IncreaseStaysPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	result, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID,
		NewPrice:  650,
		Reason:    "fuel surcharge",
		Actor:     testutil.AdminActor(),
	})

	require.NoError(t, err)
	req := result.Request
	assert.Equal(t, domain.RequestStatusPending, req.Status)
	assert.Equal(t, domain.ModificationTypeIncrease, req.ModificationType)
	assert.Equal(t, int64(150), req.PriceDifference)

	_, _, available := testutil.GetBalances(t, db, acct.AgentID)
	assert.Equal(t, int64(1000), available, "no money moves until approval")
	assert.Equal(t, int64(500), f.bookings.price(bookingID), "price unchanged until approval")
	assert.Equal(t, 0, testutil.CountTransactions(t, db, acct.AgentID))
	assert.Empty(t, auditActions(t, db, bookingID))
}

func TestCreate_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)
	agent := testutil.AgentActor(acct.AgentID)

	_, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "x", Actor: agent,
	})
	require.ErrorIs(t, err, domain.ErrActorNotAllowed, "only admins propose changes")

	_, err = f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 500, Reason: "x", Actor: testutil.AdminActor(),
	})
	require.ErrorIs(t, err, domain.ErrSamePrice)

	_, err = f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 0, Reason: "x", Actor: testutil.AdminActor(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: uuid.New(), NewPrice: 100, Reason: "x", Actor: testutil.AdminActor(),
	})
	require.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestCreate_DuplicatePendingRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	_, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "first", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 700, Reason: "second increase", Actor: testutil.AdminActor(),
	})
	require.ErrorIs(t, err, domain.ErrDuplicatePendingRequest)

	_, err = f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 400, Reason: "decrease while pending", Actor: testutil.AdminActor(),
	})
	require.ErrorIs(t, err, domain.ErrDuplicatePendingRequest)
}

func TestCreate_ConcurrentIncreases_OneWins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, pricemod.CreateRequest{
				BookingID: bookingID, NewPrice: 650, Reason: "race", Actor: testutil.AdminActor(),
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes, duplicates int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrDuplicatePendingRequest)
			duplicates++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, duplicates)
}

func TestRespond_ApproveDebitsAndCompletes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	created, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "fuel surcharge", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	result, err := f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID,
		Response:  domain.AgentResponseApproved,
		Actor:     testutil.AgentActor(acct.AgentID),
	})

	require.NoError(t, err)
	req := result.Request
	assert.Equal(t, domain.RequestStatusCompleted, req.Status)
	require.NotNil(t, req.AgentResponse)
	assert.Equal(t, domain.AgentResponseApproved, *req.AgentResponse)
	assert.NotNil(t, req.RespondedAt)
	assert.NotNil(t, req.ProcessedAt)

	used, _, available := testutil.GetBalances(t, db, acct.AgentID)
	assert.Equal(t, int64(150), used)
	assert.Equal(t, int64(850), available)
	assert.Equal(t, int64(650), f.bookings.price(bookingID))

	assert.Equal(t, []string{string(domain.AuditActionPriceIncreaseApproved)}, auditActions(t, db, bookingID))

	txns, total, err := f.ledger.ListTransactions(ctx, acct.AgentID, repository.TransactionFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, domain.TransactionKindPayment, txns[0].Kind)
	require.NotNil(t, txns[0].BookingID)
	assert.Equal(t, bookingID, *txns[0].BookingID)
}

func TestRespond_RejectMovesNoMoney(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	created, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "fuel surcharge", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	result, err := f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID,
		Response:  domain.AgentResponseRejected,
		Note:      "customer already invoiced",
		Actor:     testutil.AgentActor(acct.AgentID),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusRejected, result.Request.Status)

	_, _, available := testutil.GetBalances(t, db, acct.AgentID)
	assert.Equal(t, int64(1000), available)
	assert.Equal(t, int64(500), f.bookings.price(bookingID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, acct.AgentID))

	var before, after sql.NullInt64
	err = db.QueryRow(
		`SELECT balance_before, balance_after FROM payment_audit_log WHERE booking_id = $1`, bookingID,
	).Scan(&before, &after)
	require.NoError(t, err)
	assert.False(t, before.Valid, "rejection audit carries null balances")
	assert.False(t, after.Valid)
}

func TestRespond_OwnershipEnforced(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	other := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	created, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "x", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID,
		Response:  domain.AgentResponseApproved,
		Actor:     testutil.AgentActor(other.AgentID),
	})
	require.ErrorIs(t, err, domain.ErrNotRequestOwner)

	_, err = f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID,
		Response:  domain.AgentResponseApproved,
		Actor:     testutil.AdminActor(),
	})
	require.ErrorIs(t, err, domain.ErrNotRequestOwner, "admins do not answer on the agent's behalf")

	assert.Equal(t, domain.RequestStatusPending, testutil.GetRequestStatus(t, db, created.Request.ID))
}

func TestRespond_AlreadyDecided(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	created, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "x", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	agent := testutil.AgentActor(acct.AgentID)
	_, err = f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID, Response: domain.AgentResponseRejected, Actor: agent,
	})
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID, Response: domain.AgentResponseApproved, Actor: agent,
	})
	require.ErrorIs(t, err, domain.ErrRequestNotPending)
}

func TestRespond_FailedDebitLeavesRequestPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 100, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	created, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "x", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	agent := testutil.AgentActor(acct.AgentID)
	_, err = f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID, Response: domain.AgentResponseApproved, Actor: agent,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// One rolled-back transaction: still pending, nothing written anywhere.
	assert.Equal(t, domain.RequestStatusPending, testutil.GetRequestStatus(t, db, created.Request.ID))
	_, _, available := testutil.GetBalances(t, db, acct.AgentID)
	assert.Equal(t, int64(100), available)
	assert.Equal(t, 0, testutil.CountTransactions(t, db, acct.AgentID))
	assert.Empty(t, auditActions(t, db, bookingID))
	assert.Equal(t, int64(500), f.bookings.price(bookingID))

	// The agent can still resolve it.
	_, err = f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID, Response: domain.AgentResponseRejected, Actor: agent,
	})
	require.NoError(t, err)
}

func TestCancel_WithdrawsPendingRequest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	created, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "x", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	result, err := f.svc.Cancel(ctx, created.Request.ID, "proposed in error", testutil.AdminActor())
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCancelled, result.Request.Status)
	assert.Equal(t, []string{string(domain.AuditActionRequestCancelled)}, auditActions(t, db, bookingID))

	_, err = f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID,
		Response:  domain.AgentResponseApproved,
		Actor:     testutil.AgentActor(acct.AgentID),
	})
	require.ErrorIs(t, err, domain.ErrRequestNotPending)

	// Cancelled requests free the booking for a new proposal.
	_, err = f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 700, Reason: "second try", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)
}

func TestCancel_Authorization(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	bookingID := f.bookings.add(acct.AgentID, 500)

	created, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: bookingID, NewPrice: 650, Reason: "x", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, created.Request.ID, "", testutil.AgentActor(acct.AgentID))
	require.ErrorIs(t, err, domain.ErrActorNotAllowed)
	assert.Equal(t, domain.RequestStatusPending, testutil.GetRequestStatus(t, db, created.Request.ID))
}

func TestPageQueryByAgent_StatusFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := setupPriceModService(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, 1000, 0, 0)
	agent := testutil.AgentActor(acct.AgentID)

	first := f.bookings.add(acct.AgentID, 500)
	second := f.bookings.add(acct.AgentID, 800)

	created, err := f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: first, NewPrice: 650, Reason: "a", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, pricemod.RespondRequest{
		RequestID: created.Request.ID, Response: domain.AgentResponseRejected, Actor: agent,
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, pricemod.CreateRequest{
		BookingID: second, NewPrice: 900, Reason: "b", Actor: testutil.AdminActor(),
	})
	require.NoError(t, err)

	pending := domain.RequestStatusPending
	reqs, total, err := f.svc.PageQueryByAgent(ctx, acct.AgentID, repository.RequestFilter{Status: &pending}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, reqs, 1)
	assert.Equal(t, second, reqs[0].BookingID)

	reqs, total, err = f.svc.PageQueryByAgent(ctx, acct.AgentID, repository.RequestFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, reqs, 2)
}
