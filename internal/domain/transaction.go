package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionKind string

const (
	TransactionKindPayment    TransactionKind = "payment"
	TransactionKindTopup      TransactionKind = "topup"
	TransactionKindAdjustment TransactionKind = "adjustment"
)

func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionKindPayment, TransactionKindTopup, TransactionKindAdjustment:
		return true
	}
	return false
}

// Transaction is one immutable row in the transaction log, written exactly
// once per ledger mutation. Before/after balances are the total available
// figure, not a raw account field.
type Transaction struct {
	ID            uuid.UUID
	TransactionNo string
	AgentID       uuid.UUID
	Amount        int64
	Kind          TransactionKind
	BookingID     *uuid.UUID
	BalanceBefore int64
	BalanceAfter  int64
	Note          string
	CreatedBy     string
	CreatedAt     time.Time
}
