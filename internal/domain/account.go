package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditAccount tracks one agent's credit line and prepaid deposit.
// Amounts are integer minor units.
//
// Invariant: AvailableCredit == TotalCredit - UsedCredit + DepositBalance
// after every mutation. The stored column is recomputed inside the same
// transaction as every balance write; Available() derives the same figure
// from the other three fields.
type CreditAccount struct {
	ID              uuid.UUID
	AgentID         uuid.UUID
	TotalCredit     int64
	UsedCredit      int64
	DepositBalance  int64
	AvailableCredit int64
	IsFrozen        bool
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *CreditAccount) Available() int64 {
	return a.TotalCredit - a.UsedCredit + a.DepositBalance
}

// UsagePercentage is UsedCredit/TotalCredit expressed as a percentage,
// zero when no credit line is set.
func (a *CreditAccount) UsagePercentage() decimal.Decimal {
	if a.TotalCredit <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(a.UsedCredit).
		Div(decimal.NewFromInt(a.TotalCredit)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}
