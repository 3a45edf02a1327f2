// Package wallet defines the per-vendor ledger model. Transactions are
// append-only; the account balance is a cache of the latest entry's
// BalanceAfter and must always equal the fold-sum of all entries.
package wallet

import "time"

// Account holds one vendor's cached balance. Created lazily on first charge,
// keyed uniquely by vendor.
type Account struct {
	ID        string    `json:"id"`
	VendorID  string    `json:"vendorId"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReferenceType names what a ledger entry paid for.
type ReferenceType string

const (
	ReferenceBoost ReferenceType = "boost"
	ReferenceTopUp ReferenceType = "topup"
)

// Transaction is one immutable ledger entry. Amount is signed in minor
// units: debits negative, credits positive. BalanceAfter is the account
// balance immediately after this entry was applied.
type Transaction struct {
	ID            string        `json:"id"`
	VendorID      string        `json:"vendorId"`
	ReferenceType ReferenceType `json:"reference_type"`
	ReferenceID   string        `json:"reference_id"`
	Amount        int64         `json:"amount"`
	BalanceAfter  int64         `json:"balance_after"`
	Description   string        `json:"description"`
	CreatedAt     time.Time     `json:"createdAt"`
}
