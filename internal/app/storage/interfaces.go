package storage

import (
	"context"
	"errors"
	"time"

	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/domain/pricing"
	"github.com/souq-network/marketplace/internal/app/domain/vendor"
	"github.com/souq-network/marketplace/internal/app/domain/wallet"
)

// Sentinel errors every store implementation reports uniformly. Services
// translate them into the boundary error taxonomy.
var (
	ErrNotFound          = errors.New("record not found")
	ErrBoostConflict     = errors.New("boost scope conflict")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
)

// BoostFilter narrows boost listings. The zero value matches everything.
type BoostFilter struct {
	Type boost.Type
}

// BoostStore persists boosts. AdmitBoost and RescheduleBoost are the two
// write paths that must observe scope exclusivity; both are atomic with
// their conflict scan so concurrent callers cannot both pass it.
type BoostStore interface {
	// AdmitBoost runs conflict-check + insert + wallet debit as one unit.
	// On conflict it returns ErrBoostConflict and leaves no trace; if the
	// debit would push the vendor's balance negative it returns
	// ErrInsufficientFunds and leaves no trace.
	AdmitBoost(ctx context.Context, b boost.Boost, chargeDescription string) (boost.Boost, wallet.Transaction, error)

	// RescheduleBoost updates a boost after re-validation, running the same
	// conflict scan but excluding the boost's own id. No wallet activity.
	RescheduleBoost(ctx context.Context, b boost.Boost) (boost.Boost, error)

	// SaveBoost persists lifecycle mutations (status, end date, soft delete)
	// without a conflict scan.
	SaveBoost(ctx context.Context, b boost.Boost) (boost.Boost, error)

	GetBoost(ctx context.Context, id string) (boost.Boost, error)

	// ListBoosts returns a vendor's non-deleted boosts, newest first.
	ListBoosts(ctx context.Context, vendorID string, filter BoostFilter) ([]boost.Boost, error)

	// ListAllBoosts returns every non-deleted boost, newest first.
	ListAllBoosts(ctx context.Context) ([]boost.Boost, error)

	// ListDueBoosts returns boosts the sweeper needs to move on: scheduled
	// boosts whose start has passed and active boosts whose end has passed.
	ListDueBoosts(ctx context.Context, now time.Time) ([]boost.Boost, error)
}

// WalletStore persists ledger accounts and transactions. Debits only happen
// inside BoostStore.AdmitBoost; credits go through CreditWallet. Both append
// exactly one immutable entry and update the cached balance in the same unit
// of work.
type WalletStore interface {
	// GetWalletAccount returns the account for a vendor, or ErrNotFound if
	// the vendor has never been charged or credited.
	GetWalletAccount(ctx context.Context, vendorID string) (wallet.Account, error)

	// CreditWallet appends a positive entry, creating the account lazily.
	CreditWallet(ctx context.Context, vendorID string, amount int64, ref wallet.ReferenceType, refID, description string) (wallet.Transaction, error)

	// ListWalletTransactions returns a vendor's entries, newest first.
	ListWalletTransactions(ctx context.Context, vendorID string) ([]wallet.Transaction, error)
}

// PricingStore persists the boost price catalog.
type PricingStore interface {
	GetPrice(ctx context.Context, t boost.Type) (pricing.Price, error)
	ListPrices(ctx context.Context) ([]pricing.Price, error)
	UpsertPrice(ctx context.Context, p pricing.Price) (pricing.Price, error)
}

// VendorStore persists the vendor directory used by admin listings.
type VendorStore interface {
	CreateVendor(ctx context.Context, v vendor.Vendor) (vendor.Vendor, error)
	GetVendor(ctx context.Context, id string) (vendor.Vendor, error)
	ListVendors(ctx context.Context) ([]vendor.Vendor, error)
}
