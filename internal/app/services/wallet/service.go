// Package wallet exposes the per-vendor ledger. Debits are issued only by
// the boost admission unit; this service covers credits, balance reads and
// ledger verification.
package wallet

import (
	"context"
	"errors"
	"strings"

	"github.com/souq-network/marketplace/internal/app/auth"
	"github.com/souq-network/marketplace/internal/app/domain/wallet"
	"github.com/souq-network/marketplace/internal/app/storage"
	serrors "github.com/souq-network/marketplace/internal/errors"
	"github.com/souq-network/marketplace/pkg/logger"
)

// Service mediates wallet reads and credits.
type Service struct {
	store storage.WalletStore
	log   *logger.Logger
}

// New constructs a wallet service.
func New(store storage.WalletStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Service{store: store, log: log}
}

// Account returns the vendor's account. A vendor that was never charged or
// credited reads as a zero-balance account rather than an error.
func (s *Service) Account(ctx context.Context, vendorID string) (wallet.Account, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return wallet.Account{}, serrors.Validation("vendor id is required")
	}

	acct, err := s.store.GetWalletAccount(ctx, vendorID)
	if errors.Is(err, storage.ErrNotFound) {
		return wallet.Account{VendorID: vendorID}, nil
	}
	if err != nil {
		return wallet.Account{}, serrors.Internal("read wallet account", err)
	}
	return acct, nil
}

// BalanceOf returns the vendor's current balance in minor units.
func (s *Service) BalanceOf(ctx context.Context, vendorID string) (int64, error) {
	acct, err := s.Account(ctx, vendorID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Credit appends a top-up entry to the vendor's ledger. Admin only.
func (s *Service) Credit(ctx context.Context, principal auth.Principal, vendorID string, amount int64, description string) (wallet.Transaction, error) {
	if !principal.IsAdmin() {
		return wallet.Transaction{}, serrors.Forbidden("wallet credits require the admin role")
	}
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return wallet.Transaction{}, serrors.Validation("vendor id is required")
	}
	if amount <= 0 {
		return wallet.Transaction{}, serrors.Validation("credit amount must be positive")
	}

	entry, err := s.store.CreditWallet(ctx, vendorID, amount, wallet.ReferenceTopUp, "", description)
	if err != nil {
		return wallet.Transaction{}, serrors.Internal("credit wallet", err)
	}

	s.log.WithField("vendor_id", vendorID).
		WithField("amount", amount).
		WithField("balance_after", entry.BalanceAfter).
		Info("wallet credited")
	return entry, nil
}

// Transactions returns the vendor's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, vendorID string) ([]wallet.Transaction, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return nil, serrors.Validation("vendor id is required")
	}
	entries, err := s.store.ListWalletTransactions(ctx, vendorID)
	if err != nil {
		return nil, serrors.Internal("list wallet transactions", err)
	}
	return entries, nil
}

// VerifyLedger recomputes the fold over a vendor's entries and cross-checks
// the cached balance and the latest entry's BalanceAfter. Any mismatch is an
// internal error: the ledger is append-only and the invariant must hold.
func (s *Service) VerifyLedger(ctx context.Context, vendorID string) error {
	acct, err := s.Account(ctx, vendorID)
	if err != nil {
		return err
	}
	entries, err := s.Transactions(ctx, vendorID)
	if err != nil {
		return err
	}

	var sum int64
	// entries come newest-first; fold oldest-first
	for i := len(entries) - 1; i >= 0; i-- {
		sum += entries[i].Amount
		if entries[i].BalanceAfter != sum {
			return serrors.Internal("ledger invariant violated", nil).
				WithDetails("vendor_id", vendorID).
				WithDetails("entry_id", entries[i].ID)
		}
	}
	if sum != acct.Balance {
		return serrors.Internal("ledger fold does not match cached balance", nil).
			WithDetails("vendor_id", vendorID).
			WithDetails("fold", sum).
			WithDetails("balance", acct.Balance)
	}
	return nil
}
