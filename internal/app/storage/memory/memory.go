// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/domain/pricing"
	"github.com/souq-network/marketplace/internal/app/domain/vendor"
	"github.com/souq-network/marketplace/internal/app/domain/wallet"
	"github.com/souq-network/marketplace/internal/app/storage"
)

// Store holds everything behind a single mutex, which makes the admission
// unit (conflict scan + insert + debit) trivially atomic.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	boosts       map[string]boost.Boost
	accounts     map[string]wallet.Account // keyed by vendor id
	transactions map[string][]wallet.Transaction
	prices       map[boost.Type]pricing.Price
	vendors      map[string]vendor.Vendor
}

var _ storage.BoostStore = (*Store)(nil)
var _ storage.WalletStore = (*Store)(nil)
var _ storage.PricingStore = (*Store)(nil)
var _ storage.VendorStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		boosts:       make(map[string]boost.Boost),
		accounts:     make(map[string]wallet.Account),
		transactions: make(map[string][]wallet.Transaction),
		prices:       make(map[boost.Type]pricing.Price),
		vendors:      make(map[string]vendor.Vendor),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// BoostStore implementation ---------------------------------------------------

func (s *Store) AdmitBoost(_ context.Context, b boost.Boost, chargeDescription string) (boost.Boost, wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflictLocked(b, "") {
		return boost.Boost{}, wallet.Transaction{}, storage.ErrBoostConflict
	}

	acct := s.accountLocked(b.VendorID)
	if acct.Balance-b.Price < 0 {
		return boost.Boost{}, wallet.Transaction{}, storage.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = s.nextIDLocked()
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	b.ScopeIDs = cloneIDs(b.ScopeIDs)
	s.boosts[b.ID] = b

	tx := s.appendEntryLocked(acct, wallet.Transaction{
		VendorID:      b.VendorID,
		ReferenceType: wallet.ReferenceBoost,
		ReferenceID:   b.ID,
		Amount:        -b.Price,
		Description:   chargeDescription,
	})

	return cloneBoost(b), tx, nil
}

func (s *Store) RescheduleBoost(_ context.Context, b boost.Boost) (boost.Boost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.boosts[b.ID]
	if !ok || original.Deleted {
		return boost.Boost{}, storage.ErrNotFound
	}
	if s.conflictLocked(b, b.ID) {
		return boost.Boost{}, storage.ErrBoostConflict
	}

	b.VendorID = original.VendorID
	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	b.ScopeIDs = cloneIDs(b.ScopeIDs)
	s.boosts[b.ID] = b
	return cloneBoost(b), nil
}

func (s *Store) SaveBoost(_ context.Context, b boost.Boost) (boost.Boost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.boosts[b.ID]
	if !ok {
		return boost.Boost{}, storage.ErrNotFound
	}

	b.VendorID = original.VendorID
	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	b.ScopeIDs = cloneIDs(b.ScopeIDs)
	s.boosts[b.ID] = b
	return cloneBoost(b), nil
}

func (s *Store) GetBoost(_ context.Context, id string) (boost.Boost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boosts[id]
	if !ok {
		return boost.Boost{}, storage.ErrNotFound
	}
	return cloneBoost(b), nil
}

func (s *Store) ListBoosts(_ context.Context, vendorID string, filter storage.BoostFilter) ([]boost.Boost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []boost.Boost
	for _, b := range s.boosts {
		if b.Deleted || b.VendorID != vendorID {
			continue
		}
		if filter.Type != "" && b.Type != filter.Type {
			continue
		}
		result = append(result, cloneBoost(b))
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *Store) ListAllBoosts(_ context.Context) ([]boost.Boost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []boost.Boost
	for _, b := range s.boosts {
		if b.Deleted {
			continue
		}
		result = append(result, cloneBoost(b))
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *Store) ListDueBoosts(_ context.Context, now time.Time) ([]boost.Boost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []boost.Boost
	for _, b := range s.boosts {
		if b.Deleted {
			continue
		}
		due := (b.Status == boost.StatusScheduled && !b.StartDate.After(now)) ||
			(b.Status == boost.StatusActive && !b.EndDate.After(now))
		if due {
			result = append(result, cloneBoost(b))
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// conflictLocked scans for a live boost colliding with candidate, skipping
// excludeID. Soft-deleted rows never conflict.
func (s *Store) conflictLocked(candidate boost.Boost, excludeID string) bool {
	for _, existing := range s.boosts {
		if existing.ID == excludeID || existing.Deleted || !existing.Status.Live() {
			continue
		}
		if candidate.ConflictsWith(existing) {
			return true
		}
	}
	return false
}

// WalletStore implementation --------------------------------------------------

func (s *Store) GetWalletAccount(_ context.Context, vendorID string) (wallet.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[vendorID]
	if !ok {
		return wallet.Account{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *Store) CreditWallet(_ context.Context, vendorID string, amount int64, ref wallet.ReferenceType, refID, description string) (wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accountLocked(vendorID)
	tx := s.appendEntryLocked(acct, wallet.Transaction{
		VendorID:      vendorID,
		ReferenceType: ref,
		ReferenceID:   refID,
		Amount:        amount,
		Description:   description,
	})
	return tx, nil
}

func (s *Store) ListWalletTransactions(_ context.Context, vendorID string) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.transactions[vendorID]
	result := make([]wallet.Transaction, len(entries))
	// stored oldest-first; returned newest-first
	for i, tx := range entries {
		result[len(entries)-1-i] = tx
	}
	return result, nil
}

// accountLocked returns the vendor's account, creating it lazily at zero.
func (s *Store) accountLocked(vendorID string) wallet.Account {
	acct, ok := s.accounts[vendorID]
	if !ok {
		now := time.Now().UTC()
		acct = wallet.Account{ID: s.nextIDLocked(), VendorID: vendorID, CreatedAt: now, UpdatedAt: now}
		s.accounts[vendorID] = acct
	}
	return acct
}

// appendEntryLocked appends one ledger entry and updates the cached balance.
func (s *Store) appendEntryLocked(acct wallet.Account, tx wallet.Transaction) wallet.Transaction {
	now := time.Now().UTC()
	tx.ID = s.nextIDLocked()
	tx.BalanceAfter = acct.Balance + tx.Amount
	tx.CreatedAt = now

	acct.Balance = tx.BalanceAfter
	acct.UpdatedAt = now
	s.accounts[acct.VendorID] = acct
	s.transactions[acct.VendorID] = append(s.transactions[acct.VendorID], tx)
	return tx
}

// PricingStore implementation -------------------------------------------------

func (s *Store) GetPrice(_ context.Context, t boost.Type) (pricing.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[t]
	if !ok {
		return pricing.Price{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPrices(_ context.Context) ([]pricing.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]pricing.Price, 0, len(s.prices))
	for _, p := range s.prices {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BoostType < result[j].BoostType })
	return result, nil
}

func (s *Store) UpsertPrice(_ context.Context, p pricing.Price) (pricing.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.prices[p.BoostType]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = s.nextIDLocked()
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.prices[p.BoostType] = p
	return p, nil
}

// VendorStore implementation --------------------------------------------------

func (s *Store) CreateVendor(_ context.Context, v vendor.Vendor) (vendor.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = s.nextIDLocked()
	} else if _, exists := s.vendors[v.ID]; exists {
		return vendor.Vendor{}, fmt.Errorf("vendor %s already exists", v.ID)
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.vendors[v.ID] = v
	return v, nil
}

func (s *Store) GetVendor(_ context.Context, id string) (vendor.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vendors[id]
	if !ok {
		return vendor.Vendor{}, storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) ListVendors(_ context.Context) ([]vendor.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]vendor.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// helpers ---------------------------------------------------------------------

func cloneBoost(b boost.Boost) boost.Boost {
	b.ScopeIDs = cloneIDs(b.ScopeIDs)
	return b
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func sortNewestFirst(boosts []boost.Boost) {
	sort.Slice(boosts, func(i, j int) bool {
		if boosts[i].CreatedAt.Equal(boosts[j].CreatedAt) {
			return boosts[i].ID > boosts[j].ID
		}
		return boosts[i].CreatedAt.After(boosts[j].CreatedAt)
	})
}
