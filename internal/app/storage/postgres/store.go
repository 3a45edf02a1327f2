// Package postgres implements the storage interfaces backed by PostgreSQL.
// The admission unit runs inside one transaction: the wallet account row is
// locked FOR UPDATE before the conflict scan, so concurrent admissions for
// the same vendor serialize and the scan, insert and debit commit together.
// Reschedules take the same vendor lock before their conflict scan.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/domain/pricing"
	"github.com/souq-network/marketplace/internal/app/domain/vendor"
	"github.com/souq-network/marketplace/internal/app/domain/wallet"
	"github.com/souq-network/marketplace/internal/app/storage"
)

// Store implements the storage interfaces using a *sql.DB handle.
type Store struct {
	db *sql.DB
}

var _ storage.BoostStore = (*Store)(nil)
var _ storage.WalletStore = (*Store)(nil)
var _ storage.PricingStore = (*Store)(nil)
var _ storage.VendorStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const boostColumns = `id, vendor_id, boost_type, scope_type, scope_ids, start_date, end_date,
	duration_value, duration_unit, price, priority, status, is_deleted, created_at, updated_at`

// --- BoostStore -------------------------------------------------------------

func (s *Store) AdmitBoost(ctx context.Context, b boost.Boost, chargeDescription string) (boost.Boost, wallet.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return boost.Boost{}, wallet.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	acct, err := lockWalletAccount(ctx, tx, b.VendorID)
	if err != nil {
		return boost.Boost{}, wallet.Transaction{}, err
	}

	conflict, err := scopeConflictExists(ctx, tx, b, "")
	if err != nil {
		return boost.Boost{}, wallet.Transaction{}, err
	}
	if conflict {
		return boost.Boost{}, wallet.Transaction{}, storage.ErrBoostConflict
	}

	if acct.Balance-b.Price < 0 {
		return boost.Boost{}, wallet.Transaction{}, storage.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO boosts (id, vendor_id, boost_type, scope_type, scope_ids, start_date, end_date,
			duration_value, duration_unit, price, priority, status, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, b.ID, b.VendorID, b.Type, b.ScopeType, pq.Array(b.ScopeIDs), b.StartDate, b.EndDate,
		b.Duration.Value, b.Duration.Unit, b.Price, b.Priority, b.Status, b.Deleted, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return boost.Boost{}, wallet.Transaction{}, err
	}

	entry, err := appendLedgerEntry(ctx, tx, acct, wallet.Transaction{
		VendorID:      b.VendorID,
		ReferenceType: wallet.ReferenceBoost,
		ReferenceID:   b.ID,
		Amount:        -b.Price,
		Description:   chargeDescription,
	})
	if err != nil {
		return boost.Boost{}, wallet.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return boost.Boost{}, wallet.Transaction{}, err
	}
	return b, entry, nil
}

func (s *Store) RescheduleBoost(ctx context.Context, b boost.Boost) (boost.Boost, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return boost.Boost{}, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanBoost(tx.QueryRowContext(ctx, `
		SELECT `+boostColumns+` FROM boosts WHERE id = $1 AND is_deleted = FALSE FOR UPDATE
	`, b.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return boost.Boost{}, storage.ErrNotFound
		}
		return boost.Boost{}, err
	}

	// Every scope-mutating write for a vendor serializes on the wallet
	// account row, same as AdmitBoost. Without it a reschedule and a
	// concurrent admission could both pass the conflict scan before either
	// commits.
	if _, err := lockWalletAccount(ctx, tx, existing.VendorID); err != nil {
		return boost.Boost{}, err
	}

	conflict, err := scopeConflictExists(ctx, tx, b, b.ID)
	if err != nil {
		return boost.Boost{}, err
	}
	if conflict {
		return boost.Boost{}, storage.ErrBoostConflict
	}

	b.VendorID = existing.VendorID
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE boosts
		SET boost_type = $2, scope_type = $3, scope_ids = $4, start_date = $5, end_date = $6,
			duration_value = $7, duration_unit = $8, price = $9, priority = $10, status = $11, updated_at = $12
		WHERE id = $1
	`, b.ID, b.Type, b.ScopeType, pq.Array(b.ScopeIDs), b.StartDate, b.EndDate,
		b.Duration.Value, b.Duration.Unit, b.Price, b.Priority, b.Status, b.UpdatedAt)
	if err != nil {
		return boost.Boost{}, err
	}

	if err := tx.Commit(); err != nil {
		return boost.Boost{}, err
	}
	return b, nil
}

func (s *Store) SaveBoost(ctx context.Context, b boost.Boost) (boost.Boost, error) {
	b.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE boosts
		SET start_date = $2, end_date = $3, status = $4, is_deleted = $5, priority = $6, updated_at = $7
		WHERE id = $1
	`, b.ID, b.StartDate, b.EndDate, b.Status, b.Deleted, b.Priority, b.UpdatedAt)
	if err != nil {
		return boost.Boost{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return boost.Boost{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBoost(ctx context.Context, id string) (boost.Boost, error) {
	b, err := scanBoost(s.db.QueryRowContext(ctx, `
		SELECT `+boostColumns+` FROM boosts WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return boost.Boost{}, storage.ErrNotFound
	}
	return b, err
}

func (s *Store) ListBoosts(ctx context.Context, vendorID string, filter storage.BoostFilter) ([]boost.Boost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+boostColumns+` FROM boosts
		WHERE vendor_id = $1 AND is_deleted = FALSE AND ($2 = '' OR boost_type = $2)
		ORDER BY created_at DESC, id DESC
	`, vendorID, string(filter.Type))
	if err != nil {
		return nil, err
	}
	return collectBoosts(rows)
}

func (s *Store) ListAllBoosts(ctx context.Context) ([]boost.Boost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+boostColumns+` FROM boosts
		WHERE is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	return collectBoosts(rows)
}

func (s *Store) ListDueBoosts(ctx context.Context, now time.Time) ([]boost.Boost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+boostColumns+` FROM boosts
		WHERE is_deleted = FALSE
		  AND ((status = 'scheduled' AND start_date <= $1) OR (status = 'active' AND end_date <= $1))
		ORDER BY created_at
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	return collectBoosts(rows)
}

// scopeConflictExists runs the conflict scan inside the caller's transaction.
// Array overlap (&&) matches any shared scope id.
func scopeConflictExists(ctx context.Context, tx *sql.Tx, candidate boost.Boost, excludeID string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM boosts
			WHERE vendor_id = $1
			  AND boost_type = $2
			  AND scope_type = $3
			  AND scope_ids && $4
			  AND status IN ('scheduled', 'active')
			  AND is_deleted = FALSE
			  AND ($5 = '' OR id <> $5)
		)
	`, candidate.VendorID, candidate.Type, candidate.ScopeType, pq.Array(candidate.ScopeIDs), excludeID).Scan(&exists)
	return exists, err
}

func scanBoost(row *sql.Row) (boost.Boost, error) {
	var b boost.Boost
	var scopeIDs pq.StringArray
	err := row.Scan(&b.ID, &b.VendorID, &b.Type, &b.ScopeType, &scopeIDs, &b.StartDate, &b.EndDate,
		&b.Duration.Value, &b.Duration.Unit, &b.Price, &b.Priority, &b.Status, &b.Deleted, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return boost.Boost{}, err
	}
	b.ScopeIDs = []string(scopeIDs)
	return b, nil
}

func collectBoosts(rows *sql.Rows) ([]boost.Boost, error) {
	defer rows.Close()

	var result []boost.Boost
	for rows.Next() {
		var b boost.Boost
		var scopeIDs pq.StringArray
		if err := rows.Scan(&b.ID, &b.VendorID, &b.Type, &b.ScopeType, &scopeIDs, &b.StartDate, &b.EndDate,
			&b.Duration.Value, &b.Duration.Unit, &b.Price, &b.Priority, &b.Status, &b.Deleted, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.ScopeIDs = []string(scopeIDs)
		result = append(result, b)
	}
	return result, rows.Err()
}

// --- WalletStore ------------------------------------------------------------

func (s *Store) GetWalletAccount(ctx context.Context, vendorID string) (wallet.Account, error) {
	var acct wallet.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, balance, created_at, updated_at
		FROM wallet_accounts WHERE vendor_id = $1
	`, vendorID).Scan(&acct.ID, &acct.VendorID, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Account{}, storage.ErrNotFound
	}
	return acct, err
}

func (s *Store) CreditWallet(ctx context.Context, vendorID string, amount int64, ref wallet.ReferenceType, refID, description string) (wallet.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wallet.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	acct, err := lockWalletAccount(ctx, tx, vendorID)
	if err != nil {
		return wallet.Transaction{}, err
	}

	entry, err := appendLedgerEntry(ctx, tx, acct, wallet.Transaction{
		VendorID:      vendorID,
		ReferenceType: ref,
		ReferenceID:   refID,
		Amount:        amount,
		Description:   description,
	})
	if err != nil {
		return wallet.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return wallet.Transaction{}, err
	}
	return entry, nil
}

func (s *Store) ListWalletTransactions(ctx context.Context, vendorID string) ([]wallet.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vendor_id, reference_type, reference_id, amount, balance_after, description, created_at
		FROM wallet_transactions
		WHERE vendor_id = $1
		ORDER BY created_at DESC, id DESC
	`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wallet.Transaction
	for rows.Next() {
		var entry wallet.Transaction
		if err := rows.Scan(&entry.ID, &entry.VendorID, &entry.ReferenceType, &entry.ReferenceID,
			&entry.Amount, &entry.BalanceAfter, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// lockWalletAccount takes the per-vendor row lock, creating the account
// lazily inside the same transaction. Serializes all ledger writes for a
// vendor so BalanceAfter ordering is never ambiguous.
func lockWalletAccount(ctx context.Context, tx *sql.Tx, vendorID string) (wallet.Account, error) {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_accounts (id, vendor_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (vendor_id) DO NOTHING
	`, uuid.NewString(), vendorID, now)
	if err != nil {
		return wallet.Account{}, err
	}

	var acct wallet.Account
	err = tx.QueryRowContext(ctx, `
		SELECT id, vendor_id, balance, created_at, updated_at
		FROM wallet_accounts WHERE vendor_id = $1 FOR UPDATE
	`, vendorID).Scan(&acct.ID, &acct.VendorID, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt)
	return acct, err
}

// appendLedgerEntry inserts one immutable entry and refreshes the cached
// balance under the row lock held by the caller.
func appendLedgerEntry(ctx context.Context, tx *sql.Tx, acct wallet.Account, entry wallet.Transaction) (wallet.Transaction, error) {
	now := time.Now().UTC()
	entry.ID = uuid.NewString()
	entry.BalanceAfter = acct.Balance + entry.Amount
	entry.CreatedAt = now

	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, vendor_id, reference_type, reference_id, amount, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.VendorID, entry.ReferenceType, entry.ReferenceID, entry.Amount, entry.BalanceAfter, entry.Description, entry.CreatedAt)
	if err != nil {
		return wallet.Transaction{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallet_accounts SET balance = $2, updated_at = $3 WHERE vendor_id = $1
	`, entry.VendorID, entry.BalanceAfter, now)
	if err != nil {
		return wallet.Transaction{}, err
	}
	return entry, nil
}

// --- PricingStore -----------------------------------------------------------

func (s *Store) GetPrice(ctx context.Context, t boost.Type) (pricing.Price, error) {
	var p pricing.Price
	err := s.db.QueryRowContext(ctx, `
		SELECT id, boost_type, price_per_unit, created_at, updated_at
		FROM boost_prices WHERE boost_type = $1
	`, t).Scan(&p.ID, &p.BoostType, &p.PricePerUnit, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Price{}, storage.ErrNotFound
	}
	return p, err
}

func (s *Store) ListPrices(ctx context.Context) ([]pricing.Price, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, boost_type, price_per_unit, created_at, updated_at
		FROM boost_prices ORDER BY boost_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []pricing.Price
	for rows.Next() {
		var p pricing.Price
		if err := rows.Scan(&p.ID, &p.BoostType, &p.PricePerUnit, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) UpsertPrice(ctx context.Context, p pricing.Price) (pricing.Price, error) {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO boost_prices (id, boost_type, price_per_unit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (boost_type) DO UPDATE SET price_per_unit = EXCLUDED.price_per_unit, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, p.ID, p.BoostType, p.PricePerUnit, now).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return pricing.Price{}, err
	}
	return p, nil
}

// --- VendorStore ------------------------------------------------------------

func (s *Store) CreateVendor(ctx context.Context, v vendor.Vendor) (vendor.Vendor, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, v.ID, v.Name, v.Email, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return vendor.Vendor{}, err
	}
	return v, nil
}

func (s *Store) GetVendor(ctx context.Context, id string) (vendor.Vendor, error) {
	var v vendor.Vendor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at, updated_at FROM vendors WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &v.Email, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return vendor.Vendor{}, storage.ErrNotFound
	}
	return v, err
}

func (s *Store) ListVendors(ctx context.Context) ([]vendor.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, created_at, updated_at FROM vendors ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []vendor.Vendor
	for rows.Next() {
		var v vendor.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Email, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
