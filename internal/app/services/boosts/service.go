// Package boosts implements the admission controller and lifecycle engine
// for promotional boosts. Admission (conflict check, insert, wallet debit)
// is delegated to the storage layer as one atomic unit; this service owns
// validation, pricing, the status machine and the sweep.
package boosts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/souq-network/marketplace/internal/app/auth"
	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/domain/vendor"
	"github.com/souq-network/marketplace/internal/app/metrics"
	"github.com/souq-network/marketplace/internal/app/storage"
	serrors "github.com/souq-network/marketplace/internal/errors"
	"github.com/souq-network/marketplace/pkg/logger"
)

// PriceCatalog is the slice of the pricing service the admission path needs.
type PriceCatalog interface {
	PricePerUnit(ctx context.Context, t boost.Type) (int64, error)
}

// Service drives boost admission and lifecycle.
type Service struct {
	store   storage.BoostStore
	vendors storage.VendorStore
	catalog PriceCatalog
	log     *logger.Logger
	now     func() time.Time
}

// New constructs the boost service. vendors may be nil when no directory is
// available; admin listings then omit vendor details.
func New(store storage.BoostStore, vendors storage.VendorStore, catalog PriceCatalog, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("boosts")
	}
	return &Service{
		store:   store,
		vendors: vendors,
		catalog: catalog,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest carries a vendor's admission request.
type CreateRequest struct {
	Type      boost.Type
	ScopeType boost.ScopeType
	ScopeIDs  []string
	Duration  boost.Duration
	Price     *int64 // nil selects the catalog price
	Priority  int
	StartDate time.Time // zero means now
}

// Create validates a request, prices it and runs the atomic admission unit.
// On success the boost is persisted as scheduled with exactly one debit
// entry referencing it; conflict and insufficient funds leave no trace.
func (s *Service) Create(ctx context.Context, principal auth.Principal, req CreateRequest) (boost.Boost, error) {
	if err := validateScope(req.Type, req.ScopeType, req.ScopeIDs, req.Duration); err != nil {
		return boost.Boost{}, err
	}

	price, err := s.resolvePrice(ctx, req.Type, req.Duration, req.Price)
	if err != nil {
		return boost.Boost{}, err
	}

	start := req.StartDate
	if start.IsZero() {
		start = s.now()
	}
	start = start.UTC()

	candidate := boost.Boost{
		VendorID:  principal.Subject,
		Type:      req.Type,
		ScopeType: req.ScopeType,
		ScopeIDs:  dedupe(req.ScopeIDs),
		StartDate: start,
		EndDate:   req.Duration.Window(start),
		Duration:  req.Duration,
		Price:     price,
		Priority:  req.Priority,
		Status:    boost.StatusScheduled,
	}

	description := fmt.Sprintf("boost charge: %s x%d %s", req.Type, req.Duration.Value, req.Duration.Unit)
	admitted, entry, err := s.store.AdmitBoost(ctx, candidate, description)
	switch {
	case errors.Is(err, storage.ErrBoostConflict):
		metrics.RecordAdmission(metrics.OutcomeConflict)
		return boost.Boost{}, serrors.Conflict("an active or scheduled boost already covers this scope")
	case errors.Is(err, storage.ErrInsufficientFunds):
		metrics.RecordAdmission(metrics.OutcomeInsufficientFunds)
		return boost.Boost{}, serrors.InsufficientFunds("wallet balance does not cover the boost price")
	case err != nil:
		metrics.RecordAdmission(metrics.OutcomeError)
		return boost.Boost{}, serrors.Internal("admit boost", err)
	}

	metrics.RecordAdmission(metrics.OutcomeAdmitted)
	metrics.RecordLedgerEntry(entry.Amount)
	s.log.WithField("boost_id", admitted.ID).
		WithField("vendor_id", admitted.VendorID).
		WithField("boost_type", admitted.Type).
		WithField("price", admitted.Price).
		Info("boost admitted")
	return admitted, nil
}

// Update applies a patch to an existing boost. Present fields are validated
// exactly as on creation; the conflict scan excludes the boost itself. The
// result is always re-scheduled and the wallet is never touched again.
func (s *Service) Update(ctx context.Context, principal auth.Principal, id string, patch boost.Patch) (boost.Boost, error) {
	current, err := s.load(ctx, principal, id)
	if err != nil {
		return boost.Boost{}, err
	}

	if patch.Type != nil {
		if !boost.ValidType(*patch.Type) {
			return boost.Boost{}, serrors.Validationf("unknown boost type %q", *patch.Type)
		}
		current.Type = *patch.Type
	}
	if patch.ScopeType != nil {
		if !boost.ValidScopeType(*patch.ScopeType) {
			return boost.Boost{}, serrors.Validationf("unknown scope type %q", *patch.ScopeType)
		}
		current.ScopeType = *patch.ScopeType
	}
	if patch.ScopeIDs != nil {
		if len(patch.ScopeIDs) == 0 {
			return boost.Boost{}, serrors.Validation("scope_ids must not be empty")
		}
		for _, scopeID := range patch.ScopeIDs {
			if strings.TrimSpace(scopeID) == "" {
				return boost.Boost{}, serrors.Validation("scope_ids must not contain blank entries")
			}
		}
		current.ScopeIDs = dedupe(patch.ScopeIDs)
	}
	if patch.Duration != nil {
		if !patch.Duration.Valid() {
			return boost.Boost{}, serrors.Validation("duration value must be at least 1 with unit day or hour")
		}
		current.Duration = *patch.Duration
	}
	if patch.StartDate != nil {
		current.StartDate = patch.StartDate.UTC()
	}
	if patch.Priority != nil {
		current.Priority = *patch.Priority
	}

	switch {
	case patch.Price != nil:
		if *patch.Price < 0 {
			return boost.Boost{}, serrors.Validation("price must not be negative")
		}
		current.Price = *patch.Price
	case patch.Type != nil || patch.Duration != nil:
		// type or length changed without an explicit price; re-price from
		// the catalog
		price, err := s.resolvePrice(ctx, current.Type, current.Duration, nil)
		if err != nil {
			return boost.Boost{}, err
		}
		current.Price = price
	}

	current.EndDate = current.Duration.Window(current.StartDate)
	current.Status = boost.StatusScheduled

	updated, err := s.store.RescheduleBoost(ctx, current)
	switch {
	case errors.Is(err, storage.ErrBoostConflict):
		return boost.Boost{}, serrors.Conflict("an active or scheduled boost already covers this scope")
	case errors.Is(err, storage.ErrNotFound):
		return boost.Boost{}, serrors.NotFoundf("boost %s not found", id)
	case err != nil:
		return boost.Boost{}, serrors.Internal("update boost", err)
	}

	s.log.WithField("boost_id", updated.ID).
		WithField("vendor_id", updated.VendorID).
		Info("boost updated and re-scheduled")
	return updated, nil
}

// Get returns one boost, enforcing ownership for vendors.
func (s *Service) Get(ctx context.Context, principal auth.Principal, id string) (boost.Boost, error) {
	return s.load(ctx, principal, id)
}

// List returns the caller's non-deleted boosts, newest first, optionally
// filtered by boost type.
func (s *Service) List(ctx context.Context, principal auth.Principal, boostType boost.Type) ([]boost.Boost, error) {
	if boostType != "" && !boost.ValidType(boostType) {
		return nil, serrors.Validationf("unknown boost type %q", boostType)
	}
	result, err := s.store.ListBoosts(ctx, principal.Subject, storage.BoostFilter{Type: boostType})
	if err != nil {
		return nil, serrors.Internal("list boosts", err)
	}
	return result, nil
}

// AdminEntry pairs a boost with its vendor's directory record for the admin
// listing. Vendor is nil when the directory has no record.
type AdminEntry struct {
	Boost  boost.Boost    `json:"boost"`
	Vendor *vendor.Vendor `json:"vendor,omitempty"`
}

// AdminList returns every non-deleted boost joined with vendor details.
func (s *Service) AdminList(ctx context.Context, principal auth.Principal) ([]AdminEntry, error) {
	if !principal.IsAdmin() {
		return nil, serrors.Forbidden("listing all boosts requires the admin role")
	}
	all, err := s.store.ListAllBoosts(ctx)
	if err != nil {
		return nil, serrors.Internal("list boosts", err)
	}

	directory := make(map[string]vendor.Vendor)
	if s.vendors != nil {
		vendors, err := s.vendors.ListVendors(ctx)
		if err != nil {
			return nil, serrors.Internal("list vendors", err)
		}
		for _, v := range vendors {
			directory[v.ID] = v
		}
	}

	entries := make([]AdminEntry, 0, len(all))
	for _, b := range all {
		entry := AdminEntry{Boost: b}
		if v, ok := directory[b.VendorID]; ok {
			entry.Vendor = &v
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Stop ends an active boost now. Only an active boost can be stopped.
func (s *Service) Stop(ctx context.Context, principal auth.Principal, id string) (boost.Boost, error) {
	b, err := s.load(ctx, principal, id)
	if err != nil {
		return boost.Boost{}, err
	}
	if !b.Status.CanStop() {
		return boost.Boost{}, serrors.Validationf("boost in status %q cannot be stopped", b.Status)
	}

	b.Status = boost.StatusStopped
	b.EndDate = s.now()
	saved, err := s.store.SaveBoost(ctx, b)
	if err != nil {
		return boost.Boost{}, serrors.Internal("stop boost", err)
	}

	s.log.WithField("boost_id", saved.ID).
		WithField("vendor_id", saved.VendorID).
		Info("boost stopped")
	return saved, nil
}

// Delete soft-deletes a boost. Legal only from draft or expired.
func (s *Service) Delete(ctx context.Context, principal auth.Principal, id string) error {
	b, err := s.load(ctx, principal, id)
	if err != nil {
		return err
	}
	if !b.Status.Deletable() {
		return serrors.Validationf("boost in status %q cannot be deleted", b.Status)
	}

	b.Deleted = true
	if _, err := s.store.SaveBoost(ctx, b); err != nil {
		return serrors.Internal("delete boost", err)
	}

	s.log.WithField("boost_id", b.ID).
		WithField("vendor_id", b.VendorID).
		Info("boost soft-deleted")
	return nil
}

// ForceStatus is the admin escape hatch: it moves a boost straight to one of
// the settled targets, bypassing the time-driven rules. Re-applying the same
// status is a no-op, not an error.
func (s *Service) ForceStatus(ctx context.Context, principal auth.Principal, id string, status boost.Status) (boost.Boost, error) {
	if !principal.IsAdmin() {
		return boost.Boost{}, serrors.Forbidden("forcing a boost status requires the admin role")
	}
	if !boost.AdminTarget(status) {
		return boost.Boost{}, serrors.Validationf("status %q cannot be forced", status)
	}

	b, err := s.load(ctx, principal, id)
	if err != nil {
		return boost.Boost{}, err
	}
	if b.Status == status {
		return b, nil
	}

	previous := b.Status
	b.Status = status
	saved, err := s.store.SaveBoost(ctx, b)
	if err != nil {
		return boost.Boost{}, serrors.Internal("force boost status", err)
	}

	s.log.WithField("boost_id", saved.ID).
		WithField("from", previous).
		WithField("to", status).
		Warn("boost status forced by admin")
	return saved, nil
}

// Sweep applies the time-driven transitions once: scheduled boosts whose
// start has passed become active, active boosts whose end has passed become
// expired. A scheduled boost whose whole window has already passed goes
// straight to expired. Safe to re-run at any cadence.
func (s *Service) Sweep(ctx context.Context, now time.Time) (activated, expired int, err error) {
	due, err := s.store.ListDueBoosts(ctx, now)
	if err != nil {
		return 0, 0, serrors.Internal("list due boosts", err)
	}

	for _, b := range due {
		switch {
		case b.Status == boost.StatusScheduled && !b.EndDate.After(now):
			b.Status = boost.StatusExpired
			expired++
		case b.Status == boost.StatusScheduled:
			b.Status = boost.StatusActive
			activated++
		case b.Status == boost.StatusActive:
			b.Status = boost.StatusExpired
			expired++
		default:
			continue
		}
		if _, err := s.store.SaveBoost(ctx, b); err != nil {
			return activated, expired, serrors.Internal("apply sweep transition", err)
		}
	}
	return activated, expired, nil
}

// load fetches a boost and enforces visibility: vendors only see their own
// non-deleted boosts, admins see everything.
func (s *Service) load(ctx context.Context, principal auth.Principal, id string) (boost.Boost, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return boost.Boost{}, serrors.Validation("boost id is required")
	}

	b, err := s.store.GetBoost(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return boost.Boost{}, serrors.NotFoundf("boost %s not found", id)
	}
	if err != nil {
		return boost.Boost{}, serrors.Internal("read boost", err)
	}
	if b.Deleted {
		return boost.Boost{}, serrors.NotFoundf("boost %s not found", id)
	}
	// a foreign vendor's boost reads as absent, not as forbidden
	if !principal.IsAdmin() && b.VendorID != principal.Subject {
		return boost.Boost{}, serrors.NotFoundf("boost %s not found", id)
	}
	return b, nil
}

// resolvePrice returns the explicit price when given, otherwise the catalog
// price per unit multiplied by the duration value.
func (s *Service) resolvePrice(ctx context.Context, t boost.Type, d boost.Duration, explicit *int64) (int64, error) {
	if explicit != nil {
		if *explicit < 0 {
			return 0, serrors.Validation("price must not be negative")
		}
		return *explicit, nil
	}
	if s.catalog == nil {
		return 0, serrors.Validation("price is required when no catalog is configured")
	}
	perUnit, err := s.catalog.PricePerUnit(ctx, t)
	if err != nil {
		return 0, err
	}
	return perUnit * int64(d.Value), nil
}

func validateScope(t boost.Type, st boost.ScopeType, scopeIDs []string, d boost.Duration) error {
	if !boost.ValidType(t) {
		return serrors.Validationf("unknown boost type %q", t)
	}
	if !boost.ValidScopeType(st) {
		return serrors.Validationf("unknown scope type %q", st)
	}
	if len(scopeIDs) == 0 {
		return serrors.Validation("scope_ids must not be empty")
	}
	for _, id := range scopeIDs {
		if strings.TrimSpace(id) == "" {
			return serrors.Validation("scope_ids must not contain blank entries")
		}
	}
	if !d.Valid() {
		return serrors.Validation("duration value must be at least 1 with unit day or hour")
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
