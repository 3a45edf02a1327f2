package boosts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/souq-network/marketplace/internal/app/auth"
	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/domain/vendor"
	pricingsvc "github.com/souq-network/marketplace/internal/app/services/pricing"
	"github.com/souq-network/marketplace/internal/app/storage/memory"
	serrors "github.com/souq-network/marketplace/internal/errors"
)

func vendorRecord(id, name, email string) vendor.Vendor {
	return vendor.Vendor{ID: id, Name: name, Email: email}
}

func vendorPrincipal(id string) auth.Principal {
	return auth.Principal{Subject: id, Role: auth.RoleVendor}
}

var adminPrincipal = auth.Principal{Subject: "admin", Role: auth.RoleAdmin}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	catalog := pricingsvc.New(store, nil)
	if err := catalog.Seed(context.Background()); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return New(store, store, catalog, nil), store
}

func fund(t *testing.T, store *memory.Store, vendorID string, amount int64) {
	t.Helper()
	if _, err := store.CreditWallet(context.Background(), vendorID, amount, "topup", "", "test funding"); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
}

func price(v int64) *int64 { return &v }

func dayBoost(scopeIDs ...string) CreateRequest {
	return CreateRequest{
		Type:      boost.TypeFeatured,
		ScopeType: boost.ScopeProduct,
		ScopeIDs:  scopeIDs,
		Duration:  boost.Duration{Value: 3, Unit: boost.UnitDay},
		Price:     price(300),
	}
}

func TestCreateAdmitsAndDebits(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1", "p2"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != boost.StatusScheduled {
		t.Fatalf("expected scheduled, got %s", created.Status)
	}
	if !created.EndDate.Equal(created.StartDate.AddDate(0, 0, 3)) {
		t.Fatalf("window not three days: start=%v end=%v", created.StartDate, created.EndDate)
	}

	acct, err := store.GetWalletAccount(context.Background(), "v1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct.Balance != 700 {
		t.Fatalf("expected balance 700, got %d", acct.Balance)
	}

	entries, err := store.ListWalletTransactions(context.Background(), "v1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	debit := entries[0]
	if debit.Amount != -300 || debit.ReferenceID != created.ID || debit.BalanceAfter != 700 {
		t.Fatalf("unexpected debit entry: %+v", debit)
	}
}

func TestCreateHourUnitWindow(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	req := dayBoost("p1")
	req.Duration = boost.Duration{Value: 6, Unit: boost.UnitHour}
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	req.StartDate = start

	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.EndDate.Equal(start.Add(6 * time.Hour)) {
		t.Fatalf("expected six-hour window, got end=%v", created.EndDate)
	}
}

func TestCreateConflictLeavesNoTrace(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	if _, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1", "p9"))
	if !serrors.IsCode(err, serrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	acct, _ := store.GetWalletAccount(context.Background(), "v1")
	if acct.Balance != 700 {
		t.Fatalf("conflict must not debit: balance %d", acct.Balance)
	}
	all, _ := store.ListAllBoosts(context.Background())
	if len(all) != 1 {
		t.Fatalf("conflict must not insert: %d boosts", len(all))
	}
}

func TestCreateInsufficientFundsLeavesNoTrace(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 100)

	_, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1"))
	if !serrors.IsCode(err, serrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	all, _ := store.ListAllBoosts(context.Background())
	if len(all) != 0 {
		t.Fatalf("failed admission must not insert: %d boosts", len(all))
	}
	entries, _ := store.ListWalletTransactions(context.Background(), "v1")
	if len(entries) != 1 {
		t.Fatalf("failed admission must not append ledger entries: %d", len(entries))
	}
}

func TestCreateUsesCatalogPrice(t *testing.T) {
	svc, store := newTestService(t)
	catalog := pricingsvc.New(store, nil)
	if _, err := catalog.Set(context.Background(), adminPrincipal, boost.TypeFeatured, 50); err != nil {
		t.Fatalf("set price: %v", err)
	}
	fund(t, store, "v1", 1000)

	req := dayBoost("p1")
	req.Price = nil
	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Price != 150 {
		t.Fatalf("expected catalog price 150, got %d", created.Price)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	cases := map[string]CreateRequest{
		"unknown type": {
			Type: "banner", ScopeType: boost.ScopeProduct, ScopeIDs: []string{"p1"},
			Duration: boost.Duration{Value: 1, Unit: boost.UnitDay}, Price: price(10),
		},
		"unknown scope type": {
			Type: boost.TypeFeatured, ScopeType: "store", ScopeIDs: []string{"p1"},
			Duration: boost.Duration{Value: 1, Unit: boost.UnitDay}, Price: price(10),
		},
		"empty scope ids": {
			Type: boost.TypeFeatured, ScopeType: boost.ScopeProduct,
			Duration: boost.Duration{Value: 1, Unit: boost.UnitDay}, Price: price(10),
		},
		"zero duration": {
			Type: boost.TypeFeatured, ScopeType: boost.ScopeProduct, ScopeIDs: []string{"p1"},
			Duration: boost.Duration{Value: 0, Unit: boost.UnitDay}, Price: price(10),
		},
		"negative price": {
			Type: boost.TypeFeatured, ScopeType: boost.ScopeProduct, ScopeIDs: []string{"p1"},
			Duration: boost.Duration{Value: 1, Unit: boost.UnitDay}, Price: price(-1),
		},
	}
	for name, req := range cases {
		if _, err := svc.Create(context.Background(), vendorPrincipal("v1"), req); !serrors.IsCode(err, serrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestConcurrentAdmissionAdmitsExactlyOne(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 10000)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1"))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else if !serrors.IsCode(err, serrors.CodeConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != 1 {
		t.Fatalf("expected exactly one admission, got %d", admitted)
	}

	acct, _ := store.GetWalletAccount(context.Background(), "v1")
	if acct.Balance != 10000-300 {
		t.Fatalf("expected exactly one debit, balance %d", acct.Balance)
	}
}

func TestUpdateReschedulesWithoutDebit(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ForceStatus(context.Background(), adminPrincipal, created.ID, boost.StatusActive); err != nil {
		t.Fatalf("force active: %v", err)
	}

	newPriority := 5
	updated, err := svc.Update(context.Background(), vendorPrincipal("v1"), created.ID, boost.Patch{Priority: &newPriority})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != boost.StatusScheduled {
		t.Fatalf("update must re-schedule, got %s", updated.Status)
	}
	if updated.Priority != 5 {
		t.Fatalf("priority not applied")
	}

	acct, _ := store.GetWalletAccount(context.Background(), "v1")
	if acct.Balance != 700 {
		t.Fatalf("update must not re-debit: balance %d", acct.Balance)
	}
}

func TestUpdateConflictExcludesSelf(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// re-submitting the same scope against itself is fine
	if _, err := svc.Update(context.Background(), vendorPrincipal("v1"), created.ID, boost.Patch{ScopeIDs: []string{"p1"}}); err != nil {
		t.Fatalf("self-overlapping update: %v", err)
	}

	other, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p2"))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	_, err = svc.Update(context.Background(), vendorPrincipal("v1"), other.ID, boost.Patch{ScopeIDs: []string{"p1"}})
	if !serrors.IsCode(err, serrors.CodeConflict) {
		t.Fatalf("expected conflict against sibling boost, got %v", err)
	}
}

func TestUpdateOwnership(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p := 1
	if _, err := svc.Update(context.Background(), vendorPrincipal("v2"), created.ID, boost.Patch{Priority: &p}); !serrors.IsCode(err, serrors.CodeNotFound) {
		t.Fatalf("foreign boosts must read as absent, got %v", err)
	}
}

func TestStopOnlyFromActive(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Stop(context.Background(), vendorPrincipal("v1"), created.ID); !serrors.IsCode(err, serrors.CodeValidation) {
		t.Fatalf("stopping a scheduled boost must fail, got %v", err)
	}

	if _, err := svc.ForceStatus(context.Background(), adminPrincipal, created.ID, boost.StatusActive); err != nil {
		t.Fatalf("force active: %v", err)
	}
	stopped, err := svc.Stop(context.Background(), vendorPrincipal("v1"), created.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != boost.StatusStopped {
		t.Fatalf("expected stopped, got %s", stopped.Status)
	}
	if stopped.EndDate.After(time.Now().UTC().Add(time.Second)) {
		t.Fatalf("stop must pull the end date to now, got %v", stopped.EndDate)
	}
}

func TestDeleteOnlyDraftOrExpired(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), vendorPrincipal("v1"), created.ID); !serrors.IsCode(err, serrors.CodeValidation) {
		t.Fatalf("deleting a scheduled boost must fail, got %v", err)
	}

	if _, err := svc.ForceStatus(context.Background(), adminPrincipal, created.ID, boost.StatusExpired); err != nil {
		t.Fatalf("force expired: %v", err)
	}
	if err := svc.Delete(context.Background(), vendorPrincipal("v1"), created.ID); err != nil {
		t.Fatalf("delete expired: %v", err)
	}

	// deleted boosts disappear from reads and no longer conflict
	if _, err := svc.Get(context.Background(), vendorPrincipal("v1"), created.ID); !serrors.IsCode(err, serrors.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1")); err != nil {
		t.Fatalf("deleted boost must not conflict: %v", err)
	}
}

func TestForceStatusIdempotentAndGuarded(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	created, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.ForceStatus(context.Background(), vendorPrincipal("v1"), created.ID, boost.StatusActive); !serrors.IsCode(err, serrors.CodeForbidden) {
		t.Fatalf("vendors must not force statuses, got %v", err)
	}
	if _, err := svc.ForceStatus(context.Background(), adminPrincipal, created.ID, boost.StatusDraft); !serrors.IsCode(err, serrors.CodeValidation) {
		t.Fatalf("draft is not a forceable target, got %v", err)
	}

	first, err := svc.ForceStatus(context.Background(), adminPrincipal, created.ID, boost.StatusExpired)
	if err != nil {
		t.Fatalf("force expired: %v", err)
	}
	again, err := svc.ForceStatus(context.Background(), adminPrincipal, created.ID, boost.StatusExpired)
	if err != nil {
		t.Fatalf("re-applying the same status must be a no-op: %v", err)
	}
	if first.Status != again.Status {
		t.Fatalf("idempotency broken: %s vs %s", first.Status, again.Status)
	}
}

func TestSweepTransitions(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 10000)

	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	startable := dayBoost("p1")
	startable.StartDate = now.Add(-time.Hour)
	pending := dayBoost("p2")
	pending.StartDate = now.Add(24 * time.Hour)
	finished := dayBoost("p3")
	finished.StartDate = now.Add(-96 * time.Hour)

	a, err := svc.Create(context.Background(), vendorPrincipal("v1"), startable)
	if err != nil {
		t.Fatalf("create startable: %v", err)
	}
	b, err := svc.Create(context.Background(), vendorPrincipal("v1"), pending)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	c, err := svc.Create(context.Background(), vendorPrincipal("v1"), finished)
	if err != nil {
		t.Fatalf("create finished: %v", err)
	}

	activated, expired, err := svc.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if activated != 1 || expired != 1 {
		t.Fatalf("expected 1 activation and 1 expiry, got %d/%d", activated, expired)
	}

	assertStatus := func(id string, want boost.Status) {
		t.Helper()
		got, err := store.GetBoost(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if got.Status != want {
			t.Fatalf("boost %s: expected %s, got %s", id, want, got.Status)
		}
	}
	assertStatus(a.ID, boost.StatusActive)
	assertStatus(b.ID, boost.StatusScheduled)
	assertStatus(c.ID, boost.StatusExpired)

	// a second pass at the same instant changes nothing
	activated, expired, err = svc.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if activated != 0 || expired != 0 {
		t.Fatalf("sweep must be idempotent, got %d/%d", activated, expired)
	}
}

func TestListFiltersByType(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 10000)
	fund(t, store, "v2", 10000)

	if _, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	highlight := dayBoost("p2")
	highlight.Type = boost.TypeHighlight
	if _, err := svc.Create(context.Background(), vendorPrincipal("v1"), highlight); err != nil {
		t.Fatalf("create highlight: %v", err)
	}
	if _, err := svc.Create(context.Background(), vendorPrincipal("v2"), dayBoost("p1")); err != nil {
		t.Fatalf("create for other vendor: %v", err)
	}

	all, err := svc.List(context.Background(), vendorPrincipal("v1"), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected own 2 boosts, got %d", len(all))
	}

	featured, err := svc.List(context.Background(), vendorPrincipal("v1"), boost.TypeFeatured)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(featured) != 1 || featured[0].Type != boost.TypeFeatured {
		t.Fatalf("type filter not applied: %+v", featured)
	}

	if _, err := svc.List(context.Background(), vendorPrincipal("v1"), "banner"); !serrors.IsCode(err, serrors.CodeValidation) {
		t.Fatalf("unknown filter type must fail validation, got %v", err)
	}
}

func TestAdminListJoinsVendors(t *testing.T) {
	svc, store := newTestService(t)
	fund(t, store, "v1", 1000)

	v, err := store.CreateVendor(context.Background(), vendorRecord("v1", "Acme", "acme@example.com"))
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	if _, err := svc.Create(context.Background(), vendorPrincipal("v1"), dayBoost("p1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.AdminList(context.Background(), vendorPrincipal("v1")); !serrors.IsCode(err, serrors.CodeForbidden) {
		t.Fatalf("vendors must not read the admin listing")
	}

	entries, err := svc.AdminList(context.Background(), adminPrincipal)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Vendor == nil || entries[0].Vendor.Name != v.Name {
		t.Fatalf("vendor details not joined: %+v", entries[0])
	}
}
