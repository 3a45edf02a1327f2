package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/souq-network/marketplace/internal/app/auth"
	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/storage/memory"
	serrors "github.com/souq-network/marketplace/internal/errors"
)

var admin = auth.Principal{Subject: "admin", Role: auth.RoleAdmin}

func TestCreditAndBalance(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	// unknown vendors read as zero-balance accounts
	balance, err := svc.BalanceOf(context.Background(), "v1")
	require.NoError(t, err)
	require.Zero(t, balance)

	entry, err := svc.Credit(context.Background(), admin, "v1", 500, "initial top-up")
	require.NoError(t, err)
	require.Equal(t, int64(500), entry.Amount)
	require.Equal(t, int64(500), entry.BalanceAfter)

	balance, err = svc.BalanceOf(context.Background(), "v1")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
}

func TestCreditGuards(t *testing.T) {
	svc := New(memory.New(), nil)

	_, err := svc.Credit(context.Background(), auth.Principal{Subject: "v1", Role: auth.RoleVendor}, "v1", 100, "")
	require.True(t, serrors.IsCode(err, serrors.CodeForbidden))

	_, err = svc.Credit(context.Background(), admin, "v1", 0, "")
	require.True(t, serrors.IsCode(err, serrors.CodeValidation))

	_, err = svc.Credit(context.Background(), admin, "", 100, "")
	require.True(t, serrors.IsCode(err, serrors.CodeValidation))
}

func TestTransactionsNewestFirstAndChained(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	for _, amount := range []int64{100, 200, 300} {
		_, err := svc.Credit(context.Background(), admin, "v1", amount, "")
		require.NoError(t, err)
	}

	entries, err := svc.Transactions(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int64(300), entries[0].Amount)
	require.Equal(t, int64(600), entries[0].BalanceAfter)
	require.Equal(t, int64(100), entries[2].Amount)
	require.Equal(t, int64(100), entries[2].BalanceAfter)
}

func TestVerifyLedgerHoldsAcrossDebitsAndCredits(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	_, err := svc.Credit(context.Background(), admin, "v1", 1000, "")
	require.NoError(t, err)

	// debit through the admission unit, the only writer allowed to charge
	_, _, err = store.AdmitBoost(context.Background(), boost.Boost{
		VendorID:  "v1",
		Type:      boost.TypeFeatured,
		ScopeType: boost.ScopeProduct,
		ScopeIDs:  []string{"p1"},
		Duration:  boost.Duration{Value: 1, Unit: boost.UnitDay},
		Price:     400,
		Status:    boost.StatusScheduled,
	}, "boost charge")
	require.NoError(t, err)

	_, err = svc.Credit(context.Background(), admin, "v1", 250, "")
	require.NoError(t, err)

	require.NoError(t, svc.VerifyLedger(context.Background(), "v1"))

	balance, err := svc.BalanceOf(context.Background(), "v1")
	require.NoError(t, err)
	require.Equal(t, int64(850), balance)
}
