package lending

import (
	"math/big"
	"testing"

	"meridian/core/types"
	"meridian/storage"
)

func TestStoreMissingRecords(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	pool, err := store.GetPool()
	if err != nil || pool != nil {
		t.Fatalf("missing pool = (%v, %v), want (nil, nil)", pool, err)
	}
	registry, err := store.GetRegistry()
	if err != nil || registry != nil {
		t.Fatalf("missing registry = (%v, %v), want (nil, nil)", registry, err)
	}
	loan, err := store.GetLoan(testAddr(1))
	if err != nil || loan != nil {
		t.Fatalf("missing loan = (%v, %v), want (nil, nil)", loan, err)
	}
	account, err := store.GetAccount(testAddr(1))
	if err != nil || account != nil {
		t.Fatalf("missing account = (%v, %v), want (nil, nil)", account, err)
	}
}

func TestStorePoolRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	pool := &LendingPool{
		Owner:                   testAddr(0xA0),
		LTVBps:                  7_500,
		Curve:                   referenceCurve(),
		LiquidationThresholdBps: 10_000,
		LiquidationPenaltyBps:   1_000,
		LiquidatorRewardBps:     2_000,
		EarlyWithdrawalFeeBps:   500,
		OriginationFeeBps:       100,
		WithdrawalEpochSeconds:  86_400,
		IsLocked:                true,
		TotalStableReserve:      big.NewInt(123_456_789),
		TotalClaimSupply:        big.NewInt(100_000_000),
		TotalDebtOutstanding:    big.NewInt(42),
	}
	if err := store.PutPool(pool); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetPool()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Owner.Equal(pool.Owner) || got.LTVBps != pool.LTVBps || !got.IsLocked {
		t.Fatalf("pool round trip mismatch: %+v", got)
	}
	if got.Curve != pool.Curve {
		t.Fatalf("curve mismatch: %+v", got.Curve)
	}
	if got.TotalStableReserve.Cmp(pool.TotalStableReserve) != 0 ||
		got.TotalClaimSupply.Cmp(pool.TotalClaimSupply) != 0 ||
		got.TotalDebtOutstanding.Cmp(pool.TotalDebtOutstanding) != 0 {
		t.Fatalf("aggregate mismatch: %+v", got)
	}
	if got.WithdrawalEpochSeconds != 86_400 {
		t.Fatalf("epoch = %d, want 86400", got.WithdrawalEpochSeconds)
	}
}

func TestStoreRegistryRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	registry := &AdminRegistry{Authority: testAddr(0xA0)}
	if err := registry.Add(testAddr(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := registry.Add(testAddr(2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.PutRegistry(registry); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetRegistry()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Authority.Equal(registry.Authority) || len(got.Admins) != 2 {
		t.Fatalf("registry mismatch: %+v", got)
	}
	if !got.IsAdmin(testAddr(1)) || !got.IsAdmin(testAddr(2)) {
		t.Fatalf("admins lost in round trip")
	}
}

func TestStoreOracleRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	for _, exponent := range []int32{-8, 0, 3} {
		oracle := &PriceOracle{Price: 199_999, Exponent: exponent, UpdatedAt: 1_700_000_000}
		if err := store.PutOracle(oracle); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := store.GetOracle()
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if *got != *oracle {
			t.Fatalf("oracle round trip = %+v, want %+v", got, oracle)
		}
	}
}

func TestStoreLoanRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	loan := &LoanState{
		Borrower:       testAddr(5),
		AssetRef:       "vault-bar-001",
		VerificationID: 3,
		IsVerified:     true,
		Status:         StatusCollateralPosted,
		Custody:        CustodyPool,
		PurityBps:      9_990,
		Valuation:      big.NewInt(2_000),
		Debt:           big.NewInt(1_500),
		LastAccrual:    1_700_000_000,
	}
	if err := store.PutLoan(loan); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetLoan(testAddr(5))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Borrower.Equal(loan.Borrower) || got.AssetRef != loan.AssetRef ||
		got.VerificationID != 3 || !got.IsVerified ||
		got.Status != StatusCollateralPosted || got.Custody != CustodyPool ||
		got.PurityBps != 9_990 || got.LastAccrual != 1_700_000_000 {
		t.Fatalf("loan round trip mismatch: %+v", got)
	}
	if got.Valuation.Cmp(loan.Valuation) != 0 || got.Debt.Cmp(loan.Debt) != 0 {
		t.Fatalf("loan amounts mismatch: %+v", got)
	}
}

func TestStoreAccountAndFeesRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	account := &types.Account{
		Nonce:         7,
		BalanceStable: big.NewInt(1_000),
		BalanceClaim:  big.NewInt(500),
	}
	if err := store.PutAccount(testAddr(1), account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	gotAccount, err := store.GetAccount(testAddr(1))
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if gotAccount.Nonce != 7 ||
		gotAccount.BalanceStable.Cmp(account.BalanceStable) != 0 ||
		gotAccount.BalanceClaim.Cmp(account.BalanceClaim) != 0 {
		t.Fatalf("account round trip mismatch: %+v", gotAccount)
	}

	fees := &FeeAccrual{
		OriginationFees: big.NewInt(15),
		PenaltyFees:     big.NewInt(120),
		WithdrawalFees:  big.NewInt(50),
	}
	if err := store.PutFees(fees); err != nil {
		t.Fatalf("put fees: %v", err)
	}
	gotFees, err := store.GetFees()
	if err != nil {
		t.Fatalf("get fees: %v", err)
	}
	if gotFees.OriginationFees.Cmp(fees.OriginationFees) != 0 ||
		gotFees.PenaltyFees.Cmp(fees.PenaltyFees) != 0 ||
		gotFees.WithdrawalFees.Cmp(fees.WithdrawalFees) != 0 {
		t.Fatalf("fees round trip mismatch: %+v", gotFees)
	}
}

func TestStoreLenderRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	lender := &LenderState{
		Address:        testAddr(1),
		FirstDepositAt: 1_700_000_000,
		TotalDeposited: big.NewInt(10_000),
	}
	if err := store.PutLender(lender); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.GetLender(testAddr(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Address.Equal(lender.Address) || got.FirstDepositAt != lender.FirstDepositAt ||
		got.TotalDeposited.Cmp(lender.TotalDeposited) != 0 {
		t.Fatalf("lender round trip mismatch: %+v", got)
	}
}
