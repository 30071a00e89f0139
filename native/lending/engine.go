package lending

import (
	"math/big"
	"strings"
	"time"

	"meridian/core/types"
	"meridian/crypto"
	nativecommon "meridian/native/common"
)

const moduleName = "lending"

// engineState is the persistence surface the engine runs against. The hosting
// environment applies each operation atomically and serializes conflicting
// calls, so the engine stages every check before its first write.
type engineState interface {
	GetPool() (*LendingPool, error)
	PutPool(pool *LendingPool) error
	GetRegistry() (*AdminRegistry, error)
	PutRegistry(registry *AdminRegistry) error
	GetOracle() (*PriceOracle, error)
	PutOracle(oracle *PriceOracle) error
	GetLoan(addr crypto.Address) (*LoanState, error)
	PutLoan(loan *LoanState) error
	GetLender(addr crypto.Address) (*LenderState, error)
	PutLender(lender *LenderState) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	GetFees() (*FeeAccrual, error)
	PutFees(fees *FeeAccrual) error
}

// Engine orchestrates the state transitions of the lending protocol: pool
// liquidity accounting, the collateral-verification lifecycle, debt accrual
// and the liquidation trigger.
type Engine struct {
	state        engineState
	pauses       nativecommon.PauseView
	clock        func() time.Time
	events       func(*types.Event)
	debtOverride bool
}

// NewEngine constructs an engine with the default wall clock.
func NewEngine() *Engine {
	return &Engine{clock: time.Now}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses installs the operator pause switches consulted by every
// state-mutating operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock overrides the time source for deterministic testing.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// SetEventSink registers a receiver for protocol events.
func (e *Engine) SetEventSink(sink func(*types.Event)) {
	if e == nil {
		return
	}
	e.events = sink
}

// SetDebtOverrideEnabled arms the admin debt override hook. The hook stays
// disabled in production deployments.
func (e *Engine) SetDebtOverrideEnabled(enabled bool) {
	if e == nil {
		return
	}
	e.debtOverride = enabled
}

func (e *Engine) emit(ev *types.Event) {
	if e == nil || e.events == nil || ev == nil {
		return
	}
	e.events(ev)
}

func (e *Engine) now() int64 {
	if e == nil || e.clock == nil {
		return time.Now().Unix()
	}
	return e.clock().Unix()
}

// Initialize creates the pool, its admin registry and its oracle with the
// caller as authority. It fails when a pool already exists or any configured
// parameter sits outside its allowed range.
func (e *Engine) Initialize(authority crypto.Address, cfg Config) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if authority.IsZero() {
		return ErrInvalidParameter
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	existing, err := e.state.GetPool()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrPoolExists
	}

	pool := &LendingPool{
		Owner:                   authority,
		LTVBps:                  cfg.LTVBps,
		Curve:                   cfg.curve(),
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		LiquidationPenaltyBps:   cfg.LiquidationPenaltyBps,
		LiquidatorRewardBps:     cfg.LiquidatorRewardBps,
		EarlyWithdrawalFeeBps:   cfg.EarlyWithdrawalFeeBps,
		OriginationFeeBps:       cfg.OriginationFeeBps,
		WithdrawalEpochSeconds:  cfg.WithdrawalEpochSeconds,
	}
	pool.EnsureDefaults()
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	if err := e.state.PutRegistry(&AdminRegistry{Authority: authority}); err != nil {
		return err
	}
	if err := e.state.PutOracle(&PriceOracle{}); err != nil {
		return err
	}
	e.emit(newEvent(EventTypePoolInitialized, map[string]string{
		"authority": addrAttr(authority),
		"ltvBps":    uintAttr(cfg.LTVBps),
	}))
	return nil
}

// AddAdmin appends an address to the admin registry. Authority only.
func (e *Engine) AddAdmin(signer, admin crypto.Address) error {
	registry, err := e.requireAuthority(signer)
	if err != nil {
		return err
	}
	if admin.IsZero() {
		return ErrInvalidParameter
	}
	if err := registry.Add(admin); err != nil {
		return err
	}
	if err := e.state.PutRegistry(registry); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeAdminAdded, map[string]string{"admin": addrAttr(admin)}))
	return nil
}

// RemoveAdmin deletes an address from the admin registry. Authority only.
func (e *Engine) RemoveAdmin(signer, admin crypto.Address) error {
	registry, err := e.requireAuthority(signer)
	if err != nil {
		return err
	}
	if err := registry.Remove(admin); err != nil {
		return err
	}
	if err := e.state.PutRegistry(registry); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeAdminRemoved, map[string]string{"admin": addrAttr(admin)}))
	return nil
}

// Lock halts deposits and borrow-initiating operations. Authority only.
// Repayment and liquidation stay open so borrowers are never trapped.
func (e *Engine) Lock(signer crypto.Address) error {
	if _, err := e.requireAuthority(signer); err != nil {
		return err
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	if pool.IsLocked {
		return ErrAlreadyLocked
	}
	pool.IsLocked = true
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(newEvent(EventTypePoolLocked, nil))
	return nil
}

// Unlock reopens a locked pool. Authority only.
func (e *Engine) Unlock(signer crypto.Address) error {
	if _, err := e.requireAuthority(signer); err != nil {
		return err
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	if !pool.IsLocked {
		return ErrAlreadyUnlocked
	}
	pool.IsLocked = false
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(newEvent(EventTypePoolUnlocked, nil))
	return nil
}

// Deposit moves stablecoin from the lender into the pool reserve and mints
// proportional claim tokens. The minted share amount is returned.
func (e *Engine) Deposit(lender crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if pool.IsLocked {
		return nil, ErrPoolLocked
	}

	account, err := e.loadAccount(lender)
	if err != nil {
		return nil, err
	}
	if account.BalanceStable.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}

	// Proportional mint against the current reserve, 1:1 at bootstrap.
	minted := new(big.Int)
	if pool.TotalClaimSupply.Sign() == 0 || pool.TotalStableReserve.Sign() == 0 {
		minted.Set(amount)
	} else {
		minted = mulDiv(amount, pool.TotalClaimSupply, pool.TotalStableReserve)
	}
	if minted.Sign() == 0 {
		return nil, ErrInvalidAmount
	}

	lenderState, err := e.ensureLender(lender)
	if err != nil {
		return nil, err
	}
	if lenderState.FirstDepositAt == 0 {
		lenderState.FirstDepositAt = e.now()
	}
	lenderState.TotalDeposited = new(big.Int).Add(lenderState.TotalDeposited, amount)

	account.BalanceStable = new(big.Int).Sub(account.BalanceStable, amount)
	account.BalanceClaim = new(big.Int).Add(account.BalanceClaim, minted)
	pool.TotalStableReserve = new(big.Int).Add(pool.TotalStableReserve, amount)
	pool.TotalClaimSupply = new(big.Int).Add(pool.TotalClaimSupply, minted)

	if err := e.state.PutAccount(lender, account); err != nil {
		return nil, err
	}
	if err := e.state.PutLender(lenderState); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newEvent(EventTypeDeposited, map[string]string{
		"lender": addrAttr(lender),
		"amount": amount.String(),
		"minted": minted.String(),
	}))
	return minted, nil
}

// Withdraw burns claim tokens and releases the corresponding stablecoin back
// to the lender. Redemptions inside the withdrawal epoch pay the early
// withdrawal fee, which stays in the reserve. The net payout is returned.
func (e *Engine) Withdraw(lender crypto.Address, claimAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if claimAmount == nil || claimAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if pool.IsLocked {
		return nil, ErrPoolLocked
	}
	if pool.TotalClaimSupply.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	account, err := e.loadAccount(lender)
	if err != nil {
		return nil, err
	}
	if account.BalanceClaim.Cmp(claimAmount) < 0 {
		return nil, ErrInsufficientBalance
	}

	payout := mulDiv(claimAmount, pool.TotalStableReserve, pool.TotalClaimSupply)
	if payout.Cmp(availableLiquidity(pool)) > 0 {
		return nil, ErrInsufficientLiquidity
	}

	lenderState, err := e.ensureLender(lender)
	if err != nil {
		return nil, err
	}
	fee := big.NewInt(0)
	if e.now()-lenderState.FirstDepositAt < pool.WithdrawalEpochSeconds {
		fee = bpsOf(payout, pool.EarlyWithdrawalFeeBps)
	}
	net := new(big.Int).Sub(payout, fee)

	account.BalanceClaim = new(big.Int).Sub(account.BalanceClaim, claimAmount)
	account.BalanceStable = new(big.Int).Add(account.BalanceStable, net)
	pool.TotalClaimSupply = new(big.Int).Sub(pool.TotalClaimSupply, claimAmount)
	pool.TotalStableReserve = new(big.Int).Sub(pool.TotalStableReserve, net)

	fees, err := e.ensureFees()
	if err != nil {
		return nil, err
	}
	feesChanged := false
	if fee.Sign() > 0 {
		fees.WithdrawalFees = new(big.Int).Add(fees.WithdrawalFees, fee)
		feesChanged = true
	}

	if err := e.state.PutAccount(lender, account); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	if feesChanged {
		if err := e.state.PutFees(fees); err != nil {
			return nil, err
		}
	}
	e.emit(newEvent(EventTypeWithdrawn, map[string]string{
		"lender": addrAttr(lender),
		"claim":  claimAmount.String(),
		"payout": net.String(),
		"fee":    fee.String(),
	}))
	return net, nil
}

// SubmitCollateral places the borrower's asset into the verification vault
// and opens a fresh verification cycle. The new verification id is returned.
func (e *Engine) SubmitCollateral(borrower crypto.Address, assetRef string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	assetRef = strings.TrimSpace(assetRef)
	if assetRef == "" {
		return 0, ErrInvalidParameter
	}
	pool, err := e.ensurePool()
	if err != nil {
		return 0, err
	}
	if pool.IsLocked {
		return 0, ErrPoolLocked
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return 0, err
	}
	switch loan.Status {
	case StatusUnsubmitted, StatusClosed:
		// A fresh cycle may begin.
	case StatusPendingVerification:
		return 0, ErrAlreadyPending
	default:
		return 0, ErrAlreadyPending
	}

	loan.AssetRef = assetRef
	loan.VerificationID++
	loan.IsVerified = false
	loan.PurityBps = 0
	loan.Valuation = big.NewInt(0)
	loan.Status = StatusPendingVerification
	loan.Custody = CustodyVerificationVault

	if err := e.state.PutLoan(loan); err != nil {
		return 0, err
	}
	e.emit(newEvent(EventTypeCollateralSubmitted, map[string]string{
		"borrower":       addrAttr(borrower),
		"assetRef":       assetRef,
		"verificationId": uintAttr(loan.VerificationID),
	}))
	return loan.VerificationID, nil
}

// VerifyAsset records the admin decision for a pending verification cycle.
// Approval stores the purity score and stablecoin valuation; rejection hands
// the asset back to the borrower and resets the cycle.
func (e *Engine) VerifyAsset(signer, borrower crypto.Address, verificationID uint64, approved bool, purityBps uint64, valuation *big.Int) error {
	if err := e.requireAdmin(signer); err != nil {
		return err
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return err
	}
	if loan.Status != StatusPendingVerification || loan.VerificationID != verificationID {
		return ErrStaleVerification
	}

	if !approved {
		loan.IsVerified = false
		loan.Status = StatusUnsubmitted
		loan.Custody = CustodyBorrower
		if err := e.state.PutLoan(loan); err != nil {
			return err
		}
		e.emit(newEvent(EventTypeAssetRejected, map[string]string{
			"borrower":       addrAttr(borrower),
			"verificationId": uintAttr(verificationID),
		}))
		return nil
	}

	if purityBps > 10_000 {
		return ErrInvalidParameter
	}
	if valuation == nil || valuation.Sign() <= 0 {
		return ErrInvalidParameter
	}
	loan.IsVerified = true
	loan.Status = StatusVerified
	loan.PurityBps = purityBps
	loan.Valuation = new(big.Int).Set(valuation)
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeAssetVerified, map[string]string{
		"borrower":       addrAttr(borrower),
		"verificationId": uintAttr(verificationID),
		"purityBps":      uintAttr(purityBps),
		"valuation":      valuation.String(),
	}))
	return nil
}

// DepositCollateral moves a verified asset from the verification vault into
// pool custody, making the loan eligible for borrowing.
func (e *Engine) DepositCollateral(borrower crypto.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	if pool.IsLocked {
		return ErrPoolLocked
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return err
	}
	if !loan.IsVerified || loan.Status != StatusVerified || loan.Custody != CustodyVerificationVault {
		return ErrNotVerified
	}
	loan.Status = StatusCollateralPosted
	loan.Custody = CustodyPool
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeCollateralPosted, map[string]string{
		"borrower": addrAttr(borrower),
		"assetRef": loan.AssetRef,
	}))
	return nil
}

// Borrow draws stablecoin against posted collateral. A nil amount draws the
// full remaining headroom under the loan-to-value cap. The origination fee is
// deducted from the disbursement while the full principal is added to the
// borrower's debt. The disbursed amount is returned.
func (e *Engine) Borrow(borrower crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount != nil && amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if pool.IsLocked {
		return nil, ErrPoolLocked
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan.Status != StatusCollateralPosted {
		return nil, ErrNotVerified
	}

	e.accrue(pool, loan)

	maxBorrow := bpsOf(loan.Valuation, pool.LTVBps)
	headroom := new(big.Int).Sub(maxBorrow, loan.Debt)
	if headroom.Sign() <= 0 {
		return nil, ErrExceedsLTV
	}
	principal := headroom
	if amount != nil {
		if amount.Cmp(headroom) > 0 {
			return nil, ErrExceedsLTV
		}
		principal = new(big.Int).Set(amount)
	}

	fee := bpsOf(principal, pool.OriginationFeeBps)
	disbursed := new(big.Int).Sub(principal, fee)
	if disbursed.Cmp(availableLiquidity(pool)) > 0 {
		return nil, ErrInsufficientLiquidity
	}

	account, err := e.loadAccount(borrower)
	if err != nil {
		return nil, err
	}

	loan.Debt = new(big.Int).Add(loan.Debt, principal)
	pool.TotalDebtOutstanding = new(big.Int).Add(pool.TotalDebtOutstanding, principal)
	pool.TotalStableReserve = new(big.Int).Sub(pool.TotalStableReserve, disbursed)
	account.BalanceStable = new(big.Int).Add(account.BalanceStable, disbursed)

	fees, err := e.ensureFees()
	if err != nil {
		return nil, err
	}
	feesChanged := false
	if fee.Sign() > 0 {
		fees.OriginationFees = new(big.Int).Add(fees.OriginationFees, fee)
		feesChanged = true
	}

	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(borrower, account); err != nil {
		return nil, err
	}
	if feesChanged {
		if err := e.state.PutFees(fees); err != nil {
			return nil, err
		}
	}
	e.emit(newEvent(EventTypeBorrowed, map[string]string{
		"borrower":  addrAttr(borrower),
		"principal": principal.String(),
		"disbursed": disbursed.String(),
		"fee":       fee.String(),
	}))
	return disbursed, nil
}

// Repay settles outstanding debt. The effective repayment is capped at the
// amount owed; full settlement returns custody to the borrower and closes the
// loan. Repayment stays open while the pool is locked. The effective amount
// repaid is returned.
func (e *Engine) Repay(borrower crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan.Status != StatusCollateralPosted {
		return nil, ErrNoDebt
	}

	e.accrue(pool, loan)
	if loan.Debt.Sign() == 0 {
		return nil, ErrNoDebt
	}

	effective := new(big.Int).Set(amount)
	if effective.Cmp(loan.Debt) > 0 {
		effective = new(big.Int).Set(loan.Debt)
	}

	account, err := e.loadAccount(borrower)
	if err != nil {
		return nil, err
	}
	if account.BalanceStable.Cmp(effective) < 0 {
		return nil, ErrInsufficientBalance
	}

	account.BalanceStable = new(big.Int).Sub(account.BalanceStable, effective)
	pool.TotalStableReserve = new(big.Int).Add(pool.TotalStableReserve, effective)
	loan.Debt = new(big.Int).Sub(loan.Debt, effective)
	pool.TotalDebtOutstanding = new(big.Int).Sub(pool.TotalDebtOutstanding, effective)
	if pool.TotalDebtOutstanding.Sign() < 0 {
		pool.TotalDebtOutstanding = big.NewInt(0)
	}

	closed := loan.Debt.Sign() == 0
	if closed {
		loan.Status = StatusClosed
		loan.Custody = CustodyBorrower
	}

	if err := e.state.PutAccount(borrower, account); err != nil {
		return nil, err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emit(newEvent(EventTypeRepaid, map[string]string{
		"borrower": addrAttr(borrower),
		"amount":   effective.String(),
	}))
	if closed {
		e.emit(newEvent(EventTypeLoanClosed, map[string]string{
			"borrower": addrAttr(borrower),
			"assetRef": loan.AssetRef,
		}))
	}
	return effective, nil
}

// Liquidate seizes an under-collateralized loan. The penalty is charged
// against outstanding debt; the liquidator receives their configured cut of
// the penalty from the reserve and the remainder is retained by the pool.
// Liquidation stays open while the pool is locked. The penalty and the
// liquidator reward are returned.
func (e *Engine) Liquidate(liquidator, borrower crypto.Address) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, nil, err
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return nil, nil, err
	}
	if loan.Status != StatusCollateralPosted {
		return nil, nil, ErrNoDebt
	}

	e.accrue(pool, loan)
	if loan.Debt.Sign() == 0 {
		return nil, nil, ErrNoDebt
	}
	if healthRatioBps(loan) < pool.LiquidationThresholdBps {
		return nil, nil, ErrAboveLiquidationThreshold
	}

	penalty := bpsOf(loan.Debt, pool.LiquidationPenaltyBps)
	reward := bpsOf(penalty, pool.LiquidatorRewardBps)
	if reward.Cmp(pool.TotalStableReserve) > 0 {
		reward = new(big.Int).Set(pool.TotalStableReserve)
	}

	account, err := e.loadAccount(liquidator)
	if err != nil {
		return nil, nil, err
	}

	pool.TotalStableReserve = new(big.Int).Sub(pool.TotalStableReserve, reward)
	account.BalanceStable = new(big.Int).Add(account.BalanceStable, reward)
	pool.TotalDebtOutstanding = new(big.Int).Sub(pool.TotalDebtOutstanding, loan.Debt)
	if pool.TotalDebtOutstanding.Sign() < 0 {
		pool.TotalDebtOutstanding = big.NewInt(0)
	}

	loan.Debt = big.NewInt(0)
	loan.Status = StatusLiquidated
	loan.Custody = CustodyPool

	fees, err := e.ensureFees()
	if err != nil {
		return nil, nil, err
	}
	retained := new(big.Int).Sub(penalty, reward)
	if retained.Sign() > 0 {
		fees.PenaltyFees = new(big.Int).Add(fees.PenaltyFees, retained)
		if err := e.state.PutFees(fees); err != nil {
			return nil, nil, err
		}
	}

	if err := e.state.PutAccount(liquidator, account); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, nil, err
	}
	e.emit(newEvent(EventTypeLiquidated, map[string]string{
		"borrower":   addrAttr(borrower),
		"liquidator": addrAttr(liquidator),
		"penalty":    penalty.String(),
		"reward":     reward.String(),
	}))
	return penalty, reward, nil
}

// UpdateTotalDebt overrides a borrower's outstanding debt directly. Admin
// only, and armed explicitly via SetDebtOverrideEnabled; production
// deployments keep the hook disabled.
func (e *Engine) UpdateTotalDebt(signer, borrower crypto.Address, amount *big.Int) error {
	if err := e.requireAdmin(signer); err != nil {
		return err
	}
	if !e.debtOverride {
		return ErrOverrideDisabled
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return err
	}
	if loan.Status != StatusCollateralPosted {
		return ErrNotVerified
	}

	delta := new(big.Int).Sub(amount, loan.Debt)
	pool.TotalDebtOutstanding = new(big.Int).Add(pool.TotalDebtOutstanding, delta)
	if pool.TotalDebtOutstanding.Sign() < 0 {
		pool.TotalDebtOutstanding = big.NewInt(0)
	}
	loan.Debt = new(big.Int).Set(amount)
	loan.LastAccrual = e.now()

	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	return e.state.PutPool(pool)
}

// UpdateCollateralValuation revalues a borrower's verified collateral. Admin only.
func (e *Engine) UpdateCollateralValuation(signer, borrower crypto.Address, amount *big.Int) error {
	if err := e.requireAdmin(signer); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return err
	}
	if loan.Status != StatusVerified && loan.Status != StatusCollateralPosted {
		return ErrNotVerified
	}
	loan.Valuation = new(big.Int).Set(amount)
	return e.state.PutLoan(loan)
}

// --- Read-only projections ---

// Pool returns the current pool record.
func (e *Engine) Pool() (*LendingPool, error) {
	return e.ensurePool()
}

// Loan returns the borrower's loan record, nil when none exists.
func (e *Engine) Loan(borrower crypto.Address) (*LoanState, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	loan.EnsureDefaults()
	return loan, nil
}

// Account returns the participant's token balances, zeroed when the account
// has never transacted.
func (e *Engine) Account(addr crypto.Address) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadAccount(addr)
}

// Fees returns the accumulated protocol revenue buckets.
func (e *Engine) Fees() (*FeeAccrual, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.ensureFees()
}

// Registry returns the current admin registry.
func (e *Engine) Registry() (*AdminRegistry, error) {
	return e.ensureRegistry()
}

// QuoteShares previews the claim tokens minted for a deposit of amount.
func (e *Engine) QuoteShares(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if pool.TotalClaimSupply.Sign() == 0 || pool.TotalStableReserve.Sign() == 0 {
		return new(big.Int).Set(amount), nil
	}
	return mulDiv(amount, pool.TotalClaimSupply, pool.TotalStableReserve), nil
}

// QuoteWithdrawable previews the gross redemption value of claim tokens,
// before any early withdrawal fee.
func (e *Engine) QuoteWithdrawable(claimAmount *big.Int) (*big.Int, error) {
	if claimAmount == nil || claimAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	if pool.TotalClaimSupply.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return mulDiv(claimAmount, pool.TotalStableReserve, pool.TotalClaimSupply), nil
}

// MaxBorrowable returns the borrower's remaining headroom under the
// loan-to-value cap, including interest projected to the current instant.
func (e *Engine) MaxBorrowable(borrower crypto.Address) (*big.Int, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan.Status != StatusCollateralPosted {
		return big.NewInt(0), nil
	}
	debt := e.projectedDebt(pool, loan)
	headroom := new(big.Int).Sub(bpsOf(loan.Valuation, pool.LTVBps), debt)
	if headroom.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return headroom, nil
}

// OutstandingDebt returns the borrower's debt projected to the current instant.
func (e *Engine) OutstandingDebt(borrower crypto.Address) (*big.Int, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return nil, err
	}
	return e.projectedDebt(pool, loan), nil
}

// HealthRatioBps returns debt-to-valuation in basis points, projected to the
// current instant. A loan is liquidatable once the ratio reaches the pool's
// liquidation threshold.
func (e *Engine) HealthRatioBps(borrower crypto.Address) (uint64, error) {
	pool, err := e.ensurePool()
	if err != nil {
		return 0, err
	}
	loan, err := e.ensureLoan(borrower)
	if err != nil {
		return 0, err
	}
	projected := &LoanState{Valuation: loan.Valuation, Debt: e.projectedDebt(pool, loan)}
	return healthRatioBps(projected), nil
}

// --- internals ---

// accrue applies simple interest on the loan's debt for the elapsed time
// since the last accrual, at the APR the curve yields for the pool's current
// utilization. Accruing twice at the same instant adds zero.
func (e *Engine) accrue(pool *LendingPool, loan *LoanState) {
	if pool == nil || loan == nil {
		return
	}
	now := e.now()
	if loan.Debt == nil || loan.Debt.Sign() == 0 {
		loan.LastAccrual = now
		return
	}
	dt := now - loan.LastAccrual
	if dt <= 0 {
		return
	}
	apr := pool.Curve.RateBps(utilizationBps(pool))
	interest := accruedInterest(loan.Debt, apr, dt)
	if interest.Sign() > 0 {
		loan.Debt = new(big.Int).Add(loan.Debt, interest)
		pool.TotalDebtOutstanding = new(big.Int).Add(pool.TotalDebtOutstanding, interest)
	}
	loan.LastAccrual = now
}

// projectedDebt computes debt including pending interest without mutating state.
func (e *Engine) projectedDebt(pool *LendingPool, loan *LoanState) *big.Int {
	if loan == nil || loan.Debt == nil || loan.Debt.Sign() == 0 {
		return big.NewInt(0)
	}
	dt := e.now() - loan.LastAccrual
	apr := pool.Curve.RateBps(utilizationBps(pool))
	return new(big.Int).Add(loan.Debt, accruedInterest(loan.Debt, apr, dt))
}

// healthRatioBps computes debt * 10_000 / valuation, saturating when the
// valuation is zero or the quotient leaves the uint64 range.
func healthRatioBps(loan *LoanState) uint64 {
	if loan == nil || loan.Debt == nil || loan.Debt.Sign() == 0 {
		return 0
	}
	if loan.Valuation == nil || loan.Valuation.Sign() == 0 {
		return ^uint64(0)
	}
	ratio := new(big.Int).Mul(loan.Debt, basisPoints)
	ratio.Quo(ratio, loan.Valuation)
	if !ratio.IsUint64() {
		return ^uint64(0)
	}
	return ratio.Uint64()
}

func (e *Engine) ensurePool() (*LendingPool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotInitialised
	}
	pool.EnsureDefaults()
	return pool, nil
}

func (e *Engine) ensureRegistry() (*AdminRegistry, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	registry, err := e.state.GetRegistry()
	if err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, ErrPoolNotInitialised
	}
	return registry, nil
}

func (e *Engine) ensureLoan(borrower crypto.Address) (*LoanState, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if borrower.IsZero() {
		return nil, ErrInvalidParameter
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		loan = &LoanState{Borrower: borrower, Status: StatusUnsubmitted, Custody: CustodyBorrower}
	}
	loan.EnsureDefaults()
	return loan, nil
}

func (e *Engine) ensureLender(addr crypto.Address) (*LenderState, error) {
	lender, err := e.state.GetLender(addr)
	if err != nil {
		return nil, err
	}
	if lender == nil {
		lender = &LenderState{Address: addr}
	}
	lender.EnsureDefaults()
	return lender, nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	if addr.IsZero() {
		return nil, ErrInvalidParameter
	}
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{}
	}
	account.EnsureDefaults()
	return account, nil
}

func (e *Engine) ensureFees() (*FeeAccrual, error) {
	fees, err := e.state.GetFees()
	if err != nil {
		return nil, err
	}
	if fees == nil {
		fees = &FeeAccrual{}
	}
	fees.EnsureDefaults()
	return fees, nil
}

func (e *Engine) requireAuthority(signer crypto.Address) (*AdminRegistry, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	registry, err := e.ensureRegistry()
	if err != nil {
		return nil, err
	}
	if !registry.Authority.Equal(signer) {
		return nil, ErrUnauthorized
	}
	return registry, nil
}

func (e *Engine) requireAdmin(signer crypto.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	registry, err := e.ensureRegistry()
	if err != nil {
		return err
	}
	if !registry.Authority.Equal(signer) && !registry.IsAdmin(signer) {
		return ErrUnauthorized
	}
	return nil
}
