package lending

import (
	"math/big"

	"meridian/crypto"
)

// Custody identifies the current holder of a pledged collateral asset.
// Exactly one holder exists at any time; custody is tracked explicitly on the
// loan record rather than inferred from external ownership queries.
type Custody uint8

const (
	// CustodyBorrower means the asset sits with its owner, outside the protocol.
	CustodyBorrower Custody = iota
	// CustodyVerificationVault holds the asset while an admin decision is pending.
	CustodyVerificationVault
	// CustodyPool holds the asset as posted collateral or as seized property
	// after a liquidation.
	CustodyPool
)

// LoanStatus tracks where a borrower sits in the collateral lifecycle.
type LoanStatus uint8

const (
	StatusUnsubmitted LoanStatus = iota
	StatusPendingVerification
	StatusVerified
	StatusCollateralPosted
	StatusClosed
	StatusLiquidated
)

func (s LoanStatus) String() string {
	switch s {
	case StatusUnsubmitted:
		return "unsubmitted"
	case StatusPendingVerification:
		return "pending_verification"
	case StatusVerified:
		return "verified"
	case StatusCollateralPosted:
		return "collateral_posted"
	case StatusClosed:
		return "closed"
	case StatusLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// LendingPool captures the global configuration and aggregate reserves for a
// single stablecoin pool. Amount values are expressed as big integers in the
// stablecoin's base units.
type LendingPool struct {
	// Owner is the pool authority controlling configuration and admins.
	Owner crypto.Address
	// LTVBps is the maximum borrowable fraction of collateral valuation.
	LTVBps uint64
	// Curve is the tiered utilization to APR mapping.
	Curve RateCurve
	// LiquidationThresholdBps is the debt-to-valuation ratio at which a loan
	// becomes liquidatable.
	LiquidationThresholdBps uint64
	// LiquidationPenaltyBps is the penalty charged against outstanding debt
	// when a loan is seized.
	LiquidationPenaltyBps uint64
	// LiquidatorRewardBps is the liquidator's cut of the penalty, not of the
	// total debt.
	LiquidatorRewardBps uint64
	// EarlyWithdrawalFeeBps is withheld from redemptions made before the
	// withdrawal epoch elapses.
	EarlyWithdrawalFeeBps uint64
	// OriginationFeeBps is deducted from the disbursed principal at borrow.
	OriginationFeeBps uint64
	// WithdrawalEpochSeconds measures the fee window from a lender's first deposit.
	WithdrawalEpochSeconds int64
	// IsLocked halts deposits and borrow-initiating flows; repayment and
	// liquidation remain permitted so borrowers are never trapped.
	IsLocked bool

	// TotalStableReserve is the liquid stablecoin held by the pool.
	TotalStableReserve *big.Int
	// TotalClaimSupply is the aggregate claim-token supply minted to lenders.
	TotalClaimSupply *big.Int
	// TotalDebtOutstanding is the principal plus accrued interest owed across
	// all borrowers.
	TotalDebtOutstanding *big.Int
}

// EnsureDefaults populates nil aggregates so operations can mutate them.
func (p *LendingPool) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.TotalStableReserve == nil {
		p.TotalStableReserve = big.NewInt(0)
	}
	if p.TotalClaimSupply == nil {
		p.TotalClaimSupply = big.NewInt(0)
	}
	if p.TotalDebtOutstanding == nil {
		p.TotalDebtOutstanding = big.NewInt(0)
	}
}

// AdminRegistry is the set of addresses authorized for privileged operations,
// separate from the pool's sole authority. The authority is implicitly
// privileged for configuration and does not need to appear in the set.
type AdminRegistry struct {
	Authority crypto.Address
	Admins    []crypto.Address
}

// MaxAdmins bounds the registry size.
const MaxAdmins = 10

// IsAdmin reports whether addr is a member of the registry.
func (r *AdminRegistry) IsAdmin(addr crypto.Address) bool {
	if r == nil {
		return false
	}
	for _, admin := range r.Admins {
		if admin.Equal(addr) {
			return true
		}
	}
	return false
}

// Add appends an admin, rejecting duplicates and enforcing the size cap.
func (r *AdminRegistry) Add(addr crypto.Address) error {
	if r.IsAdmin(addr) {
		return ErrDuplicateAdmin
	}
	if len(r.Admins) >= MaxAdmins {
		return ErrMaxAdmins
	}
	r.Admins = append(r.Admins, addr)
	return nil
}

// Remove deletes an admin, failing when the address is not present.
func (r *AdminRegistry) Remove(addr crypto.Address) error {
	for i, admin := range r.Admins {
		if admin.Equal(addr) {
			r.Admins = append(r.Admins[:i], r.Admins[i+1:]...)
			return nil
		}
	}
	return ErrUnknownAdmin
}

// PriceOracle holds the admin-maintained collateral reference price. The true
// price is Price × 10^Exponent.
type PriceOracle struct {
	Price     uint64
	Exponent  int32
	UpdatedAt int64
}

// LoanState maintains the collateral-verification lifecycle and outstanding
// debt for a single borrower.
type LoanState struct {
	Borrower crypto.Address
	// AssetRef identifies the pledged collateral token in the external
	// non-fungible asset registry.
	AssetRef string
	// VerificationID binds a collateral-submission cycle to its eventual
	// admin decision; it increases monotonically across cycles.
	VerificationID uint64
	IsVerified     bool
	Status         LoanStatus
	Custody        Custody
	// PurityBps is the asset quality score recorded at verification.
	PurityBps uint64
	// Valuation is the stablecoin-denominated collateral value recorded at
	// verification.
	Valuation *big.Int
	// Debt is the total outstanding obligation: principal plus accrued
	// interest plus the origination fee.
	Debt *big.Int
	// LastAccrual is the unix timestamp of the most recent interest accrual.
	LastAccrual int64
}

// EnsureDefaults populates nil amounts on a loan record.
func (l *LoanState) EnsureDefaults() {
	if l == nil {
		return
	}
	if l.Valuation == nil {
		l.Valuation = big.NewInt(0)
	}
	if l.Debt == nil {
		l.Debt = big.NewInt(0)
	}
}

// LenderState records per-lender deposit metadata used by the early
// withdrawal fee window. Claim-token balances live on the lender's account.
type LenderState struct {
	Address        crypto.Address
	FirstDepositAt int64
	TotalDeposited *big.Int
}

// EnsureDefaults populates nil amounts on a lender record.
func (l *LenderState) EnsureDefaults() {
	if l == nil {
		return
	}
	if l.TotalDeposited == nil {
		l.TotalDeposited = big.NewInt(0)
	}
}

// FeeAccrual accumulates protocol revenue retained inside the reserve.
type FeeAccrual struct {
	OriginationFees *big.Int
	PenaltyFees     *big.Int
	WithdrawalFees  *big.Int
}

// EnsureDefaults populates nil fee buckets.
func (f *FeeAccrual) EnsureDefaults() {
	if f == nil {
		return
	}
	if f.OriginationFees == nil {
		f.OriginationFees = big.NewInt(0)
	}
	if f.PenaltyFees == nil {
		f.PenaltyFees = big.NewInt(0)
	}
	if f.WithdrawalFees == nil {
		f.WithdrawalFees = big.NewInt(0)
	}
}
