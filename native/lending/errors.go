package lending

import "errors"

var (
	// ErrNilState is returned when the engine has no persistence wired.
	ErrNilState = errors.New("lending engine: state not configured")
	// ErrPoolExists rejects a second initialisation of the same pool.
	ErrPoolExists = errors.New("lending engine: pool already initialised")
	// ErrPoolNotInitialised is returned when an operation runs before initialize.
	ErrPoolNotInitialised = errors.New("lending engine: pool not initialised")

	// ErrUnauthorized is returned when the signer lacks the privilege an
	// operation requires (authority-only or admin-only calls).
	ErrUnauthorized = errors.New("lending engine: unauthorized signer")
	// ErrPoolLocked gates deposit and borrow-initiating operations while the
	// pool's emergency lock is active.
	ErrPoolLocked = errors.New("lending engine: pool is locked")
	// ErrAlreadyLocked rejects locking an already locked pool.
	ErrAlreadyLocked = errors.New("lending engine: pool is already locked")
	// ErrAlreadyUnlocked rejects unlocking an already unlocked pool.
	ErrAlreadyUnlocked = errors.New("lending engine: pool is already unlocked")

	// ErrInvalidParameter covers out-of-range configuration: bps above 10000
	// or non-monotonic utilization breakpoints.
	ErrInvalidParameter = errors.New("lending engine: invalid parameter")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")
	// ErrInsufficientBalance is returned when the signer cannot cover a transfer.
	ErrInsufficientBalance = errors.New("lending engine: insufficient balance")
	// ErrInsufficientLiquidity is returned when a payout would exceed the
	// liquid reserve net of outstanding debt obligations.
	ErrInsufficientLiquidity = errors.New("lending engine: insufficient liquidity")
	// ErrArithmeticOverflow signals a scaled multiplication that left the
	// representable range. Scaled math must fail, never wrap.
	ErrArithmeticOverflow = errors.New("lending engine: arithmetic overflow")

	// ErrExceedsLTV rejects borrows beyond the loan-to-value cap.
	ErrExceedsLTV = errors.New("lending engine: borrow exceeds loan-to-value cap")
	// ErrNotVerified is returned when collateral has not completed the
	// verification lifecycle required by the operation.
	ErrNotVerified = errors.New("lending engine: collateral not verified")
	// ErrAlreadyPending rejects a second collateral submission while a
	// verification cycle is in flight.
	ErrAlreadyPending = errors.New("lending engine: verification already pending")
	// ErrStaleVerification rejects an admin decision carrying a verification
	// id that does not match the borrower's current cycle.
	ErrStaleVerification = errors.New("lending engine: stale verification id")
	// ErrNoDebt is returned when repayment targets a loan with nothing owed.
	ErrNoDebt = errors.New("lending engine: no outstanding debt to repay")

	// ErrInvalidOracleData rejects non-positive oracle prices.
	ErrInvalidOracleData = errors.New("lending engine: invalid oracle data")
	// ErrStaleOracle is returned when the oracle quote is older than the
	// maximum tolerated age.
	ErrStaleOracle = errors.New("lending engine: oracle quote too old")

	// ErrAboveLiquidationThreshold rejects liquidation of a healthy loan.
	ErrAboveLiquidationThreshold = errors.New("lending engine: loan is above liquidation threshold")

	// ErrDuplicateAdmin rejects adding an address already in the registry.
	ErrDuplicateAdmin = errors.New("lending engine: admin already exists")
	// ErrUnknownAdmin rejects removing an address absent from the registry.
	ErrUnknownAdmin = errors.New("lending engine: admin does not exist")
	// ErrMaxAdmins caps the registry size.
	ErrMaxAdmins = errors.New("lending engine: admin registry full")

	// ErrOverrideDisabled gates the debt override hook outside test harnesses.
	ErrOverrideDisabled = errors.New("lending engine: debt override disabled")
)
