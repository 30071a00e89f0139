package lending

import "math/big"

var basisPoints = big.NewInt(10_000)

const secondsPerYear = 31_536_000

// bpsOf computes amount * bps / 10_000 with floor division. Inputs are never
// negative in practice; a negative result collapses to zero.
func bpsOf(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	out.Quo(out, basisPoints)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// mulDiv computes a * b / denom, returning zero when the denominator is zero.
func mulDiv(a, b, denom *big.Int) *big.Int {
	if a == nil || b == nil || denom == nil || denom.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, denom)
}

// utilizationBps returns outstanding debt over reserve scaled to basis
// points, zero when the reserve is empty. The quotient is capped so a pool
// whose debt outgrew its reserve still maps onto the top curve tier.
func utilizationBps(pool *LendingPool) uint64 {
	if pool == nil || pool.TotalStableReserve == nil || pool.TotalStableReserve.Sign() == 0 {
		return 0
	}
	if pool.TotalDebtOutstanding == nil || pool.TotalDebtOutstanding.Sign() == 0 {
		return 0
	}
	util := new(big.Int).Mul(pool.TotalDebtOutstanding, basisPoints)
	util.Quo(util, pool.TotalStableReserve)
	if !util.IsUint64() {
		return 10_000
	}
	return util.Uint64()
}

// accruedInterest computes simple interest on debt at aprBps over dt seconds:
// debt * apr * dt / (10_000 * secondsPerYear).
func accruedInterest(debt *big.Int, aprBps uint64, dt int64) *big.Int {
	if debt == nil || debt.Sign() <= 0 || aprBps == 0 || dt <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(debt, new(big.Int).SetUint64(aprBps))
	num.Mul(num, big.NewInt(dt))
	den := new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
	return num.Quo(num, den)
}

// availableLiquidity returns the reserve net of outstanding debt obligations,
// floored at zero. Payouts beyond this bound would strand lender claims.
func availableLiquidity(pool *LendingPool) *big.Int {
	if pool == nil || pool.TotalStableReserve == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(pool.TotalStableReserve)
	if pool.TotalDebtOutstanding != nil {
		out.Sub(out, pool.TotalDebtOutstanding)
	}
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
