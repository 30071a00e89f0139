package lending

// RateCurve maps pool utilization to a borrow APR through five breakpoints
// with linear interpolation between them. Both axes are expressed in basis
// points. The first breakpoint anchors the curve at zero utilization; at or
// beyond the last breakpoint the curve is flat at the final APR.
type RateCurve struct {
	UtilizationBps [5]uint64
	AprBps         [5]uint64
}

// Validate rejects curves with out-of-range or non-monotonic tiers.
func (c RateCurve) Validate() error {
	if c.UtilizationBps[0] != 0 {
		return ErrInvalidParameter
	}
	for i := 0; i < len(c.UtilizationBps); i++ {
		if c.UtilizationBps[i] > 10_000 || c.AprBps[i] > 10_000 {
			return ErrInvalidParameter
		}
		if i > 0 {
			if c.UtilizationBps[i] < c.UtilizationBps[i-1] {
				return ErrInvalidParameter
			}
			if c.AprBps[i] < c.AprBps[i-1] {
				return ErrInvalidParameter
			}
		}
	}
	return nil
}

// RateBps returns the borrow APR for the given utilization. The curve is
// continuous at every breakpoint and non-decreasing for monotonic tiers.
func (c RateCurve) RateBps(utilBps uint64) uint64 {
	if utilBps <= c.UtilizationBps[0] {
		return c.AprBps[0]
	}
	last := len(c.UtilizationBps) - 1
	if utilBps >= c.UtilizationBps[last] {
		return c.AprBps[last]
	}
	for i := last - 1; i >= 0; i-- {
		lo := c.UtilizationBps[i]
		if utilBps < lo {
			continue
		}
		hi := c.UtilizationBps[i+1]
		aprLo := c.AprBps[i]
		aprHi := c.AprBps[i+1]
		if hi == lo {
			return aprHi
		}
		// Linear interpolation inside the bracket.
		return aprLo + (aprHi-aprLo)*(utilBps-lo)/(hi-lo)
	}
	return c.AprBps[0]
}
