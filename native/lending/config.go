package lending

// Config captures the genesis parameters for a lending pool. Every bps value
// must sit within [0, 10000] and the utilization tiers must be non-decreasing
// starting at zero.
type Config struct {
	LTVBps                  uint64    `toml:"LTVBps"`
	UtilizationTiersBps     [5]uint64 `toml:"UtilizationTiersBps"`
	AprTiersBps             [5]uint64 `toml:"AprTiersBps"`
	LiquidationThresholdBps uint64    `toml:"LiquidationThresholdBps"`
	LiquidationPenaltyBps   uint64    `toml:"LiquidationPenaltyBps"`
	LiquidatorRewardBps     uint64    `toml:"LiquidatorRewardBps"`
	EarlyWithdrawalFeeBps   uint64    `toml:"EarlyWithdrawalFeeBps"`
	OriginationFeeBps       uint64    `toml:"OriginationFeeBps"`
	WithdrawalEpochSeconds  int64     `toml:"WithdrawalEpochSeconds"`
}

// Validate checks every configured parameter against its allowed range.
func (c Config) Validate() error {
	bps := []uint64{
		c.LTVBps,
		c.LiquidationThresholdBps,
		c.LiquidationPenaltyBps,
		c.LiquidatorRewardBps,
		c.EarlyWithdrawalFeeBps,
		c.OriginationFeeBps,
	}
	for _, v := range bps {
		if v > 10_000 {
			return ErrInvalidParameter
		}
	}
	if c.WithdrawalEpochSeconds < 0 {
		return ErrInvalidParameter
	}
	return c.curve().Validate()
}

func (c Config) curve() RateCurve {
	return RateCurve{
		UtilizationBps: c.UtilizationTiersBps,
		AprBps:         c.AprTiersBps,
	}
}
