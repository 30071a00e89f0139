package lending

import (
	"math/big"

	"meridian/crypto"
)

// oracleMaxAgeSeconds bounds how old a price report may be before quotes
// refuse to use it.
const oracleMaxAgeSeconds = 100

// UpdateOracleValues publishes a new collateral price report. Admin only.
// The price carries a decimal exponent, so the quoted unit value is
// price * 10^exponent stablecoin base units per gram.
func (e *Engine) UpdateOracleValues(signer crypto.Address, price uint64, exponent int32) error {
	if err := e.requireAdmin(signer); err != nil {
		return err
	}
	if price == 0 {
		return ErrInvalidOracleData
	}
	oracle := &PriceOracle{
		Price:     price,
		Exponent:  exponent,
		UpdatedAt: e.now(),
	}
	if err := e.state.PutOracle(oracle); err != nil {
		return err
	}
	e.emit(newEvent(EventTypeOracleUpdated, map[string]string{
		"price": uintAttr(price),
	}))
	return nil
}

// Oracle returns the latest price report.
func (e *Engine) Oracle() (*PriceOracle, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	oracle, err := e.state.GetOracle()
	if err != nil {
		return nil, err
	}
	if oracle == nil {
		return nil, ErrPoolNotInitialised
	}
	return oracle, nil
}

// QuoteCollateralValue prices an asset of the given weight and purity against
// the latest oracle report. Reports older than the staleness bound are
// rejected rather than silently used.
func (e *Engine) QuoteCollateralValue(weightGrams, purityBps uint64) (*big.Int, error) {
	if weightGrams == 0 || purityBps == 0 || purityBps > 10_000 {
		return nil, ErrInvalidParameter
	}
	oracle, err := e.Oracle()
	if err != nil {
		return nil, err
	}
	if oracle.Price == 0 {
		return nil, ErrInvalidOracleData
	}
	if e.now()-oracle.UpdatedAt > oracleMaxAgeSeconds {
		return nil, ErrStaleOracle
	}

	value := new(big.Int).SetUint64(weightGrams)
	value.Mul(value, new(big.Int).SetUint64(oracle.Price))
	switch {
	case oracle.Exponent > 0:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(oracle.Exponent)), nil)
		value.Mul(value, scale)
	case oracle.Exponent < 0:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-oracle.Exponent)), nil)
		value.Quo(value, scale)
	}
	return bpsOf(value, purityBps), nil
}
