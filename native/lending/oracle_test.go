package lending

import (
	"errors"
	"math/big"
	"testing"
)

func TestUpdateOracleValues(t *testing.T) {
	engine, _, _, authority := newInitializedEngine(t)

	if err := engine.UpdateOracleValues(testAddr(0x99), 2_000, -1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.UpdateOracleValues(authority, 0, -1); !errors.Is(err, ErrInvalidOracleData) {
		t.Fatalf("expected ErrInvalidOracleData, got %v", err)
	}
	if err := engine.UpdateOracleValues(authority, 2_000, -1); err != nil {
		t.Fatalf("update oracle: %v", err)
	}

	oracle, err := engine.Oracle()
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	if oracle.Price != 2_000 || oracle.Exponent != -1 {
		t.Fatalf("oracle = %+v", oracle)
	}

	// Delegated admins may publish too.
	admin := testAddr(0xB0)
	if err := engine.AddAdmin(authority, admin); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if err := engine.UpdateOracleValues(admin, 2_100, -1); err != nil {
		t.Fatalf("admin update: %v", err)
	}
}

func TestQuoteCollateralValue(t *testing.T) {
	engine, _, clock, authority := newInitializedEngine(t)
	if err := engine.UpdateOracleValues(authority, 2_000, -1); err != nil {
		t.Fatalf("update oracle: %v", err)
	}

	// 100 g at price 2000e-1 = 200 per gram, scaled by 90% purity.
	value, err := engine.QuoteCollateralValue(100, 9_000)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if value.Cmp(big.NewInt(18_000)) != 0 {
		t.Fatalf("value = %s, want 18000", value)
	}

	if _, err := engine.QuoteCollateralValue(0, 9_000); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for zero weight, got %v", err)
	}
	if _, err := engine.QuoteCollateralValue(100, 10_001); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for purity, got %v", err)
	}

	// The report stays usable up to the staleness bound, not past it.
	clock.advance(oracleMaxAgeSeconds)
	if _, err := engine.QuoteCollateralValue(100, 9_000); err != nil {
		t.Fatalf("quote at bound: %v", err)
	}
	clock.advance(1)
	if _, err := engine.QuoteCollateralValue(100, 9_000); !errors.Is(err, ErrStaleOracle) {
		t.Fatalf("expected ErrStaleOracle, got %v", err)
	}
}

func TestQuoteCollateralValuePositiveExponent(t *testing.T) {
	engine, _, _, authority := newInitializedEngine(t)
	if err := engine.UpdateOracleValues(authority, 3, 2); err != nil {
		t.Fatalf("update oracle: %v", err)
	}
	value, err := engine.QuoteCollateralValue(100, 10_000)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if value.Cmp(big.NewInt(30_000)) != 0 {
		t.Fatalf("value = %s, want 30000", value)
	}
}
