package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"meridian/crypto"
)

func testAddr(last byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = last
	return crypto.NewAddress(crypto.MRDPrefix, raw)
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poold.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func sampleConfig(authority, genesis string) string {
	return fmt.Sprintf(`
ListenAddress = ":9090"
DataDir = "/tmp/meridian-test"
Authority = %q
RequestsPerSecond = 25.0
RequestBurst = 50

[[genesis]]
Address = %q
BalanceStable = "1000000"

[lending]
LTVBps = 7500
UtilizationTiersBps = [0, 2500, 5000, 7500, 9000]
AprTiersBps = [500, 800, 1200, 1800, 2000]
LiquidationThresholdBps = 10000
LiquidationPenaltyBps = 1000
LiquidatorRewardBps = 2000
EarlyWithdrawalFeeBps = 500
OriginationFeeBps = 100
WithdrawalEpochSeconds = 86400
`, authority, genesis)
}

func TestLoad(t *testing.T) {
	authority := testAddr(0xA0)
	lender := testAddr(1)
	cfg, err := Load(writeConfig(t, sampleConfig(authority.String(), lender.String())))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("listen address = %q", cfg.ListenAddress)
	}
	if cfg.Lending.LTVBps != 7_500 {
		t.Fatalf("ltv = %d", cfg.Lending.LTVBps)
	}
	if cfg.Lending.UtilizationTiersBps != [5]uint64{0, 2_500, 5_000, 7_500, 9_000} {
		t.Fatalf("tiers = %v", cfg.Lending.UtilizationTiersBps)
	}

	decoded, err := cfg.AuthorityAddress()
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	if !decoded.Equal(authority) {
		t.Fatalf("authority = %s, want %s", decoded, authority)
	}

	balances, order, err := cfg.GenesisBalances()
	if err != nil {
		t.Fatalf("genesis balances: %v", err)
	}
	if len(order) != 1 || !order[0].Equal(lender) {
		t.Fatalf("genesis accounts = %v", order)
	}
	if balances[string(lender.Bytes())].String() != "1000000" {
		t.Fatalf("genesis balance = %s", balances[string(lender.Bytes())])
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	minimal := fmt.Sprintf(`
Authority = %q

[lending]
LTVBps = 7500
UtilizationTiersBps = [0, 2500, 5000, 7500, 9000]
AprTiersBps = [500, 800, 1200, 1800, 2000]
LiquidationThresholdBps = 10000
`, testAddr(0xA0).String())
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8545" {
		t.Fatalf("listen address = %q", cfg.ListenAddress)
	}
	if cfg.RequestsPerSecond != 50 || cfg.RequestBurst != 100 {
		t.Fatalf("rate defaults = %v / %v", cfg.RequestsPerSecond, cfg.RequestBurst)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	bad := `
Authority = "not-an-address"

[lending]
LTVBps = 7500
UtilizationTiersBps = [0, 2500, 5000, 7500, 9000]
AprTiersBps = [500, 800, 1200, 1800, 2000]
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatalf("expected error for bad authority")
	}

	badLTV := fmt.Sprintf(`
Authority = %q

[lending]
LTVBps = 10001
UtilizationTiersBps = [0, 2500, 5000, 7500, 9000]
AprTiersBps = [500, 800, 1200, 1800, 2000]
`, testAddr(0xA0).String())
	if _, err := Load(writeConfig(t, badLTV)); err == nil {
		t.Fatalf("expected error for out-of-range ltv")
	}
}
