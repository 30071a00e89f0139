package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"

	"meridian/crypto"
	"meridian/native/lending"
)

// GenesisAccount seeds a participant balance when the pool is first created.
type GenesisAccount struct {
	Address       string `toml:"Address"`
	BalanceStable string `toml:"BalanceStable"`
}

// Config is the daemon configuration loaded from TOML.
type Config struct {
	ListenAddress      string           `toml:"ListenAddress"`
	DataDir            string           `toml:"DataDir"`
	Authority          string           `toml:"Authority"`
	RequestsPerSecond  float64          `toml:"RequestsPerSecond"`
	RequestBurst       int              `toml:"RequestBurst"`
	EnableDebtOverride bool             `toml:"EnableDebtOverride"`
	Genesis            []GenesisAccount `toml:"genesis"`
	Lending            lending.Config   `toml:"lending"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 50
	}
	if c.RequestBurst <= 0 {
		c.RequestBurst = 100
	}
}

// Validate checks addresses, balances and the embedded pool parameters.
func (c *Config) Validate() error {
	if _, err := c.AuthorityAddress(); err != nil {
		return err
	}
	for i, account := range c.Genesis {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(account.Address)); err != nil {
			return fmt.Errorf("genesis account %d: invalid address %q: %w", i, account.Address, err)
		}
		if _, err := parseBalance(account.BalanceStable); err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}
	}
	if err := c.Lending.Validate(); err != nil {
		return fmt.Errorf("lending config: %w", err)
	}
	return nil
}

// AuthorityAddress decodes the configured pool authority.
func (c *Config) AuthorityAddress() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.Authority))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid authority address %q: %w", c.Authority, err)
	}
	return addr, nil
}

// GenesisBalances decodes the seeded accounts into addresses and amounts.
func (c *Config) GenesisBalances() (map[string]*big.Int, []crypto.Address, error) {
	balances := make(map[string]*big.Int, len(c.Genesis))
	order := make([]crypto.Address, 0, len(c.Genesis))
	for i, account := range c.Genesis {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(account.Address))
		if err != nil {
			return nil, nil, fmt.Errorf("genesis account %d: %w", i, err)
		}
		balance, err := parseBalance(account.BalanceStable)
		if err != nil {
			return nil, nil, fmt.Errorf("genesis account %d: %w", i, err)
		}
		key := string(addr.Bytes())
		if _, exists := balances[key]; !exists {
			order = append(order, addr)
		}
		balances[key] = balance
	}
	return balances, order, nil
}

func parseBalance(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0), nil
	}
	balance, ok := new(big.Int).SetString(value, 10)
	if !ok || balance.Sign() < 0 {
		return nil, fmt.Errorf("invalid balance %q", value)
	}
	return balance, nil
}
