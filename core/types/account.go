package types

import "math/big"

// Account tracks the fungible balances held by a protocol participant. The
// stable balance is denominated in the pool's stablecoin base units; the claim
// balance counts LP claim tokens minted against pool reserves.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	BalanceStable *big.Int `json:"balanceStable"`
	BalanceClaim  *big.Int `json:"balanceClaim"`
}

// EnsureDefaults populates nil balances so callers can mutate them directly.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.BalanceStable == nil {
		a.BalanceStable = big.NewInt(0)
	}
	if a.BalanceClaim == nil {
		a.BalanceClaim = big.NewInt(0)
	}
}
