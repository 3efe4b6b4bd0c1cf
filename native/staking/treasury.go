package staking

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
)

// EnsureSolvent fails when the treasury cannot cover requested. It never
// clamps the request.
func EnsureSolvent(requested, balance *uint256.Int) error {
	if requested == nil || requested.IsZero() {
		return nil
	}
	if balance == nil || requested.Gt(balance) {
		have := "0"
		if balance != nil {
			have = balance.Dec()
		}
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientTreasury, requested.Dec(), have)
	}
	return nil
}

// RewardCapacity is the part of the treasury not backing principal, floored
// at zero.
func RewardCapacity(balance, totalStaked *uint256.Int) *uint256.Int {
	if balance == nil {
		return new(uint256.Int)
	}
	if totalStaked == nil {
		return new(uint256.Int).Set(balance)
	}
	return subFloor(balance, totalStaked)
}

func (e *Engine) treasuryBalance(ctx context.Context, vault *Vault) (*uint256.Int, error) {
	balance, err := e.token.BalanceOf(ctx, vault.Address)
	if err != nil {
		return nil, fmt.Errorf("staking engine: treasury balance: %w", err)
	}
	if balance == nil {
		return new(uint256.Int), nil
	}
	return balance, nil
}

// RewardCapacity reports how much of the treasury may be withdrawn without
// touching staked principal.
func (e *Engine) RewardCapacity(ctx context.Context) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	balance, err := e.treasuryBalance(ctx, vault)
	if err != nil {
		return nil, err
	}
	return RewardCapacity(balance, vault.TotalStaked), nil
}
