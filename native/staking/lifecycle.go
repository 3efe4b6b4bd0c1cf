package staking

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
)

// StartReward activates accrual from now and lifts the pause. Existing
// deposits accrue from the later of their creation and this start.
func (e *Engine) StartReward(caller crypto.Address) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := requireAdmin(vault, caller); err != nil {
		return err
	}
	if vault.StartedAt != 0 {
		return ErrAlreadyStarted
	}
	next := vault.Clone()
	next.StartedAt = e.now()
	next.Paused = false
	if err := e.state.Commit(&Changeset{Vault: next}); err != nil {
		return err
	}
	e.emit(events.StakingLifecycle{Kind: events.TypeStakingRewardStarted, Admin: caller, Timestamp: next.StartedAt})
	return nil
}

// StopReward halts accrual and pauses the vault. Calling it on a stopped
// vault succeeds.
func (e *Engine) StopReward(caller crypto.Address) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := requireAdmin(vault, caller); err != nil {
		return err
	}
	next := vault.Clone()
	next.StartedAt = 0
	next.Paused = true
	if err := e.state.Commit(&Changeset{Vault: next}); err != nil {
		return err
	}
	e.emit(events.StakingLifecycle{Kind: events.TypeStakingRewardStopped, Admin: caller, Timestamp: e.now()})
	return nil
}

// UpdateExitPenalty sets the early-exit penalty percentage.
func (e *Engine) UpdateExitPenalty(caller crypto.Address, percentage uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := requireAdmin(vault, caller); err != nil {
		return err
	}
	if percentage > MaxExitPenaltyPercentage {
		return ErrPenaltyTooHigh
	}
	next := vault.Clone()
	next.ExitPenaltyPercentage = percentage
	if err := e.state.Commit(&Changeset{Vault: next}); err != nil {
		return err
	}
	e.emit(events.StakingLifecycle{Kind: events.TypeStakingExitPenaltyUpdated, Admin: caller, Percentage: percentage})
	return nil
}

// UpdateWithdrawFee sets the matured-exit fee percentage. It is not bounded;
// a fee above 100 makes matured unstakes fail.
func (e *Engine) UpdateWithdrawFee(caller crypto.Address, percentage uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := requireAdmin(vault, caller); err != nil {
		return err
	}
	next := vault.Clone()
	next.WithdrawFeePercentage = percentage
	if err := e.state.Commit(&Changeset{Vault: next}); err != nil {
		return err
	}
	e.emit(events.StakingLifecycle{Kind: events.TypeStakingWithdrawFeeUpdated, Admin: caller, Percentage: percentage})
	return nil
}

// WithdrawEmergencyReward sends amount of the reward capacity to the admin.
// Principal backing deposits cannot be withdrawn this way.
func (e *Engine) WithdrawEmergencyReward(ctx context.Context, caller crypto.Address, amount *uint256.Int) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if err := e.ready(); err != nil {
		return err
	}
	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := requireAdmin(vault, caller); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	balance, err := e.treasuryBalance(ctx, vault)
	if err != nil {
		return err
	}
	capacity := RewardCapacity(balance, vault.TotalStaked)
	if amount.Gt(capacity) {
		return fmt.Errorf("%w: requested %s, capacity %s", ErrExceedsRewardCapacity, amount.Dec(), capacity.Dec())
	}
	if err := e.token.Transfer(ctx, vault.Address, vault.Admin, amount); err != nil {
		return fmt.Errorf("staking engine: transfer out: %w", err)
	}
	e.emit(events.StakingLifecycle{Kind: events.TypeStakingEmergencyReward, Admin: caller, Amount: amount})
	return nil
}

// Reset drains the whole treasury to the admin and zeroes TotalStaked.
// Accounts keep their deposits.
func (e *Engine) Reset(ctx context.Context, caller crypto.Address) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if err := e.ready(); err != nil {
		return err
	}
	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := requireAdmin(vault, caller); err != nil {
		return err
	}
	balance, err := e.treasuryBalance(ctx, vault)
	if err != nil {
		return err
	}
	next := vault.Clone()
	next.TotalStaked = new(uint256.Int)
	next.ResetAt = e.now()
	if err := e.payout(ctx, &Changeset{Vault: next}, &Changeset{Vault: vault}, vault.Address, vault.Admin, balance); err != nil {
		return err
	}
	e.emit(events.StakingLifecycle{Kind: events.TypeStakingReset, Admin: caller, Amount: balance})
	return nil
}
