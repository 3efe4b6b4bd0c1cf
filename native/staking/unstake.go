package staking

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
)

// settle computes the payout for one deposit at now. Early exits pay
// principal less the exit penalty and forfeit the reward. Matured exits pay
// principal less the withdraw fee plus the reward.
func settle(d Deposit, accountTotal *uint256.Int, vault *Vault, now uint64) (Settlement, error) {
	principal := cloneAmount(d.Amount)
	out := Settlement{Principal: principal}
	if elapsedSince(d, vault.StartedAt, now) < d.ApyDuration {
		penalty, err := percentOf(principal, vault.ExitPenaltyPercentage)
		if err != nil {
			return Settlement{}, err
		}
		out.Kind = ExitEarly
		out.Deduction = penalty
		out.Reward = new(uint256.Int)
		out.Payout = subFloor(principal, penalty)
		return out, nil
	}
	fee, err := percentOf(principal, vault.WithdrawFeePercentage)
	if err != nil {
		return Settlement{}, err
	}
	if fee.Gt(principal) {
		return Settlement{}, fmt.Errorf("%w: fee %d%%", ErrFeeExceedsPrincipal, vault.WithdrawFeePercentage)
	}
	reward, err := CalculateReward(d, accountTotal, vault.StartedAt, now)
	if err != nil {
		return Settlement{}, err
	}
	payout, err := addAmounts(new(uint256.Int).Sub(principal, fee), reward)
	if err != nil {
		return Settlement{}, err
	}
	out.Kind = ExitMatured
	out.Deduction = fee
	out.Reward = reward
	out.Payout = payout
	return out, nil
}

// UnstakeByIndex withdraws a single deposit of account.
func (e *Engine) UnstakeByIndex(ctx context.Context, account crypto.Address, index int) (*UnstakeResult, error) {
	return e.unstake(ctx, account, func(v *Vault) error { return nil }, []int{index})
}

// UnstakeAllDeposits withdraws every deposit of account with one solvency
// check and one transfer.
func (e *Engine) UnstakeAllDeposits(ctx context.Context, account crypto.Address) (*UnstakeResult, error) {
	return e.unstake(ctx, account, func(v *Vault) error { return nil }, nil)
}

// AdminUnstakeByIndex withdraws one deposit on behalf of account. The payout
// goes to account.
func (e *Engine) AdminUnstakeByIndex(ctx context.Context, caller, account crypto.Address, index int) (*UnstakeResult, error) {
	return e.unstake(ctx, account, func(v *Vault) error { return requireAdmin(v, caller) }, []int{index})
}

// AdminUnstakeAllDeposits withdraws every deposit on behalf of account.
func (e *Engine) AdminUnstakeAllDeposits(ctx context.Context, caller, account crypto.Address) (*UnstakeResult, error) {
	return e.unstake(ctx, account, func(v *Vault) error { return requireAdmin(v, caller) }, nil)
}

// unstake settles the deposits at indexes, or all of them when indexes is
// nil, and pays the account.
func (e *Engine) unstake(ctx context.Context, account crypto.Address, authorize func(*Vault) error, indexes []int) (*UnstakeResult, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if err := authorize(vault); err != nil {
		return nil, err
	}
	if vault.Paused {
		return nil, ErrPaused
	}
	if vault.StartedAt == 0 {
		return nil, ErrRewardNotStarted
	}
	if account.IsZero() {
		return nil, fmt.Errorf("%w: empty account", ErrInvalidAddress)
	}
	acct, err := e.loadAccount(account)
	if err != nil {
		return nil, err
	}
	all := indexes == nil
	if all {
		if len(acct.Deposits) == 0 {
			return nil, ErrNoDeposits
		}
		indexes = make([]int, len(acct.Deposits))
		for i := range indexes {
			indexes[i] = i
		}
	} else {
		for _, idx := range indexes {
			if idx < 0 || idx >= len(acct.Deposits) {
				return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, idx, len(acct.Deposits))
			}
		}
	}

	now := e.now()
	result := &UnstakeResult{
		Account: account,
		Payout:  new(uint256.Int),
		Reward:  new(uint256.Int),
	}
	principal := new(uint256.Int)
	for _, idx := range indexes {
		s, err := settle(acct.Deposits[idx], acct.TotalStaked, vault, now)
		if err != nil {
			return nil, err
		}
		s.Index = idx
		if result.Payout, err = addAmounts(result.Payout, s.Payout); err != nil {
			return nil, err
		}
		if result.Reward, err = addAmounts(result.Reward, s.Reward); err != nil {
			return nil, err
		}
		if principal, err = addAmounts(principal, s.Principal); err != nil {
			return nil, err
		}
		result.Settlements = append(result.Settlements, s)
	}

	balance, err := e.treasuryBalance(ctx, vault)
	if err != nil {
		return nil, err
	}
	if err := EnsureSolvent(result.Payout, balance); err != nil {
		return nil, err
	}

	nextAcct := acct.Clone()
	if all {
		nextAcct.clearAll()
	} else {
		// Indexes are removed highest first so earlier positions stay valid.
		for i := len(indexes) - 1; i >= 0; i-- {
			if _, err := nextAcct.removeAt(indexes[i]); err != nil {
				return nil, err
			}
		}
	}
	nextVault := vault.Clone()
	nextVault.TotalStaked = subFloor(vault.TotalStaked, principal)

	cs := &Changeset{Vault: nextVault, Accounts: []AccountEntry{{Address: account, Account: nextAcct}}}
	snapshot := &Changeset{Vault: vault, Accounts: []AccountEntry{{Address: account, Account: acct}}}
	if err := e.payout(ctx, cs, snapshot, vault.Address, account, result.Payout); err != nil {
		return nil, err
	}

	for _, s := range result.Settlements {
		if s.Payout.IsZero() {
			continue
		}
		switch s.Kind {
		case ExitEarly:
			e.emit(events.StakingEmergencyWithdraw{Account: account, Amount: s.Payout})
		case ExitMatured:
			e.emit(events.StakingWithdraw{Account: account, Amount: s.Payout})
		}
	}
	e.emit(events.StakingReward{Account: account, Amount: result.Reward})
	return result, nil
}
