package staking

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// AccountTotal returns the principal currently staked by addr.
func (e *Engine) AccountTotal(addr crypto.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acct, err := e.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return cloneAmount(acct.TotalStaked), nil
}

// DepositCount returns the number of open deposits held by addr.
func (e *Engine) DepositCount(addr crypto.Address) (int, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	acct, err := e.loadAccount(addr)
	if err != nil {
		return 0, err
	}
	return len(acct.Deposits), nil
}

// Deposits returns a view of every open deposit held by addr.
func (e *Engine) Deposits(addr crypto.Address) ([]DepositView, error) {
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	acct, err := e.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]DepositView, 0, len(acct.Deposits))
	for i, d := range acct.Deposits {
		view, err := depositView(i, d, acct.TotalStaked, vault.StartedAt, now)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// Deposit returns a view of the deposit at index.
func (e *Engine) Deposit(addr crypto.Address, index int) (DepositView, error) {
	vault, err := e.loadVault()
	if err != nil {
		return DepositView{}, err
	}
	acct, err := e.loadAccount(addr)
	if err != nil {
		return DepositView{}, err
	}
	if index < 0 || index >= len(acct.Deposits) {
		return DepositView{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(acct.Deposits))
	}
	return depositView(index, acct.Deposits[index], acct.TotalStaked, vault.StartedAt, e.now())
}

// PendingReward sums the reward every open deposit of addr has accrued.
func (e *Engine) PendingReward(addr crypto.Address) (*uint256.Int, error) {
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	acct, err := e.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	now := e.now()
	total := new(uint256.Int)
	for _, d := range acct.Deposits {
		reward, err := CalculateReward(d, acct.TotalStaked, vault.StartedAt, now)
		if err != nil {
			return nil, err
		}
		if total, err = addAmounts(total, reward); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Status reports the vault parameters together with the treasury position.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	catalog, err := e.loadCatalog()
	if err != nil {
		return nil, err
	}
	balance, err := e.treasuryBalance(ctx, vault)
	if err != nil {
		return nil, err
	}
	return &Status{
		Address:               vault.Address,
		Admin:                 vault.Admin,
		StartedAt:             vault.StartedAt,
		Paused:                vault.Paused,
		TotalStaked:           cloneAmount(vault.TotalStaked),
		ExitPenaltyPercentage: vault.ExitPenaltyPercentage,
		WithdrawFeePercentage: vault.WithdrawFeePercentage,
		TreasuryBalance:       cloneAmount(balance),
		RewardCapacity:        RewardCapacity(balance, vault.TotalStaked),
		ApyOptions:            catalog.Options(),
		ResetAt:               vault.ResetAt,
	}, nil
}

// IsAdmin reports whether addr is the vault admin.
func (e *Engine) IsAdmin(addr crypto.Address) (bool, error) {
	vault, err := e.loadVault()
	if err != nil {
		return false, err
	}
	return requireAdmin(vault, addr) == nil, nil
}

func depositView(index int, d Deposit, accountTotal *uint256.Int, startedAt, now uint64) (DepositView, error) {
	reward, err := CalculateReward(d, accountTotal, startedAt, now)
	if err != nil {
		return DepositView{}, err
	}
	elapsed := elapsedSince(d, startedAt, now)
	return DepositView{
		Index:         index,
		Amount:        cloneAmount(d.Amount),
		ApyPercentage: d.ApyPercentage,
		ApyDuration:   d.ApyDuration,
		CreatedAt:     d.CreatedAt,
		Elapsed:       elapsed,
		Reward:        reward,
		Matured:       startedAt != 0 && elapsed >= d.ApyDuration,
	}, nil
}
