package staking

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
)

// record appends a deposit and adds its amount to the account total. It
// returns the index of the new deposit.
func (a *Account) record(amount *uint256.Int, apy ApyOption, now uint64) (int, error) {
	total, err := addAmounts(a.TotalStaked, amount)
	if err != nil {
		return 0, err
	}
	a.Deposits = append(a.Deposits, Deposit{
		ApyPercentage: apy.Percentage,
		ApyDuration:   apy.Duration,
		Amount:        cloneAmount(amount),
		CreatedAt:     now,
	})
	a.TotalStaked = total
	return len(a.Deposits) - 1, nil
}

// removeAt deletes the deposit at index, shifting later deposits down so the
// remaining order is preserved. It returns the removed deposit.
func (a *Account) removeAt(index int) (Deposit, error) {
	if index < 0 || index >= len(a.Deposits) {
		return Deposit{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(a.Deposits))
	}
	removed := a.Deposits[index]
	copy(a.Deposits[index:], a.Deposits[index+1:])
	a.Deposits[len(a.Deposits)-1] = Deposit{}
	a.Deposits = a.Deposits[:len(a.Deposits)-1]
	a.TotalStaked = subFloor(a.TotalStaked, removed.Amount)
	return removed, nil
}

// clearAll drops every deposit and zeroes the total.
func (a *Account) clearAll() {
	a.Deposits = nil
	a.TotalStaked = new(uint256.Int)
}

// Stake pulls amount from account into the vault treasury and records a
// deposit at the rate currently offered for duration. Only the amount the
// vault actually received is recorded.
func (e *Engine) Stake(ctx context.Context, account crypto.Address, amount *uint256.Int, duration uint64) (int, error) {
	release, err := e.guard.Enter()
	if err != nil {
		return 0, err
	}
	defer release()

	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return 0, err
	}
	if account.IsZero() {
		return 0, fmt.Errorf("%w: empty account", ErrInvalidAddress)
	}
	vault, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	if vault.Paused {
		return 0, ErrPaused
	}
	if amount == nil || amount.IsZero() {
		return 0, ErrInvalidAmount
	}
	catalog, err := e.loadCatalog()
	if err != nil {
		return 0, err
	}
	apy := catalog.Percentage(duration)
	if apy == 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDuration, duration)
	}
	acct, err := e.loadAccount(account)
	if err != nil {
		return 0, err
	}

	received, err := e.token.TransferFrom(ctx, account, vault.Address, amount)
	if err != nil {
		return 0, fmt.Errorf("staking engine: transfer in: %w", err)
	}
	if received == nil {
		received = new(uint256.Int)
	}
	if received.Gt(amount) {
		return 0, fmt.Errorf("%w: requested %s, received %s", ErrReceivedExceedsRequested, amount.Dec(), received.Dec())
	}

	nextAcct := acct.Clone()
	index, err := nextAcct.record(received, ApyOption{Duration: duration, Percentage: apy}, e.now())
	if err != nil {
		return 0, err
	}
	nextVault := vault.Clone()
	if nextVault.TotalStaked, err = addAmounts(vault.TotalStaked, received); err != nil {
		return 0, err
	}
	cs := &Changeset{Vault: nextVault, Accounts: []AccountEntry{{Address: account, Account: nextAcct}}}
	if err := e.state.Commit(cs); err != nil {
		// The tokens already moved; hand them back before surfacing the error.
		if !received.IsZero() {
			if refundErr := e.token.Transfer(ctx, vault.Address, account, received); refundErr != nil {
				return 0, fmt.Errorf("staking engine: commit deposit: %w (refund failed: %v)", err, refundErr)
			}
		}
		return 0, fmt.Errorf("staking engine: commit deposit: %w", err)
	}
	e.emit(events.StakingDeposit{Account: account, Amount: received, Index: index, Duration: duration, Apy: apy})
	return index, nil
}
