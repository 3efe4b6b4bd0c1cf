package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// InvariantReport summarises a ledger audit.
type InvariantReport struct {
	Accounts      int
	Deposits      int
	LedgerTotal   *uint256.Int
	VaultTotal    *uint256.Int
	ResetObserved bool
}

// CheckInvariants recomputes every account total from its deposits, sums the
// accounts against the vault total and validates the catalog. The vault sum
// is not compared once the vault has been reset.
func (e *Engine) CheckInvariants() (*InvariantReport, error) {
	vault, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	catalog, err := e.loadCatalog()
	if err != nil {
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if vault.ExitPenaltyPercentage > MaxExitPenaltyPercentage {
		return nil, fmt.Errorf("%w: exit penalty %d", ErrInvariantViolated, vault.ExitPenaltyPercentage)
	}
	for _, opt := range catalog.Options() {
		if opt.Percentage > MaxApyPercentage {
			return nil, fmt.Errorf("%w: duration %d rate %d", ErrInvariantViolated, opt.Duration, opt.Percentage)
		}
	}

	report := &InvariantReport{
		LedgerTotal:   new(uint256.Int),
		VaultTotal:    cloneAmount(vault.TotalStaked),
		ResetObserved: vault.ResetAt != 0,
	}
	err = e.state.ForEachAccount(func(addr crypto.Address, acct *Account) error {
		sum := new(uint256.Int)
		for _, d := range acct.Deposits {
			var err error
			if sum, err = addAmounts(sum, cloneAmount(d.Amount)); err != nil {
				return err
			}
		}
		if !sum.Eq(cloneAmount(acct.TotalStaked)) {
			return fmt.Errorf("%w: account %s records %s but deposits sum to %s", ErrInvariantViolated, addr, cloneAmount(acct.TotalStaked).Dec(), sum.Dec())
		}
		var err error
		if report.LedgerTotal, err = addAmounts(report.LedgerTotal, sum); err != nil {
			return err
		}
		report.Accounts++
		report.Deposits += len(acct.Deposits)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !report.ResetObserved && !report.LedgerTotal.Eq(report.VaultTotal) {
		return report, fmt.Errorf("%w: vault total %s, ledger total %s", ErrInvariantViolated, report.VaultTotal.Dec(), report.LedgerTotal.Dec())
	}
	return report, nil
}
