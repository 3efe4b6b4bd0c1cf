package staking

import (
	"github.com/holiman/uint256"

	"stakevault/crypto"
)

const (
	// ModuleName keys the operator pause switch.
	ModuleName = "staking"

	// MaxApyPercentage bounds a catalog rate. 100 means 100% per year.
	MaxApyPercentage uint64 = 10_000
	// MaxExitPenaltyPercentage bounds the early-exit penalty.
	MaxExitPenaltyPercentage uint64 = 50

	secondsPerYear     = 31_536_000
	percentDenominator = 100
)

// Deposit is one locked principal with the rate and duration snapshotted at
// creation. It is never mutated, only removed.
type Deposit struct {
	ApyPercentage uint64
	ApyDuration   uint64
	Amount        *uint256.Int
	CreatedAt     uint64
}

// Clone returns a deep copy of the deposit.
func (d Deposit) Clone() Deposit {
	out := d
	out.Amount = cloneAmount(d.Amount)
	return out
}

// Account holds a depositor's ordered deposits and their principal total.
type Account struct {
	TotalStaked *uint256.Int
	Deposits    []Deposit
}

// NewAccount returns an empty account.
func NewAccount() *Account {
	return &Account{TotalStaked: new(uint256.Int)}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	out := &Account{TotalStaked: cloneAmount(a.TotalStaked)}
	if len(a.Deposits) > 0 {
		out.Deposits = make([]Deposit, len(a.Deposits))
		for i, d := range a.Deposits {
			out.Deposits[i] = d.Clone()
		}
	}
	return out
}

// Vault is the global program state.
type Vault struct {
	Address               crypto.Address
	Admin                 crypto.Address
	StartedAt             uint64
	TotalStaked           *uint256.Int
	ExitPenaltyPercentage uint64
	WithdrawFeePercentage uint64
	Paused                bool
	// ResetAt records the last Reset. Once set, TotalStaked no longer
	// equals the sum of account principal.
	ResetAt uint64
}

// Clone returns a deep copy of the vault.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	out := *v
	out.TotalStaked = cloneAmount(v.TotalStaked)
	return &out
}

// AccountEntry pairs an account with its owner inside a changeset.
type AccountEntry struct {
	Address crypto.Address
	Account *Account
}

// Changeset is the set of records an operation writes. Persistence applies
// it atomically. Nil fields are left untouched.
type Changeset struct {
	Vault    *Vault
	Catalog  *ApyCatalog
	Accounts []AccountEntry
}

// ExitKind classifies how a deposit left the vault.
type ExitKind uint8

const (
	ExitEarly ExitKind = iota + 1
	ExitMatured
)

func (k ExitKind) String() string {
	switch k {
	case ExitEarly:
		return "early"
	case ExitMatured:
		return "matured"
	default:
		return "unknown"
	}
}

// Settlement is the computed outcome for one deposit being unstaked.
type Settlement struct {
	Index     int
	Kind      ExitKind
	Principal *uint256.Int
	// Deduction is the exit penalty for early exits and the withdraw fee
	// for matured ones.
	Deduction *uint256.Int
	Reward    *uint256.Int
	Payout    *uint256.Int
}

// UnstakeResult summarises an unstake call.
type UnstakeResult struct {
	Account     crypto.Address
	Payout      *uint256.Int
	Reward      *uint256.Int
	Settlements []Settlement
}

// DepositView is the read model for a single deposit.
type DepositView struct {
	Index         int
	Amount        *uint256.Int
	ApyPercentage uint64
	ApyDuration   uint64
	CreatedAt     uint64
	// Elapsed is measured from the accrual baseline and is not capped.
	Elapsed uint64
	Reward  *uint256.Int
	Matured bool
}

// Status is the read model for the vault as a whole.
type Status struct {
	Address               crypto.Address
	Admin                 crypto.Address
	StartedAt             uint64
	Paused                bool
	TotalStaked           *uint256.Int
	ExitPenaltyPercentage uint64
	WithdrawFeePercentage uint64
	TreasuryBalance       *uint256.Int
	RewardCapacity        *uint256.Int
	ApyOptions            []ApyOption
	ResetAt               uint64
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
