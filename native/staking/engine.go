package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
)

// TokenLedger is the fungible token the vault holds. Transfers are atomic:
// they either move the full amount or fail.
type TokenLedger interface {
	// TransferFrom pulls amount from from into to and returns what to
	// actually received, which may be less for fee-on-transfer tokens.
	TransferFrom(ctx context.Context, from, to crypto.Address, amount *uint256.Int) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to crypto.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, addr crypto.Address) (*uint256.Int, error)
}

type engineState interface {
	// Vault returns the persisted vault and whether one exists.
	Vault() (*Vault, bool, error)
	Catalog() (*ApyCatalog, error)
	// Account returns the account for addr, or nil when none was stored.
	Account(addr crypto.Address) (*Account, error)
	ForEachAccount(fn func(addr crypto.Address, acct *Account) error) error
	// Commit applies the changeset atomically.
	Commit(cs *Changeset) error
}

// Engine runs the staking vault state machine. It is single-writer: callers
// serialise access, and value-moving operations reject reentry.
type Engine struct {
	state   engineState
	token   TokenLedger
	pauses  nativecommon.PauseView
	emitter events.Emitter
	nowFn   func() int64
	guard   nativecommon.ReentrancyGuard
}

// NewEngine returns an engine with a wall clock and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the token ledger holding the treasury.
func (e *Engine) SetToken(token TokenLedger) { e.token = token }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Bootstrap persists a new vault and its full catalog from cfg in one commit
// and reports whether it did. An existing vault is left as is.
func (e *Engine) Bootstrap(cfg Config) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		return false, err
	}
	defer release()

	_, ok, err := e.state.Vault()
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	catalog, err := cfg.catalog()
	if err != nil {
		return false, err
	}
	vault := &Vault{
		Address:               cfg.VaultAddress,
		Admin:                 cfg.Admin,
		TotalStaked:           new(uint256.Int),
		ExitPenaltyPercentage: cfg.ExitPenaltyPercentage,
		WithdrawFeePercentage: cfg.WithdrawFeePercentage,
	}
	if cfg.StartRewardOnCreate {
		vault.StartedAt = e.now()
	}
	if err := e.state.Commit(&Changeset{Vault: vault, Catalog: catalog}); err != nil {
		return false, fmt.Errorf("staking engine: bootstrap: %w", err)
	}
	if vault.StartedAt != 0 {
		e.emit(events.StakingLifecycle{Kind: events.TypeStakingRewardStarted, Admin: cfg.Admin, Timestamp: vault.StartedAt})
	}
	return true, nil
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	return nil
}

func (e *Engine) loadVault() (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vault, ok, err := e.state.Vault()
	if err != nil {
		return nil, err
	}
	if !ok || vault == nil {
		return nil, ErrNotBootstrapped
	}
	if vault.TotalStaked == nil {
		vault.TotalStaked = new(uint256.Int)
	}
	return vault, nil
}

func (e *Engine) loadCatalog() (*ApyCatalog, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	catalog, err := e.state.Catalog()
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		return &ApyCatalog{rates: make(map[uint64]uint64)}, nil
	}
	return catalog, nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*Account, error) {
	acct, err := e.state.Account(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return NewAccount(), nil
	}
	if acct.TotalStaked == nil {
		acct.TotalStaked = new(uint256.Int)
	}
	return acct, nil
}

func requireAdmin(vault *Vault, caller crypto.Address) error {
	if vault == nil || caller.IsZero() || !caller.Equal(vault.Admin) {
		return ErrUnauthorized
	}
	return nil
}

// payout commits cs, then transfers amount out of the treasury. A failed
// transfer re-commits the snapshot so the call leaves no trace.
func (e *Engine) payout(ctx context.Context, cs, snapshot *Changeset, from, to crypto.Address, amount *uint256.Int) error {
	if err := e.state.Commit(cs); err != nil {
		return fmt.Errorf("staking engine: commit: %w", err)
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := e.token.Transfer(ctx, from, to, amount); err != nil {
		if rollbackErr := e.state.Commit(snapshot); rollbackErr != nil {
			return errors.Join(fmt.Errorf("staking engine: transfer out: %w", err), fmt.Errorf("staking engine: rollback: %w", rollbackErr))
		}
		return fmt.Errorf("staking engine: transfer out: %w", err)
	}
	return nil
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}
