package stakingd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakevault/config"
	"stakevault/core/events"
	"stakevault/crypto"
	"stakevault/native/params"
	"stakevault/native/staking"
	"stakevault/native/token"
	"stakevault/observability"
	telemetry "stakevault/observability/otel"
	statestaking "stakevault/state/staking"
	"stakevault/storage"
)

// Vault is the execution environment for the staking engine. It serialises
// every call so commits happen in a total order, and instruments each
// operation with a span, metrics and a log line.
type Vault struct {
	mu      sync.RWMutex
	engine  *staking.Engine
	state   *statestaking.Store
	ledger  *token.Ledger
	pauses  *params.Store
	metrics *observability.StakingMetrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// VaultOption customises the vault instance.
type VaultOption func(*vaultOptions)

type vaultOptions struct {
	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.StakingMetrics
	clock   func() int64
}

// WithEmitter forwards engine events to emitter.
func WithEmitter(emitter events.Emitter) VaultOption {
	return func(o *vaultOptions) { o.emitter = emitter }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) VaultOption {
	return func(o *vaultOptions) { o.logger = logger }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.StakingMetrics) VaultOption {
	return func(o *vaultOptions) { o.metrics = m }
}

// WithClock sets the unix-seconds time source used by the engine.
func WithClock(clock func() int64) VaultOption {
	return func(o *vaultOptions) { o.clock = clock }
}

// OpenVault wires the engine to db and bootstraps it from genesis. Genesis
// balances and extra catalog entries are applied only when the vault is
// created by this call.
func OpenVault(db storage.Database, genesis *config.Vault, opts ...VaultOption) (*Vault, error) {
	if db == nil {
		return nil, fmt.Errorf("stakingd: storage required")
	}
	if genesis == nil {
		return nil, fmt.Errorf("stakingd: vault genesis required")
	}
	options := vaultOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.metrics == nil {
		options.metrics = observability.Staking()
	}

	v := &Vault{
		engine:  staking.NewEngine(),
		state:   statestaking.NewStore(db),
		ledger:  token.NewLedger(db),
		pauses:  params.NewStore(db),
		metrics: options.metrics,
		logger:  options.logger.With("component", "vault"),
		tracer:  telemetry.Tracer("stakevault/stakingd"),
	}
	if err := v.ledger.SetTransferFeeBps(genesis.TransferFeeBps); err != nil {
		return nil, err
	}
	v.engine.SetState(v.state)
	v.engine.SetToken(v.ledger)
	v.engine.SetPauses(v.pauses)
	v.engine.SetEmitter(options.emitter)
	if options.clock != nil {
		v.engine.SetNowFunc(options.clock)
	}

	cfg, err := genesis.StakingConfig()
	if err != nil {
		return nil, err
	}
	created, err := v.engine.Bootstrap(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap vault: %w", err)
	}
	seeded, err := v.seedBalances(genesis, cfg.VaultAddress)
	if err != nil {
		return nil, err
	}
	if created || seeded {
		v.logger.Info("vault bootstrapped",
			slog.String("vault", cfg.VaultAddress.String()),
			slog.String("admin", cfg.Admin.String()),
			slog.Bool("created", created),
			slog.Bool("seeded", seeded),
			slog.Bool("started", cfg.StartRewardOnCreate))
	}
	v.metrics.SetPause(v.pauses.IsPaused(staking.ModuleName))
	v.recordTreasury(context.Background())
	return v, nil
}

// seedBalances credits the genesis token balances once. The marker is keyed
// on the vault address so a restart after a failed seed retries it.
func (v *Vault) seedBalances(genesis *config.Vault, vault crypto.Address) (bool, error) {
	balances, err := genesis.GenesisBalances()
	if err != nil {
		return false, err
	}
	seed := make([]token.Balance, 0, len(balances))
	for _, bal := range balances {
		seed = append(seed, token.Balance{Address: bal.Address, Amount: bal.Amount})
	}
	seeded, err := v.ledger.Seed("genesis/"+vault.String(), seed)
	if err != nil {
		return false, fmt.Errorf("seed genesis balances: %w", err)
	}
	return seeded, nil
}

// exec runs a mutating operation under the write lock.
func (v *Vault) exec(ctx context.Context, op string, account crypto.Address, fn func(ctx context.Context) error) error {
	ctx, span := v.tracer.Start(ctx, "vault."+op, trace.WithAttributes(
		attribute.String("operation", op),
		attribute.String("account", account.String()),
	))
	defer span.End()

	start := time.Now()
	v.mu.Lock()
	err := fn(ctx)
	v.mu.Unlock()
	v.metrics.ObserveOperation(op, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		v.logger.Warn("vault operation failed",
			slog.String("operation", op),
			slog.String("account", account.String()),
			slog.String("outcome", "error"),
			slog.Any("error", err))
		return err
	}
	v.logger.Info("vault operation",
		slog.String("operation", op),
		slog.String("account", account.String()),
		slog.String("outcome", "success"))
	v.recordTreasury(ctx)
	return nil
}

// query runs a read-only operation under the read lock.
func (v *Vault) query(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := v.tracer.Start(ctx, "vault."+op)
	defer span.End()
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (v *Vault) recordTreasury(ctx context.Context) {
	v.mu.RLock()
	status, err := v.engine.Status(ctx)
	v.mu.RUnlock()
	if err != nil {
		return
	}
	v.metrics.RecordTreasury(status.TotalStaked, status.TreasuryBalance, status.RewardCapacity)
}

func (v *Vault) recordSettlements(result *staking.UnstakeResult) {
	if result == nil {
		return
	}
	for _, s := range result.Settlements {
		v.metrics.RecordPayout(s.Kind.String(), s.Payout)
	}
}

// Stake locks amount from account for duration seconds.
func (v *Vault) Stake(ctx context.Context, account crypto.Address, amount *uint256.Int, duration uint64) (int, error) {
	var index int
	err := v.exec(ctx, "stake", account, func(ctx context.Context) error {
		var err error
		index, err = v.engine.Stake(ctx, account, amount, duration)
		return err
	})
	return index, err
}

// Unstake settles a single deposit owned by account.
func (v *Vault) Unstake(ctx context.Context, account crypto.Address, index int) (*staking.UnstakeResult, error) {
	var result *staking.UnstakeResult
	err := v.exec(ctx, "unstake", account, func(ctx context.Context) error {
		var err error
		result, err = v.engine.UnstakeByIndex(ctx, account, index)
		return err
	})
	v.recordSettlements(result)
	return result, err
}

// UnstakeAll settles every deposit owned by account.
func (v *Vault) UnstakeAll(ctx context.Context, account crypto.Address) (*staking.UnstakeResult, error) {
	var result *staking.UnstakeResult
	err := v.exec(ctx, "unstake_all", account, func(ctx context.Context) error {
		var err error
		result, err = v.engine.UnstakeAllDeposits(ctx, account)
		return err
	})
	v.recordSettlements(result)
	return result, err
}

// AdminUnstake settles one deposit of account on the admin's behalf.
func (v *Vault) AdminUnstake(ctx context.Context, caller, account crypto.Address, index int) (*staking.UnstakeResult, error) {
	var result *staking.UnstakeResult
	err := v.exec(ctx, "admin_unstake", account, func(ctx context.Context) error {
		var err error
		result, err = v.engine.AdminUnstakeByIndex(ctx, caller, account, index)
		return err
	})
	v.recordSettlements(result)
	return result, err
}

// AdminUnstakeAll settles every deposit of account on the admin's behalf.
func (v *Vault) AdminUnstakeAll(ctx context.Context, caller, account crypto.Address) (*staking.UnstakeResult, error) {
	var result *staking.UnstakeResult
	err := v.exec(ctx, "admin_unstake_all", account, func(ctx context.Context) error {
		var err error
		result, err = v.engine.AdminUnstakeAllDeposits(ctx, caller, account)
		return err
	})
	v.recordSettlements(result)
	return result, err
}

// StartReward begins the reward program.
func (v *Vault) StartReward(ctx context.Context, caller crypto.Address) error {
	return v.exec(ctx, "start_reward", caller, func(context.Context) error {
		return v.engine.StartReward(caller)
	})
}

// StopReward pauses reward accrual.
func (v *Vault) StopReward(ctx context.Context, caller crypto.Address) error {
	return v.exec(ctx, "stop_reward", caller, func(context.Context) error {
		return v.engine.StopReward(caller)
	})
}

// SetApy adds or updates a catalog entry.
func (v *Vault) SetApy(ctx context.Context, caller crypto.Address, percentage, duration uint64) error {
	return v.exec(ctx, "set_apy", caller, func(context.Context) error {
		return v.engine.AddOrUpdateApy(caller, percentage, duration)
	})
}

// DeleteApy removes a catalog entry.
func (v *Vault) DeleteApy(ctx context.Context, caller crypto.Address, duration uint64) error {
	return v.exec(ctx, "delete_apy", caller, func(context.Context) error {
		return v.engine.DeleteApy(caller, duration)
	})
}

// UpdateExitPenalty sets the early-exit penalty percentage.
func (v *Vault) UpdateExitPenalty(ctx context.Context, caller crypto.Address, percentage uint64) error {
	return v.exec(ctx, "update_exit_penalty", caller, func(context.Context) error {
		return v.engine.UpdateExitPenalty(caller, percentage)
	})
}

// UpdateWithdrawFee sets the matured withdraw fee percentage.
func (v *Vault) UpdateWithdrawFee(ctx context.Context, caller crypto.Address, percentage uint64) error {
	return v.exec(ctx, "update_withdraw_fee", caller, func(context.Context) error {
		return v.engine.UpdateWithdrawFee(caller, percentage)
	})
}

// WithdrawEmergencyReward moves surplus reward funds to the admin.
func (v *Vault) WithdrawEmergencyReward(ctx context.Context, caller crypto.Address, amount *uint256.Int) error {
	return v.exec(ctx, "emergency_withdraw", caller, func(ctx context.Context) error {
		return v.engine.WithdrawEmergencyReward(ctx, caller, amount)
	})
}

// Reset drains the treasury to the admin and zeroes TotalStaked. It does not
// pause the vault.
func (v *Vault) Reset(ctx context.Context, caller crypto.Address) error {
	return v.exec(ctx, "reset", caller, func(ctx context.Context) error {
		return v.engine.Reset(ctx, caller)
	})
}

// SetPaused toggles the operator pause switch that blocks stake and unstake.
func (v *Vault) SetPaused(ctx context.Context, caller crypto.Address, paused bool) error {
	return v.exec(ctx, "set_pause", caller, func(context.Context) error {
		ok, err := v.engine.IsAdmin(caller)
		if err != nil {
			return err
		}
		if !ok {
			return staking.ErrUnauthorized
		}
		if err := v.pauses.SetPaused(staking.ModuleName, paused); err != nil {
			return err
		}
		v.metrics.SetPause(paused)
		return nil
	})
}

// OperatorPaused reports the operator pause switch.
func (v *Vault) OperatorPaused() bool {
	return v.pauses.IsPaused(staking.ModuleName)
}

// IsAdmin reports whether addr is the vault admin.
func (v *Vault) IsAdmin(ctx context.Context, addr crypto.Address) (bool, error) {
	var ok bool
	err := v.query(ctx, "is_admin", func(context.Context) error {
		var err error
		ok, err = v.engine.IsAdmin(addr)
		return err
	})
	return ok, err
}

// Status reports the vault parameters and treasury position.
func (v *Vault) Status(ctx context.Context) (*staking.Status, error) {
	var status *staking.Status
	err := v.query(ctx, "status", func(ctx context.Context) error {
		var err error
		status, err = v.engine.Status(ctx)
		return err
	})
	return status, err
}

// ApyTable lists the catalog in insertion order.
func (v *Vault) ApyTable(ctx context.Context) ([]staking.ApyOption, error) {
	var table []staking.ApyOption
	err := v.query(ctx, "apy_table", func(context.Context) error {
		var err error
		table, err = v.engine.ApyTable()
		return err
	})
	return table, err
}

// ApyDurations lists the offered durations in insertion order.
func (v *Vault) ApyDurations(ctx context.Context) ([]uint64, error) {
	var durations []uint64
	err := v.query(ctx, "apy_durations", func(context.Context) error {
		var err error
		durations, err = v.engine.ApyDurations()
		return err
	})
	return durations, err
}

// ApyCount reports how many durations are offered.
func (v *Vault) ApyCount(ctx context.Context) (int, error) {
	var count int
	err := v.query(ctx, "apy_count", func(context.Context) error {
		var err error
		count, err = v.engine.ApyCount()
		return err
	})
	return count, err
}

// RewardCapacity is the treasury balance not backing principal.
func (v *Vault) RewardCapacity(ctx context.Context) (*uint256.Int, error) {
	var capacity *uint256.Int
	err := v.query(ctx, "reward_capacity", func(ctx context.Context) error {
		var err error
		capacity, err = v.engine.RewardCapacity(ctx)
		return err
	})
	return capacity, err
}

// ApyPercentage returns the rate for duration, zero when not offered.
func (v *Vault) ApyPercentage(ctx context.Context, duration uint64) (uint64, error) {
	var pct uint64
	err := v.query(ctx, "apy_percentage", func(context.Context) error {
		var err error
		pct, err = v.engine.ApyPercentage(duration)
		return err
	})
	return pct, err
}

// AccountView aggregates everything known about a depositor.
type AccountView struct {
	Address       crypto.Address
	Balance       *uint256.Int
	TotalStaked   *uint256.Int
	PendingReward *uint256.Int
	Deposits      []staking.DepositView
}

// Account returns the depositor view for addr.
func (v *Vault) Account(ctx context.Context, addr crypto.Address) (*AccountView, error) {
	view := &AccountView{Address: addr}
	err := v.query(ctx, "account", func(ctx context.Context) error {
		var err error
		if view.Balance, err = v.ledger.BalanceOf(ctx, addr); err != nil {
			return err
		}
		if view.TotalStaked, err = v.engine.AccountTotal(addr); err != nil {
			return err
		}
		if view.PendingReward, err = v.engine.PendingReward(addr); err != nil {
			return err
		}
		view.Deposits, err = v.engine.Deposits(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Deposits lists the deposits of addr.
func (v *Vault) Deposits(ctx context.Context, addr crypto.Address) ([]staking.DepositView, error) {
	var out []staking.DepositView
	err := v.query(ctx, "deposits", func(context.Context) error {
		var err error
		out, err = v.engine.Deposits(addr)
		return err
	})
	return out, err
}

// Deposit returns one deposit of addr.
func (v *Vault) Deposit(ctx context.Context, addr crypto.Address, index int) (staking.DepositView, error) {
	var out staking.DepositView
	err := v.query(ctx, "deposit", func(context.Context) error {
		var err error
		out, err = v.engine.Deposit(addr, index)
		return err
	})
	return out, err
}

// PendingReward sums the accrued reward of every deposit of addr.
func (v *Vault) PendingReward(ctx context.Context, addr crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := v.query(ctx, "pending_reward", func(context.Context) error {
		var err error
		out, err = v.engine.PendingReward(addr)
		return err
	})
	return out, err
}

// CheckInvariants audits the ledger. Only the admin may run it.
func (v *Vault) CheckInvariants(ctx context.Context, caller crypto.Address) (*staking.InvariantReport, error) {
	var report *staking.InvariantReport
	err := v.query(ctx, "check_invariants", func(context.Context) error {
		ok, err := v.engine.IsAdmin(caller)
		if err != nil {
			return err
		}
		if !ok {
			return staking.ErrUnauthorized
		}
		report, err = v.engine.CheckInvariants()
		return err
	})
	if err != nil && errors.Is(err, staking.ErrInvariantViolated) {
		v.logger.Error("vault invariant violated", slog.Any("error", err))
	}
	return report, err
}

// DepositRecord is one row of a deposit snapshot.
type DepositRecord struct {
	Account       crypto.Address
	Index         int
	Amount        *uint256.Int
	ApyPercentage uint64
	ApyDuration   uint64
	CreatedAt     uint64
	Reward        *uint256.Int
	Matured       bool
}

// Snapshot returns every open deposit ordered by account and index.
func (v *Vault) Snapshot(ctx context.Context) ([]DepositRecord, error) {
	var out []DepositRecord
	err := v.query(ctx, "snapshot", func(context.Context) error {
		var owners []crypto.Address
		err := v.state.ForEachAccount(func(addr crypto.Address, acct *staking.Account) error {
			if acct != nil && len(acct.Deposits) > 0 {
				owners = append(owners, addr)
			}
			return nil
		})
		if err != nil {
			return err
		}
		sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })
		for _, owner := range owners {
			views, err := v.engine.Deposits(owner)
			if err != nil {
				return err
			}
			for _, dv := range views {
				out = append(out, DepositRecord{
					Account:       owner,
					Index:         dv.Index,
					Amount:        dv.Amount,
					ApyPercentage: dv.ApyPercentage,
					ApyDuration:   dv.ApyDuration,
					CreatedAt:     dv.CreatedAt,
					Reward:        dv.Reward,
					Matured:       dv.Matured,
				})
			}
		}
		return nil
	})
	return out, err
}
