package staking

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
	"stakevault/native/token"
	"stakevault/storage"
)

const t0 int64 = 1_700_000_000

type mockState struct {
	vault    *Vault
	catalog  *ApyCatalog
	accounts map[[20]byte]*Account
	owners   map[[20]byte]crypto.Address
	commits  int
	failNext error
}

func newMockState() *mockState {
	return &mockState{
		accounts: make(map[[20]byte]*Account),
		owners:   make(map[[20]byte]crypto.Address),
	}
}

func (m *mockState) Vault() (*Vault, bool, error) {
	if m.vault == nil {
		return nil, false, nil
	}
	return m.vault.Clone(), true, nil
}

func (m *mockState) Catalog() (*ApyCatalog, error) {
	if m.catalog == nil {
		return nil, nil
	}
	return m.catalog.Clone(), nil
}

func (m *mockState) Account(addr crypto.Address) (*Account, error) {
	acct, ok := m.accounts[addr.Array()]
	if !ok {
		return nil, nil
	}
	return acct.Clone(), nil
}

func (m *mockState) ForEachAccount(fn func(addr crypto.Address, acct *Account) error) error {
	for key, acct := range m.accounts {
		if err := fn(m.owners[key], acct.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockState) Commit(cs *Changeset) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	if cs.Vault != nil {
		m.vault = cs.Vault.Clone()
	}
	if cs.Catalog != nil {
		m.catalog = cs.Catalog.Clone()
	}
	for _, entry := range cs.Accounts {
		key := entry.Address.Array()
		m.accounts[key] = entry.Account.Clone()
		m.owners[key] = entry.Address
	}
	m.commits++
	return nil
}

func testAddress(fill byte) crypto.Address {
	var raw [crypto.AddressLength]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.AddressFromArray(raw)
}

type fixture struct {
	t        *testing.T
	engine   *Engine
	state    *mockState
	ledger   *token.Ledger
	recorder *events.Recorder
	now      int64

	vault crypto.Address
	admin crypto.Address
	alice crypto.Address
	bob   crypto.Address
}

// newFixture bootstraps a vault offering 50% for 10 seconds with a 5% exit
// penalty and a 1% withdraw fee. Alice holds a large token balance.
func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		state:    newMockState(),
		ledger:   token.NewLedger(storage.NewMemDB()),
		recorder: &events.Recorder{},
		now:      t0,
		vault:    testAddress(0xAA),
		admin:    testAddress(0xAD),
		alice:    testAddress(0x01),
		bob:      testAddress(0x02),
	}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetToken(f.ledger)
	f.engine.SetEmitter(f.recorder)
	f.engine.SetNowFunc(func() int64 { return f.now })

	cfg := DefaultConfig()
	cfg.VaultAddress = f.vault
	cfg.Admin = f.admin
	cfg.InitialApyPercentage = 50
	cfg.InitialApyDuration = 10
	cfg.ExitPenaltyPercentage = 5
	cfg.WithdrawFeePercentage = 1
	for _, fn := range mutate {
		fn(&cfg)
	}
	created, err := f.engine.Bootstrap(cfg)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !created {
		t.Fatalf("expected a new vault")
	}
	f.fund(f.alice, uint256.MustFromDecimal("1000000000000000"))
	f.recorder.Reset()
	return f
}

func (f *fixture) fund(addr crypto.Address, amount *uint256.Int) {
	f.t.Helper()
	if err := f.ledger.Fund(addr, amount); err != nil {
		f.t.Fatalf("fund: %v", err)
	}
}

func (f *fixture) advance(seconds int64) { f.now += seconds }

func (f *fixture) balance(addr crypto.Address) *uint256.Int {
	f.t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), addr)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) stake(addr crypto.Address, amount uint64, duration uint64) int {
	f.t.Helper()
	idx, err := f.engine.Stake(context.Background(), addr, uint256.NewInt(amount), duration)
	if err != nil {
		f.t.Fatalf("stake: %v", err)
	}
	return idx
}

func (f *fixture) assertInvariants() {
	f.t.Helper()
	if _, err := f.engine.CheckInvariants(); err != nil {
		f.t.Fatalf("invariants: %v", err)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if f.state.vault.StartedAt != uint64(t0) {
		t.Fatalf("expected reward program to start at creation, got %d", f.state.vault.StartedAt)
	}
	f.advance(50)
	cfg := DefaultConfig()
	cfg.VaultAddress = testAddress(0xBB)
	cfg.Admin = f.bob
	cfg.InitialApyPercentage = 1
	cfg.InitialApyDuration = 1
	created, err := f.engine.Bootstrap(cfg)
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if created {
		t.Fatalf("second bootstrap must not create a vault")
	}
	if !f.state.vault.Admin.Equal(f.admin) || f.state.vault.StartedAt != uint64(t0) {
		t.Fatalf("existing vault must be left untouched")
	}
}

func TestBootstrapValidatesConfig(t *testing.T) {
	engine := NewEngine()
	engine.SetState(newMockState())
	cfg := DefaultConfig()
	cfg.VaultAddress = testAddress(0xAA)
	cfg.Admin = testAddress(0xAD)
	cfg.InitialApyPercentage = 10
	cfg.InitialApyDuration = 60
	cfg.ExitPenaltyPercentage = 51
	if _, err := engine.Bootstrap(cfg); !errors.Is(err, ErrPenaltyTooHigh) {
		t.Fatalf("expected ErrPenaltyTooHigh, got %v", err)
	}
	cfg.ExitPenaltyPercentage = 0
	cfg.Admin = crypto.Address{}
	if _, err := engine.Bootstrap(cfg); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestOperationsRequireBootstrap(t *testing.T) {
	engine := NewEngine()
	engine.SetState(newMockState())
	engine.SetToken(token.NewLedger(storage.NewMemDB()))
	_, err := engine.Stake(context.Background(), testAddress(1), uint256.NewInt(1), 10)
	if !errors.Is(err, ErrNotBootstrapped) {
		t.Fatalf("expected ErrNotBootstrapped, got %v", err)
	}
	if err := engine.StartReward(testAddress(1)); !errors.Is(err, ErrNotBootstrapped) {
		t.Fatalf("expected ErrNotBootstrapped, got %v", err)
	}
}

func TestStakeRecordsDeposit(t *testing.T) {
	f := newFixture(t)
	before := f.balance(f.alice)
	idx := f.stake(f.alice, 1_000, 10)
	if idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}
	if idx := f.stake(f.alice, 500, 10); idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}

	total, err := f.engine.AccountTotal(f.alice)
	if err != nil {
		t.Fatalf("account total: %v", err)
	}
	if total.Uint64() != 1_500 {
		t.Fatalf("expected account total 1500, got %s", total)
	}
	if f.state.vault.TotalStaked.Uint64() != 1_500 {
		t.Fatalf("expected vault total 1500, got %s", f.state.vault.TotalStaked)
	}
	if got := new(uint256.Int).Sub(before, f.balance(f.alice)).Uint64(); got != 1_500 {
		t.Fatalf("expected 1500 debited, got %d", got)
	}
	view, err := f.engine.Deposit(f.alice, 1)
	if err != nil {
		t.Fatalf("deposit view: %v", err)
	}
	if view.ApyPercentage != 50 || view.ApyDuration != 10 || view.CreatedAt != uint64(t0) || view.Amount.Uint64() != 500 {
		t.Fatalf("unexpected deposit view %+v", view)
	}
	types := f.recorder.Types()
	if len(types) != 2 || types[0] != events.TypeStakingDeposit {
		t.Fatalf("unexpected events %v", types)
	}
	if attr := f.recorder.Events()[1].Event().Attr("index"); attr != "1" {
		t.Fatalf("expected index attribute 1, got %q", attr)
	}
	f.assertInvariants()
}

func TestStakeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.Stake(ctx, f.alice, uint256.NewInt(0), 10); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.engine.Stake(ctx, f.alice, uint256.NewInt(100), 11); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := f.engine.Stake(ctx, f.bob, uint256.NewInt(100), 10); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if f.state.vault.TotalStaked.Sign() != 0 {
		t.Fatalf("failed stakes must not change totals")
	}
}

func TestStakeSnapshotsRate(t *testing.T) {
	f := newFixture(t)
	f.stake(f.alice, 1_000, 10)
	if err := f.engine.AddOrUpdateApy(f.admin, 80, 10); err != nil {
		t.Fatalf("update apy: %v", err)
	}
	if err := f.engine.DeleteApy(f.admin, 10); err != nil {
		t.Fatalf("delete apy: %v", err)
	}
	view, err := f.engine.Deposit(f.alice, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if view.ApyPercentage != 50 {
		t.Fatalf("deposit rate must not follow catalog changes, got %d", view.ApyPercentage)
	}
}

func TestStakeAcceptsFeeOnTransferShortfall(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.SetTransferFeeBps(100); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	f.stake(f.alice, 1_000, 10)
	view, err := f.engine.Deposit(f.alice, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if view.Amount.Uint64() != 990 {
		t.Fatalf("expected received amount 990 recorded, got %s", view.Amount)
	}
	if f.state.vault.TotalStaked.Uint64() != 990 {
		t.Fatalf("expected vault total 990, got %s", f.state.vault.TotalStaked)
	}
	f.assertInvariants()
}

func TestStakeRejectsInflatedReceipt(t *testing.T) {
	f := newFixture(t)
	f.engine.SetToken(token.FuncLedger{
		TransferFromFunc: func(_ context.Context, _, _ crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
			return new(uint256.Int).AddUint64(amount, 1), nil
		},
	})
	_, err := f.engine.Stake(context.Background(), f.alice, uint256.NewInt(100), 10)
	if !errors.Is(err, ErrReceivedExceedsRequested) {
		t.Fatalf("expected ErrReceivedExceedsRequested, got %v", err)
	}
}

func TestStakeRefundsWhenCommitFails(t *testing.T) {
	f := newFixture(t)
	before := f.balance(f.alice)
	f.state.failNext = errors.New("disk full")
	if _, err := f.engine.Stake(context.Background(), f.alice, uint256.NewInt(100), 10); err == nil {
		t.Fatalf("expected commit failure")
	}
	if !f.balance(f.alice).Eq(before) {
		t.Fatalf("tokens must be refunded when the deposit cannot be recorded")
	}
}

func TestOperatorPauseBlocksValueMovement(t *testing.T) {
	f := newFixture(t)
	f.stake(f.alice, 1_000, 10)
	f.engine.SetPauses(nativecommon.StaticPauses{ModuleName: true})
	if _, err := f.engine.Stake(context.Background(), f.alice, uint256.NewInt(1), 10); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := f.engine.UnstakeByIndex(context.Background(), f.alice, 0); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestAdminCallsDuringStakeAreRejected(t *testing.T) {
	f := newFixture(t)
	var nested []error
	f.ledger.SetHook(func(ctx context.Context, from, _ crypto.Address, _ *uint256.Int) error {
		if !from.Equal(f.alice) {
			return nil
		}
		nested = append(nested,
			f.engine.StopReward(f.admin),
			f.engine.StartReward(f.admin),
			f.engine.UpdateExitPenalty(f.admin, 40),
			f.engine.UpdateWithdrawFee(f.admin, 3),
			f.engine.AddOrUpdateApy(f.admin, 20, 60),
			f.engine.DeleteApy(f.admin, 10),
		)
		return nil
	})
	if _, err := f.engine.Stake(context.Background(), f.alice, uint256.NewInt(1_000), 10); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if len(nested) != 6 {
		t.Fatalf("expected six nested admin calls, got %d", len(nested))
	}
	for i, err := range nested {
		if !errors.Is(err, nativecommon.ErrReentrantCall) {
			t.Fatalf("nested admin call %d: expected ErrReentrantCall, got %v", i, err)
		}
	}
	vault := f.state.vault
	if vault.StartedAt != uint64(t0) || vault.Paused || vault.ExitPenaltyPercentage != 5 || vault.WithdrawFeePercentage != 1 {
		t.Fatalf("vault changed by a rejected admin call: %+v", vault)
	}
	if count, _ := f.engine.ApyCount(); count != 1 {
		t.Fatalf("catalog changed by a rejected admin call: %d options", count)
	}

	f.ledger.SetHook(nil)
	if err := f.engine.UpdateExitPenalty(f.admin, 40); err != nil {
		t.Fatalf("guard must be released after stake: %v", err)
	}
	f.assertInvariants()
}

func TestReentrantUnstakeIsRejected(t *testing.T) {
	f := newFixture(t)
	f.stake(f.alice, 1_000, 10)
	f.advance(3)

	var inner error
	f.ledger.SetHook(func(ctx context.Context, from, _ crypto.Address, _ *uint256.Int) error {
		if !from.Equal(f.vault) {
			return nil
		}
		_, inner = f.engine.UnstakeByIndex(ctx, f.alice, 0)
		return inner
	})
	_, err := f.engine.UnstakeByIndex(context.Background(), f.alice, 0)
	if !errors.Is(inner, nativecommon.ErrReentrantCall) {
		t.Fatalf("expected nested call to be rejected, got %v", inner)
	}
	if !errors.Is(err, nativecommon.ErrReentrantCall) {
		t.Fatalf("expected outer call to fail with the reentrancy error, got %v", err)
	}
	count, _ := f.engine.DepositCount(f.alice)
	if count != 1 || f.state.vault.TotalStaked.Uint64() != 1_000 {
		t.Fatalf("failed unstake must leave the ledger untouched (count=%d total=%s)", count, f.state.vault.TotalStaked)
	}

	f.ledger.SetHook(nil)
	if _, err := f.engine.UnstakeByIndex(context.Background(), f.alice, 0); err != nil {
		t.Fatalf("guard must be released after failure: %v", err)
	}
	f.assertInvariants()
}
