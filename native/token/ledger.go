package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/storage"
)

// MaxTransferFeeBps caps the simulated transfer fee at 100%.
const MaxTransferFeeBps = 10_000

var (
	balancePrefix = []byte("token/balance/")
	seedPrefix    = []byte("token/seed/")
)

var (
	ErrInvalidAmount       = errors.New("token: invalid amount")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInvalidFee          = errors.New("token: transfer fee exceeds 10000 bps")
	ErrNilStore            = errors.New("token: storage not configured")
)

// Hook observes a transfer before balances move. Returning an error aborts
// the transfer without touching balances.
type Hook func(ctx context.Context, from, to crypto.Address, amount *uint256.Int) error

// Ledger is the vault's local settlement backend. Balances live in the
// supplied storage and every transfer is applied as one batch. A non-zero
// transfer fee is burned, which lets the vault be exercised against
// fee-on-transfer tokens.
type Ledger struct {
	mu     sync.Mutex
	store  storage.Database
	feeBps uint64
	hook   Hook
}

// NewLedger constructs a ledger over store.
func NewLedger(store storage.Database) *Ledger {
	return &Ledger{store: store}
}

// SetTransferFeeBps configures the fee burned on every transfer.
func (l *Ledger) SetTransferFeeBps(bps uint64) error {
	if bps > MaxTransferFeeBps {
		return ErrInvalidFee
	}
	l.mu.Lock()
	l.feeBps = bps
	l.mu.Unlock()
	return nil
}

// SetHook installs the pre-transfer hook. Passing nil removes it.
func (l *Ledger) SetHook(h Hook) {
	l.mu.Lock()
	l.hook = h
	l.mu.Unlock()
}

// Fund credits amount to addr outside any transfer. Genesis seeding goes
// through Seed instead.
func (l *Ledger) Fund(addr crypto.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, err := l.balance(addr)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("token: balance overflow for %s", addr)
	}
	return l.store.Put(balanceKey(addr), next.Bytes())
}

// Balance is one seeded account balance.
type Balance struct {
	Address crypto.Address
	Amount  *uint256.Int
}

// Seed credits every balance and records marker in the same batch. A marker
// that is already present makes Seed a no-op, so a genesis interrupted before
// the write is retried in full and a completed one is never applied twice.
func (l *Ledger) Seed(marker string, balances []Balance) (bool, error) {
	if marker == "" {
		return false, errors.New("token: seed marker required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return false, ErrNilStore
	}
	key := append(append([]byte(nil), seedPrefix...), marker...)
	done, err := l.store.Has(key)
	if err != nil {
		return false, fmt.Errorf("token: load seed marker: %w", err)
	}
	if done {
		return false, nil
	}
	pending := make(map[string]*uint256.Int, len(balances))
	batch := l.store.NewBatch()
	for _, bal := range balances {
		if bal.Amount == nil {
			return false, ErrInvalidAmount
		}
		k := string(balanceKey(bal.Address))
		current, ok := pending[k]
		if !ok {
			if current, err = l.balance(bal.Address); err != nil {
				return false, err
			}
		}
		next, overflow := new(uint256.Int).AddOverflow(current, bal.Amount)
		if overflow {
			return false, fmt.Errorf("token: balance overflow for %s", bal.Address)
		}
		pending[k] = next
		batch.Put([]byte(k), next.Bytes())
	}
	batch.Put(key, []byte{1})
	if err := batch.Write(); err != nil {
		return false, fmt.Errorf("token: commit seed: %w", err)
	}
	return true, nil
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(_ context.Context, addr crypto.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(addr)
}

// TransferFrom debits amount from from and returns what to actually received.
func (l *Ledger) TransferFrom(ctx context.Context, from, to crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	return l.move(ctx, from, to, amount)
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(ctx context.Context, from, to crypto.Address, amount *uint256.Int) error {
	_, err := l.move(ctx, from, to, amount)
	return err
}

func (l *Ledger) move(ctx context.Context, from, to crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil {
		return nil, ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return new(uint256.Int), nil
	}
	l.mu.Lock()
	hook := l.hook
	l.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, from, to, amount); err != nil {
			return nil, fmt.Errorf("token: transfer hook: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil, ErrNilStore
	}
	fromBal, err := l.balance(from)
	if err != nil {
		return nil, err
	}
	if fromBal.Lt(amount) {
		return nil, fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, fromBal.Dec(), amount.Dec())
	}
	fee := new(uint256.Int)
	if l.feeBps > 0 {
		fee.Mul(amount, uint256.NewInt(l.feeBps))
		fee.Div(fee, uint256.NewInt(MaxTransferFeeBps))
	}
	received := new(uint256.Int).Sub(amount, fee)

	batch := l.store.NewBatch()
	if from.Equal(to) {
		batch.Put(balanceKey(from), new(uint256.Int).Sub(fromBal, fee).Bytes())
	} else {
		toBal, err := l.balance(to)
		if err != nil {
			return nil, err
		}
		credited, overflow := new(uint256.Int).AddOverflow(toBal, received)
		if overflow {
			return nil, fmt.Errorf("token: balance overflow for %s", to)
		}
		batch.Put(balanceKey(from), new(uint256.Int).Sub(fromBal, amount).Bytes())
		batch.Put(balanceKey(to), credited.Bytes())
	}
	if err := batch.Write(); err != nil {
		return nil, fmt.Errorf("token: commit transfer: %w", err)
	}
	return received, nil
}

func (l *Ledger) balance(addr crypto.Address) (*uint256.Int, error) {
	if l.store == nil {
		return nil, ErrNilStore
	}
	raw, err := l.store.Get(balanceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("token: load balance: %w", err)
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func balanceKey(addr crypto.Address) []byte {
	raw := addr.Array()
	key := make([]byte, 0, len(balancePrefix)+len(raw))
	key = append(key, balancePrefix...)
	return append(key, raw[:]...)
}
