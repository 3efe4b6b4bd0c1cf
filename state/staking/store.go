package staking

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stakevault/crypto"
	vault "stakevault/native/staking"
	"stakevault/storage"
)

var (
	vaultKey      = []byte("staking/vault")
	catalogKey    = []byte("staking/catalog")
	accountPrefix = []byte("staking/account/")
)

// Store persists the staking vault in a key/value database. Each changeset is
// written through a single storage batch.
type Store struct {
	db storage.Database
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

type storedVault struct {
	Address               []byte
	Admin                 []byte
	StartedAt             uint64
	TotalStaked           *big.Int
	ExitPenaltyPercentage uint64
	WithdrawFeePercentage uint64
	Paused                bool
	ResetAt               uint64
}

type storedApyOption struct {
	Duration   uint64
	Percentage uint64
}

type storedCatalog struct {
	Options []storedApyOption
}

type storedDeposit struct {
	ApyPercentage uint64
	ApyDuration   uint64
	Amount        *big.Int
	CreatedAt     uint64
}

type storedAccount struct {
	TotalStaked *big.Int
	Deposits    []storedDeposit
}

// Vault loads the vault record.
func (s *Store) Vault() (*vault.Vault, bool, error) {
	var stored storedVault
	ok, err := s.get(vaultKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := stored.toVault()
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Catalog loads the APY catalog. A missing record yields nil.
func (s *Store) Catalog() (*vault.ApyCatalog, error) {
	var stored storedCatalog
	ok, err := s.get(catalogKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	opts := make([]vault.ApyOption, 0, len(stored.Options))
	for _, opt := range stored.Options {
		opts = append(opts, vault.ApyOption{Duration: opt.Duration, Percentage: opt.Percentage})
	}
	catalog, err := vault.NewApyCatalog(opts...)
	if err != nil {
		return nil, fmt.Errorf("staking store: decode catalog: %w", err)
	}
	return catalog, nil
}

// Account loads the account for addr, or nil when none was stored.
func (s *Store) Account(addr crypto.Address) (*vault.Account, error) {
	var stored storedAccount
	ok, err := s.get(accountKey(addr), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toAccount()
}

// ForEachAccount visits every stored account in key order.
func (s *Store) ForEachAccount(fn func(addr crypto.Address, acct *vault.Account) error) error {
	var cbErr error
	err := s.db.Iterate(accountPrefix, func(key, value []byte) bool {
		raw := key[len(accountPrefix):]
		if len(raw) != crypto.AddressLength {
			cbErr = fmt.Errorf("staking store: malformed account key %x", key)
			return false
		}
		var stored storedAccount
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			cbErr = fmt.Errorf("staking store: decode account %x: %w", raw, err)
			return false
		}
		acct, err := stored.toAccount()
		if err != nil {
			cbErr = err
			return false
		}
		if err := fn(crypto.NewAddress(crypto.StakePrefix, raw), acct); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return cbErr
}

// Commit writes every record in cs in one batch.
func (s *Store) Commit(cs *vault.Changeset) error {
	if s == nil || s.db == nil {
		return errors.New("staking store: database not configured")
	}
	if cs == nil {
		return nil
	}
	batch := s.db.NewBatch()
	if cs.Vault != nil {
		encoded, err := rlp.EncodeToBytes(newStoredVault(cs.Vault))
		if err != nil {
			return fmt.Errorf("staking store: encode vault: %w", err)
		}
		batch.Put(vaultKey, encoded)
	}
	if cs.Catalog != nil {
		stored := storedCatalog{Options: make([]storedApyOption, 0, cs.Catalog.Len())}
		for _, opt := range cs.Catalog.Options() {
			stored.Options = append(stored.Options, storedApyOption{Duration: opt.Duration, Percentage: opt.Percentage})
		}
		encoded, err := rlp.EncodeToBytes(&stored)
		if err != nil {
			return fmt.Errorf("staking store: encode catalog: %w", err)
		}
		batch.Put(catalogKey, encoded)
	}
	for _, entry := range cs.Accounts {
		if entry.Account == nil {
			continue
		}
		encoded, err := rlp.EncodeToBytes(newStoredAccount(entry.Account))
		if err != nil {
			return fmt.Errorf("staking store: encode account %s: %w", entry.Address, err)
		}
		batch.Put(accountKey(entry.Address), encoded)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("staking store: write batch: %w", err)
	}
	return nil
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("staking store: database not configured")
	}
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("staking store: load %s: %w", key, err)
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("staking store: decode %s: %w", key, err)
	}
	return true, nil
}

func accountKey(addr crypto.Address) []byte {
	raw := addr.Array()
	key := make([]byte, 0, len(accountPrefix)+len(raw))
	key = append(key, accountPrefix...)
	return append(key, raw[:]...)
}

func newStoredVault(v *vault.Vault) *storedVault {
	return &storedVault{
		Address:               append([]byte(nil), v.Address.Bytes()...),
		Admin:                 append([]byte(nil), v.Admin.Bytes()...),
		StartedAt:             v.StartedAt,
		TotalStaked:           toBig(v.TotalStaked),
		ExitPenaltyPercentage: v.ExitPenaltyPercentage,
		WithdrawFeePercentage: v.WithdrawFeePercentage,
		Paused:                v.Paused,
		ResetAt:               v.ResetAt,
	}
}

func (s *storedVault) toVault() (*vault.Vault, error) {
	addr, err := decodeAddress(s.Address)
	if err != nil {
		return nil, fmt.Errorf("staking store: vault address: %w", err)
	}
	admin, err := decodeAddress(s.Admin)
	if err != nil {
		return nil, fmt.Errorf("staking store: admin address: %w", err)
	}
	total, err := fromBig(s.TotalStaked)
	if err != nil {
		return nil, err
	}
	return &vault.Vault{
		Address:               addr,
		Admin:                 admin,
		StartedAt:             s.StartedAt,
		TotalStaked:           total,
		ExitPenaltyPercentage: s.ExitPenaltyPercentage,
		WithdrawFeePercentage: s.WithdrawFeePercentage,
		Paused:                s.Paused,
		ResetAt:               s.ResetAt,
	}, nil
}

func newStoredAccount(a *vault.Account) *storedAccount {
	stored := &storedAccount{
		TotalStaked: toBig(a.TotalStaked),
		Deposits:    make([]storedDeposit, 0, len(a.Deposits)),
	}
	for _, d := range a.Deposits {
		stored.Deposits = append(stored.Deposits, storedDeposit{
			ApyPercentage: d.ApyPercentage,
			ApyDuration:   d.ApyDuration,
			Amount:        toBig(d.Amount),
			CreatedAt:     d.CreatedAt,
		})
	}
	return stored
}

func (s *storedAccount) toAccount() (*vault.Account, error) {
	total, err := fromBig(s.TotalStaked)
	if err != nil {
		return nil, err
	}
	acct := &vault.Account{TotalStaked: total}
	if len(s.Deposits) > 0 {
		acct.Deposits = make([]vault.Deposit, 0, len(s.Deposits))
	}
	for _, d := range s.Deposits {
		amount, err := fromBig(d.Amount)
		if err != nil {
			return nil, err
		}
		acct.Deposits = append(acct.Deposits, vault.Deposit{
			ApyPercentage: d.ApyPercentage,
			ApyDuration:   d.ApyDuration,
			Amount:        amount,
			CreatedAt:     d.CreatedAt,
		})
	}
	return acct, nil
}

func decodeAddress(raw []byte) (crypto.Address, error) {
	if len(raw) == 0 {
		return crypto.Address{}, nil
	}
	if len(raw) != crypto.AddressLength {
		return crypto.Address{}, fmt.Errorf("%w: %d bytes", crypto.ErrInvalidAddress, len(raw))
	}
	return crypto.NewAddress(crypto.StakePrefix, raw), nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("staking store: amount %s exceeds 256 bits", v)
	}
	return out, nil
}
