package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/native/staking"
)

// Vault is the genesis file for a staking vault. It is only applied the
// first time the vault is bootstrapped.
type Vault struct {
	VaultAddress              string `toml:"VaultAddress"`
	Admin                     string `toml:"Admin"`
	AdminKeystore             string `toml:"AdminKeystore"`
	InitialApyPercentage      uint64 `toml:"InitialApyPercentage"`
	InitialApyDurationSeconds uint64 `toml:"InitialApyDurationSeconds"`
	ExitPenaltyPercentage     uint64 `toml:"ExitPenaltyPercentage"`
	WithdrawFeePercentage     uint64 `toml:"WithdrawFeePercentage"`
	StartRewardOnCreate       bool   `toml:"StartRewardOnCreate"`
	// TransferFeeBps makes the local token ledger burn a share of every
	// transfer, emulating a fee-on-transfer token.
	TransferFeeBps uint64      `toml:"TransferFeeBps"`
	Apy            []ApyOption `toml:"Apy"`
	Balances       []Balance   `toml:"Balances"`
}

// ApyOption is an additional catalog entry added after bootstrap.
type ApyOption struct {
	DurationSeconds uint64 `toml:"DurationSeconds"`
	Percentage      uint64 `toml:"Percentage"`
}

// Balance seeds the local token ledger.
type Balance struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// GenesisBalance is a decoded Balance.
type GenesisBalance struct {
	Address crypto.Address
	Amount  *uint256.Int
}

// LoadVault reads the vault genesis at path. A missing file is replaced by a
// default genesis with a freshly generated admin keystore.
func LoadVault(path string) (*Vault, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Vault{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("vault genesis %s: unknown key %q", path, undecoded[0].String())
	}
	if !meta.IsDefined("StartRewardOnCreate") {
		cfg.StartRewardOnCreate = true
	}
	if cfg.AdminKeystore != "" && !filepath.IsAbs(cfg.AdminKeystore) {
		cfg.AdminKeystore = filepath.Join(filepath.Dir(path), cfg.AdminKeystore)
	}
	if strings.TrimSpace(cfg.Admin) == "" && cfg.AdminKeystore != "" {
		admin, err := crypto.KeystoreAddress(cfg.AdminKeystore)
		if err != nil {
			return nil, fmt.Errorf("vault genesis: admin keystore: %w", err)
		}
		cfg.Admin = admin.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StakingConfig converts the genesis into engine creation parameters.
func (v *Vault) StakingConfig() (staking.Config, error) {
	cfg := staking.DefaultConfig()
	vaultAddr, err := crypto.DecodeAddress(v.VaultAddress)
	if err != nil {
		return cfg, fmt.Errorf("vault genesis: VaultAddress: %w", err)
	}
	admin, err := crypto.DecodeAddress(v.Admin)
	if err != nil {
		return cfg, fmt.Errorf("vault genesis: Admin: %w", err)
	}
	cfg.VaultAddress = vaultAddr
	cfg.Admin = admin
	cfg.InitialApyPercentage = v.InitialApyPercentage
	cfg.InitialApyDuration = v.InitialApyDurationSeconds
	cfg.ExitPenaltyPercentage = v.ExitPenaltyPercentage
	cfg.WithdrawFeePercentage = v.WithdrawFeePercentage
	cfg.StartRewardOnCreate = v.StartRewardOnCreate
	for _, opt := range v.Apy {
		cfg.ExtraApy = append(cfg.ExtraApy, staking.ApyOption{Duration: opt.DurationSeconds, Percentage: opt.Percentage})
	}
	return cfg, nil
}

// GenesisBalances decodes the token seed balances.
func (v *Vault) GenesisBalances() ([]GenesisBalance, error) {
	out := make([]GenesisBalance, 0, len(v.Balances))
	for i, bal := range v.Balances {
		addr, err := crypto.DecodeAddress(bal.Address)
		if err != nil {
			return nil, fmt.Errorf("vault genesis: Balances[%d]: %w", i, err)
		}
		amount, err := uint256.FromDecimal(strings.TrimSpace(bal.Amount))
		if err != nil {
			return nil, fmt.Errorf("vault genesis: Balances[%d]: amount %q: %w", i, bal.Amount, err)
		}
		out = append(out, GenesisBalance{Address: addr, Amount: amount})
	}
	return out, nil
}

// Validate checks the genesis for values the engine would reject.
func (v *Vault) Validate() error {
	cfg, err := v.StakingConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("vault genesis: %w", err)
	}
	if v.TransferFeeBps > 10_000 {
		return fmt.Errorf("vault genesis: TransferFeeBps %d exceeds 10000", v.TransferFeeBps)
	}
	catalog, err := staking.NewApyCatalog()
	if err != nil {
		return err
	}
	for i, opt := range v.Apy {
		if err := catalog.Set(opt.DurationSeconds, opt.Percentage); err != nil {
			return fmt.Errorf("vault genesis: Apy[%d]: %w", i, err)
		}
	}
	if _, err := v.GenesisBalances(); err != nil {
		return err
	}
	return nil
}

// createDefault creates and saves a default genesis file.
func createDefault(path string) (*Vault, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, "", false); err != nil {
		return nil, err
	}
	var raw [crypto.AddressLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, err
	}
	cfg := &Vault{
		VaultAddress:              crypto.AddressFromArray(raw).String(),
		Admin:                     key.PubKey().Address().String(),
		AdminKeystore:             keystorePath,
		InitialApyPercentage:      10,
		InitialApyDurationSeconds: 30 * 24 * 60 * 60,
		ExitPenaltyPercentage:     5,
		WithdrawFeePercentage:     1,
		StartRewardOnCreate:       true,
		Apy:                       []ApyOption{},
		Balances:                  []Balance{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Vault) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
