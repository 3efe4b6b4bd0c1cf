package staking

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"stakevault/crypto"
	vault "stakevault/native/staking"
	"stakevault/native/token"
	"stakevault/storage"
)

func addr(fill byte) crypto.Address {
	var raw [crypto.AddressLength]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.AddressFromArray(raw)
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	_, ok, err := store.Vault()
	require.NoError(t, err)
	require.False(t, ok)

	catalog, err := vault.NewApyCatalog(
		vault.ApyOption{Duration: 90, Percentage: 8},
		vault.ApyOption{Duration: 30, Percentage: 5},
	)
	require.NoError(t, err)
	v := &vault.Vault{
		Address:               addr(0xAA),
		Admin:                 addr(0xAD),
		StartedAt:             42,
		TotalStaked:           uint256.MustFromDecimal("340282366920938463463374607431768211456"),
		ExitPenaltyPercentage: 5,
		WithdrawFeePercentage: 1,
		Paused:                true,
	}
	acct := &vault.Account{
		TotalStaked: uint256.NewInt(300),
		Deposits: []vault.Deposit{
			{ApyPercentage: 5, ApyDuration: 30, Amount: uint256.NewInt(100), CreatedAt: 7},
			{ApyPercentage: 8, ApyDuration: 90, Amount: uint256.NewInt(200), CreatedAt: 9},
		},
	}
	require.NoError(t, store.Commit(&vault.Changeset{
		Vault:    v,
		Catalog:  catalog,
		Accounts: []vault.AccountEntry{{Address: addr(0x01), Account: acct}},
	}))

	loaded, ok, err := store.Vault()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, loaded.Address.Equal(v.Address))
	require.True(t, loaded.Admin.Equal(v.Admin))
	require.Equal(t, v.TotalStaked.Dec(), loaded.TotalStaked.Dec())
	require.Equal(t, uint64(42), loaded.StartedAt)
	require.True(t, loaded.Paused)

	loadedCatalog, err := store.Catalog()
	require.NoError(t, err)
	require.Equal(t, []uint64{90, 30}, loadedCatalog.Durations())

	loadedAcct, err := store.Account(addr(0x01))
	require.NoError(t, err)
	require.Len(t, loadedAcct.Deposits, 2)
	require.Equal(t, uint64(200), loadedAcct.Deposits[1].Amount.Uint64())
	require.Equal(t, uint64(9), loadedAcct.Deposits[1].CreatedAt)

	missing, err := store.Account(addr(0x02))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestStoreForEachAccount(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	for _, fill := range []byte{0x03, 0x01, 0x02} {
		require.NoError(t, store.Commit(&vault.Changeset{Accounts: []vault.AccountEntry{{
			Address: addr(fill),
			Account: &vault.Account{TotalStaked: uint256.NewInt(uint64(fill))},
		}}}))
	}
	var seen []byte
	require.NoError(t, store.ForEachAccount(func(a crypto.Address, acct *vault.Account) error {
		seen = append(seen, a.Bytes()[0])
		require.Equal(t, uint64(a.Bytes()[0]), acct.TotalStaked.Uint64())
		return nil
	}))
	require.Equal(t, []byte{0x01, 0x02, 0x03}, seen)
}

func TestEngineOverLevelDB(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "vault"))
	require.NoError(t, err)
	defer db.Close()

	now := int64(1_000)
	ledger := token.NewLedger(db)
	engine := vault.NewEngine()
	engine.SetState(NewStore(db))
	engine.SetToken(ledger)
	engine.SetNowFunc(func() int64 { return now })

	cfg := vault.DefaultConfig()
	cfg.VaultAddress = addr(0xAA)
	cfg.Admin = addr(0xAD)
	cfg.InitialApyPercentage = 50
	cfg.InitialApyDuration = 10
	cfg.ExitPenaltyPercentage = 5
	created, err := engine.Bootstrap(cfg)
	require.NoError(t, err)
	require.True(t, created)

	alice := addr(0x01)
	require.NoError(t, ledger.Fund(alice, uint256.NewInt(10_000)))
	ctx := context.Background()
	for _, amount := range []uint64{1_000, 2_000, 3_000} {
		_, err := engine.Stake(ctx, alice, uint256.NewInt(amount), 10)
		require.NoError(t, err)
	}
	now += 3
	res, err := engine.UnstakeByIndex(ctx, alice, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1_900), res.Payout.Uint64())

	// A fresh engine over the same database sees the committed state.
	reopened := vault.NewEngine()
	reopened.SetState(NewStore(db))
	reopened.SetToken(ledger)
	reopened.SetNowFunc(func() int64 { return now })
	views, err := reopened.Deposits(alice)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, uint64(1_000), views[0].Amount.Uint64())
	require.Equal(t, uint64(3_000), views[1].Amount.Uint64())

	report, err := reopened.CheckInvariants()
	require.NoError(t, err)
	require.Equal(t, uint64(4_000), report.VaultTotal.Uint64())
}
