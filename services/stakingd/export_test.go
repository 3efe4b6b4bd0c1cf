package stakingd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func TestExportDepositsWritesParquet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.vault.Stake(ctx, bobAddr, uint256.NewInt(300), 60)
	require.NoError(t, err)
	_, err = f.vault.Stake(ctx, aliceAddr, uint256.NewInt(1000), 10)
	require.NoError(t, err)
	_, err = f.vault.Stake(ctx, aliceAddr, uint256.NewInt(2000), 10)
	require.NoError(t, err)
	f.advance(10)

	dir := filepath.Join(t.TempDir(), "exports")
	res, err := ExportDeposits(ctx, f.vault, dir, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)
	require.Equal(t, filepath.Join(dir, "deposits-20240301T120000Z.parquet"), res.Path)

	fr, err := local.NewLocalFileReader(res.Path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(depositRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(3), pr.GetNumRows())

	rows := make([]depositRow, 3)
	require.NoError(t, pr.Read(&rows))
	byKey := make(map[string]depositRow)
	for _, row := range rows {
		byKey[row.Account+"/"+row.Amount] = row
	}
	alice := byKey[aliceAddr.String()+"/2000"]
	require.Equal(t, int32(1), alice.Index)
	require.True(t, alice.Matured)
	bob := byKey[bobAddr.String()+"/300"]
	require.Equal(t, int64(20), bob.ApyPercentage)
	require.False(t, bob.Matured)
}

func TestExportDepositsRequiresDirectory(t *testing.T) {
	f := newFixture(t)
	_, err := ExportDeposits(context.Background(), f.vault, "", time.Now())
	require.Error(t, err)
}
