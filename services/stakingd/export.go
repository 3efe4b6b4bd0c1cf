package stakingd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type depositRow struct {
	Account       string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Index         int32  `parquet:"name=index, type=INT32"`
	Amount        string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	ApyPercentage int64  `parquet:"name=apy_percentage, type=INT64"`
	ApyDuration   int64  `parquet:"name=apy_duration, type=INT64"`
	CreatedAt     int64  `parquet:"name=created_at, type=INT64"`
	Reward        string `parquet:"name=reward, type=BYTE_ARRAY, convertedtype=UTF8"`
	Matured       bool   `parquet:"name=matured, type=BOOLEAN"`
}

// ExportResult describes a written snapshot.
type ExportResult struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// ExportDeposits writes every open deposit into a parquet file under dir.
func ExportDeposits(ctx context.Context, vault *Vault, dir string, now time.Time) (*ExportResult, error) {
	if dir == "" {
		return nil, fmt.Errorf("export: directory not configured")
	}
	records, err := vault.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("export: create dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("deposits-%s.parquet", now.UTC().Format("20060102T150405Z")))
	if err := writeDepositParquet(path, records); err != nil {
		return nil, err
	}
	return &ExportResult{Path: path, Rows: len(records)}, nil
}

func writeDepositParquet(path string, records []DepositRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(depositRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		row := &depositRow{
			Account:       rec.Account.String(),
			Index:         int32(rec.Index),
			Amount:        amountString(rec.Amount),
			ApyPercentage: int64(rec.ApyPercentage),
			ApyDuration:   int64(rec.ApyDuration),
			CreatedAt:     int64(rec.CreatedAt),
			Reward:        amountString(rec.Reward),
			Matured:       rec.Matured,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("export: close parquet file: %w", err)
	}
	return nil
}
