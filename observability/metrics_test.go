package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"stakevault/core/events"
)

func TestStakingMetricsRecordOperations(t *testing.T) {
	m := Staking()
	before := testutil.ToFloat64(m.operations.WithLabelValues("stake", "error"))
	m.ObserveOperation("stake", 5*time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(m.operations.WithLabelValues("stake", "error")); got != before+1 {
		t.Fatalf("expected error counter to increase, got %v", got)
	}

	m.RecordTreasury(uint256.NewInt(1_000), uint256.NewInt(1_250), uint256.NewInt(250))
	if got := testutil.ToFloat64(m.capacity); got != 250 {
		t.Fatalf("expected capacity gauge 250, got %v", got)
	}
	m.RecordPayout("matured", uint256.NewInt(990))
	if got := testutil.ToFloat64(m.payoutAmount.WithLabelValues("matured")); got < 990 {
		t.Fatalf("expected payout amount recorded, got %v", got)
	}
	m.SetPause(true)
	if got := testutil.ToFloat64(m.pauseEngaged); got != 1 {
		t.Fatalf("expected pause gauge 1, got %v", got)
	}
	m.SetPause(false)
}

func TestEventMetricsCountsEmittedTypes(t *testing.T) {
	reg := Events()
	before := testutil.ToFloat64(reg.emitted.WithLabelValues(events.TypeStakingDeposit))
	reg.Emit(events.StakingDeposit{Amount: uint256.NewInt(1)})
	if got := testutil.ToFloat64(reg.emitted.WithLabelValues(events.TypeStakingDeposit)); got != before+1 {
		t.Fatalf("expected deposit counter to increase, got %v", got)
	}
	if got := testutil.ToFloat64(reg.lastEmitted.WithLabelValues(events.TypeStakingDeposit)); got <= 0 {
		t.Fatalf("expected last-emitted timestamp, got %v", got)
	}
	reg.RecordEvent("  ")
	if got := testutil.ToFloat64(reg.emitted.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("expected blank type counted as unknown, got %v", got)
	}
}

func TestAmountToFloatHandlesWideValues(t *testing.T) {
	wide := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	if got := amountToFloat(wide); got <= 0 {
		t.Fatalf("expected positive float for wide value, got %v", got)
	}
	if got := amountToFloat(nil); got != 0 {
		t.Fatalf("expected 0 for nil, got %v", got)
	}
}
