package staking

import (
	"github.com/holiman/uint256"
)

// accrualBaseline is the later of the program start and the deposit time, so
// a deposit never earns for time before the program was running.
func accrualBaseline(d Deposit, startedAt uint64) uint64 {
	return maxUint64(startedAt, d.CreatedAt)
}

// elapsedSince returns the seconds between the accrual baseline and now, or
// 0 while the program is stopped or the baseline is in the future.
func elapsedSince(d Deposit, startedAt, now uint64) uint64 {
	if startedAt == 0 {
		return 0
	}
	baseline := accrualBaseline(d, startedAt)
	if now <= baseline {
		return 0
	}
	return now - baseline
}

// CalculateReward returns the yield a deposit has accrued at now:
//
//	amount * min(elapsed, duration) * apy / 100 / 31536000
//
// Products are taken before any division and every division truncates.
func CalculateReward(d Deposit, accountTotal *uint256.Int, startedAt, now uint64) (*uint256.Int, error) {
	if startedAt == 0 || accountTotal == nil || accountTotal.IsZero() || d.Amount == nil {
		return new(uint256.Int), nil
	}
	elapsed := elapsedSince(d, startedAt, now)
	if elapsed > d.ApyDuration {
		elapsed = d.ApyDuration
	}
	if elapsed == 0 || d.ApyPercentage == 0 {
		return new(uint256.Int), nil
	}
	weighted, overflow := new(uint256.Int).MulOverflow(d.Amount, uint256.NewInt(elapsed))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	if _, overflow = weighted.MulOverflow(weighted, uint256.NewInt(d.ApyPercentage)); overflow {
		return nil, ErrArithmeticOverflow
	}
	weighted.Div(weighted, uint256.NewInt(percentDenominator))
	return weighted.Div(weighted, uint256.NewInt(secondsPerYear)), nil
}
