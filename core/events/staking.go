package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"stakevault/core/types"
	"stakevault/crypto"
)

const (
	// TypeStakingDeposit is emitted when principal is locked into a new deposit.
	TypeStakingDeposit = "staking.deposit"
	// TypeStakingWithdraw is emitted when a matured deposit pays out.
	TypeStakingWithdraw = "staking.withdraw"
	// TypeStakingEmergencyWithdraw is emitted when a deposit exits early and
	// pays principal net of the exit penalty.
	TypeStakingEmergencyWithdraw = "staking.emergencyWithdraw"
	// TypeStakingReward reports the reward component realised by an unstake.
	TypeStakingReward = "staking.reward"

	TypeStakingRewardStarted      = "staking.rewardStarted"
	TypeStakingRewardStopped      = "staking.rewardStopped"
	TypeStakingApyUpdated         = "staking.apyUpdated"
	TypeStakingApyDeleted         = "staking.apyDeleted"
	TypeStakingExitPenaltyUpdated = "staking.exitPenaltyUpdated"
	TypeStakingWithdrawFeeUpdated = "staking.withdrawFeeUpdated"
	TypeStakingEmergencyReward    = "staking.emergencyRewardWithdrawn"
	TypeStakingReset              = "staking.reset"
)

// StakingDeposit captures a newly recorded deposit.
type StakingDeposit struct {
	Account  crypto.Address
	Amount   *uint256.Int
	Index    int
	Duration uint64
	Apy      uint64
}

// EventType satisfies the Event interface.
func (StakingDeposit) EventType() string { return TypeStakingDeposit }

// Event converts the structured payload into a broadcastable event.
func (e StakingDeposit) Event() *types.Event {
	attrs := map[string]string{
		"account": formatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
		"index":   strconv.Itoa(e.Index),
	}
	if e.Duration > 0 {
		attrs["duration"] = formatUint(e.Duration)
	}
	if e.Apy > 0 {
		attrs["apy"] = formatUint(e.Apy)
	}
	return &types.Event{Type: TypeStakingDeposit, Attributes: attrs}
}

// StakingWithdraw captures a matured payout.
type StakingWithdraw struct {
	Account crypto.Address
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (StakingWithdraw) EventType() string { return TypeStakingWithdraw }

// Event converts the structured payload into a broadcastable event.
func (e StakingWithdraw) Event() *types.Event {
	return &types.Event{Type: TypeStakingWithdraw, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
	}}
}

// StakingEmergencyWithdraw captures an early exit payout.
type StakingEmergencyWithdraw struct {
	Account crypto.Address
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (StakingEmergencyWithdraw) EventType() string { return TypeStakingEmergencyWithdraw }

// Event converts the structured payload into a broadcastable event.
func (e StakingEmergencyWithdraw) Event() *types.Event {
	return &types.Event{Type: TypeStakingEmergencyWithdraw, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
	}}
}

// StakingReward captures the reward realised by a single unstake call.
type StakingReward struct {
	Account crypto.Address
	Amount  *uint256.Int
}

// EventType satisfies the Event interface.
func (StakingReward) EventType() string { return TypeStakingReward }

// Event converts the structured payload into a broadcastable event.
func (e StakingReward) Event() *types.Event {
	return &types.Event{Type: TypeStakingReward, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
	}}
}

// StakingLifecycle captures admin driven state changes. Only the fields that
// apply to Kind are rendered.
type StakingLifecycle struct {
	Kind       string
	Admin      crypto.Address
	Timestamp  uint64
	Duration   uint64
	Percentage uint64
	Amount     *uint256.Int
}

// EventType satisfies the Event interface.
func (e StakingLifecycle) EventType() string { return e.Kind }

// Event converts the structured payload into a broadcastable event.
func (e StakingLifecycle) Event() *types.Event {
	attrs := map[string]string{"admin": formatAddress(e.Admin)}
	switch e.Kind {
	case TypeStakingRewardStarted, TypeStakingRewardStopped:
		attrs["timestamp"] = formatUint(e.Timestamp)
	case TypeStakingApyUpdated:
		attrs["duration"] = formatUint(e.Duration)
		attrs["percentage"] = formatUint(e.Percentage)
	case TypeStakingApyDeleted:
		attrs["duration"] = formatUint(e.Duration)
	case TypeStakingExitPenaltyUpdated, TypeStakingWithdrawFeeUpdated:
		attrs["percentage"] = formatUint(e.Percentage)
	case TypeStakingEmergencyReward, TypeStakingReset:
		attrs["amount"] = formatAmount(e.Amount)
	}
	return &types.Event{Type: e.Kind, Attributes: attrs}
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatAddress(addr crypto.Address) string {
	if len(addr.Bytes()) == 0 {
		return ""
	}
	return addr.String()
}
