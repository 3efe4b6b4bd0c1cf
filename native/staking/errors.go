package staking

import (
	"errors"

	"stakevault/crypto"
)

var (
	errNilState = errors.New("staking engine: state not configured")
	errNilToken = errors.New("staking engine: token ledger not configured")
)

// Validation.
var (
	ErrInvalidAmount     = errors.New("staking engine: amount must be positive")
	ErrInvalidDuration   = errors.New("staking engine: duration not offered")
	ErrIndexOutOfRange   = errors.New("staking engine: deposit index out of range")
	ErrPercentageTooHigh = errors.New("staking engine: apy percentage exceeds 10000")
	ErrInvalidPercentage = errors.New("staking engine: apy percentage must be positive")
	ErrPenaltyTooHigh    = errors.New("staking engine: exit penalty exceeds 50%")
	ErrNoDeposits        = errors.New("staking engine: account has no deposits")
	ErrInvalidAddress    = crypto.ErrInvalidAddress
)

// Authorization.
var (
	ErrUnauthorized = errors.New("staking engine: caller is not the admin")
	ErrPaused       = errors.New("staking engine: vault is paused")
)

// Lifecycle.
var (
	ErrAlreadyStarted   = errors.New("staking engine: reward program already started")
	ErrRewardNotStarted = errors.New("staking engine: reward program not started")
	ErrNotBootstrapped  = errors.New("staking engine: vault not bootstrapped")
)

// Solvency.
var (
	ErrInsufficientTreasury  = errors.New("staking engine: treasury balance below payout")
	ErrExceedsRewardCapacity = errors.New("staking engine: amount exceeds reward capacity")
)

// Arithmetic.
var (
	ErrArithmeticOverflow  = errors.New("staking engine: arithmetic overflow")
	ErrFeeExceedsPrincipal = errors.New("staking engine: withdraw fee exceeds principal")
)

// Transfer.
var (
	ErrReceivedExceedsRequested = errors.New("staking engine: received amount exceeds requested amount")
)

// ErrInvariantViolated is returned by CheckInvariants.
var ErrInvariantViolated = errors.New("staking engine: invariant violated")
