package staking

import (
	"fmt"

	"stakevault/crypto"
)

// Config captures the creation parameters of a vault.
type Config struct {
	VaultAddress          crypto.Address
	Admin                 crypto.Address
	InitialApyPercentage  uint64
	InitialApyDuration    uint64
	ExitPenaltyPercentage uint64
	WithdrawFeePercentage uint64
	// ExtraApy rows are added after the initial option in the same commit.
	// A row for the initial duration overrides its rate.
	ExtraApy []ApyOption
	// StartRewardOnCreate sets StartedAt to the bootstrap time.
	StartRewardOnCreate bool
}

// DefaultConfig returns a config with the reward program active on creation.
func DefaultConfig() Config {
	return Config{StartRewardOnCreate: true}
}

// Validate checks the creation parameters.
func (c Config) Validate() error {
	if c.VaultAddress.IsZero() {
		return fmt.Errorf("%w: vault address required", ErrInvalidAddress)
	}
	if c.Admin.IsZero() {
		return fmt.Errorf("%w: admin address required", ErrInvalidAddress)
	}
	if c.InitialApyDuration == 0 {
		return fmt.Errorf("%w: initial duration must be positive", ErrInvalidDuration)
	}
	if c.InitialApyPercentage == 0 {
		return ErrInvalidPercentage
	}
	if c.InitialApyPercentage > MaxApyPercentage {
		return ErrPercentageTooHigh
	}
	if c.ExitPenaltyPercentage > MaxExitPenaltyPercentage {
		return ErrPenaltyTooHigh
	}
	if _, err := c.catalog(); err != nil {
		return err
	}
	return nil
}

func (c Config) catalog() (*ApyCatalog, error) {
	opts := make([]ApyOption, 0, len(c.ExtraApy)+1)
	opts = append(opts, ApyOption{Duration: c.InitialApyDuration, Percentage: c.InitialApyPercentage})
	opts = append(opts, c.ExtraApy...)
	return NewApyCatalog(opts...)
}
