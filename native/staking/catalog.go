package staking

import (
	"fmt"

	"stakevault/core/events"
	"stakevault/crypto"
)

// ApyOption is one offered lock duration with its yearly rate.
type ApyOption struct {
	Duration   uint64
	Percentage uint64
}

// ApyCatalog is an insertion-ordered map of lock durations to rates. Every
// listed duration has a nonzero rate and every rated duration is listed.
type ApyCatalog struct {
	order []uint64
	rates map[uint64]uint64
}

// NewApyCatalog builds a catalog from options in the given order.
func NewApyCatalog(opts ...ApyOption) (*ApyCatalog, error) {
	c := &ApyCatalog{rates: make(map[uint64]uint64, len(opts))}
	for _, opt := range opts {
		if err := c.Set(opt.Duration, opt.Percentage); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Set inserts or overwrites the rate for duration. New durations are
// appended to the order.
func (c *ApyCatalog) Set(duration, percentage uint64) error {
	if duration == 0 {
		return fmt.Errorf("%w: zero duration", ErrInvalidDuration)
	}
	if percentage == 0 {
		return ErrInvalidPercentage
	}
	if percentage > MaxApyPercentage {
		return ErrPercentageTooHigh
	}
	if c.rates == nil {
		c.rates = make(map[uint64]uint64)
	}
	if _, ok := c.rates[duration]; !ok {
		c.order = append(c.order, duration)
	}
	c.rates[duration] = percentage
	return nil
}

// Delete removes duration, keeping the relative order of the rest. It
// reports whether anything was removed.
func (c *ApyCatalog) Delete(duration uint64) bool {
	if _, ok := c.rates[duration]; !ok {
		return false
	}
	delete(c.rates, duration)
	for i, d := range c.order {
		if d == duration {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Percentage returns the rate for duration, or 0 when it is not offered.
func (c *ApyCatalog) Percentage(duration uint64) uint64 {
	if c == nil {
		return 0
	}
	return c.rates[duration]
}

// Durations returns the offered durations in insertion order.
func (c *ApyCatalog) Durations() []uint64 {
	if c == nil {
		return nil
	}
	return append([]uint64(nil), c.order...)
}

// Len returns the number of offered durations.
func (c *ApyCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Options returns the catalog as an ordered slice.
func (c *ApyCatalog) Options() []ApyOption {
	if c == nil {
		return nil
	}
	out := make([]ApyOption, 0, len(c.order))
	for _, d := range c.order {
		out = append(out, ApyOption{Duration: d, Percentage: c.rates[d]})
	}
	return out
}

// Clone returns a deep copy.
func (c *ApyCatalog) Clone() *ApyCatalog {
	out := &ApyCatalog{rates: make(map[uint64]uint64)}
	if c == nil {
		return out
	}
	out.order = append([]uint64(nil), c.order...)
	for k, v := range c.rates {
		out.rates[k] = v
	}
	return out
}

// Validate checks that the order and the rate map describe the same set.
func (c *ApyCatalog) Validate() error {
	if c == nil {
		return nil
	}
	if len(c.order) != len(c.rates) {
		return fmt.Errorf("%w: catalog lists %d durations but rates %d", ErrInvariantViolated, len(c.order), len(c.rates))
	}
	seen := make(map[uint64]struct{}, len(c.order))
	for _, d := range c.order {
		if _, dup := seen[d]; dup {
			return fmt.Errorf("%w: duration %d listed twice", ErrInvariantViolated, d)
		}
		seen[d] = struct{}{}
		if c.rates[d] == 0 {
			return fmt.Errorf("%w: duration %d has no rate", ErrInvariantViolated, d)
		}
	}
	return nil
}

// AddOrUpdateApy offers duration at percentage, replacing any existing rate.
func (e *Engine) AddOrUpdateApy(caller crypto.Address, percentage, duration uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := requireAdmin(vault, caller); err != nil {
		return err
	}
	catalog, err := e.loadCatalog()
	if err != nil {
		return err
	}
	next := catalog.Clone()
	if err := next.Set(duration, percentage); err != nil {
		return err
	}
	if err := e.state.Commit(&Changeset{Catalog: next}); err != nil {
		return err
	}
	e.emit(events.StakingLifecycle{Kind: events.TypeStakingApyUpdated, Admin: caller, Duration: duration, Percentage: percentage})
	return nil
}

// DeleteApy withdraws duration from the catalog. Existing deposits keep
// their snapshotted rate. Deleting an unknown duration is a no-op.
func (e *Engine) DeleteApy(caller crypto.Address, duration uint64) error {
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	vault, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := requireAdmin(vault, caller); err != nil {
		return err
	}
	catalog, err := e.loadCatalog()
	if err != nil {
		return err
	}
	next := catalog.Clone()
	if !next.Delete(duration) {
		return nil
	}
	if err := e.state.Commit(&Changeset{Catalog: next}); err != nil {
		return err
	}
	e.emit(events.StakingLifecycle{Kind: events.TypeStakingApyDeleted, Admin: caller, Duration: duration})
	return nil
}

// ApyPercentage returns the rate offered for duration, or 0.
func (e *Engine) ApyPercentage(duration uint64) (uint64, error) {
	catalog, err := e.loadCatalog()
	if err != nil {
		return 0, err
	}
	return catalog.Percentage(duration), nil
}

// ApyDurations returns the offered durations in insertion order.
func (e *Engine) ApyDurations() ([]uint64, error) {
	catalog, err := e.loadCatalog()
	if err != nil {
		return nil, err
	}
	return catalog.Durations(), nil
}

// ApyCount returns the number of offered durations.
func (e *Engine) ApyCount() (int, error) {
	catalog, err := e.loadCatalog()
	if err != nil {
		return 0, err
	}
	return catalog.Len(), nil
}

// ApyTable returns every offered option in insertion order.
func (e *Engine) ApyTable() ([]ApyOption, error) {
	catalog, err := e.loadCatalog()
	if err != nil {
		return nil, err
	}
	return catalog.Options(), nil
}
