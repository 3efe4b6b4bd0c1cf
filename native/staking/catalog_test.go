package staking

import (
	"context"
	"errors"
	"testing"
)

func durationsEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApyCatalogOrdering(t *testing.T) {
	c, err := NewApyCatalog(
		ApyOption{Duration: 30, Percentage: 5},
		ApyOption{Duration: 90, Percentage: 8},
		ApyOption{Duration: 180, Percentage: 12},
	)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := c.Set(90, 9); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !durationsEqual(c.Durations(), []uint64{30, 90, 180}) {
		t.Fatalf("update must keep position, got %v", c.Durations())
	}
	if c.Percentage(90) != 9 {
		t.Fatalf("expected updated rate 9, got %d", c.Percentage(90))
	}
	if !c.Delete(30) {
		t.Fatalf("expected delete to report removal")
	}
	if c.Delete(30) {
		t.Fatalf("second delete must be a no-op")
	}
	if err := c.Set(30, 5); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if !durationsEqual(c.Durations(), []uint64{90, 180, 30}) {
		t.Fatalf("unexpected order %v", c.Durations())
	}
	if c.Len() != 3 || c.Percentage(7) != 0 {
		t.Fatalf("unexpected catalog state %+v", c.Options())
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestApyCatalogRejectsInvalidRates(t *testing.T) {
	c, _ := NewApyCatalog()
	if err := c.Set(10, 10_001); !errors.Is(err, ErrPercentageTooHigh) {
		t.Fatalf("expected ErrPercentageTooHigh, got %v", err)
	}
	if err := c.Set(10, 0); !errors.Is(err, ErrInvalidPercentage) {
		t.Fatalf("expected ErrInvalidPercentage, got %v", err)
	}
	if err := c.Set(0, 10); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if err := c.Set(10, MaxApyPercentage); err != nil {
		t.Fatalf("max rate must be accepted: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("rejected entries must not be listed")
	}
}

func TestApyCatalogCloneIsIndependent(t *testing.T) {
	c, _ := NewApyCatalog(ApyOption{Duration: 1, Percentage: 1}, ApyOption{Duration: 2, Percentage: 2})
	clone := c.Clone()
	clone.Delete(1)
	if c.Len() != 2 || c.Percentage(1) != 1 {
		t.Fatalf("mutating the clone changed the original")
	}
}

func TestEngineCatalogAdmin(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.AddOrUpdateApy(f.bob, 10, 60); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.DeleteApy(f.bob, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.AddOrUpdateApy(f.admin, 10, 60); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.engine.AddOrUpdateApy(f.admin, 20, 120); err != nil {
		t.Fatalf("add: %v", err)
	}
	durations, _ := f.engine.ApyDurations()
	if !durationsEqual(durations, []uint64{10, 60, 120}) {
		t.Fatalf("unexpected durations %v", durations)
	}
	if err := f.engine.DeleteApy(f.admin, 60); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.engine.DeleteApy(f.admin, 999); err != nil {
		t.Fatalf("deleting an unknown duration must succeed: %v", err)
	}
	count, _ := f.engine.ApyCount()
	pct, _ := f.engine.ApyPercentage(120)
	table, _ := f.engine.ApyTable()
	if count != 2 || pct != 20 || len(table) != 2 || table[1].Duration != 120 {
		t.Fatalf("unexpected catalog count=%d pct=%d table=%v", count, pct, table)
	}
	if _, err := f.engine.Stake(context.Background(), f.alice, nil, 60); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	f.assertInvariants()
}
