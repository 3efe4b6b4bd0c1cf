package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauseTable(t *testing.T) {
	pauses := StaticPauses{"staking": true}
	if err := Guard(pauses, "staking"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "token"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	if err := Guard(nil, "staking"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	if err := Guard(StaticPauses(nil), "staking"); err != nil {
		t.Fatalf("empty table must not block: %v", err)
	}
}

func TestGuardHonoursGlobalHalt(t *testing.T) {
	err := Guard(StaticPauses{AllModules: true}, "staking")
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err.Error() != "module paused: staking (global halt)" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestReentrancyGuardRejectsNestedEntry(t *testing.T) {
	var g ReentrancyGuard
	release, err := g.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !g.Held() {
		t.Fatalf("expected guard to be held")
	}
	if _, err := g.Enter(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	release()
	if g.Held() {
		t.Fatalf("expected guard to be released")
	}
	release, err = g.Enter()
	if err != nil {
		t.Fatalf("re-enter after release: %v", err)
	}
	release()
}

func TestReentrancyGuardReleasedOnPanic(t *testing.T) {
	var g ReentrancyGuard
	func() {
		defer func() { _ = recover() }()
		release, err := g.Enter()
		if err != nil {
			t.Fatalf("enter: %v", err)
		}
		defer release()
		panic("boom")
	}()
	if g.Held() {
		t.Fatalf("guard leaked after panic")
	}
}
