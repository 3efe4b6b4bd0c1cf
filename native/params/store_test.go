package params

import (
	"errors"
	"testing"

	nativecommon "stakevault/native/common"
	"stakevault/storage"
)

func TestStorePersistsPauses(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)
	if store.IsPaused("staking") {
		t.Fatalf("modules start unpaused")
	}
	if err := store.SetPaused("staking", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := nativecommon.Guard(store, "staking"); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}

	reopened := NewStore(db)
	modules, err := reopened.PausedModules()
	if err != nil {
		t.Fatalf("paused modules: %v", err)
	}
	if len(modules) != 1 || modules[0] != "staking" {
		t.Fatalf("expected staking to stay paused, got %v", modules)
	}
	if err := reopened.SetPaused("staking", false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if reopened.IsPaused("staking") {
		t.Fatalf("expected staking resumed")
	}
}

func TestStoreRejectsCorruptPayload(t *testing.T) {
	db := storage.NewMemDB()
	if err := db.Put([]byte(pausesKey), []byte("{not json")); err != nil {
		t.Fatalf("put: %v", err)
	}
	store := NewStore(db)
	if _, err := store.Pauses(); err == nil {
		t.Fatalf("expected decode error")
	}
	if !store.IsPaused("staking") {
		t.Fatalf("unreadable pauses must fail closed")
	}
}
