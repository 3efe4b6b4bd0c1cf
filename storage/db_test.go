package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	level, err := NewLevelDB(filepath.Join(t.TempDir(), "level"))
	require.NoError(t, err)
	bolt, err := NewBoltDB(filepath.Join(t.TempDir(), "vault.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		level.Close()
		bolt.Close()
	})
	return map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": level,
		"bolt":    bolt,
	}
}

func TestDatabaseBasicOperations(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			require.NoError(t, db.Put([]byte("a"), []byte("1")))
			value, err := db.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("1"), value)

			ok, err := db.Has([]byte("a"))
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, db.Delete([]byte("a")))
			ok, err = db.Has([]byte("a"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDatabaseBatchAndIterate(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("acct/stale"), []byte("x")))

			batch := db.NewBatch()
			batch.Put([]byte("acct/b"), []byte("2"))
			batch.Put([]byte("acct/a"), []byte("1"))
			batch.Put([]byte("vault"), []byte("v"))
			batch.Delete([]byte("acct/stale"))
			require.Equal(t, 4, batch.Len())

			ok, err := db.Has([]byte("acct/a"))
			require.NoError(t, err)
			require.False(t, ok, "batch must not apply before Write")

			require.NoError(t, batch.Write())

			var keys []string
			require.NoError(t, db.Iterate([]byte("acct/"), func(key, value []byte) bool {
				keys = append(keys, string(key))
				return true
			}))
			require.Equal(t, []string{"acct/a", "acct/b"}, keys)

			var first []string
			require.NoError(t, db.Iterate([]byte("acct/"), func(key, value []byte) bool {
				first = append(first, string(key))
				return false
			}))
			require.Len(t, first, 1)
		})
	}
}
