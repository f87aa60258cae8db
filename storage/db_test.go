package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T, db Database) {
	t.Helper()

	_, exists, err := db.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, exists, "missing key must not exist")

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	value, exists, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, []byte("v1"), value)

	has, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, db.Put([]byte("k"), []byte("v2")))
	value, _, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value, "put must overwrite")

	require.NoError(t, db.Delete([]byte("k")))
	_, exists, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, exists, "deleted key must not exist")

	require.NoError(t, db.Delete([]byte("k")), "double delete is a no-op")
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	testDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer db.Close()
	testDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("original")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	stored, _, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), stored, "store must not alias caller buffers")

	stored[0] = 'Y'
	again, _, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again, "reads must not alias the store")
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	reopened, err := NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, exists, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, []byte("v"), value)
}
