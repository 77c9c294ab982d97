package sqlite

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMigrateURL(t *testing.T) {
	u, err := BuildMigrateURL("data/app.db")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "sqlite:///"))
	assert.True(t, strings.HasSuffix(u, "/data/app.db"))

	if runtime.GOOS != "windows" {
		u, err = BuildMigrateURL("/tmp/x.db")
		require.NoError(t, err)
		assert.Equal(t, "sqlite:///tmp/x.db", u)
	}
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")

	version, dirty, err := GetMigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, ApplyMigrations(path))
	require.NoError(t, ApplyMigrations(path))

	version, dirty, err = GetMigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestNewTestDB_HasSchema(t *testing.T) {
	tdb := NewTestDB(t)
	assert.True(t, tdb.TableExists(t, "kv"))
	assert.Equal(t, 0, tdb.CountRows(t, "kv"))
}
