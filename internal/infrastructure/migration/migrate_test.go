package migration

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textile/backend/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, ident, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_documents", ident)

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestEmbeddedMigrations_Paired(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations.FS, "*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestNewWithSource_BadSource(t *testing.T) {
	_, err := NewWithSource(nil, fstest.MapFS{"readme.txt": {Data: []byte("x")}}, nil)
	assert.ErrorContains(t, err, "migration source")
}
