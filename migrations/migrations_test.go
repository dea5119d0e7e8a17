package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgist/internal/migrate"
)

func TestEmbeddedMigrationsLoad(t *testing.T) {
	files, err := migrate.Discover(FS, ".")
	require.NoError(t, err)

	require.Len(t, files, 3)
	assert.Equal(t, []string{"20250309152556", "20250309153536", "20250309154340"},
		[]string{files[0].ID, files[1].ID, files[2].ID})

	for _, f := range files {
		fn, err := migrate.DefaultLoader{}.Load(FS, f)
		require.NoError(t, err, f.Path)
		assert.NotNil(t, fn, f.Path)
	}
}
