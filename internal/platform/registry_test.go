package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platforms:
  - name: instagram
    dataset: gd_instagram
    mode: keyword
    fetch_limit: 100
  - name: reddit
    dataset: gd_reddit
`), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	ig, ok := reg.Get("instagram")
	require.True(t, ok)
	assert.Equal(t, "gd_instagram", ig.Dataset)
	assert.Equal(t, ModeKeyword, ig.Mode)
	assert.Equal(t, 100, ig.FetchLimit)

	// Missing mode and fetch limit are defaulted.
	rd, ok := reg.Get("reddit")
	require.True(t, ok)
	assert.Equal(t, ModeSearch, rd.Mode)
	assert.Equal(t, 50, rd.FetchLimit)

	assert.ElementsMatch(t, []string{"instagram", "reddit"}, reg.Names())
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRegistry_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platforms: {not a list"), 0o644))

	_, err := LoadRegistry(path)
	require.Error(t, err)
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry(Spec{Name: "x", Dataset: "gd_x"})
	_, ok := reg.Get("threads")
	assert.False(t, ok)
}
