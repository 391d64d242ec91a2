package static

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstall(t *testing.T) {
	dataHome := t.TempDir()

	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_DATA_HOME", dataHome)
	xdg.Reload()

	assert.Empty(t, IconPath("lifetrack"))

	require.NoError(t, Install("lifetrack"))

	icon := filepath.Join(dataHome, "lifetrack", iconName)
	assert.Equal(t, icon, IconPath("lifetrack"))

	require.NoError(t, os.WriteFile(icon, []byte("custom"), 0o600))
	require.NoError(t, Install("lifetrack"))

	b, err := os.ReadFile(icon)
	require.NoError(t, err)
	assert.Equal(t, "custom", string(b), "existing files are kept")
}
