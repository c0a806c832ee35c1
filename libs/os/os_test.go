package os_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	arvoos "github.com/arvo-net/arvo/libs/os"
)

func TestFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "present")

	require.False(t, arvoos.FileExists(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.True(t, arvoos.FileExists(path))
	require.True(t, arvoos.FileExists(filepath.Dir(path)))
}
