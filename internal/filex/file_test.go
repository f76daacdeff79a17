package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsurePrivateDir_RelativeToCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsurePrivateDir("journal")
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(filepath.Join(tmp, "journal"))
	require.NoError(t, err)
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	require.Equal(t, want, gotResolved)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm())
	}
}

func TestEnsurePrivateDir_NestedAndIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	first, err := EnsurePrivateDir(dir)
	require.NoError(t, err)

	second, err := EnsurePrivateDir(dir)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, dir, first)
}

func TestEnsurePrivateDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "journal")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := EnsurePrivateDir(path)
	require.Error(t, err, "should fail when a file exists with the same name")
}
