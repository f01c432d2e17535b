package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// tempDirClean returns a TempDir with symlinks resolved, so assertions on
// canonical paths hold on macOS where /tmp is itself a symlink.
func tempDirClean(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	real, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return real
	}
	return dir
}

func mustSymlink(t *testing.T, oldname, newname string) {
	t.Helper()
	if err := os.Symlink(oldname, newname); err != nil {
		if os.IsPermission(err) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOTSUP) {
			t.Skipf("symlink unsupported: %v", err)
		}
		t.Fatalf("symlink: %v", err)
	}
}

func TestCanonicalizeRoot(t *testing.T) {
	root := tempDirClean(t)

	got, err := CanonicalizeRoot(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	_, err = CanonicalizeRoot(filepath.Join(root, "missing"))
	assert.Equal(t, fault.CodePathNotFound, fault.CodeOf(err))

	file := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = CanonicalizeRoot(file)
	assert.Equal(t, fault.CodePathNotFound, fault.CodeOf(err))
}

func TestValidate(t *testing.T) {
	root := tempDirClean(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	inside := filepath.Join(root, "src", "a.py")
	require.NoError(t, os.WriteFile(inside, []byte("print('a')\n"), 0o644))

	outside := tempDirClean(t)
	escapee := filepath.Join(outside, "passwd")
	require.NoError(t, os.WriteFile(escapee, []byte("secret"), 0o644))

	tests := []struct {
		name     string
		path     string
		roots    []string
		wantCode fault.Code
		want     string
	}{
		{"relative inside root", "src/a.py", []string{root}, "", inside},
		{"absolute inside root", inside, []string{root}, "", inside},
		{"textual traversal", "../passwd", []string{root}, fault.CodeRootEscape, ""},
		{"nested traversal", "src/../../passwd", []string{root}, fault.CodeRootEscape, ""},
		{"absolute escape", escapee, []string{root}, fault.CodeRootEscape, ""},
		{"missing file", "src/missing.py", []string{root}, fault.CodePathNotFound, ""},
		{"no roots", "src/a.py", nil, fault.CodeRootEscape, ""},
		{"second root matches", "a.py", []string{outside, filepath.Join(root, "src")}, "", inside},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.path, tt.roots)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, fault.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSymlinkEscape(t *testing.T) {
	root := tempDirClean(t)
	outside := tempDirClean(t)

	target := filepath.Join(outside, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("outside"), 0o644))
	mustSymlink(t, target, filepath.Join(root, "link.txt"))

	_, err := Validate("link.txt", []string{root})
	assert.Equal(t, fault.CodeRootEscape, fault.CodeOf(err))
}

func TestValidateRootSymlinkRecheckedAtUse(t *testing.T) {
	base := tempDirClean(t)
	realRoot := filepath.Join(base, "real")
	require.NoError(t, os.MkdirAll(realRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(realRoot, "f.txt"), []byte("ok"), 0o644))

	linkRoot := filepath.Join(base, "root")
	mustSymlink(t, realRoot, linkRoot)

	// Root set through a symlink: file resolves fine.
	got, err := Validate("f.txt", []string{linkRoot})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(realRoot, "f.txt"), got)

	// Repoint the root symlink elsewhere; the old canonical path must no
	// longer validate through this root.
	elsewhere := filepath.Join(base, "elsewhere")
	require.NoError(t, os.MkdirAll(elsewhere, 0o755))
	require.NoError(t, os.Remove(linkRoot))
	mustSymlink(t, elsewhere, linkRoot)

	assert.False(t, Contained(filepath.Join(realRoot, "f.txt"), []string{linkRoot}))
}

func TestContained(t *testing.T) {
	root := tempDirClean(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))

	assert.True(t, Contained(filepath.Join(root, "sub"), []string{root}))
	assert.True(t, Contained(root, []string{root}))
	assert.False(t, Contained(filepath.Dir(root), []string{root}))

	// Sibling with a shared name prefix must not count as contained.
	sibling := root + "x"
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	defer os.RemoveAll(sibling)
	assert.False(t, Contained(sibling, []string{root}))
}
