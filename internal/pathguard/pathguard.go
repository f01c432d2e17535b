// Package pathguard resolves caller-supplied paths against a session's
// capability roots. Roots are recanonicalized on every check so a root that
// becomes a symlink to somewhere else after roots.set is still caught.
package pathguard

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// CanonicalizeRoot validates a directory intended to become a capability root.
// The returned path is absolute with all symlinks resolved.
func CanonicalizeRoot(path string) (string, error) {
	if path == "" {
		return "", fault.New(fault.CodePathNotFound, "root path is empty")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fault.Wrap(fault.CodePathNotFound, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fault.New(fault.CodePathNotFound, "root does not exist: %s", path)
		}
		return "", fault.Wrap(fault.CodePathNotFound, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fault.Wrap(fault.CodePathNotFound, err)
	}
	if !info.IsDir() {
		return "", fault.New(fault.CodePathNotFound, "root is not a directory: %s", path)
	}

	return resolved, nil
}

// Validate resolves path against the given roots and returns its canonical
// form. Relative paths are resolved against each root in order; absolute
// paths must land under some root after symlink resolution.
//
// Fails ROOT_ESCAPE when the canonical path lies under no root, and
// PATH_NOT_FOUND when the target does not exist under any root.
func Validate(path string, roots []string) (string, error) {
	if path == "" {
		return "", fault.New(fault.CodePathNotFound, "path is empty")
	}
	if len(roots) == 0 {
		return "", fault.New(fault.CodeRootEscape, "session has no roots")
	}

	// Textual traversal is rejected outright, before the filesystem is
	// consulted. Cleaning first would hide sequences like "a/../../b".
	if containsTraversal(path) {
		return "", fault.New(fault.CodeRootEscape, "path contains directory traversal: %s", path)
	}

	notFound := false
	for _, root := range roots {
		// Recompute the root's canonical form at check time, not at
		// roots.set time, so root symlink changes are caught.
		canonRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			continue
		}

		candidate := path
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(canonRoot, candidate)
		}

		resolved, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				notFound = true
			}
			continue
		}

		if contained(canonRoot, resolved) {
			return resolved, nil
		}
	}

	if notFound {
		return "", fault.New(fault.CodePathNotFound, "path does not exist: %s", path)
	}
	return "", fault.New(fault.CodeRootEscape, "path escapes allowed roots: %s", path)
}

// Contained reports whether the canonical path still lies under one of the
// roots, recanonicalizing each root. Used to re-validate handles at use time.
func Contained(canonicalPath string, roots []string) bool {
	for _, root := range roots {
		canonRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			continue
		}
		if contained(canonRoot, canonicalPath) {
			return true
		}
	}
	return false
}

func containsTraversal(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// contained checks prefix membership of path under root using filepath.Rel,
// which avoids the "/srv/data" vs "/srv/database" prefix trap.
func contained(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
