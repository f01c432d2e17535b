// Package listing produces metadata-only directory listings and hash
// manifests for a validated root. File content never appears in either.
package listing

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
	"github.com/fyrsmithlabs/boundaryd/internal/handle"
)

// defaultSkipDirs are never descended into. They hold generated code,
// dependencies, or version control data.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

// SkipDir reports whether a directory name is excluded from walks. The
// search indexer shares this set so listings and search cover the same
// files.
func SkipDir(name string) bool {
	return defaultSkipDirs[name]
}

// Item is one listing row.
type Item struct {
	Path  string `json:"path"` // relative to the listed root
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

// ManifestEntry is one hash/size row.
type ManifestEntry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// List walks canonicalRoot up to depth levels (depth <= 0 is unlimited) and
// returns metadata rows. Exceeding maxItems fails whole rather than
// returning a truncated listing.
func List(canonicalRoot string, depth, maxItems int) ([]Item, error) {
	var items []Item

	err := filepath.WalkDir(canonicalRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(canonicalRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if defaultSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if depth > 0 && pathDepth(rel) >= depth {
				items = append(items, Item{Path: rel, IsDir: true})
				if len(items) > maxItems {
					return errTooMany
				}
				return filepath.SkipDir
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		item := Item{Path: rel, IsDir: d.IsDir()}
		if !d.IsDir() {
			item.Size = info.Size()
		}
		items = append(items, item)
		if len(items) > maxItems {
			return errTooMany
		}
		return nil
	})

	if err != nil {
		if err == errTooMany {
			return nil, fault.New(fault.CodeSizeExceeded,
				"listing exceeds %d items", maxItems)
		}
		return nil, fault.Wrap(fault.CodePathNotFound, err)
	}
	return items, nil
}

// Manifest returns a hash/size row for every regular file under
// canonicalRoot, subject to the same whole-or-nothing item cap.
func Manifest(canonicalRoot string, maxItems int) ([]ManifestEntry, error) {
	var entries []ManifestEntry

	err := filepath.WalkDir(canonicalRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if defaultSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(canonicalRoot, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := handle.Fingerprint(path)
		if err != nil {
			return err
		}
		entries = append(entries, ManifestEntry{Path: rel, Size: info.Size(), SHA256: sum})
		if len(entries) > maxItems {
			return errTooMany
		}
		return nil
	})

	if err != nil {
		if err == errTooMany {
			return nil, fault.New(fault.CodeSizeExceeded,
				"manifest exceeds %d items", maxItems)
		}
		return nil, fault.Wrap(fault.CodePathNotFound, err)
	}
	return entries, nil
}

var errTooMany = &tooManyError{}

type tooManyError struct{}

func (*tooManyError) Error() string { return "too many items" }

func pathDepth(rel string) int {
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}
