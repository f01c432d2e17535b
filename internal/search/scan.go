// Package search answers bounded queries over a validated root. Two modes
// exist: a regex/literal line scanner that reads files directly, and a
// semantic mode backed by the vector index. Both return small, ranked
// result sets rather than streams.
package search

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
	"github.com/fyrsmithlabs/boundaryd/internal/listing"
)

const (
	// maxPatternLength bounds user-supplied patterns.
	maxPatternLength = 1024

	// maxScanFileBytes skips files larger than this during scans.
	maxScanFileBytes = 1 << 20
)

// dangerousGlobChars rejects include patterns that smuggle shell or ReDoS
// constructs. Plain globs never need these.
var dangerousGlobChars = regexp.MustCompile("[;|$`\\\\<>&(){}]|\\.{3,}|\\*{3,}")

// Match is one regex scan hit, a location reference only. Matched line
// content stays behind span_read; only the first match per line is
// reported, so StartLine and EndLine are equal.
type Match struct {
	Path      string `json:"path"` // relative to the scanned root
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Rank      int    `json:"rank"`
}

// ScanOptions tunes a regex scan.
type ScanOptions struct {
	// Literal treats the pattern as a fixed string instead of a regexp.
	Literal bool

	// IncludeGlobs restricts the scan to files matching any glob. Globs
	// match against the relative path and the base name.
	IncludeGlobs []string

	// MaxResults stops the scan once this many matches are found.
	MaxResults int
}

var errScanDone = &scanDoneError{}

type scanDoneError struct{}

func (*scanDoneError) Error() string { return "scan complete" }

// Scan walks canonicalRoot and returns up to opts.MaxResults line matches.
// The walk stops as soon as the result set is full.
func Scan(ctx context.Context, canonicalRoot, pattern string, opts ScanOptions) ([]Match, error) {
	re, err := compilePattern(pattern, opts.Literal)
	if err != nil {
		return nil, err
	}
	if err := validateGlobs(opts.IncludeGlobs); err != nil {
		return nil, err
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = 10
	}

	var matches []Match
	walkErr := filepath.WalkDir(canonicalRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if listing.SkipDir(d.Name()) {
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
		if !globsAllow(opts.IncludeGlobs, rel, d.Name()) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxScanFileBytes {
			return nil
		}

		found, err := scanFile(path, rel, re, limit-len(matches))
		if err != nil {
			// Unreadable or binary files are skipped, not fatal.
			return nil
		}
		matches = append(matches, found...)
		if len(matches) >= limit {
			return errScanDone
		}
		return nil
	})

	if walkErr != nil && walkErr != errScanDone {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, fault.Wrap(fault.CodePathNotFound, walkErr)
	}
	return matches, nil
}

func compilePattern(pattern string, literal bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fault.New(fault.CodePatternInvalid, "pattern is empty")
	}
	if len(pattern) > maxPatternLength {
		return nil, fault.New(fault.CodePatternInvalid,
			"pattern exceeds %d bytes", maxPatternLength)
	}
	if literal {
		pattern = regexp.QuoteMeta(pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fault.New(fault.CodePatternInvalid, "invalid pattern: %v", err)
	}
	return re, nil
}

func validateGlobs(globs []string) error {
	for _, g := range globs {
		if g == "" || len(g) > maxPatternLength {
			return fault.New(fault.CodePatternInvalid, "invalid include pattern %q", g)
		}
		if dangerousGlobChars.MatchString(g) {
			return fault.New(fault.CodePatternInvalid,
				"include pattern %q contains forbidden characters", g)
		}
		if _, err := filepath.Match(g, "probe"); err != nil {
			return fault.New(fault.CodePatternInvalid, "invalid include pattern %q: %v", g, err)
		}
	}
	return nil
}

func globsAllow(globs []string, rel, base string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if ok, _ := filepath.Match(g, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	return false
}

// scanFile reports up to remaining first-match-per-line hits in one file.
// Binary files (NUL in the first block) are rejected.
func scanFile(path, rel string, re *regexp.Regexp, remaining int) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return nil, err
	}
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return nil, nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxScanFileBytes)
	line := 0
	for scanner.Scan() {
		line++
		if !re.MatchString(scanner.Text()) {
			continue
		}
		matches = append(matches, Match{
			Path:      filepath.ToSlash(rel),
			StartLine: line,
			EndLine:   line,
		})
		if len(matches) >= remaining {
			return matches, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
