package handle

import (
	"bufio"
	"os"
	"strings"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// ReadSpan returns the inclusive line range [startLine, endLine] of the
// handle's file. Both the line-count and byte-count bounds are enforced
// before anything is returned; a violating request fails SPAN_TOO_LARGE with
// no partial output. The handle's fingerprint is re-checked first.
func (t *Table) ReadSpan(id string, startLine, endLine int) (string, error) {
	h, err := t.Get(id)
	if err != nil {
		return "", err
	}

	if startLine < 1 || endLine < startLine {
		return "", fault.New(fault.CodeSpanTooLarge,
			"invalid span [%d, %d]", startLine, endLine)
	}
	if lines := endLine - startLine + 1; lines > t.limits.MaxSpanLines {
		return "", fault.New(fault.CodeSpanTooLarge,
			"span is %d lines, ceiling is %d", lines, t.limits.MaxSpanLines)
	}

	if err := t.verifyFresh(h); err != nil {
		return "", err
	}

	text, err := readLines(h.Path, startLine, endLine)
	if err != nil {
		return "", err
	}
	if len(text) > t.limits.MaxSpanBytes {
		return "", fault.New(fault.CodeSpanTooLarge,
			"span is %d bytes, ceiling is %d", len(text), t.limits.MaxSpanBytes)
	}
	return text, nil
}

// ReadChunk serves a chunk's range under the same bounds as ReadSpan.
func (t *Table) ReadChunk(chunkID string) (string, error) {
	c, err := t.GetChunk(chunkID)
	if err != nil {
		return "", err
	}
	return t.ReadSpan(c.HandleID, c.StartLine, c.EndLine)
}

// CountLines returns the number of lines in the handle's file. A trailing
// newline does not start an extra empty line.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fault.Wrap(fault.CodePathNotFound, err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

func readLines(path string, startLine, endLine int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fault.Wrap(fault.CodePathNotFound, err)
	}
	defer f.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if line < startLine {
			continue
		}
		if line > endLine {
			break
		}
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	// An empty file reads as an empty span; a start past EOF is an error.
	if line < startLine && startLine > 1 {
		return "", fault.New(fault.CodeSpanTooLarge,
			"span starts at line %d but file has %d lines", startLine, line)
	}
	return sb.String(), nil
}
