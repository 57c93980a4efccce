// Package logtail finds the most recent matching line of an access log
// without reading the whole file, per spec.md §4.B: read backwards from
// EOF in fixed-size chunks, stop at the first complete line (newest
// first) that contains the filter substring, then parse its nginx-style
// timestamp.
package logtail

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

const (
	// chunkSize is how much we read per backward seek.
	chunkSize = 64 * 1024
	// maxScanBytes bounds how far back we'll look before giving up, so a
	// site with a filter that never matches can't turn every idle check
	// into a full-file scan.
	maxScanBytes = 8 * 1024 * 1024
)

// timestampPattern matches the bracketed nginx combined-log timestamp,
// e.g. "[29/Jul/2026:10:15:03 +0000]".
var timestampPattern = regexp.MustCompile(`\[(\d{2}/[A-Za-z]{3}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4})\]`)

const timestampLayout = "02/Jan/2006:15:04:05 -0700"

// Tailer reads access logs backwards from disk.
type Tailer struct{}

// New returns a Tailer.
func New() *Tailer {
	return &Tailer{}
}

// MostRecentActivity returns the timestamp of the newest line in path
// that contains filter (or the newest line at all, if filter is empty).
// The bool return is false when no matching line was found within the
// byte budget; this is not an error.
func (t *Tailer) MostRecentActivity(path, filter string) (time.Time, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false, &domain.LogIOError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return time.Time{}, false, &domain.LogIOError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return time.Time{}, false, nil
	}

	line, found, err := scanBackwards(f, info.Size(), filter)
	if err != nil {
		return time.Time{}, false, &domain.LogIOError{Path: path, Err: err}
	}
	if !found {
		return time.Time{}, false, nil
	}

	ts, err := parseTimestamp(line)
	if err != nil {
		return time.Time{}, false, &domain.LogParseError{Line: string(line), Err: err}
	}
	return ts, true, nil
}

// scanBackwards reads size-bounded chunks from the end of f, accumulating
// a trailing buffer, and walks complete lines newest-first looking for
// one containing filter. It returns the first such line.
func scanBackwards(f *os.File, size int64, filter string) ([]byte, bool, error) {
	var tail []byte
	pos := size
	scanned := int64(0)
	needle := []byte(filter)

	for pos > 0 && scanned < maxScanBytes {
		readSize := int64(chunkSize)
		if readSize > pos {
			readSize = pos
		}
		pos -= readSize
		scanned += readSize

		buf := make([]byte, readSize)
		if _, err := f.ReadAt(buf, pos); err != nil && err != io.EOF {
			return nil, false, err
		}
		tail = append(buf, tail...)

		// Walk complete lines within what we've buffered so far,
		// newest first. A line is "complete" once we've either hit
		// the start of the buffer (pos == 0, so there's nothing more
		// before it) or found its leading '\n'.
		lines := splitLinesReverse(tail, pos == 0)
		for _, line := range lines {
			if len(needle) == 0 || bytes.Contains(line, needle) {
				return line, true, nil
			}
		}

		// Keep only what comes before the earliest complete line we
		// just scanned, since we re-derive complete lines from tail
		// on every iteration as more bytes arrive on the left.
		if idx := bytes.IndexByte(tail, '\n'); idx >= 0 && pos != 0 {
			tail = tail[:idx]
		}
	}

	return nil, false, nil
}

// splitLinesReverse returns the complete, newline-stripped lines found in
// buf, newest (rightmost) first. When atStart is true the first byte of
// buf is treated as the start of a line even without a preceding '\n'.
func splitLinesReverse(buf []byte, atStart bool) [][]byte {
	trimmed := bytes.TrimRight(buf, "\n")
	if len(trimmed) == 0 {
		return nil
	}

	var lines [][]byte
	rest := trimmed
	for {
		idx := bytes.LastIndexByte(rest, '\n')
		if idx < 0 {
			if atStart {
				lines = append(lines, rest)
			}
			break
		}
		lines = append(lines, rest[idx+1:])
		rest = rest[:idx]
	}
	return lines
}

func parseTimestamp(line []byte) (time.Time, error) {
	m := timestampPattern.FindSubmatch(line)
	if m == nil {
		return time.Time{}, &timestampNotFoundError{}
	}
	return time.Parse(timestampLayout, string(m[1]))
}

type timestampNotFoundError struct{}

func (e *timestampNotFoundError) Error() string {
	return "logtail: no nginx-style timestamp found in matched line"
}
