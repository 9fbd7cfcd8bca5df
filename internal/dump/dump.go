// Package dump streams a SQL dump line by line, keeps the lines that look
// like single INSERT statements and hands them to a rewriter. All rewriting
// happens on the calling goroutine, so the identifier counters are touched
// from one place only.
package dump

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"docfill/internal/logging"
	"docfill/internal/sqltext"
)

// DefaultMaxLineBytes bounds a single dump line. Extended-insert dumps put a
// whole table on one line, so the bufio default of 64 KiB is far too small.
const DefaultMaxLineBytes = 64 << 20

const readBufferSize = 64 << 10

// Rewriter is satisfied by *sqltext.Rewriter.
type Rewriter interface {
	Rewrite(stmt string) (string, error)
}

// Options tunes Rewrite.
type Options struct {
	// SkipDuplicates drops byte-identical statements after the first.
	SkipDuplicates bool
	// MaxLineBytes bounds a line; longer lines are skipped as
	// sqltext.ReasonLineTooLong.
	MaxLineBytes int
	Logger       *zap.Logger
}

// Report counts what happened to the dump's lines.
type Report struct {
	Lines      int // lines read
	Candidates int // lines accepted by sqltext.IsInsertLine
	Duplicates int
	Accepted   int // statements rewritten
	Skipped    map[sqltext.Reason]int
}

// SkippedTotal sums Skipped over every reason.
func (r Report) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// Rewrite reads r to EOF and returns the rewritten statements in dump order.
// Statements the rewriter rejects and lines over MaxLineBytes are logged and
// counted per reason; they never abort the scan. I/O errors and cancellation
// do.
func Rewrite(ctx context.Context, r io.Reader, rw Rewriter, opts Options) ([]string, Report, error) {
	log := logging.OrNop(opts.Logger)
	maxLine := opts.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}

	rep := Report{Skipped: map[sqltext.Reason]int{}}
	var dedup *sqltext.Dedup
	if opts.SkipDuplicates {
		dedup = sqltext.NewDedup()
	}

	var out []string
	br := bufio.NewReaderSize(r, readBufferSize)
	for {
		raw, tooLong, err := readLine(br, maxLine)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, rep, fmt.Errorf("read dump after line %d: %w", rep.Lines, err)
		}
		rep.Lines++
		if rep.Lines%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return out, rep, err
			}
			log.Info("dump progress", zap.Int("lines", rep.Lines), zap.Int("accepted", rep.Accepted))
		}
		if tooLong {
			rep.Skipped[sqltext.ReasonLineTooLong]++
			log.Warn("line skipped", zap.Int("line", rep.Lines),
				zap.String("reason", string(sqltext.ReasonLineTooLong)), zap.Int("max_line_bytes", maxLine))
			continue
		}

		line := strings.TrimSpace(string(raw))
		if !sqltext.IsInsertLine(line) {
			continue
		}
		rep.Candidates++
		if dedup != nil && dedup.Seen(line) {
			rep.Duplicates++
			continue
		}

		stmt, err := rw.Rewrite(line)
		if err != nil {
			reason, ok := sqltext.ReasonOf(err)
			if !ok {
				return out, rep, fmt.Errorf("line %d: %w", rep.Lines, err)
			}
			rep.Skipped[reason]++
			log.Info("statement skipped", zap.Int("line", rep.Lines), zap.String("reason", string(reason)), zap.Error(err))
			continue
		}
		rep.Accepted++
		out = append(out, stmt)
	}
	return out, rep, ctx.Err()
}

// readLine returns the next line without its "\n" or "\r\n" terminator. A
// line longer than maxLine is read through to its end and discarded, and
// tooLong is set. io.EOF is returned only when no bytes remain.
func readLine(br *bufio.Reader, maxLine int) ([]byte, bool, error) {
	var (
		buf     []byte
		tooLong bool
		read    bool
	)
	for {
		frag, err := br.ReadSlice('\n')
		read = read || len(frag) > 0
		partial := errors.Is(err, bufio.ErrBufferFull)
		if !tooLong {
			buf = append(buf, frag...)
			limit := maxLine
			if partial {
				// A trailing '\r' may still turn out to be part of "\r\n".
				limit++
			}
			if len(trimEOL(buf)) > limit {
				tooLong, buf = true, nil
			}
		}
		switch {
		case partial:
			continue
		case errors.Is(err, io.EOF) && read:
			return trimEOL(buf), tooLong, nil
		case err != nil:
			return nil, false, err
		}
		return trimEOL(buf), tooLong, nil
	}
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
		if n := len(b); n > 0 && b[n-1] == '\r' {
			b = b[:n-1]
		}
	}
	return b
}
