package sqltext

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// IsInsertLine reports whether a dump line is a candidate INSERT statement:
// non-blank, not a "--" comment, containing INSERT INTO (any case) and
// terminated by ';'. line is expected to be trimmed already.
func IsInsertLine(line string) bool {
	if line == "" || strings.HasPrefix(line, "--") {
		return false
	}
	if !strings.HasSuffix(line, ";") {
		return false
	}
	return strings.Contains(strings.ToUpper(line), "INSERT INTO")
}

// Dedup remembers statements by their 64-bit xxh3 hash. Two different
// statements colliding on the hash is treated as a duplicate; at dump sizes
// this is far below any realistic concern.
type Dedup struct {
	seen map[uint64]struct{}
}

// NewDedup returns an empty Dedup.
func NewDedup() *Dedup { return &Dedup{seen: make(map[uint64]struct{})} }

// Seen records stmt and reports whether it had been recorded before.
func (d *Dedup) Seen(stmt string) bool {
	h := xxh3.HashString(stmt)
	if _, ok := d.seen[h]; ok {
		return true
	}
	d.seen[h] = struct{}{}
	return false
}

// Len returns the number of distinct statements recorded.
func (d *Dedup) Len() int { return len(d.seen) }
