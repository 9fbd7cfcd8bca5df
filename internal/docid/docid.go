// Package docid generates document identifiers for journal metadata rows.
//
// An identifier is the concatenation of the journal name's pinyin initials,
// the year, the zero-padded issue and a per-initials sequence number:
//
//	生物学, 2022, 1  ->  SWX2022011
//	生物学, 2022, 2  ->  SWX2022022
//
// Sequence numbers are tracked by a Counters table that lives for one run
// only. Nothing is persisted, so identifiers are unique per prefix within a
// single process and may repeat across runs.
package docid

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// NaN is the placeholder the source data uses for a missing issue.
const NaN = "nan"

// Counters maps an initials prefix to the last sequence number issued for it.
// It is owned by exactly one Generator and is not safe for concurrent use.
type Counters struct {
	last map[string]int
}

// NewCounters returns an empty table.
func NewCounters() *Counters {
	return &Counters{last: make(map[string]int)}
}

// Next issues the next sequence number for prefix, starting at 1.
func (c *Counters) Next(prefix string) int {
	seq := c.last[prefix] + 1
	c.last[prefix] = seq
	return seq
}

// Last returns the most recently issued sequence for prefix, or 0.
func (c *Counters) Last(prefix string) int { return c.last[prefix] }

// Len returns the number of distinct prefixes seen.
func (c *Counters) Len() int { return len(c.last) }

// Transliterator turns a name into its initials prefix.
type Transliterator interface {
	Initials(name string) string
}

// Generator produces identifiers. Not safe for concurrent use: callers that
// need to generate from several goroutines must serialise access.
type Generator struct {
	translit Transliterator
	counters *Counters
}

// NewGenerator returns a Generator backed by a fresh Counters table.
func NewGenerator(t Transliterator) *Generator {
	return &Generator{translit: t, counters: NewCounters()}
}

// Counters exposes the generator's table, mostly for reporting and tests.
func (g *Generator) Counters() *Counters { return g.counters }

// Prefix returns the initials prefix for name without consuming a sequence.
func (g *Generator) Prefix(name string) string {
	return g.translit.Initials(name)
}

// Generate builds the identifier for (name, year, issue) and advances the
// counter for the name's prefix.
func (g *Generator) Generate(name, year, issue string) string {
	prefix := g.translit.Initials(name)
	seq := g.counters.Next(prefix)

	var b strings.Builder
	b.Grow(len(prefix) + len(year) + len(issue) + 4)
	b.WriteString(prefix)
	b.WriteString(year)
	b.WriteString(NormalizeIssue(issue))
	b.WriteString(strconv.Itoa(seq))
	return b.String()
}

// NormalizeIssue maps "nan" to "00" and left-pads issues shorter than two
// characters with zeros. Longer values are returned unchanged.
func NormalizeIssue(issue string) string {
	n := utf8.RuneCountInString(issue)
	switch {
	case issue == NaN:
		return "00"
	case n <= 1:
		return strings.Repeat("0", 2-n) + issue
	default:
		return issue
	}
}
