package sqltext

import (
	"sort"
	"strings"
)

// Generator issues an identifier for a (journal name, year, issue) triple.
// *docid.Generator satisfies it.
type Generator interface {
	Generate(name, year, issue string) string
}

// Columns names the source columns the identifier is derived from. Matching
// is a case-insensitive substring test, so "journal_name" also matches
// "t.journal_name".
type Columns struct {
	JournalName string
	Year        string
	Phase       string
}

// DefaultColumns matches the metadata dump layout.
var DefaultColumns = Columns{JournalName: "journal_name", Year: "year", Phase: "phase"}

// Correction replaces Old with New inside the column list of every rewritten
// statement.
type Correction struct {
	Old string
	New string
}

// DefaultCorrections fixes a column name that some dump exports split with a
// stray space.
var DefaultCorrections = []Correction{{Old: "document_ no", New: "document_no"}}

// Options configures a Rewriter. Zero fields take the defaults above and an
// identifier column of `doc_id`.
type Options struct {
	IDColumn    string
	Columns     Columns
	Corrections []Correction
}

// Rewriter adds a generated identifier column to INSERT statements.
// It is not safe for concurrent use because its Generator is not.
type Rewriter struct {
	gen         Generator
	idColumn    string
	cols        Columns
	corrections []Correction
}

// NewRewriter returns a Rewriter that draws identifiers from gen.
func NewRewriter(gen Generator, opts Options) *Rewriter {
	if opts.IDColumn == "" {
		opts.IDColumn = "`doc_id`"
	}
	if opts.Columns == (Columns{}) {
		opts.Columns = DefaultColumns
	}
	if opts.Corrections == nil {
		opts.Corrections = DefaultCorrections
	}
	return &Rewriter{
		gen:         gen,
		idColumn:    opts.IDColumn,
		cols:        lowerColumns(opts.Columns),
		corrections: opts.Corrections,
	}
}

// CorrectionsFromMap converts a config map into a deterministic slice,
// longest match first so overlapping keys apply predictably.
func CorrectionsFromMap(m map[string]string) []Correction {
	out := make([]Correction, 0, len(m))
	for k, v := range m {
		out = append(out, Correction{Old: k, New: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Old) != len(out[j].Old) {
			return len(out[i].Old) > len(out[j].Old)
		}
		return out[i].Old < out[j].Old
	})
	return out
}

// Rewrite parses stmt, derives its identifier and returns the statement with
// the identifier column and value prepended to the column and value lists.
// Text outside the two insertion points is preserved, except for the
// configured corrections inside the column list.
//
// A statement that cannot be rewritten returns a *SkipError. The generator is
// only called once every check has passed, so skipped statements never
// consume a sequence number.
func (r *Rewriter) Rewrite(stmt string) (string, error) {
	ins, err := Parse(stmt)
	if err != nil {
		return "", err
	}
	id, err := r.identify(ins)
	if err != nil {
		return "", err
	}
	return r.splice(ins, id), nil
}

// Fields extracts the cleaned journal name, year and phase from a parsed
// statement without generating anything.
func (r *Rewriter) Fields(ins *Insert) (name, year, phase string, err error) {
	if len(ins.Columns) != len(ins.Values) {
		return "", "", "", skip(ins.Text, ReasonFieldCountMismatch, "%d columns vs %d values", len(ins.Columns), len(ins.Values))
	}

	nameIdx, yearIdx, phaseIdx := -1, -1, -1
	for i, c := range ins.Columns {
		col := strings.ToLower(c)
		// One role per column, checked in this order; a later column
		// matching the same role replaces an earlier one.
		switch {
		case strings.Contains(col, r.cols.JournalName):
			nameIdx = i
		case strings.Contains(col, r.cols.Year):
			yearIdx = i
		case strings.Contains(col, r.cols.Phase):
			phaseIdx = i
		}
	}

	var missing []string
	if nameIdx < 0 {
		missing = append(missing, r.cols.JournalName)
	}
	if yearIdx < 0 {
		missing = append(missing, r.cols.Year)
	}
	if phaseIdx < 0 {
		missing = append(missing, r.cols.Phase)
	}
	if len(missing) > 0 {
		return "", "", "", skip(ins.Text, ReasonMissingRequiredColumn, "missing %s", strings.Join(missing, ", "))
	}

	name = CleanValue(ins.Values[nameIdx])
	year = CleanValue(ins.Values[yearIdx])
	phase = CleanValue(ins.Values[phaseIdx])
	if name == "" || year == "" {
		return "", "", "", skip(ins.Text, ReasonEmptyRequiredValue, "%s or %s is empty", r.cols.JournalName, r.cols.Year)
	}
	return name, year, phase, nil
}

func (r *Rewriter) identify(ins *Insert) (string, error) {
	name, year, phase, err := r.Fields(ins)
	if err != nil {
		return "", err
	}
	return r.gen.Generate(name, year, phase), nil
}

func (r *Rewriter) splice(ins *Insert, id string) string {
	s := ins.Text
	cols := s[ins.ColumnsOpen+1 : ins.ColumnsClose]
	for _, c := range r.corrections {
		cols = strings.ReplaceAll(cols, c.Old, c.New)
	}

	var b strings.Builder
	b.Grow(len(s) + len(r.idColumn) + len(id) + 8)
	b.WriteString(s[:ins.ColumnsOpen+1])
	b.WriteString(r.idColumn)
	b.WriteString(", ")
	b.WriteString(cols)
	b.WriteString(s[ins.ColumnsClose : ins.ValuesOpen+1])
	b.WriteByte('\'')
	b.WriteString(strings.ReplaceAll(id, "'", "''"))
	b.WriteString("', ")
	b.WriteString(s[ins.ValuesOpen+1:])
	return b.String()
}

// CleanValue strips one pair of surrounding single quotes and trims space.
// A bare NULL becomes "".
func CleanValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "NULL") {
		return ""
	}
	v = strings.TrimPrefix(v, "'")
	v = strings.TrimSuffix(v, "'")
	return strings.TrimSpace(v)
}

func lowerColumns(c Columns) Columns {
	return Columns{
		JournalName: strings.ToLower(c.JournalName),
		Year:        strings.ToLower(c.Year),
		Phase:       strings.ToLower(c.Phase),
	}
}
