// Package sqltext parses and rewrites single-row INSERT statements found in
// SQL dump files.
//
// Only this shape is understood:
//
//	INSERT [IGNORE] INTO name ( col, ... ) VALUES ( val, ... ) [trailing] [;]
//
// Parsing is done over tokens, so commas and parentheses inside quoted
// literals never split fields, and nested calls such as NOW() stay inside one
// value. Byte offsets of the structural parentheses are recorded so that a
// rewrite can splice text in without disturbing anything else.
package sqltext

import (
	"strings"
)

// Insert is a parsed single-row INSERT statement. Offsets index into Text.
type Insert struct {
	Text  string
	Table string

	ColumnsOpen   int // '(' opening the column list
	ColumnsClose  int // ')' closing the column list
	ValuesKeyword int // start of VALUES
	ValuesOpen    int // '(' opening the value list
	ValuesClose   int // ')' closing the value list

	// Columns are the column names with quoting removed and whitespace
	// collapsed. Values are the raw value texts, quotes included.
	Columns []string
	Values  []string
}

// Parse parses stmt. A statement that does not fit the supported shape
// returns a *SkipError describing the first problem found.
func Parse(stmt string) (*Insert, error) {
	p := &parser{lex: newLexer(stmt), src: stmt}
	p.advance()

	if !p.keyword("INSERT") {
		return nil, skip(stmt, ReasonNotInsert, "")
	}
	p.advance()
	for p.keyword("IGNORE") || p.keyword("LOW_PRIORITY") || p.keyword("HIGH_PRIORITY") || p.keyword("DELAYED") {
		p.advance()
	}
	if !p.keyword("INTO") {
		return nil, skip(stmt, ReasonNotInsert, "missing INTO")
	}
	p.advance()

	ins := &Insert{Text: stmt}

	tableStart, tableEnd := -1, -1
	for p.isTableNamePart() {
		if tableStart < 0 {
			tableStart = p.tok.start
		}
		tableEnd = p.tok.end
		p.advance()
	}
	if tableStart >= 0 {
		ins.Table = stmt[tableStart:tableEnd]
	}

	if p.tok.kind != tokLParen {
		return nil, skip(stmt, ReasonMalformedNoColumnsOrValues, "no column list")
	}
	ins.ColumnsOpen = p.tok.start
	p.advance()

	cols, end, ok := p.list()
	if !ok {
		return nil, skip(stmt, ReasonMalformedNoColumnsOrValues, "column list not closed")
	}
	ins.ColumnsClose = end.start
	p.advance()

	if !p.keyword("VALUES") && !p.keyword("VALUE") {
		return nil, skip(stmt, ReasonMalformedNoColumnsOrValues, "no VALUES keyword")
	}
	ins.ValuesKeyword = p.tok.start
	p.advance()

	if p.tok.kind != tokLParen {
		return nil, skip(stmt, ReasonMalformedNoValuesOpenParen, "")
	}
	ins.ValuesOpen = p.tok.start
	p.advance()

	vals, end, ok := p.list()
	if !ok {
		return nil, skip(stmt, ReasonMalformedValuesCloseParen, "")
	}
	ins.ValuesClose = end.start
	p.advance()

	if p.tok.kind == tokComma {
		return nil, skip(stmt, ReasonMultipleRows, "")
	}

	ins.Columns = make([]string, len(cols))
	for i, c := range cols {
		ins.Columns[i] = cleanColumn(c)
	}
	ins.Values = vals
	return ins, nil
}

// SplitValues splits the inside of a value list on top-level commas. Each
// element keeps its original text (quotes included) with surrounding space
// trimmed, so "'a,b', 'c'" yields ["'a,b'", "'c'"].
func SplitValues(list string) []string {
	// Appending a sentinel ')' lets list() terminate on the same rule Parse
	// uses, without special-casing EOF.
	p := &parser{lex: newLexer(list + ")"), src: list + ")"}
	p.advance()
	items, _, ok := p.list()
	if !ok {
		// Unbalanced input: fall back to a single token holding everything.
		return []string{strings.TrimSpace(list)}
	}
	return items
}

type parser struct {
	lex *lexer
	src string
	tok token
}

func (p *parser) advance() { p.tok = p.lex.next() }

func (p *parser) keyword(kw string) bool {
	return p.tok.kind == tokWord && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) isTableNamePart() bool {
	switch p.tok.kind {
	case tokQuotedIdent:
		return true
	case tokWord:
		return !p.keyword("VALUES") && !p.keyword("VALUE")
	case tokOther:
		return p.tok.text == "."
	default:
		return false
	}
}

// list consumes tokens up to the ')' that closes the current list and returns
// the top-level comma-separated items as trimmed source text. ok is false if
// the input ends (or a quoted run is left open) before the list closes.
func (p *parser) list() (items []string, closing token, ok bool) {
	depth := 0
	segStart, segEnd := -1, -1
	flush := func() {
		if segStart < 0 {
			items = append(items, "")
		} else {
			items = append(items, p.src[segStart:segEnd])
		}
		segStart, segEnd = -1, -1
	}

	for {
		t := p.tok
		switch t.kind {
		case tokEOF, tokUnterminated:
			return items, t, false
		case tokLParen:
			depth++
		case tokRParen:
			if depth == 0 {
				flush()
				return items, t, true
			}
			depth--
		case tokComma:
			if depth == 0 {
				flush()
				p.advance()
				continue
			}
		}
		if segStart < 0 {
			segStart = t.start
		}
		segEnd = t.end
		p.advance()
	}
}

// cleanColumn strips identifier quoting and collapses internal whitespace.
func cleanColumn(c string) string {
	c = strings.NewReplacer("`", "", `"`, "").Replace(c)
	return strings.Join(strings.Fields(c), " ")
}
