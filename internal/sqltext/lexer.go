package sqltext

import (
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString      // '...'
	tokQuotedIdent // `...` or "..."
	tokLParen
	tokRParen
	tokComma
	tokSemicolon
	tokOther
	tokUnterminated // quoted run with no closing quote
)

// token is a lexeme with its byte span in the source. text aliases the
// source; nothing is unescaped.
type token struct {
	kind       tokenKind
	start, end int
	text       string
}

// lexer splits a single statement into tokens. Quoting rules:
//
//   - '...' is a string literal. A backslash escapes the next byte and a
//     doubled quote ('') is a literal quote.
//   - `...` and "..." are quoted runs closed by the same character; a doubled
//     closing character is literal. Backslash escapes apply inside "..." too,
//     matching MySQL's default sql_mode.
//   - Everything else is either punctuation or a word (identifier, keyword,
//     number, NULL, or any run of non-space, non-punctuation runes).
type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer { return &lexer{src: src} }

func (l *lexer) next() token {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, start: len(l.src), end: len(l.src)}
	}

	start := l.pos
	c := l.src[l.pos]
	switch c {
	case '(':
		l.pos++
		return l.tok(tokLParen, start)
	case ')':
		l.pos++
		return l.tok(tokRParen, start)
	case ',':
		l.pos++
		return l.tok(tokComma, start)
	case ';':
		l.pos++
		return l.tok(tokSemicolon, start)
	case '\'':
		return l.quoted(start, '\'', true, tokString)
	case '"':
		return l.quoted(start, '"', true, tokQuotedIdent)
	case '`':
		return l.quoted(start, '`', false, tokQuotedIdent)
	}

	if isWordByte(c) {
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if !isWordRune(r) {
				break
			}
			l.pos += size
		}
		return l.tok(tokWord, start)
	}

	_, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	return l.tok(tokOther, start)
}

func (l *lexer) tok(kind tokenKind, start int) token {
	return token{kind: kind, start: start, end: l.pos, text: l.src[start:l.pos]}
}

func (l *lexer) quoted(start int, q byte, backslash bool, kind tokenKind) token {
	l.pos++ // opening quote
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case backslash && c == '\\':
			l.pos += 2
		case c == q:
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == q {
				l.pos += 2
				continue
			}
			l.pos++
			return l.tok(kind, start)
		default:
			l.pos++
		}
	}
	l.pos = len(l.src)
	return l.tok(tokUnterminated, start)
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func isWordByte(c byte) bool {
	return c >= utf8.RuneSelf || isWordRune(rune(c))
}

func isWordRune(r rune) bool {
	switch {
	case r == '_' || r == '$' || r == '.' || r == '-' || r == '+' || r == ':':
		return true
	case r < utf8.RuneSelf:
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	default:
		return !unicode.IsSpace(r)
	}
}
