// Package pinyin derives uppercase Latin initials from Chinese names using the
// Mandarin pinyin reading of each ideograph.
//
// Only the first letter of the primary, tone-less reading is kept, so
// "生物学" (sheng wu xue) becomes "SWX". Runes outside the Han script are
// skipped. A Han rune with no known reading contributes nothing; that is
// logged at debug level and never returned as an error.
package pinyin

import (
	"fmt"
	"strings"
	"unicode"

	gopinyin "github.com/mozillazg/go-pinyin"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Transliterator converts names to initials. The zero value is not usable;
// construct with New. A Transliterator is safe for concurrent use.
type Transliterator struct {
	args   gopinyin.Args
	logger *zap.Logger
}

// New returns a Transliterator that logs lookup misses to logger. A nil logger
// disables logging.
func New(logger *zap.Logger) *Transliterator {
	if logger == nil {
		logger = zap.NewNop()
	}
	args := gopinyin.NewArgs()
	args.Style = gopinyin.Normal
	args.Heteronym = false
	return &Transliterator{args: args, logger: logger}
}

var defaultTransliterator = New(nil)

// Initials is a convenience wrapper around a package-level Transliterator
// without logging.
func Initials(text string) string {
	return defaultTransliterator.Initials(text)
}

// Initials returns one uppercase letter per resolvable ideograph in text.
// Blank input returns "".
func (t *Transliterator) Initials(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// NFKC folds CJK compatibility ideographs (U+F900 block) onto their
	// unified counterparts, which is what the reading table is keyed on.
	text = norm.NFKC.String(text)

	var b strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Han, r) {
			continue
		}
		readings := gopinyin.SinglePinyin(r, t.args)
		if len(readings) == 0 || readings[0] == "" {
			t.logger.Debug("pinyin: no reading for rune",
				zap.String("rune", string(r)),
				zap.String("codepoint", fmt.Sprintf("%U", r)),
			)
			continue
		}
		first := rune(readings[0][0])
		if first < 'a' || first > 'z' {
			// Readings are plain ASCII in Normal style; anything else is a
			// table anomaly we cannot turn into an initial.
			t.logger.Debug("pinyin: unexpected reading",
				zap.String("rune", string(r)),
				zap.String("reading", readings[0]),
			)
			continue
		}
		b.WriteRune(unicode.ToUpper(first))
	}
	return b.String()
}

// CountIdeographs reports the number of Han runes in text after the same
// normalisation Initials applies. It bounds len(Initials(text)).
func CountIdeographs(text string) int {
	n := 0
	for _, r := range norm.NFKC.String(text) {
		if unicode.Is(unicode.Han, r) {
			n++
		}
	}
	return n
}
