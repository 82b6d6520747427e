// Package textnorm canonicalises the surface form and the pronunciation of a
// Japanese dictionary word so that entries typed with different half-width /
// full-width variants, casing or kana scripts compare equal.
//
// Two rules are provided:
//
//   - [Surface] trims, widens half-width kana, digits and ASCII to their
//     full-width forms and lower-cases the result.
//   - [Pronunciation] trims, widens half-width kana only and converts hiragana
//     to katakana.
//
// Both functions are total: characters outside the converted ranges pass
// through unchanged. Two raw strings are "the same word" when their [Surface]
// forms are equal.
package textnorm

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Half-width katakana block, including the half-width ideographic punctuation
// and the voiced / semi-voiced sound marks.
const (
	halfKanaFirst = '｡'
	halfKanaLast  = 'ﾟ'

	halfVoicedMark     = 'ﾞ'
	halfSemiVoicedMark = 'ﾟ'

	combiningVoicedMark     = '゙'
	combiningSemiVoicedMark = '゚'

	spacingVoicedMark     = '゛'
	spacingSemiVoicedMark = '゜'

	ideographicSpace = '　'
)

// Key is the normalized form of a dictionary word. It is derived on demand
// and never persisted.
type Key struct {
	Surface       string `json:"surface"`
	Pronunciation string `json:"pronunciation"`
}

// KeyOf normalizes a raw surface / pronunciation pair.
func KeyOf(surface, pronunciation string) Key {
	return Key{
		Surface:       Surface(surface),
		Pronunciation: Pronunciation(pronunciation),
	}
}

// Surface returns the canonical surface form of raw.
func Surface(raw string) string {
	return strings.ToLower(widen(strings.TrimSpace(raw), true))
}

// Pronunciation returns the canonical pronunciation of raw in full-width
// katakana. Half-width digits and ASCII are left untouched.
func Pronunciation(raw string) string {
	s := widen(strings.TrimSpace(raw), false)
	out, _, err := transform.String(hiraganaToKatakana, s)
	if err != nil {
		// runes.Map never fails on valid input; keep the widened text.
		return s
	}
	return out
}

// SameWord reports whether a and b name the same dictionary word.
func SameWord(a, b string) bool {
	return Surface(a) == Surface(b)
}

var hiraganaToKatakana = runes.Map(func(r rune) rune {
	switch {
	case r >= 'ぁ' && r <= 'ゖ', r == 'ゝ', r == 'ゞ':
		return r + 0x60
	}
	return r
})

// widen converts half-width kana (composing a following half-width sound
// mark into the kana when a precomposed form exists) and, when ascii is set,
// the printable ASCII range to full width.
func widen(s string, ascii bool) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r >= halfKanaFirst && r <= halfKanaLast:
			wide := wideKana(r)
			if i+1 < len(rs) && isHalfSoundMark(rs[i+1]) {
				if c, ok := compose(wide, rs[i+1]); ok {
					b.WriteRune(c)
					i++
					continue
				}
			}
			b.WriteRune(wide)
		case ascii && r == ' ':
			b.WriteRune(ideographicSpace)
		case ascii && r > ' ' && r <= '~':
			b.WriteRune(r + 0xFEE0)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// wideKana widens one half-width rune. A sound mark reaching here did not
// compose with the preceding kana and becomes the spacing mark.
func wideKana(r rune) rune {
	switch r {
	case halfVoicedMark:
		return spacingVoicedMark
	case halfSemiVoicedMark:
		return spacingSemiVoicedMark
	}
	if w := width.LookupRune(r).Wide(); w != 0 {
		return w
	}
	return r
}

func isHalfSoundMark(r rune) bool {
	return r == halfVoicedMark || r == halfSemiVoicedMark
}

// compose merges base with a half-width sound mark into a single precomposed
// rune, e.g. カ + ﾞ → ガ, ハ + ﾟ → パ.
func compose(base, mark rune) (rune, bool) {
	combining := combiningVoicedMark
	if mark == halfSemiVoicedMark {
		combining = combiningSemiVoicedMark
	}
	c := norm.NFC.String(string([]rune{base, combining}))
	if utf8.RuneCountInString(c) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(c)
	return r, true
}
