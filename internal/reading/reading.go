// Package reading suggests a katakana reading for Japanese text using the
// kagome morphological analyser and the IPA dictionary.
//
// It backs the reading field of dictionary forms: when an administrator adds
// a word without a reading, the suggestion is offered instead.
package reading

import (
	"fmt"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/MrWong99/sumirevox/pkg/textnorm"
)

// IPA feature index of the katakana reading.
const featureReading = 7

// Suggestion is the reading proposed for a text.
type Suggestion struct {
	// Reading is the katakana reading. Parts the dictionary does not know are
	// included as typed, with hiragana converted to katakana.
	Reading string `json:"reading"`

	// Complete is false when at least one part had no dictionary reading, in
	// which case the suggestion needs a human look.
	Complete bool `json:"complete"`
}

// Suggester wraps a kagome tokenizer. It is safe for concurrent use.
type Suggester struct {
	t *tokenizer.Tokenizer
}

// New loads the IPA dictionary. Loading takes a moment and allocates the
// whole dictionary, so create one Suggester per process.
func New() (*Suggester, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("reading: create tokenizer: %w", err)
	}
	return &Suggester{t: t}, nil
}

// Suggest returns the reading of text.
func (s *Suggester) Suggest(text string) Suggestion {
	text = strings.TrimSpace(text)
	if text == "" {
		return Suggestion{}
	}

	var b strings.Builder
	complete := true
	for _, token := range s.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		features := token.Features()
		if len(features) > featureReading && features[featureReading] != "*" {
			b.WriteString(features[featureReading])
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}
		if !isKana(token.Surface) {
			complete = false
		}
		b.WriteString(token.Surface)
	}
	return Suggestion{
		Reading:  textnorm.Pronunciation(b.String()),
		Complete: complete,
	}
}

// isKana reports whether s consists of hiragana, katakana and the prolonged
// sound mark only.
func isKana(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'ぁ' && r <= 'ゖ', r >= 'ァ' && r <= 'ヺ', r == 'ー':
		default:
			return false
		}
	}
	return true
}
