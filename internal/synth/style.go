package synth

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-fortune-backend/internal/vocab"
)

// ResolveStyle picks the pattern style for a request. The category lookup
// wins; an unknown category falls back to keyword cues in the base message
// and finally to the default style.
func (s *Synthesizer) ResolveStyle(category, baseMessage string) string {
	cat := strings.ToLower(strings.TrimSpace(category))
	if style, ok := s.bank.Categories[cat]; ok {
		return style
	}
	if _, ok := s.bank.Styles[cat]; ok && cat != "" {
		return cat
	}

	// A Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	msg := fold.String(baseMessage)
	for _, style := range s.bank.StyleNames() {
		for _, kw := range s.bank.Keywords[style] {
			if kw != "" && strings.Contains(msg, fold.String(kw)) {
				return style
			}
		}
	}
	return vocab.DefaultStyle
}
