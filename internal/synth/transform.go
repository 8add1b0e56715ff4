package synth

import "strings"

// Surface transform names, selected by attempt mod TransformCount.
const (
	TransformConnective = "connective"
	TransformLineBreak  = "line-break"
	TransformPrefix     = "prefix-glyph"
	TransformSuffix     = "suffix-glyph"
)

var transforms = []string{TransformConnective, TransformLineBreak, TransformPrefix, TransformSuffix}

// TransformCount is the number of surface transforms.
var TransformCount = len(transforms)

// transform applies exactly one surface variation. Transforms that find
// nothing to act on leave the text unchanged.
func (s *Synthesizer) transform(text, digest string, attempt int) (string, string) {
	name := transforms[attempt%len(transforms)]
	switch name {
	case TransformConnective:
		conn := pick(s.bank.Connectives, digest, segConnective)
		return strings.Replace(text, "、", conn, 1), name
	case TransformLineBreak:
		return breakAfterFirstSentence(text), name
	case TransformPrefix:
		return pick(s.bank.Glyphs, digest, segGlyph) + " " + text, name
	default:
		return text + " " + pick(s.bank.Glyphs, digest, segGlyph), name
	}
}

// breakAfterFirstSentence inserts a newline after the first full stop that
// is not the final character.
func breakAfterFirstSentence(text string) string {
	const stop = "。"
	i := strings.Index(text, stop)
	if i < 0 || i+len(stop) >= len(text) {
		return text
	}
	return text[:i+len(stop)] + "\n" + text[i+len(stop):]
}
