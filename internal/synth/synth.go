// Package synth turns a call digest into a candidate fortune: it resolves a
// style, maps digest segments to vocabulary indices, fills one sentence
// pattern and applies one surface transform. It is total over well-formed
// input and performs no I/O.
package synth

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tbourn/go-fortune-backend/internal/vocab"
)

// SegmentLen is the number of hex characters per digest segment. All
// segmentCount segments fit in a 64-character SHA-256 digest, so no two
// choices read the same characters.
const SegmentLen = 5

// Segment positions. Plain slots take positions 0..len(vocab.SlotOrder)-1.
const (
	segSeason = iota + 6
	segLunar
	segPattern
	segConnective
	segGlyph

	segmentCount
)

// Input is everything one synthesis attempt needs.
type Input struct {
	Digest      string // hex call digest
	Attempt     int
	Style       string
	BaseMessage string
	Season      string // hashing.Season key
	Lunar       string // hashing.LunarPhaseBucket key
}

// Candidate is the text produced for one attempt plus how it was built.
type Candidate struct {
	Text      string
	Style     string
	Pattern   int
	Transform string
}

// Synthesizer fills patterns from a vocabulary bank. It is immutable after
// construction and safe for concurrent use.
type Synthesizer struct {
	bank *vocab.Bank
}

// New returns a Synthesizer over bank, or over the embedded bank when nil.
func New(bank *vocab.Bank) *Synthesizer {
	if bank == nil {
		bank = vocab.Default()
	}
	return &Synthesizer{bank: bank}
}

// Bank exposes the vocabulary in use.
func (s *Synthesizer) Bank() *vocab.Bank { return s.bank }

// Compose builds the candidate for in.
func (s *Synthesizer) Compose(in Input) Candidate {
	attempt := in.Attempt
	if attempt < 0 {
		attempt = 0
	}
	style := in.Style
	if len(s.bank.Styles[style]) == 0 {
		style = vocab.DefaultStyle
	}
	patterns := s.bank.Patterns(style)

	pv := segmentValue(in.Digest, segPattern)
	pIdx := int((pv + uint64(attempt)) % uint64(len(patterns)))

	pairs := make([]string, 0, 2*(len(vocab.SlotOrder)+3))
	for i, name := range vocab.SlotOrder {
		pairs = append(pairs, "{"+name+"}", pick(s.bank.Slots[name], in.Digest, i))
	}
	pairs = append(pairs,
		"{season}", pick(s.seasonPhrases(in.Season), in.Digest, segSeason),
		"{lunar}", pick(s.lunarPhrases(in.Lunar), in.Digest, segLunar),
		vocab.BasePlaceholder, trimSentenceEnd(in.BaseMessage),
	)
	text := strings.NewReplacer(pairs...).Replace(patterns[pIdx])

	text, transform := s.transform(text, in.Digest, attempt)
	return Candidate{
		Text:      strings.TrimSpace(text),
		Style:     style,
		Pattern:   pIdx,
		Transform: transform,
	}
}

func (s *Synthesizer) seasonPhrases(key string) []string {
	if ps := s.bank.Seasons[key]; len(ps) > 0 {
		return ps
	}
	return s.bank.Seasons[vocab.SeasonKeys[0]]
}

func (s *Synthesizer) lunarPhrases(key string) []string {
	if ps := s.bank.Lunar[key]; len(ps) > 0 {
		return ps
	}
	return s.bank.Lunar[vocab.LunarKeys[0]]
}

// SlotIndex maps digest segment seg to an index into a list of length n.
// The result is always in [0, n) for n > 0, and 0 otherwise.
func SlotIndex(digest string, seg, n int) int {
	if n <= 0 {
		return 0
	}
	return int(segmentValue(digest, seg) % uint64(n))
}

func pick(list []string, digest string, seg int) string {
	if len(list) == 0 {
		return ""
	}
	return list[SlotIndex(digest, seg, len(list))]
}

// segmentValue reads SegmentLen hex characters starting at seg*SegmentLen,
// wrapping around the digest when it is too short. Non-hex input falls back
// to a byte sum so the function never fails.
func segmentValue(digest string, seg int) uint64 {
	if digest == "" {
		return 0
	}
	if seg < 0 {
		seg = -seg
	}
	n := len(digest)
	start := (seg * SegmentLen) % n
	buf := make([]byte, SegmentLen)
	for i := range buf {
		buf[i] = digest[(start+i)%n]
	}
	if v, err := strconv.ParseUint(string(buf), 16, 64); err == nil {
		return v
	}
	var sum uint64
	for _, c := range buf {
		sum = sum*31 + uint64(c)
	}
	return sum
}

func trimSentenceEnd(s string) string {
	return strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		switch r {
		case '。', '．', '.', '!', '！', '?', '？':
			return true
		}
		return unicode.IsSpace(r)
	})
}
