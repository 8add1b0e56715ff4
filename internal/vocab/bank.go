// Package vocab holds the static, versioned text fragments the synthesizer
// fills sentence patterns from. The default bank is embedded YAML; an
// alternative bank with the same schema can be loaded from disk.
package vocab

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// BasePlaceholder must appear in every sentence pattern.
const BasePlaceholder = "{base}"

// DefaultStyle is used whenever a category or cue maps to nothing.
const DefaultStyle = "balanced"

// Slot names, in the order the synthesizer assigns digest segments to them.
const (
	SlotTime    = "time"
	SlotNature  = "nature"
	SlotProcess = "process"
	SlotOutcome = "outcome"
	SlotEmotion = "emotion"
	SlotFuture  = "future"
)

// SlotOrder lists every plain slot category.
var SlotOrder = []string{SlotTime, SlotNature, SlotProcess, SlotOutcome, SlotEmotion, SlotFuture}

// SeasonKeys and LunarKeys are the required keys of the seasonal and lunar groups.
var (
	SeasonKeys = []string{"spring", "summer", "autumn", "winter"}
	LunarKeys  = []string{"new", "waxing", "full", "waning"}
)

//go:embed bank.yaml
var embedded []byte

// Bank is one complete vocabulary.
type Bank struct {
	Version     string              `yaml:"version"`
	Slots       map[string][]string `yaml:"slots"`
	Seasons     map[string][]string `yaml:"seasons"`
	Lunar       map[string][]string `yaml:"lunar"`
	Styles      map[string][]string `yaml:"styles"`
	Categories  map[string]string   `yaml:"categories"`
	Keywords    map[string][]string `yaml:"keywords"`
	Connectives []string            `yaml:"connectives"`
	Glyphs      []string            `yaml:"glyphs"`
}

var (
	defaultOnce sync.Once
	defaultBank *Bank
)

// Default returns the embedded bank. It panics if the embedded data is
// invalid, which the package tests rule out.
func Default() *Bank {
	defaultOnce.Do(func() {
		b, err := Parse(embedded)
		if err != nil {
			panic(fmt.Errorf("vocab: embedded bank invalid: %w", err))
		}
		defaultBank = b
	})
	return defaultBank
}

// LoadFile reads and validates a bank from path.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and validates the result.
func Parse(data []byte) (*Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("vocab: decode: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks every invariant the synthesizer relies on: no empty
// fragment list, the four seasons and four lunar phases present, a default
// style, and the base placeholder in every pattern.
func (b *Bank) Validate() error {
	var errs []error
	for _, name := range SlotOrder {
		if len(b.Slots[name]) == 0 {
			errs = append(errs, fmt.Errorf("slot %q is empty", name))
		}
	}
	for _, k := range SeasonKeys {
		if len(b.Seasons[k]) == 0 {
			errs = append(errs, fmt.Errorf("season %q is empty", k))
		}
	}
	for _, k := range LunarKeys {
		if len(b.Lunar[k]) == 0 {
			errs = append(errs, fmt.Errorf("lunar phase %q is empty", k))
		}
	}
	if len(b.Styles[DefaultStyle]) == 0 {
		errs = append(errs, fmt.Errorf("default style %q has no patterns", DefaultStyle))
	}
	for _, style := range sortedKeys(b.Styles) {
		for i, p := range b.Styles[style] {
			if !strings.Contains(p, BasePlaceholder) {
				errs = append(errs, fmt.Errorf("style %q pattern %d lacks %s", style, i, BasePlaceholder))
			}
		}
	}
	for cat, style := range b.Categories {
		if _, ok := b.Styles[style]; !ok {
			errs = append(errs, fmt.Errorf("category %q maps to unknown style %q", cat, style))
		}
	}
	for style := range b.Keywords {
		if _, ok := b.Styles[style]; !ok {
			errs = append(errs, fmt.Errorf("keywords reference unknown style %q", style))
		}
	}
	if len(b.Connectives) == 0 {
		errs = append(errs, errors.New("connectives are empty"))
	}
	if len(b.Glyphs) == 0 {
		errs = append(errs, errors.New("glyphs are empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("vocab: invalid bank: %w", errors.Join(errs...))
	}
	return nil
}

// Patterns returns the sentence patterns of style, falling back to the
// default style when the style is unknown or empty.
func (b *Bank) Patterns(style string) []string {
	if ps := b.Styles[style]; len(ps) > 0 {
		return ps
	}
	return b.Styles[DefaultStyle]
}

// StyleNames returns the configured style names in sorted order.
func (b *Bank) StyleNames() []string { return sortedKeys(b.Styles) }

// Combinations reports how many distinct slot fillings one pattern admits
// for a fixed season and lunar phase. Used for capacity logging.
func (b *Bank) Combinations() uint64 {
	n := uint64(1)
	for _, name := range SlotOrder {
		n *= uint64(len(b.Slots[name]))
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
