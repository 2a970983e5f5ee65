package wake

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrLastPhrase is returned when removing a phrase would leave the set empty.
	ErrLastPhrase = errors.New("wake: cannot remove the last wake phrase")

	// ErrUnknownPhrase is returned when removing a phrase that is not in the set.
	ErrUnknownPhrase = errors.New("wake: unknown wake phrase")

	// ErrNoPhrases is returned when a phrase set would be created empty.
	ErrNoPhrases = errors.New("wake: at least one wake phrase is required")
)

// DefaultPhrases are the stock wake phrases.
var DefaultPhrases = []string{"friday", "hey friday", "ok friday", "hello friday", "hi friday"}

// DefaultPatterns catch common misrecognitions of the wake word.
var DefaultPatterns = []string{`\bfriday\b`, `\bfri+day\b`, `\bfridie\b`, `\bfridey\b`}

// Tier names the matching stage that accepted a transcript.
type Tier string

const (
	TierSubstring Tier = "substring"
	TierPattern   Tier = "pattern"
	TierPhonetic  Tier = "phonetic"
)

// Match describes why a transcript was accepted as a wake phrase.
type Match struct {
	// Phrase is the wake phrase, pattern or keyword that matched.
	Phrase string

	// Heard is the part of the transcript that matched.
	Heard string

	Tier Tier

	// Score is the Jaro-Winkler similarity for phonetic matches, 1 otherwise.
	Score float64
}

// PhraseOption configures a [PhraseSet].
type PhraseOption func(*PhraseSet)

// WithPhonetic enables or disables the phonetic matching tier. Default: disabled.
func WithPhonetic(enabled bool) PhraseOption {
	return func(s *PhraseSet) {
		s.phoneticEnabled = enabled
	}
}

// WithPhoneticThresholds sets the Jaro-Winkler score required for a token
// whose Double Metaphone codes overlap a keyword (phonetic) and for one whose
// codes do not (fuzzy). Defaults: 0.90 and 0.93.
func WithPhoneticThresholds(phonetic, fuzzy float64) PhraseOption {
	return func(s *PhraseSet) {
		s.phoneticThreshold = phonetic
		s.fuzzyThreshold = fuzzy
	}
}

// PhraseSet is the mutable set of wake phrases and patterns. It is safe for
// concurrent use. Updates swap whole slices, so a Match in flight keeps
// seeing the set it started with.
type PhraseSet struct {
	phoneticEnabled   bool
	phoneticThreshold float64
	fuzzyThreshold    float64

	mu       sync.RWMutex
	phrases  []string
	patterns []*regexp.Regexp
	phonetic *phoneticMatcher
}

// NewPhraseSet returns a set holding phrases and patterns. Phrases are
// lowercased and deduplicated; patterns are compiled case-insensitive.
func NewPhraseSet(phrases, patterns []string, opts ...PhraseOption) (*PhraseSet, error) {
	s := &PhraseSet{}
	for _, o := range opts {
		o(s)
	}
	if err := s.Replace(phrases, patterns); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps the whole phrase and pattern lists. On error the set is left
// unchanged.
func (s *PhraseSet) Replace(phrases, patterns []string) error {
	normalized := normalizePhrases(phrases)
	if len(normalized) == 0 {
		return ErrNoPhrases
	}
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phrases = normalized
	s.patterns = compiled
	s.rebuildLocked()
	return nil
}

// Add inserts phrase. Adding a phrase that is already present is a no-op.
func (s *PhraseSet) Add(phrase string) error {
	p := normalizePhrase(phrase)
	if p == "" {
		return errors.New("wake: add: empty phrase")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.phrases, p) {
		return nil
	}
	s.phrases = append(slices.Clone(s.phrases), p)
	s.rebuildLocked()
	return nil
}

// Remove deletes phrase. The last remaining phrase cannot be removed.
func (s *PhraseSet) Remove(phrase string) error {
	p := normalizePhrase(phrase)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.phrases, p)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownPhrase, phrase)
	}
	if len(s.phrases) == 1 {
		return ErrLastPhrase
	}
	s.phrases = slices.Delete(slices.Clone(s.phrases), i, i+1)
	s.rebuildLocked()
	return nil
}

// Phrases returns a copy of the current phrases.
func (s *PhraseSet) Phrases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.phrases)
}

// Patterns returns the source of the current patterns.
func (s *PhraseSet) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.patterns))
	for i, re := range s.patterns {
		out[i] = strings.TrimPrefix(re.String(), "(?i)")
	}
	return out
}

// Match reports whether text contains a wake phrase. Tiers are tried in
// order: substring containment (longest phrase wins), regex patterns, then
// phonetic similarity of single tokens to phrase keywords.
func (s *PhraseSet) Match(text string) (Match, bool) {
	lower := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if lower == "" {
		return Match{}, false
	}

	s.mu.RLock()
	phrases, patterns, phonetic := s.phrases, s.patterns, s.phonetic
	s.mu.RUnlock()

	var best string
	for _, p := range phrases {
		if len(p) > len(best) && strings.Contains(lower, p) {
			best = p
		}
	}
	if best != "" {
		return Match{Phrase: best, Heard: best, Tier: TierSubstring, Score: 1}, true
	}

	for _, re := range patterns {
		if loc := re.FindStringIndex(lower); loc != nil {
			return Match{
				Phrase: strings.TrimPrefix(re.String(), "(?i)"),
				Heard:  lower[loc[0]:loc[1]],
				Tier:   TierPattern,
				Score:  1,
			}, true
		}
	}

	if tok, kw, score, ok := phonetic.match(lower); ok {
		return Match{Phrase: kw, Heard: tok, Tier: TierPhonetic, Score: score}, true
	}
	return Match{}, false
}

func (s *PhraseSet) rebuildLocked() {
	if !s.phoneticEnabled {
		s.phonetic = nil
		return
	}
	s.phonetic = newPhoneticMatcher(s.phrases, s.phoneticThreshold, s.fuzzyThreshold)
}

func normalizePhrase(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}

func normalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		n := normalizePhrase(p)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	var errs []error
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			errs = append(errs, fmt.Errorf("wake: pattern %q: %w", p, err))
			continue
		}
		out = append(out, re)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
