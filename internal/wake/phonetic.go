package wake

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	// Everyday words close to "friday" ("fried", "freddy") score between
	// 0.75 and 0.88 against it.
	defaultPhoneticThreshold = 0.90
	defaultFuzzyThreshold    = 0.93

	// Tokens shorter than this never match phonetically; Double Metaphone
	// collapses most two- and three-letter words onto the same few codes.
	minPhoneticToken = 4
)

// fillers are greeting words that lead a wake phrase but carry no identity
// on their own ("hey", "ok"). They are never used as phonetic keywords.
var fillers = map[string]struct{}{
	"hey": {}, "hi": {}, "hello": {}, "ok": {}, "okay": {}, "yo": {},
}

// keyword is a distinctive phrase token with its precomputed codes.
type keyword struct {
	word  string
	codes map[string]struct{}
}

// phoneticMatcher finds transcript tokens that sound like a phrase keyword.
// It is read-only after construction and safe for concurrent use.
type phoneticMatcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	keywords          []keyword
}

func newPhoneticMatcher(phrases []string, phoneticThreshold, fuzzyThreshold float64) *phoneticMatcher {
	if phoneticThreshold <= 0 {
		phoneticThreshold = defaultPhoneticThreshold
	}
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = defaultFuzzyThreshold
	}
	m := &phoneticMatcher{
		phoneticThreshold: phoneticThreshold,
		fuzzyThreshold:    fuzzyThreshold,
	}
	seen := make(map[string]struct{})
	for _, p := range phrases {
		for _, tok := range tokenize(p) {
			if _, skip := fillers[tok]; skip || len(tok) < minPhoneticToken {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			m.keywords = append(m.keywords, keyword{word: tok, codes: codesFor(tok)})
		}
	}
	return m
}

// match returns the transcript token and keyword that sound most alike.
// A token whose Double Metaphone codes overlap a keyword's is accepted at the
// phonetic threshold; otherwise the stricter fuzzy threshold applies.
func (m *phoneticMatcher) match(text string) (token, kw string, score float64, ok bool) {
	if m == nil || len(m.keywords) == 0 {
		return "", "", 0, false
	}

	var bestPhonetic bool
	for _, tok := range tokenize(text) {
		if len(tok) < minPhoneticToken {
			continue
		}
		codes := codesFor(tok)
		for _, k := range m.keywords {
			jw := matchr.JaroWinkler(tok, k.word, false)
			if codesOverlap(codes, k.codes) {
				if jw >= m.phoneticThreshold && (!bestPhonetic || jw > score) {
					token, kw, score, bestPhonetic = tok, k.word, jw, true
				}
			} else if !bestPhonetic && jw >= m.fuzzyThreshold && jw > score {
				token, kw, score = tok, k.word, jw
			}
		}
	}
	return token, kw, score, kw != ""
}

// tokenize lowercases s and splits it into letter/digit runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
