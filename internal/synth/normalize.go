package synth

import (
	"regexp"
	"strings"
	"unicode"
)

// markup lists formatting characters that speech engines would read aloud.
var markup = strings.NewReplacer("```", "", "`", "", "*", "", "_", "", "#", "")

// abbreviations are expanded in order; earlier entries win on overlap.
var abbreviations = []struct{ from, to string }{
	{"e.g.", "for example"},
	{"i.e.", "that is"},
	{"etc.", "etcetera"},
	{"vs.", "versus"},
	{"Mr.", "Mister"},
	{"Dr.", "Doctor"},
	{"Prof.", "Professor"},
}

var (
	repeatedDots     = regexp.MustCompile(`\.{2,}`)
	repeatedBangs    = regexp.MustCompile(`!{2,}`)
	repeatedQuestion = regexp.MustCompile(`\?{2,}`)
)

// Normalize prepares reply text for a speech engine: it strips markdown
// markers, expands common abbreviations, collapses runs of terminal
// punctuation and whitespace, and makes sure the text ends a sentence.
//
//	Normalize("Dr. Smith vs. Dr. Jones...") == "Doctor Smith versus Doctor Jones."
//
// Input without a single letter or digit yields "".
func Normalize(text string) string {
	s := markup.Replace(text)
	for _, a := range abbreviations {
		s = strings.ReplaceAll(s, a.from, a.to)
	}
	s = repeatedDots.ReplaceAllString(s, ".")
	s = repeatedBangs.ReplaceAllString(s, "!")
	s = repeatedQuestion.ReplaceAllString(s, "?")
	s = strings.Join(strings.Fields(s), " ")
	if !strings.ContainsFunc(s, isWordRune) {
		return ""
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
	default:
		s += "."
	}
	return s
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
