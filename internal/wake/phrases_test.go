package wake_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/friday/internal/wake"
)

func newDefaultSet(t *testing.T, opts ...wake.PhraseOption) *wake.PhraseSet {
	t.Helper()
	s, err := wake.NewPhraseSet(wake.DefaultPhrases, wake.DefaultPatterns, opts...)
	if err != nil {
		t.Fatalf("NewPhraseSet: %v", err)
	}
	return s
}

func TestPhraseSet_Match(t *testing.T) {
	t.Parallel()

	s := newDefaultSet(t)

	tests := []struct {
		name      string
		text      string
		wantOK    bool
		wantTier  wake.Tier
		wantHeard string
	}{
		{name: "bare phrase", text: "Friday", wantOK: true, wantTier: wake.TierSubstring, wantHeard: "friday"},
		{name: "longest phrase wins", text: "hey Friday what's the time", wantOK: true, wantTier: wake.TierSubstring, wantHeard: "hey friday"},
		{name: "extra whitespace", text: "  ok   FRIDAY ", wantOK: true, wantTier: wake.TierSubstring, wantHeard: "ok friday"},
		{name: "misrecognition pattern", text: "fridey", wantOK: true, wantTier: wake.TierPattern, wantHeard: "fridey"},
		{name: "stretched vowel", text: "friiiday are you there", wantOK: true, wantTier: wake.TierPattern, wantHeard: "friiiday"},
		{name: "sound-alike needs opt-in", text: "fryday", wantOK: false},
		{name: "fried", text: "i fried an egg", wantOK: false},
		{name: "freed", text: "they freed the bird", wantOK: false},
		{name: "freddy", text: "call freddy now", wantOK: false},
		{name: "adjacent word is not the trigger", text: "friday park", wantOK: true, wantTier: wake.TierSubstring, wantHeard: "friday"},
		{name: "unrelated", text: "park the car", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, ok := s.Match(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v (match %+v)", tt.text, ok, tt.wantOK, m)
			}
			if !ok {
				return
			}
			if m.Tier != tt.wantTier {
				t.Errorf("Tier = %q, want %q", m.Tier, tt.wantTier)
			}
			if m.Heard != tt.wantHeard {
				t.Errorf("Heard = %q, want %q", m.Heard, tt.wantHeard)
			}
		})
	}
}

func TestPhraseSet_PhoneticDisabled(t *testing.T) {
	t.Parallel()

	s := newDefaultSet(t, wake.WithPhonetic(false))
	if m, ok := s.Match("fryday"); ok {
		t.Errorf("Match(fryday) = %+v, want no match with phonetic tier disabled", m)
	}
	if _, ok := s.Match("fridey"); !ok {
		t.Error("patterns should still match with phonetic tier disabled")
	}
}

func TestPhraseSet_PhoneticEnabled(t *testing.T) {
	t.Parallel()

	s := newDefaultSet(t, wake.WithPhonetic(true))
	tests := []struct {
		text      string
		wantOK    bool
		wantHeard string
	}{
		{text: "fryday", wantOK: true, wantHeard: "fryday"},
		{text: "i fried an egg", wantOK: false},
		{text: "they freed the bird", wantOK: false},
		{text: "call freddy now", wantOK: false},
		{text: "see you on sunday", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			m, ok := s.Match(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v (match %+v)", tt.text, ok, tt.wantOK, m)
			}
			if ok && (m.Tier != wake.TierPhonetic || m.Heard != tt.wantHeard) {
				t.Errorf("Match(%q) = %+v, want phonetic tier heard %q", tt.text, m, tt.wantHeard)
			}
		})
	}
}

func TestPhraseSet_RemoveLastPhrase(t *testing.T) {
	t.Parallel()

	s, err := wake.NewPhraseSet([]string{"friday"}, nil)
	if err != nil {
		t.Fatalf("NewPhraseSet: %v", err)
	}
	if err := s.Remove("friday"); !errors.Is(err, wake.ErrLastPhrase) {
		t.Fatalf("Remove last = %v, want ErrLastPhrase", err)
	}
	if got := s.Phrases(); !slices.Equal(got, []string{"friday"}) {
		t.Errorf("Phrases() = %v, want [friday]", got)
	}
}

func TestPhraseSet_AddRemove(t *testing.T) {
	t.Parallel()

	s := newDefaultSet(t)
	n := len(s.Phrases())

	if err := s.Add("Yo Computer"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("yo computer"); err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}
	if got := len(s.Phrases()); got != n+1 {
		t.Errorf("len(Phrases()) = %d, want %d", got, n+1)
	}
	if m, ok := s.Match("yo computer lights on"); !ok || m.Phrase != "yo computer" {
		t.Errorf("Match after Add = %+v, %v", m, ok)
	}

	if err := s.Remove("YO COMPUTER"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("yo computer"); !errors.Is(err, wake.ErrUnknownPhrase) {
		t.Errorf("second Remove = %v, want ErrUnknownPhrase", err)
	}
	if err := s.Add("   "); err == nil {
		t.Error("Add(blank) should fail")
	}
}

func TestPhraseSet_Replace(t *testing.T) {
	t.Parallel()

	s := newDefaultSet(t)
	before := s.Phrases()

	if err := s.Replace([]string{"jarvis"}, []string{"("}); err == nil {
		t.Fatal("Replace with invalid pattern should fail")
	}
	if err := s.Replace(nil, nil); !errors.Is(err, wake.ErrNoPhrases) {
		t.Fatalf("Replace(nil) = %v, want ErrNoPhrases", err)
	}
	if got := s.Phrases(); !slices.Equal(got, before) {
		t.Errorf("failed Replace changed phrases to %v", got)
	}

	if err := s.Replace([]string{"Jarvis", "jarvis"}, []string{`\bjarv[iu]s\b`}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := s.Phrases(); !slices.Equal(got, []string{"jarvis"}) {
		t.Errorf("Phrases() = %v, want [jarvis]", got)
	}
	if got := s.Patterns(); !slices.Equal(got, []string{`\bjarv[iu]s\b`}) {
		t.Errorf("Patterns() = %v", got)
	}
	if _, ok := s.Match("friday"); ok {
		t.Error("old phrase still matches after Replace")
	}
	if m, ok := s.Match("JARVUS"); !ok || m.Tier != wake.TierPattern {
		t.Errorf("Match(JARVUS) = %+v, %v, want pattern match", m, ok)
	}
}
