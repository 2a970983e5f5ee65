package synth_test

import (
	"testing"

	"github.com/MrWong99/friday/internal/synth"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "abbreviations and ellipsis", in: "Dr. Smith vs. Dr. Jones...", want: "Doctor Smith versus Doctor Jones."},
		{name: "markdown stripped", in: "**Bold** and _italic_ with `code`", want: "Bold and italic with code."},
		{name: "heading and fence", in: "# Title\n```\nls -la\n```", want: "Title ls -la."},
		{name: "latin abbreviations", in: "Fruit, e.g. apples, i.e. the red ones, etc.", want: "Fruit, for example apples, that is the red ones, etcetera."},
		{name: "titles", in: "Mr. Stark and Prof. Banner", want: "Mister Stark and Professor Banner."},
		{name: "repeated punctuation", in: "Really?? Yes!! Wait.....", want: "Really? Yes! Wait."},
		{name: "keeps question", in: "How are you?", want: "How are you?"},
		{name: "keeps exclamation", in: "Done!", want: "Done!"},
		{name: "collapses whitespace", in: "  hello \t  there \n", want: "hello there."},
		{name: "blank", in: "   ", want: ""},
		{name: "punctuation only", in: "...", want: ""},
		{name: "markup only", in: "**", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := synth.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
