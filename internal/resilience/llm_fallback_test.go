package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/friday/pkg/provider/llm"
	llmmock "github.com/MrWong99/friday/pkg/provider/llm/mock"
)

func reply(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: text}
}

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()
	errDown := errors.New("backend down")

	tests := []struct {
		name          string
		primary       *llmmock.Provider
		secondary     *llmmock.Provider
		want          string
		wantErr       error
		secondaryUsed bool
	}{
		{
			name:      "primary answers",
			primary:   &llmmock.Provider{CompleteResponse: reply("from gemini")},
			secondary: &llmmock.Provider{CompleteResponse: reply("from openai")},
			want:      "from gemini",
		},
		{
			name:          "primary down",
			primary:       &llmmock.Provider{CompleteErr: errDown},
			secondary:     &llmmock.Provider{CompleteResponse: reply("from openai")},
			want:          "from openai",
			secondaryUsed: true,
		},
		{
			name:          "blank reply falls through",
			primary:       &llmmock.Provider{CompleteResponse: reply("  \n")},
			secondary:     &llmmock.Provider{CompleteResponse: reply("from openai")},
			want:          "from openai",
			secondaryUsed: true,
		},
		{
			name:          "nil reply falls through",
			primary:       &llmmock.Provider{},
			secondary:     &llmmock.Provider{CompleteResponse: reply("from openai")},
			want:          "from openai",
			secondaryUsed: true,
		},
		{
			name:          "all fail",
			primary:       &llmmock.Provider{CompleteErr: errDown},
			secondary:     &llmmock.Provider{CompleteResponse: reply("")},
			wantErr:       ErrAllFailed,
			secondaryUsed: true,
		},
		{
			name:      "cancellation stops",
			primary:   &llmmock.Provider{CompleteErr: context.Canceled},
			secondary: &llmmock.Provider{CompleteResponse: reply("unreachable")},
			wantErr:   context.Canceled,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fb := NewLLMFallback(tc.primary, "gemini", FallbackConfig{})
			fb.AddFallback("openai", tc.secondary)

			req := llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}
			resp, err := fb.Complete(context.Background(), req)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if resp.Content != tc.want {
					t.Errorf("content = %q, want %q", resp.Content, tc.want)
				}
			}
			if used := len(tc.secondary.Calls()) > 0; used != tc.secondaryUsed {
				t.Errorf("secondary used = %v, want %v", used, tc.secondaryUsed)
			}
			if calls := tc.primary.Calls(); len(calls) != 1 || calls[0].Req.Messages[0].Content != "hi" {
				t.Errorf("primary calls = %+v, want the request once", calls)
			}
		})
	}
}

func TestLLMFallback_Names(t *testing.T) {
	t.Parallel()
	fb := NewLLMFallback(&llmmock.Provider{}, "gemini", FallbackConfig{})
	fb.AddFallback("openai", &llmmock.Provider{})

	if got := fb.Names(); !slices.Equal(got, []string{"gemini", "openai"}) {
		t.Fatalf("names = %v, want [gemini openai]", got)
	}
}
