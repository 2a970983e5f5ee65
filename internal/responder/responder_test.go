package responder_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/friday/internal/orchestrator"
	"github.com/MrWong99/friday/internal/responder"
	"github.com/MrWong99/friday/pkg/provider/llm"
	"github.com/MrWong99/friday/pkg/provider/llm/mock"
)

var fixedClock = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }

func turns(texts ...string) []orchestrator.Turn {
	out := make([]orchestrator.Turn, len(texts))
	for i, text := range texts {
		role := orchestrator.RoleUser
		if i%2 == 1 {
			role = orchestrator.RoleAssistant
		}
		out[i] = orchestrator.Turn{Role: role, Text: text}
	}
	return out
}

func TestRespond_BuildsRequest(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  It is sunny.  "}}
	r := responder.New(provider, responder.WithClock(fixedClock), responder.WithTemperature(0.7), responder.WithMaxTokens(256))

	history := turns("hello", "Hello! How can I help?", "what is the weather", "Let me check.")
	reply, err := r.Respond(context.Background(), " and tomorrow? ", history)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "It is sunny." {
		t.Errorf("reply = %q", reply)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	req := calls[0].Req
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != "and tomorrow?" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Temperature != 0.7 || req.MaxTokens != 256 {
		t.Errorf("temperature = %v max tokens = %d", req.Temperature, req.MaxTokens)
	}
	for _, want := range []string{
		"You are FRIDAY",
		"Recent conversation context:\nUser: hello\nFRIDAY: Hello! How can I help?\n",
		"Current time: 2026-03-14 09:26:53",
		"Guidelines:",
	} {
		if !strings.Contains(req.SystemPrompt, want) {
			t.Errorf("system prompt missing %q\nprompt:\n%s", want, req.SystemPrompt)
		}
	}
}

func TestSystemPrompt_Context(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 100)
	tests := []struct {
		name        string
		opts        []responder.Option
		history     []orchestrator.Turn
		contains    []string
		notContains []string
	}{
		{
			name:        "no history",
			notContains: []string{"Recent conversation context"},
		},
		{
			name:     "turns clipped",
			history:  turns(long),
			contains: []string{"User: " + strings.Repeat("a", 80) + "...\n"},
		},
		{
			name:        "only the last five turns",
			history:     turns("t1", "t2", "t3", "t4", "t5", "t6", "t7"),
			contains:    []string{"User: t3\n", "FRIDAY: t6\n", "User: t7\n"},
			notContains: []string{"t1", "t2"},
		},
		{
			name:        "custom context window",
			opts:        []responder.Option{responder.WithContextTurns(1)},
			history:     turns("first", "second"),
			contains:    []string{"FRIDAY: second\n"},
			notContains: []string{"first"},
		},
		{
			name:        "context disabled",
			opts:        []responder.Option{responder.WithContextTurns(0)},
			history:     turns("first"),
			notContains: []string{"Recent conversation context", "first"},
		},
		{
			name:     "custom name and persona",
			opts:     []responder.Option{responder.WithName("Jarvis"), responder.WithPersona("You are %s, a butler.")},
			history:  turns("hi", "Good evening."),
			contains: []string{"You are Jarvis, a butler.", "Jarvis: Good evening.\n"},
		},
		{
			name:     "persona without verb",
			opts:     []responder.Option{responder.WithPersona("Be brief.")},
			contains: []string{"Be brief.\n\nCurrent time:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := append([]responder.Option{responder.WithClock(fixedClock)}, tt.opts...)
			prompt := responder.New(&mock.Provider{}, opts...).SystemPrompt(tt.history)
			for _, want := range tt.contains {
				if !strings.Contains(prompt, want) {
					t.Errorf("prompt missing %q\nprompt:\n%s", want, prompt)
				}
			}
			for _, unwanted := range tt.notContains {
				if strings.Contains(prompt, unwanted) {
					t.Errorf("prompt contains %q\nprompt:\n%s", unwanted, prompt)
				}
			}
			if strings.Contains(prompt, "%!") {
				t.Errorf("prompt has a formatting error:\n%s", prompt)
			}
		})
	}
}

func TestRespond_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	tests := []struct {
		name     string
		provider *mock.Provider
		text     string
		wantErr  error
	}{
		{name: "empty input", provider: &mock.Provider{}, text: "  ", wantErr: responder.ErrEmptyInput},
		{name: "provider error", provider: &mock.Provider{CompleteErr: boom}, text: "hi", wantErr: boom},
		{name: "nil response", provider: &mock.Provider{}, text: "hi", wantErr: responder.ErrEmptyReply},
		{name: "blank reply", provider: &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: " \n"}}, text: "hi", wantErr: responder.ErrEmptyReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := responder.New(tt.provider).Respond(context.Background(), tt.text, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func ExampleResponder_SystemPrompt() {
	r := responder.New(&mock.Provider{},
		responder.WithPersona("You are %s."),
		responder.WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
	prompt := r.SystemPrompt([]orchestrator.Turn{{Role: orchestrator.RoleUser, Text: "hello"}})
	fmt.Println(strings.SplitN(prompt, "\n\nGuidelines", 2)[0])
	// Output:
	// You are FRIDAY.
	//
	// Recent conversation context:
	// User: hello
	//
	// Current time: 2026-01-02 03:04:05
}
