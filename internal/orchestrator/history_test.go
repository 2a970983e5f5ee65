package orchestrator_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/friday/internal/orchestrator"
)

func TestHistory_DropsOldest(t *testing.T) {
	t.Parallel()

	h := orchestrator.NewHistory(3)
	for _, text := range []string{"a", "b", "c", "d"} {
		h.Add(orchestrator.RoleUser, text)
	}
	turns := h.Turns()
	if len(turns) != 3 || turns[0].Text != "b" || turns[2].Text != "d" {
		t.Fatalf("turns = %+v, want b..d", turns)
	}
	if turns[0].ID == "" || turns[0].ID == turns[1].ID {
		t.Error("turns should carry distinct IDs")
	}
	turns[0].Text = "mutated"
	if h.Turns()[0].Text != "b" {
		t.Error("Turns() must return a copy")
	}
	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Len() after Clear = %d", h.Len())
	}
}

func TestHistory_Summary(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 60)
	tests := []struct {
		name  string
		turns []string // alternating user, assistant
		want  string
	}{
		{name: "empty", want: "No conversation history"},
		{
			name:  "one exchange",
			turns: []string{"what time is it", "Noon."},
			want:  "Conversation: 1 exchanges. Recent topics: what time is it",
		},
		{
			name:  "long topic clipped",
			turns: []string{long, "ok"},
			want:  "Conversation: 1 exchanges. Recent topics: " + strings.Repeat("x", 50) + "...",
		},
		{
			name:  "only recent window",
			turns: []string{"one", "1", "two", "2", "three", "3", "four", "4"},
			want:  "Conversation: 4 exchanges. Recent topics: two, three, four",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := orchestrator.NewHistory(20)
			for i, text := range tt.turns {
				role := orchestrator.RoleUser
				if i%2 == 1 {
					role = orchestrator.RoleAssistant
				}
				h.Add(role, text)
			}
			if got := h.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}
