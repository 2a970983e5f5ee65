// Package responder produces the assistant's replies with a language model.
//
// Each request carries a persona system prompt, a compact excerpt of the most
// recent turns and the current time. The conversation itself is kept by the
// orchestrator; the responder is stateless and safe for concurrent use.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/friday/internal/orchestrator"
	"github.com/MrWong99/friday/pkg/provider/llm"
)

var (
	// ErrEmptyInput is returned when there is nothing to reply to.
	ErrEmptyInput = errors.New("responder: empty input")

	// ErrEmptyReply is returned when the model answered with no text.
	ErrEmptyReply = errors.New("responder: empty reply")
)

const (
	defaultName         = "FRIDAY"
	defaultContextTurns = 5
	turnClip            = 80
	timeLayout          = "2006-01-02 15:04:05"
)

// DefaultPersona describes the assistant. %s is replaced by the assistant's
// name.
const DefaultPersona = `You are %s, an advanced personal AI assistant. You are:

- Intelligent, helpful and conversational with a sophisticated but approachable personality
- Professional yet friendly, addressing the user respectfully
- Knowledgeable about technology, science and everyday topics
- Able to remember and reference the conversation so far`

const guidelines = `Guidelines:
- Your replies are spoken aloud, so keep them conversational and free of markup
- Be concise unless detail is specifically requested
- Reference previous conversation when relevant
- Do not assume that every mention of a website or app is a request to open it`

// Option is a functional option for [New].
type Option func(*Responder)

// WithName sets the assistant name used in the persona and the context
// excerpt. Default: "FRIDAY".
func WithName(name string) Option {
	return func(r *Responder) {
		r.name = name
	}
}

// WithPersona replaces the persona prompt. A %s verb, if present, receives
// the assistant name.
func WithPersona(persona string) Option {
	return func(r *Responder) {
		r.persona = persona
	}
}

// WithContextTurns sets how many recent turns are quoted in the prompt.
// Default: 5.
func WithContextTurns(n int) Option {
	return func(r *Responder) {
		r.contextTurns = n
	}
}

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) Option {
	return func(r *Responder) {
		r.temperature = t
	}
}

// WithMaxTokens caps the reply length. Zero keeps the provider default.
func WithMaxTokens(n int) Option {
	return func(r *Responder) {
		r.maxTokens = n
	}
}

// WithClock replaces time.Now for the timestamp in the prompt.
func WithClock(now func() time.Time) Option {
	return func(r *Responder) {
		r.now = now
	}
}

// Responder implements [orchestrator.Responder] over an [llm.Provider].
type Responder struct {
	llm          llm.Provider
	name         string
	persona      string
	contextTurns int
	temperature  float64
	maxTokens    int
	now          func() time.Time
}

var _ orchestrator.Responder = (*Responder)(nil)

// New returns a responder backed by provider.
func New(provider llm.Provider, opts ...Option) *Responder {
	r := &Responder{
		llm:          provider,
		name:         defaultName,
		persona:      DefaultPersona,
		contextTurns: defaultContextTurns,
		now:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.contextTurns < 0 {
		r.contextTurns = 0
	}
	return r
}

// Respond asks the model for a reply to text. history holds the turns before
// text, oldest first.
func (r *Responder) Respond(ctx context.Context, text string, history []orchestrator.Turn) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}

	req := llm.CompletionRequest{
		SystemPrompt: r.SystemPrompt(history),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}
	resp, err := r.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("responder: complete: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(resp.Content), nil
}

// SystemPrompt renders the system prompt for a request following history.
func (r *Responder) SystemPrompt(history []orchestrator.Turn) string {
	persona := r.persona
	if strings.Contains(persona, "%s") {
		persona = fmt.Sprintf(persona, r.name)
	}

	sections := []string{persona}
	if excerpt := r.excerpt(history); excerpt != "" {
		sections = append(sections, "Recent conversation context:\n"+excerpt)
	}
	sections = append(sections, "Current time: "+r.now().Format(timeLayout), guidelines)
	return strings.Join(sections, "\n\n")
}

// excerpt quotes the last contextTurns turns, each clipped.
func (r *Responder) excerpt(history []orchestrator.Turn) string {
	if r.contextTurns == 0 || len(history) == 0 {
		return ""
	}
	recent := history[max(0, len(history)-r.contextTurns):]
	lines := make([]string, len(recent))
	for i, t := range recent {
		speaker := "User"
		if t.Role == orchestrator.RoleAssistant {
			speaker = r.name
		}
		lines[i] = speaker + ": " + clip(t.Text, turnClip)
	}
	return strings.Join(lines, "\n")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
