package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/friday/pkg/provider/llm"
)

// ErrEmptyReply marks a completion that returned no text. The responder
// cannot speak it, so [LLMFallback] treats it as a provider failure.
var ErrEmptyReply = errors.New("empty completion")

// LLMFallback is an [llm.Provider] that walks a list of responder backends,
// each behind its own circuit breaker, until one returns a usable reply.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] that tries primary first.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the end of the list.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Complete returns the first non-empty reply. The same request is replayed
// against each backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return nil, ErrEmptyReply
		}
		return resp, nil
	})
}
