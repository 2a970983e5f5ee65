// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider].
// One adapter covers every hosted and local backend the library knows, so
// the responder can fall back from Gemini to Anthropic to a local Ollama
// without a dedicated client per vendor.
//
//	p, err := anyllm.New("gemini", "gemini-2.0-flash", anyllm.Options("key", "")...)
package anyllm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/friday/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// backend describes one any-llm-go provider package.
type backend struct {
	open func(...anyllmlib.Option) (anyllmlib.Provider, error)

	// local backends run on the user's machine and take no API key.
	local bool
}

var backends = map[string]backend{
	"openai":    {open: wrap(anyllmoai.New)},
	"anthropic": {open: wrap(anthropic.New)},
	"gemini":    {open: wrap(gemini.New)},
	"deepseek":  {open: wrap(deepseek.New)},
	"mistral":   {open: wrap(mistral.New)},
	"groq":      {open: wrap(groq.New)},
	"ollama":    {open: wrap(ollama.New), local: true},
	"llamacpp":  {open: wrap(llamacpp.New), local: true},
	"llamafile": {open: wrap(llamafile.New), local: true},
}

// wrap erases the concrete provider type returned by each backend package.
func wrap[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) func(...anyllmlib.Option) (anyllmlib.Provider, error) {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		p, err := fn(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Backends returns the supported backend names in sorted order.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

// Local reports whether name is a backend that runs on the local machine.
func Local(name string) bool {
	return backends[strings.ToLower(name)].local
}

// Options builds the any-llm-go options for a provider entry. Empty values
// are skipped so the library falls back to its environment variables and
// default endpoints. Local backends never receive an API key.
func Options(name, apiKey, baseURL string) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if apiKey != "" && !Local(name) {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	return opts
}

// Provider wraps one any-llm-go backend and model.
type Provider struct {
	name    string
	backend anyllmlib.Provider
	model   string
}

// New opens the named backend (see [Backends]) for model. Without an API key
// option hosted backends read their usual environment variable, such as
// GEMINI_API_KEY.
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	b, ok := backends[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (supported: %s)",
			name, strings.Join(Backends(), ", "))
	}
	client, err := b.open(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: open %s: %w", name, err)
	}
	return &Provider{name: strings.ToLower(name), backend: client, model: model}, nil
}

// Complete implements llm.Provider. A reply without text is an error so the
// responder's fallback chain moves on to the next backend.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if text == "" {
		return nil, fmt.Errorf("anyllm: %s returned an empty reply", p.name)
	}
	out := &llm.CompletionResponse{Content: text}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		temp := req.Temperature
		params.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		limit := req.MaxTokens
		params.MaxTokens = &limit
	}
	return params
}
