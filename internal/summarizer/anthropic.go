package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic summarizes with a Claude model through the Messages API.
type Anthropic struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropic creates a Claude summarizer.
func NewAnthropic(apiKey string, opts Options, reqOpts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if opts.Model == "" {
		opts.Model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, reqOpts...)...)
	return &Anthropic{client: client, opts: opts}, nil
}

// Name returns the model name.
func (a *Anthropic) Name() string {
	return a.opts.Model
}

// Summarize sends the transcript as a single user message.
func (a *Anthropic) Summarize(ctx context.Context, in Input) (string, error) {
	t, err := checkTranscript(in.Transcript)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.opts.Model),
		MaxTokens: a.opts.maxTokens(),
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt(a.opts.AgentName, in.Background)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(t)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}

	var parts []string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok && tb.Text != "" {
			parts = append(parts, tb.Text)
		}
	}
	summary := strings.TrimSpace(strings.Join(parts, "\n"))
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}
