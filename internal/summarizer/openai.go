package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI summarizes through the chat completions API or a compatible server.
type OpenAI struct {
	client *openai.Client
	opts   Options
}

// NewOpenAI creates a chat completions summarizer.
func NewOpenAI(apiKey string, opts Options, reqOpts ...option.RequestOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, reqOpts...)...)
	return &OpenAI{client: &client, opts: opts}, nil
}

// Name returns the model name.
func (o *OpenAI) Name() string {
	return o.opts.Model
}

// Summarize sends the system prompt and transcript and returns the first choice.
func (o *OpenAI) Summarize(ctx context.Context, in Input) (string, error) {
	t, err := checkTranscript(in.Transcript)
	if err != nil {
		return "", err
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     o.opts.Model,
		MaxTokens: openai.Int(o.opts.maxTokens()),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(o.opts.AgentName, in.Background)),
			openai.UserMessage(t),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptySummary
	}
	summary := strings.TrimSpace(completion.Choices[0].Message.Content)
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}
