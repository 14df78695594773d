// Package summarizer turns an archived transcript into a short first-person
// summary for the rollover engine.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lewisedginton/memory_engine/internal/tokens"
)

// DefaultMaxTokens bounds the model output.
const DefaultMaxTokens = 400

// ErrEmptyTranscript is returned for a transcript with nothing to summarize.
var ErrEmptyTranscript = errors.New("transcript is empty")

// ErrEmptySummary is returned when a model answers with no text.
var ErrEmptySummary = errors.New("model returned an empty summary")

// Input is one archived conversation plus the context a reply to it would
// have been written with.
type Input struct {
	Transcript string
	// Background holds constant entries, knowledge base text and earlier
	// summaries; empty when none applied
	Background string
}

// Summarizer produces a summary of one archived conversation.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) (string, error)
	Name() string
}

// Options configure the model-backed summarizers.
type Options struct {
	Model     string
	AgentName string
	MaxTokens int64
}

func (o Options) maxTokens() int64 {
	if o.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return o.MaxTokens
}

// SystemPrompt is the instruction sent with every transcript. background is
// appended as what the agent already knew during the conversation.
func SystemPrompt(agent, background string) string {
	if agent == "" {
		agent = "the assistant"
	}
	prompt := fmt.Sprintf("You are %s. Below is the transcript of a conversation you just had. "+
		"Summarize it in a few sentences, in the first person, keeping names, plans, feelings and anything "+
		"you promised to do. Reply with the summary only.", agent)
	if b := strings.TrimSpace(background); b != "" {
		prompt += "\n\nWhat you knew during the conversation:\n" + b
	}
	return prompt
}

func checkTranscript(transcript string) (string, error) {
	t := strings.TrimSpace(transcript)
	if t == "" {
		return "", ErrEmptyTranscript
	}
	return t, nil
}

// Extractive keeps the opening of the transcript. It needs no model and is
// used for local runs and tests.
type Extractive struct {
	MaxTokens int
}

// Name returns "extractive".
func (e Extractive) Name() string {
	return "extractive"
}

// Summarize returns the first MaxTokens whitespace tokens of the transcript on
// one line. The background is not used.
func (e Extractive) Summarize(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := checkTranscript(in.Transcript)
	if err != nil {
		return "", err
	}
	limit := e.MaxTokens
	if limit <= 0 {
		limit = DefaultMaxTokens
	}
	return tokens.Trim(t, limit), nil
}
