package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transcript = "Maggie: I got the job!\nAva: Congratulations, when do you start?\nMaggie: Monday."

func TestExtractive(t *testing.T) {
	ctx := context.Background()

	got, err := Extractive{MaxTokens: 4}.Summarize(ctx, Input{Transcript: transcript, Background: "Maggie is a nurse."})
	require.NoError(t, err)
	assert.Equal(t, "Maggie: I got the", got)

	_, err = Extractive{}.Summarize(ctx, Input{Transcript: "  \n "})
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestSystemPrompt(t *testing.T) {
	assert.Contains(t, SystemPrompt("Ava", ""), "You are Ava.")
	assert.Contains(t, SystemPrompt("", ""), "You are the assistant.")
	assert.NotContains(t, SystemPrompt("Ava", "  "), "What you knew")

	withBackground := SystemPrompt("Ava", "Maggie is a nurse.\n")
	assert.True(t, strings.HasSuffix(withBackground, "What you knew during the conversation:\nMaggie is a nurse."), withBackground)
}

func TestNewAnthropic(t *testing.T) {
	_, err := NewAnthropic("", Options{})
	assert.Error(t, err)

	s, err := NewAnthropic("key", Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, s.Name())
}

func TestNewOpenAI(t *testing.T) {
	_, err := NewOpenAI("", Options{Model: "gpt-4o-mini"})
	assert.Error(t, err)
	_, err = NewOpenAI("key", Options{})
	assert.Error(t, err)

	s, err := NewOpenAI("key", Options{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", s.Name())
}

func TestAnthropicSummarize(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "  Maggie got the job and starts Monday. "}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 8}
		}`))
	}))
	defer srv.Close()

	s, err := NewAnthropic("key", Options{Model: "claude-test", AgentName: "Ava"},
		anthropicopt.WithBaseURL(srv.URL+"/"), anthropicopt.WithMaxRetries(0))
	require.NoError(t, err)

	summary, err := s.Summarize(context.Background(), Input{Transcript: transcript, Background: "Maggie applied to the clinic."})
	require.NoError(t, err)
	assert.Equal(t, "Maggie got the job and starts Monday.", summary)
	assert.Contains(t, mustJSON(t, got["system"]), "Maggie applied to the clinic.")

	assert.Equal(t, "claude-test", got["model"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	assert.Contains(t, mustJSON(t, got["system"]), "You are Ava.")
	assert.Contains(t, mustJSON(t, got["messages"]), "Monday.")
}

func TestAnthropicSummarizeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`))
	}))
	defer srv.Close()

	s, err := NewAnthropic("key", Options{Model: "claude-test"},
		anthropicopt.WithBaseURL(srv.URL+"/"), anthropicopt.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), Input{Transcript: transcript})
	assert.Error(t, err)

	_, err = s.Summarize(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestOpenAISummarize(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "first choice",
			body: `{"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-test",
				"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "A short summary."}}]}`,
			want: "A short summary.",
		},
		{
			name:    "no choices",
			body:    `{"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-test", "choices": []}`,
			wantErr: ErrEmptySummary,
		},
		{
			name: "blank content",
			body: `{"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-test",
				"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  "}}]}`,
			wantErr: ErrEmptySummary,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s, err := NewOpenAI("key", Options{Model: "gpt-test", AgentName: "Ava", MaxTokens: 120},
				openaiopt.WithBaseURL(srv.URL+"/"), openaiopt.WithMaxRetries(0))
			require.NoError(t, err)

			summary, err := s.Summarize(context.Background(), Input{Transcript: transcript, Background: "Maggie applied to the clinic."})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, summary)
			assert.EqualValues(t, 120, got["max_tokens"])
			assert.Contains(t, mustJSON(t, got["messages"]), "You are Ava.")
			assert.Contains(t, mustJSON(t, got["messages"]), "Maggie applied to the clinic.")
		})
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
