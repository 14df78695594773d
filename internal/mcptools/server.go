// Package mcptools serves the engine's memory lookups, and utterance
// recording, as MCP tools so an agent can query its memory directly.
package mcptools

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/memory_graph"
	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/rollover"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// Tool names.
const (
	ToolRecordUtterance    = "record_utterance"
	ToolRecentMemory       = "recent_memory"
	ToolRecentCausalMemory = "recent_causal_memory"
	ToolSummaryMemory      = "summary_memory"
	ToolKnowledgeBase      = "knowledge_base_context"
	ToolConstantContext    = "constant_context"
)

const (
	DefaultK = 3
	MaxK     = 50
)

// Engine is the part of the memory engine exposed as tools.
// *engine.Engine satisfies it.
type Engine interface {
	RecordUtterance(ctx context.Context, speaker, text string) (int64, error)
	RecentMemory(ctx context.Context, query string, k int) (string, []*record_store.MemoryRecord)
	RecentCausalMemory(ctx context.Context, query string, k int) (string, []memory_graph.Exchange)
	SummaryMemory(ctx context.Context, query string, k int) (string, []*rollover.SummaryRecord)
	KnowledgeBaseContext(ctx context.Context, window string, opts knowledgebase.RetrieveOptions) (string, knowledgebase.Result)
	ConstantContext(ctx context.Context, opts knowledgebase.RetrieveOptions) (string, []knowledgebase.Entry)
}

// QueryInput is the input of the memory lookups.
type QueryInput struct {
	Query string `json:"query" jsonschema:"the text to find similar memories for"`
	K     int    `json:"k,omitempty" jsonschema:"maximum number of results, default 3"`
}

// WindowInput is the input of knowledge base retrieval.
type WindowInput struct {
	Window        string `json:"window" jsonschema:"recent conversation text that entry keys are matched against"`
	ExcludeHidden bool   `json:"exclude_hidden,omitempty" jsonschema:"leave out hidden entries"`
}

// ConstantInput is the input of constant_context.
type ConstantInput struct {
	ExcludeHidden bool `json:"exclude_hidden,omitempty" jsonschema:"leave out hidden entries"`
}

// RecordInput is the input of record_utterance.
type RecordInput struct {
	Speaker string `json:"speaker" jsonschema:"who said it"`
	Text    string `json:"text" jsonschema:"what was said"`
}

// TextOutput is the formatted context a lookup produced.
type TextOutput struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// RecordOutput carries the ID of a recorded utterance.
type RecordOutput struct {
	ID int64 `json:"id"`
}

// Options names the server.
type Options struct {
	Name    string
	Version string
	Logger  logger.Logger
}

type tools struct {
	engine Engine
	log    logger.Logger
}

// NewServer creates an MCP server with one tool per engine operation.
func NewServer(e Engine, opts Options) (*mcp.Server, error) {
	if e == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if opts.Name == "" {
		opts.Name = "memory-engine"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	t := &tools{engine: e, log: opts.Logger.WithFields(logger.StringField("component", "mcp"))}

	srv := mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolRecordUtterance,
		Description: "Store one utterance of the conversation in long-term memory.",
	}, t.recordUtterance)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolRecentMemory,
		Description: "Recall past utterances similar to the query, newest first.",
	}, t.recentMemory)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolRecentCausalMemory,
		Description: "Find times the other speaker said something like the query, with the reply and their reaction.",
	}, t.recentCausalMemory)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolSummaryMemory,
		Description: "Find summaries of earlier conversations similar to the query.",
	}, t.summaryMemory)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolKnowledgeBase,
		Description: "Retrieve knowledge base entries whose keys match the conversation window.",
	}, t.knowledgeBase)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolConstantContext,
		Description: "Return the knowledge base entries that are always in context.",
	}, t.constantContext)
	return srv, nil
}

// Handler serves srv over streamable HTTP.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func clampK(k int) int {
	switch {
	case k <= 0:
		return DefaultK
	case k > MaxK:
		return MaxK
	}
	return k
}

func (in QueryInput) validate() error {
	if strings.TrimSpace(in.Query) == "" {
		return errors.New("query is required")
	}
	return nil
}

func (t *tools) recordUtterance(ctx context.Context, _ *mcp.CallToolRequest, in RecordInput) (*mcp.CallToolResult, RecordOutput, error) {
	id, err := t.engine.RecordUtterance(ctx, in.Speaker, in.Text)
	if err != nil {
		return nil, RecordOutput{}, err
	}
	t.log.Debug("Utterance recorded over MCP", logger.RecordIDField(id))
	return textResult("recorded"), RecordOutput{ID: id}, nil
}

func (t *tools) recentMemory(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, TextOutput, error) {
	if err := in.validate(); err != nil {
		return nil, TextOutput{}, err
	}
	text, recs := t.engine.RecentMemory(ctx, in.Query, clampK(in.K))
	return textResult(text), TextOutput{Text: text, Count: len(recs)}, nil
}

func (t *tools) recentCausalMemory(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, TextOutput, error) {
	if err := in.validate(); err != nil {
		return nil, TextOutput{}, err
	}
	text, exchanges := t.engine.RecentCausalMemory(ctx, in.Query, clampK(in.K))
	return textResult(text), TextOutput{Text: text, Count: len(exchanges)}, nil
}

func (t *tools) summaryMemory(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, TextOutput, error) {
	if err := in.validate(); err != nil {
		return nil, TextOutput{}, err
	}
	text, recs := t.engine.SummaryMemory(ctx, in.Query, clampK(in.K))
	return textResult(text), TextOutput{Text: text, Count: len(recs)}, nil
}

func (t *tools) knowledgeBase(ctx context.Context, _ *mcp.CallToolRequest, in WindowInput) (*mcp.CallToolResult, TextOutput, error) {
	if strings.TrimSpace(in.Window) == "" {
		return nil, TextOutput{}, errors.New("window is required")
	}
	text, res := t.engine.KnowledgeBaseContext(ctx, in.Window, knowledgebase.RetrieveOptions{ExcludeHidden: in.ExcludeHidden})
	return textResult(text), TextOutput{Text: text, Count: len(res.Selected)}, nil
}

func (t *tools) constantContext(ctx context.Context, _ *mcp.CallToolRequest, in ConstantInput) (*mcp.CallToolResult, TextOutput, error) {
	text, entries := t.engine.ConstantContext(ctx, knowledgebase.RetrieveOptions{ExcludeHidden: in.ExcludeHidden})
	return textResult(text), TextOutput{Text: text, Count: len(entries)}, nil
}
