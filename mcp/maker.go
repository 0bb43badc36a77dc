// Package mcp adapts a remote MCP tool server into a sente.DecisionMaker,
// so the pipeline can front a model-backed tactician exposed over the
// Model Context Protocol. One tool call per decision. A call whose caller
// has already fallen back is abandoned, not canceled: it runs to completion
// and its result lands in the decision cache for the next turn. Background
// precompute calls do carry a deadline in their context.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"

	"github.com/ashita-ai/sente"
)

// DefaultTool is the tool name the maker invokes unless overridden.
const DefaultTool = "sente_decide"

// Maker calls a decision tool on a remote MCP server. It implements
// sente.DecisionMaker and is safe for concurrent use; the underlying
// streamable HTTP client multiplexes requests.
type Maker struct {
	client *mcpclient.Client
	tool   string
	logger *slog.Logger
}

// Option configures a Maker.
type Option func(*Maker)

// WithTool overrides the tool name invoked per decision.
func WithTool(name string) Option {
	return func(m *Maker) { m.tool = name }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Maker) { m.logger = logger }
}

// NewMaker connects to the MCP server at endpoint and performs the
// initialize handshake. Headers may carry authentication; pass nil when the
// server is open.
func NewMaker(ctx context.Context, endpoint string, headers map[string]string, opts ...Option) (*Maker, error) {
	var topts []mcptransport.StreamableHTTPCOption
	if len(headers) > 0 {
		topts = append(topts, mcptransport.WithHTTPHeaders(headers))
	}
	c, err := mcpclient.NewStreamableHttpClient(endpoint, topts...)
	if err != nil {
		return nil, fmt.Errorf("mcp client: %w", err)
	}

	if _, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "sente", Version: "1.0"},
		},
	}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	m := &Maker{client: c, tool: DefaultTool, logger: slog.Default()}
	for _, fn := range opts {
		fn(m)
	}
	return m, nil
}

// toolDecision is the JSON shape the decision tool returns in its text
// content.
type toolDecision struct {
	Action     string  `json:"action"`
	Targets    []coord `json:"targets,omitempty"`
	Confidence float32 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
	Expected   string  `json:"expected_outcome,omitempty"`
}

type coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Compute implements sente.DecisionMaker. Errors here are not fatal to the
// caller: the pipeline degrades to its fallback table.
func (m *Maker) Compute(ctx context.Context, unitID string, tc sente.Context) (sente.Decision, error) {
	res, err := m.client.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name: m.tool,
			Arguments: map[string]any{
				"unit_id":       unitID,
				"hp":            tc.HP,
				"max_hp":        tc.MaxHP,
				"mp":            tc.MP,
				"max_mp":        tc.MaxMP,
				"enemies_alive": tc.EnemiesAlive,
				"allies_alive":  tc.AlliesAlive,
				"turn":          tc.Turn,
				"tags":          tc.Tags,
			},
		},
	})
	if err != nil {
		return sente.Decision{}, fmt.Errorf("call %s: %w", m.tool, err)
	}
	if res.IsError {
		m.logger.Debug("mcp: tool returned error result",
			"tool", m.tool, "unit_id", unitID)
		return sente.Decision{}, fmt.Errorf("tool %s returned error: %v", m.tool, res.Content)
	}
	return decodeDecision(res.Content)
}

// decodeDecision extracts the first text content block and unmarshals it.
func decodeDecision(content []mcplib.Content) (sente.Decision, error) {
	for _, c := range content {
		txt, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var td toolDecision
		if err := json.Unmarshal([]byte(txt.Text), &td); err != nil {
			return sente.Decision{}, fmt.Errorf("decode decision: %w", err)
		}
		if td.Action == "" {
			return sente.Decision{}, fmt.Errorf("decision missing action")
		}
		targets := make([]sente.Position, len(td.Targets))
		for i, t := range td.Targets {
			targets[i] = sente.Position{X: t.X, Y: t.Y}
		}
		return sente.Decision{
			Action:     td.Action,
			Targets:    targets,
			Confidence: td.Confidence,
			Rationale:  td.Rationale,
			Expected:   td.Expected,
		}, nil
	}
	return sente.Decision{}, fmt.Errorf("no text content in tool result")
}

// Close shuts down the underlying MCP client.
func (m *Maker) Close() error {
	return m.client.Close()
}
