package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"github.com/venturelab/sprint-copilot/internal/config"
	"github.com/venturelab/sprint-copilot/internal/shared"
	"github.com/venturelab/sprint-copilot/internal/tools"
)

// completePhaseTool is the phase-completion signal. It is not a document
// operation: the relay applies it through the phase state machine.
const completePhaseTool = "complete_phase"

// ToolRunner executes one tool call and returns its JSON payload.
// Implemented by the tool dispatcher.
type ToolRunner interface {
	Dispatch(call tools.Call) json.RawMessage
}

// Client is an Engine backed by an OpenAI-compatible chat completion API.
type Client struct {
	api      *openai.Client
	model    string
	runner   ToolRunner
	maxCalls int
}

// NewClient creates an engine client. maxCalls bounds the number of chat
// completion invocations per turn, guarding against runaway tool loops.
func NewClient(cfg config.EngineConfig, runner ToolRunner, maxCalls int) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:      openai.NewClientWithConfig(apiCfg),
		model:    cfg.Model,
		runner:   runner,
		maxCalls: maxCalls,
	}
}

func turnTools() []openai.Tool {
	defs := tools.Definitions()
	defs = append(defs, openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        completePhaseTool,
			Description: "Signal that the current workflow phase is finished, with a summary of its outcomes.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary": map[string]any{
						"type":        "string",
						"description": "Concise summary of what the phase produced",
					},
				},
				"required": []string{"summary"},
			},
		},
	})
	return defs
}

// RunTurn drives one engine invocation: it streams completion deltas,
// executes tool calls through the runner between rounds, and stops when the
// engine produces a final response or the round budget is exhausted.
func (c *Client) RunTurn(ctx context.Context, req TurnRequest) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		messages := []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Message},
		}
		defs := turnTools()

		for call := 0; call < c.maxCalls; call++ {
			content, toolCalls, err := c.streamRound(ctx, messages, defs, yield)
			if err != nil {
				if !errors.Is(err, errStopped) {
					yield(nil, err)
				}
				return
			}
			if len(toolCalls) == 0 {
				return
			}

			messages = append(messages, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
			for _, tc := range toolCalls {
				result, stop := c.runTool(req, tc, yield)
				if stop {
					return
				}
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: tc.ID,
					Content:    string(result),
				})
			}
		}

		yield(nil, shared.Engine("engine call limit reached", nil))
	}
}

// errStopped reports that the consumer stopped iteration; not an error.
var errStopped = errors.New("iteration stopped")

// streamRound performs one streaming chat completion, yielding text deltas
// as they arrive and accumulating any tool call fragments.
func (c *Client) streamRound(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
	defs []openai.Tool,
	yield func(*Event, error) bool,
) (string, []openai.ToolCall, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    defs,
	})
	if err != nil {
		return "", nil, shared.Engine("engine invocation failed", err)
	}
	defer stream.Close()

	var content []byte
	var toolCalls []openai.ToolCall

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return string(content), toolCalls, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, shared.Engine("engine invocation cancelled", ctx.Err())
			}
			return "", nil, shared.Engine("engine stream failed", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content = append(content, delta.Content...)
			if !yield(&Event{Type: EventDelta, Text: delta.Content}, nil) {
				return "", nil, errStopped
			}
		}
		toolCalls = accumulateToolCalls(toolCalls, delta.ToolCalls)
	}
}

// runTool executes a single tool call. The phase-completion signal is
// surfaced as an event instead of hitting the dispatcher. stop is true when
// the consumer stopped iterating.
func (c *Client) runTool(req TurnRequest, tc openai.ToolCall, yield func(*Event, error) bool) (json.RawMessage, bool) {
	name := tc.Function.Name
	args := json.RawMessage(tc.Function.Arguments)

	if name == completePhaseTool {
		var a struct {
			Summary string `json:"summary"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			slog.Warn("Malformed complete_phase arguments", "session_id", req.SessionID, "error", err)
			return json.RawMessage(`{"error":{"kind":"validation","message":"malformed summary"}}`), false
		}
		if !yield(&Event{Type: EventPhaseComplete, Tool: name, Summary: a.Summary}, nil) {
			return nil, true
		}
		return json.RawMessage(`{"success":true}`), false
	}

	slog.Info("Engine tool call", "session_id", req.SessionID, "tool", name)
	result := c.runner.Dispatch(tools.Call{Name: name, Args: args})
	if !yield(&Event{Type: EventToolCall, Tool: name}, nil) {
		return nil, true
	}
	return result, false
}

// accumulateToolCalls folds streamed tool-call fragments into complete
// calls. Fragments for one call share an index; arguments arrive in pieces.
func accumulateToolCalls(acc []openai.ToolCall, deltas []openai.ToolCall) []openai.ToolCall {
	for _, d := range deltas {
		idx := len(acc)
		if d.Index != nil {
			idx = *d.Index
		}
		for len(acc) <= idx {
			acc = append(acc, openai.ToolCall{Type: openai.ToolTypeFunction})
		}
		if d.ID != "" {
			acc[idx].ID = d.ID
		}
		if d.Function.Name != "" {
			acc[idx].Function.Name = d.Function.Name
		}
		acc[idx].Function.Arguments += d.Function.Arguments
	}
	return acc
}
