package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/blackbird-ai/blackbird-mcp/pkg/compass"
)

// ToolDefinition is the MCP tool descriptor sent in tools/list responses.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func ok(text string) (string, bool) { return text, false }
func fail(text string) (string, bool) { return text, true }
func failf(format string, a ...any) (string, bool) {
	return fmt.Sprintf(format, a...), true
}

// CallRecorder is an optional callback for recording tool call outcomes.
type CallRecorder func(tool string, isErr bool)

// ToolRegistry holds the Compass client and the definitions, compiled
// argument schemas, and handlers for all tools.
type ToolRegistry struct {
	c       *compass.Client
	logger  *zap.Logger
	onCall  CallRecorder
	defs    []ToolDefinition
	schemas map[string]*gojsonschema.Schema
}

// NewToolRegistry creates a ToolRegistry backed by the given Compass client.
// Each tool's inputSchema is compiled once here; arguments are validated
// against it before any upstream call is made.
func NewToolRegistry(c *compass.Client, logger *zap.Logger) (*ToolRegistry, error) {
	r := &ToolRegistry{c: c, logger: logger}
	r.defs = []ToolDefinition{
		{
			Name: "check_context",
			Description: "Check whether the claims in a passage of text are truthful, and how risky " +
				"they are. Runs a Blackbird Compass context check. Useful for fact checking. " +
				"Processing is asynchronous upstream and can take a few minutes.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"context": map[string]any{
						"type":        "string",
						"description": "The passage of text to fact-check.",
					},
				},
				"required": []string{"context"},
			},
		},
		{
			Name: "check_vision",
			Description: "Check whether an image is fake or AI-generated, with an explanation. " +
				"Runs a Blackbird Compass vision analysis on the image at the given URL.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Publicly reachable URL of the image to analyze.",
					},
				},
				"required": []string{"url"},
			},
		},
	}

	r.schemas = make(map[string]*gojsonschema.Schema, len(r.defs))
	for _, def := range r.defs {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", def.Name, err)
		}
		r.schemas[def.Name] = schema
	}
	return r, nil
}

// SetCallRecorder configures the metrics callback.
func (r *ToolRegistry) SetCallRecorder(fn CallRecorder) {
	r.onCall = fn
}

// Definitions returns the list of tool definitions for tools/list responses.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	return r.defs
}

// Call dispatches a tool call by name and returns (output text, isError).
// Every error from the credential, token, or HTTP layers is mapped to a
// host-readable message here — nothing below this line crosses the MCP
// boundary unmapped.
func (r *ToolRegistry) Call(ctx context.Context, name string, args json.RawMessage) (string, bool) {
	text, isErr := r.call(ctx, name, args)
	if r.onCall != nil {
		r.onCall(name, isErr)
	}
	return text, isErr
}

func (r *ToolRegistry) call(ctx context.Context, name string, args json.RawMessage) (string, bool) {
	schema, found := r.schemas[name]
	if !found {
		return failf("unknown tool: %q", name)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	validation, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return failf("invalid arguments: %v", err)
	}
	if !validation.Valid() {
		msgs := make([]string, 0, len(validation.Errors()))
		for _, desc := range validation.Errors() {
			msgs = append(msgs, desc.String())
		}
		return failf("invalid arguments: %s", strings.Join(msgs, "; "))
	}

	switch name {
	case "check_context":
		return r.checkContext(ctx, args)
	case "check_vision":
		return r.checkVision(ctx, args)
	default:
		return failf("unknown tool: %q", name)
	}
}

// ── tool handlers ────────────────────────────────────────────────────────────

func (r *ToolRegistry) checkContext(ctx context.Context, args json.RawMessage) (string, bool) {
	var in struct {
		Context string `json:"context"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("context is required")
	}

	result, err := r.c.SubmitAndWait(ctx, compass.KindContext, in.Context, nil)
	if err != nil {
		return r.mapError("context check", err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	return ok(string(out))
}

func (r *ToolRegistry) checkVision(ctx context.Context, args json.RawMessage) (string, bool) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("url is required")
	}

	result, err := r.c.SubmitAndWait(ctx, compass.KindVision, in.URL, map[string]any{"explain": true})
	if err != nil {
		return r.mapError("vision analysis", err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	return ok(string(out))
}

// mapError translates SDK failures into stable host-facing messages.
// Credentials never appear in these strings.
func (r *ToolRegistry) mapError(op string, err error) (string, bool) {
	r.logger.Warn("tool call failed", zap.String("op", op), zap.Error(err))

	var authErr *compass.AuthError
	if errors.As(err, &authErr) {
		return failf("%s failed: Blackbird authentication was rejected. "+
			"Verify the BLACKBIRD_* credentials and try again. (%v)", op, authErr)
	}

	var exhausted *compass.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return failf("%s failed: the Blackbird API is unavailable (%d attempts made). "+
			"This is a temporary upstream condition — try again shortly. (%v)", op, exhausted.Attempts, exhausted.Last)
	}

	var apiErr *compass.APIError
	if errors.As(err, &apiErr) {
		return failf("%s failed: the Blackbird API rejected the request with HTTP %d. %s", op, apiErr.Status, apiErr.Body)
	}

	return failf("%s failed: %v", op, err)
}
