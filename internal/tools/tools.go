// Package tools exposes the service as MCP tools: endpointify,
// endpointify_generate and get_status.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"forge-endpointify/internal/models"
	"forge-endpointify/internal/service"
	"forge-endpointify/internal/workspace"
)

const (
	NameEndpointify = "endpointify"
	NameGenerate    = "endpointify_generate"
	NameStatus      = "get_status"
)

var ErrInvalidArguments = errors.New("tools: invalid arguments")

// Scopes accepted by get_status.
var Scopes = []string{"all", "apps", "activity", "jobs"}

type EndpointifyInput struct {
	URL     string         `json:"url"`
	Options models.Options `json:"options,omitempty"`
}

type EndpointifyOutput struct {
	Message string                   `json:"message"`
	JobID   string                   `json:"endpointify_job_id"`
	Result  *models.ExtractionResult `json:"endpointify_result"`
}

type GenerateInput struct {
	JobID    string   `json:"endpointify_job_id"`
	Selected []string `json:"selected_components"`
}

type GenerateOutput struct {
	Message string          `json:"message"`
	JobID   string          `json:"endpointify_job_id"`
	AppID   string          `json:"generated_app_id"`
	App     models.AppEntry `json:"app"`
}

type StatusInput struct {
	Scope string `json:"scope,omitempty"`
}

type StatusOutput struct {
	Message   string             `json:"message"`
	Scope     string             `json:"scope"`
	Workspace workspace.Snapshot `json:"workspace"`
}

// Handler runs tool calls against a service. The HTTP API reuses it so
// both surfaces produce identical payloads.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func NewHandler(svc *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.With(zap.String("component", "tools"))}
}

func (h *Handler) Endpointify(ctx context.Context, in EndpointifyInput) (*EndpointifyOutput, error) {
	if in.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidArguments)
	}
	if in.Options.TimeoutMs < 0 {
		return nil, fmt.Errorf("%w: options.timeoutMs must be positive", ErrInvalidArguments)
	}
	job, err := h.svc.Endpointify(ctx, in.URL, in.Options)
	if err != nil {
		return nil, err
	}
	return &EndpointifyOutput{
		Message: fmt.Sprintf("Detected %d components", len(job.Result.Components)),
		JobID:   job.ID,
		Result:  job.Result,
	}, nil
}

func (h *Handler) Generate(_ context.Context, in GenerateInput) (*GenerateOutput, error) {
	if in.JobID == "" {
		return nil, fmt.Errorf("%w: endpointify_job_id is required", ErrInvalidArguments)
	}
	app, err := h.svc.Generate(in.JobID, in.Selected)
	if err != nil {
		return nil, err
	}
	return &GenerateOutput{
		Message: "Generated " + app.Name,
		JobID:   in.JobID,
		AppID:   app.ID,
		App:     app,
	}, nil
}

func (h *Handler) Status(_ context.Context, in StatusInput) (*StatusOutput, error) {
	scope := in.Scope
	if scope == "" {
		scope = "all"
	}
	snap := h.svc.Store.Snapshot()
	switch scope {
	case "all":
	case "apps":
		snap.Jobs, snap.Activity, snap.ToolCalls = nil, nil, nil
	case "activity":
		snap.Apps, snap.Jobs = nil, nil
	case "jobs":
		snap.Apps, snap.Activity, snap.ToolCalls = nil, nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidArguments, scope)
	}
	h.svc.Store.LogToolCall(NameStatus, "")
	return &StatusOutput{Message: "Workspace status ready", Scope: scope, Workspace: snap}, nil
}

// Register adds the three tools to srv.
func Register(srv *mcp.Server, h *Handler) {
	addTool(srv, h.logger, &mcp.Tool{
		Name:        NameEndpointify,
		Description: "Analyze a URL and extract interactive components as MCP-ready primitives.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Absolute http(s) URL to analyze"},
			"options": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"forceLive":      map[string]any{"type": "boolean"},
					"timeoutMs":      map[string]any{"type": "integer", "minimum": 1},
					"backgroundLive": map[string]any{"type": "boolean"},
				},
			},
		}, []string{"url"}),
	}, h.Endpointify)

	addTool(srv, h.logger, &mcp.Tool{
		Name:        NameGenerate,
		Description: "Generate a new app definition from selected endpoint components.",
		InputSchema: inputSchema(map[string]any{
			"endpointify_job_id": map[string]any{"type": "string"},
			"selected_components": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"minItems": 1,
			},
		}, []string{"endpointify_job_id", "selected_components"}),
	}, h.Generate)

	addTool(srv, h.logger, &mcp.Tool{
		Name:        NameStatus,
		Description: "Get current in-memory app, job, and activity status.",
		InputSchema: inputSchema(map[string]any{
			"scope": map[string]any{"type": "string", "enum": Scopes},
		}, nil),
	}, h.Status)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool decodes raw arguments into In, runs fn and returns its output as
// JSON text. Failures become tool errors rather than protocol errors.
func addTool[In, Out any](srv *mcp.Server, logger *zap.Logger, tool *mcp.Tool, fn func(context.Context, In) (*Out, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in In
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
				return toolError(fmt.Errorf("%w: %v", ErrInvalidArguments, err)), nil
			}
		}

		out, err := fn(ctx, in)
		if err != nil {
			logger.Debug("tool failed", zap.String("tool", tool.Name), zap.Error(err))
			return toolError(err), nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
