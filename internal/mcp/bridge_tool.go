package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/localcoder/internal/tools"
)

const defaultCallTimeoutSec = 30

// toolCaller is the part of the MCP client a bridge tool needs.
type toolCaller interface {
	CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
}

// BridgeTool adapts a remote MCP tool into tools.Tool. Calls are bounded by
// a per-call timeout and every failure comes back as text.
type BridgeTool struct {
	serverName     string
	toolName       string // name on the MCP server
	registeredName string // "{prefix}__{toolName}" when a prefix is set
	description    string
	inputSchema    map[string]interface{}
	client         toolCaller
	timeoutSec     int
	connected      *atomic.Bool
}

func NewBridgeTool(serverName string, mcpTool mcpgo.Tool, client toolCaller, prefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	name := mcpTool.Name
	registered := name
	if prefix != "" {
		registered = prefix + "__" + name
	}
	if timeoutSec <= 0 {
		timeoutSec = defaultCallTimeoutSec
	}

	return &BridgeTool{
		serverName:     serverName,
		toolName:       name,
		registeredName: registered,
		description:    mcpTool.Description,
		inputSchema:    inputSchemaToMap(mcpTool.InputSchema),
		client:         client,
		timeoutSec:     timeoutSec,
		connected:      connected,
	}
}

func (t *BridgeTool) Name() string                       { return t.registeredName }
func (t *BridgeTool) Description() string                { return t.description }
func (t *BridgeTool) Parameters() map[string]interface{} { return t.inputSchema }

// ServerName returns the MCP server this tool belongs to.
func (t *BridgeTool) ServerName() string { return t.serverName }

// OriginalName returns the tool name without prefix.
func (t *BridgeTool) OriginalName() string { return t.toolName }

func (t *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if t.client == nil || t.connected == nil || !t.connected.Load() {
		return tools.ErrorResult("Error: MCP client is not connected")
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(t.timeoutSec)*time.Second)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.toolName
	req.Params.Arguments = args

	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return tools.ErrorResult(fmt.Sprintf("Error calling MCP tool '%s': timeout after %ds", t.toolName, t.timeoutSec)).WithError(err)
		}
		return tools.ErrorResult(fmt.Sprintf("Error calling MCP tool '%s': %v", t.toolName, err)).WithError(err)
	}

	if result == nil {
		return tools.ErrorResult("Error: empty MCP response")
	}
	if result.IsError {
		msg := extractTextContent(result, " ")
		if msg == "" {
			msg = "unknown MCP error"
		}
		return tools.ErrorResult("Error: " + msg)
	}
	return tools.NewResult(extractTextContent(result, "\n"))
}

// inputSchemaToMap converts an MCP input schema to the JSON Schema map used
// in the tool catalog.
func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	m := map[string]interface{}{
		"type": schema.Type,
	}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	} else {
		m["properties"] = map[string]interface{}{}
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.AdditionalProperties != nil {
		m["additionalProperties"] = schema.AdditionalProperties
	}
	return m
}

// extractTextContent joins the text blocks of a result. Non-text blocks are
// noted by type.
func extractTextContent(result *mcpgo.CallToolResult, sep string) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, sep)
}
