package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

type ToolInfo struct {
	Name        string
	Description string
	Params      []ToolParam
}

// ListTools asks the server for its tool list over an in-memory client
// session, the same path a real client takes.
func (s *Server) ListTools(ctx context.Context) ([]ToolInfo, error) {
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcp.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect server: %w", err)
	}
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: ServerName + "-tools", Version: "local"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect client: %w", err)
	}
	defer clientSession.Close()

	res, err := clientSession.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	out := make([]ToolInfo, 0, len(res.Tools))
	for _, tool := range res.Tools {
		params, err := toolParams(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		out = append(out, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			Params:      params,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type inputSchema struct {
	Properties map[string]struct {
		Type        any    `json:"type"`
		Description string `json:"description"`
	} `json:"properties"`
	Required []string `json:"required"`
}

func toolParams(schema any) ([]ToolParam, error) {
	if schema == nil {
		return nil, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var parsed inputSchema
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	required := make(map[string]bool, len(parsed.Required))
	for _, name := range parsed.Required {
		required[name] = true
	}
	params := make([]ToolParam, 0, len(parsed.Properties))
	for name, prop := range parsed.Properties {
		params = append(params, ToolParam{
			Name:        name,
			Type:        schemaType(prop.Type),
			Description: prop.Description,
			Required:    required[name],
		})
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].Required != params[j].Required {
			return params[i].Required
		}
		return params[i].Name < params[j].Name
	})
	return params, nil
}

func schemaType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "any"
}
