package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/coffey/internal/record"
)

// MCPDeps holds dependencies for the MCP server. The services are the
// same ones the HTTP admin routes use.
type MCPDeps struct {
	Chatters ChatterService
	Images   ImageService
	Places   PlacesSource
}

// NewMCPServer creates an MCP server with the content tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"coffey",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("coffey — content archive for enriched notes, hosted images and bookmarks."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_chatter",
			mcp.WithDescription("Create an enriched chatter record. The request is a JSON object with kind, data, tags, created_at, location_hint, place, links and watched fields; environmental context is attached automatically when coordinates are present."),
			mcp.WithString("request", mcp.Description("JSON object describing the chatter to create"), mcp.Required()),
		),
		mcpCreateChatter(deps),
	)

	s.AddTool(
		mcp.NewTool("find_nearby_places",
			mcp.WithDescription("Find places of interest around coordinates, nearest first."),
			mcp.WithNumber("lat", mcp.Description("Latitude"), mcp.Required()),
			mcp.WithNumber("lng", mcp.Description("Longitude"), mcp.Required()),
			mcp.WithNumber("radius", mcp.Description("Search radius in meters (default 500)")),
		),
		mcpFindNearbyPlaces(deps),
	)

	s.AddTool(
		mcp.NewTool("list_images",
			mcp.WithDescription("List the most recently uploaded images."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpListImages(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"content://images/recent",
			"Recent Images",
			mcp.WithResourceDescription("Last 10 uploaded images as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentImages(deps),
	)

	return s
}

func mcpCreateChatter(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("request")
		if err != nil {
			return mcpError("request is required"), nil
		}

		var create record.CreateChatterRequest
		if err := json.Unmarshal([]byte(raw), &create); err != nil {
			return mcpError(fmt.Sprintf("invalid request JSON: %v", err)), nil
		}

		result, err := deps.Chatters.Create(ctx, &create)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create chatter: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created chatter %s at %s", result.Envelope.ID, result.ObjectKey)), nil
	}
}

func mcpFindNearbyPlaces(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lat, err := req.RequireFloat("lat")
		if err != nil {
			return mcpError("lat is required"), nil
		}
		lng, err := req.RequireFloat("lng")
		if err != nil {
			return mcpError("lng is required"), nil
		}
		radius := req.GetFloat("radius", 0)

		snap, err := deps.Places.Nearby(ctx, lat, lng, radius)
		if err != nil {
			return mcpError(fmt.Sprintf("places lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(snap)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListImages(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		images, err := deps.Images.List(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list images: %v", err)), nil
		}
		if len(images) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(images)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal images: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentImages(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		images, err := deps.Images.List(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list images: %w", err)
		}

		type imageSummary struct {
			UUID             string `json:"uuid"`
			SHA256           string `json:"sha256"`
			OriginalFilename string `json:"original_filename"`
			UploadedAt       string `json:"uploaded_at"`
		}
		summaries := make([]imageSummary, len(images))
		for i, img := range images {
			summaries[i] = imageSummary{
				UUID:             img.UUID,
				SHA256:           img.SHA256,
				OriginalFilename: img.OriginalFilename,
				UploadedAt:       img.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal images: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
