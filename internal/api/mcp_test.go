package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/coffey/internal/content"
	"github.com/kalambet/coffey/internal/record"
	"github.com/kalambet/coffey/internal/storage"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func newTestMCPDeps() MCPDeps {
	return MCPDeps{
		Chatters: &stubChatters{result: &content.ChatterResult{
			Envelope:  record.Envelope{ID: "sha256:abc", SHA256: "abc"},
			ObjectKey: "chatter/json/2026-08-29-sha_abc.json",
			Stored:    true,
		}},
		Images: &stubImages{},
		Places: &stubPlaces{},
	}
}

func TestMCPCreateChatter(t *testing.T) {
	deps := newTestMCPDeps()
	handler := mcpCreateChatter(deps)

	req := makeCallToolRequest("create_chatter", map[string]interface{}{
		"request": `{"kind":"note","data":"walked the dog"}`,
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "sha256:abc") {
		t.Errorf("text = %q", text)
	}

	got := deps.Chatters.(*stubChatters).got
	if got == nil || got.Kind != "note" {
		t.Errorf("service received %+v", got)
	}
}

func TestMCPCreateChatterRejectsBadJSON(t *testing.T) {
	handler := mcpCreateChatter(newTestMCPDeps())
	req := makeCallToolRequest("create_chatter", map[string]interface{}{
		"request": "{not json",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for invalid JSON")
	}
}

func TestMCPCreateChatterRequiresRequest(t *testing.T) {
	handler := mcpCreateChatter(newTestMCPDeps())
	result, err := handler(context.Background(), makeCallToolRequest("create_chatter", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing request")
	}
}

func TestMCPFindNearbyPlaces(t *testing.T) {
	deps := newTestMCPDeps()
	places := &stubPlaces{}
	deps.Places = places
	handler := mcpFindNearbyPlaces(deps)

	req := makeCallToolRequest("find_nearby_places", map[string]interface{}{
		"lat":    47.6,
		"lng":    -122.3,
		"radius": 250.0,
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if places.gotRadius != 250 {
		t.Errorf("radius = %v", places.gotRadius)
	}

	var snap record.Snapshot[record.NearbyPlacesSummary]
	if err := json.Unmarshal([]byte(toolText(t, result)), &snap); err != nil {
		t.Errorf("result is not a snapshot: %v", err)
	}
}

func TestMCPFindNearbyPlacesRequiresCoordinates(t *testing.T) {
	handler := mcpFindNearbyPlaces(newTestMCPDeps())
	result, err := handler(context.Background(), makeCallToolRequest("find_nearby_places", map[string]interface{}{
		"lat": 47.6,
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing lng")
	}
}

func TestMCPListImages(t *testing.T) {
	deps := newTestMCPDeps()
	deps.Images = &stubImages{images: []storage.Image{
		{SHA256: "abc", UUID: "u1", OriginalFilename: "a.jpg", CreatedAt: time.Now()},
		{SHA256: "def", UUID: "u2", OriginalFilename: "b.jpg", CreatedAt: time.Now()},
	}}
	handler := mcpListImages(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_images", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var images []storage.Image
	if err := json.Unmarshal([]byte(toolText(t, result)), &images); err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Errorf("got %d images", len(images))
	}
}

func TestMCPListImagesEmpty(t *testing.T) {
	handler := mcpListImages(newTestMCPDeps())
	result, err := handler(context.Background(), makeCallToolRequest("list_images", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Errorf("text = %q", text)
	}
}

func TestMCPResourceRecentImages(t *testing.T) {
	deps := newTestMCPDeps()
	deps.Images = &stubImages{images: []storage.Image{
		{SHA256: "abc", UUID: "u1", OriginalFilename: "a.jpg", CreatedAt: time.Now()},
	}}
	handler := mcpResourceRecentImages(deps)

	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "content://images/recent"},
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents", len(contents))
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"a.jpg"`) {
		t.Errorf("resource text = %q", text)
	}
}
