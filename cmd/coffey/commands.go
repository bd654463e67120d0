package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/coffey/internal/config"
	"github.com/kalambet/coffey/internal/record"
)

// --- note ---

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Post a note to the archive",
	Long: `Post a note to the archive. The server enriches it with
environmental context before persisting.

Examples:
  coffey note --text "Morning run along the river" --tags running
  coffey note --text "Great espresso" --at 52.3702,4.8952 --tags coffee
  coffey note --text "Worth reading" --link https://example.com/article`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		title, _ := cmd.Flags().GetString("title")
		kind, _ := cmd.Flags().GetString("kind")
		at, _ := cmd.Flags().GetString("at")
		tagsStr, _ := cmd.Flags().GetString("tags")
		links, _ := cmd.Flags().GetStringArray("link")
		publish, _ := cmd.Flags().GetBool("publish")

		if text == "" && len(links) == 0 {
			return fmt.Errorf("--text or --link is required")
		}

		req := &record.CreateChatterRequest{
			Kind:    kind,
			Content: text,
			Title:   title,
		}
		if tagsStr != "" {
			tags := strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
			req.Tags = tags
		}
		for _, u := range links {
			req.Links = append(req.Links, record.Link{URL: u})
		}
		if publish {
			req.Publish = &publish
		}
		if at != "" {
			hint, err := parseLatLng(at)
			if err != nil {
				return err
			}
			req.LocationHint = hint
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/admin/chatter", req)
		if err != nil {
			return err
		}

		var result struct {
			ID        string `json:"id"`
			ObjectKey string `json:"object_key"`
			Stored    bool   `json:"stored"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Stored {
			printWarning("Note %s was not indexed, check the server log", result.ID)
			return nil
		}
		printSuccess("Archived %s", result.ID)
		printStatus("Object", "%s", result.ObjectKey)
		return nil
	},
}

func init() {
	noteCmd.Flags().String("text", "", "note text")
	noteCmd.Flags().String("title", "", "note title")
	noteCmd.Flags().String("kind", "note", "record kind")
	noteCmd.Flags().String("at", "", "location hint as lat,lng")
	noteCmd.Flags().String("tags", "", "comma-separated tags")
	noteCmd.Flags().StringArray("link", nil, "link URL (repeatable)")
	noteCmd.Flags().Bool("publish", false, "mark the note for publication")
}

func parseLatLng(s string) (*record.LocationHint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid --at value %q, want lat,lng", s)
	}
	var hint record.LocationHint
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%f", &hint.Lat); err != nil {
		return nil, fmt.Errorf("invalid latitude %q", parts[0])
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%f", &hint.Lng); err != nil {
		return nil, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return &hint, nil
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an archived record by content hash ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/admin/chatter/"+args[0])
		if err != nil {
			return err
		}

		var envelope map[string]any
		if err := decodeJSON(resp, &envelope); err != nil {
			return err
		}
		return jsonOut(envelope)
	},
}

// --- images ---

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Manage hosted images",
}

var imagesUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile(cmd.Context(), "/admin/images", args[0], data)
		if err != nil {
			return err
		}

		var result struct {
			UUID        string `json:"uuid"`
			SHA256      string `json:"sha256"`
			ObjectKey   string `json:"object_key"`
			IsDuplicate bool   `json:"is_duplicate"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.IsDuplicate {
			printWarning("Already uploaded as %s", result.UUID)
			return nil
		}
		printSuccess("Uploaded %s", result.UUID)
		printStatus("SHA-256", "%s", result.SHA256)
		printStatus("Object", "%s", result.ObjectKey)
		return nil
	},
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent images",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/admin/images?limit=%d&offset=%d", limit, offset))
		if err != nil {
			return err
		}

		var images []struct {
			UUID             string `json:"uuid"`
			SHA256           string `json:"sha256"`
			OriginalFilename string `json:"original_filename"`
			UploadedAt       string `json:"uploaded_at"`
		}
		if err := decodeJSON(resp, &images); err != nil {
			return err
		}

		if len(images) == 0 {
			fmt.Println("no images")
			return nil
		}
		for _, img := range images {
			fmt.Printf("%s  %s  %s\n", img.UUID, img.UploadedAt, img.OriginalFilename)
		}
		return nil
	},
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete <sha256>",
	Short: "Delete an image by content hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/admin/images/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	imagesListCmd.Flags().Int("limit", 20, "maximum number of images to list")
	imagesListCmd.Flags().Int("offset", 0, "number of images to skip")

	imagesCmd.AddCommand(imagesUploadCmd)
	imagesCmd.AddCommand(imagesListCmd)
	imagesCmd.AddCommand(imagesDeleteCmd)
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one bookmark sync pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/admin/sync", nil)
		if err != nil {
			return err
		}

		var stats struct {
			New      int `json:"new"`
			Existing int `json:"existing"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printSuccess("Sync complete")
		printStatus("New", "%d", stats.New)
		printStatus("Already archived", "%d", stats.Existing)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			printStatus(k.Key, "%s", k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(config.DefaultFilePath(), key, value); err != nil {
			fmt.Fprintf(os.Stderr, "valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// jsonOut pretty-prints an API payload to stdout.
func jsonOut(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
