package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omnicore/assistant/internal/chat"
	"github.com/omnicore/assistant/internal/config"
	"github.com/omnicore/assistant/internal/ingest"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message to the assistant",
	Long: `Send a message and stream the reply to stdout.

Examples:
  omnicore chat 查一下我的钱包余额
  omnicore chat "what DeFi strategies do you recommend?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.stream(cmd.Context(), "/v1/chat", map[string]string{"message": message})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			var errBody struct {
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Error.Message != "" {
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, errBody.Error.Message)
			}
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			var ev struct {
				Fragment  string `json:"fragment"`
				Done      bool   `json:"done"`
				Cancelled bool   `json:"cancelled"`
			}
			if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
				continue
			}
			if ev.Done {
				fmt.Println()
				if ev.Cancelled {
					printWarning("generation was cancelled")
				}
				return nil
			}
			fmt.Print(ev.Fragment)
		}
		fmt.Println()
		return sc.Err()
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the conversation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/messages")
		if err != nil {
			return err
		}

		var result struct {
			Messages []chat.Message `json:"messages"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Messages) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}
		for _, m := range result.Messages {
			label := "用户"
			color := colorCyan
			if m.Role == chat.RoleAssistant {
				label = "助手"
				color = colorGreen
			}
			fmt.Printf("%s %s\n%s\n\n",
				colorize(color, label),
				m.Timestamp.Local().Format("2006-01-02 15:04"),
				m.Content,
			)
		}
		return nil
	},
}

var chatClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the conversation history (memories are kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/messages")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Conversation cleared")
		return nil
	},
}

func init() {
	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatClearCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available at the configured endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		// Refresh first so the list reflects the endpoint right now.
		refreshResp, err := client.post(cmd.Context(), "/v1/status/refresh", nil)
		if err != nil {
			return err
		}
		var status chat.ConnectionStatus
		if err := decodeJSON(refreshResp, &status); err != nil {
			return err
		}
		if !status.Connected {
			printWarning("endpoint unreachable: %s", status.Error)
		}

		resp, err := client.get(cmd.Context(), "/v1/models")
		if err != nil {
			return err
		}
		var result struct {
			Models []chat.ModelInfo `json:"models"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Models) == 0 {
			fmt.Println("No models available.")
			return nil
		}
		for _, m := range result.Models {
			marker := "  "
			if m.Name == status.Model {
				marker = colorize(colorGreen, "* ")
			}
			fmt.Printf("%s%s  %.1f GB\n", marker, m.Name, float64(m.Size)/(1<<30))
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show daemon configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a daemon configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Show or update the assistant's inference settings",
	Long: `Show the assistant's runtime inference settings, or update them with
flags. Changing endpoint or provider does not probe the endpoint; run
"omnicore models" afterwards to verify connectivity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		patch := chat.ConfigPatch{}
		changed := false
		if cmd.Flags().Changed("provider") {
			v, _ := cmd.Flags().GetString("provider")
			p := chat.Provider(v)
			patch.Provider = &p
			changed = true
		}
		if cmd.Flags().Changed("endpoint") {
			v, _ := cmd.Flags().GetString("endpoint")
			patch.Endpoint = &v
			changed = true
		}
		if cmd.Flags().Changed("model") {
			v, _ := cmd.Flags().GetString("model")
			patch.Model = &v
			changed = true
		}
		if cmd.Flags().Changed("temperature") {
			v, _ := cmd.Flags().GetFloat64("temperature")
			patch.Temperature = &v
			changed = true
		}
		if cmd.Flags().Changed("max-tokens") {
			v, _ := cmd.Flags().GetInt("max-tokens")
			patch.MaxTokens = &v
			changed = true
		}

		var cfg chat.Config
		if changed {
			resp, err := client.patch(cmd.Context(), "/v1/config", patch)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &cfg); err != nil {
				return err
			}
			printSuccess("Configuration updated")
		} else {
			resp, err := client.get(cmd.Context(), "/v1/config")
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &cfg); err != nil {
				return err
			}
		}

		printStatus("Provider", "%s", cfg.Provider)
		printStatus("Endpoint", "%s", cfg.Endpoint)
		printStatus("Model", "%s", cfg.Model)
		printStatus("Temperature", "%.2f", cfg.Temperature)
		printStatus("Max tokens", "%d", cfg.MaxTokens)
		return nil
	},
}

func init() {
	configLLMCmd.Flags().String("provider", "", "inference provider (mock, ollama, custom)")
	configLLMCmd.Flags().String("endpoint", "", "inference endpoint base URL")
	configLLMCmd.Flags().String("model", "", "model name")
	configLLMCmd.Flags().Float64("temperature", 0, "sampling temperature (0-2)")
	configLLMCmd.Flags().Int("max-tokens", 0, "maximum tokens per reply")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configLLMCmd)
}

// --- memories ---

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Manage learned memories",
}

var memoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/memories")
		if err != nil {
			return err
		}
		var result struct {
			Memories []chat.MemoryItem `json:"memories"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Memories) == 0 {
			fmt.Println("No memories stored.")
			return nil
		}
		for _, m := range result.Memories {
			fmt.Printf("%s  [%s]  %s: %s  (confidence %.1f, used %d)\n",
				colorize(colorCyan, m.ID),
				m.Type,
				colorize(colorBold, m.Key),
				m.Value,
				m.Confidence,
				m.UsageCount,
			)
		}
		return nil
	},
}

var memoriesAddCmd = &cobra.Command{
	Use:   "add <key> <value>",
	Short: "Store a memory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		memType, _ := cmd.Flags().GetString("type")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/memories", chat.MemoryDraft{
			Type:       chat.MemoryType(memType),
			Key:        args[0],
			Value:      args[1],
			Confidence: 1.0,
		})
		if err != nil {
			return err
		}
		var item chat.MemoryItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		printSuccess("Remembered %s (%s)", item.Key, item.ID)
		return nil
	},
}

var memoriesRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/memories/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted memory %s", args[0])
		return nil
	},
}

var memoriesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import memories from a document",
	Long: `Scan a text or PDF document line by line with the same extraction
rules used for live conversation, and store every match.

Examples:
  omnicore memories import ./notes.txt
  omnicore memories import ./preferences.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := ingest.ExtractFile(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/memories/import", map[string]string{"text": text})
		if err != nil {
			return err
		}
		var result struct {
			Memories []chat.MemoryItem `json:"memories"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Memories) == 0 {
			printWarning("no memories found in %s", args[0])
			return nil
		}
		printSuccess("Imported %d memories from %s", len(result.Memories), args[0])
		return nil
	},
}

func init() {
	memoriesAddCmd.Flags().String("type", string(chat.MemoryInsight), "memory type (preference, transaction_pattern, contact, insight)")

	memoriesCmd.AddCommand(memoriesListCmd)
	memoriesCmd.AddCommand(memoriesAddCmd)
	memoriesCmd.AddCommand(memoriesRmCmd)
	memoriesCmd.AddCommand(memoriesImportCmd)
}

// --- capabilities ---

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List or toggle assistant capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/capabilities")
		if err != nil {
			return err
		}
		var result struct {
			Capabilities []chat.Capability `json:"capabilities"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, c := range result.Capabilities {
			state := colorize(colorGreen, "on ")
			if !c.Enabled {
				state = colorize(colorYellow, "off")
			}
			fmt.Printf("  %s  %s  %s: %s\n", state, colorize(colorBold, c.ID), c.Name, c.Description)
		}
		return nil
	},
}

var capabilitiesToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Flip a capability on or off (resets on restart)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/capabilities/"+args[0]+"/toggle", nil)
		if err != nil {
			return err
		}
		var result struct {
			Capabilities []chat.Capability `json:"capabilities"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, c := range result.Capabilities {
			if c.ID == args[0] {
				state := "enabled"
				if !c.Enabled {
					state = "disabled"
				}
				printSuccess("%s %s", c.ID, state)
				return nil
			}
		}
		printWarning("unknown capability %q", args[0])
		return nil
	},
}

func init() {
	capabilitiesCmd.AddCommand(capabilitiesToggleCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or purge stored data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export conversation and memories as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var msgs struct {
			Messages []chat.Message `json:"messages"`
		}
		resp, err := client.get(cmd.Context(), "/v1/messages")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}

		var mems struct {
			Memories []chat.MemoryItem `json:"memories"`
		}
		resp, err = client.get(cmd.Context(), "/v1/memories")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &mems); err != nil {
			return err
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		enc := json.NewEncoder(writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"messages": msgs.Messages,
			"memories": mems.Memories,
		}); err != nil {
			return err
		}

		if output != "" {
			printSuccess("Data exported to %s", output)
		}
		return nil
	},
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored data and reset configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the conversation, all memories, and the stored configuration. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/data")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("All data purged")
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm data purge")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataPurgeCmd)
}
