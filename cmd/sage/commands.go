package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/sage/internal/config"
	"github.com/kalambet/sage/internal/intent"
	"github.com/kalambet/sage/internal/logging"
	"github.com/kalambet/sage/internal/orchestrator"
	"github.com/kalambet/sage/internal/pipeline"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a question and stream the answer",
	Long: `Ask a question and stream the answer from the running server.

Examples:
  sage ask "What does the author mean by attention?"
  sage ask --variant research "How do I begin a daily practice?"
  sage ask --show-reasoning --memory "new to meditation" "Where do I start?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, _ := cmd.Flags().GetString("variant")
		memory, _ := cmd.Flags().GetString("memory")
		topK, _ := cmd.Flags().GetInt("top-k")
		showReasoning, _ := cmd.Flags().GetBool("show-reasoning")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		q := pipeline.Query{
			Text:    strings.Join(args, " "),
			Variant: variant,
			Memory:  memory,
			TopK:    topK,
		}
		r := &eventRenderer{out: cmd.OutOrStdout(), status: cmd.ErrOrStderr(), showReasoning: showReasoning}
		return runAsk(ctx, client, q, r)
	},
}

func runAsk(ctx context.Context, client *apiClient, q pipeline.Query, r *eventRenderer) error {
	resp, err := client.post(ctx, "/v1/ask", q)
	if err != nil {
		return err
	}
	last, err := streamEvents(resp, r.render)
	if err != nil {
		return err
	}
	if last.Type == orchestrator.EventPipelineError {
		return fmt.Errorf("pipeline failed at stage %d (%s)", last.Stage, last.StageName)
	}
	return nil
}

func init() {
	askCmd.Flags().String("variant", "", "pipeline variant (see `sage pipelines`)")
	askCmd.Flags().String("memory", "", "long-term notes about the asker")
	askCmd.Flags().Int("top-k", 0, "number of passages to retrieve (default from config)")
	askCmd.Flags().Bool("show-reasoning", false, "print model reasoning as it streams")
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify <query>",
	Short: "Classify a question locally without calling any model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		c := intent.NewClassifier(intent.DefaultConfig()).Classify(strings.Join(args, " "))
		return printClassification(cmd.OutOrStdout(), c, asJSON)
	},
}

func printClassification(w io.Writer, c intent.Classification, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	fmt.Fprintf(w, "%s %s (confidence %.2f)\n", labelColor.Sprint("archetype:"), c.Archetype, c.Confidence)
	if c.FastPath {
		fmt.Fprintf(w, "%s fast path, no retrieval\n", labelColor.Sprint("route:"))
		return nil
	}
	fmt.Fprintf(w, "%s %s (intensity %d)\n", labelColor.Sprint("emotion:"), c.Emotion, c.Intensity)

	archetypes := make([]string, 0, len(c.Scores))
	for a := range c.Scores {
		archetypes = append(archetypes, string(a))
	}
	sort.Strings(archetypes)
	for _, a := range archetypes {
		fmt.Fprintf(w, "  %-24s %.2f\n", a, c.Scores[intent.Archetype(a)])
	}

	if len(c.Concepts) > 0 {
		names := make([]string, len(c.Concepts))
		for i, cn := range c.Concepts {
			names[i] = cn.Name
		}
		fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("concepts:"), strings.Join(names, ", "))
	}
	fmt.Fprintf(w, "%s primary %.2f, secondary %.2f\n", labelColor.Sprint("sources:"), c.Preference.Primary, c.Preference.Secondary)
	return nil
}

func init() {
	classifyCmd.Flags().Bool("json", false, "print the classification as JSON")
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed corpus documents into the passage index",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, syncLogs, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
		if err != nil {
			return err
		}
		defer syncLogs()

		a, err := buildApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !a.engine.IsRunning(ctx) {
			return fmt.Errorf("local inference engine is not running; start it with: ollama serve")
		}

		printStep("Indexing %d documents from %s", len(a.corpus.Manifest().Documents), cfg.Corpus.Manifest)
		rep, err := a.indexer.Index(ctx, force)
		if err != nil {
			return err
		}
		for _, id := range rep.Indexed {
			printSuccess("indexed %s", id)
		}
		for _, id := range rep.Removed {
			printWarning("removed %s", id)
		}
		printStatus("Passages written", "%d", rep.Passages)
		printStatus("Unchanged", "%d", len(rep.Skipped))
		if err := rep.Err(); err != nil {
			return fmt.Errorf("some documents failed:\n%w", err)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("force", false, "re-embed documents even if unchanged")
}

// --- pipelines ---

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List the pipeline variants the server runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		infos, err := listPipelines(cmd.Context(), client)
		if err != nil {
			return err
		}
		printPipelines(cmd.OutOrStdout(), infos)
		return nil
	},
}

type pipelineInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Stages      []string `json:"stages"`
	Visible     []string `json:"visible"`
	Handoff     string   `json:"handoff"`
}

func listPipelines(ctx context.Context, client *apiClient) ([]pipelineInfo, error) {
	resp, err := client.get(ctx, "/v1/pipelines")
	if err != nil {
		return nil, err
	}
	var body struct {
		Data []pipelineInfo `json:"data"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func fetchPipelines(ctx context.Context, client *apiClient) ([]string, error) {
	infos, err := listPipelines(ctx, client)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, p := range infos {
		names[i] = p.Name
	}
	return names, nil
}

func printPipelines(w io.Writer, infos []pipelineInfo) {
	for _, p := range infos {
		fmt.Fprintf(w, "%s  %s\n", labelColor.Sprint(p.Name), p.Description)
		visible := make(map[string]bool, len(p.Visible))
		for _, v := range p.Visible {
			visible[v] = true
		}
		stages := make([]string, len(p.Stages))
		for i, s := range p.Stages {
			if visible[s] {
				s += "*"
			}
			stages[i] = s
		}
		fmt.Fprintf(w, "  stages: %s\n", strings.Join(stages, " → "))
		if p.Handoff != "" {
			fmt.Fprintf(w, "  hands off to: %s\n", p.Handoff)
		}
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
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
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", labelColor.Sprint(k.Key), k.Value)
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

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Restore a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List valid configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
}
