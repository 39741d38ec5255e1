package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/mootscribe/internal/config"
	"github.com/TobiSchelling/mootscribe/internal/events"
	"github.com/TobiSchelling/mootscribe/internal/genai"
	"github.com/TobiSchelling/mootscribe/internal/generate"
	"github.com/TobiSchelling/mootscribe/internal/prompts"
	"github.com/TobiSchelling/mootscribe/internal/publish"
	"github.com/TobiSchelling/mootscribe/internal/review"
	"github.com/TobiSchelling/mootscribe/internal/server"
	"github.com/TobiSchelling/mootscribe/internal/site"
	"github.com/TobiSchelling/mootscribe/internal/talks"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "mootscribe",
	Short:   "Conference talk documentation",
	Long:    "MootScribe turns talk recordings into reviewed, published documentation pages.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(unpublishCmd)
	rootCmd.AddCommand(talksCmd)
	rootCmd.AddCommand(eventsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mootscribe", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/mootscribe/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the resources directory and the generation API.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show talks, reviews and publication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		all := app.talks.List()
		reviewed, published := 0, 0
		for _, t := range all {
			if app.feedback.Get(t.Slug) != nil {
				reviewed++
			}
			if app.index.IsPublished(t.Slug) {
				published++
			}
		}

		fmt.Printf("Resources: %s\n\n", cfg.Resources.Dir)
		fmt.Println("Talks:")
		fmt.Printf("  Total: %d\n", len(all))
		fmt.Printf("  Reviewed: %d\n", reviewed)
		fmt.Printf("  Published: %d\n", published)
		fmt.Println("\nEvents:")
		for _, ev := range app.events.List(true) {
			visibility := "public"
			if !ev.IsPublic {
				visibility = "protected"
			}
			fmt.Printf("  %s (%s, %s)\n", ev.Title, ev.Slug, visibility)
		}

		orphans := 0
		for _, e := range app.index.Published() {
			if !app.talks.Exists(e.Slug) {
				orphans++
			}
		}
		if orphans > 0 {
			fmt.Printf("\nWarning: %d published entries without talk data. Run 'mootscribe prune'.\n", orphans)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review and publishing server",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		srv, err := server.New(app.talks, app.events, app.feedback, app.index, app.publisher, app.renderer)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://%s:%d\n", cfg.Server.Host, port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(srv, cfg.Server.Host, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- generate command ---

var promptsPath string

var generateCmd = &cobra.Command{
	Use:   "generate [talk-slug]",
	Short: "Run content generation for a talk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		catalog, err := prompts.Load(promptsPath)
		if err != nil {
			return err
		}

		client := genai.NewClient(genai.Options{
			BaseURL:            cfg.GenAI.BaseURL,
			APIKeyEnv:          cfg.GenAI.APIKeyEnv,
			Model:              cfg.GenAI.Model,
			ImageModel:         cfg.GenAI.ImageModel,
			TranscriptionModel: cfg.GenAI.TranscriptionModel,
			MaxTokens:          cfg.GenAI.MaxTokens,
			Temperature:        cfg.GenAI.Temperature,
			Timeout:            time.Duration(cfg.GenAI.TimeoutSeconds) * time.Second,
		})
		var competences genai.CompetenceAnalyzer
		if cfg.GenAI.CompetenceURL != "" {
			competences = genai.NewCompetenceClient(cfg.GenAI.CompetenceURL, time.Duration(cfg.GenAI.TimeoutSeconds)*time.Second)
		}

		workflow := generate.New(app.talks, catalog, client, client, client, competences)
		result := workflow.Run(context.Background(), args[0])

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return fmt.Errorf("generation finished with errors")
		}
		fmt.Println("\nGeneration complete! Run 'mootscribe serve' to review the content.")
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&promptsPath, "prompts", "", "Path to a prompt catalog overriding the built-in one")
}

// --- maintenance commands ---

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Rebuild all published pages and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		res := app.publisher.RegenerateAll()
		fmt.Printf("Rebuilt %d talk page(s), %d event page(s).\n", len(res.TalkPages), len(res.EventPages))
		for _, e := range res.Errors {
			fmt.Printf("  Error: %s\n", e)
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d page(s) failed", len(res.Errors))
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove published entries whose talk data is gone",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		res, err := app.publisher.Prune()
		if err != nil {
			return err
		}
		if len(res.Removed) == 0 {
			fmt.Printf("Nothing to prune; %d entries intact.\n", res.Kept)
			return nil
		}
		fmt.Printf("Removed %d orphaned entries, kept %d:\n", len(res.Removed), res.Kept)
		for _, s := range res.Removed {
			fmt.Printf("  %s\n", s)
		}
		return nil
	},
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish [talk-slug]",
	Short: "Take a published talk off the site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		removed, err := app.publisher.Unpublish(args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("Talk %s was not published.\n", args[0])
			return nil
		}
		fmt.Printf("Unpublished %s.\n", args[0])
		return nil
	},
}

// --- talks command ---

var talksCmd = &cobra.Command{
	Use:   "talks",
	Short: "Manage talks",
}

var (
	talkAudio      string
	talkTranscript string
)

var talksAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a talk, optionally importing audio or transcript files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		talk, err := app.talks.Save(args[0], talks.Updates{})
		if err != nil {
			return err
		}
		fmt.Printf("Created talk %s (%s)\n", talk.Name, talk.Slug)

		if talkAudio != "" {
			target, err := app.talks.AddAudio(talk.Slug, talkAudio)
			if err != nil {
				return fmt.Errorf("importing audio: %w", err)
			}
			fmt.Printf("Imported audio as %s\n", filepath.Base(target))
		}
		if talkTranscript != "" {
			target, err := app.talks.AddTranscription(talk.Slug, talkTranscript)
			if err != nil {
				return fmt.Errorf("importing transcript: %w", err)
			}
			fmt.Printf("Imported transcript as %s\n", filepath.Base(target))
		}
		return nil
	},
}

var talksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all talks",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		all := app.talks.List()
		if len(all) == 0 {
			fmt.Println("No talks yet. Add one with: mootscribe talks add")
			return nil
		}
		for _, t := range all {
			marker := " "
			if app.index.IsPublished(t.Slug) {
				marker = "*"
			}
			fmt.Printf("  %s %-40s %s\n", marker, t.Slug, t.Status)
		}
		return nil
	},
}

var talksDeleteCmd = &cobra.Command{
	Use:   "delete [talk-slug]",
	Short: "Delete a talk's data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		if !app.talks.Exists(args[0]) {
			return fmt.Errorf("talk %s not found", args[0])
		}
		if err := app.talks.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted talk %s.\n", args[0])
		if app.index.IsPublished(args[0]) {
			fmt.Println("The talk is still listed as published; run 'mootscribe prune' to clean up.")
		}
		return nil
	},
}

func init() {
	talksAddCmd.Flags().StringVar(&talkAudio, "audio", "", "Audio file to import")
	talksAddCmd.Flags().StringVar(&talkTranscript, "transcript", "", "Transcript file to import")
	talksCmd.AddCommand(talksAddCmd)
	talksCmd.AddCommand(talksListCmd)
	talksCmd.AddCommand(talksDeleteCmd)
}

// --- events command ---

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Manage events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all events",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		for _, ev := range app.events.List(true) {
			visibility := "public"
			if !ev.IsPublic {
				visibility = "protected"
			}
			fmt.Printf("  %-24s %s (%s)\n", ev.Slug, ev.Title, visibility)
		}
		return nil
	},
}

var (
	eventLocation string
	eventStart    string
	eventEnd      string
)

var eventsAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		ev, err := app.events.Create(args[0], events.Event{
			Location:  eventLocation,
			StartDate: eventStart,
			EndDate:   eventEnd,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created event %s (%s)\n", ev.Title, ev.Slug)
		return nil
	},
}

var eventPassword string

var eventsProtectCmd = &cobra.Command{
	Use:   "protect [event-slug]",
	Short: "Set or clear an event's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}

		if err := app.events.SetPassword(args[0], eventPassword); err != nil {
			return err
		}
		if eventPassword == "" {
			fmt.Printf("Event %s is public again.\n", args[0])
		} else {
			fmt.Printf("Event %s is now password protected.\n", args[0])
		}
		return nil
	},
}

func init() {
	eventsAddCmd.Flags().StringVar(&eventLocation, "location", "", "Event location")
	eventsAddCmd.Flags().StringVar(&eventStart, "start", "", "Start date (YYYY-MM-DD)")
	eventsAddCmd.Flags().StringVar(&eventEnd, "end", "", "End date (YYYY-MM-DD)")
	eventsProtectCmd.Flags().StringVar(&eventPassword, "password", "", "Password; empty clears protection")
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsAddCmd)
	eventsCmd.AddCommand(eventsProtectCmd)
}

// app bundles the stores and services built from the config.
type app struct {
	talks     *talks.Store
	events    *events.Store
	feedback  *review.Store
	index     *publish.Index
	renderer  *site.Renderer
	publisher *publish.Publisher
}

func openApp() (*app, error) {
	base := cfg.Resources.Dir
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating resources directory: %w", err)
	}

	talkStore, err := talks.NewStore(base)
	if err != nil {
		return nil, err
	}
	eventStore, err := events.NewStore(base)
	if err != nil {
		return nil, err
	}
	feedbackStore := review.NewStore(base)
	index, err := publish.NewIndex(base)
	if err != nil {
		return nil, err
	}
	renderer, err := site.New(site.Options{
		ResourcesDir: base,
		Title:        cfg.Site.Title,
		Description:  cfg.Site.Description,
		BaseURL:      cfg.Site.BaseURL,
		ProxyPath:    cfg.Site.ProxyPath,
		Language:     cfg.Site.Language,
	}, talkStore, eventStore)
	if err != nil {
		return nil, err
	}

	return &app{
		talks:     talkStore,
		events:    eventStore,
		feedback:  feedbackStore,
		index:     index,
		renderer:  renderer,
		publisher: publish.New(talkStore, eventStore, feedbackStore, index, renderer),
	}, nil
}
