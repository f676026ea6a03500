// storyguard validates generated episode drafts against a chain of
// narrative-consistency guards and manages the foreshadow ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storyguard/internal/config"
	"storyguard/internal/foreshadow"
	"storyguard/internal/guard"
	"storyguard/internal/llm"
	"storyguard/internal/pipeline"
	"storyguard/internal/storage"
)

var (
	// Flags
	configPath string
	project    string
	base       string
	verbose    bool
	fastMode   bool

	// validate flags
	episodeNum int
	draftPath  string
	prevPath   string
	strictMode bool
	watchMode  bool

	// foreshadow flags
	fsHint       string
	fsEpisode    int
	fsUnresolved bool
	fsOverdue    int
	fsDraftPath  string

	// Shared state built in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
	store  storage.Store
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "storyguard",
	Short: "Guard chain validation engine for serialized fiction",
	Long: `storyguard runs generated episode drafts through an ordered chain of
validators (guards): lexical diversity, emotional continuity, foreshadow
schedule, immutable character fields, chronology, anchor events,
forbidden patterns, relationship drift, pacing balance, and LLM critique.

Each guard either passes or raises a structured violation; violations are
retried with linear backoff before being reported.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if project != "" {
			cfg.Project = project
		}
		if base != "" {
			cfg.Base = base
		}
		if fastMode {
			cfg.Retry.Fast = true
		}

		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose || cfg.Logging.Level == "debug" {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if cfg.Logging.Format == "text" {
			zcfg.Encoding = "console"
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		store, err = openStore(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		if closer, ok := store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	},
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return storage.NewFileStore(cfg.Base), nil
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Storage.DBPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildRunner(ctx context.Context) (*pipeline.Runner, error) {
	var scorer guard.Scorer
	if cfg.LLM.APIKey != "" {
		s, err := llm.NewGeminiScorer(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		scorer = s
	} else {
		logger.Warn("no API key configured, critique guard will be skipped")
	}

	return &pipeline.Runner{
		Registry: guard.Default(),
		Store:    store,
		Logger:   logger,
		Scorer:   scorer,
		Settings: cfg.GuardSettings(),
		Retry:    cfg.RetryOptions(),
		Strict:   strictMode,
	}, nil
}

// validateCmd runs the guard chain against one episode draft.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the guard chain against an episode draft",
	Long: `Reads the draft (and optionally the previous episode's text), runs
every registered guard in order, and writes a JSON report under the
project's outputs directory.

By default violations are reported as warnings and the command exits
zero; --strict makes any violation fail the command. --watch keeps
running and re-validates whenever the project's data files change.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	draft, err := os.ReadFile(draftPath)
	if err != nil {
		return fmt.Errorf("read draft: %w", err)
	}
	var prev []byte
	if prevPath != "" {
		prev, err = os.ReadFile(prevPath)
		if err != nil {
			return fmt.Errorf("read previous episode: %w", err)
		}
	}

	runner, err := buildRunner(ctx)
	if err != nil {
		return err
	}

	// A comma-separated --project fans the same draft out to every
	// project concurrently.
	projects := strings.Split(cfg.Project, ",")

	printReport := func(rep *pipeline.Report) {
		path, werr := pipeline.WriteReport(cfg.Base, rep)
		if werr != nil {
			logger.Warn("could not write report", zap.Error(werr))
		} else {
			logger.Info("report written", zap.String("path", path))
		}
		if len(projects) > 1 {
			fmt.Printf("== %s episode %d ==\n", rep.Project, rep.Episode)
		}
		for _, o := range rep.Outcomes {
			if o.Passed {
				fmt.Printf("PASS  %2d %s\n", o.Order, o.Guard)
			} else {
				fmt.Printf("FAIL  %2d %s: %s\n", o.Order, o.Guard, o.Violation)
			}
		}
	}

	validate := func() error {
		episodes := make([]pipeline.Episode, 0, len(projects))
		for _, p := range projects {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			episodes = append(episodes, pipeline.Episode{
				Project:  p,
				Number:   episodeNum,
				Draft:    string(draft),
				PrevText: string(prev),
			})
		}
		if len(episodes) == 1 {
			rep, runErr := runner.Run(ctx, episodes[0])
			if rep != nil {
				printReport(rep)
			}
			return runErr
		}
		reps, runErr := runner.RunBatch(ctx, episodes)
		for _, rep := range reps {
			if rep != nil {
				printReport(rep)
			}
		}
		return runErr
	}

	if err := validate(); err != nil {
		return err
	}
	if !watchMode {
		return nil
	}

	// Watch mode follows the first project's data directory.
	dataDir := storage.DataPath(cfg.Base, strings.TrimSpace(projects[0]), "")
	watcher, err := storage.NewDataWatcher(dataDir, logger, func(path string) {
		logger.Info("data changed, re-validating", zap.String("file", path))
		if err := validate(); err != nil {
			logger.Error("re-validation failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	logger.Info("watching for changes", zap.String("dir", dataDir))
	<-ctx.Done()
	return nil
}

// guardsCmd lists the registered guard chain.
var guardsCmd = &cobra.Command{
	Use:   "guards",
	Short: "List the registered guard chain in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, e := range guard.Default().Sorted() {
			fmt.Printf("%2d  %s\n", e.Order, e.Name)
		}
		return nil
	},
}

func ledger() *foreshadow.Ledger {
	return foreshadow.NewLedger(store, cfg.Project, cfg.Guards.TotalEpisodes)
}

// foreshadowCmd groups ledger operations.
var foreshadowCmd = &cobra.Command{
	Use:   "foreshadow",
	Short: "Manage the foreshadow ledger",
}

var foreshadowAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new foreshadow hint",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := ledger().Schedule(cmd.Context(), fsHint, fsEpisode)
		if err != nil {
			return err
		}
		fmt.Printf("%s  introduced ep %d, due ep %d: %s\n", rec.ID, rec.Introduced, rec.Due, rec.Hint)
		return nil
	},
}

var foreshadowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List foreshadows (all, unresolved, or overdue)",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := ledger()
		var (
			recs []foreshadow.Record
			err  error
		)
		switch {
		case fsOverdue > 0:
			recs, err = l.Overdue(cmd.Context(), fsOverdue)
		case fsUnresolved:
			recs, err = l.Unresolved(cmd.Context())
		default:
			recs, err = l.All(cmd.Context())
		}
		if err != nil {
			return err
		}
		for _, r := range recs {
			status := "open"
			if r.Payoff != nil {
				status = "resolved ep " + strconv.Itoa(*r.Payoff)
			}
			fmt.Printf("%s  ep %d -> due %d  [%s]  %s\n", r.ID, r.Introduced, r.Due, status, r.Hint)
		}
		return nil
	},
}

var foreshadowResolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Mark a foreshadow as paid off, by id or by draft markers",
	Long: `With an id argument, marks that foreshadow resolved at --episode.
With --draft, scans the draft for [RESOLVED:<id>] markers and resolves
every matching foreshadow instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if fsDraftPath != "" {
			content, err := os.ReadFile(fsDraftPath)
			if err != nil {
				return fmt.Errorf("read draft: %w", err)
			}
			resolved, err := ledger().TrackPayoff(cmd.Context(), fsEpisode, string(content))
			if err != nil {
				return err
			}
			if !resolved {
				fmt.Println("no unresolved foreshadow markers found")
				return nil
			}
			fmt.Printf("markers resolved at episode %d\n", fsEpisode)
			return nil
		}
		if len(args) != 1 {
			return fmt.Errorf("an id argument or --draft is required")
		}
		ok, err := ledger().Resolve(cmd.Context(), args[0], fsEpisode)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("foreshadow %s not found or already resolved", args[0])
		}
		fmt.Printf("%s resolved at episode %d\n", args[0], fsEpisode)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "storyguard.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&project, "project", "p", "", "project id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&base, "base", "", "projects base directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&fastMode, "fast", false, "skip retry backoff sleeps")

	validateCmd.Flags().IntVarP(&episodeNum, "episode", "e", 1, "episode number")
	validateCmd.Flags().StringVarP(&draftPath, "draft", "d", "", "path to the draft text")
	validateCmd.Flags().StringVar(&prevPath, "prev", "", "path to the previous episode's text")
	validateCmd.Flags().BoolVar(&strictMode, "strict", false, "fail on any violation")
	validateCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "re-validate when project data changes")
	_ = validateCmd.MarkFlagRequired("draft")

	foreshadowAddCmd.Flags().StringVar(&fsHint, "hint", "", "hint description")
	foreshadowAddCmd.Flags().IntVarP(&fsEpisode, "episode", "e", 1, "episode the hint is introduced")
	_ = foreshadowAddCmd.MarkFlagRequired("hint")
	foreshadowListCmd.Flags().BoolVar(&fsUnresolved, "unresolved", false, "only unresolved foreshadows")
	foreshadowListCmd.Flags().IntVar(&fsOverdue, "overdue", 0, "only foreshadows overdue at this episode")
	foreshadowResolveCmd.Flags().IntVarP(&fsEpisode, "episode", "e", 1, "episode of the payoff")
	foreshadowResolveCmd.Flags().StringVarP(&fsDraftPath, "draft", "d", "", "scan this draft for [RESOLVED:<id>] markers")

	foreshadowCmd.AddCommand(foreshadowAddCmd, foreshadowListCmd, foreshadowResolveCmd)
	rootCmd.AddCommand(validateCmd, guardsCmd, foreshadowCmd)

	guard.RegisterBuiltins(guard.Default())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
