package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/makerelephant/mim-platform/internal/agents/enrich"
	"github.com/makerelephant/mim-platform/internal/agents/outreach"
	"github.com/makerelephant/mim-platform/internal/agents/stale"
	"github.com/makerelephant/mim-platform/internal/anthropic"
	"github.com/makerelephant/mim-platform/internal/classify"
	"github.com/makerelephant/mim-platform/internal/config"
	"github.com/makerelephant/mim-platform/internal/db"
	"github.com/makerelephant/mim-platform/internal/entity"
	"github.com/makerelephant/mim-platform/internal/gmail"
	"github.com/makerelephant/mim-platform/internal/pipeline"
	"github.com/makerelephant/mim-platform/internal/sched"
	"github.com/makerelephant/mim-platform/internal/store"
	"github.com/makerelephant/mim-platform/internal/watch"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const lastScanKey = "gmail_last_scan_at"

func main() {
	rootCmd := &cobra.Command{
		Use:   "mim",
		Short: "Made in Motion CRM agents",
		Long: `mim routes inbound email to the right CRM silo (investors,
soccer orgs, contacts), creates tasks from action items, and runs
housekeeping agents over the relationship pipeline.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mim %s (%s, %s)\n", version, commit, buildDate)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize mim config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(configDir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := db.Init(); err != nil {
				return err
			}
			dbPath, err := db.GetPath()
			if err != nil {
				return err
			}
			fmt.Printf("✓ Config directory: %s\n", configDir)
			fmt.Printf("✓ Database: %s\n", dbPath)
			fmt.Println("\nmim initialized successfully!")
			return nil
		},
	})

	var runGmail, runStale, runOutreach, runEnrich, runAll bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run selected agents once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runAll {
				runGmail, runStale, runOutreach, runEnrich = true, true, true, true
			}
			if !runGmail && !runStale && !runOutreach && !runEnrich {
				return fmt.Errorf("select at least one agent (--gmail, --stale, --outreach, --enrich, or --all)")
			}
			return runAgents(cmd.Context(), runGmail, runStale, runOutreach, runEnrich)
		},
	}
	runCmd.Flags().BoolVar(&runGmail, "gmail", false, "Scan recent Gmail messages")
	runCmd.Flags().BoolVar(&runStale, "stale", false, "Flag stale investor relationships")
	runCmd.Flags().BoolVar(&runOutreach, "outreach", false, "Queue outreach to high-value communities")
	runCmd.Flags().BoolVar(&runEnrich, "enrich", false, "Enrich sparse investor profiles")
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every agent")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "resolve <email>",
		Short: "Show which entities an email address resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open()
			if err != nil {
				return err
			}
			defer database.Close()

			st := store.New(database)
			snap, err := st.Snapshot()
			if err != nil {
				return err
			}
			resolver := entity.NewResolver(entity.BuildIndex(snap))

			matches := resolver.Resolve(args[0])
			if len(matches) == 0 {
				fmt.Printf("No entities match %s\n", args[0])
				return nil
			}
			for _, m := range matches {
				fmt.Printf("  [%s] %s (id: %s, via: %s, confidence: %g)\n",
					m.EntityType, m.EntityName, m.EntityID, m.MatchMethod, m.Confidence)
			}
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Process .eml files dropped into the spool directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Watch.SpoolDir == "" {
				return fmt.Errorf("watch.spool_dir is not configured")
			}

			database, err := db.Open()
			if err != nil {
				return err
			}
			defer database.Close()

			pipe, err := buildPipeline(cfg, store.New(database))
			if err != nil {
				return err
			}

			w, err := watch.New(cfg.Watch.SpoolDir, time.Duration(cfg.Watch.DebounceSeconds)*time.Second, pipe)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	})

	var cronSpec string
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run all agents on a cron cadence",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := sched.New()
			err := s.Add(cronSpec, func() {
				if err := runAgents(cmd.Context(), true, true, true, true); err != nil {
					fmt.Fprintf(os.Stderr, "Scheduled run failed: %v\n", err)
				}
			})
			if err != nil {
				return err
			}

			fmt.Printf("Scheduling agents on %q (Ctrl-C to stop)\n", cronSpec)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := s.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
	scheduleCmd.Flags().StringVar(&cronSpec, "cron", "0 * * * *", "Cron spec for agent runs")
	rootCmd.AddCommand(scheduleCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type agentResult struct {
	name      string
	processed int
	updated   int
	err       error
}

// runAgents executes the selected agents in sequence, each under its
// own run record, and prints a summary. Any failure makes the whole
// invocation fail after the remaining agents have run.
func runAgents(ctx context.Context, gmailScan, staleScan, outreachScan, enrichScan bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	database, err := db.Open()
	if err != nil {
		return err
	}
	defer database.Close()
	st := store.New(database)

	var results []agentResult
	if gmailScan {
		results = append(results, runOne(ctx, st, "email_scanner", func(ctx context.Context) (int, int, error) {
			return scanGmail(ctx, cfg, st)
		}))
	}
	if staleScan {
		results = append(results, runOne(ctx, st, "stale_detector", stale.New(st, cfg.Agents.StaleDays).Run))
	}
	if outreachScan {
		results = append(results, runOne(ctx, st, "outreach_tracker", outreach.New(st, cfg.Agents.MinPlayersHighValue).Run))
	}
	if enrichScan {
		client := anthropic.NewClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		results = append(results, runOne(ctx, st, "investor_enrichment", enrich.New(st, client, cfg.Agents.MaxEnrichments).Run))
	}

	fmt.Println("\nRun summary:")
	failed := false
	for _, r := range results {
		if r.err != nil {
			failed = true
			fmt.Printf("  ✗ %-20s FAILED: %v\n", r.name, r.err)
		} else {
			fmt.Printf("  ✓ %-20s OK (processed %d, updated %d)\n", r.name, r.processed, r.updated)
		}
	}
	if failed {
		return fmt.Errorf("one or more agents failed")
	}
	return nil
}

// runOne wraps an agent in its run record: exactly one of complete or
// fail is written, whatever the agent does.
func runOne(ctx context.Context, st *store.Store, name string, fn func(context.Context) (int, int, error)) agentResult {
	fmt.Printf("\nRunning %s...\n", name)
	runID, err := st.StartRun(name)
	if err != nil {
		return agentResult{name: name, err: err}
	}

	processed, updated, err := fn(ctx)
	if err != nil {
		if failErr := st.FailRun(runID, err.Error()); failErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record run failure: %v\n", failErr)
		}
		return agentResult{name: name, err: err}
	}

	if err := st.CompleteRun(runID, processed, updated); err != nil {
		return agentResult{name: name, processed: processed, updated: updated, err: err}
	}
	return agentResult{name: name, processed: processed, updated: updated}
}

// scanGmail fetches recent mail and runs each message through the
// pipeline. The scan watermark lives in agent_config so restarts
// don't reprocess the whole window.
func scanGmail(ctx context.Context, cfg *config.Config, st *store.Store) (int, int, error) {
	connector, err := gmail.New(cfg.Gmail.Account, cfg.Gmail.MaxResults)
	if err != nil {
		return 0, 0, err
	}
	pipe, err := buildPipeline(cfg, st)
	if err != nil {
		return 0, 0, err
	}

	since := time.Now().Add(-time.Duration(cfg.Gmail.WindowHours) * time.Hour)
	if v, ok, err := st.GetConfig(lastScanKey); err != nil {
		return 0, 0, err
	} else if ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			if t := time.Unix(ts, 0); t.After(since) {
				since = t
			}
		}
	}

	scanStart := time.Now()
	msgs, err := connector.FetchSince(ctx, since)
	if err != nil {
		return 0, 0, err
	}
	fmt.Printf("  Fetched %d messages since %s\n", len(msgs), since.Format(time.RFC3339))

	processed, updated := 0, 0
	for _, msg := range msgs {
		out, err := pipe.Process(ctx, msg)
		if err != nil {
			return processed, updated, err
		}
		// Skipped messages (duplicates, unknown participants) still
		// count as processed; updated means records were attributed.
		processed++
		if out.Updated {
			updated++
		}
	}

	if err := st.SetConfig(lastScanKey, strconv.FormatInt(scanStart.Unix(), 10)); err != nil {
		return processed, updated, err
	}
	return processed, updated, nil
}

// buildPipeline assembles the resolver, classifier, and store into a
// ready pipeline from a fresh entity snapshot.
func buildPipeline(cfg *config.Config, st *store.Store) (*pipeline.Pipeline, error) {
	snap, err := st.Snapshot()
	if err != nil {
		return nil, err
	}
	idx := entity.BuildIndex(snap)
	emails, invLinks, orgLinks, invDomains, orgDomains := idx.Size()
	fmt.Printf("  Entity index: %d emails, %d investor links, %d org links, %d+%d domains\n",
		emails, invLinks, orgLinks, invDomains, orgDomains)

	client := anthropic.NewClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	if cfg.Anthropic.MaxTokens > 0 {
		client.SetMaxTokens(cfg.Anthropic.MaxTokens)
	}
	var modelClient classify.ModelClient
	if client.Configured() {
		modelClient = client
	} else {
		fmt.Println("  Warning: no Anthropic API key; classification will use fallback routing")
	}

	classifier := classify.New(modelClient, cfg.Classification.SiloPreference)
	return pipeline.New(st, entity.NewResolver(idx), classifier, cfg.SelfEmails), nil
}
