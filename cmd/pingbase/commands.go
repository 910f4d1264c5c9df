package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/ingestion"
	"github.com/pingbase/pingbase/internal/policy"
	"github.com/pingbase/pingbase/internal/retention"
	"github.com/pingbase/pingbase/internal/runlock"
	"github.com/pingbase/pingbase/internal/storage"
	"github.com/pingbase/pingbase/internal/targets"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion pass over every target",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		ctx, stop := signalContext()
		defer stop()

		pipeline, err := newPipeline(ctx, cfg, store)
		if err != nil {
			return err
		}
		lock, closeLock := newLocker(cfg)
		defer closeLock()

		res, err := ingestion.NewCoordinator(store, pipeline, lock).Run(ctx)
		if err != nil {
			return err
		}
		printRunResult(res)
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d of %d targets failed", len(res.Errors), res.TargetsProcessed)
		}
		return nil
	},
}

func printRunResult(res ingestion.RunResult) {
	t := res.Totals
	printSuccess("Ingestion finished in %s", res.Duration.Round(100*time.Millisecond))
	printStatus("Targets", "%d", res.TargetsProcessed)
	printStatus("Fetched", "%d (fresh %d)", t.Fetched, t.Fresh)
	printStatus("Prefilter", "%d accepted, %d rejected", t.PrefilterAccepted, t.PrefilterRejected)
	printStatus("Scored", "%d (validated %d, rejected %d, failed %d)", t.Scored, t.Validated, t.ValidatorRejected, t.ScoreFailed)
	printStatus("Show-eligible", "%d", t.ShowEligible)
	printStatus("Inserted", "%d", t.Inserted)
	for _, e := range res.Errors {
		printError("target %s: %s", e.TargetID, e.Error)
	}
}

// --- retention ---

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Delete signals older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		res, err := retention.NewSweeper(store, cfg.Retention.SignalRetentionDays).Sweep(cmd.Context())
		if err != nil {
			return err
		}
		printSuccess("Deleted %d signals posted before %s", res.Deleted, res.Cutoff.Format(time.RFC3339))
		return nil
	},
}

// --- score ---

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Fetch and score a single target",
	Long: `Fetch and score a single target.

Without --dry-run the results are stored and the target's scan cursor
advances, exactly like one target of "pingbase run".

Examples:
  pingbase score --target 3f2c... --dry-run
  pingbase score --target 3f2c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetID, _ := cmd.Flags().GetString("target")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if targetID == "" {
			return fmt.Errorf("--target is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		ctx, stop := signalContext()
		defer stop()

		t, err := store.GetTarget(ctx, targetID)
		if err != nil {
			return fmt.Errorf("loading target %s: %w", targetID, err)
		}
		pipeline, err := newPipeline(ctx, cfg, store)
		if err != nil {
			return err
		}

		if !dryRun {
			lock, closeLock := newLocker(cfg)
			defer closeLock()

			stats, err := ingestLocked(ctx, lock, pipeline, t)
			if err != nil {
				return err
			}
			printRunResult(ingestion.RunResult{TargetsProcessed: 1, Totals: stats})
			return nil
		}

		scored, stats, err := pipeline.Evaluate(ctx, t)
		if err != nil {
			return err
		}
		printer := pp.New()
		printer.SetColoringEnabled(!noColor)
		show := policy.ShowPolicy(cfg.Signals)
		for _, s := range scored {
			printer.Println(dryRunView(s, show.Eligible(policy.FieldsOf(s))))
		}
		printer.Println(stats)
		return nil
	},
}

// ingestLocked runs one target under the same lock as full runs, so a
// manual score never overlaps a scheduled pass.
func ingestLocked(ctx context.Context, lock runlock.Locker, ing ingestion.TargetIngester, t domain.Target) (ingestion.Stats, error) {
	release, err := lock.Acquire(ctx)
	if err != nil {
		return ingestion.Stats{}, fmt.Errorf("taking run lock: %w", err)
	}
	defer release()
	return ing.IngestTarget(ctx, t)
}

type scoredView struct {
	ExternalID string
	Community  string
	URL        string
	Score      int
	Reason     string
	Visible    bool
	Stage1     *domain.ScoreResult
	Validator  *domain.ValidationResult
}

func dryRunView(s domain.ScoredSignal, visible bool) scoredView {
	return scoredView{
		ExternalID: s.ExternalID,
		Community:  s.Community,
		URL:        s.URL,
		Score:      s.Score,
		Reason:     s.Reason,
		Visible:    visible,
		Stage1:     s.Stage1,
		Validator:  s.Validator,
	}
}

func init() {
	scoreCmd.Flags().String("target", "", "target ID to score")
	scoreCmd.Flags().Bool("dry-run", false, "print results without storing them")
}

// --- targets ---

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage monitoring targets",
}

var targetsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update targets from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := targets.Load(args[0])
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			printWarning("No targets in %s", args[0])
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		saved, err := targets.Import(cmd.Context(), store, ts)
		if err != nil {
			return err
		}
		for _, t := range saved {
			printSuccess("Saved target %s (%s)", t.Name, t.ID)
		}
		return nil
	},
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		ts, err := store.ListAllTargets(cmd.Context())
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			fmt.Println("No targets found.")
			return nil
		}
		for _, t := range ts {
			fmt.Println(formatTarget(t))
		}
		return nil
	},
}

func formatTarget(t domain.Target) string {
	scanned := "never"
	if t.LastScannedAt != nil {
		scanned = t.LastScannedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s  %s  user=%s  subreddits=%s  last_scanned=%s",
		colorize(colorCyan, t.ID),
		colorize(colorBold, t.Name),
		t.UserID,
		strings.Join(t.Subreddits, ","),
		scanned,
	)
}

func init() {
	targetsCmd.AddCommand(targetsImportCmd)
	targetsCmd.AddCommand(targetsListCmd)
}

// --- signals ---

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Read stored signals",
}

var signalsListCmd = &cobra.Command{
	Use:   "list <target-id>",
	Short: "List visible signals for a target, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(store)

		t, err := store.GetTarget(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("loading target %s: %w", args[0], err)
		}
		if pageSize <= 0 {
			pageSize = cfg.Signals.PageSize
		}

		res, err := store.ForOwner(t.UserID, policy.ShowPolicy(cfg.Signals)).ListSignals(cmd.Context(), t.ID, page, pageSize)
		if err != nil {
			return err
		}
		printSignalPage(res)
		return nil
	},
}

func printSignalPage(res storage.SignalPage) {
	if len(res.Signals) == 0 {
		fmt.Println("No signals found.")
		return
	}
	for _, s := range res.Signals {
		title := s.ContentExcerpt
		if s.Title != nil {
			title = *s.Title
		}
		if len(title) > 80 {
			title = title[:80] + "..."
		}
		fmt.Printf("%s  r/%s  %s  %s\n    %s\n",
			colorize(colorGreen, fmt.Sprintf("%3d", s.Score)),
			s.Community,
			s.DatePosted.UTC().Format("2006-01-02 15:04"),
			title,
			s.URL,
		)
	}
	fmt.Printf("\nPage %d of %d (%d signals)\n", res.Page, res.PageCount, res.Total)
}

func init() {
	signalsListCmd.Flags().Int("page", 1, "page number")
	signalsListCmd.Flags().Int("page-size", 0, "signals per page (default signals.page_size)")
	signalsCmd.AddCommand(signalsListCmd)
}

// --- trigger ---

var triggerCmd = &cobra.Command{
	Use:       "trigger <ingest|retention>",
	Short:     "Ask a running server to start a cron job now",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"ingest", "retention"},
	RunE: func(cmd *cobra.Command, args []string) error {
		job := args[0]
		if job != "ingest" && job != "retention" {
			return fmt.Errorf("unknown job %q: want ingest or retention", job)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/cron/"+job, nil)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if job == "ingest" {
			printSuccess("%v", result["message"])
			return nil
		}
		printSuccess("Deleted %v signals posted before %v", result["deleted"], result["cutoff"])
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
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
