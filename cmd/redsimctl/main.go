package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/logrusorgru/aurora"

	"redsim/internal/model"
	"redsim/internal/storage"
	redsimapi "redsim/pkg/redsim"
)

const (
	reportsDir    = "reports"
	exportsDir    = "exports"
	defaultDBPath = "redsim.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "run":
		return runDeploy(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "chart":
		return runChart(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *storeKind == "sqlite" {
		if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional train config JSON path")
	runID := fs.String("run-id", "", "run id for persisted artifacts")
	episodes := fs.Int("episodes", 0, "episode count (0 uses default)")
	checkpointEvery := fs.Int("checkpoint-every", 0, "periodic checkpoint interval in episodes")
	seed := fs.Int64("seed", 1, "rng seed")
	maxSteps := fs.Int("max-steps", 0, "per-episode step budget (0 uses default)")
	alertThreshold := fs.Float64("alert-threshold", 0, "detection threshold on the alert level (0 uses default)")
	deterministic := fs.Bool("deterministic", false, "force every permitted action to succeed")
	gamma := fs.Float64("gamma", 0, "discount factor (0 uses default)")
	learningRate := fs.Float64("lr", 0, "learning rate (0 uses default)")
	batchSize := fs.Int("batch", 0, "mini-batch size (0 uses default)")
	replayCapacity := fs.Int("replay", 0, "replay memory capacity (0 uses default)")
	tau := fs.Float64("tau", 0, "soft target update factor (0 uses default)")
	epsStart := fs.Float64("eps-start", 0, "initial exploration rate (0 uses default)")
	epsMin := fs.Float64("eps-min", 0, "exploration floor (0 uses default)")
	epsDecay := fs.Float64("eps-decay", 0, "per-episode exploration decay (0 uses default)")
	resumeBest := fs.Bool("resume-best", false, "resume from the best checkpoint")
	resumeEpisode := fs.Int("resume-episode", 0, "resume from a periodic checkpoint (episode number)")
	progressEvery := fs.Int("progress-every", 10, "episode summary print cadence")
	quiet := fs.Bool("quiet", false, "suppress per-episode progress output")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultTrainRequest(*configPath)
	if err != nil {
		return err
	}
	if req.Seed == 0 {
		req.Seed = *seed
	}
	overrideFromFlags(&req, setFlags, map[string]any{
		"run-id":           *runID,
		"episodes":         *episodes,
		"checkpoint-every": *checkpointEvery,
		"seed":             *seed,
		"max-steps":        *maxSteps,
		"alert-threshold":  *alertThreshold,
		"deterministic":    *deterministic,
		"gamma":            *gamma,
		"lr":               *learningRate,
		"batch":            *batchSize,
		"replay":           *replayCapacity,
		"tau":              *tau,
		"eps-start":        *epsStart,
		"eps-min":          *epsMin,
		"eps-decay":        *epsDecay,
		"resume-best":      *resumeBest,
		"resume-episode":   *resumeEpisode,
	})

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	cadence := *progressEvery
	if cadence <= 0 {
		cadence = 10
	}
	if !*quiet {
		req.OnEpisode = func(summary model.EpisodeSummary) {
			if summary.Episode%cadence != 0 && summary.Outcome != model.OutcomeFlagCaptured {
				return
			}
			fmt.Printf("episode %4d  steps=%2d  reward=%8.1f  epsilon=%.3f  outcome=%s\n",
				summary.Episode, summary.Steps, summary.Reward, summary.Epsilon, colorOutcome(summary.Outcome))
		}
	}

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("trained run=%s episodes=%d best_episode=%d best_reward=%.1f final_epsilon=%.3f\n",
		summary.RunID, summary.EpisodesRun, summary.BestEpisode, summary.BestReward, summary.FinalEpsilon)
	return nil
}

func runDeploy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	best := fs.Bool("best", false, "deploy the best checkpoint")
	episode := fs.Int("episode", 0, "deploy a periodic checkpoint (episode number)")
	episodes := fs.Int("episodes", 1, "rollout episode count")
	target := fs.String("target", "", "target label stamped on engagement records")
	runID := fs.String("run-id", "", "run id for persisted engagements")
	seed := fs.Int64("seed", 1, "rng seed")
	maxSteps := fs.Int("max-steps", 0, "per-episode step budget (0 uses default)")
	deterministic := fs.Bool("deterministic", false, "force every permitted action to succeed")
	verbose := fs.Bool("verbose", false, "print each executed action")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*best && *episode <= 0 {
		*best = true
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := redsimapi.DeployRequest{
		Best:     *best,
		Episode:  *episode,
		Episodes: *episodes,
		Target:   *target,
		RunID:    *runID,
		Seed:     *seed,
		MaxSteps: *maxSteps,

		Deterministic: *deterministic,
	}
	if *verbose {
		req.OnStep = func(record model.ActionRecord) {
			fmt.Printf("step %2d: %s\n", record.Step, aurora.Cyan(record.Command))
			fmt.Printf("   └── %s\n", record.Output)
			fmt.Printf("   └── reward: %.1f\n", record.Reward)
		}
	}

	records, err := client.Deploy(ctx, req)
	if err != nil {
		return err
	}

	for _, record := range records {
		fmt.Printf("engagement %d: target=%s steps=%d reward=%.1f outcome=%s\n",
			record.Episode, record.Target, len(record.Trace), record.Reward, colorOutcome(record.Outcome))
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	limit := fs.Int("limit", 20, "number of most recent episodes to print")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit < 0 {
		return fmt.Errorf("limit must be >= 0, got %d", *limit)
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summaries, err := client.EpisodeSummaries(ctx, *runID)
	if err != nil {
		return err
	}
	if *limit > 0 && len(summaries) > *limit {
		summaries = summaries[len(summaries)-*limit:]
	}

	fmt.Println("episode  steps  reward    epsilon  outcome")
	for _, summary := range summaries {
		fmt.Printf("%7d  %5d  %8.1f  %.4f  %s\n",
			summary.Episode, summary.Steps, summary.Reward, summary.Epsilon, colorOutcome(summary.Outcome))
	}

	episodes, err := client.Checkpoints(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("checkpoints: %v\n", episodes)
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no trained runs")
		return nil
	}

	fmt.Println("run id            episodes  best_ep  best_reward  final_eps  created_at")
	for _, entry := range runs {
		fmt.Printf("%-16s  %8d  %7d  %11.1f  %9.3f  %s\n",
			entry.RunID, entry.Episodes, entry.BestEpisode, entry.BestReward, entry.FinalEpsilon, entry.CreatedAtUTC)
	}
	return nil
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	outDir := fs.String("out-dir", reportsDir, "report output directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	paths, err := client.WriteReports(ctx, redsimapi.ReportRequest{RunID: *runID, OutDir: *outDir})
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Printf("report written: %s\n", path)
	}
	return nil
}

func runChart(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chart", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	outPath := fs.String("out", "", "chart output path (defaults under exports/)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	path, err := client.WriteChart(ctx, redsimapi.ChartRequest{RunID: *runID, OutPath: *outPath})
	if err != nil {
		return err
	}
	fmt.Printf("chart written: %s\n", path)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	outPath := fs.String("out", "", "workbook output path (defaults under exports/)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	path, err := client.ExportWorkbook(ctx, redsimapi.ExportRequest{RunID: *runID, OutPath: *outPath})
	if err != nil {
		return err
	}
	fmt.Printf("workbook written: %s\n", path)
	return nil
}

func newClient(storeKind, dbPath string) (*redsimapi.Client, error) {
	return redsimapi.New(redsimapi.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		ReportsDir: reportsDir,
		ExportsDir: exportsDir,
	})
}

func colorOutcome(outcome model.Outcome) aurora.Value {
	switch outcome {
	case model.OutcomeFlagCaptured:
		return aurora.Green(string(outcome))
	case model.OutcomeDetected:
		return aurora.Red(string(outcome))
	case model.OutcomeTimeout:
		return aurora.Yellow(string(outcome))
	default:
		return aurora.White(string(outcome))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: redsimctl <init|reset|train|run|history|runs|report|chart|export> [flags]", msg)
}
