// Package main provides the inreach command line: batch outreach runs over a
// CSV of profiles, and the history of past runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/inreach/pkg/config"
	"github.com/entrhq/inreach/pkg/ledger"
	"github.com/entrhq/inreach/pkg/logging"
	"github.com/entrhq/inreach/pkg/outreach"
	"github.com/entrhq/inreach/pkg/types"
)

const version = "0.1.0"

// errRunFailed marks a run that ended without completing; the summary has
// already been printed
var errRunFailed = errors.New("run did not complete")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("inreach v%s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, failedStyle.Render("Error: "+err.Error()))
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "inreach - batch outreach from a list of profiles\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  inreach run [options] <profiles.csv>\n")
	fmt.Fprintf(os.Stderr, "  inreach history [options]\n")
	fmt.Fprintf(os.Stderr, "  inreach version\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  # Review every message before it is sent\n")
	fmt.Fprintf(os.Stderr, "  inreach run -config inreach.yaml -gate leads.csv\n\n")
	fmt.Fprintf(os.Stderr, "  # Continue where yesterday's run stopped\n")
	fmt.Fprintf(os.Stderr, "  inreach run -resume leads.csv\n\n")
	fmt.Fprintf(os.Stderr, "  # Show the rows of run 12\n")
	fmt.Fprintf(os.Stderr, "  inreach history -run 12\n")
}

// runFlags holds command-line overrides for the run command
type runFlags struct {
	configFile   string
	headless     bool
	gate         bool
	resume       bool
	batchSize    int
	dailyLimit   int
	maxRetries   int
	model        string
	instructions string
	ledgerPath   string
}

func parseRunFlags(args []string) (*runFlags, *flag.FlagSet, error) {
	f := &runFlags{}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML)")
	fs.BoolVar(&f.headless, "headless", false, "Run the browser without a window")
	fs.BoolVar(&f.gate, "gate", false, "Wait for a key press in the browser before each send")
	fs.BoolVar(&f.resume, "resume", false, "Skip rows processed by the previous run of the same file")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Rows per browser session")
	fs.IntVar(&f.dailyLimit, "daily-limit", 0, "Maximum sends per day (negative for unlimited)")
	fs.IntVar(&f.maxRetries, "max-retries", 0, "Attempts per batch after browser crashes")
	fs.StringVar(&f.model, "model", "", "LLM model to use")
	fs.StringVar(&f.instructions, "instructions", "", "Guidance for the message writer")
	fs.StringVar(&f.ledgerPath, "db", "", "Path to the run history database")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

// apply copies the flags the user actually set onto cfg
func (f *runFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "headless":
			cfg.Browser.Headless = f.headless
		case "gate":
			cfg.Gate.Enabled = f.gate
		case "resume":
			cfg.Run.Resume = f.resume
		case "batch-size":
			cfg.Run.BatchSize = f.batchSize
		case "daily-limit":
			cfg.Run.DailyLimit = f.dailyLimit
		case "max-retries":
			cfg.Run.MaxRetries = f.maxRetries
		case "model":
			cfg.LLM.Model = f.model
		case "instructions":
			cfg.Run.Instructions = f.instructions
		case "db":
			cfg.Ledger.Path = f.ledgerPath
		}
	})
}

func setupLogging(cfg *config.Config) *logging.Logger {
	if cfg.Logging.Dir != "" {
		logging.SetDirectory(cfg.Logging.Dir)
	}
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		logging.SetDefaultLevel(level)
	}
	logger, err := logging.NewLogger("inreach")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return logger
}

func runCommand(args []string) error {
	flags, fs, err := parseRunFlags(args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run expects exactly one CSV file, got %d arguments", fs.NArg())
	}
	csvPath := fs.Arg(0)

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	flags.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogging(cfg)
	defer logger.Close()

	rows, err := loadRows(csvPath)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s has no rows with a profile URL", csvPath)
	}

	out := newConsole(os.Stdout, cfg.Gate.ConfirmKey, cfg.Gate.SkipKey)
	opts := []outreach.Option{outreach.WithListener(out.Listen)}
	if cfg.Artifacts.Enabled {
		opts = append(opts, outreach.WithArtifacts(outreach.NewArtifactWriter(cfg.Artifacts.OutputDir)))
	}

	eng, err := newEngine(cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer eng.Close(logger)

	if path := logger.LogPath(); path != "" {
		fmt.Println(mutedStyle.Render("Logging to " + path))
	}

	result, err := execute(context.Background(), eng.controller, filepath.Base(csvPath), rows, out)
	if err != nil {
		return err
	}
	out.Summary(result)
	if !result.Success() {
		return errRunFailed
	}
	return nil
}

// execute runs the controller on its worker goroutine next to a signal
// watcher. The first interrupt stops dispatching after the current batch;
// a second one exits immediately.
func execute(ctx context.Context, controller *outreach.Controller, source string, rows []types.ProfileRow, out *console) (*types.RunResult, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var result *types.RunResult
	done := make(chan struct{})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		<-controller.Start(runCtx, source, rows, func(r *types.RunResult) {
			result = r
		})
		return nil
	})
	g.Go(func() error {
		interrupted := false
		for {
			select {
			case <-done:
				return nil
			case <-gCtx.Done():
				return nil
			case <-sigChan:
				if interrupted {
					out.printf("\n%s\n", failedStyle.Render("Forced exit."))
					os.Exit(130)
				}
				interrupted = true
				out.printf("\n%s\n", skippedStyle.Render("Stopping after the current batch... (press Ctrl+C again to force)"))
				cancelRun()
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to configuration file (YAML)")
	dbPath := fs.String("db", "", "Path to the run history database")
	limit := fs.Int("limit", 20, "Number of runs to list")
	runID := fs.Int64("run", 0, "Show the rows of one run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Ledger.Path = *dbPath
	}

	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("failed to open ledger %s: %w", cfg.Ledger.Path, err)
	}
	defer store.Close()

	ctx := context.Background()
	if *runID > 0 {
		run, err := store.GetRun(ctx, *runID)
		if err != nil {
			return err
		}
		recs, err := store.ListEmails(ctx, run.ID)
		if err != nil {
			return err
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("Run %d: %s (%s)", run.ID, run.FileName, run.Status)))
		if run.Error != "" {
			fmt.Println(mutedStyle.Render(run.Error))
		}
		fmt.Println()
		fmt.Println(renderEmails(recs))
		return nil
	}

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Println(renderRuns(runs))
	return nil
}
