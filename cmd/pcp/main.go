package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/parcp/parcp/internal/cliconfig"
	"github.com/parcp/parcp/internal/engine"
	"github.com/parcp/parcp/internal/filter"
	"github.com/parcp/parcp/internal/present"
	"github.com/parcp/parcp/internal/progress"
	"github.com/parcp/parcp/internal/runconfig"
	"github.com/parcp/parcp/internal/stats"
	"github.com/parcp/parcp/internal/walk"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "string" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: main CLI entry point orchestrates all flag parsing
func run() int {
	var (
		recursive         bool
		noTargetDirectory bool
		globFlag          bool
		noClobber         bool
		verboseCount      int
		quiet             bool
		workers           int
		blockSizeStr      string
		driverStr         string
		reflinkStr        string
		backupStr         string
		fsync             bool
		gitignore         bool
		noPerms           bool
		noTimestamps      bool
		noProgress        bool
		verifyChecksum    bool
		resume            bool
		iouring           bool
		bwLimitStr        string
		logFile           string
		showVersion       bool
		benchmarkFlag     bool
		filterFile        string
		minSizeStr        string
		maxSizeStr        string
	)

	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "pcp [flags] <source>... <destination>",
		Short: "Parallel, resumable file copy",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "pcp %s\n", version)
				return nil
			}

			sources := args[:len(args)-1]
			target := args[len(args)-1]

			ccfg, err := cliconfig.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyConfigDefaults(cmd, ccfg.Defaults, &workers, &driverStr, &reflinkStr,
				&verifyChecksum, &gitignore, &resume, &iouring, &bwLimitStr)
			if !cmd.Flags().Changed("block-size") && ccfg.Defaults.BlockSize != nil {
				blockSizeStr = *ccfg.Defaults.BlockSize
			}
			if !cmd.Flags().Changed("fsync") && ccfg.Defaults.Fsync != nil {
				fsync = *ccfg.Defaults.Fsync
			}

			logLevel := slog.LevelWarn
			switch {
			case verboseCount >= 2:
				logLevel = slog.LevelDebug
			case verboseCount == 1:
				logLevel = slog.LevelInfo
			case quiet:
				logLevel = slog.LevelError
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
				logHandler = present.NewMultiHandler(textHandler, jsonHandler)
			}
			slog.SetDefault(slog.New(logHandler))

			if filterFile != "" {
				if ferr := chain.LoadFile(filterFile); ferr != nil {
					return fmt.Errorf("load filter file: %w", ferr)
				}
			}
			if minSizeStr != "" {
				n, serr := filter.ParseSize(minSizeStr)
				if serr != nil {
					return fmt.Errorf("invalid --min-size: %w", serr)
				}
				chain.SetMinSize(n)
			}
			if maxSizeStr != "" {
				n, serr := filter.ParseSize(maxSizeStr)
				if serr != nil {
					return fmt.Errorf("invalid --max-size: %w", serr)
				}
				chain.SetMaxSize(n)
			}

			var bwLimit int64
			if bwLimitStr != "" {
				bwLimit, err = filter.ParseSize(bwLimitStr)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}

			var blockSize int64 = runconfig.DefaultBlockSize
			if blockSizeStr != "" {
				n, serr := filter.ParseSize(blockSizeStr)
				if serr != nil {
					return fmt.Errorf("invalid --block-size: %w", serr)
				}
				blockSize = n
			}

			if !cmd.Flags().Changed("workers") && workers <= 0 {
				workers = min(runtime.NumCPU()*2, 32)
			}

			if benchmarkFlag {
				benchResult, berr := engine.RunBenchmark(context.Background(), sources[0], target)
				if berr != nil {
					slog.Warn("benchmark failed", "error", berr)
				} else {
					fmt.Fprintln(os.Stderr, engine.FormatBenchmark(benchResult))
					if !cmd.Flags().Changed("workers") {
						workers = benchResult.SuggestedWorkers
					}
				}
			}

			backup, berr := parseBackup(backupStr)
			if berr != nil {
				return berr
			}

			rcfg := &runconfig.Config{
				Sources:           sources,
				Target:            target,
				Recursive:         recursive,
				NoTargetDirectory: noTargetDirectory,
				Gitignore:         gitignore,
				Glob:              globFlag,
				NoClobber:         noClobber,
				Backup:            backup,
				Driver:            runconfig.Driver(driverStr),
				Workers:           workers,
				BlockSize:         blockSize,
				Reflink:           runconfig.ReflinkMode(reflinkStr),
				IOURing:           iouring,
				Fsync:             fsync,
				NoPerms:           noPerms,
				NoTimestamps:      noTimestamps,
				VerifyChecksum:    verifyChecksum,
				NoProgress:        noProgress,
				BandwidthLimit:    bwLimit,
			}
			if !chain.Empty() {
				rcfg.Filter = chain
			}
			if resume {
				rcfg.CheckpointPath = "enabled"
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			events := make(chan progress.Event, 256)
			collector := stats.NewCollector()

			isTTY := present.IsTTY(os.Stderr.Fd())
			presenter := present.NewPresenter(present.Config{
				Writer:    os.Stdout,
				ErrWriter: os.Stderr,
				Quiet:     quiet || noProgress,
				IsTTY:     isTTY,
				Stats:     collector,
			})

			var result engine.RunResult
			var presenterWg sync.WaitGroup
			presenterWg.Add(1)
			go func() {
				defer presenterWg.Done()
				_ = presenter.Run(events) //nolint:errcheck // presenter error is non-fatal
			}()

			result = engine.Run(ctx, rcfg, progress.Sink(events), collector)
			stop()
			close(events)
			presenterWg.Wait()

			if !quiet {
				slog.Info("copy finished",
					"files_copied", result.Stats.FilesCopied,
					"bytes_copied", result.Stats.BytesCopied,
					"errors", result.ErrCount,
				)
			}

			if result.Err != nil {
				slog.Error("copy failed", "error", result.Err)
				if result.Stats.FilesCopied > 0 || result.ErrCount > 0 {
					return &exitError{code: 1}
				}
				return &exitError{code: 2}
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "copy directories recursively")
	rootCmd.Flags().
		BoolVarP(&noTargetDirectory, "no-target-directory", "T", false, "treat destination as a normal file, requires exactly one source")
	rootCmd.Flags().BoolVarP(&globFlag, "glob", "g", false, "expand glob patterns in source operands")
	rootCmd.Flags().BoolVarP(&noClobber, "no-clobber", "n", false, "never overwrite an existing destination")
	rootCmd.Flags().CountVarP(&verboseCount, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of copy workers (default: min(NumCPU*2, 32))")
	rootCmd.Flags().StringVar(&blockSizeStr, "block-size", "", "par-block driver's split size (default: 4MiB)")
	rootCmd.Flags().StringVar(&driverStr, "driver", string(runconfig.DriverParFile), "copy driver: parfile|parblock")
	rootCmd.Flags().StringVar(&reflinkStr, "reflink", string(runconfig.ReflinkAuto), "copy-on-write clone mode: auto|always|never")
	rootCmd.Flags().StringVar(&backupStr, "backup", "none", "existing-destination backup policy: none|numbered|auto")
	rootCmd.Flags().BoolVar(&fsync, "fsync", false, "fsync every destination file before closing")
	rootCmd.Flags().BoolVar(&gitignore, "gitignore", false, "skip files matched by .gitignore rules")
	rootCmd.Flags().BoolVar(&noPerms, "no-perms", false, "don't preserve permission bits")
	rootCmd.Flags().BoolVar(&noTimestamps, "no-timestamps", false, "don't preserve mtimes")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable progress display")
	rootCmd.Flags().BoolVar(&verifyChecksum, "verify-checksum", false, "verify checksums after copy (xxh3)")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "record/consult a checkpoint so a re-run skips completed files")
	rootCmd.Flags().BoolVar(&iouring, "iouring", false, "use io_uring for block copies on the par-block driver (Linux only)")
	rootCmd.Flags().StringVar(&bwLimitStr, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	rootCmd.Flags().StringVar(&logFile, "log", "", "write structured JSON log to FILE")
	rootCmd.Flags().BoolVar(&benchmarkFlag, "benchmark", false, "measure throughput before copy and auto-tune workers")
	rootCmd.Flags().
		VarP(&filterFlag{chain: chain, include: false}, "exclude", "", "exclude files matching PATTERN (repeatable)")
	rootCmd.Flags().
		VarP(&filterFlag{chain: chain, include: true}, "include", "", "include files matching PATTERN (repeatable)")
	rootCmd.Flags().StringVar(&filterFile, "filter", "", "read filter rules from FILE")
	rootCmd.Flags().StringVar(&minSizeStr, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	rootCmd.Flags().StringVar(&maxSizeStr, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")

	rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "exclude" || f.Name == "include" {
			f.NoOptDefVal = ""
		}
	})

	rootCmd.AddCommand(checksumCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func parseBackup(s string) (walk.BackupPolicy, error) {
	switch s {
	case "", "none":
		return walk.BackupNone, nil
	case "numbered":
		return walk.BackupNumbered, nil
	case "auto":
		return walk.BackupAuto, nil
	default:
		return walk.BackupNone, fmt.Errorf("unknown --backup policy %q", s)
	}
}

// applyConfigDefaults applies cliconfig defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults cliconfig.DefaultsConfig,
	workers *int,
	driver *string,
	reflink *string,
	verifyChecksum *bool,
	gitignore *bool,
	resume *bool,
	iouring *bool,
	bwLimit *string,
) {
	if !cmd.Flags().Changed("workers") && defaults.Workers != nil {
		*workers = *defaults.Workers
	}
	if !cmd.Flags().Changed("driver") && defaults.Driver != nil {
		*driver = *defaults.Driver
	}
	if !cmd.Flags().Changed("reflink") && defaults.Reflink != nil {
		*reflink = *defaults.Reflink
	}
	if !cmd.Flags().Changed("verify-checksum") && defaults.VerifyChecksum != nil {
		*verifyChecksum = *defaults.VerifyChecksum
	}
	if !cmd.Flags().Changed("gitignore") && defaults.Gitignore != nil {
		*gitignore = *defaults.Gitignore
	}
	if !cmd.Flags().Changed("resume") && defaults.Resume != nil {
		*resume = *defaults.Resume
	}
	if !cmd.Flags().Changed("iouring") && defaults.IOURing != nil {
		*iouring = *defaults.IOURing
	}
	if !cmd.Flags().Changed("bwlimit") && defaults.BWLimit != nil {
		*bwLimit = *defaults.BWLimit
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
