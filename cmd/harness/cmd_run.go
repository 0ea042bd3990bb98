package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dd0wney/netharness/pkg/checkpoint"
	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/metrics"
	"github.com/dd0wney/netharness/pkg/output"
	"github.com/dd0wney/netharness/pkg/protocol"
	"github.com/dd0wney/netharness/pkg/registry"
	"github.com/dd0wney/netharness/pkg/workflow"
	"github.com/spf13/cobra"
)

// runOptions are the flags of the run command.
type runOptions struct {
	tag         string
	cpus        int
	seed        uint64
	seedSet     bool
	outputRoot  string
	compress    bool
	timeout     time.Duration
	tui         bool
	metricsAddr string
	checkpoint  string
	fresh       bool
	pgURL       string
	s3          output.S3Config
	logLevel    string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <protocol>",
		Short: "Execute a protocol",
		Long: `Execute a protocol.

Results go to <output>/<yyyy-MM-dd_HH:mm:ss>_<tag>/: loss.tsv, one
probability distribution and ROC table per sweep point, degrees.tsv, MCMC
traces, execution.log, summary.txt and a copy of the protocol.

Examples:
  harness run protocols/lycett.yaml -t lycett -c 8
  harness run sweep.yaml -c 4 --checkpoint .harness/checkpoints
  harness run sweep.yaml --tui --metrics-addr :9464`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.seedSet = cmd.Flags().Changed("seed")
			opts.logLevel, _ = cmd.Flags().GetString("log-level")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runProtocol(ctx, args[0], opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.tag, "tag", "t", "run", "Suffix of the run directory name")
	flags.IntVarP(&opts.cpus, "cpus", "c", runtime.NumCPU(), "Replicates executed concurrently")
	flags.Uint64Var(&opts.seed, "seed", 0, "Override the protocol seed")
	flags.StringVarP(&opts.outputRoot, "output", "o", output.DefaultConfig().Root, "Directory receiving run directories")
	flags.BoolVar(&opts.compress, "compress", false, "Snappy-compress trace streams")
	flags.DurationVar(&opts.timeout, "replicate-timeout", 0, "Cancel replicates running longer than this (0 disables)")
	flags.BoolVar(&opts.tui, "tui", false, "Show an interactive progress view")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	flags.StringVar(&opts.checkpoint, "checkpoint", "", "Badger directory storing finished sweep points")
	flags.BoolVar(&opts.fresh, "fresh", false, "Discard checkpoints of this protocol before running")
	flags.StringVar(&opts.pgURL, "pg-url", "", "PostgreSQL URL receiving loss rows")
	flags.StringVar(&opts.s3.Bucket, "s3-bucket", "", "Archive the run directory to this bucket")
	flags.StringVar(&opts.s3.Prefix, "s3-prefix", "", "Key prefix of archived runs")
	flags.StringVar(&opts.s3.Region, "s3-region", "", "AWS region (default from the AWS configuration)")
	flags.StringVar(&opts.s3.Endpoint, "s3-endpoint", "", "S3-compatible endpoint, e.g. a MinIO URL")

	return cmd
}

func (o *runOptions) level() logging.Level {
	if o.logLevel != "" {
		return logging.ParseLevel(o.logLevel)
	}
	return logging.DefaultLogger().GetLevel()
}

// runProtocol executes the protocol at path and writes its run directory.
func runProtocol(ctx context.Context, path string, opts *runOptions, stdout io.Writer) (err error) {
	if opts.fresh && opts.checkpoint == "" {
		return errors.New("--fresh needs --checkpoint")
	}

	p, err := protocol.Load(path)
	if err != nil {
		return err
	}
	if opts.seedSet {
		p.Seed = opts.seed
	}
	reg := registry.Default()
	if err := workflow.Check(reg, p); err != nil {
		return err
	}

	out, err := output.New(output.Config{Root: opts.outputRoot, Tag: opts.tag, CompressStreams: opts.compress})
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			err = errors.Join(err, out.Close())
		}
	}()

	// the progress view owns the terminal, so logs only go to the file then
	var logger logging.Logger
	if opts.tui {
		logger = logging.NewJSONLogger(out.LogWriter(), opts.level()).With(logging.String("run_id", out.RunID()))
	} else {
		logger = out.Logger(opts.level())
	}
	logger = logger.With(logging.String("protocol", p.Name))

	if err := out.CopyProtocol(path); err != nil {
		return fmt.Errorf("copy protocol: %w", err)
	}

	m := metrics.NewRegistry()
	execOpts := []workflow.Option{
		workflow.WithRegistry(reg),
		workflow.WithSink(out),
		workflow.WithLogger(logger),
		workflow.WithMetrics(m),
		workflow.WithObserver(m),
	}

	if opts.metricsAddr != "" {
		srv := metrics.NewServer(opts.metricsAddr, m, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics server stopped", logging.Error(err))
			}
		}()
		defer srv.Shutdown(5 * time.Second)
	}

	if opts.checkpoint != "" {
		store, err := checkpoint.OpenWithOptions(checkpoint.Options{Dir: opts.checkpoint, Logger: logger})
		if err != nil {
			return err
		}
		defer store.Close()
		if opts.fresh {
			n, err := store.Forget(p.Digest)
			if err != nil {
				return err
			}
			logger.Info("checkpoints discarded", logging.Count(n))
		}
		execOpts = append(execOpts, workflow.WithCheckpoints(store))
	}

	if opts.pgURL != "" {
		rec, err := output.NewPostgresRecorder(ctx, opts.pgURL, out.RunID(), p)
		if err != nil {
			return err
		}
		defer rec.Close()
		execOpts = append(execOpts, workflow.WithRecorder(rec))
	}

	var view *progressView
	if opts.tui {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		view = newProgressView(p, cancel, stdout)
		execOpts = append(execOpts, workflow.WithProgress(view.Report))
	} else {
		execOpts = append(execOpts, workflow.WithProgress(lineProgress(stdout)))
	}

	exec, err := workflow.NewExecutor(workflow.Config{Slots: opts.cpus, ReplicateTimeout: opts.timeout}, execOpts...)
	if err != nil {
		return err
	}

	logger.Info("run started",
		logging.Path(out.Dir()),
		logging.String("digest", p.Digest),
		logging.Uint64("seed", p.Seed),
		logging.Int("slots", exec.Config().Slots))

	if view != nil {
		view.Start()
	}
	report, runErr := exec.Run(ctx, p)
	if view != nil {
		view.Finish(runErr)
	}

	summary := p.Summary() + fmt.Sprintf("run id:        %s\n\n", out.RunID())
	if report != nil {
		summary += report.Summary()
	}
	if runErr != nil {
		summary += "\nfailed: " + runErr.Error() + "\n"
	}
	if err := out.WriteSummary(summary); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("write summary: %w", err))
	}

	closed = true
	if err := out.Close(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	if opts.s3.Bucket != "" {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "run interrupted, skipping archive")
		} else if err := archive(ctx, opts.s3, out, opts.level()); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	if report != nil && !opts.tui {
		fmt.Fprintf(stdout, "\n%s\n", report.LossTable())
	}
	fmt.Fprintf(stdout, "results in %s\n", out.Dir())
	return runErr
}

// archive uploads the closed run directory.
func archive(ctx context.Context, cfg output.S3Config, out *output.Controller, level logging.Level) error {
	logger := logging.NewJSONLogger(os.Stderr, level).With(logging.String("run_id", out.RunID()))
	a, err := output.NewS3Archiver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	_, err = a.Archive(ctx, out)
	return err
}

// lineProgress prints one line per finished sweep point.
func lineProgress(w io.Writer) func(workflow.Progress) {
	return func(pr workflow.Progress) {
		if pr.Row == nil {
			return
		}
		label := pr.Variables
		if label == "" {
			label = "-"
		}
		state := fmt.Sprintf("%d replicates in %s", pr.Row.Replicates, pr.Row.Elapsed.Round(time.Millisecond))
		if pr.Row.Restored {
			state = "restored"
		}
		fmt.Fprintf(w, "point %d/%d %s: real loss %.6f, not real loss %.6f (%s)\n",
			pr.Point+1, pr.Points, label, pr.Row.RealLoss, pr.Row.NotRealLoss, state)
	}
}
