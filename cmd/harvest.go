package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/app"
	"github.com/JakeFAU/archive-harvester/internal/config"
	"github.com/JakeFAU/archive-harvester/internal/crawler"
	"github.com/JakeFAU/archive-harvester/internal/logging"
)

// newHarvester builds the application. It is a variable so tests can inject
// fakes.
var newHarvester = func(ctx context.Context, cfg config.Config, mode string, logger *zap.Logger) (*app.App, error) {
	return app.Build(ctx, cfg, mode, logger)
}

type harvestFlags struct {
	start         string
	end           string
	direction     string
	maxItems      int
	maxDuration   time.Duration
	useCheckpoint bool
	checkpointKey string
	report        string
}

func newHarvestCmd(mode, short string) *cobra.Command {
	flags := &harvestFlags{}
	cmd := &cobra.Command{
		Use:   mode,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, mode, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.start, "start", "", `first date to process (YYYY-MM-DD or "today")`)
	f.StringVar(&flags.end, "end", "", `last date to process (YYYY-MM-DD or "today")`)
	f.StringVar(&flags.direction, "direction", "", "forward or backward")
	f.IntVar(&flags.maxItems, "max-items", 0, "stop after this many dates (0 = unlimited)")
	f.DurationVar(&flags.maxDuration, "max-duration", 0, "stop after this much wall time (0 = unlimited)")
	f.BoolVar(&flags.useCheckpoint, "use-checkpoint", false, "resume one step past the stored checkpoint")
	f.StringVar(&flags.checkpointKey, "checkpoint-key", "", "object key of the checkpoint, for sharded runs")
	f.StringVar(&flags.report, "report", "", `print the final report to stdout ("json")`)
	return cmd
}

// applyOverrides copies the flags the user actually set onto the mode's run
// section.
func applyOverrides(cmd *cobra.Command, cfg *config.Config, mode string, flags *harvestFlags) error {
	run, err := cfg.Run(mode)
	if err != nil {
		return err
	}
	changed := cmd.Flags().Changed
	if changed("start") {
		run.StartDate = flags.start
	}
	if changed("end") {
		run.EndDate = flags.end
	}
	if changed("direction") {
		run.Direction = flags.direction
	}
	if changed("max-items") {
		run.MaxItems = flags.maxItems
	}
	if changed("max-duration") {
		run.MaxDuration = flags.maxDuration
	}
	if changed("use-checkpoint") {
		run.UseCheckpoint = flags.useCheckpoint
	}
	if changed("checkpoint-key") {
		run.CheckpointKey = flags.checkpointKey
	}
	return cfg.SetRun(mode, run)
}

func runHarvest(cmd *cobra.Command, mode string, flags *harvestFlags) error {
	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return err
	}
	if err := applyOverrides(cmd, &cfg, mode, flags); err != nil {
		return err
	}
	if flags.report != "" && flags.report != "json" {
		return &config.ValidationError{Problems: []string{fmt.Sprintf("--report %q is not supported (want json)", flags.report)}}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := newHarvester(ctx, cfg, mode, logger)
	if err != nil {
		logger.Error("harvester init failed", zap.Error(err))
		return err
	}
	defer func() {
		if cerr := harvester.Close(context.Background()); cerr != nil {
			logger.Warn("close failed", zap.Error(cerr))
		}
	}()

	params, err := harvester.Params()
	if err != nil {
		return err
	}
	report, err := harvester.Run(ctx, params)
	if err != nil {
		logger.Error("run rejected", zap.Error(err))
		return err
	}

	if flags.report == "json" {
		return writeReport(cmd.OutOrStdout(), report)
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"%s run %s: uploaded=%d already_existed=%d skipped=%d failed=%d cursor=%s halt=%s runtime=%.2fm\n",
		mode, report.RunID,
		report.Counters.Stored, report.Counters.AlreadyExisted, report.Counters.Skipped, report.Counters.Failed,
		report.Cursor, report.Halt, time.Duration(report.Elapsed).Minutes(),
	)
	return nil
}

func writeReport(w io.Writer, report crawler.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
