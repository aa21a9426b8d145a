// Train fits the scaler and forest on the labeled transactions CSV and
// writes the model bundle served by fraudscore.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/config"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/training"
)

var (
	configPath string
	dataPath   string
	outputPath string
	trees      int
	maxDepth   int
	seed       int64
	testSize   float64
	workers    int
	logLevel   string
)

// rootCmd trains with the configured defaults when run without flags.
var rootCmd = &cobra.Command{
	Use:          "train",
	Short:        "Train the fraud model and write the bundle",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		path := configPath
		if path == "" {
			path = os.Getenv(config.EnvPrefix + "CONFIG")
		}
		if path == "" {
			path = config.DefaultPath
		}
		cfg, err := config.LoadFrom(path, os.Getenv(config.EnvPrefix+"TIER"))
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("data") {
			cfg.Training.DataPath = dataPath
		}
		if flags.Changed("out") {
			cfg.Artifacts.BundlePath = outputPath
		}
		if flags.Changed("trees") {
			cfg.Training.Trees = trees
		}
		if flags.Changed("max-depth") {
			cfg.Training.MaxDepth = maxDepth
		}
		if flags.Changed("seed") {
			cfg.Training.Seed = seed
		}
		if flags.Changed("test-size") {
			cfg.Training.TestSize = testSize
		}
		if flags.Changed("workers") {
			cfg.Training.Workers = workers
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := training.NewPipeline(cfg.Training, cfg.Artifacts.BundlePath).Run(ctx)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), result, cfg.Artifacts.BundlePath)
	},
}

func printResult(w io.Writer, result *training.Result, path string) error {
	fmt.Fprintf(w, "Model bundle %s written to %s\n", result.Bundle.ID, path)
	fmt.Fprintf(w, "Rows: %d (frauds %d, synthetic %d, train %d, test %d) in %s\n\n",
		result.Stats.Rows, result.Stats.Frauds, result.Stats.Synthetic,
		result.Stats.TrainRows, result.Stats.TestRows, result.Stats.Duration.Round(1e6))

	fmt.Fprintln(w, "Classification Report:")
	if err := result.Report.WriteText(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Confusion Matrix:")
	return result.Report.Matrix.WriteMatrix(w)
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "Config file (default $FRAUDSCORE_CONFIG or "+config.DefaultPath+")")
	flags.StringVar(&dataPath, "data", "", "Labeled transactions CSV (overrides training.data_path)")
	flags.StringVar(&outputPath, "out", "", "Bundle output path (overrides artifacts.bundle_path)")
	flags.IntVar(&trees, "trees", 0, "Number of trees in the forest")
	flags.IntVar(&maxDepth, "max-depth", 0, "Maximum tree depth")
	flags.Int64Var(&seed, "seed", 0, "Seed for resampling, splitting and the forest")
	flags.Float64Var(&testSize, "test-size", 0, "Held-out fraction for the evaluation report")
	flags.IntVar(&workers, "workers", 0, "Concurrent tree builders (0 = GOMAXPROCS)")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
