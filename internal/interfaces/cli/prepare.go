package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/MolPrep-Engine/internal/application/prep"
	"github.com/turtacn/MolPrep-Engine/internal/chem/lite"
	"github.com/turtacn/MolPrep-Engine/internal/config"
	domainMol "github.com/turtacn/MolPrep-Engine/internal/domain/molecule"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/database/postgres"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/database/redis"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolPrep-Engine/pkg/client"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
	mtypes "github.com/turtacn/MolPrep-Engine/pkg/types/molecule"
)

// prepareOptions holds flags for the prepare command.
type prepareOptions struct {
	InputFile  string
	Conformers int
	RMSDCutoff float64
	Minimize   bool
	Seed       int64
	Persist    bool
	Publish    bool
	Cache      bool
}

// NewPrepareCmd creates the prepare subcommand.
func NewPrepareCmd() *cobra.Command {
	opts := &prepareOptions{}

	cmd := &cobra.Command{
		Use:   "prepare [notation ...]",
		Short: "Prepare molecule notations for virtual screening",
		Long:  "Prepare runs the full pipeline over the given notations: fragment\nselection, standardization, anomaly repair, and 3D conformer generation.\nNotations come from positional arguments, --input, or both.",
		Example: `  molprep prepare "CCO" "CC(=O)O"
  molprep prepare --input ligands.smi --conformers 5 --minimize
  molprep prepare --input ligands.smi --persist --publish -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.InputFile, "input", "i", "", "file with one notation per line (optional tab-separated name)")
	f.IntVar(&opts.Conformers, "conformers", 0, "conformer embedding attempts per molecule (0 uses config)")
	f.Float64Var(&opts.RMSDCutoff, "rmsd-cutoff", 0, "heavy-atom RMSD below which conformers are redundant")
	f.BoolVar(&opts.Minimize, "minimize", false, "minimize embedded conformer geometries")
	f.Int64Var(&opts.Seed, "seed", 0, "embedding random seed (0 is non-deterministic)")
	f.BoolVar(&opts.Persist, "persist", false, "save prepared molecules to PostgreSQL")
	f.BoolVar(&opts.Publish, "publish", false, "publish domain events to Kafka")
	f.BoolVar(&opts.Cache, "cache", false, "cache standardizer answers in Redis")

	return cmd
}

func runPrepare(cmd *cobra.Command, args []string, opts *prepareOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	logger := cliCtx.Logger

	inputs, err := collectInputs(args, opts.InputFile)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.New(errors.ErrCodeValidation, "no notations given; pass arguments or --input")
	}

	confCfg := cfg.Conformers
	if cmd.Flags().Changed("conformers") {
		confCfg.TargetCount = opts.Conformers
	}
	if cmd.Flags().Changed("rmsd-cutoff") {
		confCfg.RMSDCutoff = opts.RMSDCutoff
	}
	if cmd.Flags().Changed("minimize") {
		confCfg.Minimize = opts.Minimize
	}
	if cmd.Flags().Changed("seed") {
		confCfg.Seed = opts.Seed
	}

	svc, cleanup, err := buildService(cmd, cfg, confCfg, opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := svc.PrepareBatch(cmd.Context(), inputs)
	if err != nil {
		// Chemistry failures are reported per-record; an error here is an
		// infrastructure failure, but partial results are still printable.
		logger.Error("batch finished with infrastructure error", logging.Err(err))
	}
	if result != nil {
		if printErr := printBatchResult(cmd, cliCtx, result); printErr != nil {
			return printErr
		}
	}
	return err
}

// buildService wires the preparation service from configuration and flags.
// Infrastructure ports are attached only when requested, so the default
// invocation runs entirely in-process.
func buildService(cmd *cobra.Command, cfg *config.Config, confCfg config.ConformersConfig, opts *prepareOptions, logger logging.Logger) (prep.Service, func(), error) {
	var engOpts []lite.Option
	if confCfg.Seed != 0 {
		engOpts = append(engOpts, lite.WithSeed(confCfg.Seed))
	}
	eng := lite.New(engOpts...)

	closers := make([]func(), 0, 4)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	metrics, handler, err := buildMetrics(cfg.Metrics, logger)
	if err != nil {
		return nil, nil, err
	}
	if handler != nil {
		closers = append(closers, serveMetrics(cfg.Metrics.Addr, handler, logger))
	}

	std, err := buildStandardizer(cmd, cfg, opts, logger, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var repo domainMol.Repository
	if opts.Persist {
		conn, connErr := postgres.NewConnection(cmd.Context(), cfg.Database, logger)
		if connErr != nil {
			cleanup()
			return nil, nil, connErr
		}
		closers = append(closers, conn.Close)
		repo = repositories.NewMoleculeRepository(conn.Pool(), logger)
	}

	var pub prep.EventPublisher
	if opts.Publish {
		producer, prodErr := kafka.NewProducer(cfg.Kafka, logger)
		if prodErr != nil {
			cleanup()
			return nil, nil, prodErr
		}
		closers = append(closers, func() {
			if closeErr := producer.Close(); closeErr != nil {
				logger.Warn("kafka producer close failed", logging.Err(closeErr))
			}
		})
		pub = kafka.NewEventPublisher(producer, cfg.Kafka.TopicPrefix, metrics, logger)
	}

	return prep.NewService(eng, repo, std, pub, metrics, confCfg, logger), cleanup, nil
}

// buildMetrics constructs the pipeline metrics when exposition is enabled.
// Both return values are nil when metrics are off.
func buildMetrics(cfg config.MetricsConfig, logger logging.Logger) (*prometheus.PrepMetrics, http.Handler, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Namespace,
		EnableProcessMetrics: cfg.EnableProcessMetrics,
		EnableGoMetrics:      cfg.EnableGoMetrics,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return prometheus.NewPrepMetrics(collector), collector.Handler(), nil
}

// serveMetrics starts the prometheus exposition endpoint in the background
// and returns its shutdown closer.
func serveMetrics(addr string, handler http.Handler, logger logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics endpoint listening", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics endpoint failed", logging.Err(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics endpoint shutdown failed", logging.Err(err))
		}
	}
}

// buildStandardizer creates the standardization port.  It is nil when no
// service is configured; with --cache answers go through Redis first.
func buildStandardizer(cmd *cobra.Command, cfg *config.Config, opts *prepareOptions, logger logging.Logger, closers *[]func()) (domainMol.Standardizer, error) {
	if cfg.Standardizer.BaseURL == "" {
		return nil, nil
	}

	sdk, err := client.NewClient(cfg.Standardizer.BaseURL,
		client.WithRetryMax(cfg.Standardizer.MaxRetries),
		client.WithHTTPClient(&http.Client{Timeout: cfg.Standardizer.Timeout}),
	)
	if err != nil {
		return nil, err
	}
	if !opts.Cache {
		return sdk, nil
	}

	rc, err := redis.NewClient(cmd.Context(), cfg.Redis, logger)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, func() {
		if closeErr := rc.Close(); closeErr != nil {
			logger.Warn("redis close failed", logging.Err(closeErr))
		}
	})

	cache := redis.NewRedisCache(rc, logger,
		redis.WithPrefix(cfg.Redis.KeyPrefix),
		redis.WithDefaultTTL(cfg.Redis.DefaultTTL),
	)
	return redis.NewCachedStandardizer(sdk, cache, cfg.Standardizer.CacheTTL, logger), nil
}

// collectInputs merges positional notations with lines from the input file.
// File lines may carry an optional tab-separated molecule name; blank lines
// and #-comments are skipped.
func collectInputs(args []string, inputFile string) ([]prep.Input, error) {
	inputs := make([]prep.Input, 0, len(args))
	for _, arg := range args {
		inputs = append(inputs, prep.Input{Notation: arg})
	}

	if inputFile == "" {
		return inputs, nil
	}

	f, err := os.Open(inputFile)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to open input file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		notation, name, _ := strings.Cut(line, "\t")
		inputs = append(inputs, prep.Input{
			Notation: strings.TrimSpace(notation),
			Name:     strings.TrimSpace(name),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to read input file")
	}

	return inputs, nil
}

// printBatchResult renders the batch outcome in the configured format.
func printBatchResult(cmd *cobra.Command, cliCtx *CLIContext, result *prep.BatchResult) error {
	if strings.EqualFold(cliCtx.OutputFormat, "json") {
		return PrintResult(cmd, result)
	}

	out := cmd.OutOrStdout()
	for i, res := range result.Results {
		fmt.Fprintf(out, "%s\n", formatResultLine(i, res))
	}
	fmt.Fprintf(out, "\n%d prepared, %d discarded (%d total)\n",
		result.Prepared, result.Discarded, len(result.Results))
	return nil
}

// formatResultLine renders one record as a single text line.
func formatResultLine(i int, res *mtypes.PrepResult) string {
	label := res.Name
	if label == "" {
		label = res.Input
	}

	outcomes := make([]string, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		outcomes = append(outcomes, string(o))
	}

	line := fmt.Sprintf("[%d] %s: %s", i, label, strings.Join(outcomes, ", "))
	if res.Molecule != nil {
		line += fmt.Sprintf("  %s (%d conformers)", res.Molecule.CanonicalSmiles, len(res.Molecule.Conformers))
	}
	if res.Error != "" {
		line += "  error: " + res.Error
	}
	return line
}
