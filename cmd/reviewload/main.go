package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/studiowebux/reviewload/internal/cli"
	"github.com/studiowebux/reviewload/internal/config"
	"github.com/studiowebux/reviewload/internal/loadgen"
	"github.com/studiowebux/reviewload/internal/types"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reviewload",
	Short: "Load generator for the pull-request review-assignment service",
	Long: `reviewload simulates many virtual users against a review-assignment service.

Each user seeds a team, then repeatedly creates pull requests, merges them
and reassigns reviewers, while tracking what the server confirmed.

Examples:
  reviewload run --host http://localhost:8080 --users 50 --duration 60
  reviewload run --config scenarios/nightly.yaml --tui
  reviewload run --host http://localhost:8080 --users 5 --save-scenario smoke
  reviewload runs                      # List recorded runs
  reviewload runs show 3 -o json       # Show one run
  reviewload stub --addr :8080         # Start a local stub service`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

// run flags
var (
	flagConfig         string
	flagHost           string
	flagName           string
	flagUsers          int
	flagSpawnRate      float64
	flagDuration       int
	flagIterations     int
	flagWaitMin        float64
	flagWaitMax        float64
	flagTeamSize       int
	flagTeamPrefix     string
	flagMaxPRs         int
	flagWeightCreate   int
	flagWeightMerge    int
	flagWeightReassign int
	flagTimeout        int
	flagRate           float64
	flagInsecure       bool
	flagCACert         string
	flagDB             string
	flagMetricsAddr    string
	flagTUI            bool
	flagVerbose        bool
	flagOutput         string
	flagSaveScenario   string
)

// runs/stub flags
var (
	flagLimit         int
	flagStubAddr      string
	flagStubReviewers int
	flagOmitReviewers bool
	flagStubVerbose   bool
	flagRunsDB        string
	flagRunsOutput    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load scenario",
	Long: `Run a load scenario against the service.

The scenario starts from the defaults, then the --config YAML file, then any
flag given explicitly on the command line.`,
	Args: cobra.NoArgs,
	RunE: runLoad,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded load runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListRuns(cmd.OutOrStdout(), runsDatabase(), flagLimit, flagRunsOutput)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded load run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		return cli.ShowRun(cmd.OutOrStdout(), runsDatabase(), id, flagRunsOutput)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded load run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		if err := cli.DeleteRun(runsDatabase(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %d\n", id)
		return nil
	},
}

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Serve an in-memory review-assignment service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := cli.NewLogger(flagStubVerbose, "")
		if err != nil {
			return err
		}
		defer logger.Sync()

		return cli.ServeStub(cmd.Context(), cli.StubOptions{
			Addr:             flagStubAddr,
			ReviewersPerPR:   flagStubReviewers,
			OmitReviewerList: flagOmitReviewers,
			Logger:           logger,
		})
	},
}

func init() {
	defaults := loadgen.DefaultConfig()

	f := runCmd.Flags()
	f.StringVarP(&flagConfig, "config", "c", "", "Scenario YAML file (name or path)")
	f.StringVar(&flagHost, "host", "", "Base URL of the service")
	f.StringVar(&flagName, "name", defaults.Name, "Run name")
	f.IntVarP(&flagUsers, "users", "u", defaults.Users, "Number of virtual users")
	f.Float64Var(&flagSpawnRate, "spawn-rate", defaults.SpawnRate, "Users started per second (0 = all at once)")
	f.IntVarP(&flagDuration, "duration", "d", defaults.TestDurationSec, "Run duration in seconds (0 = until stopped)")
	f.IntVar(&flagIterations, "iterations", defaults.MaxIterations, "Tasks per user (0 = unbounded)")
	f.Float64Var(&flagWaitMin, "wait-min", defaults.WaitMinSec, "Minimum think time in seconds")
	f.Float64Var(&flagWaitMax, "wait-max", defaults.WaitMaxSec, "Maximum think time in seconds")
	f.IntVar(&flagTeamSize, "team-size", defaults.TeamSize, "Members per seeded team")
	f.StringVar(&flagTeamPrefix, "team-prefix", defaults.TeamPrefix, "Prefix of seeded team names")
	f.IntVar(&flagMaxPRs, "max-prs", defaults.MaxPullRequestsPerTask, "Maximum pull requests created per task")
	f.IntVar(&flagWeightCreate, "weight-create", defaults.Weights.Create, "Weight of the create task")
	f.IntVar(&flagWeightMerge, "weight-merge", defaults.Weights.Merge, "Weight of the merge task")
	f.IntVar(&flagWeightReassign, "weight-reassign", defaults.Weights.Reassign, "Weight of the reassign task")
	f.IntVar(&flagTimeout, "timeout", defaults.RequestTimeoutSec, "Request timeout in seconds")
	f.Float64Var(&flagRate, "rate", defaults.RatePerSecond, "Global request rate cap per second (0 = unlimited)")
	f.BoolVarP(&flagInsecure, "insecure", "k", false, "Skip TLS certificate verification")
	f.StringVar(&flagCACert, "ca-cert", "", "CA certificate file")
	f.StringVar(&flagDB, "db", "", "Run database (default ~/.reviewload/reviewload.db)")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")
	f.BoolVar(&flagTUI, "tui", false, "Show the live dashboard")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
	f.StringVarP(&flagOutput, "output", "o", cli.OutputText, "Report format (text/json/yaml)")
	f.StringVar(&flagSaveScenario, "save-scenario", "", "Save the effective scenario under this name or path before running")

	runsCmd.PersistentFlags().StringVar(&flagRunsDB, "db", "", "Run database (default ~/.reviewload/reviewload.db)")
	runsCmd.PersistentFlags().StringVarP(&flagRunsOutput, "output", "o", cli.OutputText, "Output format (text/json/yaml)")
	runsCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Number of runs to list (0 = all)")
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	stubCmd.Flags().StringVar(&flagStubAddr, "addr", ":8080", "Listen address")
	stubCmd.Flags().IntVar(&flagStubReviewers, "reviewers", 2, "Reviewers assigned per pull request")
	stubCmd.Flags().BoolVar(&flagOmitReviewers, "omit-reviewers", false, "Answer reassign with replaced_by only")
	stubCmd.Flags().BoolVarP(&flagStubVerbose, "verbose", "v", false, "Log every request")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(stubCmd)
}

// runLoad builds the scenario and executes it
func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := buildScenario(cmd)
	if err != nil {
		return err
	}
	if flagSaveScenario != "" {
		path := config.ScenarioSavePath(flagSaveScenario)
		if err := config.WriteScenario(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved scenario to %s\n", path)
	}

	logFile := ""
	if flagTUI {
		logFile = config.LogFile
	}
	logger, err := cli.NewLogger(flagVerbose, logFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbPath := flagDB
	if dbPath == "" {
		dbPath = config.DatabasePath
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return cli.RunLoad(ctx, cli.LoadOptions{
		Config:       cfg,
		DatabasePath: dbPath,
		MetricsAddr:  flagMetricsAddr,
		TUI:          flagTUI,
		Logger:       logger,
		Output:       cmd.OutOrStdout(),
		OutputFormat: flagOutput,
	})
}

// buildScenario layers defaults, the scenario file and explicit flags
func buildScenario(cmd *cobra.Command) (*loadgen.Config, error) {
	cfg := loadgen.DefaultConfig()
	if flagConfig != "" {
		path, err := config.ResolveScenarioPath(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg, err = config.LoadScenario(path)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = flagHost
	}
	if flags.Changed("name") {
		cfg.Name = flagName
	}
	if flags.Changed("users") {
		cfg.Users = flagUsers
	}
	if flags.Changed("spawn-rate") {
		cfg.SpawnRate = flagSpawnRate
	}
	if flags.Changed("duration") {
		cfg.TestDurationSec = flagDuration
	}
	if flags.Changed("iterations") {
		cfg.MaxIterations = flagIterations
	}
	if flags.Changed("wait-min") {
		cfg.WaitMinSec = flagWaitMin
	}
	if flags.Changed("wait-max") {
		cfg.WaitMaxSec = flagWaitMax
	}
	if flags.Changed("team-size") {
		cfg.TeamSize = flagTeamSize
	}
	if flags.Changed("team-prefix") {
		cfg.TeamPrefix = flagTeamPrefix
	}
	if flags.Changed("max-prs") {
		cfg.MaxPullRequestsPerTask = flagMaxPRs
	}
	if flags.Changed("weight-create") {
		cfg.Weights.Create = flagWeightCreate
	}
	if flags.Changed("weight-merge") {
		cfg.Weights.Merge = flagWeightMerge
	}
	if flags.Changed("weight-reassign") {
		cfg.Weights.Reassign = flagWeightReassign
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeoutSec = flagTimeout
	}
	if flags.Changed("rate") {
		cfg.RatePerSecond = flagRate
	}
	if flags.Changed("insecure") || flags.Changed("ca-cert") {
		if cfg.TLS == nil {
			cfg.TLS = &types.TLSConfig{}
		}
		if flags.Changed("insecure") {
			cfg.TLS.InsecureSkipVerify = flagInsecure
		}
		if flags.Changed("ca-cert") {
			cfg.TLS.CAFile = flagCACert
		}
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required (--host or host: in the scenario file)")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return cfg, nil
}

func runsDatabase() string {
	if flagRunsDB != "" {
		return flagRunsDB
	}
	return config.DatabasePath
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", arg)
	}
	return id, nil
}
