package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"bank-reconciliation-backend/internal/audit"
	"bank-reconciliation-backend/internal/config"
	"bank-reconciliation-backend/internal/ledger"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/services/importer"
	"bank-reconciliation-backend/internal/services/matching"
	"bank-reconciliation-backend/internal/services/reconciliation"
)

var (
	cfgFile string
	verbose bool
	actor   string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// openDB is swapped out in tests.
	openDB = config.InitDB
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconctl",
	Short: "Bank statement reconciliation operator tool",
	Long: `reconctl drives the reconciliation engine from the command line: it imports
statement files, runs auto-matching, completes batches and checks batch
counters against the stored rows.

Examples:
  reconctl migrate
  reconctl import --account 6f1c... --file january.csv
  reconctl auto-match --batch 0b7e...
  reconctl complete --batch 0b7e... --adjustment
  reconctl verify --batch 0b7e...`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "reconctl", "name recorded as the acting user")
}

// app is the engine wired against the configured database.
type app struct {
	db         *gorm.DB
	log        *logrus.Logger
	importer   *importer.Service
	engine     *matching.Engine
	reconciler *reconciliation.Service
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logCfg := logger.Config{
		Level:  cfg.LogLevel,
		Format: logger.Format(cfg.LogFormat),
		Output: cmd.ErrOrStderr(),
	}
	if verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	sink := audit.Multi{audit.NewGormSink(db), audit.NewLogSink(log)}
	matchCfg := matching.NewMatchingConfig(cfg.AmountTolerance, cfg.DateWindowDays, cfg.MaxCandidates)
	if err := matchCfg.Validate(); err != nil {
		return nil, err
	}
	return &app{
		db:         db,
		log:        log,
		importer:   importer.NewService(db, sink, log),
		engine:     matching.NewEngine(db, matching.DBSources(db), matchCfg, sink, log),
		reconciler: reconciliation.NewService(db, ledger.NewLogPoster(log), sink, log),
	}, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
