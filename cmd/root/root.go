// Package root contains the root command for the application
package root

import (
	"database/sql"
	"fmt"

	"finagg/internal/config"
	"finagg/internal/logging"
	"finagg/internal/rules"
	"finagg/internal/rulestore"
	"finagg/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Log is the shared logger instance for commands
	Log = logrus.New()

	// Cfg is the loaded application configuration, populated in
	// PersistentPreRun before any subcommand runs.
	Cfg *config.Config

	// Persistent flag overrides for config values
	DBPath    string
	RulesFile string

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "finagg",
		Short: "A CLI tool to aggregate, browse and auto-tag financial transactions.",
		Long: `finagg collects transactions synced from financial institutions into a
local SQLite database and applies user-defined rules to categorize and
tag them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			Log.Info("Welcome to finagg!")
			Log.Info("Use --help to see available commands")
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv()
			Log = config.ConfigureLogging()

			cfg, err := config.InitializeConfig()
			if err != nil {
				return err
			}
			Cfg = cfg

			logging.SetDefaultLogger(logging.NewLogrusAdapterFromLogger(Log))
			return nil
		},
		SilenceUsage: true,
	}
)

// Init initializes the root command and all persistent flags
func Init() {
	Cmd.PersistentFlags().StringVar(&DBPath, "db", "", "Path to the SQLite database (overrides config)")
	Cmd.PersistentFlags().StringVar(&RulesFile, "rules-file", "", "Path to the rules YAML file (overrides config)")
}

// EffectiveDBPath returns the database path after flag overrides.
func EffectiveDBPath() string {
	if DBPath != "" {
		return DBPath
	}
	return Cfg.Database.Path
}

// EffectiveRulesFile returns the rules file path after flag overrides.
func EffectiveRulesFile() string {
	if RulesFile != "" {
		return RulesFile
	}
	return Cfg.Rules.File
}

// NewRuleStore builds the YAML rule store at the effective path.
func NewRuleStore() *rulestore.Store {
	return rulestore.NewStore(EffectiveRulesFile(), logging.GetLogger())
}

// Env bundles the opened database and the services commands need.
type Env struct {
	DB    *sql.DB
	Store *storage.Store
	Rules *rules.Service
}

// NewEnv opens the database and wires the storage adapter and rule
// engine. The caller must Close it.
func NewEnv() (*Env, error) {
	db, err := storage.Open(EffectiveDBPath())
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", EffectiveDBPath(), err)
	}

	store := storage.NewStore(db, logging.GetLogger())
	return &Env{
		DB:    db,
		Store: store,
		Rules: rules.NewService(NewRuleStore(), store, logging.GetLogger()),
	}, nil
}

// Close rolls back any uncommitted unit of work and closes the
// database.
func (e *Env) Close() {
	e.Store.Rollback()
	if err := e.DB.Close(); err != nil {
		Log.Warnf("Failed to close database: %v", err)
	}
}
