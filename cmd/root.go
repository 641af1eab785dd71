package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesbinford/LGTM/internal/config"
	"github.com/jamesbinford/LGTM/internal/ledger"
	"github.com/jamesbinford/LGTM/internal/lifecycle"
	"github.com/jamesbinford/LGTM/internal/output"
	"github.com/jamesbinford/LGTM/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "lgtm",
	Short: "LGTM - AI code review decision ledger",
	Long: `lgtm records findings from automated code-review agents, tracks the
evaluation and decision lifecycle of each finding, and keeps rejected
findings from resurfacing until the underlying code actually changes.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "App config file (default ~/.config/lgtm/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "lgtm")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LGTM")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "lgtm")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "lgtm.db"))
	viper.SetDefault("project_config", config.DefaultPath)
	viper.SetDefault("repo_root", ".")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// The store is initialized lazily so config/version commands run
	// without a database.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getProjectConfig loads the project-level review configuration.
func getProjectConfig() (*config.Config, error) {
	return config.Load(viper.GetString("project_config"))
}

// getLedger returns a ledger service over the shared store.
func getLedger() (*ledger.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return ledger.NewService(s), nil
}

// getLifecycle returns a lifecycle manager using the project's staleness
// thresholds.
func getLifecycle() (*lifecycle.Manager, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	cfg, err := getProjectConfig()
	if err != nil {
		return nil, err
	}
	return lifecycle.NewManager(s, cfg.Staleness), nil
}
