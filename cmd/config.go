package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesbinford/LGTM/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage lgtm configuration.

Running bare 'lgtm config' is the same as 'lgtm config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a project config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// projectConfigTemplate is the starter project config written by config init.
const projectConfigTemplate = `# lgtm project configuration
# See: lgtm config show (for effective values)

review:
  include_patterns:
    - "**/*.go"
    - "**/*.py"
    - "**/*.ts"
    - "**/*.rs"
  exclude_patterns:
    - "**/*_test.go"
    - "**/vendor/**"
    - "**/node_modules/**"

# Severities that block a merge when undecided vs warn only.
severity_thresholds:
  blocking: [critical]
  warning: [high, medium]

# Declarative auto-decision rules, evaluated top to bottom, first match wins.
# Conditions combine clauses with AND over the fields severity, category,
# age_days, action, and confidence.
auto_rules:
  # - condition: "severity == low AND category == style"
  #   action: auto_dismiss
  #   reason: "style nits below the bar"
  # - condition: "confidence >= 0.9 AND action == accept"
  #   action: auto_accept
  #   reason: "high-confidence accepts"

# Days before a pending review is flagged, then escalated.
staleness:
  warn_after_days: 3
  escalate_after_days: 7
`

func configInitRun() error {
	cfgPath := viper.GetString("project_config")

	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(cfgPath, []byte(projectConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	return nil
}

func configShowRun() error {
	cfgPath := viper.GetString("project_config")

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Project config: %s", cfgPath)
	} else {
		ui.Info("Project config: (defaults, no file at %s)", cfgPath)
	}
	ui.Info("Database: %s", viper.GetString("db_path"))
	ui.Info("Repo root: %s", viper.GetString("repo_root"))
	fmt.Fprintln(ui.Out)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	rendered, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	fmt.Fprint(ui.Out, string(rendered))
	return nil
}
