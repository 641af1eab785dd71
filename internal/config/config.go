package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the project-local configuration file.
const DefaultPath = ".lgtm/config.yaml"

// Config is the project-level review configuration.
type Config struct {
	Review             ReviewConfig       `yaml:"review"`
	SeverityThresholds SeverityThresholds `yaml:"severity_thresholds"`
	AutoRules          []AutoRule         `yaml:"auto_rules"`
	Staleness          StalenessConfig    `yaml:"staleness"`
}

// ReviewConfig controls which files are reviewed at all. The patterns are
// consumed upstream when assembling the diff; the core only carries them.
type ReviewConfig struct {
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// SeverityThresholds splits severities into merge-blocking and warn-only.
type SeverityThresholds struct {
	Blocking []string `yaml:"blocking"`
	Warning  []string `yaml:"warning"`
}

// AutoRule is one declarative auto-decision rule. The condition string is
// parsed and validated by the rules package when the engine is built.
type AutoRule struct {
	Condition string `yaml:"condition"`
	Action    string `yaml:"action"` // auto_accept, auto_dismiss, auto_defer
	Reason    string `yaml:"reason"`
}

// StalenessConfig holds the staleness classification thresholds in days.
type StalenessConfig struct {
	WarnAfterDays     int `yaml:"warn_after_days"`
	EscalateAfterDays int `yaml:"escalate_after_days"`
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	return &Config{
		Review: ReviewConfig{
			IncludePatterns: []string{
				"**/*.go", "**/*.py", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.rs",
			},
			ExcludePatterns: []string{
				"**/*_test.go", "**/test_*.py", "**/*.test.ts", "**/*.spec.ts",
				"**/node_modules/**", "**/vendor/**", "**/target/**",
			},
		},
		SeverityThresholds: SeverityThresholds{
			Blocking: []string{"critical"},
			Warning:  []string{"high", "medium"},
		},
		Staleness: StalenessConfig{
			WarnAfterDays:     3,
			EscalateAfterDays: 7,
		},
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist. Unset staleness thresholds also fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Staleness.WarnAfterDays <= 0 {
		cfg.Staleness.WarnAfterDays = 3
	}
	if cfg.Staleness.EscalateAfterDays <= 0 {
		cfg.Staleness.EscalateAfterDays = 7
	}
	return cfg, nil
}

// ShouldReviewFile reports whether the path passes the exclude then include
// pattern lists. With no matching include pattern the file is skipped.
func (c *Config) ShouldReviewFile(path string) bool {
	for _, pattern := range c.Review.ExcludePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}
	for _, pattern := range c.Review.IncludePatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern matches path against a glob, treating a leading "**/" as
// "any directory, including none" and "/**" as "anything below".
func matchPattern(pattern, path string) bool {
	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		prefix = strings.TrimPrefix(prefix, "**/")
		for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
			if ok, err := filepath.Match(prefix, seg); err == nil && ok {
				return true
			}
		}
		return false
	}
	clean := strings.TrimPrefix(pattern, "**/")
	if clean != pattern {
		if matched, err := filepath.Match(clean, filepath.Base(path)); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(clean, path); err == nil && matched {
			return true
		}
	}
	return false
}

// IsBlockingSeverity reports whether the severity blocks merge if undecided.
func (c *Config) IsBlockingSeverity(severity string) bool {
	return containsFold(c.SeverityThresholds.Blocking, severity)
}

// IsWarningSeverity reports whether the severity warns but allows merge.
func (c *Config) IsWarningSeverity(severity string) bool {
	return containsFold(c.SeverityThresholds.Warning, severity)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
