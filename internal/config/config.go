// Package config holds all palace configuration. Engines receive their
// section at construction; nothing reads ambient globals.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all palace configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Gravity     GravityConfig     `yaml:"gravity"`
	Chambers    ChambersConfig    `yaml:"chambers"`
	Doors       DoorsConfig       `yaml:"doors"`
	Search      SearchConfig      `yaml:"search"`
	LLM         LLMConfig         `yaml:"llm"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CorpusConfig describes the note corpus layout on disk.
type CorpusConfig struct {
	Root       string `yaml:"root"`        // corpus root directory
	SummaryDir string `yaml:"summary_dir"` // tier2 destination, relative to root
	LessonDir  string `yaml:"lesson_dir"`  // tier3 destination, relative to root
	Pattern    string `yaml:"pattern"`     // doublestar glob for tracked files
}

type GravityConfig struct {
	DecayRate           float64 `yaml:"decay_rate"`
	AuthorityBoost      float64 `yaml:"authority_boost"`
	AuthorityWindowDays float64 `yaml:"authority_window_days"`
	MassCap             float64 `yaml:"mass_cap"`
	ExplicitFloor       float64 `yaml:"explicit_floor"`
	NeverWrittenDays    float64 `yaml:"never_written_days"`
	DecayThreshold      float64 `yaml:"decay_threshold"` // recency factor below which a record counts as decayed
}

type ChambersConfig struct {
	PromoteAfterHours    int `yaml:"promote_after_hours"`
	CrystallizeAfterDays int `yaml:"crystallize_after_days"`
	UndatedAgeDays       int `yaml:"undated_age_days"`
	SummarizeTimeoutSecs int `yaml:"summarize_timeout_secs"`
}

// DoorCategory defines one context category as data: a name, a tiebreak
// priority (lower wins), and the patterns that score for it.
type DoorCategory struct {
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Patterns []string `yaml:"patterns"`
}

type DoorsConfig struct {
	MinScore   int            `yaml:"min_score"`
	Categories []DoorCategory `yaml:"categories"` // empty = built-in table
}

type SearchConfig struct {
	Overfetch       int     `yaml:"overfetch"`
	ContextBoost    float64 `yaml:"context_boost"`
	BaseTimeoutSecs int     `yaml:"base_timeout_secs"`
}

type LLMConfig struct {
	Provider     string `yaml:"provider"` // "claude-cli", "anthropic", "ollama"
	Model        string `yaml:"model"`
	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
	AnthropicKey string `yaml:"anthropic_key"`
}

type MaintenanceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Schedule    string `yaml:"schedule"` // robfig/cron spec or @daily
	LockRetries int    `yaml:"lock_retries"`
}

// Default returns a Config with the documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Corpus: CorpusConfig{
			Root:       "",
			SummaryDir: "summaries",
			LessonDir:  "lessons",
			Pattern:    "**/*.md",
		},
		Gravity: GravityConfig{
			DecayRate:           0.05,
			AuthorityBoost:      0.3,
			AuthorityWindowDays: 2.0,
			MassCap:             100.0,
			ExplicitFloor:       -10.0,
			NeverWrittenDays:    999,
			DecayThreshold:      0.5,
		},
		Chambers: ChambersConfig{
			PromoteAfterHours:    48,
			CrystallizeAfterDays: 7,
			UndatedAgeDays:       999,
			SummarizeTimeoutSecs: 60,
		},
		Doors: DoorsConfig{
			MinScore: 1,
		},
		Search: SearchConfig{
			Overfetch:       3,
			ContextBoost:    0.25,
			BaseTimeoutSecs: 10,
		},
		LLM: LLMConfig{
			Provider: "claude-cli",
			Model:    "haiku",
		},
		Maintenance: MaintenanceConfig{
			Enabled:     true,
			Schedule:    "@daily",
			LockRetries: 3,
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
