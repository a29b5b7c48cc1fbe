// Package config loads a resolution run's configuration. Values come from
// three layers, later layers winning: built-in defaults, a YAML file, and
// IM_* environment variables. API keys come only from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/espin086/IntelliMatch/internal/active"
	"github.com/espin086/IntelliMatch/internal/blocking"
	"github.com/espin086/IntelliMatch/internal/classify"
	"github.com/espin086/IntelliMatch/internal/cluster"
	"github.com/espin086/IntelliMatch/internal/prompt"
	"github.com/espin086/IntelliMatch/internal/schema"
	"github.com/espin086/IntelliMatch/internal/source"
)

// SourceConfig locates the records to resolve
type SourceConfig struct {
	// Kind selects the reader: "csv" or "sqlite"
	// Default: csv
	Kind string `yaml:"kind"`

	// Path is the data file. Required.
	Path string `yaml:"path"`

	// IDColumn names the column holding each record's unique key
	// Default: id
	IDColumn string `yaml:"id_column"`

	// Table is the sqlite table to read. Ignored for csv.
	Table string `yaml:"table"`

	// Query overrides Table with a full SELECT statement. Ignored for csv.
	Query string `yaml:"query"`
}

// FieldConfig declares one compared field
type FieldConfig struct {
	// Name must match a source column
	Name string `yaml:"name"`

	// Comparator selects the similarity function
	// Default: string
	Comparator string `yaml:"comparator"`

	// Required makes a missing value count against a match instead of
	// scoring the neutral similarity. Off by default: messy data is the
	// normal case.
	Required bool `yaml:"required"`
}

// BlockingConfig tunes candidate pair generation
type BlockingConfig struct {
	// PrefixLength is how many leading runes form a prefix block key
	// Default: 4
	PrefixLength int `yaml:"prefix_length"`

	// MaxBlockSize skips blocks with more members than this
	// Default: 100
	MaxBlockSize int `yaml:"max_block_size"`

	// Workers sets similarity computation parallelism
	// Default: GOMAXPROCS
	Workers int `yaml:"workers"`
}

// TrainingConfig tunes the classifier fit
type TrainingConfig struct {
	// LearningRate is the gradient descent step size
	// Default: 1.0
	LearningRate float64 `yaml:"learning_rate"`

	// Iterations is the number of full-batch passes
	// Default: 2000
	Iterations int `yaml:"iterations"`
}

// SessionConfig tunes the interactive labeling session
type SessionConfig struct {
	// LabelBudget caps verdicts collected per session
	// Default: 100
	LabelBudget int `yaml:"label_budget"`

	// UncertaintyFloor ends the session once no candidate is this
	// uncertain. Range: [0.0, 0.5)
	// Default: 0.05
	UncertaintyFloor float64 `yaml:"uncertainty_floor"`
}

// ClusterConfig tunes the clustering pass
type ClusterConfig struct {
	// Threshold is the minimum match probability for an edge
	// Default: 0.5
	Threshold float64 `yaml:"threshold"`

	// Workers sets scoring parallelism
	// Default: GOMAXPROCS
	Workers int `yaml:"workers"`
}

// PathsConfig locates the run's artifacts
type PathsConfig struct {
	// SettingsDir holds the saved model and labeling history
	// Default: .intellimatch
	SettingsDir string `yaml:"settings_dir"`

	// Output is where the resolved csv is written
	// Default: resolved.csv
	Output string `yaml:"output"`
}

// LLMConfig configures the prompt command's provider. The API key is
// never read from the file; it comes from ANTHROPIC_API_KEY or
// OPENAI_API_KEY (IM_LLM_API_KEY overrides both).
type LLMConfig struct {
	// Provider is "anthropic" or "openai"
	// Default: openai
	Provider string `yaml:"provider"`

	// Model is the provider's model identifier
	// Default: gpt-4o
	Model string `yaml:"model"`

	// BaseURL overrides the endpoint for OpenAI-compatible servers
	BaseURL string `yaml:"base_url"`

	// MaxTokens caps completion length
	// Default: 4096
	MaxTokens int `yaml:"max_tokens"`

	// RequestsPerSecond throttles outbound calls
	// Default: 1
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the rate limiter's burst allowance
	// Default: 1
	Burst int `yaml:"burst"`
}

// Config is the full configuration for one resolution run
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Fields   []FieldConfig  `yaml:"fields"`
	Blocking BlockingConfig `yaml:"blocking"`
	Training TrainingConfig `yaml:"training"`
	Session  SessionConfig  `yaml:"session"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Paths    PathsConfig    `yaml:"paths"`
	LLM      LLMConfig      `yaml:"llm"`
}

// Default returns the built-in configuration. Every knob carries the same
// default as the package it configures, so a YAML file only has to name
// what it changes.
func Default() *Config {
	b := blocking.DefaultConfig()
	tr := classify.DefaultConfig()
	se := active.DefaultConfig()
	cl := cluster.DefaultConfig()
	llm := prompt.DefaultConfig()

	return &Config{
		Source: SourceConfig{
			Kind:     string(source.KindCSV),
			IDColumn: "id",
		},
		Blocking: BlockingConfig{
			PrefixLength: b.PrefixLength,
			MaxBlockSize: b.MaxBlockSize,
			Workers:      b.Workers,
		},
		Training: TrainingConfig{
			LearningRate: tr.LearningRate,
			Iterations:   tr.Iterations,
		},
		Session: SessionConfig{
			LabelBudget:      se.LabelBudget,
			UncertaintyFloor: se.UncertaintyFloor,
		},
		Cluster: ClusterConfig{
			Threshold: cl.Threshold,
			Workers:   cl.Workers,
		},
		Paths: PathsConfig{
			SettingsDir: ".intellimatch",
			Output:      "resolved.csv",
		},
		LLM: LLMConfig{
			Provider:          llm.Provider,
			Model:             llm.Model,
			MaxTokens:         llm.MaxTokens,
			RequestsPerSecond: llm.RequestsPerSecond,
			Burst:             llm.Burst,
		},
	}
}

// Load builds the configuration for a run. path may be empty, in which
// case only defaults and environment overrides apply. Keys absent from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays IM_* environment variables onto the configuration
//
// Environment variables:
//   - IM_SOURCE_KIND: reader kind, csv or sqlite
//   - IM_SOURCE_PATH: data file path
//   - IM_SOURCE_ID_COLUMN: unique key column name
//   - IM_SOURCE_TABLE: sqlite table name
//   - IM_SOURCE_QUERY: sqlite SELECT override
//   - IM_SETTINGS_DIR: model and history directory
//   - IM_OUTPUT_PATH: resolved csv destination
//   - IM_LABEL_BUDGET: max verdicts per session
//   - IM_UNCERTAINTY_FLOOR: session convergence floor
//   - IM_CLUSTER_THRESHOLD: minimum edge probability
//   - IM_LLM_PROVIDER: anthropic or openai
//   - IM_LLM_MODEL: model identifier
//   - IM_LLM_BASE_URL: OpenAI-compatible endpoint override
func (c *Config) applyEnv() error {
	if err := parseEnvString("IM_SOURCE_KIND", &c.Source.Kind); err != nil {
		return err
	}
	if err := parseEnvString("IM_SOURCE_PATH", &c.Source.Path); err != nil {
		return err
	}
	if err := parseEnvString("IM_SOURCE_ID_COLUMN", &c.Source.IDColumn); err != nil {
		return err
	}
	if err := parseEnvString("IM_SOURCE_TABLE", &c.Source.Table); err != nil {
		return err
	}
	if err := parseEnvString("IM_SOURCE_QUERY", &c.Source.Query); err != nil {
		return err
	}
	if err := parseEnvString("IM_SETTINGS_DIR", &c.Paths.SettingsDir); err != nil {
		return err
	}
	if err := parseEnvString("IM_OUTPUT_PATH", &c.Paths.Output); err != nil {
		return err
	}
	if err := parseEnvInt("IM_LABEL_BUDGET", &c.Session.LabelBudget); err != nil {
		return err
	}
	if err := parseEnvFloat("IM_UNCERTAINTY_FLOOR", &c.Session.UncertaintyFloor); err != nil {
		return err
	}
	if err := parseEnvFloat("IM_CLUSTER_THRESHOLD", &c.Cluster.Threshold); err != nil {
		return err
	}
	if err := parseEnvString("IM_LLM_PROVIDER", &c.LLM.Provider); err != nil {
		return err
	}
	if err := parseEnvString("IM_LLM_MODEL", &c.LLM.Model); err != nil {
		return err
	}
	if err := parseEnvString("IM_LLM_BASE_URL", &c.LLM.BaseURL); err != nil {
		return err
	}
	return nil
}

// Validate checks everything the resolve pipeline needs. LLM settings are
// validated separately when a generator is built, so resolve runs do not
// require an API key.
func (c *Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("source path is required")
	}
	if !source.Kind(c.Source.Kind).IsValid() {
		return fmt.Errorf("unsupported source kind: %s", c.Source.Kind)
	}
	if c.Source.IDColumn == "" {
		return fmt.Errorf("id_column is required")
	}
	if _, err := c.Schema(); err != nil {
		return err
	}
	if err := c.BlockingConfig().Validate(); err != nil {
		return err
	}
	if err := c.SessionConfig().Validate(); err != nil {
		return err
	}
	if err := c.ClusterConfig().Validate(); err != nil {
		return err
	}
	if c.Paths.SettingsDir == "" {
		return fmt.Errorf("settings_dir is required")
	}
	if c.Paths.Output == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// Schema builds the field schema declared by the configuration
func (c *Config) Schema() (*schema.Schema, error) {
	if len(c.Fields) == 0 {
		return nil, fmt.Errorf("at least one field is required")
	}
	fields := make([]schema.Field, 0, len(c.Fields))
	for _, fc := range c.Fields {
		comparator := schema.Comparator(fc.Comparator)
		if fc.Comparator == "" {
			comparator = schema.ComparatorString
		}
		fields = append(fields, schema.Field{
			Name:       fc.Name,
			Comparator: comparator,
			HasMissing: !fc.Required,
		})
	}
	return schema.Define(fields)
}

// SourceConfig builds the reader configuration
func (c *Config) SourceConfig() source.Config {
	return source.Config{
		Kind:  source.Kind(c.Source.Kind),
		Path:  c.Source.Path,
		Table: c.Source.Table,
		Query: c.Source.Query,
	}
}

// BlockingConfig builds the sampler configuration
func (c *Config) BlockingConfig() blocking.Config {
	return blocking.Config{
		PrefixLength: c.Blocking.PrefixLength,
		MaxBlockSize: c.Blocking.MaxBlockSize,
		Workers:      c.Blocking.Workers,
	}
}

// SessionConfig builds the labeling session configuration
func (c *Config) SessionConfig() active.Config {
	return active.Config{
		LabelBudget:      c.Session.LabelBudget,
		UncertaintyFloor: c.Session.UncertaintyFloor,
		Training: classify.Config{
			LearningRate: c.Training.LearningRate,
			Iterations:   c.Training.Iterations,
		},
	}
}

// ClusterConfig builds the clustering engine configuration
func (c *Config) ClusterConfig() cluster.Config {
	return cluster.Config{
		Threshold: c.Cluster.Threshold,
		Workers:   c.Cluster.Workers,
	}
}

// LLMConfig builds the generator configuration, resolving the API key
// from the environment
func (c *Config) LLMConfig() prompt.Config {
	return prompt.Config{
		Provider:          c.LLM.Provider,
		Model:             c.LLM.Model,
		APIKey:            c.apiKey(),
		BaseURL:           c.LLM.BaseURL,
		MaxTokens:         c.LLM.MaxTokens,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		Burst:             c.LLM.Burst,
	}
}

// apiKey resolves the provider credential. IM_LLM_API_KEY wins over the
// provider-specific variables.
func (c *Config) apiKey() string {
	if key := os.Getenv("IM_LLM_API_KEY"); key != "" {
		return key
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// ModelPath is where the trained model is saved
func (c *Config) ModelPath() string {
	return filepath.Join(c.Paths.SettingsDir, "model.gob")
}

// HistoryPath is where labeling history accumulates
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.SettingsDir, "history.jsonl")
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
