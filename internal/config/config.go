package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPrompt             = "scm> "
	DefaultContinuationPrompt = "...  "
	DefaultHistoryFile        = "~/.goscm_history"
	DefaultLogLevel           = "warn"
)

// Config holds driver settings read from a YAML file.
type Config struct {
	Path               string
	Prompt             string
	ContinuationPrompt string
	HistoryFile        string
	// MaxDepth caps nested procedure calls; 0 keeps the engine default.
	MaxDepth int
	// InstructionLimit caps instructions per form; 0 is unlimited.
	InstructionLimit int
	// Preload lists files run before the program or REPL.
	Preload  []string
	LogLevel string
	Trace    bool
}

type configFile struct {
	Prompt             *string  `yaml:"prompt"`
	ContinuationPrompt *string  `yaml:"continuation_prompt"`
	HistoryFile        *string  `yaml:"history_file"`
	MaxDepth           *int     `yaml:"max_depth"`
	InstructionLimit   *int     `yaml:"instruction_limit"`
	Preload            []string `yaml:"preload"`
	LogLevel           *string  `yaml:"log_level"`
	Trace              *bool    `yaml:"trace"`
}

// ValidationError aggregates configuration validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "config: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("config validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Prompt:             DefaultPrompt,
		ContinuationPrompt: DefaultContinuationPrompt,
		HistoryFile:        DefaultHistoryFile,
		LogLevel:           DefaultLogLevel,
	}
}

// Load reads and validates a config file. Relative preload paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", absPath, err)
	}
	defer file.Close()

	cfg, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", absPath, err)
	}
	cfg.Path = absPath
	dir := filepath.Dir(absPath)
	for i, p := range cfg.Preload {
		if !filepath.IsAbs(p) && !strings.HasPrefix(p, "~") {
			cfg.Preload[i] = filepath.Join(dir, p)
		}
	}
	return cfg, nil
}

// Parse decodes YAML settings over the defaults. Unknown keys are rejected;
// an empty document yields the defaults.
func Parse(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var raw configFile
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg := raw.toConfig()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (raw configFile) toConfig() *Config {
	cfg := Default()
	if raw.Prompt != nil {
		cfg.Prompt = *raw.Prompt
	}
	if raw.ContinuationPrompt != nil {
		cfg.ContinuationPrompt = *raw.ContinuationPrompt
	}
	if raw.HistoryFile != nil {
		cfg.HistoryFile = *raw.HistoryFile
	}
	if raw.MaxDepth != nil {
		cfg.MaxDepth = *raw.MaxDepth
	}
	if raw.InstructionLimit != nil {
		cfg.InstructionLimit = *raw.InstructionLimit
	}
	if raw.Preload != nil {
		cfg.Preload = append([]string(nil), raw.Preload...)
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*raw.LogLevel))
	}
	if raw.Trace != nil {
		cfg.Trace = *raw.Trace
	}
	return cfg
}

func (c *Config) validate() error {
	var errs ValidationError
	if c.Prompt == "" {
		errs.Issues = append(errs.Issues, "prompt must not be empty")
	}
	if c.MaxDepth < 0 {
		errs.Issues = append(errs.Issues, fmt.Sprintf("max_depth must be >= 0, got %d", c.MaxDepth))
	}
	if c.InstructionLimit < 0 {
		errs.Issues = append(errs.Issues, fmt.Sprintf("instruction_limit must be >= 0, got %d", c.InstructionLimit))
	}
	for i, p := range c.Preload {
		if strings.TrimSpace(p) == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("preload[%d] must be a non-empty path", i))
		}
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		errs.Issues = append(errs.Issues, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

// Level maps log_level onto slog.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelWarn, false
	}
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
