package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Compiler  CompilerConfig  `yaml:"compiler"`
	Converter ConverterConfig `yaml:"converter"`
	Publish   PublishConfig   `yaml:"publish"`
	State     StateConfig     `yaml:"state"`
	Watch     WatchConfig     `yaml:"watch"`
	Events    EventsConfig    `yaml:"events"`
}

// SourceConfig locates the literate tutorial sources and the compiled output.
type SourceConfig struct {
	Directory string `yaml:"directory"` // markdown sources with annotated snippets
	Target    string `yaml:"target"`    // compiler output; consumed by the converter batch
}

// CompilerConfig describes the external literate-doc compiler invocation.
// The tool is opaque: one invocation, source directory in, target directory out.
type CompilerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"` // extra args placed before the in/out directories
}

// ConverterConfig describes the external document converter. Each target file is
// converted as `<command> <input> -o <input>.<extension>`.
type ConverterConfig struct {
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args,omitempty"` // extra args placed after the input path
	Extension   string   `yaml:"extension"`
	Incremental bool     `yaml:"incremental"` // skip files with unchanged fingerprints
}

// PublishConfig controls the optional publish step that runs after conversion.
type PublishConfig struct {
	Enabled bool   `yaml:"enabled"`
	Remote  string `yaml:"remote,omitempty"` // push target; empty means commit only
	Branch  string `yaml:"branch,omitempty"`
	Author  string `yaml:"author,omitempty"`
	Email   string `yaml:"email,omitempty"`
	Token   string `yaml:"token,omitempty"` // basic-auth token for pushes
}

// StateConfig locates the build-state database.
type StateConfig struct {
	Path string `yaml:"path"` // sqlite file; ":memory:" for ephemeral state
}

// WatchConfig controls daemon mode.
type WatchConfig struct {
	Debounce        time.Duration `yaml:"debounce"`
	RebuildInterval time.Duration `yaml:"rebuild_interval,omitempty"` // zero disables periodic rebuilds
	ListenAddr      string        `yaml:"listen_addr"`
}

// EventsConfig controls optional NATS build-event publishing.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; absence is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Note: .env file couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Source.Directory == "" {
		config.Source.Directory = "docs"
	}
	if config.Source.Target == "" {
		config.Source.Target = "target/docs"
	}
	if config.Compiler.Command == "" {
		config.Compiler.Command = "mdoc"
	}
	if config.Converter.Command == "" {
		config.Converter.Command = "pandoc"
	}
	if config.Converter.Extension == "" {
		config.Converter.Extension = "html"
	}
	if config.Publish.Branch == "" {
		config.Publish.Branch = "gh-pages"
	}
	if config.State.Path == "" {
		config.State.Path = ".pantut/state.db"
	}
	if config.Watch.Debounce <= 0 {
		config.Watch.Debounce = 2 * time.Second
	}
	if config.Watch.ListenAddr == "" {
		config.Watch.ListenAddr = ":8080"
	}
	if config.Events.Subject == "" {
		config.Events.Subject = "pantut.builds"
	}
}

// Validate checks configuration consistency beyond what defaults can repair.
func (c *Config) Validate() error {
	var problems []string
	if c.Converter.Extension != strings.TrimLeft(c.Converter.Extension, ".") {
		problems = append(problems, "converter.extension must not include a leading dot")
	}
	if c.Events.Enabled && c.Events.URL == "" {
		problems = append(problems, "events.url is required when events.enabled is true")
	}
	if c.Publish.Enabled && c.Publish.Remote != "" && c.Publish.Token == "" {
		// Pushing to a remote needs credentials; commit-only publish does not.
		problems = append(problems, "publish.token is required when publish.remote is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := `# pan-tut build configuration
source:
  directory: docs          # literate markdown sources
  target: target/docs      # compiler output, input to the converter batch

compiler:
  command: mdoc            # external literate-doc compiler

converter:
  command: pandoc          # invoked as: pandoc <file> -o <file>.html
  extension: html
  incremental: false

publish:
  enabled: false
  branch: gh-pages
  # remote: https://example.com/user/site.git
  # token: ${GIT_TOKEN}

state:
  path: .pantut/state.db

watch:
  debounce: 2s
  listen_addr: ":8080"
  # rebuild_interval: 30m

events:
  enabled: false
  # url: nats://localhost:4222
  # subject: pantut.builds
`

	if err := os.WriteFile(configPath, []byte(example), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
