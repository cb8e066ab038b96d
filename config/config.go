package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SchedulerAuto    = "auto"
	SchedulerClosure = "closure"
)

type TracingConfig struct {
	// OTLP/HTTP endpoint (host:port), tracing is off when empty
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"serviceName"`
}

// set default values for TracingConfig
func (c *TracingConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawTracingConfig TracingConfig
	defaults := rawTracingConfig{
		ServiceName: "microevent",
	}

	if err := unmarshal(&defaults); err != nil {
		return err
	}

	*c = TracingConfig(defaults)
	return nil
}

type HooksConfig struct {
	OnStartup HookOnStartup `yaml:"on_startup"`
}

type HookOnStartup struct {
	// lines of the form: <types> [args...]
	Emit []string `yaml:"emit"`

	// parsed from Emit
	Commands []EmitCommand `yaml:"-"`
}

type Config struct {
	LogLevel      string        `yaml:"logLevel"`
	LogTimeFormat string        `yaml:"logTimeFormat"`
	Scheduler     string        `yaml:"scheduler"`
	SSEBuffer     int           `yaml:"sseBuffer"`
	Tracing       TracingConfig `yaml:"tracing"`

	// for key/value replacements in hooks
	Macros MacroList `yaml:"macros"`

	Hooks HooksConfig `yaml:"hooks"`
}

// Default is the configuration used when no config file is given.
func Default() Config {
	return Config{
		LogLevel:      "info",
		LogTimeFormat: "",
		Scheduler:     SchedulerAuto,
		SSEBuffer:     64,
		Tracing:       TracingConfig{ServiceName: "microevent"},
	}
}

func LoadConfig(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

func LoadConfigFromReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}

	config := Default()
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
		config.LogLevel = strings.ToLower(config.LogLevel)
	default:
		return Config{}, fmt.Errorf("logLevel must be one of debug, info, warn, error: %s", config.LogLevel)
	}

	switch config.Scheduler {
	case "":
		config.Scheduler = SchedulerAuto
	case SchedulerAuto, SchedulerClosure:
	default:
		return Config{}, fmt.Errorf("scheduler must be %s or %s: %s", SchedulerAuto, SchedulerClosure, config.Scheduler)
	}

	if config.SSEBuffer < 1 {
		// set a minimum buffer of one event
		config.SSEBuffer = 1
	}

	if err := config.Macros.validate(); err != nil {
		return Config{}, err
	}

	// clean up and parse the startup emit hooks
	var lines []string
	var commands []EmitCommand
	for i, line := range config.Hooks.OnStartup.Emit {
		line = strings.TrimSpace(StripComments(line))
		if line == "" {
			continue
		}

		expanded, err := config.Macros.Expand(line)
		if err != nil {
			return Config{}, fmt.Errorf("%w found in hooks.on_startup.emit[%d]", err, i)
		}

		cmd, err := ParseEmitCommand(expanded)
		if err != nil {
			return Config{}, fmt.Errorf("hooks.on_startup.emit[%d]: %w", i, err)
		}

		lines = append(lines, expanded)
		commands = append(commands, cmd)
	}
	config.Hooks.OnStartup.Emit = lines
	config.Hooks.OnStartup.Commands = commands

	return config, nil
}

// StripComments drops whole-line # comments from a multi-line value.
func StripComments(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
