// Package config handles script parsing and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"volley/internal/collector"
	"volley/internal/data"
	"volley/internal/flow"
	"volley/internal/ws"
)

// Config is the root of a script file.
type Config struct {
	Settings Settings `yaml:"config"`
	Scenario Scenario `yaml:"scenario"`

	// Dir is the directory of the script file; relative paths resolve
	// against it.
	Dir string `yaml:"-"`
}

// Settings holds the engine-wide part of a script.
type Settings struct {
	Target string   `yaml:"target"`
	WS     WSConfig `yaml:"ws"`

	// TLS is the deprecated top-level spelling of ws.tls. Fields set under
	// ws.tls win.
	TLS *ws.TLSOptions `yaml:"tls,omitempty"`

	Processor        string          `yaml:"processor,omitempty"`
	StrictProcessors bool            `yaml:"strictProcessors,omitempty"`
	Defaults         Defaults        `yaml:"defaults,omitempty"`
	Variables        map[string]any  `yaml:"variables,omitempty"`
	Payload          []data.Spec     `yaml:"payload,omitempty"`
	LoadProfile      *LoadProfile    `yaml:"loadProfile,omitempty"`
	Execution        ExecutionConfig `yaml:"execution,omitempty"`

	Thresholds *collector.Thresholds `yaml:"thresholds,omitempty"`
}

// WSConfig configures the WebSocket connection of every session.
type WSConfig struct {
	Subprotocols   []string          `yaml:"subprotocols,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	ConnectTimeout time.Duration     `yaml:"connectTimeout,omitempty"`
	SendTimeout    time.Duration     `yaml:"sendTimeout,omitempty"`
	Compression    bool              `yaml:"compression,omitempty"`
	ConnectionInit any               `yaml:"connectionInit,omitempty"`
	TLS            ws.TLSOptions     `yaml:"tls,omitempty"`
}

// Defaults holds per-step defaults.
type Defaults struct {
	Think ThinkDefaults `yaml:"think,omitempty"`
}

// ThinkDefaults configures think steps.
type ThinkDefaults struct {
	// Jitter randomizes each pause by up to this many percent.
	Jitter float64 `yaml:"jitter,omitempty"`
}

// ExecutionConfig controls iteration-level execution behavior.
type ExecutionConfig struct {
	MaxIterations    int `yaml:"max_iterations"`
	WarmupIterations int `yaml:"warmup_iterations"`
}

// Scenario is the named flow every session runs.
type Scenario struct {
	Name string    `yaml:"name"`
	Flow flow.Flow `yaml:"flow"`
}

// LoadProfile defines the load pattern for a test.
type LoadProfile struct {
	Phases []Phase `yaml:"phases"`
}

// TotalDuration returns the sum of all phase durations.
func (lp *LoadProfile) TotalDuration() time.Duration {
	var total time.Duration
	for _, p := range lp.Phases {
		total += p.Duration
	}
	return total
}

// Phase is one stage of a load profile. Actors fixes the concurrency;
// otherwise it ramps from StartActors to EndActors. RPS caps new sessions
// per second and, with RampTo, ramps that cap across the phase.
type Phase struct {
	Name        string        `yaml:"name"`
	Duration    time.Duration `yaml:"duration"`
	Actors      int           `yaml:"actors"`
	StartActors int           `yaml:"startActors"`
	EndActors   int           `yaml:"endActors"`
	RPS         float64       `yaml:"rps"`
	RampTo      float64       `yaml:"rampTo,omitempty"`
}

func (p Phase) validate() error {
	var errs []error
	if p.Duration <= 0 {
		errs = append(errs, errors.New("duration must be positive"))
	}
	if p.Actors < 0 || p.StartActors < 0 || p.EndActors < 0 {
		errs = append(errs, errors.New("actor counts must not be negative"))
	}
	if p.Actors == 0 && p.StartActors == 0 && p.EndActors == 0 {
		errs = append(errs, errors.New("needs actors or startActors/endActors"))
	}
	if p.RPS < 0 || p.RampTo < 0 {
		errs = append(errs, errors.New("rps and rampTo must not be negative"))
	}
	if p.RampTo > 0 && p.RPS == 0 {
		errs = append(errs, errors.New("rampTo needs a starting rps"))
	}
	return errors.Join(errs...)
}

// Env holds the settings read from the environment.
type Env struct {
	Target      string `env:"VOLLEY_TARGET"`
	LogLevel    string `env:"VOLLEY_LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"VOLLEY_LOG_FORMAT"   envDefault:"text"`
	MetricsAddr string `env:"VOLLEY_METRICS_ADDR"`
}

// ParseEnv loads Env from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// LoadConfig reads, parses and validates a script file.
func LoadConfig(path string) (*Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(body)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes and validates a script.
func Parse(body []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv lets environment values override the script.
func (c *Config) ApplyEnv(e Env) {
	if e.Target != "" {
		c.Settings.Target = e.Target
	}
}

// Validate reports every problem with the script at once.
func (c *Config) Validate() error {
	var errs []error
	s := c.Settings

	if s.Target == "" {
		errs = append(errs, errors.New("config.target is required"))
	}
	if s.WS.ConnectTimeout < 0 {
		errs = append(errs, errors.New("config.ws.connectTimeout must not be negative"))
	}
	if s.WS.SendTimeout < 0 {
		errs = append(errs, errors.New("config.ws.sendTimeout must not be negative"))
	}
	if s.Defaults.Think.Jitter < 0 || s.Defaults.Think.Jitter > 100 {
		errs = append(errs, fmt.Errorf("config.defaults.think.jitter %v must be between 0 and 100", s.Defaults.Think.Jitter))
	}
	for i, spec := range s.Payload {
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config.payload[%d]: %w", i, err))
		}
	}
	if s.LoadProfile != nil {
		for i, p := range s.LoadProfile.Phases {
			if err := p.validate(); err != nil {
				errs = append(errs, fmt.Errorf("config.loadProfile.phases[%d] %q: %w", i, p.Name, err))
			}
		}
	}
	if s.Execution.MaxIterations < 0 || s.Execution.WarmupIterations < 0 {
		errs = append(errs, errors.New("config.execution values must not be negative"))
	}
	if s.Thresholds != nil {
		if err := s.Thresholds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config.%w", err))
		}
	}
	if len(c.Scenario.Flow) == 0 {
		errs = append(errs, errors.New("scenario.flow must have at least one step"))
	}

	return errors.Join(errs...)
}

// EffectiveTLS returns the effective TLS options, merging the deprecated top-level
// block under ws.tls.
func (s Settings) EffectiveTLS() ws.TLSOptions {
	if s.TLS == nil {
		return s.WS.TLS
	}
	return ws.MergeTLS(*s.TLS, s.WS.TLS)
}

// ProcessorPath returns the processor file resolved against the script
// directory, or "" when none is configured.
func (c *Config) ProcessorPath() string {
	p := c.Settings.Processor
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
