// Package scenario loads acceptance scenarios from TOML or YAML files and
// runs their steps against the harness.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrorStrategy says what the runner does after a step fails.
type ErrorStrategy string

const (
	// OnErrorFail stops the scenario. It is the default.
	OnErrorFail ErrorStrategy = "fail"
	// OnErrorContinue records the failure and runs the next step.
	OnErrorContinue ErrorStrategy = "continue"
)

// Scenario is an ordered list of steps sharing a set of variables. Vars
// seeds the {key} references steps may use; step outputs are added as the
// run progresses.
type Scenario struct {
	Name        string            `toml:"name" yaml:"name" validate:"required"`
	Description string            `toml:"description" yaml:"description"`
	Vars        map[string]string `toml:"vars" yaml:"vars"`
	Steps       []Step            `toml:"steps" yaml:"steps" validate:"required,min=1,dive"`
}

// Step is one action with its parameters.
type Step struct {
	Name    string                 `toml:"name" yaml:"name"`
	Action  string                 `toml:"action" yaml:"action" validate:"required"`
	Config  map[string]interface{} `toml:"config" yaml:"config"`
	OnError ErrorStrategy          `toml:"on_error" yaml:"on_error" validate:"omitempty,oneof=fail continue"`
	// Timeout bounds the step, e.g. "10m". Empty means the run's context
	// is the only bound.
	Timeout string `toml:"timeout" yaml:"timeout"`
}

// Label is the step's name, or its action when unnamed.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Action
}

func (s Step) timeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("step %s: invalid timeout %q: %w", s.Label(), s.Timeout, err)
	}
	return d, nil
}

// Validate checks required fields and step options.
func (sc *Scenario) Validate() error {
	if err := validator.New().Struct(sc); err != nil {
		return fmt.Errorf("invalid scenario %q: %w", sc.Name, err)
	}
	for _, step := range sc.Steps {
		if _, err := step.timeout(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a scenario file. The format follows the extension: .toml, or
// .yaml/.yml.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}

	var sc Scenario
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &sc)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&sc)
	default:
		return nil, fmt.Errorf("unsupported scenario format %q: %s", ext, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}

	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}
