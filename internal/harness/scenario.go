package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wxzimport/internal/record"
	"github.com/roach88/wxzimport/internal/testutil"
)

// DefaultMaxInvocations bounds how many invocations a scenario may take.
const DefaultMaxInvocations = 100

// Scenario defines one end-to-end import run.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Order lists the record types that have an importer, in processing order.
	Order []string `yaml:"order"`

	// Entries are written to the archive in this order.
	Entries []testutil.Entry `yaml:"entries"`

	// FailImport lists entry paths whose importer returns an error.
	FailImport []string `yaml:"fail_import,omitempty"`

	// Budget is the per-invocation time budget. Empty means unlimited.
	Budget string `yaml:"budget,omitempty"`

	// RecordCost is how far the fake clock advances per import.
	RecordCost string `yaml:"record_cost,omitempty"`

	// MaxInvocations stops a run that never finishes.
	// Defaults to DefaultMaxInvocations.
	MaxInvocations int `yaml:"max_invocations,omitempty"`

	// Assertions validate the outcome.
	Assertions []Assertion `yaml:"assertions"`

	order      []record.Type
	budget     time.Duration
	recordCost time.Duration
}

// Assertion validates one aspect of a finished run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Paths is the expected dispatch sequence (dispatched).
	Paths []string `yaml:"paths,omitempty"`

	// Path is the entry to count (dispatch_count).
	Path string `yaml:"path,omitempty"`

	// Level and Code filter events (events). Code is optional.
	Level string `yaml:"level,omitempty"`
	Code  string `yaml:"code,omitempty"`

	// Stage is the expected final stage (final_stage).
	Stage string `yaml:"stage,omitempty"`

	// Count is the expected number (dispatch_count, events, invocations).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertDispatched    = "dispatched"
	AssertDispatchCount = "dispatch_count"
	AssertEvents        = "events"
	AssertFinalStage    = "final_stage"
	AssertInvocations   = "invocations"
)

// LoadScenario parses and validates a scenario YAML file. Unknown fields
// are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data, filepath.Base(path))
}

// ParseScenario parses and validates scenario YAML. name is used in errors.
func ParseScenario(data []byte, name string) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", name, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	return &s, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Order) == 0 {
		return fmt.Errorf("order is required")
	}

	order, err := record.ParseOrder(s.Order)
	if err != nil {
		return err
	}
	s.order = order

	if s.budget, err = parseDuration("budget", s.Budget); err != nil {
		return err
	}
	if s.recordCost, err = parseDuration("record_cost", s.RecordCost); err != nil {
		return err
	}
	if s.MaxInvocations < 0 {
		return fmt.Errorf("max_invocations must not be negative")
	}
	if s.MaxInvocations == 0 {
		s.MaxInvocations = DefaultMaxInvocations
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertDispatched, AssertFinalStage, AssertInvocations:
		case AssertDispatchCount:
			if a.Path == "" {
				return fmt.Errorf("assertion %d: %s requires path", i, a.Type)
			}
		case AssertEvents:
			if a.Level != "warning" && a.Level != "error" {
				return fmt.Errorf("assertion %d: events level must be warning or error, got %q", i, a.Level)
			}
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}

func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
