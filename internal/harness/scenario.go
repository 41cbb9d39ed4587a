package harness

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/config"
	"github.com/roach88/collcheck/internal/literal"
	"github.com/roach88/collcheck/internal/shapes"
	"gopkg.in/yaml.v3"
)

// Scenario is one replica-parallel test case.
type Scenario struct {
	// Name identifies the scenario in reports and history.
	Name string `yaml:"name" json:"name"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Replicas is the number of parallel executions, at least 1.
	Replicas int `yaml:"replicas" json:"replicas"`

	// RunPasses enables the compiler pass pipeline; nil means enabled.
	RunPasses *bool `yaml:"run_passes,omitempty" json:"run_passes,omitempty"`

	// Program is the program text. Exactly one of Program and ProgramFile is set.
	Program string `yaml:"program,omitempty" json:"program,omitempty"`

	// ProgramFile is a path to the program text, relative to Dir.
	ProgramFile string `yaml:"program_file,omitempty" json:"program_file,omitempty"`

	// Pairing is the default send/recv pairing policy, ring if empty.
	Pairing string `yaml:"pairing,omitempty" json:"pairing,omitempty"`

	// Timeout bounds the execution (Go duration syntax). If empty,
	// $COLLCHECK_TIMEOUT or config.DefaultTimeout applies.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// DeviceAssignment maps replica i to device DeviceAssignment[i]; identity if empty.
	DeviceAssignment []int `yaml:"device_assignment,omitempty" json:"device_assignment,omitempty"`

	Inputs *Values         `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Expect *ExpectedValues `yaml:"expect,omitempty" json:"expect,omitempty"`

	// Dir is the directory relative program paths are resolved against. Set by the loaders.
	Dir string `yaml:"-" json:"-"`
}

// Values holds per-replica values in document form.
type Values struct {
	// AllReplicas is used by every replica.
	AllReplicas []any `yaml:"all_replicas,omitempty" json:"all_replicas,omitempty"`

	// PerReplica holds one list per replica.
	PerReplica [][]any `yaml:"per_replica,omitempty" json:"per_replica,omitempty"`
}

// ExpectedValues is the expect section of a scenario.
type ExpectedValues struct {
	AllReplicas []any   `yaml:"all_replicas,omitempty" json:"all_replicas,omitempty"`
	PerReplica  [][]any `yaml:"per_replica,omitempty" json:"per_replica,omitempty"`

	Tolerance *ToleranceSpec `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
}

// ToleranceSpec overrides literal.DefaultTolerance for float comparisons.
type ToleranceSpec struct {
	Abs *float64 `yaml:"abs,omitempty" json:"abs,omitempty"`
	Rel *float64 `yaml:"rel,omitempty" json:"rel,omitempty"`
}

// Config builds the execution configuration of the scenario.
func (s *Scenario) Config() (*config.Config, error) {
	opts := []config.Option{}
	if s.RunPasses != nil {
		opts = append(opts, config.WithRunPasses(*s.RunPasses))
	}
	pairing, err := config.ParsePairing(s.Pairing)
	if err != nil {
		return nil, err
	}
	opts = append(opts, config.WithPairing(pairing))
	timeout := config.TimeoutFromEnv(config.DefaultTimeout)
	if s.Timeout != "" {
		if timeout, err = time.ParseDuration(s.Timeout); err != nil {
			return nil, errors.Wrapf(err, "scenario %s: timeout", s.Name)
		}
	}
	opts = append(opts, config.WithTimeout(timeout))
	if len(s.DeviceAssignment) > 0 {
		opts = append(opts, config.WithDeviceAssignment(s.DeviceAssignment...))
	}
	cfg, err := config.Build(s.Replicas, opts...)
	if err != nil {
		return nil, errors.WithMessagef(err, "scenario %s", s.Name)
	}
	return cfg, nil
}

// ProgramText returns the program, reading ProgramFile if needed.
func (s *Scenario) ProgramText() (string, error) {
	if s.Program != "" {
		return s.Program, nil
	}
	path := s.ProgramFile
	if !filepath.IsAbs(path) && s.Dir != "" {
		path = filepath.Join(s.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "scenario %s: reading program", s.Name)
	}
	return string(data), nil
}

// replicaLists selects the list of replica r from all/per.
func replicaLists(all []any, per [][]any, replicas int) ([][]any, error) {
	if per != nil {
		if len(per) != replicas {
			return nil, errors.Errorf("per_replica has %d entries, want %d", len(per), replicas)
		}
		return per, nil
	}
	lists := make([][]any, replicas)
	for r := range lists {
		lists[r] = all
	}
	return lists, nil
}

// toLiterals converts per-replica document values into literals of the given shapes.
func toLiterals(lists [][]any, want []shapes.Shape) ([][]*literal.Literal, error) {
	out := make([][]*literal.Literal, len(lists))
	for r, list := range lists {
		if len(list) != len(want) {
			return nil, errors.Errorf("replica %d: got %d values, want %d", r, len(list), len(want))
		}
		out[r] = make([]*literal.Literal, len(list))
		for i, v := range list {
			l, err := literal.FromValue(want[i], v)
			if err != nil {
				return nil, errors.WithMessagef(err, "replica %d: value %d", r, i)
			}
			out[r][i] = l
		}
	}
	return out, nil
}

// InputLiterals converts the inputs section for the given parameter shapes.
// It returns nil when the scenario has no inputs.
func (s *Scenario) InputLiterals(params []shapes.Shape) ([][]*literal.Literal, error) {
	if s.Inputs == nil {
		return nil, nil
	}
	lists, err := replicaLists(s.Inputs.AllReplicas, s.Inputs.PerReplica, s.Replicas)
	if err != nil {
		return nil, errors.WithMessage(err, "inputs")
	}
	values, err := toLiterals(lists, params)
	return values, errors.WithMessage(err, "inputs")
}

// Expectation builds the expectation for a program whose entry root has shape root.
func (s *Scenario) Expectation(root shapes.Shape) (*Expectation, error) {
	exp := NewExpectation(root, s.Replicas)
	if s.Expect == nil {
		return exp, nil
	}
	if tol := s.Expect.Tolerance; tol != nil {
		if tol.Abs != nil {
			exp.Tolerance.Abs = *tol.Abs
		}
		if tol.Rel != nil {
			exp.Tolerance.Rel = *tol.Rel
		}
	}
	if s.Expect.AllReplicas == nil && s.Expect.PerReplica == nil {
		return exp, nil
	}
	lists, err := replicaLists(s.Expect.AllReplicas, s.Expect.PerReplica, s.Replicas)
	if err != nil {
		return nil, errors.WithMessage(err, "expect")
	}
	if exp.Values, err = toLiterals(lists, exp.Outputs); err != nil {
		return nil, errors.WithMessage(err, "expect")
	}
	return exp, nil
}

// LoadScenario reads a scenario file; the format is chosen by extension
// (.yaml/.yml, .json, .cue or .hcl). Relative program paths resolve against the
// file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}
	var s *Scenario
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		s, err = ParseYAML(data)
	case ".json":
		s, err = ParseJSON(data)
	case ".cue":
		s, err = ParseCUE(data, path)
	case ".hcl":
		s, err = ParseHCL(data, path)
	default:
		return nil, errors.Errorf("%s: unknown scenario format %q", path, ext)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", path)
	}
	s.Dir = filepath.Dir(path)
	return s, nil
}

// ParseYAML parses and validates a YAML scenario. Unknown fields are rejected.
func ParseYAML(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML")
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseJSON parses and validates a JSON scenario, the form run history stores.
func ParseJSON(data []byte) (*Scenario, error) {
	var s Scenario
	if err := decodeJSON(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to parse JSON")
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Inline returns a copy of s with the program text embedded, so it no
// longer depends on files next to the manifest.
func (s *Scenario) Inline() (*Scenario, error) {
	text, err := s.ProgramText()
	if err != nil {
		return nil, err
	}
	inlined := *s
	inlined.Program, inlined.ProgramFile, inlined.Dir = text, "", ""
	return &inlined, nil
}

// decodeJSON decodes a JSON document into target, keeping numbers exact.
func decodeJSON(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
