package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roach88/collcheck/internal/canon"
	"github.com/roach88/collcheck/internal/devices"
	"github.com/roach88/collcheck/internal/engine"
	"github.com/roach88/collcheck/internal/literal"
	"github.com/roach88/collcheck/internal/shapes"
	"k8s.io/klog/v2"
)

// Status is the result class of a scenario.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"

	// StatusSkip means the environment cannot host the scenario; it is not a failure.
	StatusSkip Status = "skip"
)

// Outcome is the report of one scenario run.
type Outcome struct {
	RunID    string `json:"run_id"`
	Scenario string `json:"scenario"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`

	// Outputs holds each replica's outputs when execution succeeded.
	Outputs [][]*literal.Literal `json:"outputs,omitempty"`

	Trace    []engine.Event `json:"trace,omitempty"`
	Stats    engine.Stats   `json:"stats"`
	Duration time.Duration  `json:"duration_ns"`

	// Program is the program text that was run.
	Program string `json:"-"`

	// Fingerprints identify the program, configuration and outputs for replay.
	ProgramFingerprint string `json:"program_fingerprint,omitempty"`
	ConfigFingerprint  string `json:"config_fingerprint,omitempty"`
	OutputFingerprint  string `json:"output_fingerprint,omitempty"`
}

// String renders the outcome without timings or fingerprints.
func (o *Outcome) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scenario %s: %s\n", o.Scenario, o.Status)
	if o.Reason != "" {
		fmt.Fprintf(&sb, "reason: %s\n", o.Reason)
	}
	fmt.Fprintf(&sb, "run: %s\n", o.RunID)
	if o.Status == StatusSkip {
		return sb.String()
	}
	fmt.Fprintf(&sb, "stats: %s\n", o.Stats)
	for r, out := range o.Outputs {
		values := make([]string, len(out))
		for i, l := range out {
			values[i] = l.String()
		}
		fmt.Fprintf(&sb, "replica %d: %s\n", r, strings.Join(values, ", "))
	}
	return sb.String()
}

// RunIDGenerator names runs.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
type UUIDv7Generator struct{}

// Generate implements RunIDGenerator.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

type runOptions struct {
	backend  Backend
	provider devices.Provider
	runIDs   RunIDGenerator
}

// Option configures Run.
type Option func(*runOptions)

// WithBackend runs scenarios on b instead of the local backend.
func WithBackend(b Backend) Option {
	return func(o *runOptions) { o.backend = b }
}

// WithDeviceProvider overrides the device count seen by the guard. By default
// the backend is asked.
func WithDeviceProvider(p devices.Provider) Option {
	return func(o *runOptions) { o.provider = p }
}

// WithRunIDs sets the run id generator, UUIDv7Generator by default.
func WithRunIDs(g RunIDGenerator) Option {
	return func(o *runOptions) { o.runIDs = g }
}

// DefaultBackend is the local backend sized by $COLLCHECK_NUM_DEVICES, 8 devices if unset.
func DefaultBackend() Backend {
	return Local(devices.FromEnv(devices.Static(8)).NumDevices())
}

// Run executes a scenario end to end. It never returns an error: problems
// with the scenario or program are reported as a failed Outcome.
func Run(ctx context.Context, s *Scenario, opts ...Option) *Outcome {
	o := &runOptions{runIDs: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.backend == nil {
		o.backend = DefaultBackend()
	}
	if o.provider == nil {
		o.provider = o.backend
	}

	start := time.Now()
	outcome := &Outcome{RunID: o.runIDs.Generate(), Scenario: s.Name}
	finish := func(status Status, reason string) *Outcome {
		outcome.Status, outcome.Reason = status, reason
		outcome.Duration = time.Since(start)
		klog.V(1).Infof("scenario %s: %s %s", s.Name, status, reason)
		return outcome
	}

	cfg, err := s.Config()
	if err != nil {
		return finish(StatusFail, fmt.Sprintf("invalid configuration: %v", err))
	}
	outcome.ConfigFingerprint = cfg.Fingerprint()
	text, err := s.ProgramText()
	if err != nil {
		return finish(StatusFail, err.Error())
	}
	outcome.Program = text
	m, err := LoadProgram(text, cfg)
	if err != nil {
		return finish(StatusFail, fmt.Sprintf("invalid program: %v", err))
	}
	outcome.ProgramFingerprint = m.Fingerprint()

	decision := devices.NewGuard(o.provider).Check(cfg.DevicesRequired())
	if !decision.Proceed {
		return finish(StatusSkip, decision.Reason)
	}

	params := m.Entry.Parameters()
	paramShapes := make([]shapes.Shape, len(params))
	for i, p := range params {
		paramShapes[i] = p.Shape
	}
	inputs, err := s.InputLiterals(paramShapes)
	if err != nil {
		return finish(StatusFail, err.Error())
	}
	expect, err := s.Expectation(m.Entry.Root.Shape)
	if err != nil {
		return finish(StatusFail, err.Error())
	}

	result, err := Execute(ctx, o.backend, m, cfg, inputs)
	if result != nil {
		outcome.Trace, outcome.Stats = result.Trace, result.Stats
	}
	var outputs [][]*literal.Literal
	if err == nil {
		outputs = result.Outputs
	}
	verdict := AssertSuccess(outputs, err, expect)
	if err == nil {
		outcome.Outputs = outputs
		outcome.OutputFingerprint = OutputFingerprint(outputs)
	}
	if !verdict.Pass {
		return finish(StatusFail, verdict.Reason)
	}
	return finish(StatusPass, "")
}

// OutputFingerprint is a content hash of per-replica outputs.
func OutputFingerprint(outputs [][]*literal.Literal) string {
	replicas := make([]any, len(outputs))
	for r, out := range outputs {
		values := make([]any, len(out))
		for i, l := range out {
			values[i] = l.Encodable()
		}
		replicas[r] = values
	}
	return canon.MustFingerprint(canon.DomainOutputs, replicas)
}

// RunT runs s inside a Go test: a skip becomes t.Skipf and a failure t.Errorf.
func RunT(t testing.TB, s *Scenario, opts ...Option) *Outcome {
	t.Helper()
	outcome := Run(context.Background(), s, opts...)
	switch outcome.Status {
	case StatusSkip:
		t.Skipf("scenario %s skipped: %s", s.Name, outcome.Reason)
	case StatusFail:
		t.Errorf("scenario %s failed: %s", s.Name, outcome.Reason)
	}
	return outcome
}
