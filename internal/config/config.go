// Package config builds the immutable execution configuration of a scenario:
// replica count, pass enablement, replica-to-device assignment, the default
// send/recv pairing policy and the execution timeout.
//
// A Config is built once with Build and never changes; identical inputs give
// identical fingerprints.
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/canon"
	"k8s.io/klog/v2"
)

const (
	// DefaultTimeout bounds one replicated execution when no timeout is given.
	DefaultTimeout = 30 * time.Second

	// EnvTimeout overrides DefaultTimeout for configurations built by the CLI and harness.
	EnvTimeout = "COLLCHECK_TIMEOUT"
)

// Config is an immutable execution configuration.
type Config struct {
	replicas         int
	runPasses        bool
	deviceAssignment []int
	pairing          Pairing
	timeout          time.Duration
}

// Option configures Build.
type Option func(*Config)

// WithRunPasses enables or disables the compiler pass pipeline.
func WithRunPasses(enabled bool) Option {
	return func(c *Config) { c.runPasses = enabled }
}

// WithDeviceAssignment maps replica i to device devices[i]. The default is replica i on device i.
func WithDeviceAssignment(devices ...int) Option {
	return func(c *Config) { c.deviceAssignment = slices.Clone(devices) }
}

// WithPairing sets the policy for sends and receives that carry no explicit source-target pairs.
func WithPairing(p Pairing) Option {
	return func(c *Config) { c.pairing = p }
}

// WithTimeout bounds the execution of all replicas. A replica still blocked
// on a transfer when it expires fails with a deadlock error.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.timeout = d }
}

// Build returns the configuration for replicas parallel executions.
//
// Defaults: passes enabled, identity device assignment, ring pairing, DefaultTimeout.
func Build(replicas int, opts ...Option) (*Config, error) {
	if replicas < 1 {
		return nil, errors.Errorf("replica count must be >= 1, got %d", replicas)
	}
	c := &Config{
		replicas:  replicas,
		runPasses: true,
		pairing:   PairingRing,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deviceAssignment == nil {
		c.deviceAssignment = make([]int, replicas)
		for i := range c.deviceAssignment {
			c.deviceAssignment[i] = i
		}
	}
	if err := validateAssignment(c.deviceAssignment, replicas); err != nil {
		return nil, err
	}
	if !c.pairing.Valid() {
		return nil, errors.Errorf("unknown pairing policy %q", c.pairing)
	}
	if c.timeout <= 0 {
		return nil, errors.Errorf("timeout must be positive, got %s", c.timeout)
	}
	return c, nil
}

// MustBuild is like Build but panics on error. Use only with constant arguments.
func MustBuild(replicas int, opts ...Option) *Config {
	c, err := Build(replicas, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func validateAssignment(devices []int, replicas int) error {
	if len(devices) != replicas {
		return errors.Errorf("device assignment must have %d elements, got %d", replicas, len(devices))
	}
	seen := make(map[int]bool, len(devices))
	for _, device := range devices {
		if device < 0 {
			return errors.Errorf("device ids must be non-negative, got %d", device)
		}
		if seen[device] {
			return errors.Errorf("device #%d is assigned to more than one replica", device)
		}
		seen[device] = true
	}
	return nil
}

// Replicas returns the number of parallel executions.
func (c *Config) Replicas() int { return c.replicas }

// RunPasses reports whether the compiler pass pipeline runs.
func (c *Config) RunPasses() bool { return c.runPasses }

// DeviceAssignment returns a copy of the replica-to-device mapping.
func (c *Config) DeviceAssignment() []int { return slices.Clone(c.deviceAssignment) }

// Device returns the device of replica.
func (c *Config) Device(replica int) int { return c.deviceAssignment[replica] }

// DevicesRequired returns how many devices must exist for the assignment to be placeable.
func (c *Config) DevicesRequired() int { return slices.Max(c.deviceAssignment) + 1 }

// Pairing returns the default send/recv pairing policy.
func (c *Config) Pairing() Pairing { return c.pairing }

// Timeout returns the execution bound.
func (c *Config) Timeout() time.Duration { return c.timeout }

// Encodable returns the configuration as a canonical-encodable map.
func (c *Config) Encodable() map[string]any {
	return map[string]any{
		"replicas":          c.replicas,
		"run_passes":        c.runPasses,
		"device_assignment": slices.Clone(c.deviceAssignment),
		"pairing":           string(c.pairing),
		"timeout_ms":        c.timeout.Milliseconds(),
	}
}

// Fingerprint is a content hash of the configuration.
func (c *Config) Fingerprint() string {
	return canon.MustFingerprint(canon.DomainConfig, c.Encodable())
}

// String implements fmt.Stringer.
func (c *Config) String() string {
	passes := "off"
	if c.runPasses {
		passes = "on"
	}
	return fmt.Sprintf("replicas=%d passes=%s pairing=%s devices=%v timeout=%s",
		c.replicas, passes, c.pairing, c.deviceAssignment, c.timeout)
}

// TimeoutFromEnv returns the duration in $COLLCHECK_TIMEOUT, or fallback if
// it is unset or malformed.
func TimeoutFromEnv(fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(EnvTimeout)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		klog.Warningf("ignoring $%s=%q: not a positive duration", EnvTimeout, v)
		return fallback
	}
	return d
}
