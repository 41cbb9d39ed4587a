// Package devices decides whether a scenario can run on the devices the
// environment provides. A scenario that needs more devices than available is
// skipped, not failed, so suites stay portable across machines.
package devices

import (
	"fmt"
	"os"
	"strconv"

	"k8s.io/klog/v2"
)

// EnvNumDevices overrides the device count reported by FromEnv.
const EnvNumDevices = "COLLCHECK_NUM_DEVICES"

// Provider reports how many usable execution devices exist.
type Provider interface {
	NumDevices() int
}

// Static is a Provider with a fixed device count.
type Static int

// NumDevices implements Provider.
func (s Static) NumDevices() int { return int(s) }

type envProvider struct {
	fallback Provider
}

// FromEnv returns a Provider that reads $COLLCHECK_NUM_DEVICES on each call and
// defers to fallback when it is unset or malformed.
func FromEnv(fallback Provider) Provider {
	return envProvider{fallback: fallback}
}

// NumDevices implements Provider.
func (p envProvider) NumDevices() int {
	if v, ok := os.LookupEnv(EnvNumDevices); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n >= 0 {
			return n
		}
		klog.Warningf("ignoring $%s=%q: not a non-negative integer", EnvNumDevices, v)
	}
	if p.fallback == nil {
		return 0
	}
	return p.fallback.NumDevices()
}

// Decision is the outcome of an availability check.
type Decision struct {
	Proceed   bool
	Available int
	Required  int
	Reason    string
}

// Guard checks device availability against a Provider.
type Guard struct {
	provider Provider
}

// NewGuard returns a Guard backed by p.
func NewGuard(p Provider) *Guard {
	return &Guard{provider: p}
}

// Check decides whether required devices are available. It has no side effects.
func (g *Guard) Check(required int) Decision {
	available := g.provider.NumDevices()
	d := Decision{Proceed: available >= required, Available: available, Required: required}
	if !d.Proceed {
		d.Reason = fmt.Sprintf("insufficient devices: have %d, need %d", available, required)
	}
	return d
}
