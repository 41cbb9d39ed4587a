package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard(t *testing.T) {
	tests := []struct {
		name      string
		available int
		required  int
		proceed   bool
		reason    string
	}{
		{"exact", 4, 4, true, ""},
		{"more", 8, 4, true, ""},
		{"fewer", 2, 4, false, "insufficient devices: have 2, need 4"},
		{"none", 0, 1, false, "insufficient devices: have 0, need 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewGuard(Static(tt.available)).Check(tt.required)
			assert.Equal(t, tt.proceed, d.Proceed)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.available, d.Available)
			assert.Equal(t, tt.required, d.Required)
		})
	}
}

func TestGuardIdempotent(t *testing.T) {
	g := NewGuard(Static(1))
	first := g.Check(4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, g.Check(4))
	}
}

func TestFromEnv(t *testing.T) {
	p := FromEnv(Static(2))

	t.Setenv(EnvNumDevices, "")
	assert.Equal(t, 2, p.NumDevices())

	t.Setenv(EnvNumDevices, "8")
	assert.Equal(t, 8, p.NumDevices())

	t.Setenv(EnvNumDevices, "many")
	assert.Equal(t, 2, p.NumDevices())

	assert.Equal(t, 0, FromEnv(nil).NumDevices())
}
