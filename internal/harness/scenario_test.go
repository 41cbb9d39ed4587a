package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/collcheck/internal/config"
	"github.com/roach88/collcheck/internal/literal"
	"github.com/roach88/collcheck/internal/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioPath(name string) string {
	return filepath.Join("testdata", "scenarios", name)
}

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(scenarioPath(name))
	require.NoError(t, err)
	return s
}

var pairOfFloats = shapes.MakeTuple(shapes.Scalar(shapes.F32), shapes.Scalar(shapes.F32))

func TestScenarioFormatsAgree(t *testing.T) {
	var fingerprints []string
	for _, name := range []string{"async_send_recv.yaml", "async_send_recv.cue", "async_send_recv.hcl"} {
		t.Run(name, func(t *testing.T) {
			s := loadScenario(t, name)
			assert.Equal(t, "async_send_recv", s.Name)
			assert.Equal(t, 4, s.Replicas)
			assert.Equal(t, filepath.Join("testdata", "scenarios"), s.Dir)

			cfg, err := s.Config()
			require.NoError(t, err)
			assert.True(t, cfg.RunPasses())
			assert.Equal(t, config.PairingRing, cfg.Pairing())
			fingerprints = append(fingerprints, cfg.Fingerprint())

			text, err := s.ProgramText()
			require.NoError(t, err)
			assert.Contains(t, text, "HloModule async_send_recv")

			exp, err := s.Expectation(pairOfFloats)
			require.NoError(t, err)
			require.Len(t, exp.Values, 4)
			for _, values := range exp.Values {
				require.Len(t, values, 2)
				assert.NoError(t, literal.Compare(values[0], literal.F32(1), literal.Exact))
				assert.NoError(t, literal.Compare(values[1], literal.F32(2), literal.Exact))
			}
		})
	}
	require.Len(t, fingerprints, 3)
	assert.Equal(t, fingerprints[0], fingerprints[1])
	assert.Equal(t, fingerprints[0], fingerprints[2])
}

func TestHCLScenarioWithInlineProgram(t *testing.T) {
	s := loadScenario(t, "parameters.hcl")
	assert.Contains(t, s.Program, "ROOT twice = f32[] add(x, x)")

	inputs, err := s.InputLiterals([]shapes.Shape{shapes.Scalar(shapes.F32)})
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.NoError(t, literal.Compare(inputs[0][0], literal.F32(1.5), literal.Exact))
	assert.NoError(t, literal.Compare(inputs[1][0], literal.F32(-2), literal.Exact))

	exp, err := s.Expectation(shapes.Scalar(shapes.F32))
	require.NoError(t, err)
	assert.Equal(t, 1e-6, exp.Tolerance.Abs)
	assert.Zero(t, exp.Tolerance.Rel)
	assert.NoError(t, literal.Compare(exp.Values[1][0], literal.F32(-4), literal.Exact))
}

func TestScenarioDefaults(t *testing.T) {
	s, err := ParseYAML([]byte("name: defaults\nreplicas: 2\nprogram: HloModule m\n"))
	require.NoError(t, err)
	cfg, err := s.Config()
	require.NoError(t, err)
	assert.True(t, cfg.RunPasses())
	assert.Equal(t, config.PairingRing, cfg.Pairing())
	assert.Equal(t, []int{0, 1}, cfg.DeviceAssignment())

	exp, err := s.Expectation(pairOfFloats)
	require.NoError(t, err)
	assert.Nil(t, exp.Values)
	assert.Equal(t, literal.DefaultTolerance, exp.Tolerance)

	inputs, err := s.InputLiterals(nil)
	require.NoError(t, err)
	assert.Nil(t, inputs)
}

func TestScenarioTimeoutFromEnv(t *testing.T) {
	t.Setenv(config.EnvTimeout, "3s")
	s, err := ParseYAML([]byte("name: env\nreplicas: 1\nprogram: HloModule m\n"))
	require.NoError(t, err)
	cfg, err := s.Config()
	require.NoError(t, err)
	assert.Equal(t, "3s", cfg.Timeout().String())

	s.Timeout = "250ms"
	cfg, err = s.Config()
	require.NoError(t, err)
	assert.Equal(t, "250ms", cfg.Timeout().String())
}

func TestScenarioValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"unknown field", "name: x\nreplicas: 1\nprogram: p\nflavour: sour\n", "flavour"},
		{"missing name", "replicas: 1\nprogram: p\n", "does not match schema"},
		{"bad name", "name: a b\nreplicas: 1\nprogram: p\n", "does not match schema"},
		{"zero replicas", "name: x\nreplicas: 0\nprogram: p\n", "does not match schema"},
		{"bad pairing", "name: x\nreplicas: 1\nprogram: p\npairing: star\n", "does not match schema"},
		{"bad timeout", "name: x\nreplicas: 1\nprogram: p\ntimeout: soon\n", "does not match schema"},
		{"negative device", "name: x\nreplicas: 1\nprogram: p\ndevice_assignment: [-1]\n", "does not match schema"},
		{"no program", "name: x\nreplicas: 1\n", "exactly one of program and program_file"},
		{"two programs", "name: x\nreplicas: 1\nprogram: p\nprogram_file: f\n", "exactly one of program and program_file"},
		{"both input forms", "name: x\nreplicas: 1\nprogram: p\ninputs:\n  all_replicas: [1]\n  per_replica: [[1]]\n", "all_replicas and per_replica are exclusive"},
		{"both expect forms", "name: x\nreplicas: 1\nprogram: p\nexpect:\n  all_replicas: [1]\n  per_replica: [[1]]\n", "all_replicas and per_replica are exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCUEScenarioErrors(t *testing.T) {
	_, err := ParseCUE([]byte(`name: "x", replicas: "four", program: "p"`), "bad.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match schema")

	_, err = ParseCUE([]byte(`name: "x", replicas: 1, program: "p", colour: "red"`), "extra.cue")
	require.Error(t, err)
}

func TestHCLScenarioErrors(t *testing.T) {
	_, err := ParseHCL([]byte("name = \"x\"\nreplicas = 1\nprogram = \"p\"\nbogus = 1\n"), "bad.hcl")
	require.Error(t, err)

	_, err = ParseHCL([]byte("name = \"x\"\nreplicas = \n"), "syntax.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse HCL")
}

func TestLoadScenarioErrors(t *testing.T) {
	_, err := LoadScenario(scenarioPath("missing.yaml"))
	assert.Error(t, err)

	_, err = LoadScenario(filepath.Join("testdata", "programs", "deadlock.hlo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario format")

	s := &Scenario{Name: "x", Replicas: 1, ProgramFile: "nope.hlo", Dir: t.TempDir()}
	_, err = s.ProgramText()
	assert.Error(t, err)
}

func TestValueConversionErrors(t *testing.T) {
	scalar := []shapes.Shape{shapes.Scalar(shapes.F32)}
	tests := []struct {
		name   string
		inputs *Values
		msg    string
	}{
		{"wrong count", &Values{AllReplicas: []any{1, 2}}, "replica 0: got 2 values, want 1"},
		{"wrong replica count", &Values{PerReplica: [][]any{{1}}}, "per_replica has 1 entries, want 2"},
		{"wrong type", &Values{AllReplicas: []any{"abc"}}, "replica 0: value 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scenario{Name: "x", Replicas: 2, Program: "p", Inputs: tt.inputs}
			_, err := s.InputLiterals(scalar)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	s := &Scenario{Name: "x", Replicas: 1, Program: "p", Expect: &ExpectedValues{AllReplicas: []any{1}}}
	_, err := s.Expectation(pairOfFloats)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expect")
}

func TestInlineRoundTripsThroughJSON(t *testing.T) {
	s := loadScenario(t, "async_send_recv.yaml")
	inlined, err := s.Inline()
	require.NoError(t, err)
	assert.Empty(t, inlined.ProgramFile)
	assert.Empty(t, inlined.Dir)
	assert.Contains(t, inlined.Program, "HloModule async_send_recv")
	assert.Equal(t, "../programs/async_send_recv.hlo", s.ProgramFile, "the original is unchanged")

	data, err := json.Marshal(inlined)
	require.NoError(t, err)
	decoded, err := ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, inlined.Program, decoded.Program)

	exp, err := decoded.Expectation(pairOfFloats)
	require.NoError(t, err)
	assert.NoError(t, literal.Compare(exp.Values[3][1], literal.F32(2), literal.Exact))

	_, err = ParseJSON([]byte(`{"name": "x", "replicas": 1, "program": "p", "extra": 1}`))
	assert.Error(t, err)
}
