package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/collcheck/internal/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandPassing(t *testing.T) {
	out, err := execute(t, "test", "--devices", "8", "--filter", "async_*", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "async_send_recv")
	assert.Contains(t, out, "async_no_passes")
	assert.Contains(t, out, "4 passed, 0 failed, 0 skipped (4 total)")
}

func TestTestCommandWholeSuiteJSON(t *testing.T) {
	out, err := execute(t, "test", "--devices", "8", "--format", "json", scenariosDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 of 11 scenarios failed")

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 11, resp.Data.Total)
	assert.Equal(t, 8, resp.Data.Passed)
	assert.Equal(t, 2, resp.Data.Failed)
	assert.Equal(t, 1, resp.Data.Skipped)

	byName := map[string]ScenarioResult{}
	for _, r := range resp.Data.Scenarios {
		byName[r.Name] = r
	}
	assert.Equal(t, harness.StatusSkip, byName["too_many_devices"].Status)
	assert.Equal(t, "insufficient devices: have 8, need 16", byName["too_many_devices"].Reason)
	assert.Equal(t, harness.StatusFail, byName["deadlock"].Status)
	assert.Contains(t, byName["deadlock"].Reason, "DEADLOCK")
	assert.Equal(t, harness.StatusPass, byName["sync_ring"].Status)
	assert.Equal(t, harness.StatusPass, byName["upstream_group_send_recv"].Status)
	assert.Equal(t, harness.StatusPass, byName["upstream_group_no_passes"].Status)
}

func TestTestCommandErrors(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to find scenarios")

	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\nreplicas: 0\nprogram: p\n")
	out, err := execute(t, "test", "--format", "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "load error")
}


func TestTestCommandGoldenFiles(t *testing.T) {
	dir := t.TempDir()
	program, err := filepath.Abs(filepath.Join("..", "harness", "testdata", "programs", "async_send_recv.hlo"))
	require.NoError(t, err)
	writeScenario(t, dir, "inline.yaml", "name: inline_async\nreplicas: 2\nprogram_file: "+program+"\n")

	_, err = execute(t, "test", "--devices", "2", "--update", dir)
	require.NoError(t, err)
	golden := filepath.Join(dir, "golden", "inline.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"inline_async"`)
	assert.Contains(t, string(data), `"shape":"f32[]"`)

	out, err := execute(t, "test", "--devices", "2", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 passed")

	require.NoError(t, os.WriteFile(golden, []byte(`{"outputs":[],"scenario":"inline_async"}`+"\n"), 0o644))
	out, err = execute(t, "test", "--devices", "2", dir)
	require.Error(t, err)
	assert.Contains(t, out, "outputs do not match")
}

func TestTestCommandProgress(t *testing.T) {
	out, err := execute(t, "test", "--devices", "8", "--progress", "--filter", "sync_ring", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed")
}
