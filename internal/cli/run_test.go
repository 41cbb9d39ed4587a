package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/collcheck/internal/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run", "--devices", "4", filepath.Join(scenariosDir, "async_send_recv.cue"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "scenario async_send_recv: pass")
	assert.Contains(t, out, "stats: 8 transfers, 32 B, 0 zero-filled, 0 unrouted")
	for _, line := range []string{"replica 0", "replica 1", "replica 2", "replica 3"} {
		assert.Contains(t, out, line+": f32[] 1, f32[] 2")
	}
	assert.NotContains(t, out, "trace of replica")
}

func TestRunCommandTrace(t *testing.T) {
	out, err := execute(t, "run", "--devices", "4", "--trace", filepath.Join(scenariosDir, "sync_ring.yaml"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "trace of replica 3:")
	assert.Contains(t, out, "finish")
}

func TestRunCommandFailureAndSkip(t *testing.T) {
	out, err := execute(t, "run", "--devices", "8", "--format", "json", filepath.Join(scenariosDir, "wrong_expectation.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp struct {
		Data harness.Outcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, harness.StatusFail, resp.Data.Status)
	assert.Contains(t, resp.Data.Reason, "got 2, want 3")
	assert.Len(t, resp.Data.Outputs, 4)

	out, err = execute(t, "run", "--devices", "2", filepath.Join(scenariosDir, "async_send_recv.yaml"))
	require.NoError(t, err, "a skip is not a failure")
	assert.Contains(t, out, "scenario async_send_recv: skip")
	assert.Contains(t, out, "insufficient devices: have 2, need 4")
}
