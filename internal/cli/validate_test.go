package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/collcheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join(scenariosDir, "async_send_recv.yaml"), filepath.Join(scenariosDir, "parameters.hcl"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "async_send_recv.yaml (2 computations, 32 instructions)")
	assert.Contains(t, out, "parameters.hcl (1 computations, 2 instructions)")
}

func TestValidateCommandReportsInvalidPrograms(t *testing.T) {
	dir := t.TempDir()
	body := "name: unmatched\nreplicas: 2\nprogram: |\n"
	for _, line := range splitLines(testutil.UnmatchedChannelProgram) {
		body += "  " + line + "\n"
	}
	writeScenario(t, dir, "unmatched.yaml", body)
	writeScenario(t, dir, "bad_schema.yaml", "name: bad\nreplicas: -1\nprogram: p\n")

	out, err := execute(t, "validate", "--format", "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Entries, 2)
	assert.Contains(t, resp.Data.Entries[0].Error, "does not match schema")
	assert.Contains(t, resp.Data.Entries[1].Error, "channel 3 has a send but no matching recv")
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, c := range text {
		if c == '\n' {
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
