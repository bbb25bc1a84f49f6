package simulate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testdata = "../../../pkg/scenario/testdata"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagDb, flagEngine, flagJobs, flagMetrics, flagLogs = "", "pebble", 4, false, false
	var out bytes.Buffer
	Cmd.SetOut(&out)
	Cmd.SetArgs(args)
	err := Cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testScenarios(t *testing.T) []string {
	paths, err := filepath.Glob(filepath.Join(testdata, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	return paths
}

func TestSimulate_InMemory(t *testing.T) {
	out, err := execute(t, append([]string{"--metrics"}, testScenarios(t)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "escrow swap")
	assert.Contains(t, out, "ledger hash")
	assert.NotContains(t, out, "FAILED")
	assert.Contains(t, out, "settle_transactions_total")
}

func TestSimulate_Engines_Agree(t *testing.T) {
	paths := testScenarios(t)

	inMemory, err := execute(t, paths...)
	require.NoError(t, err)

	for _, engine := range []string{"pebble", "lotusdb"} {
		out, err := execute(t, append([]string{"--engine", engine, "--db", t.TempDir()}, paths...)...)
		require.NoError(t, err, engine)
		assert.Equal(t, inMemory, out, engine)
	}
}

func TestSimulate_Unknown_Engine_Failure(t *testing.T) {
	_, err := execute(t, "--engine", "bolt", "--db", t.TempDir(), testScenarios(t)[0])
	assert.ErrorContains(t, err, "unknown engine")
}

func TestSimulate_Bad_Scenario_Failure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [{op: no_such_op}]\n"), 0o644))

	out, err := execute(t, path)
	assert.Error(t, err)
	assert.Contains(t, out, "FAILED")
}

func TestSimulate_Zero_Jobs_Failure(t *testing.T) {
	_, err := execute(t, "--jobs", "0", testScenarios(t)[0])
	assert.ErrorContains(t, err, "--jobs must be at least 1")
}
