package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with a throwaway .env path and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&app{})
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--env", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPresetsCommand(t *testing.T) {
	out, err := run(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "keyboards")
	assert.Contains(t, out, "Clicky Clack Supply")
}

func TestTemplateShowThenCheck(t *testing.T) {
	out, err := run(t, "template", "show", "farm")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "farm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	out, err = run(t, "template", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: ")
}

func TestSimulate_JSON(t *testing.T) {
	out, err := run(t, "simulate", "--preset", "keyboards,farm", "--days", "40", "--restock", "--json")
	require.NoError(t, err)

	var results []simResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "sim-keyboards", results[0].Business)
	assert.Equal(t, "sim-farm", results[1].Business)
	for _, r := range results {
		assert.Equal(t, 40, r.Summary.Day)
		assert.Positive(t, r.OrdersPlaced, r.Business)
		assert.Positive(t, int64(r.UnitsSold), r.Business)
	}
}

func TestSimulate_WithoutStockNothingSells(t *testing.T) {
	out, err := run(t, "simulate", "--preset", "tech", "--days", "5", "--json")
	require.NoError(t, err)

	var results []simResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Zero(t, results[0].UnitsSold)
	assert.Zero(t, results[0].OrdersPlaced)
}

func TestSimulate_RejectsBadFlags(t *testing.T) {
	_, err := run(t, "simulate", "--days", "0")
	assert.Error(t, err)
	_, err = run(t, "simulate", "--preset", "bakery")
	assert.Error(t, err)
}

func TestStoredBusinessCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "harvest.db")

	out, err := run(t, "--db", db, "create", "keyboards", "--id", "kb", "--start", "2025-04-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Clicky Clack Supply (kb)")

	out, err = run(t, "--db", db, "advance", "kb", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-04-04")

	out, err = run(t, "--db", db, "state", "kb", "--json")
	require.NoError(t, err)
	var state struct {
		Day int `json:"day"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, 3, state.Day)

	out, err = run(t, "--db", db, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "kb")

	_, err = run(t, "--db", db, "state", "ghost")
	assert.Error(t, err)
}
