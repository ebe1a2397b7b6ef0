package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it. The commands under test print straight to
// os.Stdout via fmt.Print*, not cmd.OutOrStdout(), so this is the only way
// to observe their output without changing that.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestDemoCommandPrintsSampleQueryResults(t *testing.T) {
	rootCmd.SetArgs([]string{"demo", "--store", ":memory:"})
	out := captureStdout(t, func() {
		require.NoError(t, rootCmd.Execute())
	})
	assert.Contains(t, out, "Loaded 8 quads")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "Bob")
}

func TestLoadThenQueryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "quadstore.db")
	nqPath := filepath.Join(dir, "sample.nq")
	require.NoError(t, os.WriteFile(nqPath, []byte(
		`<http://example.org/dave> <http://xmlns.com/foaf/0.1/name> "Dave" .`+"\n"), 0o600))

	rootCmd.SetArgs([]string{"load", nqPath, "--store", dbPath, "--graph", "http://example.org/g"})
	loadOut := captureStdout(t, func() {
		require.NoError(t, rootCmd.Execute())
	})
	assert.Contains(t, loadOut, "Loaded 1 quads")

	rootCmd.SetArgs([]string{"query",
		`SELECT ?name WHERE { <http://example.org/dave> <http://xmlns.com/foaf/0.1/name> ?name . }`,
		"--store", dbPath, "--graph", "http://example.org/g", "--format", "json"})
	queryOut := captureStdout(t, func() {
		require.NoError(t, rootCmd.Execute())
	})
	assert.Contains(t, queryOut, "Dave")
}

func TestQueryCommandRejectsMalformedSparql(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "quadstore.db")

	rootCmd.SetArgs([]string{"query", "NOT A QUERY", "--store", dbPath})
	err := rootCmd.Execute()
	assert.Error(t, err)
}

func TestPrintTableFormatsHeaderAndRows(t *testing.T) {
	st := captureStdout(t, func() {
		printTable([]string{"s", "o"}, nil)
	})
	assert.Contains(t, st, "s")
	assert.Contains(t, st, "o")
	assert.Contains(t, st, "0 result(s)")
}
