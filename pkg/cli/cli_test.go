package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-query/internal/domain"
)

func writeSQL(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sql")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_TableOutput(t *testing.T) {
	path := writeSQL(t, "SELECT range AS n, 'row' || range AS label FROM range(5)\nGO\nCREATE TABLE t (a INTEGER)\n")

	out, err := runCLI(t, "run", path, "--page-size", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "(5 rows affected)")
	assert.Contains(t, out, "-- result set 0:0 (5 rows)")
	// Three pages of two, two and one rows each repeat the header.
	assert.Equal(t, 3, strings.Count(out, "LABEL"))
	assert.Contains(t, out, "row4")
}

func TestRun_JSONOutput(t *testing.T) {
	path := writeSQL(t, "SELECT x FROM (VALUES (NULL), (1)) t(x) ORDER BY x NULLS FIRST\n")

	out, err := runCLI(t, "run", path, "-o", "json", "--page-size", "1")
	require.NoError(t, err)

	var got runResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, strings.HasPrefix(got.Document, "file://"))
	require.Len(t, got.ResultSets, 1)
	rs := got.ResultSets[0]
	require.Len(t, rs.Columns, 1)
	assert.Equal(t, "x", rs.Columns[0].Title)
	require.Len(t, rs.Rows, 2)
	assert.True(t, rs.Rows[0][0].IsNull)
	assert.Equal(t, "1", rs.Rows[1][0].DisplayValue)
	require.NotEmpty(t, got.Messages)
	assert.False(t, got.Messages[0].IsError)
}

func TestRun_MaxRowsOption(t *testing.T) {
	path := writeSQL(t, "SELECT * FROM range(100)")

	out, err := runCLI(t, "run", path, "-o", "json", "--option", "max_rows=3")
	require.NoError(t, err)

	var got runResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.ResultSets, 1)
	assert.Len(t, got.ResultSets[0].Rows, 3)
}

func TestRun_Errors(t *testing.T) {
	t.Run("failing batch", func(t *testing.T) {
		path := writeSQL(t, "SELECT * FROM missing_table")
		out, err := runCLI(t, "run", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "finished with errors")
		assert.Contains(t, out, "ERROR: ")
		assert.Contains(t, out, "missing_table")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := runCLI(t, "run", filepath.Join(t.TempDir(), "absent.sql"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read ")
	})

	t.Run("unknown option", func(t *testing.T) {
		path := writeSQL(t, "SELECT 1")
		_, err := runCLI(t, "run", path, "--option", "colour=blue")
		require.Error(t, err)
		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("bad page size", func(t *testing.T) {
		path := writeSQL(t, "SELECT 1")
		_, err := runCLI(t, "run", path, "--page-size", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--page-size")
	})

	t.Run("bad output format", func(t *testing.T) {
		path := writeSQL(t, "SELECT 1")
		_, err := runCLI(t, "run", path, "-o", "yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported output format")
	})
}

func TestParseOptions(t *testing.T) {
	t.Parallel()

	got, err := parseOptions([]string{"max_rows=10", "stop_on_error=false", " schema = main "})
	require.NoError(t, err)
	require.Len(t, got, 3)

	n, ok := got["max_rows"].AsNumber()
	assert.True(t, ok)
	assert.InDelta(t, 10, n, 0)
	b, ok := got["stop_on_error"].AsBool()
	assert.True(t, ok)
	assert.False(t, b)
	s, ok := got["schema"].AsString()
	assert.True(t, ok)
	assert.Equal(t, "main", s)

	for _, bad := range []string{"novalue", "=1", ""} {
		_, err := parseOptions([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "duckq version dev (commit: none)\n", out)

	out, err = runCLI(t, "version", "-o", "json")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "dev", got["version"])
}
