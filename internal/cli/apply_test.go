package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqliteConfig writes store options for a fresh SQLite database.
func sqliteConfig(t *testing.T, autoCreate string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "marten.yaml")
	body := fmt.Sprintf(`
driver: sqlite
path: %s
auto_create: %s
hilo_max_lo: 100
log:
  level: error
`, filepath.Join(dir, "marten.db"), autoCreate)
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))
	return cfg
}

func TestApply(t *testing.T) {
	cfg := sqliteConfig(t, "create_or_update")
	specs := filepath.Join("testdata", "specs")

	output, err := execute(t, "--config", cfg, "apply", specs)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ Applied 3 document(s)")
	assert.Contains(t, output, "Invoice: main.mt_doc_invoice (built)")
	assert.Contains(t, output, "Squad: main.mt_doc_squad (built)")
	assert.Contains(t, output, "User: main.mt_doc_user (built)")

	output, err = execute(t, "--config", cfg, "--format", "json", "apply", specs)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []ApplyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []ApplyResult{
		{Document: "Invoice", Table: "main.mt_doc_invoice", Result: "unchanged"},
		{Document: "Squad", Table: "main.mt_doc_squad", Result: "unchanged"},
		{Document: "User", Table: "main.mt_doc_user", Result: "unchanged"},
	}, resp.Data)
}

func TestApplySchemaPolicyNone(t *testing.T) {
	cfg := sqliteConfig(t, "none")

	output, err := execute(t, "--config", cfg, "apply", filepath.Join("testdata", "specs"))

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, ErrCodeDatabase)
	assert.Contains(t, output, "SCHEMA_MISMATCH")
}

func TestApplyInvalidSpecs(t *testing.T) {
	cfg := sqliteConfig(t, "create_or_update")

	_, err := execute(t, "--config", cfg, "apply", filepath.Join("testdata", "invalid"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output, err := execute(t, "--config", cfg, "tables")
	require.NoError(t, err)
	assert.Contains(t, output, "No tables in schema main")
}

func TestTables(t *testing.T) {
	cfg := sqliteConfig(t, "create_or_update")
	_, err := execute(t, "--config", cfg, "apply", filepath.Join("testdata", "specs"))
	require.NoError(t, err)

	output, err := execute(t, "--config", cfg, "tables")
	require.NoError(t, err)
	assert.Equal(t, "mt_doc_invoice\nmt_doc_squad\nmt_doc_user\n", output)

	output, err = execute(t, "--config", cfg, "--format", "json", "tables")
	require.NoError(t, err)
	var resp struct {
		Status string   `json:"status"`
		Data   []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, []string{"mt_doc_invoice", "mt_doc_squad", "mt_doc_user"}, resp.Data)
}

func TestTablesAll(t *testing.T) {
	cfg := sqliteConfig(t, "create_or_update")
	_, err := execute(t, "--config", cfg, "apply", filepath.Join("testdata", "specs"))
	require.NoError(t, err)

	output, err := execute(t, "--config", cfg, "--format", "json", "tables", "--all")
	require.NoError(t, err)

	var resp struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Subset(t, resp.Data, []string{"mt_doc_invoice", "mt_doc_squad", "mt_doc_user"})
}

func TestTablesBadConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "marten.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("driver: oracle\n"), 0o644))

	output, err := execute(t, "--config", cfg, "tables")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, ErrCodeConfig)
}
