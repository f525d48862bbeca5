package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/compiler"
)

func TestValidateValidSpecs(t *testing.T) {
	output, err := execute(t, "validate", filepath.Join("testdata", "specs"))
	require.NoError(t, err)

	assert.Contains(t, output, "✓ 3 document(s) valid")
}

func TestValidateValidSpecsJSON(t *testing.T) {
	output, err := execute(t, "--format", "json", "validate", filepath.Join("testdata", "specs"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 3, resp.Data.Documents)
}

func TestValidateInvalidSpecs(t *testing.T) {
	output, err := execute(t, "validate", filepath.Join("testdata", "invalid"))

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, compiler.ErrReservedColumn)
	assert.Contains(t, output, `alias "thing" is used by Order, Item`)
}

func TestValidateInvalidSpecsJSON(t *testing.T) {
	output, err := execute(t, "--format", "json", "validate", filepath.Join("testdata", "invalid"))
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *ResponseError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, compiler.ErrReservedColumn, resp.Data.Errors[0].Code)
	assert.Equal(t, compiler.ErrDuplicateAlias, resp.Data.Errors[1].Code)
	assert.Equal(t, compiler.ErrReservedColumn, resp.Error.Code)
}

func TestValidateCompileErrors(t *testing.T) {
	output, err := execute(t, "validate", filepath.Join("testdata", "broken"))

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, ErrCodeInvalidID)
	assert.Contains(t, output, ErrCodeInvalidColumn)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	output, err := execute(t, "validate", "/nonexistent/directory/path")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, output, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, err := execute(t, "validate", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidateVerbose(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"-v", "validate", filepath.Join("testdata", "specs")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "Validating document: Invoice")
	assert.NotContains(t, out.String(), "Validating document")
}

func TestValidateSpecsDir(t *testing.T) {
	result, errs, err := ValidateSpecsDir(filepath.Join("testdata", "invalid"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Documents, 2)
	assert.Len(t, errs, 2)

	_, _, err = ValidateSpecsDir(filepath.Join("testdata", "broken"))
	assert.Error(t, err)
}
