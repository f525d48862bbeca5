package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/mapping"
)

func loadErrorCodes(errs []error) []string {
	var codes []string
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			codes = append(codes, loadErr.Code)
		}
	}
	return codes
}

func TestLoadSpecs(t *testing.T) {
	result, errs := LoadSpecs(filepath.Join("testdata", "specs"), LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.FileCount)
	require.Len(t, result.Documents, 3)

	byName := make(map[string]mapping.Declaration)
	for _, d := range result.Documents {
		byName[d.Name] = d
	}
	assert.Equal(t, mapping.IDInt64, byName["Invoice"].IDKind)
	assert.Len(t, byName["Invoice"].Duplicates, 2)
	assert.Equal(t, []string{"FootballTeam", "BaseballTeam"}, byName["Squad"].SubClasses)
	assert.Equal(t, "user", byName["User"].Alias)
}

func TestLoadSpecsCollectAll(t *testing.T) {
	_, errs := LoadSpecs(filepath.Join("testdata", "broken"), LoadModeCollectAll)

	assert.ElementsMatch(t, []string{ErrCodeInvalidID, ErrCodeInvalidColumn}, loadErrorCodes(errs))
}

func TestLoadSpecsFailFast(t *testing.T) {
	_, errs := LoadSpecs(filepath.Join("testdata", "broken"), LoadModeFailFast)

	require.Len(t, errs, 1)
	var loadErr *LoadError
	require.ErrorAs(t, errs[0], &loadErr)
	assert.Contains(t, loadErr.Message, "document.")
	assert.True(t, loadErr.Pos.IsValid())
}

func TestLoadSpecsErrors(t *testing.T) {
	noDocs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(noDocs, "x.cue"), []byte("package specs\n\nother: 1\n"), 0o644))

	notDir := filepath.Join(t.TempDir(), "file.cue")
	require.NoError(t, os.WriteFile(notDir, []byte("package specs\n"), 0o644))

	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing", "/nonexistent/directory/path", ErrCodeNotFound},
		{"not_a_directory", notDir, ErrCodeNotFound},
		{"empty", t.TempDir(), ErrCodeNoFiles},
		{"no_documents", noDocs, ErrCodeNoDocuments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadSpecs(tt.dir, LoadModeCollectAll)
			assert.Equal(t, []string{tt.code}, loadErrorCodes(errs))
		})
	}
}

func TestLoadSpecsBuildError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"),
		[]byte("package specs\n\ndocument: A: id: \"int\"\ndocument: A: id: \"uuid\"\n"), 0o644))

	_, errs := LoadSpecs(dir, LoadModeCollectAll)

	require.NotEmpty(t, errs)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := map[string]string{
		"document":         ErrCodeInvalidDocument,
		"alias":            ErrCodeInvalidAlias,
		"id":               ErrCodeInvalidID,
		"type":             ErrCodeInvalidColumn,
		"subclasses":       ErrCodeInvalidSubClass,
		"duplicate.Status": ErrCodeInvalidDup,
		"cue":              ErrCodeGeneric,
	}

	for field, want := range tests {
		assert.Equal(t, want, MapFieldToErrorCode(field), field)
	}
}

func TestLoadErrorFormat(t *testing.T) {
	err := &LoadError{Code: ErrCodeNoFiles, Message: "no CUE files found in specs"}

	assert.Equal(t, "E003: no CUE files found in specs", err.Error())
}
