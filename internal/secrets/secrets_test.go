package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkapp/parkwatch/internal/errors"
)

func TestExpandString(t *testing.T) {
	t.Setenv("PW_TOKEN", "abc123")
	t.Setenv("PW_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty string", input: "", want: ""},
		{name: "literal", input: "literal-value", want: "literal-value"},
		{name: "variable", input: "${PW_TOKEN}", want: "abc123"},
		{name: "prefix and suffix", input: "Bearer ${PW_TOKEN}!", want: "Bearer abc123!"},
		{name: "default used", input: "${PW_UNSET_VAR:-fallback}", want: "fallback"},
		{name: "empty default", input: "${PW_UNSET_VAR:-}", want: ""},
		{name: "empty variable uses default", input: "${PW_EMPTY:-x}", want: "x"},
		{name: "missing variable", input: "${PW_UNSET_VAR}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "PW_UNSET_VAR")
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(good, []byte("s3cret\n"), 0o600))
	got, err := ReadFile(good)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty)
	assert.ErrorContains(t, err, "empty")

	_, err = ReadFile(filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "not found")

	_, err = ReadFile(dir)
	assert.ErrorContains(t, err, "not a regular file")

	_, err = ReadFile("")
	assert.Error(t, err)

	large := filepath.Join(dir, "large")
	require.NoError(t, os.WriteFile(large, make([]byte, maxSecretFileSize+1), 0o600))
	_, err = ReadFile(large)
	assert.ErrorContains(t, err, "too large")
}

func TestReadFileErrorsOmitContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("hunter2"), 0o600))
	_, err := ReadFile(filepath.Join(path, "child"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestResolve(t *testing.T) {
	t.Setenv("PW_PASS", "from-env")
	path := filepath.Join(t.TempDir(), "pass")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	got, err := Resolve(path, "${PW_PASS}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got, "file wins")

	got, err = Resolve("", "${PW_PASS}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
