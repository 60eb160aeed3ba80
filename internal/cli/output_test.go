package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_JSON(t *testing.T) {
	tests := []struct {
		name       string
		write      func(f *OutputFormatter) error
		wantStatus string
		wantCode   string
		wantData   bool
	}{
		{
			name:       "success",
			write:      func(f *OutputFormatter) error { return f.Success(map[string]int{"statements": 3}) },
			wantStatus: "ok",
			wantData:   true,
		},
		{
			name:       "error",
			write:      func(f *OutputFormatter) error { return f.Error("E005", "file not found", nil) },
			wantStatus: "error",
			wantCode:   "E005",
		},
		{
			name:       "failure keeps data",
			write:      func(f *OutputFormatter) error { return f.Failure(map[string]int{"failed": 2}, ErrCodeTest, "2 scenario(s) failed") },
			wantStatus: "error",
			wantCode:   ErrCodeTest,
			wantData:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, tt.write(&OutputFormatter{Format: "json", Writer: buf}))

			resp := decodeResponse(t, buf)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantData, resp.Data != nil)
			if tt.wantCode == "" {
				assert.Nil(t, resp.Error)
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestOutputFormatter_JSONErrorDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error("E201", "duplicate statement id", map[string]string{"file": "fran.yaml"}))

	resp := decodeResponse(t, buf)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "duplicate statement id", resp.Error.Message)
	assert.Equal(t, map[string]any{"file": "fran.yaml"}, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success("✓ All scripts valid"))
	assert.Equal(t, "✓ All scripts valid\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Error("E005", "file not found", map[string]string{"path": "x"}))
	assert.Equal(t, "Error [E005]: file not found\n", buf.String(), "details need --verbose")

	buf.Reset()
	f.Verbose = true
	require.NoError(t, f.Error("E005", "file not found", map[string]string{"path": "x"}))
	assert.Contains(t, buf.String(), "Details: map[path:x]")

	buf.Reset()
	require.NoError(t, f.Failure("data", ErrCodeTest, "failed"))
	assert.Empty(t, buf.String())
}

func TestOutputFormatter_Verbosef(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}

	f.Verbosef("Loaded %s", "fran.yaml")
	assert.Empty(t, diag.String())

	f.Verbose = true
	f.Verbosef("Loaded %d statement(s)", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "Loaded 3 statement(s)\n", diag.String())
}

func TestOutputFormatter_DiagnosticsFallsBackToWriter(t *testing.T) {
	out := &bytes.Buffer{}
	f := &OutputFormatter{Writer: out}
	assert.Same(t, out, f.Diagnostics())
}

func TestRootOptions_Formatter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	f := (&RootOptions{Format: "json", Verbose: true}).formatter(cmd)
	assert.True(t, f.JSON())
	assert.True(t, f.Verbose)
	assert.Same(t, out, f.Writer)
	assert.Same(t, errOut, f.Diagnostics())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "missing")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "failed", errors.New("boom"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "missing", NewExitError(ExitCommandError, "missing").Error())
	err := WrapExitError(ExitFailure, "invalid script", errors.New("E201"))
	assert.Equal(t, "invalid script: E201", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "E201")
}
