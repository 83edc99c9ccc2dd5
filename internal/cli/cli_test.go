package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/solo-cook/internal/config"
	"github.com/mmr-tortoise/solo-cook/internal/model"
	"github.com/mmr-tortoise/solo-cook/internal/provision"
)

// execute runs the root command with args and returns everything written
// to stdout and stderr along with the command's error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestExitCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ExitCode
	}{
		{"nil", nil, model.ExitSuccess},
		{"plain", errors.New("boom"), model.ExitGeneralError},
		{"cli error", model.NewCLIError(model.ExitSyncFailed, "x"), model.ExitSyncFailed},
		{"validation", &provision.StepError{Class: provision.ClassValidation, Step: provision.StepValidate, Err: provision.ErrInvalidHostname}, model.ExitGeneralError},
		{"version", &provision.StepError{Class: provision.ClassVersion, Step: provision.StepVersionCheck, Err: provision.ErrVersionMismatch}, model.ExitVersionMismatch},
		{"sync", &provision.StepError{Class: provision.ClassSync, Step: provision.StepSync, Err: provision.ErrSyncFailed}, model.ExitSyncFailed},
		{"run", &provision.StepError{Class: provision.ClassRun, Step: provision.StepCook, Err: provision.ErrRunFailed}, model.ExitRunFailed},
		{"wrapped run", errors.Wrap(&provision.StepError{Class: provision.ClassRun, Step: provision.StepCook, Err: provision.ErrRunFailed}, "cook"), model.ExitRunFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeOf(tt.err))
		})
	}
}

func TestPrintError_Text(t *testing.T) {
	jsonOutput = false

	err := errors.WithDetail(errors.WithHint(errors.New("sync failed"), "check the rsync output"), "rsync error: code 23")

	var buf bytes.Buffer
	printError(&buf, err)

	out := buf.String()
	assert.Contains(t, out, "ERROR:")
	assert.Contains(t, out, "sync failed\n")
	assert.Contains(t, out, "rsync error: code 23\n")
	assert.Contains(t, out, "check the rsync output\n")
}

func TestPrintError_JSON(t *testing.T) {
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	err := &provision.StepError{Class: provision.ClassRun, Step: provision.StepCook, Err: provision.ErrRunFailed}

	var buf bytes.Buffer
	printError(&buf, err)

	var got struct {
		Error struct {
			Message string `json:"message"`
			Class   string `json:"class"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "chef-solo failed. See output above.", got.Error.Message)
	assert.Equal(t, "RunError", got.Error.Class)
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kitchen")

	stdout, _, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Created nodes\n")
	assert.Contains(t, stdout, "Created solo.rb\n")

	data, err := os.ReadFile(filepath.Join(dir, config.SoloFile))
	require.NoError(t, err)
	assert.Equal(t, config.SoloTemplate, string(data))

	stdout, _, err = execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "already initialized")
}

func TestCookCommand_InvalidDestination(t *testing.T) {
	kitchenDir := t.TempDir()

	_, stderr, err := execute(t, "cook", "bad host!", "--kitchen", kitchenDir)
	require.Error(t, err)

	assert.True(t, errors.Is(err, provision.ErrInvalidHostname))
	assert.Equal(t, model.ExitGeneralError, ExitCodeOf(err))
	assert.Contains(t, stderr, "WARNING:")
	assert.Contains(t, stderr, "solo.rb not found")
}

func TestCookCommand_RemotePathUnset(t *testing.T) {
	kitchenDir := t.TempDir()
	for _, d := range []string{"nodes", "roles", "cookbooks", "data_bags"} {
		require.NoError(t, os.Mkdir(filepath.Join(kitchenDir, d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(kitchenDir, config.SoloFile), []byte(`file_cache_path "/tmp/chef-cache"`+"\n"), 0o644))

	_, _, err := execute(t, "cook", "web", "--kitchen", kitchenDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, provision.ErrRemotePathUnset))
	assert.Equal(t, model.ExitGeneralError, ExitCodeOf(err))

	var buf bytes.Buffer
	printError(&buf, err)
	assert.Contains(t, buf.String(), "knife[:solo_path] needs to be set in solo.rb")
	assert.Contains(t, buf.String(), config.SoloTemplate)
}

func TestCookCommand_InvalidOptions(t *testing.T) {
	_, _, err := execute(t, "cook", "web", "--kitchen", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, "invalid options", cliErr.Message)
}

func TestCookCommand_Args(t *testing.T) {
	_, _, err := execute(t, "cook")
	assert.Error(t, err)

	_, _, err = execute(t, "cook", "a", "b", "c")
	assert.Error(t, err)
}
