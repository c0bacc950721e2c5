package setup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTools(t *testing.T, installed map[string]string) {
	t.Helper()
	origLook, origOut := lookPath, output
	t.Cleanup(func() { lookPath, output = origLook, origOut })

	lookPath = func(file string) (string, error) {
		if _, ok := installed[file]; ok {
			return "/usr/bin/" + file, nil
		}
		return "", errors.New("not found")
	}
	output = func(name string, args ...string) ([]byte, error) {
		return []byte(installed[name]), nil
	}
}

func TestResolveScriptPath_Default(t *testing.T) {
	t.Setenv(ScriptPathEnv, "")

	assert.Equal(t, "./my_script.sh", ResolveScriptPath())
}

func TestResolveScriptPath_FromEnv(t *testing.T) {
	t.Setenv(ScriptPathEnv, "/opt/jobs/train.sh")

	assert.Equal(t, "/opt/jobs/train.sh", ResolveScriptPath())
}

func TestRunPreflight_FindsScript(t *testing.T) {
	stubTools(t, map[string]string{"bash": "GNU bash, version 5.2.21\nCopyright"})
	script := filepath.Join(t.TempDir(), "train.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo hi\n"), 0o755))

	result := RunPreflight(script, false)

	assert.True(t, result.ScriptFound)
	assert.Empty(t, result.MissingComponents())
	assert.Equal(t, "GNU bash, version 5.2.21", result.Components[0].Version)
}

func TestRunPreflight_MissingScript(t *testing.T) {
	stubTools(t, map[string]string{"bash": "GNU bash"})

	result := RunPreflight(filepath.Join(t.TempDir(), "nope.sh"), false)

	assert.False(t, result.ScriptFound)
}

func TestRunPreflight_DirectoryIsNotAScript(t *testing.T) {
	stubTools(t, map[string]string{"bash": "GNU bash"})

	result := RunPreflight(t.TempDir(), false)

	assert.False(t, result.ScriptFound)
}

func TestRunPreflight_DockerRunnerNeedsDocker(t *testing.T) {
	stubTools(t, map[string]string{})

	result := RunPreflight("job.sh", true)

	// bash is only required on the host for the shell runner
	assert.Equal(t, []string{"docker"}, result.MissingComponents())
}

func TestRunPreflight_NvidiaSMIIsOptional(t *testing.T) {
	stubTools(t, map[string]string{"bash": "GNU bash"})

	result := RunPreflight("job.sh", false)

	assert.Empty(t, result.MissingComponents())
}

func TestPrintStatus(t *testing.T) {
	result := &PreflightResult{
		ScriptPath: "./my_script.sh",
		Components: []ComponentStatus{
			{Name: "bash", Installed: true, Version: "GNU bash 5.2"},
			{Name: "nvidia-smi"},
		},
	}
	var buf bytes.Buffer

	result.PrintStatus(&buf)

	assert.Contains(t, buf.String(), "./my_script.sh NOT FOUND")
	assert.Contains(t, buf.String(), "bash: GNU bash 5.2")
	assert.Contains(t, buf.String(), "nvidia-smi: NOT INSTALLED")
}
