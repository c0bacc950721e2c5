package setup

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ScriptPathEnv names the variable holding the job script path
const ScriptPathEnv = "BASH_SCRIPT_PATH"

// DefaultScriptPath is used when ScriptPathEnv is unset
const DefaultScriptPath = "./my_script.sh"

// ComponentStatus represents the availability of a host tool
type ComponentStatus struct {
	Name      string
	Required  bool
	Installed bool
	Version   string
}

// PreflightResult contains the results of the preflight check
type PreflightResult struct {
	ScriptPath  string
	ScriptFound bool
	Components  []ComponentStatus
}

// Replaced in tests
var (
	lookPath = exec.LookPath
	output   = func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).Output()
	}
)

// ResolveScriptPath returns BASH_SCRIPT_PATH or the default
func ResolveScriptPath() string {
	if p := os.Getenv(ScriptPathEnv); p != "" {
		return p
	}
	return DefaultScriptPath
}

// RunPreflight checks the job script and the tools the chosen runner needs
func RunPreflight(scriptPath string, needDocker bool) *PreflightResult {
	result := &PreflightResult{ScriptPath: scriptPath}

	if info, err := os.Stat(scriptPath); err == nil && !info.IsDir() {
		result.ScriptFound = true
	}

	result.Components = []ComponentStatus{
		checkComponent("bash", !needDocker, "--version"),
		checkComponent("nvidia-smi", false, "--query-gpu=driver_version", "--format=csv,noheader"),
	}
	if needDocker {
		result.Components = append(result.Components, checkComponent("docker", true, "--version"))
	}

	return result
}

// MissingComponents returns the names of required components that are not installed
func (r *PreflightResult) MissingComponents() []string {
	var missing []string
	for _, c := range r.Components {
		if c.Required && !c.Installed {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

// PrintStatus prints the preflight check results
func (r *PreflightResult) PrintStatus(w io.Writer) {
	if r.ScriptFound {
		fmt.Fprintf(w, "  ✓ script: %s\n", r.ScriptPath)
	} else {
		fmt.Fprintf(w, "  ✗ script: %s NOT FOUND\n", r.ScriptPath)
	}
	for _, c := range r.Components {
		if c.Installed {
			fmt.Fprintf(w, "  ✓ %s: %s\n", c.Name, c.Version)
		} else {
			fmt.Fprintf(w, "  ✗ %s: NOT INSTALLED\n", c.Name)
		}
	}
}

func checkComponent(binary string, required bool, versionArgs ...string) ComponentStatus {
	cs := ComponentStatus{Name: binary, Required: required}

	if _, err := lookPath(binary); err != nil {
		return cs
	}
	cs.Installed = true

	out, err := output(binary, versionArgs...)
	if err != nil {
		// Version command failed, binary still counts as installed
		cs.Version = "(version unknown)"
		return cs
	}

	// First line only; bash --version is chatty
	cs.Version = strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if len(cs.Version) > 60 {
		cs.Version = cs.Version[:60]
	}
	return cs
}
