package link

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// scriptCandidates returns the platform-appropriate script names to
// look for under an extracted package's info/ directory, in priority
// order.
func scriptCandidates(stem string) []string {
	if runtime.GOOS == "windows" {
		return []string{stem + ".bat"}
	}
	return []string{stem + ".sh"}
}

// RunScript runs the first of info/<stem>.sh (or .bat on Windows)
// that exists in extractedDir, with the prefix activated in its
// environment (PREFIX and PATH prepended with <prefix>/bin). Absence
// of the script is not an error; a nonzero exit is.
func RunScript(extractedDir, prefix, stem string) error {
	for _, name := range scriptCandidates(stem) {
		path := filepath.Join(extractedDir, "info", name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return runActivated(path, prefix)
	}
	return nil
}

func runActivated(scriptPath, prefix string) error {
	var shell, flag string
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	} else {
		shell, flag = "/bin/sh", "-c"
	}
	cmd := exec.Command(shell, flag, scriptPath)
	cmd.Dir = prefix
	cmd.Env = activatedEnv(prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("link: script %s failed: %w: %s", scriptPath, err, stderr.String())
	}
	return nil
}

func activatedEnv(prefix string) []string {
	env := os.Environ()
	binDir := filepath.Join(prefix, "bin")
	path := binDir + string(os.PathListSeparator) + os.Getenv("PATH")
	env = append(env, "PREFIX="+prefix, "PATH="+path)
	return env
}
