// Package runner executes external helper commands for the test pipeline.
package runner

import (
	"bytes"
	"os/exec"
	"strings"
)

// Result holds the outcome of one command invocation. Failures are encoded
// in Code and Stderr; Run never returns an error.
type Result struct {
	Code   int
	Stdout string
	Stderr string
}

// Ok reports whether the command exited cleanly.
func (r Result) Ok() bool {
	return r.Code == 0
}

// Runner executes a shell command, optionally from a working directory.
// Implementations must be safe for concurrent use.
type Runner interface {
	Run(command, fromDir string) Result
}

// Local runs commands on the local host through the shell.
type Local struct{}

// Run executes command with sh -c, from fromDir when non-empty.
func (Local) Run(command, fromDir string) Result {
	cmd := exec.Command("sh", "-c", command)
	if fromDir != "" {
		cmd.Dir = fromDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimRight(stdout.String(), "\n"),
		Stderr: strings.TrimRight(stderr.String(), "\n"),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.Code = exitErr.ExitCode()
		} else {
			// The command never started (bad dir, missing shell).
			res.Code = 1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}
	return res
}
