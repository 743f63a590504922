package sched

import (
	"os"
	"path/filepath"
	"strings"
)

// setupCSFiles renders the cs.status and cs.submit convenience scripts into
// the test root; cs.submit is written only in no-build or no-run mode.
// Failures here are cosmetic: they only cost the user the
// shortcut scripts, so they warn and move on.
func (s *Scheduler) setupCSFiles() {
	scriptsRoot := s.cfg.Paths.ScriptsRoot

	statusTemplate, err := os.ReadFile(filepath.Join(scriptsRoot, "cs.status.template"))
	if err != nil {
		s.disp.Warning("FAILED to set up cs files: " + err.Error())
		return
	}
	content := strings.ReplaceAll(string(statusTemplate), "<PATH>", scriptsRoot)
	content = strings.ReplaceAll(content, "<TESTID>", s.opts.TestID)
	if err := writeExecutable(filepath.Join(s.opts.TestRoot, "cs.status."+s.opts.TestID), content); err != nil {
		s.disp.Warning("FAILED to set up cs files: " + err.Error())
		return
	}

	submitTemplate, err := os.ReadFile(filepath.Join(scriptsRoot, "cs.submit.template"))
	if err != nil {
		s.disp.Warning("FAILED to set up cs files: " + err.Error())
		return
	}
	buildCmd := ":"
	if s.opts.NoBuild {
		buildCmd = "./*.test_build"
	}
	runCmd := "./*.submit"
	if s.opts.NoBatch {
		runCmd = "./*.test"
	}
	content = strings.ReplaceAll(string(submitTemplate), "<BUILD_CMD>", buildCmd)
	content = strings.ReplaceAll(content, "<RUN_CMD>", runCmd)
	content = strings.ReplaceAll(content, "<TESTID>", s.opts.TestID)

	if s.opts.NoBuild || s.opts.NoRun {
		if err := writeExecutable(filepath.Join(s.opts.TestRoot, "cs.submit."+s.opts.TestID), content); err != nil {
			s.disp.Warning("FAILED to set up cs files: " + err.Error())
		}
	}
}

func writeExecutable(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode()|0o110)
}
