package sched

import (
	"os"
	"path/filepath"
)

// LogFileName is the per-test diagnostic log file.
const LogFileName = "TestStatus.log"

// logOutput appends a diagnostic block to the test's log file, creating the
// test directory if it does not exist yet. Only the consumer that owns the
// test's PENDING slot writes here, so no locking is needed.
func (s *Scheduler) logOutput(test, output string) {
	dir := s.testDir(test)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Note: making this directory early can cause create_newcase to
		// fail if it runs afterwards.
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.disp.Warning("cannot create test directory " + dir + ": " + err.Error())
			return
		}
	}

	path := filepath.Join(dir, LogFileName)
	fd, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.disp.Warning("cannot open " + path + ": " + err.Error())
		return
	}
	defer fd.Close()
	if _, err := fd.WriteString(output); err != nil {
		s.disp.Warning("cannot write " + path + ": " + err.Error())
	}
}
