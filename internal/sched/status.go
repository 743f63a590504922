package sched

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bartgol/createtest/internal/types"
)

// StatusFileName is the persistent per-test status file consumed by the run
// scripts and by downstream monitoring tools.
const StatusFileName = "TestStatus"

// writeStatusFile serialises the test's per-phase statuses to its TestStatus
// file, one `<STATUS> <TEST_NAME> <PHASE>` record per line in phase order up
// to and including the current phase. When a RUN phase is still expected, a
// trailing PENDING RUN placeholder is appended so downstream tools see it.
// Caller holds the lock.
func (s *Scheduler) writeStatusFile(test string) {
	cur, _ := s.stateOf(test)
	curIdx := s.phaseIndex(cur)

	var sb strings.Builder
	for _, phase := range s.phases[1 : curIdx+1] {
		sb.WriteString(fmt.Sprintf("%s %s %s\n", s.statusForPhase(test, phase), test, phase))
	}

	buildIdx := s.phaseIndex(types.PhaseBuild)
	if !s.opts.NoRun && !s.isBroken(test) && buildIdx >= 0 && curIdx >= buildIdx && cur != types.PhaseRun {
		sb.WriteString(fmt.Sprintf("%s %s %s\n", types.StatusPending, test, types.PhaseRun))
	}

	path := filepath.Join(s.testDir(test), StatusFileName)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		s.logOutput(test, fmt.Sprintf("VERY BAD! Could not make TestStatus file '%s': '%v'\n", path, err))
	}
}

// handleStatusFile decides whether the TestStatus file needs (re)writing
// after a phase completes. The run scripts own the file during the RUN phase,
// so this process only writes a RUN record when the scripts never got the
// chance to. Caller holds the lock.
func (s *Scheduler) handleStatusFile(test string, phase types.Phase, success bool) {
	lastPhase := s.phases[len(s.phases)-1]

	if phase != types.PhaseRun {
		if !success || phase == types.PhaseBuild || phase == lastPhase {
			s.writeStatusFile(test)
		}
		return
	}

	if success {
		return
	}

	// If we failed very early in the run phase, the run scripts may never
	// have had a chance to record any state.
	path := filepath.Join(s.testDir(test), StatusFileName)
	statuses, err := ParseStatusFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeStatusFile(test)
			return
		}
		s.logOutput(test, fmt.Sprintf("VERY BAD! Could not read TestStatus file '%s': '%v'\n", path, err))
		return
	}
	if _, ok := statuses[types.PhaseRun]; !ok {
		s.writeStatusFile(test)
	} else if statuses[types.PhaseRun] == types.StatusPass || statuses[types.PhaseRun] == types.StatusPending {
		s.logOutput(test, "VERY BAD! How was infrastructure able to log a TestState but not change it to FAIL?\n")
	}
}

// ParseStatusFile reads a TestStatus file back into a phase-to-status map.
// When a phase appears more than once the last record wins, which lets a
// final RUN record supersede the PENDING placeholder.
func ParseStatusFile(path string) (map[types.Phase]types.Status, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	statuses := make(map[types.Phase]types.Status)
	scanner := bufio.NewScanner(fd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed TestStatus line %q in '%s'", line, path)
		}
		status, phase := types.Status(fields[0]), types.Phase(fields[2])
		if !status.IsValid() || !phase.IsValid() {
			return nil, fmt.Errorf("malformed TestStatus line %q in '%s'", line, path)
		}
		statuses[phase] = status
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}
