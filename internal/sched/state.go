package sched

import (
	"fmt"
	"path/filepath"

	"github.com/bartgol/createtest/internal/types"
)

// testState is one entry of the in-memory state table.
type testState struct {
	phase  types.Phase
	status types.Status
}

// workItem is one admitted unit of phase work.
type workItem struct {
	test    string
	phase   types.Phase
	handler func(string) bool
	procs   int
}

// caseID derives the case directory and filename prefix for a test:
// <test_name><.C|.G|>.<test_id>
func (s *Scheduler) caseID(test string) string {
	action := ""
	if s.opts.Compare {
		action = ".C"
	} else if s.opts.Generate {
		action = ".G"
	}
	return fmt.Sprintf("%s%s.%s", test, action, s.opts.TestID)
}

// testDir returns the case directory for a test.
func (s *Scheduler) testDir(test string) string {
	return filepath.Join(s.opts.TestRoot, s.caseID(test))
}

// phaseIndex returns the position of phase in the configured phase list,
// or -1 when the phase was configured out.
func (s *Scheduler) phaseIndex(phase types.Phase) int {
	for i, p := range s.phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// stateOf returns the current (phase, status) of a test. Caller holds the lock.
func (s *Scheduler) stateOf(test string) (types.Phase, types.Status) {
	st, ok := s.states[test]
	if !ok {
		panic(fmt.Sprintf("unknown test '%s'", test))
	}
	return st.phase, st.status
}

// workRemains reports whether a test can still make progress. Caller holds
// the lock.
func (s *Scheduler) workRemains(test string) bool {
	phase, status := s.stateOf(test)
	return (status.CanContinue() || status == types.StatusPending) && phase != s.phases[len(s.phases)-1]
}

// isBroken reports whether a test is terminally failed. Caller holds the lock.
func (s *Scheduler) isBroken(test string) bool {
	_, status := s.stateOf(test)
	return !status.CanContinue() && status != types.StatusPending
}

// statusForPhase returns the status of a test as of the given phase. NAMELIST
// for a test in the soft-fail set reports NAMELIST_FAIL, whether or not it is
// the current phase. Otherwise the current phase reports the live status and
// any earlier phase reports PASS. Asking about a later phase is a programming
// error.
// Caller holds the lock.
func (s *Scheduler) statusForPhase(test string, phase types.Phase) types.Status {
	cur, status := s.stateOf(test)
	if phase == types.PhaseNamelist && s.nlProblems[test] {
		return types.StatusNamelistFail
	}
	if phase == cur {
		return status
	}
	if s.phaseIndex(phase) >= s.phaseIndex(cur) {
		panic(fmt.Sprintf("tried to see the future: phase %s of test '%s' (currently at %s)", phase, test, cur))
	}
	// All older phases passed, or the test would not have advanced.
	return types.StatusPass
}

// updateState commits a status transition for a test. Within a phase the only
// legal move is PENDING to a terminal status; across phases the prior status
// must permit continuation and the new phase must be the immediate successor.
// Violations are programming errors and abort loudly. Caller holds the lock.
func (s *Scheduler) updateState(test string, phase types.Phase, status types.Status) {
	oldPhase, oldStatus := s.stateOf(test)
	phaseIdx := s.phaseIndex(phase)
	if phaseIdx < 0 {
		panic(fmt.Sprintf("phase %s is not in the configured phase list", phase))
	}

	if oldPhase == phase {
		if oldStatus != types.StatusPending {
			panic(fmt.Sprintf("only valid to transition from PENDING to something else, found '%s'", oldStatus))
		}
		if status == types.StatusPending {
			panic("cannot transition from PENDING -> PENDING")
		}
	} else {
		if !oldStatus.CanContinue() {
			panic(fmt.Sprintf("moved test '%s' to phase %s but prior phase %s did not pass (%s)", test, phase, oldPhase, oldStatus))
		}
		if s.phaseIndex(oldPhase) != phaseIdx-1 {
			panic(fmt.Sprintf("skipped phase: %s -> %s for test '%s'", oldPhase, phase, test))
		}
	}

	s.states[test] = testState{phase: phase, status: status}
}
