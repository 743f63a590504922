// Package sched drives a batch of test cases through the fixed sequence of
// build-and-run phases. A single producer admits ready phase work under a
// CPU budget; a pool of consumers executes the admitted work and updates the
// shared state table.
package sched

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bartgol/createtest/internal/config"
	"github.com/bartgol/createtest/internal/display"
	"github.com/bartgol/createtest/internal/runner"
	"github.com/bartgol/createtest/internal/types"
)

// Options selects which tests run and how.
type Options struct {
	TestNames []string

	NoRun   bool
	NoBuild bool
	NoBatch bool

	TestRoot string
	TestID   string

	BaselineRoot string
	BaselineName string

	Clean         bool
	Compare       bool
	Generate      bool
	NamelistsOnly bool

	Project      string
	ParallelJobs int
}

// Scheduler owns the state table, the CPU budget and the work queue. A single
// mutex protects all three; phase handlers run outside it, while the TOTALPES
// query at admission and the TestStatus writes run under it.
type Scheduler struct {
	opts Options
	cfg  *config.Config
	run  runner.Runner
	disp *display.Display

	phases   []types.Phase
	handlers map[types.Phase]func(string) bool

	producerPoll time.Duration
	consumerPoll time.Duration

	mu         sync.Mutex
	states     map[string]testState
	nlProblems map[string]bool
	procPool   int
	queue      []workItem
	liveJobs   int
}

// New builds a scheduler for the given tests. It fails when any target test
// directory already exists; errors after this point go to the TestStatus
// files instead of aborting the run.
func New(opts Options, cfg *config.Config, run runner.Runner, disp *display.Display) (*Scheduler, error) {
	if len(opts.TestNames) == 0 {
		return nil, fmt.Errorf("no tests given")
	}
	if opts.ParallelJobs < 1 {
		opts.ParallelJobs = 1
	}
	if opts.NamelistsOnly {
		opts.NoBuild = true
		opts.NoRun = true
	}

	s := &Scheduler{
		opts: opts,
		cfg:  cfg,
		run:  run,
		disp: disp,

		producerPoll: time.Second,
		consumerPoll: 5 * time.Second,

		states:     make(map[string]testState),
		nlProblems: make(map[string]bool),
		// Oversubscribe by 1/4
		procPool: int(1.25 * float64(cfg.Machine.MaxTasksPerNode)),
		liveJobs: opts.ParallelJobs,
	}

	s.phases = []types.Phase{types.PhaseInit, types.PhaseCreateNewcase, types.PhaseXML, types.PhaseSetup}
	if opts.Compare || opts.Generate {
		s.phases = append(s.phases, types.PhaseNamelist)
	}
	if !opts.NoBuild {
		s.phases = append(s.phases, types.PhaseBuild)
	}
	if !opts.NoRun {
		s.phases = append(s.phases, types.PhaseRun)
	}

	s.handlers = map[types.Phase]func(string) bool{
		types.PhaseCreateNewcase: s.createNewcasePhase,
		types.PhaseXML:           s.xmlPhase,
		types.PhaseSetup:         s.setupPhase,
		types.PhaseNamelist:      s.namelistPhase,
		types.PhaseBuild:         s.buildPhase,
		types.PhaseRun:           s.runPhase,
	}

	for _, test := range opts.TestNames {
		s.states[test] = testState{phase: types.PhaseInit, status: types.StatusPass}
	}

	// None of the test directories may already exist.
	for _, test := range opts.TestNames {
		if _, err := os.Stat(s.testDir(test)); err == nil {
			return nil, fmt.Errorf("cannot create new case in directory '%s', it already exists; pick a different test id", s.testDir(test))
		}
	}

	return s, nil
}

// Run drives all tests to completion and reports whether every test ended
// passing (or pending on the batch system) with no namelist differences.
func (s *Scheduler) Run() bool {
	start := time.Now()

	s.disp.Box("RUNNING TESTS", s.opts.TestNames...)

	var eg errgroup.Group
	for i := 0; i < s.opts.ParallelJobs; i++ {
		eg.Go(func() error {
			s.consumer()
			return nil
		})
	}

	s.producer()
	_ = eg.Wait() // consumers never return an error

	s.setupCSFiles()

	return s.summarize(time.Since(start))
}

// producer scans the state table and admits the next phase of every test
// that is ready, as long as the CPU budget covers it.
func (s *Scheduler) producer() {
	for workToDo := true; workToDo; {
		workToDo = false
		s.mu.Lock()
		for _, test := range s.opts.TestNames {
			phase, status := s.stateOf(test)
			if !s.workRemains(test) {
				continue
			}
			workToDo = true
			if status == types.StatusPending {
				continue
			}
			next := s.phases[s.phaseIndex(phase)+1]
			procs := s.procsNeeded(test, next)
			if procs <= s.procPool {
				s.procPool -= procs
				s.disp.Info("Starting", fmt.Sprintf("%s for test %s with %d procs", next, test, procs))
				s.updateState(test, next, types.StatusPending)
				s.queue = append(s.queue, workItem{test: test, phase: next, handler: s.handlers[next], procs: procs})
			}
		}
		s.mu.Unlock()

		time.Sleep(s.producerPoll)
	}
}

// consumer executes admitted phase work until the population of tests that
// can still make progress drops below the consumer count, at which point it
// sheds itself so the process winds down.
func (s *Scheduler) consumer() {
	for {
		var item workItem
		found := false
		s.mu.Lock()
		if len(s.queue) > 0 {
			item = s.queue[0]
			s.queue = s.queue[1:]
			found = true
		}
		s.mu.Unlock()

		if found {
			before := time.Now()
			success := s.runGuarded(item.test, item.phase, item.handler)
			elapsed := time.Since(before)

			var status types.Status
			switch {
			case !success:
				status = types.StatusFail
			case item.phase == types.PhaseRun && !s.opts.NoBatch:
				// The batch system owns the result from here on.
				status = types.StatusPending
			default:
				status = types.StatusPass
			}

			s.mu.Lock()
			// A submitted RUN was admitted as (RUN, PENDING) and stays there.
			if status != types.StatusPending {
				s.updateState(item.test, item.phase, status)
			}
			s.procPool += item.procs
			s.handleStatusFile(item.test, item.phase, success)
			s.mu.Unlock()

			msg := fmt.Sprintf("Finished %s for test %s in %.2f seconds (%s)", item.phase, item.test, elapsed.Seconds(), status)
			if success {
				s.disp.Success(msg)
			} else {
				s.disp.Error(msg)
			}
			continue
		}

		// No work; check whether this consumer is still needed.
		s.mu.Lock()
		numLive := 0
		for _, test := range s.opts.TestNames {
			if s.workRemains(test) {
				numLive++
			}
		}
		if numLive < s.liveJobs {
			s.liveJobs--
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		time.Sleep(s.consumerPoll)
	}
}

// runGuarded invokes a phase handler with a panic guard, so no fault in
// handler code can unwind past a consumer iteration.
func (s *Scheduler) runGuarded(test string, phase types.Phase, handler func(string) bool) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logOutput(test, fmt.Sprintf("Test '%s' failed in phase '%s' with panic '%v'\n%s\n", test, phase, r, debug.Stack()))
			s.disp.Warning(fmt.Sprintf("Caught panic in %s for test %s: %v", phase, test, r))
			success = false
		}
	}()
	return handler(test)
}

// procsNeeded returns the CPU-budget units the next phase will hold. Running
// a test directly needs its full PE count; everything else costs one unit.
// Caller holds the lock.
func (s *Scheduler) procsNeeded(test string, phase types.Phase) int {
	if phase != types.PhaseRun || !s.opts.NoBatch {
		return 1
	}
	res := s.run.Run("./xmlquery TOTALPES", s.testDir(test))
	fields := strings.Fields(res.Stdout)
	if res.Ok() && len(fields) > 0 {
		if pes, err := strconv.Atoi(fields[len(fields)-1]); err == nil && pes > 0 {
			return pes
		}
	}
	s.disp.Warning(fmt.Sprintf("Cannot read TOTALPES for test %s, assuming 1", test))
	return 1
}

// summarize prints the terminal state of every test and returns the overall
// verdict.
func (s *Scheduler) summarize(elapsed time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disp.Line("At test-run close, state is:")
	ok := true
	for _, test := range s.opts.TestNames {
		phase, status := s.stateOf(test)
		switch {
		case status != types.StatusPass && status != types.StatusPending:
			s.disp.Error(fmt.Sprintf("%s %s (phase %s)", status, test, phase))
			ok = false
		case s.nlProblems[test]:
			s.disp.Warning(fmt.Sprintf("%s %s (but otherwise OK)", types.StatusNamelistFail, test))
			ok = false
		default:
			s.disp.Success(fmt.Sprintf("%s %s %s", status, test, phase))
		}
	}
	s.disp.Info("Elapsed", elapsed.Round(time.Second).String())

	return ok
}
