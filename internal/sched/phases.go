package sched

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bartgol/createtest/internal/testspec"
	"github.com/bartgol/createtest/internal/types"
)

// runPhaseCommand executes one external command on behalf of a phase and
// appends a framed diagnostic block to the test log.
func (s *Scheduler) runPhaseCommand(test, command string, phase types.Phase, fromDir string) bool {
	res := s.run.Run(command, fromDir)
	verdict := "PASSED"
	if !res.Ok() {
		verdict = "FAILED"
	}
	s.logOutput(test, fmt.Sprintf("%s %s for test '%s'.\nCommand: %s\nOutput: %s\n\nErrput: %s\n",
		phase, verdict, test, command, res.Stdout, res.Stderr))
	return res.Ok()
}

// createNewcasePhase assembles and runs the create_newcase command.
func (s *Scheduler) createNewcasePhase(test string) bool {
	testDir := s.testDir(test)

	spec, err := testspec.Parse(test)
	if err != nil {
		s.logOutput(test, fmt.Sprintf("Cannot parse test name: %v\n", err))
		return false
	}

	var sharedlibroot string
	if s.opts.ParallelJobs == 1 {
		sharedlibroot = filepath.Join(s.cfg.Machine.ScratchRoot, "sharedlibroot."+s.opts.TestID)
	} else {
		// Parallel builds introduce sync problems with a shared
		// sharedlibroot; let every case build its own.
		sharedlibroot = filepath.Join(testDir, "sharedlibroot."+s.opts.TestID)
	}

	command := fmt.Sprintf("%s -silent -case %s -res %s -mach %s -compiler %s -compset %s -testname %s -project %s -nosavetiming -sharedlibroot %s",
		filepath.Join(s.cfg.Paths.CIMERoot, "scripts", "create_newcase"),
		testDir, spec.Grid, spec.Machine, spec.Compiler, spec.Compset, spec.Case, s.opts.Project,
		sharedlibroot)

	if len(spec.Confopts) > 0 {
		command += fmt.Sprintf(" -confopts _%s", strings.Join(spec.Confopts, "_"))
	}
	if spec.Mods != "" {
		modsDir := filepath.Join(s.cfg.Paths.CIMERoot, "scripts", "Testing", "Testlistxml", "testmods_dirs", spec.Mods)
		if _, err := os.Stat(modsDir); os.IsNotExist(err) {
			s.logOutput(test, fmt.Sprintf("Missing testmod file '%s'\n", modsDir))
			return false
		}
		command += fmt.Sprintf(" -user_mods_dir %s", modsDir)
	}

	return s.runPhaseCommand(test, command, types.PhaseCreateNewcase, "")
}

// xmlPhase invokes the XML bridge with the KEY,VALUE overrides the run
// scripts expect to find in env_test.xml.
func (s *Scheduler) xmlPhase(test string) bool {
	spec, err := testspec.Parse(test)
	if err != nil {
		s.logOutput(test, fmt.Sprintf("Cannot parse test name: %v\n", err))
		return false
	}

	xmlFile := filepath.Join(s.testDir(test), "env_test.xml")
	machDir := filepath.Join(s.cfg.Paths.CIMERoot, "machines-acme")

	command := filepath.Join(s.cfg.Paths.ScriptsRoot, "xml_bridge")
	command += fmt.Sprintf(" %s %s %s", machDir, spec.Machine, xmlFile)

	command += fmt.Sprintf(" TESTCASE,%s", spec.Case)
	command += fmt.Sprintf(" TEST_TESTID,%s", s.opts.TestID)

	testArgv := fmt.Sprintf("-testname %s -testroot %s", test, s.opts.TestRoot)
	if s.opts.Generate {
		testArgv += fmt.Sprintf(" -generate %s", s.opts.BaselineName)
	}
	if s.opts.Compare {
		testArgv += fmt.Sprintf(" -compare %s", s.opts.BaselineName)
	}
	command += fmt.Sprintf(" 'TEST_ARGV,%s'", testArgv)

	command += fmt.Sprintf(" CASEBASEID,%s", test)

	if s.opts.Generate {
		command += fmt.Sprintf(" BASELINE_NAME_GEN,%s", s.opts.BaselineName)
		command += fmt.Sprintf(" BASEGEN_CASE,%s", filepath.Join(s.opts.BaselineName, test))
	}
	if s.opts.Compare {
		command += fmt.Sprintf(" BASELINE_NAME_CMP,%s", s.opts.BaselineName)
		command += fmt.Sprintf(" BASECMP_CASE,%s", filepath.Join(s.opts.BaselineName, test))
	}

	command += fmt.Sprintf(" CLEANUP,%s", boolUpper(s.opts.Clean))

	if s.opts.Generate || s.opts.Compare {
		command += fmt.Sprintf(" BASELINE_ROOT,%s", s.opts.BaselineRoot)
	}

	command += fmt.Sprintf(" GENERATE_BASELINE,%s", boolUpper(s.opts.Generate))
	command += fmt.Sprintf(" COMPARE_BASELINE,%s", boolUpper(s.opts.Compare))

	return s.runPhaseCommand(test, command, types.PhaseXML, "")
}

// setupPhase stages the per-test build script and runs cesm_setup in place.
func (s *Scheduler) setupPhase(test string) bool {
	spec, err := testspec.Parse(test)
	if err != nil {
		s.logOutput(test, fmt.Sprintf("Cannot parse test name: %v\n", err))
		return false
	}

	testDir := s.testDir(test)
	templateDir := filepath.Join(s.cfg.Paths.CIMERoot, "scripts", "Testing", "Testcases")
	testBuild := filepath.Join(testDir, s.caseID(test)+".test_build")

	src := filepath.Join(templateDir, spec.Case+"_build.csh")
	if _, err := os.Stat(src); os.IsNotExist(err) {
		src = filepath.Join(templateDir, "tests_build.csh")
	}
	if err := copyFile(src, testBuild); err != nil {
		s.logOutput(test, fmt.Sprintf("Cannot stage build script: %v\n", err))
		return false
	}

	return s.runPhaseCommand(test, "./cesm_setup", types.PhaseSetup, testDir)
}

// namelistPhase compares the case namelists against the baseline, or
// regenerates the baseline, depending on the run mode. Comparison
// differences soft-fail: they are recorded but the handler still succeeds.
func (s *Scheduler) namelistPhase(test string) bool {
	testDir := s.testDir(test)
	casedocDir := filepath.Join(testDir, "CaseDocs")
	baselineDir := filepath.Join(s.opts.BaselineRoot, s.opts.BaselineName, test)
	baselineCasedocs := filepath.Join(baselineDir, "CaseDocs")

	if s.opts.Compare {
		s.compareNamelists(test, testDir, casedocDir, baselineDir, baselineCasedocs)
	} else if s.opts.Generate {
		if !s.generateNamelists(test, testDir, casedocDir, baselineDir, baselineCasedocs) {
			return false
		}
	}

	// Comparison differences never arrest the pipeline.
	return true
}

func (s *Scheduler) compareNamelists(test, testDir, casedocDir, baselineDir, baselineCasedocs string) {
	compareNl := filepath.Join(testDir, "Tools", "compare_namelists")
	simpleCompare := filepath.Join(testDir, "Tools", "simple_compare")

	hasFails := false

	// Compare everything in CaseDocs except a few arbitrary files, plus
	// the user_nl files at the case root.
	// TODO: namelist files should have a consistent suffix
	casedocs, _ := filepath.Glob(filepath.Join(casedocDir, "*"))
	var items []string
	for _, item := range casedocs {
		base := filepath.Base(item)
		if strings.Contains(base, "README") || strings.HasPrefix(base, ".") ||
			strings.HasSuffix(item, "doc") || strings.HasSuffix(item, "prescribed") {
			continue
		}
		items = append(items, item)
	}
	userNl, _ := filepath.Glob(filepath.Join(testDir, "*user_nl*"))
	items = append(items, userNl...)

	for _, item := range items {
		counterpartDir := baselineDir
		if strings.HasSuffix(filepath.Dir(item), "CaseDocs") {
			counterpartDir = baselineCasedocs
		}
		counterpart := filepath.Join(counterpartDir, filepath.Base(item))

		if _, err := os.Stat(counterpart); os.IsNotExist(err) {
			s.logOutput(test, fmt.Sprintf("Missing baseline namelist '%s'\n", counterpart))
			hasFails = true
			continue
		}

		tool := simpleCompare
		if isNamelistFile(item) {
			tool = compareNl
		}
		res := s.run.Run(fmt.Sprintf("%s %s %s -c %s 2>&1", tool, counterpart, item, test), "")
		if !res.Ok() {
			hasFails = true
			s.logOutput(test, res.Stdout+"\n")
		}
	}

	if hasFails {
		s.mu.Lock()
		s.nlProblems[test] = true
		s.mu.Unlock()
	}
}

func (s *Scheduler) generateNamelists(test, testDir, casedocDir, baselineDir, baselineCasedocs string) bool {
	if err := os.MkdirAll(baselineDir, 0o775); err != nil {
		s.logOutput(test, fmt.Sprintf("Cannot create baseline directory: %v\n", err))
		return false
	}

	if _, err := os.Stat(baselineCasedocs); err == nil {
		if err := os.RemoveAll(baselineCasedocs); err != nil {
			s.logOutput(test, fmt.Sprintf("Cannot replace baseline CaseDocs: %v\n", err))
			return false
		}
	}
	if err := copyTree(casedocDir, baselineCasedocs); err != nil {
		s.logOutput(test, fmt.Sprintf("Cannot copy CaseDocs to baseline: %v\n", err))
		return false
	}

	userNl, _ := filepath.Glob(filepath.Join(testDir, "user_nl*"))
	for _, item := range userNl {
		if err := copyFile(item, filepath.Join(baselineDir, filepath.Base(item))); err != nil {
			s.logOutput(test, fmt.Sprintf("Cannot copy '%s' to baseline: %v\n", item, err))
			return false
		}
	}
	return true
}

// buildPhase runs the staged build script in place.
func (s *Scheduler) buildPhase(test string) bool {
	return s.runPhaseCommand(test, "./"+s.caseID(test)+".test_build", types.PhaseBuild, s.testDir(test))
}

// runPhase runs the test directly, or submits it to the batch system.
func (s *Scheduler) runPhase(test string) bool {
	caseID := s.caseID(test)
	if s.opts.NoBatch {
		return s.runPhaseCommand(test, "./"+caseID+".test", types.PhaseRun, s.testDir(test))
	}
	return s.runPhaseCommand(test, "./"+caseID+".submit", types.PhaseRun, s.testDir(test))
}

// isNamelistFile reports whether a file should be compared with the namelist
// differ rather than the plain-text differ.
func isNamelistFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "user_nl") || strings.HasSuffix(base, "_in") || strings.HasSuffix(base, ".nml")
}

func boolUpper(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// copyFile copies src to dst, preserving the source's mode bits.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyTree deep-copies the directory src to dst.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target)
	})
}
