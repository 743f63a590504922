package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bartgol/createtest/internal/config"
	"github.com/bartgol/createtest/internal/display"
	"github.com/bartgol/createtest/internal/runner"
	"github.com/bartgol/createtest/internal/sched"
	"github.com/bartgol/createtest/internal/testspec"
)

var (
	testRoot      string
	testID        string
	baselineRoot  string
	baselineName  string
	compare       bool
	generate      bool
	clean         bool
	noRun         bool
	noBuild       bool
	noBatch       bool
	namelistsOnly bool
	project       string
	parallelJobs  int
	noColor       bool
)

func init() {
	rootCmd.Flags().StringVar(&testRoot, "test-root", ".", "directory the case directories are created in")
	rootCmd.Flags().StringVar(&testID, "test-id", "", "unique id for this batch (default: a timestamp)")
	rootCmd.Flags().StringVar(&baselineRoot, "baseline-root", "", "root of the baseline tree")
	rootCmd.Flags().StringVarP(&baselineName, "baseline-name", "b", "", "baseline name under the baseline root")
	rootCmd.Flags().BoolVarP(&compare, "compare", "c", false, "compare namelists against the baseline")
	rootCmd.Flags().BoolVarP(&generate, "generate", "g", false, "generate the baseline from this run")
	rootCmd.Flags().BoolVar(&clean, "clean", false, "ask the run scripts to clean up after themselves")
	rootCmd.Flags().BoolVar(&noRun, "no-run", false, "stop after the build phase")
	rootCmd.Flags().BoolVar(&noBuild, "no-build", false, "skip the build phase")
	rootCmd.Flags().BoolVar(&noBatch, "no-batch", false, "run tests directly instead of submitting to the batch system")
	rootCmd.Flags().BoolVar(&namelistsOnly, "namelists-only", false, "stop after the namelist phase")
	rootCmd.Flags().StringVar(&project, "project", "", "project/account to bill the runs to")
	rootCmd.Flags().IntVarP(&parallelJobs, "parallel-jobs", "j", 1, "number of consumer threads executing phase work")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func runCreateTest(cmd *cobra.Command, args []string) error {
	if compare && generate {
		return fmt.Errorf("--compare and --generate are mutually exclusive")
	}
	if (compare || generate) && baselineName == "" {
		return fmt.Errorf("--compare and --generate require --baseline-name")
	}
	if (compare || generate) && baselineRoot == "" {
		return fmt.Errorf("--compare and --generate require --baseline-root")
	}

	// Every test name must parse before any case directory is touched.
	for _, name := range args {
		if _, err := testspec.Parse(name); err != nil {
			return err
		}
	}

	if testID == "" {
		testID = time.Now().Format("20060102_150405")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	disp := display.NewWithOptions(noColor)

	s, err := sched.New(sched.Options{
		TestNames:     args,
		NoRun:         noRun,
		NoBuild:       noBuild,
		NoBatch:       noBatch,
		TestRoot:      testRoot,
		TestID:        testID,
		BaselineRoot:  baselineRoot,
		BaselineName:  baselineName,
		Clean:         clean,
		Compare:       compare,
		Generate:      generate,
		NamelistsOnly: namelistsOnly,
		Project:       project,
		ParallelJobs:  parallelJobs,
	}, cfg, runner.Local{}, disp)
	if err != nil {
		return err
	}

	if !s.Run() {
		return fmt.Errorf("one or more tests did not pass")
	}
	return nil
}
