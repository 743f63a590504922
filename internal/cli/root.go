package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version is set by goreleaser via ldflags
	Version = "dev"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "createtest <test-name>...",
	Short: "Drive a batch of climate-model tests through build and run",
	Long: `createtest drives each given test through case creation, XML
configuration, setup, optional namelist comparison, build and run, with a
CPU budget bounding how much phase work runs in parallel.

Test names have the form TESTCASE[_opt..].grid.compset.machine_compiler[.mods]:

  createtest ERS.f19_g16.B1850.yellowstone_intel

Baselines:
  createtest -g -b master --baseline-root <dir> ...   generate baselines
  createtest -c -b master --baseline-root <dir> ...   compare against baselines

Each test gets a case directory <test-root>/<name>[.C|.G].<test-id> with a
TestStatus file that downstream monitoring tools consume, plus a
TestStatus.log with the full diagnostics of every phase.`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runCreateTest,
	Version: Version,
	// The scheduler prints its own failure summary.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Println("Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .createtest/config.yaml)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("createtest version %s\n", Version))
}
