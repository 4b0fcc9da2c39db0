package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	maintainDryRun bool
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the maintenance batch once",
	RunE:  runMaintain,
}

func init() {
	maintainCmd.Flags().BoolVar(&maintainDryRun, "dry-run", false, "show what promotion and crystallization would do")
}

func runMaintain(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if maintainDryRun {
		promote, err := a.chambers.Promote(cmd.Context(), true)
		if err != nil {
			return err
		}
		crystallize, err := a.chambers.Crystallize(cmd.Context(), true)
		if err != nil {
			return err
		}
		fmt.Printf("would promote %d:\n", promote.Count)
		for _, d := range promote.Details {
			fmt.Printf("  %s -> %s\n", d.Path, d.Dest)
		}
		fmt.Printf("would crystallize %d:\n", crystallize.Count)
		for _, d := range crystallize.Details {
			fmt.Printf("  %s -> %s\n", d.Path, d.Dest)
		}
		return nil
	}

	report, err := a.maintain.Run(cmd.Context())
	if err != nil && report == nil {
		return err
	}
	for _, step := range report.Steps {
		if step.Err != "" {
			fmt.Printf("%-12s FAILED: %s\n", step.Name, step.Err)
		} else {
			fmt.Printf("%-12s %d\n", step.Name, step.Count)
		}
	}
	if report.Failed > 0 {
		fmt.Printf("%d step(s) failed\n", report.Failed)
	}
	return err
}
