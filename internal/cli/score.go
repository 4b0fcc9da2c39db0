package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	scoreLineStart int
	scoreLineEnd   int
)

var scoreCmd = &cobra.Command{
	Use:   "score <path>",
	Short: "Show the gravity score for a tracked unit",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().IntVar(&scoreLineStart, "start", 0, "line range start (0 = whole file)")
	scoreCmd.Flags().IntVar(&scoreLineEnd, "end", 0, "line range end")
}

func runScore(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.gravity.ScoreFor(args[0], scoreLineStart, scoreLineEnd)
	if err != nil {
		return err
	}
	if !s.Exists {
		fmt.Printf("%s: not tracked\n", args[0])
		return nil
	}

	fmt.Printf("%s\n", args[0])
	fmt.Printf("  accesses:       %d\n", s.AccessCount)
	fmt.Printf("  references:     %d\n", s.ReferenceCount)
	fmt.Printf("  explicit:       %.2f\n", s.ExplicitImportance)
	fmt.Printf("  days since w/a: %.1f / %.1f\n", s.DaysSinceWrite, s.DaysSinceAccess)
	fmt.Printf("  effective mass: %.3f\n", s.EffectiveMass)
	fmt.Printf("  modifier:       %.3f\n", s.Modifier)
	fmt.Printf("  chamber:        %s\n", s.Chamber)
	if s.SupersededBy != "" {
		fmt.Printf("  superseded by:  %s\n", s.SupersededBy)
	}
	return nil
}
