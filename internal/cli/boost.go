package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	boostLineStart int
	boostLineEnd   int
)

var boostCmd = &cobra.Command{
	Use:   "boost <path> <amount>",
	Short: "Adjust a unit's explicit importance",
	Args:  cobra.ExactArgs(2),
	RunE:  runBoost,
}

func init() {
	boostCmd.Flags().IntVar(&boostLineStart, "start", 0, "line range start (0 = whole file)")
	boostCmd.Flags().IntVar(&boostLineEnd, "end", 0, "line range end")
}

func runBoost(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", args[1], err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.gravity.Boost(args[0], boostLineStart, boostLineEnd, amount); err != nil {
		return err
	}
	fmt.Printf("boosted %s by %+.2f\n", args[0], amount)
	return nil
}
