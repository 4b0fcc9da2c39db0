package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var supersedeCmd = &cobra.Command{
	Use:   "supersede <old-path> <new-path>",
	Short: "Mark a unit as replaced by a newer one",
	Args:  cobra.ExactArgs(2),
	RunE:  runSupersede,
}

func runSupersede(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.gravity.Supersede(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s superseded by %s\n", args[0], args[1])
	return nil
}
