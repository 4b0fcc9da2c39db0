package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var classifyText bool

var classifyCmd = &cobra.Command{
	Use:   "classify <path-or-text>",
	Short: "Classify a file's chamber, or free text's context tags",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().BoolVarP(&classifyText, "text", "t", false, "treat the argument as query text, not a path")
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	arg := strings.Join(args, " ")
	if classifyText {
		tags := a.doors.ClassifyText(arg)
		if len(tags) == 0 {
			fmt.Println("no context tags")
			return nil
		}
		fmt.Println(strings.Join(tags, ", "))
		return nil
	}

	chamber := a.chambers.Classify(arg)
	fmt.Printf("%s: %s\n", arg, chamber)

	if data, err := os.ReadFile(arg); err == nil {
		if tags := a.doors.ClassifyText(string(data)); len(tags) > 0 {
			fmt.Printf("context: %s\n", strings.Join(tags, ", "))
		}
	}
	return nil
}
