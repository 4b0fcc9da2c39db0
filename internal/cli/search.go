package cli

import (
	"fmt"
	"strings"

	"github.com/lazypower/palace/internal/search"
	"github.com/spf13/cobra"
)

var (
	searchLimit      int
	searchBypass     bool
	searchChambers   []string
	searchSuperseded bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the corpus through the full ranking pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
	searchCmd.Flags().BoolVar(&searchBypass, "bypass", false, "trapdoor mode: skip context boosts")
	searchCmd.Flags().StringSliceVar(&searchChambers, "chambers", nil, "restrict to chambers (tier1,tier2,tier3)")
	searchCmd.Flags().BoolVar(&searchSuperseded, "superseded", false, "include superseded records")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	query := strings.Join(args, " ")
	resp, err := a.pipeline.Search(cmd.Context(), query, search.Options{
		Limit:             searchLimit,
		BypassContext:     searchBypass,
		Chambers:          searchChambers,
		IncludeSuperseded: searchSuperseded,
		RecordAccesses:    true,
	})
	if err != nil {
		return err
	}

	fmt.Printf("mode: %s", resp.Mode)
	if len(resp.ContextTags) > 0 {
		fmt.Printf("  context: %s", strings.Join(resp.ContextTags, ", "))
	}
	fmt.Println()
	for i, r := range resp.Results {
		fmt.Printf("%2d. %-50s %.3f [%s]\n", i+1, r.Path, r.FinalScore, r.Chamber)
		if r.Snippet != "" {
			fmt.Printf("    %s\n", r.Snippet)
		}
		for _, m := range r.Mirrors {
			if m.Path != r.Path {
				fmt.Printf("    ~ %s: %s\n", m.Granularity, m.Path)
			}
		}
	}
	if len(resp.Results) == 0 {
		fmt.Println("no results")
	}
	return nil
}
