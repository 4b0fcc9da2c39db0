package cli

import (
	"fmt"
	"time"

	"github.com/lazypower/palace/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chamber distribution and mirror coverage",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	chamberStatus, err := a.chambers.Status()
	if err != nil {
		return err
	}
	fmt.Printf("records: %d\n", chamberStatus.TotalRecords)
	for _, tier := range []string{store.Tier1, store.Tier2, store.Tier3} {
		fmt.Printf("  %s: %d\n", tier, chamberStatus.Distribution[tier])
	}
	if len(chamberStatus.RecentTransitions) > 0 {
		fmt.Println("recent transitions:")
		for _, t := range chamberStatus.RecentTransitions {
			fmt.Printf("  %s -> %s (%s)\n", t.Path, t.Chamber,
				time.UnixMilli(t.PromotedAt).Format("2006-01-02 15:04"))
		}
	}

	stats, err := a.mirrors.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("mirror events: %d (%d fully mirrored)\n", stats.TotalEvents, stats.FullyMirroredCount)
	for _, detail := range stats.PartialEventDetails {
		fmt.Printf("  partial %s\n", detail)
	}
	return nil
}
