package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/stats"
	"github.com/pagesplit/pagesplit/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <name>",
	Short: "Show detailed results for an experiment",
	Long:  `Show detailed results including conversion rates, confidence intervals, and lift over the control.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := s.GetExperiment(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", name)
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		counts, err := s.GetVariantCounts(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to get counts: %w", err)
		}

		result := stats.Analyze(exp, counts)

		fmt.Printf("EXPERIMENT: %s\n", exp.Name)
		fmt.Printf("TYPE: %s\n", exp.Type)
		fmt.Printf("STATUS: %s\n", exp.Status)
		if exp.GoalType != "" {
			fmt.Printf("GOAL: %s\n", exp.GoalType)
		}
		fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		fmt.Println()

		fmt.Println("VARIANT           VISITORS  CONVERSIONS  RATE     LIFT     95% CI")
		fmt.Println(strings.Repeat("-", 70))

		winner := exp.Winner()
		for _, v := range result.Variants {
			indicator := ""
			if winner != nil && v.ID == winner.ID {
				indicator = " <- WINNER"
			} else if v.ID == result.LeadingID && len(result.Variants) > 1 {
				indicator = " <- LEADING"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower, v.CIUpper)
			if v.Visitors == 0 {
				ciStr = "N/A"
			}

			lift := "-"
			if !v.IsControl && v.Improvement != 0 {
				lift = fmt.Sprintf("%+.1f%%", v.Improvement)
			}

			vname := v.Name
			if v.IsControl {
				vname += " *"
			}
			if len(vname) > 16 {
				vname = vname[:13] + "..."
			}

			fmt.Printf("%-16s  %-8d  %-11d  %-7s  %-7s  %s%s\n",
				vname,
				v.Visitors,
				v.Conversions,
				formatPercent(v.Rate),
				lift,
				ciStr,
				indicator,
			)
		}

		fmt.Println()
		fmt.Println("* control")

		if len(result.Variants) > 1 {
			leadingName := ""
			for _, v := range result.Variants {
				if v.ID == result.LeadingID {
					leadingName = v.Name
				}
			}
			confPct := result.ConfidenceLevel * 100

			switch {
			case result.Confident:
				fmt.Printf("Statistical significance: %.1f%% confident \"%s\" is the winner\n", confPct, leadingName)
			case confPct >= 90:
				fmt.Printf("Statistical significance: %.1f%% confident \"%s\" beats control (not yet significant)\n", confPct, leadingName)
			default:
				fmt.Println("Statistical significance: Not enough data to determine a winner")
			}
		}

		return nil
	})
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate)
}
