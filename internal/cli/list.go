package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/store"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and headline numbers.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (draft, running, paused, completed)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		experiments, err := s.ListExperiments(ctx, store.ExperimentStatus(listStatus))
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with:")
			fmt.Println("  pagesplit create cta-text --type button-text --selector \".cta\" --variants \"Buy Now,Get the Book\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tSTATUS\tVARIANTS\tVISITORS\tCONVERSIONS\tCREATED")

		for _, exp := range experiments {
			counts, err := s.GetVariantCounts(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to get counts for %s: %w", exp.Name, err)
			}

			totalVisitors := 0
			totalConversions := 0
			for _, c := range counts {
				totalVisitors += c.Visitors
				totalConversions += c.Conversions
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				exp.Name,
				exp.Type,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				formatNumber(totalVisitors),
				formatNumber(totalConversions),
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}
