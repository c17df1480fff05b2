package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/store"
)

func init() {
	rootCmd.AddCommand(newDeleteCmd())
}

func newDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an experiment and all its data",
		Long: `Delete an experiment along with its variants, assignments, and events.

This is permanent. Use --force to skip the confirmation prompt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				exp, err := s.GetExperiment(ctx, name)
				if err != nil {
					return fmt.Errorf("experiment '%s' not found", name)
				}

				if !force {
					prompt := promptui.Prompt{
						Label:     fmt.Sprintf("Delete experiment %q and all its data", name),
						IsConfirm: true,
					}
					if _, err := prompt.Run(); err != nil {
						if err == promptui.ErrInterrupt {
							os.Exit(0)
						}
						fmt.Println("Aborted.")
						return nil
					}
				}

				if err := s.DeleteExperiment(ctx, exp.ID); err != nil {
					return fmt.Errorf("failed to delete experiment: %w", err)
				}

				fmt.Printf("Deleted experiment '%s'.\n", name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}
