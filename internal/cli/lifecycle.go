package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/experiment"
	"github.com/pagesplit/pagesplit/internal/store"
)

func init() {
	rootCmd.AddCommand(
		newTransitionCmd("start", "Start a draft experiment",
			"Move a draft experiment to running. Requires at least one variant and a target selector.",
			store.StatusRunning),
		newTransitionCmd("pause", "Pause a running experiment",
			"Pause a running experiment. Existing assignments are honored; no new visitors are enrolled.",
			store.StatusPaused),
		newTransitionCmd("resume", "Resume a paused experiment",
			"Resume a paused experiment. Visitors assigned before the pause keep their variant.",
			store.StatusRunning),
		newCompleteCmd(),
	)
}

func newTransitionCmd(use, short, long string, to store.ExperimentStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(args[0], to, func(exp *store.Experiment) {
				fmt.Printf("Experiment '%s' is now %s.\n", exp.Name, exp.Status)
			})
		},
	}
}

func newCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <name>",
		Short: "Complete an experiment and compute the winner",
		Long: `Complete a running or paused experiment.

The winner is derived from the event log: the best-performing variant that
clears the experiment's significance threshold against the control. After
completion the experiment is read-only and every visitor is served the
winner (or the control, when no variant was significant).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(args[0], store.StatusCompleted, func(exp *store.Experiment) {
				fmt.Printf("Experiment '%s' completed.\n", exp.Name)
				if w := exp.Winner(); w != nil {
					fmt.Printf("Winner: %s\n", w.Name)
					fmt.Println("\nRun 'pagesplit snippet' to generate static winner-only markup.")
				} else {
					fmt.Println("No variant reached statistical significance; no winner was flagged.")
				}
			})
		},
	}
}

func transition(name string, to store.ExperimentStatus, report func(*store.Experiment)) error {
	return withService(func(s *store.SQLiteStore, svc *experiment.Service) error {
		ctx := context.Background()

		exp, err := s.GetExperiment(ctx, name)
		if err != nil {
			return fmt.Errorf("experiment '%s' not found", name)
		}

		updated, err := svc.Transition(ctx, exp.ID, to)
		if err != nil {
			return err
		}

		report(updated)
		return nil
	})
}
