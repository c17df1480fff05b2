package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/snippets"
	"github.com/pagesplit/pagesplit/internal/store"
)

func init() {
	rootCmd.AddCommand(newSnippetCmd())
}

func newSnippetCmd() *cobra.Command {
	var (
		framework string
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "snippet <name>",
		Short: "Generate integration code for an experiment",
		Long: `Generate the embed code for an experiment.

For a completed experiment with a winner, this emits static winner-only
markup with no testing logic.

Examples:
  pagesplit snippet cta-color
  pagesplit snippet cta-color --framework react --server https://split.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				exp, err := s.GetExperiment(ctx, name)
				if err != nil {
					return fmt.Errorf("experiment '%s' not found", name)
				}

				fw := snippets.Framework(framework)
				if framework == "" {
					fw, err = promptFramework()
					if err != nil {
						return err
					}
				}

				files, err := snippets.Generate(fw, snippets.Config{
					Experiment: exp,
					ServerURL:  serverURL,
				})
				if err != nil {
					return fmt.Errorf("failed to generate snippet: %w", err)
				}

				for _, f := range files {
					fmt.Printf("--- %s ---\n", f.Filename)
					fmt.Println(f.Content)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&framework, "framework", "F", "", "target framework (html, react, vue)")
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "public URL of the pagesplit server")
	return cmd
}

func promptFramework() (snippets.Framework, error) {
	frameworks := []struct {
		label string
		value snippets.Framework
	}{
		{"HTML (vanilla JavaScript)", snippets.FrameworkHTML},
		{"React / Next.js", snippets.FrameworkReact},
		{"Vue", snippets.FrameworkVue},
	}

	labels := make([]string, len(frameworks))
	for i, f := range frameworks {
		labels[i] = f.label
	}

	prompt := promptui.Select{
		Label: "Your framework",
		Items: labels,
		Size:  len(labels),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}

	return frameworks[idx].value, nil
}
