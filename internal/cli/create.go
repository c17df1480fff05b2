package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/experiment"
	"github.com/pagesplit/pagesplit/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		expType      string
		description  string
		variants     string
		contents     string
		classes      string
		weights      string
		controlIndex int
		selector     string
		element      string
		goal         string
		trafficSplit float64
		significance float64
		start        bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new experiment with the specified name and variants.

The experiment is created in draft status; run 'pagesplit start <name>'
(or pass --start) once it is ready to take traffic.

Examples:
  pagesplit create cta-text --type button-text --selector ".cta" --variants "Buy Now,Get the Book"
  pagesplit create cta-color --type button-color --selector ".cta" \
    --variants "blue,orange" --classes "btn-blue,btn-orange" --weights "70,30"
  pagesplit create headline --type headline-text --selector "h1" \
    --variants "Ship Faster,Build Better" --start`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			variantNames := splitTrim(variants)
			if len(variantNames) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variants \"A,B\"")
			}

			contentList := splitTrim(contents)
			classList := splitTrim(classes)

			weightList, err := parseWeights(weights, len(variantNames))
			if err != nil {
				return err
			}
			if controlIndex < 0 || controlIndex >= len(variantNames) {
				return fmt.Errorf("invalid control index: %d", controlIndex)
			}

			def := experiment.Definition{
				Name:           name,
				Description:    description,
				Type:           store.ExperimentType(expType),
				TrafficSplit:   trafficSplit,
				TargetElement:  element,
				TargetSelector: selector,
				GoalType:       goal,
				Significance:   significance,
			}
			for i, vn := range variantNames {
				vd := experiment.VariantDefinition{
					Name:      vn,
					Content:   vn,
					IsControl: i == controlIndex,
				}
				if i < len(contentList) {
					vd.Content = contentList[i]
				}
				if i < len(classList) {
					vd.CSSClass = classList[i]
				}
				if weightList != nil {
					vd.Weight = weightList[i]
				}
				def.Variants = append(def.Variants, vd)
			}

			return withService(func(_ *store.SQLiteStore, svc *experiment.Service) error {
				ctx := context.Background()

				exp, err := svc.CreateExperiment(ctx, def)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (%s) with %d variants:\n", exp.Name, exp.Type, len(exp.Variants))
				for i, v := range exp.Variants {
					marker := ""
					if v.IsControl {
						marker = " (control)"
					}
					if v.Weight > 0 {
						fmt.Printf("  %d: %s%s  %.0f%%\n", i, v.Name, marker, v.Weight)
					} else {
						fmt.Printf("  %d: %s%s\n", i, v.Name, marker)
					}
				}
				if selector != "" {
					fmt.Printf("  Selector: %s\n", selector)
				}

				if start {
					if _, err := svc.Transition(ctx, exp.ID, store.StatusRunning); err != nil {
						return fmt.Errorf("created but failed to start: %w", err)
					}
					fmt.Println("Experiment is running.")
				} else {
					fmt.Printf("\nStart it with: pagesplit start %s\n", exp.Name)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&expType, "type", "t", "headline-text", "experiment type (button-text, button-color, headline-text, headline-size, offer-text, form-placeholder, page-layout, social-proof)")
	cmd.Flags().StringVar(&description, "description", "", "experiment description")
	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variant names (required)")
	cmd.Flags().StringVar(&contents, "contents", "", "comma-separated variant contents (defaults to names)")
	cmd.Flags().StringVar(&classes, "classes", "", "comma-separated variant CSS classes (for style experiments)")
	cmd.Flags().StringVarP(&weights, "weights", "w", "", "comma-separated traffic weights summing to 100 (default equal split)")
	cmd.Flags().IntVar(&controlIndex, "control", 0, "index of the control variant")
	cmd.Flags().StringVarP(&selector, "selector", "s", "", "CSS selector for the target element")
	cmd.Flags().StringVar(&element, "element", "", "human-readable target element label")
	cmd.Flags().StringVarP(&goal, "goal", "g", "click", "conversion goal type")
	cmd.Flags().Float64Var(&trafficSplit, "split", 100, "share of visitors enrolled, 0-100")
	cmd.Flags().Float64Var(&significance, "significance", 0, "winner confidence threshold, 0-1 (default 0.95)")
	cmd.Flags().BoolVar(&start, "start", false, "start the experiment immediately")
	cmd.MarkFlagRequired("variants")

	return cmd
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseWeights(s string, variantCount int) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := splitTrim(s)
	if len(parts) != variantCount {
		return nil, fmt.Errorf("got %d weights for %d variants", len(parts), variantCount)
	}
	weights := make([]float64, len(parts))
	for i, p := range parts {
		w, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		weights[i] = w
	}
	return weights, nil
}
