package stats

import "github.com/pagesplit/pagesplit/internal/store"

// Result is the aggregated view of one experiment.
type Result struct {
	Variants         []VariantResult
	TotalVisitors    int
	TotalConversions int
	ConversionRate   float64 // percent
	LeadingID        string  // variant with the highest conversion rate
	ConfidenceLevel  float64 // leading variant vs control, 0-1
	Confident        bool    // ConfidenceLevel >= the experiment's threshold
	WinnerID         string  // empty unless a variant clears the threshold
}

// VariantResult contains derived counters for a single variant. Rates and
// interval bounds are percentages.
type VariantResult struct {
	ID          string
	Name        string
	IsControl   bool
	Visitors    int
	Conversions int
	Rate        float64
	CILower     float64
	CIUpper     float64
	// Confidence that this variant beats the control (0-1). 0.5 for the
	// control itself.
	Confidence float64
	// Improvement is the relative lift over the control's rate, percent.
	Improvement float64
}

// Analyze derives per-variant and experiment-level metrics from the
// distinct-visitor counts the store aggregates out of the raw event log.
func Analyze(exp *store.Experiment, counts []store.VariantCounts) *Result {
	countsByID := make(map[string]store.VariantCounts, len(counts))
	for _, c := range counts {
		countsByID[c.VariantID] = c
	}

	control := exp.Control()

	result := &Result{Variants: make([]VariantResult, len(exp.Variants))}

	var controlRate float64
	var controlCounts store.VariantCounts
	if control != nil {
		controlCounts = countsByID[control.ID]
		if controlCounts.Visitors > 0 {
			controlRate = 100 * float64(controlCounts.Conversions) / float64(controlCounts.Visitors)
		}
	}

	maxRate := -1.0
	for i, v := range exp.Variants {
		c := countsByID[v.ID] // zero-valued when the variant has no events

		rate := 0.0
		if c.Visitors > 0 {
			rate = 100 * float64(c.Conversions) / float64(c.Visitors)
		}

		ciLower, ciUpper := WilsonInterval(c.Conversions, c.Visitors, 0.95)

		vr := VariantResult{
			ID:          v.ID,
			Name:        v.Name,
			IsControl:   control != nil && v.ID == control.ID,
			Visitors:    c.Visitors,
			Conversions: c.Conversions,
			Rate:        rate,
			CILower:     ciLower * 100,
			CIUpper:     ciUpper * 100,
			Confidence:  0.5,
		}

		if control != nil && v.ID != control.ID {
			vr.Confidence = SignificanceTest(
				c.Conversions, c.Visitors,
				controlCounts.Conversions, controlCounts.Visitors,
			)
			if controlRate > 0 {
				vr.Improvement = 100 * (rate - controlRate) / controlRate
			}
		}

		result.Variants[i] = vr
		result.TotalVisitors += c.Visitors
		result.TotalConversions += c.Conversions

		if rate > maxRate {
			maxRate = rate
			result.LeadingID = v.ID
		}
	}

	if result.TotalVisitors > 0 {
		result.ConversionRate = 100 * float64(result.TotalConversions) / float64(result.TotalVisitors)
	}

	// Confidence of the leading variant relative to the control. When the
	// control itself leads, report how confident we are that it holds off
	// the best challenger.
	for _, vr := range result.Variants {
		if vr.ID != result.LeadingID {
			continue
		}
		if vr.IsControl {
			if best := bestChallenger(result.Variants); best != nil {
				result.ConfidenceLevel = 1 - best.Confidence
			}
		} else {
			result.ConfidenceLevel = vr.Confidence
		}
	}
	result.Confident = result.ConfidenceLevel >= exp.Significance

	result.WinnerID = pickWinner(exp, result.Variants)

	return result
}

// pickWinner applies the completion policy: the highest-rate challenger
// whose confidence against the control meets the experiment's threshold.
// When no challenger qualifies there is no winner.
func pickWinner(exp *store.Experiment, variants []VariantResult) string {
	winnerID := ""
	winnerRate := -1.0
	for _, vr := range variants {
		if vr.IsControl {
			continue
		}
		if vr.Confidence >= exp.Significance && vr.Rate > winnerRate {
			winnerID = vr.ID
			winnerRate = vr.Rate
		}
	}
	return winnerID
}

func bestChallenger(variants []VariantResult) *VariantResult {
	var best *VariantResult
	for i := range variants {
		if variants[i].IsControl {
			continue
		}
		if best == nil || variants[i].Rate > best.Rate {
			best = &variants[i]
		}
	}
	return best
}
