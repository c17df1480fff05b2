package experiment

import "github.com/pagesplit/pagesplit/internal/store"

// MutationKind names the page mutation a variant performs when applied.
// The client script dispatches on this tag rather than guessing from
// selectors, so the set of supported mutations is explicit.
type MutationKind string

const (
	// MutationText replaces the matched elements' text content.
	MutationText MutationKind = "text"
	// MutationClass swaps the variant class set on the matched elements,
	// removing the sibling variants' classes first.
	MutationClass MutationKind = "class"
	// MutationAttribute replaces the placeholder attribute value.
	MutationAttribute MutationKind = "attribute"
	// MutationNone marks experiment types the applicator ignores.
	MutationNone MutationKind = "none"
)

// MutationFor maps an experiment type to its page mutation. Unknown types
// map to MutationNone: the applicator treats them as no-ops, not errors.
func MutationFor(t store.ExperimentType) MutationKind {
	switch t {
	case store.TypeButtonText, store.TypeHeadlineText, store.TypeOfferText, store.TypeSocialProof:
		return MutationText
	case store.TypeButtonColor, store.TypeHeadlineSize, store.TypePageLayout:
		return MutationClass
	case store.TypeFormPlaceholder:
		return MutationAttribute
	default:
		return MutationNone
	}
}

// KnownType reports whether t is one of the supported experiment types.
func KnownType(t store.ExperimentType) bool {
	return MutationFor(t) != MutationNone
}
