package extract

import (
	"strings"

	"github.com/tmaeda/urwatch/renderer"
)

// Classifier decides whether a unit row represents an available unit.
//
// A detail affordance (link text or target pointing at a unit detail page)
// is always a positive signal. The complete-row heuristic — the site only
// renders full rent and layout data for available units — is an observed
// convention, not a guarantee, so it stays configurable.
type Classifier struct {
	// CompleteRowImpliesVacant treats a row with both a rent and a layout
	// value as vacant even without a detail affordance.
	CompleteRowImpliesVacant bool

	// DetailLinkTexts and DetailHrefFragments identify the affordance.
	DetailLinkTexts     []string
	DetailHrefFragments []string
}

// DefaultClassifier returns the classifier for UR listing pages.
func DefaultClassifier() Classifier {
	return Classifier{
		CompleteRowImpliesVacant: true,
		DetailLinkTexts:          []string{"詳細"},
		DetailHrefFragments:      []string{"room.html"},
	}
}

// IsVacant classifies one row. rentFound and layoutFound report whether the
// row yielded non-sentinel values for those fields.
func (c Classifier) IsVacant(row renderer.Scope, rentFound, layoutFound bool) bool {
	if c.hasDetailAffordance(row) {
		return true
	}
	return c.CompleteRowImpliesVacant && rentFound && layoutFound
}

func (c Classifier) hasDetailAffordance(row renderer.Scope) bool {
	for _, link := range row.QueryAll("a") {
		text := link.Text()
		for _, t := range c.DetailLinkTexts {
			if strings.Contains(text, t) {
				return true
			}
		}
		if href, ok := link.Attr("href"); ok {
			for _, frag := range c.DetailHrefFragments {
				if strings.Contains(href, frag) {
					return true
				}
			}
		}
	}
	return false
}
