// Package extract turns a rendered listing page into a structured property
// result. Every field is resolved through an ordered fallback chain; an
// extraction miss degrades that single field to the unknown sentinel and is
// never surfaced as an error.
package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/tmaeda/urwatch/models"
	"github.com/tmaeda/urwatch/renderer"
)

// Extractor applies a RuleSet to rendered pages.
type Extractor struct {
	rules      RuleSet
	classifier Classifier
}

// New builds an extractor. Zero-value classifier fields disable the
// complete-row heuristic; use DefaultClassifier for the site's convention.
func New(rules RuleSet, classifier Classifier) *Extractor {
	return &Extractor{rules: rules, classifier: classifier}
}

// Extract resolves a full property result from page. It never fails: any
// unresolvable field falls through to predefined data or the unknown
// sentinel, and a page with no recognizable unit rows simply yields zero
// units.
func (e *Extractor) Extract(page renderer.Page, target models.Target) models.PropertyResult {
	result := models.PropertyResult{
		URL:    target.URL,
		Status: models.StatusSuccess,
	}

	result.Name = e.extractName(page, target)
	if target.Name != "" {
		result.Title = result.Name
	} else {
		result.Title = page.Title()
	}

	rows := e.discoverRows(page)
	for _, row := range rows {
		unit, ok := e.extractUnit(row)
		if !ok {
			continue
		}
		result.Units = append(result.Units, unit)
	}
	result.UnitCount = len(result.Units)

	e.extractDetails(page, target, &result)
	return result
}

func (e *Extractor) extractName(page renderer.Page, target models.Target) string {
	if name, ok := resolve(e.rules.Name, page); ok {
		return name
	}

	// Page title minus the site's boilerplate suffix.
	if title := strings.TrimSpace(strings.ReplaceAll(page.Title(), titleSuffix, "")); title != "" {
		return title
	}

	if target.Name != "" {
		return target.Name
	}
	return models.Unknown
}

// discoverRows walks the row selector chain and returns the rows produced
// by the first selector that yields at least one qualifying row.
func (e *Extractor) discoverRows(page renderer.Scope) []renderer.Element {
	for _, selector := range e.rules.RowSelectors {
		rows := page.QueryAll(selector)
		if len(rows) == 0 {
			continue
		}

		qualified := make([]renderer.Element, 0, len(rows))
		for _, row := range rows {
			if e.qualifies(row.Text()) {
				qualified = append(qualified, row)
			}
		}
		if len(qualified) > 0 {
			slog.Debug("unit rows found",
				slog.String("selector", selector),
				slog.Int("rows", len(qualified)),
			)
			return qualified
		}
	}
	return nil
}

// qualifies keeps rows that look like unit listings: no header labels, a
// price-shaped value, and a room identifier or layout code.
func (e *Extractor) qualifies(text string) bool {
	for _, label := range e.rules.HeaderLabels {
		if strings.Contains(text, label) {
			return false
		}
	}
	if !rentShape.MatchString(text) {
		return false
	}
	return roomIDShape.MatchString(text) || layoutShape.MatchString(text)
}

// extractUnit resolves one unit row. A unit is emitted only when the row is
// classified vacant and both layout and rent resolved; partial rows are
// dropped rather than padded with sentinels.
func (e *Extractor) extractUnit(row renderer.Element) (models.UnitRecord, bool) {
	layout, layoutOK := resolve(e.rules.Layout, row)
	rent, rentOK := resolve(e.rules.Rent, row)

	if !e.classifier.IsVacant(row, rentOK, layoutOK) {
		return models.UnitRecord{}, false
	}
	if !layoutOK || !rentOK {
		return models.UnitRecord{}, false
	}

	unit := models.UnitRecord{
		Layout:    layout,
		Rent:      rent,
		FloorArea: models.Unknown,
		Floor:     models.Unknown,
	}
	if area, ok := resolve(e.rules.Area, row); ok {
		unit.FloorArea = area
	}
	if floor, ok := resolve(e.rules.Floor, row); ok {
		unit.Floor = floor
	}
	return unit, true
}

// extractDetails fills the four property detail fields. Callers supplying
// all four skip scraping entirely; otherwise each field falls back
// independently: structural queries, page-text pattern, predefined, unknown.
func (e *Extractor) extractDetails(page renderer.Page, target models.Target, result *models.PropertyResult) {
	if target.HasAllDetails() {
		result.Transportation, result.TransportationSource = target.Transportation, models.SourcePredefined
		result.Address, result.AddressSource = target.Address, models.SourcePredefined
		result.Phone, result.PhoneSource = target.Phone, models.SourcePredefined
		result.ManagementYears, result.ManagementYearsSource = target.ManagementYears, models.SourcePredefined
		return
	}

	result.Transportation, result.TransportationSource = resolveDetail(e.rules.Transportation, page, target.Transportation)
	result.Address, result.AddressSource = resolveDetail(e.rules.Address, page, target.Address)
	result.Phone, result.PhoneSource = resolveDetail(e.rules.Phone, page, target.Phone)
	result.ManagementYears, result.ManagementYearsSource = resolveDetail(e.rules.ManagementYears, page, target.ManagementYears)
}

func resolveDetail(rule FieldRule, page renderer.Scope, predefined string) (string, models.Provenance) {
	if value, ok := resolve(rule, page); ok {
		return value, models.SourceScraped
	}
	if predefined != "" {
		return predefined, models.SourcePredefined
	}
	return models.Unknown, models.SourceUnknown
}

// resolve runs one field rule against a scope: structural queries in order,
// then the full-text pattern fallback.
func resolve(rule FieldRule, scope renderer.Scope) (string, bool) {
	for _, q := range rule.Queries {
		if value, ok := tryQuery(rule, q, scope); ok {
			return value, true
		}
	}

	if rule.Capture == nil {
		return "", false
	}
	return captureFromText(rule.Capture, scope.Text())
}

func tryQuery(rule FieldRule, q Query, scope renderer.Scope) (string, bool) {
	for _, el := range scope.QueryAll(q.Selector) {
		if q.Label != "" && !strings.Contains(el.Text(), q.Label) {
			continue
		}
		if q.Sibling {
			next, ok := el.Next()
			if !ok {
				continue
			}
			el = next
		}

		text := strings.TrimSpace(el.Text())
		if text == "" {
			continue
		}
		if rule.Shape != nil && !rule.Shape(text) {
			continue
		}
		if rule.Submatch && rule.Capture != nil {
			if m := rule.Capture.FindString(text); m != "" {
				return m, true
			}
			continue
		}
		return text, true
	}
	return "", false
}

func captureFromText(capture *regexp.Regexp, text string) (string, bool) {
	groups := capture.FindStringSubmatch(text)
	if groups == nil {
		return "", false
	}
	value := groups[0]
	if len(groups) > 1 && groups[1] != "" {
		value = groups[1]
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
