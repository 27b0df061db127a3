package extract

import (
	"regexp"
	"strings"
)

// Predicate is a shape check confirming extracted text plausibly represents
// the field's semantic type before the value is accepted.
type Predicate func(s string) bool

// Matches builds a predicate from a pattern.
func Matches(re *regexp.Regexp) Predicate {
	return re.MatchString
}

// AnyOf accepts text passing at least one of the given predicates.
func AnyOf(preds ...Predicate) Predicate {
	return func(s string) bool {
		for _, p := range preds {
			if p(s) {
				return true
			}
		}
		return false
	}
}

// ContainsAny accepts text containing at least one of the substrings.
func ContainsAny(subs ...string) Predicate {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

// Query is one structural lookup attempt against a scope.
type Query struct {
	// Selector locates candidate elements.
	Selector string

	// Label, when set, keeps only candidates whose text contains it. Used
	// for definition-list and table lookups keyed by a label cell.
	Label string

	// Sibling, when set, takes the matched element's next sibling as the
	// value carrier (dt label followed by its dd value).
	Sibling bool
}

// FieldRule resolves one field by ordered fallback: structural queries from
// most to least specific, then a pattern search over the scope's full text.
type FieldRule struct {
	Queries []Query

	// Shape gates structurally-matched text. Nil accepts any non-empty text.
	Shape Predicate

	// Submatch narrows an accepted structural value to the portion matched
	// by Capture instead of keeping the whole cell text.
	Submatch bool

	// Capture is the pattern used for the full-text fallback (and for
	// Submatch narrowing). A rule without Capture has no text fallback.
	Capture *regexp.Regexp
}

// Shape patterns, per the target site's rendering conventions.
var (
	rentShape    = regexp.MustCompile(`\d{1,3}[,，]\d{3}`)
	rentCapture  = regexp.MustCompile(`\d{1,3}[,，]\d{3}円?`)
	roomIDShape  = regexp.MustCompile(`\d+[号棟室]`)
	layoutShape  = regexp.MustCompile(`\d+[SLDK]+`)
	areaShape    = regexp.MustCompile(`\d+(?:\.\d+)?(?:㎡|m2|平米)`)
	floorShape   = regexp.MustCompile(`\d+階`)
	floorCapture = regexp.MustCompile(`\d+階(?:／\d*階?)?`)
	// transportCapture pulls a line naming a station or line from page text.
	transportCapture = regexp.MustCompile(`[^\n]*(?:駅|線)[^\n]*`)
	// phoneCapture pulls a labeled phone number; group 1 is the number.
	phoneCapture = regexp.MustCompile(`(?:電話|TEL|Tel|tel)[:：\s]*([0-9\-()（）]+)`)
)

// headerLabels mark table header rows, which are never unit rows.
var headerLabels = []string{"間取図", "部屋名", "家賃", "間取り", "床面積", "階数"}

// titleSuffix is boilerplate the site appends to page titles.
const titleSuffix = "（東京都）の賃貸物件｜UR賃貸住宅"

// RuleSet is the full extraction configuration. The defaults encode the
// target site's current markup plus generic fallbacks that tolerate
// revisions; new site variants are added here, not in control flow.
type RuleSet struct {
	// RowSelectors locate unit rows, most site-specific first. The first
	// selector yielding at least one qualifying row wins; rows from
	// different selectors are never merged.
	RowSelectors []string

	// HeaderLabels disqualify a row outright.
	HeaderLabels []string

	Name   FieldRule
	Layout FieldRule
	Rent   FieldRule
	Area   FieldRule
	Floor  FieldRule

	Transportation  FieldRule
	Address         FieldRule
	Phone           FieldRule
	ManagementYears FieldRule
}

// DefaultRules returns the rule set for UR listing pages.
func DefaultRules() RuleSet {
	return RuleSet{
		RowSelectors: []string{
			".module_tables_room table tbody tr.js-log-item",
			"table tbody tr.js-log-item",
			".rep_room",
			"table tbody tr",
			"tr",
		},
		HeaderLabels: headerLabels,

		Name: FieldRule{
			Queries: []Query{
				{Selector: "h1.property-name"},
				{Selector: "h1"},
				{Selector: ".property-title"},
				{Selector: ".building-name"},
			},
		},
		Rent: FieldRule{
			Queries: []Query{
				{Selector: "span.rep_room-price"},
				{Selector: ".rep_room-price"},
				{Selector: "td:nth-child(3) span.rep_room-price"},
				{Selector: "td:nth-child(3)"},
				{Selector: "td:nth-child(4)"},
			},
			Shape:   Matches(rentShape),
			Capture: rentCapture,
		},
		Layout: FieldRule{
			Queries: []Query{
				{Selector: "td:nth-child(4)"},
				{Selector: "td:nth-child(3)"},
				{Selector: "td:nth-child(5)"},
				{Selector: ".rep_room-type"},
				{Selector: "td.rep_room-type"},
			},
			Shape:    Matches(layoutShape),
			Submatch: true,
			Capture:  layoutShape,
		},
		Area: FieldRule{
			Queries: []Query{
				{Selector: ".rep_room-floor"},
				{Selector: "td.rep_room-floor"},
				{Selector: "td:nth-child(5)"},
				{Selector: "td:nth-child(6)"},
			},
			Shape:   Matches(areaShape),
			Capture: areaShape,
		},
		Floor: FieldRule{
			Queries: []Query{
				{Selector: ".rep_room-kai"},
				{Selector: "td.rep_room-kai"},
				{Selector: "td:nth-child(6)"},
				{Selector: "td:nth-child(7)"},
				{Selector: "td:last-child"},
			},
			Shape:    AnyOf(Matches(floorShape), ContainsAny("/", "／")),
			Submatch: true,
			Capture:  floorCapture,
		},

		Transportation: FieldRule{
			Queries: []Query{
				{Selector: "dt", Label: "交通", Sibling: true},
				{Selector: ".access-info"},
				{Selector: ".transportation"},
				{Selector: "td", Label: "交通", Sibling: true},
				{Selector: "th", Label: "交通", Sibling: true},
				{Selector: ".property-access"},
			},
			Capture: transportCapture,
		},
		Address: FieldRule{
			Queries: []Query{
				{Selector: "dt", Label: "所在地", Sibling: true},
				{Selector: "dt", Label: "住所", Sibling: true},
				{Selector: ".address"},
				{Selector: ".location"},
				{Selector: "td", Label: "所在地", Sibling: true},
				{Selector: "th", Label: "住所", Sibling: true},
				{Selector: ".property-address"},
			},
		},
		Phone: FieldRule{
			Queries: []Query{
				{Selector: "dt", Label: "電話", Sibling: true},
				{Selector: "dt", Label: "TEL", Sibling: true},
				{Selector: ".phone"},
				{Selector: ".tel"},
				{Selector: "td", Label: "電話", Sibling: true},
				{Selector: "th", Label: "TEL", Sibling: true},
				{Selector: ".contact-phone"},
			},
			Capture: phoneCapture,
		},
		ManagementYears: FieldRule{
			Queries: []Query{
				{Selector: "dt", Label: "管理年数", Sibling: true},
				{Selector: "dt", Label: "築年", Sibling: true},
				{Selector: ".management-years"},
				{Selector: ".built-year"},
				{Selector: "td", Label: "管理年数", Sibling: true},
				{Selector: "th", Label: "築年", Sibling: true},
				{Selector: ".property-age"},
			},
		},
	}
}
