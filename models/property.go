// Package models defines data structures shared across the vacancy checker.
package models

import "time"

// Unknown is the sentinel value for fields that could not be resolved from
// any source (page, predefined data).
const Unknown = "unknown"

// Provenance records where a property field's value came from.
type Provenance string

const (
	SourcePredefined Provenance = "predefined"
	SourceScraped    Provenance = "scraped"
	SourceUnknown    Provenance = "unknown"
)

// Check statuses for a PropertyResult.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Change types reported by the diff engine.
const (
	ChangeTypeNew       = "new"
	ChangeTypeIncreased = "increased"
)

// Target is one listing page to visit, optionally annotated with roster data
// supplied by the caller. Identity is the URL.
type Target struct {
	URL             string `csv:"url" json:"url"`
	Name            string `csv:"name" json:"name,omitempty"`
	Transportation  string `csv:"transportation" json:"transportation,omitempty"`
	Address         string `csv:"address" json:"address,omitempty"`
	Phone           string `csv:"phone" json:"phone,omitempty"`
	ManagementYears string `csv:"management_years" json:"management_years,omitempty"`
}

// HasAllDetails reports whether every roster detail field is present, in
// which case scraping those fields is skipped entirely.
func (t Target) HasAllDetails() bool {
	return t.Transportation != "" && t.Address != "" && t.Phone != "" && t.ManagementYears != ""
}

// UnitRecord is one vacant unit found within a property. It has no identity
// beyond its position in the parent result.
type UnitRecord struct {
	Layout    string `csv:"layout" json:"layout"`
	Rent      string `csv:"rent" json:"rent"`
	FloorArea string `csv:"floor_area" json:"floor_area"`
	Floor     string `csv:"floor" json:"floor"`
}

// PropertyResult is the outcome of checking one target. Exactly one result
// exists per target per run, success or failed.
type PropertyResult struct {
	URL   string `json:"url"`
	Name  string `json:"name"`
	Title string `json:"title"`

	Units     []UnitRecord `json:"units"`
	UnitCount int          `json:"unit_count"`

	Phone                 string     `json:"phone"`
	PhoneSource           Provenance `json:"phone_source"`
	Transportation        string     `json:"transportation"`
	TransportationSource  Provenance `json:"transportation_source"`
	Address               string     `json:"address"`
	AddressSource         Provenance `json:"address_source"`
	ManagementYears       string     `json:"management_years"`
	ManagementYearsSource Provenance `json:"management_years_source"`

	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Vacant reports whether this result counts toward the vacant set used by
// change detection.
func (r *PropertyResult) Vacant() bool {
	return r.Status == StatusSuccess && r.UnitCount > 0
}

// RunSnapshot is the persisted output of one complete batch run. Snapshots
// are immutable once written and ordered by timestamp.
type RunSnapshot struct {
	Timestamp        time.Time        `json:"timestamp"`
	TotalChecked     int              `json:"total_checked"`
	TotalVacantUnits int              `json:"total_vacant_units"`
	Results          []PropertyResult `json:"results"`
}

// NewRunSnapshot assembles a snapshot from a completed run's results.
func NewRunSnapshot(ts time.Time, results []PropertyResult) *RunSnapshot {
	total := 0
	for i := range results {
		if results[i].Status == StatusSuccess {
			total += results[i].UnitCount
		}
	}
	return &RunSnapshot{
		Timestamp:        ts,
		TotalChecked:     len(results),
		TotalVacantUnits: total,
		Results:          results,
	}
}

// NewlyVacant describes one property flagged by the diff engine.
type NewlyVacant struct {
	URL        string         `json:"url"`
	ChangeType string         `json:"change_type"`
	Result     PropertyResult `json:"result"`
}

// Decision is the notification decision derived from the two most recent
// runs. It is recomputed per run and never persisted.
type Decision struct {
	ShouldNotify bool          `json:"should_notify"`
	Reason       string        `json:"reason"`
	IsFirstRun   bool          `json:"is_first_run"`
	NewlyVacant  []NewlyVacant `json:"newly_vacant"`

	// Summary carries comparison diagnostics, including any error recovered
	// by failing open.
	Summary ComparisonSummary `json:"comparison_summary"`
}

// ComparisonSummary captures counts from the snapshot comparison.
type ComparisonSummary struct {
	PreviousFile        string `json:"previous_file,omitempty"`
	PreviousVacantCount int    `json:"previous_vacant_count"`
	CurrentVacantCount  int    `json:"current_vacant_count"`
	NewProperties       int    `json:"new_vacant_properties"`
	IncreasedProperties int    `json:"increased_vacant_properties"`
	Error               string `json:"error,omitempty"`
}
