// Package diff compares a run against the most recent prior snapshot and
// decides whether a change notification must fire.
package diff

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmaeda/urwatch/models"
	"github.com/tmaeda/urwatch/snapshot"
)

// Engine derives notification decisions. It is stateless; everything comes
// from the store lookup and the current results.
type Engine struct {
	store *snapshot.Store
}

// NewEngine builds an engine over the given snapshot store.
func NewEngine(store *snapshot.Store) *Engine {
	return &Engine{store: store}
}

// Decide computes the notification decision for current. With no prior
// snapshot the first run always notifies. If the prior snapshot cannot be
// read or parsed the engine fails open: a false-positive notification is
// preferred over a silently missed change.
func (e *Engine) Decide(current []models.PropertyResult) models.Decision {
	prevPath, err := e.store.Latest()
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			return models.Decision{
				ShouldNotify: true,
				IsFirstRun:   true,
				Reason:       "first run",
				Summary: models.ComparisonSummary{
					CurrentVacantCount: len(vacantSet(current)),
				},
			}
		}
		return e.failOpen(current, "", fmt.Errorf("locate prior snapshot: %w", err))
	}

	prev, err := e.store.Load(prevPath)
	if err != nil {
		return e.failOpen(current, prevPath, err)
	}

	decision := compare(current, prev.Results)
	decision.Summary.PreviousFile = prevPath

	slog.Info("notification decision",
		slog.Bool("should_notify", decision.ShouldNotify),
		slog.String("reason", decision.Reason),
		slog.Int("new", decision.Summary.NewProperties),
		slog.Int("increased", decision.Summary.IncreasedProperties),
	)
	return decision
}

func (e *Engine) failOpen(current []models.PropertyResult, prevPath string, err error) models.Decision {
	slog.Warn("prior snapshot unreadable, notifying anyway", slog.Any("error", err))
	return models.Decision{
		ShouldNotify: true,
		Reason:       "prior snapshot unreadable",
		Summary: models.ComparisonSummary{
			PreviousFile:       prevPath,
			CurrentVacantCount: len(vacantSet(current)),
			Error:              err.Error(),
		},
	}
}

// compare builds the vacant sets of both runs and flags urls that are newly
// vacant or whose vacancy count increased. Decreases and departures are not
// flagged; the system alerts on new opportunities only.
func compare(current, previous []models.PropertyResult) models.Decision {
	currentVacant := vacantSet(current)
	previousVacant := vacantSet(previous)

	var flagged []models.NewlyVacant
	newCount, increasedCount := 0, 0

	// Iterate in current-run order so repeated calls with the same inputs
	// yield byte-identical decisions.
	for i := range current {
		r := &current[i]
		if _, ok := currentVacant[r.URL]; !ok {
			continue
		}

		prev, existed := previousVacant[r.URL]
		switch {
		case !existed:
			flagged = append(flagged, models.NewlyVacant{
				URL:        r.URL,
				ChangeType: models.ChangeTypeNew,
				Result:     *r,
			})
			newCount++
		case r.UnitCount > prev.UnitCount:
			flagged = append(flagged, models.NewlyVacant{
				URL:        r.URL,
				ChangeType: models.ChangeTypeIncreased,
				Result:     *r,
			})
			increasedCount++
		}
	}

	decision := models.Decision{
		ShouldNotify: len(flagged) > 0,
		NewlyVacant:  flagged,
		Summary: models.ComparisonSummary{
			PreviousVacantCount: len(previousVacant),
			CurrentVacantCount:  len(currentVacant),
			NewProperties:       newCount,
			IncreasedProperties: increasedCount,
		},
	}

	if decision.ShouldNotify {
		decision.Reason = fmt.Sprintf("%d newly vacant (%d new, %d increased)",
			len(flagged), newCount, increasedCount)
	} else {
		decision.Reason = "no new vacancies"
	}
	return decision
}

// vacantSet indexes successful results with at least one vacant unit by url.
func vacantSet(results []models.PropertyResult) map[string]*models.PropertyResult {
	set := make(map[string]*models.PropertyResult)
	for i := range results {
		if results[i].Vacant() {
			set[results[i].URL] = &results[i]
		}
	}
	return set
}
