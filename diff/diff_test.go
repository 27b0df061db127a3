package diff

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmaeda/urwatch/models"
	"github.com/tmaeda/urwatch/snapshot"
)

func vacantResult(url string, units int) models.PropertyResult {
	records := make([]models.UnitRecord, units)
	for i := range records {
		records[i] = models.UnitRecord{
			Layout: "2DK", Rent: "98,000円", FloorArea: "45㎡", Floor: "3階",
		}
	}
	return models.PropertyResult{
		URL:       url,
		Name:      "物件 " + url,
		Status:    models.StatusSuccess,
		UnitCount: units,
		Units:     records,
	}
}

func emptyResult(url string) models.PropertyResult {
	return models.PropertyResult{
		URL:    url,
		Name:   "物件 " + url,
		Status: models.StatusSuccess,
	}
}

func failedResult(url string) models.PropertyResult {
	return models.PropertyResult{
		URL:    url,
		Status: models.StatusFailed,
		Error:  "navigation failed",
	}
}

func newEngineWithPrior(t *testing.T, prior []models.PropertyResult) *Engine {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir())
	require.NoError(t, err)
	if prior != nil {
		_, err := store.Save(models.NewRunSnapshot(time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC), prior))
		require.NoError(t, err)
	}
	return NewEngine(store)
}

func TestDecideFirstRunAlwaysNotifies(t *testing.T) {
	engine := newEngineWithPrior(t, nil)

	decision := engine.Decide([]models.PropertyResult{vacantResult("http://a", 1)})

	assert.True(t, decision.ShouldNotify)
	assert.True(t, decision.IsFirstRun)
	assert.Equal(t, "first run", decision.Reason)
	assert.Equal(t, 1, decision.Summary.CurrentVacantCount)
	assert.Empty(t, decision.NewlyVacant)
}

func TestDecideFlagsNewAndIncreased(t *testing.T) {
	engine := newEngineWithPrior(t, []models.PropertyResult{
		vacantResult("http://a", 1),
		vacantResult("http://b", 2),
	})

	decision := engine.Decide([]models.PropertyResult{
		vacantResult("http://a", 1), // unchanged
		vacantResult("http://b", 3), // increased
		vacantResult("http://c", 1), // new
	})

	assert.True(t, decision.ShouldNotify)
	assert.False(t, decision.IsFirstRun)
	require.Len(t, decision.NewlyVacant, 2)
	assert.Equal(t, "http://b", decision.NewlyVacant[0].URL)
	assert.Equal(t, models.ChangeTypeIncreased, decision.NewlyVacant[0].ChangeType)
	assert.Equal(t, "http://c", decision.NewlyVacant[1].URL)
	assert.Equal(t, models.ChangeTypeNew, decision.NewlyVacant[1].ChangeType)
	assert.Equal(t, "2 newly vacant (1 new, 1 increased)", decision.Reason)
	assert.Equal(t, 2, decision.Summary.PreviousVacantCount)
	assert.Equal(t, 3, decision.Summary.CurrentVacantCount)
	assert.Equal(t, 1, decision.Summary.NewProperties)
	assert.Equal(t, 1, decision.Summary.IncreasedProperties)
	assert.NotEmpty(t, decision.Summary.PreviousFile)
}

func TestDecideDecreaseDoesNotNotify(t *testing.T) {
	engine := newEngineWithPrior(t, []models.PropertyResult{
		vacantResult("http://a", 3),
		vacantResult("http://b", 1),
	})

	decision := engine.Decide([]models.PropertyResult{
		vacantResult("http://a", 1), // decreased
		emptyResult("http://b"),     // no longer vacant
	})

	assert.False(t, decision.ShouldNotify)
	assert.Equal(t, "no new vacancies", decision.Reason)
	assert.Empty(t, decision.NewlyVacant)
}

func TestDecideFailedTargetIsNotVacant(t *testing.T) {
	engine := newEngineWithPrior(t, []models.PropertyResult{
		vacantResult("http://a", 1),
	})

	// A target that failed this run neither counts as vacant nor as a
	// departure worth flagging.
	decision := engine.Decide([]models.PropertyResult{
		failedResult("http://a"),
		vacantResult("http://b", 1),
	})

	assert.True(t, decision.ShouldNotify)
	require.Len(t, decision.NewlyVacant, 1)
	assert.Equal(t, "http://b", decision.NewlyVacant[0].URL)
	assert.Equal(t, 1, decision.Summary.CurrentVacantCount)
}

func TestDecidePreviouslyFailedNowVacantIsNew(t *testing.T) {
	engine := newEngineWithPrior(t, []models.PropertyResult{
		failedResult("http://a"),
	})

	decision := engine.Decide([]models.PropertyResult{
		vacantResult("http://a", 1),
	})

	assert.True(t, decision.ShouldNotify)
	require.Len(t, decision.NewlyVacant, 1)
	assert.Equal(t, models.ChangeTypeNew, decision.NewlyVacant[0].ChangeType)
}

func TestDecideIsDeterministic(t *testing.T) {
	engine := newEngineWithPrior(t, []models.PropertyResult{
		vacantResult("http://a", 1),
	})

	current := []models.PropertyResult{
		vacantResult("http://c", 1),
		vacantResult("http://b", 2),
		vacantResult("http://a", 1),
	}

	first := engine.Decide(current)
	second := engine.Decide(current)

	assert.Equal(t, first, second)
	// Flagged entries follow current-run order.
	require.Len(t, first.NewlyVacant, 2)
	assert.Equal(t, "http://c", first.NewlyVacant[0].URL)
	assert.Equal(t, "http://b", first.NewlyVacant[1].URL)
}

func TestDecideCorruptPriorFailsOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.NewStore(dir)
	require.NoError(t, err)

	corrupt := filepath.Join(dir, "ur_net_results_20260825_090000.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("not json"), 0o644))

	engine := NewEngine(store)
	decision := engine.Decide([]models.PropertyResult{vacantResult("http://a", 1)})

	assert.True(t, decision.ShouldNotify)
	assert.False(t, decision.IsFirstRun)
	assert.Equal(t, "prior snapshot unreadable", decision.Reason)
	assert.Equal(t, corrupt, decision.Summary.PreviousFile)
	assert.NotEmpty(t, decision.Summary.Error)
}
