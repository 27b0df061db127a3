// Package crawler drives one page visit per target, sequentially and with
// deliberate pacing, assembling exactly one property result per target.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmaeda/urwatch/config"
	"github.com/tmaeda/urwatch/extract"
	"github.com/tmaeda/urwatch/models"
	"github.com/tmaeda/urwatch/renderer"
)

// Crawler visits targets strictly in order. Targets are never fetched in
// parallel: concurrent requests to the listing site would defeat the pacing
// policy meant to avoid tripping its automated-traffic defenses.
type Crawler struct {
	cfg       *config.Config
	browser   renderer.Browser
	extractor *extract.Extractor
	Metrics   *Metrics
}

// New builds a crawler over the given renderer and extractor.
func New(cfg *config.Config, browser renderer.Browser, extractor *extract.Extractor) *Crawler {
	return &Crawler{
		cfg:       cfg,
		browser:   browser,
		extractor: extractor,
		Metrics:   NewMetrics(),
	}
}

// Run checks every target and returns one result per target, preserving
// input order. A single target's failure never aborts the batch. On context
// cancellation the in-flight page is released and the remaining targets are
// recorded as failed rather than dropped.
func (c *Crawler) Run(ctx context.Context, targets []models.Target) []models.PropertyResult {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]models.PropertyResult, 0, len(targets))
	for i, target := range targets {
		if ctx.Err() != nil {
			results = append(results, c.failedResult(target, "run canceled"))
			continue
		}

		start := time.Now()
		result := c.checkTarget(ctx, target, i+1, len(targets))
		results = append(results, result)

		c.Metrics.ObserveTargetDuration(time.Since(start))
		c.Metrics.IncTarget(result.Status)
		if result.Status == models.StatusSuccess {
			c.Metrics.AddVacantUnits(result.UnitCount)
		}

		c.logOutcome(result, i+1, len(targets))

		// Pacing between targets, not after the last one.
		if i < len(targets)-1 {
			sleep(ctx, c.cfg.RequestDelay)
		}
	}
	return results
}

func (c *Crawler) checkTarget(ctx context.Context, target models.Target, index, total int) models.PropertyResult {
	slog.Debug("checking target",
		slog.Int("index", index),
		slog.Int("total", total),
		slog.String("url", target.URL),
	)

	page, err := c.browser.NewPage(ctx)
	if err != nil {
		return c.failedResult(target, fmt.Sprintf("page context: %v", err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			slog.Debug("page close failed", slog.String("url", target.URL), slog.Any("error", err))
		}
	}()

	if !c.navigate(ctx, page, target.URL) {
		return c.failedResult(target, "navigation failed")
	}

	sleep(ctx, c.cfg.SettleDelay)

	return c.extractSafely(page, target)
}

// navigate attempts the page load up to MaxRetries times with exponential
// backoff between attempts. The final attempt's failure is terminal.
func (c *Crawler) navigate(ctx context.Context, page renderer.Page, url string) bool {
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		err := page.Navigate(ctx, url, c.cfg.NavigationTimeout)
		if err == nil {
			return true
		}

		classified := classifyError(err)
		category := errorTypeLabel(classified)
		c.Metrics.IncError(category)
		slog.Warn("navigation attempt failed",
			slog.String("url", url),
			slog.Int("attempt", attempt+1),
			slog.Int("max", c.cfg.MaxRetries),
			slog.String("category", category),
			slog.Any("error", err),
		)

		if attempt == c.cfg.MaxRetries-1 {
			return false
		}
		c.Metrics.IncRetries()
		sleep(ctx, c.backoff(attempt))
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// backoff returns the wait before retry attempt+1: base doubled per attempt,
// capped at RetryBackoffMax.
func (c *Crawler) backoff(attempt int) time.Duration {
	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = time.Second
	}

	delay := base * time.Duration(1<<attempt)
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// extractSafely converts an extraction panic into a failed result so the
// batch keeps going and the page still gets released.
func (c *Crawler) extractSafely(page renderer.Page, target models.Target) (result models.PropertyResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("extraction panic",
				slog.String("url", target.URL),
				slog.Any("panic", r),
			)
			result = c.failedResult(target, fmt.Sprintf("extraction: %v", r))
		}
	}()
	return c.extractor.Extract(page, target)
}

// failedResult records a terminal failure for one target. Predefined roster
// values still populate the detail fields so downstream reports can show
// contact data even when the page never loaded.
func (c *Crawler) failedResult(target models.Target, errMsg string) models.PropertyResult {
	result := models.PropertyResult{
		URL:    target.URL,
		Status: models.StatusFailed,
		Error:  errMsg,
	}

	result.Name = target.Name
	if result.Name == "" {
		result.Name = models.Unknown
	}
	result.Transportation, result.TransportationSource = predefinedOrUnknown(target.Transportation)
	result.Address, result.AddressSource = predefinedOrUnknown(target.Address)
	result.Phone, result.PhoneSource = predefinedOrUnknown(target.Phone)
	result.ManagementYears, result.ManagementYearsSource = predefinedOrUnknown(target.ManagementYears)
	return result
}

func predefinedOrUnknown(value string) (string, models.Provenance) {
	if value != "" {
		return value, models.SourcePredefined
	}
	return models.Unknown, models.SourceUnknown
}

func (c *Crawler) logOutcome(result models.PropertyResult, index, total int) {
	if result.Status == models.StatusSuccess {
		slog.Info("target checked",
			slog.Int("index", index),
			slog.Int("total", total),
			slog.String("url", result.URL),
			slog.String("name", result.Name),
			slog.Int("vacant_units", result.UnitCount),
		)
		return
	}
	slog.Warn("target failed",
		slog.Int("index", index),
		slog.Int("total", total),
		slog.String("url", result.URL),
		slog.String("error", result.Error),
	)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
