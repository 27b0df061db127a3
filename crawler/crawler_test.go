package crawler

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tmaeda/urwatch/config"
	"github.com/tmaeda/urwatch/extract"
	"github.com/tmaeda/urwatch/models"
	"github.com/tmaeda/urwatch/renderer"
)

const testListing = `
<html><head><title>テスト物件（東京都）の賃貸物件｜UR賃貸住宅</title></head><body>
<h1 class="property-name">テスト物件</h1>
<table><tbody>
<tr><td>1号棟101号室</td><td>88,000円</td><td>1LDK</td><td>40㎡</td><td>1階／3階</td><td><a href="/room.html">詳細</a></td></tr>
</tbody></table>
</body></html>`

// fakePage scripts navigation outcomes per URL and delegates queries to a
// static parsed document.
type fakePage struct {
	renderer.Page

	failuresByURL map[string]int
	attempts      map[string]int
	closed        *atomic.Int32
	panicOnQuery  bool
}

func (p *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.attempts[url]++
	if remaining := p.failuresByURL[url]; remaining > 0 {
		p.failuresByURL[url] = remaining - 1
		return errors.New("connection reset")
	}
	return nil
}

func (p *fakePage) QueryAll(selector string) []renderer.Element {
	if p.panicOnQuery {
		panic("query exploded")
	}
	return p.Page.QueryAll(selector)
}

func (p *fakePage) Close() error {
	p.closed.Add(1)
	return nil
}

type fakeBrowser struct {
	failuresByURL map[string]int
	attempts      map[string]int
	closed        atomic.Int32
	pagesOpened   atomic.Int32
	panicOnQuery  bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		failuresByURL: make(map[string]int),
		attempts:      make(map[string]int),
	}
}

func (b *fakeBrowser) NewPage(ctx context.Context) (renderer.Page, error) {
	b.pagesOpened.Add(1)
	static, err := renderer.ParseHTML(testListing)
	if err != nil {
		return nil, err
	}
	return &fakePage{
		Page:          static,
		failuresByURL: b.failuresByURL,
		attempts:      b.attempts,
		closed:        &b.closed,
		panicOnQuery:  b.panicOnQuery,
	}, nil
}

func (b *fakeBrowser) Close() error { return nil }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RequestDelay = 0
	cfg.SettleDelay = 0
	cfg.NavigationTimeout = time.Second
	cfg.MaxRetries = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	return cfg
}

func newTestCrawler(cfg *config.Config, browser renderer.Browser) *Crawler {
	return New(cfg, browser, extract.New(extract.DefaultRules(), extract.DefaultClassifier()))
}

func targetList(urls ...string) []models.Target {
	out := make([]models.Target, 0, len(urls))
	for _, u := range urls {
		out = append(out, models.Target{URL: u})
	}
	return out
}

func TestRunPreservesOrderAndLength(t *testing.T) {
	browser := newFakeBrowser()
	c := newTestCrawler(testConfig(), browser)

	targets := targetList("http://t.test/a", "http://t.test/b", "http://t.test/c")
	results := c.Run(context.Background(), targets)

	if len(results) != len(targets) {
		t.Fatalf("results=%d, want %d", len(results), len(targets))
	}
	for i := range targets {
		if results[i].URL != targets[i].URL {
			t.Fatalf("results[%d].URL=%q, want %q", i, results[i].URL, targets[i].URL)
		}
		if results[i].Status != models.StatusSuccess {
			t.Fatalf("results[%d].Status=%q, want success", i, results[i].Status)
		}
		if results[i].UnitCount != len(results[i].Units) {
			t.Fatalf("unit_count=%d, units=%d", results[i].UnitCount, len(results[i].Units))
		}
	}
}

func TestRunFailedTargetDoesNotBlockBatch(t *testing.T) {
	browser := newFakeBrowser()
	browser.failuresByURL["http://t.test/dead"] = 100

	c := newTestCrawler(testConfig(), browser)
	targets := targetList("http://t.test/a", "http://t.test/dead", "http://t.test/c")
	results := c.Run(context.Background(), targets)

	if len(results) != 3 {
		t.Fatalf("results=%d, want 3", len(results))
	}
	if results[1].Status != models.StatusFailed {
		t.Fatalf("dead target status=%q, want failed", results[1].Status)
	}
	if results[1].Error != "navigation failed" {
		t.Fatalf("dead target error=%q, want %q", results[1].Error, "navigation failed")
	}
	if len(results[1].Units) != 0 || results[1].UnitCount != 0 {
		t.Fatalf("failed result must carry no units, got %d", results[1].UnitCount)
	}
	if results[2].Status != models.StatusSuccess {
		t.Fatalf("target after failure status=%q, want success", results[2].Status)
	}
}

func TestRunRetriesBeforeGivingUp(t *testing.T) {
	browser := newFakeBrowser()
	browser.failuresByURL["http://t.test/flaky"] = 2

	cfg := testConfig()
	cfg.MaxRetries = 3
	c := newTestCrawler(cfg, browser)

	results := c.Run(context.Background(), targetList("http://t.test/flaky"))

	if results[0].Status != models.StatusSuccess {
		t.Fatalf("status=%q, want success after retries", results[0].Status)
	}
	if got := browser.attempts["http://t.test/flaky"]; got != 3 {
		t.Fatalf("attempts=%d, want 3", got)
	}
}

func TestRunExhaustedRetriesCountAttempts(t *testing.T) {
	browser := newFakeBrowser()
	browser.failuresByURL["http://t.test/dead"] = 100

	cfg := testConfig()
	cfg.MaxRetries = 4
	c := newTestCrawler(cfg, browser)

	c.Run(context.Background(), targetList("http://t.test/dead"))

	if got := browser.attempts["http://t.test/dead"]; got != 4 {
		t.Fatalf("attempts=%d, want 4", got)
	}
}

func TestRunReleasesEveryPage(t *testing.T) {
	browser := newFakeBrowser()
	browser.failuresByURL["http://t.test/dead"] = 100

	c := newTestCrawler(testConfig(), browser)
	c.Run(context.Background(), targetList("http://t.test/a", "http://t.test/dead", "http://t.test/c"))

	if opened, closed := browser.pagesOpened.Load(), browser.closed.Load(); opened != closed {
		t.Fatalf("pages opened=%d closed=%d", opened, closed)
	}
}

func TestRunFailedTargetKeepsPredefinedFields(t *testing.T) {
	browser := newFakeBrowser()
	browser.failuresByURL["http://t.test/dead"] = 100

	c := newTestCrawler(testConfig(), browser)
	results := c.Run(context.Background(), []models.Target{{
		URL:   "http://t.test/dead",
		Name:  "予定義物件",
		Phone: "03-9999-0000",
	}})

	r := results[0]
	if r.Name != "予定義物件" {
		t.Fatalf("name=%q, want predefined name", r.Name)
	}
	if r.Phone != "03-9999-0000" || r.PhoneSource != models.SourcePredefined {
		t.Fatalf("phone=%q source=%q, want predefined", r.Phone, r.PhoneSource)
	}
	if r.Address != models.Unknown || r.AddressSource != models.SourceUnknown {
		t.Fatalf("address=%q source=%q, want unknown sentinel", r.Address, r.AddressSource)
	}
}

func TestRunExtractionPanicBecomesFailedResult(t *testing.T) {
	browser := newFakeBrowser()
	browser.panicOnQuery = true

	c := newTestCrawler(testConfig(), browser)
	results := c.Run(context.Background(), targetList("http://t.test/a", "http://t.test/b"))

	if len(results) != 2 {
		t.Fatalf("results=%d, want 2", len(results))
	}
	for i, r := range results {
		if r.Status != models.StatusFailed {
			t.Fatalf("results[%d].Status=%q, want failed", i, r.Status)
		}
		if !strings.Contains(r.Error, "extraction") {
			t.Fatalf("results[%d].Error=%q, want extraction error", i, r.Error)
		}
	}
	if opened, closed := browser.pagesOpened.Load(), browser.closed.Load(); opened != closed {
		t.Fatalf("pages opened=%d closed=%d after panic", opened, closed)
	}
}

func TestRunCanceledContextStillYieldsAllResults(t *testing.T) {
	browser := newFakeBrowser()
	c := newTestCrawler(testConfig(), browser)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	targets := targetList("http://t.test/a", "http://t.test/b")
	results := c.Run(ctx, targets)

	if len(results) != len(targets) {
		t.Fatalf("results=%d, want %d", len(results), len(targets))
	}
	for i, r := range results {
		if r.Status != models.StatusFailed {
			t.Fatalf("results[%d].Status=%q, want failed on canceled run", i, r.Status)
		}
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.RetryBackoffMax = 300 * time.Millisecond

	c := newTestCrawler(cfg, newFakeBrowser())

	if got := c.backoff(0); got != 100*time.Millisecond {
		t.Fatalf("backoff(0)=%v, want 100ms", got)
	}
	if got := c.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1)=%v, want 200ms", got)
	}
	if got := c.backoff(3); got != 300*time.Millisecond {
		t.Fatalf("backoff(3)=%v, want capped at 300ms", got)
	}
}

func TestClassifyNavigationError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, expected: "connection"},
		{name: "other", err: errors.New("boom"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err)); got != tt.expected {
				t.Fatalf("classifyError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}
