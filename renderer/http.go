package renderer

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// HTTPBrowser renders pages by fetching them over plain HTTP and exposing
// the parsed document for structural queries. It is the default Browser
// implementation; listing pages on the target site carry the unit table in
// the served markup, so no script execution is needed.
type HTTPBrowser struct {
	collector *colly.Collector
}

// NewHTTPBrowser builds a browser whose pages fetch with the given user
// agent and default timeout.
func NewHTTPBrowser(userAgent string, timeout time.Duration) (*HTTPBrowser, error) {
	if userAgent == "" {
		return nil, fmt.Errorf("user agent cannot be empty")
	}

	collector := colly.NewCollector(
		colly.UserAgent(userAgent),
	)
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &HTTPBrowser{collector: collector}, nil
}

// WithTransport swaps the HTTP transport. Used by tests to mount a mock.
func (b *HTTPBrowser) WithTransport(rt http.RoundTripper) {
	b.collector.WithTransport(rt)
}

// NewPage returns a fresh page context backed by its own collector clone.
func (b *HTTPBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &httpPage{collector: b.collector.Clone()}, nil
}

// Close releases the browser. The HTTP implementation holds no long-lived
// resources beyond idle connections.
func (b *HTTPBrowser) Close() error {
	return nil
}

type httpPage struct {
	collector *colly.Collector
	doc       *goquery.Document
	closed    bool
}

func (p *httpPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if p.closed {
		return fmt.Errorf("page is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if timeout > 0 {
		p.collector.SetRequestTimeout(timeout)
	}

	var (
		body     []byte
		fetchErr error
	)
	c := p.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return fmt.Errorf("visit %s: %w", url, err)
	}
	c.Wait()

	if fetchErr != nil {
		return fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if len(body) == 0 {
		return fmt.Errorf("fetch %s: empty response", url)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", url, err)
	}
	p.doc = doc
	return nil
}

func (p *httpPage) Title() string {
	if p.doc == nil {
		return ""
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

func (p *httpPage) Query(selector string) (Element, bool) {
	if p.doc == nil {
		return nil, false
	}
	return firstElement(p.doc.Find(selector))
}

func (p *httpPage) QueryAll(selector string) []Element {
	if p.doc == nil {
		return nil
	}
	return allElements(p.doc.Find(selector))
}

func (p *httpPage) Text() string {
	if p.doc == nil {
		return ""
	}
	return p.doc.Find("body").Text()
}

func (p *httpPage) Close() error {
	p.closed = true
	p.doc = nil
	return nil
}

// ParseHTML builds a Page from already-rendered markup. Navigation on the
// returned page is a no-op; extraction code and tests query it directly.
func ParseHTML(html string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &staticPage{doc: doc}, nil
}

type staticPage struct {
	doc *goquery.Document
}

func (p *staticPage) Navigate(context.Context, string, time.Duration) error { return nil }

func (p *staticPage) Title() string {
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

func (p *staticPage) Query(selector string) (Element, bool) {
	return firstElement(p.doc.Find(selector))
}

func (p *staticPage) QueryAll(selector string) []Element {
	return allElements(p.doc.Find(selector))
}

func (p *staticPage) Text() string {
	return p.doc.Find("body").Text()
}

func (p *staticPage) Close() error { return nil }

// selectionElement adapts a goquery selection to the Element interface.
type selectionElement struct {
	sel *goquery.Selection
}

func firstElement(sel *goquery.Selection) (Element, bool) {
	if sel.Length() == 0 {
		return nil, false
	}
	return &selectionElement{sel: sel.First()}, true
}

func allElements(sel *goquery.Selection) []Element {
	if sel.Length() == 0 {
		return nil
	}
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &selectionElement{sel: s})
	})
	return out
}

func (e *selectionElement) Query(selector string) (Element, bool) {
	return firstElement(e.sel.Find(selector))
}

func (e *selectionElement) QueryAll(selector string) []Element {
	return allElements(e.sel.Find(selector))
}

func (e *selectionElement) Text() string {
	return e.sel.Text()
}

func (e *selectionElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *selectionElement) Next() (Element, bool) {
	next := e.sel.Next()
	if next.Length() == 0 {
		return nil, false
	}
	return &selectionElement{sel: next}, true
}
