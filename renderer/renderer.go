// Package renderer abstracts the page-rendering engine the checker drives.
// A query returning no match is normal, never an error; every call on a
// Page or Element is individually fault-tolerant.
package renderer

import (
	"context"
	"time"
)

// Browser hands out page contexts. One page is opened per target and closed
// before the next target begins.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one loaded document.
type Page interface {
	// Navigate loads url, bounded by timeout. It may be called again on the
	// same page after a failure.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Title returns the document title, or "" before navigation.
	Title() string

	Scope

	// Close releases the page context. Safe to call more than once.
	Close() error
}

// Scope is anything that can be queried for elements: a whole page or a
// single element (for row-local lookups).
type Scope interface {
	// Query returns the first element matching selector, or false.
	Query(selector string) (Element, bool)

	// QueryAll returns all elements matching selector, possibly empty.
	QueryAll(selector string) []Element

	// Text returns the scope's visible text content.
	Text() string
}

// Element is one matched DOM node.
type Element interface {
	Scope

	// Attr returns the value of the named attribute, or false if absent.
	Attr(name string) (string, bool)

	// Next returns the element's next sibling element, or false. Used for
	// definition-list lookups (dt label followed by its dd value).
	Next() (Element, bool)
}
