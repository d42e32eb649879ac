// Package page defines the browser capability the speed test engine drives.
// The chromedp implementation lives in internal/browser; tests use fakes.
package page

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// LoadEvent is a page lifecycle milestone reported by the browser
type LoadEvent string

const (
	DOMContentLoaded LoadEvent = "DOMContentLoaded"
	Load             LoadEvent = "load"
	NetworkIdle      LoadEvent = "networkIdle"
)

// ReadyCondition is the set of lifecycle events that must all fire before a
// navigation counts as finished. An empty condition waits for Load.
type ReadyCondition []LoadEvent

// Events returns the required events, defaulting to Load
func (r ReadyCondition) Events() []LoadEvent {
	if len(r) == 0 {
		return []LoadEvent{Load}
	}
	return r
}

// Predicate is a JavaScript expression evaluated against the live page.
// It is considered satisfied when it evaluates to a truthy value.
type Predicate string

// Script wraps the predicate so evaluation always yields a boolean
func (p Predicate) Script() string {
	return "!!(" + string(p) + ")"
}

// Page is the set of operations the engine and site adapters perform on the
// shared browser tab.
type Page interface {
	// Navigate loads url and blocks until every event in ready has fired
	Navigate(ctx context.Context, url string, ready ReadyCondition) error
	// Click performs a click on the first element matching selector
	Click(ctx context.Context, selector string) error
	// Evaluate runs script in the page and decodes its result into res
	Evaluate(ctx context.Context, script string, res interface{}) error
	// Document returns a snapshot of the current DOM
	Document(ctx context.Context) (*goquery.Document, error)
}

// Session is the exclusively owned browser resource for one run
type Session interface {
	Page
	Close() error
}

// Opener acquires a Session
type Opener func(ctx context.Context) (Session, error)
