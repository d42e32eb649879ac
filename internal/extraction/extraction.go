package extraction

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/williampepple1/speedscraper/pkg/models"
)

// ErrNotFound is returned when a required selector matches no element
var ErrNotFound = errors.New("element not found")

// Extractor reads metric text out of a DOM snapshot
type Extractor struct {
	// Selectors maps a required bundle key to the CSS selector holding its text
	Selectors map[string]string
	// Optional maps keys that a page may leave out
	Optional map[string]string
	// Patterns optionally narrow a selected text to the first regex match
	Patterns map[string]*regexp.Regexp
}

// NewExtractor creates an extractor whose key/selector pairs are all required
func NewExtractor(selectors map[string]string) *Extractor {
	return &Extractor{
		Selectors: selectors,
		Optional:  map[string]string{},
		Patterns:  map[string]*regexp.Regexp{},
	}
}

// WithOptional returns a copy of e that reads key from selector when the
// page has it
func (e *Extractor) WithOptional(key, selector string) *Extractor {
	c := e.clone()
	c.Optional[key] = selector
	return c
}

// WithPattern returns a copy of e that applies pattern to the text of key
func (e *Extractor) WithPattern(key string, pattern *regexp.Regexp) *Extractor {
	c := e.clone()
	c.Patterns[key] = pattern
	return c
}

// Extract reads the text of the first node matching each selector. A
// required selector without a match fails with ErrNotFound; an optional one
// is left out of the bundle.
func (e *Extractor) Extract(doc *goquery.Document) (models.RawMetricBundle, error) {
	bundle := make(models.RawMetricBundle, len(e.Selectors)+len(e.Optional))

	for _, key := range slices.Sorted(maps.Keys(e.Selectors)) {
		selector := e.Selectors[key]
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return nil, fmt.Errorf("%s: %w: %q", key, ErrNotFound, selector)
		}
		bundle[key] = e.text(key, sel)
	}

	for key, selector := range e.Optional {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		bundle[key] = e.text(key, sel)
	}

	return bundle, nil
}

func (e *Extractor) text(key string, sel *goquery.Selection) string {
	text := Text(sel)
	if re, ok := e.Patterns[key]; ok {
		text = re.FindString(text)
	}
	return text
}

func (e *Extractor) clone() *Extractor {
	c := &Extractor{
		Selectors: e.Selectors,
		Optional:  make(map[string]string, len(e.Optional)+1),
		Patterns:  make(map[string]*regexp.Regexp, len(e.Patterns)+1),
	}
	maps.Copy(c.Optional, e.Optional)
	maps.Copy(c.Patterns, e.Patterns)
	return c
}

// Text returns the visible text of a selection with whitespace collapsed
func Text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
