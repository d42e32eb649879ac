// Package site describes the speed test providers the engine visits.
//
// Each provider is an Adapter: where to navigate, when the page is ready,
// what to click to start the test, how to recognize that the test finished
// and how to read its numbers. Adapters are immutable values; the same
// instance can be shared by any number of runs.
package site

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/williampepple1/speedscraper/internal/extraction"
	"github.com/williampepple1/speedscraper/internal/page"
	"github.com/williampepple1/speedscraper/pkg/models"
)

// Adapter is the contract every provider implements
type Adapter interface {
	Name() string
	TargetURL() string
	ReadyCondition() page.ReadyCondition
	// TriggerSelector returns the control to click before waiting, or ""
	TriggerSelector() string
	Completion() page.Predicate
	// Extract reads the raw metrics once Completion holds. It may perform
	// its own clicks and waits on pg.
	Extract(ctx context.Context, pg page.Page, poller *page.Poller) (models.RawMetricBundle, error)
}

// descriptor carries the static part shared by all adapters
type descriptor struct {
	name       string
	url        string
	ready      page.ReadyCondition
	trigger    string
	completion page.Predicate
}

func (d descriptor) Name() string               { return d.name }
func (d descriptor) TargetURL() string          { return d.url }
func (d descriptor) TriggerSelector() string    { return d.trigger }
func (d descriptor) Completion() page.Predicate { return d.completion }
func (d descriptor) ReadyCondition() page.ReadyCondition {
	return append(page.ReadyCondition(nil), d.ready...)
}

// Builtin returns every supported provider in run order
func Builtin() []Adapter {
	return []Adapter{
		NewMinhaConexao(),
		NewFast(),
		NewSpeedtest(),
	}
}

// Names lists the builtin provider names in run order
func Names() []string {
	return NamesOf(Builtin())
}

// NamesOf returns the names of adapters
func NamesOf(adapters []Adapter) []string {
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	return names
}

// Select returns the builtin adapters named in names, in the order given.
// An empty list selects every builtin adapter.
func Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		return Builtin(), nil
	}

	byName := make(map[string]Adapter)
	for _, a := range Builtin() {
		byName[a.Name()] = a
	}

	seen := make(map[string]bool)
	var selected []Adapter
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		a, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q (available: %s)", raw, strings.Join(Names(), ", "))
		}
		if seen[name] {
			return nil, fmt.Errorf("provider %q listed more than once", raw)
		}
		seen[name] = true
		selected = append(selected, a)
	}

	return selected, nil
}

// exists builds a predicate that holds once selector matches an element
func exists(selector string) page.Predicate {
	return page.Predicate(fmt.Sprintf("document.querySelector(%q)", selector))
}

// hasText builds a predicate that holds once selector has non-blank text
func hasText(selector string) page.Predicate {
	return page.Predicate(fmt.Sprintf(
		"(function(){var el=document.querySelector(%q);return el!==null&&el.innerText.trim().length>0;})()",
		selector,
	))
}

// numericToken keeps the number of a metric text and drops the unit or
// label around it
var numericToken = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// metricExtractor reads ping, download and upload from required selectors.
// The server label is optional and skipped when server is empty.
func metricExtractor(ping, download, upload, server string) *extraction.Extractor {
	e := extraction.NewExtractor(map[string]string{
		models.KeyPing:     ping,
		models.KeyDownload: download,
		models.KeyUpload:   upload,
	})
	for _, key := range []string{models.KeyPing, models.KeyDownload, models.KeyUpload} {
		e = e.WithPattern(key, numericToken)
	}
	if server != "" {
		e = e.WithOptional(models.KeyServer, server)
	}
	return e
}
