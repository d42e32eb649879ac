package site

import (
	"context"
	"fmt"

	"github.com/williampepple1/speedscraper/internal/extraction"
	"github.com/williampepple1/speedscraper/internal/page"
	"github.com/williampepple1/speedscraper/pkg/models"
)

// Speedtest drives speedtest.net, which needs the Go button clicked
type Speedtest struct {
	descriptor
	extractor *extraction.Extractor
}

// NewSpeedtest creates the speedtest.net adapter
func NewSpeedtest() Speedtest {
	return Speedtest{
		descriptor: descriptor{
			name:       "speedtest",
			url:        "https://www.speedtest.net",
			ready:      page.ReadyCondition{page.NetworkIdle, page.DOMContentLoaded},
			trigger:    ".js-start-test",
			completion: hasText(".upload-speed"),
		},
		extractor: metricExtractor(".ping-speed", ".download-speed", ".upload-speed", ".js-sponsor-name"),
	}
}

func (a Speedtest) Extract(ctx context.Context, pg page.Page, _ *page.Poller) (models.RawMetricBundle, error) {
	doc, err := pg.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	bundle, err := a.extractor.Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return bundle, nil
}
