package site

import (
	"context"
	"fmt"

	"github.com/williampepple1/speedscraper/internal/extraction"
	"github.com/williampepple1/speedscraper/internal/page"
	"github.com/williampepple1/speedscraper/pkg/models"
)

const (
	fastDetailsLink = "#show-more-details-link"
	fastUploadDone  = ".succeeded#upload-value"
)

// Fast drives fast.com. The download test starts on load; latency and
// upload are only measured after the details panel is opened.
type Fast struct {
	descriptor
	extractor *extraction.Extractor
}

// NewFast creates the fast.com adapter
func NewFast() Fast {
	return Fast{
		descriptor: descriptor{
			name:       "fast",
			url:        "https://fast.com",
			ready:      page.ReadyCondition{page.DOMContentLoaded},
			completion: exists(".succeeded#speed-value"),
		},
		extractor: metricExtractor("#latency-value", "#speed-value", "#upload-value", "#server-locations, .server-location"),
	}
}

func (a Fast) Extract(ctx context.Context, pg page.Page, poller *page.Poller) (models.RawMetricBundle, error) {
	if err := pg.Click(ctx, fastDetailsLink); err != nil {
		return nil, fmt.Errorf("open details: %w", err)
	}
	if err := poller.Await(ctx, pg, exists(fastUploadDone)); err != nil {
		return nil, fmt.Errorf("wait for upload: %w", err)
	}

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
