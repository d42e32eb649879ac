package site

import (
	"context"
	"fmt"

	"github.com/williampepple1/speedscraper/internal/extraction"
	"github.com/williampepple1/speedscraper/internal/page"
	"github.com/williampepple1/speedscraper/pkg/models"
)

const minhaConexaoRow = "table > tbody > tr"

// MinhaConexao reads the first row of the results table on
// minhaconexao.com.br. Values use a comma decimal separator.
type MinhaConexao struct {
	descriptor
	extractor *extraction.Extractor
}

// NewMinhaConexao creates the minhaconexao.com.br adapter
func NewMinhaConexao() MinhaConexao {
	cell := func(n int) string { return fmt.Sprintf("%s > td:nth-child(%d)", minhaConexaoRow, n) }

	return MinhaConexao{
		descriptor: descriptor{
			name:       "minhaconexao",
			url:        "https://www.minhaconexao.com.br",
			ready:      page.ReadyCondition{page.NetworkIdle, page.DOMContentLoaded},
			completion: exists(minhaConexaoRow),
		},
		extractor: metricExtractor(cell(5), cell(6), cell(7), cell(4)),
	}
}

func (a MinhaConexao) Extract(ctx context.Context, pg page.Page, _ *page.Poller) (models.RawMetricBundle, error) {
	doc, err := pg.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("read results table: %w", err)
	}
	bundle, err := a.extractor.Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("read results table: %w", err)
	}
	return bundle, nil
}
