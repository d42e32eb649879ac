// Package report renders measurement results for the operator.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"github.com/williampepple1/speedscraper/pkg/models"
)

var headers = []string{"Provider", "Ping (ms)", "Download (Mbps)", "Upload (Mbps)", "Server"}

// Presenter writes results in one of the supported formats
type Presenter struct {
	out    io.Writer
	format string
	color  bool
}

// NewPresenter creates a presenter writing to out
func NewPresenter(out io.Writer, format string, color bool) *Presenter {
	return &Presenter{out: out, format: format, color: color}
}

// Render writes results in the configured format
func (p *Presenter) Render(results []models.MeasurementResult) error {
	switch p.format {
	case "", "table":
		return p.table(results)
	case "json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	case "csv":
		return p.csv(results)
	default:
		return fmt.Errorf("unsupported output format: %s", p.format)
	}
}

func row(r models.MeasurementResult) []string {
	return []string{r.Provider, r.Ping.String(), r.Download.String(), r.Upload.String(), r.Server}
}

func (p *Presenter) table(results []models.MeasurementResult) error {
	renderer := lipgloss.NewRenderer(p.out)
	if !p.color {
		renderer.SetColorProfile(termenv.Ascii)
	}

	headerStyle := renderer.NewStyle().Bold(true).Padding(0, 1).
		Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"})
	cellStyle := renderer.NewStyle().Padding(0, 1)
	missingStyle := cellStyle.
		Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFAA00"})
	borderStyle := renderer.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#444444"})

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, row(r))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(r, c int) lipgloss.Style {
			if r == table.HeaderRow {
				return headerStyle
			}
			if r >= 0 && r < len(rows) && rows[r][c] == "-" {
				return missingStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(p.out, t.Render())
	return err
}

func (p *Presenter) csv(results []models.MeasurementResult) error {
	w := csv.NewWriter(p.out)
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write(row(r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
