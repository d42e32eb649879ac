// Package metric converts page text into numeric measurements.
package metric

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/williampepple1/speedscraper/pkg/models"
)

// leadingNumber matches the numeric prefix of a value such as "12.5 Mbps"
var leadingNumber = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)

// Parse converts text to a metric. A comma decimal separator is replaced
// with a period before parsing. Anything that does not start with a number
// yields models.Missing.
func Parse(text string) models.Metric {
	s := strings.TrimSpace(text)
	if s == "" {
		return models.Missing
	}
	s = strings.Replace(s, ",", ".", 1)

	token := leadingNumber.FindString(s)
	if token == "" {
		return models.Missing
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return models.Missing
	}
	return models.Value(v)
}

// Normalize builds a MeasurementResult from a raw bundle. Each field is
// parsed independently so one bad value leaves the others intact.
func Normalize(provider, url string, raw models.RawMetricBundle) models.MeasurementResult {
	server := strings.TrimSpace(raw[models.KeyServer])
	if server == "" {
		server = models.UnknownServer
	}

	return models.MeasurementResult{
		Provider:  provider,
		URL:       url,
		Ping:      Parse(raw[models.KeyPing]),
		Download:  Parse(raw[models.KeyDownload]),
		Upload:    Parse(raw[models.KeyUpload]),
		Server:    server,
		Timestamp: time.Now(),
	}
}
