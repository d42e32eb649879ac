package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// UnknownServer is reported when a provider does not expose a server label
const UnknownServer = "unknown"

// Bundle keys emitted by site adapters
const (
	KeyPing     = "ping"
	KeyDownload = "download"
	KeyUpload   = "upload"
	KeyServer   = "server"
)

// RawMetricBundle holds the text values read from a provider page, keyed by
// KeyPing, KeyDownload, KeyUpload and KeyServer
type RawMetricBundle map[string]string

// Metric is a measured value that may be absent. The zero value is Missing.
type Metric struct {
	value   float64
	present bool
}

// Missing marks a metric that could not be read or parsed
var Missing = Metric{}

// Value returns a present metric, or Missing when v is not a finite
// non-negative number
func Value(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Missing
	}
	return Metric{value: v, present: true}
}

// Float returns the value and whether it is present
func (m Metric) Float() (float64, bool) {
	return m.value, m.present
}

// IsMissing reports whether m is the absent-value marker
func (m Metric) IsMissing() bool {
	return !m.present
}

// String formats the metric with two decimals, or "-" when missing
func (m Metric) String() string {
	if !m.present {
		return "-"
	}
	return strconv.FormatFloat(m.value, 'f', 2, 64)
}

// MarshalJSON encodes a missing metric as null
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.present {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}

// UnmarshalJSON accepts a number or null
func (m *Metric) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*m = Missing
		return nil
	}
	*m = Value(*v)
	return nil
}

// MarshalYAML encodes a missing metric as null
func (m Metric) MarshalYAML() (interface{}, error) {
	if !m.present {
		return nil, nil
	}
	return m.value, nil
}

// MeasurementResult is the normalized outcome of one provider run
type MeasurementResult struct {
	Provider  string        `json:"provider" yaml:"provider"`
	URL       string        `json:"url" yaml:"url"`
	Ping      Metric        `json:"pingMs" yaml:"ping_ms"`
	Download  Metric        `json:"downloadMbps" yaml:"download_mbps"`
	Upload    Metric        `json:"uploadMbps" yaml:"upload_mbps"`
	Server    string        `json:"server" yaml:"server"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
}

// Complete reports whether every numeric field was measured
func (r MeasurementResult) Complete() bool {
	return !r.Ping.IsMissing() && !r.Download.IsMissing() && !r.Upload.IsMissing()
}
