package config

import "time"

// DefaultUserAgent is sent by the browser unless overridden
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Browser window size used for every provider page
const (
	DefaultViewportWidth  = 1000
	DefaultViewportHeight = 1070
)

// DefaultPollInterval is how often a completion predicate is re-checked
const DefaultPollInterval = 2 * time.Second

// OutputFormats lists the formats the report package can render
var OutputFormats = []string{"table", "json", "yaml", "csv"}
