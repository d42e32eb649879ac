package proxy

import (
	"fmt"
	"math/rand"
	"net/url"

	"github.com/williampepple1/speedscraper/internal/config"
)

// Manager picks the proxy the browser is launched behind
type Manager struct {
	Config *config.ProxyConfig
	rng    *rand.Rand
}

// NewManager creates a new proxy manager
func NewManager(cfg *config.ProxyConfig, rng *rand.Rand) *Manager {
	return &Manager{
		Config: cfg,
		rng:    rng,
	}
}

// Server returns the value for Chrome's --proxy-server flag, or "" when
// proxying is disabled. With rotation enabled a random entry is chosen.
func (m *Manager) Server() (string, error) {
	if m.Config == nil || !m.Config.Enabled || len(m.Config.List) == 0 {
		return "", nil
	}

	proxyStr := m.Config.List[0]
	if m.Config.Rotate && len(m.Config.List) > 1 && m.rng != nil {
		proxyStr = m.Config.List[m.rng.Intn(len(m.Config.List))]
	}

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return "", fmt.Errorf("parse proxy %q: %w", proxyStr, err)
	}
	if proxyURL.Scheme == "" || proxyURL.Host == "" {
		return "", fmt.Errorf("proxy %q must be scheme://host:port", proxyStr)
	}
	if proxyURL.User != nil {
		return "", fmt.Errorf("proxy %q: chrome does not accept credentials in --proxy-server", proxyStr)
	}

	return proxyURL.Scheme + "://" + proxyURL.Host, nil
}
