package scheduler

import (
	"time"

	"golang.org/x/time/rate"
)

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent job workers across all connectors.
	GlobalMax int `yaml:"global_max"`
	// ByConnector defines per-connector concurrency limits.
	ByConnector map[string]int `yaml:"by_connector"`
	// PollInterval is how often the queue is checked for enqueued jobs.
	PollInterval time.Duration `yaml:"poll_interval"`
	// DispatchPerSec caps how many jobs are started per second. Zero means no cap.
	DispatchPerSec int `yaml:"dispatch_per_sec"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax: 10,
		ByConnector: map[string]int{
			"localexec": 5,
		},
		PollInterval: time.Second,
	}
}

// GetConnectorLimit returns the concurrency limit for a connector.
func (c *Config) GetConnectorLimit(connectorName string) int {
	if limit, ok := c.ByConnector[connectorName]; ok {
		return limit
	}
	return 1
}

func (c *Config) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return time.Second
	}
	return c.PollInterval
}

// limiter returns the dispatch token bucket, or nil when dispatch is uncapped.
func (c *Config) limiter() *rate.Limiter {
	if c.DispatchPerSec <= 0 {
		return nil
	}
	// burst = rate per sec, so a freshly filled queue starts a second's worth at once.
	return rate.NewLimiter(rate.Limit(c.DispatchPerSec), c.DispatchPerSec)
}
