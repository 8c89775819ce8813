package providers

import (
	"log/slog"
	"time"

	"github.com/samber/do/v2"

	"github.com/animap/harvester/internal/config"
	"github.com/animap/harvester/internal/fetch"
	"github.com/animap/harvester/internal/ratelimit"
	"github.com/animap/harvester/internal/source"
)

// fallbackSpacing paces catalogs without a known spacing.
const fallbackSpacing = time.Second

// RateLimiterHandle wraps the keyed limiter with shutdown capability.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideRateLimiter provides the per-catalog request limiter.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	limiter := ratelimit.New(fallbackSpacing)
	for catalog, spacing := range source.DefaultSpacing {
		limiter.SetInterval(string(catalog), spacing)
	}
	return &RateLimiterHandle{KeyedRateLimiter: limiter}, nil
}

// ProvideFetcher provides the retrying HTTP fetcher.
func ProvideFetcher(i do.Injector) (*fetch.Fetcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	limiter := do.MustInvoke[*RateLimiterHandle](i)

	policy := fetch.RetryPolicy{
		MaxAttempts:        cfg.Fetch.MaxAttempts,
		TransientBackoff:   cfg.Fetch.TransientBackoff,
		ThrottleCooldown:   cfg.Fetch.ThrottleCooldown,
		MaxThrottleRetries: cfg.Fetch.MaxThrottleRetries,
	}

	return fetch.New(limiter.KeyedRateLimiter, policy, log,
		fetch.WithTimeout(cfg.Fetch.RequestTimeout),
	), nil
}
