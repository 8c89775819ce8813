// Package di provides dependency injection configuration for the harvester.
package di

import (
	"github.com/samber/do/v2"

	"github.com/animap/harvester/internal/config"
	"github.com/animap/harvester/internal/di/providers"
	"github.com/animap/harvester/internal/harvest"
)

// NewContainer creates the DI container. Configuration is loaded from the
// command line and environment.
func NewContainer() *do.RootScope {
	injector := do.New()
	do.Provide(injector, providers.ProvideConfig)
	register(injector)
	return injector
}

// NewContainerWithConfig creates the DI container around a loaded
// configuration.
func NewContainerWithConfig(cfg *config.Config) *do.RootScope {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	register(injector)
	return injector
}

func register(injector do.Injector) {
	// Core infrastructure
	do.Provide(injector, providers.ProvideLogger)

	// Transport
	do.Provide(injector, providers.ProvideRateLimiter)
	do.Provide(injector, providers.ProvideFetcher)
	do.Provide(injector, providers.ProvideSource)

	// Storage
	do.Provide(injector, providers.ProvideCheckpointStore)
	do.Provide(injector, providers.ProvideSink)
	do.Provide(injector, providers.ProvideIndex)
	do.Provide(injector, providers.ProvideRunLog)

	// Engine
	do.Provide(injector, providers.ProvideEngine)
}

// Bootstrap resolves the engine and everything it depends on. A failure here
// is reported before any request is made.
func Bootstrap(injector do.Injector) (*harvest.Engine, error) {
	return do.Invoke[*harvest.Engine](injector)
}
