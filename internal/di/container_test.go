package di

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animap/harvester/internal/config"
	"github.com/animap/harvester/internal/di/providers"
	"github.com/animap/harvester/internal/domain"
	"github.com/animap/harvester/internal/source"
)

func testConfig(t *testing.T, target string) *config.Config {
	t.Helper()
	out := t.TempDir()
	return &config.Config{
		App:    config.AppConfig{Environment: "test"},
		Logger: config.LoggerConfig{Level: "error"},
		Harvest: config.HarvestConfig{
			Target:        target,
			Mode:          "update",
			Freshness:     time.Hour,
			Workers:       2,
			BatchSize:     10,
			ProgressEvery: 10,
			YearStart:     2020,
			YearEnd:       2021,
		},
		Paths: config.PathsConfig{
			Output:   out,
			StateDir: t.TempDir(),
			Index:    filepath.Join(out, ".index"),
			RunLog:   filepath.Join(out, "runs.db"),
		},
		Fetch: config.FetchConfig{
			MaxAttempts:    1,
			RequestTimeout: time.Second,
		},
		Credentials: config.CredentialsConfig{SimklClientID: "client"},
	}
}

func TestBootstrap_WiresEngine(t *testing.T) {
	injector := NewContainerWithConfig(testConfig(t, "kitsu-manga"))
	defer injector.Shutdown()

	engine, err := Bootstrap(injector)
	require.NoError(t, err)
	assert.NotNil(t, engine)

	src := do.MustInvoke[source.Source](injector)
	assert.Equal(t, domain.Target{Catalog: domain.CatalogKitsu, Kind: domain.KindManga}, src.Target())

	limiter := do.MustInvoke[*providers.RateLimiterHandle](injector)
	assert.Equal(t, source.DefaultSpacing[domain.CatalogKitsu], limiter.Interval("kitsu"))
}

func TestProvideSource_EveryTarget(t *testing.T) {
	for _, target := range domain.Targets() {
		t.Run(target.String(), func(t *testing.T) {
			injector := NewContainerWithConfig(testConfig(t, target.String()))
			defer injector.Shutdown()

			src, err := do.Invoke[source.Source](injector)
			require.NoError(t, err)
			assert.Equal(t, target, src.Target())

			switch src.(type) {
			case source.Pager, source.Discoverer:
			default:
				t.Fatalf("source %T can neither page nor discover", src)
			}
		})
	}
}

func TestProvideSource_SimklNeedsClientID(t *testing.T) {
	cfg := testConfig(t, "simkl-tv")
	cfg.Credentials.SimklClientID = ""

	injector := NewContainerWithConfig(cfg)
	defer injector.Shutdown()

	_, err := do.Invoke[source.Source](injector)
	assert.Error(t, err)
}
