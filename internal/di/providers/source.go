package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/animap/harvester/internal/config"
	"github.com/animap/harvester/internal/domain"
	herrors "github.com/animap/harvester/internal/errors"
	"github.com/animap/harvester/internal/fetch"
	"github.com/animap/harvester/internal/logger"
	"github.com/animap/harvester/internal/source"
	"github.com/animap/harvester/internal/source/anilist"
	"github.com/animap/harvester/internal/source/jikan"
	"github.com/animap/harvester/internal/source/kitsu"
	"github.com/animap/harvester/internal/source/simkl"
)

// ProvideSource provides the client for the configured target.
func ProvideSource(i do.Injector) (source.Source, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	fetcher := do.MustInvoke[*fetch.Fetcher](i)

	target := cfg.Target()
	log = logger.ForTarget(log, target)

	switch target.Catalog {
	case domain.CatalogAniList:
		if cfg.Credentials.AniListToken == "" {
			log.Warn("ANILIST_TOKEN not set, adult entries will be missing")
		}
		return anilist.New(fetcher, target.Kind, cfg.Credentials.AniListToken, log), nil
	case domain.CatalogMAL:
		return jikan.New(fetcher, target.Kind, log), nil
	case domain.CatalogKitsu:
		return kitsu.New(fetcher, target.Kind, log), nil
	case domain.CatalogSimkl:
		c, err := simkl.New(fetcher, target.Kind, cfg.Credentials.SimklClientID, log,
			simkl.WithYears(cfg.Harvest.YearStart, cfg.Harvest.YearEnd),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, herrors.Configurationf("no source for target %s", target)
	}
}
