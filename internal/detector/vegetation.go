package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/config"
	"github.com/forestwatch/forestwatch/internal/geo"
	"github.com/forestwatch/forestwatch/internal/store"
)

// indexClass buckets an NDVI value.
type indexClass int

const (
	classHealthy indexClass = iota
	classModerate
	classStressed
	classCritical
)

func (c indexClass) String() string {
	switch c {
	case classHealthy:
		return "healthy"
	case classModerate:
		return "moderate"
	case classStressed:
		return "stressed"
	default:
		return "critical"
	}
}

// Vegetation raises stress alerts when the vegetation index of a
// currently-healthy tree drops into the stressed or critical band.
type Vegetation struct {
	cfg         config.VegetationDetectorConfig
	dedupWindow time.Duration
	feed        VegetationFeed
	trees       TreeReader
	alerts      AlertCreator
	log         zerolog.Logger
}

// NewVegetation creates the vegetation-stress detector.
func NewVegetation(cfg config.VegetationDetectorConfig, dedupWindow time.Duration, feed VegetationFeed, trees TreeReader, alerts AlertCreator, log zerolog.Logger) *Vegetation {
	return &Vegetation{
		cfg:         cfg,
		dedupWindow: dedupWindow,
		feed:        feed,
		trees:       trees,
		alerts:      alerts,
		log:         log.With().Str("detector", "vegetation").Logger(),
	}
}

func (d *Vegetation) classify(index float64) indexClass {
	switch {
	case index > d.cfg.HealthyAbove:
		return classHealthy
	case index > d.cfg.ModerateAbove:
		return classModerate
	case index > d.cfg.StressedAbove:
		return classStressed
	default:
		return classCritical
	}
}

// Run fetches the vegetation index for every tree and alerts on stress.
// Trees already recorded as unhealthy are skipped: the stress is a known
// problem and rangers are already on it.
func (d *Vegetation) Run(ctx context.Context) ([]alert.Alert, error) {
	trees, err := d.trees.Trees(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trees: %w", err)
	}

	var created []alert.Alert
	for _, tree := range trees {
		if tree.HealthStatus != alert.HealthHealthy {
			continue
		}
		p := geo.Point{Latitude: tree.Latitude, Longitude: tree.Longitude}
		if !p.Valid() {
			d.log.Debug().Str("tree", tree.TreeID).Msg("skipping tree without coordinates")
			continue
		}

		idx, err := d.feed.FetchVegetationIndex(ctx, tree.Latitude, tree.Longitude)
		if err != nil {
			d.log.Error().Err(err).Str("tree", tree.TreeID).Msg("vegetation index fetch failed, skipping tree")
			continue
		}

		class := d.classify(idx.Index)
		if class != classStressed && class != classCritical {
			continue
		}

		severity := alert.SeverityMedium
		if class == classCritical {
			severity = alert.SeverityCritical
		}

		a, wasCreated, err := d.alerts.CreateIfAbsent(ctx, store.CreateParams{
			SubjectID: tree.ID,
			Category:  alert.CategoryVegetationStress,
			Severity:  severity,
			Title:     fmt.Sprintf("Vegetation stress detected: tree %s", tree.TreeID),
			Message: fmt.Sprintf(
				"NDVI analysis shows %s vegetation (index %.3f) for tree %s at %s. Possible drought or disease; ranger inspection recommended.",
				class, idx.Index, tree.TreeID, tree.LocationName),
			DedupWindow: d.dedupWindow,
		})
		if err != nil {
			d.log.Error().Err(err).Str("tree", tree.TreeID).Msg("creating vegetation alert failed, continuing")
			continue
		}
		if wasCreated {
			created = append(created, a)
		}
	}

	d.log.Info().Int("trees", len(trees)).Int("alerts", len(created)).Msg("vegetation scan complete")
	return created, nil
}
