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

// Fire raises a critical alert for every tree with a satellite fire
// detection inside the proximity radius.
type Fire struct {
	cfg         config.FireDetectorConfig
	dedupWindow time.Duration
	feed        FireFeed
	trees       TreeReader
	alerts      AlertCreator
	log         zerolog.Logger
}

// NewFire creates the fire-proximity detector.
func NewFire(cfg config.FireDetectorConfig, dedupWindow time.Duration, feed FireFeed, trees TreeReader, alerts AlertCreator, log zerolog.Logger) *Fire {
	return &Fire{
		cfg:         cfg,
		dedupWindow: dedupWindow,
		feed:        feed,
		trees:       trees,
		alerts:      alerts,
		log:         log.With().Str("detector", "fire").Logger(),
	}
}

// Run scans all trees against the current fire signals. Multiple fires
// near one tree produce at most one alert: the dedup key is per subject
// per category, not per fire.
func (d *Fire) Run(ctx context.Context) ([]alert.Alert, error) {
	signals := d.feed.FetchFireSignals(ctx, d.cfg.WindowDays)
	if len(signals) == 0 {
		d.log.Debug().Msg("no fire signals this run")
		return nil, nil
	}

	trees, err := d.trees.Trees(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trees: %w", err)
	}
	if len(trees) == 0 {
		d.log.Debug().Msg("no trees to scan")
		return nil, nil
	}

	firePoints := make([]geo.Point, len(signals))
	for i, s := range signals {
		firePoints[i] = geo.Point{Latitude: s.Latitude, Longitude: s.Longitude}
	}

	var created []alert.Alert
	for _, tree := range trees {
		p := geo.Point{Latitude: tree.Latitude, Longitude: tree.Longitude}
		if !p.Valid() {
			d.log.Debug().Str("tree", tree.TreeID).Msg("skipping tree without coordinates")
			continue
		}

		matches := geo.NearestWithin(p, firePoints, d.cfg.RadiusKm)
		if len(matches) == 0 {
			continue
		}

		nearest := matches[0]
		signal := signals[nearest.Index]
		a, wasCreated, err := d.alerts.CreateIfAbsent(ctx, store.CreateParams{
			SubjectID:   tree.ID,
			Category:    alert.CategoryFire,
			Severity:    alert.SeverityCritical,
			Title:       fmt.Sprintf("Fire Alert: %.1fkm from tree %s", nearest.DistanceKm, tree.TreeID),
			Message: fmt.Sprintf(
				"Satellite detected fire at (%.4f, %.4f) with brightness %.1fK and %s confidence, %.1fkm from tree %s at %s. Immediate ranger response required.",
				signal.Latitude, signal.Longitude, signal.Intensity, signal.Confidence,
				nearest.DistanceKm, tree.TreeID, tree.LocationName),
			DedupWindow: d.dedupWindow,
		})
		if err != nil {
			d.log.Error().Err(err).Str("tree", tree.TreeID).Msg("creating fire alert failed, continuing")
			continue
		}
		if wasCreated {
			created = append(created, a)
		}
	}

	d.log.Info().Int("signals", len(signals)).Int("trees", len(trees)).Int("alerts", len(created)).
		Msg("fire scan complete")
	return created, nil
}
