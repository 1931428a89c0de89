package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/config"
	"github.com/forestwatch/forestwatch/internal/store"
)

// Trend watches for many trees declining at once, which usually means a
// regional problem (drought, pest wave) rather than individual tree issues.
type Trend struct {
	cfg         config.TrendDetectorConfig
	dedupWindow time.Duration
	trees       TreeReader
	alerts      AlertCreator
	log         zerolog.Logger
}

// NewTrend creates the health-trend aggregator.
func NewTrend(cfg config.TrendDetectorConfig, dedupWindow time.Duration, trees TreeReader, alerts AlertCreator, log zerolog.Logger) *Trend {
	return &Trend{
		cfg:         cfg,
		dedupWindow: dedupWindow,
		trees:       trees,
		alerts:      alerts,
		log:         log.With().Str("detector", "trend").Logger(),
	}
}

// Run counts recently declined trees and raises one aggregate alert when
// the count crosses the threshold. The aggregate has its own subject so
// it never collides with per-tree health alerts.
func (d *Trend) Run(ctx context.Context) ([]alert.Alert, error) {
	count, err := d.trees.CountDeclinedSince(ctx, d.cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("counting declined trees: %w", err)
	}
	if count <= d.cfg.MinDeclining {
		d.log.Debug().Int("declined", count).Msg("decline count below trend threshold")
		return nil, nil
	}

	location := "multiple locations"
	if representative, err := d.trees.FirstDeclining(ctx); err == nil {
		location = representative.LocationName
	} else if !errors.Is(err, store.ErrNotFound) {
		d.log.Warn().Err(err).Msg("looking up representative tree failed")
	}

	a, created, err := d.alerts.CreateIfAbsent(ctx, store.CreateParams{
		SubjectID: "trend:health-decline",
		Category:  alert.CategoryGeneric,
		Severity:  alert.SeverityHigh,
		Title:     fmt.Sprintf("Health trend alert: %d trees declining", count),
		Message: fmt.Sprintf(
			"%d trees show declining health in the past %s (around %s). Immediate investigation recommended.",
			count, d.cfg.Lookback, location),
		DedupWindow: d.dedupWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("creating trend alert: %w", err)
	}
	if !created {
		return nil, nil
	}

	d.log.Info().Int("declined", count).Msg("health trend alert raised")
	return []alert.Alert{a}, nil
}
