package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/config"
	"github.com/forestwatch/forestwatch/internal/ingest"
	"github.com/forestwatch/forestwatch/internal/store"
)

// Outbreak aggregates classifier disease signals into a single alert per
// species. Keying on the species rather than individual trees avoids an
// alert storm when an outbreak touches dozens of trees at once.
type Outbreak struct {
	cfg         config.OutbreakDetectorConfig
	dedupWindow time.Duration
	alerts      AlertCreator
	log         zerolog.Logger
}

// NewOutbreak creates the disease-outbreak aggregator.
func NewOutbreak(cfg config.OutbreakDetectorConfig, dedupWindow time.Duration, alerts AlertCreator, log zerolog.Logger) *Outbreak {
	return &Outbreak{
		cfg:         cfg,
		dedupWindow: dedupWindow,
		alerts:      alerts,
		log:         log.With().Str("detector", "outbreak").Logger(),
	}
}

// HandleSignal processes one classifier signal. Returns the created alert,
// or nil when the signal is below threshold or deduplicated.
func (d *Outbreak) HandleSignal(ctx context.Context, signal ingest.OutbreakSignal) (*alert.Alert, error) {
	if signal.SpeciesID == "" || signal.DiseaseName == "" {
		return nil, fmt.Errorf("outbreak signal missing species or disease name")
	}
	if signal.AffectedCount < d.cfg.MinAffected {
		d.log.Debug().
			Str("species", signal.SpeciesName).
			Str("disease", signal.DiseaseName).
			Int("affected", signal.AffectedCount).
			Msg("outbreak signal below threshold")
		return nil, nil
	}

	a, created, err := d.alerts.CreateIfAbsent(ctx, store.CreateParams{
		SubjectID: "species:" + signal.SpeciesID,
		Category:  alert.CategoryDiseaseOutbreak,
		Severity:  alert.SeverityCritical,
		Title:     fmt.Sprintf("Disease outbreak: %s", signal.DiseaseName),
		Message: fmt.Sprintf(
			"Classifier detected %s affecting %d %s trees. Quarantine measures recommended.",
			signal.DiseaseName, signal.AffectedCount, signal.SpeciesName),
		DedupWindow: d.dedupWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("creating outbreak alert: %w", err)
	}
	if !created {
		d.log.Debug().Str("species", signal.SpeciesID).Msg("outbreak already alerted")
		return nil, nil
	}
	return &a, nil
}
