package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/config"
	"github.com/forestwatch/forestwatch/internal/store"
)

// Health raises alerts for trees whose recorded health status recently
// moved to a degraded state.
type Health struct {
	cfg         config.HealthDetectorConfig
	dedupWindow time.Duration
	trees       TreeReader
	alerts      AlertCreator
	log         zerolog.Logger
}

// NewHealth creates the health-decline detector.
func NewHealth(cfg config.HealthDetectorConfig, dedupWindow time.Duration, trees TreeReader, alerts AlertCreator, log zerolog.Logger) *Health {
	return &Health{
		cfg:         cfg,
		dedupWindow: dedupWindow,
		trees:       trees,
		alerts:      alerts,
		log:         log.With().Str("detector", "health").Logger(),
	}
}

func declineSeverity(status alert.HealthStatus) alert.Severity {
	if status == alert.HealthDiseased || status == alert.HealthDead {
		return alert.SeverityHigh
	}
	return alert.SeverityMedium
}

// Run scans for trees that declined within the lookback window. The dedup
// key suppresses a second alert for trees already alerted on in the last
// dedup window.
func (d *Health) Run(ctx context.Context) ([]alert.Alert, error) {
	declined, err := d.trees.RecentlyDeclined(ctx, d.cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("loading declined trees: %w", err)
	}
	if len(declined) == 0 {
		d.log.Debug().Msg("no health changes this run")
		return nil, nil
	}

	var created []alert.Alert
	for _, tree := range declined {
		if !tree.HealthStatus.Declined() {
			continue
		}
		a, wasCreated, err := d.alerts.CreateIfAbsent(ctx, store.CreateParams{
			SubjectID: tree.ID,
			Category:  alert.CategoryHealthDecline,
			Severity:  declineSeverity(tree.HealthStatus),
			Title:     fmt.Sprintf("Tree health changed: %s", tree.HealthStatus),
			Message: fmt.Sprintf(
				"Tree %s at %s has changed to %s status. Immediate ranger inspection recommended.",
				tree.TreeID, tree.LocationName, tree.HealthStatus),
			DedupWindow: d.dedupWindow,
		})
		if err != nil {
			d.log.Error().Err(err).Str("tree", tree.TreeID).Msg("creating health alert failed, continuing")
			continue
		}
		if wasCreated {
			created = append(created, a)
		}
	}

	d.log.Info().Int("declined", len(declined)).Int("alerts", len(created)).Msg("health scan complete")
	return created, nil
}
