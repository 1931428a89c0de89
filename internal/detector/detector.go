// Package detector converts raw signals into alerts. Each detector is a
// pure orchestration step: read signals and trees, match, create alerts
// through the store's dedup entry point, and return what was newly
// created for the caller to notify.
package detector

import (
	"context"
	"time"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/ingest"
	"github.com/forestwatch/forestwatch/internal/store"
)

// AlertCreator is the store surface detectors use. CreateIfAbsent is the
// only alert-creation entry point in the system.
type AlertCreator interface {
	CreateIfAbsent(ctx context.Context, p store.CreateParams) (alert.Alert, bool, error)
}

// TreeReader provides the tree read model.
type TreeReader interface {
	Trees(ctx context.Context) ([]alert.Tree, error)
	RecentlyDeclined(ctx context.Context, lookback time.Duration) ([]alert.Tree, error)
	CountDeclinedSince(ctx context.Context, lookback time.Duration) (int, error)
	FirstDeclining(ctx context.Context) (alert.Tree, error)
}

// FireFeed provides fire detections.
type FireFeed interface {
	FetchFireSignals(ctx context.Context, windowDays int) []ingest.SignalEvent
}

// VegetationFeed provides point NDVI observations.
type VegetationFeed interface {
	FetchVegetationIndex(ctx context.Context, lat, lon float64) (ingest.VegetationIndex, error)
}
