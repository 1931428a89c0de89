// Package ingest pulls raw external observations and normalizes them into
// signal events. Provider failures degrade to deterministic stub data so a
// scheduled scan never aborts on a flaky feed.
package ingest

import "time"

// SignalKind distinguishes signal families.
type SignalKind string

const (
	KindFire       SignalKind = "fire"
	KindVegetation SignalKind = "vegetation"
)

// SignalEvent is a normalized external observation. Ephemeral: consumed
// within one detector run, never persisted.
type SignalEvent struct {
	Kind       SignalKind
	Latitude   float64
	Longitude  float64
	Intensity  float64
	ObservedAt time.Time
	Confidence string
}

// VegetationIndex is a point NDVI observation in [-1, 1].
type VegetationIndex struct {
	Index      float64
	ObservedAt time.Time
}

// OutbreakSignal is a disease-outbreak aggregate from the external
// classifier, delivered over the outbreak topic.
type OutbreakSignal struct {
	SpeciesID     string    `json:"species_id"`
	SpeciesName   string    `json:"species_name"`
	DiseaseName   string    `json:"disease_name"`
	AffectedCount int       `json:"affected_count"`
	ObservedAt    time.Time `json:"observed_at"`
}
