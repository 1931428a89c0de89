package alert

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity is the ordered alert severity scale.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity rejects unknown severity strings instead of passing them through.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if name == s {
			return sev, nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", s)
}

// MarshalJSON renders the severity by name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Category identifies the threat family an alert belongs to.
type Category string

const (
	CategoryFire             Category = "fire"
	CategoryVegetationStress Category = "vegetation_stress"
	CategoryHealthDecline    Category = "health_decline"
	CategoryDiseaseOutbreak  Category = "disease_outbreak"
	CategoryGeneric          Category = "generic"
)

// ParseCategory rejects unknown category strings.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryFire, CategoryVegetationStress, CategoryHealthDecline,
		CategoryDiseaseOutbreak, CategoryGeneric:
		return c, nil
	}
	return CategoryGeneric, fmt.Errorf("unknown category %q", s)
}

// Alert is a persisted record of a detected threat condition requiring
// ranger attention. Immutable after creation except for the resolution
// fields and the notified flag.
type Alert struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	Category   Category   `json:"category"`
	Severity   Severity   `json:"severity"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Notified   bool       `json:"notified"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Tree is the read model of a monitored tree. Owned elsewhere; detectors
// only read it.
type Tree struct {
	ID              string
	TreeID          string
	Latitude        float64
	Longitude       float64
	LocationName    string
	HealthStatus    HealthStatus
	LastHealthCheck time.Time
}

// HealthStatus is the recorded health state of a tree.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDeclining HealthStatus = "declining"
	HealthDiseased  HealthStatus = "diseased"
	HealthDead      HealthStatus = "dead"
)

// Declined reports whether the status is one of the degraded states that
// warrant an alert.
func (h HealthStatus) Declined() bool {
	return h == HealthDeclining || h == HealthDiseased || h == HealthDead
}

// Responder is the read model of a ranger or admin eligible for
// notifications.
type Responder struct {
	ID       string
	Name     string
	Phone    string
	Email    string
	Role     string
	IsActive bool
}
