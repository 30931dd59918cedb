// Package alert derives intervention alerts from streaming analysis
// snapshots and keeps a bounded per-session record of them.
package alert

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is one streaming analysis frame, the input to severity
// derivation.
type Snapshot struct {
	SessionID               string    `json:"session_id"`
	Timestamp               time.Time `json:"timestamp"`
	OverstimulationRisk     float64   `json:"overstimulation_risk"`
	Engagement              float64   `json:"engagement"`
	Attention               float64   `json:"attention"`
	Regulation              float64   `json:"regulation"`
	Indicators              []string  `json:"indicators,omitempty"`
	RecommendedIntervention string    `json:"recommended_intervention,omitempty"`
}

// Severity orders alerts from informational to urgent.
type Severity int

const (
	// SeverityUnspecified represents an invalid severity value.
	SeverityUnspecified Severity = iota
	// SeverityLow is informational.
	SeverityLow
	// SeverityMedium needs facilitator attention soon.
	SeverityMedium
	// SeverityHigh needs prompt facilitator action.
	SeverityHigh
	// SeverityCritical needs immediate intervention.
	SeverityCritical
)

// String returns the wire name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unspecified"
	}
}

// SeverityFor derives alert severity from a snapshot. Overstimulation risk
// dominates, then engagement, then attention.
func SeverityFor(snapshot Snapshot) Severity {
	switch {
	case snapshot.OverstimulationRisk > 0.8:
		return SeverityCritical
	case snapshot.Engagement < 0.3:
		return SeverityHigh
	case snapshot.Attention < 0.3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MarshalJSON encodes the severity as its wire name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Alert is one derived intervention alert.
type Alert struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}

// Resolved reports whether the alert has been resolved.
func (a Alert) Resolved() bool {
	return !a.ResolvedAt.IsZero()
}

// FromSnapshot builds an alert from a snapshot using the injected id
// generator.
func FromSnapshot(snapshot Snapshot, idGenerator func() (string, error)) (Alert, error) {
	alertID, err := idGenerator()
	if err != nil {
		return Alert{}, fmt.Errorf("generate alert id: %w", err)
	}

	severity := SeverityFor(snapshot)
	message := messageFor(severity, snapshot)
	return Alert{
		ID:        alertID,
		SessionID: snapshot.SessionID,
		Severity:  severity,
		Message:   message,
		CreatedAt: snapshot.Timestamp,
	}, nil
}

func messageFor(severity Severity, snapshot Snapshot) string {
	switch severity {
	case SeverityCritical:
		if snapshot.RecommendedIntervention != "" {
			return fmt.Sprintf("overstimulation risk %.2f: start %s now",
				snapshot.OverstimulationRisk, snapshot.RecommendedIntervention)
		}
		return fmt.Sprintf("overstimulation risk %.2f: immediate calming support needed",
			snapshot.OverstimulationRisk)
	case SeverityHigh:
		return fmt.Sprintf("engagement dropped to %.2f: re-engage with a preferred activity",
			snapshot.Engagement)
	case SeverityMedium:
		return fmt.Sprintf("attention dropped to %.2f: consider a short break",
			snapshot.Attention)
	default:
		return "session within expected ranges"
	}
}

// Log is a bounded, oldest-evicting record of alerts for one session. It is
// not safe for concurrent use; the session owner serializes access.
type Log struct {
	capacity int
	alerts   []Alert
}

// NewLog returns a log that retains at most capacity alerts.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 50
	}
	return &Log{capacity: capacity}
}

// Add records an alert, evicting the oldest when at capacity.
func (l *Log) Add(alert Alert) {
	if len(l.alerts) >= l.capacity {
		l.alerts = l.alerts[1:]
	}
	l.alerts = append(l.alerts, alert)
}

// Resolve marks the alert with the given id resolved at the given time.
// It reports whether the alert was found unresolved.
func (l *Log) Resolve(alertID string, at time.Time) bool {
	for i := range l.alerts {
		if l.alerts[i].ID == alertID && !l.alerts[i].Resolved() {
			l.alerts[i].ResolvedAt = at
			return true
		}
	}
	return false
}

// Active returns the unresolved alerts, oldest first.
func (l *Log) Active() []Alert {
	var active []Alert
	for _, alert := range l.alerts {
		if !alert.Resolved() {
			active = append(active, alert)
		}
	}
	return active
}

// All returns every retained alert, oldest first.
func (l *Log) All() []Alert {
	return append([]Alert(nil), l.alerts...)
}

// Len returns the number of retained alerts.
func (l *Log) Len() int {
	return len(l.alerts)
}
