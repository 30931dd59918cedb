package alert

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		severity Severity
	}{
		{
			name:     "high risk is critical",
			snapshot: Snapshot{OverstimulationRisk: 0.85, Engagement: 0.9, Attention: 0.9},
			severity: SeverityCritical,
		},
		{
			name:     "risk dominates low engagement",
			snapshot: Snapshot{OverstimulationRisk: 0.81, Engagement: 0.1, Attention: 0.1},
			severity: SeverityCritical,
		},
		{
			name:     "low engagement is high",
			snapshot: Snapshot{OverstimulationRisk: 0.2, Engagement: 0.2, Attention: 0.9},
			severity: SeverityHigh,
		},
		{
			name:     "low attention is medium",
			snapshot: Snapshot{OverstimulationRisk: 0.2, Engagement: 0.6, Attention: 0.2},
			severity: SeverityMedium,
		},
		{
			name:     "nominal is low",
			snapshot: Snapshot{OverstimulationRisk: 0.2, Engagement: 0.6, Attention: 0.6},
			severity: SeverityLow,
		},
		{
			name:     "boundary risk is not critical",
			snapshot: Snapshot{OverstimulationRisk: 0.8, Engagement: 0.6, Attention: 0.6},
			severity: SeverityLow,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := SeverityFor(test.snapshot); got != test.severity {
				t.Fatalf("expected %v, got %v", test.severity, got)
			}
		})
	}
}

func TestFromSnapshot(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	snapshot := Snapshot{
		SessionID:               "session-1",
		Timestamp:               now,
		OverstimulationRisk:     0.9,
		RecommendedIntervention: "deep-breathing",
	}
	idGenerator := func() (string, error) { return "alert-1", nil }

	got, err := FromSnapshot(snapshot, idGenerator)
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}
	if got.ID != "alert-1" {
		t.Fatalf("expected alert-1, got %s", got.ID)
	}
	if got.Severity != SeverityCritical {
		t.Fatalf("expected critical, got %v", got.Severity)
	}
	if !strings.Contains(got.Message, "deep-breathing") {
		t.Fatalf("expected message to name the intervention, got %q", got.Message)
	}
	if got.Resolved() {
		t.Fatal("expected new alert unresolved")
	}
}

func TestFromSnapshotIDError(t *testing.T) {
	idGenerator := func() (string, error) { return "", fmt.Errorf("entropy exhausted") }
	if _, err := FromSnapshot(Snapshot{}, idGenerator); err == nil {
		t.Fatal("expected error from id generator")
	}
}

func TestLogEvictsOldest(t *testing.T) {
	log := NewLog(3)
	for i := 0; i < 5; i++ {
		log.Add(Alert{ID: fmt.Sprintf("alert-%d", i), Severity: SeverityLow})
	}

	if log.Len() != 3 {
		t.Fatalf("expected 3 retained alerts, got %d", log.Len())
	}
	all := log.All()
	if all[0].ID != "alert-2" || all[2].ID != "alert-4" {
		t.Fatalf("expected oldest eviction, got %v", all)
	}
}

func TestLogResolve(t *testing.T) {
	log := NewLog(10)
	log.Add(Alert{ID: "alert-1", Severity: SeverityHigh})
	log.Add(Alert{ID: "alert-2", Severity: SeverityLow})

	resolvedAt := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)
	if !log.Resolve("alert-1", resolvedAt) {
		t.Fatal("expected resolve to find alert-1")
	}
	if log.Resolve("alert-1", resolvedAt) {
		t.Fatal("expected second resolve to report not found")
	}
	if log.Resolve("alert-9", resolvedAt) {
		t.Fatal("expected resolve of unknown id to report not found")
	}

	active := log.Active()
	if len(active) != 1 || active[0].ID != "alert-2" {
		t.Fatalf("expected only alert-2 active, got %v", active)
	}
}
