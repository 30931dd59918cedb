// Package storage defines persistence contracts for child profiles, session
// records, and accumulated analysis data. Stores are the system of record;
// the session runtime keeps only a bounded working set in memory.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/quietloop/attune/internal/alert"
	"github.com/quietloop/attune/internal/behavior"
	"github.com/quietloop/attune/internal/emotion"
	"github.com/quietloop/attune/internal/milestone"
	"github.com/quietloop/attune/internal/profile"
	"github.com/quietloop/attune/internal/scoring"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already
	// exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// ProfileStore persists child profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, child profile.ChildProfile) error
	GetProfile(ctx context.Context, childID string) (profile.ChildProfile, error)
	UpdateProfile(ctx context.Context, child profile.ChildProfile) error
	ListProfiles(ctx context.Context) ([]profile.ChildProfile, error)
}

// SessionRecord stores one session's lifecycle row. EndedAt is zero while
// the session is active; ReportJSON holds the serialized final report once
// ended.
type SessionRecord struct {
	ID         string
	ChildID    string
	StartedAt  time.Time
	EndedAt    time.Time
	ReportJSON []byte
}

// Ended reports whether the session has been closed.
func (r SessionRecord) Ended() bool {
	return !r.EndedAt.IsZero()
}

// SessionStore persists session lifecycle records.
type SessionStore interface {
	CreateSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	EndSession(ctx context.Context, sessionID string, endedAt time.Time, reportJSON []byte) error
	ListSessionsByChild(ctx context.Context, childID string, from, to time.Time) ([]SessionRecord, error)
}

// MetricSampleStore appends and queries raw telemetry samples.
type MetricSampleStore interface {
	AppendMetricSamples(ctx context.Context, sessionID string, samples []scoring.MetricSample) error
	MetricSamplesByRange(ctx context.Context, sessionID string, from, to time.Time) ([]scoring.MetricSample, error)
}

// ObservationEntry pairs an observation with its storage sequence for
// keyset pagination.
type ObservationEntry struct {
	Seq         uint64
	Observation behavior.Observation
}

// ObservationQuery selects a page of observations. AfterSeq of zero starts
// from the beginning; Category of CategoryUnspecified matches all.
type ObservationQuery struct {
	Category behavior.Category
	AfterSeq uint64
	Limit    int
}

// ObservationStore appends and queries behavioral observations per child.
type ObservationStore interface {
	AppendObservations(ctx context.Context, childID string, observations []behavior.Observation) error
	ObservationsByRange(ctx context.Context, childID string, from, to time.Time) ([]behavior.Observation, error)
	// ListObservations returns a page of observations ordered by storage
	// sequence, oldest first.
	ListObservations(ctx context.Context, childID string, query ObservationQuery) ([]ObservationEntry, error)
}

// TransitionStore appends and queries emotional transitions per child.
type TransitionStore interface {
	AppendTransitions(ctx context.Context, childID string, transitions []emotion.Transition) error
	TransitionsByRange(ctx context.Context, childID string, from, to time.Time) ([]emotion.Transition, error)
}

// SkillAssessment stores one recorded skill assessment.
type SkillAssessment struct {
	Timestamp time.Time
	Skill     string
	Category  string
	Baseline  float64
	Current   float64
	Target    float64
	Method    string
	Notes     string
}

// Level normalizes the current score against the target into [0, 1].
func (a SkillAssessment) Level() float64 {
	if a.Target <= 0 {
		if a.Current < 0 {
			return 0
		}
		if a.Current > 1 {
			return 1
		}
		return a.Current
	}
	level := a.Current / a.Target
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

// AssessmentStore appends and queries skill assessments per child.
type AssessmentStore interface {
	AppendAssessments(ctx context.Context, childID string, assessments []SkillAssessment) error
	AssessmentsByRange(ctx context.Context, childID string, from, to time.Time) ([]SkillAssessment, error)
	// LatestSkillLevels returns the most recent normalized level per
	// skill name.
	LatestSkillLevels(ctx context.Context, childID string) (map[string]float64, error)
}

// MilestoneStore persists awarded milestones per child.
type MilestoneStore interface {
	AppendAchievement(ctx context.Context, childID string, achievement milestone.Achievement) error
	AchievementsByChild(ctx context.Context, childID string) ([]milestone.Achievement, error)
	// LatestAwards returns the most recent award time per milestone id.
	LatestAwards(ctx context.Context, childID string) (map[string]time.Time, error)
}

// AlertStore persists derived alerts per session.
type AlertStore interface {
	AppendAlert(ctx context.Context, childID string, record alert.Alert) error
	AlertsBySession(ctx context.Context, sessionID string) ([]alert.Alert, error)
}

// Store aggregates every persistence contract the service needs.
type Store interface {
	ProfileStore
	SessionStore
	MetricSampleStore
	ObservationStore
	TransitionStore
	AssessmentStore
	MilestoneStore
	AlertStore
}
