// Package session coordinates per-session analysis state: rolling telemetry
// windows, behavioral and emotional accumulators, milestone evidence, and
// the live broadcast hub. All ingest for one session is serialized under the
// session lock; different sessions proceed in parallel.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/quietloop/attune/internal/adaptive"
	"github.com/quietloop/attune/internal/alert"
	"github.com/quietloop/attune/internal/behavior"
	"github.com/quietloop/attune/internal/emotion"
	"github.com/quietloop/attune/internal/milestone"
	"github.com/quietloop/attune/internal/narrative"
	"github.com/quietloop/attune/internal/platform/id"
	"github.com/quietloop/attune/internal/platform/timeouts"
	"github.com/quietloop/attune/internal/profile"
	"github.com/quietloop/attune/internal/scoring"
	"github.com/quietloop/attune/internal/storage"
	"github.com/quietloop/attune/internal/stream"
)

var (
	// ErrNotFound indicates an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrClosed indicates the session has already ended.
	ErrClosed = errors.New("session is closed")
	// ErrActiveSession indicates the child already has an active session.
	ErrActiveSession = errors.New("child already has an active session")
)

// Config tunes the registry. Zero values fall back to defaults.
type Config struct {
	// MetricWindow caps retained telemetry samples per session.
	MetricWindow int
	// ObservationWindow caps retained observations per behavior category.
	ObservationWindow int
	// TransitionWindow caps retained emotional transitions per session.
	TransitionWindow int
	// AlertCapacity caps the per-session alert log.
	AlertCapacity int
	// IdleTimeout reaps sessions with no telemetry for this long.
	IdleTimeout time.Duration
	// NarrativeTimeout bounds the fire-and-forget narrative call.
	NarrativeTimeout time.Duration

	Scoring   scoring.Config
	Behavior  behavior.Config
	Emotion   emotion.Config
	Milestone milestone.Config
}

func (c Config) withDefaults() Config {
	if c.MetricWindow <= 0 {
		c.MetricWindow = 10
	}
	if c.ObservationWindow <= 0 {
		c.ObservationWindow = 20
	}
	if c.TransitionWindow <= 0 {
		c.TransitionWindow = 100
	}
	if c.AlertCapacity <= 0 {
		c.AlertCapacity = 50
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.NarrativeTimeout <= 0 {
		c.NarrativeTimeout = timeouts.Narrative
	}
	return c
}

// CheckpointStore persists live-session working snapshots so a crashed
// process leaves a trace of sessions that never ended cleanly.
type CheckpointStore interface {
	Save(ctx context.Context, sessionID string, payload []byte) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) (map[string][]byte, error)
}

// Registry owns every live session. It is created with explicit
// dependencies and torn down with Close; there is no package-level instance.
type Registry struct {
	store       storage.Store
	hub         *stream.Hub
	catalog     *milestone.Catalog
	annotator   narrative.Annotator
	checkpoints CheckpointStore
	clock       func() time.Time
	newID       func() (string, error)
	cfg         Config

	// baseCtx parents narrative calls so Close cancels them.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*state
	byChild  map[string]string
}

// state is one session's working set, guarded by its own lock.
type state struct {
	mu sync.Mutex

	id           string
	child        profile.ChildProfile
	startedAt    time.Time
	lastActivity time.Time
	ended        bool

	config       adaptive.Config
	samples      []scoring.MetricSample
	observations map[behavior.Category][]behavior.Observation
	transitions  []emotion.Transition
	alerts       *alert.Log
	awarded      map[string]time.Time
	skills       map[string]float64
	achievements []milestone.Achievement

	totalInteractions int
	riskSum           float64
	riskCount         int
	lastRisk          float64
	peakRisk          float64
}

// Options configures a registry. Store, Hub, and Catalog are required.
type Options struct {
	Store storage.Store
	Hub   *stream.Hub
	// Catalog is the milestone definitions to assess against.
	Catalog   *milestone.Catalog
	Annotator narrative.Annotator
	// Checkpoints optionally persists live working snapshots.
	Checkpoints CheckpointStore
	Clock       func() time.Time
	NewID       func() (string, error)
	Config      Config
}

// NewRegistry builds a session registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("milestone catalog is required")
	}
	if opts.Annotator == nil {
		opts.Annotator = narrative.Noop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = id.NewID
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Registry{
		store:       opts.Store,
		hub:         opts.Hub,
		catalog:     opts.Catalog,
		annotator:   opts.Annotator,
		checkpoints: opts.Checkpoints,
		clock:       opts.Clock,
		newID:       opts.NewID,
		cfg:         opts.Config.withDefaults(),
		baseCtx:     baseCtx,
		cancelBase:  cancel,
		sessions:    make(map[string]*state),
		byChild:     make(map[string]string),
	}, nil
}

// Close cancels pending narrative calls and drops all live sessions without
// ending them.
func (r *Registry) Close() {
	r.cancelBase()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*state)
	r.byChild = make(map[string]string)
}

// StartResult describes a newly started session.
type StartResult struct {
	SessionID string
	ChildID   string
	StartedAt time.Time
	Config    adaptive.Config
}

// Start creates a session for the child, initializes its working set, and
// persists the lifecycle record. A child can have at most one active
// session.
func (r *Registry) Start(ctx context.Context, child profile.ChildProfile) (StartResult, error) {
	sessionID, err := r.newID()
	if err != nil {
		return StartResult{}, fmt.Errorf("generate session id: %w", err)
	}
	now := r.clock()

	awarded, err := r.store.LatestAwards(ctx, child.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("load milestone awards: %w", err)
	}
	if awarded == nil {
		awarded = make(map[string]time.Time)
	}
	skills, err := r.store.LatestSkillLevels(ctx, child.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("load skill levels: %w", err)
	}

	st := &state{
		id:           sessionID,
		child:        child,
		startedAt:    now,
		lastActivity: now,
		config:       adaptive.Configure(child),
		observations: make(map[behavior.Category][]behavior.Observation),
		alerts:       alert.NewLog(r.cfg.AlertCapacity),
		awarded:      awarded,
		skills:       skills,
	}

	r.mu.Lock()
	if existing, ok := r.byChild[child.ID]; ok {
		r.mu.Unlock()
		return StartResult{}, fmt.Errorf("%w: %s", ErrActiveSession, existing)
	}
	r.sessions[sessionID] = st
	r.byChild[child.ID] = sessionID
	r.mu.Unlock()

	record := storage.SessionRecord{ID: sessionID, ChildID: child.ID, StartedAt: now}
	if err := r.store.CreateSession(ctx, record); err != nil {
		r.mu.Lock()
		delete(r.sessions, sessionID)
		delete(r.byChild, child.ID)
		r.mu.Unlock()
		return StartResult{}, fmt.Errorf("persist session: %w", err)
	}

	st.mu.Lock()
	r.checkpoint(ctx, st)
	st.mu.Unlock()

	return StartResult{
		SessionID: sessionID,
		ChildID:   child.ID,
		StartedAt: now,
		Config:    st.config,
	}, nil
}

func (r *Registry) lookup(sessionID string) (*state, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return st, nil
}

// lookupByChild returns the child's active session, or nil.
func (r *Registry) lookupByChild(childID string) *state {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok := r.byChild[childID]
	if !ok {
		return nil
	}
	return r.sessions[sessionID]
}

// workingCheckpoint is the durable snapshot of an in-flight session. It
// carries enough to account for a session that the process lost before End.
type workingCheckpoint struct {
	SessionID         string    `json:"session_id"`
	ChildID           string    `json:"child_id"`
	StartedAt         time.Time `json:"started_at"`
	LastActivity      time.Time `json:"last_activity"`
	TotalInteractions int       `json:"total_interactions"`
	AverageRisk       float64   `json:"average_risk"`
	PeakRisk          float64   `json:"peak_risk"`
}

// checkpoint writes the session's working snapshot to the checkpoint store.
// The caller must hold st.mu. Checkpoint failures are logged, not returned:
// losing a checkpoint must never fail an ingest.
func (r *Registry) checkpoint(ctx context.Context, st *state) {
	if r.checkpoints == nil {
		return
	}
	cp := workingCheckpoint{
		SessionID:         st.id,
		ChildID:           st.child.ID,
		StartedAt:         st.startedAt,
		LastActivity:      st.lastActivity,
		TotalInteractions: st.totalInteractions,
		PeakRisk:          st.peakRisk,
	}
	if st.riskCount > 0 {
		cp.AverageRisk = st.riskSum / float64(st.riskCount)
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		log.Printf("encode checkpoint for session %s: %v", st.id, err)
		return
	}
	if err := r.checkpoints.Save(ctx, st.id, payload); err != nil {
		log.Printf("save checkpoint for session %s: %v", st.id, err)
	}
}

// SweepOrphans removes checkpoints left behind by sessions that no longer
// exist, typically after an unclean shutdown. It returns the session IDs of
// the checkpoints it removed.
func (r *Registry) SweepOrphans(ctx context.Context) ([]string, error) {
	if r.checkpoints == nil {
		return nil, nil
	}
	saved, err := r.checkpoints.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	r.mu.Lock()
	orphans := make([]string, 0, len(saved))
	for sessionID := range saved {
		if _, ok := r.sessions[sessionID]; !ok {
			orphans = append(orphans, sessionID)
		}
	}
	r.mu.Unlock()

	sort.Strings(orphans)
	for _, sessionID := range orphans {
		if err := r.checkpoints.Delete(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("delete orphan checkpoint %s: %w", sessionID, err)
		}
	}
	return orphans, nil
}

// IngestMetrics scores one telemetry sample against the session window,
// updates the rolling state, persists the sample, and broadcasts the
// resulting analysis snapshot.
func (r *Registry) IngestMetrics(ctx context.Context, sessionID string, sample scoring.MetricSample) (scoring.Result, error) {
	st, err := r.lookup(sessionID)
	if err != nil {
		return scoring.Result{}, err
	}

	st.mu.Lock()
	if st.ended {
		st.mu.Unlock()
		return scoring.Result{}, ErrClosed
	}
	if err := sample.Validate(); err != nil {
		st.mu.Unlock()
		return scoring.Result{}, err
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = r.clock()
	}

	result := scoring.Score(st.child, st.samples, sample, r.cfg.Scoring)

	st.samples = append(st.samples, sample)
	if len(st.samples) > r.cfg.MetricWindow {
		st.samples = st.samples[len(st.samples)-r.cfg.MetricWindow:]
	}
	st.lastActivity = r.clock()
	st.totalInteractions++
	st.riskSum += result.Score
	st.riskCount++
	st.lastRisk = result.Score
	if result.Score > st.peakRisk {
		st.peakRisk = result.Score
	}

	snapshot := snapshotFor(st, sample, result)
	var newAlert *alert.Alert
	if result.Overstimulated {
		built, err := alert.FromSnapshot(snapshot, r.newID)
		if err != nil {
			log.Printf("build alert for session %s: %v", sessionID, err)
		} else {
			st.alerts.Add(built)
			newAlert = &built
		}
	}
	childID := st.child.ID
	r.checkpoint(ctx, st)
	st.mu.Unlock()

	if err := r.store.AppendMetricSamples(ctx, sessionID, []scoring.MetricSample{sample}); err != nil {
		return scoring.Result{}, fmt.Errorf("persist metric sample: %w", err)
	}
	if newAlert != nil {
		if err := r.store.AppendAlert(ctx, childID, *newAlert); err != nil {
			log.Printf("persist alert for session %s: %v", sessionID, err)
		}
		r.hub.Publish(stream.Envelope{
			Type:      stream.TypeInterventionAlert,
			SessionID: sessionID,
			Timestamp: sample.Timestamp,
			Payload:   *newAlert,
		})
	}
	r.hub.Publish(stream.Envelope{
		Type:      stream.TypeStreamingAnalysis,
		SessionID: sessionID,
		Timestamp: sample.Timestamp,
		Payload:   snapshot,
	})

	return result, nil
}

// snapshotFor derives the broadcast frame from the scored sample. Engagement
// tracks progress; attention falls with pause frequency.
func snapshotFor(st *state, sample scoring.MetricSample, result scoring.Result) alert.Snapshot {
	indicators := make([]string, len(result.Indicators))
	for i, indicator := range result.Indicators {
		indicators[i] = indicator.String()
	}
	intervention := ""
	if result.Intervention != scoring.InterventionNone {
		intervention = result.Intervention.String()
	}
	return alert.Snapshot{
		SessionID:               st.id,
		Timestamp:               sample.Timestamp,
		OverstimulationRisk:     result.Score,
		Engagement:              clamp01(sample.ProgressRate),
		Attention:               clamp01(1 - sample.PauseFrequency),
		Indicators:              indicators,
		RecommendedIntervention: intervention,
	}
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// IngestObservations validates and persists behavioral observations for the
// child, folds them into the child's active session if one exists, and
// reassesses milestones.
func (r *Registry) IngestObservations(ctx context.Context, childID string, observations []behavior.Observation) ([]milestone.Achievement, error) {
	now := r.clock()
	for i := range observations {
		if observations[i].Timestamp.IsZero() {
			observations[i].Timestamp = now
		}
		if err := validateObservation(observations[i]); err != nil {
			return nil, err
		}
	}

	if err := r.store.AppendObservations(ctx, childID, observations); err != nil {
		return nil, fmt.Errorf("persist observations: %w", err)
	}

	st := r.lookupByChild(childID)
	if st == nil {
		return nil, nil
	}

	st.mu.Lock()
	if st.ended {
		st.mu.Unlock()
		return nil, nil
	}
	for _, observation := range observations {
		window := append(st.observations[observation.Category], observation)
		if len(window) > r.cfg.ObservationWindow {
			window = window[len(window)-r.cfg.ObservationWindow:]
		}
		st.observations[observation.Category] = window
	}
	st.totalInteractions += len(observations)
	st.lastActivity = now
	achievements := r.assessLocked(st, now)
	st.mu.Unlock()

	r.publishAchievements(ctx, childID, st.id, achievements)
	return achievements, nil
}

func validateObservation(observation behavior.Observation) error {
	if observation.Category == behavior.CategoryUnspecified {
		return behavior.ErrUnknownCategory
	}
	if observation.Intensity < 0 || observation.Intensity > 1 {
		return fmt.Errorf("observation intensity must be between 0 and 1")
	}
	return nil
}

// IngestTransitions validates and persists emotional transitions for the
// child, folds them into the active session, and reassesses milestones.
func (r *Registry) IngestTransitions(ctx context.Context, childID string, transitions []emotion.Transition) ([]milestone.Achievement, error) {
	now := r.clock()
	for i := range transitions {
		if transitions[i].Timestamp.IsZero() {
			transitions[i].Timestamp = now
		}
		if transitions[i].From == emotion.StateUnspecified || transitions[i].To == emotion.StateUnspecified {
			return nil, emotion.ErrUnknownState
		}
	}

	if err := r.store.AppendTransitions(ctx, childID, transitions); err != nil {
		return nil, fmt.Errorf("persist transitions: %w", err)
	}

	st := r.lookupByChild(childID)
	if st == nil {
		return nil, nil
	}

	st.mu.Lock()
	if st.ended {
		st.mu.Unlock()
		return nil, nil
	}
	st.transitions = append(st.transitions, transitions...)
	if len(st.transitions) > r.cfg.TransitionWindow {
		st.transitions = st.transitions[len(st.transitions)-r.cfg.TransitionWindow:]
	}
	st.totalInteractions += len(transitions)
	st.lastActivity = now
	achievements := r.assessLocked(st, now)
	st.mu.Unlock()

	r.publishAchievements(ctx, childID, st.id, achievements)
	return achievements, nil
}

// IngestAssessments persists skill assessments and reassesses milestones for
// the child's active session.
func (r *Registry) IngestAssessments(ctx context.Context, childID string, assessments []storage.SkillAssessment) ([]milestone.Achievement, error) {
	now := r.clock()
	for i := range assessments {
		if assessments[i].Timestamp.IsZero() {
			assessments[i].Timestamp = now
		}
		if assessments[i].Skill == "" {
			return nil, fmt.Errorf("skill name is required")
		}
	}

	if err := r.store.AppendAssessments(ctx, childID, assessments); err != nil {
		return nil, fmt.Errorf("persist assessments: %w", err)
	}

	st := r.lookupByChild(childID)
	if st == nil {
		return nil, nil
	}

	st.mu.Lock()
	if st.ended {
		st.mu.Unlock()
		return nil, nil
	}
	st.totalInteractions += len(assessments)
	st.lastActivity = now
	st.mu.Unlock()

	// Skill levels live in storage; refresh the cache and reassess.
	levels, err := r.store.LatestSkillLevels(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("load skill levels: %w", err)
	}

	st.mu.Lock()
	st.skills = levels
	achievements := r.assessLocked(st, now)
	st.mu.Unlock()

	r.publishAchievements(ctx, childID, st.id, achievements)
	return achievements, nil
}

// assessLocked runs milestone assessment over the session working set,
// fusing the cached skill levels with the observation, transition, and
// metric windows. The caller holds the state lock.
func (r *Registry) assessLocked(st *state, now time.Time) []milestone.Achievement {
	var observations []behavior.Observation
	for _, window := range st.observations {
		observations = append(observations, window...)
	}
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Timestamp.Before(observations[j].Timestamp)
	})

	evidence := milestone.Evidence{
		Observations: observations,
		Transitions:  st.transitions,
		Skills:       st.skills,
		Metrics:      sessionMetrics(st),
	}
	achievements := milestone.Assess(st.child.Age, evidence, r.catalog, st.awarded, now, r.cfg.Milestone)
	for _, achievement := range achievements {
		st.awarded[achievement.MilestoneID] = achievement.AchievedAt
		st.achievements = append(st.achievements, achievement)
	}
	return achievements
}

// sessionMetrics derives milestone metric evidence from the telemetry
// window.
func sessionMetrics(st *state) map[string]float64 {
	if len(st.samples) == 0 {
		return nil
	}
	var progress, errorRate float64
	for _, sample := range st.samples {
		progress += sample.ProgressRate
		errorRate += sample.ErrorRate
	}
	count := float64(len(st.samples))
	return map[string]float64{
		"completion_rate": progress / count,
		"retry_rate":      clamp01(1 - errorRate/count),
		"focus_minutes":   st.wallMinutes(),
	}
}

func (st *state) wallMinutes() float64 {
	return st.lastActivity.Sub(st.startedAt).Minutes()
}

// publishAchievements persists and broadcasts freshly awarded milestones.
func (r *Registry) publishAchievements(ctx context.Context, childID, sessionID string, achievements []milestone.Achievement) {
	for _, achievement := range achievements {
		if err := r.store.AppendAchievement(ctx, childID, achievement); err != nil {
			log.Printf("persist achievement %s for child %s: %v", achievement.MilestoneID, childID, err)
		}
		r.hub.Publish(stream.Envelope{
			Type:      stream.TypeStreamingAnalysis,
			SessionID: sessionID,
			Timestamp: achievement.AchievedAt,
			Payload:   achievement,
		})
	}
}

// Dashboard is a point-in-time view of one session's analysis.
type Dashboard struct {
	SessionID         string
	ChildID           string
	StartedAt         time.Time
	LastActivity      time.Time
	TotalInteractions int
	AverageRisk       float64
	PeakRisk          float64
	Config            adaptive.Config
	Adjustments       adaptive.Adjustments
	Behavior          []behavior.CategoryAnalysis
	Emotion           emotion.Profile
	ActiveAlerts      []alert.Alert
	Achievements      []milestone.Achievement
}

// Snapshot computes the current dashboard view for a session.
func (r *Registry) Snapshot(sessionID string) (Dashboard, error) {
	st, err := r.lookup(sessionID)
	if err != nil {
		return Dashboard{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ended {
		return Dashboard{}, ErrClosed
	}

	now := r.clock()
	var analyses []behavior.CategoryAnalysis
	for _, category := range behavior.Categories {
		window := st.observations[category]
		if len(window) == 0 {
			continue
		}
		analyses = append(analyses, behavior.Analyze(category, window, now, r.cfg.Behavior))
	}
	sort.Slice(analyses, func(i, j int) bool {
		return analyses[i].Category < analyses[j].Category
	})

	averageRisk := 0.0
	if st.riskCount > 0 {
		averageRisk = st.riskSum / float64(st.riskCount)
	}

	return Dashboard{
		SessionID:         st.id,
		ChildID:           st.child.ID,
		StartedAt:         st.startedAt,
		LastActivity:      st.lastActivity,
		TotalInteractions: st.totalInteractions,
		AverageRisk:       averageRisk,
		PeakRisk:          st.peakRisk,
		Config:            st.config,
		Adjustments:       adaptive.Adjust(currentRisk(st)),
		Behavior:          analyses,
		Emotion:           emotion.Analyze(st.transitions, now, r.cfg.Emotion),
		ActiveAlerts:      st.alerts.Active(),
		Achievements:      append([]milestone.Achievement(nil), st.achievements...),
	}, nil
}

// currentRisk is the most recently scored risk, so the adaptive adjustments
// track what the child is experiencing now rather than the session average.
func currentRisk(st *state) float64 {
	if st.riskCount == 0 {
		return 0
	}
	return st.lastRisk
}

// ResolveAlert marks a session alert resolved.
func (r *Registry) ResolveAlert(sessionID, alertID string) error {
	st, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ended {
		return ErrClosed
	}
	if !st.alerts.Resolve(alertID, r.clock()) {
		return ErrNotFound
	}
	return nil
}

// Report is the final summary computed when a session ends.
type Report struct {
	SessionID         string                  `json:"session_id"`
	ChildID           string                  `json:"child_id"`
	StartedAt         time.Time               `json:"started_at"`
	EndedAt           time.Time               `json:"ended_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalInteractions int                     `json:"total_interactions"`
	AverageRisk       float64                 `json:"average_risk"`
	PeakRisk          float64                 `json:"peak_risk"`
	Milestones        []milestone.Achievement `json:"milestones,omitempty"`
	Recommendations   []string                `json:"recommendations,omitempty"`
	AlertCount        int                     `json:"alert_count"`
}

// End closes the session, persists the final report, releases all working
// state, and drops stream subscribers. The narrative annotation is launched
// fire-and-forget; its outcome never affects the caller.
func (r *Registry) End(ctx context.Context, sessionID string) (Report, error) {
	st, err := r.lookup(sessionID)
	if err != nil {
		return Report{}, err
	}

	st.mu.Lock()
	if st.ended {
		st.mu.Unlock()
		return Report{}, ErrClosed
	}
	st.ended = true
	now := r.clock()
	report := r.reportLocked(st, now)
	summary := summaryLocked(st, report)
	st.mu.Unlock()

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return Report{}, fmt.Errorf("encode report: %w", err)
	}
	if err := r.store.EndSession(ctx, sessionID, now, reportJSON); err != nil {
		return Report{}, fmt.Errorf("persist session end: %w", err)
	}

	r.mu.Lock()
	delete(r.sessions, sessionID)
	delete(r.byChild, report.ChildID)
	r.mu.Unlock()
	r.hub.CloseSession(sessionID)

	if r.checkpoints != nil {
		if err := r.checkpoints.Delete(ctx, sessionID); err != nil {
			log.Printf("delete checkpoint for session %s: %v", sessionID, err)
		}
	}

	go r.annotate(sessionID, summary)

	return report, nil
}

func (r *Registry) reportLocked(st *state, now time.Time) Report {
	averageRisk := 0.0
	if st.riskCount > 0 {
		averageRisk = st.riskSum / float64(st.riskCount)
	}

	var recommendations []string
	seen := make(map[string]bool)
	for _, category := range behavior.Categories {
		window := st.observations[category]
		if len(window) == 0 {
			continue
		}
		analysis := behavior.Analyze(category, window, now, r.cfg.Behavior)
		for _, recommendation := range analysis.Recommendations {
			if seen[recommendation] {
				continue
			}
			seen[recommendation] = true
			recommendations = append(recommendations, recommendation)
		}
	}
	sort.Strings(recommendations)

	return Report{
		SessionID:         st.id,
		ChildID:           st.child.ID,
		StartedAt:         st.startedAt,
		EndedAt:           now,
		DurationSeconds:   now.Sub(st.startedAt).Seconds(),
		TotalInteractions: st.totalInteractions,
		AverageRisk:       averageRisk,
		PeakRisk:          st.peakRisk,
		Milestones:        append([]milestone.Achievement(nil), st.achievements...),
		Recommendations:   recommendations,
		AlertCount:        st.alerts.Len(),
	}
}

func summaryLocked(st *state, report Report) narrative.Summary {
	milestones := make([]string, len(report.Milestones))
	for i, achievement := range report.Milestones {
		milestones[i] = achievement.MilestoneID
	}
	return narrative.Summary{
		ChildName:         st.child.Name,
		SessionMinutes:    report.DurationSeconds / 60,
		TotalInteractions: report.TotalInteractions,
		AverageRisk:       report.AverageRisk,
		Milestones:        milestones,
		Recommendations:   report.Recommendations,
	}
}

// annotate runs the optional narrative call off the ingest path.
func (r *Registry) annotate(sessionID string, summary narrative.Summary) {
	ctx, cancel := context.WithTimeout(r.baseCtx, r.cfg.NarrativeTimeout)
	defer cancel()

	text, err := r.annotator.Annotate(ctx, summary)
	if err != nil {
		if !errors.Is(err, narrative.ErrNotConfigured) {
			log.Printf("narrative for session %s: %v", sessionID, err)
		}
		return
	}
	log.Printf("narrative for session %s: %s", sessionID, text)
}

// Reap lazily ends sessions idle past the configured timeout and returns the
// ids it ended.
func (r *Registry) Reap(ctx context.Context) []string {
	now := r.clock()

	r.mu.Lock()
	var idle []string
	for sessionID, st := range r.sessions {
		st.mu.Lock()
		if now.Sub(st.lastActivity) >= r.cfg.IdleTimeout {
			idle = append(idle, sessionID)
		}
		st.mu.Unlock()
	}
	r.mu.Unlock()

	var ended []string
	for _, sessionID := range idle {
		if _, err := r.End(ctx, sessionID); err != nil {
			if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrClosed) {
				log.Printf("reap session %s: %v", sessionID, err)
			}
			continue
		}
		ended = append(ended, sessionID)
	}
	return ended
}

// Run reaps idle sessions periodically until the context is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.IdleTimeout / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// ActiveSessions returns the ids of live sessions.
func (r *Registry) ActiveSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for sessionID := range r.sessions {
		ids = append(ids, sessionID)
	}
	sort.Strings(ids)
	return ids
}

// SampleCount returns the retained telemetry sample count for a session.
func (r *Registry) SampleCount(sessionID string) (int, error) {
	st, err := r.lookup(sessionID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.samples), nil
}
