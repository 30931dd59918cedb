package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/quietloop/attune/internal/behavior"
	"github.com/quietloop/attune/internal/emotion"
	"github.com/quietloop/attune/internal/milestone"
	apperrors "github.com/quietloop/attune/internal/platform/errors"
	"github.com/quietloop/attune/internal/profile"
	"github.com/quietloop/attune/internal/storage"
	"github.com/quietloop/attune/internal/storage/cursor"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (h handlers) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var payload profilePayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	child, err := profile.Create(profile.CreateInput{
		Name:              payload.Name,
		Age:               payload.Age,
		SupportLevel:      profile.SupportLevel(payload.SupportLevel),
		Sensitivity:       payload.Sensitivity.vector(),
		Interests:         payload.Interests,
		Triggers:          payload.Triggers,
		CalmingStrategies: payload.CalmingStrategies,
	}, h.clock, h.newID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.CreateProfile(r.Context(), child); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProfileView(child))
}

func (h handlers) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	child, err := h.store.GetProfile(r.Context(), pathID(r, "childID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(child))
}

func (h handlers) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	children, err := h.store.ListProfiles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]profileView, 0, len(children))
	for _, child := range children {
		views = append(views, newProfileView(child))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h handlers) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var payload profilePayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	childID := pathID(r, "childID")
	current, err := h.store.GetProfile(r.Context(), childID)
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := profile.ApplyUpdate(current, profile.UpdateInput{
		Age:               payload.Age,
		SupportLevel:      profile.SupportLevel(payload.SupportLevel),
		Sensitivity:       payload.Sensitivity.vector(),
		Interests:         payload.Interests,
		Triggers:          payload.Triggers,
		CalmingStrategies: payload.CalmingStrategies,
	}, h.clock)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.UpdateProfile(r.Context(), updated); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(updated))
}

func (h handlers) handleStartSession(w http.ResponseWriter, r *http.Request) {
	child, err := h.store.GetProfile(r.Context(), pathID(r, "childID"))
	if err != nil {
		writeError(w, err)
		return
	}

	started, err := h.registry.Start(r.Context(), child)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startSessionView{
		SessionID: started.SessionID,
		ChildID:   started.ChildID,
		StartedAt: started.StartedAt,
		Config:    newConfigView(started.Config),
	})
}

func (h handlers) handleEndSession(w http.ResponseWriter, r *http.Request) {
	report, err := h.registry.End(r.Context(), pathID(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.registry.Snapshot(pathID(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDashboardView(dashboard))
}

func (h handlers) handleIngestMetrics(w http.ResponseWriter, r *http.Request) {
	var payload samplePayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.registry.IngestMetrics(r.Context(), pathID(r, "sessionID"), payload.sample())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newScoreView(result))
}

func (h handlers) handleSessionAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.AlertsBySession(r.Context(), pathID(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h handlers) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	err := h.registry.ResolveAlert(pathID(r, "sessionID"), pathID(r, "alertID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type achievementsResponse struct {
	Achievements []milestone.Achievement `json:"achievements,omitempty"`
}

func (h handlers) handleIngestObservations(w http.ResponseWriter, r *http.Request) {
	var payloads []observationPayload
	if err := decodeBody(w, r, &payloads); err != nil {
		writeError(w, err)
		return
	}
	if len(payloads) == 0 {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "at least one observation is required"))
		return
	}

	observations := make([]behavior.Observation, 0, len(payloads))
	for _, payload := range payloads {
		observation, err := payload.observation()
		if err != nil {
			writeError(w, err)
			return
		}
		observations = append(observations, observation)
	}

	achievements, err := h.registry.IngestObservations(r.Context(), pathID(r, "childID"), observations)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, achievementsResponse{Achievements: achievements})
}

func (h handlers) handleListObservations(w http.ResponseWriter, r *http.Request) {
	childID := pathID(r, "childID")
	if _, err := h.store.GetProfile(r.Context(), childID); err != nil {
		writeError(w, err)
		return
	}

	query := storage.ObservationQuery{Limit: defaultPageSize}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "page_size must be a positive integer"))
			return
		}
		query.Limit = min(size, maxPageSize)
	}

	var filter string
	if raw := r.URL.Query().Get("category"); raw != "" {
		category, err := behavior.ParseCategory(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		query.Category = category
		filter = category.String()
	}

	if token := r.URL.Query().Get("page_token"); token != "" {
		c, err := cursor.Decode(token)
		if err != nil {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "invalid page token"))
			return
		}
		if err := c.ValidateFilter(filter); err != nil {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "page token does not match the request filter"))
			return
		}
		query.AfterSeq = c.Seq
	}

	// Fetch one extra row to learn whether another page exists.
	query.Limit++
	entries, err := h.store.ListObservations(r.Context(), childID, query)
	if err != nil {
		writeError(w, err)
		return
	}

	page := observationPage{Observations: []observationPayload{}}
	if len(entries) == query.Limit {
		entries = entries[:len(entries)-1]
		token, err := cursor.Encode(cursor.New(entries[len(entries)-1].Seq, filter))
		if err != nil {
			writeError(w, err)
			return
		}
		page.NextPageToken = token
	}
	for _, entry := range entries {
		page.Observations = append(page.Observations, observationView(entry.Observation))
	}
	writeJSON(w, http.StatusOK, page)
}

func (h handlers) handleIngestTransitions(w http.ResponseWriter, r *http.Request) {
	var payloads []transitionPayload
	if err := decodeBody(w, r, &payloads); err != nil {
		writeError(w, err)
		return
	}
	if len(payloads) == 0 {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "at least one transition is required"))
		return
	}

	transitions := make([]emotion.Transition, 0, len(payloads))
	for _, payload := range payloads {
		transition, err := payload.transition()
		if err != nil {
			writeError(w, err)
			return
		}
		transitions = append(transitions, transition)
	}

	achievements, err := h.registry.IngestTransitions(r.Context(), pathID(r, "childID"), transitions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, achievementsResponse{Achievements: achievements})
}

func (h handlers) handleIngestAssessments(w http.ResponseWriter, r *http.Request) {
	var payloads []assessmentPayload
	if err := decodeBody(w, r, &payloads); err != nil {
		writeError(w, err)
		return
	}
	if len(payloads) == 0 {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "at least one assessment is required"))
		return
	}

	assessments := make([]storage.SkillAssessment, 0, len(payloads))
	for _, payload := range payloads {
		if payload.Skill == "" {
			writeError(w, apperrors.New(apperrors.CodeSkillNameEmpty, "skill name is required"))
			return
		}
		assessments = append(assessments, payload.assessment())
	}

	achievements, err := h.registry.IngestAssessments(r.Context(), pathID(r, "childID"), assessments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, achievementsResponse{Achievements: achievements})
}

type milestonesView struct {
	Achieved []milestone.Achievement `json:"achieved,omitempty"`
	Next     []milestoneView         `json:"next,omitempty"`
}

type milestoneView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Domain        string   `json:"domain"`
	Description   string   `json:"description,omitempty"`
	AgeMin        int      `json:"age_min"`
	AgeMax        int      `json:"age_max"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

func (h handlers) handleMilestones(w http.ResponseWriter, r *http.Request) {
	childID := pathID(r, "childID")
	child, err := h.store.GetProfile(r.Context(), childID)
	if err != nil {
		writeError(w, err)
		return
	}

	achieved, err := h.store.AchievementsByChild(r.Context(), childID)
	if err != nil {
		writeError(w, err)
		return
	}
	awarded, err := h.store.LatestAwards(r.Context(), childID)
	if err != nil {
		writeError(w, err)
		return
	}

	view := milestonesView{Achieved: achieved}
	for _, next := range milestone.Next(h.catalog, child.Age, awarded) {
		view.Next = append(view.Next, milestoneView{
			ID:            next.ID,
			Name:          next.Name,
			Domain:        next.Domain,
			Description:   next.Description,
			AgeMin:        next.AgeMin,
			AgeMax:        next.AgeMax,
			Prerequisites: next.Prerequisites,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

type trendsView struct {
	ChildID  string                 `json:"child_id"`
	From     time.Time              `json:"from"`
	To       time.Time              `json:"to"`
	Behavior []behaviorAnalysisView `json:"behavior,omitempty"`
	Emotion  emotionProfileView     `json:"emotion"`
}

// handleTrends reports per-category behavioral trends and the emotional
// profile over a historical range, read back from the store.
func (h handlers) handleTrends(w http.ResponseWriter, r *http.Request) {
	childID := pathID(r, "childID")
	if _, err := h.store.GetProfile(r.Context(), childID); err != nil {
		writeError(w, err)
		return
	}

	from, to, err := timeRange(r, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}

	observations, err := h.store.ObservationsByRange(r.Context(), childID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	transitions, err := h.store.TransitionsByRange(r.Context(), childID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	sessions, err := h.store.ListSessionsByChild(r.Context(), childID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	behaviorCfg := behavior.Config{Period: to.Sub(from), Sessions: len(sessions)}
	emotionCfg := emotion.Config{Lookback: to.Sub(from)}

	view := trendsView{
		ChildID: childID,
		From:    from,
		To:      to,
		Emotion: newEmotionProfileView(emotion.Analyze(transitions, to, emotionCfg)),
	}
	for _, analysis := range behavior.AnalyzeAll(observations, to, behaviorCfg) {
		if analysis.ObservationCount == 0 {
			continue
		}
		view.Behavior = append(view.Behavior, newBehaviorAnalysisView(analysis))
	}
	sort.Slice(view.Behavior, func(i, j int) bool {
		return view.Behavior[i].Category < view.Behavior[j].Category
	})
	writeJSON(w, http.StatusOK, view)
}

type sessionRecordView struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}

type exportView struct {
	ChildID      string                  `json:"child_id"`
	From         time.Time               `json:"from"`
	To           time.Time               `json:"to"`
	Sessions     []sessionRecordView     `json:"sessions,omitempty"`
	Observations []observationPayload    `json:"observations,omitempty"`
	Transitions  []transitionPayload     `json:"transitions,omitempty"`
	Assessments  []assessmentPayload     `json:"assessments,omitempty"`
	Achievements []milestone.Achievement `json:"achievements,omitempty"`
}

// handleExport bundles a child's recorded data over a date range for
// caregiver and clinician handoff.
func (h handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	childID := pathID(r, "childID")
	if _, err := h.store.GetProfile(r.Context(), childID); err != nil {
		writeError(w, err)
		return
	}

	from, to, err := timeRange(r, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}

	sessions, err := h.store.ListSessionsByChild(r.Context(), childID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	observations, err := h.store.ObservationsByRange(r.Context(), childID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	transitions, err := h.store.TransitionsByRange(r.Context(), childID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	assessments, err := h.store.AssessmentsByRange(r.Context(), childID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	achievements, err := h.store.AchievementsByChild(r.Context(), childID)
	if err != nil {
		writeError(w, err)
		return
	}

	view := exportView{ChildID: childID, From: from, To: to}
	for _, record := range sessions {
		view.Sessions = append(view.Sessions, sessionRecordView{
			ID:        record.ID,
			StartedAt: record.StartedAt,
			EndedAt:   record.EndedAt,
		})
	}
	for _, observation := range observations {
		view.Observations = append(view.Observations, observationView(observation))
	}
	for _, transition := range transitions {
		view.Transitions = append(view.Transitions, transitionView(transition))
	}
	for _, assessment := range assessments {
		view.Assessments = append(view.Assessments, assessmentView(assessment))
	}
	for _, achievement := range achievements {
		if achievement.AchievedAt.Before(from) || achievement.AchievedAt.After(to) {
			continue
		}
		view.Achievements = append(view.Achievements, achievement)
	}
	writeJSON(w, http.StatusOK, view)
}
