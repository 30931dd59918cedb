package api

import (
	"time"

	"github.com/quietloop/attune/internal/adaptive"
	"github.com/quietloop/attune/internal/alert"
	"github.com/quietloop/attune/internal/behavior"
	"github.com/quietloop/attune/internal/milestone"
	"github.com/quietloop/attune/internal/emotion"
	"github.com/quietloop/attune/internal/profile"
	"github.com/quietloop/attune/internal/scoring"
	"github.com/quietloop/attune/internal/session"
	"github.com/quietloop/attune/internal/storage"
)

type sensitivityPayload struct {
	Auditory       int `json:"auditory"`
	Visual         int `json:"visual"`
	Tactile        int `json:"tactile"`
	Vestibular     int `json:"vestibular"`
	Proprioceptive int `json:"proprioceptive"`
}

func (p sensitivityPayload) vector() profile.SensitivityVector {
	return profile.SensitivityVector{
		Auditory:       p.Auditory,
		Visual:         p.Visual,
		Tactile:        p.Tactile,
		Vestibular:     p.Vestibular,
		Proprioceptive: p.Proprioceptive,
	}
}

func sensitivityView(v profile.SensitivityVector) sensitivityPayload {
	return sensitivityPayload{
		Auditory:       v.Auditory,
		Visual:         v.Visual,
		Tactile:        v.Tactile,
		Vestibular:     v.Vestibular,
		Proprioceptive: v.Proprioceptive,
	}
}

type profilePayload struct {
	Name              string             `json:"name"`
	Age               int                `json:"age"`
	SupportLevel      int                `json:"support_level"`
	Sensitivity       sensitivityPayload `json:"sensitivity"`
	Interests         []string           `json:"interests,omitempty"`
	Triggers          []string           `json:"triggers,omitempty"`
	CalmingStrategies []string           `json:"calming_strategies,omitempty"`
}

type profileView struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Age               int                `json:"age"`
	SupportLevel      int                `json:"support_level"`
	Sensitivity       sensitivityPayload `json:"sensitivity"`
	Interests         []string           `json:"interests,omitempty"`
	Triggers          []string           `json:"triggers,omitempty"`
	CalmingStrategies []string           `json:"calming_strategies,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func newProfileView(child profile.ChildProfile) profileView {
	return profileView{
		ID:                child.ID,
		Name:              child.Name,
		Age:               child.Age,
		SupportLevel:      int(child.SupportLevel),
		Sensitivity:       sensitivityView(child.Sensitivity),
		Interests:         child.Interests,
		Triggers:          child.Triggers,
		CalmingStrategies: child.CalmingStrategies,
		CreatedAt:         child.CreatedAt,
		UpdatedAt:         child.UpdatedAt,
	}
}

type samplePayload struct {
	Timestamp        time.Time `json:"timestamp,omitzero"`
	ActionsPerMinute float64   `json:"actions_per_minute"`
	ErrorRate        float64   `json:"error_rate"`
	PauseFrequency   float64   `json:"pause_frequency"`
	AvgResponseTime  float64   `json:"avg_response_time"`
	ProgressRate     float64   `json:"progress_rate"`
}

func (p samplePayload) sample() scoring.MetricSample {
	return scoring.MetricSample{
		Timestamp:        p.Timestamp,
		ActionsPerMinute: p.ActionsPerMinute,
		ErrorRate:        p.ErrorRate,
		PauseFrequency:   p.PauseFrequency,
		AvgResponseTime:  p.AvgResponseTime,
		ProgressRate:     p.ProgressRate,
	}
}

type scoreView struct {
	Score          float64  `json:"score"`
	Indicators     []string `json:"indicators,omitempty"`
	Overstimulated bool     `json:"overstimulated"`
	Intervention   string   `json:"intervention,omitempty"`
}

func newScoreView(result scoring.Result) scoreView {
	view := scoreView{
		Score:          result.Score,
		Overstimulated: result.Overstimulated,
	}
	for _, indicator := range result.Indicators {
		view.Indicators = append(view.Indicators, indicator.String())
	}
	if result.Intervention != scoring.InterventionNone {
		view.Intervention = result.Intervention.String()
	}
	return view
}

type observationPayload struct {
	Timestamp       time.Time         `json:"timestamp,omitzero"`
	Category        string            `json:"category"`
	Intensity       float64           `json:"intensity"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	Trigger         string            `json:"trigger,omitempty"`
	Intervention    string            `json:"intervention,omitempty"`
	Context         map[string]string `json:"context,omitempty"`
}

func (p observationPayload) observation() (behavior.Observation, error) {
	category, err := behavior.ParseCategory(p.Category)
	if err != nil {
		return behavior.Observation{}, err
	}
	return behavior.Observation{
		Timestamp:    p.Timestamp,
		Category:     category,
		Intensity:    p.Intensity,
		Duration:     time.Duration(p.DurationSeconds * float64(time.Second)),
		Trigger:      p.Trigger,
		Intervention: p.Intervention,
		Context:      p.Context,
	}, nil
}

func observationView(observation behavior.Observation) observationPayload {
	return observationPayload{
		Timestamp:       observation.Timestamp,
		Category:        observation.Category.String(),
		Intensity:       observation.Intensity,
		DurationSeconds: observation.Duration.Seconds(),
		Trigger:         observation.Trigger,
		Intervention:    observation.Intervention,
		Context:         observation.Context,
	}
}

type observationPage struct {
	Observations  []observationPayload `json:"observations"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

type transitionPayload struct {
	Timestamp       time.Time `json:"timestamp,omitzero"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	TriggerEvent    string    `json:"trigger_event,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	SupportNeeded   bool      `json:"support_needed,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
}

func (p transitionPayload) transition() (emotion.Transition, error) {
	from, err := emotion.ParseState(p.From)
	if err != nil {
		return emotion.Transition{}, err
	}
	to, err := emotion.ParseState(p.To)
	if err != nil {
		return emotion.Transition{}, err
	}
	return emotion.Transition{
		Timestamp:     p.Timestamp,
		From:          from,
		To:            to,
		TriggerEvent:  p.TriggerEvent,
		Duration:      time.Duration(p.DurationSeconds * float64(time.Second)),
		SupportNeeded: p.SupportNeeded,
		Strategy:      p.Strategy,
	}, nil
}

func transitionView(transition emotion.Transition) transitionPayload {
	return transitionPayload{
		Timestamp:       transition.Timestamp,
		From:            transition.From.String(),
		To:              transition.To.String(),
		TriggerEvent:    transition.TriggerEvent,
		DurationSeconds: transition.Duration.Seconds(),
		SupportNeeded:   transition.SupportNeeded,
		Strategy:        transition.Strategy,
	}
}

type assessmentPayload struct {
	Timestamp time.Time `json:"timestamp,omitzero"`
	Skill     string    `json:"skill"`
	Category  string    `json:"category,omitempty"`
	Baseline  float64   `json:"baseline"`
	Current   float64   `json:"current"`
	Target    float64   `json:"target"`
	Method    string    `json:"method,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

func (p assessmentPayload) assessment() storage.SkillAssessment {
	return storage.SkillAssessment{
		Timestamp: p.Timestamp,
		Skill:     p.Skill,
		Category:  p.Category,
		Baseline:  p.Baseline,
		Current:   p.Current,
		Target:    p.Target,
		Method:    p.Method,
		Notes:     p.Notes,
	}
}

func assessmentView(assessment storage.SkillAssessment) assessmentPayload {
	return assessmentPayload{
		Timestamp: assessment.Timestamp,
		Skill:     assessment.Skill,
		Category:  assessment.Category,
		Baseline:  assessment.Baseline,
		Current:   assessment.Current,
		Target:    assessment.Target,
		Method:    assessment.Method,
		Notes:     assessment.Notes,
	}
}

type adjustmentsView struct {
	VolumeScale         float64 `json:"volume_scale"`
	BrightnessScale     float64 `json:"brightness_scale"`
	AnimationSpeedScale float64 `json:"animation_speed_scale"`
	TimeoutScale        float64 `json:"timeout_scale"`
	SimplifyInterface   bool    `json:"simplify_interface"`
	SuggestBreak        bool    `json:"suggest_break"`
}

func newAdjustmentsView(adjustments adaptive.Adjustments) adjustmentsView {
	return adjustmentsView{
		VolumeScale:         adjustments.VolumeScale,
		BrightnessScale:     adjustments.BrightnessScale,
		AnimationSpeedScale: adjustments.AnimationSpeedScale,
		TimeoutScale:        adjustments.TimeoutScale,
		SimplifyInterface:   adjustments.SimplifyInterface,
		SuggestBreak:        adjustments.SuggestBreak,
	}
}

type configView struct {
	SensoryAdjustments       map[string]string `json:"sensory_adjustments,omitempty"`
	InstructionDelayMillis   int64             `json:"instruction_delay_ms"`
	ResponseTimeoutMillis    int64             `json:"response_timeout_ms"`
	TransitionDelayMillis    int64             `json:"transition_delay_ms"`
	PreferredThemes          []string          `json:"preferred_themes,omitempty"`
	FilteredContent          []string          `json:"filtered_content,omitempty"`
	BreakIntervalSeconds     float64           `json:"break_interval_seconds"`
	OverstimulationThreshold float64           `json:"overstimulation_threshold"`
}

func newConfigView(config adaptive.Config) configView {
	var adjustments map[string]string
	if len(config.SensoryAdjustments) > 0 {
		adjustments = config.SensoryAdjustments
	}
	return configView{
		SensoryAdjustments:       adjustments,
		InstructionDelayMillis:   config.Pacing.InstructionDelay.Milliseconds(),
		ResponseTimeoutMillis:    config.Pacing.ResponseTimeout.Milliseconds(),
		TransitionDelayMillis:    config.Pacing.TransitionDelay.Milliseconds(),
		PreferredThemes:          config.PreferredThemes,
		FilteredContent:          config.FilteredContent,
		BreakIntervalSeconds:     config.BreakInterval.Seconds(),
		OverstimulationThreshold: config.OverstimulationThreshold,
	}
}

type behaviorAnalysisView struct {
	Category               string   `json:"category"`
	ObservationCount       int      `json:"observation_count"`
	FrequencyPerSession    float64  `json:"frequency_per_session"`
	MeanIntensity          float64  `json:"mean_intensity"`
	IntensityVariance      float64  `json:"intensity_variance"`
	Trend                  string   `json:"trend"`
	Confidence             float64  `json:"confidence"`
	InsufficientData       bool     `json:"insufficient_data,omitempty"`
	Triggers               []string `json:"triggers,omitempty"`
	EffectiveInterventions []string `json:"effective_interventions,omitempty"`
	Recommendations        []string `json:"recommendations,omitempty"`
}

func newBehaviorAnalysisView(analysis behavior.CategoryAnalysis) behaviorAnalysisView {
	return behaviorAnalysisView{
		Category:               analysis.Category.String(),
		ObservationCount:       analysis.ObservationCount,
		FrequencyPerSession:    analysis.FrequencyPerSession,
		MeanIntensity:          analysis.MeanIntensity,
		IntensityVariance:      analysis.IntensityVariance,
		Trend:                  analysis.Trend.String(),
		Confidence:             analysis.Confidence,
		InsufficientData:       analysis.InsufficientData,
		Triggers:               analysis.Triggers,
		EffectiveInterventions: analysis.EffectiveInterventions,
		Recommendations:        analysis.Recommendations,
	}
}

type concernFlagView struct {
	Flag           string `json:"flag"`
	Recommendation string `json:"recommendation"`
}

type emotionProfileView struct {
	RegulationAbility     float64            `json:"regulation_ability"`
	EmotionalRange        float64            `json:"emotional_range"`
	TransitionSmoothness  float64            `json:"transition_smoothness"`
	TriggerSensitivity    map[string]float64 `json:"trigger_sensitivity,omitempty"`
	StrategyEffectiveness map[string]float64 `json:"strategy_effectiveness,omitempty"`
	ConcernFlags          []concernFlagView  `json:"concern_flags,omitempty"`
	TransitionCount       int                `json:"transition_count"`
	InsufficientData      bool               `json:"insufficient_data,omitempty"`
}

func newEmotionProfileView(p emotion.Profile) emotionProfileView {
	view := emotionProfileView{
		RegulationAbility:     p.RegulationAbility,
		EmotionalRange:        p.EmotionalRange,
		TransitionSmoothness:  p.TransitionSmoothness,
		TriggerSensitivity:    p.TriggerSensitivity,
		StrategyEffectiveness: p.StrategyEffectiveness,
		TransitionCount:       p.TransitionCount,
		InsufficientData:      p.InsufficientData,
	}
	for _, flag := range p.ConcernFlags {
		view.ConcernFlags = append(view.ConcernFlags, concernFlagView{
			Flag:           flag.Flag,
			Recommendation: flag.Recommendation,
		})
	}
	return view
}

type startSessionView struct {
	SessionID string     `json:"session_id"`
	ChildID   string     `json:"child_id"`
	StartedAt time.Time  `json:"started_at"`
	Config    configView `json:"config"`
}

type dashboardView struct {
	SessionID         string                  `json:"session_id"`
	ChildID           string                  `json:"child_id"`
	StartedAt         time.Time               `json:"started_at"`
	LastActivity      time.Time               `json:"last_activity"`
	TotalInteractions int                     `json:"total_interactions"`
	AverageRisk       float64                 `json:"average_risk"`
	PeakRisk          float64                 `json:"peak_risk"`
	Config            configView              `json:"config"`
	Adjustments       adjustmentsView         `json:"adjustments"`
	Behavior          []behaviorAnalysisView  `json:"behavior,omitempty"`
	Emotion           emotionProfileView      `json:"emotion"`
	ActiveAlerts      []alert.Alert           `json:"active_alerts,omitempty"`
	Achievements      []milestone.Achievement `json:"achievements,omitempty"`
}

func newDashboardView(dashboard session.Dashboard) dashboardView {
	view := dashboardView{
		SessionID:         dashboard.SessionID,
		ChildID:           dashboard.ChildID,
		StartedAt:         dashboard.StartedAt,
		LastActivity:      dashboard.LastActivity,
		TotalInteractions: dashboard.TotalInteractions,
		AverageRisk:       dashboard.AverageRisk,
		PeakRisk:          dashboard.PeakRisk,
		Config:            newConfigView(dashboard.Config),
		Adjustments:       newAdjustmentsView(dashboard.Adjustments),
		Emotion:           newEmotionProfileView(dashboard.Emotion),
		ActiveAlerts:      dashboard.ActiveAlerts,
		Achievements:      dashboard.Achievements,
	}
	for _, analysis := range dashboard.Behavior {
		view.Behavior = append(view.Behavior, newBehaviorAnalysisView(analysis))
	}
	return view
}
