// Package behavior classifies longitudinal behavioral trends from windowed
// observations. Analysis is pure over the supplied window; window bounds and
// eviction are owned by the session runtime.
package behavior

import (
	"errors"
	"sort"
	"time"
)

// Category is a closed behavior-observation category.
type Category int

const (
	// CategoryUnspecified represents an invalid category value.
	CategoryUnspecified Category = iota
	// CategoryAttentionRegulation covers focus and attention shifting.
	CategoryAttentionRegulation
	// CategoryEmotionalRegulation covers managing emotional responses.
	CategoryEmotionalRegulation
	// CategorySensoryProcessing covers responses to sensory input.
	CategorySensoryProcessing
	// CategorySocialInteraction covers peer and adult interaction.
	CategorySocialInteraction
	// CategoryCommunication covers expressive and receptive communication.
	CategoryCommunication
	// CategoryAdaptiveBehavior covers daily-living and coping skills.
	CategoryAdaptiveBehavior
	// CategoryRepetitiveBehavior covers repetitive or restricted behavior.
	CategoryRepetitiveBehavior
	// CategoryTransitionBehavior covers responses to activity transitions.
	CategoryTransitionBehavior
)

// Categories lists every defined behavior category.
var Categories = []Category{
	CategoryAttentionRegulation,
	CategoryEmotionalRegulation,
	CategorySensoryProcessing,
	CategorySocialInteraction,
	CategoryCommunication,
	CategoryAdaptiveBehavior,
	CategoryRepetitiveBehavior,
	CategoryTransitionBehavior,
}

// String returns the wire name for the category.
func (c Category) String() string {
	switch c {
	case CategoryAttentionRegulation:
		return "attention_regulation"
	case CategoryEmotionalRegulation:
		return "emotional_regulation"
	case CategorySensoryProcessing:
		return "sensory_processing"
	case CategorySocialInteraction:
		return "social_interaction"
	case CategoryCommunication:
		return "communication"
	case CategoryAdaptiveBehavior:
		return "adaptive_behavior"
	case CategoryRepetitiveBehavior:
		return "repetitive_behavior"
	case CategoryTransitionBehavior:
		return "transition_behavior"
	default:
		return "unspecified"
	}
}

// ErrUnknownCategory indicates a category name outside the closed set.
var ErrUnknownCategory = errors.New("unknown behavior category")

// ParseCategory maps a wire name onto a category.
func ParseCategory(name string) (Category, error) {
	for _, category := range Categories {
		if category.String() == name {
			return category, nil
		}
	}
	return CategoryUnspecified, ErrUnknownCategory
}

// Observation is one recorded behavioral observation.
type Observation struct {
	Timestamp    time.Time
	Category     Category
	Intensity    float64
	Duration     time.Duration
	Trigger      string
	Intervention string
	Context      map[string]string
}

// Trend is a discrete classification of metric directionality over time.
type Trend int

const (
	// TrendUnspecified represents an invalid trend value.
	TrendUnspecified Trend = iota
	// TrendSignificantImprovement indicates a strong upward shift.
	TrendSignificantImprovement
	// TrendModerateImprovement indicates a mild upward shift.
	TrendModerateImprovement
	// TrendStable indicates no meaningful shift.
	TrendStable
	// TrendInconsistent indicates variance above the stability threshold.
	TrendInconsistent
	// TrendMinorDecline indicates a mild downward shift.
	TrendMinorDecline
	// TrendConcerningDecline indicates a strong downward shift.
	TrendConcerningDecline
)

// String returns the wire name for the trend.
func (t Trend) String() string {
	switch t {
	case TrendSignificantImprovement:
		return "significant_improvement"
	case TrendModerateImprovement:
		return "moderate_improvement"
	case TrendStable:
		return "stable"
	case TrendInconsistent:
		return "inconsistent"
	case TrendMinorDecline:
		return "minor_decline"
	case TrendConcerningDecline:
		return "concerning_decline"
	default:
		return "unspecified"
	}
}

// IsDecline reports whether the trend is a decline classification.
func (t Trend) IsDecline() bool {
	return t == TrendMinorDecline || t == TrendConcerningDecline
}

// Config tunes trend classification. Zero values fall back to defaults.
type Config struct {
	// Period is the trailing window considered by analysis.
	Period time.Duration
	// MinObservations is the minimum window size for a classified trend.
	MinObservations int
	// VarianceThreshold is the intensity variance above which a flat window
	// is classified inconsistent.
	VarianceThreshold float64
	// TriggerShare is the minimum share of observations naming a trigger.
	TriggerShare float64
	// InterventionDrop is the minimum intensity reduction against baseline
	// for an intervention to count as effective.
	InterventionDrop float64
	// Sessions is the number of sessions held inside the period, used to
	// normalize observation frequency.
	Sessions int
}

// DefaultConfig returns the default trend tuning.
func DefaultConfig() Config {
	return Config{
		Period:            14 * 24 * time.Hour,
		MinObservations:   3,
		VarianceThreshold: 0.08,
		TriggerShare:      0.2,
		InterventionDrop:  0.6,
		Sessions:          1,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Period <= 0 {
		c.Period = defaults.Period
	}
	if c.MinObservations <= 0 {
		c.MinObservations = defaults.MinObservations
	}
	if c.VarianceThreshold <= 0 {
		c.VarianceThreshold = defaults.VarianceThreshold
	}
	if c.TriggerShare <= 0 {
		c.TriggerShare = defaults.TriggerShare
	}
	if c.InterventionDrop <= 0 {
		c.InterventionDrop = defaults.InterventionDrop
	}
	if c.Sessions <= 0 {
		c.Sessions = defaults.Sessions
	}
	return c
}

// CategoryAnalysis summarizes one behavior category over the window.
type CategoryAnalysis struct {
	Category         Category
	ObservationCount int
	// FrequencyPerSession is the window's observation count normalized by
	// the configured session count.
	FrequencyPerSession    float64
	MeanIntensity          float64
	IntensityVariance      float64
	Trend                  Trend
	Confidence             float64
	InsufficientData       bool
	Triggers               []string
	EffectiveInterventions []string
	Recommendations        []string
}

// Analyze classifies the trend for one category's observations within the
// trailing period ending at now. Fewer than the minimum observations yields
// a stable, low-confidence result with InsufficientData set.
func Analyze(category Category, observations []Observation, now time.Time, cfg Config) CategoryAnalysis {
	cfg = cfg.withDefaults()
	cutoff := now.Add(-cfg.Period)

	window := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if obs.Category != category {
			continue
		}
		if obs.Timestamp.Before(cutoff) {
			continue
		}
		window = append(window, obs)
	}
	sort.Slice(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	analysis := CategoryAnalysis{
		Category:            category,
		ObservationCount:    len(window),
		FrequencyPerSession: float64(len(window)) / float64(cfg.Sessions),
	}

	if len(window) < cfg.MinObservations {
		analysis.Trend = TrendStable
		analysis.Confidence = 0.2
		analysis.InsufficientData = true
		return analysis
	}

	analysis.MeanIntensity = meanIntensity(window)
	analysis.IntensityVariance = intensityVariance(window, analysis.MeanIntensity)
	analysis.Trend = classifyTrend(window, analysis.IntensityVariance, cfg)
	analysis.Confidence = confidenceFor(len(window))
	analysis.Triggers = frequentTriggers(window, cfg.TriggerShare)
	analysis.EffectiveInterventions = effectiveInterventions(window, analysis.MeanIntensity, cfg.InterventionDrop)
	analysis.Recommendations = recommendationTags(category, analysis.Trend)
	return analysis
}

// AnalyzeAll runs Analyze for every defined category.
func AnalyzeAll(observations []Observation, now time.Time, cfg Config) []CategoryAnalysis {
	analyses := make([]CategoryAnalysis, 0, len(Categories))
	for _, category := range Categories {
		analyses = append(analyses, Analyze(category, observations, now, cfg))
	}
	return analyses
}

// classifyTrend compares early-window and late-window intensity averages.
// Rising intensity reads as improvement; variance without direction reads as
// inconsistent.
func classifyTrend(window []Observation, variance float64, cfg Config) Trend {
	half := len(window) / 2
	early := window[:half]
	late := window[half:]
	if len(early) == 0 {
		return TrendStable
	}

	delta := meanIntensity(late) - meanIntensity(early)
	switch {
	case delta >= 0.25:
		return TrendSignificantImprovement
	case delta >= 0.1:
		return TrendModerateImprovement
	case delta <= -0.25:
		return TrendConcerningDecline
	case delta <= -0.1:
		return TrendMinorDecline
	case variance > cfg.VarianceThreshold:
		return TrendInconsistent
	default:
		return TrendStable
	}
}

func confidenceFor(count int) float64 {
	confidence := 0.4 + float64(count)*0.03
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

// frequentTriggers returns trigger and context values that appear in at least
// the given share of observations.
func frequentTriggers(window []Observation, share float64) []string {
	counts := make(map[string]int)
	for _, obs := range window {
		seen := make(map[string]bool)
		if obs.Trigger != "" {
			seen[obs.Trigger] = true
		}
		for _, value := range obs.Context {
			if value != "" {
				seen[value] = true
			}
		}
		for value := range seen {
			counts[value]++
		}
	}

	minShare := share * float64(len(window))

	var triggers []string
	for value, count := range counts {
		if float64(count) >= minShare {
			triggers = append(triggers, value)
		}
	}
	sort.Strings(triggers)
	return triggers
}

// effectiveInterventions returns interventions whose mean post-use intensity
// sits at least drop below the category baseline.
func effectiveInterventions(window []Observation, baseline float64, drop float64) []string {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, obs := range window {
		if obs.Intervention == "" {
			continue
		}
		sums[obs.Intervention] += obs.Intensity
		counts[obs.Intervention]++
	}

	var effective []string
	for intervention, count := range counts {
		mean := sums[intervention] / float64(count)
		if baseline-mean >= drop {
			effective = append(effective, intervention)
		}
	}
	sort.Strings(effective)
	return effective
}

func meanIntensity(window []Observation) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, obs := range window {
		sum += obs.Intensity
	}
	return sum / float64(len(window))
}

func intensityVariance(window []Observation, mean float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var variance float64
	for _, obs := range window {
		delta := obs.Intensity - mean
		variance += delta * delta
	}
	return variance / float64(len(window))
}

// recommendationTags maps a category and trend onto machine-readable tags
// consumed by the optional narrative collaborator.
func recommendationTags(category Category, trend Trend) []string {
	var tags []string
	switch trend {
	case TrendConcerningDecline:
		tags = append(tags, "review-support-plan", "increase-observation-frequency")
	case TrendMinorDecline:
		tags = append(tags, "monitor-closely")
	case TrendInconsistent:
		tags = append(tags, "identify-environmental-factors")
	case TrendSignificantImprovement:
		tags = append(tags, "reinforce-current-strategies")
	}

	if trend.IsDecline() {
		switch category {
		case CategorySensoryProcessing:
			tags = append(tags, "increase-sensory-breaks")
		case CategoryAttentionRegulation:
			tags = append(tags, "shorten-activity-blocks")
		case CategoryEmotionalRegulation:
			tags = append(tags, "practice-calming-strategies")
		case CategoryTransitionBehavior:
			tags = append(tags, "add-transition-warnings")
		case CategorySocialInteraction:
			tags = append(tags, "scaffold-peer-interaction")
		case CategoryCommunication:
			tags = append(tags, "offer-alternative-communication")
		case CategoryRepetitiveBehavior:
			tags = append(tags, "offer-regulation-alternatives")
		case CategoryAdaptiveBehavior:
			tags = append(tags, "break-down-task-steps")
		}
	}
	return tags
}
