// Package scoring computes per-sample overstimulation scores from session
// telemetry. Scoring is a pure function of the recent sample window and the
// child profile; it never blocks and never calls external services.
package scoring

import (
	"errors"
	"time"

	"github.com/quietloop/attune/internal/profile"
)

// Indicator identifies one overstimulation signal derived from a sample.
type Indicator int

const (
	// IndicatorUnspecified represents an invalid indicator value.
	IndicatorUnspecified Indicator = iota
	// IndicatorRapidActivity fires when actions per minute exceed the rapid rate.
	IndicatorRapidActivity
	// IndicatorErraticActivity fires when recent rates vary sharply.
	IndicatorErraticActivity
	// IndicatorLongPauses fires when pause frequency is high.
	IndicatorLongPauses
	// IndicatorRepeatedFrustration fires on low activity combined with errors.
	IndicatorRepeatedFrustration
	// IndicatorDifficultyProgressing fires on low progress combined with errors.
	IndicatorDifficultyProgressing
	// IndicatorHighErrorRate fires when the error rate is high.
	IndicatorHighErrorRate
)

// indicatorCount is the number of defined indicators, used as the score divisor.
const indicatorCount = 6

// String returns the wire name for the indicator.
func (i Indicator) String() string {
	switch i {
	case IndicatorRapidActivity:
		return "rapid_activity"
	case IndicatorErraticActivity:
		return "erratic_activity"
	case IndicatorLongPauses:
		return "long_pauses"
	case IndicatorRepeatedFrustration:
		return "repeated_frustration"
	case IndicatorDifficultyProgressing:
		return "difficulty_progressing"
	case IndicatorHighErrorRate:
		return "high_error_rate"
	default:
		return "unspecified"
	}
}

// Intervention identifies one calming intervention from the catalog.
type Intervention int

const (
	// InterventionNone indicates no intervention is recommended.
	InterventionNone Intervention = iota
	// InterventionBreathing recommends a guided breathing exercise.
	InterventionBreathing
	// InterventionMovement recommends a movement or gross-motor break.
	InterventionMovement
	// InterventionSensoryBreak recommends a low-stimulation sensory break.
	InterventionSensoryBreak
	// InterventionDeepPressure recommends deep-pressure input.
	InterventionDeepPressure
	// InterventionQuietSpace recommends relocating to a quiet space.
	InterventionQuietSpace
)

// String returns the wire name for the intervention.
func (iv Intervention) String() string {
	switch iv {
	case InterventionBreathing:
		return "breathing"
	case InterventionMovement:
		return "movement"
	case InterventionSensoryBreak:
		return "sensory_break"
	case InterventionDeepPressure:
		return "deep_pressure"
	case InterventionQuietSpace:
		return "quiet_space"
	default:
		return "none"
	}
}

// interventionCatalog maps declared calming-strategy names to interventions.
var interventionCatalog = map[string]Intervention{
	"breathing":      InterventionBreathing,
	"deep-breathing": InterventionBreathing,
	"movement":       InterventionMovement,
	"movement-break": InterventionMovement,
	"sensory-break":  InterventionSensoryBreak,
	"deep-pressure":  InterventionDeepPressure,
	"quiet-space":    InterventionQuietSpace,
}

// ErrInvalidSample indicates a metric sample with out-of-range fields.
var ErrInvalidSample = errors.New("metric sample fields are out of range")

// MetricSample is one windowed telemetry reading for a session.
type MetricSample struct {
	Timestamp        time.Time
	ActionsPerMinute float64
	ErrorRate        float64
	PauseFrequency   float64
	AvgResponseTime  float64
	ProgressRate     float64
}

// Validate checks that rate and ratio fields are in range.
func (s MetricSample) Validate() error {
	if s.ActionsPerMinute < 0 || s.AvgResponseTime < 0 {
		return ErrInvalidSample
	}
	ratios := []float64{s.ErrorRate, s.PauseFrequency, s.ProgressRate}
	for _, r := range ratios {
		if r < 0 || r > 1 {
			return ErrInvalidSample
		}
	}
	return nil
}

// Config tunes scorer thresholds. Zero values fall back to defaults.
type Config struct {
	// RapidRate is the actions-per-minute bound for rapid activity.
	RapidRate float64
	// RateVariance is the variance bound over the last three rates.
	RateVariance float64
	// ThresholdBySupport overrides the per-support-level overstimulation
	// thresholds, indexed by support level.
	ThresholdBySupport map[profile.SupportLevel]float64
}

// DefaultConfig returns the default scorer tuning.
func DefaultConfig() Config {
	return Config{
		RapidRate:    120,
		RateVariance: 900,
		ThresholdBySupport: map[profile.SupportLevel]float64{
			profile.SupportLevel1: 0.8,
			profile.SupportLevel2: 0.6,
			profile.SupportLevel3: 0.4,
		},
	}
}

// Threshold returns the overstimulation threshold for a support level.
// More support need means a lower tolerance.
func (c Config) Threshold(level profile.SupportLevel) float64 {
	if c.ThresholdBySupport != nil {
		if threshold, ok := c.ThresholdBySupport[level]; ok {
			return threshold
		}
	}
	switch level {
	case profile.SupportLevel3:
		return 0.4
	case profile.SupportLevel2:
		return 0.6
	default:
		return 0.8
	}
}

// Result is the scored outcome for one sample.
type Result struct {
	Score          float64
	Indicators     []Indicator
	Overstimulated bool
	Intervention   Intervention
}

// Score evaluates one sample against the session's recent window and the
// child profile. The window holds previously scored samples, oldest first;
// the caller owns window append and eviction.
func Score(child profile.ChildProfile, window []MetricSample, sample MetricSample, cfg Config) Result {
	if cfg.RapidRate <= 0 {
		cfg.RapidRate = 120
	}
	if cfg.RateVariance <= 0 {
		cfg.RateVariance = 900
	}

	var indicators []Indicator

	if sample.ActionsPerMinute > cfg.RapidRate {
		indicators = append(indicators, IndicatorRapidActivity)
	}
	if rateVariance(window, sample) > cfg.RateVariance {
		indicators = append(indicators, IndicatorErraticActivity)
	}
	if sample.PauseFrequency > 0.3 {
		indicators = append(indicators, IndicatorLongPauses)
	}
	if sample.ActionsPerMinute < 10 && sample.ErrorRate > 0.3 {
		indicators = append(indicators, IndicatorRepeatedFrustration)
	}
	if sample.ProgressRate < 0.2 && sample.ErrorRate > 0.4 {
		indicators = append(indicators, IndicatorDifficultyProgressing)
	}
	if sample.ErrorRate > 0.5 {
		indicators = append(indicators, IndicatorHighErrorRate)
	}

	score := float64(len(indicators)) / indicatorCount
	for _, indicator := range indicators {
		if indicator == IndicatorRapidActivity || indicator == IndicatorHighErrorRate {
			score += 0.2
		}
	}
	score = clamp(score)

	result := Result{
		Score:          score,
		Indicators:     indicators,
		Overstimulated: score >= cfg.Threshold(child.SupportLevel),
	}
	if result.Overstimulated {
		result.Intervention = selectIntervention(child, indicators)
	}
	return result
}

// selectIntervention prefers the child's first declared calming strategy found
// in the catalog, then falls back on the dominant indicator.
func selectIntervention(child profile.ChildProfile, indicators []Indicator) Intervention {
	for _, strategy := range child.CalmingStrategies {
		if intervention, ok := interventionCatalog[strategy]; ok {
			return intervention
		}
	}

	for _, indicator := range indicators {
		if indicator == IndicatorRapidActivity {
			return InterventionBreathing
		}
	}
	for _, indicator := range indicators {
		if indicator == IndicatorErraticActivity {
			return InterventionMovement
		}
	}
	return InterventionSensoryBreak
}

// rateVariance computes the population variance of the last three
// actions-per-minute readings, including the incoming sample. It returns 0
// when fewer than three readings exist.
func rateVariance(window []MetricSample, sample MetricSample) float64 {
	rates := make([]float64, 0, 3)
	for i := len(window) - 1; i >= 0 && len(rates) < 2; i-- {
		rates = append(rates, window[i].ActionsPerMinute)
	}
	rates = append(rates, sample.ActionsPerMinute)
	if len(rates) < 3 {
		return 0
	}

	var sum float64
	for _, rate := range rates {
		sum += rate
	}
	mean := sum / float64(len(rates))

	var variance float64
	for _, rate := range rates {
		delta := rate - mean
		variance += delta * delta
	}
	return variance / float64(len(rates))
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
