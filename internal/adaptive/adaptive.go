// Package adaptive derives per-session sensory, pacing, and content
// adjustments from a child profile and the live overstimulation level.
package adaptive

import (
	"time"

	"github.com/quietloop/attune/internal/profile"
)

// Sensory band edges on the 0-100 sensitivity scale.
const (
	lowSensitivity  = 30
	highSensitivity = 70
)

// Break interval bounds.
const (
	minBreakInterval = 180 * time.Second
	maxBreakInterval = 360 * time.Second
)

// Stimulation directions for one sensory axis.
const (
	// StimulationReduce lowers stimulation on an axis the child is
	// sensitive to.
	StimulationReduce = "reduce"
	// StimulationBoost raises stimulation on an axis the child seeks.
	StimulationBoost = "boost"
)

// Pacing holds the timing parameters applied to session content.
type Pacing struct {
	InstructionDelay time.Duration
	ResponseTimeout  time.Duration
	TransitionDelay  time.Duration
}

// Config is the per-session adjustment set derived from a profile.
type Config struct {
	// SensoryAdjustments maps a sensory axis to a stimulation direction.
	// Axes inside the mid band are absent.
	SensoryAdjustments map[string]string
	Pacing             Pacing
	// PreferredThemes holds the child's top interests, at most three.
	PreferredThemes []string
	// FilteredContent lists declared triggers to keep out of session
	// content.
	FilteredContent []string
	BreakInterval   time.Duration
	// OverstimulationThreshold mirrors the scoring threshold for the
	// child's support level.
	OverstimulationThreshold float64
}

// Configure derives the session configuration from the profile. It is a pure
// function of the profile.
func Configure(child profile.ChildProfile) Config {
	adjustments := make(map[string]string)
	child.Sensitivity.Each(func(axis string, value int) {
		switch {
		case value > highSensitivity:
			adjustments[axis] = StimulationReduce
		case value < lowSensitivity:
			adjustments[axis] = StimulationBoost
		}
	})

	themes := child.Interests
	if len(themes) > 3 {
		themes = themes[:3]
	}

	return Config{
		SensoryAdjustments:       adjustments,
		Pacing:                   pacingFor(child.SupportLevel, child.Age),
		PreferredThemes:          append([]string(nil), themes...),
		FilteredContent:          append([]string(nil), child.Triggers...),
		BreakInterval:            breakIntervalFor(child.SupportLevel, child.Age),
		OverstimulationThreshold: thresholdFor(child.SupportLevel),
	}
}

// pacingFor scales base timings up with support level, then by age band:
// under 6 slower, over 12 faster.
func pacingFor(level profile.SupportLevel, age int) Pacing {
	base := Pacing{
		InstructionDelay: 2 * time.Second,
		ResponseTimeout:  15 * time.Second,
		TransitionDelay:  3 * time.Second,
	}

	supportScale := 1.0
	switch level {
	case profile.SupportLevel2:
		supportScale = 1.5
	case profile.SupportLevel3:
		supportScale = 2.0
	}

	ageScale := 1.0
	switch {
	case age < 6:
		ageScale = 1.25
	case age > 12:
		ageScale = 0.8
	}

	scale := supportScale * ageScale
	return Pacing{
		InstructionDelay: scaleDuration(base.InstructionDelay, scale),
		ResponseTimeout:  scaleDuration(base.ResponseTimeout, scale),
		TransitionDelay:  scaleDuration(base.TransitionDelay, scale),
	}
}

// breakIntervalFor shortens the interval between breaks as support level
// rises, nudged by age, bounded to [180s, 360s].
func breakIntervalFor(level profile.SupportLevel, age int) time.Duration {
	var interval time.Duration
	switch level {
	case profile.SupportLevel3:
		interval = 180 * time.Second
	case profile.SupportLevel2:
		interval = 240 * time.Second
	default:
		interval = 300 * time.Second
	}

	if age < 6 {
		interval -= 30 * time.Second
	} else if age > 12 {
		interval += 60 * time.Second
	}

	if interval < minBreakInterval {
		return minBreakInterval
	}
	if interval > maxBreakInterval {
		return maxBreakInterval
	}
	return interval
}

func thresholdFor(level profile.SupportLevel) float64 {
	switch level {
	case profile.SupportLevel3:
		return 0.4
	case profile.SupportLevel2:
		return 0.6
	default:
		return 0.8
	}
}

func scaleDuration(d time.Duration, scale float64) time.Duration {
	return time.Duration(float64(d) * scale)
}

// Adjustments are the live corrections applied as overstimulation rises.
type Adjustments struct {
	// VolumeScale and BrightnessScale multiply the current output levels.
	VolumeScale     float64
	BrightnessScale float64
	// AnimationSpeedScale slows motion; TimeoutScale extends response
	// timeouts.
	AnimationSpeedScale float64
	TimeoutScale        float64
	// SimplifyInterface strips the interface down to essential controls.
	SimplifyInterface bool
	// SuggestBreak prompts for an immediate sensory break.
	SuggestBreak bool
}

// Adjust maps an overstimulation level in [0, 1] onto a four-rung ladder of
// increasingly aggressive corrections.
func Adjust(level float64) Adjustments {
	switch {
	case level > 0.7:
		return Adjustments{
			VolumeScale:         0.4,
			BrightnessScale:     0.5,
			AnimationSpeedScale: 0.25,
			TimeoutScale:        2.0,
			SimplifyInterface:   true,
			SuggestBreak:        true,
		}
	case level > 0.4:
		return Adjustments{
			VolumeScale:         0.6,
			BrightnessScale:     0.7,
			AnimationSpeedScale: 0.5,
			TimeoutScale:        1.5,
			SuggestBreak:        true,
		}
	case level > 0.1:
		return Adjustments{
			VolumeScale:         0.8,
			BrightnessScale:     0.9,
			AnimationSpeedScale: 0.75,
			TimeoutScale:        1.25,
		}
	default:
		return Adjustments{
			VolumeScale:         1,
			BrightnessScale:     1,
			AnimationSpeedScale: 1,
			TimeoutScale:        1,
		}
	}
}
