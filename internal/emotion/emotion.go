// Package emotion scores emotional regulation from transition sequences.
// Analysis is pure over the supplied transitions; retention windows are owned
// by the session runtime.
package emotion

import (
	"errors"
	"math"
	"sort"
	"time"
)

// State is a closed emotional state with an assigned valence.
type State int

const (
	// StateUnspecified represents an invalid state value.
	StateUnspecified State = iota
	// StateCalm is settled and regulated.
	StateCalm
	// StateHappy is positive and expressive.
	StateHappy
	// StateExcited is positively activated.
	StateExcited
	// StateEngaged is focused on the activity.
	StateEngaged
	// StateNeutral is neither positive nor negative.
	StateNeutral
	// StateAnxious is worried or apprehensive.
	StateAnxious
	// StateFrustrated is blocked and irritated.
	StateFrustrated
	// StateWithdrawn is disengaged and avoidant.
	StateWithdrawn
	// StateOverwhelmed is overloaded beyond coping capacity.
	StateOverwhelmed
	// StateDistressed is acutely upset.
	StateDistressed
)

// States lists every defined emotional state.
var States = []State{
	StateCalm,
	StateHappy,
	StateExcited,
	StateEngaged,
	StateNeutral,
	StateAnxious,
	StateFrustrated,
	StateWithdrawn,
	StateOverwhelmed,
	StateDistressed,
}

// String returns the wire name for the state.
func (s State) String() string {
	switch s {
	case StateCalm:
		return "calm"
	case StateHappy:
		return "happy"
	case StateExcited:
		return "excited"
	case StateEngaged:
		return "engaged"
	case StateNeutral:
		return "neutral"
	case StateAnxious:
		return "anxious"
	case StateFrustrated:
		return "frustrated"
	case StateWithdrawn:
		return "withdrawn"
	case StateOverwhelmed:
		return "overwhelmed"
	case StateDistressed:
		return "distressed"
	default:
		return "unspecified"
	}
}

// Valence returns the signed intensity of the state, from -2 to +2.
func (s State) Valence() int {
	switch s {
	case StateHappy:
		return 2
	case StateCalm, StateExcited, StateEngaged:
		return 1
	case StateNeutral:
		return 0
	case StateAnxious, StateFrustrated, StateWithdrawn:
		return -1
	case StateOverwhelmed, StateDistressed:
		return -2
	default:
		return 0
	}
}

// ErrUnknownState indicates a state name outside the closed set.
var ErrUnknownState = errors.New("unknown emotional state")

// ParseState maps a wire name onto a state.
func ParseState(name string) (State, error) {
	for _, state := range States {
		if state.String() == name {
			return state, nil
		}
	}
	return StateUnspecified, ErrUnknownState
}

// Transition is one recorded emotional state change.
type Transition struct {
	Timestamp     time.Time
	From          State
	To            State
	TriggerEvent  string
	Duration      time.Duration
	SupportNeeded bool
	Strategy      string
}

// ConcernFlag names a concerning transition pattern with a recommendation tag.
type ConcernFlag struct {
	Flag           string
	Recommendation string
}

// Profile summarizes emotional regulation over the lookback window.
type Profile struct {
	RegulationAbility     float64
	EmotionalRange        float64
	TransitionSmoothness  float64
	TriggerSensitivity    map[string]float64
	StrategyEffectiveness map[string]float64
	ConcernFlags          []ConcernFlag
	TransitionCount       int
	InsufficientData      bool
}

// Config tunes regulation analysis. Zero values fall back to defaults.
type Config struct {
	// Lookback is the trailing window considered by analysis.
	Lookback time.Duration
	// MinTransitions is the minimum sequence length for a scored profile.
	MinTransitions int
	// RegulationTime is the duration under which a transition counts as
	// promptly regulated.
	RegulationTime time.Duration
	// SlowRecovery is the duration above which a transition counts as a
	// slow recovery.
	SlowRecovery time.Duration
}

// DefaultConfig returns the default regulation tuning.
func DefaultConfig() Config {
	return Config{
		Lookback:       30 * 24 * time.Hour,
		MinTransitions: 5,
		RegulationTime: 300 * time.Second,
		SlowRecovery:   600 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Lookback <= 0 {
		c.Lookback = defaults.Lookback
	}
	if c.MinTransitions <= 0 {
		c.MinTransitions = defaults.MinTransitions
	}
	if c.RegulationTime <= 0 {
		c.RegulationTime = defaults.RegulationTime
	}
	if c.SlowRecovery <= 0 {
		c.SlowRecovery = defaults.SlowRecovery
	}
	return c
}

// baselineProfile is returned when the sequence is too short to score.
func baselineProfile(count int) Profile {
	return Profile{
		RegulationAbility:     0.5,
		EmotionalRange:        0,
		TransitionSmoothness:  0.5,
		TriggerSensitivity:    map[string]float64{},
		StrategyEffectiveness: map[string]float64{},
		TransitionCount:       count,
		InsufficientData:      true,
	}
}

// Analyze scores an ordered transition sequence within the lookback window
// ending at now. Sequences shorter than the minimum return the baseline
// profile with InsufficientData set.
func Analyze(transitions []Transition, now time.Time, cfg Config) Profile {
	cfg = cfg.withDefaults()
	cutoff := now.Add(-cfg.Lookback)

	window := make([]Transition, 0, len(transitions))
	for _, transition := range transitions {
		if transition.Timestamp.Before(cutoff) {
			continue
		}
		window = append(window, transition)
	}
	sort.Slice(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	if len(window) < cfg.MinTransitions {
		return baselineProfile(len(window))
	}

	return Profile{
		RegulationAbility:     regulationAbility(window, cfg),
		EmotionalRange:        emotionalRange(window),
		TransitionSmoothness:  transitionSmoothness(window, cfg),
		TriggerSensitivity:    triggerSensitivity(window),
		StrategyEffectiveness: strategyEffectiveness(window),
		ConcernFlags:          concernFlags(window, cfg),
		TransitionCount:       len(window),
	}
}

// regulationAbility averages a per-transition score: base 0.5, plus credit
// for negative-to-positive movement, prompt regulation, independence, and
// strategy use.
func regulationAbility(window []Transition, cfg Config) float64 {
	var sum float64
	for _, transition := range window {
		score := 0.5
		if transition.From.Valence() < 0 && transition.To.Valence() > 0 {
			score += 0.3
		}
		if transition.Duration <= cfg.RegulationTime {
			score += 0.2
		}
		if !transition.SupportNeeded {
			score += 0.2
		}
		if transition.Strategy != "" {
			score += 0.1
		}
		sum += clamp(score)
	}
	return clamp(sum / float64(len(window)))
}

// emotionalRange scales unique-state coverage by the share of positive
// landings among non-neutral landings.
func emotionalRange(window []Transition) float64 {
	unique := make(map[State]bool)
	var positive, negative int
	for _, transition := range window {
		unique[transition.From] = true
		unique[transition.To] = true
		switch {
		case transition.To.Valence() > 0:
			positive++
		case transition.To.Valence() < 0:
			negative++
		}
	}

	coverage := float64(len(unique)) / float64(len(States))
	positiveShare := 0.5
	if positive+negative > 0 {
		positiveShare = float64(positive) / float64(positive+negative)
	}
	return clamp(coverage * (0.5 + 0.5*positiveShare))
}

// transitionSmoothness scores shorter durations and smaller valence jumps
// higher, averaged over the window.
func transitionSmoothness(window []Transition, cfg Config) float64 {
	var sum float64
	for _, transition := range window {
		durationScore := clamp(1 - transition.Duration.Seconds()/cfg.SlowRecovery.Seconds())
		jump := math.Abs(float64(transition.To.Valence() - transition.From.Valence()))
		jumpScore := 1 - jump/4
		sum += (durationScore + jumpScore) / 2
	}
	return clamp(sum / float64(len(window)))
}

// triggerSensitivity maps each distinct trigger to its average normalized
// negative impact.
func triggerSensitivity(window []Transition) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, transition := range window {
		if transition.TriggerEvent == "" {
			continue
		}
		impact := 0.0
		if valence := transition.To.Valence(); valence < 0 {
			impact = float64(-valence) / 2
		}
		sums[transition.TriggerEvent] += impact
		counts[transition.TriggerEvent]++
	}

	sensitivity := make(map[string]float64, len(counts))
	for trigger, count := range counts {
		sensitivity[trigger] = sums[trigger] / float64(count)
	}
	return sensitivity
}

// strategyEffectiveness maps each regulation strategy to its average outcome
// quality, where landing valence is normalized to [0, 1].
func strategyEffectiveness(window []Transition) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, transition := range window {
		if transition.Strategy == "" {
			continue
		}
		outcome := (float64(transition.To.Valence()) + 2) / 4
		sums[transition.Strategy] += outcome
		counts[transition.Strategy]++
	}

	effectiveness := make(map[string]float64, len(counts))
	for strategy, count := range counts {
		effectiveness[strategy] = sums[strategy] / float64(count)
	}
	return effectiveness
}

// concernFlags detects overwhelm, slow recovery, and withdrawal patterns.
func concernFlags(window []Transition, cfg Config) []ConcernFlag {
	total := float64(len(window))
	var overwhelmed, slow, withdrawn int
	for _, transition := range window {
		if transition.To == StateOverwhelmed {
			overwhelmed++
		}
		if transition.Duration > cfg.SlowRecovery {
			slow++
		}
		if transition.To == StateWithdrawn {
			withdrawn++
		}
	}

	var flags []ConcernFlag
	if float64(overwhelmed)/total > 0.3 {
		flags = append(flags, ConcernFlag{
			Flag:           "frequent-overwhelm",
			Recommendation: "reduce-stimulation-earlier",
		})
	}
	if float64(slow)/total > 0.4 {
		flags = append(flags, ConcernFlag{
			Flag:           "slow-recovery",
			Recommendation: "extend-calming-time",
		})
	}
	if float64(withdrawn)/total > 0.2 {
		flags = append(flags, ConcernFlag{
			Flag:           "withdrawal-pattern",
			Recommendation: "monitor-withdrawal",
		})
	}
	return flags
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
