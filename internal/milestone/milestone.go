// Package milestone accumulates developmental evidence and awards milestones
// from an embedded catalog.
package milestone

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quietloop/attune/internal/behavior"
	"github.com/quietloop/attune/internal/emotion"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Evidence rule kinds understood by the assessor.
const (
	KindBehavioralPattern = "behavioral_pattern"
	KindSkillThreshold    = "skill_threshold"
	KindEmotionalRatio    = "emotional_ratio"
	KindSessionMetric     = "session_metric"
)

// Rule is one weighted evidence requirement on a milestone.
type Rule struct {
	Kind          string  `yaml:"kind"`
	Weight        float64 `yaml:"weight"`
	Category      string  `yaml:"category,omitempty"`
	MinIntensity  float64 `yaml:"min_intensity,omitempty"`
	RequiredCount int     `yaml:"required_count,omitempty"`
	WindowDays    int     `yaml:"window_days,omitempty"`
	Skill         string  `yaml:"skill,omitempty"`
	Threshold     float64 `yaml:"threshold,omitempty"`
	Metric        string  `yaml:"metric,omitempty"`
	Minimum       float64 `yaml:"minimum,omitempty"`
}

// ValidationRule earns a milestone a confidence bonus when its qualifying
// observations spread across the consistency period and recur in the listed
// supporting contexts.
type ValidationRule struct {
	ConsistencyDays    int      `yaml:"consistency_days"`
	SupportingContexts []string `yaml:"supporting_contexts,omitempty"`
}

// Milestone is one developmental milestone from the catalog.
type Milestone struct {
	ID            string          `yaml:"id"`
	Name          string          `yaml:"name"`
	Domain        string          `yaml:"domain"`
	Description   string          `yaml:"description"`
	AgeMin        int             `yaml:"age_min"`
	AgeMax        int             `yaml:"age_max"`
	Prerequisites []string        `yaml:"prerequisites,omitempty"`
	Evidence      []Rule          `yaml:"evidence"`
	Validation    *ValidationRule `yaml:"validation,omitempty"`
}

// Catalog holds the milestone definitions and their progression edges.
type Catalog struct {
	Milestones []Milestone `yaml:"milestones"`
}

// ErrEmptyCatalog indicates a catalog with no milestones.
var ErrEmptyCatalog = errors.New("empty milestone catalog")

// LoadCatalog parses the embedded milestone catalog.
func LoadCatalog() (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(catalogYAML, &catalog); err != nil {
		return nil, fmt.Errorf("parse milestone catalog: %w", err)
	}
	if len(catalog.Milestones) == 0 {
		return nil, ErrEmptyCatalog
	}
	for _, milestone := range catalog.Milestones {
		if err := milestone.validate(); err != nil {
			return nil, fmt.Errorf("milestone %s: %w", milestone.ID, err)
		}
	}
	return &catalog, nil
}

func (m Milestone) validate() error {
	if m.ID == "" {
		return errors.New("missing id")
	}
	if len(m.Evidence) == 0 {
		return errors.New("no evidence rules")
	}
	var total float64
	for _, rule := range m.Evidence {
		if rule.Weight <= 0 {
			return fmt.Errorf("rule %s has non-positive weight", rule.Kind)
		}
		total += rule.Weight
	}
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("evidence weights sum to %.2f", total)
	}
	if m.Validation != nil && m.Validation.ConsistencyDays <= 0 {
		return errors.New("validation rule needs positive consistency_days")
	}
	return nil
}

// ByID returns the milestone with the given id, or false.
func (c *Catalog) ByID(id string) (Milestone, bool) {
	for _, milestone := range c.Milestones {
		if milestone.ID == id {
			return milestone, true
		}
	}
	return Milestone{}, false
}

// Evidence is the accumulated observable record assessed against the catalog.
type Evidence struct {
	Observations []behavior.Observation
	Transitions  []emotion.Transition
	Skills       map[string]float64
	Metrics      map[string]float64
}

// Significance tiers for an achievement.
const (
	SignificanceHigh   = "high"
	SignificanceMedium = "medium"
)

// Achievement is one awarded milestone.
type Achievement struct {
	MilestoneID  string    `json:"milestone_id"`
	Confidence   float64   `json:"confidence"`
	Significance string    `json:"significance"`
	AchievedAt   time.Time `json:"achieved_at"`
	// EvidenceSummaries holds up to three short descriptions of the
	// strongest supporting evidence.
	EvidenceSummaries []string `json:"evidence_summaries,omitempty"`
	// NextMilestoneID is the first age-appropriate successor in the
	// progression graph, or empty.
	NextMilestoneID string `json:"next_milestone_id,omitempty"`
}

// Config tunes milestone assessment. Zero values fall back to defaults.
type Config struct {
	// MinConfidence is the award threshold.
	MinConfidence float64
	// Cooldown suppresses re-awarding a milestone after an award.
	Cooldown time.Duration
	// MaxValidationBonus caps the consistency validation bonus.
	MaxValidationBonus float64
}

// DefaultConfig returns the default assessment tuning.
func DefaultConfig() Config {
	return Config{
		MinConfidence:      0.7,
		Cooldown:           30 * 24 * time.Hour,
		MaxValidationBonus: 0.2,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MinConfidence <= 0 {
		c.MinConfidence = defaults.MinConfidence
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaults.Cooldown
	}
	if c.MaxValidationBonus <= 0 {
		c.MaxValidationBonus = defaults.MaxValidationBonus
	}
	return c
}

// Assess scores every catalog milestone against the evidence and returns the
// newly earned achievements. Milestones outside the child's age range, with
// unmet prerequisites, or inside the award cooldown are skipped. awarded maps
// milestone ids to their latest award time.
func Assess(age int, evidence Evidence, catalog *Catalog, awarded map[string]time.Time, now time.Time, cfg Config) []Achievement {
	cfg = cfg.withDefaults()

	var achievements []Achievement
	for _, milestone := range catalog.Milestones {
		if age < milestone.AgeMin || age > milestone.AgeMax {
			continue
		}
		if !prerequisitesMet(milestone, awarded) {
			continue
		}
		if last, ok := awarded[milestone.ID]; ok && now.Sub(last) < cfg.Cooldown {
			continue
		}

		confidence := Confidence(milestone, evidence, now, cfg)
		if confidence < cfg.MinConfidence {
			continue
		}
		significance := SignificanceMedium
		if confidence >= 0.9 {
			significance = SignificanceHigh
		}
		achievements = append(achievements, Achievement{
			MilestoneID:       milestone.ID,
			Confidence:        confidence,
			Significance:      significance,
			AchievedAt:        now,
			EvidenceSummaries: evidenceSummaries(milestone, evidence, now),
			NextMilestoneID:   successor(catalog, milestone.ID, age),
		})
	}
	return achievements
}

// evidenceSummaries describes the strongest satisfied rules, at most three.
func evidenceSummaries(milestone Milestone, evidence Evidence, now time.Time) []string {
	type scored struct {
		text  string
		score float64
	}
	var rules []scored
	for _, rule := range milestone.Evidence {
		score := satisfaction(rule, evidence, now)
		if score <= 0 {
			continue
		}
		var text string
		switch rule.Kind {
		case KindBehavioralPattern:
			text = fmt.Sprintf("%s observations at intensity >= %.1f over %d days",
				rule.Category, rule.MinIntensity, rule.WindowDays)
		case KindSkillThreshold:
			text = fmt.Sprintf("%s skill at or above %.1f", rule.Skill, rule.Threshold)
		case KindEmotionalRatio:
			text = fmt.Sprintf("positive emotional landings at or above %.0f%%", rule.Threshold*100)
		case KindSessionMetric:
			text = fmt.Sprintf("%s at or above %.1f", rule.Metric, rule.Minimum)
		default:
			continue
		}
		rules = append(rules, scored{text: text, score: score})
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].score > rules[j].score })
	if len(rules) > 3 {
		rules = rules[:3]
	}
	summaries := make([]string, len(rules))
	for i, rule := range rules {
		summaries[i] = rule.text
	}
	return summaries
}

// successor returns the first age-appropriate milestone that lists id as a
// prerequisite, in catalog order.
func successor(catalog *Catalog, id string, age int) string {
	for _, milestone := range catalog.Milestones {
		if age < milestone.AgeMin || age > milestone.AgeMax {
			continue
		}
		for _, prerequisite := range milestone.Prerequisites {
			if prerequisite == id {
				return milestone.ID
			}
		}
	}
	return ""
}

// Confidence computes the weighted evidence score for a milestone plus the
// capped consistency validation bonus, clamped to [0, 1].
func Confidence(milestone Milestone, evidence Evidence, now time.Time, cfg Config) float64 {
	cfg = cfg.withDefaults()

	var weighted, total float64
	for _, rule := range milestone.Evidence {
		weighted += rule.Weight * satisfaction(rule, evidence, now)
		total += rule.Weight
	}
	if total == 0 {
		return 0
	}

	confidence := weighted/total + validationBonus(milestone, evidence, now, cfg.MaxValidationBonus)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// validationBonus scores how consistently the qualifying observations spread
// across the milestone's validation period and its supporting contexts. Day
// coverage and context matching each contribute half of the cap; a milestone
// without supporting contexts is scored on day coverage alone.
func validationBonus(milestone Milestone, evidence Evidence, now time.Time, limit float64) float64 {
	rule := milestone.Validation
	if rule == nil || rule.ConsistencyDays <= 0 {
		return 0
	}
	cutoff := now.Add(-time.Duration(rule.ConsistencyDays) * 24 * time.Hour)

	days := make(map[string]bool)
	var matched, total int
	for _, observation := range qualifyingObservations(milestone, evidence.Observations, now) {
		if observation.Timestamp.Before(cutoff) {
			continue
		}
		total++
		days[observation.Timestamp.UTC().Format("2006-01-02")] = true
		if matchesContext(observation, rule.SupportingContexts) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}

	coverage := float64(len(days)) / float64(rule.ConsistencyDays)
	if coverage > 1 {
		coverage = 1
	}
	score := coverage
	if len(rule.SupportingContexts) > 0 {
		score = (coverage + float64(matched)/float64(total)) / 2
	}
	return limit * score
}

// qualifyingObservations returns the observations that satisfy any of the
// milestone's behavioral pattern rules.
func qualifyingObservations(milestone Milestone, observations []behavior.Observation, now time.Time) []behavior.Observation {
	var qualifying []behavior.Observation
	for _, observation := range observations {
		for _, rule := range milestone.Evidence {
			if rule.Kind != KindBehavioralPattern {
				continue
			}
			cutoff := now.Add(-time.Duration(rule.WindowDays) * 24 * time.Hour)
			if observation.Timestamp.Before(cutoff) {
				continue
			}
			if observation.Category.String() != rule.Category || observation.Intensity < rule.MinIntensity {
				continue
			}
			qualifying = append(qualifying, observation)
			break
		}
	}
	return qualifying
}

func matchesContext(observation behavior.Observation, contexts []string) bool {
	for _, context := range contexts {
		if observation.Trigger == context {
			return true
		}
		for _, value := range observation.Context {
			if value == context {
				return true
			}
		}
	}
	return false
}

// satisfaction scores one rule against the evidence in [0, 1].
func satisfaction(rule Rule, evidence Evidence, now time.Time) float64 {
	switch rule.Kind {
	case KindBehavioralPattern:
		return behavioralSatisfaction(rule, evidence.Observations, now)
	case KindSkillThreshold:
		if rule.Threshold <= 0 {
			return 0
		}
		return ratioScore(evidence.Skills[rule.Skill], rule.Threshold)
	case KindEmotionalRatio:
		if rule.Threshold <= 0 {
			return 0
		}
		return ratioScore(positiveLandingShare(evidence.Transitions), rule.Threshold)
	case KindSessionMetric:
		if rule.Minimum <= 0 {
			return 0
		}
		return ratioScore(evidence.Metrics[rule.Metric], rule.Minimum)
	default:
		return 0
	}
}

func behavioralSatisfaction(rule Rule, observations []behavior.Observation, now time.Time) float64 {
	if rule.RequiredCount <= 0 {
		return 0
	}
	cutoff := now.Add(-time.Duration(rule.WindowDays) * 24 * time.Hour)

	var count int
	for _, observation := range observations {
		if observation.Timestamp.Before(cutoff) {
			continue
		}
		if observation.Category.String() != rule.Category {
			continue
		}
		if observation.Intensity < rule.MinIntensity {
			continue
		}
		count++
	}
	return ratioScore(float64(count), float64(rule.RequiredCount))
}

func positiveLandingShare(transitions []emotion.Transition) float64 {
	if len(transitions) == 0 {
		return 0
	}
	var positive int
	for _, transition := range transitions {
		if transition.To.Valence() > 0 {
			positive++
		}
	}
	return float64(positive) / float64(len(transitions))
}

func ratioScore(value, target float64) float64 {
	score := value / target
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

func prerequisitesMet(milestone Milestone, awarded map[string]time.Time) bool {
	for _, prerequisite := range milestone.Prerequisites {
		if _, ok := awarded[prerequisite]; !ok {
			return false
		}
	}
	return true
}

// Next returns the catalog milestones that are not yet awarded and whose
// prerequisites are all met, sorted by id.
func Next(catalog *Catalog, age int, awarded map[string]time.Time) []Milestone {
	var next []Milestone
	for _, milestone := range catalog.Milestones {
		if _, ok := awarded[milestone.ID]; ok {
			continue
		}
		if age < milestone.AgeMin || age > milestone.AgeMax {
			continue
		}
		if !prerequisitesMet(milestone, awarded) {
			continue
		}
		next = append(next, milestone)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })
	return next
}
