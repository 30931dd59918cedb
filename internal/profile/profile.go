// Package profile models the child profile that parameterizes session analysis.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quietloop/attune/internal/platform/id"
)

// SupportLevel is an ordinal clinical indicator of how much assistance a
// child needs. Higher values mean more support.
type SupportLevel int

const (
	// SupportLevelUnspecified represents an invalid support level.
	SupportLevelUnspecified SupportLevel = 0
	// SupportLevel1 indicates the child requires occasional support.
	SupportLevel1 SupportLevel = 1
	// SupportLevel2 indicates the child requires substantial support.
	SupportLevel2 SupportLevel = 2
	// SupportLevel3 indicates the child requires very substantial support.
	SupportLevel3 SupportLevel = 3
)

var (
	// ErrEmptyName indicates a missing child name.
	ErrEmptyName = errors.New("child name is required")
	// ErrInvalidAge indicates an out-of-range age.
	ErrInvalidAge = errors.New("age must be between 1 and 18")
	// ErrInvalidSupportLevel indicates an out-of-range support level.
	ErrInvalidSupportLevel = errors.New("support level must be between 1 and 3")
	// ErrInvalidSensitivity indicates a sensitivity value outside [0, 100].
	ErrInvalidSensitivity = errors.New("sensitivity values must be between 0 and 100")
)

// SensitivityVector holds per-channel sensory sensitivity on a 0-100 scale.
type SensitivityVector struct {
	Auditory       int
	Visual         int
	Tactile        int
	Vestibular     int
	Proprioceptive int
}

// Each calls fn for every sensory axis with its name and value.
func (v SensitivityVector) Each(fn func(axis string, value int)) {
	fn("auditory", v.Auditory)
	fn("visual", v.Visual)
	fn("tactile", v.Tactile)
	fn("vestibular", v.Vestibular)
	fn("proprioceptive", v.Proprioceptive)
}

func (v SensitivityVector) validate() error {
	values := []int{v.Auditory, v.Visual, v.Tactile, v.Vestibular, v.Proprioceptive}
	for _, value := range values {
		if value < 0 || value > 100 {
			return ErrInvalidSensitivity
		}
	}
	return nil
}

// ChildProfile describes one child's sensory and behavioral support needs.
// Immutable during a session except through an explicit profile update.
type ChildProfile struct {
	ID                string
	Name              string
	Age               int
	SupportLevel      SupportLevel
	Sensitivity       SensitivityVector
	Interests         []string
	Triggers          []string
	CalmingStrategies []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateInput captures the fields needed to create a child profile.
type CreateInput struct {
	Name              string
	Age               int
	SupportLevel      SupportLevel
	Sensitivity       SensitivityVector
	Interests         []string
	Triggers          []string
	CalmingStrategies []string
}

// Create builds a validated profile with a generated ID and timestamps.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (ChildProfile, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateInput(input)
	if err != nil {
		return ChildProfile{}, err
	}

	profileID, err := idGenerator()
	if err != nil {
		return ChildProfile{}, fmt.Errorf("generate profile id: %w", err)
	}

	createdAt := now().UTC()
	return ChildProfile{
		ID:                profileID,
		Name:              normalized.Name,
		Age:               normalized.Age,
		SupportLevel:      normalized.SupportLevel,
		Sensitivity:       normalized.Sensitivity,
		Interests:         normalized.Interests,
		Triggers:          normalized.Triggers,
		CalmingStrategies: normalized.CalmingStrategies,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}, nil
}

// NormalizeCreateInput trims and validates profile input.
func NormalizeCreateInput(input CreateInput) (CreateInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateInput{}, ErrEmptyName
	}
	if input.Age < 1 || input.Age > 18 {
		return CreateInput{}, ErrInvalidAge
	}
	if input.SupportLevel < SupportLevel1 || input.SupportLevel > SupportLevel3 {
		return CreateInput{}, ErrInvalidSupportLevel
	}
	if err := input.Sensitivity.validate(); err != nil {
		return CreateInput{}, err
	}
	input.Interests = normalizeList(input.Interests)
	input.Triggers = normalizeList(input.Triggers)
	input.CalmingStrategies = normalizeList(input.CalmingStrategies)
	return input, nil
}

// UpdateInput captures the mutable fields of an existing profile.
type UpdateInput struct {
	Age               int
	SupportLevel      SupportLevel
	Sensitivity       SensitivityVector
	Interests         []string
	Triggers          []string
	CalmingStrategies []string
}

// ApplyUpdate validates input and returns the updated profile.
func ApplyUpdate(current ChildProfile, input UpdateInput, now func() time.Time) (ChildProfile, error) {
	if now == nil {
		now = time.Now
	}
	if input.Age < 1 || input.Age > 18 {
		return ChildProfile{}, ErrInvalidAge
	}
	if input.SupportLevel < SupportLevel1 || input.SupportLevel > SupportLevel3 {
		return ChildProfile{}, ErrInvalidSupportLevel
	}
	if err := input.Sensitivity.validate(); err != nil {
		return ChildProfile{}, err
	}

	current.Age = input.Age
	current.SupportLevel = input.SupportLevel
	current.Sensitivity = input.Sensitivity
	current.Interests = normalizeList(input.Interests)
	current.Triggers = normalizeList(input.Triggers)
	current.CalmingStrategies = normalizeList(input.CalmingStrategies)
	current.UpdatedAt = now().UTC()
	return current, nil
}

func normalizeList(values []string) []string {
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		normalized = append(normalized, value)
	}
	return normalized
}
