package profile

import (
	"errors"
	"testing"
	"time"
)

func TestCreateNormalizesInput(t *testing.T) {
	fixedTime := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	input := CreateInput{
		Name:         "  Ada  ",
		Age:          7,
		SupportLevel: SupportLevel2,
		Sensitivity: SensitivityVector{
			Auditory: 80,
			Visual:   40,
		},
		Interests:         []string{" trains ", "", "dinosaurs"},
		Triggers:          []string{"loud noises"},
		CalmingStrategies: []string{"deep-breathing"},
	}

	p, err := Create(input, func() time.Time { return fixedTime }, func() (string, error) {
		return "child123", nil
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	if p.ID != "child123" {
		t.Fatalf("expected id child123, got %q", p.ID)
	}
	if p.Name != "Ada" {
		t.Fatalf("expected trimmed name, got %q", p.Name)
	}
	if len(p.Interests) != 2 || p.Interests[0] != "trains" {
		t.Fatalf("expected normalized interests, got %v", p.Interests)
	}
	if !p.CreatedAt.Equal(fixedTime) || !p.UpdatedAt.Equal(fixedTime) {
		t.Fatalf("expected timestamps to match fixed time")
	}
}

func TestNormalizeCreateInputValidation(t *testing.T) {
	valid := CreateInput{
		Name:         "Ada",
		Age:          7,
		SupportLevel: SupportLevel1,
	}

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		err    error
	}{
		{
			name:   "empty name",
			mutate: func(in *CreateInput) { in.Name = "   " },
			err:    ErrEmptyName,
		},
		{
			name:   "age too low",
			mutate: func(in *CreateInput) { in.Age = 0 },
			err:    ErrInvalidAge,
		},
		{
			name:   "age too high",
			mutate: func(in *CreateInput) { in.Age = 19 },
			err:    ErrInvalidAge,
		},
		{
			name:   "missing support level",
			mutate: func(in *CreateInput) { in.SupportLevel = SupportLevelUnspecified },
			err:    ErrInvalidSupportLevel,
		},
		{
			name:   "support level too high",
			mutate: func(in *CreateInput) { in.SupportLevel = SupportLevel(4) },
			err:    ErrInvalidSupportLevel,
		},
		{
			name:   "sensitivity out of range",
			mutate: func(in *CreateInput) { in.Sensitivity.Tactile = 150 },
			err:    ErrInvalidSensitivity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)
			_, err := NormalizeCreateInput(input)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
		})
	}
}

func TestApplyUpdate(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	updated := created.Add(48 * time.Hour)

	current := ChildProfile{
		ID:           "child123",
		Name:         "Ada",
		Age:          7,
		SupportLevel: SupportLevel2,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	next, err := ApplyUpdate(current, UpdateInput{
		Age:          8,
		SupportLevel: SupportLevel1,
		Interests:    []string{"space"},
	}, func() time.Time { return updated })
	if err != nil {
		t.Fatalf("apply update: %v", err)
	}

	if next.Age != 8 {
		t.Fatalf("expected age 8, got %d", next.Age)
	}
	if next.SupportLevel != SupportLevel1 {
		t.Fatalf("expected support level 1, got %d", next.SupportLevel)
	}
	if !next.UpdatedAt.Equal(updated) {
		t.Fatalf("expected updated timestamp, got %v", next.UpdatedAt)
	}
	if !next.CreatedAt.Equal(created) {
		t.Fatalf("expected created timestamp preserved, got %v", next.CreatedAt)
	}

	if _, err := ApplyUpdate(current, UpdateInput{Age: 0, SupportLevel: SupportLevel1}, nil); !errors.Is(err, ErrInvalidAge) {
		t.Fatalf("expected ErrInvalidAge, got %v", err)
	}
}

func TestSensitivityVectorEach(t *testing.T) {
	v := SensitivityVector{Auditory: 1, Visual: 2, Tactile: 3, Vestibular: 4, Proprioceptive: 5}
	seen := make(map[string]int)
	v.Each(func(axis string, value int) { seen[axis] = value })

	if len(seen) != 5 {
		t.Fatalf("expected 5 axes, got %d", len(seen))
	}
	if seen["vestibular"] != 4 {
		t.Fatalf("expected vestibular 4, got %d", seen["vestibular"])
	}
}
