package adaptive

import (
	"testing"
	"time"

	"github.com/quietloop/attune/internal/profile"
)

func TestConfigureSensoryBands(t *testing.T) {
	child := profile.ChildProfile{
		Age:          8,
		SupportLevel: profile.SupportLevel2,
		Sensitivity: profile.SensitivityVector{
			Auditory:       85,
			Visual:         50,
			Tactile:        20,
			Vestibular:     71,
			Proprioceptive: 29,
		},
	}

	cfg := Configure(child)
	if got := cfg.SensoryAdjustments["auditory"]; got != StimulationReduce {
		t.Fatalf("expected auditory reduce, got %q", got)
	}
	if got := cfg.SensoryAdjustments["vestibular"]; got != StimulationReduce {
		t.Fatalf("expected vestibular reduce, got %q", got)
	}
	if got := cfg.SensoryAdjustments["tactile"]; got != StimulationBoost {
		t.Fatalf("expected tactile boost, got %q", got)
	}
	if got := cfg.SensoryAdjustments["proprioceptive"]; got != StimulationBoost {
		t.Fatalf("expected proprioceptive boost, got %q", got)
	}
	if _, ok := cfg.SensoryAdjustments["visual"]; ok {
		t.Fatal("expected no adjustment for mid-band visual sensitivity")
	}
}

func TestConfigurePacing(t *testing.T) {
	tests := []struct {
		name             string
		level            profile.SupportLevel
		age              int
		instructionDelay time.Duration
	}{
		{"level 1 mid age", profile.SupportLevel1, 8, 2 * time.Second},
		{"level 3 mid age", profile.SupportLevel3, 8, 4 * time.Second},
		{"level 2 young", profile.SupportLevel2, 5, 3750 * time.Millisecond},
		{"level 2 older", profile.SupportLevel2, 14, 2400 * time.Millisecond},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Configure(profile.ChildProfile{Age: test.age, SupportLevel: test.level})
			if cfg.Pacing.InstructionDelay != test.instructionDelay {
				t.Fatalf("expected instruction delay %v, got %v",
					test.instructionDelay, cfg.Pacing.InstructionDelay)
			}
		})
	}

	young := Configure(profile.ChildProfile{Age: 4, SupportLevel: profile.SupportLevel2})
	older := Configure(profile.ChildProfile{Age: 14, SupportLevel: profile.SupportLevel2})
	if young.Pacing.ResponseTimeout <= older.Pacing.ResponseTimeout {
		t.Fatalf("expected younger children to get longer timeouts: %v vs %v",
			young.Pacing.ResponseTimeout, older.Pacing.ResponseTimeout)
	}
}

func TestConfigureContent(t *testing.T) {
	child := profile.ChildProfile{
		Age:          7,
		SupportLevel: profile.SupportLevel1,
		Interests:    []string{"dinosaurs", "trains", "space", "music", "painting"},
		Triggers:     []string{"loud-noise", "bright-lights"},
	}

	cfg := Configure(child)
	if len(cfg.PreferredThemes) != 3 {
		t.Fatalf("expected top-3 themes, got %v", cfg.PreferredThemes)
	}
	if cfg.PreferredThemes[0] != "dinosaurs" {
		t.Fatalf("expected dinosaurs first, got %v", cfg.PreferredThemes)
	}
	if len(cfg.FilteredContent) != 2 {
		t.Fatalf("expected 2 filtered triggers, got %v", cfg.FilteredContent)
	}
}

func TestConfigureBreakIntervalBounds(t *testing.T) {
	for _, level := range []profile.SupportLevel{
		profile.SupportLevel1, profile.SupportLevel2, profile.SupportLevel3,
	} {
		for age := 1; age <= 18; age++ {
			cfg := Configure(profile.ChildProfile{Age: age, SupportLevel: level})
			if cfg.BreakInterval < 180*time.Second || cfg.BreakInterval > 360*time.Second {
				t.Fatalf("level %d age %d: break interval %v out of bounds",
					level, age, cfg.BreakInterval)
			}
		}
	}

	high := Configure(profile.ChildProfile{Age: 8, SupportLevel: profile.SupportLevel3})
	low := Configure(profile.ChildProfile{Age: 8, SupportLevel: profile.SupportLevel1})
	if high.BreakInterval >= low.BreakInterval {
		t.Fatalf("expected more frequent breaks at higher support: %v vs %v",
			high.BreakInterval, low.BreakInterval)
	}
}

func TestConfigureThresholdMatchesSupportLevel(t *testing.T) {
	tests := []struct {
		level     profile.SupportLevel
		threshold float64
	}{
		{profile.SupportLevel1, 0.8},
		{profile.SupportLevel2, 0.6},
		{profile.SupportLevel3, 0.4},
	}
	for _, test := range tests {
		cfg := Configure(profile.ChildProfile{Age: 8, SupportLevel: test.level})
		if cfg.OverstimulationThreshold != test.threshold {
			t.Fatalf("level %d: expected threshold %v, got %v",
				test.level, test.threshold, cfg.OverstimulationThreshold)
		}
	}
}

func TestAdjustLadder(t *testing.T) {
	calm := Adjust(0.05)
	if calm.VolumeScale != 1 || calm.SuggestBreak || calm.SimplifyInterface {
		t.Fatalf("expected no adjustments at low level, got %+v", calm)
	}

	mild := Adjust(0.2)
	if mild.VolumeScale >= calm.VolumeScale {
		t.Fatal("expected reduced volume at mild level")
	}
	if mild.SuggestBreak {
		t.Fatal("expected no break suggestion at mild level")
	}

	moderate := Adjust(0.5)
	if !moderate.SuggestBreak {
		t.Fatal("expected break suggestion at moderate level")
	}
	if moderate.SimplifyInterface {
		t.Fatal("expected full interface at moderate level")
	}

	severe := Adjust(0.9)
	if !severe.SimplifyInterface || !severe.SuggestBreak {
		t.Fatalf("expected simplified interface at top rung, got %+v", severe)
	}
	if severe.VolumeScale >= moderate.VolumeScale {
		t.Fatal("expected monotonically decreasing volume scale up the ladder")
	}
	if severe.TimeoutScale <= moderate.TimeoutScale {
		t.Fatal("expected monotonically increasing timeout scale up the ladder")
	}
}
