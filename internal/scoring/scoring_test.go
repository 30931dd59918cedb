package scoring

import (
	"testing"

	"github.com/quietloop/attune/internal/profile"
)

func testChild(level profile.SupportLevel) profile.ChildProfile {
	return profile.ChildProfile{
		ID:           "child1",
		Name:         "Ada",
		Age:          7,
		SupportLevel: level,
	}
}

func TestScoreRapidActivityIndicatorAlwaysPresent(t *testing.T) {
	rates := []float64{121, 150, 200, 500}
	for _, rate := range rates {
		sample := MetricSample{ActionsPerMinute: rate, ProgressRate: 0.5}
		result := Score(testChild(profile.SupportLevel1), nil, sample, DefaultConfig())

		found := false
		for _, indicator := range result.Indicators {
			if indicator == IndicatorRapidActivity {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected rapid_activity indicator at %v actions/minute", rate)
		}
	}
}

func TestThresholdMonotoneInSupportLevel(t *testing.T) {
	cfg := DefaultConfig()
	t1 := cfg.Threshold(profile.SupportLevel1)
	t2 := cfg.Threshold(profile.SupportLevel2)
	t3 := cfg.Threshold(profile.SupportLevel3)

	if t3 > t2 || t2 > t1 {
		t.Fatalf("expected thresholds non-increasing with support level, got %v %v %v", t1, t2, t3)
	}
}

func TestScoreOverstimulatedScenario(t *testing.T) {
	// High activity with a high error rate at support level 2.
	sample := MetricSample{
		ActionsPerMinute: 150,
		ErrorRate:        0.6,
		PauseFrequency:   0.1,
		ProgressRate:     0.2,
	}
	result := Score(testChild(profile.SupportLevel2), nil, sample, DefaultConfig())

	if !result.Overstimulated {
		t.Fatalf("expected overstimulated, score %v", result.Score)
	}
	if result.Intervention == InterventionNone {
		t.Fatal("expected a non-null intervention recommendation")
	}
	if result.Score < 0 || result.Score > 1 {
		t.Fatalf("expected score in [0,1], got %v", result.Score)
	}
}

func TestScoreCalmScenario(t *testing.T) {
	sample := MetricSample{
		ActionsPerMinute: 15,
		ErrorRate:        0.1,
		PauseFrequency:   0.2,
		ProgressRate:     0.7,
	}
	result := Score(testChild(profile.SupportLevel2), nil, sample, DefaultConfig())

	if result.Overstimulated {
		t.Fatalf("expected not overstimulated, score %v", result.Score)
	}
	if len(result.Indicators) != 0 {
		t.Fatalf("expected no indicators, got %v", result.Indicators)
	}
	if result.Intervention != InterventionNone {
		t.Fatalf("expected no intervention, got %v", result.Intervention)
	}
}

func TestScorePrefersDeclaredCalmingStrategy(t *testing.T) {
	child := testChild(profile.SupportLevel3)
	child.CalmingStrategies = []string{"unknown-strategy", "deep-pressure"}

	sample := MetricSample{ActionsPerMinute: 150, ErrorRate: 0.6}
	result := Score(child, nil, sample, DefaultConfig())

	if !result.Overstimulated {
		t.Fatalf("expected overstimulated, score %v", result.Score)
	}
	if result.Intervention != InterventionDeepPressure {
		t.Fatalf("expected deep_pressure from declared strategies, got %v", result.Intervention)
	}
}

func TestScoreDominantIndicatorFallback(t *testing.T) {
	tests := []struct {
		name   string
		window []MetricSample
		sample MetricSample
		want   Intervention
	}{
		{
			name:   "rapid activity maps to breathing",
			sample: MetricSample{ActionsPerMinute: 200, ErrorRate: 0.6},
			want:   InterventionBreathing,
		},
		{
			name: "erratic activity maps to movement",
			window: []MetricSample{
				{ActionsPerMinute: 5},
				{ActionsPerMinute: 110},
			},
			sample: MetricSample{ActionsPerMinute: 5, ErrorRate: 0.6, PauseFrequency: 0.5},
			want:   InterventionMovement,
		},
		{
			name:   "otherwise sensory break",
			sample: MetricSample{ActionsPerMinute: 5, ErrorRate: 0.6, PauseFrequency: 0.5, ProgressRate: 0.1},
			want:   InterventionSensoryBreak,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Score(testChild(profile.SupportLevel3), tt.window, tt.sample, DefaultConfig())
			if !result.Overstimulated {
				t.Fatalf("expected overstimulated, score %v", result.Score)
			}
			if result.Intervention != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, result.Intervention)
			}
		})
	}
}

func TestScoreBoundedForExtremeInput(t *testing.T) {
	window := []MetricSample{
		{ActionsPerMinute: 10},
		{ActionsPerMinute: 500},
	}
	sample := MetricSample{
		ActionsPerMinute: 900,
		ErrorRate:        0.9,
		PauseFrequency:   0.9,
		ProgressRate:     0.0,
	}
	result := Score(testChild(profile.SupportLevel1), window, sample, DefaultConfig())

	if result.Score > 1 {
		t.Fatalf("expected score clamped to 1, got %v", result.Score)
	}
	if !result.Overstimulated {
		t.Fatal("expected overstimulated for extreme input")
	}
}

func TestRateVarianceNeedsThreeReadings(t *testing.T) {
	sample := MetricSample{ActionsPerMinute: 100}
	if v := rateVariance(nil, sample); v != 0 {
		t.Fatalf("expected 0 variance with one reading, got %v", v)
	}
	if v := rateVariance([]MetricSample{{ActionsPerMinute: 10}}, sample); v != 0 {
		t.Fatalf("expected 0 variance with two readings, got %v", v)
	}
	window := []MetricSample{{ActionsPerMinute: 10}, {ActionsPerMinute: 400}}
	if v := rateVariance(window, sample); v == 0 {
		t.Fatal("expected non-zero variance with three readings")
	}
}

func TestValidateSample(t *testing.T) {
	bad := []MetricSample{
		{ActionsPerMinute: -1},
		{ErrorRate: 1.5},
		{PauseFrequency: -0.1},
		{ProgressRate: 2},
	}
	for _, sample := range bad {
		if err := sample.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", sample)
		}
	}
	good := MetricSample{ActionsPerMinute: 50, ErrorRate: 0.2, PauseFrequency: 0.1, ProgressRate: 0.8}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
