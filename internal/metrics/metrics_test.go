package metrics

import "testing"

func TestDelta(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		previous float64
		want     float64
		wantNil  bool
	}{
		{name: "increase", current: 120, previous: 100, want: 20.0},
		{name: "decrease", current: 80, previous: 100, want: -20.0},
		{name: "flat", current: 100, previous: 100, want: 0},
		{name: "zero previous", current: 50, previous: 0, wantNil: true},
		{name: "both zero", current: 0, previous: 0, wantNil: true},
		{name: "rounds to one decimal", current: 1, previous: 3, want: -66.7},
		{name: "small increase", current: 1001, previous: 1000, want: 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Delta(tt.current, tt.previous)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Delta(%v, %v) = %v, want nil", tt.current, tt.previous, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Delta(%v, %v) = nil, want %v", tt.current, tt.previous, tt.want)
			}
			if *got != tt.want {
				t.Errorf("Delta(%v, %v) = %v, want %v", tt.current, tt.previous, *got, tt.want)
			}
		})
	}
}

func TestRoundIdempotent(t *testing.T) {
	values := []float64{3.14159, 0.05, -2.345, 99.999, 0.449, -0.05}
	for _, v := range values {
		for _, decimals := range []int{1, 2} {
			once := Round(v, decimals)
			twice := Round(once, decimals)
			if once != twice {
				t.Errorf("Round(Round(%v, %d)) = %v, want %v", v, decimals, twice, once)
			}
		}
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	if got := Round(0.25, 1); got != 0.3 {
		t.Errorf("Round(0.25, 1) = %v, want 0.3", got)
	}
	if got := Round(-0.25, 1); got != -0.3 {
		t.Errorf("Round(-0.25, 1) = %v, want -0.3", got)
	}
	if got := Round(2.345, 2); got != 2.35 {
		t.Errorf("Round(2.345, 2) = %v, want 2.35", got)
	}
}

func TestRate(t *testing.T) {
	if got := Rate(25, 200, 2); got != 12.5 {
		t.Errorf("Rate(25, 200, 2) = %v, want 12.5", got)
	}
	if got := Rate(10, 0, 2); got != 0 {
		t.Errorf("Rate with zero whole = %v, want 0", got)
	}
}

func TestUnderperforming(t *testing.T) {
	const (
		fraction  = 0.5
		minVolume = 50
	)
	cohortAvg := 10.0

	// Low rate but volume under the floor: not flagged.
	if Underperforming(4.0, cohortAvg, 20, fraction, minVolume) {
		t.Error("item below volume floor must not be flagged")
	}
	// Volume above the floor but rate at/above 0.5x average: not flagged.
	if Underperforming(5.0, cohortAvg, 500, fraction, minVolume) {
		t.Error("item at the rate threshold must not be flagged")
	}
	if Underperforming(9.0, cohortAvg, 500, fraction, minVolume) {
		t.Error("item above the rate threshold must not be flagged")
	}
	// Only the conjunction flags.
	if !Underperforming(4.0, cohortAvg, 500, fraction, minVolume) {
		t.Error("low rate with sufficient volume must be flagged")
	}
	// Empty cohort: never flag.
	if Underperforming(0, 0, 500, fraction, minVolume) {
		t.Error("zero cohort average must not flag anything")
	}
}
