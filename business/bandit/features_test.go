package bandit

import (
	"testing"
	"time"
)

func TestBuildFeatureVector_EncodesErrorAndLatencyLevels(t *testing.T) {
	cfg := DefaultConfig()

	calm := ContextAt(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), 10, 0, 0, 4)
	struggling := ContextAt(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), 10, 4, 45, 4)

	xCalm := buildFeatureVector(calm, cfg)
	xStruggling := buildFeatureVector(struggling, cfg)

	if xCalm[5] != 0 {
		t.Errorf("error level for zero errors = %v, want 0", xCalm[5])
	}
	if xStruggling[5] != 1.0 {
		t.Errorf("error level for 4 errors = %v, want 1.0 (saturated)", xStruggling[5])
	}
	if xCalm[6] != 0 {
		t.Errorf("latency feature for zero latency = %v, want 0", xCalm[6])
	}
	if xStruggling[6] != 1.0 {
		t.Errorf("latency feature for 45s EMA = %v, want 1.0 (saturated)", xStruggling[6])
	}

	mid := ContextAt(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), 10, 1, 15, 4)
	xMid := buildFeatureVector(mid, cfg)
	if xMid[5] != 0.5 {
		t.Errorf("error level for 1 error = %v, want 0.5", xMid[5])
	}
	if xMid[6] != 0.5 {
		t.Errorf("latency feature for 15s EMA = %v, want 0.5", xMid[6])
	}
}

func TestSnapshot_RoundTripRebuildsIdenticalVector(t *testing.T) {
	cfg := DefaultConfig()
	c := ContextAt(time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC), 23, 2, 8.5, 31)

	// simulate the JSON round-trip through the decision log: ints arrive
	// back as float64
	snap := c.Snapshot()
	jsonish := make(map[string]any, len(snap))
	for k, v := range snap {
		switch n := v.(type) {
		case int:
			jsonish[k] = float64(n)
		default:
			jsonish[k] = v
		}
	}

	rebuilt := ContextFromSnapshot(jsonish)
	if buildFeatureVector(rebuilt, cfg) != buildFeatureVector(c, cfg) {
		t.Fatalf("rebuilt vector differs: %v vs %v",
			buildFeatureVector(rebuilt, cfg), buildFeatureVector(c, cfg))
	}
}
