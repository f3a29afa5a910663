package bandit

import (
	"time"

	"fieldDispatch/domain"
)

const linUCBFeatureDim = 7

// Per-arm LinUCB parameters.
type LinUCBArmState struct {
	A           [linUCBFeatureDim][linUCBFeatureDim]float64 `json:"A"`
	B           [linUCBFeatureDim]float64                   `json:"b"`
	Count       int                                         `json:"count"`
	LastUpdated time.Time                                   `json:"last_updated"`
}

// Overall learner state: one arm per response style.
type LinUCBState struct {
	Alpha float64                                   `json:"alpha"`
	Arms  map[domain.ResponseStyle]*LinUCBArmState `json:"arms"`
}

// Create a new arm with A initialized to a scaled identity.
func newArmState() *LinUCBArmState {
	var A [linUCBFeatureDim][linUCBFeatureDim]float64
	for i := 0; i < linUCBFeatureDim; i++ {
		A[i][i] = 0.1
	}
	return &LinUCBArmState{
		A:           A,
		B:           [linUCBFeatureDim]float64{},
		Count:       0,
		LastUpdated: time.Now(),
	}
}

// Create a default state with every style arm present.
func newDefaultState(alpha float64) *LinUCBState {
	state := &LinUCBState{
		Alpha: alpha,
		Arms:  make(map[domain.ResponseStyle]*LinUCBArmState, len(domain.ResponseStyles)),
	}
	for _, style := range domain.ResponseStyles {
		state.Arms[style] = newArmState()
	}
	return state
}
