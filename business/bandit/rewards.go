package bandit

import "fmt"

// Feedback signals observed after a response is spoken.
const (
	SignalConfirmed = "confirmed" // technician moved on or confirmed
	SignalNeutral   = "neutral"   // nothing notable
	SignalRepeated  = "repeated"  // technician re-asked or corrected
)

// RewardForSignal turns an outcome signal into the bounded scalar reward.
func (cfg Config) RewardForSignal(signal string) (float64, error) {
	switch signal {
	case SignalConfirmed:
		return cfg.RewardConfirmed, nil
	case SignalNeutral:
		return cfg.RewardNeutral, nil
	case SignalRepeated:
		return cfg.RewardRepeated, nil
	default:
		return 0, fmt.Errorf("unknown feedback signal: %s", signal)
	}
}
