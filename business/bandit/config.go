package bandit

type FeatureFlags struct {
	UseBias             bool
	UseTimeBucket       bool
	UseDowBucket        bool
	UseInteractionLevel bool
	UseTicketAge        bool
	UseErrorLevel       bool
	UseResponseTime     bool
}

type Config struct {
	// exploration width of the UCB term
	Alpha float64

	// bounded scalar rewards per feedback signal
	RewardConfirmed float64
	RewardNeutral   float64
	RewardRepeated  float64

	Features FeatureFlags
}

const (
	defaultAlpha           = 1.0
	defaultRewardConfirmed = 1.0
	defaultRewardNeutral   = 0.0
	defaultRewardRepeated  = -1.0
)

func DefaultConfig() Config {
	return Config{
		Alpha:           defaultAlpha,
		RewardConfirmed: defaultRewardConfirmed,
		RewardNeutral:   defaultRewardNeutral,
		RewardRepeated:  defaultRewardRepeated,

		Features: FeatureFlags{
			UseBias:             true,
			UseTimeBucket:       true,
			UseDowBucket:        true,
			UseInteractionLevel: true,
			UseTicketAge:        true,
			UseErrorLevel:       true,
			UseResponseTime:     true,
		},
	}
}
