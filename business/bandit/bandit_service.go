package bandit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldDispatch/domain"
	"fieldDispatch/pkg/logger"
)

// ---- Repository interfaces ----

type StateRepository interface {
	GetState(ctx context.Context, key string) (*LinUCBState, error)
	SaveState(ctx context.Context, key string, state *LinUCBState) error
}

type DecisionRepository interface {
	// FindForFeedback resolves outcome feedback to the most recent
	// unrewarded decision for (technician, correlation) inside the window.
	FindForFeedback(ctx context.Context, technicianID, correlationID string, window time.Duration) (domain.DecisionRecord, error)
	// SetReward fills the reward exactly once; domain.ErrRewardAlreadySet
	// on a second attempt.
	SetReward(ctx context.Context, decisionID string, reward float64) error
	// ListExpired returns unrewarded decisions older than the cutoff.
	ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]domain.DecisionRecord, error)
}

// ---- Usecase / Service ----

// Service owns the per-arm LinUCB statistics. All writes go through the
// service mutex: one logical writer per arm, reads may trail by at most the
// in-flight update.
type Service struct {
	stateRepo    StateRepository
	decisionRepo DecisionRepository
	cfg          Config

	mu sync.Mutex
}

func NewService(stateRepo StateRepository, decisionRepo DecisionRepository, cfg Config) *Service {
	return &Service{
		stateRepo:    stateRepo,
		decisionRepo: decisionRepo,
		cfg:          cfg,
	}
}

// Select computes an upper-confidence score for every style arm under the
// given context and returns the maximizer. Ties break deterministically by
// arm priority order, never randomly, so replays are reproducible. Select
// does not mutate learner state; the decision is persisted by the commit
// transaction and the statistics move only when a reward arrives.
func (s *Service) Select(ctx context.Context, c Context) (domain.ResponseStyle, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context error: %w", err)
	}

	state, err := s.loadState(ctx)
	if err != nil {
		return "", err
	}

	x := buildFeatureVector(c, s.cfg)

	alpha := state.Alpha
	if alpha <= 0 {
		alpha = s.cfg.Alpha
	}

	best := domain.ResponseStyles[0]
	bestScore := 0.0
	haveBest := false

	for _, style := range domain.ResponseStyles {
		arm, ok := state.Arms[style]
		if !ok {
			arm = newArmState()
		}

		aInv, err := invertMatrix(arm.A)
		if err != nil {
			// corrupt or degenerate design matrix: treat the arm as fresh
			arm = newArmState()
			aInv, _ = invertMatrix(arm.A)
		}
		theta := matVecMul(aInv, arm.B)

		score := ucbScore(theta, x, aInv, alpha)

		// strict comparison keeps the earlier (higher-priority) arm on ties
		if !haveBest || score > bestScore {
			best = style
			bestScore = score
			haveBest = true
		}
	}

	logger.Debug("bandit_select",
		"arm", best,
		"score", bestScore,
		"interaction_count", c.InteractionCount,
		"ticket_age_hours", c.TicketAgeHours,
	)

	BanditSelectionsTotal.WithLabelValues(string(best)).Inc()

	return best, nil
}

// Update folds one observed reward into the chosen arm's statistics.
// Safe under concurrent callers: the service mutex serializes the
// read-modify-write against the state store.
func (s *Service) Update(ctx context.Context, arm domain.ResponseStyle, c Context, reward float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadState(ctx)
	if err != nil {
		return err
	}

	armState, ok := state.Arms[arm]
	if !ok {
		armState = newArmState()
		state.Arms[arm] = armState
	}

	x := buildFeatureVector(c, s.cfg)

	applyDecay(armState)
	addOuter(&armState.A, x)
	addScaled(&armState.B, x, reward)
	armState.Count++
	armState.LastUpdated = time.Now()

	if err := s.stateRepo.SaveState(ctx, stateKey, state); err != nil {
		return fmt.Errorf("failed to save bandit state: %w", err)
	}

	return nil
}

// ResolveFeedback correlates an outcome signal back to its decision and
// applies the reward. The correlation key is (technician, correlation id)
// within the reward window; see FindForFeedback.
func (s *Service) ResolveFeedback(ctx context.Context, technicianID, correlationID, signal string, window time.Duration) (domain.DecisionRecord, error) {
	reward, err := s.cfg.RewardForSignal(signal)
	if err != nil {
		return domain.DecisionRecord{}, err
	}

	rec, err := s.decisionRepo.FindForFeedback(ctx, technicianID, correlationID, window)
	if err != nil {
		return domain.DecisionRecord{}, fmt.Errorf("failed to correlate feedback: %w", err)
	}

	if err := s.decisionRepo.SetReward(ctx, rec.DecisionID, reward); err != nil {
		return domain.DecisionRecord{}, err
	}

	// forced styles (clarifications, rejections) were not chosen by the
	// learner; settle their reward without training on them
	if !forcedDecision(rec) {
		if err := s.Update(ctx, rec.ChosenArm, ContextFromSnapshot(rec.Context), reward); err != nil {
			return domain.DecisionRecord{}, err
		}
	}

	logger.Info("bandit_feedback",
		"decision_id", rec.DecisionID,
		"technician_id", technicianID,
		"arm", rec.ChosenArm,
		"signal", signal,
		"reward", reward,
	)

	BanditRewardsTotal.WithLabelValues(string(rec.ChosenArm), signal).Inc()

	rec.Reward = &reward
	return rec, nil
}

// ResolveTimeouts closes out decisions whose reward never arrived: no
// clarification request inside the window is a weak implicit positive, so
// they settle at the neutral reward instead of staying unresolved forever.
func (s *Service) ResolveTimeouts(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)

	expired, err := s.decisionRepo.ListExpired(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired decisions: %w", err)
	}

	resolved := 0
	for _, rec := range expired {
		if err := s.decisionRepo.SetReward(ctx, rec.DecisionID, s.cfg.RewardNeutral); err != nil {
			if errors.Is(err, domain.ErrRewardAlreadySet) {
				continue // feedback raced the sweep, the explicit signal wins
			}
			return resolved, err
		}

		if !forcedDecision(rec) {
			if err := s.Update(ctx, rec.ChosenArm, ContextFromSnapshot(rec.Context), s.cfg.RewardNeutral); err != nil {
				return resolved, err
			}
		}

		BanditRewardsTotal.WithLabelValues(string(rec.ChosenArm), "timeout").Inc()
		resolved++
	}

	if resolved > 0 {
		logger.Debug("bandit_reward_timeouts_resolved", "count", resolved)
	}

	return resolved, nil
}

// ArmStats is the ops view of one arm.
type ArmStats struct {
	Arm         domain.ResponseStyle `json:"arm"`
	Count       int                  `json:"count"`
	LastUpdated time.Time            `json:"last_updated"`
	Theta       []float64            `json:"theta"`
}

// Stats reports pull counts and weight estimates per arm.
func (s *Service) Stats(ctx context.Context) ([]ArmStats, error) {
	state, err := s.loadState(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ArmStats, 0, len(domain.ResponseStyles))
	for _, style := range domain.ResponseStyles {
		arm, ok := state.Arms[style]
		if !ok {
			arm = newArmState()
		}

		theta := make([]float64, linUCBFeatureDim)
		if aInv, err := invertMatrix(arm.A); err == nil {
			t := matVecMul(aInv, arm.B)
			copy(theta, t[:])
		}

		out = append(out, ArmStats{
			Arm:         style,
			Count:       arm.Count,
			LastUpdated: arm.LastUpdated,
			Theta:       theta,
		})
	}

	return out, nil
}

func forcedDecision(rec domain.DecisionRecord) bool {
	forced, _ := rec.Context["forced"].(bool)
	return forced
}

func (s *Service) loadState(ctx context.Context) (*LinUCBState, error) {
	state, err := s.stateRepo.GetState(ctx, stateKey)
	if err != nil {
		return nil, fmt.Errorf("load bandit state: %w", err)
	}
	if state == nil {
		state = newDefaultState(s.cfg.Alpha)
	}
	for _, style := range domain.ResponseStyles {
		if _, ok := state.Arms[style]; !ok {
			state.Arms[style] = newArmState()
		}
	}
	return state, nil
}
