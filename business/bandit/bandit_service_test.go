package bandit

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"fieldDispatch/domain"
)

// ---- in-memory fakes ----

type memStateRepo struct {
	mu     sync.Mutex
	states map[string]*LinUCBState
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{states: make(map[string]*LinUCBState)}
}

func (r *memStateRepo) GetState(ctx context.Context, key string) (*LinUCBState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[key], nil
}

func (r *memStateRepo) SaveState(ctx context.Context, key string, state *LinUCBState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key] = state
	return nil
}

type memDecisionRepo struct {
	mu        sync.Mutex
	decisions map[string]*domain.DecisionRecord
}

func newMemDecisionRepo() *memDecisionRepo {
	return &memDecisionRepo{decisions: make(map[string]*domain.DecisionRecord)}
}

func (r *memDecisionRepo) add(rec domain.DecisionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := rec
	r.decisions[rec.DecisionID] = &cp
}

func (r *memDecisionRepo) FindForFeedback(ctx context.Context, technicianID, correlationID string, window time.Duration) (domain.DecisionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *domain.DecisionRecord
	cutoff := time.Now().Add(-window)
	for _, rec := range r.decisions {
		if rec.TechnicianID != technicianID || rec.CorrelationID != correlationID {
			continue
		}
		if rec.Reward != nil || rec.DecidedAt.Before(cutoff) {
			continue
		}
		if best == nil || rec.DecidedAt.After(best.DecidedAt) {
			best = rec
		}
	}
	if best == nil {
		return domain.DecisionRecord{}, domain.ErrDecisionNotFound
	}
	return *best, nil
}

func (r *memDecisionRepo) SetReward(ctx context.Context, decisionID string, reward float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.decisions[decisionID]
	if !ok {
		return domain.ErrDecisionNotFound
	}
	if rec.Reward != nil {
		return domain.ErrRewardAlreadySet
	}
	now := time.Now()
	rec.Reward = &reward
	rec.RewardedAt = &now
	return nil
}

func (r *memDecisionRepo) ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]domain.DecisionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []domain.DecisionRecord{}
	for _, rec := range r.decisions {
		if rec.Reward == nil && rec.DecidedAt.Before(olderThan) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- tests ----

func TestSelect_FreshStateBreaksTiesByPriority(t *testing.T) {
	svc := NewService(newMemStateRepo(), newMemDecisionRepo(), DefaultConfig())

	c := ContextAt(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), 0, 0, 0, 0)

	// identical fresh arms score identically; priority order must win
	for i := 0; i < 3; i++ {
		arm, err := svc.Select(context.Background(), c)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if arm != domain.StyleConcise {
			t.Fatalf("fresh select = %s, want concise (priority tie-break)", arm)
		}
	}
}

func TestUpdate_ShiftsSelectionTowardRewardedArm(t *testing.T) {
	svc := NewService(newMemStateRepo(), newMemDecisionRepo(), DefaultConfig())
	ctxBg := context.Background()

	c := ContextAt(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), 10, 0, 5, 4)

	// reward detailed heavily, punish the others
	for i := 0; i < 30; i++ {
		if err := svc.Update(ctxBg, domain.StyleDetailed, c, 1.0); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := svc.Update(ctxBg, domain.StyleConcise, c, -1.0); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := svc.Update(ctxBg, domain.StyleClarifyingQuestion, c, -1.0); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	arm, err := svc.Select(ctxBg, c)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if arm != domain.StyleDetailed {
		t.Fatalf("select = %s, want detailed", arm)
	}
}

// Under a simulated distribution where one arm strictly dominates, its
// selection share must grow while inferior arms keep a nonzero but shrinking
// share early on.
func TestBandit_ConvergenceUnderSimulatedRewards(t *testing.T) {
	svc := NewService(newMemStateRepo(), newMemDecisionRepo(), DefaultConfig())
	ctxBg := context.Background()
	rng := rand.New(rand.NewSource(42))

	expected := map[domain.ResponseStyle]float64{
		domain.StyleConcise:            0.2,
		domain.StyleDetailed:           0.9,
		domain.StyleClarifyingQuestion: 0.1,
	}

	const trials = 600
	picks := make([]domain.ResponseStyle, 0, trials)

	for i := 0; i < trials; i++ {
		c := ContextAt(
			time.Date(2026, 3, 10, rng.Intn(24), 0, 0, 0, time.UTC),
			rng.Intn(40),
			rng.Intn(3),
			rng.Float64()*20,
			rng.Float64()*100,
		)

		arm, err := svc.Select(ctxBg, c)
		if err != nil {
			t.Fatalf("trial %d: select: %v", i, err)
		}
		picks = append(picks, arm)

		reward := 0.0
		if rng.Float64() < expected[arm] {
			reward = 1.0
		}
		if err := svc.Update(ctxBg, arm, c, reward); err != nil {
			t.Fatalf("trial %d: update: %v", i, err)
		}
	}

	share := func(window []domain.ResponseStyle, arm domain.ResponseStyle) float64 {
		n := 0
		for _, p := range window {
			if p == arm {
				n++
			}
		}
		return float64(n) / float64(len(window))
	}

	early := picks[:200]
	late := picks[trials-200:]

	if s := share(late, domain.StyleDetailed); s < 0.6 {
		t.Errorf("late share of best arm = %.2f, want >= 0.6", s)
	}
	if share(late, domain.StyleDetailed) <= share(early, domain.StyleDetailed) {
		t.Errorf("best-arm share did not grow: early %.2f late %.2f",
			share(early, domain.StyleDetailed), share(late, domain.StyleDetailed))
	}
	// exploration must touch every arm before it can be ruled out
	for _, arm := range domain.ResponseStyles {
		if share(picks, arm) == 0 {
			t.Errorf("arm %s was never explored", arm)
		}
	}
}

func TestUpdate_ConcurrentCallersLoseNoUpdates(t *testing.T) {
	svc := NewService(newMemStateRepo(), newMemDecisionRepo(), DefaultConfig())
	ctxBg := context.Background()

	c := ContextAt(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC), 5, 0, 2, 1)

	const perArm = 50
	var wg sync.WaitGroup
	for _, arm := range domain.ResponseStyles {
		wg.Add(1)
		go func(arm domain.ResponseStyle) {
			defer wg.Done()
			for i := 0; i < perArm; i++ {
				if err := svc.Update(ctxBg, arm, c, 0.5); err != nil {
					t.Errorf("update %s: %v", arm, err)
					return
				}
			}
		}(arm)
	}
	wg.Wait()

	stats, err := svc.Stats(ctxBg)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, st := range stats {
		// decay trims at most a handful of counts over 50 updates
		if st.Count < perArm-5 || st.Count > perArm {
			t.Errorf("arm %s count = %d, want ~%d", st.Arm, st.Count, perArm)
		}
	}
}

func TestResolveFeedback_SetsRewardOnceAndUpdatesArm(t *testing.T) {
	decisions := newMemDecisionRepo()
	svc := NewService(newMemStateRepo(), decisions, DefaultConfig())
	ctxBg := context.Background()

	c := ContextAt(time.Now(), 3, 0, 4, 2)
	decisions.add(domain.DecisionRecord{
		DecisionID:    "dec-1",
		EventID:       "evt-1",
		TechnicianID:  "tech-001",
		CorrelationID: "sess-9",
		Context:       c.Snapshot(),
		ChosenArm:     domain.StyleConcise,
		DecidedAt:     time.Now(),
	})

	rec, err := svc.ResolveFeedback(ctxBg, "tech-001", "sess-9", SignalConfirmed, time.Minute)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.Reward == nil || *rec.Reward != 1.0 {
		t.Fatalf("reward = %v, want 1.0", rec.Reward)
	}

	// second signal for the same decision must not double-apply
	if _, err := svc.ResolveFeedback(ctxBg, "tech-001", "sess-9", SignalRepeated, time.Minute); !errors.Is(err, domain.ErrDecisionNotFound) {
		t.Fatalf("second resolve err = %v, want ErrDecisionNotFound", err)
	}

	stats, err := svc.Stats(ctxBg)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, st := range stats {
		if st.Arm == domain.StyleConcise && st.Count != 1 {
			t.Errorf("concise count = %d, want 1", st.Count)
		}
	}
}

func TestResolveTimeouts_SettlesExpiredDecisionsAtNeutral(t *testing.T) {
	decisions := newMemDecisionRepo()
	svc := NewService(newMemStateRepo(), decisions, DefaultConfig())
	ctxBg := context.Background()

	c := ContextAt(time.Now(), 1, 0, 0, 0)
	decisions.add(domain.DecisionRecord{
		DecisionID:   "dec-old",
		EventID:      "evt-old",
		TechnicianID: "tech-001",
		Context:      c.Snapshot(),
		ChosenArm:    domain.StyleDetailed,
		DecidedAt:    time.Now().Add(-10 * time.Minute),
	})
	decisions.add(domain.DecisionRecord{
		DecisionID:   "dec-new",
		EventID:      "evt-new",
		TechnicianID: "tech-001",
		Context:      c.Snapshot(),
		ChosenArm:    domain.StyleDetailed,
		DecidedAt:    time.Now(),
	})

	n, err := svc.ResolveTimeouts(ctxBg, 2*time.Minute)
	if err != nil {
		t.Fatalf("resolve timeouts: %v", err)
	}
	if n != 1 {
		t.Fatalf("resolved = %d, want 1 (only the expired decision)", n)
	}

	old := decisions.decisions["dec-old"]
	if old.Reward == nil || *old.Reward != 0 {
		t.Errorf("expired decision reward = %v, want 0", old.Reward)
	}
	fresh := decisions.decisions["dec-new"]
	if fresh.Reward != nil {
		t.Errorf("fresh decision should stay unrewarded")
	}
}
