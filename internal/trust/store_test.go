package trust

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, storage.Backend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	s, err := NewStore(context.Background(), backend, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, backend
}

func TestParseLevel(t *testing.T) {
	for _, l := range Levels {
		if _, err := ParseLevel(string(l)); err != nil {
			t.Errorf("ParseLevel(%q) unexpected error: %v", l, err)
		}
	}
	for _, bad := range []string{"", "root", "LOW", "Admin"} {
		if _, err := ParseLevel(bad); !errors.Is(err, ErrInvalidTrustLevel) {
			t.Errorf("ParseLevel(%q): expected ErrInvalidTrustLevel, got %v", bad, err)
		}
	}
}

func TestLevel_RankOrdering(t *testing.T) {
	for i := 1; i < len(Levels); i++ {
		if Levels[i-1].Rank() >= Levels[i].Rank() {
			t.Errorf("expected %s < %s", Levels[i-1], Levels[i])
		}
	}
	if Level("bogus").Rank() != -1 {
		t.Error("unknown level should rank -1")
	}
}

func TestGetOrCreate_AutoRegistersLowActive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, created, err := s.GetOrCreate(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created {
		t.Error("expected created=true on first call")
	}
	if a.TrustLevel != LevelLow || a.Status != StatusActive {
		t.Errorf("expected low/active, got %s/%s", a.TrustLevel, a.Status)
	}
	if !a.AutoRegistered {
		t.Error("expected AutoRegistered")
	}

	again, created, err := s.GetOrCreate(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if created {
		t.Error("second call should not create")
	}
	if again.CreatedAt != a.CreatedAt || again.TrustLevel != LevelLow {
		t.Errorf("second call should return the same record, got %+v", again)
	}
	if n := len(s.List(ctx)); n != 1 {
		t.Errorf("expected 1 agent, got %d", n)
	}
}

func TestGetOrCreate_EmptyID(t *testing.T) {
	s, _ := newTestStore(t)
	if _, _, err := s.GetOrCreate(context.Background(), ""); !errors.Is(err, ErrMissingAgentID) {
		t.Errorf("expected ErrMissingAgentID, got %v", err)
	}
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.GetOrCreate(ctx, "racer")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if createdCount != 1 {
		t.Errorf("expected exactly one creator, got %d", createdCount)
	}
}

func TestRegister_DefaultsAndWarnings(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	res, err := s.Register(ctx, RegisterParams{AgentID: "a1", Name: "Agent One"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Updated {
		t.Error("first registration should not be an update")
	}
	if res.Agent.TrustLevel != LevelMedium {
		t.Errorf("expected default medium, got %s", res.Agent.TrustLevel)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected no-restrictions warning, got %v", res.Warnings)
	}

	res, err = s.Register(ctx, RegisterParams{AgentID: "root", TrustLevel: "admin", DeniedTools: []string{"rm_*"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "Agent registered with ADMIN trust level - has full access" {
		t.Errorf("expected admin warning, got %v", res.Warnings)
	}
	if res.Agent.Name != "root" {
		t.Errorf("name should default to agent id, got %q", res.Agent.Name)
	}
}

func TestRegister_InvalidTrustLevel_NoWrite(t *testing.T) {
	s, backend := newTestStore(t)
	ctx := context.Background()

	_, err := s.Register(ctx, RegisterParams{AgentID: "a1", TrustLevel: "superuser"})
	if !errors.Is(err, ErrInvalidTrustLevel) {
		t.Fatalf("expected ErrInvalidTrustLevel, got %v", err)
	}
	if _, err := s.Get(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected registration must not create the agent, got %v", err)
	}
	if _, err := backend.Collection(storage.CollectionAgents).Get(ctx, "a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rejected registration must not be persisted, got %v", err)
	}
}

func TestRegister_ReRegisterKeepsTrustAndSuspension(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.Register(ctx, RegisterParams{AgentID: "a1", TrustLevel: "high", AllowedTools: []string{"read_*"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Suspend(ctx, "a1", "test"); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	res, err := s.Register(ctx, RegisterParams{AgentID: "a1", Name: "renamed"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !res.Updated {
		t.Error("expected Updated=true")
	}
	if res.Agent.TrustLevel != LevelHigh {
		t.Errorf("trust level should be kept, got %s", res.Agent.TrustLevel)
	}
	if len(res.Agent.AllowedTools) != 1 {
		t.Errorf("allowed tools should be kept, got %v", res.Agent.AllowedTools)
	}
	if !res.Agent.Suspended() {
		t.Error("re-registration must not lift a suspension")
	}
	if !res.Agent.CreatedAt.Equal(first.Agent.CreatedAt) {
		t.Error("created_at should be preserved")
	}
}

func TestRegister_PromotesAutoRegisteredAgent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.GetOrCreate(ctx, "ghost"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	res, err := s.Register(ctx, RegisterParams{AgentID: "ghost"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Agent.TrustLevel != LevelLow {
		t.Errorf("re-registration without a level keeps low, got %s", res.Agent.TrustLevel)
	}
	if res.Agent.AutoRegistered {
		t.Error("explicit registration should clear AutoRegistered")
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	agents []string
}

func (n *recordingNotifier) AgentSuspended(_ context.Context, a Agent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.agents = append(n.agents, a.AgentID)
}

func TestSuspend(t *testing.T) {
	notifier := &recordingNotifier{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newTestStore(t, WithNotifier(notifier), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	if _, err := s.Suspend(ctx, "nobody", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.Register(ctx, RegisterParams{AgentID: "a1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	a, err := s.Suspend(ctx, "a1", "critical incident")
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if a.Status != StatusSuspended || a.SuspensionReason != "critical incident" {
		t.Errorf("unexpected agent after suspend: %+v", a)
	}
	if a.SuspendedAt == nil || !a.SuspendedAt.Equal(fixed) {
		t.Errorf("expected suspended_at %v, got %v", fixed, a.SuspendedAt)
	}

	got, _, err := s.GetOrCreate(ctx, "a1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !got.Suspended() {
		t.Error("suspension must be visible immediately")
	}
	if len(notifier.agents) != 1 || notifier.agents[0] != "a1" {
		t.Errorf("expected notifier call for a1, got %v", notifier.agents)
	}
}

func TestNewStore_LoadsPersistedAgents(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()

	s, err := NewStore(ctx, backend, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s.Register(ctx, RegisterParams{AgentID: "a1", TrustLevel: "high"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Suspend(ctx, "a1", "x"); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	reloaded, err := NewStore(ctx, backend, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a, err := reloaded.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.TrustLevel != LevelHigh || !a.Suspended() {
		t.Errorf("expected persisted high/suspended agent, got %+v", a)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, RegisterParams{AgentID: "a1", DeniedTools: []string{"rm_*"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	a, _ := s.Get(ctx, "a1")
	a.DeniedTools[0] = "mutated"

	again, _ := s.Get(ctx, "a1")
	if again.DeniedTools[0] != "rm_*" {
		t.Error("callers must not be able to mutate stored agents")
	}
}
