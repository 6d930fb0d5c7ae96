package trust

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"go.uber.org/zap"
)

// Notifier is told about suspensions after they are committed.
type Notifier interface {
	AgentSuspended(ctx context.Context, agent Agent)
}

// Store is the single owner of agent records. Reads are served from memory;
// every mutation is written to the backing collection before the cached copy
// changes, under the same lock that guards reads.
type Store struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	coll     storage.Collection
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithNotifier publishes suspensions to n.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore loads existing agents from the backend.
func NewStore(ctx context.Context, backend storage.Backend, logger *zap.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		agents: make(map[string]*Agent),
		coll:   backend.Collection(storage.CollectionAgents),
		logger: logger.Named("trust"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	agents, err := storage.ScanJSON[Agent](ctx, s.coll)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	for i := range agents {
		a := agents[i]
		s.agents[a.AgentID] = &a
	}
	return s, nil
}

// Get returns the agent or ErrNotFound.
func (s *Store) Get(_ context.Context, agentID string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return a.clone(), nil
}

// GetOrCreate returns the agent, auto-registering it with low trust if it has
// never been seen. created reports whether this call created it.
func (s *Store) GetOrCreate(ctx context.Context, agentID string) (agent Agent, created bool, err error) {
	if agentID == "" {
		return Agent{}, false, ErrMissingAgentID
	}

	s.mu.RLock()
	a, ok := s.agents[agentID]
	if ok {
		agent = a.clone()
	}
	s.mu.RUnlock()
	if ok {
		return agent, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have created it between the locks.
	if a, ok := s.agents[agentID]; ok {
		return a.clone(), false, nil
	}

	now := s.now().UTC()
	a = &Agent{
		AgentID:        agentID,
		Name:           agentID,
		TrustLevel:     LevelLow,
		AllowedTools:   []string{},
		DeniedTools:    []string{},
		Status:         StatusActive,
		AutoRegistered: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := storage.PutJSON(ctx, s.coll, agentID, a); err != nil {
		s.logger.Error("failed to persist auto-registered agent", zap.String("agent_id", agentID), zap.Error(err))
		return Agent{}, false, fmt.Errorf("GetOrCreate: %w", err)
	}
	s.agents[agentID] = a

	s.logger.Info("agent auto-registered",
		zap.String("agent_id", agentID),
		zap.String("trust_level", string(LevelLow)),
	)
	return a.clone(), true, nil
}

// RegisterParams is the input to Register. A nil slice or map leaves the
// existing value untouched on re-registration; an empty TrustLevel keeps the
// current level (or medium for a new agent).
type RegisterParams struct {
	AgentID      string
	Name         string
	Description  string
	TrustLevel   string
	AllowedTools []string
	DeniedTools  []string
	Metadata     map[string]string
}

// RegisterResult is the outcome of Register.
type RegisterResult struct {
	Agent    Agent
	Updated  bool
	Warnings []string
}

// Register creates or updates an agent. Suspension state survives
// re-registration.
func (s *Store) Register(ctx context.Context, p RegisterParams) (RegisterResult, error) {
	if p.AgentID == "" {
		return RegisterResult{}, ErrMissingAgentID
	}
	var level Level
	if p.TrustLevel != "" {
		l, err := ParseLevel(p.TrustLevel)
		if err != nil {
			return RegisterResult{}, err
		}
		level = l
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	existing, updated := s.agents[p.AgentID]

	var a Agent
	if updated {
		a = existing.clone()
	} else {
		a = Agent{
			AgentID:      p.AgentID,
			TrustLevel:   LevelMedium,
			AllowedTools: []string{},
			DeniedTools:  []string{},
			Status:       StatusActive,
			CreatedAt:    now,
		}
	}

	a.AutoRegistered = false
	a.UpdatedAt = now
	if level != "" {
		a.TrustLevel = level
	}
	if p.Name != "" {
		a.Name = p.Name
	} else if a.Name == "" {
		a.Name = p.AgentID
	}
	if p.Description != "" {
		a.Description = p.Description
	}
	if p.AllowedTools != nil {
		a.AllowedTools = append([]string{}, p.AllowedTools...)
	}
	if p.DeniedTools != nil {
		a.DeniedTools = append([]string{}, p.DeniedTools...)
	}
	if p.Metadata != nil {
		a.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			a.Metadata[k] = v
		}
	}

	if err := storage.PutJSON(ctx, s.coll, a.AgentID, &a); err != nil {
		s.logger.Error("failed to persist agent", zap.String("agent_id", a.AgentID), zap.Error(err))
		return RegisterResult{}, fmt.Errorf("Register: %w", err)
	}
	s.agents[a.AgentID] = &a

	var warnings []string
	if a.TrustLevel == LevelAdmin {
		warnings = append(warnings, "Agent registered with ADMIN trust level - has full access")
		s.logger.Warn("agent registered with admin trust level", zap.String("agent_id", a.AgentID))
	}
	if len(a.AllowedTools) == 0 && len(a.DeniedTools) == 0 {
		warnings = append(warnings, "No tool restrictions defined - agent can use any tool per policies")
	}

	s.logger.Info("agent registered",
		zap.String("agent_id", a.AgentID),
		zap.String("trust_level", string(a.TrustLevel)),
		zap.Bool("updated", updated),
	)
	return RegisterResult{Agent: a.clone(), Updated: updated, Warnings: warnings}, nil
}

// Suspend marks the agent suspended. Once it returns, every Get and
// GetOrCreate observes the new status.
func (s *Store) Suspend(ctx context.Context, agentID, reason string) (Agent, error) {
	s.mu.Lock()
	existing, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return Agent{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}

	a := existing.clone()
	now := s.now().UTC()
	a.Status = StatusSuspended
	a.SuspensionReason = reason
	a.SuspendedAt = &now
	a.UpdatedAt = now

	if err := storage.PutJSON(ctx, s.coll, agentID, &a); err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to persist suspension", zap.String("agent_id", agentID), zap.Error(err))
		return Agent{}, fmt.Errorf("Suspend: %w", err)
	}
	s.agents[agentID] = &a
	out := a.clone()
	s.mu.Unlock()

	s.logger.Warn("agent suspended",
		zap.String("agent_id", agentID),
		zap.String("reason", reason),
	)
	if s.notifier != nil {
		s.notifier.AgentSuspended(ctx, out)
	}
	return out, nil
}

// List returns every agent ordered by id.
func (s *Store) List(_ context.Context) []Agent {
	s.mu.RLock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
