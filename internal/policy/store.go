package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"go.uber.org/zap"
)

// CreateParams is the input to Create. Nil Priority means DefaultPriority,
// nil Enabled means true.
type CreateParams struct {
	PolicyID    string `json:"policy_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Rules       []Rule `json:"rules"`
	Priority    *int   `json:"priority,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// CreateResult reports whether Create replaced an existing policy.
type CreateResult struct {
	Policy  Policy
	Updated bool
}

// Store is the single owner of policies.
type Store struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	nextSeq  int64
	coll     storage.Collection
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore loads existing policies from the backend.
func NewStore(ctx context.Context, backend storage.Backend, logger *zap.Logger) (*Store, error) {
	s := &Store{
		policies: make(map[string]*Policy),
		coll:     backend.Collection(storage.CollectionPolicies),
		logger:   logger.Named("policy"),
		now:      time.Now,
	}

	policies, err := storage.ScanJSON[Policy](ctx, s.coll)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	for i := range policies {
		p := policies[i]
		s.policies[p.PolicyID] = &p
		if p.Seq >= s.nextSeq {
			s.nextSeq = p.Seq + 1
		}
	}
	return s, nil
}

// Create stores a new policy or overwrites the one with the same id. An
// overwrite keeps the original creation order and created_at, so replacing
// a policy never changes how it ties with others of equal priority.
func (s *Store) Create(ctx context.Context, p CreateParams) (CreateResult, error) {
	if p.PolicyID == "" {
		return CreateResult{}, ErrMissingID
	}
	rules, err := ValidateRules(p.Rules)
	if err != nil {
		return CreateResult{}, err
	}

	priority := DefaultPriority
	if p.Priority != nil {
		priority = *p.Priority
	}
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	name := p.Name
	if name == "" {
		name = p.PolicyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	pol := Policy{
		PolicyID:    p.PolicyID,
		Name:        name,
		Description: p.Description,
		Rules:       rules,
		Enabled:     enabled,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	existing, updated := s.policies[p.PolicyID]
	if updated {
		pol.Seq = existing.Seq
		pol.CreatedAt = existing.CreatedAt
	} else {
		pol.Seq = s.nextSeq
	}

	if err := storage.PutJSON(ctx, s.coll, pol.PolicyID, &pol); err != nil {
		s.logger.Error("failed to persist policy", zap.String("policy_id", pol.PolicyID), zap.Error(err))
		return CreateResult{}, fmt.Errorf("Create: %w", err)
	}
	s.policies[pol.PolicyID] = &pol
	if !updated {
		s.nextSeq++
	}

	s.logger.Info("policy saved",
		zap.String("policy_id", pol.PolicyID),
		zap.Int("priority", pol.Priority),
		zap.Int("rules", len(pol.Rules)),
		zap.Bool("enabled", pol.Enabled),
		zap.Bool("updated", updated),
	)
	return CreateResult{Policy: pol.clone(), Updated: updated}, nil
}

// Get returns the policy or ErrNotFound.
func (s *Store) Get(_ context.Context, policyID string) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyID]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}
	return p.clone(), nil
}

// SetEnabled toggles a policy without changing its rules or order.
func (s *Store) SetEnabled(ctx context.Context, policyID string, enabled bool) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[policyID]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrNotFound, policyID)
	}
	p := existing.clone()
	p.Enabled = enabled
	p.UpdatedAt = s.now().UTC()

	if err := storage.PutJSON(ctx, s.coll, policyID, &p); err != nil {
		s.logger.Error("failed to persist policy state", zap.String("policy_id", policyID), zap.Error(err))
		return Policy{}, fmt.Errorf("SetEnabled: %w", err)
	}
	s.policies[policyID] = &p

	s.logger.Info("policy state changed", zap.String("policy_id", policyID), zap.Bool("enabled", enabled))
	return p.clone(), nil
}

// List returns every policy in evaluation order.
func (s *Store) List(_ context.Context) []Policy {
	return s.sorted(func(*Policy) bool { return true })
}

// ListEnabled returns enabled policies ordered by priority descending, then
// creation order.
func (s *Store) ListEnabled(_ context.Context) []Policy {
	return s.sorted(func(p *Policy) bool { return p.Enabled })
}

func (s *Store) sorted(keep func(*Policy) bool) []Policy {
	s.mu.RLock()
	out := make([]Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if keep(p) {
			out = append(out, p.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}
