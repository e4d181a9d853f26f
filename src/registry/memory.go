package registry

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"signalbridge/src/model"
)

// MemoryStrategyStore is the in-memory StrategyStore used by tests and by
// deployments that accept losing the catalog on restart.
type MemoryStrategyStore struct {
	mu         sync.RWMutex
	strategies map[string]*model.Strategy
	order      []string
}

func NewMemoryStrategyStore() *MemoryStrategyStore {
	return &MemoryStrategyStore{strategies: make(map[string]*model.Strategy)}
}

// slugify turns a strategy name into a url-safe id.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func (s *MemoryStrategyStore) Create(_ context.Context, name, description string, synonyms []string) (*model.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := slugify(name)
	if id == "" {
		id = uuid.NewString()[:8]
	}
	if _, exists := s.strategies[id]; exists {
		id = id + "-" + uuid.NewString()[:8]
	}

	now := time.Now()
	strat := &model.Strategy{
		ID:          id,
		Name:        name,
		Description: description,
		Active:      true,
		Aliases:     model.BuildAliases(id, name, synonyms),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.strategies[id] = strat
	s.order = append(s.order, id)

	out := *strat
	return &out, nil
}

func (s *MemoryStrategyStore) Get(_ context.Context, id string) (*model.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	strat, ok := s.strategies[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *strat
	return &out, nil
}

func (s *MemoryStrategyStore) Update(_ context.Context, id string, update StrategyUpdate) (*model.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	strat, ok := s.strategies[id]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Name != nil {
		strat.Name = *update.Name
	}
	if update.Description != nil {
		strat.Description = *update.Description
	}
	if update.Active != nil {
		strat.Active = *update.Active
	}
	if update.Name != nil || update.Synonyms != nil {
		strat.Aliases = model.BuildAliases(strat.ID, strat.Name, update.Synonyms)
	}
	strat.UpdatedAt = time.Now()

	out := *strat
	return &out, nil
}

func (s *MemoryStrategyStore) MatchByIndicator(_ context.Context, raw string) (*model.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		strat := s.strategies[id]
		if strat.Active && strat.HasAlias(raw) {
			out := *strat
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStrategyStore) List(_ context.Context) ([]model.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Strategy, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.strategies[id])
	}
	return out, nil
}

// MemorySubscriberStore is the in-memory SubscriberStore. Registration order
// is preserved so fan-out iteration is deterministic.
type MemorySubscriberStore struct {
	mu          sync.RWMutex
	subscribers map[string]*model.Subscriber
	order       []string
}

func NewMemorySubscriberStore() *MemorySubscriberStore {
	return &MemorySubscriberStore{subscribers: make(map[string]*model.Subscriber)}
}

func copySubscriber(sub *model.Subscriber) *model.Subscriber {
	out := *sub
	out.RequestedStrategies = append([]string(nil), sub.RequestedStrategies...)
	out.ApprovedStrategies = append([]string(nil), sub.ApprovedStrategies...)
	out.Positions = append([]model.Position(nil), sub.Positions...)
	if sub.Exchange != nil {
		conn := *sub.Exchange
		out.Exchange = &conn
	}
	return &out
}

func (s *MemorySubscriberStore) Register(_ context.Context, uid string, requested []string) (*model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sub, exists := s.subscribers[uid]
	if !exists {
		sub = &model.Subscriber{
			UID:       uid,
			Status:    model.StatusPending,
			Leverage:  1,
			CreatedAt: now,
		}
		s.subscribers[uid] = sub
		s.order = append(s.order, uid)
	}

	// Approved subscribers are not downgraded by a repeated registration;
	// everyone else gets their request overwritten and goes back to pending.
	if sub.Status != model.StatusApproved {
		sub.RequestedStrategies = append([]string(nil), requested...)
		sub.Status = model.StatusPending
	}
	sub.UpdatedAt = now

	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) Get(_ context.Context, uid string) (*model.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) List(_ context.Context) ([]model.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Subscriber, 0, len(s.order))
	for _, uid := range s.order {
		out = append(out, *copySubscriber(s.subscribers[uid]))
	}
	return out, nil
}

func (s *MemorySubscriberStore) Approve(_ context.Context, uid string, strategyIDs []string) (*model.Subscriber, error) {
	if len(strategyIDs) == 0 {
		return nil, ErrNoStrategies
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	sub.Status = model.StatusApproved
	sub.RequestedStrategies = append([]string(nil), strategyIDs...)
	sub.ApprovedStrategies = append([]string(nil), strategyIDs...)
	if sub.AccessKey == "" {
		sub.AccessKey = uuid.NewString()
	}
	sub.ApprovedAt = &now
	sub.UpdatedAt = now

	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) Deny(_ context.Context, uid string) (*model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return nil, ErrNotFound
	}

	// Positions survive a denial as an audit trail; access is revoked and a
	// later re-approval mints a fresh key.
	sub.Status = model.StatusDenied
	sub.ApprovedStrategies = nil
	sub.AccessKey = ""
	sub.AutoTrading = false
	sub.UpdatedAt = time.Now()

	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) SetStrategies(_ context.Context, uid string, strategyIDs []string) (*model.Subscriber, error) {
	if len(strategyIDs) == 0 {
		return nil, ErrNoStrategies
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return nil, ErrNotFound
	}
	if sub.Status != model.StatusApproved {
		return nil, model.ErrUIDNotApproved
	}

	sub.ApprovedStrategies = append([]string(nil), strategyIDs...)
	sub.UpdatedAt = time.Now()

	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) VerifyAccess(_ context.Context, uid, key string) (*model.Subscriber, error) {
	if uid == "" || key == "" {
		return nil, model.ErrMissingCredentials
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return nil, model.ErrUIDNotFound
	}
	if sub.Status != model.StatusApproved {
		return nil, model.ErrUIDNotApproved
	}
	if sub.AccessKey != key {
		return nil, model.ErrUIDCredentialsMismatch
	}
	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) SetAutoTrading(_ context.Context, uid string, enabled bool) (*model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return nil, ErrNotFound
	}
	sub.AutoTrading = enabled
	sub.UpdatedAt = time.Now()
	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) SetTradeConfig(_ context.Context, uid string, cfg TradeConfig) (*model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return nil, ErrNotFound
	}
	if cfg.InvestmentAmount != nil {
		amount, err := decimal.NewFromString(*cfg.InvestmentAmount)
		if err != nil {
			return nil, err
		}
		sub.InvestmentAmount = amount
	}
	if cfg.Leverage != nil {
		sub.Leverage = *cfg.Leverage
	}
	if cfg.PinnedSymbol != nil {
		sub.PinnedSymbol = *cfg.PinnedSymbol
	}
	sub.UpdatedAt = time.Now()
	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) ConnectExchange(_ context.Context, uid, apiKey string, sealedSecret []byte) (*model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	sub.Exchange = &model.ExchangeConnection{
		Connected:       true,
		APIKey:          apiKey,
		SealedSecret:    sealedSecret,
		LastConnectedAt: &now,
	}
	sub.UpdatedAt = now
	return copySubscriber(sub), nil
}

func (s *MemorySubscriberStore) ListApprovedByStrategy(_ context.Context, strategyID string) ([]model.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Subscriber
	for _, uid := range s.order {
		sub := s.subscribers[uid]
		if sub.IsApproved() && sub.HasStrategy(strategyID) {
			out = append(out, *copySubscriber(sub))
		}
	}
	return out, nil
}

func (s *MemorySubscriberStore) UpsertPosition(_ context.Context, uid string, pos model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return ErrNotFound
	}
	pos.SubscriberUID = uid
	for i := range sub.Positions {
		if sub.Positions[i].Contract == pos.Contract {
			pos.ID = sub.Positions[i].ID
			pos.OpenedAt = sub.Positions[i].OpenedAt
			sub.Positions[i] = pos
			sub.UpdatedAt = time.Now()
			return nil
		}
	}
	sub.Positions = append(sub.Positions, pos)
	sub.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySubscriberStore) RemovePositions(_ context.Context, uid, contract string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[uid]
	if !ok {
		return 0, ErrNotFound
	}

	kept := sub.Positions[:0]
	removed := 0
	for _, p := range sub.Positions {
		if p.Contract == contract {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	sub.Positions = kept
	if removed > 0 {
		sub.UpdatedAt = time.Now()
	}
	return removed, nil
}

// MemoryWebhookStore is the in-memory WebhookStore.
type MemoryWebhookStore struct {
	mu  sync.RWMutex
	reg *model.WebhookRegistration
}

func NewMemoryWebhookStore() *MemoryWebhookStore {
	return &MemoryWebhookStore{}
}

func (s *MemoryWebhookStore) Get(_ context.Context) (*model.WebhookRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reg == nil {
		return nil, ErrNotFound
	}
	out := *s.reg
	out.Routes = append([]string(nil), s.reg.Routes...)
	return &out, nil
}

func (s *MemoryWebhookStore) Rotate(_ context.Context) (*model.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.reg == nil {
		s.reg = &model.WebhookRegistration{CreatedAt: now}
	}
	s.reg.Secret = uuid.NewString()
	s.reg.UpdatedAt = now

	out := *s.reg
	out.Routes = append([]string(nil), s.reg.Routes...)
	return &out, nil
}

func (s *MemoryWebhookStore) SetRoutes(_ context.Context, routes []string) (*model.WebhookRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reg == nil {
		return nil, ErrNotFound
	}
	s.reg.Routes = append([]string(nil), routes...)
	s.reg.UpdatedAt = time.Now()

	out := *s.reg
	out.Routes = append([]string(nil), s.reg.Routes...)
	return &out, nil
}
