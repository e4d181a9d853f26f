package registry

import (
	"context"
	"errors"

	"signalbridge/src/model"
)

var (
	// ErrNotFound is returned when a strategy, subscriber or webhook
	// registration does not exist. Callers decide whether that is a hard
	// failure or a soft routing miss.
	ErrNotFound = errors.New("not found")

	// ErrNoStrategies rejects an approval with an empty strategy list: an
	// approved subscriber always has at least one approved strategy.
	ErrNoStrategies = errors.New("approval requires at least one strategy")
)

// StrategyUpdate is a partial strategy mutation. Nil fields are untouched.
type StrategyUpdate struct {
	Name        *string
	Description *string
	Active      *bool
	Synonyms    []string
}

// StrategyStore holds the strategy catalog. Strategies are never deleted,
// only deactivated.
type StrategyStore interface {
	Create(ctx context.Context, name, description string, synonyms []string) (*model.Strategy, error)
	Get(ctx context.Context, id string) (*model.Strategy, error)
	Update(ctx context.Context, id string, update StrategyUpdate) (*model.Strategy, error)
	// MatchByIndicator resolves a raw indicator string to a strategy by
	// exact normalized alias membership. Returns ErrNotFound on no match.
	MatchByIndicator(ctx context.Context, raw string) (*model.Strategy, error)
	List(ctx context.Context) ([]model.Strategy, error)
}

// TradeConfig is the subscriber-controlled auto-trading configuration.
type TradeConfig struct {
	InvestmentAmount *string
	Leverage         *int
	PinnedSymbol     *string
}

// SubscriberStore holds subscriber accounts, their approval state and their
// open positions. ListApprovedByStrategy must preserve registration order so
// fan-out within one dispatch is deterministic.
type SubscriberStore interface {
	Register(ctx context.Context, uid string, requested []string) (*model.Subscriber, error)
	Get(ctx context.Context, uid string) (*model.Subscriber, error)
	List(ctx context.Context) ([]model.Subscriber, error)
	Approve(ctx context.Context, uid string, strategyIDs []string) (*model.Subscriber, error)
	Deny(ctx context.Context, uid string) (*model.Subscriber, error)
	SetStrategies(ctx context.Context, uid string, strategyIDs []string) (*model.Subscriber, error)
	VerifyAccess(ctx context.Context, uid, key string) (*model.Subscriber, error)
	SetAutoTrading(ctx context.Context, uid string, enabled bool) (*model.Subscriber, error)
	SetTradeConfig(ctx context.Context, uid string, cfg TradeConfig) (*model.Subscriber, error)
	ConnectExchange(ctx context.Context, uid, apiKey string, sealedSecret []byte) (*model.Subscriber, error)
	ListApprovedByStrategy(ctx context.Context, strategyID string) ([]model.Subscriber, error)
	UpsertPosition(ctx context.Context, uid string, pos model.Position) error
	// RemovePositions deletes every position for the contract and returns
	// how many were removed.
	RemovePositions(ctx context.Context, uid, contract string) (int, error)
}

// WebhookStore holds the single inbound webhook registration.
type WebhookStore interface {
	Get(ctx context.Context) (*model.WebhookRegistration, error)
	// Rotate replaces the shared secret, creating the registration on
	// first use. Routes survive rotation.
	Rotate(ctx context.Context) (*model.WebhookRegistration, error)
	SetRoutes(ctx context.Context, routes []string) (*model.WebhookRegistration, error)
}
