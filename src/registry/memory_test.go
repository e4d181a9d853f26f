package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbridge/src/model"
)

var ctx = context.Background()

func TestMemoryStrategyStore_CreateAndMatch(t *testing.T) {
	s := NewMemoryStrategyStore()

	strat, err := s.Create(ctx, "Momentum Alpha", "trend follower", []string{"MomoAlpha v2"})
	require.NoError(t, err)
	assert.Equal(t, "momentum-alpha", strat.ID)
	assert.True(t, strat.Active)

	got, err := s.MatchByIndicator(ctx, "Momentum Alpha")
	require.NoError(t, err)
	assert.Equal(t, strat.ID, got.ID)

	// Aliases match on the normalized form, not the exact spelling.
	got, err = s.MatchByIndicator(ctx, "MOMO ALPHA V2")
	require.NoError(t, err)
	assert.Equal(t, strat.ID, got.ID)

	_, err = s.MatchByIndicator(ctx, "unknown indicator")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStrategyStore_IDCollision(t *testing.T) {
	s := NewMemoryStrategyStore()

	first, err := s.Create(ctx, "Scalper", "", nil)
	require.NoError(t, err)
	second, err := s.Create(ctx, "Scalper", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "scalper", first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Contains(t, second.ID, "scalper-")
}

func TestMemoryStrategyStore_InactiveNeverMatches(t *testing.T) {
	s := NewMemoryStrategyStore()
	strat, err := s.Create(ctx, "Swing", "", nil)
	require.NoError(t, err)

	inactive := false
	_, err = s.Update(ctx, strat.ID, StrategyUpdate{Active: &inactive})
	require.NoError(t, err)

	_, err = s.MatchByIndicator(ctx, "Swing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStrategyStore_UpdateRebuildsAliases(t *testing.T) {
	s := NewMemoryStrategyStore()
	strat, err := s.Create(ctx, "Old Name", "", nil)
	require.NoError(t, err)

	newName := "New Name"
	_, err = s.Update(ctx, strat.ID, StrategyUpdate{Name: &newName})
	require.NoError(t, err)

	got, err := s.MatchByIndicator(ctx, "New Name")
	require.NoError(t, err)
	assert.Equal(t, strat.ID, got.ID)
}

func TestMemorySubscriberStore_RegisterApproveFlow(t *testing.T) {
	s := NewMemorySubscriberStore()

	sub, err := s.Register(ctx, "uid-1", []string{"momentum"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, sub.Status)
	assert.Empty(t, sub.AccessKey)

	sub, err = s.Approve(ctx, "uid-1", []string{"momentum"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, sub.Status)
	assert.NotEmpty(t, sub.AccessKey)
	assert.Equal(t, []string{"momentum"}, sub.ApprovedStrategies)
	require.NotNil(t, sub.ApprovedAt)
}

func TestMemorySubscriberStore_ApproveRequiresStrategies(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "uid-1", nil)
	require.NoError(t, err)

	_, err = s.Approve(ctx, "uid-1", nil)
	assert.ErrorIs(t, err, ErrNoStrategies)

	_, err = s.Approve(ctx, "ghost", []string{"momentum"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySubscriberStore_ReRegisterWhileApprovedIsNoop(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)
	approved, err := s.Approve(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)

	sub, err := s.Register(ctx, "uid-1", []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, sub.Status)
	assert.Equal(t, []string{"a"}, sub.RequestedStrategies)
	assert.Equal(t, approved.AccessKey, sub.AccessKey)
}

func TestMemorySubscriberStore_ReRegisterAfterDenyGoesPending(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)
	_, err = s.Approve(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)
	_, err = s.Deny(ctx, "uid-1")
	require.NoError(t, err)

	sub, err := s.Register(ctx, "uid-1", []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, sub.Status)
	assert.Equal(t, []string{"b"}, sub.RequestedStrategies)
}

func TestMemorySubscriberStore_DenyRevokesAccessKeepsPositions(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)
	first, err := s.Approve(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)

	_, err = s.SetAutoTrading(ctx, "uid-1", true)
	require.NoError(t, err)
	require.NoError(t, s.UpsertPosition(ctx, "uid-1", model.Position{Contract: "BTC_USDT"}))

	denied, err := s.Deny(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDenied, denied.Status)
	assert.Empty(t, denied.AccessKey)
	assert.Empty(t, denied.ApprovedStrategies)
	assert.False(t, denied.AutoTrading)
	assert.Len(t, denied.Positions, 1)

	// Re-approval mints a fresh key.
	again, err := s.Approve(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)
	assert.NotEmpty(t, again.AccessKey)
	assert.NotEqual(t, first.AccessKey, again.AccessKey)
}

func TestMemorySubscriberStore_VerifyAccessCodes(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "pending-uid", nil)
	require.NoError(t, err)
	_, err = s.Register(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)
	approved, err := s.Approve(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)

	cases := []struct {
		name string
		uid  string
		key  string
		want error
	}{
		{"missing uid", "", "key", model.ErrMissingCredentials},
		{"missing key", "uid-1", "", model.ErrMissingCredentials},
		{"unknown uid", "ghost", "key", model.ErrUIDNotFound},
		{"not approved", "pending-uid", "key", model.ErrUIDNotApproved},
		{"wrong key", "uid-1", "wrong", model.ErrUIDCredentialsMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.VerifyAccess(ctx, tc.uid, tc.key)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	sub, err := s.VerifyAccess(ctx, "uid-1", approved.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", sub.UID)
}

func TestMemorySubscriberStore_SetStrategiesRequiresApproval(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)

	_, err = s.SetStrategies(ctx, "uid-1", []string{"b"})
	assert.True(t, errors.Is(err, model.ErrUIDNotApproved))

	_, err = s.Approve(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)

	sub, err := s.SetStrategies(ctx, "uid-1", []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, sub.ApprovedStrategies)

	_, err = s.SetStrategies(ctx, "uid-1", nil)
	assert.ErrorIs(t, err, ErrNoStrategies)
}

func TestMemorySubscriberStore_TradeConfig(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "uid-1", nil)
	require.NoError(t, err)

	amount := "250.5"
	leverage := 5
	pinned := "BTC_USDT"
	sub, err := s.SetTradeConfig(ctx, "uid-1", TradeConfig{
		InvestmentAmount: &amount,
		Leverage:         &leverage,
		PinnedSymbol:     &pinned,
	})
	require.NoError(t, err)
	assert.True(t, sub.InvestmentAmount.Equal(decimal.RequireFromString("250.5")))
	assert.Equal(t, 5, sub.Leverage)
	assert.Equal(t, "BTC_USDT", sub.PinnedSymbol)

	bad := "not-a-number"
	_, err = s.SetTradeConfig(ctx, "uid-1", TradeConfig{InvestmentAmount: &bad})
	assert.Error(t, err)
}

func TestMemorySubscriberStore_ListApprovedByStrategy(t *testing.T) {
	s := NewMemorySubscriberStore()
	for _, uid := range []string{"a", "b", "c"} {
		_, err := s.Register(ctx, uid, []string{"momentum"})
		require.NoError(t, err)
	}
	_, err := s.Approve(ctx, "a", []string{"momentum"})
	require.NoError(t, err)
	_, err = s.Approve(ctx, "c", []string{"momentum", "swing"})
	require.NoError(t, err)

	subs, err := s.ListApprovedByStrategy(ctx, "momentum")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "a", subs[0].UID)
	assert.Equal(t, "c", subs[1].UID)

	subs, err = s.ListApprovedByStrategy(ctx, "swing")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "c", subs[0].UID)
}

func TestMemorySubscriberStore_Positions(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "uid-1", nil)
	require.NoError(t, err)

	require.NoError(t, s.UpsertPosition(ctx, "uid-1", model.Position{Contract: "BTC_USDT", Size: decimal.NewFromInt(1)}))
	require.NoError(t, s.UpsertPosition(ctx, "uid-1", model.Position{Contract: "ETH_USDT", Size: decimal.NewFromInt(2)}))
	// Same contract replaces, not duplicates.
	require.NoError(t, s.UpsertPosition(ctx, "uid-1", model.Position{Contract: "BTC_USDT", Size: decimal.NewFromInt(3)}))

	sub, err := s.Get(ctx, "uid-1")
	require.NoError(t, err)
	require.Len(t, sub.Positions, 2)
	assert.True(t, sub.Positions[0].Size.Equal(decimal.NewFromInt(3)))

	removed, err := s.RemovePositions(ctx, "uid-1", "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = s.RemovePositions(ctx, "uid-1", "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestMemorySubscriberStore_CopiesAreIsolated(t *testing.T) {
	s := NewMemorySubscriberStore()
	_, err := s.Register(ctx, "uid-1", []string{"a"})
	require.NoError(t, err)

	sub, err := s.Get(ctx, "uid-1")
	require.NoError(t, err)
	sub.RequestedStrategies[0] = "mutated"

	fresh, err := s.Get(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, fresh.RequestedStrategies)
}

func TestMemoryWebhookStore_RotateAndRoutes(t *testing.T) {
	s := NewMemoryWebhookStore()

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SetRoutes(ctx, []string{"momentum"})
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.Rotate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Secret)

	second, err := s.Rotate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	reg, err := s.SetRoutes(ctx, []string{"momentum"})
	require.NoError(t, err)
	assert.Equal(t, []string{"momentum"}, reg.Routes)

	// Rotating keeps the routes.
	third, err := s.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"momentum"}, third.Routes)
}
