package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbridge/src/model"
	"signalbridge/src/registry"
	"signalbridge/src/security"
)

type stubPrices struct {
	price decimal.Decimal
	err   error
}

func (s *stubPrices) MarkPrice(context.Context, string) (decimal.Decimal, error) {
	return s.price, s.err
}

func approvedSubscriber(t *testing.T, subs *registry.MemorySubscriberStore, uid string) *model.Subscriber {
	t.Helper()
	ctx := context.Background()
	_, err := subs.Register(ctx, uid, []string{"momentum"})
	require.NoError(t, err)
	sub, err := subs.Approve(ctx, uid, []string{"momentum"})
	require.NoError(t, err)
	return sub
}

func TestRegisterUserHandler(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	handler := RegisterUserHandler(subs)

	req := httptest.NewRequest(http.MethodPost, "/api/user/register",
		strings.NewReader(`{"uid":"uid-1","strategies":["momentum"]}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"pending"`)

	sub, err := subs.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"momentum"}, sub.RequestedStrategies)
}

func TestRegisterUserHandler_BadInput(t *testing.T) {
	handler := RegisterUserHandler(registry.NewMemorySubscriberStore())

	for _, body := range []string{`{"uid":""}`, `{"uid":"   "}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/user/register", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body: %s", body)
	}
}

func TestUserStatusHandler_UnknownIsNotRegistered(t *testing.T) {
	handler := UserStatusHandler(registry.NewMemorySubscriberStore())

	req := httptest.NewRequest(http.MethodGet, "/api/user/status?uid=ghost", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), model.StatusNotRegistered)
}

func TestUserStatusHandler_NeverLeaksAccessKey(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")
	handler := UserStatusHandler(subs)

	req := httptest.NewRequest(http.MethodGet, "/api/user/status?uid=uid-1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), sub.AccessKey)
}

func TestUserSignalsHandler_CredentialsMismatch(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	approvedSubscriber(t, subs, "uid-1")
	handler := UserSignalsHandler(subs, registry.NewSignalHistory(10))

	req := httptest.NewRequest(http.MethodGet, "/api/user/signals?uid=uid-1&key=wrong", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)

	var resp struct {
		OK   bool   `json:"ok"`
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, "uid_credentials_mismatch", resp.Code)
}

func TestUserSignalsHandler_Success(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")
	history := registry.NewSignalHistory(10)
	history.AppendSubscriber("uid-1", model.Signal{ID: "sig-1", Status: model.SignalStatusDelivered})
	handler := UserSignalsHandler(subs, history)

	req := httptest.NewRequest(http.MethodGet, "/api/user/signals?uid=uid-1&key="+sub.AccessKey, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sig-1")
}

func TestUserPositionsHandler_RefreshesSimulated(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")

	require.NoError(t, subs.UpsertPosition(context.Background(), "uid-1", model.Position{
		Contract:   "BTC_USDT",
		Size:       decimal.RequireFromString("0.02"),
		Margin:     decimal.NewFromInt(1000),
		EntryPrice: decimal.NewFromInt(50000),
		MarkPrice:  decimal.NewFromInt(50000),
		Simulated:  true,
	}))

	handler := UserPositionsHandler(subs, &stubPrices{price: decimal.NewFromInt(55000)})
	req := httptest.NewRequest(http.MethodGet, "/api/positions?uid=uid-1&key="+sub.AccessKey, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Positions []model.Position     `json:"positions"`
		Summary   model.AccountSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.True(t, resp.Positions[0].MarkPrice.Equal(decimal.NewFromInt(55000)))
	// pnl = (55000 - 50000) x 0.02 = 100
	assert.True(t, resp.Positions[0].UnrealisedPnl.Equal(decimal.NewFromInt(100)),
		"got pnl %s", resp.Positions[0].UnrealisedPnl)
}

func TestUserPositionsHandler_RefreshesRealPositions(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")

	require.NoError(t, subs.UpsertPosition(context.Background(), "uid-1", model.Position{
		Contract:   "ETH_USDT",
		Size:       decimal.NewFromInt(2),
		Margin:     decimal.NewFromInt(600),
		EntryPrice: decimal.NewFromInt(3000),
		MarkPrice:  decimal.NewFromInt(3000),
		Simulated:  false,
	}))

	handler := UserPositionsHandler(subs, &stubPrices{price: decimal.NewFromInt(3100)})
	req := httptest.NewRequest(http.MethodGet, "/api/positions?uid=uid-1&key="+sub.AccessKey, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Positions []model.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.True(t, resp.Positions[0].MarkPrice.Equal(decimal.NewFromInt(3100)))
	// pnl = (3100 - 3000) x 2 = 200
	assert.True(t, resp.Positions[0].UnrealisedPnl.Equal(decimal.NewFromInt(200)),
		"got pnl %s", resp.Positions[0].UnrealisedPnl)
}

func TestAutoTradingHandler(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")
	handler := AutoTradingHandler(subs)

	req := httptest.NewRequest(http.MethodPost, "/api/user/auto-trading",
		strings.NewReader(`{"uid":"uid-1","key":"`+sub.AccessKey+`","enabled":true}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"auto_trading":true`)

	stored, err := subs.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.True(t, stored.AutoTrading)
}

func TestAutoTradingHandler_RequiresCredentials(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	approvedSubscriber(t, subs, "uid-1")
	handler := AutoTradingHandler(subs)

	req := httptest.NewRequest(http.MethodPost, "/api/user/auto-trading",
		strings.NewReader(`{"uid":"uid-1","enabled":true}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "missing_credentials")
}

func TestConnectExchangeHandler(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")
	sealer, err := security.NewSealer(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	handler := ConnectExchangeHandler(subs, sealer)

	req := httptest.NewRequest(http.MethodPost, "/api/user/exchange",
		strings.NewReader(`{"uid":"uid-1","key":"`+sub.AccessKey+`","api_key":"gate-key-12345678","api_secret":"gate-secret"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "gate-secret")
	assert.Contains(t, rr.Body.String(), "gate")

	stored, err := subs.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Exchange)
	assert.True(t, stored.Exchange.Connected)
	assert.Equal(t, "gate-key-12345678", stored.Exchange.APIKey)
	assert.NotEqual(t, []byte("gate-secret"), stored.Exchange.SealedSecret)

	plain, err := sealer.Open(stored.Exchange.SealedSecret)
	require.NoError(t, err)
	assert.Equal(t, "gate-secret", plain)
}

func TestConnectExchangeHandler_RequiresCredentialsFields(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")
	sealer, err := security.NewSealer(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	handler := ConnectExchangeHandler(subs, sealer)

	req := httptest.NewRequest(http.MethodPost, "/api/user/exchange",
		strings.NewReader(`{"uid":"uid-1","key":"`+sub.AccessKey+`","api_key":"only-key"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTradeConfigHandler(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")
	handler := TradeConfigHandler(subs)

	req := httptest.NewRequest(http.MethodPost, "/api/user/config",
		strings.NewReader(`{"uid":"uid-1","key":"`+sub.AccessKey+`","investment_amount":"500","leverage":3,"pinned_symbol":"BTC_USDT"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	stored, err := subs.Get(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.True(t, stored.InvestmentAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 3, stored.Leverage)
	assert.Equal(t, "BTC_USDT", stored.PinnedSymbol)
}

func TestTradeConfigHandler_RejectsBadLeverage(t *testing.T) {
	subs := registry.NewMemorySubscriberStore()
	sub := approvedSubscriber(t, subs, "uid-1")
	handler := TradeConfigHandler(subs)

	req := httptest.NewRequest(http.MethodPost, "/api/user/config",
		strings.NewReader(`{"uid":"uid-1","key":"`+sub.AccessKey+`","leverage":0}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
