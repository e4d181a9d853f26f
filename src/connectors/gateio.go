// REST API CLIENT FOR GATE V4 (WALLET + SPOT + USDT-M FUTURES)
// RESTY ONLY, NO INTERNAL RETRY: retrying is a caller decision and order
// placement must never be replayed by the transport layer.
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultGateBaseURL = "https://api.gateio.ws"
	apiV4Prefix        = "/api/v4"

	defaultRequestTimeout = 10 * time.Second
)

// GateClient is an authenticated Gate v4 REST client. Private endpoints are
// signed through the configured Signer; market-data endpoints go out
// unsigned.
type GateClient struct {
	signer Signer
	http   *resty.Client
}

func NewGateClient(apiKey, apiSecret, baseURL, scheme string) (*GateClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGateBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	signer, err := NewSigner(scheme, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultRequestTimeout)

	return &GateClient{
		signer: signer,
		http:   httpClient,
	}, nil
}

// encodeSortedQuery serializes query parameters with lexicographic key order
// so the signed query string is deterministic and matches what is sent.
func encodeSortedQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(parts, "&")
}

func (c *GateClient) doRequest(ctx context.Context, method, endpoint string, params map[string]string, body any, auth bool, out any) error {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	httpPath := apiV4Prefix + endpoint
	query := encodeSortedQuery(params)

	var bodyStr string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")

	if auth {
		req.SetHeaders(c.signer.Sign(method, httpPath, query, bodyStr, time.Now()))
	}
	if query != "" {
		req.SetQueryString(query)
	}
	if bodyStr != "" {
		req.SetHeader("Content-Type", "application/json").SetBody(bodyStr)
	}

	resp, err := req.Execute(method, httpPath)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}

	raw := resp.Body()
	if resp.StatusCode() >= 400 {
		apiErr := &APIError{Status: resp.StatusCode()}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Label == "" && apiErr.Message == "" {
			apiErr.Message = string(raw)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unmarshal %s %s response: %w", method, endpoint, err)
		}
	}
	return nil
}

// -----------------------------
// ACCOUNT & BALANCES
// -----------------------------

type TotalBalance struct {
	Total struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"total"`
	Details map[string]struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"details"`
}

func (c *GateClient) WalletTotalBalance(ctx context.Context) (*TotalBalance, error) {
	var out TotalBalance
	if err := c.doRequest(ctx, "GET", "/wallet/total_balance", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type SpotAccount struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

func (c *GateClient) SpotAccounts(ctx context.Context, currency string) ([]SpotAccount, error) {
	params := map[string]string{}
	if currency != "" {
		params["currency"] = currency
	}
	var out []SpotAccount
	if err := c.doRequest(ctx, "GET", "/spot/accounts", params, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type FuturesAccount struct {
	Total          string `json:"total"`
	Available      string `json:"available"`
	PositionMargin string `json:"position_margin"`
	OrderMargin    string `json:"order_margin"`
	UnrealisedPnl  string `json:"unrealised_pnl"`
	Currency       string `json:"currency"`
}

func (c *GateClient) FuturesAccountOverview(ctx context.Context, settle string) (*FuturesAccount, error) {
	var out FuturesAccount
	if err := c.doRequest(ctx, "GET", "/futures/"+settle+"/accounts", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// -----------------------------
// POSITIONS
// -----------------------------

type FuturesPosition struct {
	Contract      string `json:"contract"`
	Size          int64  `json:"size"`
	Leverage      string `json:"leverage"`
	Margin        string `json:"margin"`
	EntryPrice    string `json:"entry_price"`
	MarkPrice     string `json:"mark_price"`
	UnrealisedPnl string `json:"unrealised_pnl"`
	Mode          string `json:"mode"`
}

func (c *GateClient) ListPositions(ctx context.Context, settle string) ([]FuturesPosition, error) {
	var out []FuturesPosition
	if err := c.doRequest(ctx, "GET", "/futures/"+settle+"/positions", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GateClient) SetLeverage(ctx context.Context, settle, contract string, leverage int) error {
	params := map[string]string{"leverage": fmt.Sprintf("%d", leverage)}
	endpoint := fmt.Sprintf("/futures/%s/positions/%s/leverage", settle, contract)
	return c.doRequest(ctx, "POST", endpoint, params, nil, true, nil)
}

// -----------------------------
// ORDERS
// -----------------------------

type FuturesOrderRequest struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"`
	Price      string `json:"price"`
	Tif        string `json:"tif,omitempty"`
	ReduceOnly bool   `json:"reduce_only,omitempty"`
	Close      bool   `json:"close,omitempty"`
	Text       string `json:"text,omitempty"`
}

type FuturesOrder struct {
	ID         int64   `json:"id"`
	Contract   string  `json:"contract"`
	Size       int64   `json:"size"`
	Left       int64   `json:"left"`
	Price      string  `json:"price"`
	FillPrice  string  `json:"fill_price"`
	Status     string  `json:"status"`
	Tif        string  `json:"tif"`
	IsClose    bool    `json:"is_close"`
	CreateTime float64 `json:"create_time"`
}

// PlaceFuturesOrder submits one order. Size sign carries the side (positive
// long, negative short); price "0" with tif ioc is a market order. This call
// is never retried here.
func (c *GateClient) PlaceFuturesOrder(ctx context.Context, settle string, order FuturesOrderRequest) (*FuturesOrder, error) {
	if order.Price == "" {
		order.Price = "0"
		order.Tif = "ioc"
	}
	var out FuturesOrder
	if err := c.doRequest(ctx, "POST", "/futures/"+settle+"/orders", nil, order, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GateClient) CancelOrder(ctx context.Context, settle string, orderID int64) (*FuturesOrder, error) {
	var out FuturesOrder
	endpoint := fmt.Sprintf("/futures/%s/orders/%d", settle, orderID)
	if err := c.doRequest(ctx, "DELETE", endpoint, nil, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GateClient) CancelAllOrders(ctx context.Context, settle, contract string) ([]FuturesOrder, error) {
	params := map[string]string{"contract": contract}
	var out []FuturesOrder
	if err := c.doRequest(ctx, "DELETE", "/futures/"+settle+"/orders", params, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GateClient) ListOrders(ctx context.Context, settle, contract, status string) ([]FuturesOrder, error) {
	params := map[string]string{"status": status}
	if contract != "" {
		params["contract"] = contract
	}
	var out []FuturesOrder
	if err := c.doRequest(ctx, "GET", "/futures/"+settle+"/orders", params, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClosePosition sends the close-all order for a contract: size zero with the
// close flag, market priced.
func (c *GateClient) ClosePosition(ctx context.Context, settle, contract string) (*FuturesOrder, error) {
	return c.PlaceFuturesOrder(ctx, settle, FuturesOrderRequest{
		Contract: contract,
		Size:     0,
		Price:    "0",
		Tif:      "ioc",
		Close:    true,
	})
}

// -----------------------------
// MARKET DATA (public, unsigned)
// -----------------------------

type FuturesTicker struct {
	Contract   string `json:"contract"`
	Last       string `json:"last"`
	MarkPrice  string `json:"mark_price"`
	IndexPrice string `json:"index_price"`
	Volume24h  string `json:"volume_24h"`
}

func (c *GateClient) FuturesTickers(ctx context.Context, settle, contract string) ([]FuturesTicker, error) {
	params := map[string]string{}
	if contract != "" {
		params["contract"] = contract
	}
	var out []FuturesTicker
	if err := c.doRequest(ctx, "GET", "/futures/"+settle+"/tickers", params, nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkPrice fetches the current mark price for one contract, falling back to
// the last trade when the exchange omits the mark.
func (c *GateClient) MarkPrice(ctx context.Context, settle, contract string) (decimal.Decimal, error) {
	tickers, err := c.FuturesTickers(ctx, settle, contract)
	if err != nil {
		return decimal.Zero, err
	}
	if len(tickers) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker for contract %s", contract)
	}
	raw := tickers[0].MarkPrice
	if raw == "" {
		raw = tickers[0].Last
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q for %s: %w", raw, contract, err)
	}
	return price, nil
}

type OrderBookEntry struct {
	Price string `json:"p"`
	Size  int64  `json:"s"`
}

type OrderBook struct {
	Asks []OrderBookEntry `json:"asks"`
	Bids []OrderBookEntry `json:"bids"`
}

func (c *GateClient) OrderBook(ctx context.Context, settle, contract string, limit int) (*OrderBook, error) {
	params := map[string]string{"contract": contract}
	if limit > 0 {
		params["limit"] = fmt.Sprintf("%d", limit)
	}
	var out OrderBook
	if err := c.doRequest(ctx, "GET", "/futures/"+settle+"/order_book", params, nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Candlestick struct {
	Timestamp float64 `json:"t"`
	Volume    int64   `json:"v"`
	Close     string  `json:"c"`
	High      string  `json:"h"`
	Low       string  `json:"l"`
	Open      string  `json:"o"`
}

func (c *GateClient) Candlesticks(ctx context.Context, settle, contract, interval string, limit int) ([]Candlestick, error) {
	params := map[string]string{"contract": contract}
	if interval != "" {
		params["interval"] = interval
	}
	if limit > 0 {
		params["limit"] = fmt.Sprintf("%d", limit)
	}
	var out []Candlestick
	if err := c.doRequest(ctx, "GET", "/futures/"+settle+"/candlesticks", params, nil, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}
