// Package bybit implements the broker contract against the Bybit v5
// unified trading API. Stop orders are submitted as conditional
// reduce-only market orders keyed on triggerPrice.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/stefanopk/ladderbot/internal/broker"
	laderrors "github.com/stefanopk/ladderbot/internal/errors"
	"github.com/stefanopk/ladderbot/internal/safety"
)

// Config holds the connection configuration.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool   // demo trading environment (paper fills, real feed)
	Category  string // "linear", "inverse", "spot"; default "linear"
}

// Broker is a Bybit-backed implementation of the broker contract.
type Broker struct {
	httpClient *bybit_api.Client
	category   string
	demo       bool
	testnet    bool
	validator  *safety.Validator
}

// New creates a Bybit broker.
func New(config Config) *Broker {
	var baseURL string
	if config.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	category := config.Category
	if category == "" {
		category = "linear"
	}

	return &Broker{
		httpClient: httpClient,
		category:   category,
		demo:       config.Demo,
		testnet:    config.Testnet,
		validator:  safety.NewValidator(),
	}
}

// Environment returns a string describing the connected environment.
func (b *Broker) Environment() string {
	if b.demo {
		return "demo"
	}
	if b.testnet {
		return "testnet"
	}
	return "mainnet"
}

func sideString(s broker.Side) string {
	return string(s)
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, instrument string, side broker.Side, qty int64) (broker.OrderHandle, error) {
	if err := b.validator.ValidateShareCount(qty, instrument).Err(); err != nil {
		return "", err
	}

	apiParams := map[string]interface{}{
		"category":  b.category,
		"symbol":    instrument,
		"side":      sideString(side),
		"orderType": "Market",
		"qty":       strconv.FormatInt(qty, 10),
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return "", laderrors.NewOrderError("bybit", "place_market_order", err)
	}

	orderID, err := parseOrderIDResponse(result)
	if err != nil {
		return "", err
	}
	if err := b.validator.ValidateOrderID(orderID).Err(); err != nil {
		return "", err
	}
	return broker.OrderHandle(orderID), nil
}

func (b *Broker) PlaceStopOrder(ctx context.Context, instrument string, side broker.Side, qty int64, stopPrice float64) (broker.OrderHandle, error) {
	if err := b.validator.ValidateShareCount(qty, instrument).Err(); err != nil {
		return "", err
	}
	if err := b.validator.ValidatePrice(stopPrice, instrument).Err(); err != nil {
		return "", err
	}

	// A sell stop fires on the way down, a buy stop on the way up
	triggerDirection := 2
	if side == broker.SideBuy {
		triggerDirection = 1
	}

	apiParams := map[string]interface{}{
		"category":         b.category,
		"symbol":           instrument,
		"side":             sideString(side),
		"orderType":        "Market",
		"qty":              strconv.FormatInt(qty, 10),
		"triggerPrice":     strconv.FormatFloat(stopPrice, 'f', -1, 64),
		"triggerDirection": triggerDirection,
		"reduceOnly":       true,
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return "", laderrors.NewOrderError("bybit", "place_stop_order", err)
	}

	orderID, err := parseOrderIDResponse(result)
	if err != nil {
		return "", err
	}
	if err := b.validator.ValidateOrderID(orderID).Err(); err != nil {
		return "", err
	}
	return broker.OrderHandle(orderID), nil
}

// CancelOrder is idempotent: cancelling an order the venue no longer knows
// (already filled or cancelled) is not an error.
func (b *Broker) CancelOrder(ctx context.Context, instrument string, handle broker.OrderHandle) error {
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   instrument,
		"orderId":  string(handle),
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return laderrors.NewOrderError("bybit", "cancel_order", err)
	}

	if serverResp := result; serverResp != nil && serverResp.RetCode != 0 {
		if serverResp.RetCode == ErrCodeOrderNotFound {
			return nil
		}
		return NewBybitError(serverResp.RetCode, serverResp.RetMsg)
	}
	return nil
}

func (b *Broker) GetOrderStatus(ctx context.Context, instrument string, handle broker.OrderHandle) (broker.OrderStatus, error) {
	// Open orders first; filled and cancelled orders move to history
	if status, ok, err := b.findOrder(ctx, handle, instrument, false); err != nil {
		return broker.OrderStatus{}, err
	} else if ok {
		return status, nil
	}

	if status, ok, err := b.findOrder(ctx, handle, instrument, true); err != nil {
		return broker.OrderStatus{}, err
	} else if ok {
		return status, nil
	}

	return broker.OrderStatus{}, NewBybitError(ErrCodeOrderNotFound, fmt.Sprintf("order %s not found", handle))
}

func (b *Broker) findOrder(ctx context.Context, handle broker.OrderHandle, instrument string, history bool) (broker.OrderStatus, bool, error) {
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   instrument,
		"orderId":  string(handle),
	}

	svc := b.httpClient.NewUtaBybitServiceWithParams(params)
	var result interface{}
	var err error
	if history {
		result, err = svc.GetOrderHistory(ctx)
	} else {
		result, err = svc.GetOpenOrders(ctx)
	}
	if err != nil {
		return broker.OrderStatus{}, false, laderrors.NewNetworkError("bybit", "order_status", err)
	}

	orders, err := parseOrderListResponse(result)
	if err != nil {
		return broker.OrderStatus{}, false, err
	}

	for _, o := range orders {
		if o.OrderID == string(handle) {
			return broker.OrderStatus{
				Handle:       handle,
				State:        mapOrderState(o.OrderStatus),
				AvgFillPrice: parseFloat(o.AvgPrice),
				FilledQty:    int64(math.Round(parseFloat(o.CumExecQty))),
			}, true, nil
		}
	}
	return broker.OrderStatus{}, false, nil
}

func (b *Broker) GetPositionSize(ctx context.Context, instrument string) (int64, error) {
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   instrument,
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return 0, laderrors.NewPositionError("bybit", "position_query", err)
	}

	positions, err := parsePositionListResponse(result)
	if err != nil {
		return 0, err
	}

	for _, p := range positions {
		if p.Symbol != instrument {
			continue
		}
		size := int64(math.Round(parseFloat(p.Size)))
		if p.Side == "Sell" {
			size = -size
		}
		return size, nil
	}
	return 0, nil
}

func (b *Broker) GetLastPrice(ctx context.Context, instrument string) (float64, error) {
	params := map[string]interface{}{
		"category": b.category,
		"symbol":   instrument,
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, laderrors.NewNetworkError("bybit", "market_tickers", err)
	}

	price, err := parseTickerPriceResponse(result)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, broker.ErrNoData
	}
	return price, nil
}

// mapOrderState maps Bybit v5 order statuses onto the broker contract.
func mapOrderState(status string) broker.OrderState {
	switch status {
	case "Filled":
		return broker.OrderFilled
	case "Cancelled", "Deactivated":
		return broker.OrderCancelled
	case "Rejected":
		return broker.OrderRejected
	default:
		// New, PartiallyFilled, Untriggered, Triggered
		return broker.OrderPending
	}
}

type orderData struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderStatus string `json:"orderStatus"`
	Qty         string `json:"qty"`
	AvgPrice    string `json:"avgPrice"`
	CumExecQty  string `json:"cumExecQty"`
}

type positionData struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Size     string `json:"size"`
	AvgPrice string `json:"avgPrice"`
}

func resultBytes(response interface{}) ([]byte, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, NewBybitError(serverResp.RetCode, serverResp.RetMsg)
	}
	return json.Marshal(serverResp.Result)
}

func parseOrderIDResponse(response interface{}) (string, error) {
	raw, err := resultBytes(response)
	if err != nil {
		return "", err
	}

	var orderResult struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &orderResult); err != nil {
		return "", fmt.Errorf("failed to unmarshal order result: %w", err)
	}
	if orderResult.OrderID == "" {
		return "", fmt.Errorf("order response missing orderId")
	}
	return orderResult.OrderID, nil
}

func parseOrderListResponse(response interface{}) ([]orderData, error) {
	raw, err := resultBytes(response)
	if err != nil {
		return nil, err
	}

	var listResult struct {
		List []orderData `json:"list"`
	}
	if err := json.Unmarshal(raw, &listResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order list: %w", err)
	}
	return listResult.List, nil
}

func parsePositionListResponse(response interface{}) ([]positionData, error) {
	raw, err := resultBytes(response)
	if err != nil {
		return nil, err
	}

	var listResult struct {
		List []positionData `json:"list"`
	}
	if err := json.Unmarshal(raw, &listResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position list: %w", err)
	}
	return listResult.List, nil
}

func parseTickerPriceResponse(response interface{}) (float64, error) {
	raw, err := resultBytes(response)
	if err != nil {
		return 0, err
	}

	var tickerResult struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &tickerResult); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ticker result: %w", err)
	}
	if len(tickerResult.List) == 0 {
		return 0, broker.ErrNoData
	}
	return parseFloat(tickerResult.List[0].LastPrice), nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
