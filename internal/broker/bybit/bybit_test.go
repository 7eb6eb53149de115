package bybit

import (
	"testing"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanopk/ladderbot/internal/broker"
)

func TestMapOrderState(t *testing.T) {
	cases := map[string]broker.OrderState{
		"New":             broker.OrderPending,
		"PartiallyFilled": broker.OrderPending,
		"Untriggered":     broker.OrderPending,
		"Filled":          broker.OrderFilled,
		"Cancelled":       broker.OrderCancelled,
		"Deactivated":     broker.OrderCancelled,
		"Rejected":        broker.OrderRejected,
	}
	for status, want := range cases {
		assert.Equal(t, want, mapOrderState(status), status)
	}
}

func TestParseOrderIDResponse(t *testing.T) {
	resp := &bybit_api.ServerResponse{
		RetCode: 0,
		Result:  map[string]interface{}{"orderId": "abc-123"},
	}

	id, err := parseOrderIDResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestParseOrderIDResponseAPIError(t *testing.T) {
	resp := &bybit_api.ServerResponse{RetCode: 110007, RetMsg: "insufficient balance"}

	_, err := parseOrderIDResponse(resp)
	require.Error(t, err)

	bybitErr, ok := err.(*BybitError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInsufficientBalance, bybitErr.Code)
}

func TestParseTickerPriceResponse(t *testing.T) {
	resp := &bybit_api.ServerResponse{
		RetCode: 0,
		Result: map[string]interface{}{
			"list": []map[string]interface{}{
				{"symbol": "BTCUSDT", "lastPrice": "64250.50"},
			},
		},
	}

	price, err := parseTickerPriceResponse(resp)
	require.NoError(t, err)
	assert.InDelta(t, 64250.50, price, 1e-9)
}

func TestParseTickerPriceResponseEmpty(t *testing.T) {
	resp := &bybit_api.ServerResponse{
		RetCode: 0,
		Result:  map[string]interface{}{"list": []map[string]interface{}{}},
	}

	_, err := parseTickerPriceResponse(resp)
	assert.ErrorIs(t, err, broker.ErrNoData)
}

func TestParsePositionListResponse(t *testing.T) {
	resp := &bybit_api.ServerResponse{
		RetCode: 0,
		Result: map[string]interface{}{
			"list": []map[string]interface{}{
				{"symbol": "BTCUSDT", "side": "Sell", "size": "42", "avgPrice": "64000"},
			},
		},
	}

	positions, err := parsePositionListResponse(resp)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "Sell", positions[0].Side)
	assert.Equal(t, "42", positions[0].Size)
}

func TestParseFloat(t *testing.T) {
	assert.InDelta(t, 1.5, parseFloat("1.5"), 1e-9)
	assert.InDelta(t, 0, parseFloat(""), 1e-9)
	assert.InDelta(t, 0, parseFloat("garbage"), 1e-9)
}

func TestIsOrderNotFoundError(t *testing.T) {
	assert.True(t, IsOrderNotFoundError(NewBybitError(ErrCodeOrderNotFound, "order not exists")))
	assert.False(t, IsOrderNotFoundError(NewBybitError(ErrCodeRateLimitExceeded, "slow down")))
	assert.False(t, IsOrderNotFoundError(nil))
}
