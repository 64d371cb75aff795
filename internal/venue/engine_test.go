package venue

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/internal/ledger"
	"paperdesk/internal/schema"
	"paperdesk/pkg/exception"
)

var testNow = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s got %s", want, got)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Feed.Seed = 42
	e, err := NewEngine(cfg, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return e
}

func TestMarketBuyFillsAtTakerRate(t *testing.T) {
	e := newTestEngine(t)

	o, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.1")})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusFilled, o.Status)
	assertDecimal(t, "0.1", o.FilledQuantity)
	assertDecimal(t, "50000", o.AveragePrice)
	assertDecimal(t, "7.5", o.Fee)

	fills := e.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, o.ID, fills[0].OrderID)
	assertDecimal(t, "50000", fills[0].Price)
	assertDecimal(t, "7.5", fills[0].Fee)
	assertDecimal(t, "15", fills[0].FeeBps)

	pos, ok := e.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, schema.PositionSideLong, pos.Side)
	assertDecimal(t, "0.1", pos.Quantity)
	assertDecimal(t, "50000", pos.AveragePrice)

	acc := e.Account()
	assertDecimal(t, "7.5", acc.TotalFees)
	assertDecimal(t, "9992.5", acc.Equity)
}

func TestLimitRestsUntilCrossed(t *testing.T) {
	e := newTestEngine(t)

	o, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideSell, Type: OrderTypeLimit, Quantity: d("0.1"), Price: d("51000")})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.Empty(t, e.Fills())

	e.Tick("BTCUSDT", d("50500"))
	got, _ := e.Order(o.ID)
	assert.Equal(t, OrderStatusPending, got.Status)

	e.Tick("BTCUSDT", d("51200"))
	got, _ = e.Order(o.ID)
	assert.Equal(t, OrderStatusFilled, got.Status)
	assertDecimal(t, "51000", got.AveragePrice)
	assertDecimal(t, "5.1", got.Fee)

	fills := e.Fills()
	require.Len(t, fills, 1)
	assertDecimal(t, "51000", fills[0].Price)
	assertDecimal(t, "10", fills[0].FeeBps)

	pos, ok := e.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, schema.PositionSideShort, pos.Side)
}

func TestTickOnlySweepsItsSymbol(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.PlaceOrder(OrderRequest{Symbol: "ETHUSDT", Side: schema.SideBuy, Type: OrderTypeLimit, Quantity: d("0.1"), Price: d("49000")})
	require.NoError(t, err)

	e.Tick("BTCUSDT", d("48000"))
	got, _ := e.Order(o.ID)
	assert.Equal(t, OrderStatusPending, got.Status)

	e.Tick("ETHUSDT", d("48000"))
	got, _ = e.Order(o.ID)
	assert.Equal(t, OrderStatusFilled, got.Status)
}

func TestLeverageRejection(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("3")})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.True(t, errors.Is(err, exception.ErrOrderLeverageExceeded))
	assert.Empty(t, e.Orders())
	assert.Empty(t, e.Fills())
	assert.Empty(t, e.Positions())
}

func TestValidationErrors(t *testing.T) {
	testCases := []struct {
		desc string
		req  OrderRequest
		want error
	}{
		{
			"symbol not allowed",
			OrderRequest{Symbol: "DOGEUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("1")},
			exception.ErrOrderSymbolNotAllowed,
		},
		{
			"zero quantity",
			OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0")},
			exception.ErrOrderInvalidQuantity,
		},
		{
			"negative quantity",
			OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("-1")},
			exception.ErrOrderInvalidQuantity,
		},
		{
			"limit without price",
			OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeLimit, Quantity: d("0.1")},
			exception.ErrOrderPriceRequired,
		},
		{
			"stop limit without price",
			OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeStopLimit, Quantity: d("0.1"), StopPrice: d("50100")},
			exception.ErrOrderPriceRequired,
		},
		{
			"stop market without stop",
			OrderRequest{Symbol: "BTCUSDT", Side: schema.SideSell, Type: OrderTypeStopMarket, Quantity: d("0.1")},
			exception.ErrOrderStopPriceRequired,
		},
		{
			"unknown side",
			OrderRequest{Symbol: "BTCUSDT", Type: OrderTypeMarket, Quantity: d("0.1")},
			exception.ErrOrderInvalidSide,
		},
		{
			"unknown type",
			OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Quantity: d("0.1")},
			exception.ErrOrderInvalidType,
		},
		{
			"limit leverage uses limit price",
			OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeLimit, Quantity: d("1"), Price: d("100001")},
			exception.ErrOrderLeverageExceeded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			e := newTestEngine(t)
			_, err := e.PlaceOrder(tc.req)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, e.Orders())
		})
	}
}

func TestSymbolIsCaseInsensitive(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.PlaceOrder(OrderRequest{Symbol: "ethusdt", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.01")})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", o.Symbol)
}

func TestPositionLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Risk.MaxPositionSize = d("0.2")
	e, err := NewEngine(cfg, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.15")})
	require.NoError(t, err)
	_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.1")})
	assert.ErrorIs(t, err, exception.ErrOrderPositionLimit)

	// Flipping through zero is measured on the resulting size.
	_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideSell, Type: OrderTypeMarket, Quantity: d("0.3")})
	require.NoError(t, err)
}

func TestDailyLossLimit(t *testing.T) {
	now := testNow
	cfg := DefaultConfig()
	cfg.Risk.MaxDailyLoss = d("50")
	e, err := NewEngine(cfg, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.1")})
	require.NoError(t, err)
	e.Tick("BTCUSDT", d("49000"))
	_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideSell, Type: OrderTypeMarket, Quantity: d("0.1")})
	require.NoError(t, err)
	assertDecimal(t, "-100", e.Account().DailyPnL)

	_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.01")})
	assert.ErrorIs(t, err, exception.ErrOrderDailyLossLimit)

	now = now.Add(24 * time.Hour)
	_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.01")})
	require.NoError(t, err)
	assertDecimal(t, "0", e.Account().DailyPnL)
}

func TestCancelOnlyPending(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeLimit, Quantity: d("0.1"), Price: d("45000")})
	require.NoError(t, err)

	assert.True(t, e.CancelOrder(o.ID))
	assert.False(t, e.CancelOrder(o.ID))
	assert.False(t, e.CancelOrder("order_missing"))

	got, _ := e.Order(o.ID)
	assert.Equal(t, OrderStatusCancelled, got.Status)
	assert.Equal(t, testNow, got.CancelledAt)

	e.Tick("BTCUSDT", d("40000"))
	got, _ = e.Order(o.ID)
	assert.Equal(t, OrderStatusCancelled, got.Status)
	assert.Empty(t, e.Fills())

	m, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.1")})
	require.NoError(t, err)
	assert.False(t, e.CancelOrder(m.ID))
}

func TestIOCWithoutFillIsCancelled(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeLimit, Quantity: d("0.1"), Price: d("49000"), TimeInForce: TimeInForceIOC})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, o.Status)
	assert.False(t, o.CancelledAt.IsZero())

	e.Tick("BTCUSDT", d("48000"))
	assert.Empty(t, e.Fills())
}

func TestIOCMarketFills(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideSell, Type: OrderTypeMarket, Quantity: d("0.1"), TimeInForce: TimeInForceIOC})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusFilled, o.Status)
	assert.True(t, o.CancelledAt.IsZero())
}

func TestStopMarketTriggers(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideSell, Type: OrderTypeStopMarket, Quantity: d("0.1"), StopPrice: d("49500")})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, o.Status)

	e.Tick("BTCUSDT", d("49800"))
	got, _ := e.Order(o.ID)
	assert.Equal(t, OrderStatusPending, got.Status)

	e.Tick("BTCUSDT", d("49400"))
	got, _ = e.Order(o.ID)
	assert.Equal(t, OrderStatusFilled, got.Status)
	assertDecimal(t, "49400", got.AveragePrice)
	assertDecimal(t, "15", got.FeeBps)
}

func TestStopLimitLatchesTrigger(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeStopLimit, Quantity: d("0.1"), StopPrice: d("50500"), Price: d("50600")})
	require.NoError(t, err)

	e.Tick("BTCUSDT", d("50700"))
	got, _ := e.Order(o.ID)
	assert.True(t, got.Triggered)
	assert.Equal(t, OrderStatusPending, got.Status)

	e.Tick("BTCUSDT", d("50300"))
	got, _ = e.Order(o.ID)
	assert.Equal(t, OrderStatusFilled, got.Status)
	assertDecimal(t, "50600", got.AveragePrice)
	assertDecimal(t, "10", got.FeeBps)
}

func TestUnrealizedFollowsTicks(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.1")})
	require.NoError(t, err)

	e.Tick("BTCUSDT", d("51000"))
	acc := e.Account()
	assertDecimal(t, "100", acc.UnrealizedPnL)
	assertDecimal(t, "100", acc.TotalPnL)
	assertDecimal(t, "10092.5", acc.Equity)

	_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideSell, Type: OrderTypeMarket, Quantity: d("0.1")})
	require.NoError(t, err)
	acc = e.Account()
	assertDecimal(t, "100", acc.RealizedPnL)
	assertDecimal(t, "0", acc.UnrealizedPnL)
	assert.Empty(t, e.Positions())
}

func TestResetReplayIsDeterministic(t *testing.T) {
	e := newTestEngine(t)
	run := func() ledger.Snapshot {
		_, err := e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideBuy, Type: OrderTypeMarket, Quantity: d("0.1")})
		require.NoError(t, err)
		_, err = e.PlaceOrder(OrderRequest{Symbol: "BTCUSDT", Side: schema.SideSell, Type: OrderTypeLimit, Quantity: d("0.05"), Price: d("50050")})
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			e.Step("BTCUSDT")
		}
		return e.Snapshot()
	}

	first := run()
	firstFills := e.Fills()
	e.Reset()
	assertDecimal(t, "50000", e.CurrentPrice())
	assert.Empty(t, e.Orders())

	second := run()
	require.NoError(t, ledger.CompareSnapshots(first, second))
	assert.Equal(t, firstFills, e.Fills())
}

func TestStepStaysWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feed.Seed = 7
	cfg.Feed.StartPrice = d("1010")
	cfg.Feed.Floor = d("1000")
	cfg.Feed.Ceiling = d("1020")
	cfg.Feed.MaxStep = d("100")
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		p := e.Step("BTCUSDT")
		require.True(t, p.GreaterThanOrEqual(cfg.Feed.Floor), p.String())
		require.True(t, p.LessThanOrEqual(cfg.Feed.Ceiling), p.String())
	}
}

func TestPriceFeedLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feed.Interval = time.Millisecond
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	require.True(t, e.StartPriceFeed(t.Context(), "BTCUSDT"))
	assert.False(t, e.StartPriceFeed(t.Context(), "BTCUSDT"))
	assert.True(t, e.FeedRunning())

	require.Eventually(t, func() bool {
		return !e.CurrentPrice().Equal(cfg.Feed.StartPrice)
	}, time.Second, time.Millisecond)

	e.StopPriceFeed()
	e.StopPriceFeed()
	assert.False(t, e.FeedRunning())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.InitialBalance = decimal.Zero
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Feed.StartPrice = d("500")
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Risk.SymbolAllowlist = nil
	assert.Error(t, bad.Validate())
}
