package internal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xKoRx/qmtbridge/sdk/domain"
)

type simFixture struct {
	sim    *Simulator
	bridge *Bridge
	trade  *Trading
	events *recorder
}

func newSimFixture(t *testing.T, mutate func(*SimulatorConfig)) *simFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("simulator end-to-end runs over unix sockets")
	}

	dir := t.TempDir()
	simCfg := DefaultSimulatorConfig(filepath.Join(dir, "req.sock"), filepath.Join(dir, "resp.sock"))
	simCfg.TickInterval = 10 * time.Millisecond
	if mutate != nil {
		mutate(&simCfg)
	}

	tel := newTestTelemetry(t)
	sim, err := NewSimulator(simCfg, tel)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sim.Serve(ctx)
	}()

	cfg := DefaultConfig()
	cfg.RequestPipe = simCfg.RequestEndpoint
	cfg.ResponsePipe = simCfg.ResponseEndpoint
	cfg.ReconnectDelay = 50 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second

	b, err := New(cfg, tel)
	require.NoError(t, err)

	f := &simFixture{sim: sim, bridge: b, trade: NewTrading(b, 0), events: &recorder{}}
	for _, name := range domain.KnownEvents {
		b.Subscribe(name, f.events.handler(name))
	}

	t.Cleanup(func() {
		b.Stop()
		cancel()
		<-done
		sim.Close()
	})

	require.NoError(t, b.Start())
	f.waitConnected(t)
	return f
}

func (f *simFixture) waitConnected(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, f.bridge.WaitConnected(ctx))
}

func (f *simFixture) orderStates(t *testing.T) []domain.OrderState {
	t.Helper()
	var states []domain.OrderState
	for _, raw := range f.events.named(domain.EventOrderUpdate) {
		var o domain.OrderStatus
		require.NoError(t, json.Unmarshal(raw, &o))
		states = append(states, o.Status)
	}
	return states
}

func TestSimulatorQueryAssets(t *testing.T) {
	f := newSimFixture(t, nil)

	info, err := f.trade.QueryAssets(context.Background(), "SIM001")
	require.NoError(t, err)
	assert.Equal(t, "SIM001", info.AccountID)
	assert.InDelta(t, 1_000_000.0, info.Cash, 0.001)
	assert.InDelta(t, 0.0, info.MarketValue, 0.001)
}

func TestSimulatorSubscribePushesTicks(t *testing.T) {
	f := newSimFixture(t, nil)

	require.NoError(t, f.trade.Subscribe(context.Background(), "600000.SH"))

	require.Eventually(t, func() bool { return f.events.count(domain.EventTick) >= 2 }, 3*time.Second, 10*time.Millisecond)

	var tick domain.TickData
	require.NoError(t, json.Unmarshal(f.events.named(domain.EventTick)[0], &tick))
	assert.Equal(t, "600000.SH", tick.Symbol)
	assert.Greater(t, tick.LastPrice, 0.0)
	require.Len(t, tick.Asks, 1)
}

func TestSimulatorMarketOrderFills(t *testing.T) {
	f := newSimFixture(t, func(c *SimulatorConfig) { c.TickInterval = 0 })
	ctx := context.Background()

	resp, err := f.trade.PlaceOrder(ctx, domain.OrderRequest{
		AccountID: "SIM001",
		Symbol:    "600000.SH",
		OrderType: domain.OrderTypeBuy,
		PriceType: domain.PriceTypeMarket,
		Volume:    100,
	})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Data), "SIM-000001")

	require.Eventually(t, func() bool { return len(f.orderStates(t)) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.OrderState{domain.OrderStateSubmitted, domain.OrderStateFilled}, f.orderStates(t))

	positions, err := f.trade.QueryPositions(ctx, "SIM001")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(100), positions[0].Volume)

	trades, err := f.trade.QueryTrades(ctx, "SIM001")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideBuy, trades[0].Action)

	// Vender más de lo que hay es rechazado por el motor
	_, err = f.trade.PlaceOrder(ctx, domain.OrderRequest{
		AccountID: "SIM001",
		Symbol:    "600000.SH",
		OrderType: domain.OrderTypeSell,
		PriceType: domain.PriceTypeMarket,
		Volume:    500,
	})
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "可用持仓不足", remote.Message)
}

func TestSimulatorLimitOrderCancel(t *testing.T) {
	f := newSimFixture(t, func(c *SimulatorConfig) { c.TickInterval = 0 })
	ctx := context.Background()

	// Precio de compra muy bajo: queda en el libro
	_, err := f.trade.PlaceOrder(ctx, domain.OrderRequest{
		AccountID: "SIM001",
		Symbol:    "000001.SZ",
		OrderType: domain.OrderTypeBuy,
		PriceType: domain.PriceTypeLimit,
		Price:     0.01,
		Volume:    100,
	})
	require.NoError(t, err)

	orders, err := f.trade.QueryOrders(ctx, "SIM001")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStateSubmitted, orders[0].Status)

	_, err = f.trade.CancelOrder(ctx, "SIM001", orders[0].OrderID)
	require.NoError(t, err)

	_, err = f.trade.CancelOrder(ctx, "SIM001", orders[0].OrderID)
	assert.ErrorContains(t, err, "订单不可撤销")

	_, err = f.trade.CancelOrder(ctx, "SIM001", "SIM-999999")
	assert.ErrorContains(t, err, "订单不存在")
}

func TestSimulatorUnknownAction(t *testing.T) {
	f := newSimFixture(t, nil)

	resp := f.bridge.SendRequest(context.Background(), "query_margin", nil, 0)
	assert.False(t, resp.Success)
	assert.Equal(t, domain.ErrNoError, resp.Code)
	assert.Equal(t, "未知操作: query_margin", resp.Error)
}

func TestSimulatorLegacyReqID(t *testing.T) {
	f := newSimFixture(t, func(c *SimulatorConfig) { c.LegacyReqID = true })

	info, err := f.trade.QueryAssets(context.Background(), "SIM001")
	require.NoError(t, err)
	assert.Equal(t, "SIM001", info.AccountID)
}

func TestSimulatorMutedActionTimesOut(t *testing.T) {
	f := newSimFixture(t, func(c *SimulatorConfig) { c.MuteActions = []string{"query_trades"} })

	resp := f.bridge.SendRequest(context.Background(), "query_trades", domain.AccountQuery{AccountID: "SIM001"}, 100*time.Millisecond)
	assert.Equal(t, domain.ErrTimeout, resp.Code)

	// El link sigue sano
	_, err := f.trade.QueryAssets(context.Background(), "SIM001")
	assert.NoError(t, err)
}

func TestSimulatorSessionDropReconnects(t *testing.T) {
	f := newSimFixture(t, func(c *SimulatorConfig) { c.TickInterval = 0 })

	f.sim.DropSession()

	require.Eventually(t, func() bool { return f.events.count(domain.EventError) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `"Backend Disconnected"`, string(f.events.named(domain.EventError)[0]))

	require.Eventually(t, func() bool { return f.bridge.State() == StateConnected }, 3*time.Second, 10*time.Millisecond)

	_, err := f.trade.QueryAssets(context.Background(), "SIM001")
	assert.NoError(t, err)

	var sawLinkUp int
	for _, raw := range f.events.named(domain.EventLog) {
		if string(raw) == `"交易核心连接成功"` {
			sawLinkUp++
		}
	}
	assert.Equal(t, 2, sawLinkUp)
}
