package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xKoRx/qmtbridge/sdk/domain"
	"github.com/xKoRx/qmtbridge/sdk/ipc"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
)

// SimulatorConfig configuración del motor simulado.
type SimulatorConfig struct {
	RequestEndpoint  string
	ResponseEndpoint string

	// AccountID cuenta única del simulador
	AccountID string
	// InitialCash saldo inicial
	InitialCash float64
	// TickInterval periodo de ticks para símbolos suscritos (0 = sin ticks)
	TickInterval time.Duration
	// LegacyReqID responde con reqId en vez de req_id
	LegacyReqID bool
	// MuteActions acciones que se reciben pero nunca se responden
	MuteActions []string
	// Seed semilla del random walk de precios
	Seed int64
}

// DefaultSimulatorConfig retorna la configuración por defecto.
func DefaultSimulatorConfig(requestEndpoint, responseEndpoint string) SimulatorConfig {
	return SimulatorConfig{
		RequestEndpoint:  requestEndpoint,
		ResponseEndpoint: responseEndpoint,
		AccountID:        "SIM001",
		InitialCash:      1_000_000,
		TickInterval:     time.Second,
		Seed:             1,
	}
}

type simPosition struct {
	volume    int64
	openPrice float64
}

// Simulator es un motor QMT de desarrollo.
//
// Escucha en los dos endpoints, responde los requests del terminal y empuja
// ticks de los símbolos suscritos. Acepta una sesión a la vez; al caer una
// sesión vuelve a esperar conexiones.
type Simulator struct {
	logHelper
	config SimulatorConfig
	muted  map[string]bool

	reqListener  ipc.PipeListener
	respListener ipc.PipeListener

	mu            sync.Mutex
	rng           *rand.Rand
	prices        map[string]float64
	subscribed    map[string]bool
	positions     map[string]*simPosition
	orders        []*domain.OrderStatus
	trades        []domain.Trade
	cash          float64
	orderSeq      int
	writer        *ipc.FrameWriter
	cancelSession context.CancelFunc
}

// NewSimulator crea el simulador y abre ambos listeners.
func NewSimulator(config SimulatorConfig, tel *telemetry.Client) (*Simulator, error) {
	reqListener, err := ipc.Listen(config.RequestEndpoint, ipc.DefaultPipeConfig(config.RequestEndpoint))
	if err != nil {
		return nil, fmt.Errorf("request listener: %w", err)
	}
	respListener, err := ipc.Listen(config.ResponseEndpoint, ipc.DefaultPipeConfig(config.ResponseEndpoint))
	if err != nil {
		reqListener.Close()
		return nil, fmt.Errorf("response listener: %w", err)
	}

	if config.AccountID == "" {
		config.AccountID = "SIM001"
	}

	muted := make(map[string]bool, len(config.MuteActions))
	for _, a := range config.MuteActions {
		muted[a] = true
	}

	return &Simulator{
		logHelper:    newLogHelper(tel, "simulator"),
		config:       config,
		muted:        muted,
		reqListener:  reqListener,
		respListener: respListener,
		rng:          rand.New(rand.NewSource(config.Seed)),
		prices:       make(map[string]float64),
		subscribed:   make(map[string]bool),
		positions:    make(map[string]*simPosition),
		cash:         config.InitialCash,
	}, nil
}

// Serve atiende sesiones hasta que ctx se cancele.
func (s *Simulator) Serve(ctx context.Context) error {
	s.logInfo("Simulator listening", map[string]interface{}{
		"request_endpoint":  s.config.RequestEndpoint,
		"response_endpoint": s.config.ResponseEndpoint,
	})

	for {
		reqPipe, respPipe, err := s.acceptPair(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.runSession(ctx, reqPipe, respPipe)
	}
}

// Close cierra los listeners.
func (s *Simulator) Close() error {
	return errors.Join(s.reqListener.Close(), s.respListener.Close())
}

// DropSession cierra la sesión actual como si el motor se cayera.
func (s *Simulator) DropSession() {
	s.mu.Lock()
	cancel := s.cancelSession
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Push envía un evento a la sesión actual.
func (s *Simulator) Push(event string, data interface{}) error {
	s.mu.Lock()
	writer := s.writer
	s.mu.Unlock()
	if writer == nil {
		return ErrNotConnected
	}
	return writer.WriteMessage(map[string]interface{}{"event": event, "data": data})
}

func (s *Simulator) acceptPair(ctx context.Context) (ipc.Pipe, ipc.Pipe, error) {
	var reqPipe, respPipe ipc.Pipe
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.reqListener.Accept(gctx)
		reqPipe = p
		return err
	})
	g.Go(func() error {
		p, err := s.respListener.Accept(gctx)
		respPipe = p
		return err
	})
	if err := g.Wait(); err != nil {
		closePipes(reqPipe, respPipe)
		return nil, nil, err
	}
	return reqPipe, respPipe, nil
}

func (s *Simulator) runSession(ctx context.Context, reqPipe, respPipe ipc.Pipe) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := ipc.NewFrameWriter(respPipe, 5*time.Second)
	s.mu.Lock()
	s.writer = writer
	s.cancelSession = cancel
	s.mu.Unlock()

	s.logInfo("Terminal connected", nil)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		defer cancel()
		parser := ipc.NewParser(func(raw json.RawMessage) {
			s.handle(writer, raw)
		}, ipc.WithMalformedHandler(func(body []byte, err error) {
			s.logWarn("Malformed request frame", map[string]interface{}{
				"error":   err.Error(),
				"preview": preview(body, 64),
			})
		}))
		err := ipc.NewFrameReader(reqPipe, parser).Run()
		s.logDebug("Request channel closed", map[string]interface{}{
			"error": err.Error(),
		})
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		buf := make([]byte, 512)
		for {
			if _, err := respPipe.Read(buf); err != nil {
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		s.tickLoop(sessCtx, writer)
	}()

	<-sessCtx.Done()
	closePipes(reqPipe, respPipe)
	wg.Wait()

	s.mu.Lock()
	s.writer = nil
	s.cancelSession = nil
	s.mu.Unlock()

	s.logInfo("Terminal session ended", nil)
}

func (s *Simulator) handle(writer *ipc.FrameWriter, raw json.RawMessage) {
	req, err := domain.ParseRequest(raw)
	if err != nil {
		s.logWarn("Ignoring non-request message", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if s.muted[req.Action] {
		s.logDebug("Muted action, not replying", map[string]interface{}{
			"action": req.Action,
			"req_id": req.ReqID,
		})
		return
	}

	data, events, err := s.execute(req)

	reply := map[string]interface{}{}
	if s.config.LegacyReqID {
		reply[domain.FieldReqIDLegacy] = req.ReqID
	} else {
		reply[domain.FieldReqID] = req.ReqID
	}
	if err != nil {
		reply["error"] = err.Error()
	} else {
		reply["data"] = data
	}

	if werr := writer.WriteMessage(reply); werr != nil {
		s.logWarn("Failed to write reply", map[string]interface{}{
			"req_id": req.ReqID,
			"error":  werr.Error(),
		})
		return
	}
	for _, ev := range events {
		if werr := writer.WriteMessage(ev); werr != nil {
			return
		}
	}
}

// execute aplica el request al estado y retorna el payload del reply y los
// eventos a empujar después.
func (s *Simulator) execute(req *domain.Request) (interface{}, []interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch domain.ActionType(req.Action) {
	case domain.ActionQueryAssets:
		mv := s.marketValueLocked()
		return domain.AccountInfo{
			AccountID:   s.config.AccountID,
			Assets:      round2(s.cash + mv),
			MarketValue: round2(mv),
			Cash:        round2(s.cash),
		}, nil, nil

	case domain.ActionQueryPositions:
		return s.positionsLocked(), nil, nil

	case domain.ActionQueryTrades:
		trades := make([]domain.Trade, len(s.trades))
		copy(trades, s.trades)
		return trades, nil, nil

	case domain.ActionQueryOrders:
		orders := make([]domain.OrderStatus, 0, len(s.orders))
		for _, o := range s.orders {
			orders = append(orders, *o)
		}
		return orders, nil, nil

	case domain.ActionSubscribe:
		var p domain.SubscribeRequest
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Symbol == "" {
			return nil, nil, errors.New("缺少 symbol")
		}
		s.subscribed[p.Symbol] = true
		s.priceLocked(p.Symbol)
		return map[string]interface{}{"symbol": p.Symbol}, nil, nil

	case domain.ActionPlaceOrder:
		var order domain.OrderRequest
		if err := json.Unmarshal(req.Params, &order); err != nil {
			return nil, nil, fmt.Errorf("参数错误: %v", err)
		}
		if err := order.Validate(); err != nil {
			return nil, nil, err
		}
		return s.placeOrderLocked(order)

	case domain.ActionCancelOrder:
		var c domain.CancelRequest
		if err := json.Unmarshal(req.Params, &c); err != nil {
			return nil, nil, fmt.Errorf("参数错误: %v", err)
		}
		for _, o := range s.orders {
			if o.OrderID != c.OrderID {
				continue
			}
			if o.Status != domain.OrderStateSubmitted {
				return nil, nil, fmt.Errorf("订单不可撤销: %s", o.Status)
			}
			o.Status = domain.OrderStateCanceled
			o.Msg = "已撤单"
			return map[string]interface{}{"order_id": o.OrderID}, []interface{}{orderEvent(o)}, nil
		}
		return nil, nil, fmt.Errorf("订单不存在: %s", c.OrderID)
	}

	return nil, nil, fmt.Errorf("未知操作: %s", req.Action)
}

func (s *Simulator) placeOrderLocked(order domain.OrderRequest) (interface{}, []interface{}, error) {
	s.orderSeq++
	side := domain.SideBuy
	if order.OrderType == domain.OrderTypeSell {
		side = domain.SideSell
	}

	o := &domain.OrderStatus{
		OrderID:   fmt.Sprintf("SIM-%06d", s.orderSeq),
		OrderTime: time.Now().Format("15:04:05"),
		Symbol:    order.Symbol,
		StockName: order.Symbol,
		Action:    side,
		Status:    domain.OrderStateSubmitted,
		Price:     order.Price,
		Volume:    order.Volume,
		Msg:       "已报",
	}

	if side == domain.SideSell {
		pos := s.positions[order.Symbol]
		if pos == nil || pos.volume < order.Volume {
			o.Status = domain.OrderStateRejected
			o.Msg = "可用持仓不足"
			s.orders = append(s.orders, o)
			return nil, []interface{}{orderEvent(o)}, errors.New(o.Msg)
		}
	}

	s.orders = append(s.orders, o)
	events := []interface{}{orderEvent(o)}

	last := s.priceLocked(order.Symbol)
	if order.PriceType == domain.PriceTypeMarket {
		o.Price = last
	}
	if crosses(o, last) {
		if ev, ok := s.fillLocked(o, last); ok {
			events = append(events, ev)
		}
	}

	return map[string]interface{}{"order_id": o.OrderID}, events, nil
}

func crosses(o *domain.OrderStatus, last float64) bool {
	if o.Action == domain.SideBuy {
		return last <= o.Price
	}
	return last >= o.Price
}

// fillLocked ejecuta la orden completa a price si hay saldo o posición.
func (s *Simulator) fillLocked(o *domain.OrderStatus, price float64) (interface{}, bool) {
	amount := price * float64(o.Volume)
	pos := s.positions[o.Symbol]

	switch o.Action {
	case domain.SideBuy:
		if amount > s.cash {
			o.Status = domain.OrderStateRejected
			o.Msg = "可用资金不足"
			return orderEvent(o), true
		}
		s.cash -= amount
		if pos == nil {
			pos = &simPosition{}
			s.positions[o.Symbol] = pos
		}
		total := pos.openPrice*float64(pos.volume) + amount
		pos.volume += o.Volume
		pos.openPrice = total / float64(pos.volume)
	case domain.SideSell:
		if pos == nil || pos.volume < o.Volume {
			o.Status = domain.OrderStateRejected
			o.Msg = "可用持仓不足"
			return orderEvent(o), true
		}
		s.cash += amount
		pos.volume -= o.Volume
		if pos.volume == 0 {
			delete(s.positions, o.Symbol)
		}
	}

	o.Status = domain.OrderStateFilled
	o.FilledVolume = o.Volume
	o.Price = price
	o.Msg = "已成"
	s.trades = append(s.trades, domain.Trade{
		Time:      time.Now().Format("15:04:05"),
		Symbol:    o.Symbol,
		StockName: o.StockName,
		Action:    o.Action,
		Price:     price,
		Volume:    o.Volume,
		Amount:    round2(amount),
	})
	return orderEvent(o), true
}

func (s *Simulator) tickLoop(ctx context.Context, writer *ipc.FrameWriter) {
	if s.config.TickInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range s.advanceTicks() {
				if err := writer.WriteMessage(ev); err != nil {
					return
				}
			}
		}
	}
}

// advanceTicks mueve los precios suscritos, llena órdenes límite cruzadas y
// retorna los eventos a empujar.
func (s *Simulator) advanceTicks() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.subscribed))
	for sym := range s.subscribed {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var events []interface{}
	for _, sym := range symbols {
		prev := s.priceLocked(sym)
		last := round2(math.Max(0.01, prev*(1+(s.rng.Float64()-0.5)*0.004)))
		s.prices[sym] = last

		events = append(events, map[string]interface{}{
			"event": domain.EventTick,
			"data": domain.TickData{
				Symbol:    sym,
				StockName: sym,
				LastPrice: last,
				Volume:    float64(s.rng.Intn(5000) * 100),
				Time:      time.Now().Format("15:04:05"),
				Asks:      [][2]float64{{round2(last + 0.01), 100}},
				Bids:      [][2]float64{{round2(last - 0.01), 100}},
				PreClose:  prev,
			},
		})

		for _, o := range s.orders {
			if o.Symbol == sym && o.Status == domain.OrderStateSubmitted && crosses(o, last) {
				if ev, ok := s.fillLocked(o, o.Price); ok {
					events = append(events, ev)
				}
			}
		}
	}
	return events
}

// priceLocked retorna el último precio, inicializándolo desde el símbolo.
func (s *Simulator) priceLocked(symbol string) float64 {
	if p, ok := s.prices[symbol]; ok {
		return p
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	p := round2(5 + float64(h.Sum32()%9500)/100)
	s.prices[symbol] = p
	return p
}

func (s *Simulator) marketValueLocked() float64 {
	mv := 0.0
	for sym, pos := range s.positions {
		mv += s.priceLocked(sym) * float64(pos.volume)
	}
	return mv
}

func (s *Simulator) positionsLocked() []domain.Position {
	symbols := make([]string, 0, len(s.positions))
	for sym := range s.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]domain.Position, 0, len(symbols))
	for _, sym := range symbols {
		pos := s.positions[sym]
		out = append(out, domain.Position{
			AccountID:    s.config.AccountID,
			Symbol:       sym,
			StockName:    sym,
			Volume:       pos.volume,
			CanUseVolume: pos.volume,
			OpenPrice:    round2(pos.openPrice),
			MarketValue:  round2(s.priceLocked(sym) * float64(pos.volume)),
		})
	}
	return out
}

func orderEvent(o *domain.OrderStatus) interface{} {
	return map[string]interface{}{
		"event": domain.EventOrderUpdate,
		"data":  *o,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
