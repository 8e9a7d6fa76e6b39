package domain

// ActionType es la acción de un Request, tal como la despacha el motor QMT.
type ActionType string

const (
	ActionPlaceOrder     ActionType = "place_order"
	ActionCancelOrder    ActionType = "cancel_order"
	ActionQueryOrders    ActionType = "query_orders"
	ActionQueryTrades    ActionType = "query_trades"
	ActionQueryPositions ActionType = "query_positions"
	ActionQueryAssets    ActionType = "query_assets"
	ActionSubscribe      ActionType = "subscribe"
)

// KnownActions lista las acciones soportadas por el motor.
var KnownActions = []ActionType{
	ActionPlaceOrder,
	ActionCancelOrder,
	ActionQueryOrders,
	ActionQueryTrades,
	ActionQueryPositions,
	ActionQueryAssets,
	ActionSubscribe,
}

// Nombres de eventos entrantes y de ciclo de vida.
const (
	EventTick        = "tick"
	EventOrderUpdate = "order_update"
	EventLog         = "log"
	EventError       = "error"
	EventStatus      = "status"
)

// KnownEvents lista los eventos que un suscriptor puede pedir.
var KnownEvents = []string{EventTick, EventOrderUpdate, EventLog, EventError, EventStatus}

// OrderType dirección de la orden (minúsculas en el wire).
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// PriceType tipo de precio de la orden.
type PriceType string

const (
	PriceTypeLimit  PriceType = "limit"
	PriceTypeMarket PriceType = "market"
)

// OrderRequest son los params de place_order.
type OrderRequest struct {
	AccountID    string    `json:"account_id"`
	Symbol       string    `json:"symbol"`
	OrderType    OrderType `json:"order_type"`
	PriceType    PriceType `json:"price_type"`
	Price        float64   `json:"price"`
	Volume       int64     `json:"volume"`
	StrategyName string    `json:"strategy_name,omitempty"`
	Remark       string    `json:"remark,omitempty"`
}

// CancelRequest son los params de cancel_order.
type CancelRequest struct {
	AccountID string `json:"account_id"`
	OrderID   string `json:"order_id"`
}

// AccountQuery son los params de las consultas por cuenta.
type AccountQuery struct {
	AccountID string `json:"account_id"`
}

// SubscribeRequest son los params de subscribe.
type SubscribeRequest struct {
	Symbol string `json:"symbol"`
}

// TickData es el payload del evento tick.
type TickData struct {
	Symbol    string       `json:"symbol"`
	StockName string       `json:"stockName,omitempty"`
	LastPrice float64      `json:"lastPrice"`
	Volume    float64      `json:"volume"`
	Time      string       `json:"time"`
	Asks      [][2]float64 `json:"asks"`
	Bids      [][2]float64 `json:"bids"`

	PreClose  float64 `json:"preClose,omitempty"`
	Open      float64 `json:"open,omitempty"`
	High      float64 `json:"high,omitempty"`
	Low       float64 `json:"low,omitempty"`
	LimitUp   float64 `json:"limitUp,omitempty"`
	LimitDown float64 `json:"limitDown,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

// AccountInfo es la respuesta de query_assets.
type AccountInfo struct {
	AccountID   string  `json:"accountId"`
	Assets      float64 `json:"assets"`
	MarketValue float64 `json:"marketValue"`
	Cash        float64 `json:"cash"`
}

// Position es un elemento de la respuesta de query_positions.
type Position struct {
	AccountID    string  `json:"accountId"`
	Symbol       string  `json:"symbol"`
	StockName    string  `json:"stockName"`
	Volume       int64   `json:"volume"`
	CanUseVolume int64   `json:"canUseVolume"`
	OpenPrice    float64 `json:"openPrice"`
	MarketValue  float64 `json:"marketValue"`
}

// Side dirección de un fill u orden en los payloads del motor (mayúsculas).
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade es un elemento de la respuesta de query_trades.
type Trade struct {
	Time      string  `json:"time"`
	Symbol    string  `json:"symbol"`
	StockName string  `json:"stockName"`
	Action    Side    `json:"action"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Amount    float64 `json:"amount"`
}

// OrderState estado de una orden en el motor.
type OrderState string

const (
	OrderStateSubmitted OrderState = "SUBMITTED"
	OrderStateFilled    OrderState = "FILLED"
	OrderStateCanceled  OrderState = "CANCELED"
	OrderStateRejected  OrderState = "REJECTED"
)

// OrderStatus es el payload de order_update y de query_orders.
type OrderStatus struct {
	OrderID      string     `json:"orderId"`
	OrderTime    string     `json:"orderTime"`
	Symbol       string     `json:"symbol"`
	StockName    string     `json:"stockName"`
	Action       Side       `json:"action"`
	Status       OrderState `json:"status"`
	Price        float64    `json:"price"`
	Volume       int64      `json:"volume"`
	FilledVolume int64      `json:"filledVolume"`
	Msg          string     `json:"msg"`
}
