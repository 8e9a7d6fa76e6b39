package internal

import (
	"context"
	"time"

	"github.com/xKoRx/qmtbridge/sdk/domain"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/semconv"
)

// Requester envía requests correlacionados al motor.
type Requester interface {
	SendRequest(ctx context.Context, action string, params interface{}, timeout time.Duration) *domain.Response
}

// Trading expone las acciones del motor con params y resultados tipados.
//
// Las consultas decodifican el payload; un payload con otra forma se reporta
// como error de decodificación, sin reintentos.
type Trading struct {
	requester Requester
	timeout   time.Duration
}

// NewTrading crea la fachada. timeout <= 0 delega el default al Requester.
func NewTrading(requester Requester, timeout time.Duration) *Trading {
	return &Trading{requester: requester, timeout: timeout}
}

// QueryAssets consulta el resumen de activos de la cuenta.
func (t *Trading) QueryAssets(ctx context.Context, accountID string) (*domain.AccountInfo, error) {
	var info domain.AccountInfo
	if err := t.query(ctx, domain.ActionQueryAssets, accountID, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// QueryPositions consulta las posiciones de la cuenta.
func (t *Trading) QueryPositions(ctx context.Context, accountID string) ([]domain.Position, error) {
	var positions []domain.Position
	if err := t.query(ctx, domain.ActionQueryPositions, accountID, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// QueryTrades consulta los fills del día.
func (t *Trading) QueryTrades(ctx context.Context, accountID string) ([]domain.Trade, error) {
	var trades []domain.Trade
	if err := t.query(ctx, domain.ActionQueryTrades, accountID, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// QueryOrders consulta las órdenes del día.
func (t *Trading) QueryOrders(ctx context.Context, accountID string) ([]domain.OrderStatus, error) {
	var orders []domain.OrderStatus
	if err := t.query(ctx, domain.ActionQueryOrders, accountID, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// PlaceOrder valida los campos de la orden y la envía.
//
// El payload de la respuesta depende del motor, por eso se retorna la
// Response completa.
func (t *Trading) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.Response, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	ctx = telemetry.AppendEventAttrs(ctx,
		semconv.Bridge.AccountID.String(order.AccountID),
		semconv.Bridge.Symbol.String(order.Symbol),
	)
	resp := t.requester.SendRequest(ctx, string(domain.ActionPlaceOrder), order, t.timeout)
	return resp, resp.Err()
}

// CancelOrder pide la cancelación de una orden.
func (t *Trading) CancelOrder(ctx context.Context, accountID, orderID string) (*domain.Response, error) {
	req := domain.CancelRequest{AccountID: accountID, OrderID: orderID}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = telemetry.AppendEventAttrs(ctx, semconv.Bridge.AccountID.String(accountID))
	resp := t.requester.SendRequest(ctx, string(domain.ActionCancelOrder), req, t.timeout)
	return resp, resp.Err()
}

// Subscribe pide ticks de symbol. Los ticks llegan como evento tick.
func (t *Trading) Subscribe(ctx context.Context, symbol string) error {
	if err := domain.ValidateSymbolFormat(symbol); err != nil {
		return err
	}
	ctx = telemetry.AppendEventAttrs(ctx, semconv.Bridge.Symbol.String(symbol))
	return t.requester.SendRequest(ctx, string(domain.ActionSubscribe), domain.SubscribeRequest{Symbol: symbol}, t.timeout).Err()
}

func (t *Trading) query(ctx context.Context, action domain.ActionType, accountID string, out interface{}) error {
	if err := domain.ValidateAccountID(accountID); err != nil {
		return err
	}
	ctx = telemetry.AppendEventAttrs(ctx, semconv.Bridge.AccountID.String(accountID))
	resp := t.requester.SendRequest(ctx, string(action), domain.AccountQuery{AccountID: accountID}, t.timeout)
	return resp.Decode(out)
}
