package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderRequestValidate(t *testing.T) {
	valid := OrderRequest{
		AccountID: "A1",
		Symbol:    "600000.SH",
		OrderType: OrderTypeBuy,
		PriceType: PriceTypeLimit,
		Price:     10.5,
		Volume:    100,
	}

	tests := []struct {
		name      string
		mutate    func(o *OrderRequest)
		wantField string
	}{
		{"valid", func(o *OrderRequest) {}, ""},
		{"market without price", func(o *OrderRequest) { o.PriceType = PriceTypeMarket; o.Price = 0 }, ""},
		{"missing account", func(o *OrderRequest) { o.AccountID = " " }, "account_id"},
		{"bad symbol", func(o *OrderRequest) { o.Symbol = "60 00" }, "symbol"},
		{"bad side", func(o *OrderRequest) { o.OrderType = "hold" }, "order_type"},
		{"bad price type", func(o *OrderRequest) { o.PriceType = "stop" }, "price_type"},
		{"limit zero price", func(o *OrderRequest) { o.Price = 0 }, "price"},
		{"zero volume", func(o *OrderRequest) { o.Volume = 0 }, "volume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			if assert.True(t, errors.As(err, &ve)) {
				assert.Equal(t, tt.wantField, ve.Field)
			}
		})
	}
}

func TestCancelRequestValidate(t *testing.T) {
	assert.NoError(t, (&CancelRequest{AccountID: "A1", OrderID: "42"}).Validate())
	assert.Error(t, (&CancelRequest{AccountID: "A1"}).Validate())
	assert.Error(t, (&CancelRequest{OrderID: "42"}).Validate())
}

func TestIsKnownAction(t *testing.T) {
	assert.True(t, IsKnownAction("query_assets"))
	assert.False(t, IsKnownAction("ping"))
}
