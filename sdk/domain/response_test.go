package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseFromReply(t *testing.T) {
	ok := ResponseFromReply(&Reply{ReqID: 7, Data: json.RawMessage(`{"cash":1000}`)})
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Code)

	var info AccountInfo
	require.NoError(t, ok.Decode(&info))
	assert.Equal(t, 1000.0, info.Cash)

	failed := ResponseFromReply(&Reply{ReqID: 7, Error: "insufficient funds"})
	assert.False(t, failed.Success)
	assert.Equal(t, "insufficient funds", failed.Error)
	assert.Equal(t, ErrNoError, failed.Code)

	var remote *RemoteError
	assert.True(t, errors.As(failed.Err(), &remote))
}

func TestResponseJSONShape(t *testing.T) {
	raw, err := json.Marshal(Failure(ErrDisconnected, MsgDisconnected))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"核心未连接","code":"DISCONNECTED"}`, string(raw))

	raw, err = json.Marshal(Success(json.RawMessage(`[1]`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":[1]}`, string(raw))
}

func TestBridgeErrorCode(t *testing.T) {
	cause := errors.New("broken pipe")
	err := WrapError(ErrWriteError, "", cause)

	assert.Equal(t, ErrWriteError, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrNoError, CodeOf(cause))

	resp := err.Response()
	assert.Equal(t, ErrWriteError, resp.Code)
	assert.Equal(t, "broken pipe", resp.Error)
	assert.Equal(t, ErrWriteError, CodeOf(resp.Err()))
}
