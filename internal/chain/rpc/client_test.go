package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/polwex/hpn-indexer/internal/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(handler func(*http.Request) (*http.Response, error), opts ...Option) *Client {
	client := NewClient("http://rpc.local", slog.Default(), opts...)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(handler),
	}
	return client
}

func jsonHTTPResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func resultResponse(t *testing.T, r *http.Request, result string) *http.Response {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req Request
	require.NoError(t, json.Unmarshal(body, &req))
	raw, err := json.Marshal(Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(result)})
	require.NoError(t, err)
	return jsonHTTPResponse(http.StatusOK, string(raw))
}

func TestCall_Success(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req Request
		require.NoError(t, json.Unmarshal(body, &req))

		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, "eth_testMethod", req.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		rawResp, err := json.Marshal(Response{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`"0x2a"`)})
		require.NoError(t, err)
		return jsonHTTPResponse(http.StatusOK, string(rawResp)), nil
	})

	result, err := client.call(context.Background(), "eth_testMethod", []interface{}{"p1"})
	require.NoError(t, err)

	var value string
	require.NoError(t, json.Unmarshal(result, &value))
	assert.Equal(t, "0x2a", value)
}

func TestCall_NilParamsSentAsEmptyArray(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"params":[]`)
		return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`), nil
	})

	_, err := client.call(context.Background(), "eth_chainId", nil)
	require.NoError(t, err)
}

func TestCall_RPCError(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		rawResp, err := json.Marshal(Response{
			JSONRPC: "2.0",
			ID:      1,
			Error:   &RPCError{Code: -32000, Message: "upstream unavailable"},
		})
		require.NoError(t, err)
		return jsonHTTPResponse(http.StatusOK, string(rawResp)), nil
	})

	_, err := client.call(context.Background(), "eth_testMethod", nil)
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
}

func TestCall_HTTPError(t *testing.T) {
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonHTTPResponse(http.StatusBadGateway, "bad gateway"), nil
	})

	_, err := client.call(context.Background(), "eth_testMethod", nil)
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "http status 502")
}

func TestCall_BreakerOpensOnTransportFailures(t *testing.T) {
	var calls atomic.Int32
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Hour})
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonHTTPResponse(http.StatusServiceUnavailable, "down"), nil
	}, WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := client.call(context.Background(), "eth_blockNumber", nil)
		require.Error(t, err)
	}
	_, err := client.call(context.Background(), "eth_blockNumber", nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_BreakerIgnoresRPCErrors(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, OpenTimeout: time.Hour})
	client := newTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`), nil
	}, WithBreaker(breaker))

	for i := 0; i < 3; i++ {
		_, err := client.call(context.Background(), "eth_getLogs", nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.GetState())
}

func TestWithTimeout(t *testing.T) {
	client := NewClient("http://rpc.local", slog.Default(), WithTimeout(3*time.Second))
	assert.Equal(t, 3*time.Second, client.httpClient.Timeout)

	client = NewClient("http://rpc.local", slog.Default(), WithTimeout(0))
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func TestParseHexInt64(t *testing.T) {
	v, err := ParseHexInt64("0x1a")
	require.NoError(t, err)
	assert.Equal(t, int64(26), v)

	v, err = ParseHexInt64("0x")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, err = ParseHexInt64("")
	require.Error(t, err)

	_, err = ParseHexInt64("0xzz")
	require.Error(t, err)
}

func TestFormatHexInt64(t *testing.T) {
	assert.Equal(t, "0x1a01b70", FormatHexInt64(27270000))
	assert.Equal(t, "0x0", FormatHexInt64(0))
}
