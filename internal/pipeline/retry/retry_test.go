package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/polwex/hpn-indexer/internal/chain/rpc"
	"github.com/polwex/hpn-indexer/internal/circuitbreaker"
	"github.com/stretchr/testify/assert"
)

func TestClassify_ExplicitMarkers(t *testing.T) {
	transient := Classify(Transient(errors.New("rpc timed out")))
	assert.Equal(t, ClassTransient, transient.Class)
	assert.Equal(t, "explicit_transient", transient.Reason)

	terminal := Classify(Terminal(errors.New("invalid params")))
	assert.Equal(t, ClassTerminal, terminal.Class)
	assert.Equal(t, "explicit_terminal", terminal.Reason)

	assert.Nil(t, Transient(nil))
	assert.Nil(t, Terminal(nil))
}

func TestClassify_RepresentativeRuntimeErrors(t *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectedClass  Class
		expectedReason string
	}{
		{
			name:           "context deadline transient",
			err:            fmt.Errorf("eth_getLogs: %w", context.DeadlineExceeded),
			expectedClass:  ClassTransient,
			expectedReason: "context_deadline_exceeded",
		},
		{
			name:           "context canceled terminal",
			err:            context.Canceled,
			expectedClass:  ClassTerminal,
			expectedReason: "context_canceled",
		},
		{
			name:           "breaker open transient",
			err:            fmt.Errorf("eth_blockNumber: %w", circuitbreaker.ErrCircuitOpen),
			expectedClass:  ClassTransient,
			expectedReason: "circuit_open",
		},
		{
			name:           "http 503 transient",
			err:            fmt.Errorf("eth_getLogs: %w", &rpc.HTTPStatusError{StatusCode: 503}),
			expectedClass:  ClassTransient,
			expectedReason: "http_server_error",
		},
		{
			name:           "http 429 transient",
			err:            &rpc.HTTPStatusError{StatusCode: 429},
			expectedClass:  ClassTransient,
			expectedReason: "http_rate_limited",
		},
		{
			name:           "http 401 terminal",
			err:            &rpc.HTTPStatusError{StatusCode: 401},
			expectedClass:  ClassTerminal,
			expectedReason: "http_client_error",
		},
		{
			name:           "jsonrpc limit exceeded transient",
			err:            fmt.Errorf("eth_getLogs: %w", &rpc.RPCError{Code: -32005, Message: "limit exceeded"}),
			expectedClass:  ClassTransient,
			expectedReason: "jsonrpc_server_transient",
		},
		{
			name:           "jsonrpc invalid params terminal",
			err:            &rpc.RPCError{Code: -32602, Message: "invalid params"},
			expectedClass:  ClassTerminal,
			expectedReason: "jsonrpc_terminal",
		},
		{
			name:           "connection refused transient",
			err:            errors.New("http request: dial tcp 127.0.0.1:8545: connect: connection refused"),
			expectedClass:  ClassTransient,
			expectedReason: "message_transient",
		},
		{
			name:           "unknown defaults terminal",
			err:            errors.New("unexpected failure"),
			expectedClass:  ClassTerminal,
			expectedReason: "unknown_terminal_default",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision := Classify(tc.err)
			assert.Equal(t, tc.expectedClass, decision.Class)
			assert.Equal(t, tc.expectedReason, decision.Reason)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	d := Classify(nil)
	assert.False(t, d.IsTransient())
	assert.Equal(t, "nil_error", d.Reason)
}

func TestDecision_IsDefiniteTerminal(t *testing.T) {
	assert.True(t, Classify(&rpc.RPCError{Code: -32602, Message: "invalid params"}).IsDefiniteTerminal())
	assert.True(t, Classify(&rpc.HTTPStatusError{StatusCode: 400}).IsDefiniteTerminal())
	assert.False(t, Classify(&rpc.RPCError{Code: -32000, Message: "header not found"}).IsDefiniteTerminal())
	assert.False(t, Classify(errors.New("something odd")).IsDefiniteTerminal())
	assert.False(t, Classify(nil).IsDefiniteTerminal())
}
