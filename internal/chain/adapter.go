package chain

import (
	"context"

	"github.com/polwex/hpn-indexer/internal/chain/rpc"
)

//go:generate mockgen -source=adapter.go -destination=mocks/mock_log_source.go -package=mocks

// LogSource is the chain access the pipeline needs: the current head and
// filtered contract logs.
type LogSource interface {
	// GetBlockNumber returns the latest block number.
	GetBlockNumber(ctx context.Context) (int64, error)

	// GetLogs returns logs matching filter in chain order.
	GetLogs(ctx context.Context, filter rpc.LogFilter) ([]*rpc.Log, error)
}

var _ LogSource = (*rpc.Client)(nil)
