// Package hypermaptest builds ABI-encoded hypermap logs for tests.
package hypermaptest

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/polwex/hpn-indexer/internal/chain/hypermap"
	"github.com/polwex/hpn-indexer/internal/chain/rpc"
	"github.com/polwex/hpn-indexer/internal/domain/event"
)

// MintLog returns a Mint log for child under parent.
func MintLog(parent, child, label string, block int64) event.Log {
	return event.Log{
		Address:     hypermap.Address,
		Topics:      []string{hypermap.MintTopic, parent, child, hypermap.Keccak256Hex([]byte(label))},
		Data:        EncodeBytes([]byte(label)),
		BlockNumber: &block,
	}
}

// NoteLog returns a Note log attaching data under label to parent.
func NoteLog(parent, label string, data []byte, block int64) event.Log {
	return event.Log{
		Address:     hypermap.Address,
		Topics:      []string{hypermap.NoteTopic, parent, hypermap.Keccak256Hex([]byte(parent + label)), hypermap.Keccak256Hex([]byte(label))},
		Data:        EncodeBytes([]byte(label), data),
		BlockNumber: &block,
	}
}

// WithID sets the tx hash and log index that identify l on chain.
func WithID(l event.Log, txHash string, index int64) event.Log {
	l.TxHash = txHash
	l.LogIndex = index
	return l
}

// ToRPC renders l as the JSON-RPC log a node would return.
func ToRPC(l event.Log) *rpc.Log {
	out := &rpc.Log{
		Address:         l.Address,
		Topics:          append([]string(nil), l.Topics...),
		Data:            "0x" + hex.EncodeToString(l.Data),
		TransactionHash: l.TxHash,
		LogIndex:        rpc.FormatHexInt64(l.LogIndex),
		Removed:         l.Removed,
	}
	if l.BlockNumber != nil {
		block := rpc.FormatHexInt64(*l.BlockNumber)
		out.BlockNumber = &block
	}
	return out
}

// EncodeBytes ABI-encodes values as a tuple of dynamic `bytes`.
func EncodeBytes(values ...[]byte) []byte {
	head := make([]byte, 0, 32*len(values))
	var tail []byte
	offset := 32 * len(values)
	for _, v := range values {
		head = append(head, word(uint64(offset+len(tail)))...)
		tail = append(tail, word(uint64(len(v)))...)
		tail = append(tail, pad(v)...)
	}
	return append(head, tail...)
}

func word(v uint64) []byte {
	w := make([]byte, 32)
	binary.BigEndian.PutUint64(w[24:], v)
	return w
}

func pad(b []byte) []byte {
	n := (len(b) + 31) / 32 * 32
	out := make([]byte, n)
	copy(out, b)
	return out
}
