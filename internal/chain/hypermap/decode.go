package hypermap

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/polwex/hpn-indexer/internal/chain/rpc"
	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/domain/model"
)

// ErrMalformed marks a log whose topics or data do not match its event signature.
var ErrMalformed = errors.New("malformed log")

const wordSize = 32

// FromRPC converts a JSON-RPC log into the ingestion log type.
func FromRPC(l *rpc.Log) (event.Log, error) {
	if l == nil {
		return event.Log{}, fmt.Errorf("nil log")
	}
	data, err := decodeHex(l.Data)
	if err != nil {
		return event.Log{}, fmt.Errorf("log data: %w", err)
	}
	out := event.Log{
		Address: strings.ToLower(l.Address),
		Topics:  make([]string, len(l.Topics)),
		Data:    data,
		TxHash:  strings.ToLower(l.TransactionHash),
		Removed: l.Removed,
	}
	for i, t := range l.Topics {
		out.Topics[i] = strings.ToLower(t)
	}
	if l.BlockNumber != nil && *l.BlockNumber != "" {
		block, err := rpc.ParseHexInt64(*l.BlockNumber)
		if err != nil {
			return event.Log{}, fmt.Errorf("log block number: %w", err)
		}
		out.BlockNumber = &block
	}
	if l.LogIndex != "" {
		idx, err := rpc.ParseHexInt64(l.LogIndex)
		if err != nil {
			return event.Log{}, fmt.Errorf("log index: %w", err)
		}
		out.LogIndex = idx
	}
	return out, nil
}

// Decode classifies l by topic0 and decodes the Mint and Note layouts.
// Errors wrap ErrMalformed.
func Decode(l event.Log) (event.Decoded, error) {
	if len(l.Topics) == 0 {
		return event.Unrecognized{}, nil
	}
	switch strings.ToLower(l.Topics[0]) {
	case MintTopic:
		return decodeMint(l)
	case NoteTopic:
		return decodeNote(l)
	default:
		return event.Unrecognized{Topic0: l.Topics[0]}, nil
	}
}

// Mint(bytes32 indexed parenthash, bytes32 indexed childhash, bytes indexed labelhash, bytes label)
func decodeMint(l event.Log) (event.Decoded, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("%w: mint has %d topics", ErrMalformed, len(l.Topics))
	}
	label, err := dynamicBytesAt(l.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: mint label: %v", ErrMalformed, err)
	}
	if !utf8.Valid(label) {
		return nil, fmt.Errorf("%w: mint label is not utf-8", ErrMalformed)
	}
	return event.Registration{
		Parent: model.NormalizeNamehash(l.Topics[1]),
		Child:  model.NormalizeNamehash(l.Topics[2]),
		Label:  string(label),
	}, nil
}

// Note(bytes32 indexed parenthash, bytes32 indexed notehash, bytes indexed labelhash, bytes label, bytes data)
func decodeNote(l event.Log) (event.Decoded, error) {
	if len(l.Topics) < 2 {
		return nil, fmt.Errorf("%w: note has %d topics", ErrMalformed, len(l.Topics))
	}
	label, err := dynamicBytesAt(l.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: note label: %v", ErrMalformed, err)
	}
	if !utf8.Valid(label) {
		return nil, fmt.Errorf("%w: note label is not utf-8", ErrMalformed)
	}
	payload, err := dynamicBytesAt(l.Data, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: note data: %v", ErrMalformed, err)
	}
	return event.Annotation{
		Parent:  model.NormalizeNamehash(l.Topics[1]),
		Label:   string(label),
		Payload: "0x" + hex.EncodeToString(payload),
	}, nil
}

// dynamicBytesAt reads the ABI `bytes` value whose offset sits in head slot.
func dynamicBytesAt(data []byte, slot int) ([]byte, error) {
	offset, err := wordAsInt(data, slot*wordSize)
	if err != nil {
		return nil, fmt.Errorf("offset: %w", err)
	}
	length, err := wordAsInt(data, offset)
	if err != nil {
		return nil, fmt.Errorf("length: %w", err)
	}
	start := offset + wordSize
	if length > len(data)-start {
		return nil, fmt.Errorf("length %d exceeds data", length)
	}
	return data[start : start+length], nil
}

func wordAsInt(data []byte, at int) (int, error) {
	if at < 0 || at > len(data)-wordSize {
		return 0, fmt.Errorf("word at %d out of range (%d bytes)", at, len(data))
	}
	word := data[at : at+wordSize]
	for _, b := range word[:wordSize-8] {
		if b != 0 {
			return 0, fmt.Errorf("word at %d too large", at)
		}
	}
	var v uint64
	for _, b := range word[wordSize-8:] {
		v = v<<8 | uint64(b)
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("word at %d too large", at)
	}
	return int(v), nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return []byte{}, nil
	}
	return hex.DecodeString(s)
}
