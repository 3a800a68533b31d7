// Package filter builds the two hypermap log subscriptions the indexer
// follows: every Mint, and Notes for the provider labels.
package filter

import (
	"strings"

	"github.com/polwex/hpn-indexer/internal/chain/hypermap"
	"github.com/polwex/hpn-indexer/internal/chain/rpc"
)

// Subscription ids. They are stable across rebuilds.
const (
	MintsID = 1
	NotesID = 2
)

const latest = "latest"

// Subscription is a named log filter starting at FromBlock and open-ended.
type Subscription struct {
	ID        int
	Name      string
	FromBlock int64
	topics    []interface{}
	address   string
}

// Filter returns the open-ended filter (FromBlock..latest).
func (s Subscription) Filter() rpc.LogFilter {
	return s.filter(rpc.FormatHexInt64(s.FromBlock), latest)
}

// Range returns the filter bounded to [from, to].
func (s Subscription) Range(from, to int64) rpc.LogFilter {
	return s.filter(rpc.FormatHexInt64(from), rpc.FormatHexInt64(to))
}

func (s Subscription) filter(from, to string) rpc.LogFilter {
	topics := make([]interface{}, len(s.topics))
	copy(topics, s.topics)
	return rpc.LogFilter{
		Address:   s.address,
		FromBlock: from,
		ToBlock:   to,
		Topics:    topics,
	}
}

// Builder creates subscriptions against one contract address.
type Builder struct {
	address     string
	labelHashes []string
}

func NewBuilder(address string) *Builder {
	return &Builder{
		address:     strings.ToLower(address),
		labelHashes: hypermap.NoteLabelHashes(),
	}
}

// Build returns the mints and notes subscriptions starting at fromBlock.
func (b *Builder) Build(fromBlock int64) []Subscription {
	return []Subscription{b.Mints(fromBlock), b.Notes(fromBlock)}
}

func (b *Builder) Mints(fromBlock int64) Subscription {
	return Subscription{
		ID:        MintsID,
		Name:      "mints",
		FromBlock: fromBlock,
		address:   b.address,
		topics:    []interface{}{hypermap.MintTopic},
	}
}

// Notes matches Note events whose label hash (topic3) is one of the indexed labels.
func (b *Builder) Notes(fromBlock int64) Subscription {
	labels := make([]string, len(b.labelHashes))
	copy(labels, b.labelHashes)
	return Subscription{
		ID:        NotesID,
		Name:      "notes",
		FromBlock: fromBlock,
		address:   b.address,
		topics:    []interface{}{hypermap.NoteTopic, nil, nil, labels},
	}
}

// Rebuild returns the subscription with id starting at fromBlock, or false
// for an unknown id.
func (b *Builder) Rebuild(id int, fromBlock int64) (Subscription, bool) {
	switch id {
	case MintsID:
		return b.Mints(fromBlock), true
	case NotesID:
		return b.Notes(fromBlock), true
	default:
		return Subscription{}, false
	}
}
