package event

import (
	"fmt"

	"github.com/polwex/hpn-indexer/internal/domain/model"
)

// Log is a contract log as delivered by backfill or the live subscription.
type Log struct {
	Address     string
	Topics      []string
	Data        []byte
	BlockNumber *int64 // nil for pending-block logs
	TxHash      string
	LogIndex    int64
	Removed     bool
}

// ID identifies the log on chain. Empty when the source did not supply a tx hash.
func (l Log) ID() string {
	if l.TxHash == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", l.TxHash, l.LogIndex)
}

// Decoded is the tagged union produced once at the ingestion boundary.
type Decoded interface {
	kind() string
}

// Registration establishes Child under Parent with a human-readable label (hypermap Mint).
type Registration struct {
	Parent model.Namehash
	Child  model.Namehash
	Label  string
}

// Annotation attaches a label/value pair to Parent (hypermap Note).
// Payload is the hex encoding of the note data.
type Annotation struct {
	Parent  model.Namehash
	Label   string
	Payload string
}

// Unrecognized is any log whose signature the indexer does not handle.
type Unrecognized struct {
	Topic0 string
}

func (Registration) kind() string { return "registration" }
func (Annotation) kind() string   { return "annotation" }
func (Unrecognized) kind() string { return "unrecognized" }

// Kind names the variant for logs and metrics.
func Kind(d Decoded) string {
	if d == nil {
		return "unknown"
	}
	return d.kind()
}
