// Package hypermap knows the layout of the hypermap registry contract on Base:
// its address, event signatures, and how to turn raw logs into decoded events.
package hypermap

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

const (
	// Address is the hypermap contract on Base mainnet.
	Address = "0x000000000044C6B8Cb4d8f0F889a3E47664EAeda"
	// FirstBlock is the block the contract was deployed at.
	FirstBlock int64 = 27_270_000
	// ChainID is Base mainnet.
	ChainID int64 = 8453
)

const (
	mintSignature = "Mint(bytes32,bytes32,bytes,bytes)"
	noteSignature = "Note(bytes32,bytes32,bytes,bytes,bytes)"
)

// Note labels the indexer subscribes to.
const (
	LabelSite         = "~site"
	LabelDescription  = "~description"
	LabelProviderName = "~provider-name"
)

var (
	MintTopic = Keccak256Hex([]byte(mintSignature))
	NoteTopic = Keccak256Hex([]byte(noteSignature))
)

// NoteLabels returns the note labels whose events are indexed.
func NoteLabels() []string {
	return []string{LabelSite, LabelDescription, LabelProviderName}
}

// NoteLabelHashes returns the topic3 values matching NoteLabels.
func NoteLabelHashes() []string {
	labels := NoteLabels()
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = Keccak256Hex([]byte(l))
	}
	return out
}

func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Keccak256Hex returns the 0x-prefixed lowercase hex keccak256 of data.
func Keccak256Hex(data []byte) string {
	return "0x" + hex.EncodeToString(Keccak256(data))
}
