package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the in-memory directory index. A single instance is owned by the
// dispatch loop; nothing else mutates it.
type State struct {
	ChainID         int64                  `json:"chain_id"`
	ContractAddress string                 `json:"contract_address"`
	RootHash        *Namehash              `json:"root_hash"`
	Categories      map[Namehash]string    `json:"categories"`
	Providers       map[Namehash]*Provider `json:"providers"`
	// LastCheckpointBlock is the read cursor. It never decreases.
	LastCheckpointBlock int64 `json:"last_checkpoint_block"`
	LoggingStarted      int64 `json:"logging_started"`
}

// NewState returns an empty state whose cursor starts at firstBlock.
func NewState(chainID int64, contractAddress string, firstBlock int64) *State {
	return &State{
		ChainID:             chainID,
		ContractAddress:     contractAddress,
		Categories:          make(map[Namehash]string),
		Providers:           make(map[Namehash]*Provider),
		LastCheckpointBlock: firstBlock,
		LoggingStarted:      time.Now().Unix(),
	}
}

// SetRoot records the root identity. The last write wins.
func (s *State) SetRoot(hash Namehash) {
	s.RootHash = &hash
}

// IsRoot reports whether hash is the current root identity.
func (s *State) IsRoot(hash Namehash) bool {
	return s.RootHash != nil && *s.RootHash == hash
}

// AdvanceCursor moves the cursor forward to block and reports whether it moved.
func (s *State) AdvanceCursor(block int64) bool {
	if block <= s.LastCheckpointBlock {
		return false
	}
	s.LastCheckpointBlock = block
	return true
}

// Clone returns a deep copy safe to hand to readers outside the dispatch loop.
func (s *State) Clone() *State {
	out := &State{
		ChainID:             s.ChainID,
		ContractAddress:     s.ContractAddress,
		Categories:          make(map[Namehash]string, len(s.Categories)),
		Providers:           make(map[Namehash]*Provider, len(s.Providers)),
		LastCheckpointBlock: s.LastCheckpointBlock,
		LoggingStarted:      s.LoggingStarted,
	}
	if s.RootHash != nil {
		root := *s.RootHash
		out.RootHash = &root
	}
	for hash, name := range s.Categories {
		out.Categories[hash] = name
	}
	for hash, p := range s.Providers {
		out.Providers[hash] = p.clone()
	}
	return out
}

// Marshal serializes the state snapshot.
func (s *State) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

// UnmarshalState decodes a snapshot produced by Marshal.
func UnmarshalState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if s.Categories == nil {
		s.Categories = make(map[Namehash]string)
	}
	if s.Providers == nil {
		s.Providers = make(map[Namehash]*Provider)
	}
	for hash, p := range s.Providers {
		if p == nil {
			delete(s.Providers, hash)
			continue
		}
		if p.Facts == nil {
			p.Facts = make(map[string][]string)
		}
	}
	return &s, nil
}
