package model

import "strings"

// Namehash is a hypermap node identity: a 0x-prefixed, lowercase 32-byte hex string.
type Namehash string

func (h Namehash) String() string {
	return string(h)
}

// NormalizeNamehash lowercases and trims an identity so map lookups are stable
// regardless of how the RPC node formatted the topic.
func NormalizeNamehash(raw string) Namehash {
	return Namehash(strings.ToLower(strings.TrimSpace(raw)))
}

// Category is a named grouping directly under the root identity.
type Category struct {
	Hash Namehash `json:"hash"`
	Name string   `json:"name"`
}

// Provider is a directory entry under a category.
type Provider struct {
	Category string   `json:"category"`
	Name     string   `json:"name"`
	Hash     Namehash `json:"hash"`
	// Facts holds every decoded note value per original label, most recent last.
	Facts map[string][]string `json:"facts"`
	// AppliedNotes records the log ids already folded into Facts.
	AppliedNotes map[string]struct{} `json:"applied_notes,omitempty"`
}

// NewProvider returns a provider with empty fact history.
func NewProvider(hash Namehash, name, category string) *Provider {
	return &Provider{
		Category: category,
		Name:     name,
		Hash:     hash,
		Facts:    make(map[string][]string),
	}
}

// AppendFact appends value to the history of label. A non-empty logID that was
// already applied is ignored and AppendFact reports false.
func (p *Provider) AppendFact(label, value, logID string) bool {
	if logID != "" {
		if _, seen := p.AppliedNotes[logID]; seen {
			return false
		}
		if p.AppliedNotes == nil {
			p.AppliedNotes = make(map[string]struct{})
		}
		p.AppliedNotes[logID] = struct{}{}
	}
	if p.Facts == nil {
		p.Facts = make(map[string][]string)
	}
	p.Facts[label] = append(p.Facts[label], value)
	return true
}

// HasNote reports whether the annotation log logID was already applied.
func (p *Provider) HasNote(logID string) bool {
	if logID == "" {
		return false
	}
	_, ok := p.AppliedNotes[logID]
	return ok
}

// LatestFact returns the most recent value recorded for label.
func (p *Provider) LatestFact(label string) (string, bool) {
	values := p.Facts[label]
	if len(values) == 0 {
		return "", false
	}
	return values[len(values)-1], true
}

func (p *Provider) clone() *Provider {
	out := &Provider{
		Category: p.Category,
		Name:     p.Name,
		Hash:     p.Hash,
		Facts:    make(map[string][]string, len(p.Facts)),
	}
	for label, values := range p.Facts {
		out.Facts[label] = append([]string(nil), values...)
	}
	if len(p.AppliedNotes) > 0 {
		out.AppliedNotes = make(map[string]struct{}, len(p.AppliedNotes))
		for id := range p.AppliedNotes {
			out.AppliedNotes[id] = struct{}{}
		}
	}
	return out
}

// FactColumn turns a note label such as "~provider-name" into the relational
// column key "provider_name".
func FactColumn(label string) string {
	key := strings.TrimPrefix(label, "~")
	return strings.NewReplacer("-", "_", ".", "_").Replace(key)
}
