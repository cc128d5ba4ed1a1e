package model

import "sort"

// Relevance classifies how directly a contact relates to the property owner.
type Relevance string

const (
	RelevanceDirect   Relevance = "direct"
	RelevanceIndirect Relevance = "indirect"
)

// CandidateContact is a possible outreach contact for a property. Created by
// the analysis phase, mutated only by the validator and the deduplicator,
// never re-opened after the orchestrator finalizes it.
type CandidateContact struct {
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Role       string    `json:"role,omitempty"`
	Relevance  Relevance `json:"relevance"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// ClampConfidence keeps confidence inside [0,1] after any adjustment.
func (c *CandidateContact) ClampConfidence() {
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
}

// SortContacts orders contacts direct-before-indirect, then by confidence
// descending. This is the canonical final ordering used by both the
// validator and the deduplicator.
func SortContacts(contacts []CandidateContact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i], contacts[j]
		if a.Relevance != b.Relevance {
			return a.Relevance == RelevanceDirect
		}
		return a.Confidence > b.Confidence
	})
}
