package model

import "encoding/json"

// RegistryCandidate is an unscored entry returned by the business registry.
type RegistryCandidate struct {
	CVRNumber  int             `json:"cvr_number"`
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	PostalCode string          `json:"postal_code"`
	City       string          `json:"city"`
	Status     string          `json:"status"`
	Owners     []string        `json:"owners,omitempty"`
	Email      string          `json:"email,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// RegistryMatch is a candidate that cleared the match threshold, with its
// score and the human-readable reasons behind it.
type RegistryMatch struct {
	Candidate RegistryCandidate `json:"candidate"`
	Score     int               `json:"score"`
	Reasons   []string          `json:"reasons"`
}
