package model

import "strings"

// EvidenceSet holds every email and name actually observed for one property,
// each tagged with the source it came from. It only ever grows during a run
// and is the sole input the validator trusts when checking analysis output.
type EvidenceSet struct {
	emails map[string]string
	names  map[string]string
}

// NewEvidenceSet creates an empty EvidenceSet.
func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{
		emails: make(map[string]string),
		names:  make(map[string]string),
	}
}

// AddEmail records an observed email with its source description.
func (e *EvidenceSet) AddEmail(email, source string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	if _, ok := e.emails[email]; !ok {
		e.emails[email] = source
	}
}

// AddName records an observed name with its source description.
func (e *EvidenceSet) AddName(name, source string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := strings.ToLower(name)
	if _, ok := e.names[key]; !ok {
		e.names[key] = source
	}
}

// AllowsEmail reports whether the email was observed, case-insensitively.
func (e *EvidenceSet) AllowsEmail(email string) bool {
	_, ok := e.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// AllowsName reports whether the name matches an observed name by the
// substring heuristic: either contains the other, case-insensitively.
func (e *EvidenceSet) AllowsName(name string) bool {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return false
	}
	for known := range e.names {
		if strings.Contains(known, needle) || strings.Contains(needle, known) {
			return true
		}
	}
	return false
}

// EmailSource returns the source description for an observed email.
func (e *EvidenceSet) EmailSource(email string) string {
	return e.emails[strings.ToLower(strings.TrimSpace(email))]
}

// EmailCount returns how many distinct emails were observed.
func (e *EvidenceSet) EmailCount() int { return len(e.emails) }

// NameCount returns how many distinct names were observed.
func (e *EvidenceSet) NameCount() int { return len(e.names) }
