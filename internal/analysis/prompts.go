package analysis

import (
	"fmt"
	"strings"

	"github.com/adnord/ownership-cli/internal/model"
)

const assessSystemPrompt = `You assess Danish property ownership findings.
You receive only structured facts from official registers. You must never
invent a fact. When the findings do not state who owns the property, answer
"unknown" — an unknown owner is always a better answer than a guess.

Respond with a single JSON object and nothing else:
{
  "owner_name": "<legal owner name from the findings, or \"unknown\">",
  "registry_id": <CVR number from the findings, or null>,
  "quality_score": <0.0-1.0>,
  "quality_tier": "<high|medium|low>",
  "justification": "<one or two sentences>"
}`

const rankSystemPrompt = `You rank already-collected contact candidates for
reaching a Danish property owner. The numbered list below is the complete
universe of contacts; you cannot add names, emails, or phone numbers. Refer
to candidates only by their index number.

Respond with a single JSON object and nothing else:
{
  "rankings": [
    {
      "index": <index from the list>,
      "confidence": <0.0-1.0>,
      "relevance": "<direct|indirect>",
      "role": "<short role description>",
      "reason": "<one sentence>"
    }
  ]
}
Omit candidates that are not worth contacting.`

// Findings is the Phase 1 input: structured official facts only, never
// web text and never contact candidates.
type Findings struct {
	Address    string
	PostalCode string
	City       string
	Ownership  *model.OfficialOwnershipRecord
	Type       model.OwnershipType
	Match      *model.RegistryMatch
}

// assessUserPrompt renders the findings for Phase 1.
func assessUserPrompt(f Findings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Property: %s, %s %s\n", f.Address, f.PostalCode, f.City)
	fmt.Fprintf(&b, "Classified ownership type: %s\n\n", f.Type)

	if f.Ownership != nil {
		fmt.Fprintf(&b, "Ownership register record (BFE %d):\n", f.Ownership.BFENumber)
		fmt.Fprintf(&b, "- ownership code %d (%s), municipality %s\n",
			f.Ownership.OwnershipCode, f.Ownership.OwnershipText, f.Ownership.Municipality)
		for _, o := range f.Ownership.Owners {
			primary := ""
			if o.IsPrimary {
				primary = " (primary)"
			}
			fmt.Fprintf(&b, "- owner: %s%s\n", o.Name, primary)
		}
		for _, a := range f.Ownership.Administrators {
			fmt.Fprintf(&b, "- administrator: %s\n", a.Name)
		}
	} else {
		b.WriteString("Ownership register record: none found\n")
	}
	b.WriteString("\n")

	if f.Match != nil {
		fmt.Fprintf(&b, "Business register match (score %d/100):\n", f.Match.Score)
		fmt.Fprintf(&b, "- CVR %d: %s, %s, %s %s (%s)\n",
			f.Match.Candidate.CVRNumber, f.Match.Candidate.Name,
			f.Match.Candidate.Address, f.Match.Candidate.PostalCode,
			f.Match.Candidate.City, f.Match.Candidate.Status)
		for _, reason := range f.Match.Reasons {
			fmt.Fprintf(&b, "- match reason: %s\n", reason)
		}
	} else {
		b.WriteString("Business register match: none\n")
	}

	return b.String()
}

// rankUserPrompt renders the property context and the indexed candidate
// list for Phase 2.
func rankUserPrompt(propertyContext string, contacts []model.CandidateContact) string {
	var b strings.Builder
	b.WriteString(propertyContext)
	b.WriteString("\n\nContact candidates:\n")
	for i, c := range contacts {
		fmt.Fprintf(&b, "[%d] name=%q email=%q phone=%q role=%q source=%q\n",
			i, c.Name, c.Email, c.Phone, c.Role, c.Source)
	}
	return b.String()
}
