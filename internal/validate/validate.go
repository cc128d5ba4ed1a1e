// Package validate recomputes trust in analysis output from collected
// evidence. Everything the generative phases claim is treated as untrusted
// until it has been checked here; every change is recorded as a
// human-readable correction, never silently applied.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/internal/model"
)

// Validator applies the evidence rules to one analysis result.
type Validator struct {
	cfg config.ValidationConfig
}

// New creates a Validator.
func New(cfg config.ValidationConfig) *Validator {
	return &Validator{cfg: cfg}
}

var emailSyntaxRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Generic mailbox local parts that reach a shared inbox, not a person.
var genericMailboxes = map[string]struct{}{
	"info": {}, "contact": {}, "kontakt": {}, "mail": {}, "post": {},
	"office": {}, "admin": {}, "hello": {}, "hej": {}, "salg": {},
	"support": {}, "udlejning": {}, "reception": {},
}

// Validate applies the rule set in order and returns the cleaned result
// with the corrections made. Applying it to its own output changes
// nothing.
func (v *Validator) Validate(
	result model.AnalysisResult,
	evidence *model.EvidenceSet,
	ownership *model.OfficialOwnershipRecord,
	match *model.RegistryMatch,
) (model.AnalysisResult, []string) {
	var corrections []string

	cleaned := result
	cleaned.Contacts = make([]model.CandidateContact, 0, len(result.Contacts))

	for _, contact := range result.Contacts {
		c := contact
		label := contactLabel(c)

		// Rule 1: emails never observed in evidence are stripped.
		if c.Email != "" && !evidence.AllowsEmail(c.Email) {
			corrections = append(corrections,
				fmt.Sprintf("removed unverified email %q from %s (not in collected evidence)", c.Email, label))
			c.Email = ""
			if c.Confidence > v.cfg.UnlistedEmailCeiling {
				c.Confidence = v.cfg.UnlistedEmailCeiling
			}
		}

		// Rule 2: syntactically invalid emails are stripped.
		if c.Email != "" && !emailSyntaxRe.MatchString(c.Email) {
			corrections = append(corrections,
				fmt.Sprintf("removed malformed email %q from %s", c.Email, label))
			c.Email = ""
		}

		// Rule 3: names unseen in evidence are plausible but unverified.
		if c.Name != "" && !evidence.AllowsName(c.Name) && c.Confidence > v.cfg.UnverifiedCeiling {
			corrections = append(corrections,
				fmt.Sprintf("capped confidence of %s at %.2f (name not in collected evidence)", label, v.cfg.UnverifiedCeiling))
			c.Confidence = v.cfg.UnverifiedCeiling
		}

		// Rule 6: generic mailboxes reach a shared inbox, not the owner.
		if isGenericMailbox(c.Email) && c.Confidence > v.cfg.GenericEmailCeiling {
			corrections = append(corrections,
				fmt.Sprintf("capped confidence of %s at %.2f (generic mailbox)", label, v.cfg.GenericEmailCeiling))
			c.Confidence = v.cfg.GenericEmailCeiling
		}

		// Rule 7: a contact with neither name nor email is unreachable.
		if c.Name == "" && c.Email == "" {
			corrections = append(corrections,
				fmt.Sprintf("dropped contact from %s (no name and no email left)", c.Source))
			continue
		}

		c.ClampConfidence()
		cleaned.Contacts = append(cleaned.Contacts, c)
	}

	// Rule 4: the asserted owner must appear in the official record or the
	// register match.
	if cleaned.OwnerName != "" && cleaned.OwnerName != "unknown" &&
		!ownerSupported(cleaned.OwnerName, ownership, match) {
		corrections = append(corrections,
			fmt.Sprintf("reset owner %q to unknown (matches neither ownership record nor register entry)", cleaned.OwnerName))
		cleaned.OwnerName = "unknown"
	}

	// Rule 5: recompute the quality tier from what is actually left.
	tier := v.computeTier(cleaned, ownership, match)
	if tier != cleaned.QualityTier {
		corrections = append(corrections,
			fmt.Sprintf("quality tier corrected from %s to %s", cleaned.QualityTier, tier))
		cleaned.QualityTier = tier
	}

	// Rule 8: direct relevance first, then confidence descending.
	model.SortContacts(cleaned.Contacts)

	return cleaned, corrections
}

// computeTier derives the quality tier from evidence-backed facts only.
// High requires the ownership record, a register match, and at least one
// verified contact; a missing ownership record is low unconditionally.
func (v *Validator) computeTier(result model.AnalysisResult, ownership *model.OfficialOwnershipRecord, match *model.RegistryMatch) model.DataQualityTier {
	if ownership == nil {
		return model.TierLow
	}
	if match == nil {
		return model.TierMedium
	}
	if result.OwnerName == "" || result.OwnerName == "unknown" {
		return model.TierMedium
	}
	for _, c := range result.Contacts {
		if c.Email != "" && c.Confidence >= v.cfg.VerifiedConfidence {
			return model.TierHigh
		}
	}
	return model.TierMedium
}

// ownerSupported checks the asserted owner against the official parties
// and the matched register entry by the substring heuristic.
func ownerSupported(owner string, ownership *model.OfficialOwnershipRecord, match *model.RegistryMatch) bool {
	needle := strings.ToLower(strings.TrimSpace(owner))
	if ownership != nil {
		for _, o := range ownership.Owners {
			if nameOverlaps(needle, o.Name) {
				return true
			}
		}
		for _, a := range ownership.Administrators {
			if nameOverlaps(needle, a.Name) {
				return true
			}
		}
	}
	if match != nil && nameOverlaps(needle, match.Candidate.Name) {
		return true
	}
	return false
}

func nameOverlaps(needle, candidate string) bool {
	hay := strings.ToLower(strings.TrimSpace(candidate))
	if needle == "" || hay == "" {
		return false
	}
	return strings.Contains(hay, needle) || strings.Contains(needle, hay)
}

func isGenericMailbox(email string) bool {
	local, _, ok := strings.Cut(strings.ToLower(email), "@")
	if !ok {
		return false
	}
	_, generic := genericMailboxes[local]
	return generic
}

func contactLabel(c model.CandidateContact) string {
	if c.Name != "" {
		return fmt.Sprintf("contact %q", c.Name)
	}
	if c.Email != "" {
		return fmt.Sprintf("contact <%s>", c.Email)
	}
	return "unnamed contact"
}
