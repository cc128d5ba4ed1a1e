// Package evidence assembles the per-property evidence set and the indexed
// contact-candidate list from official records, register entries, and
// scraped pages. Analysis may only rank what is collected here; it cannot
// add to it.
package evidence

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/model"
)

// Collector accumulates evidence for a single property run.
type Collector struct {
	set      *model.EvidenceSet
	contacts []model.CandidateContact
	seen     map[string]struct{}
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		set:  model.NewEvidenceSet(),
		seen: make(map[string]struct{}),
	}
}

// AddOfficialRecord collects the owners and administrators from the
// ownership register. Official parties arrive without contact details.
func (c *Collector) AddOfficialRecord(rec *model.OfficialOwnershipRecord) {
	if rec == nil {
		return
	}
	for _, owner := range rec.Owners {
		c.set.AddName(owner.Name, "ownership register owner")
		c.addContact(model.CandidateContact{
			Name:   owner.Name,
			Role:   "owner",
			Source: "ownership register",
		})
	}
	for _, admin := range rec.Administrators {
		c.set.AddName(admin.Name, "ownership register administrator")
		c.addContact(model.CandidateContact{
			Name:   admin.Name,
			Role:   "administrator",
			Source: "ownership register",
		})
	}
}

// AddKnownContact collects a contact already on file in the CRM record.
func (c *Collector) AddKnownContact(name, email string) {
	if email == "" {
		return
	}
	if name != "" {
		c.set.AddName(name, "crm record")
	}
	c.set.AddEmail(email, "crm record")
	c.addContact(model.CandidateContact{
		Name:   name,
		Email:  email,
		Source: "crm record",
	})
}

// AddRegistryCandidate collects the matched business-register entry's
// name, listed owners, and contact fields.
func (c *Collector) AddRegistryCandidate(cand *model.RegistryCandidate) {
	if cand == nil {
		return
	}
	source := fmt.Sprintf("business register (CVR %d)", cand.CVRNumber)
	c.set.AddName(cand.Name, source)
	if cand.Email != "" {
		c.set.AddEmail(cand.Email, source)
	}
	c.addContact(model.CandidateContact{
		Name:   cand.Name,
		Email:  strings.ToLower(cand.Email),
		Phone:  cand.Phone,
		Role:   "registered entity",
		Source: source,
	})
	for _, owner := range cand.Owners {
		c.set.AddName(owner, source)
		c.addContact(model.CandidateContact{
			Name:   owner,
			Role:   "registered owner",
			Source: source,
		})
	}
}

// AddPage extracts emails, phone numbers, and nearby names from a scraped
// page and collects them.
func (c *Collector) AddPage(page model.WebPage) {
	source := "web: " + page.URL
	emails := extractEmails(page.Markdown)
	for _, email := range emails {
		c.set.AddEmail(email, source)
	}
	// Pair each email with a name from the same line where possible.
	lines := strings.Split(page.Markdown, "\n")
	paired := make(map[string]struct{})
	for _, line := range lines {
		for _, email := range extractEmails(line) {
			name := nameNearEmail(line, email)
			if name != "" {
				c.set.AddName(name, source)
			}
			phones := extractPhones(line)
			phone := ""
			if len(phones) > 0 {
				phone = phones[0]
			}
			c.addContact(model.CandidateContact{
				Name:   name,
				Email:  email,
				Phone:  phone,
				Source: source,
			})
			paired[email] = struct{}{}
		}
	}
	for _, email := range emails {
		if _, ok := paired[email]; !ok {
			c.addContact(model.CandidateContact{Email: email, Source: source})
		}
	}

	zap.L().Debug("evidence: page collected",
		zap.String("url", page.URL),
		zap.Int("emails", len(emails)),
	)
}

// addContact appends a contact candidate unless an identical name+email
// pair was already collected.
func (c *Collector) addContact(contact model.CandidateContact) {
	if contact.Name == "" && contact.Email == "" {
		return
	}
	key := strings.ToLower(contact.Name) + "|" + strings.ToLower(contact.Email)
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.contacts = append(c.contacts, contact)
}

// Evidence returns the accumulated evidence set.
func (c *Collector) Evidence() *model.EvidenceSet { return c.set }

// Contacts returns the indexed contact-candidate list in collection order.
// The index positions are what the ranking phase refers back to.
func (c *Collector) Contacts() []model.CandidateContact { return c.contacts }
