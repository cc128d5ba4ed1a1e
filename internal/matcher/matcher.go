// Package matcher scores business-register candidates against a property's
// expected owner name and address. A wrong match is worse than no match:
// every candidate below the threshold is discarded, and scores are never
// upgraded past what the register evidence supports.
package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/internal/model"
	"github.com/adnord/ownership-cli/pkg/cvr"
	"github.com/adnord/ownership-cli/pkg/jina"
)

// Query describes one registry match attempt.
type Query struct {
	Name         string
	Street       string
	PostalCode   string
	Municipality string
	// RequireAddressMatch demands the winning candidate be registered at
	// the property address (street or postal component must score).
	RequireAddressMatch bool
	// MaxCandidates bounds how many register hits are scored per variant.
	MaxCandidates int
}

// Matcher scores business-register candidates for a property.
type Matcher struct {
	cvr  cvr.Client
	jina jina.Client
	cfg  config.MatchConfig
}

// New creates a Matcher. The jina client powers the directory-scrape
// fallback and may be nil to disable it.
func New(cvrClient cvr.Client, jinaClient jina.Client, cfg config.MatchConfig) *Matcher {
	return &Matcher{cvr: cvrClient, jina: jinaClient, cfg: cfg}
}

// MatchByNumber looks up a register entry by its CVR number. The number is
// a trusted identifier, so the result carries a fixed score of 100 and no
// rubric is applied. Returns (nil, nil) when the number is unknown.
func (m *Matcher) MatchByNumber(ctx context.Context, cvrNumber int) (*model.RegistryMatch, error) {
	company, err := m.cvr.GetByNumber(ctx, cvrNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: lookup cvr %d", cvrNumber)
	}
	if company == nil {
		return nil, nil
	}
	return &model.RegistryMatch{
		Candidate: toCandidate(company),
		Score:     100,
		Reasons:   []string{fmt.Sprintf("trusted register number lookup (CVR %d)", cvrNumber)},
	}, nil
}

// MatchByName searches the register for the query name (plus cooperative
// naming variants), scores every candidate against the expected address,
// and returns the best candidate at or above the threshold. Returns
// (nil, nil) when nothing clears it; the losing reasons are logged for
// audit, never attached to the property.
func (m *Matcher) MatchByName(ctx context.Context, q Query) (*model.RegistryMatch, error) {
	maxCandidates := q.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = m.cfg.MaxCandidates
	}

	var best *model.RegistryMatch
	for _, variant := range nameVariants(q.Name) {
		companies, err := m.cvr.SearchByName(ctx, variant)
		if err != nil {
			return nil, eris.Wrapf(err, "matcher: search %q", variant)
		}
		if len(companies) > maxCandidates {
			companies = companies[:maxCandidates]
		}

		for i := range companies {
			candidate := &companies[i]
			score, reasons, addressScored := m.score(candidate, q)
			if q.RequireAddressMatch && !addressScored {
				zap.L().Debug("matcher: candidate rejected, no address match",
					zap.String("candidate", candidate.Name),
					zap.Int("score", score),
				)
				continue
			}
			if score < m.cfg.Threshold {
				zap.L().Debug("matcher: candidate below threshold",
					zap.String("candidate", candidate.Name),
					zap.Int("score", score),
					zap.Strings("reasons", reasons),
				)
				continue
			}
			if best == nil || score > best.Score {
				best = &model.RegistryMatch{
					Candidate: toCandidate(candidate),
					Score:     score,
					Reasons:   reasons,
				}
			}
		}
	}

	if best == nil && m.jina != nil {
		return m.directoryFallback(ctx, q)
	}
	return best, nil
}

// score applies the weighted rubric to one candidate. The returned bool
// reports whether any address component contributed to the score.
func (m *Matcher) score(c *cvr.Company, q Query) (int, []string, bool) {
	var (
		score         int
		reasons       []string
		addressScored bool
	)

	queryNorm := normalizeName(q.Name)
	candNorm := normalizeName(c.Name)

	switch {
	case queryNorm != "" && queryNorm == candNorm:
		score += m.cfg.ExactName
		reasons = append(reasons, "exact name match")
	case queryNorm != "" && (strings.Contains(candNorm, queryNorm) || strings.Contains(queryNorm, candNorm)):
		score += m.cfg.SubstringName
		reasons = append(reasons, "name substring match")
	default:
		overlap := tokenOverlap(tokens(queryNorm), tokens(candNorm))
		if overlap > 0 {
			pts := int(overlap * float64(m.cfg.TokenOverlap))
			score += pts
			reasons = append(reasons, fmt.Sprintf("token overlap %.0f%%", overlap*100))
		}
	}

	if q.PostalCode != "" && q.PostalCode == c.PostalCode {
		score += m.cfg.PostalMatch
		reasons = append(reasons, "postal code match")
		addressScored = true
	}

	if q.Street != "" {
		streetNorm := normalizeName(q.Street)
		addrNorm := normalizeName(c.Address)
		if streetNorm != "" && strings.Contains(addrNorm, streetNorm) {
			score += m.cfg.StreetMatch
			reasons = append(reasons, "street name match")
			addressScored = true
		}
	}

	if q.Municipality != "" {
		muniNorm := normalizeName(q.Municipality)
		cityNorm := normalizeName(c.City)
		if cityNorm != "" && (strings.Contains(muniNorm, cityNorm) || strings.Contains(cityNorm, muniNorm) || isMunicipalityAlias(muniNorm, cityNorm)) {
			score += m.cfg.Municipality
			reasons = append(reasons, "municipality match")
		}
	}

	if regionMismatch(q.PostalCode, c.PostalCode) {
		score -= m.cfg.RegionMismatch
		reasons = append(reasons, "region mismatch penalty")
	}

	if hasDomainKeyword(c.Name) {
		score += m.cfg.DomainKeyword
		reasons = append(reasons, "property-domain keyword in name")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, reasons, addressScored
}

// nameVariants expands cooperative-style names into the spellings the
// register uses interchangeably (A/B prefix vs. the spelled-out form).
func nameVariants(name string) []string {
	variants := []string{name}
	lower := strings.ToLower(name)

	switch {
	case strings.HasPrefix(lower, "a/b "):
		variants = append(variants, "Andelsboligforeningen "+name[4:], "AB "+name[4:])
	case strings.HasPrefix(lower, "andelsboligforeningen "):
		variants = append(variants, "A/B "+name[len("andelsboligforeningen "):])
	case strings.HasPrefix(lower, "e/f "):
		variants = append(variants, "Ejerforeningen "+name[4:])
	case strings.HasPrefix(lower, "ejerforeningen "):
		variants = append(variants, "E/F "+name[len("ejerforeningen "):])
	}
	return variants
}

// regionMismatch reports whether two Danish postal codes sit in different
// regions (leading digit differs).
func regionMismatch(expected, actual string) bool {
	if len(expected) == 0 || len(actual) == 0 {
		return false
	}
	return expected[0] != actual[0]
}

// Copenhagen and Frederiksberg addresses commonly carry a district city
// name that differs from the municipality.
var municipalityAliases = map[string][]string{
	"koebenhavn": {"koebenhavn k", "koebenhavn v", "koebenhavn n", "koebenhavn oe", "koebenhavn s", "koebenhavn nv", "koebenhavn sv", "valby", "vanloese", "broenshoej"},
	"aarhus":     {"aarhus c", "aarhus n", "aarhus v", "viby j", "aabyhoej"},
}

func isMunicipalityAlias(municipality, city string) bool {
	for _, alias := range municipalityAliases[municipality] {
		if alias == city {
			return true
		}
	}
	return false
}

var domainKeywords = []string{"ejendom", "bolig", "invest", "holding", "byg"}

func hasDomainKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var cvrNumberRe = regexp.MustCompile(`(?i)cvr(?:-nr\.?|-nummer|[\s.:])*\s*(\d{8})`)

// directoryFallback searches a public company directory for the owner name
// and extracts a CVR number from the result snippets. The resulting entry
// still has to clear the rubric threshold against the expected address.
func (m *Matcher) directoryFallback(ctx context.Context, q Query) (*model.RegistryMatch, error) {
	resp, err := m.jina.Search(ctx, q.Name, jina.WithSiteFilter("proff.dk"))
	if err != nil {
		zap.L().Warn("matcher: directory search failed", zap.Error(err))
		return nil, nil
	}

	for _, result := range resp.Data {
		match := cvrNumberRe.FindStringSubmatch(result.Title + " " + result.Content)
		if match == nil {
			continue
		}
		number, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		company, err := m.cvr.GetByNumber(ctx, number)
		if err != nil || company == nil {
			continue
		}

		score, reasons, addressScored := m.score(company, q)
		if q.RequireAddressMatch && !addressScored {
			continue
		}
		if score < m.cfg.Threshold {
			continue
		}
		reasons = append(reasons, "found via directory fallback")
		return &model.RegistryMatch{
			Candidate: toCandidate(company),
			Score:     score,
			Reasons:   reasons,
		}, nil
	}
	return nil, nil
}

// toCandidate converts a register entry into the pipeline's candidate shape.
func toCandidate(c *cvr.Company) model.RegistryCandidate {
	status := "active"
	if !c.Active() {
		status = "ceased"
	}
	owners := make([]string, 0, len(c.Owners))
	for _, o := range c.Owners {
		owners = append(owners, o.Name)
	}
	return model.RegistryCandidate{
		CVRNumber:  c.CVRNumber,
		Name:       c.Name,
		Address:    c.Address,
		PostalCode: c.PostalCode,
		City:       c.City,
		Status:     status,
		Owners:     owners,
		Email:      c.Email,
		Phone:      c.Phone,
	}
}
