// Package resolver turns a postal address into the property's cadastral
// identifier (BFE number) and its official ownership record, through an
// ordered chain of register queries with a web-search fallback.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/model"
	"github.com/adnord/ownership-cli/pkg/dawa"
	"github.com/adnord/ownership-cli/pkg/ejf"
	"github.com/adnord/ownership-cli/pkg/jina"
)

// Resolver resolves addresses to official ownership records.
type Resolver struct {
	dawa dawa.Client
	ejf  ejf.Client
	jina jina.Client
}

// New creates a Resolver. The jina client powers the web-search fallback
// and may be nil to disable it.
func New(dawaClient dawa.Client, ejfClient ejf.Client, jinaClient jina.Client) *Resolver {
	return &Resolver{dawa: dawaClient, ejf: ejfClient, jina: jinaClient}
}

// Resolve walks the fallback chain for one address. Returns (nil, nil)
// when no identifier can be found anywhere: downstream stages treat a
// missing record as expected input, not as failure. When the identifier
// resolves but the ownership register has no record, the result carries
// the identifier and municipality only.
func (r *Resolver) Resolve(ctx context.Context, address, postalCode, city string) (*model.OfficialOwnershipRecord, error) {
	bfe, municipality, err := r.findBFE(ctx, address, postalCode, city)
	if err != nil {
		return nil, err
	}
	if bfe == 0 {
		zap.L().Info("resolver: no identifier found",
			zap.String("address", address),
			zap.String("postal_code", postalCode),
		)
		return nil, nil
	}

	record, err := r.ejf.GetOwnership(ctx, bfe)
	if err != nil {
		return nil, eris.Wrapf(err, "resolver: ownership lookup bfe %d", bfe)
	}
	if record == nil {
		zap.L().Info("resolver: identifier has no ownership record",
			zap.Int64("bfe", bfe),
		)
		return &model.OfficialOwnershipRecord{
			BFENumber:    bfe,
			Municipality: municipality,
		}, nil
	}

	result := &model.OfficialOwnershipRecord{
		BFENumber:     record.BFENumber,
		OwnershipCode: record.OwnershipCode,
		OwnershipText: record.OwnershipText,
		Municipality:  record.Municipality,
	}
	if result.Municipality == "" {
		result.Municipality = municipality
	}
	for _, p := range record.Owners {
		result.Owners = append(result.Owners, model.Owner{Name: p.Name, IsPrimary: p.IsPrimary})
	}
	for _, p := range record.Administrators {
		result.Administrators = append(result.Administrators, model.Owner{Name: p.Name, IsPrimary: p.IsPrimary})
	}
	return result, nil
}

// findBFE tries each resolution step in order and returns the first hit.
func (r *Resolver) findBFE(ctx context.Context, address, postalCode, city string) (int64, string, error) {
	// Step 1: structured query.
	street, houseNumber := splitAddress(address)
	if street != "" && houseNumber != "" {
		addrs, err := r.dawa.StructuredSearch(ctx, street, houseNumber, postalCode)
		if err != nil {
			return 0, "", eris.Wrap(err, "resolver: structured search")
		}
		if bfe, muni, ok := r.bfeFromAddresses(ctx, addrs); ok {
			return bfe, muni, nil
		}
	}

	// Step 2: fuzzy full-string query.
	full := strings.TrimSpace(fmt.Sprintf("%s, %s %s", address, postalCode, city))
	addrs, err := r.dawa.FuzzySearch(ctx, full)
	if err != nil {
		return 0, "", eris.Wrap(err, "resolver: fuzzy search")
	}
	if bfe, muni, ok := r.bfeFromAddresses(ctx, addrs); ok {
		return bfe, muni, nil
	}

	// Step 3: address-only query, tolerant of a mislabeled postal or city.
	addrs, err = r.dawa.FuzzySearch(ctx, address)
	if err != nil {
		return 0, "", eris.Wrap(err, "resolver: washed search")
	}
	if bfe, muni, ok := r.bfeFromAddresses(ctx, addrs); ok {
		return bfe, muni, nil
	}

	// Step 5: public web search for the identifier. Step 4, parcel
	// derivation, happens inside bfeFromAddresses whenever an address
	// carries a parcel reference without a BFE number.
	if r.jina != nil {
		if bfe := r.searchBFE(ctx, address, postalCode, city); bfe != 0 {
			return bfe, "", nil
		}
	}

	return 0, "", nil
}

// bfeFromAddresses scans resolved addresses for a usable identifier. An
// address carrying a parcel reference without an identifier gets a parcel
// lookup (step 4 of the chain).
func (r *Resolver) bfeFromAddresses(ctx context.Context, addrs []dawa.Address) (int64, string, bool) {
	for _, addr := range addrs {
		if addr.Jordstykke == nil {
			continue
		}
		if addr.Jordstykke.BFENumber != 0 {
			return addr.Jordstykke.BFENumber, addr.Municipality.Name, true
		}
		if addr.Jordstykke.EjerlavCode != 0 && addr.Jordstykke.ParcelNumber != "" {
			parcel, err := r.dawa.Parcel(ctx, addr.Jordstykke.EjerlavCode, addr.Jordstykke.ParcelNumber)
			if err != nil {
				zap.L().Debug("resolver: parcel lookup failed",
					zap.Int("ejerlav", addr.Jordstykke.EjerlavCode),
					zap.String("parcel", addr.Jordstykke.ParcelNumber),
					zap.Error(err),
				)
				continue
			}
			if parcel != nil && parcel.BFENumber != 0 {
				return parcel.BFENumber, addr.Municipality.Name, true
			}
		}
	}
	return 0, "", false
}

// BFE numbers embedded in registry URLs or stated in search snippets.
var bfePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bfe[-\s]?(?:nr\.?|nummer)?[\s.:]*(\d{6,9})`),
	regexp.MustCompile(`(?i)boligejer\.dk/\S*bfe=(\d{6,9})`),
	regexp.MustCompile(`(?i)ois\.dk/\S*bfe=(\d{6,9})`),
}

// searchBFE looks for the identifier in public web search results.
func (r *Resolver) searchBFE(ctx context.Context, address, postalCode, city string) int64 {
	query := fmt.Sprintf("%s %s %s BFE-nummer", address, postalCode, city)
	resp, err := r.jina.Search(ctx, query)
	if err != nil {
		zap.L().Warn("resolver: identifier web search failed", zap.Error(err))
		return 0
	}

	for _, result := range resp.Data {
		text := result.URL + " " + result.Title + " " + result.Content
		for _, re := range bfePatterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			bfe, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			zap.L().Info("resolver: identifier found via web search",
				zap.Int64("bfe", bfe),
				zap.String("url", result.URL),
			)
			return bfe
		}
	}
	return 0
}

var houseNumberRe = regexp.MustCompile(`^(.*?)\s+(\d+[A-Za-z]?(?:-\d+[A-Za-z]?)?)\s*$`)

// splitAddress splits "Solsortevej 12A" into street and house number.
// Returns empty strings when the address has no trailing number.
func splitAddress(address string) (street, houseNumber string) {
	m := houseNumberRe.FindStringSubmatch(strings.TrimSpace(address))
	if m == nil {
		return "", ""
	}
	return strings.TrimSpace(m[1]), m[2]
}
