package classify

import "github.com/adnord/ownership-cli/internal/model"

// SearchStrategy decides how the registry matcher approaches one property.
type SearchStrategy struct {
	// ShouldSearchRegistry is false for owner types that must never be
	// matched against an unrelated company (persons, public bodies).
	ShouldSearchRegistry bool
	// RequireAddressMatch demands the candidate be registered at the
	// property address itself (cooperatives and associations are).
	RequireAddressMatch bool
	// AcceptPrivateOwner allows a private person as the final owner.
	AcceptPrivateOwner bool
	// MaxCandidates bounds how many registry candidates are scored.
	MaxCandidates int
}

// StrategyFor returns the registry search strategy for an ownership type.
func StrategyFor(typ model.OwnershipType) SearchStrategy {
	switch typ {
	case model.OwnershipPrivateIndividual:
		return SearchStrategy{ShouldSearchRegistry: false, AcceptPrivateOwner: true}
	case model.OwnershipGovernment:
		return SearchStrategy{ShouldSearchRegistry: false}
	case model.OwnershipHousingCooperative, model.OwnershipOwnersAssociation:
		return SearchStrategy{
			ShouldSearchRegistry: true,
			RequireAddressMatch:  true,
			MaxCandidates:        5,
		}
	case model.OwnershipCompany, model.OwnershipSocialHousing:
		return SearchStrategy{
			ShouldSearchRegistry: true,
			MaxCandidates:        8,
		}
	default:
		// Unknown owners get a cautious search: head office may differ,
		// but fewer candidates limits wrong-match exposure.
		return SearchStrategy{
			ShouldSearchRegistry: true,
			MaxCandidates:        5,
		}
	}
}
