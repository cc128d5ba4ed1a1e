// Package model defines the core domain types for the ownership resolution pipeline.
package model

// PropertyRecord is the immutable input to one resolution run.
type PropertyRecord struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	PostalCode   string `json:"postal_code"`
	City         string `json:"city"`
	SalesforceID string `json:"salesforce_id,omitempty"`
	KnownOwner   string `json:"known_owner,omitempty"`
	KnownEmail   string `json:"known_email,omitempty"`
}

// Owner is a single owner or administrator on an official ownership record.
type Owner struct {
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
}

// OfficialOwnershipRecord holds what the ownership register says about a
// property. Produced once by the resolver and read-only thereafter.
type OfficialOwnershipRecord struct {
	BFENumber      int64   `json:"bfe_number"`
	Owners         []Owner `json:"owners"`
	Administrators []Owner `json:"administrators"`
	OwnershipCode  int     `json:"ownership_code"`
	OwnershipText  string  `json:"ownership_text"`
	Municipality   string  `json:"municipality"`
}

// PrimaryOwner returns the primary owner name, falling back to the first
// owner, then the first administrator. Empty string when the record names
// nobody.
func (r *OfficialOwnershipRecord) PrimaryOwner() string {
	for _, o := range r.Owners {
		if o.IsPrimary {
			return o.Name
		}
	}
	if len(r.Owners) > 0 {
		return r.Owners[0].Name
	}
	if len(r.Administrators) > 0 {
		return r.Administrators[0].Name
	}
	return ""
}

// OwnershipType is the canonical category describing who legally holds a
// property. Derived deterministically from the official record, never asked
// of the generative model.
type OwnershipType string

const (
	OwnershipCompany            OwnershipType = "company"
	OwnershipHousingCooperative OwnershipType = "housing_cooperative"
	OwnershipOwnersAssociation  OwnershipType = "owners_association"
	OwnershipPrivateIndividual  OwnershipType = "private_individual"
	OwnershipSocialHousing      OwnershipType = "social_housing"
	OwnershipGovernment         OwnershipType = "government"
	OwnershipUnknown            OwnershipType = "unknown"
)
