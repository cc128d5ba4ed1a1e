package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/internal/model"
)

func testValidationConfig() config.ValidationConfig {
	return config.ValidationConfig{
		UnlistedEmailCeiling: 0.1,
		UnverifiedCeiling:    0.4,
		GenericEmailCeiling:  0.2,
		VerifiedConfidence:   0.7,
	}
}

func testEvidence() *model.EvidenceSet {
	ev := model.NewEvidenceSet()
	ev.AddName("A/B Solsortevej 12", "ownership register owner")
	ev.AddName("Mette Larsen", "web: https://ejendomsadmin.dk")
	ev.AddEmail("ml@ejendomsadmin.dk", "web: https://ejendomsadmin.dk")
	ev.AddEmail("info@ejendomsadmin.dk", "web: https://ejendomsadmin.dk")
	return ev
}

func testOwnership() *model.OfficialOwnershipRecord {
	return &model.OfficialOwnershipRecord{
		BFENumber: 6037951,
		Owners:    []model.Owner{{Name: "A/B Solsortevej 12", IsPrimary: true}},
	}
}

func testMatch() *model.RegistryMatch {
	return &model.RegistryMatch{
		Candidate: model.RegistryCandidate{CVRNumber: 12345678, Name: "A/B Solsortevej 12"},
		Score:     85,
	}
}

func TestValidate_StripsUnlistedEmail(t *testing.T) {
	v := New(testValidationConfig())
	result := model.AnalysisResult{
		OwnerName:   "A/B Solsortevej 12",
		QualityTier: model.TierHigh,
		Contacts: []model.CandidateContact{{
			Name:       "Mette Larsen",
			Email:      "mette.larsen@gmail.com", // never observed
			Confidence: 0.9,
			Relevance:  model.RelevanceDirect,
		}},
	}

	cleaned, corrections := v.Validate(result, testEvidence(), testOwnership(), testMatch())

	require.Len(t, cleaned.Contacts, 1)
	assert.Empty(t, cleaned.Contacts[0].Email)
	assert.LessOrEqual(t, cleaned.Contacts[0].Confidence, 0.1)
	assert.NotEmpty(t, corrections)
	assert.Contains(t, corrections[0], "mette.larsen@gmail.com")
}

func TestValidate_StripsMalformedEmail(t *testing.T) {
	v := New(testValidationConfig())
	ev := testEvidence()
	ev.AddEmail("not-an-email@", "web: somewhere") // observed but malformed
	result := model.AnalysisResult{
		OwnerName: "A/B Solsortevej 12",
		Contacts: []model.CandidateContact{{
			Name:       "Mette Larsen",
			Email:      "not-an-email@",
			Confidence: 0.8,
		}},
	}

	cleaned, corrections := v.Validate(result, ev, testOwnership(), testMatch())

	require.Len(t, cleaned.Contacts, 1)
	assert.Empty(t, cleaned.Contacts[0].Email)
	assert.NotEmpty(t, corrections)
}

func TestValidate_CapsUnverifiedName(t *testing.T) {
	v := New(testValidationConfig())
	result := model.AnalysisResult{
		OwnerName: "A/B Solsortevej 12",
		Contacts: []model.CandidateContact{{
			Name:       "Jens Ukendt",
			Email:      "ml@ejendomsadmin.dk",
			Confidence: 0.9,
		}},
	}

	cleaned, _ := v.Validate(result, testEvidence(), testOwnership(), testMatch())

	require.Len(t, cleaned.Contacts, 1)
	assert.InDelta(t, 0.4, cleaned.Contacts[0].Confidence, 0.001)
}

func TestValidate_ResetsUnsupportedOwner(t *testing.T) {
	v := New(testValidationConfig())
	result := model.AnalysisResult{
		OwnerName:   "Vestpark Holding ApS", // supported by nothing
		QualityTier: model.TierHigh,
	}

	cleaned, corrections := v.Validate(result, testEvidence(), testOwnership(), testMatch())

	assert.Equal(t, "unknown", cleaned.OwnerName)
	assert.NotEqual(t, model.TierHigh, cleaned.QualityTier)
	assert.NotEmpty(t, corrections)
}

func TestValidate_TierRules(t *testing.T) {
	v := New(testValidationConfig())
	verified := model.CandidateContact{
		Name:       "Mette Larsen",
		Email:      "ml@ejendomsadmin.dk",
		Confidence: 0.85,
	}

	t.Run("no ownership record is low", func(t *testing.T) {
		result := model.AnalysisResult{OwnerName: "unknown", QualityTier: model.TierHigh, Contacts: []model.CandidateContact{verified}}
		cleaned, _ := v.Validate(result, testEvidence(), nil, testMatch())
		assert.Equal(t, model.TierLow, cleaned.QualityTier)
	})

	t.Run("no register match is medium", func(t *testing.T) {
		result := model.AnalysisResult{OwnerName: "A/B Solsortevej 12", QualityTier: model.TierHigh, Contacts: []model.CandidateContact{verified}}
		cleaned, _ := v.Validate(result, testEvidence(), testOwnership(), nil)
		assert.Equal(t, model.TierMedium, cleaned.QualityTier)
	})

	t.Run("no verified contact is medium", func(t *testing.T) {
		result := model.AnalysisResult{OwnerName: "A/B Solsortevej 12", QualityTier: model.TierHigh}
		cleaned, _ := v.Validate(result, testEvidence(), testOwnership(), testMatch())
		assert.Equal(t, model.TierMedium, cleaned.QualityTier)
	})

	t.Run("all legs present is high", func(t *testing.T) {
		result := model.AnalysisResult{OwnerName: "A/B Solsortevej 12", QualityTier: model.TierLow, Contacts: []model.CandidateContact{verified}}
		cleaned, _ := v.Validate(result, testEvidence(), testOwnership(), testMatch())
		assert.Equal(t, model.TierHigh, cleaned.QualityTier)
	})
}

func TestValidate_GenericMailboxCapped(t *testing.T) {
	v := New(testValidationConfig())
	result := model.AnalysisResult{
		OwnerName: "A/B Solsortevej 12",
		Contacts: []model.CandidateContact{{
			Email:      "info@ejendomsadmin.dk",
			Confidence: 0.9,
		}},
	}

	cleaned, _ := v.Validate(result, testEvidence(), testOwnership(), testMatch())

	require.Len(t, cleaned.Contacts, 1)
	assert.InDelta(t, 0.2, cleaned.Contacts[0].Confidence, 0.001)
}

func TestValidate_DropsEmptyContacts(t *testing.T) {
	v := New(testValidationConfig())
	result := model.AnalysisResult{
		OwnerName: "A/B Solsortevej 12",
		Contacts: []model.CandidateContact{
			{Email: "stripped@unknown.dk", Confidence: 0.9, Source: "hallucinated"},
			{Name: "Mette Larsen", Email: "ml@ejendomsadmin.dk", Confidence: 0.8},
		},
	}

	cleaned, corrections := v.Validate(result, testEvidence(), testOwnership(), testMatch())

	// The first contact loses its unverified email and has nothing left.
	require.Len(t, cleaned.Contacts, 1)
	assert.Equal(t, "Mette Larsen", cleaned.Contacts[0].Name)
	assert.NotEmpty(t, corrections)
}

func TestValidate_FinalOrdering(t *testing.T) {
	v := New(testValidationConfig())
	result := model.AnalysisResult{
		OwnerName: "A/B Solsortevej 12",
		Contacts: []model.CandidateContact{
			{Name: "Mette Larsen", Email: "ml@ejendomsadmin.dk", Confidence: 0.5, Relevance: model.RelevanceIndirect},
			{Name: "A/B Solsortevej 12", Email: "info@ejendomsadmin.dk", Confidence: 0.2, Relevance: model.RelevanceDirect},
		},
	}

	cleaned, _ := v.Validate(result, testEvidence(), testOwnership(), testMatch())

	require.Len(t, cleaned.Contacts, 2)
	assert.Equal(t, model.RelevanceDirect, cleaned.Contacts[0].Relevance)
}

func TestValidate_Idempotent(t *testing.T) {
	v := New(testValidationConfig())
	result := model.AnalysisResult{
		OwnerName:   "Vestpark Holding ApS",
		QualityTier: model.TierHigh,
		Contacts: []model.CandidateContact{
			{Name: "Jens Ukendt", Email: "jens@gmail.com", Confidence: 0.95},
			{Name: "Mette Larsen", Email: "ml@ejendomsadmin.dk", Confidence: 0.85},
			{Email: "info@ejendomsadmin.dk", Confidence: 0.9},
		},
	}

	once, _ := v.Validate(result, testEvidence(), testOwnership(), testMatch())
	twice, corrections := v.Validate(once, testEvidence(), testOwnership(), testMatch())

	assert.Equal(t, once, twice)
	assert.Empty(t, corrections)
}
