package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/pkg/cvr"
	"github.com/adnord/ownership-cli/pkg/jina"
)

// mockCVR implements cvr.Client for testing.
type mockCVR struct {
	searchResults map[string][]cvr.Company
	byNumber      map[int]*cvr.Company
	searchErr     error
}

func (m *mockCVR) SearchByName(_ context.Context, name string) ([]cvr.Company, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchResults[name], nil
}

func (m *mockCVR) GetByNumber(_ context.Context, n int) (*cvr.Company, error) {
	return m.byNumber[n], nil
}

// mockJinaSearch implements jina.Client with a canned search response.
type mockJinaSearch struct {
	resp *jina.SearchResponse
	err  error
}

func (m *mockJinaSearch) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJinaSearch) Search(_ context.Context, _ string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	return m.resp, m.err
}

func testMatchConfig() config.MatchConfig {
	return config.MatchConfig{
		ExactName:      40,
		SubstringName:  30,
		TokenOverlap:   25,
		PostalMatch:    15,
		StreetMatch:    20,
		Municipality:   15,
		RegionMismatch: 20,
		DomainKeyword:  10,
		Threshold:      60,
		MaxCandidates:  8,
	}
}

func TestMatchByNumber_Trusted(t *testing.T) {
	reg := &mockCVR{byNumber: map[int]*cvr.Company{
		12345678: {CVRNumber: 12345678, Name: "Nordbo Ejendomme A/S", PostalCode: "2100"},
	}}
	m := New(reg, nil, testMatchConfig())

	match, err := m.MatchByNumber(context.Background(), 12345678)

	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 100, match.Score)
	assert.Equal(t, "Nordbo Ejendomme A/S", match.Candidate.Name)
}

func TestMatchByNumber_Unknown(t *testing.T) {
	m := New(&mockCVR{}, nil, testMatchConfig())

	match, err := m.MatchByNumber(context.Background(), 99999999)

	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMatchByName_ExactWithAddress(t *testing.T) {
	reg := &mockCVR{searchResults: map[string][]cvr.Company{
		"Nordbo Ejendomme A/S": {{
			CVRNumber:  12345678,
			Name:       "Nordbo Ejendomme A/S",
			Address:    "Solsortevej 12",
			PostalCode: "2100",
			City:       "København Ø",
		}},
	}}
	m := New(reg, nil, testMatchConfig())

	match, err := m.MatchByName(context.Background(), Query{
		Name:         "Nordbo Ejendomme A/S",
		Street:       "Solsortevej",
		PostalCode:   "2100",
		Municipality: "København",
	})

	require.NoError(t, err)
	require.NotNil(t, match)
	// exact 40 + postal 15 + street 20 + municipality alias 15 + keyword 10 = 100
	assert.Equal(t, 100, match.Score)
	assert.Contains(t, match.Reasons, "exact name match")
	assert.Contains(t, match.Reasons, "postal code match")
	assert.Contains(t, match.Reasons, "street name match")
	assert.Contains(t, match.Reasons, "municipality match")
}

func TestMatchByName_BelowThreshold(t *testing.T) {
	reg := &mockCVR{searchResults: map[string][]cvr.Company{
		"Nordbo Ejendomme A/S": {{
			CVRNumber:  87654321,
			Name:       "Sydhavn Transport",
			Address:    "Havnegade 3",
			PostalCode: "8000",
			City:       "Aarhus C",
		}},
	}}
	m := New(reg, nil, testMatchConfig())

	match, err := m.MatchByName(context.Background(), Query{
		Name:       "Nordbo Ejendomme A/S",
		PostalCode: "2100",
	})

	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMatchByName_RegionMismatchPenalty(t *testing.T) {
	m := New(&mockCVR{}, nil, testMatchConfig())

	// Exact name but registered in the wrong end of the country and no
	// address component: 40 + 10 - 20 = 30, below threshold.
	score, reasons, _ := m.score(&cvr.Company{
		Name:       "Nordbo Ejendomme A/S",
		PostalCode: "8000",
	}, Query{Name: "Nordbo Ejendomme A/S", PostalCode: "2100"})

	assert.Equal(t, 30, score)
	assert.Contains(t, reasons, "region mismatch penalty")
}

func TestMatchByName_RequireAddressMatch(t *testing.T) {
	reg := &mockCVR{searchResults: map[string][]cvr.Company{
		"A/B Solsortevej 12": {{
			CVRNumber:  11223344,
			Name:       "A/B Solsortevej 12",
			Address:    "Hovedkontoret, Anden Vej 9",
			PostalCode: "2200",
			City:       "København N",
		}},
	}}
	m := New(reg, nil, testMatchConfig())

	// Exact name, but a cooperative must be registered at the property.
	match, err := m.MatchByName(context.Background(), Query{
		Name:                "A/B Solsortevej 12",
		Street:              "Solsortevej",
		PostalCode:          "2100",
		RequireAddressMatch: true,
	})

	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMatchByName_CooperativeVariant(t *testing.T) {
	reg := &mockCVR{searchResults: map[string][]cvr.Company{
		"Andelsboligforeningen Solsortevej 12": {{
			CVRNumber:  11223344,
			Name:       "Andelsboligforeningen Solsortevej 12",
			Address:    "Solsortevej 12",
			PostalCode: "2100",
			City:       "København Ø",
		}},
	}}
	m := New(reg, nil, testMatchConfig())

	match, err := m.MatchByName(context.Background(), Query{
		Name:                "A/B Solsortevej 12",
		Street:              "Solsortevej",
		PostalCode:          "2100",
		RequireAddressMatch: true,
	})

	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 11223344, match.Candidate.CVRNumber)
}

func TestMatchByName_BestVariantWins(t *testing.T) {
	reg := &mockCVR{searchResults: map[string][]cvr.Company{
		"E/F Strandvejen 40": {{
			CVRNumber:  1,
			Name:       "E/F Strandvejen 40",
			Address:    "Strandvejen 40",
			PostalCode: "2900",
		}},
		"Ejerforeningen Strandvejen 40": {{
			CVRNumber:  2,
			Name:       "Ejerforeningen Strandvejen 40",
			Address:    "Anden Vej 1",
			PostalCode: "2900",
		}},
	}}
	m := New(reg, nil, testMatchConfig())

	match, err := m.MatchByName(context.Background(), Query{
		Name:       "E/F Strandvejen 40",
		Street:     "Strandvejen",
		PostalCode: "2900",
	})

	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 1, match.Candidate.CVRNumber)
}

func TestMatchByName_DirectoryFallback(t *testing.T) {
	reg := &mockCVR{
		byNumber: map[int]*cvr.Company{
			55667788: {
				CVRNumber:  55667788,
				Name:       "Vestpark Ejendomme ApS",
				Address:    "Vestparken 2",
				PostalCode: "7100",
				City:       "Vejle",
			},
		},
	}
	search := &mockJinaSearch{resp: &jina.SearchResponse{
		Code: 200,
		Data: []jina.SearchResult{{
			Title:   "Vestpark Ejendomme ApS - proff.dk",
			URL:     "https://proff.dk/firma/vestpark-ejendomme",
			Content: "Vestpark Ejendomme ApS, CVR-nr. 55667788, Vestparken 2, 7100 Vejle",
		}},
	}}
	m := New(reg, search, testMatchConfig())

	match, err := m.MatchByName(context.Background(), Query{
		Name:       "Vestpark Ejendomme",
		Street:     "Vestparken",
		PostalCode: "7100",
	})

	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 55667788, match.Candidate.CVRNumber)
	assert.Contains(t, match.Reasons, "found via directory fallback")
}

func TestMatchByName_SearchError(t *testing.T) {
	reg := &mockCVR{searchErr: errors.New("register down")}
	m := New(reg, nil, testMatchConfig())

	_, err := m.MatchByName(context.Background(), Query{Name: "Nordbo Ejendomme A/S"})
	assert.Error(t, err)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Nordbo Ejendomme A/S", "nordbo ejendomme"},
		{"SØHOLM INVEST ApS", "soeholm invest"},
		{"Ærø Byg I/S", "aeroe byg"},
		{"André & Co.", "andre co"},
		{"  Flere   mellemrum  ", "flere mellemrum"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeName(tt.in))
		})
	}
}

func TestTokenOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, tokenOverlap([]string{"nordbo", "ejendomme"}, []string{"nordbo", "ejendomme", "administration"}), 0.001)
	assert.InDelta(t, 0.5, tokenOverlap([]string{"nordbo", "transport"}, []string{"nordbo", "ejendomme"}), 0.001)
	assert.InDelta(t, 0.0, tokenOverlap(nil, []string{"nordbo"}), 0.001)
}
