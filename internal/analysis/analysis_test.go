package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adnord/ownership-cli/internal/model"
	"github.com/adnord/ownership-cli/pkg/anthropic"
)

// mockAnthropicClient returns a canned message response.
type mockAnthropicClient struct {
	text    string
	err     error
	lastReq anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: m.text}},
	}, nil
}

func testFindings() Findings {
	return Findings{
		Address:    "Solsortevej 12",
		PostalCode: "2100",
		City:       "København",
		Type:       model.OwnershipHousingCooperative,
		Ownership: &model.OfficialOwnershipRecord{
			BFENumber:     6037951,
			Owners:        []model.Owner{{Name: "A/B Solsortevej 12", IsPrimary: true}},
			OwnershipCode: 41,
			OwnershipText: "Andelsboligforening",
			Municipality:  "København",
		},
		Match: &model.RegistryMatch{
			Candidate: model.RegistryCandidate{CVRNumber: 12345678, Name: "A/B Solsortevej 12"},
			Score:     85,
			Reasons:   []string{"exact name match"},
		},
	}
}

func TestAssessOwnership(t *testing.T) {
	client := &mockAnthropicClient{text: `{
		"owner_name": "A/B Solsortevej 12",
		"registry_id": 12345678,
		"quality_score": 0.9,
		"quality_tier": "high",
		"justification": "Register owner and business register agree."
	}`}
	a := New(client, "haiku", "sonnet")

	result, err := a.AssessOwnership(context.Background(), testFindings())

	require.NoError(t, err)
	assert.Equal(t, "A/B Solsortevej 12", result.OwnerName)
	assert.Equal(t, 12345678, result.RegistryID)
	assert.InDelta(t, 0.9, result.QualityScore, 0.001)
	assert.Equal(t, model.TierHigh, result.QualityTier)

	// Deterministic call on the cheap model.
	require.NotNil(t, client.lastReq.Temperature)
	assert.Zero(t, *client.lastReq.Temperature)
	assert.Equal(t, "haiku", client.lastReq.Model)
}

func TestAssessOwnership_CodeFenced(t *testing.T) {
	client := &mockAnthropicClient{text: "```json\n{\"owner_name\": \"Nordbo Ejendomme A/S\", \"registry_id\": null, \"quality_tier\": \"medium\"}\n```"}
	a := New(client, "haiku", "sonnet")

	result, err := a.AssessOwnership(context.Background(), testFindings())

	require.NoError(t, err)
	assert.Equal(t, "Nordbo Ejendomme A/S", result.OwnerName)
	assert.Zero(t, result.RegistryID)
	assert.Equal(t, model.TierMedium, result.QualityTier)
}

func TestAssessOwnership_MalformedFailsClosed(t *testing.T) {
	client := &mockAnthropicClient{text: "I believe the owner is probably Jens Hansen."}
	a := New(client, "haiku", "sonnet")

	result, err := a.AssessOwnership(context.Background(), testFindings())

	require.NoError(t, err)
	assert.Equal(t, "unknown", result.OwnerName)
	assert.Equal(t, model.TierLow, result.QualityTier)
	assert.Zero(t, result.QualityScore)
}

func TestAssessOwnership_ScoreClamped(t *testing.T) {
	client := &mockAnthropicClient{text: `{"owner_name": "X", "quality_score": 7.5, "quality_tier": "low"}`}
	a := New(client, "haiku", "sonnet")

	result, err := a.AssessOwnership(context.Background(), testFindings())

	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.QualityScore, 0.001)
}

func TestAssessOwnership_CallError(t *testing.T) {
	client := &mockAnthropicClient{err: errors.New("api down")}
	a := New(client, "haiku", "sonnet")

	_, err := a.AssessOwnership(context.Background(), testFindings())
	assert.Error(t, err)
}

func indexedContacts() []model.CandidateContact {
	return []model.CandidateContact{
		{Name: "A/B Solsortevej 12", Email: "bestyrelsen@solsortevej12.dk", Source: "business register (CVR 12345678)"},
		{Name: "Mette Larsen", Email: "ml@ejendomsadmin.dk", Role: "administrator", Source: "web: https://ejendomsadmin.dk"},
		{Email: "info@ejendomsadmin.dk", Source: "web: https://ejendomsadmin.dk"},
	}
}

func TestRankContacts(t *testing.T) {
	client := &mockAnthropicClient{text: `{
		"rankings": [
			{"index": 1, "confidence": 0.85, "relevance": "direct", "role": "property administrator", "reason": "Named administrator with a personal address."},
			{"index": 0, "confidence": 0.7, "relevance": "direct", "reason": "The owning cooperative's board address."}
		]
	}`}
	a := New(client, "haiku", "sonnet")

	ranked, err := a.RankContacts(context.Background(), "A/B Solsortevej 12", indexedContacts())

	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "Mette Larsen", ranked[0].Name)
	assert.InDelta(t, 0.85, ranked[0].Confidence, 0.001)
	assert.Equal(t, model.RelevanceDirect, ranked[0].Relevance)
	assert.Equal(t, "property administrator", ranked[0].Role)
	// Role from collection preserved when the ranking omits one.
	assert.Equal(t, "A/B Solsortevej 12", ranked[1].Name)
	assert.Equal(t, "sonnet", client.lastReq.Model)
}

func TestRankContacts_OutOfRangeDiscarded(t *testing.T) {
	// References index 7 in a 3-candidate list and a fabricated entry:
	// both must be dropped, not remapped.
	client := &mockAnthropicClient{text: `{
		"rankings": [
			{"index": 7, "confidence": 0.9, "relevance": "direct", "reason": "made up"},
			{"index": 2, "confidence": 0.4, "relevance": "indirect", "reason": "generic mailbox"}
		]
	}`}
	a := New(client, "haiku", "sonnet")

	ranked, err := a.RankContacts(context.Background(), "ctx", indexedContacts())

	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "info@ejendomsadmin.dk", ranked[0].Email)
}

func TestRankContacts_NonIntegerIndexDiscarded(t *testing.T) {
	client := &mockAnthropicClient{text: `{
		"rankings": [
			{"index": 1.5, "confidence": 0.9, "relevance": "direct"},
			{"index": "first", "confidence": 0.9, "relevance": "direct"},
			{"index": -1, "confidence": 0.9, "relevance": "direct"}
		]
	}`}
	a := New(client, "haiku", "sonnet")

	ranked, err := a.RankContacts(context.Background(), "ctx", indexedContacts())

	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRankContacts_EmptyList(t *testing.T) {
	client := &mockAnthropicClient{}
	a := New(client, "haiku", "sonnet")

	ranked, err := a.RankContacts(context.Background(), "ctx", nil)

	require.NoError(t, err)
	assert.Nil(t, ranked)
}

func TestRankContacts_MalformedFailsClosed(t *testing.T) {
	client := &mockAnthropicClient{text: "The best contact is clearly Mette."}
	a := New(client, "haiku", "sonnet")

	ranked, err := a.RankContacts(context.Background(), "ctx", indexedContacts())

	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestIndexRef_Unmarshal(t *testing.T) {
	var r IndexRef
	require.NoError(t, r.UnmarshalJSON([]byte("3")))
	assert.Equal(t, 3, r.Value)
	assert.False(t, r.Rejected)

	var frac IndexRef
	require.NoError(t, frac.UnmarshalJSON([]byte("1.5")))
	assert.True(t, frac.Rejected)

	var str IndexRef
	require.NoError(t, str.UnmarshalJSON([]byte(`"two"`)))
	assert.True(t, str.Rejected)

	var neg IndexRef
	require.NoError(t, neg.UnmarshalJSON([]byte("-2")))
	assert.True(t, neg.Rejected)
}
