package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/internal/model"
)

func gateCfg() config.GateConfig {
	return config.GateConfig{MinConfidence: 0.7, IndirectMinConfidence: 0.8}
}

func TestEvaluateGate(t *testing.T) {
	tests := []struct {
		name   string
		result model.ResolutionResult
		ready  bool
	}{
		{
			name: "direct confident contact passes",
			result: model.ResolutionResult{
				QualityTier: model.TierMedium,
				Contacts: []model.CandidateContact{
					{Email: "ml@nordbo.dk", Relevance: model.RelevanceDirect, Confidence: 0.75},
				},
			},
			ready: true,
		},
		{
			name: "low tier never passes",
			result: model.ResolutionResult{
				QualityTier: model.TierLow,
				Contacts: []model.CandidateContact{
					{Email: "ml@nordbo.dk", Relevance: model.RelevanceDirect, Confidence: 0.95},
				},
			},
			ready: false,
		},
		{
			name: "no email fails",
			result: model.ResolutionResult{
				QualityTier: model.TierHigh,
				Contacts: []model.CandidateContact{
					{Name: "Mette Larsen", Relevance: model.RelevanceDirect, Confidence: 0.95},
				},
			},
			ready: false,
		},
		{
			name: "low confidence passes on high tier",
			result: model.ResolutionResult{
				QualityTier: model.TierHigh,
				Contacts: []model.CandidateContact{
					{Email: "ml@nordbo.dk", Relevance: model.RelevanceDirect, Confidence: 0.5},
				},
			},
			ready: true,
		},
		{
			name: "low confidence fails on medium tier",
			result: model.ResolutionResult{
				QualityTier: model.TierMedium,
				Contacts: []model.CandidateContact{
					{Email: "ml@nordbo.dk", Relevance: model.RelevanceDirect, Confidence: 0.5},
				},
			},
			ready: false,
		},
		{
			name: "indirect contact needs stricter confidence",
			result: model.ResolutionResult{
				QualityTier: model.TierMedium,
				Contacts: []model.CandidateContact{
					{Email: "info@admin.dk", Relevance: model.RelevanceIndirect, Confidence: 0.75},
				},
			},
			ready: false,
		},
		{
			name: "indirect contact passes above stricter floor",
			result: model.ResolutionResult{
				QualityTier: model.TierMedium,
				Contacts: []model.CandidateContact{
					{Email: "info@admin.dk", Relevance: model.RelevanceIndirect, Confidence: 0.85},
				},
			},
			ready: true,
		},
		{
			name: "second contact can pass when first fails",
			result: model.ResolutionResult{
				QualityTier: model.TierMedium,
				Contacts: []model.CandidateContact{
					{Email: "info@admin.dk", Relevance: model.RelevanceIndirect, Confidence: 0.4},
					{Email: "ml@nordbo.dk", Relevance: model.RelevanceDirect, Confidence: 0.8},
				},
			},
			ready: true,
		},
		{
			name:   "no contacts fails",
			result: model.ResolutionResult{QualityTier: model.TierHigh},
			ready:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready, reason := evaluateGate(&tt.result, gateCfg())
			assert.Equal(t, tt.ready, ready)
			assert.NotEmpty(t, reason)
		})
	}
}
