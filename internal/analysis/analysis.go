// Package analysis runs the two generative phases of the pipeline. Phase 1
// assesses ownership from structured official findings; Phase 2 ranks
// already-collected contacts by index back-reference. Neither phase can
// introduce a fact: malformed output degrades to "not provided", and
// rankings referencing unknown indices are discarded at the parse boundary.
package analysis

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/model"
	"github.com/adnord/ownership-cli/pkg/anthropic"
)

// Analyzer wraps the model calls for both phases.
type Analyzer struct {
	client      anthropic.Client
	haikuModel  string
	sonnetModel string
}

// New creates an Analyzer. Phase 1 runs on the cheaper model; Phase 2
// ranking runs on the stronger one.
func New(client anthropic.Client, haikuModel, sonnetModel string) *Analyzer {
	return &Analyzer{client: client, haikuModel: haikuModel, sonnetModel: sonnetModel}
}

// assessment mirrors the Phase 1 JSON contract.
type assessment struct {
	OwnerName     string   `json:"owner_name"`
	RegistryID    *int     `json:"registry_id"`
	QualityScore  *float64 `json:"quality_score"`
	QualityTier   string   `json:"quality_tier"`
	Justification string   `json:"justification"`
}

// AssessOwnership runs Phase 1 on structured official findings. The call
// is deterministic (temperature 0). Missing or malformed output is
// fail-closed: the result reads "unknown" owner at the low tier rather
// than an error, because an absent claim is a valid pipeline state.
func (a *Analyzer) AssessOwnership(ctx context.Context, f Findings) (*model.AnalysisResult, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.haikuModel,
		MaxTokens:   1024,
		Temperature: &temp,
		System:      []anthropic.SystemBlock{{Text: assessSystemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: assessUserPrompt(f)}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: assess ownership")
	}
	resp.Usage.LogCost(a.haikuModel, "assess")

	var parsed assessment
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &parsed); err != nil {
		zap.L().Warn("analysis: malformed assessment, failing closed",
			zap.Error(err),
		)
		return &model.AnalysisResult{OwnerName: "unknown", QualityTier: model.TierLow}, nil
	}

	result := &model.AnalysisResult{
		OwnerName:     strings.TrimSpace(parsed.OwnerName),
		Justification: parsed.Justification,
		QualityTier:   parseTier(parsed.QualityTier),
	}
	if result.OwnerName == "" {
		result.OwnerName = "unknown"
	}
	if parsed.RegistryID != nil {
		result.RegistryID = *parsed.RegistryID
	}
	if parsed.QualityScore != nil {
		result.QualityScore = clamp01(*parsed.QualityScore)
	}
	return result, nil
}

// ranking mirrors one Phase 2 ranking entry.
type ranking struct {
	Index      IndexRef `json:"index"`
	Confidence float64  `json:"confidence"`
	Relevance  string   `json:"relevance"`
	Role       string   `json:"role"`
	Reason     string   `json:"reason"`
}

// RankContacts runs Phase 2 over the indexed candidate list. The returned
// contacts are the referenced candidates with confidence, relevance, role,
// and reason filled in. Rankings referencing an out-of-range or non-integer
// index are logged and dropped, never remapped.
func (a *Analyzer) RankContacts(ctx context.Context, propertyContext string, contacts []model.CandidateContact) ([]model.CandidateContact, error) {
	if len(contacts) == 0 {
		return nil, nil
	}

	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.sonnetModel,
		MaxTokens:   2048,
		Temperature: &temp,
		System:      []anthropic.SystemBlock{{Text: rankSystemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: rankUserPrompt(propertyContext, contacts)}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: rank contacts")
	}
	resp.Usage.LogCost(a.sonnetModel, "rank")

	var parsed struct {
		Rankings []ranking `json:"rankings"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &parsed); err != nil {
		zap.L().Warn("analysis: malformed rankings, failing closed", zap.Error(err))
		return nil, nil
	}

	var ranked []model.CandidateContact
	for _, rk := range parsed.Rankings {
		if rk.Index.Rejected || rk.Index.Value >= len(contacts) {
			zap.L().Warn("analysis: ranking references unknown candidate, discarded",
				zap.Int("index", rk.Index.Value),
				zap.Bool("rejected", rk.Index.Rejected),
				zap.Int("candidates", len(contacts)),
			)
			continue
		}
		contact := contacts[rk.Index.Value]
		contact.Confidence = clamp01(rk.Confidence)
		contact.Relevance = parseRelevance(rk.Relevance)
		if rk.Role != "" {
			contact.Role = rk.Role
		}
		contact.Reason = rk.Reason
		ranked = append(ranked, contact)
	}
	return ranked, nil
}

func parseTier(s string) model.DataQualityTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return model.TierHigh
	case "medium":
		return model.TierMedium
	default:
		return model.TierLow
	}
}

func parseRelevance(s string) model.Relevance {
	if strings.EqualFold(strings.TrimSpace(s), "direct") {
		return model.RelevanceDirect
	}
	return model.RelevanceIndirect
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
