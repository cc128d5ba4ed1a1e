package workflow

import (
	"fmt"

	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/internal/model"
)

// evaluateGate decides whether a resolution result is ready for outreach.
// Promotion requires a contact with an email, a quality tier above low,
// and either high confidence in the contact or a high-tier result, with
// indirect contacts held to a stricter confidence floor. Failing the gate
// leaves the property pending manual review; readiness is never automatic
// beyond this rule.
func evaluateGate(result *model.ResolutionResult, cfg config.GateConfig) (bool, string) {
	if result.QualityTier == model.TierLow {
		return false, "quality tier is low"
	}

	var firstReason string
	for _, c := range result.Contacts {
		if c.Email == "" {
			continue
		}
		if c.Confidence < cfg.MinConfidence && result.QualityTier != model.TierHigh {
			if firstReason == "" {
				firstReason = fmt.Sprintf("best contact confidence %.2f below %.2f and tier is not high", c.Confidence, cfg.MinConfidence)
			}
			continue
		}
		if c.Relevance == model.RelevanceIndirect && c.Confidence < cfg.IndirectMinConfidence {
			if firstReason == "" {
				firstReason = fmt.Sprintf("indirect contact confidence %.2f below %.2f", c.Confidence, cfg.IndirectMinConfidence)
			}
			continue
		}
		return true, fmt.Sprintf("contact %q passed the outreach gate", c.Email)
	}

	if firstReason != "" {
		return false, firstReason
	}
	return false, "no contact with an email"
}
