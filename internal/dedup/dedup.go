// Package dedup prevents one shared contact from becoming the best contact
// for many unrelated properties within a single batch.
package dedup

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/internal/model"
)

// Tracker records which properties each contact email has already been
// matched to within the current batch. Create a fresh Tracker per batch.
// The orchestrator runs single-threaded, but the mutex keeps the tracker
// safe should batches ever run concurrently.
type Tracker struct {
	mu   sync.Mutex
	cfg  config.DedupConfig
	uses map[string][]string
}

// NewTracker creates an empty Tracker for one batch.
func NewTracker(cfg config.DedupConfig) *Tracker {
	return &Tracker{
		cfg:  cfg,
		uses: make(map[string][]string),
	}
}

// Apply penalizes contacts whose email was already matched to earlier
// properties in this batch, re-sorts the list, and records the new usage.
// The first reuse downgrades relevance to indirect; from the third
// property on, confidence is cut to near zero so the contact can never
// win a quality gate on reuse alone.
func (t *Tracker) Apply(propertyID string, contacts []model.CandidateContact) []model.CandidateContact {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.CandidateContact, len(contacts))
	copy(out, contacts)

	for i := range out {
		email := normalizeEmail(out[i].Email)
		if email == "" {
			continue
		}
		prior := len(t.uses[email])
		if prior == 0 {
			continue
		}

		penalty := t.cfg.PenaltyPerUse * float64(prior)
		if penalty > t.cfg.MaxPenalty {
			penalty = t.cfg.MaxPenalty
		}
		out[i].Confidence -= penalty
		out[i].Relevance = model.RelevanceIndirect

		if prior >= t.cfg.CutoffUses && out[i].Confidence > t.cfg.CutoffCeiling {
			out[i].Confidence = t.cfg.CutoffCeiling
		}
		out[i].ClampConfidence()

		zap.L().Debug("dedup: contact reused across batch",
			zap.String("email", email),
			zap.String("property_id", propertyID),
			zap.Int("prior_uses", prior),
			zap.Float64("confidence", out[i].Confidence),
		)
	}

	model.SortContacts(out)

	for i := range out {
		email := normalizeEmail(out[i].Email)
		if email == "" {
			continue
		}
		t.uses[email] = append(t.uses[email], propertyID)
	}

	return out
}

// UseCount returns how many properties an email has been matched to so far.
func (t *Tracker) UseCount(email string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.uses[normalizeEmail(email)])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
