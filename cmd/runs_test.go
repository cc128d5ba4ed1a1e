package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adnord/ownership-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2026, 3, 15, 10, 30, 0, 0, time.Local)
	runs := []model.WorkflowRun{
		{
			ID:        "run-1",
			Property:  model.PropertyRecord{ID: "prop-1", Address: "Vestergade 12"},
			Status:    model.RunStatusCompleted,
			StartedAt: started,
			Result: &model.ResolutionResult{
				OwnerName:   "Nordbo Ejendomme ApS",
				QualityTier: model.TierHigh,
			},
		},
		{
			ID:        "run-2",
			Property:  model.PropertyRecord{ID: "prop-2", Address: "Nygade 4"},
			Status:    model.RunStatusFailed,
			StartedAt: started,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "Nordbo Ejendomme ApS")
	assert.Contains(t, out, "high")
	// Failed run has no result; tier and owner columns stay empty.
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "failed")
}

func TestFormatRunsList_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, nil)
	assert.Contains(t, buf.String(), "RUN ID")
}
