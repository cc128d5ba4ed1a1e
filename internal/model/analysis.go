package model

// AnalysisResult is the combined output of the two analysis phases,
// treated as untrusted until the validator has recomputed every claim
// against the evidence set.
type AnalysisResult struct {
	OwnerName     string             `json:"owner_name"`
	RegistryID    int                `json:"registry_id,omitempty"`
	QualityScore  float64            `json:"quality_score"`
	QualityTier   DataQualityTier    `json:"quality_tier"`
	Justification string             `json:"justification,omitempty"`
	Contacts      []CandidateContact `json:"contacts,omitempty"`
}
