package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adnord/ownership-cli/internal/analysis"
	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/internal/matcher"
	"github.com/adnord/ownership-cli/internal/model"
	"github.com/adnord/ownership-cli/internal/store"
)

// --- mocks ---

type mockResolver struct {
	record *model.OfficialOwnershipRecord
	err    error
	calls  int
}

func (m *mockResolver) Resolve(_ context.Context, _, _, _ string) (*model.OfficialOwnershipRecord, error) {
	m.calls++
	return m.record, m.err
}

type mockMatcher struct {
	match     *model.RegistryMatch
	err       error
	nameCalls int
	lastQuery matcher.Query
}

func (m *mockMatcher) MatchByName(_ context.Context, q matcher.Query) (*model.RegistryMatch, error) {
	m.nameCalls++
	m.lastQuery = q
	return m.match, m.err
}

func (m *mockMatcher) MatchByNumber(_ context.Context, _ int) (*model.RegistryMatch, error) {
	return m.match, m.err
}

type mockAnalyzer struct {
	assessment *model.AnalysisResult
	ranked     []model.CandidateContact
	assessErr  error
	rankErr    error
	panicMsg   string
}

func (m *mockAnalyzer) AssessOwnership(_ context.Context, _ analysis.Findings) (*model.AnalysisResult, error) {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.assessErr != nil {
		return nil, m.assessErr
	}
	out := *m.assessment
	return &out, nil
}

func (m *mockAnalyzer) RankContacts(_ context.Context, _ string, _ []model.CandidateContact) ([]model.CandidateContact, error) {
	return m.ranked, m.rankErr
}

// passthroughValidator returns the analysis untouched.
type passthroughValidator struct{}

func (passthroughValidator) Validate(result model.AnalysisResult, _ *model.EvidenceSet, _ *model.OfficialOwnershipRecord, _ *model.RegistryMatch) (model.AnalysisResult, []string) {
	return result, nil
}

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	mu   sync.Mutex
	runs map[string]*model.WorkflowRun
	seq  int
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*model.WorkflowRun)}
}

func (s *memStore) CreateRun(_ context.Context, property model.PropertyRecord) (*model.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	run := &model.WorkflowRun{
		ID:         property.ID + "-run",
		PropertyID: property.ID,
		Property:   property,
		Status:     model.RunStatusRunning,
	}
	s.runs[run.ID] = run
	return run, nil
}

func (s *memStore) AppendStep(_ context.Context, runID string, step model.StepLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	run.Steps = append(run.Steps, step)
	return nil
}

func (s *memStore) CompleteRun(_ context.Context, runID string, status model.RunStatus, runErr string, result *model.ResolutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	run.Status = status
	run.Error = runErr
	run.Result = result
	return nil
}

func (s *memStore) GetRun(_ context.Context, runID string) (*model.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[runID], nil
}

func (s *memStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WorkflowRun
	for _, r := range s.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

// mockSF records every CRM call.
type mockSF struct {
	mu      sync.Mutex
	updates []map[string]any
	inserts []string
	upserts []string
}

func (m *mockSF) Query(_ context.Context, _ string, _ any) error { return nil }

func (m *mockSF) InsertOne(_ context.Context, sObjectName string, _ map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts = append(m.inserts, sObjectName)
	return "new-id", nil
}

func (m *mockSF) UpdateOne(_ context.Context, _ string, _ string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, fields)
	return nil
}

func (m *mockSF) UpsertOne(_ context.Context, _, _, externalID string, _ map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, externalID)
	return "contact-id", nil
}

func (m *mockSF) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates) + len(m.inserts) + len(m.upserts)
}

// captureSink collects progress events.
type captureSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (c *captureSink) Progress(ev ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) terminalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Terminal {
			n++
		}
	}
	return n
}

// --- fixtures ---

func companyRecord() *model.OfficialOwnershipRecord {
	return &model.OfficialOwnershipRecord{
		BFENumber:     6037951,
		Owners:        []model.Owner{{Name: "Nordbo Ejendomme ApS", IsPrimary: true}},
		OwnershipCode: 30,
		OwnershipText: "Selskaber",
		Municipality:  "Aarhus",
	}
}

func companyMatch(score int) *model.RegistryMatch {
	return &model.RegistryMatch{
		Candidate: model.RegistryCandidate{
			CVRNumber: 38123456,
			Name:      "Nordbo Ejendomme ApS",
			Email:     "kontakt@nordbo.dk",
		},
		Score: score,
	}
}

func testOrchestrator(t *testing.T, deps Deps) (*Orchestrator, *memStore, *captureSink) {
	t.Helper()
	st := newMemStore()
	sink := &captureSink{}
	deps.Store = st
	deps.Progress = sink
	if deps.Validator == nil {
		deps.Validator = passthroughValidator{}
	}
	if deps.Dedup == (config.DedupConfig{}) {
		deps.Dedup = config.DedupConfig{PenaltyPerUse: 0.15, MaxPenalty: 0.5, CutoffUses: 2, CutoffCeiling: 0.15}
	}
	if deps.Gate == (config.GateConfig{}) {
		deps.Gate = config.GateConfig{MinConfidence: 0.7, IndirectMinConfidence: 0.8}
	}
	return New(deps), st, sink
}

func prop(id string) model.PropertyRecord {
	return model.PropertyRecord{
		ID:         id,
		Address:    "Vestergade 12",
		PostalCode: "8000",
		City:       "Aarhus C",
	}
}

// --- tests ---

func TestRunProperty_CompanyWithRegistryMatch(t *testing.T) {
	analyzer := &mockAnalyzer{
		assessment: &model.AnalysisResult{
			OwnerName:   "Nordbo Ejendomme ApS",
			QualityTier: model.TierHigh,
		},
		ranked: []model.CandidateContact{
			{Name: "Mette Larsen", Email: "ml@nordbo.dk", Relevance: model.RelevanceDirect, Confidence: 0.9},
		},
	}
	mm := &mockMatcher{match: companyMatch(85)}
	o, st, sink := testOrchestrator(t, Deps{
		Resolver: &mockResolver{record: companyRecord()},
		Matcher:  mm,
		Analyzer: analyzer,
	})

	run, err := o.RunProperty(context.Background(), prop("prop-1"))
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, "Nordbo Ejendomme ApS", run.Result.OwnerName)
	require.NotNil(t, run.Result.Match)
	assert.Equal(t, 85, run.Result.Match.Score)
	assert.True(t, run.Result.ReadyForOutreach)

	assert.Equal(t, 1, mm.nameCalls)
	assert.Equal(t, "Nordbo Ejendomme ApS", mm.lastQuery.Name)

	stored, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, stored.Status)
	assert.Equal(t, 1, sink.terminalCount())

	names := make([]string, 0, len(run.Steps))
	for _, s := range run.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"marking-in-progress", "researching", "analyzing", "validating",
		"writing-back", "contact-upserting", "drafting", "quality-gating",
	}, names)
}

func TestRunProperty_PrivateIndividualSkipsRegistry(t *testing.T) {
	record := companyRecord()
	record.OwnershipCode = 10
	record.Owners = []model.Owner{{Name: "Jens Hansen Holding", IsPrimary: true}}

	mm := &mockMatcher{match: companyMatch(90)}
	o, _, _ := testOrchestrator(t, Deps{
		Resolver: &mockResolver{record: record},
		Matcher:  mm,
		Analyzer: &mockAnalyzer{assessment: &model.AnalysisResult{OwnerName: "Jens Hansen Holding", QualityTier: model.TierMedium}},
	})

	run, err := o.RunProperty(context.Background(), model.PropertyRecord{
		ID: "prop-1", Address: "Vestergade 12", PostalCode: "8000", City: "Aarhus C",
		KnownOwner: "Hansen Ejendomme A/S",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, mm.nameCalls)
	assert.Nil(t, run.Result.Match)
	assert.Equal(t, model.OwnershipPrivateIndividual, run.Result.OwnershipType)
}

func TestRunProperty_EmptyWorldCompletesLow(t *testing.T) {
	o, _, sink := testOrchestrator(t, Deps{
		Resolver: &mockResolver{},
		Matcher:  &mockMatcher{},
		Analyzer: &mockAnalyzer{assessment: &model.AnalysisResult{OwnerName: "unknown", QualityTier: model.TierLow}},
	})

	run, err := o.RunProperty(context.Background(), prop("prop-1"))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, "unknown", run.Result.OwnerName)
	assert.Equal(t, model.TierLow, run.Result.QualityTier)
	assert.Empty(t, run.Result.Contacts)
	assert.False(t, run.Result.ReadyForOutreach)
	assert.Equal(t, 1, sink.terminalCount())
}

func TestRunProperty_ResolverErrorFailsRun(t *testing.T) {
	o, _, sink := testOrchestrator(t, Deps{
		Resolver: &mockResolver{err: eris.New("register unavailable")},
		Matcher:  &mockMatcher{},
		Analyzer: &mockAnalyzer{assessment: &model.AnalysisResult{}},
	})

	run, err := o.RunProperty(context.Background(), prop("prop-1"))
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "register unavailable")
	assert.Equal(t, 1, sink.terminalCount())
}

func TestRunProperty_SafeModeSuppressesWrites(t *testing.T) {
	sf := &mockSF{}
	o, _, _ := testOrchestrator(t, Deps{
		Resolver:   &mockResolver{record: companyRecord()},
		Matcher:    &mockMatcher{match: companyMatch(85)},
		Analyzer:   &mockAnalyzer{assessment: &model.AnalysisResult{OwnerName: "Nordbo Ejendomme ApS", QualityTier: model.TierHigh}},
		Salesforce: sf,
		Workflow:   config.WorkflowConfig{SafeMode: true},
	})

	p := prop("prop-1")
	p.SalesforceID = "a011x000003DGb2AAG"
	run, err := o.RunProperty(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, sf.writeCount())
}

func TestRunProperty_WritesBackToCRM(t *testing.T) {
	sf := &mockSF{}
	o, _, _ := testOrchestrator(t, Deps{
		Resolver: &mockResolver{record: companyRecord()},
		Matcher:  &mockMatcher{match: companyMatch(85)},
		Analyzer: &mockAnalyzer{
			assessment: &model.AnalysisResult{OwnerName: "Nordbo Ejendomme ApS", QualityTier: model.TierHigh},
			ranked:     []model.CandidateContact{{Name: "Mette Larsen", Email: "ml@nordbo.dk", Relevance: model.RelevanceDirect, Confidence: 0.9}},
		},
		Salesforce: sf,
	})

	p := prop("prop-1")
	p.SalesforceID = "a011x000003DGb2AAG"
	run, err := o.RunProperty(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)

	// in-progress marker, research fields, gate status
	require.Len(t, sf.updates, 3)
	assert.Equal(t, "In Progress", sf.updates[0]["Research_Status__c"])
	assert.Equal(t, "Nordbo Ejendomme ApS", sf.updates[1]["Owner_Name__c"])
	assert.Equal(t, "Ready for Outreach", sf.updates[2]["Research_Status__c"])
	assert.Equal(t, []string{"ml@nordbo.dk"}, sf.upserts)
	// note and follow-up task
	assert.Equal(t, []string{"Note", "Task"}, sf.inserts)
}

func TestRunProperty_LocationAllowlistSkips(t *testing.T) {
	o, st, sink := testOrchestrator(t, Deps{
		Resolver: &mockResolver{record: companyRecord()},
		Matcher:  &mockMatcher{},
		Analyzer: &mockAnalyzer{assessment: &model.AnalysisResult{}},
		Workflow: config.WorkflowConfig{Locations: []string{"København", "Frederiksberg"}},
	})

	run, err := o.RunProperty(context.Background(), prop("prop-1"))
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.Empty(t, st.runs)
	assert.Equal(t, 1, sink.terminalCount())
}

func TestRunBatch_FailureIsolation(t *testing.T) {
	resolver := &mockResolver{record: companyRecord()}
	analyzer := &mockAnalyzer{assessment: &model.AnalysisResult{OwnerName: "Nordbo Ejendomme ApS", QualityTier: model.TierMedium}}
	o, _, _ := testOrchestrator(t, Deps{
		Resolver: resolver,
		Matcher:  &mockMatcher{err: eris.New("cvr down")},
		Analyzer: analyzer,
	})

	// Matcher errors are non-fatal; make the second property fail via the
	// analyzer instead.
	calls := 0
	o.analyzer = analyzerFunc(func() (*model.AnalysisResult, error) {
		calls++
		if calls == 2 {
			return nil, eris.New("model unavailable")
		}
		out := *analyzer.assessment
		return &out, nil
	})

	runs := o.RunBatch(context.Background(), []model.PropertyRecord{prop("p1"), prop("p2"), prop("p3")})
	require.Len(t, runs, 3)
	assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, model.RunStatusFailed, runs[1].Status)
	assert.Equal(t, model.RunStatusCompleted, runs[2].Status)
}

func TestRunBatch_PanicIsolation(t *testing.T) {
	calls := 0
	o, _, _ := testOrchestrator(t, Deps{
		Resolver: &mockResolver{record: companyRecord()},
		Matcher:  &mockMatcher{},
		Analyzer: analyzerFunc(func() (*model.AnalysisResult, error) {
			calls++
			if calls == 1 {
				panic("nil dereference")
			}
			return &model.AnalysisResult{OwnerName: "Nordbo Ejendomme ApS", QualityTier: model.TierMedium}, nil
		}),
	})

	runs := o.RunBatch(context.Background(), []model.PropertyRecord{prop("p1"), prop("p2")})
	require.Len(t, runs, 2)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "panic")
	assert.Equal(t, model.RunStatusCompleted, runs[1].Status)
}

func TestRunBatch_CancellationStopsBetweenProperties(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	resolved := 0
	o, st, _ := testOrchestrator(t, Deps{
		Resolver: resolverFunc(func() (*model.OfficialOwnershipRecord, error) {
			resolved++
			if resolved == 2 {
				cancel()
			}
			return companyRecord(), nil
		}),
		Matcher:  &mockMatcher{},
		Analyzer: &mockAnalyzer{assessment: &model.AnalysisResult{OwnerName: "Nordbo Ejendomme ApS", QualityTier: model.TierMedium}},
	})

	props := []model.PropertyRecord{prop("p1"), prop("p2"), prop("p3"), prop("p4"), prop("p5")}
	runs := o.RunBatch(ctx, props)

	// Exactly two runs recorded; the second is cancelled mid-pipeline and
	// properties 3-5 are never attempted.
	require.Len(t, runs, 2)
	assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, model.RunStatusCancelled, runs[1].Status)
	assert.Equal(t, 2, resolved)
	assert.Len(t, st.runs, 2)
}

func TestRunBatch_DedupAcrossProperties(t *testing.T) {
	shared := model.CandidateContact{
		Name: "Admin Kontor", Email: "info@admin.dk",
		Relevance: model.RelevanceDirect, Confidence: 0.9,
	}
	o, _, _ := testOrchestrator(t, Deps{
		Resolver: &mockResolver{record: companyRecord()},
		Matcher:  &mockMatcher{},
		Analyzer: &mockAnalyzer{
			assessment: &model.AnalysisResult{OwnerName: "Nordbo Ejendomme ApS", QualityTier: model.TierMedium},
			ranked:     []model.CandidateContact{shared},
		},
	})

	runs := o.RunBatch(context.Background(), []model.PropertyRecord{prop("p1"), prop("p2")})
	require.Len(t, runs, 2)

	first := runs[0].Result.Contacts[0]
	second := runs[1].Result.Contacts[0]
	assert.InDelta(t, 0.9, first.Confidence, 1e-9)
	assert.Equal(t, model.RelevanceDirect, first.Relevance)
	assert.InDelta(t, 0.75, second.Confidence, 1e-9)
	assert.Equal(t, model.RelevanceIndirect, second.Relevance)
}

// function adapters for per-call behavior

type resolverFunc func() (*model.OfficialOwnershipRecord, error)

func (f resolverFunc) Resolve(context.Context, string, string, string) (*model.OfficialOwnershipRecord, error) {
	return f()
}

type analyzerFunc func() (*model.AnalysisResult, error)

func (f analyzerFunc) AssessOwnership(context.Context, analysis.Findings) (*model.AnalysisResult, error) {
	return f()
}

func (f analyzerFunc) RankContacts(_ context.Context, _ string, contacts []model.CandidateContact) ([]model.CandidateContact, error) {
	return contacts, nil
}
