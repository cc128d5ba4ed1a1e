// Package workflow orchestrates the per-property resolution state machine
// and the sequential batch loop around it.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/analysis"
	"github.com/adnord/ownership-cli/internal/classify"
	"github.com/adnord/ownership-cli/internal/config"
	"github.com/adnord/ownership-cli/internal/dedup"
	"github.com/adnord/ownership-cli/internal/evidence"
	"github.com/adnord/ownership-cli/internal/matcher"
	"github.com/adnord/ownership-cli/internal/model"
	"github.com/adnord/ownership-cli/internal/store"
	"github.com/adnord/ownership-cli/pkg/jina"
	"github.com/adnord/ownership-cli/pkg/salesforce"
)

// OwnershipResolver resolves a property address to its official ownership
// record. Not-found is (nil, nil).
type OwnershipResolver interface {
	Resolve(ctx context.Context, address, postalCode, city string) (*model.OfficialOwnershipRecord, error)
}

// RegistryMatcher finds and scores business-register candidates.
type RegistryMatcher interface {
	MatchByName(ctx context.Context, q matcher.Query) (*model.RegistryMatch, error)
	MatchByNumber(ctx context.Context, cvrNumber int) (*model.RegistryMatch, error)
}

// Analyzer runs the two constrained generative phases.
type Analyzer interface {
	AssessOwnership(ctx context.Context, f analysis.Findings) (*model.AnalysisResult, error)
	RankContacts(ctx context.Context, propertyContext string, contacts []model.CandidateContact) ([]model.CandidateContact, error)
}

// ResultValidator strips unsupported claims from an analysis result.
type ResultValidator interface {
	Validate(result model.AnalysisResult, evidence *model.EvidenceSet, ownership *model.OfficialOwnershipRecord, match *model.RegistryMatch) (model.AnalysisResult, []string)
}

// PageScraper fetches web pages for the evidence collector.
type PageScraper interface {
	ScrapeAll(ctx context.Context, urls []string, maxConcurrent int) []model.WebPage
}

// Deps holds the orchestrator's injected dependencies. Search, Scraper
// and Salesforce may be nil; the corresponding stages degrade to no-ops.
type Deps struct {
	Resolver   OwnershipResolver
	Matcher    RegistryMatcher
	Analyzer   Analyzer
	Validator  ResultValidator
	Store      store.Store
	Salesforce salesforce.Client
	Search     jina.Client
	Scraper    PageScraper
	Progress   ProgressSink
	Workflow   config.WorkflowConfig
	Gate       config.GateConfig
	Dedup      config.DedupConfig
}

// Orchestrator drives properties through the resolution workflow. One
// orchestrator serves one process; RunBatch resets cross-batch state.
type Orchestrator struct {
	resolver  OwnershipResolver
	matcher   RegistryMatcher
	analyzer  Analyzer
	validator ResultValidator
	store     store.Store
	sf        salesforce.Client
	search    jina.Client
	scraper   PageScraper
	progress  ProgressSink
	history   *History
	tracker   *dedup.Tracker
	cfg       config.WorkflowConfig
	gateCfg   config.GateConfig
	dedupCfg  config.DedupConfig
}

// New creates an Orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	progress := deps.Progress
	if progress == nil {
		progress = zapSink{}
	}
	return &Orchestrator{
		resolver:  deps.Resolver,
		matcher:   deps.Matcher,
		analyzer:  deps.Analyzer,
		validator: deps.Validator,
		store:     deps.Store,
		sf:        deps.Salesforce,
		search:    deps.Search,
		scraper:   deps.Scraper,
		progress:  progress,
		history:   NewHistory(deps.Workflow.HistorySize),
		cfg:       deps.Workflow,
		gateCfg:   deps.Gate,
		dedupCfg:  deps.Dedup,
	}
}

// History exposes the recent-run buffer for the status API.
func (o *Orchestrator) History() *History {
	return o.history
}

// RunBatch processes properties strictly sequentially with a fresh
// cross-batch contact tracker. A failure in one property is recorded on
// its run and does not abort the rest; cancellation stops before the
// next property starts.
func (o *Orchestrator) RunBatch(ctx context.Context, props []model.PropertyRecord) []model.WorkflowRun {
	o.tracker = dedup.NewTracker(o.dedupCfg)

	var runs []model.WorkflowRun
	for _, prop := range props {
		if ctx.Err() != nil {
			zap.L().Warn("workflow: batch cancelled",
				zap.Int("processed", len(runs)),
				zap.Int("remaining", len(props)-len(runs)),
			)
			break
		}
		run, err := o.RunProperty(ctx, prop)
		if err != nil {
			zap.L().Error("workflow: property failed",
				zap.String("property_id", prop.ID),
				zap.Error(err),
			)
		}
		if run != nil {
			runs = append(runs, *run)
		}
	}
	return runs
}

// RunProperty drives one property through the full state machine. The
// returned run is always terminal; errors are also recorded on it.
func (o *Orchestrator) RunProperty(ctx context.Context, prop model.PropertyRecord) (run *model.WorkflowRun, runErr error) {
	log := zap.L().With(zap.String("property_id", prop.ID), zap.String("address", prop.Address))

	if !o.locationAllowed(prop) {
		log.Warn("workflow: property outside supported locations, skipping",
			zap.String("postal_code", prop.PostalCode),
			zap.String("city", prop.City),
		)
		o.progress.Progress(ProgressEvent{
			Phase:    "queued",
			Message:  "skipped: outside supported locations",
			Detail:   prop.City,
			Percent:  100,
			Terminal: true,
		})
		return nil, nil
	}

	run, err := o.store.CreateRun(ctx, prop)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: create run")
	}
	log.Info("workflow: starting property", zap.String("run_id", run.ID))

	defer func() {
		if r := recover(); r != nil {
			runErr = eris.Errorf("workflow: panic: %v", r)
			log.Error("workflow: recovered from panic", zap.Any("panic", r))
			o.finishRun(ctx, run, model.RunStatusFailed, runErr.Error())
		}
	}()

	p := &propertyRun{o: o, run: run, prop: prop, log: log}
	var result *model.ResolutionResult
	result, runErr = p.execute(ctx)

	switch {
	case runErr != nil && ctx.Err() != nil:
		o.finishRun(ctx, run, model.RunStatusCancelled, runErr.Error())
	case runErr != nil:
		o.markExternalStatus(ctx, prop, "Research Failed")
		o.finishRun(ctx, run, model.RunStatusFailed, runErr.Error())
	default:
		run.Result = result
		o.finishRun(ctx, run, model.RunStatusCompleted, "")
	}
	return run, runErr
}

// propertyRun carries per-property state through the stages.
type propertyRun struct {
	o    *Orchestrator
	run  *model.WorkflowRun
	prop model.PropertyRecord
	log  *zap.Logger

	ownership *model.OfficialOwnershipRecord
	ownerType model.OwnershipType
	match     *model.RegistryMatch
	collector *evidence.Collector
	result    *model.ResolutionResult
}

// step runs one stage, logging the transition into the run's step log and
// emitting a progress event. The fn's details end up on the step record.
func (p *propertyRun) step(ctx context.Context, name string, percent int, fn func() (map[string]any, error)) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "workflow: cancelled before %s", name)
	}

	p.o.progress.Progress(ProgressEvent{Phase: name, Message: "starting", Percent: percent})
	start := time.Now().UTC()
	details, err := fn()

	st := model.StepLog{
		Name:      name,
		Status:    model.StepStatusCompleted,
		StartedAt: start,
		EndedAt:   time.Now().UTC(),
		Details:   details,
	}
	if err != nil {
		st.Status = model.StepStatusFailed
		st.Error = err.Error()
	}
	if appendErr := p.o.store.AppendStep(ctx, p.run.ID, st); appendErr != nil {
		p.log.Warn("workflow: failed to persist step", zap.String("step", name), zap.Error(appendErr))
	}
	p.run.Steps = append(p.run.Steps, st)

	if err != nil {
		p.log.Error("workflow: step failed", zap.String("step", name), zap.Error(err))
		return eris.Wrapf(err, "workflow: %s", name)
	}
	p.log.Info("workflow: step complete",
		zap.String("step", name),
		zap.Duration("took", st.EndedAt.Sub(start)),
	)
	return nil
}

func (p *propertyRun) execute(ctx context.Context) (*model.ResolutionResult, error) {
	stages := []struct {
		name     string
		percent  int
		optional bool
		fn       func(context.Context) (map[string]any, error)
	}{
		{"marking-in-progress", 5, false, p.markInProgress},
		{"researching", 30, false, p.research},
		{"analyzing", 55, false, p.analyze},
		{"validating", 65, false, p.validate},
		{"email-hunting", 70, true, p.huntEmails},
		{"writing-back", 80, false, p.writeBack},
		{"contact-upserting", 85, false, p.upsertContact},
		{"drafting", 90, false, p.draft},
		{"quality-gating", 95, false, p.gate},
	}

	for _, stage := range stages {
		if stage.optional && !p.needsEmailHunt() {
			continue
		}
		fn := stage.fn
		if err := p.step(ctx, stage.name, stage.percent, func() (map[string]any, error) {
			return fn(ctx)
		}); err != nil {
			return nil, err
		}
	}
	return p.result, nil
}

func (p *propertyRun) markInProgress(ctx context.Context) (map[string]any, error) {
	if p.o.sf == nil || p.prop.SalesforceID == "" {
		return map[string]any{"skipped": "no CRM binding"}, nil
	}
	if p.o.cfg.SafeMode {
		p.log.Info("workflow: safe mode, would mark property in progress",
			zap.String("salesforce_id", p.prop.SalesforceID))
		return map[string]any{"safe_mode": true}, nil
	}
	err := salesforce.UpdateProperty(ctx, p.o.sf, p.prop.SalesforceID, map[string]any{
		"Research_Status__c": "In Progress",
	})
	return nil, err
}

// research resolves official ownership, classifies it, matches the
// business register per the classification strategy, and collects web
// evidence. An empty world is not an error here; the run completes with
// tier low downstream.
func (p *propertyRun) research(ctx context.Context) (map[string]any, error) {
	p.collector = evidence.NewCollector()
	if p.prop.KnownEmail != "" {
		p.collector.AddKnownContact(p.prop.KnownOwner, p.prop.KnownEmail)
	}

	ownership, err := p.o.resolver.Resolve(ctx, p.prop.Address, p.prop.PostalCode, p.prop.City)
	if err != nil {
		return nil, err
	}
	p.ownership = ownership

	var ownerNames []string
	code := 0
	text := ""
	if ownership != nil {
		p.collector.AddOfficialRecord(ownership)
		code = ownership.OwnershipCode
		text = ownership.OwnershipText
		for _, o := range ownership.Owners {
			ownerNames = append(ownerNames, o.Name)
		}
	}
	p.ownerType = classify.Classify(code, text, ownerNames)

	details := map[string]any{"ownership_type": string(p.ownerType)}
	if ownership != nil {
		details["bfe_number"] = ownership.BFENumber
	}

	searchName := primaryOwner(p.ownership)
	if searchName == "" {
		searchName = p.prop.KnownOwner
	}
	strategy := classify.StrategyFor(p.ownerType)
	if strategy.ShouldSearchRegistry && searchName != "" {
		match, err := p.o.matcher.MatchByName(ctx, matcher.Query{
			Name:                searchName,
			Street:              p.prop.Address,
			PostalCode:          p.prop.PostalCode,
			Municipality:        municipalityOf(p.ownership),
			RequireAddressMatch: strategy.RequireAddressMatch,
			MaxCandidates:       strategy.MaxCandidates,
		})
		if err != nil {
			p.log.Warn("workflow: registry match failed", zap.Error(err))
		} else if match != nil {
			p.match = match
			p.collector.AddRegistryCandidate(&match.Candidate)
			details["match_score"] = match.Score
		}
	} else {
		p.log.Debug("workflow: registry search skipped",
			zap.String("ownership_type", string(p.ownerType)))
	}

	p.collectWebEvidence(ctx, searchName)
	details["evidence_emails"] = p.collector.Evidence().EmailCount()
	return details, nil
}

// collectWebEvidence runs one search-and-scrape pass for the query and
// feeds the pages into the collector. Quietly does nothing when search
// or scraping is not wired.
func (p *propertyRun) collectWebEvidence(ctx context.Context, ownerName string) {
	if p.o.search == nil || p.o.scraper == nil || ownerName == "" || ownerName == "unknown" {
		return
	}
	query := fmt.Sprintf("%q %s %s kontakt", ownerName, p.prop.Address, p.prop.PostalCode)
	resp, err := p.o.search.Search(ctx, query)
	if err != nil {
		p.log.Warn("workflow: web search failed", zap.Error(err))
		return
	}
	var urls []string
	for _, r := range resp.Data {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
		if len(urls) >= 5 {
			break
		}
	}
	for _, page := range p.o.scraper.ScrapeAll(ctx, urls, p.o.cfg.ScrapeConcurrency) {
		p.collector.AddPage(page)
	}
}

func (p *propertyRun) analyze(ctx context.Context) (map[string]any, error) {
	assessment, err := p.o.analyzer.AssessOwnership(ctx, analysis.Findings{
		Address:    p.prop.Address,
		PostalCode: p.prop.PostalCode,
		City:       p.prop.City,
		Ownership:  p.ownership,
		Type:       p.ownerType,
		Match:      p.match,
	})
	if err != nil {
		return nil, err
	}

	ranked, err := p.o.analyzer.RankContacts(ctx, p.propertyContext(assessment.OwnerName), p.collector.Contacts())
	if err != nil {
		return nil, err
	}
	assessment.Contacts = ranked

	p.result = &model.ResolutionResult{
		OwnerName:     assessment.OwnerName,
		OwnershipType: p.ownerType,
		Ownership:     p.ownership,
		Match:         p.match,
		Contacts:      assessment.Contacts,
		QualityTier:   assessment.QualityTier,
		QualityReason: assessment.Justification,
	}
	if assessment.RegistryID > 0 {
		p.result.RegistryID = fmt.Sprintf("%d", assessment.RegistryID)
	}
	return map[string]any{
		"owner_name": assessment.OwnerName,
		"contacts":   len(ranked),
	}, nil
}

func (p *propertyRun) validate(ctx context.Context) (map[string]any, error) {
	cleaned, corrections := p.o.validator.Validate(
		model.AnalysisResult{
			OwnerName:     p.result.OwnerName,
			QualityTier:   p.result.QualityTier,
			Justification: p.result.QualityReason,
			Contacts:      p.result.Contacts,
		},
		p.collector.Evidence(), p.ownership, p.match,
	)

	p.result.OwnerName = cleaned.OwnerName
	p.result.QualityTier = cleaned.QualityTier
	p.result.Contacts = cleaned.Contacts
	p.result.Corrections = corrections

	if p.o.tracker != nil {
		p.result.Contacts = p.o.tracker.Apply(p.prop.ID, p.result.Contacts)
	}
	return map[string]any{"corrections": len(corrections)}, nil
}

// needsEmailHunt reports whether validation left no usable contact.
func (p *propertyRun) needsEmailHunt() bool {
	if p.result == nil {
		return false
	}
	for _, c := range p.result.Contacts {
		if c.Email != "" {
			return false
		}
	}
	return p.result.OwnerName != "" && p.result.OwnerName != "unknown"
}

// huntEmails runs one extra targeted search pass when validation left
// zero contacts with an email, then re-ranks and re-validates.
func (p *propertyRun) huntEmails(ctx context.Context) (map[string]any, error) {
	before := p.collector.Evidence().EmailCount()
	p.collectWebEvidence(ctx, p.result.OwnerName+" email")
	if p.collector.Evidence().EmailCount() == before {
		return map[string]any{"found": 0}, nil
	}

	ranked, err := p.o.analyzer.RankContacts(ctx, p.propertyContext(p.result.OwnerName), p.collector.Contacts())
	if err != nil {
		return nil, err
	}
	cleaned, corrections := p.o.validator.Validate(
		model.AnalysisResult{
			OwnerName:   p.result.OwnerName,
			QualityTier: p.result.QualityTier,
			Contacts:    ranked,
		},
		p.collector.Evidence(), p.ownership, p.match,
	)
	p.result.QualityTier = cleaned.QualityTier
	p.result.Contacts = cleaned.Contacts
	p.result.Corrections = append(p.result.Corrections, corrections...)

	if p.o.tracker != nil {
		p.result.Contacts = p.o.tracker.Apply(p.prop.ID, p.result.Contacts)
	}
	return map[string]any{"found": p.collector.Evidence().EmailCount() - before}, nil
}

func (p *propertyRun) writeBack(ctx context.Context) (map[string]any, error) {
	if p.o.sf == nil || p.prop.SalesforceID == "" {
		return map[string]any{"skipped": "no CRM binding"}, nil
	}

	fields := map[string]any{
		"Research_Status__c": "Research Complete",
		"Owner_Name__c":      p.result.OwnerName,
		"Ownership_Type__c":  string(p.result.OwnershipType),
		"Quality_Tier__c":    string(p.result.QualityTier),
	}
	if p.ownership != nil {
		fields["BFE_Number__c"] = p.ownership.BFENumber
	}
	if p.match != nil {
		fields["CVR_Number__c"] = p.match.Candidate.CVRNumber
	}

	if p.o.cfg.SafeMode {
		p.log.Info("workflow: safe mode, would update property", zap.Any("fields", fields))
		return map[string]any{"safe_mode": true}, nil
	}
	err := salesforce.UpdateProperty(ctx, p.o.sf, p.prop.SalesforceID, fields)
	return nil, err
}

func (p *propertyRun) upsertContact(ctx context.Context) (map[string]any, error) {
	best := p.result.BestContact()
	if best == nil || best.Email == "" {
		return map[string]any{"skipped": "no contact with email"}, nil
	}
	if p.o.sf == nil || p.prop.SalesforceID == "" {
		return map[string]any{"skipped": "no CRM binding"}, nil
	}

	fields := map[string]any{
		"LastName":  contactLastName(best.Name, p.result.OwnerName),
		"Email__c":  best.Email,
		"Phone":     best.Phone,
		"Title":     best.Role,
		"Source__c": best.Source,
	}
	if p.o.cfg.SafeMode {
		p.log.Info("workflow: safe mode, would upsert contact",
			zap.String("email", best.Email))
		return map[string]any{"safe_mode": true}, nil
	}
	id, err := salesforce.UpsertContactByEmail(ctx, p.o.sf, p.prop.SalesforceID, best.Email, fields)
	if err != nil {
		return nil, err
	}
	return map[string]any{"contact_id": id}, nil
}

// draft attaches the research summary note and a follow-up task for the
// sales team.
func (p *propertyRun) draft(ctx context.Context) (map[string]any, error) {
	if p.o.sf == nil || p.prop.SalesforceID == "" {
		return map[string]any{"skipped": "no CRM binding"}, nil
	}
	body := p.summaryNote()
	if p.o.cfg.SafeMode {
		p.log.Info("workflow: safe mode, would attach note", zap.Int("note_len", len(body)))
		return map[string]any{"safe_mode": true}, nil
	}
	if err := salesforce.AttachNote(ctx, p.o.sf, p.prop.SalesforceID, "Ownership research", body); err != nil {
		return nil, err
	}
	if _, err := salesforce.CreateFollowUpTask(ctx, p.o.sf, p.prop.SalesforceID, "Review ownership research", 3); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *propertyRun) gate(ctx context.Context) (map[string]any, error) {
	ready, reason := evaluateGate(p.result, p.o.gateCfg)
	p.result.ReadyForOutreach = ready
	p.result.GateReason = reason

	status := "Pending Manual Review"
	if ready {
		status = "Ready for Outreach"
	}
	if p.o.sf != nil && p.prop.SalesforceID != "" && !p.o.cfg.SafeMode {
		if err := salesforce.UpdateProperty(ctx, p.o.sf, p.prop.SalesforceID, map[string]any{
			"Research_Status__c": status,
		}); err != nil {
			return nil, err
		}
	}
	return map[string]any{"ready": ready, "reason": reason}, nil
}

func (p *propertyRun) propertyContext(ownerName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Property: %s, %s %s\n", p.prop.Address, p.prop.PostalCode, p.prop.City)
	fmt.Fprintf(&b, "Resolved owner: %s\n", ownerName)
	fmt.Fprintf(&b, "Ownership type: %s\n", p.ownerType)
	if p.match != nil {
		fmt.Fprintf(&b, "Registered business: %s (CVR %d)\n", p.match.Candidate.Name, p.match.Candidate.CVRNumber)
	}
	return b.String()
}

func (p *propertyRun) summaryNote() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Owner: %s\n", p.result.OwnerName)
	fmt.Fprintf(&b, "Ownership type: %s\n", p.result.OwnershipType)
	fmt.Fprintf(&b, "Quality tier: %s\n", p.result.QualityTier)
	if p.ownership != nil {
		fmt.Fprintf(&b, "BFE: %d\n", p.ownership.BFENumber)
	}
	if p.match != nil {
		fmt.Fprintf(&b, "CVR: %d (score %d)\n", p.match.Candidate.CVRNumber, p.match.Score)
	}
	if best := p.result.BestContact(); best != nil {
		fmt.Fprintf(&b, "Best contact: %s <%s> (%.2f %s)\n", best.Name, best.Email, best.Confidence, best.Relevance)
	}
	for _, c := range p.result.Corrections {
		fmt.Fprintf(&b, "Correction: %s\n", c)
	}
	return b.String()
}

func (o *Orchestrator) finishRun(ctx context.Context, run *model.WorkflowRun, status model.RunStatus, errMsg string) {
	run.Status = status
	run.Error = errMsg
	run.EndedAt = time.Now().UTC()

	// Persist with a fresh context so a cancelled batch still records its
	// terminal state.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.store.CompleteRun(persistCtx, run.ID, status, errMsg, run.Result); err != nil {
		zap.L().Warn("workflow: failed to persist run completion",
			zap.String("run_id", run.ID), zap.Error(err))
	}

	o.history.Add(*run)
	o.progress.Progress(ProgressEvent{
		Phase:    string(status),
		Message:  "run finished",
		Detail:   errMsg,
		Percent:  100,
		Terminal: true,
	})
}

// markExternalStatus flags the property's CRM record after a failure so a
// broken run is visible to the sales team. Suppressed in safe mode.
func (o *Orchestrator) markExternalStatus(ctx context.Context, prop model.PropertyRecord, status string) {
	if o.sf == nil || prop.SalesforceID == "" {
		return
	}
	if o.cfg.SafeMode {
		zap.L().Info("workflow: safe mode, would set external status",
			zap.String("property_id", prop.ID), zap.String("status", status))
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := salesforce.UpdateProperty(persistCtx, o.sf, prop.SalesforceID, map[string]any{
		"Research_Status__c": status,
	}); err != nil {
		zap.L().Warn("workflow: failed to set external status", zap.Error(err))
	}
}

func (o *Orchestrator) locationAllowed(prop model.PropertyRecord) bool {
	if len(o.cfg.Locations) == 0 {
		return true
	}
	for _, loc := range o.cfg.Locations {
		if strings.EqualFold(loc, prop.City) || loc == prop.PostalCode {
			return true
		}
	}
	return false
}

func primaryOwner(rec *model.OfficialOwnershipRecord) string {
	if rec == nil {
		return ""
	}
	return rec.PrimaryOwner()
}

func municipalityOf(rec *model.OfficialOwnershipRecord) string {
	if rec == nil {
		return ""
	}
	return rec.Municipality
}

// contactLastName picks a usable LastName for the CRM contact, which
// requires one even for organization mailboxes.
func contactLastName(name, ownerName string) string {
	if name != "" {
		parts := strings.Fields(name)
		return parts[len(parts)-1]
	}
	if ownerName != "" && ownerName != "unknown" {
		return ownerName
	}
	return "Ukendt"
}
