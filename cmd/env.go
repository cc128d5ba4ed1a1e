package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/analysis"
	"github.com/adnord/ownership-cli/internal/matcher"
	"github.com/adnord/ownership-cli/internal/resilience"
	"github.com/adnord/ownership-cli/internal/resolver"
	"github.com/adnord/ownership-cli/internal/scrape"
	"github.com/adnord/ownership-cli/internal/store"
	"github.com/adnord/ownership-cli/internal/validate"
	"github.com/adnord/ownership-cli/internal/workflow"
	anthropicpkg "github.com/adnord/ownership-cli/pkg/anthropic"
	"github.com/adnord/ownership-cli/pkg/cvr"
	"github.com/adnord/ownership-cli/pkg/dawa"
	"github.com/adnord/ownership-cli/pkg/ejf"
	"github.com/adnord/ownership-cli/pkg/firecrawl"
	"github.com/adnord/ownership-cli/pkg/jina"
	sfpkg "github.com/adnord/ownership-cli/pkg/salesforce"
)

// runEnv holds the initialized store, clients, and orchestrator shared by
// the resolve/batch/serve commands.
type runEnv struct {
	Store        store.Store
	Orchestrator *workflow.Orchestrator
	Salesforce   sfpkg.Client // nil when the CRM is not configured
}

// Close releases resources held by the environment.
func (e *runEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "ownership.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (OWNERSHIP_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RequestsPerSecond)), nil
}

// initEnv sets up the store, all registry and web clients, and builds the
// Orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context, command string) (*runEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	retryCfg := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier, cfg.Retry.JitterFraction,
	)

	dawaClient := dawa.NewClient(
		dawa.WithBaseURL(cfg.DAWA.BaseURL),
		dawa.WithMirrorURL(cfg.DAWA.MirrorURL),
		dawa.WithRetryConfig(retryCfg),
	)
	ejfClient := ejf.NewClient(cfg.EJF.Username, cfg.EJF.Password,
		ejf.WithBaseURL(cfg.EJF.BaseURL),
		ejf.WithRetryConfig(retryCfg),
	)
	cvrClient := cvr.NewClient(cfg.CVR.UserAgent,
		cvr.WithBaseURL(cfg.CVR.BaseURL),
		cvr.WithRetryConfig(retryCfg),
	)

	jinaOpts := []jina.Option{
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithRetryConfig(retryCfg),
	}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	var sfClient sfpkg.Client
	if cfg.Salesforce.ClientID != "" {
		sfClient, err = initSalesforce()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	} else {
		zap.L().Warn("salesforce not configured, CRM write-back disabled")
	}

	// Scrape chain: Jina reader primary, Firecrawl fallback.
	chain := scrape.NewChain(scrape.NewJinaAdapter(jinaClient))
	if cfg.Firecrawl.Key != "" {
		fcClient := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		chain = scrape.NewChain(
			scrape.NewJinaAdapter(jinaClient),
			scrape.NewFirecrawlAdapter(fcClient),
		).WithFirecrawlClient(fcClient)
	}

	orch := workflow.New(workflow.Deps{
		Resolver:   resolver.New(dawaClient, ejfClient, jinaClient),
		Matcher:    matcher.New(cvrClient, jinaClient, cfg.Match),
		Analyzer:   analysis.New(anthropicClient, cfg.Anthropic.HaikuModel, cfg.Anthropic.SonnetModel),
		Validator:  validate.New(cfg.Validation),
		Store:      st,
		Salesforce: sfClient,
		Search:     jinaClient,
		Scraper:    chain,
		Workflow:   cfg.Workflow,
		Gate:       cfg.Gate,
		Dedup:      cfg.Dedup,
	})

	return &runEnv{Store: st, Orchestrator: orch, Salesforce: sfClient}, nil
}
