// Package monitor is the tender-monitoring pipeline: it harvests the
// Mercado Público quick-purchase listing, scores each tender against
// user-defined rules, enriches the best candidates with detail data, and
// keeps follow state for the ones the user cares about.
package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/agilradar/agilradar/monitor/internal/mpapi"
	"github.com/agilradar/agilradar/monitor/internal/score"
	"github.com/agilradar/agilradar/monitor/internal/scraper"
	"github.com/agilradar/agilradar/monitor/internal/store"
)

// Scraper is the slice of the scraper the pipeline needs. Tests swap in
// a stub; production uses scraper.New.
type Scraper interface {
	FetchList(ctx context.Context, dateFrom, dateTo string, maxPages int, progress func(string)) ([]mpapi.ListItem, error)
	FetchDetail(ctx context.Context, code string) (*mpapi.Detail, error)
	EnsureSession(ctx context.Context, progress func(string)) error
}

// Service owns the store, the scraper, and the in-memory rule snapshot.
type Service struct {
	store   *store.Store
	scraper Scraper
	rules   *score.Cache
	cfg     *Config
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithScraper replaces the default browser-backed scraper.
func WithScraper(s Scraper) Option {
	return func(svc *Service) { svc.scraper = s }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// New builds the pipeline service over an open database handle.
func New(db *sql.DB, cfg *Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	svc := &Service{
		store: store.NewStore(db),
		rules: &score.Cache{},
		cfg:   cfg,
		now:   time.Now,
	}
	for _, o := range opts {
		o(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.scraper == nil {
		svc.scraper = scraper.New(scraper.Config{
			BaseAPI:       cfg.BaseAPI,
			PortalURL:     cfg.PortalURL,
			Headless:      cfg.Headless,
			APIKey:        cfg.APIKey,
			ListTimeout:   cfg.ListTimeout,
			DetailTimeout: cfg.DetailTimeout,
			PageDelay:     cfg.PageDelay,
			MaxPageCap:    cfg.MaxPageCap,
			UserAgent:     cfg.UserAgent,
			Logger:        svc.logger,
		})
	}
	return svc
}

// ApplySchema creates the database schema.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	return store.ApplySchema(ctx, db)
}

// refreshRules rebuilds the scoring snapshot from the stored rules.
func (s *Service) refreshRules(ctx context.Context) error {
	kws, err := s.store.ListKeywords(ctx)
	if err != nil {
		return fmt.Errorf("monitor: refresh rules: %w", err)
	}
	orgRules, err := s.store.ListOrganismRules(ctx)
	if err != nil {
		return fmt.Errorf("monitor: refresh rules: %w", err)
	}
	orgs, err := s.store.ListOrganisms(ctx)
	if err != nil {
		return fmt.Errorf("monitor: refresh rules: %w", err)
	}

	keywords := make([]score.Keyword, 0, len(kws))
	for _, k := range kws {
		keywords = append(keywords, score.Keyword{
			Raw:         k.Keyword,
			Title:       k.TitlePoints,
			Description: k.DescriptionPoints,
			Products:    k.ProductPoints,
		})
	}
	rules := make([]score.OrganismRule, 0, len(orgRules))
	for _, r := range orgRules {
		rules = append(rules, score.OrganismRule{
			OrganismID: r.OrganismID,
			Unwanted:   r.Kind == "unwanted",
			Points:     r.Points,
		})
	}
	names := make([]score.Organism, 0, len(orgs))
	for _, o := range orgs {
		names = append(names, score.Organism{ID: o.ID, Name: o.Name})
	}

	s.rules.Publish(score.NewSnapshot(keywords, rules, names))
	return nil
}

// Read-model passthroughs.

func (s *Service) Listing(ctx context.Context, minScore int) ([]store.Tender, error) {
	return s.store.Listing(ctx, minScore)
}

func (s *Service) Followed(ctx context.Context) ([]store.Tender, error) {
	return s.store.Followed(ctx)
}

func (s *Service) Bidded(ctx context.Context) ([]store.Tender, error) {
	return s.store.Bidded(ctx)
}

func (s *Service) TenderByID(ctx context.Context, id int64) (*store.Tender, error) {
	return s.store.TenderByID(ctx, id)
}

func (s *Service) NewOrganisms(ctx context.Context) ([]store.Organism, error) {
	return s.store.NewOrganisms(ctx)
}

// Follow-state mutations.

func (s *Service) SetFavorite(ctx context.Context, tenderID int64, fav bool) error {
	return s.store.SetFavorite(ctx, tenderID, fav)
}

func (s *Service) SetBidSubmitted(ctx context.Context, tenderID int64, bid bool) error {
	return s.store.SetBidSubmitted(ctx, tenderID, bid)
}

func (s *Service) SetHidden(ctx context.Context, tenderID int64, hidden bool) error {
	return s.store.SetHidden(ctx, tenderID, hidden)
}

func (s *Service) SetNote(ctx context.Context, tenderID int64, note string) error {
	return s.store.SetNote(ctx, tenderID, note)
}

// Rule management. Edits invalidate the in-memory snapshot immediately
// so the next recompute sees them.

func (s *Service) ListKeywords(ctx context.Context) ([]store.KeywordRule, error) {
	return s.store.ListKeywords(ctx)
}

func (s *Service) AddKeyword(ctx context.Context, keyword string, title, description, product int) error {
	if err := s.store.AddKeyword(ctx, keyword, title, description, product); err != nil {
		return err
	}
	return s.refreshRules(ctx)
}

func (s *Service) DeleteKeyword(ctx context.Context, id int64) error {
	if err := s.store.DeleteKeyword(ctx, id); err != nil {
		return err
	}
	return s.refreshRules(ctx)
}

func (s *Service) ListOrganismRules(ctx context.Context) ([]store.OrganismRule, error) {
	return s.store.ListOrganismRules(ctx)
}

func (s *Service) SetOrganismRule(ctx context.Context, organismID int64, unwanted bool, points int) error {
	if err := s.store.SetOrganismRule(ctx, organismID, unwanted, points); err != nil {
		return err
	}
	return s.refreshRules(ctx)
}

func (s *Service) DeleteOrganismRule(ctx context.Context, organismID int64) error {
	if err := s.store.DeleteOrganismRule(ctx, organismID); err != nil {
		return err
	}
	return s.refreshRules(ctx)
}

func (s *Service) ListOrganisms(ctx context.Context) ([]store.Organism, error) {
	return s.store.ListOrganisms(ctx)
}
