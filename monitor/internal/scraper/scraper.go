// Package scraper fetches Mercado Público listing and detail data. The
// API sits behind a browser-only handshake: a short-lived bearer token is
// issued to the SPA, so the scraper drives a real Chrome page once,
// captures the credentials off the wire, and then talks plain HTTP until
// they expire.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilradar/agilradar/monitor/internal/mpapi"
)

// Config tunes the scraper. The zero value plus defaults() is usable.
type Config struct {
	BaseAPI   string
	PortalURL string

	// Headless controls whether the handshake Chrome is visible.
	Headless bool

	// APIKey is a fallback x-api-key when the handshake captures none.
	APIKey string

	ListTimeout   time.Duration // per listing page, default 15s
	DetailTimeout time.Duration // per ficha, default 10s
	NavTimeout    time.Duration // portal navigation, default 45s

	// TokenWaitPolls is how many one-second polls to wait for the SPA to
	// emit an authenticated request. Default 15.
	TokenWaitPolls int

	// PageDelay is the politeness pause between listing pages. Default 500ms.
	PageDelay time.Duration

	// MaxPageCap bounds a listing sweep regardless of what the API
	// reports. Default 300.
	MaxPageCap int

	// MaxBytes caps a single response body. Default 16MB.
	MaxBytes int64

	UserAgent string
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseAPI == "" {
		c.BaseAPI = mpapi.DefaultBaseAPI
	}
	if c.PortalURL == "" {
		c.PortalURL = mpapi.DefaultPortalURL
	}
	if c.ListTimeout <= 0 {
		c.ListTimeout = 15 * time.Second
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = 10 * time.Second
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.TokenWaitPolls <= 0 {
		c.TokenWaitPolls = 15
	}
	if c.PageDelay <= 0 {
		c.PageDelay = 500 * time.Millisecond
	}
	if c.MaxPageCap <= 0 {
		c.MaxPageCap = 300
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 16 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scraper is safe for concurrent use, though the task runner serializes
// the heavy operations anyway.
type Scraper struct {
	cfg    Config
	client *http.Client

	session atomic.Pointer[session]
	mu      sync.Mutex // single-flight for session acquisition

	// newSession is swapped in tests to avoid launching Chrome.
	newSession func(ctx context.Context, cfg *Config) (*session, error)
}

func New(cfg Config) *Scraper {
	cfg.defaults()
	return &Scraper{
		cfg:        cfg,
		client:     &http.Client{},
		newSession: acquireSession,
	}
}

// EnsureSession makes sure API credentials are loaded, running the
// browser handshake if none are cached yet.
func (s *Scraper) EnsureSession(ctx context.Context, progress func(string)) error {
	if s.session.Load() != nil {
		return nil
	}
	if progress != nil {
		progress("Iniciando navegador...")
	}
	return s.refresh(ctx)
}

// RefreshSession discards cached credentials and re-runs the handshake.
func (s *Scraper) RefreshSession(ctx context.Context) error {
	s.session.Store(nil)
	return s.refresh(ctx)
}

func (s *Scraper) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Load() != nil {
		return nil
	}
	sess, err := s.newSession(ctx, &s.cfg)
	if err != nil {
		return err
	}
	s.session.Store(sess)
	return nil
}

// FetchList sweeps the paginated listing. Page 1 decides the page count,
// clamped by MaxPageCap and maxPages (0 means no extra limit). An
// unrecognized body gets one session refresh and a retry of that page; a
// page that still fails, or comes back empty, ends the sweep and what was
// collected so far is returned. Rows are deduplicated by code, last value
// wins, first position kept.
func (s *Scraper) FetchList(ctx context.Context, dateFrom, dateTo string, maxPages int, progress func(string)) ([]mpapi.ListItem, error) {
	if err := s.EnsureSession(ctx, progress); err != nil {
		return nil, err
	}

	var all []mpapi.ListItem
	totalPages := 1

	for page := 1; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return dedupeByCode(all), err
		}
		if progress != nil {
			progress(fmt.Sprintf("Descargando página %d de %d...", page, totalPages))
		}

		url := mpapi.ListURL(s.cfg.BaseAPI, page, dateFrom, dateTo)
		body, err := s.get(ctx, url, s.cfg.ListTimeout)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("scraper: list page 1: %w", err)
			}
			s.cfg.Logger.Warn("scraper: list page failed, returning partial sweep", "page", page, "error", err)
			break
		}

		items, meta, ok := mpapi.ParseList(body)
		if !ok {
			// A 200 with an unrecognized body is how the API reports an
			// expired token. One re-handshake, then retry this page.
			s.cfg.Logger.Info("scraper: list page unrecognized, refreshing session", "page", page)
			if err := s.RefreshSession(ctx); err == nil {
				if body, err = s.get(ctx, url, s.cfg.ListTimeout); err == nil {
					items, meta, ok = mpapi.ParseList(body)
				}
			}
			if !ok {
				s.cfg.Logger.Warn("scraper: list page unrecognized after refresh, returning partial sweep", "page", page)
				break
			}
		}
		if len(items) == 0 && page > 1 {
			break
		}
		all = append(all, items...)

		if page == 1 {
			totalPages = meta.TotalPages
			if totalPages < 1 {
				totalPages = 1
			}
			if totalPages > s.cfg.MaxPageCap {
				totalPages = s.cfg.MaxPageCap
			}
			if maxPages > 0 && totalPages > maxPages {
				totalPages = maxPages
			}
		}

		if page < totalPages {
			select {
			case <-ctx.Done():
				return dedupeByCode(all), ctx.Err()
			case <-time.After(s.cfg.PageDelay):
			}
		}
	}

	return dedupeByCode(all), nil
}

// FetchDetail fetches one ficha. It returns (nil, nil) when the response
// is well-formed but not a detail payload; transport and auth failures
// surface as errors.
func (s *Scraper) FetchDetail(ctx context.Context, code string) (*mpapi.Detail, error) {
	if err := s.EnsureSession(ctx, nil); err != nil {
		return nil, err
	}
	body, err := s.get(ctx, mpapi.DetailURL(s.cfg.BaseAPI, code), s.cfg.DetailTimeout)
	if err != nil {
		return nil, fmt.Errorf("scraper: detail %s: %w", code, err)
	}
	return mpapi.ParseDetail(body), nil
}

// get performs one authenticated GET. A 401 or 403 triggers exactly one
// session refresh and retry; the token simply expires every so often.
func (s *Scraper) get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	body, status, err := s.doGet(ctx, url, timeout)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		s.cfg.Logger.Info("scraper: credentials rejected, refreshing session", "status", status)
		if err := s.RefreshSession(ctx); err != nil {
			return nil, err
		}
		if body, status, err = s.doGet(ctx, url, timeout); err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return body, nil
}

func (s *Scraper) doGet(ctx context.Context, url string, timeout time.Duration) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range s.headers() {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// headers returns the request headers: the captured session when one
// exists, otherwise a best-effort anonymous set.
func (s *Scraper) headers() map[string]string {
	if sess := s.session.Load(); sess != nil {
		return sess.headers
	}
	h := map[string]string{
		"user-agent": s.cfg.UserAgent,
		"accept":     "application/json",
		"referer":    mpapi.Referer,
	}
	if s.cfg.APIKey != "" {
		h["x-api-key"] = s.cfg.APIKey
	}
	return h
}

// dedupeByCode collapses duplicate codes. The listing can show the same
// tender on adjacent pages when rows shift underneath the sweep; the
// later row is fresher, so its values win, but the first position is
// kept so ordering stays stable.
func dedupeByCode(items []mpapi.ListItem) []mpapi.ListItem {
	if len(items) < 2 {
		return items
	}
	index := make(map[string]int, len(items))
	out := items[:0]
	for _, it := range items {
		code := it.Code()
		if code == "" {
			continue
		}
		if at, seen := index[code]; seen {
			out[at] = it
			continue
		}
		index[code] = len(out)
		out = append(out, it)
	}
	return out
}
