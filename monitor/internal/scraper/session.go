package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrSessionAcquisition means the browser handshake could not capture
// usable API credentials. It is terminal for the run that needed them.
var ErrSessionAcquisition = errors.New("scraper: session acquisition failed")

// session holds the headers hijacked from the SPA's own API traffic.
// The bearer token is short-lived; a 401 or 403 downstream discards the
// whole session and runs the handshake again.
type session struct {
	headers map[string]string
}

// acquireSession drives a stealth Chrome page through the portal until
// the SPA fires a request against the API host, then lifts the
// authorization and x-api-key headers off that request.
func acquireSession(ctx context.Context, cfg *Config) (*session, error) {
	cfg.Logger.Info("scraper: acquiring session", "portal", cfg.PortalURL, "headless", cfg.Headless)

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-sandbox")
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch chrome: %v", ErrSessionAcquisition, err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("%w: connect: %v", ErrSessionAcquisition, err)
	}
	defer func() {
		browser.Close()
		l.Cleanup()
	}()

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("%w: stealth page: %v", ErrSessionAcquisition, err)
	}

	var mu sync.Mutex
	captured := make(map[string]string)

	router := page.HijackRequests()
	router.MustAdd("*api.buscador*", func(h *rod.Hijack) {
		hdr := h.Request.Req().Header
		mu.Lock()
		if v := hdr.Get("Authorization"); v != "" {
			captured["authorization"] = v
		}
		if v := hdr.Get("X-Api-Key"); v != "" {
			captured["x-api-key"] = v
		}
		mu.Unlock()
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	defer router.Stop()

	navCtx, cancel := context.WithTimeout(ctx, cfg.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(cfg.PortalURL); err != nil {
		return nil, fmt.Errorf("%w: navigate: %v", ErrSessionAcquisition, err)
	}
	page.Context(navCtx).WaitLoad()

	if !waitForToken(ctx, cfg.TokenWaitPolls, &mu, captured) {
		// The SPA sometimes waits for user input before its first API
		// call. Poking the search button reliably forces one; if nothing
		// shows within a few seconds the handshake is not going to work.
		nudgeSearch(navCtx, page, cfg.Logger)
		waitForToken(ctx, 3, &mu, captured)
	}

	mu.Lock()
	defer mu.Unlock()
	if captured["authorization"] == "" {
		return nil, fmt.Errorf("%w: no authorization header observed", ErrSessionAcquisition)
	}

	headers := map[string]string{
		"authorization": captured["authorization"],
		"user-agent":    cfg.UserAgent,
		"accept":        "application/json",
		"referer":       refererURL(cfg.PortalURL),
	}
	if v := captured["x-api-key"]; v != "" {
		headers["x-api-key"] = v
	} else if cfg.APIKey != "" {
		headers["x-api-key"] = cfg.APIKey
	}

	cfg.Logger.Info("scraper: session acquired", "has_api_key", headers["x-api-key"] != "")
	return &session{headers: headers}, nil
}

// waitForToken polls the capture map once a second, up to polls times.
func waitForToken(ctx context.Context, polls int, mu *sync.Mutex, captured map[string]string) bool {
	for i := 0; i < polls; i++ {
		mu.Lock()
		got := captured["authorization"] != ""
		mu.Unlock()
		if got {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	return false
}

func nudgeSearch(ctx context.Context, page *rod.Page, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("scraper: search nudge failed", "panic", r)
		}
	}()
	btnCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	el, err := page.Context(btnCtx).ElementR("button", "Buscar")
	if err != nil {
		logger.Debug("scraper: search button not found", "error", err)
		return
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		logger.Debug("scraper: search click failed", "error", err)
	}
}

func refererURL(portal string) string {
	if i := strings.Index(portal, "://"); i >= 0 {
		rest := portal[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return portal[:i+3+j] + "/"
		}
	}
	return portal
}
