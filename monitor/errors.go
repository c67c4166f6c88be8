package monitor

import (
	"errors"

	"github.com/agilradar/agilradar/monitor/internal/scraper"
)

// Sentinel errors for the pipeline stages. Callers match with errors.Is
// to decide how to present a failure; the wrapped cause carries detail.
var (
	// ErrSessionAcquisition is re-exported so callers need not import the
	// scraper package to classify handshake failures.
	ErrSessionAcquisition = scraper.ErrSessionAcquisition

	ErrListScrape          = errors.New("monitor: listing scrape failed")
	ErrDetailScrape        = errors.New("monitor: detail scrape failed")
	ErrRepositoryLoad      = errors.New("monitor: repository load failed")
	ErrRepositoryTransform = errors.New("monitor: score transform failed")
	ErrRecompute           = errors.New("monitor: recompute failed")
	ErrSelectiveUpdate     = errors.New("monitor: selective update failed")
)
