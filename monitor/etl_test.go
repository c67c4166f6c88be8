package monitor_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agilradar/agilradar/dbopen"
	"github.com/agilradar/agilradar/monitor"
	"github.com/agilradar/agilradar/monitor/internal/mpapi"
	"github.com/agilradar/agilradar/monitor/internal/store"
)

// stubScraper serves canned listing and detail data without a browser.
type stubScraper struct {
	items      []mpapi.ListItem
	details    map[string]*mpapi.Detail
	listErr    error
	sessionErr error

	listCalls   int
	detailCalls []string
}

func (s *stubScraper) FetchList(ctx context.Context, dateFrom, dateTo string, maxPages int, progress func(string)) ([]mpapi.ListItem, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.items, nil
}

func (s *stubScraper) FetchDetail(ctx context.Context, code string) (*mpapi.Detail, error) {
	s.detailCalls = append(s.detailCalls, code)
	return s.details[code], nil
}

func (s *stubScraper) EnsureSession(ctx context.Context, progress func(string)) error {
	return s.sessionErr
}

func newService(t *testing.T, scr monitor.Scraper) (*monitor.Service, *store.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	ctx := context.Background()
	if err := monitor.ApplySchema(ctx, db); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	cfg := monitor.DefaultConfig()
	cfg.DetailDelay = time.Millisecond
	svc := monitor.New(db, cfg, monitor.WithScraper(scr))
	return svc, store.NewStore(db)
}

func listItem(code, name, org string) mpapi.ListItem {
	return mpapi.ListItem{
		Codigo:           code,
		Nombre:           name,
		Organismo:        org,
		Estado:           "Publicada",
		FechaPublicacion: "2026-08-20",
		FechaCierre:      "2026-08-30T17:00:00",
	}
}

func strptr(s string) *string { return &s }

func TestFullHarvestScoresAndEnriches(t *testing.T) {
	// Cold start: one relevant tender. Phase one scores the title, the
	// automatic enrichment fetches the ficha and phase two adds the
	// description hit.
	scr := &stubScraper{
		items: []mpapi.ListItem{listItem("10-1-COT26", "Compra de guantes de nitrilo", "Hospital Base")},
		details: map[string]*mpapi.Detail{
			"10-1-COT26": {Descripcion: strptr("Se requieren guantes talla M")},
		},
	}
	svc, st := newService(t, scr)
	ctx := context.Background()

	if err := svc.AddKeyword(ctx, "guantes", 10, 5, 0); err != nil {
		t.Fatal(err)
	}

	n, err := svc.FullHarvest(ctx, time.Now(), time.Now(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("harvested = %d, want 1", n)
	}
	if len(scr.detailCalls) != 1 {
		t.Fatalf("detail calls = %v, want one", scr.detailCalls)
	}

	cands, err := st.ScoreCandidates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatalf("rows = %d, want 1", len(cands))
	}
	if cands[0].Score != 15 {
		t.Fatalf("score = %d, want 15 (10 title + 5 description)", cands[0].Score)
	}

	tender, err := svc.TenderByID(ctx, cands[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if tender.Description == nil {
		t.Fatal("description not persisted")
	}
}

func TestFullHarvestEmptyListing(t *testing.T) {
	scr := &stubScraper{}
	svc, _ := newService(t, scr)

	var lastText string
	n, err := svc.FullHarvest(context.Background(), time.Now(), time.Now(), 0,
		&monitor.Progress{Text: func(s string) { lastText = s }})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
	if lastText != "No se encontraron datos nuevos." {
		t.Fatalf("lastText = %q", lastText)
	}
}

func TestFullHarvestErrorClassification(t *testing.T) {
	scr := &stubScraper{listErr: errors.New("timeout")}
	svc, _ := newService(t, scr)
	_, err := svc.FullHarvest(context.Background(), time.Now(), time.Now(), 0, nil)
	if !errors.Is(err, monitor.ErrListScrape) {
		t.Fatalf("err = %v, want ErrListScrape", err)
	}

	scr.listErr = fmt.Errorf("%w: no token", monitor.ErrSessionAcquisition)
	_, err = svc.FullHarvest(context.Background(), time.Now(), time.Now(), 0, nil)
	if !errors.Is(err, monitor.ErrSessionAcquisition) {
		t.Fatalf("err = %v, want ErrSessionAcquisition passthrough", err)
	}
	if errors.Is(err, monitor.ErrListScrape) {
		t.Fatal("session error must not be double-wrapped as list scrape")
	}
}

func TestUnwantedOrganismRejected(t *testing.T) {
	scr := &stubScraper{
		items: []mpapi.ListItem{listItem("20-1-COT26", "Compra de guantes", "Municipalidad Mala")},
	}
	svc, st := newService(t, scr)
	ctx := context.Background()

	if err := svc.AddKeyword(ctx, "guantes", 10, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FullHarvest(ctx, time.Now(), time.Now(), 0, nil); err != nil {
		t.Fatal(err)
	}

	orgs, _ := svc.ListOrganisms(ctx)
	if len(orgs) != 1 {
		t.Fatalf("orgs = %d, want 1", len(orgs))
	}
	if err := svc.SetOrganismRule(ctx, orgs[0].ID, true, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.RecomputeAllScores(ctx, nil); err != nil {
		t.Fatal(err)
	}
	cands, _ := st.ScoreCandidates(ctx)
	if cands[0].Score != -9999 {
		t.Fatalf("score = %d, want -9999", cands[0].Score)
	}
}

func TestRecomputeSkipsUnchangedScores(t *testing.T) {
	// A recompute with the same rules must not rewrite a single row.
	scr := &stubScraper{
		items: []mpapi.ListItem{
			listItem("30-1-COT26", "Compra de guantes", "Org A"),
			listItem("30-2-COT26", "Servicio de aseo", "Org B"),
		},
	}
	svc, _ := newService(t, scr)
	ctx := context.Background()

	if err := svc.AddKeyword(ctx, "guantes", 10, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FullHarvest(ctx, time.Now(), time.Now(), 0, nil); err != nil {
		t.Fatal(err)
	}

	n, err := svc.RecomputeAllScores(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second recompute wrote %d rows, want 0", n)
	}
}

func TestSelectiveUpdateRefreshesFollowed(t *testing.T) {
	scr := &stubScraper{
		items: []mpapi.ListItem{listItem("40-1-COT26", "Compra de guantes", "Org A")},
		details: map[string]*mpapi.Detail{
			"40-1-COT26": {
				Descripcion: strptr("detalle actualizado"),
				Estado:      "Cerrada Recepción",
			},
		},
	}
	svc, st := newService(t, scr)
	ctx := context.Background()

	if _, err := svc.FullHarvest(ctx, time.Now(), time.Now(), 0, nil); err != nil {
		t.Fatal(err)
	}
	cands, _ := st.ScoreCandidates(ctx)
	if err := svc.SetFavorite(ctx, cands[0].ID, true); err != nil {
		t.Fatal(err)
	}

	if err := svc.SelectiveUpdate(ctx, []string{"seguimiento"}, nil); err != nil {
		t.Fatal(err)
	}
	if len(scr.detailCalls) != 1 || scr.detailCalls[0] != "40-1-COT26" {
		t.Fatalf("detail calls = %v", scr.detailCalls)
	}

	tender, _ := svc.TenderByID(ctx, cands[0].ID)
	if tender.Description == nil || *tender.Description != "detalle actualizado" {
		t.Fatalf("description = %v", tender.Description)
	}
	if tender.StateText != "Cerrada Recepción" {
		t.Fatalf("state = %q", tender.StateText)
	}
}

func TestSelectiveUpdateScopeAllSweepsListing(t *testing.T) {
	scr := &stubScraper{
		items: []mpapi.ListItem{listItem("50-1-COT26", "Algo", "Org A")},
	}
	svc, _ := newService(t, scr)
	ctx := context.Background()

	if _, err := svc.FullHarvest(ctx, time.Now(), time.Now(), 0, nil); err != nil {
		t.Fatal(err)
	}
	scr.listCalls = 0

	if err := svc.SelectiveUpdate(ctx, []string{"all"}, nil); err != nil {
		t.Fatal(err)
	}
	if scr.listCalls != 1 {
		t.Fatalf("list calls = %d, want 1 (active-state sweep)", scr.listCalls)
	}
}

func TestSelectiveUpdateSessionError(t *testing.T) {
	scr := &stubScraper{sessionErr: fmt.Errorf("%w: handshake", monitor.ErrSessionAcquisition)}
	svc, _ := newService(t, scr)

	err := svc.SelectiveUpdate(context.Background(), []string{"seguimiento"}, nil)
	if !errors.Is(err, monitor.ErrSelectiveUpdate) {
		t.Fatalf("err = %v, want ErrSelectiveUpdate", err)
	}
}

func TestMaintenanceSweepNeverFails(t *testing.T) {
	svc, st := newService(t, &stubScraper{})
	ctx := context.Background()

	if err := st.BulkUpsertTenders(ctx, []store.TenderUpsert{{
		Code: "60-1-COT26", Name: "vieja", Organism: "O",
		PublishedOn: "2026-05-01", CloseAt: time.Now().AddDate(0, 0, -90), StateText: "Publicada",
	}}); err != nil {
		t.Fatal(err)
	}

	svc.MaintenanceSweep(ctx)

	// Expired active row was closed first, then aged out by retention.
	var count int
	st.DB.QueryRow(`SELECT COUNT(*) FROM tenders`).Scan(&count)
	if count != 0 {
		t.Fatalf("remaining = %d, want 0", count)
	}
}
