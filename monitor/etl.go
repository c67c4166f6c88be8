package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agilradar/agilradar/monitor/internal/mpapi"
	"github.com/agilradar/agilradar/monitor/internal/score"
	"github.com/agilradar/agilradar/monitor/internal/store"
)

// FullHarvest runs the complete pipeline for a date range: listing sweep,
// bulk upsert, score recompute, and automatic detail enrichment of the
// best candidates. Returns the number of listing rows found.
func (s *Service) FullHarvest(ctx context.Context, from, to time.Time, maxPages int, p *Progress) (int, error) {
	p.text("Iniciando Fase 1 (Buscando listado)...")
	p.pct(5)

	if err := s.store.MarkAllOrganismsSeen(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRepositoryLoad, err)
	}

	items, err := s.scraper.FetchList(ctx, from.Format("2006-01-02"), to.Format("2006-01-02"), maxPages, p.Text)
	if err != nil {
		if errors.Is(err, ErrSessionAcquisition) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrListScrape, err)
	}
	if len(items) == 0 {
		p.text("No se encontraron datos nuevos.")
		p.pct(100)
		return 0, nil
	}

	p.pct(20)
	p.text(fmt.Sprintf("Guardando %d registros en BD...", len(items)))
	if err := s.store.BulkUpsertTenders(ctx, toUpserts(items)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRepositoryLoad, err)
	}

	p.pct(30)
	if _, err := s.recomputeScores(ctx, p); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRepositoryTransform, err)
	}

	// Enrichment is best-effort: a detail failure never fails the harvest.
	candidates, err := s.store.DetailCandidates(ctx, s.cfg.MinDetailScore)
	if err != nil {
		s.logger.Error("harvest: detail candidates", "error", err)
	} else if len(candidates) > 0 {
		p.text(fmt.Sprintf("Iniciando Fase 2 para %d oportunidades relevantes...", len(candidates)))
		s.enrichDetails(ctx, candidates, p)
	}

	p.text("Proceso Completo.")
	p.pct(100)
	return len(items), nil
}

// RecomputeAllScores re-scores every stored tender against the current
// rules. Returns how many rows actually changed.
func (s *Service) RecomputeAllScores(ctx context.Context, p *Progress) (int, error) {
	p.text("Recargando reglas...")
	n, err := s.recomputeScores(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRecompute, err)
	}
	p.pct(100)
	return n, nil
}

// recomputeScores walks the whole table, re-runs both phases in memory,
// and writes back only the rows whose score changed. Trace-only drift
// with an identical score is not worth a write.
func (s *Service) recomputeScores(ctx context.Context, p *Progress) (int, error) {
	if err := s.refreshRules(ctx); err != nil {
		return 0, err
	}
	snap := s.rules.Current()

	candidates, err := s.store.ScoreCandidates(ctx)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	p.text(fmt.Sprintf("Recalculando puntajes de %d registros...", len(candidates)))

	var updates []store.ScoreUpdate
	for i, c := range candidates {
		total, trace := snap.Phase1(score.Phase1Input{
			Name:         c.Name,
			StateText:    c.StateText,
			OrganismName: c.OrganismName,
		})

		if hasDetailData(c) {
			in := score.Phase2Input{}
			if c.Description != nil {
				in.Description = *c.Description
			}
			if c.ProductsJSON != nil {
				in.Products = []byte(*c.ProductsJSON)
			}
			pts2, trace2 := snap.Phase2(in)
			total += pts2
			trace = append(trace, trace2...)
		}

		if total != c.Score {
			updates = append(updates, store.ScoreUpdate{ID: c.ID, Score: total, Trace: trace})
		}
		if i%200 == 0 {
			p.pct((i + 1) * 100 / len(candidates))
		}
	}

	return s.store.BulkUpdateScores(ctx, updates)
}

// hasDetailData reports whether phase-two input exists for a candidate.
func hasDetailData(c store.ScoreCandidate) bool {
	if c.Description != nil && *c.Description != "" {
		return true
	}
	if c.ProductsJSON == nil {
		return false
	}
	switch *c.ProductsJSON {
	case "", "null", "[]":
		return false
	}
	return true
}

// SelectiveUpdate refreshes existing rows instead of discovering new
// ones. Scopes: "candidatas" re-sweeps the listing over the active date
// range, "seguimiento" and "ofertadas" re-fetch details for followed and
// bid tenders, "all" does everything.
func (s *Service) SelectiveUpdate(ctx context.Context, scopes []string, p *Progress) error {
	if len(scopes) == 0 {
		scopes = []string{"all"}
	}
	in := func(scope string) bool {
		for _, sc := range scopes {
			if sc == scope {
				return true
			}
		}
		return false
	}

	if err := s.selectiveUpdate(ctx, in, p); err != nil {
		return fmt.Errorf("%w: %v", ErrSelectiveUpdate, err)
	}
	p.text("Actualización finalizada.")
	p.pct(100)
	return nil
}

func (s *Service) selectiveUpdate(ctx context.Context, in func(string) bool, p *Progress) error {
	if in("candidatas") || in("all") {
		if err := s.refreshActiveStates(ctx, p); err != nil {
			return err
		}
	}

	if in("seguimiento") || in("ofertadas") || in("all") {
		if err := s.scraper.EnsureSession(ctx, p.Text); err != nil {
			return err
		}
		p.text("Seleccionando licitaciones para detalle...")

		var lists [][]store.Tender
		if in("seguimiento") || in("all") {
			followed, err := s.store.Followed(ctx)
			if err != nil {
				return err
			}
			lists = append(lists, followed)
		}
		if in("ofertadas") || in("all") {
			bidded, err := s.store.Bidded(ctx)
			if err != nil {
				return err
			}
			lists = append(lists, bidded)
		}

		candidates := dedupeTenders(lists)
		if len(candidates) > 0 {
			p.text(fmt.Sprintf("Actualizando detalle de %d CAs...", len(candidates)))
			s.enrichDetails(ctx, candidates, p)
		} else if !in("candidatas") {
			p.text("Nada pendiente en Seguimiento/Ofertadas.")
		}
	}
	return nil
}

// refreshActiveStates re-sweeps the listing over the publication range
// of the active tenders so their states and bidder counts catch up.
// The lower bound is clamped to five days back; without the clamp a
// single stale row would drag the sweep across months of pages.
func (s *Service) refreshActiveStates(ctx context.Context, p *Progress) error {
	p.text("Analizando fechas de candidatas activas...")
	lo, hi, ok, err := s.store.ActiveDateRange(ctx)
	if err != nil {
		return err
	}
	if !ok {
		p.text("No hay candidatas activas para actualizar.")
		return nil
	}

	today := s.now().Format("2006-01-02")
	floor := s.now().AddDate(0, 0, -5).Format("2006-01-02")
	if lo < floor {
		p.text(fmt.Sprintf("Ajustando rango: %s es muy antiguo. Usando %s.", lo, floor))
		lo = floor
	}
	if hi < today {
		hi = today
	}

	p.text(fmt.Sprintf("Actualizando estados (%s al %s)...", lo, hi))
	items, err := s.scraper.FetchList(ctx, lo, hi, 0, p.Text)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		p.text("No se detectaron cambios en candidatas.")
		return nil
	}

	p.text(fmt.Sprintf("Sincronizando %d registros...", len(items)))
	if err := s.store.BulkUpsertTenders(ctx, toUpserts(items)); err != nil {
		return err
	}
	if _, err := s.store.CloseExpiredLocally(ctx, s.now()); err != nil {
		return err
	}
	return nil
}

// enrichDetails fetches the ficha for each candidate, recomputes its
// combined score, and persists both. Per-item failures are logged and
// skipped so one dead tender cannot stall the batch.
func (s *Service) enrichDetails(ctx context.Context, candidates []store.DetailCandidate, p *Progress) {
	if err := s.refreshRules(ctx); err != nil {
		s.logger.Error("enrich: refresh rules", "error", err)
		return
	}
	snap := s.rules.Current()

	for i, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		p.pct((i + 1) * 100 / len(candidates))
		p.text(fmt.Sprintf("Actualizando: %s", c.Code))

		detail, err := s.scraper.FetchDetail(ctx, c.Code)
		if err != nil {
			s.logger.Error("enrich: detail fetch", "code", c.Code, "error", err)
			continue
		}
		if detail == nil {
			s.logger.Warn("enrich: ficha unavailable", "code", c.Code)
			continue
		}

		stateText := c.StateText
		if detail.Estado != "" {
			stateText = detail.Estado
		}
		pts1, trace1 := snap.Phase1(score.Phase1Input{
			Name:         c.Name,
			StateText:    stateText,
			OrganismName: c.OrganismName,
		})
		in := score.Phase2Input{Products: detail.Productos}
		if detail.Descripcion != nil {
			in.Description = *detail.Descripcion
		}
		pts2, trace2 := snap.Phase2(in)

		upd := toDetailUpdate(detail)
		if err := s.store.UpdateDetail(ctx, c.Code, upd, pts1+pts2, append(trace1, trace2...)); err != nil {
			s.logger.Error("enrich: persist detail", "code", c.Code, "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.DetailDelay):
		}
	}
}

// MaintenanceSweep closes expired tenders and purges old settled rows.
// Failures are logged, not returned; maintenance must never break a run.
func (s *Service) MaintenanceSweep(ctx context.Context) {
	closed, err := s.store.CloseExpiredLocally(ctx, s.now())
	if err != nil {
		s.logger.Error("maintenance: close expired", "error", err)
		return
	}
	swept, err := s.store.SweepOldRecords(ctx, s.now(), s.cfg.RetentionDays)
	if err != nil {
		s.logger.Error("maintenance: sweep", "error", err)
		return
	}
	if closed > 0 || swept > 0 {
		s.logger.Info("maintenance: done", "closed", closed, "swept", swept)
	}
}

func toUpserts(items []mpapi.ListItem) []store.TenderUpsert {
	out := make([]store.TenderUpsert, 0, len(items))
	for _, it := range items {
		code := it.Code()
		if code == "" {
			continue
		}
		u := store.TenderUpsert{
			Code:        code,
			Name:        it.Nombre,
			Organism:    it.Organismo,
			PublishedOn: publishedDate(it.FechaPublicacion),
			CloseAt:     mpapi.ParseTime(it.FechaCierre),
			StateText:   it.Estado,
		}
		if it.MontoCLP != nil {
			u.AmountCLP = float64(*it.MontoCLP)
		}
		if it.EstadoConvocatoria != nil {
			u.StateTag = int(*it.EstadoConvocatoria)
		}
		if it.Proveedores != nil {
			u.BidderCount = int(*it.Proveedores)
		}
		out = append(out, u)
	}
	return out
}

// publishedDate normalizes a publication stamp to YYYY-MM-DD so the
// stored values compare lexicographically.
func publishedDate(s string) string {
	if t := mpapi.ParseTime(s); !t.IsZero() {
		return t.Format("2006-01-02")
	}
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

func toDetailUpdate(d *mpapi.Detail) store.DetailUpdate {
	upd := store.DetailUpdate{
		Description:     d.Descripcion,
		DeliveryAddress: d.DireccionEntrega,
		SecondCloseAt:   mpapi.ParseTime(d.FechaCierreP2),
		StateText:       d.Estado,
	}
	if len(d.Productos) > 0 && string(d.Productos) != "null" {
		upd.ProductsJSON = string(d.Productos)
	}
	if d.PlazoEntrega != nil {
		days := int(*d.PlazoEntrega)
		upd.DeliveryDays = &days
	}
	if d.EstadoConvocatoria != nil {
		tag := int(*d.EstadoConvocatoria)
		upd.StateTag = &tag
	}
	if d.Proveedores != nil {
		n := int(*d.Proveedores)
		upd.BidderCount = &n
	}
	return upd
}

func dedupeTenders(lists [][]store.Tender) []store.DetailCandidate {
	seen := make(map[int64]struct{})
	var out []store.DetailCandidate
	for _, list := range lists {
		for _, t := range list {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			out = append(out, store.DetailCandidate{
				ID:           t.ID,
				Code:         t.Code,
				Name:         t.Name,
				OrganismName: t.Organism,
				StateText:    t.StateText,
			})
		}
	}
	return out
}
