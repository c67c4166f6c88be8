package store

import (
	"context"
	"fmt"
	"strings"
)

// KeywordRule is a scoring keyword with per-field weights. Weights can
// be negative to demote matches.
type KeywordRule struct {
	ID                int64
	Keyword           string
	TitlePoints       int
	DescriptionPoints int
	ProductPoints     int
}

// OrganismRule ties a rule kind to a stored organism.
type OrganismRule struct {
	ID           int64
	OrganismID   int64
	OrganismName string
	Kind         string // "priority" or "unwanted"
	Points       int
}

// Organism is an id/name pair for rule editing and name resolution.
type Organism struct {
	ID   int64
	Name string
}

// ListKeywords returns all keyword rules ordered by keyword.
func (s *Store) ListKeywords(ctx context.Context) ([]KeywordRule, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, keyword, title_points, description_points, product_points
		FROM keyword_rules ORDER BY keyword`)
	if err != nil {
		return nil, fmt.Errorf("store: list keywords: %w", err)
	}
	defer rows.Close()

	var out []KeywordRule
	for rows.Next() {
		var k KeywordRule
		if err := rows.Scan(&k.ID, &k.Keyword, &k.TitlePoints, &k.DescriptionPoints, &k.ProductPoints); err != nil {
			return nil, fmt.Errorf("store: list keywords: scan: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// AddKeyword stores a keyword rule. The keyword is trimmed and
// lowercased so the unique index catches case variants.
func (s *Store) AddKeyword(ctx context.Context, keyword string, title, description, product int) error {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return fmt.Errorf("store: add keyword: empty keyword")
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO keyword_rules (keyword, title_points, description_points, product_points)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(keyword) DO UPDATE SET
			title_points       = excluded.title_points,
			description_points = excluded.description_points,
			product_points     = excluded.product_points`,
		keyword, title, description, product)
	if err != nil {
		return fmt.Errorf("store: add keyword %q: %w", keyword, err)
	}
	return nil
}

// DeleteKeyword removes a keyword rule by id.
func (s *Store) DeleteKeyword(ctx context.Context, id int64) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM keyword_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete keyword %d: %w", id, err)
	}
	return nil
}

// ListOrganismRules returns all organism rules with the organism name
// joined in for display.
func (s *Store) ListOrganismRules(ctx context.Context) ([]OrganismRule, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT r.id, r.organism_id, o.name, r.kind, r.points
		FROM organism_rules r JOIN organisms o ON o.id = r.organism_id
		ORDER BY o.name`)
	if err != nil {
		return nil, fmt.Errorf("store: list organism rules: %w", err)
	}
	defer rows.Close()

	var out []OrganismRule
	for rows.Next() {
		var r OrganismRule
		if err := rows.Scan(&r.ID, &r.OrganismID, &r.OrganismName, &r.Kind, &r.Points); err != nil {
			return nil, fmt.Errorf("store: list organism rules: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetOrganismRule upserts the rule for one organism. An organism holds
// at most one rule: setting it unwanted replaces any priority bonus.
func (s *Store) SetOrganismRule(ctx context.Context, organismID int64, unwanted bool, points int) error {
	kind := "priority"
	if unwanted {
		kind = "unwanted"
		points = 0
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO organism_rules (organism_id, kind, points) VALUES (?, ?, ?)
		ON CONFLICT(organism_id) DO UPDATE SET kind = excluded.kind, points = excluded.points`,
		organismID, kind, points)
	if err != nil {
		return fmt.Errorf("store: set organism rule %d: %w", organismID, err)
	}
	return nil
}

// DeleteOrganismRule removes the rule attached to an organism.
func (s *Store) DeleteOrganismRule(ctx context.Context, organismID int64) error {
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM organism_rules WHERE organism_id = ?`, organismID); err != nil {
		return fmt.Errorf("store: delete organism rule %d: %w", organismID, err)
	}
	return nil
}

// ListOrganisms returns every stored organism ordered by name.
func (s *Store) ListOrganisms(ctx context.Context) ([]Organism, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM organisms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list organisms: %w", err)
	}
	defer rows.Close()

	var out []Organism
	for rows.Next() {
		var o Organism
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, fmt.Errorf("store: list organisms: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
