package score

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ScoreRejected marks tenders from unwanted organisms. It sorts below
	// every real score and is never floored back to zero.
	ScoreRejected = -9999

	// SecondCallBonus rewards tenders republished on a second call.
	SecondCallBonus = 20
)

// Phase1Input carries the listing-level fields available before any
// detail fetch.
type Phase1Input struct {
	Name         string
	StateText    string
	OrganismName string
}

// Phase2Input carries the detail-level fields. Products is the raw JSON
// from the ficha endpoint: an array of objects, a JSON-encoded string of
// that array, or null.
type Phase2Input struct {
	Description string
	Products    json.RawMessage
}

// Phase1 scores a tender from its listing fields. The result is floored
// at zero except for the rejection sentinel, which always dominates.
func (s *Snapshot) Phase1(in Phase1Input) (int, []string) {
	nameNorm := Normalize(in.Name)
	if nameNorm == "" {
		return 0, []string{"Error: Sin nombre"}
	}

	total := 0
	trace := []string{}

	if orgID, ok := s.resolveOrganism(in.OrganismName); ok {
		if _, bad := s.unwanted[orgID]; bad {
			return ScoreRejected, []string{"Organism rejected"}
		}
		if pts, ok := s.priority[orgID]; ok {
			total += pts
			trace = append(trace, fmt.Sprintf("Org. Prioritario (+%d)", pts))
		}
	}

	if strings.Contains(Normalize(in.StateText), "segundo llamado") {
		total += SecondCallBonus
		trace = append(trace, fmt.Sprintf("2° Llamado (+%d)", SecondCallBonus))
	}

	for _, kw := range s.keywords {
		if kw.Title != 0 && strings.Contains(nameNorm, kw.Norm) {
			total += kw.Title
			trace = append(trace, fmt.Sprintf("KW Título: '%s' (+%d)", kw.Raw, kw.Title))
		}
	}

	if total < 0 {
		total = 0
	}
	return total, trace
}

// Phase2 scores the detail fields. It returns only the delta over the
// phase-one score and applies no floor: negative keyword weights can
// pull the combined score down.
func (s *Snapshot) Phase2(in Phase2Input) (int, []string) {
	descNorm := Normalize(in.Description)
	prodNorm := flattenProducts(in.Products)

	total := 0
	trace := []string{}

	for _, kw := range s.keywords {
		if kw.Description != 0 && descNorm != "" && strings.Contains(descNorm, kw.Norm) {
			total += kw.Description
			trace = append(trace, fmt.Sprintf("KW Descripcion: '%s' (+%d)", kw.Raw, kw.Description))
		}
		if kw.Products != 0 && prodNorm != "" && strings.Contains(prodNorm, kw.Norm) {
			total += kw.Products
			trace = append(trace, fmt.Sprintf("KW Producto: '%s' (+%d)", kw.Raw, kw.Products))
		}
	}
	return total, trace
}

// resolveOrganism maps the free-text organism field from a listing row
// to a stored organism id. Exact match on the normalized name first,
// then a substring scan over the sorted name list so partial upstream
// names still resolve, and resolve the same way every run.
func (s *Snapshot) resolveOrganism(name string) (int64, bool) {
	orgNorm := Normalize(name)
	if orgNorm == "" {
		return 0, false
	}
	if id, ok := s.nameToID[orgNorm]; ok {
		return id, true
	}
	for _, key := range s.names {
		if strings.Contains(orgNorm, key) {
			return s.nameToID[key], true
		}
	}
	return 0, false
}

type product struct {
	Nombre      string `json:"nombre"`
	Descripcion string `json:"descripcion"`
}

// flattenProducts folds the polymorphic products payload into one
// normalized search string. The upstream sends either a JSON array or
// that same array encoded as a JSON string; anything else flattens to "".
func flattenProducts(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var prods []product
	if err := json.Unmarshal(raw, &prods); err != nil {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return ""
		}
		if err := json.Unmarshal([]byte(encoded), &prods); err != nil {
			return ""
		}
	}
	parts := make([]string, 0, len(prods))
	for _, p := range prods {
		parts = append(parts, Normalize(p.Nombre+" "+p.Descripcion))
	}
	return strings.Join(parts, " | ")
}
