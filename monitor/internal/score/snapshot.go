package score

import (
	"sort"
	"sync/atomic"
)

// Keyword is one scoring rule with per-field weights. Norm is computed
// once at snapshot build time.
type Keyword struct {
	Raw         string
	Norm        string
	Title       int
	Description int
	Products    int
}

// OrganismRule marks an organism as prioritized (bonus points) or
// unwanted (hard rejection).
type OrganismRule struct {
	OrganismID int64
	Unwanted   bool
	Points     int
}

// Organism pairs a stored organism row with its display name, used for
// resolving the free-text organism field on listing rows.
type Organism struct {
	ID   int64
	Name string
}

// Snapshot is an immutable, precomputed view of the rule set. Engines
// read from a snapshot without locking; edits publish a fresh one.
type Snapshot struct {
	keywords []Keyword

	priority map[int64]int
	unwanted map[int64]struct{}

	nameToID map[string]int64
	names    []string
}

// NewSnapshot precomputes lookup structures from the raw rule rows.
// Organism names are normalized and kept in a sorted slice so that the
// substring fallback in resolveOrganism is deterministic.
func NewSnapshot(keywords []Keyword, rules []OrganismRule, orgs []Organism) *Snapshot {
	s := &Snapshot{
		keywords: make([]Keyword, 0, len(keywords)),
		priority: make(map[int64]int),
		unwanted: make(map[int64]struct{}),
		nameToID: make(map[string]int64, len(orgs)),
	}
	for _, k := range keywords {
		k.Norm = Normalize(k.Raw)
		if k.Norm == "" {
			continue
		}
		s.keywords = append(s.keywords, k)
	}
	for _, r := range rules {
		if r.Unwanted {
			s.unwanted[r.OrganismID] = struct{}{}
		} else {
			s.priority[r.OrganismID] = r.Points
		}
	}
	for _, o := range orgs {
		n := Normalize(o.Name)
		if n == "" {
			continue
		}
		if _, dup := s.nameToID[n]; !dup {
			s.nameToID[n] = o.ID
			s.names = append(s.names, n)
		}
	}
	sort.Strings(s.names)
	return s
}

// Cache holds the currently published snapshot. Current never returns
// nil; a zero Cache serves an empty rule set.
type Cache struct {
	cur atomic.Pointer[Snapshot]
}

func (c *Cache) Current() *Snapshot {
	if s := c.cur.Load(); s != nil {
		return s
	}
	return NewSnapshot(nil, nil, nil)
}

func (c *Cache) Publish(s *Snapshot) {
	c.cur.Store(s)
}
