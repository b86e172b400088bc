// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package collect accumulates papers across harvesting sources,
// merging duplicates and enforcing collection limits. A Collection is
// safe for concurrent use by sources running in parallel.
package collect

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pdiddy/paperharvest/pkg/types"
)

// Collection gathers harvested papers. Duplicates are detected by DOI
// first and normalized title second, and merged rather than appended.
type Collection struct {
	mu               sync.Mutex
	limit            int
	limitPerDatabase int
	papers           []*types.Paper
	index            map[string]int // dedup key -> index in papers
	perDatabase      map[string]int
}

// New builds a Collection. A zero limit means unlimited; the same goes
// for limitPerDatabase.
func New(limit, limitPerDatabase int) *Collection {
	return &Collection{
		limit:            limit,
		limitPerDatabase: limitPerDatabase,
		index:            make(map[string]int),
		perDatabase:      make(map[string]int),
	}
}

// ReachedLimit reports whether the whole collection, or the given
// database's share of it, is full.
func (c *Collection) ReachedLimit(database string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && len(c.papers) >= c.limit {
		return true
	}
	return c.limitPerDatabase > 0 && c.perDatabase[database] >= c.limitPerDatabase
}

// AddPaper records a paper, merging it into a previously collected
// duplicate when one exists. Papers arriving after the collection is
// full are dropped.
func (c *Collection) AddPaper(p *types.Paper) {
	if p == nil || p.Title == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doiKey := ""
	if p.DOI != "" {
		doiKey = "doi:" + strings.ToLower(p.DOI)
	}
	titleKey := ""
	if t := normalizeTitle(p.Title); t != "" {
		titleKey = "title:" + t
	}

	if idx, ok := c.lookup(doiKey, titleKey); ok {
		dst := c.papers[idx]
		var newDatabases []string
		for _, db := range p.Databases {
			if !dst.HasDatabase(db) {
				newDatabases = append(newDatabases, db)
			}
		}
		merge(dst, p)
		// A duplicate can supply a key the first copy lacked, such
		// as a DOI learned from a second database. Register it so
		// later arrivals match on either key.
		for _, key := range []string{doiKey, titleKey} {
			if key == "" {
				continue
			}
			if _, seen := c.index[key]; !seen {
				c.index[key] = idx
			}
		}
		for _, db := range newDatabases {
			c.perDatabase[db]++
		}
		return
	}

	if c.limit > 0 && len(c.papers) >= c.limit {
		return
	}

	idx := len(c.papers)
	c.papers = append(c.papers, p)
	if doiKey != "" {
		c.index[doiKey] = idx
	}
	if titleKey != "" {
		c.index[titleKey] = idx
	}
	for _, db := range p.Databases {
		c.perDatabase[db]++
	}
}

func (c *Collection) lookup(keys ...string) (int, bool) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if idx, ok := c.index[key]; ok {
			return idx, true
		}
	}
	return 0, false
}

// Papers returns a snapshot of the collected papers in arrival order.
func (c *Collection) Papers() []*types.Paper {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Paper, len(c.papers))
	copy(out, c.papers)
	return out
}

// Len returns the number of distinct papers collected so far.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.papers)
}

// Counts returns how many distinct papers each database contributed.
// A paper found by several databases counts once for each of them.
func (c *Collection) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.perDatabase))
	for db, n := range c.perDatabase {
		out[db] = n
	}
	return out
}

// merge enriches dst with the fields of a duplicate found in another
// database, preferring the more complete value on each side.
func merge(dst, src *types.Paper) {
	if dst.PublicationDate.IsZero() {
		dst.PublicationDate = src.PublicationDate
	}
	if dst.DOI == "" {
		dst.DOI = src.DOI
	}
	if len(src.Abstract) > len(dst.Abstract) {
		dst.Abstract = src.Abstract
	}
	if len(src.Authors) > len(dst.Authors) {
		dst.Authors = src.Authors
	}
	if len(src.Keywords) > len(dst.Keywords) {
		dst.Keywords = src.Keywords
	}
	if len(src.Pages) > len(dst.Pages) {
		dst.Pages = src.Pages
	}
	if src.NumberOfPages > dst.NumberOfPages {
		dst.NumberOfPages = src.NumberOfPages
	}
	if dst.PDFURL == "" {
		dst.PDFURL = src.PDFURL
	}
	for _, u := range src.URLs {
		dst.AddURL(u)
	}
	for _, db := range src.Databases {
		dst.AddDatabase(db)
	}
	if dst.Publication == nil {
		dst.Publication = src.Publication
	} else if src.Publication != nil {
		dst.Publication.Enrich(src.Publication)
	}
}

// normalizeTitle lowercases a title and strips everything but letters,
// digits and single spaces.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
