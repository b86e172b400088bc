// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/pdiddy/paperharvest/internal/httputil"
	"github.com/pdiddy/paperharvest/internal/query"
	"github.com/pdiddy/paperharvest/pkg/types"
)

// Labels for the two preprint servers sharing the Highwire platform.
const (
	MedRxivLabel = "medRxiv"
	BioRxivLabel = "bioRxiv"
)

// rxivMaxHits caps how many result pages are walked per search URL.
const rxivMaxHits = 1000

// Overridable in tests.
var (
	rxivBase    = "https://www.medrxiv.org"
	rxivAPIBase = "https://api.biorxiv.org"
)

// Rxiv harvests preprints from medRxiv or bioRxiv. Result pages come
// from the Highwire HTML search, full records from the api.biorxiv.org
// details endpoint. See https://www.medrxiv.org/content/search-tips.
type Rxiv struct {
	fetcher  *httputil.Fetcher
	database string
	log      zerolog.Logger
}

// NewMedRxiv builds a source for the medRxiv preprint server.
func NewMedRxiv(fetcher *httputil.Fetcher, log zerolog.Logger) *Rxiv {
	return newRxiv(fetcher, MedRxivLabel, log)
}

// NewBioRxiv builds a source for the bioRxiv preprint server.
func NewBioRxiv(fetcher *httputil.Fetcher, log zerolog.Logger) *Rxiv {
	return newRxiv(fetcher, BioRxivLabel, log)
}

func newRxiv(fetcher *httputil.Fetcher, database string, log zerolog.Logger) *Rxiv {
	return &Rxiv{
		fetcher:  fetcher,
		database: database,
		log:      log.With().Str("database", database).Logger(),
	}
}

func (s *Rxiv) Name() string { return s.database }

// Harvest walks the result pages of every group URL, then pulls each
// paper's record by DOI. A record that fails to resolve is skipped.
func (s *Rxiv) Harvest(ctx context.Context, req Request, col Collector) error {
	urls, err := s.searchURLs(req)
	if err != nil {
		return err
	}

	for i, u := range urls {
		if col.ReachedLimit(s.database) {
			break
		}

		pages, err := s.collectPages(ctx, u)
		if err != nil {
			return fmt.Errorf("searching %s: %w", s.database, err)
		}

		total := 0
		if len(pages) > 0 {
			total = pages[0].total
		}
		s.log.Info().Int("total", total).Msgf("papers to fetch from request %d/%d", i+1, len(urls))

		var dois []string
		for _, p := range pages {
			dois = append(dois, p.dois...)
		}

		count := 0
		for _, doi := range dois {
			if count >= total || col.ReachedLimit(s.database) {
				break
			}
			count++

			paper, err := s.paperByDOI(ctx, doi)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Debug().Err(err).Str("doi", doi).Msgf("(%d/%d) skipping record", count, total)
				continue
			}
			s.log.Info().Msgf("(%d/%d) fetched: %s", count, total, paper.Title)
			paper.AddDatabase(s.database)
			col.AddPaper(paper)
		}
	}
	return nil
}

// searchURLs builds one Highwire search URL per top-level OR group.
// The platform only supports a single connector kind inside a group
// and no wildcards, nesting or NOT connectors.
func (s *Rxiv) searchURLs(req Request) ([]string, error) {
	q := req.Query
	if strings.ContainsAny(q, "?*") {
		return nil, fmt.Errorf("%s does not support wildcard queries", s.database)
	}
	if strings.Contains(q, " AND NOT ") {
		return nil, fmt.Errorf("%s does not support NOT connectors", s.database)
	}

	depth := 0
	for _, r := range q {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth > 1 {
			return nil, fmt.Errorf("%s supports at most one level of parentheses grouping", s.database)
		}
	}
	if strings.Contains(q, ") AND (") {
		return nil, fmt.Errorf("%s only supports the OR connector between groups", s.database)
	}

	q = query.ApplyToTerms(q, func(term string) string {
		return strings.ReplaceAll(term, " ", "+")
	})
	groups := strings.Split(q, ") OR (")
	for i, g := range groups {
		groups[i] = strings.TrimSuffix(strings.TrimPrefix(g, "("), ")")
	}

	since := "1970-01-01"
	if !req.Since.IsZero() {
		since = req.Since.Format("2006-01-02")
	}
	until := time.Now().Format("2006-01-02")
	if !req.Until.IsZero() {
		until = req.Until.Format("2006-01-02")
	}

	suffix := "jcode%3A" + strings.ToLower(s.database) +
		"%20limit_from%3A" + since + "%20limit_to%3A" + until +
		"%20numresults%3A75%20sort%3Apublication-date%20direction%3Adescending%20format_result%3Acondensed"

	encoder := strings.NewReplacer(
		"+", "%252B",
		" OR ", "%2B",
		" AND ", "%2B",
		"[", "%2522",
		"]", "%2522",
	)

	urls := make([]string, 0, len(groups))
	for _, group := range groups {
		ors := strings.Count(group, " OR ")
		ands := strings.Count(group, " AND ")
		if ors > 0 && ands > 0 {
			return nil, fmt.Errorf("mixed connectors in query group %q, use only ANDs or only ORs", group)
		}
		matchFlag := "match-any"
		if ands > 0 {
			matchFlag = "match-all"
		}

		urls = append(urls, rxivBase+"/search/abstract_title%3A"+encoder.Replace(group)+
			"%20abstract_title_flags%3A"+matchFlag+"%20"+suffix)
	}
	return urls, nil
}

// rxivPage is what one Highwire result page contributes.
type rxivPage struct {
	total int
	dois  []string
	next  string
}

// collectPages fetches a result page and follows the next-page link
// until the chain runs out or the walked total passes rxivMaxHits.
func (s *Rxiv) collectPages(ctx context.Context, u string) ([]rxivPage, error) {
	var pages []rxivPage
	walked := 0
	for u != "" {
		resp, err := s.fetcher.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		page, err := parseRxivResultPage(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("parsing result page %s: %w", u, err)
		}
		pages = append(pages, page)

		walked += page.total
		if walked >= rxivMaxHits {
			break
		}
		u = page.next
	}
	return pages, nil
}

// parseRxivResultPage extracts the result count, the DOI of every hit
// and the next-page link from a Highwire search result page.
func parseRxivResultPage(body []byte) (rxivPage, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return rxivPage{}, err
	}

	var page rxivPage

	title := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && nodeAttr(n, "id") == "page-title"
	})
	if title == nil {
		return rxivPage{}, fmt.Errorf("result page has no page-title element")
	}
	titleText := strings.TrimSpace(nodeText(title))
	if strings.Contains(strings.ToLower(titleText), "no results") {
		return page, nil
	}
	fields := strings.Fields(titleText)
	if len(fields) == 0 {
		return rxivPage{}, fmt.Errorf("unparseable result count %q", titleText)
	}
	page.total, err = strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return rxivPage{}, fmt.Errorf("unparseable result count %q", titleText)
	}
	if page.total == 0 {
		return page, nil
	}

	walkNodes(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch nodeAttr(n, "class") {
		case "highwire-cite-metadata-doi highwire-cite-metadata":
			doi := strings.TrimSpace(nodeText(n))
			doi = strings.TrimPrefix(doi, "https://doi.org/")
			if doi != "" {
				page.dois = append(page.dois, doi)
			}
		case "link-icon link-icon-after":
			if page.next == "" {
				if href := nodeAttr(n, "href"); href != "" {
					page.next = rxivBase + href
				}
			}
		}
	})
	return page, nil
}

// paperByDOI resolves one preprint record through the details API.
func (s *Rxiv) paperByDOI(ctx context.Context, doi string) (*types.Paper, error) {
	var details rxivDetails
	u := rxivAPIBase + "/details/" + strings.ToLower(s.database) + "/" + doi
	if err := s.fetcher.GetJSON(ctx, u, &details); err != nil {
		return nil, err
	}
	if len(details.Collection) == 0 {
		return nil, &SkipError{Reason: "details API returned no record"}
	}
	return extractRxivPaper(details.Collection[0])
}

func extractRxivPaper(rec rxivRecord) (*types.Paper, error) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return nil, &SkipError{Reason: "record has no title"}
	}

	date, err := time.Parse("2006-01-02", rec.Date)
	if err != nil {
		return nil, &SkipError{Reason: fmt.Sprintf("unparseable publication date %q", rec.Date)}
	}

	paper := &types.Paper{
		Title:           title,
		Abstract:        strings.TrimSpace(rec.Abstract),
		PublicationDate: date,
		DOI:             rec.DOI,
	}
	paper.AddURL("https://doi.org/" + rec.DOI)

	for _, author := range strings.Split(rec.Authors, ";") {
		if a := strings.TrimSpace(author); a != "" {
			paper.Authors = append(paper.Authors, a)
		}
	}

	// Once the preprint is published elsewhere the details API points
	// at the journal DOI.
	if published := strings.TrimSpace(rec.Published); published != "" && !strings.EqualFold(published, "na") {
		paper.DOI = strings.ReplaceAll(published, `\`, "")
	}

	return paper, nil
}

type rxivDetails struct {
	Collection []rxivRecord `json:"collection"`
}

type rxivRecord struct {
	Title     string `json:"title"`
	Abstract  string `json:"abstract"`
	Authors   string `json:"authors"`
	Date      string `json:"date"`
	DOI       string `json:"doi"`
	Published string `json:"published"`
}

// findNode returns the first node in document order matching pred.
func findNode(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func walkNodes(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNodes(c, fn)
	}
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}
