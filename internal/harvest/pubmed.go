// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperharvest/internal/httputil"
	"github.com/pdiddy/paperharvest/internal/query"
	"github.com/pdiddy/paperharvest/pkg/types"
)

// PubMedLabel tags papers harvested from PubMed.
const PubMedLabel = "PubMed"

const pubmedPageSize = 50

// pubmedBase is overridable in tests.
var pubmedBase = "https://eutils.ncbi.nlm.nih.gov"

// PubMed harvests journal articles from the NCBI E-utilities API.
// See https://www.ncbi.nlm.nih.gov/books/NBK25500/ for query tips.
type PubMed struct {
	fetcher *httputil.Fetcher
	apiKey  string
	log     zerolog.Logger
}

// NewPubMed builds a PubMed source. apiKey may be empty; NCBI then
// applies its stricter anonymous rate limits.
func NewPubMed(fetcher *httputil.Fetcher, apiKey string, log zerolog.Logger) *PubMed {
	return &PubMed{fetcher: fetcher, apiKey: apiKey, log: log.With().Str("database", PubMedLabel).Logger()}
}

func (s *PubMed) Name() string { return PubMedLabel }

// Harvest pages through esearch results and fetches record batches via
// efetch until the result set is exhausted or the collector limit hits.
func (s *PubMed) Harvest(ctx context.Context, req Request, col Collector) error {
	if !req.AllowsType("journal") {
		s.log.Info().Msg("skipping PubMed, journal publication type not in filters")
		return nil
	}

	var result pubmedSearchResult
	if err := s.fetcher.GetXML(ctx, s.searchURL(req, 0), &result); err != nil {
		return fmt.Errorf("searching PubMed: %w", err)
	}

	total := result.Count
	if result.ErrorList != nil {
		total = 0
	}
	s.log.Info().Int("total", total).Msg("papers to fetch")

	fetched := 0
	for fetched < total && !col.ReachedLimit(PubMedLabel) {
		ids := result.IDList.IDs
		if len(ids) == 0 {
			break
		}

		var set pubmedArticleSet
		if err := s.fetcher.GetXML(ctx, s.fetchURL(ids), &set); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Int("offset", fetched).Msg("fetching record batch failed, skipping page")
			fetched += len(ids)
		} else {
			for _, entry := range set.Articles {
				if fetched >= total || col.ReachedLimit(PubMedLabel) {
					break
				}
				fetched++

				paper, err := extractPubMedPaper(entry)
				if err != nil {
					s.log.Debug().Err(err).Msgf("(%d/%d) skipping record", fetched, total)
					continue
				}
				s.log.Info().Msgf("(%d/%d) fetched: %s", fetched, total, paper.Title)
				paper.AddDatabase(PubMedLabel)
				col.AddPaper(paper)
			}
		}

		if fetched >= total || col.ReachedLimit(PubMedLabel) {
			break
		}
		result = pubmedSearchResult{}
		if err := s.fetcher.GetXML(ctx, s.searchURL(req, fetched), &result); err != nil {
			return fmt.Errorf("searching PubMed at offset %d: %w", fetched, err)
		}
	}
	return nil
}

// searchURL builds the esearch URL for one result page. The bracket
// query becomes a title/abstract field query, restricted to journal
// articles that carry an abstract.
func (s *PubMed) searchURL(req Request, offset int) string {
	q := strings.ReplaceAll(req.Query, " AND NOT ", " NOT ")
	q = query.RewriteEnclosures(q, `"`, `"[TIAB]`)

	term := q + ` AND has abstract [FILT] AND "journal article"[Publication Type]`
	if !req.Since.IsZero() || !req.Until.IsZero() {
		until := req.Until
		if until.IsZero() {
			until = time.Now()
		}
		term += fmt.Sprintf(" AND %s:%s[Date - Publication]",
			req.Since.Format("2006/01/02"), until.Format("2006/01/02"))
	}

	v := url.Values{}
	v.Set("db", "pubmed")
	v.Set("term", term)
	v.Set("retstart", strconv.Itoa(offset))
	v.Set("retmax", strconv.Itoa(pubmedPageSize))
	v.Set("sort", "pub date")
	if s.apiKey != "" {
		v.Set("api_key", s.apiKey)
	}
	return pubmedBase + "/entrez/eutils/esearch.fcgi?" + v.Encode()
}

// fetchURL builds the efetch URL retrieving full records for a batch of
// PubMed IDs.
func (s *PubMed) fetchURL(ids []string) string {
	v := url.Values{}
	v.Set("db", "pubmed")
	v.Set("id", strings.Join(ids, ","))
	v.Set("rettype", "abstract")
	if s.apiKey != "" {
		v.Set("api_key", s.apiKey)
	}
	return pubmedBase + "/entrez/eutils/efetch.fcgi?" + v.Encode()
}

// extractPubMedPaper turns one efetch record into a Paper. Records
// without a title, abstract or derivable publication date come back as
// a *SkipError.
func extractPubMedPaper(entry pubmedArticle) (*types.Paper, error) {
	article := entry.MedlineCitation.Article

	title := strings.TrimSpace(string(article.ArticleTitle))
	if title == "" {
		return nil, &SkipError{Reason: "record has no title"}
	}

	date := extractPubMedDate(article)
	if date.IsZero() {
		return nil, &SkipError{Reason: "record has no publication date"}
	}

	if article.Abstract == nil || len(article.Abstract.Sections) == 0 {
		return nil, ErrEmptyAbstract
	}
	sections := make([]string, 0, len(article.Abstract.Sections))
	for _, sec := range article.Abstract.Sections {
		sections = append(sections, string(sec))
	}
	abstract := strings.TrimSpace(strings.Join(sections, "\n"))
	if abstract == "" {
		return nil, ErrEmptyAbstract
	}

	paper := &types.Paper{
		Title:           title,
		Abstract:        abstract,
		PublicationDate: date,
		Pages:           article.Pagination.MedlinePgn,
	}

	for _, id := range entry.PubmedData.ArticleIDList.IDs {
		if id.IDType == "doi" {
			paper.DOI = strings.TrimSpace(id.Value)
			break
		}
	}

	for _, author := range article.AuthorList.Authors {
		switch {
		case author.ForeName != "" || author.LastName != "":
			paper.Authors = append(paper.Authors, strings.TrimSpace(author.ForeName+" "+author.LastName))
		case author.CollectiveName != "":
			paper.Authors = append(paper.Authors, author.CollectiveName)
		}
	}

	for _, kw := range entry.MedlineCitation.KeywordList.Keywords {
		if k := strings.TrimSpace(string(kw)); k != "" {
			paper.Keywords = append(paper.Keywords, k)
		}
	}

	if journalTitle := article.Journal.Title; journalTitle != "" {
		paper.Publication = &types.Publication{
			Title:    journalTitle,
			ISSN:     article.Journal.ISSN,
			Category: types.CategoryJournal,
		}
	}

	// A lone number in MedlinePgn is not a page range.
	if pages := paper.Pages; pages != "" && !allDigits(pages) {
		if bounds := strings.SplitN(pages, "-", 2); len(bounds) == 2 {
			first, err1 := strconv.Atoi(bounds[0])
			last, err2 := strconv.Atoi(bounds[1])
			if err1 == nil && err2 == nil {
				n := last - first
				if n < 0 {
					n = -n
				}
				paper.NumberOfPages = n + 1
			}
		}
	}

	return paper, nil
}

// extractPubMedDate resolves a record's publication date. The explicit
// electronic ArticleDate wins; the journal issue's PubDate is the
// fallback with the day defaulting to 1. A record with only a year maps
// to January 1st; no year at all yields the zero time.
func extractPubMedDate(article pubmedArticleData) time.Time {
	if len(article.ArticleDates) > 0 {
		ad := article.ArticleDates[0]
		year, err := strconv.Atoi(ad.Year)
		if err == nil {
			month, day := 1, 1
			if m, err := strconv.Atoi(ad.Month); err == nil {
				month = m
			}
			if d, err := strconv.Atoi(ad.Day); err == nil {
				day = d
			}
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		}
	}

	pd := article.Journal.JournalIssue.PubDate
	year, err := strconv.Atoi(pd.Year)
	if err != nil {
		return time.Time{}
	}
	if month, ok := parseMonth(pd.Month); ok {
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// parseMonth accepts numeric months as well as English month names and
// their three-letter abbreviations.
func parseMonth(s string) (time.Month, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 12 {
		return time.Month(n), true
	}
	if len(s) >= 3 {
		if m, ok := monthNames[s[:3]]; ok {
			return m, true
		}
	}
	return 0, false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// PubMed E-utilities wire model, trimmed to the fields the extractor
// consumes.

type pubmedSearchResult struct {
	XMLName   xml.Name         `xml:"eSearchResult"`
	Count     int              `xml:"Count"`
	IDList    pubmedIDList     `xml:"IdList"`
	ErrorList *pubmedErrorList `xml:"ErrorList"`
}

type pubmedIDList struct {
	IDs []string `xml:"Id"`
}

type pubmedErrorList struct {
	PhraseNotFound []string `xml:"PhraseNotFound"`
	FieldNotFound  []string `xml:"FieldNotFound"`
}

type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation pubmedCitation `xml:"MedlineCitation"`
	PubmedData      pubmedData     `xml:"PubmedData"`
}

type pubmedCitation struct {
	Article     pubmedArticleData `xml:"Article"`
	KeywordList pubmedKeywordList `xml:"KeywordList"`
}

type pubmedArticleData struct {
	Journal      pubmedJournal     `xml:"Journal"`
	ArticleTitle flatText          `xml:"ArticleTitle"`
	Pagination   pubmedPagination  `xml:"Pagination"`
	Abstract     *pubmedAbstract   `xml:"Abstract"`
	AuthorList   pubmedAuthorList  `xml:"AuthorList"`
	ArticleDates []pubmedDateParts `xml:"ArticleDate"`
}

type pubmedJournal struct {
	ISSN         string             `xml:"ISSN"`
	Title        string             `xml:"Title"`
	JournalIssue pubmedJournalIssue `xml:"JournalIssue"`
}

type pubmedJournalIssue struct {
	PubDate pubmedDateParts `xml:"PubDate"`
}

// pubmedDateParts covers ArticleDate and PubDate. Month may be numeric
// or a month name depending on the element.
type pubmedDateParts struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

type pubmedPagination struct {
	MedlinePgn string `xml:"MedlinePgn"`
}

type pubmedAbstract struct {
	Sections []flatText `xml:"AbstractText"`
}

type pubmedAuthorList struct {
	Authors []pubmedAuthor `xml:"Author"`
}

type pubmedAuthor struct {
	ForeName       string `xml:"ForeName"`
	LastName       string `xml:"LastName"`
	CollectiveName string `xml:"CollectiveName"`
}

type pubmedKeywordList struct {
	Keywords []flatText `xml:"Keyword"`
}

type pubmedData struct {
	ArticleIDList pubmedArticleIDList `xml:"ArticleIdList"`
}

type pubmedArticleIDList struct {
	IDs []pubmedArticleID `xml:"ArticleId"`
}

type pubmedArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// flatText flattens an element's character data, including text nested
// inside markup children such as <i> or <sup>, into a single string.
type flatText string

func (t *flatText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var parts []string
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.CharData:
			if s := strings.TrimSpace(string(v)); s != "" {
				parts = append(parts, s)
			}
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				*t = flatText(strings.Join(parts, " "))
				return nil
			}
			depth--
		}
	}
}
