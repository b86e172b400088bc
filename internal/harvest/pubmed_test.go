// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperharvest/internal/httputil"
	"github.com/pdiddy/paperharvest/pkg/types"
)

// stubCollector records papers and optionally enforces a flat limit.
type stubCollector struct {
	mu     sync.Mutex
	papers []*types.Paper
	limit  int
}

func (c *stubCollector) ReachedLimit(string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit > 0 && len(c.papers) >= c.limit
}

func (c *stubCollector) AddPaper(p *types.Paper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.papers = append(c.papers, p)
}

func testFetcher(t *testing.T) *httputil.Fetcher {
	t.Helper()
	f, err := httputil.NewFetcher(types.HTTPConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		RetryAttempts:     1,
		RetryDelay:        time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	return f
}

func pubmedArticleXML(id int) string {
	return fmt.Sprintf(`<PubmedArticle>
  <MedlineCitation>
    <Article>
      <Journal>
        <ISSN IssnType="Print">1234-567%d</ISSN>
        <Title>Journal of Testing</Title>
        <JournalIssue><PubDate><Year>2020</Year><Month>Jun</Month></PubDate></JournalIssue>
      </Journal>
      <ArticleTitle>Paper number %d</ArticleTitle>
      <Pagination><MedlinePgn>10-19</MedlinePgn></Pagination>
      <Abstract><AbstractText>Abstract of paper %d.</AbstractText></Abstract>
      <AuthorList>
        <Author><LastName>Doe</LastName><ForeName>Jane</ForeName></Author>
      </AuthorList>
      <ArticleDate DateType="Electronic"><Year>2020</Year><Month>06</Month><Day>15</Day></ArticleDate>
    </Article>
    <KeywordList><Keyword>testing</Keyword></KeywordList>
  </MedlineCitation>
  <PubmedData>
    <ArticleIdList>
      <ArticleId IdType="pubmed">%d</ArticleId>
      <ArticleId IdType="doi">10.1000/test.%d</ArticleId>
    </ArticleIdList>
  </PubmedData>
</PubmedArticle>`, id%10, id, id, id, id)
}

// newPubMedServer serves esearch and efetch for a fixed corpus size and
// records the retstart offsets it saw.
func newPubMedServer(t *testing.T, total int, offsets *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "esearch"):
			offset, _ := strconv.Atoi(r.URL.Query().Get("retstart"))
			*offsets = append(*offsets, offset)
			var ids strings.Builder
			for i := offset; i < total && i < offset+pubmedPageSize; i++ {
				fmt.Fprintf(&ids, "<Id>%d</Id>", i+1)
			}
			fmt.Fprintf(w, `<eSearchResult><Count>%d</Count><IdList>%s</IdList></eSearchResult>`, total, ids.String())
		case strings.Contains(r.URL.Path, "efetch"):
			var articles strings.Builder
			for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
				n, err := strconv.Atoi(id)
				require.NoError(t, err)
				articles.WriteString(pubmedArticleXML(n))
			}
			fmt.Fprintf(w, `<PubmedArticleSet>%s</PubmedArticleSet>`, articles.String())
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestPubMedSearchURL(t *testing.T) {
	s := NewPubMed(testFetcher(t), "secret-key", zerolog.Nop())
	req := Request{
		Query: "[heart attack] AND NOT [stroke]",
		Since: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	raw := s.searchURL(req, 100)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/entrez/eutils/esearch.fcgi", u.Path)

	v := u.Query()
	assert.Equal(t, "pubmed", v.Get("db"))
	assert.Equal(t, "100", v.Get("retstart"))
	assert.Equal(t, "50", v.Get("retmax"))
	assert.Equal(t, "pub date", v.Get("sort"))
	assert.Equal(t, "secret-key", v.Get("api_key"))

	term := v.Get("term")
	assert.Contains(t, term, `"heart attack"[TIAB] NOT "stroke"[TIAB]`)
	assert.Contains(t, term, `has abstract [FILT]`)
	assert.Contains(t, term, `"journal article"[Publication Type]`)
	assert.Contains(t, term, `2019/01/01:2020/12/31[Date - Publication]`)
}

func TestPubMedSearchURL_NoDatesNoKey(t *testing.T) {
	s := NewPubMed(testFetcher(t), "", zerolog.Nop())
	raw := s.searchURL(Request{Query: "[gene]"}, 0)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	v := u.Query()
	assert.NotContains(t, v.Get("term"), "[Date - Publication]")
	assert.False(t, v.Has("api_key"))
}

func TestExtractPubMedDate(t *testing.T) {
	tests := []struct {
		name    string
		article pubmedArticleData
		want    time.Time
	}{
		{
			name: "electronic date wins",
			article: pubmedArticleData{
				ArticleDates: []pubmedDateParts{{Year: "2021", Month: "04", Day: "09"}},
				Journal: pubmedJournal{JournalIssue: pubmedJournalIssue{
					PubDate: pubmedDateParts{Year: "2020", Month: "Jan"},
				}},
			},
			want: time.Date(2021, 4, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "issue month name with day default",
			article: pubmedArticleData{
				Journal: pubmedJournal{JournalIssue: pubmedJournalIssue{
					PubDate: pubmedDateParts{Year: "2019", Month: "Mar"},
				}},
			},
			want: time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "year only",
			article: pubmedArticleData{
				Journal: pubmedJournal{JournalIssue: pubmedJournalIssue{
					PubDate: pubmedDateParts{Year: "2018"},
				}},
			},
			want: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "no year",
			article: pubmedArticleData{},
			want:    time.Time{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPubMedDate(tt.article))
		})
	}
}

func TestExtractPubMedPaper(t *testing.T) {
	entry := pubmedArticle{
		MedlineCitation: pubmedCitation{
			Article: pubmedArticleData{
				Journal: pubmedJournal{
					ISSN:  "1234-5678",
					Title: "Journal of Testing",
					JournalIssue: pubmedJournalIssue{
						PubDate: pubmedDateParts{Year: "2019", Month: "Mar"},
					},
				},
				ArticleTitle: "A study of studies",
				Pagination:   pubmedPagination{MedlinePgn: "123-145"},
				Abstract: &pubmedAbstract{Sections: []flatText{
					"Background text.", "Conclusion text.",
				}},
				AuthorList: pubmedAuthorList{Authors: []pubmedAuthor{
					{ForeName: "Jane", LastName: "Doe"},
					{CollectiveName: "The Study Group"},
				}},
			},
			KeywordList: pubmedKeywordList{Keywords: []flatText{"meta", ""}},
		},
		PubmedData: pubmedData{ArticleIDList: pubmedArticleIDList{IDs: []pubmedArticleID{
			{IDType: "pubmed", Value: "31000000"},
			{IDType: "doi", Value: "10.1000/xyz"},
		}}},
	}

	paper, err := extractPubMedPaper(entry)
	require.NoError(t, err)
	assert.Equal(t, "A study of studies", paper.Title)
	assert.Equal(t, "Background text.\nConclusion text.", paper.Abstract)
	assert.Equal(t, []string{"Jane Doe", "The Study Group"}, paper.Authors)
	assert.Equal(t, "10.1000/xyz", paper.DOI)
	assert.Equal(t, []string{"meta"}, paper.Keywords)
	assert.Equal(t, time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC), paper.PublicationDate)
	assert.Equal(t, "123-145", paper.Pages)
	assert.Equal(t, 23, paper.NumberOfPages)
	require.NotNil(t, paper.Publication)
	assert.Equal(t, "Journal of Testing", paper.Publication.Title)
	assert.Equal(t, "1234-5678", paper.Publication.ISSN)
	assert.Equal(t, types.CategoryJournal, paper.Publication.Category)
}

func TestExtractPubMedPaper_Rejections(t *testing.T) {
	base := func() pubmedArticle {
		return pubmedArticle{
			MedlineCitation: pubmedCitation{Article: pubmedArticleData{
				ArticleTitle: "Titled",
				Abstract:     &pubmedAbstract{Sections: []flatText{"Some abstract."}},
				ArticleDates: []pubmedDateParts{{Year: "2020", Month: "01", Day: "02"}},
			}},
		}
	}

	t.Run("missing title", func(t *testing.T) {
		entry := base()
		entry.MedlineCitation.Article.ArticleTitle = ""
		_, err := extractPubMedPaper(entry)
		assert.True(t, IsSkip(err))
	})

	t.Run("missing abstract", func(t *testing.T) {
		entry := base()
		entry.MedlineCitation.Article.Abstract = nil
		_, err := extractPubMedPaper(entry)
		assert.ErrorIs(t, err, ErrEmptyAbstract)
	})

	t.Run("missing date", func(t *testing.T) {
		entry := base()
		entry.MedlineCitation.Article.ArticleDates = nil
		_, err := extractPubMedPaper(entry)
		assert.True(t, IsSkip(err))
	})

	t.Run("single page number yields no page count", func(t *testing.T) {
		entry := base()
		entry.MedlineCitation.Article.Pagination.MedlinePgn = "7"
		paper, err := extractPubMedPaper(entry)
		require.NoError(t, err)
		assert.Zero(t, paper.NumberOfPages)
	})
}

func TestPubMedHarvest_Pagination(t *testing.T) {
	var offsets []int
	srv := newPubMedServer(t, 120, &offsets)
	defer srv.Close()
	t.Cleanup(overridePubMedBase(srv.URL))

	col := &stubCollector{}
	s := NewPubMed(testFetcher(t), "", zerolog.Nop())
	err := s.Harvest(context.Background(), Request{Query: "[term]"}, col)
	require.NoError(t, err)

	assert.Len(t, col.papers, 120)
	assert.Equal(t, []int{0, 50, 100}, offsets)
	assert.Equal(t, "Paper number 1", col.papers[0].Title)
	assert.Equal(t, []string{PubMedLabel}, col.papers[0].Databases)
}

func TestPubMedHarvest_StopsAtLimitMidPage(t *testing.T) {
	var offsets []int
	srv := newPubMedServer(t, 120, &offsets)
	defer srv.Close()
	t.Cleanup(overridePubMedBase(srv.URL))

	col := &stubCollector{limit: 61}
	s := NewPubMed(testFetcher(t), "", zerolog.Nop())
	err := s.Harvest(context.Background(), Request{Query: "[term]"}, col)
	require.NoError(t, err)

	assert.Len(t, col.papers, 61)
	assert.Equal(t, []int{0, 50}, offsets)
}

func TestPubMedHarvest_ZeroResults(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `<eSearchResult><Count>0</Count><IdList></IdList></eSearchResult>`)
	}))
	defer srv.Close()
	t.Cleanup(overridePubMedBase(srv.URL))

	col := &stubCollector{}
	s := NewPubMed(testFetcher(t), "", zerolog.Nop())
	err := s.Harvest(context.Background(), Request{Query: "[term]"}, col)
	require.NoError(t, err)
	assert.Empty(t, col.papers)
	assert.Equal(t, 1, calls)
}

func TestPubMedHarvest_ErrorListMeansNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<eSearchResult><Count>3</Count><IdList></IdList>`+
			`<ErrorList><PhraseNotFound>missingterm</PhraseNotFound></ErrorList></eSearchResult>`)
	}))
	defer srv.Close()
	t.Cleanup(overridePubMedBase(srv.URL))

	col := &stubCollector{}
	s := NewPubMed(testFetcher(t), "", zerolog.Nop())
	err := s.Harvest(context.Background(), Request{Query: "[term]"}, col)
	require.NoError(t, err)
	assert.Empty(t, col.papers)
}

func TestPubMedHarvest_SkipsWithoutJournalType(t *testing.T) {
	s := NewPubMed(testFetcher(t), "", zerolog.Nop())
	col := &stubCollector{}
	err := s.Harvest(context.Background(), Request{
		Query:            "[term]",
		PublicationTypes: []string{"conference proceedings"},
	}, col)
	require.NoError(t, err)
	assert.Empty(t, col.papers)
}

func overridePubMedBase(base string) func() {
	prev := pubmedBase
	pubmedBase = base
	return func() { pubmedBase = prev }
}
