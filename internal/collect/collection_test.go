// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collect

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperharvest/pkg/types"
)

func paper(title, doi, database string) *types.Paper {
	p := &types.Paper{
		Title:           title,
		DOI:             doi,
		PublicationDate: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if database != "" {
		p.AddDatabase(database)
	}
	return p
}

func TestCollection_AddDistinct(t *testing.T) {
	c := New(0, 0)
	c.AddPaper(paper("Paper one", "10.1/a", "PubMed"))
	c.AddPaper(paper("Paper two", "10.1/b", "medRxiv"))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, map[string]int{"PubMed": 1, "medRxiv": 1}, c.Counts())
}

func TestCollection_MergesByDOI(t *testing.T) {
	c := New(0, 0)

	first := paper("Shared paper", "10.1/X", "PubMed")
	first.Abstract = "short"
	c.AddPaper(first)

	dup := paper("A retitled duplicate", "10.1/x", "medRxiv")
	dup.Abstract = "a much longer abstract"
	dup.Keywords = []string{"k1", "k2"}
	dup.AddURL("https://doi.org/10.1/x")
	c.AddPaper(dup)

	require.Equal(t, 1, c.Len())
	got := c.Papers()[0]
	assert.Equal(t, "Shared paper", got.Title)
	assert.Equal(t, "a much longer abstract", got.Abstract)
	assert.Equal(t, []string{"k1", "k2"}, got.Keywords)
	assert.ElementsMatch(t, []string{"PubMed", "medRxiv"}, got.Databases)
	assert.Equal(t, []string{"https://doi.org/10.1/x"}, got.URLs)
}

func TestCollection_MergesByNormalizedTitle(t *testing.T) {
	c := New(0, 0)
	c.AddPaper(paper("Deep Learning: A Survey!", "", "PubMed"))
	c.AddPaper(paper("deep learning  a survey", "10.9/now-with-doi", "bioRxiv"))

	require.Equal(t, 1, c.Len())
	got := c.Papers()[0]
	assert.Equal(t, "10.9/now-with-doi", got.DOI)
	assert.ElementsMatch(t, []string{"PubMed", "bioRxiv"}, got.Databases)
}

func TestCollection_MergedDOIMatchesLaterArrivals(t *testing.T) {
	c := New(0, 0)

	c.AddPaper(paper("Shared paper", "", "PubMed"))
	c.AddPaper(paper("Shared paper", "10.1/x", "medRxiv"))
	require.Equal(t, 1, c.Len())

	// Same DOI under a title the normalizer cannot relate to the
	// first two copies. The DOI learned from the merge must match.
	c.AddPaper(paper("Shared paper, v2 (preprint)", "10.1/x", "bioRxiv"))

	require.Equal(t, 1, c.Len())
	got := c.Papers()[0]
	assert.Equal(t, "10.1/x", got.DOI)
	assert.ElementsMatch(t, []string{"PubMed", "medRxiv", "bioRxiv"}, got.Databases)
}

func TestCollection_MergeCountsDatabaseOnce(t *testing.T) {
	c := New(0, 2)

	c.AddPaper(paper("Repeated hit", "10.3/r", "medRxiv"))
	c.AddPaper(paper("Repeated hit", "10.3/r", "medRxiv"))
	c.AddPaper(paper("Repeated hit", "10.3/r", "medRxiv"))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, map[string]int{"medRxiv": 1}, c.Counts())
	assert.False(t, c.ReachedLimit("medRxiv"))
}

func TestCollection_MergePrefersCompletePublication(t *testing.T) {
	c := New(0, 0)

	first := paper("Pub paper", "10.2/p", "PubMed")
	first.Publication = &types.Publication{Title: "Journal A"}
	c.AddPaper(first)

	dup := paper("Pub paper", "10.2/p", "medRxiv")
	dup.Publication = &types.Publication{Title: "ignored", ISSN: "1111-2222", Publisher: "Pub House"}
	c.AddPaper(dup)

	got := c.Papers()[0].Publication
	require.NotNil(t, got)
	assert.Equal(t, "Journal A", got.Title)
	assert.Equal(t, "1111-2222", got.ISSN)
	assert.Equal(t, "Pub House", got.Publisher)
}

func TestCollection_FlatLimit(t *testing.T) {
	c := New(2, 0)
	c.AddPaper(paper("one", "10.3/1", "PubMed"))
	assert.False(t, c.ReachedLimit("PubMed"))

	c.AddPaper(paper("two", "10.3/2", "PubMed"))
	assert.True(t, c.ReachedLimit("PubMed"))
	assert.True(t, c.ReachedLimit("medRxiv"))

	c.AddPaper(paper("three", "10.3/3", "PubMed"))
	assert.Equal(t, 2, c.Len())
}

func TestCollection_PerDatabaseLimit(t *testing.T) {
	c := New(0, 1)
	c.AddPaper(paper("one", "10.4/1", "PubMed"))

	assert.True(t, c.ReachedLimit("PubMed"))
	assert.False(t, c.ReachedLimit("medRxiv"))
}

func TestCollection_ConcurrentAdds(t *testing.T) {
	c := New(0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.AddPaper(paper(
					fmt.Sprintf("paper %d", j),
					fmt.Sprintf("10.5/%d", j),
					"PubMed",
				))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len())
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "deep learning a survey", normalizeTitle("  Deep Learning: A Survey!  "))
	assert.Equal(t, "", normalizeTitle("!!!"))
}
