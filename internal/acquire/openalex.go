// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"net/url"

	"github.com/pdiddy/paperharvest/internal/httputil"
)

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works/"

// openAlexResponse captures the fields we need from an OpenAlex work record.
type openAlexResponse struct {
	BestOALocation *openAlexLocation `json:"best_oa_location"`
}

// openAlexLocation represents an open-access location in the OpenAlex response.
type openAlexLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
}

// resolveOpenAlex queries the OpenAlex API for a DOI and returns the
// open-access PDF URL if one exists. It returns an empty string when the
// paper is not indexed or has no open-access PDF.
func resolveOpenAlex(ctx context.Context, fetcher *httputil.Fetcher, doi, mailto string) (string, error) {
	apiURL := openAlexAPIBase + "https://doi.org/" + doi
	if mailto != "" {
		apiURL += "?mailto=" + url.QueryEscape(mailto)
	}

	var oa openAlexResponse
	if err := fetcher.GetJSON(ctx, apiURL, &oa); err != nil {
		return "", err
	}
	if oa.BestOALocation == nil {
		return "", nil
	}
	return oa.BestOALocation.PDFURL, nil
}
