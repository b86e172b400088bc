// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperharvest/internal/httputil"
)

// ruleKind selects the rewrite strategy a publisher rule applies to a
// landing-page URL.
type ruleKind int

const (
	// kindSwap rewrites the URL with ordered substring swaps and an
	// optional suffix.
	kindSwap ruleKind = iota

	// kindACMDOI builds the ACM /doi/pdf/ URL from the paper's DOI, or
	// from a DOI encoded in the landing path.
	kindACMDOI

	// kindIEEEStamp builds the IEEE stampPDF URL from the document id
	// in the path or the arnumber query parameter.
	kindIEEEStamp

	// kindElsevierPII builds the ScienceDirect pdfft URL from the PII
	// in the last path segment.
	kindElsevierPII

	// kindIJCAIZeroPad zero-pads the trailing numeric id to four
	// digits and appends .pdf.
	kindIJCAIZeroPad
)

type swap struct {
	old, new string
}

// rule maps a set of publisher hosts to a URL rewrite.
type rule struct {
	hosts  []string
	kind   ruleKind
	swaps  []swap
	suffix string
}

// pdfRules is the publisher rule table. Hosts are matched on
// scheme://hostname of the final redirected URL.
var pdfRules = []rule{
	{hosts: []string{"https://dl.acm.org"}, kind: kindACMDOI},
	{hosts: []string{"https://ieeexplore.ieee.org"}, kind: kindIEEEStamp},
	{
		hosts: []string{"https://www.sciencedirect.com", "https://linkinghub.elsevier.com"},
		kind:  kindElsevierPII,
	},
	{
		hosts: []string{"https://pubs.rsc.org"},
		kind:  kindSwap, swaps: []swap{{"/articlelanding/", "/articlepdf/"}},
	},
	{
		hosts: []string{"https://www.tandfonline.com", "https://www.frontiersin.org"},
		kind:  kindSwap, swaps: []swap{{"/full", "/pdf"}},
	},
	{
		hosts: []string{"https://pubs.acs.org", "https://journals.sagepub.com", "https://royalsocietypublishing.org"},
		kind:  kindSwap, swaps: []swap{{"/doi", "/doi/pdf"}},
	},
	{
		hosts: []string{"https://link.springer.com"},
		kind:  kindSwap, swaps: []swap{{"/article/", "/content/pdf/"}, {"%2F", "/"}}, suffix: ".pdf",
	},
	{
		hosts: []string{"https://www.isca-speech.org"},
		kind:  kindSwap, swaps: []swap{{"/abstracts/", "/pdfs/"}, {".html", ".pdf"}},
	},
	{
		hosts: []string{"https://onlinelibrary.wiley.com"},
		kind:  kindSwap, swaps: []swap{{"/full/", "/pdfdirect/"}, {"/abs/", "/pdfdirect/"}},
	},
	{
		hosts: []string{"https://www.jmir.org", "https://www.mdpi.com"},
		kind:  kindSwap, suffix: "/pdf",
	},
	{
		hosts: []string{"https://www.pnas.org"},
		kind:  kindSwap, swaps: []swap{{"/content/", "/content/pnas/"}}, suffix: ".full.pdf",
	},
	{
		hosts: []string{"https://www.jneurosci.org"},
		kind:  kindSwap, swaps: []swap{{"/content/", "/content/jneuro/"}}, suffix: ".full.pdf",
	},
	{hosts: []string{"https://www.ijcai.org"}, kind: kindIJCAIZeroPad},
	{
		hosts: []string{"https://asmp-eurasipjournals.springeropen.com"},
		kind:  kindSwap, swaps: []swap{{"/articles/", "/track/pdf/"}},
	},
}

// Locator resolves a paper's PDF URL by probing its landing-page URLs.
type Locator struct {
	fetcher *httputil.Fetcher
	log     zerolog.Logger
}

// NewLocator builds a Locator on top of the given fetcher.
func NewLocator(fetcher *httputil.Fetcher, log zerolog.Logger) *Locator {
	return &Locator{fetcher: fetcher, log: log}
}

// Locate probes candidate URLs in order and returns the first PDF URL
// it can resolve, or "" when none resolves. A HEAD request with
// redirect following classifies each candidate: a PDF response wins
// directly, an HTML response goes through the publisher rule table.
// Fetch failures and unrecognized hosts just move on to the next
// candidate.
func (l *Locator) Locate(ctx context.Context, urls []string, doi string) string {
	for _, u := range urls {
		if ctx.Err() != nil {
			return ""
		}

		l.log.Debug().Str("url", u).Msg("probing for PDF")
		resp, err := l.fetcher.Head(ctx, u)
		if err != nil {
			l.log.Debug().Err(err).Str("url", u).Msg("probe failed")
			continue
		}

		ct := strings.ToLower(resp.ContentType)
		switch {
		case strings.Contains(ct, "application/pdf"):
			return resp.URL
		case strings.Contains(ct, "text/html"):
			if pdfURL := resolveLanding(resp.URL, doi); pdfURL != "" {
				return pdfURL
			}
		}
	}
	return ""
}

// resolveLanding applies the publisher rule table to the final landing
// URL. It returns "" for unrecognized hosts and for transforms that
// need information the URL does not carry.
func resolveLanding(resolved, doi string) string {
	u, err := url.Parse(resolved)
	if err != nil {
		return ""
	}

	host := u.Scheme + "://" + u.Hostname()
	path := strings.TrimSuffix(u.Path, "/")

	for _, r := range pdfRules {
		for _, h := range r.hosts {
			if h == host {
				return r.apply(resolved, host, path, u.Query(), doi)
			}
		}
	}
	return ""
}

func (r rule) apply(resolved, host, path string, q url.Values, doi string) string {
	switch r.kind {
	case kindACMDOI:
		if doi == "" {
			if strings.HasPrefix(path, "/doi/") && !strings.Contains(path, "/doi/pdf/") {
				doi = strings.TrimPrefix(path, "/doi/")
			} else {
				return ""
			}
		}
		return "https://dl.acm.org/doi/pdf/" + doi

	case kindIEEEStamp:
		var documentID string
		switch {
		case strings.HasPrefix(path, "/document/"):
			documentID = strings.TrimPrefix(path, "/document/")
		case q.Get("arnumber") != "":
			documentID = q.Get("arnumber")
		default:
			return ""
		}
		return fmt.Sprintf("%s/stampPDF/getPDF.jsp?tp=&arnumber=%s", host, documentID)

	case kindElsevierPII:
		pii := path[strings.LastIndex(path, "/")+1:]
		if pii == "" {
			return ""
		}
		return "https://www.sciencedirect.com/science/article/pii/" + pii + "/pdfft?isDTMRedir=true&download=true"

	case kindIJCAIZeroPad:
		idx := strings.LastIndex(resolved, "/")
		if idx < 0 {
			return ""
		}
		id := resolved[idx+1:]
		for len(id) < 4 {
			id = "0" + id
		}
		return resolved[:idx+1] + id + ".pdf"

	default:
		out := resolved
		for _, s := range r.swaps {
			out = strings.ReplaceAll(out, s.old, s.new)
		}
		return out + r.suffix
	}
}
