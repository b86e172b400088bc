// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model for the harvesting pipeline.
package types

import "time"

// Paper is one bibliographic record normalized from a source database.
// A Paper is built once per raw source record; cross-source identity and
// merging are the collection's concern, not the paper's.
type Paper struct {
	// Title is the paper title. Required; extraction rejects records
	// without one.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract, when the source provides one.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Authors lists the paper authors in source order, as "GivenName Surname"
	// or the raw collective name when that is all the source gives.
	Authors []string `json:"authors" yaml:"authors"`

	// Publication is the venue the paper appeared in, when known.
	Publication *Publication `json:"publication,omitempty" yaml:"publication,omitempty"`

	// PublicationDate is the resolved publication date. Required; extraction
	// rejects records whose date cannot be derived.
	PublicationDate time.Time `json:"publication_date" yaml:"publication_date"`

	// URLs holds landing-page URLs for the paper, one per source that
	// reported it. Order is insertion order; duplicates are dropped.
	URLs []string `json:"urls" yaml:"urls"`

	// DOI is the paper DOI, when known.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Keywords holds source-provided keywords, trimmed.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Pages is the raw page-range text as the source reported it.
	Pages string `json:"pages,omitempty" yaml:"pages,omitempty"`

	// NumberOfPages is derived from Pages when it parses as a range.
	// Zero means unknown.
	NumberOfPages int `json:"number_of_pages,omitempty" yaml:"number_of_pages,omitempty"`

	// Databases lists the source databases the paper was found in.
	Databases []string `json:"databases" yaml:"databases"`

	// PDFURL is the resolved PDF URL, when one has been located.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// FilePath is the local path of the downloaded PDF, when one exists.
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// AddURL records a landing-page URL, ignoring duplicates.
func (p *Paper) AddURL(u string) {
	if u == "" {
		return
	}
	for _, existing := range p.URLs {
		if existing == u {
			return
		}
	}
	p.URLs = append(p.URLs, u)
}

// AddDatabase records the source database the paper was found in,
// ignoring duplicates.
func (p *Paper) AddDatabase(name string) {
	if name == "" || p.HasDatabase(name) {
		return
	}
	p.Databases = append(p.Databases, name)
}

// HasDatabase reports whether the paper already lists the given source
// database.
func (p *Paper) HasDatabase(name string) bool {
	for _, existing := range p.Databases {
		if existing == name {
			return true
		}
	}
	return false
}
