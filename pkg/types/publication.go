// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// Category classifies a publication venue.
type Category string

const (
	CategoryJournal     Category = "Journal"
	CategoryProceedings Category = "Conference Proceedings"
	CategoryBook        Category = "Book"
	CategoryOther       Category = "Other"
)

// NormalizeCategory maps a free-form venue-type string from a source
// database onto the closed Category set.
func NormalizeCategory(s string) Category {
	switch lower := strings.ToLower(s); {
	case strings.Contains(lower, "journal"):
		return CategoryJournal
	case strings.Contains(lower, "conference"), strings.Contains(lower, "proceeding"):
		return CategoryProceedings
	case strings.Contains(lower, "book"):
		return CategoryBook
	default:
		return CategoryOther
	}
}

// Publication is the venue a paper appeared in. It is built once per
// record and never modified afterwards except by Enrich.
type Publication struct {
	// Title is the venue title. Required; records with an unnamed venue
	// carry no Publication at all.
	Title string `json:"title" yaml:"title"`

	// ISSN identifies a serial venue, when known.
	ISSN string `json:"issn,omitempty" yaml:"issn,omitempty"`

	// ISBN identifies a book venue, when known.
	ISBN string `json:"isbn,omitempty" yaml:"isbn,omitempty"`

	// Publisher is the publishing house, when known.
	Publisher string `json:"publisher,omitempty" yaml:"publisher,omitempty"`

	// Category is the venue type.
	Category Category `json:"category" yaml:"category"`
}

// Enrich fills empty fields of p from other. Used when the same venue is
// seen again through a duplicate paper from another database.
func (p *Publication) Enrich(other *Publication) {
	if other == nil {
		return
	}
	if p.ISSN == "" {
		p.ISSN = other.ISSN
	}
	if p.ISBN == "" {
		p.ISBN = other.ISBN
	}
	if p.Publisher == "" {
		p.Publisher = other.Publisher
	}
	if p.Category == "" || p.Category == CategoryOther {
		if other.Category != "" {
			p.Category = other.Category
		}
	}
}
