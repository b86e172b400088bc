// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harvest queries bibliographic databases and feeds the papers
// they return into a shared collector. Each database implements the
// Source interface; a failure in one source never aborts the run.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paperharvest/internal/query"
	"github.com/pdiddy/paperharvest/pkg/types"
)

// Source harvests papers from a single bibliographic database.
type Source interface {
	Name() string
	Harvest(ctx context.Context, req Request, col Collector) error
}

// Collector receives papers as sources produce them and tracks
// collection limits.
type Collector interface {
	// ReachedLimit reports whether the given database, or the run as a
	// whole, has hit its paper limit.
	ReachedLimit(database string) bool

	// AddPaper records a harvested paper, merging it with any
	// previously collected duplicate.
	AddPaper(p *types.Paper)
}

// Request carries the harvest parameters shared by every source.
type Request struct {
	// Query in bracket-term form, e.g. [term a] AND ([b] OR [c]).
	Query string

	// Since is the inclusive lower publication-date bound. Zero means
	// the source's default lower bound applies.
	Since time.Time

	// Until is the inclusive upper publication-date bound. Zero means
	// today.
	Until time.Time

	// PublicationTypes restricts the kinds of publications a source
	// should return. Empty allows everything.
	PublicationTypes []string
}

// AllowsType reports whether the request accepts the given publication
// type. Matching is case-insensitive and an empty filter allows all.
func (r Request) AllowsType(t string) bool {
	if len(r.PublicationTypes) == 0 {
		return true
	}
	for _, pt := range r.PublicationTypes {
		if strings.EqualFold(pt, t) {
			return true
		}
	}
	return false
}

// SkipError marks a single record that cannot become a paper. Sources
// log it and move on to the next record in the page.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return e.Reason }

// ErrEmptyAbstract reports a record rejected because it carries no
// abstract text.
var ErrEmptyAbstract = &SkipError{Reason: "record has no abstract"}

// IsSkip reports whether err marks a skippable record.
func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}

// RunAll validates the query and runs every source in order. A
// malformed query is fatal; any other source failure is logged and the
// remaining sources still run.
func RunAll(ctx context.Context, req Request, col Collector, sources []Source, log zerolog.Logger) error {
	if err := query.Validate(req.Query); err != nil {
		return fmt.Errorf("validating query: %w", err)
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info().Str("database", src.Name()).Msg("harvesting")
		if err := src.Harvest(ctx, req, col); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Warn().Err(err).Str("database", src.Name()).
				Msg("source failed, continuing with remaining databases")
		}
	}
	return nil
}
