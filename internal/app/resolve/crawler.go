// Package resolve implements hierarchical credential resolution: a recursive
// crawl over the host's group structure with inclusion, exclusion, and regex
// rules producing the candidate set one target entry may draw its credential
// from. Precedence is fixed: exclusion beats inclusion, ignore beats match.
package resolve

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	regexp "github.com/wasilibs/go-re2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/remsec/connwarden/internal/domain/credential"
	"github.com/remsec/connwarden/internal/domain/directory"
	"github.com/remsec/connwarden/internal/domain/session"
	"github.com/remsec/connwarden/pkg/common/logger"
)

// Config describes one resolution run.
type Config struct {
	// Root is the scope the crawl starts from.
	Root *directory.Group
	// IncludeGroupIDs are extra groups whose entries join the candidate
	// set. Unknown identifiers are skipped.
	IncludeGroupIDs []uuid.UUID
	// ExcludeGroupIDs remove groups and their entire subtrees from
	// candidacy, even when a narrower rule would re-include them.
	ExcludeGroupIDs []uuid.UUID
	// Recurse enables descending into subgroups.
	Recurse bool
	// Patterns filter candidates by title; first match wins per entry. With
	// no patterns every non-ignored reachable entry is a candidate.
	Patterns []string
}

// Crawler walks group structures and produces candidate sets. It holds no
// per-run state and is safe for concurrent use.
type Crawler struct {
	provider directory.Provider

	tracer trace.Tracer
	logger *logger.Logger
}

// NewCrawler creates a Crawler over the host's directory provider.
func NewCrawler(provider directory.Provider, tracer trace.Tracer, log *logger.Logger) *Crawler {
	return &Crawler{
		provider: provider,
		tracer:   tracer,
		logger:   log.With("component", "resolve.crawler"),
	}
}

// Crawl validates the configuration and enumerates candidates. Disabling
// recursion while exclusion groups are set is rejected before traversal
// begins: the exclusions could never prune anything and silently ignoring
// them would change which credentials match.
func (c *Crawler) Crawl(ctx context.Context, cfg Config) ([]credential.Candidate, error) {
	ctx, span := c.tracer.Start(ctx, "resolver.crawl",
		trace.WithAttributes(
			attribute.Bool("recurse", cfg.Recurse),
			attribute.Int("include_groups", len(cfg.IncludeGroupIDs)),
			attribute.Int("exclude_groups", len(cfg.ExcludeGroupIDs)),
			attribute.Int("patterns", len(cfg.Patterns)),
		))
	defer span.End()

	if !cfg.Recurse && len(cfg.ExcludeGroupIDs) > 0 {
		span.SetStatus(codes.Error, "configuration conflict")
		return nil, fmt.Errorf("%w (%d exclusion groups)", session.ErrConfigConflict, len(cfg.ExcludeGroupIDs))
	}
	if cfg.Root == nil {
		return nil, fmt.Errorf("resolution requires a root group")
	}

	matchers, err := compilePatterns(cfg.Patterns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pattern compilation failed")
		return nil, err
	}

	w := &walk{
		excluded: idSet(cfg.ExcludeGroupIDs),
		recurse:  cfg.Recurse,
		matchers: matchers,
		visited:  make(map[uuid.UUID]struct{}),
	}

	w.group(cfg.Root)
	for _, id := range cfg.IncludeGroupIDs {
		g, err := c.provider.GroupByID(ctx, id)
		if err != nil {
			c.logger.Warn(ctx, "Included group lookup failed, skipping",
				"group_id", id.String(),
				"err", err,
			)
			continue
		}
		if g == nil {
			continue
		}
		w.group(g)
	}

	span.SetAttributes(attribute.Int("candidates", len(w.candidates)))
	span.SetStatus(codes.Ok, "crawl completed")
	return w.candidates, nil
}

// walk holds one traversal's state.
type walk struct {
	excluded map[uuid.UUID]struct{}
	recurse  bool
	matchers []*regexp.Regexp
	visited  map[uuid.UUID]struct{}

	candidates []credential.Candidate
}

// group visits one group node. Excluded groups prune themselves and their
// whole subtree before any entry is considered.
func (w *walk) group(g *directory.Group) {
	if _, ok := w.excluded[g.ID]; ok {
		return
	}
	if _, ok := w.visited[g.ID]; ok {
		return
	}
	w.visited[g.ID] = struct{}{}

	for _, e := range g.Entries {
		w.entry(g, e)
	}

	if !w.recurse {
		return
	}
	for _, sub := range g.Subgroups {
		w.group(sub)
	}
}

// entry applies the ignore flag and the pattern filter in structural order.
func (w *walk) entry(g *directory.Group, e *directory.Entry) {
	if e.Settings.Ignore {
		return
	}

	if len(w.matchers) > 0 {
		matched := false
		for _, re := range w.matchers {
			if re.MatchString(e.Title) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}
	}

	w.candidates = append(w.candidates, credential.Candidate{Entry: e, SourceGroup: g})
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	matchers := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", p, err)
		}
		matchers = append(matchers, re)
	}
	return matchers, nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
