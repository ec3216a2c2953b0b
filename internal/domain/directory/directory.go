// Package directory defines the read-only entry/group model the library
// consumes from its host. The host's entry database (groups, entries, and
// per-entry settings blobs) is an external collaborator; this package only
// describes the shape the resolver and orchestrator traverse.
package directory

import (
	"context"

	"github.com/google/uuid"
)

// Group is a node in the host's entry hierarchy. Subgroups and Entries are in
// the host's structural order, which the resolver preserves during traversal.
type Group struct {
	ID        uuid.UUID
	Name      string
	Subgroups []*Group
	Entries   []*Entry
}

// Entry is a single stored connection entry with its string fields and the
// decoded per-entry settings blob.
type Entry struct {
	ID       uuid.UUID
	Title    string
	URL      string
	Username string
	Password string
	Parent   *Group
	Settings Settings
}

// Settings is the decoded per-entry settings blob. Group IDs and patterns
// drive credential resolution; the remaining flags drive launch behavior.
type Settings struct {
	// Ignore removes the entry from candidacy regardless of pattern matches.
	Ignore bool
	// UsePicker forces the selection form even for a single candidate.
	UsePicker bool
	// ForceLocalUser skips credential resolution entirely and uses the
	// entry's own username/password fields.
	ForceLocalUser bool
	// IncludeDefaultParams appends the host's default launch parameters to
	// the assembled command line.
	IncludeDefaultParams bool
	// Recurse enables descending into subgroups during resolution.
	Recurse bool

	// CredentialGroupID optionally overrides the resolution root scope.
	CredentialGroupID uuid.UUID
	// IncludeGroupIDs lists extra groups whose entries join the candidate set.
	IncludeGroupIDs []uuid.UUID
	// ExcludeGroupIDs lists groups removed from candidacy together with
	// their whole subtrees.
	ExcludeGroupIDs []uuid.UUID
	// Patterns are regular expressions matched against candidate titles.
	Patterns []string

	// ExtraArgs are raw additional launch parameters.
	ExtraArgs string
	// Descriptor is an optional connection-descriptor payload written to a
	// session-scoped temp file and handed to the client.
	Descriptor []byte
}

// Provider exposes read-only lookups into the host's entry database.
type Provider interface {
	// GroupByID resolves a group identifier to its node, or nil when the
	// identifier is unknown.
	GroupByID(ctx context.Context, id uuid.UUID) (*Group, error)
}
