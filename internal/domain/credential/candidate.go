package credential

import "github.com/remsec/connwarden/internal/domain/directory"

// Candidate is a transient resolver result: an entry eligible for selection,
// together with the group it was found under. Candidates are never persisted.
type Candidate struct {
	// Entry references the source entry in the host database.
	Entry *directory.Entry
	// SourceGroup records which group the crawler matched the entry under.
	SourceGroup *directory.Group
}
