package orchestrate

import (
	"context"

	"github.com/remsec/connwarden/internal/domain/credential"
	"github.com/remsec/connwarden/internal/domain/directory"
	"github.com/remsec/connwarden/internal/infra/winui"
)

// PromptIcon selects the icon of a modal prompt.
type PromptIcon int

const (
	IconNone PromptIcon = iota
	IconError
	IconWarning
	IconQuestion
)

// Prompt describes a blocking modal shown to the user. Only directly
// user-actionable conditions are surfaced this way.
type Prompt struct {
	Title   string
	Message string
	Icon    PromptIcon
	Buttons []string
	Owner   winui.WindowHandle
}

// PromptPresenter shows a modal prompt and returns the chosen button index.
type PromptPresenter interface {
	Show(ctx context.Context, p Prompt) (int, error)
}

// Picker presents the resolver's candidate set and returns the chosen entry.
// The bool reports whether the user chose at all; declining resolves to the
// same outcome as an empty candidate set.
type Picker interface {
	Pick(ctx context.Context, candidates []credential.Candidate) (*directory.Entry, bool, error)
}

// Options are the per-batch launch feature flags handed to command assembly.
type Options struct {
	Admin           bool
	RestrictedAdmin bool
	Public          bool
	RemoteGuard     bool
	Fullscreen      bool
	Span            bool
	MultiMon        bool
	Width           int
	Height          int
}
