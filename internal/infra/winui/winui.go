// Package winui defines the OS-native capability ports the supervisor
// consumes: process spawn/monitor, window probing, and accessibility-element
// lookup with action invocation. The external client has no program-visible
// protocol; everything the supervisor learns comes through these interfaces.
//
// Hosts on Windows inject implementations backed by the platform process and
// UI automation APIs. The package ships an exec-backed launcher for the
// process half and leaves window probing to the host.
package winui

import (
	"context"
	"time"
)

// WindowHandle is an opaque top-level or child window identity. The zero
// value means "no window".
type WindowHandle uintptr

// None is the absent window handle.
const None WindowHandle = 0

// LaunchSpec describes how to spawn the external client process.
type LaunchSpec struct {
	Path    string
	Args    string
	WorkDir string
}

// Launcher spawns external client processes.
type Launcher interface {
	Spawn(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Process observes and controls one spawned client process.
type Process interface {
	// PID returns the OS process identifier.
	PID() int
	// WaitForInputIdle blocks until the process reports input-idle or the
	// timeout elapses. Reaching the timeout is not an error; the bool
	// reports whether idle was observed.
	WaitForInputIdle(timeout time.Duration) (bool, error)
	// HasExited reports whether the process has terminated.
	HasExited() (bool, error)
	// MainWindow returns the process's main window handle, or None while
	// the process has not exposed one.
	MainWindow() (WindowHandle, error)
	// Kill forcibly terminates the process.
	Kill() error
}

// WindowProbe inspects and mutates top-level windows by handle.
type WindowProbe interface {
	// IsWindow reports whether the handle still names a live window.
	IsWindow(h WindowHandle) bool
	// SetWindowText overwrites the window title by direct text mutation.
	// Best-effort: the client may repaint its own title at any time.
	SetWindowText(h WindowHandle, text string) error
	// FindChildByClass looks up a direct child window by class name,
	// returning None when absent.
	FindChildByClass(h WindowHandle, class string) (WindowHandle, error)
	// LastActivePopup resolves the most recently active popup owned by h.
	// It returns h itself when no popup is active.
	LastActivePopup(h WindowHandle) (WindowHandle, error)
}

// ElementRole classifies an accessibility element just enough to tell an
// actionable button from an informational image.
type ElementRole string

const (
	RoleUnknown ElementRole = "unknown"
	RoleButton  ElementRole = "button"
	RoleImage   ElementRole = "image"
)

// Element is an accessibility-tree element resolved within a window.
type Element interface {
	Role() ElementRole
	Name() string
}

// Automation resolves accessibility elements by control identifier and
// invokes them. Lookup failures mean "not found yet" to the supervisor and
// are retried on the next poll, never treated as fatal.
type Automation interface {
	// FindControlByID resolves an element under the window by its control
	// identifier.
	FindControlByID(ctx context.Context, h WindowHandle, controlID string) (Element, error)
	// InvokeDefaultAction triggers the element's default action through the
	// native accessibility helper.
	InvokeDefaultAction(ctx context.Context, el Element) error
	// SynthesizeClick emulates mouse-down/mouse-up/click messages against
	// the element inside the window.
	SynthesizeClick(ctx context.Context, h WindowHandle, el Element) error
}
