// Package launch assembles the external client's command line from a resolved
// connection. The orchestrator consumes the builder as an opaque collaborator
// so hosts can substitute their own argument templating.
package launch

import (
	"context"
	"fmt"
	"strings"
)

// Connection carries everything command assembly needs: the resolved target
// and the entry's feature flags.
type Connection struct {
	Host string
	Port int

	Admin           bool
	RestrictedAdmin bool
	Public          bool
	RemoteGuard     bool
	Fullscreen      bool
	Span            bool
	MultiMon        bool
	Width           int
	Height          int

	// DescriptorPath points at the session-scoped connection-descriptor
	// file, when one was written.
	DescriptorPath string
	// ExtraArgs are raw additional parameters from the entry settings.
	ExtraArgs string
	// DefaultParams are the host's default launch parameters, already
	// filtered by the entry's opt-in flag.
	DefaultParams string
}

// Command is the assembled invocation.
type Command struct {
	Path    string
	Args    string
	WorkDir string
}

// CommandBuilder turns a Connection into a runnable Command.
type CommandBuilder interface {
	Build(ctx context.Context, conn Connection) (Command, error)
}

var _ CommandBuilder = (*ClientBuilder)(nil)

// ClientBuilder assembles arguments in the external remote-desktop client's
// flag dialect.
type ClientBuilder struct {
	path    string
	workDir string
}

// NewClientBuilder creates a builder for the client at path.
func NewClientBuilder(path, workDir string) *ClientBuilder {
	return &ClientBuilder{path: path, workDir: workDir}
}

// Build renders the argument string. The descriptor file, when present, must
// be the first argument; every other flag is order-independent.
func (b *ClientBuilder) Build(ctx context.Context, conn Connection) (Command, error) {
	if conn.Host == "" {
		return Command{}, fmt.Errorf("connection has no host")
	}

	var args []string
	if conn.DescriptorPath != "" {
		args = append(args, "\""+conn.DescriptorPath+"\"")
	}

	target := conn.Host
	if conn.Port > 0 {
		target = fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	}
	args = append(args, "/v:"+target)

	if conn.Admin {
		args = append(args, "/admin")
	}
	if conn.RestrictedAdmin {
		args = append(args, "/restrictedAdmin")
	}
	if conn.Public {
		args = append(args, "/public")
	}
	if conn.RemoteGuard {
		args = append(args, "/remoteGuard")
	}
	if conn.Fullscreen {
		args = append(args, "/f")
	}
	if conn.Span {
		args = append(args, "/span")
	}
	if conn.MultiMon {
		args = append(args, "/multimon")
	}
	if conn.Width > 0 {
		args = append(args, fmt.Sprintf("/w:%d", conn.Width))
	}
	if conn.Height > 0 {
		args = append(args, fmt.Sprintf("/h:%d", conn.Height))
	}

	if p := strings.TrimSpace(conn.DefaultParams); p != "" {
		args = append(args, p)
	}
	if p := strings.TrimSpace(conn.ExtraArgs); p != "" {
		args = append(args, p)
	}

	return Command{Path: b.path, Args: strings.Join(args, " "), WorkDir: b.workDir}, nil
}
