// Package orchestrate composes resolution, selection, vaulting, and
// supervision into batch launches. Each selected entry becomes at most one
// session; no session's failure aborts its siblings, and the whole batch can
// be awaited or cancelled together through the registry.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/remsec/connwarden/internal/app/resolve"
	sessreg "github.com/remsec/connwarden/internal/app/session"
	"github.com/remsec/connwarden/internal/app/supervise"
	"github.com/remsec/connwarden/internal/config"
	"github.com/remsec/connwarden/internal/domain/credential"
	"github.com/remsec/connwarden/internal/domain/directory"
	"github.com/remsec/connwarden/internal/domain/session"
	"github.com/remsec/connwarden/internal/infra/launch"
	"github.com/remsec/connwarden/internal/infra/vault"
	"github.com/remsec/connwarden/internal/infra/winui"
	"github.com/remsec/connwarden/pkg/common/logger"
)

// Orchestrator owns the session registry and drives batches of entry
// launches through it.
type Orchestrator struct {
	cfg config.Config

	registry   *sessreg.Registry
	crawler    *resolve.Crawler
	provider   directory.Provider
	vault      *vault.Coordinator
	supervisor *supervise.Supervisor
	builder    launch.CommandBuilder
	prompts    PromptPresenter
	picker     Picker

	tracer trace.Tracer
	logger *logger.Logger

	wg sync.WaitGroup
}

// New wires an Orchestrator. The registry instance is owned here and passed
// to sessions explicitly.
func New(
	cfg config.Config,
	registry *sessreg.Registry,
	crawler *resolve.Crawler,
	provider directory.Provider,
	coordinator *vault.Coordinator,
	supervisor *supervise.Supervisor,
	builder launch.CommandBuilder,
	prompts PromptPresenter,
	picker Picker,
	tracer trace.Tracer,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		registry:   registry,
		crawler:    crawler,
		provider:   provider,
		vault:      coordinator,
		supervisor: supervisor,
		builder:    builder,
		prompts:    prompts,
		picker:     picker,
		tracer:     tracer,
		logger:     log.With("component", "orchestrate.orchestrator"),
	}
}

// Registry exposes the registry for aggregate queries.
func (o *Orchestrator) Registry() *sessreg.Registry { return o.registry }

// LaunchAll processes the selected entries. Unusable entries are skipped
// after notifying the user; every usable entry becomes a session goroutine
// attached to the batch.
func (o *Orchestrator) LaunchAll(ctx context.Context, entries []*directory.Entry, opts Options) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.launch_all",
		trace.WithAttributes(attribute.Int("entries", len(entries))))
	defer span.End()

	launched := 0
	for _, e := range entries {
		if e == nil {
			continue
		}
		if o.launchEntry(ctx, e, opts) {
			launched++
		}
	}

	span.SetAttributes(attribute.Int("launched", launched))
	o.logger.Info(ctx, "Batch submitted", "entries", len(entries), "launched", launched)
}

// Wait blocks until every session in the batch completes, up to timeout
// (zero polls once, negative waits indefinitely).
func (o *Orchestrator) Wait(ctx context.Context, timeout time.Duration) bool {
	return o.registry.WaitAll(ctx, timeout)
}

// CancelAll cooperatively cancels every pending session in the batch.
func (o *Orchestrator) CancelAll(ctx context.Context) {
	o.registry.CancelAll(ctx, errors.New("batch cancelled"))
}

// launchEntry runs one entry through parse → resolve → select → vault →
// submit. It reports whether a session was actually submitted.
func (o *Orchestrator) launchEntry(ctx context.Context, e *directory.Entry, opts Options) bool {
	ctx, span := o.tracer.Start(ctx, "orchestrator.launch_entry",
		trace.WithAttributes(attribute.String("entry_id", e.ID.String())))
	defer span.End()

	tgt, err := parseTarget(e.URL, o.cfg.Launch.DefaultPort)
	if err != nil {
		// Unusable target is the user's problem to fix; notify, skip,
		// keep the batch going.
		o.logger.Warn(ctx, "Entry target unusable, skipping", "entry_id", e.ID.String(), "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "target parse failed")
		o.notify(ctx, "Unusable target", fmt.Sprintf("The target %q cannot be parsed. The entry is skipped.", e.URL), IconError)
		return false
	}
	span.SetAttributes(attribute.String("target_host", tgt.host))

	username, password, resolved := o.resolveCredential(ctx, e)
	if username == "" {
		o.logger.Warn(ctx, "Entry has no username, skipping", "entry_id", e.ID.String())
		span.SetStatus(codes.Error, "missing username")
		o.notify(ctx, "Missing username", fmt.Sprintf("No username is available for %q. The entry is skipped.", tgt.host), IconWarning)
		return false
	}

	key := session.Key{Host: tgt.host}
	if resolved {
		key.Username = username
	}

	if !o.confirmDuplicate(ctx, key) {
		span.AddEvent("duplicate_declined")
		return false
	}

	descriptorPath := o.writeDescriptor(ctx, e)

	cmd, err := o.builder.Build(ctx, launch.Connection{
		Host:            tgt.host,
		Port:            tgt.port,
		Admin:           opts.Admin,
		RestrictedAdmin: opts.RestrictedAdmin,
		Public:          opts.Public,
		RemoteGuard:     opts.RemoteGuard,
		Fullscreen:      opts.Fullscreen,
		Span:            opts.Span,
		MultiMon:        opts.MultiMon,
		Width:           opts.Width,
		Height:          opts.Height,
		DescriptorPath:  descriptorPath,
		ExtraArgs:       e.Settings.ExtraArgs,
		DefaultParams:   o.defaultParams(e),
	})
	if err != nil {
		o.logger.Error(ctx, "Command assembly failed, skipping entry", "entry_id", e.ID.String(), "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "command assembly failed")
		if descriptorPath != "" {
			if rmErr := os.Remove(descriptorPath); rmErr != nil {
				o.logger.Debug(ctx, "Descriptor artifact removal failed", "path", descriptorPath, "err", rmErr)
			}
		}
		return false
	}

	// The secret is only vaulted once a runnable command exists; nothing may
	// leave a credential in the store without a session owning its cleanup.
	cred := o.provisionCredential(ctx, username, password, tgt.host)

	spec := supervise.Spec{
		Launch:         winui.LaunchSpec{Path: cmd.Path, Args: cmd.Args, WorkDir: cmd.WorkDir},
		TitleOverride:  e.Title,
		DescriptorPath: descriptorPath,
		Credential:     cred,
		Policy:         o.cfg.Policy,
	}

	task := session.NewTask(ctx, key)
	o.registry.Replace(ctx, key, task)

	o.wg.Add(1)
	go o.runSession(task, spec)

	span.AddEvent("session_submitted")
	span.SetStatus(codes.Ok, "session submitted")
	return true
}

// runSession supervises one submitted task to completion and always removes
// it from the registry afterwards, handing the removed task to asynchronous
// disposal via its done channel.
func (o *Orchestrator) runSession(task *session.Task, spec supervise.Spec) {
	defer o.wg.Done()

	ctx := task.Context()
	err := o.supervisor.Run(ctx, task, spec)

	o.registry.Remove(task.Key(), task)
	task.Complete(err)

	switch {
	case err == nil:
	case errors.Is(err, session.ErrConnectionFailed):
		o.logger.Warn(ctx, "Session ended: client reported connection failure",
			"session_key", task.Key().String())
	case errors.Is(err, session.ErrHangDetected):
		o.logger.Warn(ctx, "Session ended: hung client terminated",
			"session_key", task.Key().String())
	default:
		o.logger.Error(ctx, "Session ended with error",
			"session_key", task.Key().String(),
			"err", err,
		)
	}
}

// resolveCredential picks the username/password for an entry. The resolver
// only runs when the entry opts into resolution and a root scope exists;
// empty candidate sets and a declined picker both fall back to the entry's
// own fields. The bool reports whether the fields came from a resolved
// candidate.
func (o *Orchestrator) resolveCredential(ctx context.Context, e *directory.Entry) (string, string, bool) {
	if e.Settings.ForceLocalUser {
		return e.Username, e.Password, false
	}

	root := o.resolutionRoot(ctx, e)
	if root == nil {
		// Neither explicit membership nor an override applies; resolution
		// is not invoked at all.
		return e.Username, e.Password, false
	}

	candidates, err := o.crawler.Crawl(ctx, resolve.Config{
		Root:            root,
		IncludeGroupIDs: e.Settings.IncludeGroupIDs,
		ExcludeGroupIDs: e.Settings.ExcludeGroupIDs,
		Recurse:         e.Settings.Recurse,
		Patterns:        e.Settings.Patterns,
	})
	if err != nil {
		o.logger.Error(ctx, "Credential resolution failed, using entry's own fields",
			"entry_id", e.ID.String(),
			"err", err,
		)
		return e.Username, e.Password, false
	}

	var chosen *directory.Entry
	switch {
	case len(candidates) == 0:
	case len(candidates) == 1 && !e.Settings.UsePicker:
		// A single candidate is auto-selected without presenting the
		// picker.
		chosen = candidates[0].Entry
	default:
		picked, ok, err := o.picker.Pick(ctx, candidates)
		if err != nil {
			o.logger.Warn(ctx, "Picker failed, using entry's own fields", "err", err)
		} else if ok {
			chosen = picked
		}
	}

	if chosen == nil {
		return e.Username, e.Password, false
	}
	return chosen.Username, chosen.Password, true
}

// resolutionRoot determines the crawl scope: an explicit override group when
// set, otherwise the entry's own parent group.
func (o *Orchestrator) resolutionRoot(ctx context.Context, e *directory.Entry) *directory.Group {
	if e.Settings.CredentialGroupID != uuid.Nil {
		g, err := o.provider.GroupByID(ctx, e.Settings.CredentialGroupID)
		if err != nil {
			o.logger.Warn(ctx, "Credential group lookup failed",
				"group_id", e.Settings.CredentialGroupID.String(),
				"err", err,
			)
			return nil
		}
		return g
	}
	return e.Parent
}

// confirmDuplicate asks the user before replacing a still-live session with
// the same identity. Duplicate detection is keyed exactly like the registry:
// host plus resolved username, or host alone.
func (o *Orchestrator) confirmDuplicate(ctx context.Context, key session.Key) bool {
	existing, ok := o.registry.TryGet(key)
	if !ok {
		return true
	}
	if done, err := existing.Completed(); err == nil && done {
		return true
	}

	idx, err := o.prompts.Show(ctx, Prompt{
		Title:   "Already connected",
		Message: fmt.Sprintf("A session for %s is already open. Replace it?", key.Host),
		Icon:    IconQuestion,
		Buttons: []string{"Replace", "Keep existing"},
	})
	if err != nil {
		o.logger.Warn(ctx, "Duplicate confirmation prompt failed, keeping existing session", "err", err)
		return false
	}
	return idx == 0
}

// provisionCredential creates and registers the session credential. Entries
// without a password launch credential-less. Domain-qualified usernames map
// to domain store entries; everything else is generic.
func (o *Orchestrator) provisionCredential(ctx context.Context, username, password, host string) *credential.Credential {
	if password == "" {
		return nil
	}

	kind := credential.KindGeneric
	if strings.ContainsAny(username, `\@`) {
		kind = credential.KindDomain
	}

	cred, err := credential.New(username, []byte(password), host, kind, o.cfg.Vault.TTL, time.Now().UTC())
	if err != nil {
		o.logger.Error(ctx, "Credential construction failed, launching unvaulted", "err", err)
		return nil
	}

	o.vault.Register(ctx, cred)
	return cred
}

// writeDescriptor persists the entry's connection-descriptor payload to a
// session-scoped temp file. The supervisor removes it on every exit path.
func (o *Orchestrator) writeDescriptor(ctx context.Context, e *directory.Entry) string {
	if len(e.Settings.Descriptor) == 0 {
		return ""
	}

	f, err := os.CreateTemp("", "connwarden-*.rdp")
	if err != nil {
		o.logger.Warn(ctx, "Descriptor temp file creation failed, launching without it", "err", err)
		return ""
	}
	defer f.Close()

	if _, err := f.Write(e.Settings.Descriptor); err != nil {
		o.logger.Warn(ctx, "Descriptor write failed, launching without it", "err", err)
		os.Remove(f.Name())
		return ""
	}
	return f.Name()
}

func (o *Orchestrator) defaultParams(e *directory.Entry) string {
	if !e.Settings.IncludeDefaultParams {
		return ""
	}
	return o.cfg.Launch.DefaultParams
}

// notify surfaces a directly user-actionable condition as a blocking modal.
// Presenter failures only log; notification must never take a batch down.
func (o *Orchestrator) notify(ctx context.Context, title, message string, icon PromptIcon) {
	if _, err := o.prompts.Show(ctx, Prompt{
		Title:   title,
		Message: message,
		Icon:    icon,
		Buttons: []string{"OK"},
	}); err != nil {
		o.logger.Warn(ctx, "User notification failed", "title", title, "err", err)
	}
}
