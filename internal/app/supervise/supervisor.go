// Package supervise drives one external client process through its opaque UI
// lifecycle: spawn, window discovery, trust/error dialogs, connection
// progress, and exit or hang. There is no program-visible protocol; the
// supervisor is a poll-and-inspect state machine over process and
// window-level signals, advanced at bounded intervals with cancellation
// observed between transitions.
package supervise

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/remsec/connwarden/internal/config"
	"github.com/remsec/connwarden/internal/domain/credential"
	"github.com/remsec/connwarden/internal/domain/session"
	"github.com/remsec/connwarden/internal/infra/vault"
	"github.com/remsec/connwarden/internal/infra/winui"
	"github.com/remsec/connwarden/pkg/common/logger"
)

// Spec carries everything session-specific a supervision run needs.
type Spec struct {
	// Launch is the assembled client invocation.
	Launch winui.LaunchSpec
	// TitleOverride, when set, is applied to the first window by direct
	// window-text mutation. Best-effort; the client may repaint.
	TitleOverride string
	// DescriptorPath is the session-scoped connection-descriptor temp file.
	// Its presence enables the trust-popup watch; the file is removed on
	// every exit path.
	DescriptorPath string
	// Credential is the session's vaulted credential, nil when the entry
	// launched without one.
	Credential *credential.Credential
	// Policy selects dialog auto-confirmation and credential disposal
	// behavior.
	Policy config.Policy
}

// supervision is the mutable per-run state: the process handle, the window
// handles as they are discovered, and the exit escalation counter. It is
// owned by exactly one Run call and discarded at session end.
type supervision struct {
	proc        winui.Process
	win         winui.WindowHandle
	progress    winui.WindowHandle
	escalations int
}

// Supervisor runs client sessions against the injected native ports. It
// holds no per-session state and may run any number of sessions
// concurrently.
type Supervisor struct {
	cfg config.Supervision

	launcher  winui.Launcher
	windows   winui.WindowProbe
	controls  winui.Automation
	confirmer *winui.Confirmer
	vault     *vault.Coordinator

	tracer trace.Tracer
	logger *logger.Logger
}

// New creates a Supervisor.
func New(
	cfg config.Supervision,
	launcher winui.Launcher,
	windows winui.WindowProbe,
	controls winui.Automation,
	confirmer *winui.Confirmer,
	coordinator *vault.Coordinator,
	tracer trace.Tracer,
	log *logger.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		launcher:  launcher,
		windows:   windows,
		controls:  controls,
		confirmer: confirmer,
		vault:     coordinator,
		tracer:    tracer,
		logger:    log.With("component", "supervise.supervisor"),
	}
}

// Run supervises one session to a terminal state. It returns nil for normal
// exits, cancellation, and the degrade-to-success case where no window ever
// appears; it returns a terminal error for spawn failure, a client-reported
// connection failure, or a hang kill. Cleanup (credential disposal,
// descriptor removal) runs on every path, including panics from the
// supervised unit of work.
func (s *Supervisor) Run(ctx context.Context, task *session.Task, spec Spec) (err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.run",
		trace.WithAttributes(
			attribute.String("task_id", task.ID().String()),
			attribute.String("session_key", task.Key().String()),
		))
	defer span.End()

	defer s.cleanup(context.WithoutCancel(ctx), spec)
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("supervision panic: %v", rec)
			s.logger.Error(ctx, "Supervision panicked", "task_id", task.ID().String(), "panic", rec)
			span.RecordError(err)
			span.SetStatus(codes.Error, "supervision panicked")
		}
	}()

	s.transition(ctx, task, session.StatusStarting)
	sup := &supervision{}

	proc, err := s.launcher.Spawn(ctx, spec.Launch)
	if err != nil {
		s.transition(ctx, task, session.StatusExited)
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		return &session.SpawnError{Path: spec.Launch.Path, Err: err}
	}
	sup.proc = proc
	span.SetAttributes(attribute.Int("pid", proc.PID()))

	s.transition(ctx, task, session.StatusWaitingForWindow)
	if !s.waitForWindow(ctx, sup, spec) {
		// The client may simply be slow, or the user already closed it.
		// Degrade to success: no kill, no error.
		s.transition(ctx, task, session.StatusExited)
		span.AddEvent("no_window_within_bound")
		span.SetStatus(codes.Ok, "session ended without a window")
		return nil
	}
	span.AddEvent("main_window_found")

	if spec.TitleOverride != "" {
		if err := s.windows.SetWindowText(sup.win, spec.TitleOverride); err != nil {
			s.logger.Debug(ctx, "Title override failed", "title", spec.TitleOverride, "err", err)
		}
	}

	if h, err := s.windows.FindChildByClass(sup.win, s.cfg.ProgressIndicatorClass); err == nil {
		sup.progress = h
	}
	span.SetAttributes(attribute.Bool("connecting", sup.progress != winui.None))

	if spec.DescriptorPath != "" {
		s.transition(ctx, task, session.StatusWaitingForModal)
		s.watchTrustPrompt(ctx, sup, spec)
	}

	s.transition(ctx, task, session.StatusRunning)
	if err := s.superviseConnecting(ctx, sup, spec); err != nil {
		s.transition(ctx, task, session.StatusExited)
		span.RecordError(err)
		span.SetStatus(codes.Error, "connection failed")
		return err
	}

	// The credential only served connection setup; once the connecting
	// phase is over a non-persistent credential has no reason to stay
	// vaulted.
	if spec.Policy.NonPersistentCredential {
		s.vault.Withdraw(ctx, spec.Credential)
		span.AddEvent("credential_withdrawn_post_connect")
	}

	if killed := s.awaitExit(ctx, sup); killed {
		s.transition(ctx, task, session.StatusKilled)
		span.AddEvent("process_killed_as_hung")
		span.SetStatus(codes.Error, "hang detected")
		return session.ErrHangDetected
	}

	s.transition(ctx, task, session.StatusExited)
	span.SetStatus(codes.Ok, "session exited")
	return nil
}

// waitForWindow waits for input-idle, then spins re-checking for a main
// window handle within the configured bound. Each failed spin extends the
// credential TTL so a slow client start does not outlive its secret.
func (s *Supervisor) waitForWindow(ctx context.Context, sup *supervision, spec Spec) bool {
	if idle, err := sup.proc.WaitForInputIdle(s.cfg.InputIdleTimeout); err != nil || !idle {
		s.logger.Debug(ctx, "Input idle not observed within bound", "err", err)
	}

	for i := 0; i < s.cfg.WindowSpins; i++ {
		if exited, err := sup.proc.HasExited(); err == nil && exited {
			return false
		}
		if h, err := sup.proc.MainWindow(); err == nil && h != winui.None {
			sup.win = h
			return true
		}

		s.vault.ExtendTTL(ctx, spec.Credential)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.WindowSpinInterval):
		}
	}
	return false
}

// watchTrustPrompt watches for the trust-confirmation popup for a short
// bounded window. Under the known control ID either an informational image
// appears (nothing to do) or a confirm button; the button is auto-confirmed
// when policy allows.
func (s *Supervisor) watchTrustPrompt(ctx context.Context, sup *supervision, spec Spec) {
	for i := 0; i < s.cfg.ModalWatchSpins; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.PollInterval):
		}

		popup := s.activePopup(sup.win)
		if popup == winui.None {
			continue
		}

		el, err := s.controls.FindControlByID(ctx, popup, s.cfg.TrustPromptControlID)
		if err != nil || el == nil {
			// Not found yet; retry on the next spin.
			continue
		}

		switch el.Role() {
		case winui.RoleImage:
			s.logger.Debug(ctx, "Trust prompt is informational, no action")
			return
		case winui.RoleButton:
			if !spec.Policy.AutoConfirmTrust {
				s.logger.Debug(ctx, "Trust prompt present but auto-confirm disabled")
				return
			}
			if err := s.confirmer.Confirm(ctx, popup, el); err != nil {
				s.logger.Warn(ctx, "Trust prompt confirmation failed", "err", err)
			}
			return
		}
	}
}

// superviseConnecting polls the connecting phase: while the progress
// indicator is present and the process lives, look for popups at the poll
// interval. A connection-failed button is terminal; a certificate-confirm
// button is auto-confirmed when policy allows; an iteration finding neither
// extends the credential TTL. Cancellation stops polling and extension
// without an error.
func (s *Supervisor) superviseConnecting(ctx context.Context, sup *supervision, spec Spec) error {
	if sup.progress == winui.None {
		return nil
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if exited, err := sup.proc.HasExited(); err == nil && exited {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if popup := s.activePopup(sup.win); popup != winui.None {
			if el := s.findControl(ctx, popup, s.cfg.ConnectFailedControlID); el != nil && el.Role() == winui.RoleButton {
				return session.ErrConnectionFailed
			}
			if spec.Policy.AutoConfirmCertificate {
				if el := s.findControl(ctx, popup, s.cfg.CertConfirmControlID); el != nil && el.Role() == winui.RoleButton {
					if err := s.confirmer.Confirm(ctx, popup, el); err != nil {
						s.logger.Warn(ctx, "Certificate confirmation failed", "err", err)
					}
				}
			}
			s.vault.ExtendTTL(ctx, spec.Credential)
			continue
		}

		h, err := s.windows.FindChildByClass(sup.win, s.cfg.ProgressIndicatorClass)
		if err == nil && h == winui.None {
			// No popup and no progress indicator: the connecting phase
			// is over.
			return nil
		}

		s.vault.ExtendTTL(ctx, spec.Credential)
	}
}

// awaitExit monitors liveness until the process exits. While the main window
// is present there is nothing to do. If it disappears with the process still
// alive, waits escalate exponentially from the configured base to the capped
// ceiling; exhausting the escalations kills the process as presumed-hung.
// Returns true when the process was killed.
func (s *Supervisor) awaitExit(ctx context.Context, sup *supervision) bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ExitWaitBase
	bo.MaxInterval = s.cfg.ExitWaitCeiling
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0
	bo.Reset()

	for {
		if exited, err := sup.proc.HasExited(); err == nil && exited {
			return false
		}
		if ctx.Err() != nil {
			// Cancellation halts escalation; the process is left to the
			// host's shutdown handling.
			return false
		}

		if s.windows.IsWindow(sup.win) {
			sup.escalations = 0
			bo.Reset()
			select {
			case <-ctx.Done():
				return false
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}

		sup.escalations++
		if sup.escalations > s.cfg.ExitEscalations {
			if err := sup.proc.Kill(); err != nil {
				s.logger.Warn(ctx, "Kill of presumed-hung process failed", "pid", sup.proc.PID(), "err", err)
			}
			s.logger.Warn(ctx, "Window gone and process unresponsive, terminated as hung",
				"pid", sup.proc.PID(),
				"escalations", sup.escalations-1,
			)
			return true
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			wait = s.cfg.ExitWaitCeiling
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// cleanup runs on every exit path: the credential is restored per policy and
// wiped, and the session-scoped descriptor artifact is removed.
func (s *Supervisor) cleanup(ctx context.Context, spec Spec) {
	if spec.Credential != nil {
		if spec.Policy.WithdrawOnExit || spec.Policy.NonPersistentCredential {
			s.vault.Withdraw(ctx, spec.Credential)
		} else {
			s.vault.ResetTTL(ctx, spec.Credential)
		}
		spec.Credential.Wipe()
	}

	if spec.DescriptorPath != "" {
		if err := os.Remove(spec.DescriptorPath); err != nil && !os.IsNotExist(err) {
			s.logger.Debug(ctx, "Descriptor artifact removal failed",
				"path", spec.DescriptorPath,
				"err", err,
			)
		}
	}
}

// transition records a status change on the task. Illegal transitions only
// log; supervision keeps going on its actual path.
func (s *Supervisor) transition(ctx context.Context, task *session.Task, next session.Status) {
	if err := task.SetStatus(next); err != nil {
		s.logger.Debug(ctx, "Status transition rejected", "task_id", task.ID().String(), "err", err)
	}
}

// activePopup resolves the window's last active popup, mapping lookup
// failures and "no popup" to None.
func (s *Supervisor) activePopup(win winui.WindowHandle) winui.WindowHandle {
	popup, err := s.windows.LastActivePopup(win)
	if err != nil || popup == win {
		return winui.None
	}
	return popup
}

// findControl resolves a control by ID, mapping every lookup failure to "not
// found yet".
func (s *Supervisor) findControl(ctx context.Context, h winui.WindowHandle, controlID string) winui.Element {
	el, err := s.controls.FindControlByID(ctx, h, controlID)
	if err != nil {
		return nil
	}
	return el
}
