package winui

import (
	"context"
	"fmt"

	"github.com/remsec/connwarden/pkg/common/logger"
)

// Confirmer dismisses confirmation controls with a documented fallback
// policy: the native default action is preferred, and synthesized mouse
// messages are used when the native helper fails or is unavailable. Native
// failures are logged at debug level only; the fallback is the contract.
type Confirmer struct {
	controls Automation
	logger   *logger.Logger
}

// NewConfirmer builds a Confirmer over the given automation port.
func NewConfirmer(controls Automation, log *logger.Logger) *Confirmer {
	return &Confirmer{controls: controls, logger: log.With("component", "winui.confirmer")}
}

// Confirm invokes the element's confirm action inside the window. It returns
// an error only when both the native helper and the synthesized fallback
// fail.
func (c *Confirmer) Confirm(ctx context.Context, h WindowHandle, el Element) error {
	err := c.controls.InvokeDefaultAction(ctx, el)
	if err == nil {
		return nil
	}
	c.logger.Debug(ctx, "native default action failed, falling back to synthesized click",
		"control", el.Name(),
		"err", err,
	)

	if err := c.controls.SynthesizeClick(ctx, h, el); err != nil {
		return fmt.Errorf("synthesized click on %q: %w", el.Name(), err)
	}
	return nil
}
