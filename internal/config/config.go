// Package config holds the library configuration: supervision timing, vault
// TTLs, launch defaults, and the dialog control identifiers of the external
// client. Control IDs are specific to one client UI revision and are
// version-fragile, so they are configuration constants rather than code.
package config

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/spf13/viper"
)

// Supervision configures the process supervisor's poll-and-inspect loops.
type Supervision struct {
	// InputIdleTimeout bounds the initial wait for the process to report
	// input-idle.
	InputIdleTimeout time.Duration `mapstructure:"input_idle_timeout" yaml:"input_idle_timeout"`
	// WindowSpinInterval is the delay between re-checks for a main window
	// handle.
	WindowSpinInterval time.Duration `mapstructure:"window_spin_interval" yaml:"window_spin_interval"`
	// WindowSpins bounds how many spins run before the session degrades to
	// success without a window.
	WindowSpins int `mapstructure:"window_spins" yaml:"window_spins"`
	// ModalWatchSpins bounds the trust-popup watch after the first window.
	ModalWatchSpins int `mapstructure:"modal_watch_spins" yaml:"modal_watch_spins"`
	// PollInterval paces the running-phase popup/progress poll loop.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// ExitWaitBase is the first escalating wait applied once the main
	// window disappears while the process is still alive.
	ExitWaitBase time.Duration `mapstructure:"exit_wait_base" yaml:"exit_wait_base"`
	// ExitWaitCeiling caps the escalating waits.
	ExitWaitCeiling time.Duration `mapstructure:"exit_wait_ceiling" yaml:"exit_wait_ceiling"`
	// ExitEscalations is how many escalations run before the process is
	// presumed hung and killed.
	ExitEscalations int `mapstructure:"exit_escalations" yaml:"exit_escalations"`

	// ProgressIndicatorClass is the window class of the child control that
	// marks the connecting phase.
	ProgressIndicatorClass string `mapstructure:"progress_indicator_class" yaml:"progress_indicator_class"`
	// TrustPromptControlID identifies the trust-confirmation control on the
	// startup popup.
	TrustPromptControlID string `mapstructure:"trust_prompt_control_id" yaml:"trust_prompt_control_id"`
	// ConnectFailedControlID identifies the connection-failed button.
	ConnectFailedControlID string `mapstructure:"connect_failed_control_id" yaml:"connect_failed_control_id"`
	// CertConfirmControlID identifies the certificate-confirmation button.
	CertConfirmControlID string `mapstructure:"cert_confirm_control_id" yaml:"cert_confirm_control_id"`
}

// Vault configures credential TTLs and secret-store write pacing.
type Vault struct {
	// TTL is the configured base time-to-live for vaulted credentials. The
	// extension increment is derived from it once (half, rounded up).
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// WriteOps and WriteBurst bound the rate of best-effort store writes.
	WriteOps   float64 `mapstructure:"write_ops" yaml:"write_ops"`
	WriteBurst int     `mapstructure:"write_burst" yaml:"write_burst"`
}

// Launch configures command assembly defaults.
type Launch struct {
	// ClientPath is the external client executable.
	ClientPath string `mapstructure:"client_path" yaml:"client_path"`
	// WorkDir is the working directory the client is spawned in.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`
	// DefaultPort is used when the target URL does not carry one.
	DefaultPort int `mapstructure:"default_port" yaml:"default_port"`
	// DefaultParams are the host's default launch parameters, appended when
	// an entry opts in.
	DefaultParams string `mapstructure:"default_params" yaml:"default_params"`
}

// Policy configures the supervisor's dialog and credential handling.
type Policy struct {
	// AutoConfirmTrust allows dismissing the startup trust popup.
	AutoConfirmTrust bool `mapstructure:"auto_confirm_trust" yaml:"auto_confirm_trust"`
	// AutoConfirmCertificate allows dismissing certificate popups while
	// connecting.
	AutoConfirmCertificate bool `mapstructure:"auto_confirm_certificate" yaml:"auto_confirm_certificate"`
	// WithdrawOnExit removes the vaulted secret when the session ends
	// instead of resetting its TTL.
	WithdrawOnExit bool `mapstructure:"withdraw_on_exit" yaml:"withdraw_on_exit"`
	// NonPersistentCredential withdraws the secret as soon as the
	// connecting phase ends; the credential only serves connection setup.
	NonPersistentCredential bool `mapstructure:"non_persistent_credential" yaml:"non_persistent_credential"`
}

// Config is the top-level library configuration.
type Config struct {
	Supervision Supervision `mapstructure:"supervision" yaml:"supervision"`
	Vault       Vault       `mapstructure:"vault" yaml:"vault"`
	Launch      Launch      `mapstructure:"launch" yaml:"launch"`
	Policy      Policy      `mapstructure:"policy" yaml:"policy"`
}

// Default returns the built-in configuration. Control IDs default to the
// client UI revision the library was last validated against.
func Default() Config {
	return Config{
		Supervision: Supervision{
			InputIdleTimeout:       10 * time.Second,
			WindowSpinInterval:     250 * time.Millisecond,
			WindowSpins:            40,
			ModalWatchSpins:        8,
			PollInterval:           750 * time.Millisecond,
			ExitWaitBase:           500 * time.Millisecond,
			ExitWaitCeiling:        8 * time.Second,
			ExitEscalations:        6,
			ProgressIndicatorClass: "msctls_progress32",
			TrustPromptControlID:   "6003",
			ConnectFailedControlID: "6001",
			CertConfirmControlID:   "6004",
		},
		Vault: Vault{
			TTL:        10 * time.Second,
			WriteOps:   20,
			WriteBurst: 10,
		},
		Launch: Launch{
			ClientPath:  "mstsc.exe",
			DefaultPort: 3389,
		},
		Policy: Policy{
			AutoConfirmTrust:       true,
			AutoConfirmCertificate: false,
			WithdrawOnExit:         true,
		},
	}
}

// Load merges YAML configuration from r over the defaults.
func Load(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return load(data)
}

func load(data []byte) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	def := Default()
	v.SetDefault("supervision.input_idle_timeout", def.Supervision.InputIdleTimeout)
	v.SetDefault("supervision.window_spin_interval", def.Supervision.WindowSpinInterval)
	v.SetDefault("supervision.window_spins", def.Supervision.WindowSpins)
	v.SetDefault("supervision.modal_watch_spins", def.Supervision.ModalWatchSpins)
	v.SetDefault("supervision.poll_interval", def.Supervision.PollInterval)
	v.SetDefault("supervision.exit_wait_base", def.Supervision.ExitWaitBase)
	v.SetDefault("supervision.exit_wait_ceiling", def.Supervision.ExitWaitCeiling)
	v.SetDefault("supervision.exit_escalations", def.Supervision.ExitEscalations)
	v.SetDefault("supervision.progress_indicator_class", def.Supervision.ProgressIndicatorClass)
	v.SetDefault("supervision.trust_prompt_control_id", def.Supervision.TrustPromptControlID)
	v.SetDefault("supervision.connect_failed_control_id", def.Supervision.ConnectFailedControlID)
	v.SetDefault("supervision.cert_confirm_control_id", def.Supervision.CertConfirmControlID)
	v.SetDefault("vault.ttl", def.Vault.TTL)
	v.SetDefault("vault.write_ops", def.Vault.WriteOps)
	v.SetDefault("vault.write_burst", def.Vault.WriteBurst)
	v.SetDefault("launch.client_path", def.Launch.ClientPath)
	v.SetDefault("launch.work_dir", def.Launch.WorkDir)
	v.SetDefault("launch.default_port", def.Launch.DefaultPort)
	v.SetDefault("launch.default_params", def.Launch.DefaultParams)
	v.SetDefault("policy.auto_confirm_trust", def.Policy.AutoConfirmTrust)
	v.SetDefault("policy.auto_confirm_certificate", def.Policy.AutoConfirmCertificate)
	v.SetDefault("policy.withdraw_on_exit", def.Policy.WithdrawOnExit)
	v.SetDefault("policy.non_persistent_credential", def.Policy.NonPersistentCredential)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the supervisor cannot run with.
func (c Config) Validate() error {
	if c.Vault.TTL < 0 {
		return fmt.Errorf("vault ttl must not be negative, got %s", c.Vault.TTL)
	}
	if c.Supervision.PollInterval <= 0 {
		return fmt.Errorf("supervision poll interval must be positive, got %s", c.Supervision.PollInterval)
	}
	if c.Supervision.ExitWaitBase <= 0 || c.Supervision.ExitWaitCeiling < c.Supervision.ExitWaitBase {
		return fmt.Errorf("exit wait bounds invalid: base %s, ceiling %s",
			c.Supervision.ExitWaitBase, c.Supervision.ExitWaitCeiling)
	}
	return nil
}
