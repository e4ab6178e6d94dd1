// Package updater replaces the running camgrid binary with a newer GitHub
// release. The previous binary is kept next to the executable so a bad
// release can be rolled back, and every successful apply ends in a SIGTERM
// so the service supervisor restarts the process on the new binary.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"camgrid/internal/logging"
	"camgrid/internal/version"
)

var (
	// ErrDisabled means the executable location is not writable, so
	// self-update cannot work at all.
	ErrDisabled = errors.New("updater: disabled")
	// ErrBusy means another update operation is still running.
	ErrBusy = errors.New("updater: operation in progress")
	// ErrNoUpdate means the latest release is not newer than the
	// running version.
	ErrNoUpdate = errors.New("updater: no update available")
	// ErrNoBackup means no previous binary is available to roll back to.
	ErrNoBackup = errors.New("updater: no backup to roll back to")
)

// Phase is the coarse position of the updater in an update cycle, as
// reported by the status endpoint.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseChecking   Phase = "checking"
	PhaseApplying   Phase = "applying"
	PhaseRestarting Phase = "restarting"
	PhaseRolledBack Phase = "rolled_back"
)

// UpdateInfo describes the latest release relative to the running build.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes"`
	ReleaseURL      string    `json:"release_url"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status is the updater's externally visible state.
type Status struct {
	State           Phase      `json:"state"`
	CurrentVersion  string     `json:"current_version"`
	TargetVersion   string     `json:"target_version,omitempty"`
	Error           string     `json:"error,omitempty"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	BackupAvailable bool       `json:"backup_available"`
	BackupVersion   string     `json:"backup_version,omitempty"`
}

// Options configures the release source.
type Options struct {
	Repository string // GitHub slug, owner/name
	Prerelease bool
}

// Service is the surface the API and CLI consume.
type Service interface {
	CheckForUpdate(ctx context.Context) (*UpdateInfo, error)
	ApplyUpdate(ctx context.Context) error
	Rollback(ctx context.Context) error
	Restart(ctx context.Context) error
	GetStatus(ctx context.Context) *Status
	IsEnabled() bool
	DisabledReason() string
}

// Updater implements Service against a GitHub releases repository.
type Updater struct {
	repo   selfupdate.Repository
	slug   string
	source *selfupdate.Updater
	backup *backupSlot
	logger *slog.Logger

	disabledReason string

	mu          sync.Mutex
	busy        bool
	phase       Phase
	target      string
	lastErr     error
	lastChecked time.Time
}

// NewService builds an updater for the given repository. When the
// executable's directory is not writable the updater still constructs,
// but disabled: every operation returns ErrDisabled and the API surfaces
// the reason.
func NewService(opts *Options) (*Updater, error) {
	logger := logging.GetLogger("updater")

	exe, reason := writableExecutable()
	if reason != "" {
		logger.Warn("Self-update disabled", "reason", reason)
		return &Updater{disabledReason: reason, phase: PhaseIdle, logger: logger}, nil
	}

	src, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("github release source: %w", err)
	}
	source, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     src,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("updater: %w", err)
	}

	return &Updater{
		repo:   selfupdate.ParseSlug(opts.Repository),
		slug:   opts.Repository,
		source: source,
		backup: &backupSlot{exe: exe, logger: logger},
		phase:  PhaseIdle,
		logger: logger,
	}, nil
}

// writableExecutable resolves the running binary's real path and verifies
// its directory accepts writes. Returns a non-empty reason on failure.
func writableExecutable() (string, string) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Sprintf("cannot locate executable: %v", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Sprintf("cannot resolve executable path: %v", err)
	}

	f, err := os.CreateTemp(filepath.Dir(exe), ".camgrid-writecheck-*")
	if err != nil {
		return "", fmt.Sprintf("executable directory not writable: %v", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return exe, ""
}

// IsEnabled reports whether self-update can operate at all.
func (u *Updater) IsEnabled() bool { return u.disabledReason == "" }

// DisabledReason returns why the updater is disabled, empty when enabled.
func (u *Updater) DisabledReason() string { return u.disabledReason }

// GetStatus reports the updater's current phase, last error and backup
// availability.
func (u *Updater) GetStatus(_ context.Context) *Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	st := &Status{
		State:          u.phase,
		CurrentVersion: version.Version,
		TargetVersion:  u.target,
	}
	if u.lastErr != nil {
		st.Error = u.lastErr.Error()
	}
	if !u.lastChecked.IsZero() {
		checked := u.lastChecked
		st.LastChecked = &checked
	}
	if u.backup != nil {
		if v, ok := u.backup.version(); ok {
			st.BackupAvailable = true
			st.BackupVersion = v
		}
	}
	return st
}

// begin claims the updater for one operation. Exactly one of begin's
// callers runs at a time; the rest get ErrBusy.
func (u *Updater) begin(phase Phase) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.busy {
		return fmt.Errorf("%w (%s)", ErrBusy, u.phase)
	}
	u.busy = true
	u.phase = phase
	u.lastErr = nil
	return nil
}

// finish releases the updater. Failed operations return the phase to
// idle; successful ones settle in the given phase.
func (u *Updater) finish(phase Phase, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.busy = false
	u.lastErr = err
	if err != nil {
		u.phase = PhaseIdle
		return
	}
	u.phase = phase
}

func (u *Updater) setTarget(v string) {
	u.mu.Lock()
	u.target = v
	u.mu.Unlock()
}

func (u *Updater) markChecked() {
	u.mu.Lock()
	u.lastChecked = time.Now()
	u.mu.Unlock()
}

// restartDelay gives the HTTP response time to flush before the process
// asks its supervisor to restart it.
const restartDelay = 500 * time.Millisecond

// signalRestart sends SIGTERM to our own process after a short delay.
// Under systemd with Restart=always that bounces the service onto
// whatever binary now sits at the executable path.
func (u *Updater) signalRestart() {
	time.AfterFunc(restartDelay, func() {
		u.logger.Info("Requesting restart via SIGTERM")
		if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
			u.logger.Error("Failed to signal restart", "error", err)
		}
	})
}

// Restart bounces the service without changing the binary.
func (u *Updater) Restart(_ context.Context) error {
	u.mu.Lock()
	u.phase = PhaseRestarting
	u.mu.Unlock()
	u.signalRestart()
	return nil
}
