package updater

import (
	"context"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"

	"camgrid/internal/version"
)

// CheckForUpdate queries the release repository and reports whether a
// newer version exists. Purely informational; nothing is downloaded.
func (u *Updater) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if !u.IsEnabled() {
		return nil, fmt.Errorf("%w: %s", ErrDisabled, u.disabledReason)
	}
	if err := u.begin(PhaseChecking); err != nil {
		return nil, err
	}

	release, err := u.detect(ctx)
	u.finish(PhaseIdle, err)
	if err != nil {
		return nil, err
	}

	info := &UpdateInfo{
		CurrentVersion: version.Version,
		LatestVersion:  release.Version(),
	}
	if !newerThanRunning(release) {
		return info, nil
	}

	info.UpdateAvailable = true
	info.ReleaseNotes = release.ReleaseNotes
	info.ReleaseURL = release.URL
	info.PublishedAt = release.PublishedAt
	info.AssetSize = release.AssetByteSize
	u.setTarget(release.Version())
	return info, nil
}

// ApplyUpdate resolves the latest release, saves the running binary as
// the rollback copy, swaps in the new one and asks the supervisor for a
// restart. A failed swap restores the saved copy.
func (u *Updater) ApplyUpdate(ctx context.Context) error {
	if !u.IsEnabled() {
		return fmt.Errorf("%w: %s", ErrDisabled, u.disabledReason)
	}
	if err := u.begin(PhaseApplying); err != nil {
		return err
	}

	release, err := u.detect(ctx)
	if err != nil {
		u.finish(PhaseIdle, err)
		return err
	}
	if !newerThanRunning(release) {
		u.finish(PhaseIdle, nil)
		return fmt.Errorf("%w: running %s, latest %s", ErrNoUpdate, version.Version, release.Version())
	}
	u.setTarget(release.Version())

	if err := u.backup.save(version.Version); err != nil {
		err = fmt.Errorf("save rollback copy: %w", err)
		u.finish(PhaseIdle, err)
		return err
	}

	u.logger.Info("Applying update", "from", version.Version, "to", release.Version())
	if err := u.source.UpdateTo(ctx, release, u.backup.exe); err != nil {
		err = fmt.Errorf("apply %s: %w", release.Version(), err)
		if restoreErr := u.backup.restore(); restoreErr != nil {
			u.logger.Error("Rollback after failed apply failed", "error", restoreErr)
		}
		u.finish(PhaseIdle, err)
		return err
	}

	u.finish(PhaseRestarting, nil)
	u.logger.Info("Update applied", "version", release.Version())
	u.signalRestart()
	return nil
}

// Rollback swaps the saved previous binary back in and restarts.
func (u *Updater) Rollback(_ context.Context) error {
	if !u.IsEnabled() {
		return fmt.Errorf("%w: %s", ErrDisabled, u.disabledReason)
	}
	if err := u.begin(PhaseApplying); err != nil {
		return err
	}

	prev, ok := u.backup.version()
	if !ok {
		u.finish(PhaseIdle, nil)
		return ErrNoBackup
	}
	if err := u.backup.restore(); err != nil {
		err = fmt.Errorf("restore previous binary: %w", err)
		u.finish(PhaseIdle, err)
		return err
	}

	u.finish(PhaseRolledBack, nil)
	u.logger.Info("Rolled back", "version", prev)
	u.signalRestart()
	return nil
}

func (u *Updater) detect(ctx context.Context) (*selfupdate.Release, error) {
	release, found, err := u.source.DetectLatest(ctx, u.repo)
	u.markChecked()
	if err != nil {
		return nil, fmt.Errorf("detect latest release: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no releases published for %s", u.slug)
	}
	return release, nil
}

// newerThanRunning treats a dev build as always outdated so development
// installs can be moved onto any tagged release.
func newerThanRunning(release *selfupdate.Release) bool {
	return version.Version == "dev" || release.GreaterThan(version.Version)
}
