package updater

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// previousSuffix names the rollback copy kept next to the executable, so
// it lives on the same filesystem and survives with the install.
const previousSuffix = ".previous"

// backupSlot holds exactly one previous binary: the one replaced by the
// most recent apply. Its version travels in a small sidecar file.
type backupSlot struct {
	exe    string
	logger *slog.Logger
}

func (b *backupSlot) binPath() string { return b.exe + previousSuffix }
func (b *backupSlot) verPath() string { return b.exe + previousSuffix + ".version" }

// save copies the running binary into the slot, overwriting any older
// rollback copy.
func (b *backupSlot) save(version string) error {
	if err := copyFile(b.exe, b.binPath(), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(b.verPath(), []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}
	b.logger.Info("Saved rollback copy", "version", version, "path", b.binPath())
	return nil
}

// version reports the saved binary's version and whether one exists at
// all. A copy without a readable marker still counts as present.
func (b *backupSlot) version() (string, bool) {
	if _, err := os.Stat(b.binPath()); err != nil {
		return "", false
	}
	data, err := os.ReadFile(b.verPath())
	if err != nil {
		return "", true
	}
	return strings.TrimSpace(string(data)), true
}

// restore puts the saved binary back at the executable path.
func (b *backupSlot) restore() error {
	if _, ok := b.version(); !ok {
		return ErrNoBackup
	}
	return copyFile(b.binPath(), b.exe, 0o755)
}

// copyFile lands the copy via a temp file and rename so a crash mid-copy
// never leaves a truncated binary at dst.
func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return nil
}
