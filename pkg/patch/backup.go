package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"siteforge/pkg/utils"
)

// BackupSet is one timestamped backup directory shared by every file touched
// during a single plan application. Backups are the only revert mechanism;
// the engine never rolls back on its own.
type BackupSet struct {
	dir   string
	stamp string
}

// NewBackupSet creates a backup directory under root named by the current
// timestamp.
func NewBackupSet(root string) (*BackupSet, error) {
	stamp := time.Now().UTC().Format("20060102-150405")
	dir := filepath.Join(root, stamp)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}
	return &BackupSet{dir: dir, stamp: stamp}, nil
}

// Dir returns the backup directory path.
func (b *BackupSet) Dir() string {
	return b.dir
}

// Stamp returns the shared timestamp naming this set.
func (b *BackupSet) Stamp() string {
	return b.stamp
}

// Add copies the pre-change file into the set, keyed by its path relative to
// baseDir. Returns the backup copy's path.
func (b *BackupSet) Add(baseDir, file string) (string, error) {
	rel, err := filepath.Rel(baseDir, file)
	if err != nil || filepath.IsAbs(rel) {
		// Fall back to the bare filename for paths outside baseDir.
		rel = filepath.Base(file)
	}

	dst := filepath.Join(b.dir, rel)
	if err := utils.CopyFile(file, dst); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", file, err)
	}
	return dst, nil
}
