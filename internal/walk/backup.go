package walk

import (
	"fmt"
	"os"
)

// BackupPolicy selects what happens to an existing destination entry
// before it is overwritten.
type BackupPolicy int

const (
	BackupNone BackupPolicy = iota
	BackupNumbered
	BackupAuto
)

// applyBackup renames an existing dst to dst.~N~, picking the smallest N
// not already in use, then returns. It is a no-op if dst does not exist.
// BackupAuto is treated the same as BackupNumbered: this tool never writes
// the unnumbered "simple" backup form, so there is no existing-backup-style
// to detect and fall back from.
func applyBackup(dst string, policy BackupPolicy) error {
	if policy == BackupNone {
		return nil
	}
	if _, err := os.Lstat(dst); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.~%d~", dst, n)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return os.Rename(dst, candidate)
		}
	}
}
